package types

// Identity is a verified caller identity. How it was verified is the
// caller's concern; the ledger only compares identities for equality.
type Identity string

// IsZero reports whether the identity is empty.
func (i Identity) IsZero() bool { return i == "" }

// String implements fmt.Stringer.
func (i Identity) String() string { return string(i) }
