package credstore

// Kind names one of the two stored credentials.
// The values double as the persisted storage keys.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindAccess || k == KindRefresh }

// Pair is an access + refresh credential pair. Both values are opaque.
type Pair struct {
	Access  string
	Refresh string
}

// Complete reports whether both credentials are present.
func (p Pair) Complete() bool { return p.Access != "" && p.Refresh != "" }

// Empty reports whether neither credential is present.
func (p Pair) Empty() bool { return p.Access == "" && p.Refresh == "" }

// Value returns the credential of the given kind.
func (p Pair) Value(k Kind) string {
	switch k {
	case KindAccess:
		return p.Access
	case KindRefresh:
		return p.Refresh
	default:
		return ""
	}
}
