package datasource

import "strings"

// Kind tags which vendor interface a data source or input belongs to.
type Kind string

const (
	// KindClassic is the legacy SOAP data source api.
	KindClassic Kind = "classic"
	// KindUX is the data source api behind the UX web ui.
	KindUX Kind = "ux"
	// KindAPI is the REST api (Connect).
	KindAPI Kind = "api"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindClassic, KindUX, KindAPI}

func kindNames() []string {
	names := make([]string, len(Kinds))
	for i, k := range Kinds {
		names[i] = string(k)
	}
	return names
}

// ParseKind parses a kind case-insensitively.
func ParseKind(s string) (Kind, error) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Kinds {
		if k == normalized {
			return k, nil
		}
	}
	return "", &ValidationError{
		Field:   "kind",
		Value:   s,
		Allowed: kindNames(),
	}
}

func (k Kind) String() string {
	return string(k)
}
