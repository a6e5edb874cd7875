package models

// ReplicaSetEntry is the canonical user-to-replica-set mapping used across
// the node. Both directory response shapes (current and legacy) normalize
// into this type. Secondary endpoints may be empty: a replica set always has
// one primary but zero to two secondaries.
type ReplicaSetEntry struct {
	UserID     int64  `json:"user_id"`
	Wallet     string `json:"wallet"`
	Primary    string `json:"primary"`
	Secondary1 string `json:"secondary1"`
	Secondary2 string `json:"secondary2"`
}

// Secondaries returns the non-empty secondary endpoints
func (e *ReplicaSetEntry) Secondaries() []string {
	out := make([]string, 0, 2)
	if e.Secondary1 != "" {
		out = append(out, e.Secondary1)
	}
	if e.Secondary2 != "" {
		out = append(out, e.Secondary2)
	}
	return out
}

// Endpoints returns every non-empty endpoint in the replica set
func (e *ReplicaSetEntry) Endpoints() []string {
	out := make([]string, 0, 3)
	if e.Primary != "" {
		out = append(out, e.Primary)
	}
	return append(out, e.Secondaries()...)
}

// Contains reports whether the endpoint appears anywhere in the replica set
func (e *ReplicaSetEntry) Contains(endpoint string) bool {
	for _, ep := range e.Endpoints() {
		if ep == endpoint {
			return true
		}
	}
	return false
}
