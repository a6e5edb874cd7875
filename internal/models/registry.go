package models

import "time"

// NodeInfo is the identity record this node publishes to etcd while alive
type NodeInfo struct {
	Wallet    string    `json:"wallet"`
	Endpoint  string    `json:"endpoint"`
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Stats     NodeStats `json:"stats"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NodeStats summarizes the local clock ledger for operators
type NodeStats struct {
	UserCount        int64 `json:"user_count"`
	MaxClock         int64 `json:"max_clock"`
	ClockRecordCount int64 `json:"clock_record_count"`
}
