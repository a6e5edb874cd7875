package models

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Endpoint  string `json:"endpoint"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`

	// Verbose fields, peers use these for operational insight only
	SyncJobsWaiting int `json:"syncJobsWaiting"`
	SyncJobsActive  int `json:"syncJobsActive"`
}

// ClockStatusData carries one user's clock (and optionally digest)
type ClockStatusData struct {
	ClockValue int64   `json:"clockValue"`
	Digest     *string `json:"digest,omitempty"`
}

// ClockStatusResponse represents a single-user clock status response
type ClockStatusResponse struct {
	Data ClockStatusData `json:"data"`
}

// UserClockStatus is one user's entry in a batch clock status response
type UserClockStatus struct {
	WalletPublicKey string  `json:"walletPublicKey"`
	Clock           int64   `json:"clock"`
	Digest          *string `json:"digest,omitempty"`
}

// BatchClockStatusData wraps the user list of a batch clock status response
type BatchClockStatusData struct {
	Users []UserClockStatus `json:"users"`
}

// BatchClockStatusResponse represents a batch clock status response
type BatchClockStatusResponse struct {
	Data BatchClockStatusData `json:"data"`
}

// SyncAcceptedResponse acknowledges an incoming sync request. Acceptance is
// fire-and-forget: convergence is observed via clock status polling, not via
// this response.
type SyncAcceptedResponse struct {
	Data struct {
		Accepted bool   `json:"accepted"`
		Wallet   string `json:"wallet"`
	} `json:"data"`
}

// ManualSyncResponse acknowledges a manual sync submission
type ManualSyncResponse struct {
	Data struct {
		JobID         string `json:"jobId"`
		AlreadyQueued bool   `json:"alreadyQueued"`
	} `json:"data"`
}

// ClockRecord is one entry of a user's append-only clock-record log
type ClockRecord struct {
	Clock       int64  `json:"clock"`
	SourceTable string `json:"sourceTable"`
}

// ExportData is one page of a user's clock-record log, served by a primary
// to a catching-up secondary. Records are ordered by clock; HasMore signals
// the page was truncated and the caller should ask again from the last clock.
type ExportData struct {
	Wallet  string        `json:"wallet"`
	Clock   int64         `json:"clock"`
	Records []ClockRecord `json:"records"`
	HasMore bool          `json:"hasMore"`
}

// ExportResponse represents a clock-record export response
type ExportResponse struct {
	Data ExportData `json:"data"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
