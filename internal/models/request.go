package models

// BatchClockStatusRequest asks a node for the clocks of many users at once
type BatchClockStatusRequest struct {
	WalletPublicKeys []string `json:"walletPublicKeys"`

	// ReturnDigests additionally returns each user's content digest,
	// needed by the sync-mode decision but skipped on plain clock polls.
	ReturnDigests bool `json:"returnDigests,omitempty"`
}

// ManualSyncRequest asks this node, as primary, to push one user to a
// secondary right away.
type ManualSyncRequest struct {
	Wallet            string `json:"wallet"`
	SecondaryEndpoint string `json:"secondary_endpoint"`
}

// SyncRequest asks a secondary to catch up from the given primary.
// Wallet is a single-element list on the wire for legacy compatibility.
type SyncRequest struct {
	Wallet              []string `json:"wallet"`
	CreatorNodeEndpoint string   `json:"creator_node_endpoint"`
	SyncType            string   `json:"sync_type"`
}
