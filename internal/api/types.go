package api

// LedgerSummary is one entry in GET /api/v1/ledgers.
type LedgerSummary struct {
	Ecosystem string `json:"ecosystem"`
	Revisions int    `json:"revisions"`
	LatestRev int    `json:"latest_rev,omitempty"`

	// Built counts revisions whose every blob has an archive.
	Built     int    `json:"built"`
	UpdatedAt string `json:"updated_at,omitempty"` // RFC3339
}

// StatusResponse is the payload for GET /api/v1/status/{ecosystem}.
type StatusResponse struct {
	Ecosystem string           `json:"ecosystem"`
	Blobs     []string         `json:"blobs"`
	Revisions []RevisionStatus `json:"revisions"`
}

// RevisionStatus maps each blob to its build status at one revision.
type RevisionStatus struct {
	Rev   int               `json:"rev"`
	Blobs map[string]string `json:"blobs"`
}

type errorResponse struct {
	Error string `json:"error"`
}
