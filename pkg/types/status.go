package types

// BuildStatus classifies one blob at one revision from the URLs that were
// reachable.
type BuildStatus string

const (
	StatusBuilt   BuildStatus = "built"   // archive published
	StatusFailed  BuildStatus = "failed"  // only the failure log published
	StatusMissing BuildStatus = "missing" // nothing published yet
)

// BlobStatus derives the build status of a blob from its archive and log URLs.
// An archive wins over a log when both exist.
func BlobStatus(e RevisionEntry, archiveURL, logURL string) BuildStatus {
	switch {
	case e.Has(archiveURL):
		return StatusBuilt
	case e.Has(logURL):
		return StatusFailed
	default:
		return StatusMissing
	}
}
