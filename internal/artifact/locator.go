package artifact

import (
	"strconv"
	"strings"

	"github.com/buildwatch/buildwatch/internal/config"
)

// Form distinguishes the two objects a blob may publish per revision.
type Form string

const (
	FormArchive Form = "archive"
	FormLog     Form = "log"
)

// Candidate is one URL that may exist for a revision.
type Candidate struct {
	Blob string
	Form Form
	URL  string
}

// Locator renders candidate URLs for one ecosystem.
type Locator struct {
	eco config.Ecosystem
}

// NewLocator returns a Locator for eco. eco is expected to have passed
// config validation; an empty template falls back to the default layout.
func NewLocator(eco config.Ecosystem) *Locator {
	if eco.PathTemplate == "" {
		eco.PathTemplate = config.DefaultPathTemplate
	}
	if eco.ArchiveExt == "" {
		eco.ArchiveExt = config.DefaultArchiveExt
	}
	if eco.LogExt == "" {
		eco.LogExt = config.DefaultLogExt
	}
	return &Locator{eco: eco}
}

// Ecosystem returns the ecosystem name.
func (l *Locator) Ecosystem() string { return l.eco.Name }

// Blobs returns the ecosystem's blob names in configured order.
func (l *Locator) Blobs() []string { return l.eco.Blobs }

// URL renders the URL of one blob form at rev.
func (l *Locator) URL(rev int, blob string, form Form) string {
	ext := l.eco.ArchiveExt
	if form == FormLog {
		ext = l.eco.LogExt
	}
	r := strings.NewReplacer(
		"{host}", l.eco.Host,
		"{ecosystem}", l.eco.Name,
		"{revision}", strconv.Itoa(rev),
		"{blob}", blob,
		"{ext}", ext,
	)
	return r.Replace(l.eco.PathTemplate)
}

// Candidates returns the archive then log candidate for every blob at rev.
func (l *Locator) Candidates(rev int) []Candidate {
	out := make([]Candidate, 0, 2*len(l.eco.Blobs))
	for _, blob := range l.eco.Blobs {
		out = append(out,
			Candidate{Blob: blob, Form: FormArchive, URL: l.URL(rev, blob, FormArchive)},
			Candidate{Blob: blob, Form: FormLog, URL: l.URL(rev, blob, FormLog)},
		)
	}
	return out
}

// URLs returns the candidate URLs for rev in candidate order.
func (l *Locator) URLs(rev int) []string {
	cands := l.Candidates(rev)
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.URL
	}
	return out
}
