package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// FormatVersion is the ledger document schema version. Documents carrying
// any other version are discarded rather than migrated.
const FormatVersion = 1

// RevisionEntry records which candidate URLs were reachable for one revision.
// URLs keeps candidate order.
type RevisionEntry struct {
	Rev  int      `json:"rev"`
	URLs []string `json:"urls"`
}

// Has reports whether url was reachable when the revision was probed.
func (e RevisionEntry) Has(url string) bool {
	return slices.Contains(e.URLs, url)
}

// Document is one ecosystem's persisted ledger.
type Document struct {
	Version   int
	Timestamp int64 // epoch milliseconds of the last content change
	Ecosystem string
	Entries   []RevisionEntry
}

// NewDocument returns an empty ledger for ecosystem at the current format version.
func NewDocument(ecosystem string) Document {
	return Document{Version: FormatVersion, Ecosystem: ecosystem}
}

// Compatible reports whether d was written with the current schema.
func (d Document) Compatible() bool {
	return d.Version == FormatVersion
}

// Latest returns the entry with the highest revision.
func (d Document) Latest() (RevisionEntry, bool) {
	if len(d.Entries) == 0 {
		return RevisionEntry{}, false
	}
	best := d.Entries[0]
	for _, e := range d.Entries[1:] {
		if e.Rev > best.Rev {
			best = e
		}
	}
	return best, true
}

// MarshalJSON encodes the document with the ecosystem name as the entries key.
// Field order is fixed so identical content always produces identical bytes.
func (d Document) MarshalJSON() ([]byte, error) {
	if d.Ecosystem == "" {
		return nil, fmt.Errorf("types: document has no ecosystem")
	}
	if d.Ecosystem == "version" || d.Ecosystem == "timestamp" {
		return nil, fmt.Errorf("types: reserved ecosystem name %q", d.Ecosystem)
	}
	entries := d.Entries
	if entries == nil {
		entries = []RevisionEntry{}
	}
	for i := range entries {
		if entries[i].URLs == nil {
			entries = normalizeURLs(entries)
			break
		}
	}
	key, err := json.Marshal(d.Ecosystem)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `{"version":%d,"timestamp":%d,`, d.Version, d.Timestamp)
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(body)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a ledger document. The single key other than
// "version" and "timestamp" is taken as the ecosystem name.
func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var out Document
	for k, v := range raw {
		switch k {
		case "version":
			if err := json.Unmarshal(v, &out.Version); err != nil {
				return fmt.Errorf("types: version: %w", err)
			}
		case "timestamp":
			if err := json.Unmarshal(v, &out.Timestamp); err != nil {
				return fmt.Errorf("types: timestamp: %w", err)
			}
		default:
			if out.Ecosystem != "" {
				return fmt.Errorf("types: document has more than one ecosystem (%q, %q)", out.Ecosystem, k)
			}
			out.Ecosystem = k
			if err := json.Unmarshal(v, &out.Entries); err != nil {
				return fmt.Errorf("types: %s entries: %w", k, err)
			}
		}
	}
	*d = out
	return nil
}

func normalizeURLs(in []RevisionEntry) []RevisionEntry {
	out := make([]RevisionEntry, len(in))
	for i, e := range in {
		out[i] = e
		if out[i].URLs == nil {
			out[i].URLs = []string{}
		}
	}
	return out
}

// SortEntries sorts entries ascending by revision in place.
func SortEntries(entries []RevisionEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Rev < entries[j].Rev })
}

// Index builds a revision lookup. Later entries win when a revision repeats.
func Index(entries []RevisionEntry) map[int]RevisionEntry {
	idx := make(map[int]RevisionEntry, len(entries))
	for _, e := range entries {
		idx[e.Rev] = e
	}
	return idx
}

// Dedupe returns entries with one entry per revision (last occurrence wins),
// sorted ascending.
func Dedupe(entries []RevisionEntry) []RevisionEntry {
	idx := Index(entries)
	out := make([]RevisionEntry, 0, len(idx))
	for _, e := range idx {
		out = append(out, e)
	}
	SortEntries(out)
	return out
}

// EqualEntries compares two ledgers structurally: same revisions in the same
// order, each with the same URLs in the same order. A nil and an empty URL
// list are equal.
func EqualEntries(a, b []RevisionEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Rev != b[i].Rev || !slices.Equal(a[i].URLs, b[i].URLs) {
			return false
		}
	}
	return true
}
