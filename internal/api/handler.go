package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/buildwatch/buildwatch/internal/artifact"
	"github.com/buildwatch/buildwatch/internal/store"
	"github.com/buildwatch/buildwatch/pkg/types"
)

const defaultLast = 20

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	mu       sync.RWMutex
	store    store.Store
	locators []*artifact.Locator

	mux *http.ServeMux
}

// New creates a Handler reading from st and registers all routes.
func New(st store.Store, locators []*artifact.Locator) *Handler {
	h := &Handler{store: st, locators: locators, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/ledgers", h.listLedgers)
	h.mux.HandleFunc("/api/v1/ledgers/", h.getLedger) // subtree, extracts {ecosystem}
	h.mux.HandleFunc("/api/v1/status/", h.status)

	return h
}

// Set swaps the store and ecosystems after a config reload.
func (h *Handler) Set(st store.Store, locators []*artifact.Locator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store = st
	h.locators = locators
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) snapshot() (store.Store, []*artifact.Locator) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store, h.locators
}

// lookup resolves the {ecosystem} path segment after prefix.
func (h *Handler) lookup(path, prefix string) (store.Store, *artifact.Locator, bool) {
	name := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	st, locs := h.snapshot()
	for _, l := range locs {
		if l.Ecosystem() == name {
			return st, l, true
		}
	}
	return st, nil, false
}

// --- route handlers ---------------------------------------------------------

// listLedgers returns GET /api/v1/ledgers.
func (h *Handler) listLedgers(w http.ResponseWriter, r *http.Request) {
	st, locs := h.snapshot()
	out := make([]LedgerSummary, 0, len(locs))
	for _, loc := range locs {
		sum := LedgerSummary{Ecosystem: loc.Ecosystem()}
		doc, err := st.Read(r.Context(), loc.Ecosystem())
		switch {
		case errors.Is(err, store.ErrNotFound):
			out = append(out, sum)
			continue
		case err != nil:
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		entries := types.Dedupe(doc.Entries)
		sum.Revisions = len(entries)
		if latest, ok := doc.Latest(); ok {
			sum.LatestRev = latest.Rev
		}
		for _, e := range entries {
			if allBuilt(loc, e) {
				sum.Built++
			}
		}
		if doc.Timestamp > 0 {
			sum.UpdatedAt = time.UnixMilli(doc.Timestamp).UTC().Format(time.RFC3339)
		}
		out = append(out, sum)
	}
	jsonResp(w, http.StatusOK, out)
}

// getLedger returns GET /api/v1/ledgers/{ecosystem} in the persisted format.
func (h *Handler) getLedger(w http.ResponseWriter, r *http.Request) {
	st, loc, ok := h.lookup(r.URL.Path, "/api/v1/ledgers/")
	if !ok {
		jsonErr(w, http.StatusNotFound, "unknown ecosystem")
		return
	}
	doc, ok := h.read(w, r, st, loc.Ecosystem())
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, doc)
}

// status returns GET /api/v1/status/{ecosystem}?last=N.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	st, loc, ok := h.lookup(r.URL.Path, "/api/v1/status/")
	if !ok {
		jsonErr(w, http.StatusNotFound, "unknown ecosystem")
		return
	}
	last := defaultLast
	if v := r.URL.Query().Get("last"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "last must be a positive integer")
			return
		}
		last = n
	}
	doc, ok := h.read(w, r, st, loc.Ecosystem())
	if !ok {
		return
	}

	entries := types.Dedupe(doc.Entries)
	resp := StatusResponse{
		Ecosystem: loc.Ecosystem(),
		Blobs:     loc.Blobs(),
		Revisions: make([]RevisionStatus, 0, min(last, len(entries))),
	}
	for i := len(entries) - 1; i >= 0 && len(resp.Revisions) < last; i-- {
		e := entries[i]
		rs := RevisionStatus{Rev: e.Rev, Blobs: make(map[string]string, len(loc.Blobs()))}
		for _, blob := range loc.Blobs() {
			rs.Blobs[blob] = string(blobStatus(loc, e, blob))
		}
		resp.Revisions = append(resp.Revisions, rs)
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) read(w http.ResponseWriter, r *http.Request, st store.Store, eco string) (types.Document, bool) {
	doc, err := st.Read(r.Context(), eco)
	switch {
	case errors.Is(err, store.ErrNotFound):
		jsonErr(w, http.StatusNotFound, "no ledger yet")
		return doc, false
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return doc, false
	}
	return doc, true
}

func blobStatus(loc *artifact.Locator, e types.RevisionEntry, blob string) types.BuildStatus {
	return types.BlobStatus(e,
		loc.URL(e.Rev, blob, artifact.FormArchive),
		loc.URL(e.Rev, blob, artifact.FormLog))
}

func allBuilt(loc *artifact.Locator, e types.RevisionEntry) bool {
	for _, blob := range loc.Blobs() {
		if blobStatus(loc, e, blob) != types.StatusBuilt {
			return false
		}
	}
	return true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
