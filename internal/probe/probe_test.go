package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPProber_Statuses(t *testing.T) {
	var methods atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods.Store(r.Method)
		switch r.URL.Path {
		case "/ok.zip":
			w.WriteHeader(http.StatusOK)
		case "/gone.zip":
			w.WriteHeader(http.StatusNotFound)
		case "/no-content":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	p := NewWithClient(srv.Client(), "buildwatch-test")

	tests := []struct {
		path       string
		wantOK     bool
		wantReason Reason
		wantStatus int
	}{
		{"/ok.zip", true, ReasonOK, 200},
		{"/gone.zip", false, ReasonStatus, 404},
		{"/no-content", false, ReasonStatus, 204},
		{"/boom", false, ReasonStatus, 500},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			res := p.Probe(context.Background(), srv.URL+tc.path)
			if res.OK() != tc.wantOK {
				t.Errorf("OK() = %v, want %v", res.OK(), tc.wantOK)
			}
			if res.Reason != tc.wantReason {
				t.Errorf("Reason = %q, want %q", res.Reason, tc.wantReason)
			}
			if res.Status != tc.wantStatus {
				t.Errorf("Status = %d, want %d", res.Status, tc.wantStatus)
			}
			if got := methods.Load(); got != http.MethodHead {
				t.Errorf("method = %v, want HEAD", got)
			}
		})
	}
}

func TestHTTPProber_SendsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.UserAgent())
	}))
	defer srv.Close()

	NewWithClient(srv.Client(), "buildwatch/1").Probe(context.Background(), srv.URL)
	if got := ua.Load(); got != "buildwatch/1" {
		t.Errorf("User-Agent = %v, want buildwatch/1", got)
	}
}

func TestHTTPProber_ConnectFailure(t *testing.T) {
	p := New(Options{Timeout: time.Second})
	res := p.Probe(context.Background(), "http://127.0.0.1:1/x.zip")
	if res.OK() {
		t.Fatal("unreachable endpoint reported reachable")
	}
	if res.Reason != ReasonTransport {
		t.Errorf("Reason = %q, want %q", res.Reason, ReasonTransport)
	}
	if res.Err == nil {
		t.Error("Err should carry the transport error")
	}
}

func TestHTTPProber_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := srv.Client()
	client.Timeout = 50 * time.Millisecond
	res := NewWithClient(client, "").Probe(context.Background(), srv.URL+"/slow.zip")
	if res.OK() || res.Reason != ReasonTransport {
		t.Errorf("timeout: got %+v, want transport failure", res)
	}
}

func TestHTTPProber_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewWithClient(srv.Client(), "").Probe(ctx, srv.URL)
	if res.OK() {
		t.Error("cancelled probe reported reachable")
	}
}

func TestHTTPProber_Malformed(t *testing.T) {
	p := New(Options{})
	for _, u := range []string{"://nope", "ftp://cdn.example.com/x.zip", "https:///x.zip", "cdn.example.com/x.zip"} {
		res := p.Probe(context.Background(), u)
		if res.OK() {
			t.Errorf("Probe(%q) reported reachable", u)
		}
		if res.Reason != ReasonMalformed {
			t.Errorf("Probe(%q) Reason = %q, want %q", u, res.Reason, ReasonMalformed)
		}
	}
}

func TestResult_ZeroValueIsUnreachable(t *testing.T) {
	var r Result
	if r.OK() {
		t.Error("zero Result must not be reachable")
	}
	if Unreachable.String() != "unreachable" || Reachable.String() != "reachable" {
		t.Error("Outcome.String() mismatch")
	}
}

func TestProberFunc(t *testing.T) {
	p := ProberFunc(func(_ context.Context, url string) Result {
		return Result{URL: url, Outcome: Reachable, Reason: ReasonOK, Status: 200}
	})
	if !p.Probe(context.Background(), "x").OK() {
		t.Error("ProberFunc result not forwarded")
	}
}
