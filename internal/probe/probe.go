package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/buildwatch/buildwatch/internal/logging"
)

var logger = logging.New("probe")

// DefaultTimeout bounds a single HEAD request when none is configured.
const DefaultTimeout = 10 * time.Second

// Outcome is the boolean answer of a probe, kept as a distinct type so a
// zero Result never reads as "reachable".
type Outcome int

const (
	Unreachable Outcome = iota
	Reachable
)

func (o Outcome) String() string {
	if o == Reachable {
		return "reachable"
	}
	return "unreachable"
}

// Reason explains an Outcome.
type Reason string

const (
	ReasonOK        Reason = "ok"
	ReasonStatus    Reason = "status"    // server answered with a non-200 status
	ReasonTransport Reason = "transport" // request never got a response
	ReasonMalformed Reason = "malformed" // URL could not be requested at all
)

// Result is the outcome of probing one URL.
type Result struct {
	URL     string
	Outcome Outcome
	Reason  Reason
	Status  int   // HTTP status when one was received
	Err     error // transport or parse error, if any
}

// OK reports whether the URL was confirmed to exist.
func (r Result) OK() bool { return r.Outcome == Reachable }

// Prober checks URL existence. Implementations must be safe for concurrent use.
type Prober interface {
	Probe(ctx context.Context, url string) Result
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, url string) Result

// Probe calls f(ctx, url).
func (f ProberFunc) Probe(ctx context.Context, url string) Result { return f(ctx, url) }

// Options configure an HTTPProber.
type Options struct {
	Timeout            time.Duration
	UserAgent          string
	InsecureSkipVerify bool
}

// HTTPProber probes URLs with HEAD requests.
type HTTPProber struct {
	client    *http.Client
	userAgent string
}

// New returns an HTTPProber with its own client and transport.
func New(opts Options) *HTTPProber {
	return &HTTPProber{client: buildHTTPClient(opts), userAgent: opts.UserAgent}
}

// NewWithClient returns an HTTPProber that uses client as-is (tests hand in
// httptest clients).
func NewWithClient(client *http.Client, userAgent string) *HTTPProber {
	return &HTTPProber{client: client, userAgent: userAgent}
}

// buildHTTPClient constructs the shared probe client. Keep-alives are kept on
// because every revision probes many objects on the same CDN host.
func buildHTTPClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify}, //nolint:gosec // user-configured
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Probe issues a HEAD request for rawURL. It never returns an error; see Result.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string) Result {
	res := Result{URL: rawURL, Outcome: Unreachable}

	if err := validateURL(rawURL); err != nil {
		res.Reason = ReasonMalformed
		res.Err = err
		logger.Warn("malformed url, check ecosystem host and path_template",
			"url", rawURL, "err", err)
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		res.Reason = ReasonMalformed
		res.Err = err
		logger.Warn("malformed url", "url", rawURL, "err", err)
		return res
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		res.Reason = ReasonTransport
		res.Err = err
		logger.Debug("transport failure", "url", rawURL, "err", err)
		return res
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	res.Status = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		res.Reason = ReasonStatus
		return res
	}
	res.Outcome = Reachable
	res.Reason = ReasonOK
	return res
}

var errNoHost = errors.New("missing host")

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errNoHost
	}
	return nil
}
