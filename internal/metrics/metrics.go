package metrics

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

const namespace = "buildwatch"

// EcosystemRun is the per-ecosystem outcome of one run.
type EcosystemRun struct {
	Ecosystem   string
	Upstream    int
	Probed      int
	Reachable   int
	Unreachable int
	Malformed   int
	Backlog     int
	Entries     int
	Changed     bool
}

// Run is the outcome of one poller invocation.
type Run struct {
	Started    time.Time
	Duration   time.Duration
	Success    bool
	Ecosystems []EcosystemRun
}

// Recorder keeps the latest run and cumulative probe counters. It is safe
// for concurrent use; the HTTP handler reads while the poller records.
type Recorder struct {
	mu       sync.Mutex
	last     *Run
	runs     map[bool]float64
	probes   map[string]map[string]float64 // ecosystem -> outcome -> count
	lastGood time.Time
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		runs:   map[bool]float64{},
		probes: map[string]map[string]float64{},
	}
}

// Record stores r as the latest run and adds its probes to the counters.
func (rec *Recorder) Record(r Run) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.last = &r
	rec.runs[r.Success]++
	if r.Success {
		rec.lastGood = r.Started.Add(r.Duration)
	}
	for _, e := range r.Ecosystems {
		m, ok := rec.probes[e.Ecosystem]
		if !ok {
			m = map[string]float64{}
			rec.probes[e.Ecosystem] = m
		}
		m["reachable"] += float64(e.Reachable)
		m["unreachable"] += float64(e.Unreachable)
		m["malformed"] += float64(e.Malformed)
	}
}

// Families renders the recorder state as metric families sorted by name.
func (rec *Recorder) Families() []*dto.MetricFamily {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	var fams []*dto.MetricFamily

	runs := family("runs_total", "Poller runs by result.", dto.MetricType_COUNTER)
	for _, ok := range []bool{true, false} {
		result := "failure"
		if ok {
			result = "success"
		}
		runs.Metric = append(runs.Metric, counter(rec.runs[ok], "result", result))
	}
	fams = append(fams, runs)

	probes := family("probes_total", "HEAD probes by ecosystem and outcome.", dto.MetricType_COUNTER)
	for _, eco := range sortedKeys(rec.probes) {
		for _, outcome := range []string{"malformed", "reachable", "unreachable"} {
			probes.Metric = append(probes.Metric, counter(rec.probes[eco][outcome], "ecosystem", eco, "outcome", outcome))
		}
	}
	if len(probes.Metric) > 0 {
		fams = append(fams, probes)
	}

	if !rec.lastGood.IsZero() {
		f := family("last_success_timestamp_seconds", "Unix time the last successful run finished.", dto.MetricType_GAUGE)
		f.Metric = append(f.Metric, gauge(float64(rec.lastGood.UnixMilli())/1000))
		fams = append(fams, f)
	}

	if r := rec.last; r != nil {
		success := 0.0
		if r.Success {
			success = 1
		}
		fams = append(fams,
			single("run_success", "Whether the last run succeeded.", success),
			single("run_duration_seconds", "Duration of the last run.", r.Duration.Seconds()),
			single("last_run_timestamp_seconds", "Unix time the last run started.", float64(r.Started.UnixMilli())/1000),
		)

		upstream := family("upstream_revision", "Current upstream revision per ecosystem.", dto.MetricType_GAUGE)
		probed := family("revisions_probed", "Revisions probed in the last run.", dto.MetricType_GAUGE)
		backlog := family("backlog_revisions", "Untracked revisions left for later runs.", dto.MetricType_GAUGE)
		entries := family("ledger_entries", "Revisions held in the ledger.", dto.MetricType_GAUGE)
		changed := family("ledger_changed", "Whether the last run changed the ledger.", dto.MetricType_GAUGE)
		for _, e := range r.Ecosystems {
			c := 0.0
			if e.Changed {
				c = 1
			}
			upstream.Metric = append(upstream.Metric, gauge(float64(e.Upstream), "ecosystem", e.Ecosystem))
			probed.Metric = append(probed.Metric, gauge(float64(e.Probed), "ecosystem", e.Ecosystem))
			backlog.Metric = append(backlog.Metric, gauge(float64(e.Backlog), "ecosystem", e.Ecosystem))
			entries.Metric = append(entries.Metric, gauge(float64(e.Entries), "ecosystem", e.Ecosystem))
			changed.Metric = append(changed.Metric, gauge(c, "ecosystem", e.Ecosystem))
		}
		if len(r.Ecosystems) > 0 {
			fams = append(fams, upstream, probed, backlog, entries, changed)
		}
	}

	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

// WriteText writes all families in the text exposition format.
func (rec *Recorder) WriteText(w io.Writer) error {
	for _, mf := range rec.Families() {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile atomically replaces path with the current metrics, the way
// the node_exporter textfile collector expects.
func (rec *Recorder) WriteTextfile(path string) error {
	var buf bytes.Buffer
	if err := rec.WriteText(&buf); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".buildwatch-*.prom")
	if err != nil {
		return fmt.Errorf("metrics: textfile: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("metrics: textfile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: textfile: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("metrics: textfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: textfile: %w", err)
	}
	return nil
}

// Handler serves the metrics in the text format.
func (rec *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		format := expfmt.NewFormat(expfmt.TypeTextPlain)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range rec.Families() {
			if err := enc.Encode(mf); err != nil {
				return
			}
		}
	})
}

// --- helpers ---------------------------------------------------------------

func family(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + "_" + name),
		Help: proto.String(help),
		Type: typ.Enum(),
	}
}

func single(name, help string, v float64) *dto.MetricFamily {
	f := family(name, help, dto.MetricType_GAUGE)
	f.Metric = []*dto.Metric{gauge(v)}
	return f
}

func labels(kv []string) []*dto.LabelPair {
	out := make([]*dto.LabelPair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &dto.LabelPair{Name: proto.String(kv[i]), Value: proto.String(kv[i+1])})
	}
	return out
}

func gauge(v float64, kv ...string) *dto.Metric {
	return &dto.Metric{Label: labels(kv), Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func counter(v float64, kv ...string) *dto.Metric {
	return &dto.Metric{Label: labels(kv), Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
