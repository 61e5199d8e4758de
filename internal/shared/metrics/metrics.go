package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	mu        sync.Mutex
	requests  = map[requestKey]uint64{}
	failures  = map[string]uint64{}
	durations = map[string]*histogram{}

	transitions = map[string]uint64{}
	syncJobs    = map[string]uint64{}
)

var durationBuckets = []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000}

type requestKey struct {
	op     string
	status string
}

// ObserveRequest records one backend call. status 0 means no HTTP response was received.
func ObserveRequest(op string, status int, elapsed time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	requests[requestKey{op: op, status: statusClass(status)}]++
	h, ok := durations[op]
	if !ok {
		h = newHistogram(durationBuckets)
		durations[op] = h
	}
	h.Observe(float64(elapsed.Microseconds()) / 1000.0)
}

// IncFailure counts an error of the given kind (transport, api, malformed).
func IncFailure(kind string) {
	mu.Lock()
	defer mu.Unlock()
	failures[kind]++
}

// IncTransition counts a workflow state change into state.
func IncTransition(state string) {
	mu.Lock()
	defer mu.Unlock()
	transitions[state]++
}

// IncSyncJob counts a report sync job outcome (received, completed, failed,
// skipped, unrecoverable).
func IncSyncJob(outcome string) {
	mu.Lock()
	defer mu.Unlock()
	syncJobs[outcome]++
}

// Reset clears all series.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	requests = map[requestKey]uint64{}
	failures = map[string]uint64{}
	durations = map[string]*histogram{}
	transitions = map[string]uint64{}
	syncJobs = map[string]uint64{}
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	mu.Lock()
	defer mu.Unlock()

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# HELP execal_requests_total Backend requests by operation and status class\n")
	fmt.Fprintf(&buf, "# TYPE execal_requests_total counter\n")
	reqKeys := make([]requestKey, 0, len(requests))
	for k := range requests {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].op != reqKeys[j].op {
			return reqKeys[i].op < reqKeys[j].op
		}
		return reqKeys[i].status < reqKeys[j].status
	})
	for _, k := range reqKeys {
		fmt.Fprintf(&buf, "execal_requests_total{op=%q,status=%q} %d\n", k.op, k.status, requests[k])
	}

	writeLabeledCounter(&buf, "execal_errors_total", "Client errors by kind", "kind", failures)
	writeLabeledCounter(&buf, "execal_workflow_transitions_total", "Workflow transitions by target state", "state", transitions)
	writeLabeledCounter(&buf, "execal_sync_jobs_total", "Report sync jobs by outcome", "outcome", syncJobs)

	ops := make([]string, 0, len(durations))
	for op := range durations {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	fmt.Fprintf(&buf, "# HELP execal_request_duration_ms Backend request duration in milliseconds\n")
	fmt.Fprintf(&buf, "# TYPE execal_request_duration_ms histogram\n")
	for _, op := range ops {
		writeHistogram(&buf, "execal_request_duration_ms", op, durations[op].Snapshot())
	}
	return buf.String()
}

func statusClass(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	if value < 0 {
		value = 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeLabeledCounter(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, op string, snap histogramSnapshot) {
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{op=%q,le=\"%s\"} %d\n", name, op, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{op=%q,le=\"+Inf\"} %d\n", name, op, snap.count)
	fmt.Fprintf(buf, "%s_sum{op=%q} %s\n", name, op, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count{op=%q} %d\n", name, op, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
