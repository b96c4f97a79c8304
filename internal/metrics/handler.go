package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	HTTP      httpSummary        `json:"http"`
	RateLimit rateLimitInfo      `json:"rateLimit"`
	Auth      authInfo           `json:"auth"`
	Invites   map[string]float64 `json:"invites"`
	Errors    map[string]float64 `json:"errors"`
	Catalog   catalogInfo        `json:"catalogCache"`
	DB        dbInfo             `json:"db"`
	Server    serverInfo         `json:"server"`
}

type httpSummary struct {
	TotalRequests  float64 `json:"totalRequests"`
	ActiveRequests float64 `json:"activeRequests"`
	ErrorRate      float64 `json:"errorRate"`
	P50Latency     float64 `json:"p50Latency"`
	P95Latency     float64 `json:"p95Latency"`
	P99Latency     float64 `json:"p99Latency"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type catalogInfo struct {
	Hits    float64 `json:"hits"`
	Misses  float64 `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

type serverInfo struct {
	StartTime       float64 `json:"startTime"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
	SessionsCleaned float64 `json:"sessionsCleaned"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

// Handler returns an http.HandlerFunc that serves live metrics in JSON format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summary()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summary gathers the registry into a Summary.
func (m *Metrics) Summary() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	hits := counterWithLabel(fam["toolshelf_catalog_cache_requests_total"], "result", "hit")
	misses := counterWithLabel(fam["toolshelf_catalog_cache_requests_total"], "result", "miss")
	var hitRate float64
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}
	start := gaugeValue(fam["toolshelf_server_start_time_seconds"])

	return &Summary{
		HTTP: httpSummary{
			TotalRequests:  sumCounter(fam["toolshelf_http_requests_total"]),
			ActiveRequests: gaugeValue(fam["toolshelf_http_active_requests"]),
			ErrorRate:      computeErrorRate(fam["toolshelf_http_requests_total"]),
			P50Latency:     histogramPercentile(fam["toolshelf_http_request_duration_seconds"], 0.50),
			P95Latency:     histogramPercentile(fam["toolshelf_http_request_duration_seconds"], 0.95),
			P99Latency:     histogramPercentile(fam["toolshelf_http_request_duration_seconds"], 0.99),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["toolshelf_ratelimit_rejections_total"]),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["toolshelf_auth_failures_total"]),
			Successes: sumCounter(fam["toolshelf_auth_successes_total"]),
		},
		Invites: countersByLabel(fam["toolshelf_invites_total"], "outcome"),
		Errors:  countersByLabel(fam["toolshelf_operation_errors_total"], "kind"),
		Catalog: catalogInfo{Hits: hits, Misses: misses, HitRate: hitRate},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["toolshelf_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["toolshelf_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["toolshelf_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:       start,
			UptimeSeconds:   float64(time.Now().Unix()) - start,
			SessionsCleaned: counterValue(fam["toolshelf_sessions_cleaned_total"]),
		},
	}, nil
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		if hasLabel(m, labelName, labelValue) && m.GetCounter() != nil {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

// countersByLabel sums a counter family grouped by one label.
func countersByLabel(f *dto.MetricFamily, labelName string) map[string]float64 {
	out := map[string]float64{}
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName {
				out[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

// computeErrorRate is the share of requests answered with a 5xx status.
func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '5' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	// Aggregate all histogram metrics in the family.
	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			// Linear interpolation within this bucket.
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// If we didn't find it, return the last finite bucket upper bound.
	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
