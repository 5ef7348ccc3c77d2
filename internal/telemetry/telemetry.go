package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/procurelab/bidwise/config"
)

// Telemetry tracks pipeline activity and LLM spend.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds the aggregate counters reported by GetMetrics.
type Metrics struct {
	// Sourcing runs
	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	AverageRunTime time.Duration

	// Per-source search tasks
	SourceRequests     map[string]int64
	SourceSuccessRates map[string]float64
	SourceAverageTimes map[string]time.Duration

	// LLM usage
	LLMRequests   map[string]int64
	LLMTokensUsed map[string]int64
	TotalCost     float64
	TotalTokens   int64
}

var (
	searchTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bidwise_search_tasks_total",
		Help: "Search tasks executed, by source name and outcome.",
	}, []string{"source", "outcome"})
	llmTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bidwise_llm_tokens_total",
		Help: "LLM tokens consumed, by model and direction.",
	}, []string{"model", "direction"})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bidwise_run_duration_seconds",
		Help:    "Duration of complete sourcing runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	generationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bidwise_generations_active",
		Help: "Streaming completions currently in flight (0 or 1).",
	})
)

// RunEvent captures one complete sourcing orchestration.
type RunEvent struct {
	ID             string
	ConversationID string
	Items          int
	Sources        int
	StartTime      time.Time
	EndTime        time.Time
	Success        bool
	Error          string
}

// SearchEvent captures one (source, item) task.
type SearchEvent struct {
	Source   string
	Item     string
	Duration time.Duration
	Success  bool
	Results  int
}

// LLMEvent captures one completion or extraction call.
type LLMEvent struct {
	Model        string
	Operation    string // chat, extraction
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Duration     time.Duration
	Success      bool
}

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			SourceRequests:     make(map[string]int64),
			SourceSuccessRates: make(map[string]float64),
			SourceAverageTimes: make(map[string]time.Duration),
			LLMRequests:        make(map[string]int64),
			LLMTokensUsed:      make(map[string]int64),
		},
	}
	if cfg.Enabled && cfg.PeriodicLogs {
		go t.startPeriodicReporting()
	}
	return t
}

// RecordRunEvent records a complete sourcing run.
func (t *Telemetry) RecordRunEvent(event RunEvent) {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.TotalRuns++
	if event.Success {
		t.metrics.SuccessfulRuns++
	} else {
		t.metrics.FailedRuns++
	}
	dur := event.EndTime.Sub(event.StartTime)
	if t.metrics.TotalRuns == 1 {
		t.metrics.AverageRunTime = dur
	} else {
		total := t.metrics.AverageRunTime * time.Duration(t.metrics.TotalRuns-1)
		t.metrics.AverageRunTime = (total + dur) / time.Duration(t.metrics.TotalRuns)
	}
	runDuration.Observe(dur.Seconds())

	t.logger.Printf("Run Event: ID=%s, Items=%d, Sources=%d, Success=%t, Duration=%v",
		event.ID, event.Items, event.Sources, event.Success, dur)
}

// RecordSearchEvent records a single (source, item) task.
func (t *Telemetry) RecordSearchEvent(event SearchEvent) {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.SourceRequests[event.Source]++
	n := t.metrics.SourceRequests[event.Source]
	success := t.metrics.SourceSuccessRates[event.Source] * float64(n-1)
	if event.Success {
		success += 1.0
	}
	t.metrics.SourceSuccessRates[event.Source] = success / float64(n)

	avg := t.metrics.SourceAverageTimes[event.Source]
	if n == 1 {
		t.metrics.SourceAverageTimes[event.Source] = event.Duration
	} else {
		total := avg * time.Duration(n-1)
		t.metrics.SourceAverageTimes[event.Source] = (total + event.Duration) / time.Duration(n)
	}

	outcome := "ok"
	if !event.Success {
		outcome = "error"
	}
	searchTasksTotal.WithLabelValues(event.Source, outcome).Inc()
}

// RecordLLMEvent records token usage and cost of one model call.
func (t *Telemetry) RecordLLMEvent(event LLMEvent) {
	if !t.config.Enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.LLMRequests[event.Model]++
	tokens := event.InputTokens + event.OutputTokens
	t.metrics.LLMTokensUsed[event.Model] += tokens
	t.metrics.TotalTokens += tokens
	if t.config.CostTracking {
		t.metrics.TotalCost += event.Cost
	}
	llmTokensTotal.WithLabelValues(event.Model, "input").Add(float64(event.InputTokens))
	llmTokensTotal.WithLabelValues(event.Model, "output").Add(float64(event.OutputTokens))

	t.logger.Printf("LLM Event: Model=%s, Op=%s, Tokens=%d, Cost=$%.4f, Success=%t",
		event.Model, event.Operation, tokens, event.Cost, event.Success)
}

// GenerationStarted flips the active-generation gauge on.
func (t *Telemetry) GenerationStarted() { generationsActive.Set(1) }

// GenerationFinished flips the active-generation gauge off.
func (t *Telemetry) GenerationFinished() { generationsActive.Set(0) }

// GetMetrics returns a copy of current metrics
func (t *Telemetry) GetMetrics() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Metrics{
		TotalRuns:          t.metrics.TotalRuns,
		SuccessfulRuns:     t.metrics.SuccessfulRuns,
		FailedRuns:         t.metrics.FailedRuns,
		AverageRunTime:     t.metrics.AverageRunTime,
		TotalCost:          t.metrics.TotalCost,
		TotalTokens:        t.metrics.TotalTokens,
		SourceRequests:     make(map[string]int64),
		SourceSuccessRates: make(map[string]float64),
		SourceAverageTimes: make(map[string]time.Duration),
		LLMRequests:        make(map[string]int64),
		LLMTokensUsed:      make(map[string]int64),
	}
	for k, v := range t.metrics.SourceRequests {
		out.SourceRequests[k] = v
	}
	for k, v := range t.metrics.SourceSuccessRates {
		out.SourceSuccessRates[k] = v
	}
	for k, v := range t.metrics.SourceAverageTimes {
		out.SourceAverageTimes[k] = v
	}
	for k, v := range t.metrics.LLMRequests {
		out.LLMRequests[k] = v
	}
	for k, v := range t.metrics.LLMTokensUsed {
		out.LLMTokensUsed[k] = v
	}
	return out
}

// CalculateCost computes the dollar cost of a model call.
func (t *Telemetry) CalculateCost(inputTokens, outputTokens int64, costPer1KInput, costPer1KOutput float64) float64 {
	return float64(inputTokens)/1000.0*costPer1KInput + float64(outputTokens)/1000.0*costPer1KOutput
}

func (t *Telemetry) startPeriodicReporting() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m := t.GetMetrics()
		t.logger.Printf("Runs=%d (ok=%d, failed=%d), AvgRun=%v, Tokens=%d, Cost=$%.4f",
			m.TotalRuns, m.SuccessfulRuns, m.FailedRuns, m.AverageRunTime, m.TotalTokens, m.TotalCost)
	}
}
