package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type stepReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Outcomes  map[string]int64 `json:"outcomes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	FinalStatuses     map[string]int64      `json:"final_statuses"`
	Steps             map[string]stepReport `json:"steps"`
}

type stepStats struct {
	calls     int64
	success   int64
	failed    int64
	outcomes  map[string]int64
	latencies []float64
}

// collector копит результаты шагов сценария из всех воркеров.
type collector struct {
	mu    sync.Mutex
	steps map[string]*stepStats
}

func newCollector() *collector {
	return &collector{steps: make(map[string]*stepStats)}
}

func (c *collector) record(step string, latency time.Duration, outcome string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.steps[step]
	if !found {
		stats = &stepStats{outcomes: make(map[string]int64)}
		c.steps[step] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.outcomes[outcome]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		FinalStatuses:   map[string]int64{},
		Steps:           make(map[string]stepReport, len(c.steps)),
	}

	if scenario := c.steps[stepScenario]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
		for status, count := range scenario.outcomes {
			result.FinalStatuses[status] = count
		}
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.steps {
		outcomes := make(map[string]int64, len(stats.outcomes))
		for outcome, count := range stats.outcomes {
			outcomes[outcome] = count
		}
		result.Steps[name] = stepReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Outcomes:  outcomes,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}
	return result
}

func writeJSONReport(path string, result report) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() { _ = file.Close() }()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintf(w, "target=%s mode=%s concurrency=%d\n", cfg.baseURL, cfg.mode, cfg.concurrency)
	_, _ = fmt.Fprintf(w, "scenarios=%d success=%d failed=%d error_rate=%.2f%% rps=%.2f duration=%.2fs\n",
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios,
		result.ErrorRate*100, result.RPS, result.DurationSeconds)
	_, _ = fmt.Fprintf(w, "scenario latency ms: p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.P50, result.ScenarioLatencyMs.P95, result.ScenarioLatencyMs.P99, result.ScenarioLatencyMs.Max)

	names := make([]string, 0, len(result.Steps))
	for name := range result.Steps {
		if name != stepScenario {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		step := result.Steps[name]
		_, _ = fmt.Fprintf(w, "  %-16s calls=%d failed=%d p95=%.2fms outcomes=%v\n",
			name, step.Calls, step.Failed, step.LatencyMs.P95, step.Outcomes)
	}
	if len(result.FinalStatuses) > 0 {
		_, _ = fmt.Fprintf(w, "final statuses: %v\n", result.FinalStatuses)
	}
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile интерполирует между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
