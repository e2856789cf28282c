package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	triflestats "github.com/trifle-io/trifle_stats_go"
)

// Summary is the aggregate of tracked tool calls over a time range.
type Summary struct {
	From        time.Time
	To          time.Time
	Granularity string
	Calls       float64
	Success     float64
	Failure     float64
	DurationMs  float64
	Tools       map[string]float64
}

// AverageMs is the mean call duration, or 0 without calls.
func (s Summary) AverageMs() float64 {
	if s.Calls == 0 {
		return 0
	}
	return s.DurationMs / s.Calls
}

// ToolCount pairs a tool name with its call count.
type ToolCount struct {
	Tool  string
	Count float64
}

// ByTool lists per-tool counts, most used first.
func (s Summary) ByTool() []ToolCount {
	out := make([]ToolCount, 0, len(s.Tools))
	for tool, count := range s.Tools {
		out = append(out, ToolCount{Tool: tool, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tool < out[j].Tool
	})
	return out
}

// ResolveGranularity returns granularity when it is configured, otherwise the
// first of 1d/1h the config tracks.
func (r *Recorder) ResolveGranularity(granularity string) (string, error) {
	available := r.Config.EffectiveGranularities()
	if granularity = strings.TrimSpace(granularity); granularity != "" {
		for _, value := range available {
			if value == granularity {
				return granularity, nil
			}
		}
		return "", fmt.Errorf("granularity %q is not tracked (available: %s)", granularity, strings.Join(available, ", "))
	}
	for _, candidate := range []string{"1d", "1h"} {
		for _, value := range available {
			if value == candidate {
				return candidate, nil
			}
		}
	}
	if len(available) > 0 {
		return available[0], nil
	}
	return "1d", nil
}

// Summary reads the tracked values between from and to.
func (r *Recorder) Summary(from, to time.Time, granularity string) (Summary, error) {
	if r == nil {
		return Summary{}, errors.New("usage recording is disabled")
	}
	if to.Before(from) {
		return Summary{}, fmt.Errorf("invalid range: %s is before %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	granularity, err := r.ResolveGranularity(granularity)
	if err != nil {
		return Summary{}, err
	}

	result, err := triflestats.Values(r.Config, MetricKey, from, to, granularity, true)
	if err != nil {
		return Summary{}, r.suggestSetup(err)
	}

	summary := Summary{From: from, To: to, Granularity: granularity, Tools: map[string]float64{}}
	series := triflestats.SeriesFromResult(result)
	available := series.AvailablePaths()
	for _, path := range []string{"count", "success", "failure", "duration_ms"} {
		if !contains(available, path) {
			continue
		}
		total := sumAll(series.AggregateSum(path, 1))
		switch path {
		case "count":
			summary.Calls = total
		case "success":
			summary.Success = total
		case "failure":
			summary.Failure = total
		case "duration_ms":
			summary.DurationMs = total
		}
	}

	for _, values := range result.Values {
		addToolCounts(summary.Tools, values, r.Config.Separator)
	}
	return summary, nil
}

// addToolCounts reads per-tool counters whether the driver returns them
// nested under "tools" or flattened with the key separator.
func addToolCounts(into map[string]float64, values map[string]any, separator string) {
	if nested, ok := values["tools"].(map[string]any); ok {
		for tool, count := range nested {
			if n, ok := toFloat(count); ok {
				into[tool] += n
			}
		}
		return
	}
	if separator == "" {
		return
	}
	prefix := "tools" + separator
	for key, count := range values {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if n, ok := toFloat(count); ok {
			into[strings.TrimPrefix(key, prefix)] += n
		}
	}
}

func sumAll(values []any) float64 {
	var total float64
	for _, value := range values {
		if n, ok := toFloat(value); ok {
			total += n
		}
	}
	return total
}

func toFloat(value any) (float64, bool) {
	switch v := triflestats.NormalizeNumeric(value).(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func (r *Recorder) suggestSetup(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "no such table") &&
		!strings.Contains(msg, "doesn't exist") &&
		!strings.Contains(msg, "relation") {
		return err
	}
	return fmt.Errorf("%w (run: yaoephemeris-mcp usage setup --driver %s --table %s)", err, r.DriverName, r.TableName)
}
