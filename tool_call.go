package main

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/api"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/params"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/prefs"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/tools"
)

// apiCaller is the part of *api.Client the call pipeline needs.
type apiCaller interface {
	Call(ctx context.Context, endpoint string, params any) (json.RawMessage, error)
}

// callTool runs the full pipeline for one tools/call. Only an unknown tool
// name yields an rpcError; every other failure is an isError result.
func (s *server) callTool(ctx context.Context, name string, args map[string]any) (toolResult, *rpcError) {
	def, ok := s.registry.Lookup(name)
	if !ok {
		msg := "Unknown tool: " + name
		if similar := s.registry.Similar(name, similarToolLimit); len(similar) > 0 {
			msg += s.lang.Pick("\n似たツール: ", "\nSimilar tools: ") + strings.Join(similar, ", ")
		}
		return toolResult{}, &rpcError{Code: codeInvalidParams, Message: msg}
	}

	logger := s.log.With().Str("call_id", uuid.NewString()).Str("tool", string(def.Name)).Logger()
	logger.Debug().Msg("calling tool")

	start := time.Now()
	text, cached, err := s.execute(ctx, logger, def, args)
	duration := time.Since(start)

	if recErr := s.usage.Record(string(def.Name), err == nil, duration); recErr != nil {
		logger.Warn().Err(recErr).Msg("failed to record usage")
	}

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("tool call failed")
		return errorResult(err, s.lang), nil
	}

	logger.Info().Dur("duration", duration).Bool("cached_params", cached).Msg("tool call succeeded")
	return toolResult{
		Content: []contentItem{{Type: "text", Text: text}},
		Metadata: &callMetadata{
			DurationMs:   duration.Milliseconds(),
			Format:       string(s.formatter.Mode()),
			CachedParams: cached,
		},
	}, nil
}

// execute fills cached preferences, validates, calls the API, remembers the
// location on success and formats the response. cached reports whether a
// stored preference was merged into args.
func (s *server) execute(ctx context.Context, logger zerolog.Logger, def tools.Definition, args map[string]any) (string, bool, error) {
	args, cached := s.fillFromCache(logger, args)

	res := params.Validate(def, args, s.lang)
	if !res.OK() {
		return "", cached, &params.ValidationError{Result: res, Lang: s.lang}
	}
	if len(res.Suggestions) > 0 {
		logger.Debug().Strs("suggestions", res.Suggestions).Msg("auto-corrections applied")
	}

	fixed := params.Apply(args, res.AutoFixed)
	body := params.Outbound(def.Name, fixed)

	data, err := s.api.Call(ctx, def.Name.Endpoint(), body)
	if err != nil {
		return "", cached, err
	}

	s.remember(logger, fixed, body)
	return s.formatter.Format(def.Name, data), cached, nil
}

// fillFromCache applies a stored preference when args name a person and
// carry no latitude. Present arguments are never overwritten.
func (s *server) fillFromCache(logger zerolog.Logger, args map[string]any) (map[string]any, bool) {
	name, _ := args["name"].(string)
	if strings.TrimSpace(name) == "" || hasArg(args, "latitude") {
		return args, false
	}
	pref, ok := s.prefs.Get(name)
	if !ok || !pref.Usable() {
		return args, false
	}

	out := make(map[string]any, len(args)+4)
	for key, value := range args {
		out[key] = value
	}
	if pref.Latitude != nil && pref.Longitude != nil && !hasArg(out, "longitude") {
		out["latitude"] = *pref.Latitude
		out["longitude"] = *pref.Longitude
	}
	if pref.Location != "" && !hasArg(out, "location") {
		out["location"] = pref.Location
	}
	if pref.Timezone != "" && !hasArg(out, "timezone") {
		out["timezone"] = pref.Timezone
	}
	logger.Debug().Str("key", prefs.Key(name)).Msg("filled location from preference cache")
	return out, true
}

// remember stores the location sent for a successful call.
func (s *server) remember(logger zerolog.Logger, args, body map[string]any) {
	name, _ := args["name"].(string)
	if !prefs.Eligible(name) {
		return
	}

	pref := prefs.Preference{
		Latitude:  floatArg(body, "latitude"),
		Longitude: floatArg(body, "longitude"),
		Location:  stringArg(body, "location"),
		Timezone:  stringArg(body, "timezone"),
	}
	if !pref.Usable() {
		return
	}
	if err := s.prefs.Set(name, pref); err != nil {
		logger.Warn().Err(err).Msg("failed to save preference")
		return
	}
	logger.Debug().Str("key", prefs.Key(name)).Msg("saved preference")
}

// errorResult renders err as tool output with a hint keyed on the message.
func errorResult(err error, lang locale.Lang) toolResult {
	msg := err.Error()

	var verr *params.ValidationError
	hint := ""
	switch {
	case errors.Is(err, api.ErrAuthentication) || strings.Contains(msg, "authentication"):
		hint = lang.Pick(
			"\n\nヒント: APIキーを環境変数 YAOEPHEMERIS_API_KEY に設定してください。",
			"\n\nHint: Please set your API key in YAOEPHEMERIS_API_KEY environment variable.",
		)
	case errors.As(err, &verr):
		if len(verr.Result.Missing) > 0 {
			hint = requiredHint(lang)
		}
	case strings.Contains(msg, "required"):
		hint = requiredHint(lang)
	}

	return toolResult{
		Content: []contentItem{{Type: "text", Text: "Error: " + msg + hint}},
		IsError: true,
	}
}

func requiredHint(lang locale.Lang) string {
	return lang.Pick(
		"\n\nヒント: 必須パラメータをご確認ください。例: name, datetime",
		"\n\nHint: Please check required parameters. Example: name, datetime",
	)
}

func hasArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	default:
		return true
	}
}

func stringArg(args map[string]any, key string) string {
	value, _ := args[key].(string)
	return strings.TrimSpace(value)
}

func floatArg(args map[string]any, key string) *float64 {
	var f float64
	switch v := args[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}
