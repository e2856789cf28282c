package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/output"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/prefs"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/tools"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/usage"
)

// commandSettings loads the config file and registers the shared settings
// flags on a new flag set for command name.
func commandSettings(name string, args []string) (*flag.FlagSet, *settings) {
	cfg, configPath, err := resolveConfig(args)
	if err != nil {
		exitError(err)
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	addConfigFlag(fs, configPath)
	return fs, addSettingsFlags(fs, cfg, configPath)
}

// buildServer wires the preference cache, usage recorder and API client
// for st. The returned cleanup closes the usage recorder.
func buildServer(st *settings, logger zerolog.Logger) (*server, func(), error) {
	lang := st.Lang()
	mode, ok := st.FormatMode()
	if !ok {
		logger.Warn().Str("format", st.Format).Msg("unknown format mode, using compact")
	}

	store, err := prefs.Load(st.CacheFile)
	if err != nil {
		logger.Warn().Err(err).Str("path", st.CacheFile).Msg("preference cache unreadable, starting empty")
		store = prefs.New(st.CacheFile)
	}

	client, err := st.newClient(resolveVersion())
	if err != nil {
		return nil, nil, err
	}
	if !client.HasAPIKey() {
		logger.Warn().Msg("YAOEPHEMERIS_API_KEY is not set; tool calls will fail until it is configured")
	}

	var recorder *usage.Recorder
	if st.Usage != nil {
		recorder, err = usage.Open(*st.Usage)
		if err != nil {
			logger.Warn().Err(err).Str("driver", st.Usage.Driver).Msg("usage recording disabled")
			recorder = nil
		}
	}

	srv := newServer(serverDeps{
		API:       client,
		Prefs:     store,
		Formatter: output.NewFormatter(lang, mode),
		Usage:     recorder,
		Lang:      lang,
		Logger:    logger,
		Version:   resolveVersion(),
	})
	cleanup := func() {
		if err := recorder.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close usage recorder")
		}
	}
	return srv, cleanup, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runMCP(args []string) {
	fs, st := commandSettings("mcp", args)
	fs.Parse(args)

	logger := newLogger(os.Stderr, logLevel(st.Debug, zerolog.InfoLevel))
	srv, cleanup, err := buildServer(st, logger)
	if err != nil {
		exitError(err)
	}

	logger.Info().
		Str("version", resolveVersion()).
		Str("api_url", st.APIURL).
		Str("api_key", maskedKey(st.APIKey)).
		Str("lang", string(st.Lang())).
		Str("format", string(srv.formatter.Mode())).
		Str("cache", st.CacheFile).
		Msg("yaoephemeris-mcp starting")

	ctx, stop := signalContext()
	err = srv.Serve(ctx, os.Stdin, os.Stdout)
	stop()
	cleanup()
	if err != nil {
		exitError(err)
	}
	logger.Info().Msg("yaoephemeris-mcp stopped")
}

func runTools(args []string) {
	fs, st := commandSettings("tools", args)
	format := fs.String("format", "table", "Output format: table|csv|json")
	fs.Parse(args)

	registry := tools.NewRegistry(st.Lang())
	if strings.TrimSpace(*format) == "json" {
		if err := output.PrintJSON(os.Stdout, registry.List()); err != nil {
			exitError(err)
		}
		return
	}

	table := output.Table{Columns: []string{"name", "required", "description"}}
	for _, def := range registry.List() {
		table.Rows = append(table.Rows, []string{
			string(def.Name),
			strings.Join(def.Required(), ","),
			firstLine(def.Description),
		})
	}
	if err := output.PrintRecords(os.Stdout, *format, table); err != nil {
		exitError(err)
	}
}

func runCall(args []string) {
	fs, st := commandSettings("call", args)
	toolName := fs.String("tool", "", "Tool name (see 'yaoephemeris-mcp tools')")
	rawArgs := fs.String("args", "", "Tool arguments as a JSON object")
	argsFile := fs.String("args-file", "", "Path to a JSON file with tool arguments")
	fs.Parse(args)

	if strings.TrimSpace(*toolName) == "" {
		exitError(errors.New("--tool is required"))
	}
	toolArgs, err := loadToolArgs(*rawArgs, *argsFile)
	if err != nil {
		exitError(err)
	}

	logger := newLogger(os.Stderr, logLevel(st.Debug, zerolog.WarnLevel))
	srv, cleanup, err := buildServer(st, logger)
	if err != nil {
		exitError(err)
	}

	ctx, stop := signalContext()
	result, rpcErr := srv.callTool(ctx, *toolName, toolArgs)
	stop()
	cleanup()
	if rpcErr != nil {
		exitError(rpcErr)
	}

	text := resultText(result)
	if result.IsError {
		exitError(errors.New(text))
	}
	fmt.Fprintln(os.Stdout, text)
}

// loadToolArgs decodes tool arguments from an inline JSON object or a file.
// Numbers stay json.Number, as they do on the wire.
func loadToolArgs(rawJSON, filePath string) (map[string]any, error) {
	if rawJSON != "" && filePath != "" {
		return nil, errors.New("use either --args or --args-file, not both")
	}

	data := []byte(rawJSON)
	if filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read args file: %w", err)
		}
		data = content
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid tool arguments (expected a JSON object): %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func resultText(result toolResult) string {
	parts := make([]string, 0, len(result.Content))
	for _, item := range result.Content {
		parts = append(parts, item.Text)
	}
	return strings.Join(parts, "\n")
}

func firstLine(value string) string {
	if idx := strings.IndexByte(value, '\n'); idx >= 0 {
		return value[:idx]
	}
	return value
}

func runCache(args []string) {
	if len(args) == 0 {
		cacheUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "list":
		cacheList(args[1:])
	case "forget":
		cacheForget(args[1:])
	case "clear":
		cacheClear(args[1:])
	case "help", "-h", "--help":
		cacheUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown cache command: %s\n", args[0])
		cacheUsage()
		os.Exit(1)
	}
}

func loadCache(st *settings) *prefs.Store {
	if strings.TrimSpace(st.CacheFile) == "" {
		exitError(errors.New("no cache file configured (set --cache-file or YAOEPHEMERIS_CACHE_FILE)"))
	}
	store, err := prefs.Load(st.CacheFile)
	if err != nil {
		exitError(err)
	}
	return store
}

func cacheList(args []string) {
	fs, st := commandSettings("cache list", args)
	format := fs.String("format", "table", "Output format: table|csv|json")
	fs.Parse(args)

	store := loadCache(st)
	if err := output.PrintRecords(os.Stdout, *format, cacheTable(store.Entries())); err != nil {
		exitError(err)
	}
}

func cacheTable(entries []prefs.Entry) output.Table {
	table := output.Table{Columns: []string{"key", "location", "latitude", "longitude", "timezone", "last_used"}}
	for _, entry := range entries {
		lastUsed := ""
		if !entry.LastUsed.IsZero() {
			lastUsed = entry.LastUsed.UTC().Format(time.RFC3339)
		}
		table.Rows = append(table.Rows, []string{
			entry.Key,
			entry.Location,
			output.FormatCell(entry.Latitude),
			output.FormatCell(entry.Longitude),
			entry.Timezone,
			lastUsed,
		})
	}
	return table
}

func cacheForget(args []string) {
	fs, st := commandSettings("cache forget", args)
	name := fs.String("name", "", "Person name as passed to tools")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		exitError(errors.New("--name is required"))
	}
	store := loadCache(st)
	removed, err := store.Delete(*name)
	if err != nil {
		exitError(err)
	}
	if !removed {
		exitError(fmt.Errorf("no cached entry for %s", prefs.Key(*name)))
	}
	fmt.Fprintf(os.Stdout, "Removed %s\n", prefs.Key(*name))
}

func cacheClear(args []string) {
	fs, st := commandSettings("cache clear", args)
	fs.Parse(args)

	store := loadCache(st)
	count := len(store.Entries())
	if err := store.Clear(); err != nil {
		exitError(err)
	}
	fmt.Fprintf(os.Stdout, "Cleared %d entries from %s\n", count, store.Path())
}

func runUsage(args []string) {
	if len(args) == 0 {
		usageStatsUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "report":
		usageReport(args[1:])
	case "setup":
		usageSetup(args[1:])
	case "help", "-h", "--help":
		usageStatsUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown usage command: %s\n", args[0])
		usageStatsUsage()
		os.Exit(1)
	}
}

func openRecorder(st *settings) *usage.Recorder {
	recorder, err := usage.Open(*st.Usage)
	if err != nil {
		exitError(err)
	}
	if recorder == nil {
		exitError(fmt.Errorf("usage recording is disabled (driver %q)", st.Usage.Driver))
	}
	return recorder
}

func usageReport(args []string) {
	fs, st := commandSettings("usage report", args)
	from := fs.String("from", "", "RFC3339 start timestamp (default: 7 days ago)")
	to := fs.String("to", "", "RFC3339 end timestamp (default: now)")
	granularity := fs.String("granularity", "", "Granularity (e.g. 1h, 1d)")
	format := fs.String("format", "table", "Output format: table|csv|json")
	fs.Parse(args)

	fromTime, toTime, err := resolveReportRange(*from, *to, time.Now().UTC())
	if err != nil {
		exitError(err)
	}

	recorder := openRecorder(st)
	summary, err := recorder.Summary(fromTime, toTime, *granularity)
	closeErr := recorder.Close()
	if err != nil {
		exitError(err)
	}
	if closeErr != nil {
		exitError(closeErr)
	}

	if strings.TrimSpace(*format) == "json" {
		if err := output.PrintJSON(os.Stdout, summaryPayload(summary)); err != nil {
			exitError(err)
		}
		return
	}
	if err := output.PrintRecords(os.Stdout, *format, summaryTable(summary)); err != nil {
		exitError(err)
	}
}

// resolveReportRange parses the report bounds. Either bound may be omitted;
// the defaults cover the seven days before now.
func resolveReportRange(from, to string, now time.Time) (time.Time, time.Time, error) {
	toTime := now
	if value := strings.TrimSpace(to); value != "" {
		parsed, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to must be RFC3339 (e.g. 2024-01-02T15:04:05Z)")
		}
		toTime = parsed
	}
	fromTime := toTime.Add(-7 * 24 * time.Hour)
	if value := strings.TrimSpace(from); value != "" {
		parsed, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from must be RFC3339 (e.g. 2024-01-02T15:04:05Z)")
		}
		fromTime = parsed
	}
	if toTime.Before(fromTime) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must be before to")
	}
	return fromTime, toTime, nil
}

func summaryTable(summary usage.Summary) output.Table {
	table := output.Table{Columns: []string{"metric", "value"}}
	table.Rows = append(table.Rows,
		[]string{"from", summary.From.Format(time.RFC3339)},
		[]string{"to", summary.To.Format(time.RFC3339)},
		[]string{"granularity", summary.Granularity},
		[]string{"calls", output.FormatCell(summary.Calls)},
		[]string{"success", output.FormatCell(summary.Success)},
		[]string{"failure", output.FormatCell(summary.Failure)},
		[]string{"avg_duration_ms", fmt.Sprintf("%.1f", summary.AverageMs())},
	)
	for _, tc := range summary.ByTool() {
		table.Rows = append(table.Rows, []string{"tool:" + tc.Tool, output.FormatCell(tc.Count)})
	}
	return table
}

func summaryPayload(summary usage.Summary) map[string]any {
	byTool := make([]map[string]any, 0, len(summary.Tools))
	for _, tc := range summary.ByTool() {
		byTool = append(byTool, map[string]any{"tool": tc.Tool, "count": tc.Count})
	}
	return map[string]any{
		"from":            summary.From.Format(time.RFC3339),
		"to":              summary.To.Format(time.RFC3339),
		"granularity":     summary.Granularity,
		"calls":           summary.Calls,
		"success":         summary.Success,
		"failure":         summary.Failure,
		"duration_ms":     summary.DurationMs,
		"avg_duration_ms": summary.AverageMs(),
		"tools":           byTool,
	}
}

func usageSetup(args []string) {
	fs, st := commandSettings("usage setup", args)
	fs.Parse(args)

	recorder := openRecorder(st)
	err := recorder.Setup()
	closeErr := recorder.Close()
	if err != nil {
		exitError(err)
	}
	if closeErr != nil {
		exitError(closeErr)
	}

	target := strings.TrimSpace(recorder.TableName)
	if target == "" {
		target = "(default)"
	}
	driverLabel := recorder.DriverName
	if driverLabel != "" {
		driverLabel = strings.ToUpper(driverLabel[:1]) + driverLabel[1:]
	}
	fmt.Fprintf(os.Stdout, "%s setup complete for %s\n", driverLabel, target)
}

func runConfig(args []string) {
	if len(args) == 0 {
		configUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "show":
		configShow(args[1:])
	case "set":
		configSet(args[1:])
	case "path":
		configPathCmd(args[1:])
	case "help", "-h", "--help":
		configUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown config command: %s\n", args[0])
		configUsage()
		os.Exit(1)
	}
}

func configShow(args []string) {
	fs, st := commandSettings("config show", args)
	format := fs.String("format", "table", "Output format: table|csv|json")
	fs.Parse(args)

	mode, _ := st.FormatMode()
	table := output.Table{Columns: []string{"setting", "value"}}
	table.Rows = [][]string{
		{"config", st.ConfigPath},
		{"api_key", maskedKey(st.APIKey)},
		{"api_url", st.APIURL},
		{"timeout", st.Timeout.String()},
		{"language", string(st.Lang())},
		{"format", string(mode)},
		{"debug", fmt.Sprint(st.Debug)},
		{"cache_file", st.CacheFile},
		{"usage_driver", st.Usage.Driver},
	}
	if err := output.PrintRecords(os.Stdout, *format, table); err != nil {
		exitError(err)
	}
}

func configPathCmd(args []string) {
	_, configPath, err := resolveConfig(args)
	if err != nil {
		exitError(err)
	}
	fs := flag.NewFlagSet("config path", flag.ExitOnError)
	addConfigFlag(fs, configPath)
	fs.Parse(args)
	fmt.Fprintln(os.Stdout, configPath)
}

func configSet(args []string) {
	cfg, configPath, err := resolveConfig(args)
	if err != nil {
		exitError(err)
	}

	fs := flag.NewFlagSet("config set", flag.ExitOnError)
	addConfigFlag(fs, configPath)
	fs.String("api-key", "", "API key")
	fs.String("api-url", "", "API base URL")
	fs.String("timeout", "", "API request timeout (e.g. 30s)")
	fs.String("lang", "", "Output language: ja|en")
	fs.String("format-mode", "", "Response format: compact|default|full")
	fs.String("cache-file", "", "Preference cache file")
	fs.String("usage-driver", "", "Usage driver: none|sqlite|postgres|mysql|redis|mongo")
	fs.Parse(args)

	changed := map[string]string{}
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			changed[f.Name] = f.Value.String()
		}
	})
	if len(changed) == 0 {
		exitError(errors.New("nothing to set (see 'yaoephemeris-mcp config set --help')"))
	}

	if err := applyConfigChanges(cfg, changed); err != nil {
		exitError(err)
	}
	if err := saveConfigFile(configPath, cfg); err != nil {
		exitError(err)
	}

	keys := make([]string, 0, len(changed))
	for key := range changed {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fmt.Fprintf(os.Stdout, "Updated %s in %s\n", strings.Join(keys, ", "), configPath)
}

// applyConfigChanges copies explicitly set flag values into cfg after
// validating them.
func applyConfigChanges(cfg *cliConfig, changed map[string]string) error {
	for name, value := range changed {
		value = strings.TrimSpace(value)
		switch name {
		case "api-key":
			cfg.API.Key = value
		case "api-url":
			cfg.API.URL = value
		case "timeout":
			parsed, err := time.ParseDuration(value)
			if err != nil || parsed <= 0 {
				return fmt.Errorf("invalid timeout %q", value)
			}
			cfg.API.Timeout = value
			cfg.API.TimeoutDuration = parsed
			cfg.API.TimeoutSet = true
		case "lang":
			if value != string(locale.Japanese) && value != string(locale.English) {
				return fmt.Errorf("invalid language %q (expected ja or en)", value)
			}
			cfg.Language = value
		case "format-mode":
			if _, ok := output.ParseMode(value); !ok {
				return fmt.Errorf("invalid format mode %q (expected compact, default or full)", value)
			}
			cfg.Format = value
		case "cache-file":
			cfg.CacheFile = value
		case "usage-driver":
			if usage.Enabled(value) && !usage.KnownDriver(value) {
				return fmt.Errorf("unsupported usage driver %q", value)
			}
			cfg.Usage.Driver = value
		}
	}
	return nil
}
