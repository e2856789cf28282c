package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/api"
)

var version = "0.1.0-dev"

func resolveVersion() string {
	if version != "0.1.0-dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" && info.Main.Version != "" {
		return info.Main.Version
	}
	return version
}

func main() {
	// .env never overrides variables that are already set.
	_ = godotenv.Load()

	args := os.Args[1:]
	if len(args) == 0 {
		runMCP(nil)
		return
	}

	switch args[0] {
	case "mcp", "serve":
		runMCP(args[1:])
	case "tools":
		runTools(args[1:])
	case "call":
		runCall(args[1:])
	case "cache":
		runCache(args[1:])
	case "usage":
		runUsage(args[1:])
	case "config":
		runConfig(args[1:])
	case "version":
		fmt.Println(resolveVersion())
	case "help", "-h", "--help":
		printUsage()
	default:
		if strings.HasPrefix(args[0], "-") {
			runMCP(args)
			return
		}
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

// newLogger writes human-readable logs to w. stdout is reserved for the
// protocol, so callers pass stderr.
func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	console := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

func logLevel(debugEnabled bool, fallback zerolog.Level) zerolog.Level {
	if debugEnabled {
		return zerolog.DebugLevel
	}
	return fallback
}

func printUsage() {
	reset := "\x1b[0m"
	lines := []string{
		"██╗   ██╗ █████╗  ██████╗ ",
		"╚██╗ ██╔╝██╔══██╗██╔═══██╗",
		" ╚████╔╝ ███████║██║   ██║",
		"  ╚██╔╝  ██╔══██║██║   ██║",
		"   ██║   ██║  ██║╚██████╔╝",
		"   ╚═╝   ╚═╝  ╚═╝ ╚═════╝ ",
	}
	start := [3]int{244, 196, 112}
	end := [3]int{150, 98, 214}
	lerp := func(a, b int, t float64) int {
		return int(float64(a) + (float64(b-a) * t) + 0.5)
	}
	fmt.Println()
	for i, line := range lines {
		var t float64
		if len(lines) > 1 {
			t = float64(i) / float64(len(lines)-1)
		}
		r := lerp(start[0], end[0], t)
		g := lerp(start[1], end[1], t)
		b := lerp(start[2], end[2], t)
		color := fmt.Sprintf("\x1b[38;2;%d;%d;%dm", r, g, b)
		fmt.Println(color + line + reset)
	}
	fmt.Println()
	fmt.Println("yaoephemeris-mcp: MCP bridge to the YaoSenjutsu ephemeris API")
	fmt.Println()
	fmt.Println("Run the stdio server (default without arguments):")
	fmt.Println("  YAOEPHEMERIS_API_KEY=... yaoephemeris-mcp")
	fmt.Println("  yaoephemeris-mcp mcp --lang en --format-mode full --debug")
	fmt.Println()
	fmt.Println("Call a tool once:")
	fmt.Println("  yaoephemeris-mcp call --tool natal_chart --args '{\"name\":\"Hanako\",\"datetime\":\"1990-05-15 14:30\",\"location\":\"Tokyo\"}'")
	fmt.Println()
	fmt.Println("Preference cache:")
	fmt.Println("  yaoephemeris-mcp cache list")
	fmt.Println("  yaoephemeris-mcp cache forget --name Hanako")
	fmt.Println()
	fmt.Println("Usage statistics:")
	fmt.Println("  yaoephemeris-mcp usage report --from 2026-01-01T00:00:00Z --to 2026-01-31T00:00:00Z --granularity 1d")
	fmt.Println("  yaoephemeris-mcp usage setup --usage-driver postgres --usage-host 127.0.0.1 --usage-user postgres --usage-password password")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  mcp       Run the stdio JSON-RPC server (alias: serve)")
	fmt.Println("  tools     List available tools")
	fmt.Println("  call      Call one tool and print the formatted result")
	fmt.Println("  cache     Inspect or edit the preference cache")
	fmt.Println("  usage     Report or set up tool usage statistics")
	fmt.Println("  config    Show or update the config file")
	fmt.Println("  version   Print version")
	fmt.Println()
	fmt.Println("Run 'yaoephemeris-mcp <command> --help' for details.")
}

func cacheUsage() {
	fmt.Println("yaoephemeris-mcp cache <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list    List cached locations")
	fmt.Println("  forget  Remove one person (--name)")
	fmt.Println("  clear   Remove every entry")
}

func usageStatsUsage() {
	fmt.Println("yaoephemeris-mcp usage <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  report  Summarize tool calls over a time range")
	fmt.Println("  setup   Initialize usage storage (sqlite/postgres/mysql/mongo; redis is no-op)")
}

func configUsage() {
	fmt.Println("yaoephemeris-mcp config <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  show  Print resolved settings (API key masked)")
	fmt.Println("  set   Write settings to the config file")
	fmt.Println("  path  Print the config file path")
}

func exitError(err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		fmt.Fprintln(os.Stderr, apiErr.Error())
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	os.Exit(1)
}
