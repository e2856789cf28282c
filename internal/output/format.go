package output

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/tools"
)

// Mode selects how chart responses are rendered.
type Mode string

const (
	ModeCompact Mode = "compact"
	ModeDefault Mode = "default"
	ModeFull    Mode = "full"
)

// ParseMode returns the mode for value and whether value was recognized.
// Unknown values map to ModeCompact.
func ParseMode(value string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeCompact, "":
		return ModeCompact, true
	case ModeDefault:
		return ModeDefault, true
	case ModeFull:
		return ModeFull, true
	default:
		return ModeCompact, false
	}
}

const (
	natalAspectLimit       = 10
	transitAspectLimit     = 10
	compositeAspectLimit   = 10
	synastryGroupLimit     = 5
	progressionGroupLimit  = 5
	returnAspectLimit      = 8
	electionCandidateLimit = 5
	triplePairAspectLimit  = 3
	electionReasonLimit    = 2
)

// Formatter renders remote chart JSON as text in one language. It is safe
// for concurrent use.
type Formatter struct {
	lang locale.Lang
	mode Mode
}

func NewFormatter(lang locale.Lang, mode Mode) *Formatter {
	return &Formatter{lang: lang, mode: mode}
}

func (f *Formatter) Mode() Mode {
	return f.mode
}

// Format renders data returned for tool. Bodies carrying an error field
// yield an error line; unknown tools and full mode yield indented JSON.
func (f *Formatter) Format(tool tools.Name, data []byte) string {
	if !gjson.ValidBytes(data) {
		return string(data)
	}
	root := gjson.ParseBytes(data)

	if errValue := root.Get("error"); hasValue(errValue) {
		return "Error: " + errValue.String() + f.lang.Pick(
			"\n解決方法: APIキーを確認するか、パラメータを修正してください。",
			"\nSolution: Check your API key or correct the parameters.",
		)
	}

	if f.mode == ModeFull {
		return Pretty(data)
	}

	var text string
	switch tool {
	case tools.NatalChart:
		text = f.natal(root)
	case tools.Transits, tools.YaoTransits:
		text = f.transitsReport(tool, root)
	case tools.Synastry:
		text = f.synastry(root)
	case tools.Composite:
		text = f.composite(root)
	case tools.Progressions:
		text = f.progressions(root)
	case tools.SolarReturn, tools.LunarReturn, tools.SaturnReturn, tools.JupiterReturn:
		text = f.returnChart(tool.ReturnKind(), root)
	case tools.Election:
		text = f.election(root)
	case tools.Horoscope:
		text = f.horoscope(root)
	case tools.TripleSynastry:
		text = f.tripleSynastry(root)
	case tools.Sukuyo:
		text = f.sukuyo(root)
	case tools.Sanku:
		text = f.sanku(root)
	case tools.DailySanku:
		text = f.dailySanku(root)
	case tools.YaoNatal:
		text = f.yaoNatal(root)
	case tools.YaoSynastry:
		text = f.yaoSynastry(root)
	}
	if strings.TrimSpace(text) == "" {
		return Pretty(data)
	}
	return text
}

// Pretty indents JSON with two spaces.
func Pretty(data []byte) string {
	out := pretty.PrettyOptions(data, &pretty.Options{Width: 80, Indent: "  "})
	return strings.TrimRight(string(out), "\n")
}

func hasValue(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return r.String() != ""
	default:
		return r.Exists()
	}
}

func nameOf(root gjson.Result) string {
	return firstString(root, "birth_data.name", "name")
}
