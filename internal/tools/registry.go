package tools

import (
	"sort"
	"strings"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
)

// Name identifies one tool. The set is closed; every remote endpoint the
// bridge can reach has a constant here.
type Name string

const (
	NatalChart     Name = "natal_chart"
	Transits       Name = "transits"
	Synastry       Name = "synastry"
	Composite      Name = "composite"
	Progressions   Name = "progressions"
	SolarReturn    Name = "solar_return"
	LunarReturn    Name = "lunar_return"
	SaturnReturn   Name = "saturn_return"
	JupiterReturn  Name = "jupiter_return"
	Election       Name = "election"
	Horoscope      Name = "horoscope"
	TripleSynastry Name = "triple_synastry"
	Sukuyo         Name = "sukuyo"
	Sanku          Name = "sanku"
	DailySanku     Name = "dailysanku"
	YaoNatal       Name = "yaonatal"
	YaoSynastry    Name = "yaosynastry"
	YaoTransits    Name = "yaotransits"
)

// ZodiacSigns are the canonical sign identifiers accepted by the horoscope endpoint.
var ZodiacSigns = []string{
	"Aries", "Taurus", "Gemini", "Cancer", "Leo", "Virgo",
	"Libra", "Scorpio", "Sagittarius", "Capricorn", "Aquarius", "Pisces",
}

// Endpoint is the path segment under /api/v1 for this tool.
func (n Name) Endpoint() string {
	return string(n)
}

// IsBirthData reports whether the tool computes a chart from a single
// person's name and birth datetime.
func (n Name) IsBirthData() bool {
	switch n {
	case NatalChart, Transits, Progressions, SolarReturn, LunarReturn, SaturnReturn, JupiterReturn, Sukuyo, YaoNatal:
		return true
	default:
		return false
	}
}

// ReturnKind returns the body label of a return chart ("solar", "lunar", ...)
// or "" for other tools.
func (n Name) ReturnKind() string {
	switch n {
	case SolarReturn:
		return "solar"
	case LunarReturn:
		return "lunar"
	case SaturnReturn:
		return "saturn"
	case JupiterReturn:
		return "jupiter"
	default:
		return ""
	}
}

// PrefersLocationString reports whether a free-text location replaces
// coordinates in the outbound request.
func (n Name) PrefersLocationString() bool {
	return n != Horoscope && n != Election
}

// Definition is one entry of tools/list.
type Definition struct {
	Name        Name           `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Required returns the top-level required argument names.
func (d Definition) Required() []string {
	return requiredOf(d.InputSchema)
}

// ObjectRequired returns, for each object-typed property, the fields it requires.
func (d Definition) ObjectRequired() map[string][]string {
	out := map[string][]string{}
	props, _ := d.InputSchema["properties"].(map[string]any)
	for key, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok || prop["type"] != "object" {
			continue
		}
		if required := requiredOf(prop); len(required) > 0 {
			out[key] = required
		}
	}
	return out
}

func requiredOf(schema map[string]any) []string {
	if schema == nil {
		return nil
	}
	required, _ := schema["required"].([]string)
	return required
}

// Registry is the fixed tool catalog. It is built once and never mutated.
type Registry struct {
	defs   []Definition
	byName map[Name]int
}

func NewRegistry(lang locale.Lang) *Registry {
	defs := definitions(lang)
	byName := make(map[Name]int, len(defs))
	for i, def := range defs {
		byName[def.Name] = i
	}
	return &Registry{defs: defs, byName: byName}
}

func (r *Registry) List() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	idx, ok := r.byName[Name(strings.TrimSpace(name))]
	if !ok {
		return Definition{}, false
	}
	return r.defs[idx], true
}

// Similar returns up to limit registered names where either name contains
// the other. Results keep registry order.
func (r *Registry) Similar(name string, limit int) []string {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" || limit <= 0 {
		return nil
	}
	var out []string
	for _, def := range r.defs {
		candidate := string(def.Name)
		if strings.Contains(candidate, needle) || strings.Contains(needle, candidate) {
			out = append(out, candidate)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, string(def.Name))
	}
	sort.Strings(out)
	return out
}
