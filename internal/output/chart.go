package output

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
)

var majorPlanets = []string{
	"sun", "moon", "mercury", "venus", "mars",
	"jupiter", "saturn", "uranus", "neptune", "pluto",
}

var bodyLabels = map[string][2]string{
	"sun":        {"太陽", "Sun"},
	"moon":       {"月", "Moon"},
	"mercury":    {"水星", "Mercury"},
	"venus":      {"金星", "Venus"},
	"mars":       {"火星", "Mars"},
	"jupiter":    {"木星", "Jupiter"},
	"saturn":     {"土星", "Saturn"},
	"uranus":     {"天王星", "Uranus"},
	"neptune":    {"海王星", "Neptune"},
	"pluto":      {"冥王星", "Pluto"},
	"chiron":     {"キロン", "Chiron"},
	"north_node": {"ドラゴンヘッド", "North Node"},
	"south_node": {"ドラゴンテイル", "South Node"},
}

var bodyPrefixes = []string{
	"transit_", "natal_", "progressed_", "person1_", "person2_",
	"t_", "n_", "p1_", "p2_", "p_",
}

// doc accumulates output lines. Sections are separated by one blank line.
type doc struct {
	lines []string
}

func (d *doc) add(line string) {
	d.lines = append(d.lines, line)
}

func (d *doc) addf(format string, args ...any) {
	d.lines = append(d.lines, fmt.Sprintf(format, args...))
}

func (d *doc) section(title string) {
	if len(d.lines) > 0 && d.lines[len(d.lines)-1] != "" {
		d.lines = append(d.lines, "")
	}
	d.lines = append(d.lines, title)
}

func (d *doc) String() string {
	return strings.TrimRight(strings.Join(d.lines, "\n"), "\n")
}

func bodyLabel(lang locale.Lang, key string) string {
	if label, ok := bodyLabels[strings.ToLower(key)]; ok {
		return lang.Pick(label[0], label[1])
	}
	return key
}

func stripBodyPrefix(key string) string {
	for _, prefix := range bodyPrefixes {
		if strings.HasPrefix(key, prefix) {
			return strings.TrimPrefix(key, prefix)
		}
	}
	return key
}

// signDegree is the position within the sign, always in [0,30).
func signDegree(value float64) float64 {
	deg := math.Mod(value, 30)
	if deg < 0 {
		deg += 30
	}
	return deg
}

func formatDegree(value float64) string {
	return fmt.Sprintf("%.1f", signDegree(value))
}

// body is one named celestial entry from a planets array or object.
type body struct {
	key string
	r   gjson.Result
}

func (b body) degree() (float64, bool) {
	if v := b.r.Get("degree"); v.Exists() {
		return v.Float(), true
	}
	if v := b.r.Get("longitude"); v.Exists() {
		return v.Float(), true
	}
	return 0, false
}

func (b body) retrograde() bool {
	return b.r.Get("is_retrograde").Bool() || b.r.Get("retrograde").Bool()
}

// bodies reads planets given either as an array of {name,...} or as an
// object keyed by name. Document order is kept.
func bodies(planets gjson.Result) []body {
	var out []body
	switch {
	case planets.IsArray():
		planets.ForEach(func(_, value gjson.Result) bool {
			out = append(out, body{key: value.Get("name").String(), r: value})
			return true
		})
	case planets.IsObject():
		planets.ForEach(func(key, value gjson.Result) bool {
			name := value.Get("name").String()
			if name == "" {
				name = key.String()
			}
			out = append(out, body{key: name, r: value})
			return true
		})
	}
	return out
}

func findBody(list []body, key string) (body, bool) {
	for _, b := range list {
		if strings.EqualFold(b.key, key) {
			return b, true
		}
	}
	return body{}, false
}

// bodyLine renders " 太陽: Pisces24.8/10H(R)" or " Sun: Pisces 24.8° House 10(R)".
func bodyLine(lang locale.Lang, prefix, label string, b gjson.Result, deg float64, hasDeg, retro bool) string {
	var sb strings.Builder
	sb.WriteString(" ")
	sb.WriteString(prefix)
	sb.WriteString(label)
	sb.WriteString(": ")
	sign := b.Get("sign").String()
	house := b.Get("house")
	if lang == locale.English {
		sb.WriteString(sign)
		if hasDeg {
			sb.WriteString(" " + formatDegree(deg) + "°")
		}
		if house.Exists() {
			sb.WriteString(" House " + house.String())
		}
	} else {
		sb.WriteString(sign)
		if hasDeg {
			sb.WriteString(formatDegree(deg))
		}
		if house.Exists() {
			sb.WriteString("/" + house.String() + "H")
		}
	}
	if retro {
		sb.WriteString("(R)")
	}
	return sb.String()
}

func (f *Formatter) writeBody(d *doc, prefix string, b body) {
	deg, ok := b.degree()
	d.add(bodyLine(f.lang, prefix, bodyLabel(f.lang, b.key), b.r, deg, ok, b.retrograde()))
}

// writeNodes adds lunar node lines from top-level north_node/south_node
// objects, unless the planets list already carried them.
func (f *Formatter) writeNodes(d *doc, data gjson.Result, listed []body) {
	for _, key := range []string{"north_node", "south_node"} {
		if _, ok := findBody(listed, key); ok {
			continue
		}
		if node := data.Get(key); node.IsObject() {
			f.writeBody(d, "", body{key: key, r: node})
		}
	}
}

// aspect is a normalized aspect entry.
type aspect struct {
	body1    string
	body2    string
	kind     string
	orb      float64
	hasOrb   bool
	applying gjson.Result
}

// firstString returns the first non-empty scalar found at paths.
func firstString(r gjson.Result, paths ...string) string {
	for _, path := range paths {
		v := r.Get(path)
		if v.Exists() && !v.IsObject() && !v.IsArray() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func readAspects(list gjson.Result) []aspect {
	var out []aspect
	list.ForEach(func(_, value gjson.Result) bool {
		out = append(out, readAspect(value))
		return true
	})
	return out
}

func readAspect(value gjson.Result) aspect {
	orb := value.Get("orb")
	return aspect{
		body1:    firstString(value, "body1", "planet1"),
		body2:    firstString(value, "body2", "planet2"),
		kind:     firstString(value, "aspect_name", "type", "aspect"),
		orb:      orb.Float(),
		hasOrb:   orb.Exists() && orb.Type != gjson.Null,
		applying: value.Get("applying"),
	}
}

func isNodeAxis(a aspect) bool {
	return (a.body1 == "north_node" && a.body2 == "south_node") ||
		(a.body1 == "south_node" && a.body2 == "north_node")
}

// rankAspects drops node-axis oppositions, orders by absolute orb and keeps
// at most limit entries. Aspects without an orb sort after the rest.
func rankAspects(list []aspect, limit int) []aspect {
	kept := make([]aspect, 0, len(list))
	for _, a := range list {
		if !isNodeAxis(a) {
			kept = append(kept, a)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].hasOrb != kept[j].hasOrb {
			return kept[i].hasOrb
		}
		return math.Abs(kept[i].orb) < math.Abs(kept[j].orb)
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

func filterAspects(list []aspect, keep func(aspect) bool) []aspect {
	var out []aspect
	for _, a := range list {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func (a aspect) orbText() string {
	if !a.hasOrb {
		return "0.0°"
	}
	return fmt.Sprintf("%.1f°", a.orb)
}

func (a aspect) motion() string {
	if !a.applying.Exists() {
		return ""
	}
	if a.applying.Bool() {
		return " applying"
	}
	return " separating"
}

// aspectLine renders "<p1><b1>-<kind>-<p2><b2> (orb°)".
func (f *Formatter) aspectLine(prefix1, prefix2 string, a aspect, withMotion bool) string {
	kind := a.kind
	if kind == "" {
		kind = "unknown"
	}
	sep := ""
	if f.lang == locale.English && (prefix1 != "" || prefix2 != "") {
		sep = " "
	}
	line := fmt.Sprintf(" %s%s%s-%s-%s%s%s (%s)",
		prefix1, sep, bodyLabel(f.lang, stripBodyPrefix(a.body1)),
		kind,
		prefix2, sep, bodyLabel(f.lang, stripBodyPrefix(a.body2)),
		a.orbText(),
	)
	if withMotion {
		line += a.motion()
	}
	return line
}

func percent(r gjson.Result, keys ...string) float64 {
	for _, key := range keys {
		if v := r.Get(key); v.Exists() {
			return v.Float()
		}
	}
	return 0
}

// writeFields adds "label: value" lines for each scalar member of obj in
// document order.
func writeFields(d *doc, indent string, obj gjson.Result) {
	switch {
	case obj.IsObject():
		obj.ForEach(func(key, value gjson.Result) bool {
			if value.IsObject() || value.IsArray() {
				d.addf("%s%s: %s", indent, key.String(), value.Raw)
				return true
			}
			d.addf("%s%s: %s", indent, key.String(), value.String())
			return true
		})
	case obj.Exists() && obj.String() != "":
		d.addf("%s%s", indent, obj.String())
	}
}
