package output

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/tools"
)

func (f *Formatter) natal(root gjson.Result) string {
	d := &doc{}
	birth := root.Get("birth_data")
	name := nameOf(root)
	d.add(f.lang.Pick(name+"さんのネイタルチャート", "Natal Chart for "+name))
	if dt := firstString(birth, "datetime"); dt != "" {
		d.add(f.lang.Pick("生年月日時: ", "Birth Date/Time: ") + dt)
	}
	if place := placeOf(birth); place != "" {
		d.add(f.lang.Pick("出生地: ", "Location: ") + place)
	}
	f.natalBody(d, root)
	return d.String()
}

func placeOf(birth gjson.Result) string {
	if loc := birth.Get("location"); loc.Type == gjson.String && loc.String() != "" {
		return loc.String()
	}
	lat, lon := birth.Get("latitude"), birth.Get("longitude")
	if lat.Exists() && lon.Exists() {
		return fmt.Sprintf("%.4f, %.4f", lat.Float(), lon.Float())
	}
	return ""
}

// natalBody writes everything below the natal header: planets, nodes,
// angles, cusps, element balance and aspects.
func (f *Formatter) natalBody(d *doc, root gjson.Result) {
	listed := bodies(root.Get("planets"))
	if len(listed) > 0 || root.Get("north_node").Exists() {
		d.section(f.lang.Pick("主要10天体:", "Major Planets:"))
		for _, key := range majorPlanets {
			if b, ok := findBody(listed, key); ok {
				f.writeBody(d, "", b)
			}
		}
		for _, key := range []string{"north_node", "south_node"} {
			if b, ok := findBody(listed, key); ok {
				f.writeBody(d, "", b)
			}
		}
		f.writeNodes(d, root, listed)
	}

	houses := root.Get("houses").Array()
	f.writeAngles(d, houses, f.lang.Pick("アングル:", "Angles:"), []angle{{"ASC", 0}, {"IC", 3}, {"DSC", 6}, {"MC", 9}})

	if len(houses) > 0 {
		d.section(f.lang.Pick("ハウスカスプ:", "House Cusps:"))
		for i, h := range houses {
			num := h.Get("house").String()
			if num == "" {
				num = strconv.Itoa(i + 1)
			}
			deg := formatDegree(h.Get("longitude").Float())
			if f.lang == locale.English {
				d.addf(" House %s: %s %s°", num, h.Get("sign").String(), deg)
			} else {
				d.addf(" %sH: %s%s", num, h.Get("sign").String(), deg)
			}
		}
	}

	me := root.Get("modality_element")
	if elements := me.Get("elements"); elements.Exists() {
		d.section(f.lang.Pick("エレメント:", "Elements:"))
		d.addf(f.lang.Pick(" 火: %.1f%% 地: %.1f%% 風: %.1f%% 水: %.1f%%", " Fire: %.1f%% Earth: %.1f%% Air: %.1f%% Water: %.1f%%"),
			percent(elements, "fire", "火"), percent(elements, "earth", "地"),
			percent(elements, "air", "風"), percent(elements, "water", "水"))
	}
	if modalities := me.Get("modalities"); modalities.Exists() {
		d.add(f.lang.Pick("モダリティ:", "Modalities:"))
		d.addf(f.lang.Pick(" 活動: %.1f%% 不動: %.1f%% 柔軟: %.1f%%", " Cardinal: %.1f%% Fixed: %.1f%% Mutable: %.1f%%"),
			percent(modalities, "cardinal", "活動宮"), percent(modalities, "fixed", "不動宮"),
			percent(modalities, "mutable", "柔軟宮"))
	}

	if ranked := rankAspects(readAspects(root.Get("aspects")), natalAspectLimit); len(ranked) > 0 {
		d.section(f.lang.Pick("アスペクト:", "Aspects:"))
		for _, a := range ranked {
			d.add(f.aspectLine("", "", a, false))
		}
	}
}

type angle struct {
	label string
	index int
}

func (f *Formatter) writeAngles(d *doc, houses []gjson.Result, title string, angles []angle) {
	if len(houses) < 10 {
		return
	}
	d.section(title)
	for _, a := range angles {
		h := houses[a.index]
		sep := ""
		if f.lang == locale.English {
			sep = " "
		}
		deg := formatDegree(h.Get("longitude").Float())
		if f.lang == locale.English {
			deg += "°"
		}
		d.addf(" %s: %s%s%s", a.label, h.Get("sign").String(), sep, deg)
	}
}

func (f *Formatter) transitsReport(tool tools.Name, root gjson.Result) string {
	d := &doc{}
	data := root
	if western := root.Get("western_transits"); western.IsObject() {
		data = western
	}
	name := nameOf(root)
	if name == "" {
		name = nameOf(data)
	}
	date := firstString(data, "transit_date", "transit_datetime")
	if date == "" {
		date = f.lang.Pick("現在", "Current")
	}
	d.add(f.lang.Pick("トランジット分析:", "Transit Analysis:"))
	d.addf(f.lang.Pick(" 対象: %sさん", " Subject: %s"), name)
	d.addf(f.lang.Pick(" 分析日時: %s", " Date: %s"), date)
	f.transitBody(d, data)

	if tool == tools.YaoTransits {
		if daily := root.Get("daily_sanku"); daily.IsObject() {
			d.section(f.lang.Pick("【日運三九】", "[Daily Sanku]"))
			f.dailySankuBody(d, daily)
		}
	}
	return d.String()
}

func (f *Formatter) transitBody(d *doc, data gjson.Result) {
	transiting := bodies(data.Get("transit_planets"))
	if len(transiting) > 0 {
		d.section(f.lang.Pick("現在の天体位置:", "Transit Positions:"))
		for _, b := range transiting {
			f.writeBody(d, "", b)
		}
	}

	if ranked := rankAspects(readAspects(data.Get("aspects")), transitAspectLimit); len(ranked) > 0 {
		d.section(f.lang.Pick("重要なアスペクト:", "Key Aspects:"))
		for _, a := range ranked {
			d.add(f.aspectLine("T", "N", a, true))
		}
	} else if active := data.Get("active_transits").Array(); len(active) > 0 {
		d.section(f.lang.Pick("重要なアスペクト:", "Key Aspects:"))
		if len(active) > transitAspectLimit {
			active = active[:transitAspectLimit]
		}
		for _, t := range active {
			line := fmt.Sprintf(" T%s-%s-N%s",
				bodyLabel(f.lang, t.Get("transit_planet").String()),
				t.Get("aspect").String(),
				bodyLabel(f.lang, t.Get("natal_planet").String()))
			if days := t.Get("days_to_exact"); days.Exists() {
				if days.Int() == 0 {
					line += f.lang.Pick(" (正確)", " (exact)")
				} else if days.Int() > 0 {
					line += fmt.Sprintf(f.lang.Pick(" (%d日後)", " (%d days)"), days.Int())
				}
			}
			d.add(line)
		}
	}

	byHouse := map[int][]string{}
	for _, b := range transiting {
		house := b.r.Get("house").Int()
		if house > 0 {
			byHouse[int(house)] = append(byHouse[int(house)], bodyLabel(f.lang, b.key))
		}
	}
	if len(byHouse) > 0 {
		houses := make([]int, 0, len(byHouse))
		for house := range byHouse {
			houses = append(houses, house)
		}
		sort.Ints(houses)
		d.section(f.lang.Pick("ハウス通過:", "House Transits:"))
		for _, house := range houses {
			if f.lang == locale.English {
				d.addf(" House %d: %s", house, strings.Join(byHouse[house], ", "))
			} else {
				d.addf(" %dH: %sが通過中", house, strings.Join(byHouse[house], "、"))
			}
		}
	}
}

var (
	harmoniousAspects  = map[string]bool{"conjunction": true, "trine": true, "sextile": true}
	challengingAspects = map[string]bool{"opposition": true, "square": true}
)

func personName(root gjson.Result, n int) string {
	key := fmt.Sprintf("person%d", n)
	if p := root.Get(key); p.Type == gjson.String && p.String() != "" {
		return p.String()
	}
	if name := firstString(root, key+".name", key+"_name", fmt.Sprintf("birth_data.%s_name", key), fmt.Sprintf("person_names.%d", n-1)); name != "" {
		return name
	}
	return fmt.Sprintf("Person%d", n)
}

func datePart(value string) string {
	day, _, _ := strings.Cut(value, "T")
	return day
}

func (f *Formatter) synastry(root gjson.Result) string {
	d := &doc{}
	f.synastryBody(d, root)
	return d.String()
}

func (f *Formatter) synastryBody(d *doc, root gjson.Result) {
	d.add(f.lang.Pick("相性診断:", "Synastry:"))
	for n := 1; n <= 2; n++ {
		date := datePart(firstString(root, fmt.Sprintf("person%d.datetime", n)))
		d.addf(f.lang.Pick(" person%d: %sさん (%s)", " Person %d: %s (%s)"), n, personName(root, n), date)
	}

	if score := root.Get("compatibility_score"); score.Exists() {
		d.section(f.lang.Pick("相性スコア:", "Compatibility Scores:"))
		d.addf(f.lang.Pick(" 総合: %s%%", " Overall: %s%%"), score.String())
		for _, s := range []struct{ key, ja, en string }{
			{"love_score", "恋愛", "Love"},
			{"friendship_score", "友情", "Friendship"},
			{"business_score", "ビジネス", "Business"},
		} {
			if v := root.Get(s.key); hasValue(v) {
				d.addf(" %s: %s%%", f.lang.Pick(s.ja, s.en), v.String())
			}
		}
	}

	all := readAspects(root.Get("aspects"))
	good := rankAspects(filterAspects(all, func(a aspect) bool { return harmoniousAspects[strings.ToLower(a.kind)] }), synastryGroupLimit)
	hard := rankAspects(filterAspects(all, func(a aspect) bool { return challengingAspects[strings.ToLower(a.kind)] }), synastryGroupLimit)
	if len(good) > 0 {
		d.section(f.lang.Pick("良い相性アスペクト:", "Harmonious Aspects:"))
		for _, a := range good {
			d.add(f.aspectLine("P1", "P2", a, false))
		}
	}
	if len(hard) > 0 {
		d.section(f.lang.Pick("注意が必要なアスペクト:", "Challenging Aspects:"))
		for _, a := range hard {
			d.add(f.aspectLine("P1", "P2", a, false))
		}
	}
}

func (f *Formatter) composite(root gjson.Result) string {
	d := &doc{}
	kind := firstString(root, "birth_data.composite_type", "composite_type")
	if kind == "" {
		kind = "midpoint"
	}
	d.add(f.lang.Pick("コンポジットチャート:", "Composite Chart:"))
	d.addf(f.lang.Pick(" 対象: %s & %s", " Subjects: %s & %s"), personName(root, 1), personName(root, 2))
	d.addf(f.lang.Pick(" タイプ: %s", " Type: %s"), kind)

	if listed := bodies(root.Get("planets")); len(listed) > 0 {
		d.section(f.lang.Pick("合成天体:", "Composite Planets:"))
		for _, b := range listed {
			f.writeBody(d, "", b)
		}
	}
	if ranked := rankAspects(readAspects(root.Get("aspects")), compositeAspectLimit); len(ranked) > 0 {
		d.section(f.lang.Pick("アスペクト:", "Aspects:"))
		for _, a := range ranked {
			d.add(f.aspectLine("", "", a, false))
		}
	}
	return d.String()
}

func isProgressed(key string) bool {
	return strings.Contains(key, "progressed") || strings.HasPrefix(key, "p_")
}

func isNatal(key string) bool {
	return strings.Contains(key, "natal") || strings.HasPrefix(key, "n_")
}

func (f *Formatter) progressions(root gjson.Result) string {
	d := &doc{}
	d.add(f.lang.Pick("進行図分析:", "Progressions:"))
	d.addf(f.lang.Pick(" 対象: %sさん", " Subject: %s"), nameOf(root))
	d.addf(f.lang.Pick(" 進行日: %s", " Target Date: %s"), firstString(root, "target_date"))

	if listed := bodies(root.Get("progressed_planets")); len(listed) > 0 {
		d.section(f.lang.Pick("進行天体:", "Progressed Planets:"))
		for _, b := range listed {
			f.writeBody(d, "P", b)
		}
	}

	all := readAspects(root.Get("aspects"))
	toNatal := rankAspects(filterAspects(all, func(a aspect) bool {
		return isProgressed(a.body1) && isNatal(a.body2)
	}), progressionGroupLimit)
	mutual := rankAspects(filterAspects(all, func(a aspect) bool {
		return isProgressed(a.body1) && isProgressed(a.body2)
	}), progressionGroupLimit)

	if len(toNatal) > 0 {
		d.section(f.lang.Pick("進行天体→ネイタルへのアスペクト:", "Progressed to Natal Aspects:"))
		for _, a := range toNatal {
			d.add(f.aspectLine("P", "N", a, true))
		}
	}
	if len(mutual) > 0 {
		d.section(f.lang.Pick("進行天体同士のアスペクト:", "Progressed to Progressed Aspects:"))
		for _, a := range mutual {
			d.add(f.aspectLine("P", "P", a, false))
		}
	}
	return d.String()
}

var returnTitles = map[string][2]string{
	"solar":   {"ソーラーリターン", "Solar Return"},
	"lunar":   {"ルナーリターン", "Lunar Return"},
	"saturn":  {"サターンリターン", "Saturn Return"},
	"jupiter": {"ジュピターリターン", "Jupiter Return"},
}

func (f *Formatter) returnChart(kind string, root gjson.Result) string {
	if kind == "" {
		kind = root.Get("return_type").String()
	}
	title := f.lang.Pick("リターン", "Return")
	if t, ok := returnTitles[strings.ToLower(kind)]; ok {
		title = f.lang.Pick(t[0], t[1])
	} else if kind != "" {
		title = kind
	}

	d := &doc{}
	d.add(title + f.lang.Pick(":", " Chart:"))
	d.addf(f.lang.Pick(" 対象: %sさん", " Subject: %s"), nameOf(root))
	d.addf(f.lang.Pick(" リターン日時: %s", " Return Date: %s"), firstString(root, "return_date", "return_datetime"))
	if age := root.Get("age"); age.Exists() {
		d.addf(f.lang.Pick(" 年齢: %s歳", " Age: %s"), age.String())
	}

	listed := bodies(root.Get("planets"))
	if len(listed) > 0 || root.Get("north_node").Exists() {
		d.section(f.lang.Pick("リターン天体:", "Return Planets:"))
		for _, b := range listed {
			f.writeBody(d, "", b)
		}
		f.writeNodes(d, root, listed)
	}

	if ranked := rankAspects(readAspects(root.Get("aspects")), returnAspectLimit); len(ranked) > 0 {
		d.section(f.lang.Pick("重要なアスペクト:", "Key Aspects:"))
		for _, a := range ranked {
			d.add(f.aspectLine("", "", a, false))
		}
	}

	f.writeAngles(d, root.Get("houses").Array(), f.lang.Pick("年運のテーマ:", "Themes of the Period:"), []angle{{"ASC", 0}, {"MC", 9}})
	return d.String()
}
