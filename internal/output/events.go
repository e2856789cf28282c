package output

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

var rankMarkers = []string{"🥇", "🥈", "🥉"}

func (f *Formatter) election(root gjson.Result) string {
	d := &doc{}
	d.add(f.lang.Pick("吉日選定結果:", "Election Results:"))
	d.addf(f.lang.Pick(" 目的: %s", " Purpose: %s"), root.Get("purpose").String())
	if period := root.Get("search_period"); period.Exists() {
		d.addf(f.lang.Pick(" 検索期間: %s 〜 %s", " Search Period: %s ~ %s"),
			period.Get("start").String(), period.Get("end").String())
	}

	if candidates := root.Get("candidates"); candidates.IsArray() {
		list := candidates.Array()
		if len(list) == 0 {
			d.section(f.lang.Pick("推奨日時: なし", "Recommended Times: None"))
			d.add(f.lang.Pick(" ※ 指定期間内に適切な候補が見つかりませんでした", " ※ No suitable candidates found in the specified period"))
			d.add(f.lang.Pick(" ※ 検索期間を変更するか、条件を調整してください", " ※ Please try changing the search period or adjusting conditions"))
		} else {
			sort.SliceStable(list, func(i, j int) bool {
				return list[i].Get("score").Float() > list[j].Get("score").Float()
			})
			if len(list) > electionCandidateLimit {
				list = list[:electionCandidateLimit]
			}
			d.section(f.lang.Pick("推奨日時:", "Recommended Times:"))
			for i, c := range list {
				f.writeCandidate(d, i, c)
			}
		}
	}

	if loc := root.Get("location"); loc.IsObject() {
		d.section(fmt.Sprintf(f.lang.Pick("場所: 緯度 %s, 経度 %s", "Location: Lat %s, Lng %s"),
			loc.Get("latitude").String(), loc.Get("longitude").String()))
	} else if loc.Type == gjson.String && loc.String() != "" {
		d.section(f.lang.Pick("場所: ", "Location: ") + loc.String())
	}
	return d.String()
}

// candidateScore converts a 0..1 score to a 0..100 scale. Scores already
// above 1 are taken as percentages.
func candidateScore(c gjson.Result) int {
	score := c.Get("score").Float()
	if score <= 1 {
		score *= 100
	}
	return int(math.Round(score))
}

func (f *Formatter) writeCandidate(d *doc, index int, c gjson.Result) {
	marker := "  "
	if index < len(rankMarkers) {
		marker = rankMarkers[index]
	}
	when := firstString(c, "datetime", "date")
	d.addf(f.lang.Pick(" %s %s - スコア: %d/100", " %s %s - Score: %d/100"), marker, when, candidateScore(c))

	planets := bodies(c.Get("chart_data.planets"))
	if moon, ok := findBody(planets, "moon"); ok && moon.r.Get("sign").String() != "" {
		d.addf(f.lang.Pick("    月: %s", "    Moon: %s"), moon.r.Get("sign").String())
	}
	if sun, ok := findBody(planets, "sun"); ok && sun.r.Get("sign").String() != "" {
		d.addf(f.lang.Pick("    太陽: %s", "    Sun: %s"), sun.r.Get("sign").String())
	}

	reasons := c.Get("reasons").Array()
	if len(reasons) > electionReasonLimit {
		reasons = reasons[:electionReasonLimit]
	}
	for _, reason := range reasons {
		d.add("    - " + reason.String())
	}
}

func (f *Formatter) horoscope(root gjson.Result) string {
	d := &doc{}
	sign := root.Get("sign").String()
	if sign == "" {
		sign = f.lang.Pick("全体", "All")
	}
	d.add(f.lang.Pick(sign+"の運勢", "Horoscope for "+sign))
	if date := root.Get("date").String(); date != "" {
		d.add(f.lang.Pick("日付: ", "Date: ") + date)
	}

	d.section(f.lang.Pick("総合運:", "Overall:"))
	d.addf(f.lang.Pick("  スコア: %s/100", "  Score: %s/100"), numberOr(root.Get("overall_score"), "0"))
	d.addf(f.lang.Pick("  評価: %s/10", "  Rating: %s/10"), numberOr(root.Get("rating"), "0"))
	if theme := root.Get("theme").String(); theme != "" {
		d.add(f.lang.Pick("  テーマ: ", "  Theme: ") + theme)
	}

	if influences := root.Get("transit_influences").Array(); len(influences) > 0 {
		d.section(f.lang.Pick("主要な天体の影響:", "Planetary Influences:"))
		for _, t := range influences {
			d.addf("  %s:", t.Get("planet").String())
			d.addf(f.lang.Pick("    アスペクト: %s", "    Aspect: %s"), t.Get("aspect").String())
			d.addf(f.lang.Pick("    影響: %s", "    Influence: %s"), f.influence(t.Get("influence").String()))
		}
	}

	if moon := root.Get("moon_details"); moon.IsObject() {
		d.section(f.lang.Pick("月の情報:", "Moon Details:"))
		d.addf(f.lang.Pick("  月相: %s", "  Phase: %s"), moon.Get("phase").String())
		d.addf(f.lang.Pick("  進行度: %s%%", "  Progress: %s%%"), moon.Get("phase_percentage").String())
		d.addf(f.lang.Pick("  星座: %s", "  Sign: %s"), moon.Get("sign").String())
	}

	if elem := root.Get("elemental_balance"); elem.IsObject() {
		d.section(f.lang.Pick("エレメントバランス:", "Elemental Balance:"))
		d.addf(f.lang.Pick("  支配的エレメント: %s", "  Dominant Element: %s"), elem.Get("dominant_element").String())
		d.addf(f.lang.Pick("  エネルギー: %s", "  Energy: %s"), elem.Get("energy_signature").String())
	}

	if activities := root.Get("ai_metadata.activities.recommended").Array(); len(activities) > 0 {
		d.section(f.lang.Pick("推奨アクティビティ:", "Recommended Activities:"))
		for _, a := range activities {
			d.addf("  %s:", a.Get("activity").String())
			d.addf(f.lang.Pick("    理由: %s", "    Reason: %s"), a.Get("reason").String())
		}
	}

	if accuracy := root.Get("accuracy_estimate"); hasValue(accuracy) {
		d.section(f.lang.Pick("精度推定: ", "Accuracy Estimate: ") + accuracy.String())
	}
	return d.String()
}

func numberOr(r gjson.Result, fallback string) string {
	if !hasValue(r) {
		return fallback
	}
	return r.String()
}

func (f *Formatter) influence(value string) string {
	switch value {
	case "positive":
		return f.lang.Pick("ポジティブ", "Positive")
	case "challenging":
		return f.lang.Pick("チャレンジング", "Challenging")
	default:
		return f.lang.Pick("ニュートラル", "Neutral")
	}
}

func (f *Formatter) tripleSynastry(root gjson.Result) string {
	d := &doc{}
	d.add(f.lang.Pick("3者相性分析", "Triple Synastry Analysis"))
	d.addf(f.lang.Pick("対象者: %s × %s × %s", "Subjects: %s × %s × %s"),
		personName(root, 1), personName(root, 2), personName(root, 3))
	if date := root.Get("analysis_date").String(); date != "" {
		d.add(f.lang.Pick("分析日: ", "Date: ") + date)
	}

	if overall := root.Get("overall_compatibility"); overall.Exists() {
		d.section(f.lang.Pick("総合相性:", "Overall Compatibility:"))
		d.addf(f.lang.Pick("  スコア: %s%%", "  Score: %s%%"), overall.String())
	}

	if scores := root.Get("pairwise_scores"); scores.IsObject() {
		d.section(f.lang.Pick("ペア別相性スコア:", "Pairwise Scores:"))
		for _, pair := range sortedMembers(scores) {
			d.addf("  %s: %s%%", pair.key, pair.value.String())
		}
	}

	grouped := map[string][]aspect{}
	var pairs []string
	root.Get("all_aspects").ForEach(func(_, value gjson.Result) bool {
		key := value.Get("person1").String() + " × " + value.Get("person2").String()
		if _, ok := grouped[key]; !ok {
			pairs = append(pairs, key)
		}
		grouped[key] = append(grouped[key], readAspect(value))
		return true
	})
	if len(pairs) > 0 {
		sort.Strings(pairs)
		d.section(f.lang.Pick("3者間の主要アスペクト:", "Key Aspects:"))
		for _, pair := range pairs {
			d.addf("  %s:", pair)
			for _, a := range rankAspects(grouped[pair], triplePairAspectLimit) {
				orb := ""
				if a.hasOrb {
					orb = " " + a.orbText()
				}
				d.addf("    %s %s %s%s", a.body1, a.kind, a.body2, orb)
			}
		}
	}

	if analysis := root.Get("pairwise_analysis"); analysis.IsObject() {
		d.section(f.lang.Pick("ペア別詳細分析:", "Pairwise Analysis:"))
		for _, pair := range sortedMembers(analysis) {
			d.addf("  %s:", pair.key)
			for _, field := range []struct{ key, ja, en string }{
				{"summary", "概要", "Summary"},
				{"strengths", "強み", "Strengths"},
				{"challenges", "課題", "Challenges"},
			} {
				if v := pair.value.Get(field.key); hasValue(v) {
					d.addf("    %s: %s", f.lang.Pick(field.ja, field.en), v.String())
				}
			}
		}
	}

	if group := root.Get("group_dynamics"); group.IsObject() {
		pending := f.lang.Pick("分析中", "Analyzing")
		d.section(f.lang.Pick("グループダイナミクス:", "Group Dynamics:"))
		d.addf(f.lang.Pick("  バランス: %s", "  Balance: %s"), stringOr(group.Get("balance"), pending))
		d.addf(f.lang.Pick("  推奨: %s", "  Recommendation: %s"), stringOr(group.Get("recommendation"), pending))
	}
	return d.String()
}

func stringOr(r gjson.Result, fallback string) string {
	if s := strings.TrimSpace(r.String()); s != "" {
		return s
	}
	return fallback
}

type member struct {
	key   string
	value gjson.Result
}

func sortedMembers(obj gjson.Result) []member {
	var out []member
	obj.ForEach(func(key, value gjson.Result) bool {
		out = append(out, member{key: key.String(), value: value})
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
