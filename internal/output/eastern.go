package output

import (
	"github.com/tidwall/gjson"
)

func (f *Formatter) sukuyo(root gjson.Result) string {
	d := &doc{}
	d.add(f.lang.Pick("宿曜占星術", "Sukuyo Astrology"))
	if name := nameOf(root); name != "" {
		d.addf(f.lang.Pick(" 対象: %sさん", " Subject: %s"), name)
	}
	if mansion := firstString(root, "honmei_suku", "honmei_shuku", "honmei_shuku.name"); mansion != "" {
		d.section(f.lang.Pick("本命宿: ", "Natal Mansion: ") + mansion)
	}

	details := root.Get("details")
	for _, field := range []struct{ key, ja, en string }{
		{"group", "グループ", "Group"},
		{"element", "五行", "Element"},
	} {
		if v := details.Get(field.key); hasValue(v) {
			d.addf("%s: %s", f.lang.Pick(field.ja, field.en), v.String())
		}
	}
	if character := details.Get("character"); hasValue(character) {
		d.section(f.lang.Pick("性格: ", "Character: ") + character.String())
	}
	return d.String()
}

func (f *Formatter) sanku(root gjson.Result) string {
	d := &doc{}
	d.add(f.lang.Pick("三九の秘法相性診断", "Sanku Compatibility"))

	suku1, suku2 := root.Get("person1_suku").String(), root.Get("person2_suku").String()
	if suku1 != "" && suku2 != "" {
		d.section(personName(root, 1) + ": " + suku1)
		d.add(personName(root, 2) + ": " + suku2)
	}

	if relationship := root.Get("relationship"); hasValue(relationship) {
		d.section(f.lang.Pick("関係性: ", "Relationship: ") + relationship.String())
	}
	if score := root.Get("compatibility_score"); score.Exists() {
		d.addf(f.lang.Pick("相性スコア: %s/100", "Compatibility Score: %s/100"), score.String())
	}

	if details := root.Get("details"); details.IsObject() {
		d.section(f.lang.Pick("詳細:", "Details:"))
		writeFields(d, "  ", details)
	} else if hasValue(details) {
		d.section(f.lang.Pick("詳細: ", "Details: ") + details.String())
	}
	return d.String()
}

func (f *Formatter) dailySanku(root gjson.Result) string {
	d := &doc{}
	d.add(f.lang.Pick("三九の秘法 日運診断", "Daily Sanku Reading"))
	if name := nameOf(root); name != "" {
		d.addf(f.lang.Pick(" 対象: %sさん", " Subject: %s"), name)
	}
	f.dailySankuBody(d, root)
	return d.String()
}

func (f *Formatter) dailySankuBody(d *doc, root gjson.Result) {
	if date := root.Get("target_date").String(); date != "" {
		d.section(f.lang.Pick("対象日: ", "Target Date: ") + date)
	}
	if suku := root.Get("day_suku").String(); suku != "" {
		d.add(f.lang.Pick("日の宿: ", "Mansion of the Day: ") + suku)
	}
	if relationship := root.Get("relationship"); hasValue(relationship) {
		d.section(f.lang.Pick("本命宿との関係: ", "Relation to Natal Mansion: ") + relationship.String())
	}
	if fortune := root.Get("fortune"); hasValue(fortune) {
		d.add(f.lang.Pick("運勢: ", "Fortune: ") + fortune.String())
	}
	if ryohan := root.Get("ryohan"); ryohan.Exists() {
		d.section(f.lang.Pick("凌犯期間:", "Ryohan Period:"))
		writeFields(d, "  ", ryohan)
	}
	if rokugai := root.Get("rokugai"); rokugai.Exists() {
		d.section(f.lang.Pick("六害宿:", "Rokugai:"))
		writeFields(d, "  ", rokugai)
	}
	if advice := root.Get("advice"); hasValue(advice) {
		d.section(f.lang.Pick("アドバイス: ", "Advice: ") + advice.String())
	}
}

func (f *Formatter) yaoNatal(root gjson.Result) string {
	d := &doc{}
	d.add(f.lang.Pick("東西占星術ハイブリッド分析", "East-West Hybrid Analysis"))
	if name := nameOf(root); name != "" {
		d.addf(f.lang.Pick(" 対象: %sさん", " Subject: %s"), name)
	}

	basics := []struct{ key, ja, en string }{
		{"sun_sign", "太陽星座", "Sun Sign"},
		{"moon_sign", "月星座", "Moon Sign"},
		{"rising_sign", "アセンダント", "Ascendant"},
	}
	wroteBasics := false
	for _, field := range basics {
		if v := root.Get(field.key); hasValue(v) {
			if !wroteBasics {
				d.section(f.lang.Pick("【基本情報】", "[Basics]"))
				wroteBasics = true
			}
			d.addf("%s: %s", f.lang.Pick(field.ja, field.en), v.String())
		}
	}

	western := root.Get("western_astrology")
	if !western.IsObject() {
		western = root.Get("western")
	}
	if western.IsObject() {
		d.section(f.lang.Pick("【西洋占星術】", "[Western Astrology]"))
		f.natalBody(d, western)
	}

	switch shuku := root.Get("honmei_shuku"); {
	case shuku.IsObject() && shuku.Get("name").String() != "":
		d.section(f.lang.Pick("【東洋占星術（宿曜）】", "[Eastern Astrology (Sukuyo)]"))
		d.add(f.lang.Pick("本命宿: ", "Natal Mansion: ") + shuku.Get("name").String())
		if group := shuku.Get("group").String(); group != "" {
			d.add(f.lang.Pick("  グループ: ", "  Group: ") + group)
		}
	case shuku.Type == gjson.String && shuku.String() != "":
		d.section(f.lang.Pick("【東洋占星術（宿曜）】", "[Eastern Astrology (Sukuyo)]"))
		d.add(f.lang.Pick("本命宿: ", "Natal Mansion: ") + shuku.String())
	default:
		if sukuyo := root.Get("eastern.sukuyo"); sukuyo.IsObject() {
			d.section(f.lang.Pick("【東洋占星術】", "[Eastern Astrology]"))
			d.add(f.lang.Pick("本命宿: ", "Natal Mansion: ") + sukuyo.Get("name").String())
			if group := sukuyo.Get("group").String(); group != "" {
				d.add(f.lang.Pick("  グループ: ", "  Group: ") + group)
			}
		}
	}

	if lunar := root.Get("lunar_calendar"); lunar.IsObject() {
		d.section(f.lang.Pick("【旧暦情報】", "[Lunar Calendar]"))
		if date := lunar.Get("lunar_date").String(); date != "" {
			d.add(f.lang.Pick("旧暦: ", "Lunar Date: ") + date)
		}
		if rokuyou := lunar.Get("rokuyou").String(); rokuyou != "" {
			d.add(f.lang.Pick("六曜: ", "Rokuyo: ") + rokuyou)
		}
	}

	if synthesis := root.Get("synthesis"); hasValue(synthesis) {
		d.section(f.lang.Pick("【総合分析】", "[Synthesis]"))
		writeFields(d, "", synthesis)
	}
	return d.String()
}

func (f *Formatter) yaoSynastry(root gjson.Result) string {
	d := &doc{}
	d.add(f.lang.Pick("東西相性診断ハイブリッド分析", "East-West Synastry Analysis"))

	if western := root.Get("western_synastry"); western.IsObject() {
		d.section(f.lang.Pick("【西洋占星術相性】", "[Western Synastry]"))
		f.synastryBody(d, western)
	}

	if sanku := root.Get("eastern_compatibility.sanku"); sanku.IsObject() {
		d.section(f.lang.Pick("【東洋占星術相性】", "[Eastern Compatibility]"))
		d.add(f.lang.Pick("三九の秘法: ", "Sanku: ") + sanku.Get("relationship").String())
		if score := sanku.Get("score"); hasValue(score) {
			d.addf(f.lang.Pick("  相性スコア: %s/100", "  Score: %s/100"), score.String())
		}
	}
	return d.String()
}
