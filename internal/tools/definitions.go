package tools

import "github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"

func definitions(lang locale.Lang) []Definition {
	str := func(ja, en string) map[string]any {
		return map[string]any{"type": "string", "description": lang.Pick(ja, en)}
	}
	num := func(ja, en string) map[string]any {
		return map[string]any{"type": "number", "description": lang.Pick(ja, en)}
	}
	boolean := func(ja, en string) map[string]any {
		return map[string]any{"type": "boolean", "description": lang.Pick(ja, en)}
	}

	nameSchema := str("名前（ニックネーム可）", "Person's name (nickname OK)")
	datetimeSchema := str(
		"生年月日時（例: \"1990-03-15 14:30:00\" または \"1990年3月15日 14時30分\"）",
		"Birth date/time (e.g. \"1990-03-15 14:30:00\" or ISO format)",
	)
	locationSchema := str(
		"出生地（都市名や住所。例: \"東京\"、\"大阪府大阪市\"、\"New York\"）",
		"Birth location (city name or address, e.g. \"Tokyo\", \"New York\")",
	)
	latitudeSchema := num("緯度（場所を指定した場合は省略可）", "Latitude (optional if location is provided)")
	longitudeSchema := num("経度（場所を指定した場合は省略可）", "Longitude (optional if location is provided)")
	timezoneSchema := str(
		"タイムゾーン（例: \"Asia/Tokyo\"、省略時は場所から自動推定）",
		"Timezone (e.g. \"Asia/Tokyo\", auto-detected from location if omitted)",
	)

	birthProps := func(extra map[string]any) map[string]any {
		props := map[string]any{
			"name":      nameSchema,
			"datetime":  datetimeSchema,
			"location":  locationSchema,
			"latitude":  latitudeSchema,
			"longitude": longitudeSchema,
			"timezone":  timezoneSchema,
		}
		for key, value := range extra {
			props[key] = value
		}
		return props
	}

	person := map[string]any{
		"type":       "object",
		"properties": birthProps(nil),
		"required":   []string{"name", "datetime"},
	}

	birthTool := func(name Name, ja, en string, extra map[string]any, required ...string) Definition {
		return Definition{
			Name:        name,
			Description: lang.Pick(ja, en),
			InputSchema: map[string]any{
				"type":       "object",
				"properties": birthProps(extra),
				"required":   append([]string{"name", "datetime"}, required...),
			},
		}
	}

	return []Definition{
		birthTool(NatalChart,
			"出生図（ネイタルチャート）を作成 - 生まれた瞬間の天体配置から性格・運命を読み解きます",
			"Create a natal chart showing planetary positions at birth",
			nil,
		),
		birthTool(Transits,
			"トランジット - 現在の天体配置が出生図に与える影響を計算します",
			"Calculate current transits against a person's natal chart",
			map[string]any{
				"transit_date": str("トランジットを計算する日（省略時は現在）", "Date for transits (optional, defaults to now)"),
			},
		),
		{
			Name:        Synastry,
			Description: lang.Pick("相性診断 - 2人の出生図を比較します", "Calculate compatibility between two people"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"person1": person,
					"person2": person,
				},
				"required": []string{"person1", "person2"},
			},
		},
		{
			Name:        Composite,
			Description: lang.Pick("コンポジットチャート - 2人の中間点チャートを作成します", "Create a composite chart for two people"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"person1": person,
					"person2": person,
				},
				"required": []string{"person1", "person2"},
			},
		},
		birthTool(Progressions,
			"プログレッション（二次進行）を計算します",
			"Calculate secondary progressions",
			map[string]any{
				"target_date": str("進行を計算する日", "Date for progressions"),
			},
		),
		birthTool(SolarReturn,
			"ソーラーリターン - 太陽が出生時の位置に戻る瞬間の年運チャート",
			"Calculate a solar return chart for a given year",
			map[string]any{
				"year": num("ソーラーリターンを計算する年", "Year for the solar return"),
			},
			"year",
		),
		birthTool(LunarReturn,
			"ルナーリターン（月回帰）- 月が出生時と同じ位置に戻る約27.3日周期の運勢",
			"Calculate a lunar return chart - monthly emotional and domestic themes",
			map[string]any{
				"target_date": str("対象日（省略時は翌月の回帰を自動計算）", "Target date (auto-calculates the next return if omitted)"),
			},
		),
		birthTool(SaturnReturn,
			"サターンリターン - 土星回帰のチャートを計算します",
			"Calculate a Saturn return chart",
			nil,
		),
		birthTool(JupiterReturn,
			"ジュピターリターン - 木星回帰のチャートを計算します",
			"Calculate a Jupiter return chart",
			nil,
		),
		{
			Name:        Election,
			Description: lang.Pick("エレクション（吉日選定）- 目的に合った日時を探します", "Find auspicious dates for a purpose (electional astrology)"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"purpose":    str("目的（例: 開業、結婚）", "Purpose of the election (e.g. business launch, wedding)"),
					"start_date": str("検索開始日（YYYY-MM-DD）", "Search start date (YYYY-MM-DD)"),
					"end_date":   str("検索終了日（省略時は開始日から30日間）", "Search end date (defaults to 30 days after start)"),
					"location":   str("場所（緯度・経度を指定した場合は省略可）", "Location (optional if latitude/longitude provided)"),
					"latitude":   num("緯度（場所を指定した場合は省略可）", "Latitude (optional if location provided)"),
					"longitude":  num("経度（場所を指定した場合は省略可）", "Longitude (optional if location provided)"),
					"timezone":   timezoneSchema,
				},
				"required": []string{"purpose", "start_date"},
				"anyOf": []any{
					map[string]any{"required": []string{"location"}},
					map[string]any{"required": []string{"latitude", "longitude"}},
				},
			},
		},
		{
			Name:        Horoscope,
			Description: lang.Pick("今日の運勢 - 星座ごとのホロスコープ", "Get the daily horoscope for a zodiac sign"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sign": map[string]any{
						"type":        "string",
						"enum":        ZodiacSigns,
						"description": lang.Pick("星座（日本語名も可: 牡羊座、おひつじ座 など）", "Zodiac sign"),
					},
					"date": str("日付（省略可）", "Date for the horoscope (optional)"),
				},
				"required": []string{"sign"},
			},
		},
		{
			Name:        TripleSynastry,
			Description: lang.Pick("3者相性 - 3人の相性を分析します", "Calculate compatibility between three people"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"person1": person,
					"person2": person,
					"person3": person,
				},
				"required": []string{"person1", "person2", "person3"},
			},
		},
		{
			Name:        Sukuyo,
			Description: lang.Pick("宿曜占星術 - 27宿による東洋の月齢占星術", "Sukuyo (27 lunar mansions) - Eastern lunar astrology"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":            nameSchema,
					"datetime":        str("生年月日時（ISO形式 または YYYY-MM-DD）", "Birth datetime (ISO format or YYYY-MM-DD)"),
					"include_details": boolean("詳細情報を含めるか（デフォルト: true）", "Include details (default: true)"),
				},
				"required": []string{"name", "datetime"},
			},
		},
		{
			Name:        Sanku,
			Description: lang.Pick("三九の秘法による相性診断 - 2人の生年月日から相性を診断", "Sanku compatibility between two people"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"person1_name":     str("人物1の名前", "Name of person 1"),
					"person1_datetime": str("人物1の生年月日時（ISO形式）", "Birth datetime of person 1 (ISO format)"),
					"person2_name":     str("人物2の名前", "Name of person 2"),
					"person2_datetime": str("人物2の生年月日時（ISO形式）", "Birth datetime of person 2 (ISO format)"),
					"include_details":  boolean("詳細な相性分析を含めるか", "Include detailed compatibility analysis"),
				},
				"required": []string{"person1_name", "person1_datetime", "person2_name", "person2_datetime"},
			},
		},
		{
			Name:        DailySanku,
			Description: lang.Pick("日運三九 - 日々の三九関係と凌犯期間・六害宿の判定", "Daily Sanku - daily relationships with ryohan periods and rokugai days"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":            nameSchema,
					"birth_datetime":  str("生年月日時（ISO形式）", "Birth datetime (ISO format)"),
					"target_date":     str("診断する日（省略時は今日）", "Target date (defaults to today)"),
					"include_ryohan":  boolean("凌犯期間の情報を含めるか", "Include ryohan period information"),
					"include_rokugai": boolean("六害宿の情報を含めるか", "Include rokugai information"),
				},
				"required": []string{"name", "birth_datetime"},
			},
		},
		birthTool(YaoNatal,
			"Yao出生図 - 西洋占星術と宿曜・三九を融合した統合占星術",
			"YaoNatal - integrated astrology combining Western and Eastern (Sukuyo/Sanku)",
			map[string]any{
				"address": str("住所（例: 東京都渋谷区）", "Address (e.g. Shibuya, Tokyo)"),
			},
		),
		{
			Name:        YaoSynastry,
			Description: lang.Pick("Yao相性診断 - 西洋相性と三九関係を統合した相性分析", "YaoSynastry - Western synastry combined with Sanku"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"person1_name":      str("人物1の名前", "Name of person 1"),
					"person1_datetime":  str("人物1の生年月日時", "Birth datetime of person 1"),
					"person1_latitude":  num("人物1の緯度（省略可）", "Latitude of person 1 (optional)"),
					"person1_longitude": num("人物1の経度（省略可）", "Longitude of person 1 (optional)"),
					"person1_location":  str("人物1の出生地（例: 東京）", "Birth location of person 1 (e.g. Tokyo)"),
					"person1_timezone":  str("人物1のタイムゾーン（省略可）", "Timezone of person 1 (optional)"),
					"person2_name":      str("人物2の名前", "Name of person 2"),
					"person2_datetime":  str("人物2の生年月日時", "Birth datetime of person 2"),
					"person2_latitude":  num("人物2の緯度（省略可）", "Latitude of person 2 (optional)"),
					"person2_longitude": num("人物2の経度（省略可）", "Longitude of person 2 (optional)"),
					"person2_location":  str("人物2の出生地（例: 大阪）", "Birth location of person 2 (e.g. Osaka)"),
					"person2_timezone":  str("人物2のタイムゾーン（省略可）", "Timezone of person 2 (optional)"),
				},
				"required": []string{"person1_name", "person1_datetime", "person2_name", "person2_datetime"},
			},
		},
		{
			Name:        YaoTransits,
			Description: lang.Pick("Yaoトランジット - 西洋トランジットと日運三九を統合", "YaoTransits - Western transits combined with daily Sanku"),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":              nameSchema,
					"birth_datetime":    str("生年月日時", "Birth datetime"),
					"birth_latitude":    num("出生地の緯度", "Birth latitude"),
					"birth_longitude":   num("出生地の経度", "Birth longitude"),
					"birth_timezone":    str("出生地のタイムゾーン（省略可）", "Birth timezone (optional)"),
					"transit_datetime":  str("トランジット日時（省略時は現在）", "Transit datetime (optional, defaults to now)"),
					"transit_latitude":  num("トランジット地点の緯度（省略可）", "Transit latitude (optional)"),
					"transit_longitude": num("トランジット地点の経度（省略可）", "Transit longitude (optional)"),
					"transit_timezone":  str("トランジット地点のタイムゾーン（省略可）", "Transit timezone (optional)"),
				},
				"required": []string{"name", "birth_datetime", "birth_latitude", "birth_longitude"},
			},
		},
	}
}
