package params

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/tools"
)

// Result is the outcome of validating one tool call. AutoFixed holds
// replacement values keyed by argument name; nested fields use
// "object.field" keys. Missing names the required arguments that were
// absent, using the same keys.
type Result struct {
	Errors      []string
	Suggestions []string
	AutoFixed   map[string]any
	Missing     []string
}

func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// ValidationError is returned by the call pipeline when Validate reports
// errors. The message never reaches the remote API.
type ValidationError struct {
	Result Result
	Lang   locale.Lang
}

func (e *ValidationError) Error() string {
	if len(e.Result.Errors) == 0 {
		return "validation failed"
	}
	msg := strings.Join(e.Result.Errors, "\n")
	first := e.Result.Errors[0]
	return msg + e.Lang.Pick(
		fmt.Sprintf("\n\nヒント: %s\n例: datetime=\"1990-03-15 14:30:00\"", first),
		fmt.Sprintf("\n\nHint: %s\nExample: datetime=\"1990-03-15 14:30:00\"", first),
	)
}

var signMap = map[string]string{
	"牡羊座": "Aries", "おひつじ座": "Aries",
	"牡牛座": "Taurus", "おうし座": "Taurus",
	"双子座": "Gemini", "ふたご座": "Gemini",
	"蟹座": "Cancer", "かに座": "Cancer",
	"獅子座": "Leo", "しし座": "Leo",
	"乙女座": "Virgo", "おとめ座": "Virgo",
	"天秤座": "Libra", "てんびん座": "Libra",
	"蠍座": "Scorpio", "さそり座": "Scorpio",
	"射手座": "Sagittarius", "いて座": "Sagittarius",
	"山羊座": "Capricorn", "やぎ座": "Capricorn",
	"水瓶座": "Aquarius", "みずがめ座": "Aquarius",
	"魚座": "Pisces", "うお座": "Pisces",
}

// Validate checks args against def and the tool-specific rules. It never
// modifies args; fixes are returned in Result.AutoFixed for Apply.
func Validate(def tools.Definition, args map[string]any, lang locale.Lang) Result {
	res := Result{AutoFixed: map[string]any{}}

	for _, field := range def.Required() {
		if !present(args[field]) {
			res.Errors = append(res.Errors, requiredMessage(lang, field))
			res.Missing = append(res.Missing, field)
		}
	}

	nested := def.ObjectRequired()
	for _, key := range sortedKeys(nested) {
		obj, ok := args[key].(map[string]any)
		if !ok {
			continue
		}
		for _, field := range nested[key] {
			if !present(obj[field]) {
				res.Errors = append(res.Errors, requiredMessage(lang, key+"."+field))
				res.Missing = append(res.Missing, key+"."+field)
			}
		}
	}

	normalizeDateTimes(&res, args, lang)

	switch def.Name {
	case tools.Election:
		validateElection(&res, args, lang)
	case tools.Horoscope:
		validateSign(&res, args, lang)
	}
	return res
}

func requiredMessage(lang locale.Lang, field string) string {
	switch field {
	case "name":
		return lang.Pick("名前が必要です", "Name is required")
	case "datetime":
		return lang.Pick("生年月日時が必要です", "Birth datetime is required")
	default:
		return lang.Pick(field+" が必要です", field+" is required")
	}
}

func normalizeDateTimes(res *Result, args map[string]any, lang locale.Lang) {
	for _, key := range sortedKeys(args) {
		switch value := args[key].(type) {
		case string:
			if isDateTimeField(key) {
				fixDateTime(res, key, value, lang)
			}
		case map[string]any:
			for _, inner := range sortedKeys(value) {
				if s, ok := value[inner].(string); ok && isDateTimeField(inner) {
					fixDateTime(res, key+"."+inner, s, lang)
				}
			}
		}
	}
}

func isDateTimeField(key string) bool {
	return key == "datetime" || strings.HasSuffix(key, "_datetime")
}

func fixDateTime(res *Result, key, value string, lang locale.Lang) {
	fixed := NormalizeDateTime(value)
	if fixed == value {
		return
	}
	res.AutoFixed[key] = fixed
	res.Suggestions = append(res.Suggestions, lang.Pick(
		fmt.Sprintf("日時形式を修正: %s → %s", value, fixed),
		fmt.Sprintf("Fixed datetime format: %s → %s", value, fixed),
	))
}

func validateElection(res *Result, args map[string]any, lang locale.Lang) {
	if !present(args["location"]) && !(isNumber(args["latitude"]) && isNumber(args["longitude"])) {
		res.Errors = append(res.Errors, lang.Pick(
			"場所（都市名）または緯度・経度が必要です",
			"Location (city name) or latitude/longitude coordinates are required",
		))
		res.Missing = append(res.Missing, "location")
		res.Suggestions = append(res.Suggestions, lang.Pick(
			`例: location: "東京" または latitude: 35.6762, longitude: 139.6503`,
			`Example: location: "Tokyo" or latitude: 35.6762, longitude: 139.6503`,
		))
	}

	if present(args["end_date"]) {
		return
	}
	start, _ := args["start_date"].(string)
	end, ok := ElectionEndDate(start)
	if !ok {
		return
	}
	res.AutoFixed["end_date"] = end
	res.Suggestions = append(res.Suggestions, lang.Pick(
		fmt.Sprintf("期間を30日間に自動設定: %s → %s", start, end),
		fmt.Sprintf("Auto-set period to 30 days: %s → %s", start, end),
	))
}

func validateSign(res *Result, args map[string]any, lang locale.Lang) {
	sign, ok := args["sign"].(string)
	if !ok || sign == "" {
		return
	}
	if canonical, ok := signMap[sign]; ok {
		res.AutoFixed["sign"] = canonical
		res.Suggestions = append(res.Suggestions, lang.Pick(
			fmt.Sprintf("星座名を変換: %s → %s", sign, canonical),
			fmt.Sprintf("Converted sign: %s → %s", sign, canonical),
		))
		return
	}
	for _, valid := range tools.ZodiacSigns {
		if sign == valid {
			return
		}
	}
	valid := strings.Join(tools.ZodiacSigns, ", ")
	res.Errors = append(res.Errors, lang.Pick(
		fmt.Sprintf("無効な星座: %s。有効な星座: %s", sign, valid),
		fmt.Sprintf("Invalid sign: %s. Valid signs: %s", sign, valid),
	))
}

// Apply returns a copy of args with fixed merged in. Nested maps touched by
// a dotted key are copied before being modified.
func Apply(args map[string]any, fixed map[string]any) map[string]any {
	out := make(map[string]any, len(args)+len(fixed))
	for key, value := range args {
		out[key] = value
	}
	for key, value := range fixed {
		parent, field, nested := strings.Cut(key, ".")
		if !nested {
			out[key] = value
			continue
		}
		obj, ok := out[parent].(map[string]any)
		if !ok {
			continue
		}
		copied := make(map[string]any, len(obj)+1)
		for k, v := range obj {
			copied[k] = v
		}
		copied[field] = value
		out[parent] = copied
	}
	return out
}

func present(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	default:
		return true
	}
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float64, float32, int, int64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	default:
		return false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
