package params

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/tools"
)

func TestNormalizeDateTime(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"1990-03-15 14:30:00":   "1990-03-15T14:30:00",
		"1990-03-15T14:30:00":   "1990-03-15T14:30:00",
		"1990年3月15日 14時30分":    "1990-03-15T14:30:00",
		"1990年3月5日9時5":         "1990-03-05T09:05:00",
		"2001年12月31日 23時59分":   "2001-12-31T23:59:00",
		"1990/03/15 14:30":      "1990/03/15 14:30",
		"yesterday":             "yesterday",
		"":                      "",
		"1990-03-15":            "1990-03-15",
		"1990-03-15T14:30:00Z":  "1990-03-15T14:30:00Z",
	}

	for input, want := range cases {
		got := NormalizeDateTime(input)
		if got != want {
			t.Fatalf("NormalizeDateTime(%q) = %q, want %q", input, got, want)
		}
		if again := NormalizeDateTime(got); again != got {
			t.Fatalf("NormalizeDateTime not idempotent on %q: %q", got, again)
		}
	}
}

func TestElectionEndDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		start  string
		want   string
		wantOK bool
	}{
		{start: "2024-01-01", want: "2024-01-31", wantOK: true},
		{start: "2024-02-15T10:00:00", want: "2024-03-16", wantOK: true},
		{start: "soon", wantOK: false},
		{start: "", wantOK: false},
	}

	for _, tc := range cases {
		got, ok := ElectionEndDate(tc.start)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("ElectionEndDate(%q) = %q,%v want %q,%v", tc.start, got, ok, tc.want, tc.wantOK)
		}
	}
}

func lookup(t *testing.T, name tools.Name) tools.Definition {
	t.Helper()
	def, ok := tools.NewRegistry(locale.English).Lookup(string(name))
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	return def
}

func TestValidateBirthData(t *testing.T) {
	t.Parallel()

	def := lookup(t, tools.NatalChart)

	res := Validate(def, map[string]any{}, locale.English)
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res.Errors[0] != "Name is required" || res.Errors[1] != "Birth datetime is required" {
		t.Fatalf("unexpected errors %v", res.Errors)
	}

	res = Validate(def, map[string]any{"name": "Hanako", "datetime": "1990-03-15 14:30:00"}, locale.Japanese)
	if !res.OK() {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if res.AutoFixed["datetime"] != "1990-03-15T14:30:00" {
		t.Fatalf("autoFixed = %v", res.AutoFixed)
	}
	if len(res.Suggestions) != 1 || !strings.HasPrefix(res.Suggestions[0], "日時形式を修正") {
		t.Fatalf("suggestions = %v", res.Suggestions)
	}
}

func TestValidateDoesNotRequireLocationForBirthData(t *testing.T) {
	t.Parallel()

	res := Validate(lookup(t, tools.Transits), map[string]any{"name": "Hanako", "datetime": "1990-03-15T14:30:00"}, locale.English)
	if !res.OK() {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if len(res.AutoFixed) != 0 {
		t.Fatalf("unexpected fixes %v", res.AutoFixed)
	}
}

func TestValidateNestedPersons(t *testing.T) {
	t.Parallel()

	args := map[string]any{
		"person1": map[string]any{"name": "A", "datetime": "1990年3月15日 14時30分"},
		"person2": map[string]any{"name": "B"},
	}
	res := Validate(lookup(t, tools.Synastry), args, locale.English)
	if len(res.Errors) != 1 || res.Errors[0] != "person2.datetime is required" {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res.AutoFixed["person1.datetime"] != "1990-03-15T14:30:00" {
		t.Fatalf("autoFixed = %v", res.AutoFixed)
	}

	applied := Apply(args, res.AutoFixed)
	person1 := applied["person1"].(map[string]any)
	if person1["datetime"] != "1990-03-15T14:30:00" {
		t.Fatalf("applied person1 = %v", person1)
	}
	original := args["person1"].(map[string]any)
	if original["datetime"] != "1990年3月15日 14時30分" {
		t.Fatalf("Apply mutated caller args: %v", original)
	}
}

func TestValidateElection(t *testing.T) {
	t.Parallel()

	def := lookup(t, tools.Election)
	cases := []struct {
		name      string
		args      map[string]any
		wantError bool
	}{
		{
			name:      "location string",
			args:      map[string]any{"purpose": "wedding", "start_date": "2024-01-01", "location": "Tokyo"},
			wantError: false,
		},
		{
			name:      "coordinates",
			args:      map[string]any{"purpose": "wedding", "start_date": "2024-01-01", "latitude": 35.6762, "longitude": json.Number("139.6503")},
			wantError: false,
		},
		{
			name:      "latitude only",
			args:      map[string]any{"purpose": "wedding", "start_date": "2024-01-01", "latitude": 35.6762},
			wantError: true,
		},
		{
			name:      "nothing",
			args:      map[string]any{"purpose": "wedding", "start_date": "2024-01-01"},
			wantError: true,
		},
	}

	for _, tc := range cases {
		res := Validate(def, tc.args, locale.English)
		if tc.wantError != !res.OK() {
			t.Fatalf("%s: errors = %v", tc.name, res.Errors)
		}
		if tc.wantError && !strings.Contains(strings.Join(res.Suggestions, "\n"), "Tokyo") {
			t.Fatalf("%s: missing example suggestion: %v", tc.name, res.Suggestions)
		}
		if res.AutoFixed["end_date"] != "2024-01-31" {
			t.Fatalf("%s: end_date default = %v", tc.name, res.AutoFixed["end_date"])
		}
	}

	res := Validate(def, map[string]any{"purpose": "x", "start_date": "2024-01-01", "end_date": "2024-01-05", "location": "Tokyo"}, locale.English)
	if _, ok := res.AutoFixed["end_date"]; ok {
		t.Fatalf("explicit end_date should be kept")
	}
}

func TestValidateHoroscopeSign(t *testing.T) {
	t.Parallel()

	def := lookup(t, tools.Horoscope)

	res := Validate(def, map[string]any{"sign": "おひつじ座"}, locale.Japanese)
	if !res.OK() || res.AutoFixed["sign"] != "Aries" {
		t.Fatalf("result = %+v", res)
	}
	if res.Suggestions[0] != "星座名を変換: おひつじ座 → Aries" {
		t.Fatalf("suggestion = %q", res.Suggestions[0])
	}

	res = Validate(def, map[string]any{"sign": "Leo"}, locale.English)
	if !res.OK() || len(res.AutoFixed) != 0 {
		t.Fatalf("result = %+v", res)
	}

	res = Validate(def, map[string]any{"sign": "Dragon"}, locale.English)
	if res.OK() || !strings.Contains(res.Errors[0], "Valid signs: Aries") {
		t.Fatalf("result = %+v", res)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ValidationError{Result: Result{Errors: []string{"Name is required"}}, Lang: locale.English}
	msg := err.Error()
	if !strings.HasPrefix(msg, "Name is required\n\nHint: Name is required") {
		t.Fatalf("message = %q", msg)
	}
	if !strings.Contains(msg, `datetime="1990-03-15 14:30:00"`) {
		t.Fatalf("message lacks example: %q", msg)
	}
}

func TestRequiredFieldsRoundTrip(t *testing.T) {
	t.Parallel()

	for _, def := range tools.NewRegistry(locale.English).List() {
		args := sampleArgs(def.InputSchema)
		if anyOf, ok := def.InputSchema["anyOf"].([]any); ok && len(anyOf) > 0 {
			branch := anyOf[0].(map[string]any)
			props := def.InputSchema["properties"].(map[string]any)
			for _, field := range branch["required"].([]string) {
				args[field] = sampleValue(props[field].(map[string]any))
			}
		}
		res := Validate(def, args, locale.English)
		if !res.OK() {
			t.Fatalf("%s: required fields %v rejected: %v", def.Name, args, res.Errors)
		}
	}
}

func sampleArgs(schema map[string]any) map[string]any {
	props, _ := schema["properties"].(map[string]any)
	required, _ := schema["required"].([]string)
	args := map[string]any{}
	for _, field := range required {
		prop, _ := props[field].(map[string]any)
		args[field] = sampleValue(prop)
	}
	return args
}

func sampleValue(prop map[string]any) any {
	if enum, ok := prop["enum"].([]string); ok && len(enum) > 0 {
		return enum[0]
	}
	switch prop["type"] {
	case "number":
		return 35.0
	case "boolean":
		return true
	case "object":
		return sampleArgs(prop)
	default:
		return "1990-03-15T14:30:00"
	}
}

func TestOutbound(t *testing.T) {
	t.Parallel()

	args := map[string]any{"name": "Hanako", "location": "Tokyo", "latitude": 1.0, "longitude": 2.0, "timezone": "Asia/Tokyo"}
	body := Outbound(tools.NatalChart, args)
	if _, ok := body["latitude"]; ok {
		t.Fatalf("latitude should be dropped when location is set: %v", body)
	}
	if body["location"] != "Tokyo" || body["timezone"] != "Asia/Tokyo" {
		t.Fatalf("body = %v", body)
	}
	if _, ok := args["latitude"]; !ok {
		t.Fatalf("Outbound mutated args")
	}

	body = Outbound(tools.Horoscope, map[string]any{"sign": "Leo", "location": "Tokyo", "latitude": 1.0})
	if body["latitude"] != 1.0 {
		t.Fatalf("horoscope keeps coordinates: %v", body)
	}

	body = Outbound(tools.Election, map[string]any{
		"purpose": "launch", "start_date": "2024-01-01", "end_date": "2024-01-31",
		"latitude": 35.0, "longitude": 139.0, "name": "ignored", "timezone": "Asia/Tokyo",
	})
	if len(body) != 6 || body["latitude"] != 35.0 || body["timezone"] != "Asia/Tokyo" {
		t.Fatalf("election body = %v", body)
	}
	if _, ok := body["name"]; ok {
		t.Fatalf("election body leaks extra fields: %v", body)
	}
}
