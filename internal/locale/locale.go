package locale

import "strings"

// Lang is the output language chosen once at startup.
type Lang string

const (
	Japanese Lang = "ja"
	English  Lang = "en"
)

// Parse maps a configured value to a Lang. Anything unrecognized is Japanese.
func Parse(value string) Lang {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "en", "english", "en-us", "en_us":
		return English
	default:
		return Japanese
	}
}

func (l Lang) Pick(ja, en string) string {
	if l == English {
		return en
	}
	return ja
}

func (l Lang) String() string {
	if l == English {
		return string(English)
	}
	return string(Japanese)
}
