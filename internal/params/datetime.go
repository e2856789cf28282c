package params

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var (
	spacedDateTime   = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})\s+(\d{2}):(\d{2}):(\d{2})$`)
	isoDateTime      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)
	japaneseDateTime = regexp.MustCompile(`^(\d{4})年(\d{1,2})月(\d{1,2})日\s*(\d{1,2})時(\d{1,2})分?$`)
)

// NormalizeDateTime rewrites the accepted loose datetime shapes into
// YYYY-MM-DDTHH:MM:SS. Anything else is returned unchanged.
func NormalizeDateTime(value string) string {
	if isoDateTime.MatchString(value) {
		return value
	}
	if m := spacedDateTime.FindStringSubmatch(value); m != nil {
		return fmt.Sprintf("%s-%s-%sT%s:%s:%s", m[1], m[2], m[3], m[4], m[5], m[6])
	}
	if m := japaneseDateTime.FindStringSubmatch(value); m != nil {
		return fmt.Sprintf("%s-%s-%sT%s:%s:00", m[1], pad2(m[2]), pad2(m[3]), pad2(m[4]), pad2(m[5]))
	}
	return value
}

func pad2(value string) string {
	n, err := strconv.Atoi(value)
	if err != nil {
		return value
	}
	return fmt.Sprintf("%02d", n)
}

const electionWindow = 30 * 24 * time.Hour

// ElectionEndDate returns the date electionWindow after start. start may be
// a bare date or any datetime whose first ten characters are YYYY-MM-DD.
func ElectionEndDate(start string) (string, bool) {
	if len(start) < 10 {
		return "", false
	}
	day, err := time.Parse("2006-01-02", start[:10])
	if err != nil {
		return "", false
	}
	return day.Add(electionWindow).Format("2006-01-02"), true
}
