// Package clean normalizes raw text extracted from the source site's pages:
// listing names, review bodies, prices, dates and inline star scores.
package clean

import (
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var (
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	entityRe     = regexp.MustCompile(`&[a-zA-Z]+;|&#\d+;`)
	spaceRe      = regexp.MustCompile(`\s+`)
	hashTagRe    = regexp.MustCompile(`#([^\s#,，]+)`)
	percentRe    = regexp.MustCompile(`(\d+)%`)
	digitsRe     = regexp.MustCompile(`(\d+)`)
	dateTimeRe   = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s*(\d{2}:\d{2})?`)
	quoteCutset  = `"“”`
)

// Text strips markup and entities, folds full-width punctuation and digits to
// their narrow forms, and collapses whitespace.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = entityRe.ReplaceAllString(s, "")
	s = width.Fold.String(norm.NFKC.String(s))
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return strings.Trim(s, quoteCutset)
}

// commonTags are recurring guest-review phrases surfaced as tags.
var commonTags = []string{
	"交通便利", "位置好", "服务热情", "干净卫生", "设施齐全",
	"早餐丰盛", "性价比高", "安静舒适", "停车方便", "环境优雅",
	"前台热情", "住宿舒适", "吃饭方便", "体验感强", "设施很好",
}

// Tags extracts #hashtags and known review phrases from text, de-duplicated,
// in first-occurrence order.
func Tags(text string) []string {
	if text == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(tag string) {
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	for _, m := range hashTagRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, tag := range commonTags {
		if strings.Contains(text, tag) {
			add(tag)
		}
	}
	return out
}

// StarScore converts a star-bar CSS width ("width:80%") to a 5-point score
// (4.0). Returns 0 when no percentage is present.
func StarScore(styleWidth string) float64 {
	m := percentRe.FindStringSubmatch(styleWidth)
	if m == nil {
		return 0
	}
	pct, _ := strconv.Atoi(m[1])
	return math.Round(float64(pct)/100*5*10) / 10
}

// Date parses the site's bracketed review timestamps ("[2026-01-11 20:34]").
// The time component is optional.
func Date(s string) *time.Time {
	s = strings.Trim(s, "[]")
	m := dateTimeRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	clock := m[2]
	if clock == "" {
		clock = "00:00"
	}
	t, err := time.Parse("2006-01-02 15:04", m[1]+" "+clock)
	if err != nil {
		return nil
	}
	return &t
}

// Price extracts the integer price from strings like "¥857" or "857起".
func Price(s string) *int {
	m := digitsRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &v
}

// HotelName cleans a listing name and removes all interior whitespace, the
// form the dedup and persistence layers key against.
func HotelName(name string) string {
	return spaceRe.ReplaceAllString(Text(name), "")
}
