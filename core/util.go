package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the wire format of calendar dates (YYYY-MM-DD).
const DateLayout = "2006-01-02"

// NowFunc returns the current time; mockable.
var NowFunc = time.Now

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Truncate cuts `s` to at most `max` runes.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Ellipsis cuts `s` to `max` runes, replacing the tail with "..." when it is cut.
func Ellipsis(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}

// Getwd finds the project root: the closest parent directory holding a go.mod file.
// go-test changes the working directory to the package being tested.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

func StrPtr(s string) *string { return &s }

func StrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func StringIn(s string, list []string) bool {
	for _, item := range list {
		if s == item {
			return true
		}
	}
	return false
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Today returns the current UTC date formatted as YYYY-MM-DD.
func Today() string {
	return NowFunc().UTC().Format(DateLayout)
}

func Round(v float64, decimals int) float64 {
	p := 1.0
	for i := 0; i < decimals; i++ {
		p *= 10
	}
	if v < 0 {
		return -float64(int64(-v*p+0.5)) / p
	}
	return float64(int64(v*p+0.5)) / p
}

// NilIfBlank trims `s` and returns nil when nothing is left.
func NilIfBlank(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Patch copies `src` into `dst` when `src` was provided; blank strings clear the field.
func Patch(dst **string, src *string) {
	if src != nil {
		*dst = NilIfBlank(src)
	}
}
