package utils

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var mdEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"~", `\~`,
	"|", `\|`,
	">", `\>`,
)

// EscapeMd escapes Discord markdown in user or third-party text.
func EscapeMd(s string) string {
	return mdEscaper.Replace(s)
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func PrettyTime(sec int) string {
	if sec < 0 {
		sec = 0
	}
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var ErrBadDuration = errors.New("invalid duration, use 90, 1:30 or 1m30s")

var reDur = regexp.MustCompile(`(?i)^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// ParseDuration reads a position in seconds from "90", "1:30", "1:02:03"
// or "1h2m3s".
func ParseDuration(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrBadDuration
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, ErrBadDuration
		}
		return n, nil
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, ErrBadDuration
		}
		total := 0
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 || (i > 0 && n >= 60) {
				return 0, ErrBadDuration
			}
			total = total*60 + n
		}
		return total, nil
	}
	m := reDur.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrBadDuration
	}
	return atoi(m[1])*3600 + atoi(m[2])*60 + atoi(m[3]), nil
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}

func ShuffleSlice[T any](a []T) {
	rand.Shuffle(len(a), func(i, j int) { a[i], a[j] = a[j], a[i] })
}
