package resolver

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

type Chapter struct {
	Label  string
	Offset int
	Length int
}

var chapterTS = regexp.MustCompile(`(?:\d+:)+\d+`) // 0:00, 12:34, 1:23:45

// parseChapters reads "0:00 Intro" style chapter markers from a video
// description. A list only counts when one of its markers is at 0:00.
func parseChapters(description string, duration int) []Chapter {
	var found []Chapter
	sawZero := false

	for line := range strings.SplitSeq(description, "\n") {
		matches := chapterTS.FindAllString(line, -1)
		if len(matches) != 1 {
			continue
		}
		ts := matches[0]
		secs := parseTimestamp(ts)
		if !sawZero {
			if secs != 0 {
				continue
			}
			sawZero = true
		}

		_, label, _ := strings.Cut(line, ts)
		label = strings.TrimSpace(label)
		label = strings.TrimLeft(label, "-:–—|> ")
		if label == "" {
			label = strings.TrimSpace(strings.TrimSuffix(line, ts))
			label = strings.TrimRight(label, "-:–—|< ")
		}
		if label == "" {
			label = "Chapter"
		}
		found = append(found, Chapter{Label: label, Offset: secs})
	}
	if len(found) == 0 {
		return nil
	}

	slices.SortStableFunc(found, func(a, b Chapter) int { return a.Offset - b.Offset })

	out := make([]Chapter, 0, len(found))
	for i, ch := range found {
		end := duration
		if i+1 < len(found) {
			end = min(found[i+1].Offset, duration)
		}
		if end > ch.Offset {
			ch.Length = end - ch.Offset
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseTimestamp(s string) int {
	total := 0
	for part := range strings.SplitSeq(s, ":") {
		n, _ := strconv.Atoi(strings.TrimSpace(part))
		total = total*60 + n
	}
	return total
}
