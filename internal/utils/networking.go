package utils

import (
	"fmt"
	"math/rand/v2"
	"net/textproto"
	"slices"
	"strings"
)

func RandomUserAgent() string {
	// recent Chrome majors
	const minMajor = 132
	const maxMajor = 138

	major := rand.IntN(maxMajor-minMajor+1) + minMajor
	return fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		major,
	)
}

var youtubeHeaderDefaults = map[string]string{
	"Referer":         "https://www.youtube.com/",
	"Origin":          "https://www.youtube.com",
	"Accept":          "*/*",
	"Accept-Language": "en-US,en;q=0.9",
	"Connection":      "keep-alive",
}

// BuildFFmpegHeaders renders headers for libavformat's "headers" option as
// sorted "Key: Value\r\n" lines. Missing browser headers are filled in so
// googlevideo accepts the request. Returns "" for no headers.
func BuildFFmpegHeaders(base map[string]string) string {
	if len(base) == 0 {
		return ""
	}
	h := make(map[string]string, len(base)+len(youtubeHeaderDefaults)+1)
	for k, v := range base {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		h[textproto.CanonicalMIMEHeaderKey(k)] = strings.TrimSpace(v)
	}
	for k, v := range youtubeHeaderDefaults {
		if _, ok := h[k]; !ok {
			h[k] = v
		}
	}
	if _, ok := h["User-Agent"]; !ok {
		h["User-Agent"] = RandomUserAgent()
	}

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, h[k])
	}
	return b.String()
}
