package sponsorblock

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"
)

const DefaultBaseURL = "https://sponsor.ajay.app"

// hashPrefixLen is how many hex digits of the video ID hash are sent, so the
// API never learns which video is being looked up.
const hashPrefixLen = 4

// ErrUnavailable is returned when the SponsorBlock API answers 504.
var ErrUnavailable = errors.New("sponsorblock unavailable")

type Segment struct {
	Category   string     `json:"category"`
	Segment    [2]float64 `json:"segment"` // [start, end] seconds
	UUID       string     `json:"UUID"`
	ActionType string     `json:"actionType"`
}

func (s Segment) Start() float64 { return s.Segment[0] }
func (s Segment) End() float64   { return s.Segment[1] }

// videoSegments is one entry of a hash prefix lookup.
type videoSegments struct {
	VideoID  string    `json:"videoID"`
	Segments []Segment `json:"segments"`
}

type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: 8 * time.Second},
		baseURL: DefaultBaseURL,
	}
}

func hashPrefix(videoID string) string {
	sum := sha256.Sum256([]byte(videoID))
	return hex.EncodeToString(sum[:])[:hashPrefixLen]
}

// GetSegments fetches segments of the given categories for a YouTube video.
func (c *Client) GetSegments(ctx context.Context, videoID string, categories []string) ([]Segment, error) {
	endpoint, err := url.JoinPath(c.baseURL, "api", "skipSegments", hashPrefix(videoID))
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	for _, cat := range categories {
		q.Add("category", cat)
	}
	endpoint += "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	case http.StatusGatewayTimeout:
		return nil, ErrUnavailable
	default:
		return nil, fmt.Errorf("sponsorblock: status %s", resp.Status)
	}

	var videos []videoSegments
	if err := json.NewDecoder(resp.Body).Decode(&videos); err != nil {
		return nil, fmt.Errorf("sponsorblock: decode: %w", err)
	}
	for _, v := range videos {
		if v.VideoID == videoID {
			return v.Segments, nil
		}
	}
	return nil, nil
}

// MergeSegments returns segs ordered by start with overlaps joined.
func MergeSegments(segs []Segment) []Segment {
	sorted := slices.SortedFunc(slices.Values(segs), func(a, b Segment) int {
		return cmp.Compare(a.Start(), b.Start())
	})
	var out []Segment
	for _, s := range sorted {
		if n := len(out); n > 0 && s.Start() <= out[n-1].End() {
			out[n-1].Segment[1] = max(out[n-1].End(), s.End())
			continue
		}
		out = append(out, s)
	}
	return out
}
