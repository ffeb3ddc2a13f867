package ytdlp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iconidentify/tubevault/internal/domain"
)

const uploadDateLayout = "20060102"

// jsonObject is a lazily decoded yt-dlp JSON object. Every accessor returns
// the zero value or nil instead of failing, because yt-dlp omits fields and
// sometimes emits numbers as strings.
type jsonObject map[string]json.RawMessage

func (o jsonObject) str(key string) string {
	raw, ok := o[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (o jsonObject) i64(key string) *int64 {
	raw, ok := o[key]
	if !ok {
		return nil
	}
	return parseFlexInt(raw)
}

func (o jsonObject) i32(key string) *int {
	v := o.i64(key)
	if v == nil || *v > math.MaxInt32 || *v < math.MinInt32 {
		return nil
	}
	i := int(*v)
	return &i
}

// parseFlexInt accepts a JSON number (fractions truncated) or a string holding
// an integer.
func parseFlexInt(raw json.RawMessage) *int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil
		}
		return &v
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	if v, err := n.Int64(); err == nil {
		return &v
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	v := int64(f)
	return &v
}

// ParseInfo decodes the output of "yt-dlp --dump-json". Malformed JSON fails
// the whole parse; missing or mistyped fields become absent values.
func ParseInfo(data []byte) (*domain.VideoMetadata, error) {
	var root jsonObject
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse metadata json: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("parse metadata json: document is not an object")
	}

	formats := parseFormats(root["formats"])
	meta := &domain.VideoMetadata{
		Title:                root.str("title"),
		Duration:             root.i32("duration"),
		Channel:              root.str("channel"),
		ChannelFollowerCount: root.i64("channel_follower_count"),
		ViewCount:            root.i64("view_count"),
		LikeCount:            root.i64("like_count"),
		CommentCount:         root.i64("comment_count"),
		UploadDate:           parseUploadDate(root.str("upload_date")),
		ThumbnailURL:         root.str("thumbnail"),
		AvailableFormats:     formats,
		VideoFormats:         ReduceFormats(formats),
	}
	return meta, nil
}

func parseUploadDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(uploadDateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func parseFormats(raw json.RawMessage) []domain.FormatInfo {
	formats := []domain.FormatInfo{}
	if len(raw) == 0 {
		return formats
	}

	var items []jsonObject
	if err := json.Unmarshal(raw, &items); err != nil {
		return formats
	}

	for _, f := range items {
		if f == nil {
			continue
		}
		formats = append(formats, domain.FormatInfo{
			FormatID:   f.str("format_id"),
			Format:     f.str("format"),
			Extension:  f.str("ext"),
			Resolution: f.str("resolution"),
			Filesize:   f.i64("filesize"),
			FPS:        f.i32("fps"),
		})
	}
	return formats
}

// ReduceFormats turns the raw format list into a quality ladder: mp4 entries
// with a concrete WxH resolution, one per resolution (largest file wins, ties
// go to the larger numeric format id), sorted by ascending height.
func ReduceFormats(formats []domain.FormatInfo) []domain.VideoFormatOption {
	best := make(map[string]domain.FormatInfo)
	var order []string

	for _, f := range formats {
		if f.Extension != "mp4" || !isConcreteResolution(f.Resolution) {
			continue
		}
		cur, seen := best[f.Resolution]
		if !seen {
			order = append(order, f.Resolution)
			best[f.Resolution] = f
			continue
		}
		if better(f, cur) {
			best[f.Resolution] = f
		}
	}

	options := make([]domain.VideoFormatOption, 0, len(order))
	for _, res := range order {
		f := best[res]
		options = append(options, domain.VideoFormatOption{
			ID:         f.FormatID,
			Resolution: f.Resolution,
			Filesize:   f.Filesize,
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return resolutionHeight(options[i].Resolution) < resolutionHeight(options[j].Resolution)
	})
	return options
}

func better(a, b domain.FormatInfo) bool {
	sa, sb := sizeOf(a), sizeOf(b)
	if sa != sb {
		return sa > sb
	}
	return numericID(a.FormatID) > numericID(b.FormatID)
}

func sizeOf(f domain.FormatInfo) int64 {
	if f.Filesize == nil {
		return 0
	}
	return *f.Filesize
}

func numericID(id string) int64 {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func isConcreteResolution(res string) bool {
	if res == "" || res == "audio only" {
		return false
	}
	w, h, ok := strings.Cut(res, "x")
	return ok && w != "" && h != ""
}

// resolutionHeight returns the numeric height of a WxH string, or 0.
func resolutionHeight(res string) int {
	_, h, ok := strings.Cut(res, "x")
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return v
}
