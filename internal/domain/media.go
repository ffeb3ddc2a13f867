package domain

import "time"

// VideoMetadata describes a remote video as reported by the media tool.
// Every counter is optional because the upstream source may omit any of them.
type VideoMetadata struct {
	Title                string              `json:"title"`
	Duration             *int                `json:"duration,omitempty"`
	Channel              string              `json:"channel,omitempty"`
	ChannelFollowerCount *int64              `json:"channelFollowerCount,omitempty"`
	ViewCount            *int64              `json:"viewCount,omitempty"`
	LikeCount            *int64              `json:"likeCount,omitempty"`
	CommentCount         *int64              `json:"commentCount,omitempty"`
	UploadDate           *time.Time          `json:"uploadDate,omitempty"`
	ThumbnailURL         string              `json:"thumbnailUrl,omitempty"`
	AvailableFormats     []FormatInfo        `json:"availableFormats"`
	VideoFormats         []VideoFormatOption `json:"videoFormats"`
}

// FormatInfo is one raw encoder format record.
type FormatInfo struct {
	FormatID   string `json:"formatId"`
	Format     string `json:"format,omitempty"`
	Extension  string `json:"extension"`
	Resolution string `json:"resolution"`
	Filesize   *int64 `json:"filesize,omitempty"`
	FPS        *int   `json:"fps,omitempty"`
}

// VideoFormatOption is one rung of the deduplicated quality ladder.
type VideoFormatOption struct {
	ID         string `json:"id"`
	Resolution string `json:"resolution"`
	Filesize   *int64 `json:"filesize,omitempty"`
}

// ObjectInfo describes an object listed from a bucket.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"lastModified"`
}

// ObjectStat is the result of an existence check.
type ObjectStat struct {
	Present    bool
	Size       int64
	ETag       string
	ModifiedAt time.Time
}

// BucketStats aggregates the objects of a bucket.
type BucketStats struct {
	Bucket     string `json:"bucketName"`
	Count      int    `json:"totalFiles"`
	TotalBytes int64  `json:"totalSize"`
}
