package val

import (
	"sort"
	"strconv"
	"strings"
)

// EncodedVideo is one playable rendition of a video in the VAL.
type EncodedVideo struct {
	URL      string `json:"url"`
	FileSize int64  `json:"file_size"`
	Bitrate  int    `json:"bitrate"`
	Profile  string `json:"profile"`
}

// CourseRef references a course run. The VAL expects each entry as a single
// key object, e.g. {"course-v1:MITx+6.00x+T1": null}.
type CourseRef map[string]any

// NewCourseRef returns a reference to a course run key.
func NewCourseRef(key string) CourseRef {
	return CourseRef{key: nil}
}

// Key returns the course run key, or "" for a malformed reference.
func (c CourseRef) Key() string {
	for k := range c {
		return k
	}
	return ""
}

// Video is the VAL representation of a video.
type Video struct {
	EdxVideoID    string         `json:"edx_video_id"`
	ClientVideoID string         `json:"client_video_id"`
	Duration      float64        `json:"duration"`
	Status        string         `json:"status,omitempty"`
	Courses       []CourseRef    `json:"courses"`
	EncodedVideos []EncodedVideo `json:"encoded_videos"`
}

// CourseKeys returns the run keys the video is attached to.
func (v *Video) CourseKeys() map[string]bool {
	keys := make(map[string]bool, len(v.Courses))
	for _, c := range v.Courses {
		if k := c.Key(); k != "" {
			keys[k] = true
		}
	}
	return keys
}

// WithoutCourses drops references to runs the VAL already knows; it rejects
// duplicates on update.
func (v *Video) WithoutCourses(known map[string]bool) {
	kept := v.Courses[:0]
	for _, c := range v.Courses {
		if !known[c.Key()] {
			kept = append(kept, c)
		}
	}
	v.Courses = kept
}

// MergeEncoded keeps existing renditions for profiles the update does not
// carry, then sorts by profile.
func (v *Video) MergeEncoded(existing []EncodedVideo) {
	have := make(map[string]bool, len(v.EncodedVideos))
	for _, e := range v.EncodedVideos {
		have[e.Profile] = true
	}
	for _, e := range existing {
		if !have[e.Profile] {
			v.EncodedVideos = append(v.EncodedVideos, e)
			have[e.Profile] = true
		}
	}
	sort.SliceStable(v.EncodedVideos, func(i, j int) bool {
		return v.EncodedVideos[i].Profile < v.EncodedVideos[j].Profile
	})
}

// ParseBitrate extracts the leading integer of a bitrate such as "1200 kb/s"
// or "1500k". Unparseable values are 0.
func ParseBitrate(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// Transcript registers a published transcript file against a video.
type Transcript struct {
	FileFormat   string `json:"file_format"`
	VideoID      string `json:"video_id"`
	Name         string `json:"name"`
	LanguageCode string `json:"language_code"`
	Provider     string `json:"provider"`
}
