// Package gallery reshapes the store's heterogeneous resource listing into
// the uniform items the dashboard renders.
package gallery

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/raditia/duet-media/internal/mediastore"
)

// DefaultTitle is used when an asset carries no caption.
const DefaultTitle = "Momen tanpa judul"

const (
	uploadMarker   = "/upload/"
	defaultGravity = "center"
	defaultOffset  = "0"
)

// Item is the normalized, render-ready view of a stored asset. It is
// derived on every listing fetch, never stored.
type Item struct {
	PublicID      string `json:"public_id"`
	Title         string `json:"title"`
	Date          string `json:"date"`
	ThumbnailURL  string `json:"thumbnail_url"`
	OriginalURL   string `json:"original_url"`
	DurationLabel string `json:"duration_label,omitempty"`
}

// Normalize maps raw store resources onto Items. Resources missing context
// metadata entirely are handled with defaults; the output is deterministic
// for identical input.
func Normalize(resources []mediastore.Resource) []Item {
	items := make([]Item, 0, len(resources))
	for _, r := range resources {
		items = append(items, normalizeOne(r))
	}
	return items
}

func normalizeOne(r mediastore.Resource) Item {
	custom := r.Context.Custom // nil map lookups are fine

	title := custom["caption"]
	if title == "" {
		title = DefaultTitle
	}

	date := custom["date"]
	if date == "" {
		date = r.CreatedAt.Format("2 January 2006")
	}

	item := Item{
		PublicID:     r.PublicID,
		Title:        title,
		Date:         date,
		OriginalURL:  r.SecureURL,
		ThumbnailURL: thumbnailURL(r, custom),
	}

	if r.ResourceType == mediastore.KindVideo {
		item.DurationLabel = durationLabel(videoDuration(r, custom))
	}
	return item
}

// thumbnailURL derives the cropped thumbnail by inserting a transformation
// segment directly after the /upload/ path marker. Only the first marker
// occurrence is rewritten; URLs containing the marker twice are not a
// supported input.
func thumbnailURL(r mediastore.Resource, custom map[string]string) string {
	gravity := custom["cover_gravity"]
	if gravity == "" {
		gravity = defaultGravity
	}

	if r.ResourceType == mediastore.KindVideo {
		offset := custom["cover_offset"]
		if offset == "" {
			offset = defaultOffset
		}
		segment := fmt.Sprintf("so_%s,g_%s,w_500,h_280,c_fill,q_auto,f_auto", offset, gravity)
		return insertSegment(swapExt(r.SecureURL, ".jpg"), segment)
	}

	segment := fmt.Sprintf("g_%s,w_300,h_300,c_fill,q_auto,f_auto", gravity)
	return insertSegment(r.SecureURL, segment)
}

func insertSegment(url, segment string) string {
	return strings.Replace(url, uploadMarker, uploadMarker+segment+"/", 1)
}

// swapExt replaces the file extension of the URL's last path element.
func swapExt(url, ext string) string {
	dot := strings.LastIndex(url, ".")
	if dot < 0 || dot < strings.LastIndex(url, "/") {
		return url + ext
	}
	return url[:dot] + ext
}

// videoDuration prefers the context-provided duration (seconds, string)
// over the store-reported field.
func videoDuration(r mediastore.Resource, custom map[string]string) float64 {
	if s := custom["duration"]; s != "" {
		if d, err := strconv.ParseFloat(s, 64); err == nil {
			return d
		}
	}
	return r.Duration
}

// durationLabel formats seconds as M:SS, minutes by floor division and the
// remainder rounded, seconds zero-padded to two digits.
func durationLabel(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := int(seconds / 60)
	remainder := int(math.Round(seconds - float64(minutes)*60))
	return fmt.Sprintf("%d:%02d", minutes, remainder)
}
