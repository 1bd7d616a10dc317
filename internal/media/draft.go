package media

import (
	"fmt"
	"strings"

	"bbsfolio/api/internal/content"
)

// Draft is the unsaved media of a portfolio entry being edited.
type Draft struct {
	Images []string
	Videos []string
}

func DraftOf(entry content.PortfolioEntry) *Draft {
	return &Draft{
		Images: append([]string(nil), entry.Images...),
		Videos: append([]string(nil), entry.Videos...),
	}
}

// Append adds a batch of uploaded URLs to the list for kind.
func (d *Draft) Append(kind Kind, urls ...string) {
	if kind == KindVideo {
		d.Videos = append(d.Videos, urls...)
		return
	}
	d.Images = append(d.Images, urls...)
}

// AddVideoURL appends a pasted URL to the videos without uploading anything.
func (d *Draft) AddVideoURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if !content.IsHTTPURL(raw) {
		return fmt.Errorf("%w: video url must be http(s)", content.ErrInvalidEntry)
	}
	d.Videos = append(d.Videos, raw)
	return nil
}

// Remove drops every occurrence of url from the list for kind. The stored object is
// left alone.
func (d *Draft) Remove(kind Kind, url string) bool {
	if kind == KindVideo {
		var removed bool
		d.Videos, removed = without(d.Videos, url)
		return removed
	}
	var removed bool
	d.Images, removed = without(d.Images, url)
	return removed
}

// RemoveAny removes url from whichever list holds it.
func (d *Draft) RemoveAny(url string) bool {
	removedImage := d.Remove(KindImage, url)
	removedVideo := d.Remove(KindVideo, url)
	return removedImage || removedVideo
}

// Apply copies the draft media onto entry.
func (d *Draft) Apply(entry content.PortfolioEntry) content.PortfolioEntry {
	entry.Images = append([]string(nil), d.Images...)
	entry.Videos = append([]string(nil), d.Videos...)
	return entry
}

func without(values []string, target string) ([]string, bool) {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value != target {
			out = append(out, value)
		}
	}
	return out, len(out) != len(values)
}
