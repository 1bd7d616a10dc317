// Package content holds the portfolio's two collections: keyed sections shown on the
// marquee and the media-bearing portfolio entries.
package content

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	CollectionSections  = "sections"
	CollectionPortfolio = "portfolio"
)

var (
	ErrInvalidSection = errors.New("invalid section")
	ErrInvalidEntry   = errors.New("invalid portfolio entry")
)

// Section is a labeled block of HTML reachable through a one-character shortcut.
type Section struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Key     string `json:"key" yaml:"key"`
	Label   string `json:"label" yaml:"label"`
	Content string `json:"content" yaml:"content"`
	Order   *int   `json:"order,omitempty" yaml:"order,omitempty"`
}

// PortfolioEntry is a case study with an ordered media sequence.
type PortfolioEntry struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string   `json:"title" yaml:"title"`
	Discipline  string   `json:"discipline" yaml:"discipline"`
	Client      string   `json:"client" yaml:"client"`
	ClientURL   string   `json:"clientUrl,omitempty" yaml:"clientUrl,omitempty"`
	Description string   `json:"description" yaml:"description"`
	Images      []string `json:"images" yaml:"images"`
	Videos      []string `json:"videos,omitempty" yaml:"videos,omitempty"`
	Order       *int     `json:"order,omitempty" yaml:"order,omitempty"`
}

func (s Section) ItemID() string        { return s.ID }
func (s Section) SortOrder() int        { return orderValue(s.Order) }
func (s Section) HasOrder(idx int) bool { return s.Order != nil && *s.Order == idx }
func (s Section) WithOrder(idx int) Section {
	s.Order = &idx
	return s
}

func (e PortfolioEntry) ItemID() string        { return e.ID }
func (e PortfolioEntry) SortOrder() int        { return orderValue(e.Order) }
func (e PortfolioEntry) HasOrder(idx int) bool { return e.Order != nil && *e.Order == idx }
func (e PortfolioEntry) WithOrder(idx int) PortfolioEntry {
	e.Order = &idx
	return e
}

// Media returns the gallery sequence: images first, videos appended after.
func (e PortfolioEntry) Media() []string {
	media := make([]string, 0, len(e.Images)+len(e.Videos))
	media = append(media, e.Images...)
	media = append(media, e.Videos...)
	return media
}

func (e PortfolioEntry) IsVideo(mediaURL string) bool {
	for _, video := range e.Videos {
		if video == mediaURL {
			return true
		}
	}
	return false
}

func orderValue(order *int) int {
	if order == nil {
		return 0
	}
	return *order
}

// NormalizeKey upper-cases a shortcut key. It returns "" unless the key is exactly one
// character.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if utf8.RuneCountInString(key) != 1 {
		return ""
	}
	return strings.ToUpper(key)
}

// Normalize trims the section and upper-cases its key, validating the result.
func (s Section) Normalize() (Section, error) {
	s.Key = NormalizeKey(s.Key)
	s.Label = strings.TrimSpace(s.Label)
	if s.Key == "" {
		return Section{}, fmt.Errorf("%w: key must be a single character", ErrInvalidSection)
	}
	if s.Label == "" {
		return Section{}, fmt.Errorf("%w: label is required", ErrInvalidSection)
	}
	return s, nil
}

// Normalize trims the entry, drops blank media URLs and validates the client URL.
func (e PortfolioEntry) Normalize() (PortfolioEntry, error) {
	e.Title = strings.TrimSpace(e.Title)
	e.Discipline = strings.TrimSpace(e.Discipline)
	e.Client = strings.TrimSpace(e.Client)
	e.ClientURL = strings.TrimSpace(e.ClientURL)
	e.Description = strings.TrimSpace(e.Description)
	if e.Title == "" {
		return PortfolioEntry{}, fmt.Errorf("%w: title is required", ErrInvalidEntry)
	}
	if e.ClientURL != "" && !IsHTTPURL(e.ClientURL) {
		return PortfolioEntry{}, fmt.Errorf("%w: clientUrl must be an http(s) URL", ErrInvalidEntry)
	}
	e.Images = compact(e.Images)
	e.Videos = compact(e.Videos)
	return e, nil
}

// IsHTTPURL reports whether raw parses as an absolute http or https URL.
func IsHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

// CheckUniqueKeys returns an error naming the first duplicated key.
func CheckUniqueKeys(sections []Section) error {
	seen := make(map[string]struct{}, len(sections))
	for _, section := range sections {
		key := NormalizeKey(section.Key)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidSection, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
