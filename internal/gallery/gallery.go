// Package gallery is the modal media viewer: closed, or open on one portfolio entry at
// one position of its images-then-videos sequence.
package gallery

import (
	"bbsfolio/api/internal/content"
)

type State struct {
	entries    []content.PortfolioEntry
	open       bool
	entryIndex int
	mediaIndex int
	media      []string
}

func New(entries []content.PortfolioEntry) *State {
	return &State{entries: entries}
}

// SetEntries swaps the entry list. An open modal closes if its entry is gone or no
// longer has media; otherwise the media sequence is recomputed and the index clamped.
func (s *State) SetEntries(entries []content.PortfolioEntry) {
	s.entries = entries
	if !s.open {
		return
	}
	if s.entryIndex >= len(entries) {
		s.Close()
		return
	}
	s.media = entries[s.entryIndex].Media()
	if len(s.media) == 0 {
		s.Close()
		return
	}
	if s.mediaIndex >= len(s.media) {
		s.mediaIndex = len(s.media) - 1
	}
}

// Open shows entry entryIndex at mediaIndex. It reports false and stays put when either
// index is out of range.
func (s *State) Open(entryIndex, mediaIndex int) bool {
	if entryIndex < 0 || entryIndex >= len(s.entries) {
		return false
	}
	media := s.entries[entryIndex].Media()
	if mediaIndex < 0 || mediaIndex >= len(media) {
		return false
	}
	s.open = true
	s.entryIndex = entryIndex
	s.mediaIndex = mediaIndex
	s.media = media
	return true
}

func (s *State) Close() {
	s.open = false
	s.entryIndex = 0
	s.mediaIndex = 0
	s.media = nil
}

func (s *State) Next() {
	if !s.open {
		return
	}
	s.mediaIndex = (s.mediaIndex + 1) % len(s.media)
}

func (s *State) Prev() {
	if !s.open {
		return
	}
	s.mediaIndex = (s.mediaIndex - 1 + len(s.media)) % len(s.media)
}

// HandleKey applies a key while the modal is open and reports whether it was consumed.
// A closed modal consumes nothing.
func (s *State) HandleKey(key string) bool {
	if !s.open {
		return false
	}
	switch key {
	case "left", "h":
		s.Prev()
	case "right", "l":
		s.Next()
	case "esc", "q":
		s.Close()
	default:
		return false
	}
	return true
}

func (s *State) IsOpen() bool { return s.open }

// Position returns the open entry and media indexes.
func (s *State) Position() (entryIndex, mediaIndex int, ok bool) {
	return s.entryIndex, s.mediaIndex, s.open
}

// Current returns the entry and URL on screen.
func (s *State) Current() (content.PortfolioEntry, string, bool) {
	if !s.open {
		return content.PortfolioEntry{}, "", false
	}
	return s.entries[s.entryIndex], s.media[s.mediaIndex], true
}

// Count is the length of the open media sequence.
func (s *State) Count() int { return len(s.media) }
