package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	typeInterval = 12 * time.Millisecond
	settleDelay  = 200 * time.Millisecond
)

type typeTickMsg struct{ gen int }

type settleMsg struct{ gen int }

// typewriter reveals one rune per tick. Every reveal gets a new generation; ticks and
// settle messages carrying an older generation are dropped, which is how a reveal is
// cancelled when the open section changes.
type typewriter struct {
	gen    int
	key    string
	text   []rune
	shown  int
	active bool
}

func (t *typewriter) start(key, text string) int {
	t.gen++
	t.key = key
	t.text = []rune(text)
	t.shown = 0
	t.active = true
	return t.gen
}

func (t *typewriter) stop() {
	t.gen++
	t.active = false
}

// advance handles one tick. accepted is false for stale ticks; done reports that the
// whole text is visible.
func (t *typewriter) advance(gen int) (accepted, done bool) {
	if gen != t.gen || !t.active {
		return false, false
	}
	if t.shown < len(t.text) {
		t.shown++
	}
	return true, t.shown >= len(t.text)
}

// finish ends the reveal of generation gen and returns its section key.
func (t *typewriter) finish(gen int) (string, bool) {
	if gen != t.gen || !t.active || t.shown < len(t.text) {
		return "", false
	}
	t.active = false
	return t.key, true
}

func (t *typewriter) visible() string {
	return string(t.text[:t.shown])
}

func typeTick(gen int) tea.Cmd {
	return tea.Tick(typeInterval, func(time.Time) tea.Msg { return typeTickMsg{gen: gen} })
}

func settle(gen int) tea.Cmd {
	return tea.Tick(settleDelay, func(time.Time) tea.Msg { return settleMsg{gen: gen} })
}
