// Package tui is the terminal marquee: a tab bar of keyed sections, a typewriter reveal
// on first view, and the portfolio gallery.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"bbsfolio/api/internal/client"
	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/contentsync"
	"bbsfolio/api/internal/gallery"
	"bbsfolio/api/internal/ordering"
)

// PortfolioKey is the section whose body is the gallery instead of HTML.
const PortfolioKey = "P"

// SectionLoader runs the content sync protocol.
type SectionLoader interface {
	Load(ctx context.Context, force bool) contentsync.Result
}

// Backend is the rest of the API the marquee reads and writes.
type Backend interface {
	ListPortfolio(ctx context.Context) ([]content.PortfolioEntry, error)
	Played(ctx context.Context) (map[string]bool, error)
	MarkPlayed(ctx context.Context, key string) error
}

// Locator resolves the visitor's location for the top bar.
type Locator interface {
	Locate(ctx context.Context) (client.Location, error)
}

type Options struct {
	// Name is shown next to the profile glyph.
	Name    string
	Logger  *zap.Logger
	Now     func() time.Time
	Timeout time.Duration
	// Locator is optional; without it the top bar reads "Location unknown".
	Locator Locator
}

type (
	sectionsMsg  struct{ result contentsync.Result }
	portfolioMsg struct {
		entries []content.PortfolioEntry
		err     error
	}
	playedMsg struct {
		played map[string]bool
		err    error
	}
	markedMsg struct {
		key string
		err error
	}
	clockMsg    time.Time
	locationMsg struct {
		location client.Location
		err      error
	}
)

type Model struct {
	loader  SectionLoader
	backend Backend
	locator Locator
	logger  *zap.Logger
	name    string
	now     func() time.Time
	timeout time.Duration
	styles  styles

	width    int
	height   int
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	rendered map[string]string

	loading      bool
	sections     []content.Section
	source       contentsync.Source
	degraded     bool
	open         string
	played       map[string]bool
	playedLoaded bool
	tw           typewriter

	entries         []content.PortfolioEntry
	portfolioLoaded bool
	portfolioErr    error
	entryCursor     int
	mediaCursor     int
	gallery         *gallery.State

	clock    time.Time
	location string
	notice   string
}

func New(loader SectionLoader, backend Backend, opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	vp := viewport.New(76, 14)
	vp.KeyMap.Up = key.NewBinding(key.WithKeys("up"))
	vp.KeyMap.Down = key.NewBinding(key.WithKeys("down"))
	vp.KeyMap.PageUp = key.NewBinding(key.WithKeys("pgup"))
	vp.KeyMap.PageDown = key.NewBinding(key.WithKeys("pgdown", " "))
	vp.KeyMap.HalfPageUp = key.NewBinding(key.WithKeys("ctrl+u"))
	vp.KeyMap.HalfPageDown = key.NewBinding(key.WithKeys("ctrl+d"))

	m := Model{
		loader:   loader,
		backend:  backend,
		locator:  opts.Locator,
		logger:   opts.Logger,
		name:     opts.Name,
		now:      opts.Now,
		timeout:  opts.Timeout,
		styles:   defaultStyles(),
		width:    80,
		height:   24,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Line)),
		viewport: vp,
		rendered: map[string]string{},
		loading:  true,
		played:   map[string]bool{},
		gallery:  gallery.New(nil),
		clock:    opts.Now(),
		location: client.UnknownLocation,
	}
	m.renderer = newRenderer(m.width)
	return m
}

func newRenderer(width int) *glamour.TermRenderer {
	wrap := width - 6
	if wrap < 20 {
		wrap = 20
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return nil
	}
	return renderer
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadSections(false),
		m.loadPortfolio(),
		m.loadPlayed(),
		m.spinner.Tick,
		m.clockTick(),
		m.locate(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = max(msg.Width-4, 10)
		m.viewport.Height = max(msg.Height-9, 3)
		m.renderer = newRenderer(msg.Width)
		m.rendered = map[string]string{}
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case sectionsMsg:
		return m, m.applySections(msg.result)

	case playedMsg:
		if msg.err != nil {
			m.logger.Warn("played set unavailable", zap.Error(msg.err))
		}
		for k, v := range msg.played {
			m.played[k] = v
		}
		m.playedLoaded = true
		if m.loading {
			return m, nil
		}
		return m, m.startReveal()

	case portfolioMsg:
		m.portfolioLoaded = true
		m.portfolioErr = msg.err
		if msg.err != nil {
			m.logger.Warn("portfolio unavailable", zap.Error(msg.err))
		}
		if msg.entries != nil || msg.err == nil {
			m.entries = ordering.Sort(msg.entries)
		}
		m.gallery.SetEntries(m.entries)
		m.clampCursors()
		m.refreshViewport()
		return m, nil

	case markedMsg:
		if msg.err != nil {
			m.logger.Warn("mark played failed", zap.String("key", msg.key), zap.Error(msg.err))
		}
		return m, nil

	case typeTickMsg:
		accepted, done := m.tw.advance(msg.gen)
		if !accepted {
			return m, nil
		}
		m.refreshViewport()
		if done {
			return m, settle(msg.gen)
		}
		return m, typeTick(msg.gen)

	case settleMsg:
		sectionKey, ok := m.tw.finish(msg.gen)
		if !ok {
			return m, nil
		}
		m.played[sectionKey] = true
		m.refreshViewport()
		return m, m.markPlayed(sectionKey)

	case locationMsg:
		if msg.err != nil {
			m.logger.Debug("location lookup failed", zap.Error(msg.err))
			return m, nil
		}
		m.location = msg.location.String()
		return m, nil

	case clockMsg:
		m.clock = time.Time(msg)
		return m, m.clockTick()

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pressed := msg.String()
	if pressed == "ctrl+c" {
		return m, tea.Quit
	}
	// The modal owns the keyboard while it is open.
	if m.gallery.IsOpen() {
		m.gallery.HandleKey(pressed)
		return m, nil
	}
	if m.loading {
		return m, nil
	}

	if sectionKey := content.NormalizeKey(pressed); sectionKey != "" && m.sectionIndex(sectionKey) >= 0 {
		return m, m.toggle(sectionKey)
	}

	switch pressed {
	case "r":
		m.notice = "Refreshing..."
		return m, tea.Batch(m.loadSections(true), m.loadPortfolio())
	case "q":
		return m, tea.Quit
	case "tab":
		return m, m.cycle(1)
	case "shift+tab":
		return m, m.cycle(-1)
	}

	if m.open == PortfolioKey {
		switch pressed {
		case "up":
			m.moveEntry(-1)
			return m, nil
		case "down":
			m.moveEntry(1)
			return m, nil
		case "left":
			m.moveMedia(-1)
			return m, nil
		case "right":
			m.moveMedia(1)
			return m, nil
		case "enter":
			if !m.gallery.Open(m.entryCursor, m.mediaCursor) {
				m.notice = "No media for this entry"
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) applySections(result contentsync.Result) tea.Cmd {
	m.loading = false
	m.notice = ""
	if result.Err != nil {
		m.logger.Warn("sections degraded", zap.String("source", string(result.Source)), zap.Error(result.Err))
	}
	m.sections = ordering.Sort(result.Sections)
	m.source = result.Source
	m.degraded = result.Degraded()
	m.rendered = map[string]string{}
	if len(m.sections) == 0 {
		m.sections = content.DefaultSections()
	}
	if m.sectionIndex(m.open) < 0 {
		m.open = m.sections[0].Key
	}
	if m.tw.active && m.tw.key == m.open {
		m.refreshViewport()
		return nil
	}
	return m.startReveal()
}

// toggle opens a section, or collapses to the first section when it is already open.
func (m *Model) toggle(sectionKey string) tea.Cmd {
	if m.open == sectionKey {
		return m.setOpen(m.sections[0].Key)
	}
	return m.setOpen(sectionKey)
}

func (m *Model) cycle(step int) tea.Cmd {
	idx := m.sectionIndex(m.open)
	n := len(m.sections)
	return m.setOpen(m.sections[((idx+step)%n+n)%n].Key)
}

func (m *Model) setOpen(sectionKey string) tea.Cmd {
	if m.open == sectionKey {
		return nil
	}
	m.open = sectionKey
	m.notice = ""
	return m.startReveal()
}

// startReveal decides how the open section appears: typed out on first view this
// session, in full otherwise.
func (m *Model) startReveal() tea.Cmd {
	m.viewport.GotoTop()
	section, ok := m.openSection()
	if !ok || !m.playedLoaded || section.Key == PortfolioKey || m.played[section.Key] {
		m.tw.stop()
		m.refreshViewport()
		return nil
	}
	gen := m.tw.start(section.Key, content.RevealText(section.Content))
	m.refreshViewport()
	return typeTick(gen)
}

func (m *Model) moveEntry(step int) {
	if len(m.entries) == 0 {
		return
	}
	m.entryCursor = min(max(m.entryCursor+step, 0), len(m.entries)-1)
	m.mediaCursor = 0
	m.refreshViewport()
}

func (m *Model) moveMedia(step int) {
	if len(m.entries) == 0 {
		return
	}
	count := len(m.entries[m.entryCursor].Media())
	if count == 0 {
		return
	}
	m.mediaCursor = min(max(m.mediaCursor+step, 0), count-1)
	m.refreshViewport()
}

func (m *Model) clampCursors() {
	if len(m.entries) == 0 {
		m.entryCursor, m.mediaCursor = 0, 0
		return
	}
	m.entryCursor = min(m.entryCursor, len(m.entries)-1)
	m.mediaCursor = min(m.mediaCursor, max(len(m.entries[m.entryCursor].Media())-1, 0))
}

func (m *Model) sectionIndex(sectionKey string) int {
	for i, section := range m.sections {
		if section.Key == sectionKey {
			return i
		}
	}
	return -1
}

func (m *Model) openSection() (content.Section, bool) {
	if idx := m.sectionIndex(m.open); idx >= 0 {
		return m.sections[idx], true
	}
	return content.Section{}, false
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(m.body())
}

func (m Model) loadSections(force bool) tea.Cmd {
	loader, timeout := m.loader, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return sectionsMsg{result: loader.Load(ctx, force)}
	}
}

func (m Model) loadPortfolio() tea.Cmd {
	backend, timeout := m.backend, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		entries, err := backend.ListPortfolio(ctx)
		return portfolioMsg{entries: entries, err: err}
	}
}

func (m Model) loadPlayed() tea.Cmd {
	backend, timeout := m.backend, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		played, err := backend.Played(ctx)
		return playedMsg{played: played, err: err}
	}
}

func (m Model) markPlayed(sectionKey string) tea.Cmd {
	backend, timeout := m.backend, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return markedMsg{key: sectionKey, err: backend.MarkPlayed(ctx, sectionKey)}
	}
}

func (m Model) locate() tea.Cmd {
	if m.locator == nil {
		return nil
	}
	locator, timeout := m.locator, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		location, err := locator.Locate(ctx)
		return locationMsg{location: location, err: err}
	}
}

func (m Model) clockTick() tea.Cmd {
	now := m.now
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return clockMsg(now()) })
}
