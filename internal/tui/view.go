package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/contentsync"
)

const (
	dateLayout = "Mon 02 Jan 2006"
	timeLayout = "15:04:05"
)

func (m Model) View() string {
	if m.loading {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.styles.Notice.Render(m.spinner.View()+" Loading..."))
	}

	var b strings.Builder
	b.WriteString(m.topBar())
	b.WriteString("\n")
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.menuBar())
	b.WriteString("\n")
	if m.gallery.IsOpen() {
		b.WriteString(m.modal())
	} else {
		b.WriteString(m.styles.Box.Width(max(m.width-2, 10)).Render(m.viewport.View()))
	}
	b.WriteString("\n")
	b.WriteString(m.helpLine())
	return b.String()
}

func (m Model) topBar() string {
	status := "live"
	switch m.source {
	case contentsync.SourceCache:
		status = "cached"
	case contentsync.SourceDefaults:
		status = "offline"
	}
	if m.degraded && m.source != contentsync.SourceDefaults {
		status += " (degraded)"
	}
	left := m.location
	center := m.clock.Format(dateLayout)
	right := status + "  " + m.clock.Format(timeLayout)

	inner := max(m.width-2, len(left)+len(center)+len(right)+2)
	gap := inner - len(left) - len(center) - len(right)
	leftGap := gap / 2
	line := left + strings.Repeat(" ", leftGap) + center + strings.Repeat(" ", gap-leftGap) + right
	return m.styles.TopBar.Render(line)
}

func (m Model) header() string {
	name := m.name
	if name == "" {
		name = "bbsfolio"
	}
	return m.styles.Glyph.Render("?") + " " + m.styles.Name.Render(name)
}

func (m Model) menuBar() string {
	tabs := make([]string, 0, len(m.sections))
	for _, section := range m.sections {
		label := fmt.Sprintf("(%s) %s", section.Key, section.Label)
		if section.Key == m.open {
			tabs = append(tabs, m.styles.ActiveTab.Render(label))
			continue
		}
		tabs = append(tabs, m.styles.Tab.Render(label))
	}
	return lipgloss.NewStyle().Width(m.width).Render(strings.Join(tabs, " "))
}

func (m Model) helpLine() string {
	help := "key: open section  tab: next  r: refresh  q: quit"
	switch {
	case m.gallery.IsOpen():
		help = "left/right: browse  esc: close"
	case m.open == PortfolioKey:
		help = "up/down: entry  left/right: media  enter: view  " + help
	}
	if m.notice != "" {
		return m.styles.Notice.Render(m.notice) + "  " + m.styles.Help.Render(help)
	}
	return m.styles.Help.Render(help)
}

// body is the viewport content for the open section.
func (m *Model) body() string {
	section, ok := m.openSection()
	if !ok {
		return ""
	}
	if section.Key == PortfolioKey {
		return m.portfolioBody()
	}
	if m.tw.active && m.tw.key == section.Key {
		return m.styles.Typing.Width(max(m.viewport.Width-2, 10)).Render(m.tw.visible())
	}
	if cached, ok := m.rendered[section.Key]; ok {
		return cached
	}
	out := m.renderSection(section)
	m.rendered[section.Key] = out
	return out
}

func (m *Model) renderSection(section content.Section) string {
	markdown, err := content.Markdown(section.Content)
	if err != nil || m.renderer == nil {
		return content.PlainText(section.Content)
	}
	out, err := m.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.Trim(out, "\n")
}

func (m *Model) portfolioBody() string {
	switch {
	case !m.portfolioLoaded:
		return m.styles.Notice.Render("Loading portfolio...")
	case len(m.entries) == 0:
		return m.styles.Notice.Render("No portfolio entries found.")
	}

	var b strings.Builder
	for i, entry := range m.entries {
		marker := "  "
		if i == m.entryCursor {
			marker = "> "
		}
		b.WriteString(marker + m.styles.EntryTitle.Render(entry.Title) + "\n")

		client := entry.Client
		if entry.ClientURL != "" {
			client += " <" + entry.ClientURL + ">"
		}
		b.WriteString("  " + m.styles.EntryMeta.Render(entry.Discipline) + " | " +
			m.styles.Label.Render("Client: ") + m.styles.EntryMeta.Render(client) + "\n")
		if entry.Description != "" {
			b.WriteString("  " + m.styles.Body.Render(entry.Description) + "\n")
		}

		media := entry.Media()
		if len(media) > 0 {
			chips := make([]string, 0, len(media))
			for j, url := range media {
				chip := mediaChip(entry, url, j)
				if i == m.entryCursor && j == m.mediaCursor {
					chips = append(chips, m.styles.ActiveMedia.Render(chip))
					continue
				}
				chips = append(chips, m.styles.Media.Render(chip))
			}
			b.WriteString("  " + strings.Join(chips, " ") + "\n")
		}
		if i < len(m.entries)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// mediaChip is the strip label of one media item; an unusable URL gets the placeholder.
func mediaChip(entry content.PortfolioEntry, url string, idx int) string {
	switch {
	case !content.IsHTTPURL(url):
		return "[?]"
	case entry.IsVideo(url):
		return fmt.Sprintf("[> %d]", idx+1)
	default:
		return fmt.Sprintf("[# %d]", idx+1)
	}
}

func (m Model) modal() string {
	entry, url, ok := m.gallery.Current()
	if !ok {
		return ""
	}
	_, idx, _ := m.gallery.Position()
	kind := "image"
	if entry.IsVideo(url) {
		kind = "video"
	}
	shown := url
	if !content.IsHTTPURL(url) {
		shown = "?"
	}
	body := strings.Join([]string{
		m.styles.EntryTitle.Render(entry.Title),
		m.styles.EntryMeta.Render(fmt.Sprintf("%s %d/%d", kind, idx+1, m.gallery.Count())),
		"",
		m.styles.Body.Render(shown),
	}, "\n")
	return lipgloss.Place(m.width, max(m.viewport.Height+2, 5), lipgloss.Center, lipgloss.Center, m.styles.Modal.Render(body))
}
