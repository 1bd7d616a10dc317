package tui

import "github.com/charmbracelet/lipgloss"

// BBS palette.
var (
	colorBg      = lipgloss.Color("#000000")
	colorFg      = lipgloss.Color("#e0e0e0")
	colorCyan    = lipgloss.Color("#00ffff")
	colorMagenta = lipgloss.Color("#ff00ff")
	colorYellow  = lipgloss.Color("#ffff00")
	colorWhite   = lipgloss.Color("#ffffff")
)

type styles struct {
	TopBar      lipgloss.Style
	Name        lipgloss.Style
	Glyph       lipgloss.Style
	Tab         lipgloss.Style
	ActiveTab   lipgloss.Style
	Box         lipgloss.Style
	Typing      lipgloss.Style
	EntryTitle  lipgloss.Style
	EntryMeta   lipgloss.Style
	Label       lipgloss.Style
	Body        lipgloss.Style
	Media       lipgloss.Style
	ActiveMedia lipgloss.Style
	Modal       lipgloss.Style
	Help        lipgloss.Style
	Notice      lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		TopBar:      lipgloss.NewStyle().Background(colorWhite).Foreground(colorBg).Padding(0, 1),
		Name:        lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		Glyph:       lipgloss.NewStyle().Background(colorMagenta).Foreground(colorBg).Padding(0, 1),
		Tab:         lipgloss.NewStyle().Foreground(colorCyan).Padding(0, 1),
		ActiveTab:   lipgloss.NewStyle().Background(colorCyan).Foreground(colorBg).Bold(true).Underline(true).Padding(0, 1),
		Box:         lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(colorMagenta).Padding(0, 1),
		Typing:      lipgloss.NewStyle().Foreground(colorFg),
		EntryTitle:  lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		EntryMeta:   lipgloss.NewStyle().Foreground(colorCyan).Italic(true),
		Label:       lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		Body:        lipgloss.NewStyle().Foreground(colorCyan),
		Media:       lipgloss.NewStyle().Foreground(colorCyan),
		ActiveMedia: lipgloss.NewStyle().Background(colorCyan).Foreground(colorBg),
		Modal:       lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(colorCyan).Padding(1, 2),
		Help:        lipgloss.NewStyle().Foreground(colorMagenta),
		Notice:      lipgloss.NewStyle().Foreground(colorYellow),
	}
}
