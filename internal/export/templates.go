package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"bbsfolio/api/internal/content"
)

//go:embed templates/*.html
var templateFS embed.FS

var portfolioTemplate = template.Must(
	template.New("portfolio.html").
		Funcs(template.FuncMap{
			"upper": strings.ToUpper,
			"formatDate": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
			"isHTTP": content.IsHTTPURL,
		}).
		ParseFS(templateFS, "templates/portfolio.html"),
)

type TemplateData struct {
	Title       string
	GeneratedAt time.Time
	Sections    []TemplateSection
	Entries     []TemplateEntry
}

type TemplateSection struct {
	Key         string
	Label       string
	ContentHTML template.HTML
}

type TemplateEntry struct {
	Title       string
	Discipline  string
	Client      string
	ClientURL   string
	Description string
	Images      []string
	Videos      []string
}

// RenderPortfolioHTML renders the portfolio template with provided data
func RenderPortfolioHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := portfolioTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
