package content

import (
	"html"
	"regexp"
	"strings"
	"sync"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

var (
	converterOnce sync.Once
	converter     *md.Converter

	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)
	markupRe         = regexp.MustCompile("[*_#>\\[\\]`]")
	linkTargetRe     = regexp.MustCompile(`\]\([^)]*\)`)
	tagRe            = regexp.MustCompile(`<[^>]+>`)
)

func markdownConverter() *md.Converter {
	converterOnce.Do(func() {
		converter = md.NewConverter("", true, nil)
		converter.Use(plugin.GitHubFlavored())
	})
	return converter
}

// Markdown converts a section's HTML body to Markdown. Plain text passes through.
func Markdown(body string) (string, error) {
	out, err := markdownConverter().ConvertString(body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(excessiveLinesRe.ReplaceAllString(out, "\n\n")), nil
}

// PlainText flattens a section's HTML body to searchable text. Link targets are dropped.
func PlainText(body string) string {
	out, err := Markdown(body)
	if err != nil {
		return body
	}
	out = linkTargetRe.ReplaceAllString(out, "")
	out = markupRe.ReplaceAllString(out, "")
	return strings.Join(strings.Fields(out), " ")
}

// RevealText is the text a section types out before its full body is shown: every tag
// becomes a space and whitespace runs collapse.
func RevealText(body string) string {
	text := html.UnescapeString(tagRe.ReplaceAllString(body, " "))
	return strings.Join(strings.Fields(text), " ")
}
