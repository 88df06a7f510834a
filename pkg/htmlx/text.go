package htmlx

import (
	"bytes"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

var (
	initOnce     sync.Once
	strictPolicy *bluemonday.Policy
	commentPol   *bluemonday.Policy
	md           goldmark.Markdown
)

func initPolicies() {
	initOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()

		// Comment bodies keep basic formatting only.
		commentPol = bluemonday.NewPolicy()
		commentPol.AllowStandardURLs()
		commentPol.AllowElements(
			"p", "br",
			"strong", "b", "em", "i",
			"ul", "ol", "li",
			"code", "pre", "blockquote",
		)
		commentPol.AllowAttrs("href").OnElements("a")
		commentPol.RequireNoFollowOnLinks(true)

		// Paragraphs, inline HTML and bare URLs only. Comment text is not
		// Markdown, so "# 1", "1. first" or *stars* stay as typed.
		md = goldmark.New(
			goldmark.WithParser(parser.NewParser(
				parser.WithBlockParsers(util.Prioritized(parser.NewParagraphParser(), 1000)),
				parser.WithInlineParsers(
					util.Prioritized(parser.NewRawHTMLParser(), 300),
					util.Prioritized(extension.NewLinkifyParser(), 999),
				),
			)),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithUnsafe()),
		)
	})
}

// Autop turns plain comment text into paragraphs: blank lines separate
// paragraphs, single newlines become <br> and bare URLs become links. Inline
// HTML written by the commenter is kept and then sanitized.
func Autop(text string) H {
	initPolicies()
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return P(Esc(text))
	}
	return H(commentPol.Sanitize(buf.String()))
}

// Sanitize applies the comment policy to untrusted HTML.
func Sanitize(s string) H {
	initPolicies()
	return H(commentPol.Sanitize(s))
}

var (
	reAnchor   = regexp.MustCompile(`(?is)<a\s[^>]*?href\s*=\s*"([^"]*)"[^>]*>(.*?)</a>`)
	reBlockEnd = regexp.MustCompile(`(?i)</(p|li|ul|ol|blockquote|pre)>|<br\s*/?>`)
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

// PlainText renders safe HTML as readable plain text for the text/plain
// alternative of a message. Links render as "text (url)", or just the text
// when it already spells out the target.
func PlainText(h H) string {
	initPolicies()
	s := reAnchor.ReplaceAllStringFunc(string(h), anchorText)
	s = reBlockEnd.ReplaceAllString(s, "$0\n")
	s = strictPolicy.Sanitize(s)
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(reSpaces.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = reNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func anchorText(a string) string {
	m := reAnchor.FindStringSubmatch(a)
	href := html.UnescapeString(m[1])
	label := m[2]
	text := strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(label)))
	if href == "" || text == href || text == strings.TrimPrefix(href, "mailto:") {
		return label
	}
	return label + " (" + html.EscapeString(href) + ")"
}
