package htmlx

import (
	"fmt"
	"html"
	"strings"
)

// H represents HTML that is safe to embed in an email body.
// Values of type H are treated as already-escaped.
type H string

func (h H) String() string { return string(h) }

// IsEmpty reports whether h has no visible markup.
func (h H) IsEmpty() bool { return strings.TrimSpace(string(h)) == "" }

// Esc escapes text for inclusion in HTML.
func Esc(s string) H { return H(html.EscapeString(s)) }

// Raw marks a string as already-safe HTML.
// Use sparingly.
func Raw(s string) H { return H(s) }

// Attr escapes a value for use inside a double-quoted attribute.
func Attr(s string) string { return html.EscapeString(s) }

func wrap(tag string, inner H) H { return H("<" + tag + ">" + inner.String() + "</" + tag + ">") }

func B(s string) H { return wrap("b", Esc(s)) }

// P wraps already-safe HTML in a paragraph.
func P(inner H) H { return wrap("p", inner) }

// Li wraps already-safe HTML in a list item.
func Li(inner H) H { return wrap("li", inner) }

// Ul wraps already-safe list items in an unordered list.
func Ul(items ...H) H { return wrap("ul", Concat(items...)) }

// Br is a line break in the XHTML form mail clients expect.
const Br H = "<br />"

// Link builds an HTML link with escaped text.
func Link(text, url string) H {
	return LinkH(Esc(text), url)
}

// LinkH builds an HTML link around already-safe inner HTML.
func LinkH(inner H, url string) H {
	return H(fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(url), inner))
}

// Mailto links an email address to itself.
func Mailto(addr string) H {
	return H(fmt.Sprintf(`<a href="mailto:%s">%s</a>`, html.EscapeString(addr), html.EscapeString(addr)))
}

// Sprintf formats safe HTML. The format is trusted; string arguments are
// escaped unless they are already of type H.
func Sprintf(format string, args ...any) H {
	return H(fmt.Sprintf(format, SafeArgs(args...)...))
}

// SafeArgs escapes string arguments for a trusted HTML format string and
// unwraps H values. Other values pass through for fmt to render.
func SafeArgs(args ...any) []any {
	safe := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case H:
			safe[i] = string(v)
		case string:
			safe[i] = html.EscapeString(v)
		default:
			safe[i] = v
		}
	}
	return safe
}

// Concat joins safe HTML parts without a separator.
func Concat(parts ...H) H {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(string(p))
	}
	return H(b.String())
}

// JoinH joins safe HTML parts with sep, skipping empty parts.
func JoinH(sep string, parts ...H) H {
	if len(parts) == 0 {
		return ""
	}
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.IsEmpty() {
			continue
		}
		ss = append(ss, p.String())
	}
	return H(strings.Join(ss, sep))
}

// StripScheme drops a leading http:// or https:// for display.
func StripScheme(u string) string {
	u = strings.TrimPrefix(u, "http://")
	return strings.TrimPrefix(u, "https://")
}
