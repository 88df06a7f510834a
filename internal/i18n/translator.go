package i18n

import (
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"sitedigest/pkg/htmlx"
)

// Translator formats user-facing strings for one language.
//
// Format strings double as catalog keys (gettext style): a string without a
// translation is used as-is. Plural forms are chosen with CLDR cardinal
// rules for the translator's language, so languages with more than two forms
// work once a catalog provides them.
type Translator struct {
	tag     language.Tag
	cat     *catalog.Builder
	printer *message.Printer
	plurals map[string]map[string]string // singular key -> form -> format
}

// LocaleFile is the YAML layout of a translation catalog.
//
//	language: de
//	messages:
//	  "Hi %s": "Hallo %s"
//	plurals:
//	  "There was %d new comment.":
//	    one: "Es gab %d neuen Kommentar."
//	    other: "Es gab %d neue Kommentare."
type LocaleFile struct {
	Language string                       `yaml:"language"`
	Messages map[string]string            `yaml:"messages"`
	Plurals  map[string]map[string]string `yaml:"plurals"`
}

// New returns a translator for lang (BCP 47). An empty lang means English.
func New(lang string) (*Translator, error) {
	tag := language.English
	if s := strings.TrimSpace(lang); s != "" {
		t, err := language.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("i18n: invalid language %q: %w", lang, err)
		}
		tag = t
	}
	cat := catalog.NewBuilder(catalog.Fallback(language.English))
	return &Translator{
		tag:     tag,
		cat:     cat,
		printer: message.NewPrinter(tag, message.Catalog(cat)),
		plurals: map[string]map[string]string{},
	}, nil
}

// English returns the untranslated default.
func English() *Translator {
	t, _ := New("en")
	return t
}

// Language reports the translator's language tag.
func (t *Translator) Language() language.Tag { return t.tag }

// Load merges a YAML catalog into the translator.
func (t *Translator) Load(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f LocaleFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("i18n: %s: %w", path, err)
	}
	return t.Add(f)
}

// Add merges an in-memory catalog.
func (t *Translator) Add(f LocaleFile) error {
	tag := t.tag
	if s := strings.TrimSpace(f.Language); s != "" {
		parsed, err := language.Parse(s)
		if err != nil {
			return fmt.Errorf("i18n: invalid catalog language %q: %w", s, err)
		}
		tag = parsed
	}
	for key, msg := range f.Messages {
		if err := t.cat.SetString(tag, key, msg); err != nil {
			return fmt.Errorf("i18n: set %q: %w", key, err)
		}
	}
	for key, forms := range f.Plurals {
		m := make(map[string]string, len(forms))
		for form, msg := range forms {
			m[strings.ToLower(strings.TrimSpace(form))] = msg
		}
		t.plurals[key] = m
	}
	return nil
}

// T translates and formats format with args. Numbers are rendered with the
// language's digit grouping.
func (t *Translator) T(format string, args ...any) string {
	return t.printer.Sprintf(format, args...)
}

// N picks the singular or plural format for count n and formats it with
// args. Pass n itself as an argument when the format prints the count.
func (t *Translator) N(singular, pluralFmt string, n int, args ...any) string {
	return t.printer.Sprintf(t.pick(singular, pluralFmt, n), args...)
}

// H is T for HTML: the (translated) format is trusted markup and string
// arguments are escaped.
func (t *Translator) H(format string, args ...any) htmlx.H {
	return htmlx.H(t.printer.Sprintf(format, htmlx.SafeArgs(args...)...))
}

// NH is N for HTML, escaping string arguments like H.
func (t *Translator) NH(singular, pluralFmt string, n int, args ...any) htmlx.H {
	return htmlx.H(t.printer.Sprintf(t.pick(singular, pluralFmt, n), htmlx.SafeArgs(args...)...))
}

func (t *Translator) pick(singular, pluralFmt string, n int) string {
	form := plural.Cardinal.MatchPlural(t.tag, abs(n), 0, 0, 0, 0)
	if forms, ok := t.plurals[singular]; ok {
		if msg, ok := forms[formName(form)]; ok {
			return msg
		}
		if msg, ok := forms["other"]; ok {
			return msg
		}
	}
	if form == plural.One {
		return singular
	}
	return pluralFmt
}

func formName(f plural.Form) string {
	switch f {
	case plural.Zero:
		return "zero"
	case plural.One:
		return "one"
	case plural.Two:
		return "two"
	case plural.Few:
		return "few"
	case plural.Many:
		return "many"
	default:
		return "other"
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
