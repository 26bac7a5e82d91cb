package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Label identifies the kind of legal excerpt a Section holds.
type Label string

const (
	LabelOffer       Label = "OFFER"
	LabelPrivacy     Label = "PRIVACY"
	LabelReturns     Label = "RETURNS"
	LabelRawFallback Label = "RAW_FALLBACK"
)

// FallbackChars is the number of leading characters kept when no rule matches.
const FallbackChars = 4000

// Section is an excerpt of cleaned page text.
type Section struct {
	Label Label  `json:"label"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Rule describes one section to look for. Before and After are window sizes
// in characters around the leftmost keyword occurrence.
type Rule struct {
	Label    Label
	Title    string
	Keywords []string
	Before   int
	After    int
}

// DefaultRules is the section table used by New when no rules are configured.
// Order matters: sections are emitted in table order.
var DefaultRules = []Rule{
	{
		Label: LabelOffer,
		Title: "ОФЕРТА",
		Keywords: []string{
			"публичная оферта", "договор оферты", "оферт",
			"пользовательское соглашение",
			"public offer", "offer agreement", "user agreement", "offer",
			"terms of service", "terms and conditions",
		},
		Before: 300,
		After:  3000,
	},
	{
		Label: LabelPrivacy,
		Title: "ПОЛИТИКА КОНФИДЕНЦИАЛЬНОСТИ",
		Keywords: []string{
			"политика конфиденциальности", "политики конфиденциальности",
			"обработка персональных данных", "обработки персональных данных",
			"персональных данных", "защита данных",
			"privacy policy", "personal data", "data protection",
		},
		Before: 300,
		After:  3000,
	},
	{
		Label: LabelReturns,
		Title: "УСЛОВИЯ ВОЗВРАТА",
		Keywords: []string{
			"возврат", "обмен", "гаранти",
			"refund", "return policy", "returns", "exchange", "warranty",
		},
		Before: 300,
		After:  1500,
	},
}

type matcher struct {
	rule Rule
	re   *regexp.Regexp
}

// Sectioner finds rule sections in cleaned text.
type Sectioner struct {
	matchers []matcher
}

// NewSectioner compiles rules. Keywords are matched literally and
// case-insensitively; a space in a keyword matches any whitespace run.
func NewSectioner(rules []Rule) *Sectioner {
	s := &Sectioner{matchers: make([]matcher, 0, len(rules))}
	for _, r := range rules {
		if len(r.Keywords) == 0 {
			continue
		}
		alts := make([]string, len(r.Keywords))
		for i, kw := range r.Keywords {
			words := strings.Fields(kw)
			for j, w := range words {
				words[j] = regexp.QuoteMeta(w)
			}
			alts[i] = strings.Join(words, `\s+`)
		}
		s.matchers = append(s.matchers, matcher{
			rule: r,
			re:   regexp.MustCompile(`(?i)(?:` + strings.Join(alts, "|") + `)`),
		})
	}
	return s
}

// Find returns one section per matching rule, in rule order. When nothing
// matches it returns a single RAW_FALLBACK section with the first
// FallbackChars characters of text. Empty text yields no sections.
func (s *Sectioner) Find(text string) []Section {
	var out []Section
	for _, m := range s.matchers {
		loc := m.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		excerpt := lastRunes(text[:loc[0]], m.rule.Before) +
			text[loc[0]:loc[1]] +
			firstRunes(text[loc[1]:], m.rule.After)
		out = append(out, Section{
			Label: m.rule.Label,
			Title: m.rule.Title,
			Text:  strings.TrimSpace(excerpt),
		})
	}
	if len(out) > 0 || text == "" {
		return out
	}
	return []Section{{Label: LabelRawFallback, Text: firstRunes(text, FallbackChars)}}
}

// Render joins sections into the text sent to the model: titled sections
// become "TITLE:\n<text>" blocks separated by a blank line.
func Render(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, sec := range sections {
		if sec.Title == "" {
			parts = append(parts, sec.Text)
			continue
		}
		parts = append(parts, sec.Title+":\n"+sec.Text)
	}
	return strings.Join(parts, "\n\n")
}

func firstRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	end := len(s)
	for i := 0; i < n && end > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:end])
		end -= size
	}
	return s[end:]
}
