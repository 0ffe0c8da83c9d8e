package classify

import (
	"regexp"
	"strings"
)

// Text is the classifier's view of one message: the original content and
// its folded form.
type Text struct {
	Raw    string
	Folded string
}

// NewText folds content once for every rule to share.
func NewText(content string) Text {
	return Text{Raw: content, Folded: Fold(content)}
}

// Matcher is a predicate over a message.
type Matcher func(Text) bool

// Rule maps a matcher to a category. Voucher, when set, is applied to the
// original-case content and its first group becomes the voucher code.
type Rule struct {
	Name     string
	Category Category
	Match    Matcher
	Voucher  *regexp.Regexp
}

// ExtractVoucher returns the upper-cased first group of r.Voucher in raw, or
// "" when the rule has no pattern or it does not match.
func (r Rule) ExtractVoucher(raw string) string {
	if r.Voucher == nil {
		return ""
	}
	m := r.Voucher.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return strings.ToUpper(m[1])
}

// Contains matches when the folded text contains any of subs. subs are
// folded too, so rules can be written with or without diacritics.
func Contains(subs ...string) Matcher {
	folded := make([]string, len(subs))
	for i, s := range subs {
		folded[i] = Fold(s)
	}
	return func(t Text) bool {
		for _, s := range folded {
			if strings.Contains(t.Folded, s) {
				return true
			}
		}
		return false
	}
}

// Pattern matches expr against the folded text.
func Pattern(expr string) Matcher {
	re := regexp.MustCompile(expr)
	return func(t Text) bool { return re.MatchString(t.Folded) }
}

// Raw matches expr against the original-case text.
func Raw(expr string) Matcher {
	re := regexp.MustCompile(expr)
	return func(t Text) bool { return re.MatchString(t.Raw) }
}

// RawContains is a case-sensitive substring test on the original text.
func RawContains(sub string) Matcher {
	return func(t Text) bool { return strings.Contains(t.Raw, sub) }
}

// Prefix matches when the original text, less leading whitespace, starts
// with p. Used for JSON-templated payloads.
func Prefix(p string) Matcher {
	return func(t Text) bool {
		return strings.HasPrefix(strings.TrimLeft(t.Raw, " \t\r\n\ufeff"), p)
	}
}

// All matches when every matcher does.
func All(ms ...Matcher) Matcher {
	return func(t Text) bool {
		for _, m := range ms {
			if !m(t) {
				return false
			}
		}
		return true
	}
}

// Any matches when at least one matcher does.
func Any(ms ...Matcher) Matcher {
	return func(t Text) bool {
		for _, m := range ms {
			if m(t) {
				return true
			}
		}
		return false
	}
}
