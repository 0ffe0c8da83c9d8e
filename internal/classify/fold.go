package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// đ has no canonical decomposition, so it is mapped by hand after the
// combining marks are stripped.
var dStroke = strings.NewReplacer("đ", "d", "Đ", "d")

// Fold lower-cases s and strips Vietnamese diacritics, so "Mã xác thực"
// and "ma xac thuc" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(dStroke.Replace(out))
}
