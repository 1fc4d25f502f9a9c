package vessel

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeName capitalises a raw vessel name: the first letter upper-cased
// and the rest lower-cased. An empty result means the name should stay unset.
func NormalizeName(raw string) string {
	if raw == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(raw)
	return string(unicode.ToUpper(r)) + strings.ToLower(raw[size:])
}
