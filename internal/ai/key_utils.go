package ai

import (
	"strings"
	"unicode"
)

// escapedControls are backslash sequences left in keys copied out of JSON or
// shell-quoted values.
var escapedControls = strings.NewReplacer(`\r`, "", `\n`, "", `\t`, "")

// normalizeAPIKey reduces a configured credential to the bare token. Quotes
// and an optional Bearer scheme are dropped, then only printable ASCII is
// kept.
func normalizeAPIKey(raw string) string {
	key := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'`))
	if scheme, token, ok := strings.Cut(key, " "); ok && strings.EqualFold(scheme, "bearer") {
		key = token
	}
	key = escapedControls.Replace(key)
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || unicode.IsSpace(r) || !unicode.IsGraphic(r) {
			return -1
		}
		return r
	}, key)
}
