package cache

import "regexp"

// idPattern matches both watch?v=<id> and .../<id> URL shapes.
var idPattern = regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})`)

// ExtractID returns the 11 character content identifier in sourceURL.
func ExtractID(sourceURL string) (string, bool) {
	m := idPattern.FindStringSubmatch(sourceURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}
