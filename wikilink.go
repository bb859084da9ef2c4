package kaybee

import (
	"regexp"
	"strings"
)

// wikilinkPattern matches [[target]] where target contains no ']'.
var wikilinkPattern = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// ExtractWikilinks returns every [[target]] occurrence in body, in
// order, with duplicates preserved - the link index's primary key
// handles deduplication, not extraction.
func ExtractWikilinks(body string) []string {
	matches := wikilinkPattern.FindAllStringSubmatch(body, -1)
	if matches == nil {
		return nil
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}

	return out
}

// firstLineContaining returns the first line of body that contains the
// literal target's wikilink form "[[target]]", trimmed, or "" if none
// does. Used to derive a link row's display context.
func firstLineContaining(body, target string) string {
	needle := "[[" + target + "]]"

	for _, line := range strings.Split(body, "\n") {
		if strings.Contains(line, needle) {
			return strings.TrimSpace(line)
		}
	}

	return ""
}
