package kaybee

import (
	"strings"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// parseNodeText splits raw node text into attrs and body using the
// frontmatter subset, then extracts the effective type: attrs.type if
// present, else ImplicitType. The "type" key is removed from the
// returned Attrs - it is never stored as an attribute (spec 3.1).
func parseNodeText(text string) (effectiveType string, attrs frontmatter.Attrs, body string) {
	attrs, body = frontmatter.Parse(text)

	effectiveType = ImplicitType
	if v, ok := attrs.GetString("type"); ok && strings.TrimSpace(v) != "" {
		effectiveType = v
	}

	attrs.Delete("type")

	return effectiveType, attrs, body
}

// renderNodeText reconstructs node text from a type, attrs, and body:
// if attrs is empty the body is returned unchanged, otherwise a
// frontmatter block carrying "type" followed by the rest of attrs (in
// original order) is prepended. ImplicitType is omitted from output,
// matching how it is never written by the user either.
func renderNodeText(effectiveType string, attrs frontmatter.Attrs, body string) string {
	out := attrs.Clone()

	if effectiveType != ImplicitType {
		withType := frontmatter.Attrs{}
		withType.Set("type", frontmatter.StringValue(effectiveType))

		for _, e := range out.Entries() {
			withType.Set(e.Key, e.Value)
		}

		out = withType
	}

	if out.Len() == 0 {
		return body
	}

	return frontmatter.Render(out, body)
}
