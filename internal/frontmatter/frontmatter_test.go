package frontmatter

import (
	"testing"
)

func TestParseNoFence(t *testing.T) {
	text := "just a body\nwith no frontmatter\n"

	attrs, body := Parse(text)

	if attrs.Len() != 0 {
		t.Fatalf("expected empty attrs, got %d entries", attrs.Len())
	}

	if body != text {
		t.Fatalf("expected body unchanged, got %q", body)
	}
}

func TestParseUnterminatedFence(t *testing.T) {
	text := "---\ntype: concept\nno closing fence here\n"

	attrs, body := Parse(text)

	if attrs.Len() != 0 {
		t.Fatalf("expected empty attrs for unterminated fence, got %d", attrs.Len())
	}

	if body != text {
		t.Fatalf("expected body unchanged for unterminated fence")
	}
}

func TestParseScalarsAndComment(t *testing.T) {
	text := "---\n" +
		"type: concept # trailing note\n" +
		"title: \"hello world\"\n" +
		"slug: 'quoted # not a comment'\n" +
		"---\n" +
		"body here\n"

	attrs, body := Parse(text)

	typ, ok := attrs.GetString("type")
	if !ok || typ != "concept" {
		t.Fatalf("type = %q, %v", typ, ok)
	}

	title, ok := attrs.GetString("title")
	if !ok || title != "hello world" {
		t.Fatalf("title = %q, %v", title, ok)
	}

	slug, ok := attrs.GetString("slug")
	if !ok || slug != "quoted # not a comment" {
		t.Fatalf("slug = %q, %v (comment inside quotes must not be stripped)", slug, ok)
	}

	if body != "body here\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestParseInlineList(t *testing.T) {
	text := "---\ntags: [alpha, \"beta gamma\", 'delta']\n---\n"

	attrs, _ := Parse(text)

	v, ok := attrs.Get("tags")
	if !ok || v.Kind != List {
		t.Fatalf("tags not parsed as list: %+v", v)
	}

	want := []string{"alpha", "beta gamma", "delta"}
	if len(v.List) != len(want) {
		t.Fatalf("tags = %v, want %v", v.List, want)
	}

	for i, w := range want {
		if v.List[i] != w {
			t.Fatalf("tags[%d] = %q, want %q", i, v.List[i], w)
		}
	}
}

func TestParseBlockList(t *testing.T) {
	text := "---\n" +
		"links:\n" +
		"  - one\n" +
		"  - two\n" +
		"  - \"three with space\"\n" +
		"title: after\n" +
		"---\n"

	attrs, _ := Parse(text)

	v, ok := attrs.Get("links")
	if !ok || v.Kind != List {
		t.Fatalf("links not parsed as list: %+v", v)
	}

	want := []string{"one", "two", "three with space"}
	for i, w := range want {
		if v.List[i] != w {
			t.Fatalf("links[%d] = %q, want %q", i, v.List[i], w)
		}
	}

	title, ok := attrs.GetString("title")
	if !ok || title != "after" {
		t.Fatalf("title after block list = %q, %v", title, ok)
	}
}

func TestParseBlockMap(t *testing.T) {
	text := "---\n" +
		"meta:\n" +
		"  owner: alice\n" +
		"  priority: high\n" +
		"---\n"

	attrs, _ := Parse(text)

	v, ok := attrs.Get("meta")
	if !ok || v.Kind != Map {
		t.Fatalf("meta not parsed as map: %+v", v)
	}

	if len(v.Map) != 2 || v.Map[0].Key != "owner" || v.Map[0].Value != "alice" {
		t.Fatalf("meta.owner wrong: %+v", v.Map)
	}

	if v.Map[1].Key != "priority" || v.Map[1].Value != "high" {
		t.Fatalf("meta.priority wrong: %+v", v.Map)
	}
}

func TestAttrsSetPreservesOrderOnOverwrite(t *testing.T) {
	var a Attrs
	a.Set("one", StringValue("1"))
	a.Set("two", StringValue("2"))
	a.Set("one", StringValue("one-updated"))

	keys := a.Keys()
	if len(keys) != 2 || keys[0] != "one" || keys[1] != "two" {
		t.Fatalf("keys after overwrite = %v", keys)
	}

	v, _ := a.GetString("one")
	if v != "one-updated" {
		t.Fatalf("one = %q", v)
	}
}

func TestAttrsDelete(t *testing.T) {
	var a Attrs
	a.Set("a", StringValue("1"))
	a.Set("b", StringValue("2"))
	a.Set("c", StringValue("3"))

	a.Delete("b")

	if a.Has("b") {
		t.Fatalf("b should be deleted")
	}

	keys := a.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
		t.Fatalf("keys after delete = %v", keys)
	}

	c, ok := a.GetString("c")
	if !ok || c != "3" {
		t.Fatalf("c after delete of earlier key = %q, %v", c, ok)
	}
}

func TestRenderRoundTripScalar(t *testing.T) {
	var a Attrs
	a.Set("type", StringValue("concept"))
	a.Set("title", StringValue("hello world"))

	text := Render(a, "body text\n")

	attrs2, body2 := Parse(text)

	title, ok := attrs2.GetString("title")
	if !ok || title != "hello world" {
		t.Fatalf("round-tripped title = %q, %v", title, ok)
	}

	if body2 != "body text\n" {
		t.Fatalf("round-tripped body = %q", body2)
	}
}

func TestRenderRoundTripList(t *testing.T) {
	var a Attrs
	a.Set("tags", ListValue([]string{"a", "b", "c", "d", "e"}))

	text := Render(a, "")
	attrs2, _ := Parse(text)

	v, ok := attrs2.Get("tags")
	if !ok || v.Kind != List || len(v.List) != 5 {
		t.Fatalf("round-tripped tags = %+v", v)
	}
}

func TestRenderQuotesValueNeedingIt(t *testing.T) {
	var a Attrs
	a.Set("title", StringValue(" leading space"))

	text := Render(a, "")
	attrs2, _ := Parse(text)

	title, ok := attrs2.GetString("title")
	if !ok || title != " leading space" {
		t.Fatalf("round-tripped title = %q, %v", title, ok)
	}
}

func TestParseMalformedFrontmatterDegradesGracefully(t *testing.T) {
	text := "---\n" +
		"this line has no colon and is not a key\n" +
		"type: concept\n" +
		"---\n" +
		"body\n"

	attrs, body := Parse(text)

	typ, ok := attrs.GetString("type")
	if !ok || typ != "concept" {
		t.Fatalf("type should still parse despite malformed line: %q, %v", typ, ok)
	}

	if body != "body\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	var a Attrs
	a.Set("x", StringValue("1"))

	clone := a.Clone()
	clone.Set("x", StringValue("2"))

	orig, _ := a.GetString("x")
	if orig != "1" {
		t.Fatalf("mutating clone affected original: %q", orig)
	}
}
