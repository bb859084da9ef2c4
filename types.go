package kaybee

import "github.com/kaybeehq/kaybee/internal/frontmatter"

// ImplicitType is the type assigned to nodes written without an
// explicit "type" frontmatter key. The public surface reports it as
// untyped: DisplayType and Tree present it as "".
const ImplicitType = "kaybee"

// Reserved physical table names that no user type may collide with (I5).
var reservedTypeNames = map[string]bool{
	"nodes":        true,
	"_types":       true,
	"_links":       true,
	"_changelog":   true,
	"_data":        true,
	"_type_fields": true,
}

// Node is the unit of storage: a canonical name, a type tag, free body
// text, and an ordered attribute map. The reserved key "type" is never
// present in Attrs; it is carried in Type.
type Node struct {
	Name  string
	Type  string
	Body  string
	Attrs frontmatter.Attrs
}

// DisplayType returns the type as the public surface presents it:
// ImplicitType is reported as "" (untyped).
func (n Node) DisplayType() string {
	if n.Type == ImplicitType {
		return ""
	}

	return n.Type
}

// LinkRow is one row of the outgoing-link index.
type LinkRow struct {
	Source         string
	TargetRaw      string
	TargetResolved string // "" means dangling
	Context        string
}

// ChangelogOp enumerates the mutation kinds recorded in the changelog.
type ChangelogOp string

// The changelog operation kinds.
const (
	OpNodeWrite      ChangelogOp = "node.write"
	OpNodeTypeChange ChangelogOp = "node.type_change"
	OpNodeRemove     ChangelogOp = "node.rm"
	OpNodeMove       ChangelogOp = "node.mv"
	OpNodeCopy       ChangelogOp = "node.cp"
	OpTypeAdd        ChangelogOp = "type.add"
	OpTypeRemove     ChangelogOp = "type.rm"
)

// ChangelogEntry is one row of the append-only changelog.
type ChangelogEntry struct {
	Seq     int64
	TS      int64
	Op      ChangelogOp
	Name    string
	Payload string // JSON-encoded, op-specific
}
