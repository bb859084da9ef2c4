// Package kaybee implements an embedded knowledge-graph store: plain
// text nodes carrying YAML-subset frontmatter, typed attribute tables
// backed by sqlite, a wikilink index kept in sync on every write, an
// append-only changelog, a pluggable validator, and a replicator that
// pushes changelog entries to (and pulls rows from) an external
// relational store through a small adapter contract.
//
// A Store is opened against a data directory:
//
//	store, err := kaybee.Open(ctx, kaybee.DefaultConfig())
//
// Nodes are addressed by name and are either untyped (the implicit
// "kaybee" type) or carry a type declared via the frontmatter's
// reserved "type" key. Writing, reading, moving, copying, and removing
// nodes are all single-transaction operations; Read additionally
// supports a bounded, cycle-guarded progressive traversal that follows
// wikilinks out to a requested depth.
package kaybee
