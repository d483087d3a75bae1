package drive

import (
	"fmt"
	"strings"
)

// PageSize is the number of entries requested per listing page.
const PageSize = 1000

// Filter restricts a listing by kind.
type Filter int

const (
	AllKinds Filter = iota
	FilesOnly
	FoldersOnly
)

// Query describes the children of one folder. It is a value; the builder
// methods return modified copies. The continuation token is not part of it.
type Query struct {
	Parent  string
	Trashed bool
	Filter  Filter
	Name    string // exact match; empty means any
}

// ChildrenOf returns a query for the untrashed children of parent.
func ChildrenOf(parent string) Query {
	return Query{Parent: parent}
}

// Only returns q restricted by f.
func (q Query) Only(f Filter) Query {
	q.Filter = f
	return q
}

// Named returns q restricted to entries called name.
func (q Query) Named(name string) Query {
	q.Name = name
	return q
}

// String renders q in the remote query language.
func (q Query) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "'%s' in parents and trashed = %t", escape(q.Parent), q.Trashed)

	switch q.Filter {
	case FoldersOnly:
		fmt.Fprintf(&b, " and mimeType = '%s'", FolderMimeType)
	case FilesOnly:
		fmt.Fprintf(&b, " and not mimeType = '%s'", FolderMimeType)
	case AllKinds:
	}

	if q.Name != "" {
		fmt.Fprintf(&b, " and name = '%s'", escape(q.Name))
	}

	return b.String()
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func escape(s string) string {
	return queryEscaper.Replace(s)
}
