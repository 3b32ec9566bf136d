package model

import (
	"fmt"
	"reflect"
)

// Ref is the serialized form of a link endpoint.
type Ref struct {
	Type string `json:"Type"`
	Key  string `json:"Key"`
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.Key == ""
}

// RefOf builds a ref from a model key.
func RefOf(m Model) Ref {
	key := KeyOf(m)
	typeName, _, _ := SplitKey(key)
	return Ref{Type: typeName, Key: key}
}

// Link is the base of every edge type. From and To are live endpoint
// models on the client; FromRef and ToRef are what crosses the wire.
type Link struct {
	Entity

	From Model `json:"-"`
	To   Model `json:"-"`

	FromRef Ref `json:"From"`
	ToRef   Ref `json:"To"`
}

// LinkBase returns the link itself.
func (l *Link) LinkBase() *Link {
	return l
}

// SyncRefs copies the current endpoint keys into FromRef and ToRef.
func (l *Link) SyncRefs() {
	if !isNil(l.From) {
		l.FromRef = RefOf(l.From)
	}
	if !isNil(l.To) {
		l.ToRef = RefOf(l.To)
	}
}

// FromKey returns the key of the From endpoint, preferring the live model.
func (l *Link) FromKey() string {
	if !isNil(l.From) {
		return l.From.Base().Key
	}
	return l.FromRef.Key
}

// ToKey returns the key of the To endpoint, preferring the live model.
func (l *Link) ToKey() string {
	if !isNil(l.To) {
		return l.To.Base().Key
	}
	return l.ToRef.Key
}

// LinkModel is implemented by every edge type.
type LinkModel interface {
	Model
	LinkBase() *Link
}

// AsLink returns the link base of m when m is an edge.
func AsLink(m Model) (*Link, bool) {
	lm, ok := m.(LinkModel)
	if !ok || isNil(m) {
		return nil, false
	}
	return lm.LinkBase(), true
}

// Path is one traversal result: the root model, the nodes reached and the
// edges walked to reach them.
type Path struct {
	Root  Model
	Nodes []Model
	Edges []LinkModel
}

// Validate checks that every edge endpoint is the root or one of the nodes.
func (p *Path) Validate() error {
	known := make(map[string]struct{}, len(p.Nodes)+1)
	if !isNil(p.Root) {
		known[p.Root.Base().Key] = struct{}{}
	}
	for _, n := range p.Nodes {
		known[n.Base().Key] = struct{}{}
	}
	for _, e := range p.Edges {
		l := e.LinkBase()
		for _, key := range []string{l.FromKey(), l.ToKey()} {
			if _, ok := known[key]; !ok {
				return fmt.Errorf("%w: edge %s references %s", ErrPathIncomplete, l.Key, key)
			}
		}
	}
	return nil
}

// Terminal returns the model a path ends at: the last edge when edges is
// true, otherwise the last node (or the root for an empty path).
func (p *Path) Terminal(edges bool) Model {
	if edges {
		if len(p.Edges) == 0 {
			return nil
		}
		return p.Edges[len(p.Edges)-1]
	}
	if len(p.Nodes) == 0 {
		return p.Root
	}
	return p.Nodes[len(p.Nodes)-1]
}

// Page is one page of results. An empty Next ends paging.
type Page[T any] struct {
	Items []T
	Next  string
}

func isNil(m Model) bool {
	if m == nil {
		return true
	}
	rv := reflect.ValueOf(m)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
