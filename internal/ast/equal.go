package ast

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
)

// Equal reports whether a and b are structurally identical: same kinds,
// same children, same scalar types and values, same extension blobs.
// Embedded models compare by their JSON form.
func Equal(a, b Node) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	if a.Kind() != b.Kind() || !bytes.Equal(a.Extension(), b.Extension()) {
		return false
	}
	switch a := a.(type) {
	case *And:
		b := b.(*And)
		return Equal(a.Left, b.Left) && Equal(a.Right, b.Right)
	case *Or:
		b := b.(*Or)
		return Equal(a.Left, b.Left) && Equal(a.Right, b.Right)
	case *Not:
		return Equal(a.Operand, b.(*Not).Operand)
	case *Comparison:
		b := b.(*Comparison)
		return Equal(fieldNode(a.Field), fieldNode(b.Field)) && Equal(a.Value, b.Value)
	case *Scalar:
		b := b.(*Scalar)
		return a.Type == b.Type && scalar.Equal(a.Value, b.Value)
	case *Field:
		b := b.(*Field)
		return a.Name == b.Name && a.Type == b.Type
	case *Sort:
		b := b.(*Sort)
		return a.Descending == b.Descending && Equal(fieldNode(a.Field), fieldNode(b.Field))
	case *Parameter:
		b := b.(*Parameter)
		return a.Index == b.Index && a.Type == b.Type
	case *QueryRoot:
		b := b.(*QueryRoot)
		return a.ModelType == b.ModelType && a.IsLink == b.IsLink
	case *Predicate:
		b := b.(*Predicate)
		return Equal(a.Source, b.Source) && Equal(a.Filter, b.Filter)
	case *OrderBy:
		b := b.(*OrderBy)
		if len(a.Sorts) != len(b.Sorts) || !Equal(a.Source, b.Source) {
			return false
		}
		for i := range a.Sorts {
			if !Equal(a.Sorts[i], b.Sorts[i]) {
				return false
			}
		}
		return true
	case *Page:
		b := b.(*Page)
		return a.Size == b.Size && a.Token == b.Token && Equal(a.Source, b.Source)
	case *Save:
		b := b.(*Save)
		return a.ModelType == b.ModelType &&
			modelsEqual(a.Model, b.Model) &&
			paramsEqual(a.Param, b.Param) &&
			Equal(a.OrgUnit, b.OrgUnit)
	case *Delete:
		b := b.(*Delete)
		return a.ModelType == b.ModelType && modelsEqual(a.Model, b.Model) && paramsEqual(a.Param, b.Param)
	case *TraverseOrigin:
		b := b.(*TraverseOrigin)
		return a.RootType == b.RootType && Equal(a.Key, b.Key)
	case *EdgeFilter:
		b := b.(*EdgeFilter)
		return a.EdgeType == b.EdgeType && a.NodeType == b.NodeType &&
			Equal(a.Parent, b.Parent) && Equal(a.Predicate, b.Predicate)
	case *NodeFilter:
		b := b.(*NodeFilter)
		return Equal(a.Parent, b.Parent) && Equal(a.Predicate, b.Predicate)
	case *EdgeMemberFilter:
		b := b.(*EdgeMemberFilter)
		return Equal(a.Parent, b.Parent) && Equal(a.Predicate, b.Predicate)
	case *PathRootFilter:
		b := b.(*PathRootFilter)
		return Equal(a.Parent, b.Parent) && Equal(a.Predicate, b.Predicate)
	case *Returns:
		b := b.(*Returns)
		return a.EdgeDepth == b.EdgeDepth && a.NodeDepth == b.NodeDepth &&
			a.Terminal == b.Terminal && Equal(a.Parent, b.Parent)
	}
	return false
}

func paramsEqual(a, b *Parameter) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Index == b.Index && a.Type == b.Type
}

func modelsEqual(a, b model.Model) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if model.KeyOf(a) != model.KeyOf(b) {
		return false
	}
	if la, ok := model.AsLink(a); ok {
		lb, ok := model.AsLink(b)
		if !ok || la.FromKey() != lb.FromKey() || la.ToKey() != lb.ToKey() {
			return false
		}
	}
	ja, errA := comparableJSON(a)
	jb, errB := comparableJSON(b)
	return errA == nil && errB == nil && reflect.DeepEqual(ja, jb)
}

// comparableJSON decodes m's JSON form into a map, dropping link refs
// since they are compared through the endpoint keys.
func comparableJSON(m model.Model) (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if _, ok := model.AsLink(m); ok {
		delete(out, "From")
		delete(out, "To")
	}
	return out, nil
}
