package ast

import (
	"encoding/base64"
	"fmt"

	"github.com/roach88/linkgraph/internal/model"
	"github.com/roach88/linkgraph/internal/scalar"
	"github.com/roach88/linkgraph/internal/wire"
)

// Registry is what the codec needs from the model registry: enum names
// for scalars and model (un)marshaling for Save and Delete.
type Registry interface {
	scalar.EnumResolver
	Marshal(m model.Model) (string, []byte, error)
	Unmarshal(name string, data []byte) (model.Model, error)
}

// Codec reads and writes the binary envelope.
type Codec struct {
	reg Registry
}

// NewCodec returns a codec resolving model and enum types through reg.
func NewCodec(reg Registry) *Codec {
	return &Codec{reg: reg}
}

// Encode serializes n.
func (c *Codec) Encode(n Node) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", ErrEncode)
	}
	w := wire.NewWriter()
	if err := c.writeNode(w, n); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Decode reconstructs a node from data. The whole buffer must be consumed.
func (c *Codec) Decode(data []byte) (Node, error) {
	r := wire.NewReader(data)
	n, err := c.readNode(r)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrDecode, r.Remaining())
	}
	return n, nil
}

// Format returns the base64 text form of n.
func (c *Codec) Format(n Node) (string, error) {
	data, err := c.Encode(n)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Parse decodes the base64 text form produced by Format.
func (c *Codec) Parse(s string) (Node, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return c.Decode(data)
}

func (c *Codec) writeNode(w *wire.Writer, n Node) error {
	w.Int32(int32(n.Kind()))
	if err := c.writePayload(w, n); err != nil {
		return err
	}
	w.Blob(n.Extension())
	return nil
}

func (c *Codec) writeChild(w *wire.Writer, n Node) error {
	if isNil(n) {
		w.Int32(int32(KindNone))
		w.Int32(0)
		return nil
	}
	sub := wire.NewWriter()
	if err := c.writeNode(sub, n); err != nil {
		return err
	}
	w.Int32(int32(n.Kind()))
	w.Blob(sub.Bytes())
	return nil
}

func (c *Codec) writePayload(w *wire.Writer, n Node) error {
	switch n := n.(type) {
	case *And:
		return c.writeChildren(w, n.Left, n.Right)
	case *Or:
		return c.writeChildren(w, n.Left, n.Right)
	case *Not:
		return c.writeChild(w, n.Operand)
	case *Comparison:
		if !n.Op.IsComparison() {
			return fmt.Errorf("%w: %s is not a comparison", ErrEncode, n.Op)
		}
		return c.writeChildren(w, fieldNode(n.Field), n.Value)
	case *Scalar:
		if err := scalar.Write(w, n.Type, n.Value, c.reg); err != nil {
			return fmt.Errorf("%w: scalar: %w", ErrEncode, err)
		}
		return nil
	case *Field:
		w.String(n.Name)
		w.Int32(int32(n.Type))
		return nil
	case *Sort:
		if err := c.writeChild(w, fieldNode(n.Field)); err != nil {
			return err
		}
		w.Bool(n.Descending)
		return nil
	case *Parameter:
		w.Int32(n.Index)
		w.Int32(int32(n.Type))
		return nil
	case *QueryRoot:
		w.String(n.ModelType)
		w.Bool(n.IsLink)
		return nil
	case *Predicate:
		return c.writeChildren(w, n.Source, n.Filter)
	case *OrderBy:
		if err := c.writeChild(w, n.Source); err != nil {
			return err
		}
		w.Int32(int32(len(n.Sorts)))
		for _, s := range n.Sorts {
			if err := c.writeChild(w, s); err != nil {
				return err
			}
		}
		return nil
	case *Page:
		if err := c.writeChild(w, n.Source); err != nil {
			return err
		}
		w.Int32(n.Size)
		w.String(n.Token)
		return nil
	case *Save:
		if err := c.writeModel(w, n.ModelType, n.Model, n.Param); err != nil {
			return err
		}
		return c.writeChild(w, n.OrgUnit)
	case *Delete:
		return c.writeModel(w, n.ModelType, n.Model, n.Param)
	case *TraverseOrigin:
		w.String(n.RootType)
		return c.writeChild(w, n.Key)
	case *EdgeFilter:
		if n.Direction != KindOutEdgeFilter && n.Direction != KindInEdgeFilter {
			return fmt.Errorf("%w: invalid edge direction %s", ErrEncode, n.Direction)
		}
		if err := c.writeChild(w, n.Parent); err != nil {
			return err
		}
		w.String(n.EdgeType)
		w.String(n.NodeType)
		return c.writeChild(w, n.Predicate)
	case *NodeFilter:
		return c.writeChildren(w, n.Parent, n.Predicate)
	case *EdgeMemberFilter:
		return c.writeChildren(w, n.Parent, n.Predicate)
	case *PathRootFilter:
		return c.writeChildren(w, n.Parent, n.Predicate)
	case *Returns:
		if err := c.writeChild(w, n.Parent); err != nil {
			return err
		}
		w.Int32(n.EdgeDepth)
		w.Int32(n.NodeDepth)
		w.Int32(int32(n.Terminal))
		return nil
	default:
		return fmt.Errorf("%w: unsupported node %T", ErrEncode, n)
	}
}

func (c *Codec) writeChildren(w *wire.Writer, children ...Node) error {
	for _, child := range children {
		if err := c.writeChild(w, child); err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) writeModel(w *wire.Writer, modelType string, m model.Model, param *Parameter) error {
	if m == nil {
		if param != nil {
			return fmt.Errorf("%w: model parameter #%d", ErrUnboundParameter, param.Index)
		}
		return fmt.Errorf("%w: %s without a model", ErrEncode, modelType)
	}
	name, data, err := c.reg.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if modelType != "" && name != modelType {
		return fmt.Errorf("%w: model is %s, node declares %s", ErrEncode, name, modelType)
	}
	w.String(name)
	w.Blob(data)
	return nil
}

func (c *Codec) readNode(r *wire.Reader) (Node, error) {
	raw, err := r.Int32()
	if err != nil {
		return nil, decodeErr(err)
	}
	kind := NodeKind(raw)
	n, err := c.readPayload(r, kind)
	if err != nil {
		return nil, err
	}
	ext, err := r.Blob()
	if err != nil {
		return nil, decodeErr(err)
	}
	if len(ext) > 0 {
		setExt(n, ext)
	}
	return n, nil
}

func (c *Codec) readChild(r *wire.Reader) (Node, error) {
	raw, err := r.Int32()
	if err != nil {
		return nil, decodeErr(err)
	}
	kind := NodeKind(raw)
	body, err := r.Blob()
	if err != nil {
		return nil, decodeErr(err)
	}
	if kind == KindNone {
		if len(body) != 0 {
			return nil, fmt.Errorf("%w: empty child carries %d bytes", ErrDecode, len(body))
		}
		return nil, nil
	}
	sub := wire.NewReader(body)
	n, err := c.readNode(sub)
	if err != nil {
		return nil, err
	}
	if n.Kind() != kind {
		return nil, fmt.Errorf("%w: child reference says %s, node is %s", ErrDecode, kind, n.Kind())
	}
	if sub.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in %s child", ErrDecode, sub.Remaining(), kind)
	}
	return n, nil
}

func (c *Codec) readPair(r *wire.Reader) (Node, Node, error) {
	a, err := c.readChild(r)
	if err != nil {
		return nil, nil, err
	}
	b, err := c.readChild(r)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (c *Codec) readPayload(r *wire.Reader, kind NodeKind) (Node, error) {
	switch {
	case kind == KindAnd || kind == KindOr:
		left, right, err := c.readPair(r)
		if err != nil {
			return nil, err
		}
		if kind == KindAnd {
			return &And{Left: left, Right: right}, nil
		}
		return &Or{Left: left, Right: right}, nil
	case kind == KindNot:
		operand, err := c.readChild(r)
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	case kind.IsComparison():
		f, v, err := c.readPair(r)
		if err != nil {
			return nil, err
		}
		field, err := asField(f, kind)
		if err != nil {
			return nil, err
		}
		if !isValueNode(v) {
			return nil, fmt.Errorf("%w: %s value must be Scalar or Parameter", ErrDecode, kind)
		}
		return &Comparison{Op: kind, Field: field, Value: v}, nil
	}

	switch kind {
	case KindScalar:
		t, v, err := scalar.Read(r, c.reg)
		if err != nil {
			return nil, decodeErr(err)
		}
		return &Scalar{Type: t, Value: v}, nil
	case KindField:
		name, err := r.String()
		if err != nil {
			return nil, decodeErr(err)
		}
		t, err := c.readType(r)
		if err != nil {
			return nil, err
		}
		return &Field{Name: name, Type: t}, nil
	case KindSort:
		f, err := c.readChild(r)
		if err != nil {
			return nil, err
		}
		field, err := asField(f, kind)
		if err != nil {
			return nil, err
		}
		desc, err := r.Bool()
		if err != nil {
			return nil, decodeErr(err)
		}
		return &Sort{Field: field, Descending: desc}, nil
	case KindParameter:
		idx, err := r.Int32()
		if err != nil {
			return nil, decodeErr(err)
		}
		t, err := c.readType(r)
		if err != nil {
			return nil, err
		}
		return &Parameter{Index: idx, Type: t}, nil
	case KindQueryRoot:
		name, err := r.String()
		if err != nil {
			return nil, decodeErr(err)
		}
		isLink, err := r.Bool()
		if err != nil {
			return nil, decodeErr(err)
		}
		return &QueryRoot{ModelType: name, IsLink: isLink}, nil
	case KindPredicate:
		src, filter, err := c.readPair(r)
		if err != nil {
			return nil, err
		}
		return &Predicate{Source: src, Filter: filter}, nil
	case KindOrderBy:
		return c.readOrderBy(r)
	case KindPage:
		src, err := c.readChild(r)
		if err != nil {
			return nil, err
		}
		size, err := r.Int32()
		if err != nil {
			return nil, decodeErr(err)
		}
		token, err := r.String()
		if err != nil {
			return nil, decodeErr(err)
		}
		return &Page{Source: src, Size: size, Token: token}, nil
	case KindSave:
		name, m, err := c.readModel(r)
		if err != nil {
			return nil, err
		}
		org, err := c.readChild(r)
		if err != nil {
			return nil, err
		}
		if org != nil && !isValueNode(org) {
			return nil, fmt.Errorf("%w: Save org unit must be Scalar or Parameter", ErrDecode)
		}
		return &Save{ModelType: name, Model: m, OrgUnit: org}, nil
	case KindDelete:
		name, m, err := c.readModel(r)
		if err != nil {
			return nil, err
		}
		return &Delete{ModelType: name, Model: m}, nil
	case KindTraverseOrigin:
		root, err := r.String()
		if err != nil {
			return nil, decodeErr(err)
		}
		key, err := c.readChild(r)
		if err != nil {
			return nil, err
		}
		return &TraverseOrigin{RootType: root, Key: key}, nil
	case KindOutEdgeFilter, KindInEdgeFilter:
		parent, err := c.readChild(r)
		if err != nil {
			return nil, err
		}
		edgeType, err := r.String()
		if err != nil {
			return nil, decodeErr(err)
		}
		nodeType, err := r.String()
		if err != nil {
			return nil, decodeErr(err)
		}
		pred, err := c.readChild(r)
		if err != nil {
			return nil, err
		}
		return &EdgeFilter{Direction: kind, Parent: parent, EdgeType: edgeType, NodeType: nodeType, Predicate: pred}, nil
	case KindNodeFilter, KindEdgeMemberFilter, KindPathRootFilter:
		parent, pred, err := c.readPair(r)
		if err != nil {
			return nil, err
		}
		switch kind {
		case KindNodeFilter:
			return &NodeFilter{Parent: parent, Predicate: pred}, nil
		case KindEdgeMemberFilter:
			return &EdgeMemberFilter{Parent: parent, Predicate: pred}, nil
		default:
			return &PathRootFilter{Parent: parent, Predicate: pred}, nil
		}
	case KindReturns:
		parent, err := c.readChild(r)
		if err != nil {
			return nil, err
		}
		var vals [3]int32
		for i := range vals {
			if vals[i], err = r.Int32(); err != nil {
				return nil, decodeErr(err)
			}
		}
		term := Terminal(vals[2])
		if term != TerminalModel && term != TerminalEdge {
			return nil, fmt.Errorf("%w: unknown terminal %d", ErrDecode, vals[2])
		}
		return &Returns{Parent: parent, EdgeDepth: vals[0], NodeDepth: vals[1], Terminal: term}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node kind %d", ErrDecode, int32(kind))
	}
}

func (c *Codec) readOrderBy(r *wire.Reader) (Node, error) {
	src, err := c.readChild(r)
	if err != nil {
		return nil, err
	}
	count, err := r.Int32()
	if err != nil {
		return nil, decodeErr(err)
	}
	if count < 0 || int(count) > r.Remaining() {
		return nil, fmt.Errorf("%w: invalid sort count %d", ErrDecode, count)
	}
	sorts := make([]*Sort, 0, count)
	for i := int32(0); i < count; i++ {
		child, err := c.readChild(r)
		if err != nil {
			return nil, err
		}
		s, ok := child.(*Sort)
		if !ok {
			return nil, fmt.Errorf("%w: OrderBy entry %d is not a Sort", ErrDecode, i)
		}
		sorts = append(sorts, s)
	}
	return &OrderBy{Source: src, Sorts: sorts}, nil
}

func (c *Codec) readType(r *wire.Reader) (scalar.Type, error) {
	raw, err := r.Int32()
	if err != nil {
		return 0, decodeErr(err)
	}
	t := scalar.Type(raw)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %w: %d", ErrDecode, scalar.ErrUnknownTag, raw)
	}
	return t, nil
}

func (c *Codec) readModel(r *wire.Reader) (string, model.Model, error) {
	name, err := r.String()
	if err != nil {
		return "", nil, decodeErr(err)
	}
	data, err := r.Blob()
	if err != nil {
		return "", nil, decodeErr(err)
	}
	m, err := c.reg.Unmarshal(name, data)
	if err != nil {
		return "", nil, decodeErr(err)
	}
	return name, m, nil
}

func decodeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrDecode, err)
}

func asField(n Node, parent NodeKind) (*Field, error) {
	f, ok := n.(*Field)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires a Field operand", ErrDecode, parent)
	}
	return f, nil
}

func isValueNode(n Node) bool {
	switch n.(type) {
	case *Scalar, *Parameter:
		return true
	}
	return false
}

// fieldNode converts a possibly nil *Field to a Node without producing a
// non-nil interface around a nil pointer.
func fieldNode(f *Field) Node {
	if f == nil {
		return nil
	}
	return f
}

func setExt(n Node, ext []byte) {
	if h, ok := n.(interface{ header() *Header }); ok {
		h.header().Ext = ext
	}
}
