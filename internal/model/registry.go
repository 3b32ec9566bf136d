package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/linkgraph/internal/scalar"
)

// FieldInfo describes one queryable field of a model type.
type FieldInfo struct {
	// Path is the dotted JSON path used in query field references.
	Path string

	// GoPath is the dotted Go member path. Equal to Path for documents.
	GoPath string

	Type scalar.Type

	// GoType is the declared Go type, nil for document fields.
	GoType reflect.Type

	index   []int
	builtin bool
}

// TypeInfo is the registered schema of one model type.
type TypeInfo struct {
	Name   string
	IsLink bool

	// GoType is the struct type behind the model, nil for documents.
	GoType reflect.Type

	byPath map[string]*FieldInfo
	byGo   map[string]*FieldInfo
	schema map[string]scalar.Type
}

// Dynamic reports whether the type is a runtime-defined document type.
func (t *TypeInfo) Dynamic() bool {
	return t.GoType == nil
}

// Fields returns the type's fields ordered by path.
func (t *TypeInfo) Fields() []FieldInfo {
	out := make([]FieldInfo, 0, len(t.byPath))
	for _, f := range t.byPath {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (t *TypeInfo) add(f *FieldInfo) {
	t.byPath[f.Path] = f
	t.byGo[f.GoPath] = f
}

// Registry maps stable type names to model types and enum names to enum
// Go types. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]*TypeInfo
	byType    map[reflect.Type]*TypeInfo
	enums     map[string]reflect.Type
	enumNames map[reflect.Type]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    map[string]*TypeInfo{},
		byType:    map[reflect.Type]*TypeInfo{},
		enums:     map[string]reflect.Type{},
		enumNames: map[reflect.Type]string{},
	}
}

var (
	entityType = reflect.TypeOf(Entity{})
	linkType   = reflect.TypeOf(Link{})
	modelType  = reflect.TypeOf((*Model)(nil)).Elem()
	linkIface  = reflect.TypeOf((*LinkModel)(nil)).Elem()
)

// Register adds a struct model type under name. prototype must be a
// pointer to a struct embedding Entity or Link.
func (r *Registry) Register(name string, prototype Model) error {
	rt := reflect.TypeOf(prototype)
	if rt == nil || rt.Kind() != reflect.Pointer || rt.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("register %s: prototype must be a pointer to struct, got %T", name, prototype)
	}
	if !rt.Implements(modelType) {
		return fmt.Errorf("register %s: %T does not embed model.Entity", name, prototype)
	}
	if name == "" || strings.ContainsAny(name, "/.") {
		return fmt.Errorf("register: invalid type name %q", name)
	}

	info := &TypeInfo{
		Name:   name,
		IsLink: rt.Implements(linkIface),
		GoType: rt.Elem(),
		byPath: map[string]*FieldInfo{},
		byGo:   map[string]*FieldInfo{},
	}
	addBuiltins(info)
	reflectFields(info, rt.Elem(), "", "", nil)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	if _, ok := r.byType[info.GoType]; ok {
		return fmt.Errorf("%w: %s already registered under another name", ErrDuplicateType, rt)
	}
	r.byName[name] = info
	r.byType[info.GoType] = info
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, prototype Model) {
	if err := r.Register(name, prototype); err != nil {
		panic(err)
	}
}

// RegisterDocument adds a runtime-defined type with the given fields.
// Field names may be dotted paths.
func (r *Registry) RegisterDocument(name string, isLink bool, fields map[string]scalar.Type) error {
	if name == "" || strings.ContainsAny(name, "/.") {
		return fmt.Errorf("register: invalid type name %q", name)
	}
	info := &TypeInfo{
		Name:   name,
		IsLink: isLink,
		byPath: map[string]*FieldInfo{},
		byGo:   map[string]*FieldInfo{},
		schema: map[string]scalar.Type{},
	}
	addBuiltins(info)
	for path, t := range fields {
		if _, ok := info.byPath[path]; ok {
			return fmt.Errorf("register %s: field %s shadows a built-in field", name, path)
		}
		if !t.Valid() || t.Base() == scalar.Enum || t == scalar.Null {
			return fmt.Errorf("register %s: field %s has unsupported type %s", name, path, t)
		}
		info.add(&FieldInfo{Path: path, GoPath: path, Type: t})
		info.schema[path] = t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	r.byName[name] = info
	return nil
}

// RegisterEnum adds a named integer or string Go type as an enum.
func (r *Registry) RegisterEnum(name string, prototype any) error {
	rt := reflect.TypeOf(prototype)
	if !scalar.IsEnumType(rt) {
		return fmt.Errorf("register enum %s: %T is not a named integer or string type", name, prototype)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enums[name]; ok {
		return fmt.Errorf("%w: enum %s", ErrDuplicateType, name)
	}
	r.enums[name] = rt
	r.enumNames[rt] = name
	return nil
}

// EnumName implements scalar.EnumResolver.
func (r *Registry) EnumName(rt reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.enumNames[rt]
	return name, ok
}

// EnumType implements scalar.EnumResolver.
func (r *Registry) EnumType(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.enums[name]
	return rt, ok
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*TypeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return info, nil
}

// Names returns every registered type name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InfoOf returns the schema of m's type.
func (r *Registry) InfoOf(m Model) (*TypeInfo, error) {
	switch d := m.(type) {
	case *Document:
		return r.Lookup(d.Type)
	case *DocumentLink:
		return r.Lookup(d.Type)
	}
	rt := reflect.TypeOf(m)
	if rt == nil || rt.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byType[rt.Elem()]
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	return info, nil
}

// NameOf returns the registered name of m's type.
func (r *Registry) NameOf(m Model) (string, error) {
	info, err := r.InfoOf(m)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

// NameOfGo returns the registered name for a struct type or pointer to one.
func (r *Registry) NameOfGo(rt reflect.Type) (string, error) {
	if rt != nil && rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.byType[rt]
	if !ok {
		return "", fmt.Errorf("%w: %v", ErrUnknownType, rt)
	}
	return info.Name, nil
}

// Instantiate returns a zero model of the named type.
func (r *Registry) Instantiate(name string) (Model, error) {
	info, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return info.instantiate(), nil
}

func (t *TypeInfo) instantiate() Model {
	if t.GoType == nil {
		if t.IsLink {
			return NewDocumentLink(t.Name, t.schema)
		}
		return NewDocument(t.Name, t.schema)
	}
	return reflect.New(t.GoType).Interface().(Model)
}

// Create returns a new client-side model of the named type with a
// provisional key and IsNew set.
func (r *Registry) Create(name string) (Model, error) {
	m, err := r.Instantiate(name)
	if err != nil {
		return nil, err
	}
	e := m.Base()
	e.Key = NewKey(name)
	e.IsNew = true
	return m, nil
}

// Field resolves a field of the named type by Go member path or JSON path.
func (r *Registry) Field(typeName, path string) (*FieldInfo, error) {
	info, err := r.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	if f, ok := info.byGo[path]; ok {
		return f, nil
	}
	if f, ok := info.byPath[path]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, typeName, path)
}

// Value reads the field at JSON path from m.
func (r *Registry) Value(m Model, path string) (any, error) {
	info, err := r.InfoOf(m)
	if err != nil {
		return nil, err
	}
	f, ok := info.byPath[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, info.Name, path)
	}
	if f.builtin {
		return builtinValue(m, path), nil
	}
	if fa, ok := m.(FieldAccessor); ok {
		v, _ := fa.GetField(path)
		return v, nil
	}
	rv := reflect.ValueOf(m).Elem()
	fv, err := rv.FieldByIndexErr(f.index)
	if err != nil {
		return nil, nil
	}
	for fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			return nil, nil
		}
		fv = fv.Elem()
	}
	return fv.Interface(), nil
}

// Marshal returns the type name and JSON form of m. Link refs are synced
// from the live endpoints first.
func (r *Registry) Marshal(m Model) (string, []byte, error) {
	name, err := r.NameOf(m)
	if err != nil {
		return "", nil, err
	}
	if l, ok := AsLink(m); ok {
		l.SyncRefs()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	return name, data, nil
}

// Unmarshal decodes a model of the named type. IsNew is set when the
// decoded key is provisional.
func (r *Registry) Unmarshal(name string, data []byte) (Model, error) {
	m, err := r.Instantiate(name)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	m.Base().IsNew = IsProvisional(m.Base().Key)
	return m, nil
}

// CopyInto overwrites dst's serialized state and flags with src's. Both
// must be of the same registered type. Live link endpoints on dst are kept.
func (r *Registry) CopyInto(dst, src Model) error {
	dstName, err := r.NameOf(dst)
	if err != nil {
		return err
	}
	srcName, data, err := r.Marshal(src)
	if err != nil {
		return err
	}
	if dstName != srcName {
		return fmt.Errorf("copy %s into %s: type mismatch", srcName, dstName)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("copy %s: %w", srcName, err)
	}
	dst.Base().IsNew = src.Base().IsNew
	dst.Base().IsDeleted = src.Base().IsDeleted
	return nil
}

// Clone returns a deep copy of m, including live link endpoints.
func (r *Registry) Clone(m Model) (Model, error) {
	name, err := r.NameOf(m)
	if err != nil {
		return nil, err
	}
	out, err := r.Instantiate(name)
	if err != nil {
		return nil, err
	}
	if err := r.CopyInto(out, m); err != nil {
		return nil, err
	}
	if src, ok := AsLink(m); ok {
		dst, _ := AsLink(out)
		dst.From, dst.To = src.From, src.To
	}
	return out, nil
}

func addBuiltins(info *TypeInfo) {
	info.add(&FieldInfo{Path: "Key", GoPath: "Key", Type: scalar.String, builtin: true})
	info.add(&FieldInfo{Path: "Created", GoPath: "Created", Type: scalar.DateTime, builtin: true})
	info.add(&FieldInfo{Path: "Modified", GoPath: "Modified", Type: scalar.DateTime, builtin: true})
	if !info.IsLink {
		return
	}
	for _, end := range []string{"From", "To"} {
		for _, part := range []string{"Key", "Type"} {
			f := &FieldInfo{Path: end + "." + part, GoPath: end + "." + part, Type: scalar.String, builtin: true}
			info.add(f)
			info.byGo[end+"Ref."+part] = f
		}
	}
}

func builtinValue(m Model, path string) any {
	e := m.Base()
	switch path {
	case "Key":
		return e.Key
	case "Created":
		return e.Created
	case "Modified":
		return e.Modified
	}
	l, ok := AsLink(m)
	if !ok {
		return nil
	}
	switch path {
	case "From.Key":
		return l.FromKey()
	case "To.Key":
		return l.ToKey()
	case "From.Type":
		t, _, _ := SplitKey(l.FromKey())
		return t
	case "To.Type":
		t, _, _ := SplitKey(l.ToKey())
		return t
	}
	return nil
}

func reflectFields(info *TypeInfo, rt reflect.Type, prefix, goPrefix string, index []int) {
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && (f.Type == entityType || f.Type == linkType) {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			if n, _, _ := strings.Cut(tag, ","); n != "" {
				name = n
			}
		}
		idx := append(append([]int(nil), index...), i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			reflectFields(info, f.Type, prefix, goPrefix, idx)
			continue
		}
		if t, ok := scalar.TypeOfGo(f.Type); ok {
			info.add(&FieldInfo{
				Path:   prefix + name,
				GoPath: goPrefix + f.Name,
				Type:   t,
				GoType: f.Type,
				index:  idx,
			})
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			reflectFields(info, f.Type, prefix+name+".", goPrefix+f.Name+".", idx)
		}
	}
}
