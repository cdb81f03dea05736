package object

import "github.com/kristofer/smogvm/pkg/value"

// StructType is a named, positionally-fielded record type: a field-name
// list plus a methods object that instances resolve methods through
// (acting as those instances' conceptual prototype).
type StructType struct {
	Name    string
	Fields  []string
	Methods *Object

	marked bool
}

// NewStructType creates a struct type with an empty methods object.
func NewStructType(name string, fields []string) *StructType {
	return &StructType{Name: name, Fields: fields, Methods: New(nil)}
}

func (t *StructType) Kind() value.Kind { return value.KindStructType }
func (t *StructType) Truthy() bool     { return true }
func (t *StructType) GoString() string { return "struct " + t.Name }

// StructFields exposes name+field-list for bytecode archive encoding
// without that package needing the concrete *StructType type.
func (t *StructType) StructFields() (string, []string) { return t.Name, t.Fields }

func (t *StructType) FieldIndex(name string) (int, bool) {
	for i, f := range t.Fields {
		if f == name {
			return i, true
		}
	}
	return 0, false
}

func (t *StructType) Marked() bool     { return t.marked }
func (t *StructType) SetMarked(m bool) { t.marked = m }
func (t *StructType) Children() []interface{} {
	if t.Methods == nil {
		return nil
	}
	return []interface{}{t.Methods}
}

// StructInstance is a positionally-fielded record with value
// semantics: Copy produces a deep copy (strings re-interned — trivial,
// since interning is already by-identity; nested structs copied
// recursively; object fields shared by reference).
type StructInstance struct {
	Type   *StructType
	Fields []value.Value

	marked bool
}

// NewInstance allocates a struct instance with all fields defaulted to
// Nil.
func NewInstance(t *StructType) *StructInstance {
	fields := make([]value.Value, len(t.Fields))
	for i := range fields {
		fields[i] = value.Nil{}
	}
	return &StructInstance{Type: t, Fields: fields}
}

func (s *StructInstance) Kind() value.Kind { return value.KindStruct }
func (s *StructInstance) Truthy() bool     { return true }
func (s *StructInstance) GoString() string { return "struct instance of " + s.Type.Name }

// Copy implements the struct value-semantics invariant: mutating a
// field of the copy never affects the original (except object-kind
// fields, which remain shared by reference).
func (s *StructInstance) Copy() *StructInstance {
	out := &StructInstance{Type: s.Type, Fields: make([]value.Value, len(s.Fields))}
	for i, f := range s.Fields {
		if nested, ok := f.(*StructInstance); ok {
			out.Fields[i] = nested.Copy()
			continue
		}
		// Strings are already identity-stable via interning; Object
		// references are shared by design; primitives copy by value
		// through the Go assignment above.
		out.Fields[i] = f
	}
	return out
}

func (s *StructInstance) Marked() bool     { return s.marked }
func (s *StructInstance) SetMarked(m bool) { s.marked = m }
func (s *StructInstance) Children() []interface{} {
	out := make([]interface{}, 0, len(s.Fields)+1)
	if s.Type != nil {
		out = append(out, s.Type)
	}
	for _, f := range s.Fields {
		out = append(out, f)
	}
	return out
}
