package core

// FieldSchema names one account field a module contributes, for the
// operator-facing getSchema RPC.
type FieldSchema struct {
	Name string
	Type string
}

// ModuleSchema is one module's contribution to the composed account schema.
type ModuleSchema struct {
	ModuleID   uint32
	ModuleName string
	Fields     []FieldSchema
}

// SchemaRegistry accumulates each registered module's ModuleSchema at boot.
// Nothing here is consulted by consensus logic — it exists purely so
// getSchema can describe the account shape the running module set produces.
type SchemaRegistry struct {
	modules []ModuleSchema
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{}
}

// Register appends a module's schema contribution.
func (r *SchemaRegistry) Register(s ModuleSchema) {
	r.modules = append(r.modules, s)
}

// Modules returns every registered contribution, in registration order.
func (r *SchemaRegistry) Modules() []ModuleSchema {
	out := make([]ModuleSchema, len(r.modules))
	copy(out, r.modules)
	return out
}
