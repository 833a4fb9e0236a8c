package metadata

type Entity struct {
	Name       string          `json:"name"`
	Table      string          `json:"table,omitempty"`
	PrimaryKey PrimaryKey      `json:"primary_key"`
	Timestamps bool            `json:"timestamps"`
	Fields     []Field         `json:"fields"`
	Relations  []Relation      `json:"relations,omitempty"`
	Computed   []ComputedField `json:"computed,omitempty"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

// TableName returns the storage table, defaulting to the entity name.
func (e *Entity) TableName() string {
	if e.Table != "" {
		return e.Table
	}
	return e.Name
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Relation returns the relation with the given name, or nil.
func (e *Entity) Relation(name string) *Relation {
	for i := range e.Relations {
		if e.Relations[i].Name == name {
			return &e.Relations[i]
		}
	}
	return nil
}

// EagerRelations returns the names of relations flagged for eager loading.
func (e *Entity) EagerRelations() []string {
	var names []string
	for _, r := range e.Relations {
		if r.Eager {
			names = append(names, r.Name)
		}
	}
	return names
}

// GetComputed returns the computed-field descriptor with the given name, or nil.
func (e *Entity) GetComputed(name string) *ComputedField {
	for i := range e.Computed {
		if e.Computed[i].Name == name {
			return &e.Computed[i]
		}
	}
	return nil
}

// WritableFields returns fields that can be set by the client.
// Excludes auto-generated PKs and auto-timestamp fields.
func (e *Entity) WritableFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Name == e.PrimaryKey.Field && e.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}
