package model

// FieldRequirement is one entry in a tenant's field catalog.
type FieldRequirement struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	Enabled   bool     `json:"enabled"`
	Required  bool     `json:"required"`
	FieldType string   `json:"field_type,omitempty"`
	Options   []string `json:"options,omitempty"`
}

// Catalog is a tenant's ordered field configuration. It grows monotonically:
// sync appends unseen keys and never reorders or removes existing ones (the
// single exception is the controlled-vocabulary field, which is tied to the
// tenant having that vocabulary configured).
type Catalog struct {
	TenantID string             `json:"tenant_id"`
	Fields   []FieldRequirement `json:"fields"`
}

// ByKey returns the requirement for key, or nil.
func (c *Catalog) ByKey(key string) *FieldRequirement {
	for i := range c.Fields {
		if c.Fields[i].Key == key {
			return &c.Fields[i]
		}
	}
	return nil
}

// Has reports whether the catalog contains key.
func (c *Catalog) Has(key string) bool {
	return c.ByKey(key) != nil
}

// Clone returns a deep copy of the catalog.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{TenantID: c.TenantID, Fields: make([]FieldRequirement, len(c.Fields))}
	copy(out.Fields, c.Fields)
	for i := range out.Fields {
		if len(c.Fields[i].Options) > 0 {
			out.Fields[i].Options = append([]string(nil), c.Fields[i].Options...)
		}
	}
	return out
}
