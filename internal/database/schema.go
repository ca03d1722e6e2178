package database

// ColumnInfo describes a single column in a table.
type ColumnInfo struct {
	Name      string  `json:"name"`
	DataType  string  `json:"type"` // declared type as reported by the store
	Nullable  bool    `json:"nullable"`
	Default   *string `json:"default,omitempty"` // nil if no default
	IsPrimary bool    `json:"primaryKey"`
	IsUnique  bool    `json:"unique"`
	Position  int     `json:"position"` // 1-based ordinal position
}

// ForeignKey describes a column that references another table.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"refTable"`
	RefColumn string `json:"refColumn"`
}

// TableInfo describes a table, its columns in ordinal order and its keys.
// Name is the store's canonical spelling of the table name.
type TableInfo struct {
	Name        string        `json:"name"`
	Columns     []*ColumnInfo `json:"columns"`
	PrimaryKey  []string      `json:"primaryKey"`
	ForeignKeys []*ForeignKey `json:"foreignKeys,omitempty"`
}

// Column looks a column up by its exact name.
func (t *TableInfo) Column(name string) (*ColumnInfo, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ColumnNames returns the column names in ordinal order.
func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// TextColumns returns, in ordinal order, the columns the dialect considers text-like.
func (t *TableInfo) TextColumns(d Dialect) []string {
	var names []string
	for _, c := range t.Columns {
		if d.IsTextType(c.DataType) {
			names = append(names, c.Name)
		}
	}
	return names
}

// Schema is the full introspected database schema, keyed by table name.
type Schema struct {
	Tables map[string]*TableInfo `json:"tables"`
}
