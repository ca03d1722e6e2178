package database

import (
	"testing"

	"github.com/madison88admin/supplychain-app-sub002/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectBuilder_Build(t *testing.T) {
	tests := []struct {
		name     string
		builder  *SelectBuilder
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "bare select",
			builder:  Select("Products", DialectSQLite),
			wantSQL:  `SELECT * FROM "Products"`,
			wantArgs: nil,
		},
		{
			name: "postgres numbering continues into limit and offset",
			builder: Select("orders", DialectPostgres).
				Columns("id", "status").
				Where("status", "=", "open").
				OrderBy("id", Desc).
				Limit(20).
				Offset(40),
			wantSQL:  `SELECT "id", "status" FROM "orders" WHERE "status" = $1 ORDER BY "id" DESC LIMIT $2 OFFSET $3`,
			wantArgs: []any{"open", 20, 40},
		},
		{
			name: "mysql quotes with backticks",
			builder: Select("sample`requests", DialectMySQL).
				Where("po", "like", "%7%").
				Limit(5),
			wantSQL:  "SELECT * FROM `sample``requests` WHERE `po` LIKE ? LIMIT ?",
			wantArgs: []any{"%7%", 5},
		},
		{
			name: "any-of groups are parenthesised and ANDed",
			builder: Select("Products", DialectPostgres).
				WhereAny([]string{"name", "desc"}, "ILIKE", "%red%").
				WhereAny([]string{"name", "desc"}, "ILIKE", "%shirt%"),
			wantSQL:  `SELECT * FROM "Products" WHERE ("name" ILIKE $1 OR "desc" ILIKE $2) AND ("name" ILIKE $3 OR "desc" ILIKE $4)`,
			wantArgs: []any{"%red%", "%red%", "%shirt%", "%shirt%"},
		},
		{
			name: "single column group has no parentheses",
			builder: Select("t", DialectSQLite).
				WhereAny([]string{"name"}, "LIKE", "%a%"),
			wantSQL:  `SELECT * FROM "t" WHERE "name" LIKE ?`,
			wantArgs: []any{"%a%"},
		},
		{
			name: "empty column group adds nothing",
			builder: Select("t", DialectSQLite).
				WhereAny(nil, "LIKE", "%a%").
				Limit(1),
			wantSQL:  `SELECT * FROM "t" LIMIT ?`,
			wantArgs: []any{1},
		},
		{
			name:     "embedded quotes are doubled",
			builder:  Select(`we"ird`, DialectSQLite),
			wantSQL:  `SELECT * FROM "we""ird"`,
			wantArgs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.builder.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSelectBuilder_BuildCountSharesPredicate(t *testing.T) {
	b := Select("Products", DialectPostgres).
		WhereAny([]string{"name", "desc"}, "ILIKE", "%red%").
		OrderBy("id", Asc).
		Limit(10).
		Offset(10)

	countSQL, countArgs, err := b.BuildCount()
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "Products" WHERE ("name" ILIKE $1 OR "desc" ILIKE $2)`, countSQL)

	_, pageArgs, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, countArgs, pageArgs[:len(countArgs)])
}

func TestSelectBuilder_RejectsUnknownOperator(t *testing.T) {
	_, _, err := Select("t", DialectSQLite).Where("a", "; DROP TABLE t; --", 1).Build()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	_, _, err = Select("t", DialectSQLite).WhereAny([]string{"a"}, "SIMILAR TO", 1).BuildCount()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestInsertBuilder_Build(t *testing.T) {
	sql, args := Insert("Products", DialectPostgres).
		Set("name", "Red Shirt").
		Set("price", 12.5).
		Build()
	assert.Equal(t, `INSERT INTO "Products" ("name", "price") VALUES ($1, $2)`, sql)
	assert.Equal(t, []any{"Red Shirt", 12.5}, args)

	sql, args = Insert("Products", DialectSQLite).Build()
	assert.Equal(t, `INSERT INTO "Products" DEFAULT VALUES`, sql)
	assert.Empty(t, args)

	sql, _ = Insert("Products", DialectMySQL).Build()
	assert.Equal(t, "INSERT INTO `Products` () VALUES ()", sql)
}

func TestDialect_IsTextType(t *testing.T) {
	tests := []struct {
		dialect  Dialect
		dataType string
		want     bool
	}{
		{DialectSQLite, "TEXT", true},
		{DialectSQLite, "VARCHAR(255)", true},
		{DialectSQLite, "nchar(10)", true},
		{DialectSQLite, "CLOB", true},
		{DialectSQLite, "INTEGER", false},
		{DialectSQLite, "REAL", false},
		{DialectSQLite, "", false},
		{DialectPostgres, "text", true},
		{DialectPostgres, "character varying", true},
		{DialectPostgres, "integer", false},
		{DialectPostgres, "timestamp with time zone", false},
		{DialectMySQL, "varchar", true},
		{DialectMySQL, "longtext", true},
		{DialectMySQL, "enum", true},
		{DialectMySQL, "int", false},
		{DialectMySQL, "decimal(10,2)", false},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.String()+"/"+tt.dataType, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.IsTextType(tt.dataType))
		})
	}
}

func TestTableInfo_TextColumns(t *testing.T) {
	info := &TableInfo{
		Name: "Products",
		Columns: []*ColumnInfo{
			{Name: "id", DataType: "INTEGER", Position: 1},
			{Name: "name", DataType: "TEXT", Position: 2},
			{Name: "price", DataType: "REAL", Position: 3},
			{Name: "desc", DataType: "VARCHAR(200)", Position: 4},
		},
	}

	assert.Equal(t, []string{"name", "desc"}, info.TextColumns(DialectSQLite))
	assert.Equal(t, []string{"id", "name", "price", "desc"}, info.ColumnNames())

	col, ok := info.Column("price")
	require.True(t, ok)
	assert.Equal(t, 3, col.Position)

	_, ok = info.Column("PRICE")
	assert.False(t, ok)
}
