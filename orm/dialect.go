package orm

import (
	"fmt"
	"strings"
)

// Dialect abstracts SQL differences between database engines.
type Dialect interface {
	// Placeholder returns the bind parameter placeholder for the given
	// 1-based index. MySQL and SQLite return "?" regardless of index;
	// PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteIdent quotes an identifier (table name, column name) to safely
	// handle SQL reserved words. MySQL uses backticks; PostgreSQL and
	// SQLite use double quotes.
	QuoteIdent(name string) string

	// DummyTable returns the FROM clause needed to SELECT literal values
	// without a table, e.g. " FROM DUAL" for MySQL. Empty when the engine
	// accepts a bare SELECT.
	DummyTable() string
}

// MySQL is the Dialect for MySQL / MariaDB.
var MySQL Dialect = mysqlDialect{}

// PostgreSQL is the Dialect for PostgreSQL.
var PostgreSQL Dialect = postgresDialect{}

// SQLite is the Dialect for SQLite.
var SQLite Dialect = sqliteDialect{}

type mysqlDialect struct{}

func (mysqlDialect) Placeholder(_ int) string      { return "?" }
func (mysqlDialect) QuoteIdent(name string) string { return "`" + name + "`" }
func (mysqlDialect) DummyTable() string            { return " FROM DUAL" }

type postgresDialect struct{}

func (postgresDialect) Placeholder(index int) string  { return fmt.Sprintf("$%d", index) }
func (postgresDialect) QuoteIdent(name string) string { return `"` + name + `"` }
func (postgresDialect) DummyTable() string            { return "" }

type sqliteDialect struct{}

func (sqliteDialect) Placeholder(_ int) string      { return "?" }
func (sqliteDialect) QuoteIdent(name string) string { return `"` + name + `"` }
func (sqliteDialect) DummyTable() string            { return "" }

// DialectFor returns the Dialect registered under name.
// Accepted names are "mysql", "postgres" (or "postgresql") and "sqlite".
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql":
		return PostgreSQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("orm: unknown dialect %q", name)
	}
}

// DialectOf returns the Dialect a Querier was opened with.
func DialectOf(q Querier) Dialect { return q.dialect() }

// QualifiedColumn quotes table.column with the dialect's identifier quoting.
func QualifiedColumn(d Dialect, table, column string) string {
	return d.QuoteIdent(table) + "." + d.QuoteIdent(column)
}

// rewritePlaceholders converts ? to dialect-specific placeholders ($1, $2, …).
// Dialects whose placeholder is "?" are returned unchanged.
func rewritePlaceholders(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	idx := 1
	for i := range len(query) {
		if query[i] == '?' {
			b.WriteString(d.Placeholder(idx))
			idx++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
