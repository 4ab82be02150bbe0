// Package naming derives table, key and pivot names from entity type names.
package naming

import (
	"slices"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// CamelToSnake converts a CamelCase string to snake_case.
// Consecutive uppercase letters (acronyms) are kept together:
// "ID" → "id", "UserID" → "user_id", "CreatedAt" → "created_at".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				next := rune(0)
				if i+1 < len(runes) {
					next = runes[i+1]
				}
				if unicode.IsLower(prev) || (unicode.IsUpper(prev) && unicode.IsLower(next)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TableName converts a type name to a snake_case plural table name.
// e.g. "User" -> "users", "UserProfile" -> "user_profiles"
func TableName(typeName string) string {
	return inflection.Plural(CamelToSnake(typeName))
}

// ForeignKey returns the conventional foreign key column referencing
// typeName, e.g. "User" -> "user_id".
func ForeignKey(typeName string) string {
	return inflection.Singular(CamelToSnake(typeName)) + "_id"
}

// PivotTable returns the conventional many-to-many table joining a and b:
// both singular snake_case names in alphabetical order, e.g.
// ("Tag", "Post") -> "post_tag".
func PivotTable(a, b string) string {
	names := []string{
		inflection.Singular(CamelToSnake(a)),
		inflection.Singular(CamelToSnake(b)),
	}
	slices.Sort(names)
	return names[0] + "_" + names[1]
}

// MorphColumns returns the id and type columns of a polymorphic
// reference named name, e.g. "commentable" -> ("commentable_id", "commentable_type").
func MorphColumns(name string) (idColumn, typeColumn string) {
	return name + "_id", name + "_type"
}

// MorphTable returns the conventional polymorphic pivot table for name,
// e.g. "likable" -> "likables".
func MorphTable(name string) string {
	return inflection.Plural(name)
}
