// Package modelparse derives schema declarations from Go model source.
//
// A struct is a model when it has a primary key field: one tagged
// `db:",primaryKey"` or, by convention, a field named ID. Every other
// exported field is a column unless tagged `db:"-"` or `rel:"..."`.
//
// Relationships are declared with a rel tag whose first element is the
// kind and whose remaining elements are key:value options:
//
//	Posts []Post `rel:"has_many,foreign_key:user_id"`
//	Tags  []Tag  `rel:"belongs_to_many,pivot:post_tag,pivot_columns:weight|note,pivot_timestamps"`
//	Owner any    `rel:"morph_to,morph:commentable,types:Post|Video"`
package modelparse

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/mickamy/ormrel/internal/naming"
	"github.com/mickamy/ormrel/schema"
)

// FieldInfo holds parsed metadata for one struct field.
type FieldInfo struct {
	Name       string // Go field name, e.g. "ID"
	Column     string // DB column name from `db:"id"` tag
	GoType     string // Go type as string, e.g. "int", "string", "time.Time"
	PrimaryKey bool   // true if tag contains "primaryKey"
	Relation   string // raw rel tag, empty for columns
}

// StructInfo holds parsed metadata for one model struct.
type StructInfo struct {
	Name      string      // Go struct name, e.g. "User"
	Package   string      // Package name, e.g. "model"
	Fields    []FieldInfo // db fields and relationships
	TableName string      // from a TableName method, else inferred
	explicit  bool        // at least one db or rel tag
}

// PrimaryKeyField returns the primary key field, or an error if none or
// multiple are defined.
func (s *StructInfo) PrimaryKeyField() (*FieldInfo, error) {
	var pk *FieldInfo
	for i := range s.Fields {
		if s.Fields[i].PrimaryKey {
			if pk != nil {
				return nil, fmt.Errorf("multiple primary keys: %s and %s", pk.Name, s.Fields[i].Name)
			}
			pk = &s.Fields[i]
		}
	}
	if pk == nil {
		return nil, fmt.Errorf("no primary key defined for %s", s.Name)
	}
	return pk, nil
}

// Decl converts the struct into an entity declaration.
func (s *StructInfo) Decl() (schema.EntityDecl, error) {
	pk, err := s.PrimaryKeyField()
	if err != nil {
		return schema.EntityDecl{}, err
	}
	decl := schema.EntityDecl{
		Type:       schema.EntityType(s.Name),
		Table:      s.TableName,
		PrimaryKey: pk.Column,
	}
	for _, f := range s.Fields {
		switch {
		case f.Relation != "":
			r, err := parseRelation(f)
			if err != nil {
				return schema.EntityDecl{}, fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
			}
			decl.Relations = append(decl.Relations, r)
		case !f.PrimaryKey:
			decl.Columns = append(decl.Columns, f.Column)
		}
	}
	return decl, nil
}

// Parse reads the Go file at path and returns StructInfo for every model
// struct it declares.
func Parse(filePath string) ([]*StructInfo, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}

	pkg := file.Name.Name
	tableNames := tableNameMethods(file)
	var infos []*StructInfo

	ast.Inspect(file, func(n ast.Node) bool {
		ts, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}

		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			return true
		}

		info := &StructInfo{Name: ts.Name.Name, Package: pkg}
		info.Fields, info.explicit = parseStructFields(st)
		if len(info.Fields) == 0 {
			return true
		}
		info.TableName = tableNames[info.Name]
		if info.TableName == "" {
			info.TableName = naming.TableName(info.Name)
		}
		infos = append(infos, info)
		return true
	})

	return infos, nil
}

// ParseFiles parses every file and returns the declarations of their
// model structs in file order. Structs without a primary key are skipped
// unless they carry db or rel tags, which makes the missing key an error.
func ParseFiles(paths ...string) ([]schema.EntityDecl, error) {
	var decls []schema.EntityDecl
	for _, path := range paths {
		infos, err := Parse(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, info := range infos {
			if _, err := info.PrimaryKeyField(); err != nil && !info.explicit {
				continue
			}
			decl, err := info.Decl()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			decls = append(decls, decl)
		}
	}
	return decls, nil
}

// ParseDir parses the non-test Go files of dir.
func ParseDir(dir string) ([]schema.EntityDecl, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	paths := matches[:0]
	for _, m := range matches {
		if !strings.HasSuffix(m, "_test.go") {
			paths = append(paths, m)
		}
	}
	return ParseFiles(paths...)
}

// parseStructFields extracts column and relationship fields from an AST
// struct type. explicit reports whether any field carries a db or rel tag.
func parseStructFields(st *ast.StructType) (fields []FieldInfo, explicit bool) {
	fields = make([]FieldInfo, 0, len(st.Fields.List))
	for _, field := range st.Fields.List {
		fi, tagged, skip := parseField(field)
		explicit = explicit || tagged
		if skip {
			continue
		}
		fields = append(fields, fi)
	}
	return fields, explicit
}

func parseField(field *ast.Field) (fi FieldInfo, tagged, skip bool) {
	if len(field.Names) == 0 {
		return FieldInfo{}, false, true // embedded field, skip
	}

	name := field.Names[0].Name

	// Skip unexported fields.
	if !field.Names[0].IsExported() {
		return FieldInfo{}, false, true
	}

	fi = FieldInfo{
		Name:       name,
		Column:     naming.CamelToSnake(name),
		GoType:     typeToString(field.Type),
		PrimaryKey: name == "ID",
	}

	if field.Tag == nil {
		return fi, false, false
	}
	tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
	if rel, ok := tag.Lookup("rel"); ok {
		fi.Relation = rel
		fi.PrimaryKey = false
		return fi, true, false
	}
	dbTag, ok := tag.Lookup("db")
	if !ok {
		return fi, false, false
	}
	if dbTag == "-" {
		return FieldInfo{}, true, true // explicitly skipped
	}
	parts := strings.Split(dbTag, ",")
	if parts[0] != "" {
		fi.Column = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "primaryKey" {
			fi.PrimaryKey = true
		}
	}
	return fi, true, false
}

// parseRelation turns a rel-tagged field into a relationship declaration.
// The target defaults to the field's element type and the name to the
// snake_case field name.
func parseRelation(f FieldInfo) (schema.RelationDecl, error) {
	parts := strings.Split(f.Relation, ",")
	r := schema.RelationDecl{
		Name: naming.CamelToSnake(f.Name),
		Kind: strings.TrimSpace(parts[0]),
	}
	kind, err := schema.ParseKind(r.Kind)
	if err != nil {
		return r, err
	}
	if kind != schema.KindMorphTo {
		r.Target = schema.EntityType(elemTypeName(f.GoType))
	}

	pivot := func() *schema.Pivot {
		if r.Pivot == nil {
			r.Pivot = &schema.Pivot{}
		}
		return r.Pivot
	}
	for _, opt := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(opt), ":")
		switch key {
		case "name":
			r.Name = value
		case "target":
			r.Target = schema.EntityType(value)
		case "foreign_key":
			r.ForeignKey = value
		case "local_key":
			r.LocalKey = value
		case "owner_key":
			r.OwnerKey = value
		case "morph":
			r.MorphName = value
		case "morph_type":
			r.MorphType = value
		case "types":
			for _, t := range strings.Split(value, "|") {
				r.Types = append(r.Types, schema.EntityType(t))
			}
		case "through":
			r.Through = schema.EntityType(value)
		case "second_key":
			r.SecondKey = value
		case "pivot":
			pivot().Table = value
		case "pivot_foreign_key":
			pivot().ForeignKey = value
		case "pivot_related_key":
			pivot().RelatedKey = value
		case "pivot_columns":
			pivot().Columns = strings.Split(value, "|")
		case "pivot_timestamps":
			pivot().Timestamps = true
		default:
			return r, fmt.Errorf("unknown rel option %q", key)
		}
	}
	if r.Pivot != nil && !kind.UsesPivot() {
		return r, fmt.Errorf("%s does not use a pivot table", kind)
	}
	return r, nil
}

// elemTypeName strips slice, pointer and package qualifiers:
// "[]*amodel.OAuthAccount" -> "OAuthAccount".
func elemTypeName(goType string) string {
	t := strings.TrimLeft(goType, "[]*")
	if i := strings.LastIndexByte(t, '.'); i >= 0 {
		t = t[i+1:]
	}
	return t
}

// tableNameMethods collects `func (T) TableName() string { return "lit" }`
// declarations keyed by receiver type name.
func tableNameMethods(file *ast.File) map[string]string {
	names := make(map[string]string)
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name.Name != "TableName" || fn.Recv == nil || len(fn.Recv.List) != 1 || fn.Body == nil {
			continue
		}
		if len(fn.Body.List) != 1 {
			continue
		}
		ret, ok := fn.Body.List[0].(*ast.ReturnStmt)
		if !ok || len(ret.Results) != 1 {
			continue
		}
		lit, ok := ret.Results[0].(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			continue
		}
		value, err := strconv.Unquote(lit.Value)
		if err != nil {
			continue
		}
		names[strings.TrimPrefix(typeToString(fn.Recv.List[0].Type), "*")] = value
	}
	return names
}

func typeToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return typeToString(t.X) + "." + t.Sel.Name
	case *ast.StarExpr:
		return "*" + typeToString(t.X)
	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + typeToString(t.Elt)
		}
		return fmt.Sprintf("[%s]%s", typeToString(t.Len), typeToString(t.Elt))
	case *ast.InterfaceType:
		return "any"
	default:
		return fmt.Sprintf("%T", expr)
	}
}
