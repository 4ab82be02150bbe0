package orm

// TableNamer can be implemented by model structs to override the
// table name a model type is registered under.
type TableNamer interface {
	TableName() string
}

// ResolveTableName returns the table name for type T.
// If T implements TableNamer (value or pointer receiver), that name is used;
// otherwise fallback is returned.
func ResolveTableName[T any](fallback string) string {
	var zero T
	if name, ok := tableNameOf(&zero); ok {
		return name
	}
	return fallback
}

func tableNameOf(v any) (string, bool) {
	tn, ok := v.(TableNamer)
	if !ok || tn == nil {
		return "", false
	}
	name := tn.TableName()
	return name, name != ""
}
