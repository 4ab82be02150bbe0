package schema

import (
	"reflect"

	"github.com/mickamy/ormrel/internal/naming"
	"github.com/mickamy/ormrel/orm"
)

// RegisterModel registers the Go struct type T under its type name. The
// table name comes from T's TableName method when it implements
// orm.TableNamer and is inferred from the type name otherwise.
func RegisterModel[T any](c *Catalog, primaryKey string, opts ...TableOption) (EntityType, error) {
	rt := reflect.TypeFor[T]()
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	typ := EntityType(rt.Name())
	table := orm.ResolveTableName[T](naming.TableName(rt.Name()))
	if err := c.Register(typ, table, primaryKey, opts...); err != nil {
		return "", err
	}
	return typ, nil
}
