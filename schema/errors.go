package schema

import "errors"

// Registration and lookup errors. Registration errors are meant to be
// fatal at startup; lookup errors abort only the call that hit them.
var (
	// ErrUnknownEntityType is returned when an entity type has not been registered.
	ErrUnknownEntityType = errors.New("schema: unknown entity type")

	// ErrUnknownRelationship is returned when an owner type declares no
	// relationship of the requested name.
	ErrUnknownRelationship = errors.New("schema: unknown relationship")

	// ErrDuplicateRegistration is returned when an entity type, a
	// discriminator or a relationship name is registered twice.
	ErrDuplicateRegistration = errors.New("schema: duplicate registration")

	// ErrMissingColumn is returned when a key column does not exist on the
	// table it is declared to reside on, or is absent from a result row.
	ErrMissingColumn = errors.New("schema: missing column")

	// ErrUnknownDiscriminator is returned when a stored polymorphic type
	// value does not map to a registered (and allowed) entity type.
	ErrUnknownDiscriminator = errors.New("schema: unknown discriminator")

	// ErrFrozen is returned by registration calls after Freeze.
	ErrFrozen = errors.New("schema: catalog is frozen")
)
