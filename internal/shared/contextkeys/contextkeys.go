package contextkeys

// contextKey is an unexported type to prevent collisions with context keys
// defined in other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "ckan-migrate context key " + string(c)
}

// RunIDKey is the key for the migration run identifier in context.Context
const RunIDKey = contextKey("runID")

// PhaseKey is the key for the current migration phase in context.Context
const PhaseKey = contextKey("phase")

// EntityKindKey is the key for the entity kind being processed in context.Context
const EntityKindKey = contextKey("entityKind")

// EntityIDKey is the key for the source-side entity identifier in context.Context
const EntityIDKey = contextKey("entityID")

// ComponentKey is the key for the component name in context.Context
const ComponentKey = contextKey("component")

// OperationKey is the key for the operation name in context.Context
const OperationKey = contextKey("operation")
