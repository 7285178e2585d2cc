package zipcheck

import "github.com/pola2025/zipcheck-sub000/id"

// ID is the primary identifier type for all zipcheck entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
