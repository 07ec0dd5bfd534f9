package iap

import "github.com/xraph/iap/id"

// ID is the identifier type of flows, events and history records.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
