package suggest

import "context"

// Store is durable access to suggestion entries, scoped by tenant and field type.
//
// Implementations must wrap persistence failures with ErrStorageUnavailable
// and must be safe for concurrent use.
type Store interface {
	// Upsert increments the entry's frequency and refreshes last_used, or
	// inserts it with frequency 1. It is atomic per key and returns the
	// post-write entry.
	Upsert(ctx context.Context, tenant TenantID, field FieldType, value string) (Entry, error)

	// List returns every entry in the scope, in no particular order.
	List(ctx context.Context, tenant TenantID, field FieldType) ([]Entry, error)

	// Delete removes one entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, tenant TenantID, field FieldType, value string) error

	// Count returns the number of entries in the scope.
	Count(ctx context.Context, tenant TenantID, field FieldType) (int, error)
}

// ValueSource enumerates historical values recorded outside the cache,
// typically the fields of existing inventory items.
type ValueSource interface {
	ExistingValues(ctx context.Context, tenant TenantID, field FieldType) ([]string, error)
}
