package suggest

import "errors"

var (
	// ErrInvalidValue is returned for blank or whitespace-only values.
	ErrInvalidValue = errors.New("suggest: value must not be blank")

	// ErrUnknownFieldType is returned for field types outside the closed set.
	ErrUnknownFieldType = errors.New("suggest: unknown field type")

	// ErrInvalidTenant is returned when no tenant is given.
	ErrInvalidTenant = errors.New("suggest: tenant must not be empty")

	// ErrStorageUnavailable wraps every failure of the underlying store.
	ErrStorageUnavailable = errors.New("suggest: storage unavailable")

	// ErrTenantMismatch means a store returned a row outside the requested
	// scope. It indicates a broken Store implementation.
	ErrTenantMismatch = errors.New("suggest: store returned a row from another scope")
)
