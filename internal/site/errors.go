package site

import "errors"

var (
	// ErrTenantNotFound is returned when no primary tenant has been configured.
	ErrTenantNotFound = errors.New("site: tenant not found")

	// ErrSettingNotFound is returned when a settings key has never been written.
	ErrSettingNotFound = errors.New("site: setting not found")

	// ErrInvalidTenant is returned when a tenant is missing its ID or name.
	ErrInvalidTenant = errors.New("site: invalid tenant")
)
