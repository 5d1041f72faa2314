package repository

import "errors"

var (
	ErrComponentNotFound = errors.New("component not found")

	ErrDuplicateComponent = errors.New("component is already registered")

	ErrVersionMismatch = errors.New("plugin version requirements are not met")

	ErrMissingInitialize = errors.New("plugin does not export Initialize")
)
