package domain

import "errors"

var (
	// ErrResourceNotFound means a region's raster image is missing.
	ErrResourceNotFound = errors.New("raster resource not found")

	// ErrDecode means a region's raster image could not be decoded.
	ErrDecode = errors.New("raster decode failed")

	// ErrInvalidQuery means a site query failed validation.
	ErrInvalidQuery = errors.New("invalid site query")
)
