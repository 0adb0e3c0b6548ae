package gdd

import "errors"

var (
	// ErrNoConvert is returned when a value cannot be represented in the
	// requested type (NaN to integer, unparsable text, container to scalar).
	ErrNoConvert = errors.New("gdd: no conversion")

	// ErrShape is returned when scalar and array shapes, or array lengths,
	// are incompatible.
	ErrShape = errors.New("gdd: shape mismatch")

	// ErrEnumIndexRange is returned for an enum index with no table entry.
	ErrEnumIndexRange = errors.New("gdd: enum index out of range")

	// ErrEnumTableFull is returned when a table would exceed MaxEnumStrings.
	ErrEnumTableFull = errors.New("gdd: enum string table full")

	// ErrNotAllocated is returned when referencing or releasing a GDD whose
	// storage has already been freed.
	ErrNotAllocated = errors.New("gdd: not allocated")

	// ErrBadType is returned for operations on the wrong primitive type.
	ErrBadType = errors.New("gdd: bad type")

	// ErrNotContainer is returned when a container operation targets a leaf.
	ErrNotContainer = errors.New("gdd: not a container")

	// ErrUnknownTag is returned when an application tag is not registered.
	ErrUnknownTag = errors.New("gdd: unknown application tag")
)
