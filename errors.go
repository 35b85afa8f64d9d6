package sectorfs

import "errors"

var (
	// ErrNotFound is returned when a path component does not resolve.
	ErrNotFound = errors.New("name not found")

	// ErrExists is returned when adding a name that is already present.
	ErrExists = errors.New("name exists")

	// ErrDirFull is returned when a directory table has no free slot.
	ErrDirFull = errors.New("directory full")

	// ErrDiskFull is returned when the free map cannot satisfy an allocation.
	ErrDiskFull = errors.New("disk full")

	// ErrCorrupt is returned when an on-disk invariant is violated. The
	// filesystem must not be written to after seeing it.
	ErrCorrupt = errors.New("filesystem corrupt")

	ErrNameTooLong   = errors.New("name too long")
	ErrNotDir        = errors.New("not a directory")
	ErrDirNotEmpty   = errors.New("directory not empty")
	ErrBadPath       = errors.New("bad path")
	ErrBadType       = errors.New("bad entry type")
	ErrFileTooLarge  = errors.New("file too large")
	ErrOffsetRange   = errors.New("offset out of range")
	ErrBadSuperblock = errors.New("bad superblock")
)
