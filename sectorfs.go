package sectorfs // import "github.com/keks/sectorfs"

import (
	"io"
)

// Basic Types

// ReadWriterAt is both a ReaderAt and a WriterAt.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// SectorID is the number of a sector on the device.
type SectorID int32

// NoSector marks an unused sector slot.
const NoSector SectorID = -1

// Geometry

const (
	// SectorSize is the size of a sector in bytes.
	SectorSize = 128

	// SectorIDSize is the on-disk size of a sector number.
	SectorIDSize = 4

	// SectorsPerList is the number of sector numbers in an index sector.
	SectorsPerList = SectorSize / SectorIDSize

	// HeaderFields is the number of int32 fields preceding the list table
	// in a file header (num_bytes, num_sectors, num_lists).
	HeaderFields = 3

	// MaxLists is the number of index sectors a file header can point to.
	MaxLists = (SectorSize - HeaderFields*SectorIDSize) / SectorIDSize

	// MaxFileSize is the largest file a header can describe.
	MaxFileSize = MaxLists * SectorsPerList * SectorSize

	// NameMax is the longest name a directory entry can hold.
	NameMax = 9

	// EntrySize is the on-disk size of a directory entry.
	EntrySize = 20

	// DefaultDirEntries is the default capacity of a directory table.
	DefaultDirEntries = 10

	// DefaultNumSectors is the default size of a device (32 tracks of 32 sectors).
	DefaultNumSectors = 32 * 32
)

// Well-known sectors.
const (
	SuperblockSector SectorID = 0
	RootSector       SectorID = 1
	FreeMapSector    SectorID = 2
)

// FreeMapSectors returns how many sectors a free map for numSectors needs.
func FreeMapSectors(numSectors int) int {
	bits := SectorSize * 8
	return (numSectors + bits - 1) / bits
}

// DivRoundUp divides n by s, rounding up.
func DivRoundUp(n, s int) int {
	return (n + s - 1) / s
}

// Block Layer

// Device is a fixed array of sectors. Transfers are synchronous and move
// exactly SectorSize bytes.
type Device interface {
	ReadSector(SectorID, []byte) error
	WriteSector(SectorID, []byte) error
	NumSectors() int
}

// FreeMap is the set of free sectors on a device.
type FreeMap interface {
	Test(SectorID) bool
	// FindAndSet marks the lowest free sector as used and returns it.
	FindAndSet() (SectorID, error)
	Clear(SectorID) error
	NumClear() int
}

// Directory Layer

// EntryType tags a directory entry.
type EntryType byte

const (
	// TypeFile marks a regular file.
	TypeFile EntryType = 'F'

	// TypeDir marks a directory.
	TypeDir EntryType = 'D'
)

func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	return t == TypeFile || t == TypeDir
}
