package directory

import (
	"bytes"
	"encoding/binary"

	"github.com/keks/sectorfs"
)

// On-disk entry layout, little-endian, EntrySize bytes:
//
//	0   in_use   u8
//	1   name     [NameMax+1]u8, NUL padded
//	11  pad      u8
//	12  sector   i32
//	16  type     u8
//	17  pad      [3]u8
const (
	offInUse  = 0
	offName   = 1
	offSector = 12
	offType   = 16
)

// Entry is one row of a directory table.
type Entry struct {
	Index  int
	InUse  bool
	Name   string
	Sector sectorfs.SectorID
	Type   sectorfs.EntryType
}

type entry struct {
	inUse  bool
	name   [sectorfs.NameMax + 1]byte
	sector sectorfs.SectorID
	typ    sectorfs.EntryType
}

func (e *entry) nameString() string {
	n := bytes.IndexByte(e.name[:], 0)
	if n < 0 {
		n = len(e.name)
	}
	return string(e.name[:n])
}

// setName copies name into the entry, NUL padded. Callers check the length.
func (e *entry) setName(name string) {
	e.name = [sectorfs.NameMax + 1]byte{}
	copy(e.name[:sectorfs.NameMax], name)
}

// matches compares name against the entry, bounded to NameMax bytes.
func (e *entry) matches(name string) bool {
	if len(name) > sectorfs.NameMax {
		name = name[:sectorfs.NameMax]
	}
	return e.nameString() == name
}

func (e *entry) marshal(buf []byte) {
	for i := range buf[:sectorfs.EntrySize] {
		buf[i] = 0
	}
	if e.inUse {
		buf[offInUse] = 1
	}
	copy(buf[offName:offName+len(e.name)], e.name[:])
	binary.LittleEndian.PutUint32(buf[offSector:], uint32(e.sector))
	buf[offType] = byte(e.typ)
}

func (e *entry) unmarshal(buf []byte) {
	e.inUse = buf[offInUse] != 0
	copy(e.name[:], buf[offName:offName+len(e.name)])
	e.sector = sectorfs.SectorID(binary.LittleEndian.Uint32(buf[offSector:]))
	e.typ = sectorfs.EntryType(buf[offType])
}
