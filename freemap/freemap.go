// Package freemap keeps track of which sectors of a device are in use.
//
// The map is a plain bitmap, one bit per sector, persisted in consecutive
// sectors starting at a well-known sector. Bit k lives in byte k/8 at
// position k%8; a set bit means the sector is allocated.
package freemap

import (
	"bytes"
	"fmt"

	"github.com/keks/sectorfs"
)

// Map is an in-memory free-sector bitmap.
type Map struct {
	bits       []byte
	numSectors int
}

var _ sectorfs.FreeMap = (*Map)(nil)

// New returns a map of numSectors clear bits.
func New(numSectors int) *Map {
	return &Map{
		bits:       make([]byte, sectorfs.FreeMapSectors(numSectors)*sectorfs.SectorSize),
		numSectors: numSectors,
	}
}

// NumSectors returns the number of sectors tracked by the map.
func (m *Map) NumSectors() int {
	return m.numSectors
}

func (m *Map) inRange(id sectorfs.SectorID) bool {
	return id >= 0 && int(id) < m.numSectors
}

// Mark sets the bit for id.
func (m *Map) Mark(id sectorfs.SectorID) error {
	if !m.inRange(id) {
		return fmt.Errorf("mark sector %d of %d: %w", id, m.numSectors, sectorfs.ErrCorrupt)
	}

	m.bits[id/8] |= 1 << (uint(id) % 8)
	return nil
}

// Test reports whether id is allocated. Out of range sectors are never allocated.
func (m *Map) Test(id sectorfs.SectorID) bool {
	if !m.inRange(id) {
		return false
	}

	return m.bits[id/8]&(1<<(uint(id)%8)) != 0
}

// Clear frees id. Freeing a sector that is not allocated is corruption.
func (m *Map) Clear(id sectorfs.SectorID) error {
	if !m.Test(id) {
		return fmt.Errorf("freeing unallocated sector %d: %w", id, sectorfs.ErrCorrupt)
	}

	m.bits[id/8] &^= 1 << (uint(id) % 8)
	return nil
}

// FindAndSet allocates the lowest free sector.
func (m *Map) FindAndSet() (sectorfs.SectorID, error) {
	for i := 0; i < m.numSectors; i++ {
		if i%8 == 0 && m.bits[i/8] == 0xff {
			i += 7
			continue
		}

		id := sectorfs.SectorID(i)
		if !m.Test(id) {
			m.bits[i/8] |= 1 << (uint(i) % 8)
			return id, nil
		}
	}

	return sectorfs.NoSector, sectorfs.ErrDiskFull
}

// NumClear returns the number of free sectors.
func (m *Map) NumClear() int {
	n := 0
	for i := 0; i < m.numSectors; i++ {
		if !m.Test(sectorfs.SectorID(i)) {
			n++
		}
	}
	return n
}

// FetchFrom loads the map from the sectors starting at first.
func (m *Map) FetchFrom(dev sectorfs.Device, first sectorfs.SectorID) error {
	for i := 0; i < len(m.bits)/sectorfs.SectorSize; i++ {
		id := first + sectorfs.SectorID(i)
		chunk := m.bits[i*sectorfs.SectorSize : (i+1)*sectorfs.SectorSize]
		if err := dev.ReadSector(id, chunk); err != nil {
			return fmt.Errorf("failed to read free map sector %d: %w", id, err)
		}
	}

	return nil
}

// WriteBack persists the map to the sectors starting at first.
func (m *Map) WriteBack(dev sectorfs.Device, first sectorfs.SectorID) error {
	for i := 0; i < len(m.bits)/sectorfs.SectorSize; i++ {
		id := first + sectorfs.SectorID(i)
		chunk := m.bits[i*sectorfs.SectorSize : (i+1)*sectorfs.SectorSize]
		if err := dev.WriteSector(id, chunk); err != nil {
			return fmt.Errorf("failed to write free map sector %d: %w", id, err)
		}
	}

	return nil
}

// Clone returns an independent copy of the map.
func (m *Map) Clone() *Map {
	bits := make([]byte, len(m.bits))
	copy(bits, m.bits)

	return &Map{
		bits:       bits,
		numSectors: m.numSectors,
	}
}

// Equal reports whether both maps track the same sectors with the same bits.
func (m *Map) Equal(o *Map) bool {
	return m.numSectors == o.numSectors && bytes.Equal(m.bits, o.bits)
}
