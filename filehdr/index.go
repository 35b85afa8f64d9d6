package filehdr

import (
	"encoding/binary"
	"fmt"

	"github.com/keks/sectorfs"
)

// Index is the content of an index sector: the sector numbers of up to
// SectorsPerList data sectors. Unused slots are zero.
type Index [sectorfs.SectorsPerList]sectorfs.SectorID

func (idx *Index) marshal() []byte {
	buf := make([]byte, sectorfs.SectorSize)
	for j, id := range idx {
		binary.LittleEndian.PutUint32(buf[j*sectorfs.SectorIDSize:], uint32(id))
	}
	return buf
}

func (idx *Index) unmarshal(buf []byte) {
	for j := range idx {
		idx[j] = sectorfs.SectorID(binary.LittleEndian.Uint32(buf[j*sectorfs.SectorIDSize:]))
	}
}

// ReadIndex reads the index sector at id.
func ReadIndex(dev sectorfs.Device, id sectorfs.SectorID) (*Index, error) {
	buf := make([]byte, sectorfs.SectorSize)
	if err := dev.ReadSector(id, buf); err != nil {
		return nil, fmt.Errorf("failed to read index sector %d: %w", id, err)
	}

	idx := new(Index)
	idx.unmarshal(buf)
	return idx, nil
}

// WriteIndex writes idx to the index sector at id.
func WriteIndex(dev sectorfs.Device, id sectorfs.SectorID, idx *Index) error {
	if err := dev.WriteSector(id, idx.marshal()); err != nil {
		return fmt.Errorf("failed to write index sector %d: %w", id, err)
	}
	return nil
}
