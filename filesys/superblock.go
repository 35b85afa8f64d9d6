package filesys

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/keks/sectorfs"
)

const (
	magic   = "SECTORFS"
	version = 1
)

// superblock is stored at SuperblockSector.
type superblock struct {
	Magic          [8]byte
	Version        uint32
	SectorSize     uint32
	NumSectors     uint32
	DirEntries     uint32
	RootSector     int32
	FreeMapSector  int32
	FreeMapSectors uint32
	VolumeID       uuid.UUID
}

func newSuperblock(cfg config) superblock {
	sb := superblock{
		Version:        version,
		SectorSize:     sectorfs.SectorSize,
		NumSectors:     uint32(cfg.numSectors),
		DirEntries:     uint32(cfg.dirEntries),
		RootSector:     int32(sectorfs.RootSector),
		FreeMapSector:  int32(sectorfs.FreeMapSector),
		FreeMapSectors: uint32(sectorfs.FreeMapSectors(cfg.numSectors)),
		VolumeID:       cfg.volumeID,
	}
	copy(sb.Magic[:], magic)
	return sb
}

func (sb *superblock) writeTo(dev sectorfs.Device) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, sb); err != nil {
		return fmt.Errorf("encoding superblock: %w", err)
	}

	sec := make([]byte, sectorfs.SectorSize)
	copy(sec, buf.Bytes())
	if err := dev.WriteSector(sectorfs.SuperblockSector, sec); err != nil {
		return fmt.Errorf("failed to write superblock: %w", err)
	}

	return nil
}

func (sb *superblock) readFrom(dev sectorfs.Device) error {
	sec := make([]byte, sectorfs.SectorSize)
	if err := dev.ReadSector(sectorfs.SuperblockSector, sec); err != nil {
		return fmt.Errorf("failed to read superblock: %w", err)
	}

	if err := binary.Read(bytes.NewReader(sec), binary.LittleEndian, sb); err != nil {
		return fmt.Errorf("decoding superblock: %w", err)
	}

	return nil
}

func (sb *superblock) validate(dev sectorfs.Device) error {
	switch {
	case string(sb.Magic[:]) != magic:
		return fmt.Errorf("magic %q: %w", sb.Magic[:], sectorfs.ErrBadSuperblock)
	case sb.Version != version:
		return fmt.Errorf("version %d: %w", sb.Version, sectorfs.ErrBadSuperblock)
	case sb.SectorSize != sectorfs.SectorSize:
		return fmt.Errorf("sector size %d: %w", sb.SectorSize, sectorfs.ErrBadSuperblock)
	case int(sb.NumSectors) != dev.NumSectors():
		return fmt.Errorf("%d sectors on a device of %d: %w", sb.NumSectors, dev.NumSectors(), sectorfs.ErrBadSuperblock)
	case sb.RootSector != int32(sectorfs.RootSector) || sb.FreeMapSector != int32(sectorfs.FreeMapSector):
		return fmt.Errorf("root %d, free map %d: %w", sb.RootSector, sb.FreeMapSector, sectorfs.ErrBadSuperblock)
	case int(sb.FreeMapSectors) != sectorfs.FreeMapSectors(int(sb.NumSectors)):
		return fmt.Errorf("%d free map sectors: %w", sb.FreeMapSectors, sectorfs.ErrBadSuperblock)
	case sb.DirEntries == 0:
		return fmt.Errorf("zero directory entries: %w", sectorfs.ErrBadSuperblock)
	}
	return nil
}
