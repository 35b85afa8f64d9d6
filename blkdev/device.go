// Package blkdev implements a device of fixed-size sectors on top of an
// image held by any io.ReaderAt + io.WriterAt, usually an *os.File.
//
// The image starts with a small meta header recording the number of
// sectors and the sector size; sector k follows at DeviceMetaSize + k*SectorSize.
package blkdev

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/keks/sectorfs"
)

// DeviceMetaSize is the size of the image meta header in bytes.
const DeviceMetaSize = 8

var (
	// ErrSectorRange is returned for sector numbers outside the device.
	ErrSectorRange = errors.New("sector out of range")

	// ErrShortBuffer is returned when a transfer buffer is smaller than a sector.
	ErrShortBuffer = errors.New("buffer shorter than a sector")

	// ErrBadMeta is returned when an image's meta header cannot be used.
	ErrBadMeta = errors.New("bad device meta header")
)

type deviceMeta struct {
	NumSectors uint32
	SectorSize uint32
}

// Device is a sector device. Transfers are serialized.
type Device struct {
	l sync.Mutex

	lower sectorfs.ReadWriterAt

	numSectors int
}

var _ sectorfs.Device = (*Device)(nil)

// New formats rwa as a device of numSectors zeroed sectors.
func New(rwa sectorfs.ReadWriterAt, numSectors int) (*Device, error) {
	if numSectors <= 0 {
		return nil, fmt.Errorf("numSectors must be > 0, got %d: %w", numSectors, ErrBadMeta)
	}

	dev := &Device{
		lower:      rwa,
		numSectors: numSectors,
	}

	if err := dev.writeMeta(); err != nil {
		return nil, err
	}

	// writing the last sector makes the whole image exist, so reads of
	// untouched sectors return zeroes instead of EOF
	zero := make([]byte, sectorfs.SectorSize)
	if err := dev.WriteSector(sectorfs.SectorID(numSectors-1), zero); err != nil {
		return nil, err
	}

	return dev, nil
}

// Open opens a device previously formatted with New.
func Open(rwa sectorfs.ReadWriterAt) (*Device, error) {
	dev := &Device{
		lower: rwa,
	}

	return dev, dev.parseMeta()
}

func (dev *Device) writeMeta() error {
	meta := deviceMeta{
		NumSectors: uint32(dev.numSectors),
		SectorSize: sectorfs.SectorSize,
	}

	err := binary.Write(writerFromWriterAt(dev.lower, 0), binary.LittleEndian, &meta)
	if err != nil {
		return fmt.Errorf("writing device meta: %w", err)
	}

	return nil
}

func (dev *Device) parseMeta() error {
	var meta deviceMeta
	err := binary.Read(readerFromReaderAt(dev.lower, 0), binary.LittleEndian, &meta)
	if err != nil {
		return fmt.Errorf("reading device meta: %w", err)
	}

	if meta.SectorSize != sectorfs.SectorSize {
		return fmt.Errorf("sector size %d, want %d: %w", meta.SectorSize, sectorfs.SectorSize, ErrBadMeta)
	}
	if meta.NumSectors == 0 {
		return fmt.Errorf("zero sectors: %w", ErrBadMeta)
	}

	dev.numSectors = int(meta.NumSectors)

	return nil
}

// NumSectors returns the number of sectors on the device.
func (dev *Device) NumSectors() int {
	return dev.numSectors
}

// Sector returns a ReadWriterAt bounded to one sector.
func (dev *Device) Sector(id sectorfs.SectorID) (sectorfs.ReadWriterAt, error) {
	if id < 0 || int(id) >= dev.numSectors {
		return nil, fmt.Errorf("sector %d of %d: %w", id, dev.numSectors, ErrSectorRange)
	}

	return &sector{
		off:   DeviceMetaSize + int64(id)*sectorfs.SectorSize,
		lower: dev.lower,
	}, nil
}

// ReadSector reads sector id into the first SectorSize bytes of buf.
func (dev *Device) ReadSector(id sectorfs.SectorID, buf []byte) error {
	if len(buf) < sectorfs.SectorSize {
		return ErrShortBuffer
	}

	sec, err := dev.Sector(id)
	if err != nil {
		return err
	}

	dev.l.Lock()
	defer dev.l.Unlock()

	if _, err := sec.ReadAt(buf[:sectorfs.SectorSize], 0); err != nil {
		return fmt.Errorf("reading sector %d: %w", id, err)
	}

	return nil
}

// WriteSector writes the first SectorSize bytes of buf to sector id.
func (dev *Device) WriteSector(id sectorfs.SectorID, buf []byte) error {
	if len(buf) < sectorfs.SectorSize {
		return ErrShortBuffer
	}

	sec, err := dev.Sector(id)
	if err != nil {
		return err
	}

	dev.l.Lock()
	defer dev.l.Unlock()

	if _, err := sec.WriteAt(buf[:sectorfs.SectorSize], 0); err != nil {
		return fmt.Errorf("writing sector %d: %w", id, err)
	}

	return nil
}

// Sync flushes the lower layer if it supports it.
func (dev *Device) Sync() error {
	if syncer, ok := dev.lower.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return fmt.Errorf("syncing device: %w", err)
		}
	}

	return nil
}
