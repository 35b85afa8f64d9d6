// Package openfile turns a file header into a byte stream.
package openfile

import (
	"fmt"
	"io"

	"github.com/keks/sectorfs"
	"github.com/keks/sectorfs/filehdr"
)

// File is an open file. Files are not extensible: reads and writes are
// bounded by the length fixed at allocation.
type File struct {
	dev    sectorfs.Device
	sector sectorfs.SectorID
	hdr    *filehdr.Header

	// most recently used index sector
	cachedList sectorfs.SectorID
	cachedIdx  *filehdr.Index
}

var _ sectorfs.ReadWriterAt = (*File)(nil)

// Open opens the file whose header is stored at sector.
func Open(dev sectorfs.Device, sector sectorfs.SectorID) (*File, error) {
	hdr := filehdr.New(dev)
	if err := hdr.FetchFrom(sector); err != nil {
		return nil, err
	}

	return &File{
		dev:        dev,
		sector:     sector,
		hdr:        hdr,
		cachedList: sectorfs.NoSector,
	}, nil
}

// Sector returns the sector of the file's header.
func (f *File) Sector() sectorfs.SectorID { return f.sector }

// Header returns the file's header.
func (f *File) Header() *filehdr.Header { return f.hdr }

// Length returns the file length in bytes.
func (f *File) Length() int64 { return int64(f.hdr.FileLength()) }

func (f *File) byteToSector(off int) (sectorfs.SectorID, error) {
	list, j, err := f.hdr.ListFor(off)
	if err != nil {
		return sectorfs.NoSector, err
	}

	if list != f.cachedList {
		idx, err := filehdr.ReadIndex(f.dev, list)
		if err != nil {
			return sectorfs.NoSector, err
		}
		f.cachedList, f.cachedIdx = list, idx
	}

	return f.cachedIdx[j], nil
}

// bound trims a transfer of n bytes at off to the file length.
func (f *File) bound(n int, off int64) (int, bool) {
	max := f.Length() - off
	if int64(n) > max {
		return int(max), true
	}
	return n, false
}

func (f *File) ReadAt(dst []byte, off int64) (int, error) {
	if off < 0 || off >= f.Length() {
		return 0, io.EOF
	}

	want, retEOF := f.bound(len(dst), off)
	dst = dst[:want]

	buf := make([]byte, sectorfs.SectorSize)
	n := 0
	for n < len(dst) {
		pos := int(off) + n
		id, err := f.byteToSector(pos)
		if err != nil {
			return n, err
		}
		if err := f.dev.ReadSector(id, buf); err != nil {
			return n, fmt.Errorf("failed to read data sector %d: %w", id, err)
		}

		n += copy(dst[n:], buf[pos%sectorfs.SectorSize:])
	}

	// return EOF if the caller wanted to read beyond the end of the file
	if retEOF {
		return n, io.EOF
	}

	return n, nil
}

func (f *File) WriteAt(data []byte, off int64) (int, error) {
	if off < 0 || off >= f.Length() {
		return 0, io.EOF
	}

	want, retEOF := f.bound(len(data), off)
	data = data[:want]

	buf := make([]byte, sectorfs.SectorSize)
	n := 0
	for n < len(data) {
		pos := int(off) + n
		id, err := f.byteToSector(pos)
		if err != nil {
			return n, err
		}

		start := pos % sectorfs.SectorSize
		chunk := sectorfs.SectorSize - start
		if chunk > len(data)-n {
			chunk = len(data) - n
		}

		// partial sectors keep their other bytes
		if chunk < sectorfs.SectorSize {
			if err := f.dev.ReadSector(id, buf); err != nil {
				return n, fmt.Errorf("failed to read data sector %d: %w", id, err)
			}
		}

		copy(buf[start:], data[n:n+chunk])
		if err := f.dev.WriteSector(id, buf); err != nil {
			return n, fmt.Errorf("failed to write data sector %d: %w", id, err)
		}

		n += chunk
	}

	if retEOF {
		return n, io.EOF
	}

	return n, nil
}
