// Package filehdr implements the on-disk file header.
//
// A header occupies exactly one sector and records the length of a file
// together with up to MaxLists index sectors. Each index sector holds the
// numbers of up to SectorsPerList data sectors, so a byte offset maps to a
// data sector through a single level of indirection:
//
//	k = off / SectorSize
//	data sector = index[k / SectorsPerList][k % SectorsPerList]
//
// On disk a header is num_bytes, num_sectors and num_lists as little-endian
// int32, followed by MaxLists int32 index sector numbers.
package filehdr

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/keks/sectorfs"
)

// Header is the in-memory copy of a file header.
type Header struct {
	dev sectorfs.Device

	numBytes   int
	numSectors int
	numLists   int
	lists      [sectorfs.MaxLists]sectorfs.SectorID
}

// New returns an empty header that reads and writes through dev.
func New(dev sectorfs.Device) *Header {
	return &Header{dev: dev}
}

// FileLength returns the length of the file in bytes.
func (h *Header) FileLength() int { return h.numBytes }

// NumSectors returns the number of data sectors.
func (h *Header) NumSectors() int { return h.numSectors }

// NumLists returns the number of index sectors.
func (h *Header) NumLists() int { return h.numLists }

// Lists returns the index sector numbers in use, or nil if the header
// fails Validate.
func (h *Header) Lists() []sectorfs.SectorID {
	if h.Validate() != nil {
		return nil
	}
	lists := make([]sectorfs.SectorID, h.numLists)
	copy(lists, h.lists[:h.numLists])
	return lists
}

// listLen returns how many slots of list i hold data sectors.
func (h *Header) listLen(i int) int {
	n := h.numSectors - i*sectorfs.SectorsPerList
	if n > sectorfs.SectorsPerList {
		n = sectorfs.SectorsPerList
	}
	return n
}

// Allocate sizes the header for fileSize bytes and reserves its index and
// data sectors from fm. If fm has too few free sectors, ErrDiskFull is
// returned and neither the header nor fm are changed. Data sectors are not
// cleared.
func (h *Header) Allocate(fm sectorfs.FreeMap, fileSize int) error {
	if fileSize < 0 || fileSize > sectorfs.MaxFileSize {
		return fmt.Errorf("allocating %d bytes (max %d): %w", fileSize, sectorfs.MaxFileSize, sectorfs.ErrFileTooLarge)
	}

	numSectors := sectorfs.DivRoundUp(fileSize, sectorfs.SectorSize)
	numLists := sectorfs.DivRoundUp(numSectors, sectorfs.SectorsPerList)

	if fm.NumClear() < numSectors+numLists {
		return fmt.Errorf("need %d sectors, %d free: %w", numSectors+numLists, fm.NumClear(), sectorfs.ErrDiskFull)
	}

	var (
		lists [sectorfs.MaxLists]sectorfs.SectorID
		taken []sectorfs.SectorID
	)

	// give back what was taken if the device fails half way
	undo := func(err error) error {
		for _, id := range taken {
			_ = fm.Clear(id)
		}
		return err
	}

	for i := 0; i < numLists; i++ {
		listSector, err := fm.FindAndSet()
		if err != nil {
			return undo(fmt.Errorf("index sector %d: %w", i, err))
		}
		taken = append(taken, listSector)
		lists[i] = listSector

		n := numSectors - i*sectorfs.SectorsPerList
		if n > sectorfs.SectorsPerList {
			n = sectorfs.SectorsPerList
		}

		var idx Index
		for j := 0; j < n; j++ {
			dataSector, err := fm.FindAndSet()
			if err != nil {
				return undo(fmt.Errorf("data sector %d of list %d: %w", j, i, err))
			}
			taken = append(taken, dataSector)
			idx[j] = dataSector
		}

		if err := WriteIndex(h.dev, listSector, &idx); err != nil {
			return undo(err)
		}
	}

	h.numBytes = fileSize
	h.numSectors = numSectors
	h.numLists = numLists
	h.lists = lists

	return nil
}

// Deallocate returns the data and index sectors of the file to fm. The
// header's own sector belongs to the caller and is left alone. Every sector
// is checked before any is cleared, so on ErrCorrupt fm is unchanged.
func (h *Header) Deallocate(fm sectorfs.FreeMap) error {
	data, err := h.DataSectors()
	if err != nil {
		return err
	}

	seen := make(map[sectorfs.SectorID]bool, len(data)+h.numLists)
	check := func(id sectorfs.SectorID, what string) error {
		switch {
		case seen[id]:
			return fmt.Errorf("%s %d used twice: %w", what, id, sectorfs.ErrCorrupt)
		case !fm.Test(id):
			return fmt.Errorf("%s %d not allocated: %w", what, id, sectorfs.ErrCorrupt)
		}
		seen[id] = true
		return nil
	}

	for _, id := range h.lists[:h.numLists] {
		if err := check(id, "index sector"); err != nil {
			return err
		}
	}
	for _, id := range data {
		if err := check(id, "data sector"); err != nil {
			return err
		}
	}

	for _, id := range data {
		if err := fm.Clear(id); err != nil {
			return err
		}
	}
	for _, id := range h.lists[:h.numLists] {
		if err := fm.Clear(id); err != nil {
			return err
		}
	}

	return nil
}

func (h *Header) marshal() []byte {
	buf := make([]byte, sectorfs.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(h.numBytes)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(h.numSectors)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(int32(h.numLists)))

	off := sectorfs.HeaderFields * sectorfs.SectorIDSize
	for i, id := range h.lists {
		binary.LittleEndian.PutUint32(buf[off+i*sectorfs.SectorIDSize:], uint32(id))
	}

	return buf
}

func (h *Header) unmarshal(buf []byte) {
	h.numBytes = int(int32(binary.LittleEndian.Uint32(buf[0:])))
	h.numSectors = int(int32(binary.LittleEndian.Uint32(buf[4:])))
	h.numLists = int(int32(binary.LittleEndian.Uint32(buf[8:])))

	off := sectorfs.HeaderFields * sectorfs.SectorIDSize
	for i := range h.lists {
		h.lists[i] = sectorfs.SectorID(binary.LittleEndian.Uint32(buf[off+i*sectorfs.SectorIDSize:]))
	}
}

// FetchFrom loads the header stored at sector.
func (h *Header) FetchFrom(sector sectorfs.SectorID) error {
	buf := make([]byte, sectorfs.SectorSize)
	if err := h.dev.ReadSector(sector, buf); err != nil {
		return fmt.Errorf("failed to read file header %d: %w", sector, err)
	}

	h.unmarshal(buf)
	return nil
}

// WriteBack stores the header at sector.
func (h *Header) WriteBack(sector sectorfs.SectorID) error {
	if err := h.dev.WriteSector(sector, h.marshal()); err != nil {
		return fmt.Errorf("failed to write file header %d: %w", sector, err)
	}
	return nil
}

// Validate checks that the counts in the header agree with each other and
// that the index sectors in use lie on the device.
func (h *Header) Validate() error {
	switch {
	case h.numBytes < 0 || h.numBytes > sectorfs.MaxFileSize:
		return fmt.Errorf("file length %d: %w", h.numBytes, sectorfs.ErrCorrupt)
	case h.numLists < 0 || h.numLists > sectorfs.MaxLists:
		return fmt.Errorf("%d lists (max %d): %w", h.numLists, sectorfs.MaxLists, sectorfs.ErrCorrupt)
	case h.numSectors != sectorfs.DivRoundUp(h.numBytes, sectorfs.SectorSize):
		return fmt.Errorf("%d sectors for %d bytes: %w", h.numSectors, h.numBytes, sectorfs.ErrCorrupt)
	case h.numLists != sectorfs.DivRoundUp(h.numSectors, sectorfs.SectorsPerList):
		return fmt.Errorf("%d lists for %d sectors: %w", h.numLists, h.numSectors, sectorfs.ErrCorrupt)
	}

	if h.dev == nil {
		return nil
	}
	for i, id := range h.lists[:h.numLists] {
		if id < 0 || int(id) >= h.dev.NumSectors() {
			return fmt.Errorf("list %d at sector %d of %d: %w", i, id, h.dev.NumSectors(), sectorfs.ErrCorrupt)
		}
	}
	return nil
}

// ListFor returns the index sector and slot holding the data sector for off.
func (h *Header) ListFor(off int) (sectorfs.SectorID, int, error) {
	if off < 0 || off >= h.numBytes {
		return sectorfs.NoSector, 0, fmt.Errorf("offset %d in file of %d bytes: %w", off, h.numBytes, sectorfs.ErrOffsetRange)
	}
	if err := h.Validate(); err != nil {
		return sectorfs.NoSector, 0, err
	}

	k := off / sectorfs.SectorSize
	i := k / sectorfs.SectorsPerList
	if i >= h.numLists {
		return sectorfs.NoSector, 0, fmt.Errorf("list %d of %d: %w", i, h.numLists, sectorfs.ErrCorrupt)
	}

	return h.lists[i], k % sectorfs.SectorsPerList, nil
}

// ByteToSector returns the data sector holding byte off of the file.
func (h *Header) ByteToSector(off int) (sectorfs.SectorID, error) {
	list, j, err := h.ListFor(off)
	if err != nil {
		return sectorfs.NoSector, err
	}

	idx, err := ReadIndex(h.dev, list)
	if err != nil {
		return sectorfs.NoSector, err
	}

	return idx[j], nil
}

// DataSectors returns every data sector of the file in file order.
func (h *Header) DataSectors() ([]sectorfs.SectorID, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}

	sectors := make([]sectorfs.SectorID, 0, h.numSectors)
	for i := 0; i < h.numLists; i++ {
		idx, err := ReadIndex(h.dev, h.lists[i])
		if err != nil {
			return nil, err
		}
		sectors = append(sectors, idx[:h.listLen(i)]...)
	}
	return sectors, nil
}

// Print writes the header and the file contents to w, printable ASCII as
// is and everything else as a hex escape.
func (h *Header) Print(w io.Writer) error {
	if err := h.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(w, "FileHeader contents.  File size: %d.  List blocks:\n", h.numBytes)
	for _, id := range h.lists[:h.numLists] {
		fmt.Fprintf(w, "%d ", id)
	}
	fmt.Fprintln(w)

	data := make([]byte, sectorfs.SectorSize)
	printed := 0
	for i := 0; i < h.numLists; i++ {
		idx, err := ReadIndex(h.dev, h.lists[i])
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "File contents in list %d, Sector %d:\n", i, h.lists[i])
		for j := 0; j < h.listLen(i); j++ {
			if err := h.dev.ReadSector(idx[j], data); err != nil {
				return fmt.Errorf("failed to read data sector %d: %w", idx[j], err)
			}

			for k := 0; k < sectorfs.SectorSize && printed < h.numBytes; k, printed = k+1, printed+1 {
				if '\040' <= data[k] && data[k] <= '\176' {
					fmt.Fprintf(w, "%c", data[k])
				} else {
					fmt.Fprintf(w, "\\%x", data[k])
				}
			}
			fmt.Fprintln(w)
		}
	}

	return nil
}
