// Package directory implements fixed-size directory tables.
//
// A directory is an array of entries stored as the content of an ordinary
// file. Entries name a child and the sector of its file header; a child of
// type TypeDir holds another table of the same capacity, so directories
// nest. Tables never grow.
package directory

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/keks/sectorfs"
	"github.com/keks/sectorfs/filehdr"
	"github.com/keks/sectorfs/openfile"
)

// Directory is an in-memory directory table.
type Directory struct {
	dev   sectorfs.Device
	table []entry
}

// New returns an empty table of capacity entries.
func New(dev sectorfs.Device, capacity int) *Directory {
	return &Directory{
		dev:   dev,
		table: make([]entry, capacity),
	}
}

// FileSize returns the size of the file holding a table of capacity entries.
func FileSize(capacity int) int {
	return capacity * sectorfs.EntrySize
}

// Load opens the directory whose header lives at sector.
func Load(dev sectorfs.Device, sector sectorfs.SectorID, capacity int) (*Directory, *openfile.File, error) {
	f, err := openfile.Open(dev, sector)
	if err != nil {
		return nil, nil, err
	}

	if f.Length() != int64(FileSize(capacity)) {
		return nil, nil, fmt.Errorf("directory at sector %d is %d bytes, want %d: %w",
			sector, f.Length(), FileSize(capacity), sectorfs.ErrCorrupt)
	}

	d := New(dev, capacity)
	if err := d.FetchFrom(f); err != nil {
		return nil, nil, err
	}

	return d, f, nil
}

// Capacity returns the number of slots in the table.
func (d *Directory) Capacity() int {
	return len(d.table)
}

// FetchFrom reads the table from offset 0 of r.
func (d *Directory) FetchFrom(r io.ReaderAt) error {
	buf := make([]byte, FileSize(len(d.table)))
	n, err := r.ReadAt(buf, 0)
	if err == io.EOF && n == len(buf) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for i := range d.table {
		d.table[i].unmarshal(buf[i*sectorfs.EntrySize:])
	}

	return nil
}

// WriteBack writes the table to offset 0 of w.
func (d *Directory) WriteBack(w io.WriterAt) error {
	buf := make([]byte, FileSize(len(d.table)))
	for i := range d.table {
		d.table[i].marshal(buf[i*sectorfs.EntrySize:])
	}

	if _, err := w.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("failed to write directory: %w", err)
	}

	return nil
}

// FindIndex returns the slot of the in-use entry called name, or -1.
func (d *Directory) FindIndex(name string) int {
	for i := range d.table {
		if d.table[i].inUse && d.table[i].matches(name) {
			return i
		}
	}
	return -1
}

func (d *Directory) entryAt(i int) Entry {
	e := &d.table[i]
	return Entry{
		Index:  i,
		InUse:  e.inUse,
		Name:   e.nameString(),
		Sector: e.sector,
		Type:   e.typ,
	}
}

// Entries returns the in-use entries in slot order.
func (d *Directory) Entries() []Entry {
	var entries []Entry
	for i := range d.table {
		if d.table[i].inUse {
			entries = append(entries, d.entryAt(i))
		}
	}
	return entries
}

// IsEmpty reports whether no slot is in use.
func (d *Directory) IsEmpty() bool {
	for i := range d.table {
		if d.table[i].inUse {
			return false
		}
	}
	return true
}

// insert puts the entry into the lowest free slot.
func (d *Directory) insert(name string, sector sectorfs.SectorID, typ sectorfs.EntryType) error {
	for i := range d.table {
		e := &d.table[i]
		if e.inUse {
			continue
		}

		e.inUse = true
		e.setName(name)
		e.sector = sector
		e.typ = typ
		return nil
	}

	return fmt.Errorf("adding %q: %w", name, sectorfs.ErrDirFull)
}

// target returns the table holding leaf entries of parent: d itself for an
// empty parent, otherwise the loaded parent directory and its file.
func (d *Directory) target(parent string) (*Directory, *openfile.File, error) {
	if parent == "" {
		return d, nil, nil
	}

	e, err := d.Lookup(parent)
	if err != nil {
		return nil, nil, err
	}
	if e.Type != sectorfs.TypeDir {
		return nil, nil, fmt.Errorf("%q: %w", parent, sectorfs.ErrNotDir)
	}

	return Load(d.dev, e.Sector, d.Capacity())
}

// Add registers sector under path. Names directly below d go into d and
// are persisted by the caller; deeper names are written to their parent
// directory on disk.
func (d *Directory) Add(path string, sector sectorfs.SectorID, typ sectorfs.EntryType) error {
	if !typ.Valid() {
		return fmt.Errorf("adding %q: entry type %q: %w", path, byte(typ), sectorfs.ErrBadType)
	}

	parent, leaf, err := split(path)
	if err != nil {
		return err
	}

	_, err = d.Find(path)
	if err == nil {
		return fmt.Errorf("%q: %w", path, sectorfs.ErrExists)
	}
	if !errors.Is(err, sectorfs.ErrNotFound) {
		return err
	}

	dir, f, err := d.target(parent)
	if err != nil {
		return err
	}

	if err := dir.insert(leaf, sector, typ); err != nil {
		return err
	}

	if f != nil {
		return dir.WriteBack(f)
	}
	return nil
}

// Remove frees the slot of path. The entry's sectors are not released.
func (d *Directory) Remove(path string) error {
	if _, err := d.Find(path); err != nil {
		return err
	}

	parent, leaf, err := split(path)
	if err != nil {
		return err
	}

	dir, f, err := d.target(parent)
	if err != nil {
		return err
	}

	i := dir.FindIndex(leaf)
	if i < 0 {
		return fmt.Errorf("%q: %w", path, sectorfs.ErrNotFound)
	}
	dir.table[i].inUse = false

	if f != nil {
		return dir.WriteBack(f)
	}
	return nil
}

func writeEntry(w io.Writer, depth int, e Entry) {
	fmt.Fprintf(w, "%s[Entry No.%d]: %s %c\n", strings.Repeat(" ", depth*8), e.Index, e.Name, byte(e.Type))
}

// List writes one line per in-use entry.
func (d *Directory) List(w io.Writer) {
	for _, e := range d.Entries() {
		writeEntry(w, 0, e)
	}
}

// RecursiveList is List descending into subdirectories, indenting each
// level by eight spaces.
func (d *Directory) RecursiveList(w io.Writer, depth int) error {
	for _, e := range d.Entries() {
		writeEntry(w, depth, e)
		if e.Type != sectorfs.TypeDir {
			continue
		}

		sub, _, err := Load(d.dev, e.Sector, d.Capacity())
		if err != nil {
			return err
		}
		if err := sub.RecursiveList(w, depth+1); err != nil {
			return err
		}
	}

	return nil
}

// Print dumps every entry together with its file header and contents.
func (d *Directory) Print(w io.Writer) error {
	fmt.Fprintln(w, "Directory contents:")

	hdr := filehdr.New(d.dev)
	for _, e := range d.Entries() {
		fmt.Fprintf(w, "Name: %s, Sector: %d\n", e.Name, e.Sector)
		if err := hdr.FetchFrom(e.Sector); err != nil {
			return err
		}
		if err := hdr.Print(w); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)

	return nil
}
