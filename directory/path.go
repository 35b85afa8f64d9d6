package directory

import (
	"fmt"
	"strings"

	"github.com/keks/sectorfs"
)

// Paths are absolute and slash separated, e.g. "/d/x". Every component
// must be non-empty; "/" alone names no entry.

// components splits path into its names.
func components(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") || len(path) < 2 {
		return nil, fmt.Errorf("%q: %w", path, sectorfs.ErrBadPath)
	}

	names := strings.Split(path[1:], "/")
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("%q: empty component: %w", path, sectorfs.ErrBadPath)
		}
		if len(name) > sectorfs.NameMax {
			return nil, fmt.Errorf("%q: %q longer than %d bytes: %w", path, name, sectorfs.NameMax, sectorfs.ErrNameTooLong)
		}
	}

	return names, nil
}

// split cuts path at its final slash. A path directly below the current
// directory has an empty parent.
func split(path string) (parent, leaf string, err error) {
	if _, err := components(path); err != nil {
		return "", "", err
	}

	i := strings.LastIndexByte(path, '/')
	return path[:i], path[i+1:], nil
}

// Lookup resolves path one component at a time, starting at d, and
// returns the entry the last component names.
func (d *Directory) Lookup(path string) (Entry, error) {
	names, err := components(path)
	if err != nil {
		return Entry{}, err
	}

	cur := d
	for i, name := range names {
		idx := cur.FindIndex(name)
		if idx < 0 {
			return Entry{}, fmt.Errorf("%q: %w", path, sectorfs.ErrNotFound)
		}

		e := cur.entryAt(idx)
		if i == len(names)-1 {
			return e, nil
		}

		if e.Type != sectorfs.TypeDir {
			return Entry{}, fmt.Errorf("%q: %s: %w", path, name, sectorfs.ErrNotDir)
		}

		cur, _, err = Load(d.dev, e.Sector, d.Capacity())
		if err != nil {
			return Entry{}, err
		}
	}

	panic("unreachable")
}

// Find returns the header sector of the file or directory path names.
func (d *Directory) Find(path string) (sectorfs.SectorID, error) {
	e, err := d.Lookup(path)
	if err != nil {
		return sectorfs.NoSector, err
	}
	return e.Sector, nil
}
