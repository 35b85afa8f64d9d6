package filesys

import (
	"fmt"

	"github.com/keks/sectorfs"
	"github.com/keks/sectorfs/directory"
	"github.com/keks/sectorfs/filehdr"
)

// checker walks the tree and records which file owns each sector.
type checker struct {
	fs    *FileSystem
	owner map[sectorfs.SectorID]string
}

func (c *checker) claim(id sectorfs.SectorID, who string) error {
	if !c.fs.fm.Test(id) {
		return fmt.Errorf("sector %d of %s is not allocated: %w", id, who, sectorfs.ErrCorrupt)
	}
	if prev, ok := c.owner[id]; ok {
		return fmt.Errorf("sector %d used by %s and %s: %w", id, prev, who, sectorfs.ErrCorrupt)
	}
	c.owner[id] = who
	return nil
}

// file claims the header, index and data sectors of the file at sector.
func (c *checker) file(sector sectorfs.SectorID, who string) (*filehdr.Header, error) {
	if err := c.claim(sector, who); err != nil {
		return nil, err
	}

	hdr := filehdr.New(c.fs.dev)
	if err := hdr.FetchFrom(sector); err != nil {
		return nil, err
	}
	if err := hdr.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", who, err)
	}

	for _, id := range hdr.Lists() {
		if err := c.claim(id, who); err != nil {
			return nil, err
		}
	}

	data, err := hdr.DataSectors()
	if err != nil {
		return nil, err
	}
	for _, id := range data {
		if err := c.claim(id, who); err != nil {
			return nil, err
		}
	}

	return hdr, nil
}

func (c *checker) dir(sector sectorfs.SectorID, path string) error {
	hdr, err := c.file(sector, path)
	if err != nil {
		return err
	}
	if hdr.FileLength() != directory.FileSize(c.fs.dirEntries()) {
		return fmt.Errorf("directory %s is %d bytes: %w", path, hdr.FileLength(), sectorfs.ErrCorrupt)
	}

	d, _, err := directory.Load(c.fs.dev, sector, c.fs.dirEntries())
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	for _, e := range d.Entries() {
		child := path + e.Name
		if path != "/" {
			child = path + "/" + e.Name
		}

		switch {
		case e.Name == "":
			return fmt.Errorf("%s: entry %d has no name: %w", path, e.Index, sectorfs.ErrCorrupt)
		case seen[e.Name]:
			return fmt.Errorf("%s: duplicate name: %w", child, sectorfs.ErrCorrupt)
		case !e.Type.Valid():
			return fmt.Errorf("%s: entry type %q: %w", child, byte(e.Type), sectorfs.ErrCorrupt)
		}
		seen[e.Name] = true

		if e.Type == sectorfs.TypeDir {
			err = c.dir(e.Sector, child)
		} else {
			_, err = c.file(e.Sector, child)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// Check verifies the whole filesystem: names are unique within their
// directory, every sector reachable from the root is allocated and used by
// exactly one file, header counts agree with file lengths, directories have
// the configured size, and no allocated sector is unreachable.
func (fs *FileSystem) Check() error {
	c := &checker{
		fs:    fs,
		owner: map[sectorfs.SectorID]string{},
	}

	if err := c.claim(sectorfs.SuperblockSector, "superblock"); err != nil {
		return err
	}
	for i := 0; i < int(fs.sb.FreeMapSectors); i++ {
		if err := c.claim(sectorfs.FreeMapSector+sectorfs.SectorID(i), "free map"); err != nil {
			return err
		}
	}

	if err := c.dir(sectorfs.RootSector, "/"); err != nil {
		return err
	}

	for i := 0; i < fs.fm.NumSectors(); i++ {
		id := sectorfs.SectorID(i)
		if _, ok := c.owner[id]; fs.fm.Test(id) && !ok {
			return fmt.Errorf("sector %d allocated but unreachable: %w", id, sectorfs.ErrCorrupt)
		}
	}

	return nil
}
