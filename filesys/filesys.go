// Package filesys ties the sector device, the free map and the directory
// tree together into a filesystem handle.
//
// On-disk layout:
//
//	sector 0            superblock
//	sector 1            root directory file header
//	sectors 2..2+B-1    free map, B = FreeMapSectors(n)
//	everything else     allocated through the free map
package filesys

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/keks/sectorfs"
	"github.com/keks/sectorfs/blkdev"
	"github.com/keks/sectorfs/directory"
	"github.com/keks/sectorfs/filehdr"
	"github.com/keks/sectorfs/freemap"
	"github.com/keks/sectorfs/openfile"
)

// FileSystem is an open filesystem. It is not safe for concurrent use.
type FileSystem struct {
	dev *blkdev.Device
	fm  *freemap.Map
	sb  superblock
	log *log.Logger
}

// Format creates an empty filesystem on rwa.
func Format(rwa sectorfs.ReadWriterAt, opts ...Option) (*FileSystem, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.dirEntries <= 0 || directory.FileSize(cfg.dirEntries) > sectorfs.MaxFileSize {
		return nil, fmt.Errorf("directory capacity %d out of range", cfg.dirEntries)
	}

	reserved := int(sectorfs.FreeMapSector) + sectorfs.FreeMapSectors(cfg.numSectors)
	if cfg.numSectors <= reserved {
		return nil, fmt.Errorf("%d sectors leave no room after %d reserved ones", cfg.numSectors, reserved)
	}

	if cfg.volumeID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("generating volume ID: %w", err)
		}
		cfg.volumeID = id
	}

	dev, err := blkdev.New(rwa, cfg.numSectors)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{
		dev: dev,
		fm:  freemap.New(cfg.numSectors),
		sb:  newSuperblock(cfg),
		log: cfg.logger,
	}

	for id := sectorfs.SectorID(0); int(id) < reserved; id++ {
		if err := fs.fm.Mark(id); err != nil {
			return nil, err
		}
	}

	hdr := filehdr.New(dev)
	if err := hdr.Allocate(fs.fm, directory.FileSize(cfg.dirEntries)); err != nil {
		return nil, fmt.Errorf("allocating root directory: %w", err)
	}
	if err := hdr.WriteBack(sectorfs.RootSector); err != nil {
		return nil, err
	}

	if err := fs.writeEmptyDir(sectorfs.RootSector); err != nil {
		return nil, err
	}

	if err := fs.sb.writeTo(dev); err != nil {
		return nil, err
	}
	if err := fs.fm.WriteBack(dev, sectorfs.FreeMapSector); err != nil {
		return nil, err
	}

	fs.log.Printf("✓ Formatted volume %s: %d sectors, %d entries per directory", cfg.volumeID, cfg.numSectors, cfg.dirEntries)

	return fs, nil
}

// Mount opens a filesystem previously created with Format.
func Mount(rwa sectorfs.ReadWriterAt, opts ...Option) (*FileSystem, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dev, err := blkdev.Open(rwa)
	if err != nil {
		return nil, fmt.Errorf("opening device: %w", err)
	}

	fs := &FileSystem{
		dev: dev,
		log: cfg.logger,
	}

	if err := fs.sb.readFrom(dev); err != nil {
		return nil, err
	}
	if err := fs.sb.validate(dev); err != nil {
		return nil, err
	}

	fs.fm = freemap.New(int(fs.sb.NumSectors))
	if err := fs.fm.FetchFrom(dev, sectorfs.FreeMapSector); err != nil {
		return nil, fmt.Errorf("load free map: %w", err)
	}

	fs.log.Printf("✓ Mounted volume %s", fs.sb.VolumeID)

	return fs, nil
}

// Close persists the free map and syncs the device.
func (fs *FileSystem) Close() error {
	if err := fs.fm.WriteBack(fs.dev, sectorfs.FreeMapSector); err != nil {
		return err
	}
	return fs.dev.Sync()
}

func (fs *FileSystem) dirEntries() int {
	return int(fs.sb.DirEntries)
}

func (fs *FileSystem) root() (*directory.Directory, *openfile.File, error) {
	return directory.Load(fs.dev, sectorfs.RootSector, fs.dirEntries())
}

func (fs *FileSystem) writeEmptyDir(sector sectorfs.SectorID) error {
	f, err := openfile.Open(fs.dev, sector)
	if err != nil {
		return err
	}
	return directory.New(fs.dev, fs.dirEntries()).WriteBack(f)
}

// Create makes a regular file of size bytes at path. The contents of a new
// file are undefined until written.
func (fs *FileSystem) Create(path string, size int) error {
	if err := fs.create(path, size, sectorfs.TypeFile); err != nil {
		return err
	}

	fs.log.Printf("✓ Created file: %s (size %d)", path, size)
	return nil
}

// Mkdir makes an empty directory at path.
func (fs *FileSystem) Mkdir(path string) error {
	if err := fs.create(path, directory.FileSize(fs.dirEntries()), sectorfs.TypeDir); err != nil {
		return err
	}

	fs.log.Printf("✓ Created directory: %s", path)
	return nil
}

func (fs *FileSystem) create(path string, size int, typ sectorfs.EntryType) error {
	root, rootFile, err := fs.root()
	if err != nil {
		return err
	}

	_, err = root.Find(path)
	if err == nil {
		return fmt.Errorf("%q: %w", path, sectorfs.ErrExists)
	}
	if !errors.Is(err, sectorfs.ErrNotFound) {
		return err
	}

	sector, err := fs.fm.FindAndSet()
	if err != nil {
		return fmt.Errorf("header for %q: %w", path, err)
	}

	hdr := filehdr.New(fs.dev)
	if err := hdr.Allocate(fs.fm, size); err != nil {
		return fs.rollback(err, sector, nil)
	}

	if err := hdr.WriteBack(sector); err != nil {
		return fs.rollback(err, sector, hdr)
	}

	if typ == sectorfs.TypeDir {
		if err := fs.writeEmptyDir(sector); err != nil {
			return fs.rollback(err, sector, hdr)
		}
	}

	if err := root.Add(path, sector, typ); err != nil {
		return fs.rollback(err, sector, hdr)
	}
	if err := root.WriteBack(rootFile); err != nil {
		// Add has already written a parent other than the root
		if rmErr := root.Remove(path); rmErr != nil {
			err = fmt.Errorf("%w; unlinking: %w", err, rmErr)
		}
		return fs.rollback(err, sector, hdr)
	}

	return fs.fm.WriteBack(fs.dev, sectorfs.FreeMapSector)
}

// rollback returns the sectors of a half created file to the free map.
func (fs *FileSystem) rollback(cause error, sector sectorfs.SectorID, hdr *filehdr.Header) error {
	if hdr != nil {
		if err := hdr.Deallocate(fs.fm); err != nil {
			return fmt.Errorf("%v; rolling back: %w", cause, err)
		}
	}
	if err := fs.fm.Clear(sector); err != nil {
		return fmt.Errorf("%v; rolling back: %w", cause, err)
	}
	return cause
}

// Open opens the file at path.
func (fs *FileSystem) Open(path string) (*openfile.File, error) {
	root, _, err := fs.root()
	if err != nil {
		return nil, err
	}

	sector, err := root.Find(path)
	if err != nil {
		return nil, err
	}

	return openfile.Open(fs.dev, sector)
}

// Remove deletes the file or empty directory at path and frees its sectors.
func (fs *FileSystem) Remove(path string) error {
	root, rootFile, err := fs.root()
	if err != nil {
		return err
	}

	e, err := root.Lookup(path)
	if err != nil {
		return err
	}

	if e.Type == sectorfs.TypeDir {
		sub, _, err := directory.Load(fs.dev, e.Sector, fs.dirEntries())
		if err != nil {
			return err
		}
		if !sub.IsEmpty() {
			return fmt.Errorf("%q: %w", path, sectorfs.ErrDirNotEmpty)
		}
	}

	hdr := filehdr.New(fs.dev)
	if err := hdr.FetchFrom(e.Sector); err != nil {
		return err
	}

	// fs.fm only changes once the entry is gone
	fm := fs.fm.Clone()
	if err := hdr.Deallocate(fm); err != nil {
		return fmt.Errorf("removing %q: %w", path, err)
	}
	if err := fm.Clear(e.Sector); err != nil {
		return fmt.Errorf("removing %q: %w", path, err)
	}

	if err := root.Remove(path); err != nil {
		return err
	}
	if err := root.WriteBack(rootFile); err != nil {
		return err
	}

	fs.fm = fm
	if err := fs.fm.WriteBack(fs.dev, sectorfs.FreeMapSector); err != nil {
		return err
	}

	fs.log.Printf("✓ Removed: %s (header %d)", path, e.Sector)
	return nil
}

// FileInfo describes an entry and the length of its file.
type FileInfo struct {
	directory.Entry
	Size int64
}

// IsDir reports whether the entry is a directory.
func (fi FileInfo) IsDir() bool {
	return fi.Type == sectorfs.TypeDir
}

// Stat describes the entry at path.
func (fs *FileSystem) Stat(path string) (FileInfo, error) {
	root, _, err := fs.root()
	if err != nil {
		return FileInfo{}, err
	}

	e, err := root.Lookup(path)
	if err != nil {
		return FileInfo{}, err
	}

	hdr := filehdr.New(fs.dev)
	if err := hdr.FetchFrom(e.Sector); err != nil {
		return FileInfo{}, err
	}

	return FileInfo{Entry: e, Size: int64(hdr.FileLength())}, nil
}

// ReadDir returns the entries of the directory at path ("/" for the root).
func (fs *FileSystem) ReadDir(path string) ([]directory.Entry, error) {
	dir, err := fs.dir(path)
	if err != nil {
		return nil, err
	}
	return dir.Entries(), nil
}

func (fs *FileSystem) dir(path string) (*directory.Directory, error) {
	root, _, err := fs.root()
	if err != nil {
		return nil, err
	}
	if path == "/" {
		return root, nil
	}

	e, err := root.Lookup(path)
	if err != nil {
		return nil, err
	}
	if e.Type != sectorfs.TypeDir {
		return nil, fmt.Errorf("%q: %w", path, sectorfs.ErrNotDir)
	}

	dir, _, err := directory.Load(fs.dev, e.Sector, fs.dirEntries())
	return dir, err
}

// List writes the entries of the directory at path to w.
func (fs *FileSystem) List(w io.Writer, path string) error {
	dir, err := fs.dir(path)
	if err != nil {
		return err
	}
	dir.List(w)
	return nil
}

// RecursiveList writes the tree below the directory at path to w.
func (fs *FileSystem) RecursiveList(w io.Writer, path string) error {
	dir, err := fs.dir(path)
	if err != nil {
		return err
	}
	return dir.RecursiveList(w, 0)
}

// Print dumps the root directory and the files it names to w.
func (fs *FileSystem) Print(w io.Writer) error {
	root, _, err := fs.root()
	if err != nil {
		return err
	}
	return root.Print(w)
}

// Info summarizes a filesystem.
type Info struct {
	VolumeID    uuid.UUID
	NumSectors  int
	FreeSectors int
	DirEntries  int
	MaxFileSize int
}

// Info returns the geometry and usage of the filesystem.
func (fs *FileSystem) Info() Info {
	return Info{
		VolumeID:    fs.sb.VolumeID,
		NumSectors:  fs.fm.NumSectors(),
		FreeSectors: fs.fm.NumClear(),
		DirEntries:  fs.dirEntries(),
		MaxFileSize: sectorfs.MaxFileSize,
	}
}
