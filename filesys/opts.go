package filesys

import (
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/keks/sectorfs"
)

type config struct {
	numSectors int
	dirEntries int
	volumeID   uuid.UUID
	logger     *log.Logger
}

func defaultConfig() config {
	return config{
		numSectors: sectorfs.DefaultNumSectors,
		dirEntries: sectorfs.DefaultDirEntries,
		logger:     log.New(io.Discard, "", 0),
	}
}

// Option configures Format and Mount.
type Option func(*config)

// WithNumSectors sets the size of a new filesystem in sectors.
func WithNumSectors(n int) Option {
	return func(c *config) {
		c.numSectors = n
	}
}

// WithDirEntries sets the capacity of every directory of a new filesystem.
func WithDirEntries(m int) Option {
	return func(c *config) {
		c.dirEntries = m
	}
}

// WithVolumeID sets the volume ID of a new filesystem instead of a random one.
func WithVolumeID(id uuid.UUID) Option {
	return func(c *config) {
		c.volumeID = id
	}
}

// WithLogger makes the filesystem report what it does to l.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}
