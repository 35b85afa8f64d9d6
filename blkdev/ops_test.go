package blkdev

import (
	"bytes"
	"testing"

	"github.com/keks/sectorfs"
	"github.com/stretchr/testify/require"
)

type op interface {
	Do(*testing.T, sectorfs.ReadWriterAt)
}

type devNewOp struct {
	dev        *Device
	numSectors int

	expErr string
}

func (op devNewOp) Do(t *testing.T, rwa sectorfs.ReadWriterAt) {
	dev, err := New(rwa, op.numSectors)
	if op.expErr != "" {
		require.EqualError(t, err, op.expErr)
		return
	}
	require.NoError(t, err)

	// this copies a mutex, but it hasn't been used yet so it's okay
	*op.dev = *dev
}

type devOpenOp struct {
	dev *Device

	expSectors int
	expErr     string
}

func (op devOpenOp) Do(t *testing.T, rwa sectorfs.ReadWriterAt) {
	dev, err := Open(rwa)
	if op.expErr != "" {
		require.EqualError(t, err, op.expErr)
		return
	}
	require.NoError(t, err)
	require.Equal(t, op.expSectors, dev.NumSectors())

	*op.dev = *dev
}

type devWriteOp struct {
	dev  *Device
	id   sectorfs.SectorID
	data []byte

	expErr error
}

func (op devWriteOp) Do(t *testing.T, rwa sectorfs.ReadWriterAt) {
	err := op.dev.WriteSector(op.id, op.data)
	if op.expErr == nil {
		require.NoError(t, err)
	} else {
		require.ErrorIs(t, err, op.expErr)
	}
}

type devReadOp struct {
	dev *Device
	id  sectorfs.SectorID

	exp    []byte
	expErr error
}

func (op devReadOp) Do(t *testing.T, rwa sectorfs.ReadWriterAt) {
	buf := make([]byte, sectorfs.SectorSize)
	err := op.dev.ReadSector(op.id, buf)
	if op.expErr != nil {
		require.ErrorIs(t, err, op.expErr)
		return
	}

	require.NoError(t, err)
	t.Logf("sector %d contents %q", op.id, buf[:len(op.exp)])
	require.True(t, bytes.Equal(op.exp, buf), "sector %d contents", op.id)
}

type secWriteOp struct {
	dev  *Device
	id   sectorfs.SectorID
	data []byte
	off  int64

	expN   int
	expErr string
}

func (op secWriteOp) Do(t *testing.T, rwa sectorfs.ReadWriterAt) {
	r := require.New(t)

	sec, err := op.dev.Sector(op.id)
	r.NoError(err)

	n, err := sec.WriteAt(op.data, op.off)
	t.Logf("secWriteOp, n: %d, err: %v", n, err)

	r.Equal(op.expN, n)
	if op.expErr == "" {
		r.NoError(err)
	} else {
		r.EqualError(err, op.expErr)
	}
}

type secReadOp struct {
	dev     *Device
	id      sectorfs.SectorID
	off     int64
	readlen int

	exp    []byte
	expN   int
	expErr string
}

func (op secReadOp) Do(t *testing.T, rwa sectorfs.ReadWriterAt) {
	r := require.New(t)
	if op.readlen == 0 {
		op.readlen = len(op.exp)
	}

	sec, err := op.dev.Sector(op.id)
	r.NoError(err)

	buf := make([]byte, op.readlen)
	n, err := sec.ReadAt(buf, op.off)
	t.Logf("secReadOp, n: %d, err: %v", n, err)

	if op.expErr == "" {
		r.NoError(err)
	} else {
		r.EqualError(err, op.expErr)
	}
	r.Equal(op.expN, n)
	r.True(bytes.Equal(buf[:op.expN], op.exp))
}

type dumpOp struct {
	name string
	v    interface{}
}

func (op dumpOp) Do(t *testing.T, rwa sectorfs.ReadWriterAt) {
	t.Logf("%s: %#v", op.name, op.v)
}
