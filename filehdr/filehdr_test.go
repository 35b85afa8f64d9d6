package filehdr

import (
	"bytes"
	"testing"

	"github.com/keks/sectorfs"
	"github.com/keks/sectorfs/blkdev"
	"github.com/keks/sectorfs/freemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	S = sectorfs.SectorSize
	L = sectorfs.SectorsPerList
)

func newDevice(t *testing.T, numSectors int) (*blkdev.Device, *freemap.Map) {
	t.Helper()

	dev, err := blkdev.New(blkdev.NewBuffer(), numSectors)
	require.NoError(t, err)

	fm := freemap.New(numSectors)
	// sector 0 plays the header sector in these tests
	require.NoError(t, fm.Mark(0))

	return dev, fm
}

func TestHeaderFitsInSector(t *testing.T) {
	require.Equal(t, 29, sectorfs.MaxLists)
	require.Len(t, New(nil).marshal(), S)
	require.LessOrEqual(t, (sectorfs.HeaderFields+sectorfs.MaxLists)*sectorfs.SectorIDSize, S)
}

func TestAllocateCounts(t *testing.T) {
	tcs := []struct {
		size       int
		numSectors int
		numLists   int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{S, 1, 1},
		{S + 1, 2, 1},
		{S * L, L, 1},
		{S*L + 1, L + 1, 2},
		{S * (L + 1), L + 1, 2},
		{sectorfs.MaxFileSize, sectorfs.MaxLists * L, sectorfs.MaxLists},
	}

	for _, tc := range tcs {
		dev, fm := newDevice(t, 1024)
		before := fm.NumClear()

		h := New(dev)
		require.NoError(t, h.Allocate(fm, tc.size), "size %d", tc.size)

		assert.Equal(t, tc.size, h.FileLength())
		assert.Equal(t, tc.numSectors, h.NumSectors(), "size %d", tc.size)
		assert.Equal(t, tc.numLists, h.NumLists(), "size %d", tc.size)
		assert.Equal(t, before-tc.numSectors-tc.numLists, fm.NumClear())
		assert.NoError(t, h.Validate())
	}
}

func TestAllocateTwoLists(t *testing.T) {
	dev, fm := newDevice(t, 256)

	h := New(dev)
	require.NoError(t, h.Allocate(fm, S*(L+1)))
	require.Equal(t, L+1, h.NumSectors())
	require.Equal(t, 2, h.NumLists())

	first, _, err := h.ListFor(0)
	require.NoError(t, err)
	second, _, err := h.ListFor(S * L)
	require.NoError(t, err)
	require.NotEqual(t, first, second, "offsets in different index sectors")

	s0, err := h.ByteToSector(0)
	require.NoError(t, err)
	sL, err := h.ByteToSector(S * L)
	require.NoError(t, err)
	require.NotEqual(t, s0, sL)

	// lists are taken before their data sectors, in ascending order
	require.Equal(t, []sectorfs.SectorID{1, sectorfs.SectorID(2 + L)}, h.Lists())
	require.Equal(t, sectorfs.SectorID(2), s0)
	require.Equal(t, sectorfs.SectorID(3+L), sL)
}

func TestByteToSectorAllocated(t *testing.T) {
	dev, fm := newDevice(t, 512)

	h := New(dev)
	size := 3*S*L + 17
	require.NoError(t, h.Allocate(fm, size))

	data, err := h.DataSectors()
	require.NoError(t, err)
	require.Len(t, data, h.NumSectors())

	for off := 0; off < size; off += 61 {
		id, err := h.ByteToSector(off)
		require.NoError(t, err)
		require.True(t, fm.Test(id), "offset %d maps to free sector %d", off, id)
		require.Equal(t, data[off/S], id)
	}

	_, err = h.ByteToSector(size)
	require.ErrorIs(t, err, sectorfs.ErrOffsetRange)
	_, err = h.ByteToSector(-1)
	require.ErrorIs(t, err, sectorfs.ErrOffsetRange)
}

func TestAllocateDeallocateNeutral(t *testing.T) {
	for _, size := range []int{0, 1, S, S*L + 1, 5*S*L - 3} {
		dev, fm := newDevice(t, 1024)
		// fragment the map a little
		for _, id := range []sectorfs.SectorID{3, 4, 9, 40, 41} {
			require.NoError(t, fm.Mark(id))
		}
		before := fm.Clone()

		h := New(dev)
		require.NoError(t, h.Allocate(fm, size))
		require.NoError(t, h.Deallocate(fm))
		require.True(t, before.Equal(fm), "size %d", size)
	}
}

func TestAllocateDiskFull(t *testing.T) {
	dev, fm := newDevice(t, 40)
	before := fm.Clone()

	h := New(dev)
	// 39 free sectors: 38 data + 2 lists does not fit
	err := h.Allocate(fm, 38*S)
	require.ErrorIs(t, err, sectorfs.ErrDiskFull)
	require.True(t, before.Equal(fm), "free map untouched")
	require.Equal(t, 0, h.FileLength())
	require.Equal(t, 0, h.NumLists())

	// 37 data + 2 lists does
	require.NoError(t, h.Allocate(fm, 37*S))
	require.Equal(t, 0, fm.NumClear())
}

func TestAllocateTooLarge(t *testing.T) {
	dev, fm := newDevice(t, 1024)

	err := New(dev).Allocate(fm, sectorfs.MaxFileSize+1)
	require.ErrorIs(t, err, sectorfs.ErrFileTooLarge)
	err = New(dev).Allocate(fm, -1)
	require.ErrorIs(t, err, sectorfs.ErrFileTooLarge)
}

func TestDeallocateCorrupt(t *testing.T) {
	dev, fm := newDevice(t, 64)

	h := New(dev)
	require.NoError(t, h.Allocate(fm, 3*S))

	data, err := h.DataSectors()
	require.NoError(t, err)
	require.NoError(t, fm.Clear(data[1]))
	before := fm.Clone()

	err = h.Deallocate(fm)
	require.ErrorIs(t, err, sectorfs.ErrCorrupt)
	require.True(t, before.Equal(fm), "nothing freed")
}

func TestDeallocateBadCounts(t *testing.T) {
	tcs := []struct {
		name     string
		numLists int
		list     sectorfs.SectorID
	}{
		{"too many lists", 40, 1},
		{"lists disagree with sectors", 2, 1},
		{"negative lists", -1, 1},
		{"list off the device", 1, 64},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			dev, fm := newDevice(t, 64)

			h := New(dev)
			require.NoError(t, h.Allocate(fm, 3*S))
			before := fm.Clone()

			h.numLists = tc.numLists
			if tc.numLists == 1 {
				h.lists[0] = tc.list
			}

			require.ErrorIs(t, h.Deallocate(fm), sectorfs.ErrCorrupt)
			require.True(t, before.Equal(fm), "nothing freed")

			require.Nil(t, h.Lists())
			_, err := h.DataSectors()
			require.ErrorIs(t, err, sectorfs.ErrCorrupt)
			require.ErrorIs(t, h.Print(&bytes.Buffer{}), sectorfs.ErrCorrupt)
			_, err = h.ByteToSector(0)
			require.ErrorIs(t, err, sectorfs.ErrCorrupt)
		})
	}
}

func TestDeallocateSharedSector(t *testing.T) {
	dev, fm := newDevice(t, 64)

	h := New(dev)
	require.NoError(t, h.Allocate(fm, 2*S))

	// both slots of the index point at the same data sector
	idx, err := ReadIndex(dev, h.lists[0])
	require.NoError(t, err)
	idx[1] = idx[0]
	require.NoError(t, WriteIndex(dev, h.lists[0], idx))
	before := fm.Clone()

	require.ErrorIs(t, h.Deallocate(fm), sectorfs.ErrCorrupt)
	require.True(t, before.Equal(fm))
}

func TestRoundTrip(t *testing.T) {
	dev, fm := newDevice(t, 1024)

	h := New(dev)
	require.NoError(t, h.Allocate(fm, 2*S*L+5))
	require.NoError(t, h.WriteBack(0))

	h2 := New(dev)
	require.NoError(t, h2.FetchFrom(0))
	require.Equal(t, h.FileLength(), h2.FileLength())
	require.Equal(t, h.NumSectors(), h2.NumSectors())
	require.Equal(t, h.Lists(), h2.Lists())
	require.Equal(t, h.lists, h2.lists)
	require.NoError(t, h2.Validate())
}

func TestValidate(t *testing.T) {
	h := New(nil)
	h.numBytes = S + 1
	h.numSectors = 1
	require.ErrorIs(t, h.Validate(), sectorfs.ErrCorrupt)

	h.numSectors = 2
	h.numLists = 2
	require.ErrorIs(t, h.Validate(), sectorfs.ErrCorrupt)

	h.numLists = 1
	require.NoError(t, h.Validate())

	h.numLists = sectorfs.MaxLists + 1
	require.ErrorIs(t, h.Validate(), sectorfs.ErrCorrupt)
}

func TestPrint(t *testing.T) {
	dev, fm := newDevice(t, 64)

	h := New(dev)
	require.NoError(t, h.Allocate(fm, 4))

	id, err := h.ByteToSector(0)
	require.NoError(t, err)
	sec := make([]byte, S)
	copy(sec, "hi\n!")
	require.NoError(t, dev.WriteSector(id, sec))

	var out bytes.Buffer
	require.NoError(t, h.Print(&out))
	require.Equal(t, "FileHeader contents.  File size: 4.  List blocks:\n1 \n"+
		"File contents in list 0, Sector 1:\n"+
		"hi\\a!\n", out.String())
}
