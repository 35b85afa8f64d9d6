package blkdev

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/keks/sectorfs"
	"github.com/stretchr/testify/require"
)

func sectorOf(s string) []byte {
	buf := make([]byte, sectorfs.SectorSize)
	copy(buf, s)
	return buf
}

func TestDevice(t *testing.T) {
	type testcase struct {
		name string
		ops  []op
	}

	mktest := func(tc testcase) func(*testing.T) {
		return func(t *testing.T) {
			// test with memory image
			rwa := NewBuffer()
			for _, op := range tc.ops {
				op.Do(t, rwa)
				t.Logf("ok: %T", op)
			}
		}
	}

	mkfiletest := func(tc testcase) func(*testing.T) {
		return func(t *testing.T) {
			// test with os.File as ReadWriterAt
			f, err := os.Create(filepath.Join(t.TempDir(), "image"))
			require.NoError(t, err)
			defer f.Close()

			for _, op := range tc.ops {
				op.Do(t, f)
				t.Logf("ok: %T", op)
			}
		}
	}

	var dev, dev2 Device

	var tcs = []testcase{
		{
			name: "zero sectors",
			ops: []op{
				devNewOp{
					dev:        &dev,
					numSectors: 0,

					expErr: "numSectors must be > 0, got 0: bad device meta header",
				},
			},
		},
		{
			name: "fresh sectors are zero",
			ops: []op{
				devNewOp{dev: &dev, numSectors: 16},
				devReadOp{
					dev: &dev,
					id:  3,
					exp: make([]byte, sectorfs.SectorSize),
				},
				devReadOp{
					dev: &dev,
					id:  15,
					exp: make([]byte, sectorfs.SectorSize),
				},
			},
		},
		{
			name: "write then read",
			ops: []op{
				devNewOp{dev: &dev, numSectors: 16},
				devWriteOp{
					dev:  &dev,
					id:   5,
					data: sectorOf("test"),
				},
				devReadOp{
					dev: &dev,
					id:  5,
					exp: sectorOf("test"),
				},
				devReadOp{
					dev: &dev,
					id:  6,
					exp: make([]byte, sectorfs.SectorSize),
				},
			},
		},
		{
			name: "out of range",
			ops: []op{
				devNewOp{dev: &dev, numSectors: 4},
				devWriteOp{
					dev:    &dev,
					id:     4,
					data:   sectorOf("test"),
					expErr: ErrSectorRange,
				},
				devReadOp{
					dev:    &dev,
					id:     -1,
					expErr: ErrSectorRange,
				},
				devWriteOp{
					dev:    &dev,
					id:     0,
					data:   []byte("short"),
					expErr: ErrShortBuffer,
				},
			},
		},
		{
			name: "write over sector end",
			ops: []op{
				devNewOp{dev: &dev, numSectors: 4},
				secWriteOp{
					dev:    &dev,
					id:     1,
					data:   []byte("test"),
					off:    sectorfs.SectorSize - 2,
					expN:   2,
					expErr: "EOF",
				},
				secReadOp{
					dev:     &dev,
					id:      1,
					off:     sectorfs.SectorSize - 2,
					readlen: 4,
					exp:     []byte("te"),
					expN:    2,
					expErr:  "EOF",
				},
				// the neighbouring sector is untouched
				devReadOp{
					dev: &dev,
					id:  2,
					exp: make([]byte, sectorfs.SectorSize),
				},
			},
		},
		{
			name: "write after sector end",
			ops: []op{
				devNewOp{dev: &dev, numSectors: 4},
				secWriteOp{
					dev:    &dev,
					id:     1,
					data:   []byte("test"),
					off:    sectorfs.SectorSize + 2,
					expN:   0,
					expErr: "EOF",
				},
			},
		},
		{
			name: "new, write, open then read",
			ops: []op{
				devNewOp{dev: &dev, numSectors: 8},
				dumpOp{"dev", &dev},
				devWriteOp{
					dev:  &dev,
					id:   7,
					data: sectorOf("last"),
				},
				devOpenOp{
					dev:        &dev2,
					expSectors: 8,
				},
				devReadOp{
					dev: &dev2,
					id:  7,
					exp: sectorOf("last"),
				},
			},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, mktest(tc))
	}

	for _, tc := range tcs {
		t.Run(tc.name+" (file)", mkfiletest(tc))
	}
}

func TestOpenBadMeta(t *testing.T) {
	buf := NewBuffer()
	_, err := buf.WriteAt([]byte{4, 0, 0, 0, 0, 2, 0, 0}, 0)
	require.NoError(t, err)

	_, err = Open(buf)
	require.ErrorIs(t, err, ErrBadMeta)

	_, err = Open(NewBuffer())
	require.Error(t, err)
}

func TestBufferGrows(t *testing.T) {
	buf := NewBuffer()

	n, err := buf.WriteAt([]byte("test"), 10)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Len(t, buf.Bytes(), 14)
	require.True(t, bytes.Equal(make([]byte, 10), buf.Bytes()[:10]))
}
