package blkdev

import (
	"io"

	"github.com/keks/sectorfs"
)

// sector is a window of exactly one sector onto the lower ReadWriterAt.
type sector struct {
	off int64

	lower sectorfs.ReadWriterAt
}

func (sec *sector) ReadAt(dst []byte, off int64) (int, error) {
	if off < 0 || off >= sectorfs.SectorSize {
		return 0, io.EOF
	}

	max := sectorfs.SectorSize - int(off)
	var retEOF bool
	if max < len(dst) {
		dst = dst[:max]
		retEOF = true
	}

	n, err := sec.lower.ReadAt(dst, off+sec.off)
	// an io.ReaderAt may report EOF together with a full read at the end
	// of the image
	if err == io.EOF && n == len(dst) {
		err = nil
	}
	if err != nil {
		return n, err
	}

	// return EOF if the caller wanted to read beyond the end of the sector
	if retEOF {
		return n, io.EOF
	}

	return n, nil
}

func (sec *sector) WriteAt(data []byte, off int64) (int, error) {
	if off < 0 || off >= sectorfs.SectorSize {
		return 0, io.EOF
	}

	max := sectorfs.SectorSize - int(off)
	var retEOF bool
	if max < len(data) {
		data = data[:max]
		retEOF = true
	}

	n, err := sec.lower.WriteAt(data, off+sec.off)
	if err != nil {
		// NOTE: this is only expected if the lower layer has failures,
		//       like e.g. running out of disk space.
		return n, err
	}

	if retEOF {
		return n, io.EOF
	}

	return n, nil
}
