package blkdev

import (
	"io"
)

// Buffer is an in-memory image that grows on write.
type Buffer struct {
	buf []byte
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{buf: []byte{}}
}

// Bytes returns the image contents.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

func (b *Buffer) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off != int64(int(off)) {
		return 0, io.EOF
	}

	if int(off) >= len(b.buf) {
		return 0, io.EOF
	}

	max := len(b.buf) - int(off)
	var err error
	if max < len(buf) {
		buf = buf[:max]
		err = io.EOF
	}

	copy(buf, b.buf[int(off):])

	return len(buf), err
}

func (b *Buffer) WriteAt(data []byte, off int64) (int, error) {
	if off < 0 || off != int64(int(off)) {
		return 0, io.EOF
	}

	if int(off)+len(data) > len(b.buf) {
		b.buf = append(b.buf, make([]byte, int(off)+len(data)-len(b.buf))...)
	}

	copy(b.buf[int(off):], data)

	return len(data), nil
}
