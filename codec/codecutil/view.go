/*
NAME
  view.go

DESCRIPTION
  view.go provides View, a cursor based view over a contiguous byte region
  that supports bounds checked sequential reads, appending writes and
  zero-copy slicing.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package codecutil

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// ErrReadOnly is returned by any mutating View method once the View has been
// marked read-only.
var ErrReadOnly = errors.New("view is read-only")

// RangeError describes a read, slice or seek that would leave the valid range
// of a View.
type RangeError struct {
	Op  string // Operation that failed e.g. "slice", "read".
	Off int    // Offset the operation started at.
	N   int    // Number of bytes requested.
	Len int    // Length of the View at the time of the request.
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s out of range: offset %d, n %d, length %d", e.Op, e.Off, e.N, e.Len)
}

// View is a window onto a byte region with an independent read cursor. Views
// created with NewView own their storage and grow on Write; views created by
// Slice or ReadSlice share storage with their parent but have their capacity
// clipped, so appending to a slice never alters its parent. The reverse does
// not hold: once a parent is truncated and written again, the bytes under its
// earlier slices are overwritten and those slices are stale.
//
// A View is not safe for concurrent use.
type View struct {
	buf []byte
	pos int
	ro  bool
}

// NewView returns an empty, writable View with capacity c.
func NewView(c int) *View {
	return &View{buf: make([]byte, 0, c)}
}

// ViewOf returns a View over b. The View borrows b; the caller must not modify
// b while the View is in use.
func ViewOf(b []byte) *View {
	return &View{buf: b[:len(b):len(b)]}
}

// Len returns the number of valid bytes in the View.
func (v *View) Len() int { return len(v.buf) }

// Pos returns the read cursor position.
func (v *View) Pos() int { return v.pos }

// Remaining returns the number of bytes between the read cursor and the end of
// the View.
func (v *View) Remaining() int { return len(v.buf) - v.pos }

// ReadOnly reports whether the View has been marked read-only.
func (v *View) ReadOnly() bool { return v.ro }

// MarkReadOnly freezes the View. It may be called any number of times.
func (v *View) MarkReadOnly() { v.ro = true }

// Bytes returns the valid bytes of the View. The returned slice must be
// treated as read-only.
func (v *View) Bytes() []byte { return v.buf[:len(v.buf):len(v.buf)] }

// Slice returns a View of n bytes starting at off, relative to the start of v.
// The returned View shares storage with v, has its own cursor at zero and
// inherits the read-only state of v.
func (v *View) Slice(off, n int) (*View, error) {
	if off < 0 || n < 0 || off > len(v.buf) || n > len(v.buf)-off {
		return nil, &RangeError{Op: "slice", Off: off, N: n, Len: len(v.buf)}
	}
	return &View{buf: v.buf[off : off+n : off+n], ro: v.ro}, nil
}

// ReadSlice returns a View of the next n bytes and advances the cursor past
// them. The cursor is unchanged on error.
func (v *View) ReadSlice(n int) (*View, error) {
	s, err := v.Slice(v.pos, n)
	if err != nil {
		return nil, &RangeError{Op: "read", Off: v.pos, N: n, Len: len(v.buf)}
	}
	v.pos += n
	return s, nil
}

// next returns the next n bytes and advances the cursor, or fails leaving the
// cursor where it was.
func (v *View) next(n int) ([]byte, error) {
	if n > v.Remaining() {
		return nil, &RangeError{Op: "read", Off: v.pos, N: n, Len: len(v.buf)}
	}
	b := v.buf[v.pos : v.pos+n]
	v.pos += n
	return b, nil
}

// ReadByte implements io.ByteReader.
func (v *View) ReadByte() (byte, error) {
	b, err := v.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a big-endian uint16.
func (v *View) ReadUint16() (uint16, error) {
	b, err := v.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint32 reads a big-endian uint32.
func (v *View) ReadUint32() (uint32, error) {
	b, err := v.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadInt32 reads a big-endian int32.
func (v *View) ReadInt32() (int32, error) {
	u, err := v.ReadUint32()
	return int32(u), err
}

// Read implements io.Reader.
func (v *View) Read(p []byte) (int, error) {
	if v.Remaining() == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, v.buf[v.pos:])
	v.pos += n
	return n, nil
}

// Seek implements io.Seeker, repositioning the read cursor relative to the
// start, the cursor or the end of the View. The result must lie in [0, Len].
func (v *View) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = v.pos
	case io.SeekEnd:
		base = len(v.buf)
	default:
		return int64(v.pos), fmt.Errorf("invalid whence: %d", whence)
	}
	p := int64(base) + offset
	if p < 0 || p > int64(len(v.buf)) {
		return int64(v.pos), &RangeError{Op: "seek", Off: base, N: int(offset), Len: len(v.buf)}
	}
	v.pos = int(p)
	return p, nil
}

// Write implements io.Writer, appending p to the View.
func (v *View) Write(p []byte) (int, error) {
	if v.ro {
		return 0, ErrReadOnly
	}
	v.buf = append(v.buf, p...)
	return len(p), nil
}

// WriteByte implements io.ByteWriter.
func (v *View) WriteByte(c byte) error {
	if v.ro {
		return ErrReadOnly
	}
	v.buf = append(v.buf, c)
	return nil
}

// WriteInt32 appends n in big-endian order.
func (v *View) WriteInt32(n int32) error {
	if v.ro {
		return ErrReadOnly
	}
	v.buf = binary.BigEndian.AppendUint32(v.buf, uint32(n))
	return nil
}

// WriteView appends the bytes of src starting skip bytes from its start. The
// cursor of src is not used or moved.
func (v *View) WriteView(src *View, skip int) error {
	if v.ro {
		return ErrReadOnly
	}
	if skip < 0 || skip > src.Len() {
		return &RangeError{Op: "write", Off: skip, N: src.Len() - skip, Len: src.Len()}
	}
	v.buf = append(v.buf, src.buf[skip:]...)
	return nil
}

// Truncate discards all but the first n bytes of the View. The cursor is
// pulled back to n if it lay beyond it.
func (v *View) Truncate(n int) error {
	if v.ro {
		return ErrReadOnly
	}
	if n < 0 || n > len(v.buf) {
		return &RangeError{Op: "truncate", Off: n, Len: len(v.buf)}
	}
	v.buf = v.buf[:n]
	if v.pos > n {
		v.pos = n
	}
	return nil
}

// String returns a hex dump of at most the first 32 bytes of the View.
func (v *View) String() string {
	const max = 32
	if len(v.buf) > max {
		return fmt.Sprintf("%s... (%d bytes)", hex.EncodeToString(v.buf[:max]), len(v.buf))
	}
	return hex.EncodeToString(v.buf)
}
