/*
NAME
  record.go

DESCRIPTION
  record.go provides functions for writing and reading length prefixed
  records, the container format used to pass access units between pipeline
  stages.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package codecutil

import (
	"fmt"
	"math"
)

// recordHeadLen is the size of the int32 length that prefixes each record.
const recordHeadLen = 4

// WriteRecord appends p to dst as a single length prefixed record.
func WriteRecord(dst *View, p []byte) error {
	if len(p) > math.MaxInt32 {
		return fmt.Errorf("record too long: %d", len(p))
	}
	err := dst.WriteInt32(int32(len(p)))
	if err != nil {
		return err
	}
	_, err = dst.Write(p)
	return err
}

// WriteRecordView appends all bytes of v to dst as a single record.
func WriteRecordView(dst, v *View) error {
	return WriteRecord(dst, v.Bytes())
}

// ReadRecord reads the record at the cursor of src and returns a view of its
// body. A negative length, or one running past the end of src, is a
// *RangeError and leaves the cursor of src where it was.
func ReadRecord(src *View) (*View, error) {
	start := src.Pos()
	n, err := src.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		src.pos = start
		return nil, &RangeError{Op: "record", Off: start, N: int(n), Len: src.Len()}
	}
	r, err := src.ReadSlice(int(n))
	if err != nil {
		src.pos = start
		return nil, err
	}
	return r, nil
}

// Records returns the bodies of all records in src, from the start of src in
// encounter order. The cursor of src is left at the end of the last complete
// record.
func Records(src *View) ([]*View, error) {
	src.pos = 0
	var recs []*View
	for src.Remaining() > 0 {
		if src.Remaining() < recordHeadLen {
			return recs, &RangeError{Op: "record", Off: src.Pos(), N: recordHeadLen, Len: src.Len()}
		}
		r, err := ReadRecord(src)
		if err != nil {
			return recs, err
		}
		recs = append(recs, r)
	}
	return recs, nil
}
