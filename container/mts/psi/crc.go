/*
NAME
  crc.go

DESCRIPTION
  crc.go provides the CRC32 checksum of PSI tables.

AUTHOR
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

import (
	"encoding/binary"
	"hash/crc32"
	"math/bits"
)

// The MPEG-2 CRC is the IEEE polynomial computed most significant bit first,
// which hash/crc32 does not provide.
var crcTable = makeTable(bits.Reverse32(crc32.IEEE))

// AddCRC returns a copy of the table out, pointer field first, with its CRC
// appended.
func AddCRC(out []byte) []byte {
	t := make([]byte, len(out)+crcSize)
	copy(t, out)
	updateCRC(t[1:])
	return t
}

// updateCRC writes the checksum of all but the last four bytes of b into the
// last four bytes.
func updateCRC(b []byte) {
	crc := uint32(0xffffffff)
	for _, v := range b[:len(b)-crcSize] {
		crc = crcTable[byte(crc>>24)^v] ^ (crc << 8)
	}
	binary.BigEndian.PutUint32(b[len(b)-crcSize:], crc)
}

func makeTable(poly uint32) *crc32.Table {
	var t crc32.Table
	for i := range t {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}
