/*
NAME
  pes.go

DESCRIPTION
  pes.go provides encoding of packetized elementary stream (PES) packets.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pes provides encoding of MPEG-TS packetized elementary stream packets.
package pes

import "github.com/Comcast/gots"

// Initial capacity of a PES packet buffer.
const MaxPesSize = 64 << 10

// Stream IDs (ITU-T H.222.0 table 2-22).
const (
	AudioSID = 0xc0 // First MPEG audio stream.
	VideoSID = 0xe0 // First MPEG video stream.
)

// PTS DTS indicator values.
const (
	HasPTS = 0x2
)

// Length of the optional header when only a PTS is carried.
const ptsHeaderLen = 5

// Packet is a PES packet with an optional PTS.
type Packet struct {
	StreamID byte   // Type of stream
	Length   uint16 // Pes packet length in bytes after this field, 0 for unbounded video
	DAI      bool   // Data alignment indicator
	PDI      byte   // PTS DTS indicator
	PTS      uint64 // Presentation time stamp
	Data     []byte // Pes packet data
}

// HeaderLen returns the number of bytes following the PES packet length field
// and preceding the data.
func (p *Packet) HeaderLen() int {
	n := 3
	if p.PDI == HasPTS {
		n += ptsHeaderLen
	}
	return n
}

// Bytes writes the packet into buf, which is grown as needed, and returns it.
func (p *Packet) Bytes(buf []byte) []byte {
	if buf == nil {
		buf = make([]byte, 0, MaxPesSize)
	}
	buf = buf[:0]

	var headerLen byte
	if p.PDI == HasPTS {
		headerLen = ptsHeaderLen
	}
	buf = append(buf,
		0x00, 0x00, 0x01,
		p.StreamID,
		byte(p.Length>>8),
		byte(p.Length),
		0x2<<6|boolByte(p.DAI)<<2,
		p.PDI<<6,
		headerLen,
	)

	if p.PDI == HasPTS {
		ptsIdx := len(buf)
		buf = append(buf, make([]byte, ptsHeaderLen)...)
		gots.InsertPTS(buf[ptsIdx:], p.PTS)
	}
	return append(buf, p.Data...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
