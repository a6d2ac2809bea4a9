/*
NAME
  mpegts.go - provides a data structure intended to encapsulate the properties
  of an MPEG-TS packet.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package mts provides a sink writing depacketized H.264 or AAC as an MPEG
// transport stream (MPEG-TS), with presentation timestamps taken from the
// RTP timestamps of the stream.
package mts

const PacketSize = 188

// Standard program IDs for program specific information MPEG-TS packets.
const (
	PatPid = 0
	PmtPid = 4096
)

// Adaptation field control bits.
const (
	hasPayload         = 0x1
	hasAdaptationField = 0x2
)

// Length of the header and of the adaptation field length and flags.
const (
	headSize       = 4
	adaptationSize = 2
	pcrSize        = 6
)

/*
Packet encapsulates the fields of an MPEG-TS packet that the encoder sets.
Below is the formatting of an MPEG-TS packet for reference.

============================================================================
| octet no | bit 0 | bit 1 | bit 2 | bit 3 | bit 4 | bit 5 | bit 6 | bit 7 |
============================================================================
| octet 0  | sync byte (0x47)                                              |
----------------------------------------------------------------------------
| octet 1  | TEI   | PUSI  | Prior | PID                                   |
----------------------------------------------------------------------------
| octet 2  | PID cont.                                                     |
----------------------------------------------------------------------------
| octet 3  | TSC           | AFC           | CC                            |
----------------------------------------------------------------------------
| octet 4  | AFL                                                           |
----------------------------------------------------------------------------
| octet 5  | DI    | RAI   | ESPI  | PCRF  | OPCRF | SPF   | TPDF  | AFEF  |
----------------------------------------------------------------------------
| optional | PCR (48 bits => 6 bytes)                                      |
----------------------------------------------------------------------------
| optional | Stuffing (variable length)                                    |
----------------------------------------------------------------------------
| optional | Payload (variable length)                                     |
----------------------------------------------------------------------------
*/
type Packet struct {
	PUSI    bool   // Payload Unit Start Indicator
	PID     uint16 // Packet identifier
	AFC     byte   // Adaption Field Control
	CC      byte   // Continuity Counter
	RAI     bool   // random access indicator
	PCRF    bool   // PCR flag
	PCR     uint64 // Program clock reference base
	Payload []byte // Mpeg ts Payload
}

// FillPayload fills the packet's payload from data until the packet reaches
// capacity, returning the number of bytes taken.
func (p *Packet) FillPayload(data []byte) int {
	max := PacketSize - headSize
	if p.AFC&hasAdaptationField != 0 {
		max -= adaptationSize + asInt(p.PCRF)*pcrSize
	}
	if len(data) > max {
		data = data[:max]
	}
	p.Payload = data
	return len(data)
}

// Bytes interprets the fields of the ts packet instance and outputs a
// corresponding byte slice. A short payload is preceded by stuffing in the
// adaptation field, so packets without one must be given a full payload.
func (p *Packet) Bytes(buf []byte) []byte {
	if cap(buf) < PacketSize {
		buf = make([]byte, 0, PacketSize)
	}
	buf = buf[:headSize]
	buf[0] = 0x47
	buf[1] = asByte(p.PUSI)<<6 | byte(p.PID>>8)&0x1f
	buf[2] = byte(p.PID)
	buf[3] = p.AFC<<4 | p.CC&0x0f

	if p.AFC&hasAdaptationField != 0 {
		maxPayloadSize := PacketSize - headSize - adaptationSize - asInt(p.PCRF)*pcrSize
		stuffingLen := maxPayloadSize - len(p.Payload)
		buf = append(buf,
			byte(1+stuffingLen+asInt(p.PCRF)*pcrSize),
			asByte(p.RAI)<<6|asByte(p.PCRF)<<4,
		)

		// 33 bit base, 6 reserved bits and a zero 9 bit extension.
		pcr := (p.PCR&(1<<33-1))<<15 | 0x3f<<9
		for i := 40; p.PCRF && i >= 0; i -= 8 {
			buf = append(buf, byte(pcr>>uint(i)))
		}
		for i := 0; i < stuffingLen; i++ {
			buf = append(buf, 0xff)
		}
	}
	return append(buf, p.Payload...)
}

func asInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
