/*
NAME
  encoder.go

DESCRIPTION
  encoder.go provides Encoder, which wraps payloads into RTP packets.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"io"
	"math/rand"

	"github.com/ausocean/rtpav/codec/codecutil"
)

// Encoder wraps payloads into RTP packets of a single stream and writes each
// packet to its destination with one call to Write, so that a datagram
// connection receives one packet per datagram.
type Encoder struct {
	dst      io.Writer
	ssrc     uint32
	seqNo    uint16
	pt       uint8
	pktSpace [defPktSize]byte
}

// NewEncoder returns a new Encoder writing packets of payload type pt to dst.
// The SSRC and initial sequence number are random.
func NewEncoder(dst io.Writer, pt uint8) *Encoder {
	return &Encoder{
		dst:   dst,
		ssrc:  rand.Uint32(),
		seqNo: uint16(rand.Uint32()),
		pt:    pt,
	}
}

// SetSequence sets the sequence number of the next packet.
func (e *Encoder) SetSequence(s uint16) { e.seqNo = s }

// Skip advances the sequence number by n without sending, as if n packets had
// been lost.
func (e *Encoder) Skip(n int) { e.seqNo += uint16(n) }

// SSRC returns the synchronisation source of the stream.
func (e *Encoder) SSRC() uint32 { return e.ssrc }

// Encode wraps payload in an RTP packet with the given timestamp and marker
// bit and writes it to the destination.
func (e *Encoder) Encode(payload []byte, ts uint32, marker bool) error {
	pkt := Packet{
		Version:     rtpVer,
		Marker:      marker,
		PayloadType: e.pt,
		Sequence:    e.nxtSeqNo(),
		Timestamp:   ts,
		SSRC:        e.ssrc,
		Payload:     codecutil.ViewOf(payload),
	}
	_, err := e.dst.Write(pkt.Bytes(e.pktSpace[:0]))
	return err
}

// nxtSeqNo gets the next rtp packet sequence number
func (e *Encoder) nxtSeqNo() uint16 {
	e.seqNo++
	return e.seqNo - 1
}
