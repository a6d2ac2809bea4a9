/*
NAME
  extract.go

DESCRIPTION
  extract.go provides an Extractor to get NAL units from the payloads of an
  RTP stream carrying H.264 (RFC 6184).

AUTHOR
  Saxon Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package h264 provides functionality for handling the H.264 video codec.
// This includes extraction of NAL units from an RTP stream and inspection of
// NAL units.
package h264

import (
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/protocol/rtp"
)

// NAL types (from https://tools.ietf.org/html/rfc6184#page-13)
const (
	// Single nal units bounds.
	typeSingleNALULowBound  = 1
	typeSingleNALUHighBound = 23

	// Single-time aggregation packets.
	typeSTAPA = 24
	typeSTAPB = 25

	// Multi-time aggregation packets.
	typeMTAP16 = 26
	typeMTAP24 = 27

	// Fragmentation packets.
	typeFUA = 28
	typeFUB = 29
)

// Min NAL lengths.
const (
	minSingleNALLen = 1
	minFUALen       = 2
)

// Initial capacity of a fragmentation buffer.
const fragCap = 16384

// Extractor is an rtp.Extractor for H.264 payloads. Single NAL unit packets
// and STAP-A aggregates yield their NAL units directly; FU-A fragments are
// reassembled, with the original NAL header rebuilt, and yield one NAL unit
// when the final fragment arrives. Each NAL unit is written to the frame as a
// record. Other packetization types are logged and skipped.
type Extractor struct {
	log  logging.Logger
	frag *codecutil.View // NAL unit being reassembled from FU-A packets.
}

// NewExtractor returns a new Extractor.
func NewExtractor(log logging.Logger) *Extractor {
	return &Extractor{log: log}
}

// NewDepacketizer returns an rtp.Depacketizer for H.264. A frame starts when
// the RTP timestamp changes and ends on a packet with the marker bit set.
func NewDepacketizer(log logging.Logger) *rtp.Depacketizer {
	return rtp.NewDepacketizer(NewExtractor(log), &rtp.TimestampDemarcator{}, rtp.MarkerDemarcator{}, log)
}

// Extract implements rtp.Extractor.
func (e *Extractor) Extract(frame *codecutil.View, p *rtp.Packet) error {
	payload := p.Payload
	if payload.Len() < minSingleNALLen {
		return &rtp.ParseError{Msg: "empty H.264 payload"}
	}
	nalType := payload.Bytes()[0] & 0x1f

	// A fragmented NAL unit cannot be interrupted by another packet type.
	if e.frag != nil && nalType != typeFUA {
		e.log.Debug("discarding incomplete fragmentation unit", "seq", p.Sequence)
		e.frag = nil
	}

	if typeSingleNALULowBound <= nalType && nalType <= typeSingleNALUHighBound {
		return codecutil.WriteRecordView(frame, payload)
	}

	switch nalType {
	case typeSTAPA:
		return e.handleSTAPA(frame, payload)
	case typeFUA:
		return e.handleFUA(frame, payload)
	case typeSTAPB, typeMTAP16, typeMTAP24, typeFUB:
		e.log.Warning("unsupported packetization type", "type", nalType, "seq", p.Sequence)
	default:
		e.log.Warning("unknown NAL unit type", "type", nalType, "seq", p.Sequence)
	}
	return nil
}

// Reset implements rtp.Extractor, discarding any partly reassembled NAL unit.
func (e *Extractor) Reset() { e.frag = nil }

// handleSTAPA writes each NAL unit of an aggregation packet to frame.
func (e *Extractor) handleSTAPA(frame, d *codecutil.View) error {
	// Skip the STAP-A NAL header. The slice has its own cursor.
	agg, err := d.Slice(1, d.Len()-1)
	if err != nil {
		return &rtp.ParseError{Msg: "bad STAP-A packet", Err: err}
	}

	for agg.Remaining() != 0 {
		size, err := agg.ReadUint16()
		if err != nil {
			return &rtp.ParseError{Msg: "truncated STAP-A size", Err: err}
		}
		nalu, err := agg.ReadSlice(int(size))
		if err != nil {
			return &rtp.ParseError{Msg: "STAP-A NAL unit exceeds payload", Err: err}
		}
		if size == 0 {
			continue
		}
		err = codecutil.WriteRecordView(frame, nalu)
		if err != nil {
			return err
		}
	}
	return nil
}

// handleFUA reassembles NAL units from fragmentation packets, writing each
// to frame once complete.
func (e *Extractor) handleFUA(frame, d *codecutil.View) error {
	if d.Len() < minFUALen {
		return &rtp.ParseError{Msg: "truncated FU-A header"}
	}

	// Get start and end indicators from FU header.
	b := d.Bytes()
	const FUHeadIdx = 1
	start := b[FUHeadIdx]&0x80 != 0
	end := b[FUHeadIdx]&0x40 != 0

	if start {
		if e.frag != nil {
			e.log.Debug("discarding incomplete fragmentation unit")
		}

		// Rebuild the NAL header from the F and NRI bits of the FU indicator
		// and the type of the FU header.
		e.frag = codecutil.NewView(fragCap)
		e.frag.WriteByte((b[0] & 0xe0) | (b[FUHeadIdx] & 0x1f))
	} else if e.frag == nil {
		return &rtp.ParseError{Msg: "FU-A continuation without start"}
	}

	err := e.frag.WriteView(d, minFUALen)
	if err != nil {
		return err
	}
	if !end {
		return nil
	}

	nalu := e.frag
	e.frag = nil
	return codecutil.WriteRecordView(frame, nalu)
}
