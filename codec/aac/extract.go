/*
NAME
  extract.go

DESCRIPTION
  extract.go provides an Extractor to get AAC access units from the payloads
  of an RTP stream in the mpeg4-generic format (RFC 3640).

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package aac provides functionality for handling AAC audio, including
// extraction of access units from an RTP stream, the out of band stream
// parameters, and ADTS framing.
package aac

import (
	"bytes"

	"github.com/ausocean/utils/logging"
	"github.com/icza/bitio"

	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/protocol/rtp"
)

// Size of the AU-headers-length field.
const headersLengthSize = 2

// Extractor is an rtp.Extractor for mpeg4-generic AAC payloads. Each payload
// holds an AU-header section followed by the access units it describes; each
// access unit is written to the frame as a record. Access units fragmented
// across packets are not supported.
type Extractor struct {
	log    logging.Logger
	params Params
}

// NewExtractor returns a new Extractor parsing AU-headers laid out according
// to p.
func NewExtractor(p Params, log logging.Logger) (*Extractor, error) {
	err := p.Validate()
	if err != nil {
		return nil, err
	}
	return &Extractor{log: log, params: p}, nil
}

// NewDepacketizer returns an rtp.Depacketizer for AAC. A frame starts when the
// RTP timestamp changes and every packet ends a frame.
func NewDepacketizer(p Params, log logging.Logger) (*rtp.Depacketizer, error) {
	x, err := NewExtractor(p, log)
	if err != nil {
		return nil, err
	}
	return rtp.NewDepacketizer(x, &rtp.TimestampDemarcator{}, rtp.AlwaysDemarcator{}, log), nil
}

// Extract implements rtp.Extractor.
func (e *Extractor) Extract(frame *codecutil.View, p *rtp.Packet) error {
	payload, err := p.Payload.Slice(0, p.Payload.Len())
	if err != nil {
		return &rtp.ParseError{Msg: "bad payload", Err: err}
	}

	bits, err := payload.ReadUint16()
	if err != nil {
		return &rtp.ParseError{Msg: "truncated AU-headers-length", Err: err}
	}
	hdrs, err := payload.ReadSlice((int(bits) + 7) / 8)
	if err != nil {
		return &rtp.ParseError{Msg: "AU-header section exceeds payload", Err: err}
	}
	sizes, err := e.auSizes(hdrs.Bytes(), int(bits))
	if err != nil {
		return &rtp.ParseError{Msg: "malformed AU-header section", Err: err}
	}

	for i, size := range sizes {
		au, err := payload.ReadSlice(size)
		if err != nil {
			e.log.Debug("access unit exceeds payload", "seq", p.Sequence, "au", i, "size", size, "remaining", payload.Remaining())
			return nil
		}
		err = codecutil.WriteRecordView(frame, au)
		if err != nil {
			return err
		}
	}
	return nil
}

// auSizes returns the AU-size of each of the AU-headers in the first bits bits
// of hdrs. Index fields are read but not used, since access units are
// expected in order.
func (e *Extractor) auSizes(hdrs []byte, bits int) ([]int, error) {
	r := bitio.NewReader(bytes.NewReader(hdrs))
	var sizes []int
	idxLen := e.params.IndexLength
	for used := 0; used+int(e.params.SizeLength)+int(idxLen) <= bits; {
		size, err := r.ReadBits(e.params.SizeLength)
		if err != nil {
			return nil, err
		}
		if idxLen != 0 {
			_, err = r.ReadBits(idxLen)
			if err != nil {
				return nil, err
			}
		}
		sizes = append(sizes, int(size))
		used += int(e.params.SizeLength) + int(idxLen)
		idxLen = e.params.IndexDeltaLength
	}
	return sizes, nil
}

// Reset implements rtp.Extractor. The Extractor holds no state between
// packets.
func (e *Extractor) Reset() {}
