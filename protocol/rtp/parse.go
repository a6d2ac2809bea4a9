/*
NAME
  parse.go

DESCRIPTION
  parse.go provides functionality for parsing RTP packets.

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
	"encoding/binary"
	"errors"

	pionrtp "github.com/pion/rtp"

	"github.com/ausocean/rtpav/codec/codecutil"
)

const badVer = "incompatible RTP version"

// ParseError reports a malformed packet, or malformed codec content within a
// packet's payload.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes the RTP packet held in d. The returned Packet does not alias
// d; its payload is copied into storage of its own and marked read-only.
func Parse(d []byte) (*Packet, error) {
	err := checkPacket(d)
	if err != nil {
		return nil, &ParseError{Msg: "invalid packet", Err: err}
	}

	var pp pionrtp.Packet
	err = pp.Unmarshal(d)
	if err != nil {
		return nil, &ParseError{Msg: "could not unmarshal packet", Err: err}
	}

	p := &Packet{
		Version:     pp.Version,
		PaddingFlag: pp.Padding,
		ExtHeadFlag: pp.Extension,
		CSRCCount:   uint8(len(pp.CSRC)),
		Marker:      pp.Marker,
		PayloadType: pp.PayloadType,
		Sequence:    pp.SequenceNumber,
		Timestamp:   pp.Timestamp,
		SSRC:        pp.SSRC,
	}

	for _, c := range pp.CSRC {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], c)
		p.CSRC = append(p.CSRC, b)
	}

	if pp.Extension {
		idx := optionalFieldIdx + 4*len(pp.CSRC)
		p.Extension.ID = binary.BigEndian.Uint16(d[idx:])
		n := int(binary.BigEndian.Uint16(d[idx+2:]))
		idx += 4
		for i := 0; i < n; i++ {
			var w [4]byte
			copy(w[:], d[idx+4*i:])
			p.Extension.Header = append(p.Extension.Header, w)
		}
	}

	if pp.Padding {
		pad := int(d[len(d)-1])
		p.Padding = append([]byte(nil), d[len(d)-pad:]...)
	}

	p.Payload = codecutil.ViewOf(append([]byte(nil), pp.Payload...))
	p.Payload.MarkReadOnly()
	return p, nil
}

// Marker returns the state of the RTP marker bit, and an error if parsing fails.
func Marker(d []byte) (bool, error) {
	err := checkPacket(d)
	if err != nil {
		return false, err
	}
	return d[1]&0x80 != 0, nil
}

// Payload returns the payload from an RTP packet provided the version is
// compatible, otherwise an error is returned. The returned slice aliases d
// and includes any padding.
func Payload(d []byte) ([]byte, error) {
	err := checkPacket(d)
	if err != nil {
		return nil, err
	}
	idx := optionalFieldIdx + 4*csrcCount(d)
	if hasExt(d) {
		if len(d) < idx+4 {
			return nil, errors.New("truncated extension header")
		}
		idx += 4 + 4*int(binary.BigEndian.Uint16(d[idx+2:]))
	}
	if idx > len(d) {
		return nil, errors.New("invalid RTP packet length")
	}
	return d[idx:], nil
}

// SSRC returns the source identifier from an RTP packet. An error is return if
// the packet is not valid.
func SSRC(d []byte) (uint32, error) {
	err := checkPacket(d)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d[8:]), nil
}

// Sequence returns the sequence number of an RTP packet. An error is returned
// if the packet is not valid.
func Sequence(d []byte) (uint16, error) {
	err := checkPacket(d)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(d[2:]), nil
}

// Timestamp returns the RTP timestamp of an RTP packet. An error is returned
// if the packet is not valid.
func Timestamp(d []byte) (uint32, error) {
	err := checkPacket(d)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d[4:]), nil
}

// checkPacket checks the validity of the packet, firstly by checking size and
// then also checking that version is compatible with these utilities.
func checkPacket(d []byte) error {
	if len(d) < defaultHeadSize {
		return errors.New("invalid RTP packet length")
	}
	if version(d) != rtpVer {
		return errors.New(badVer)
	}
	return nil
}

// hasExt returns true if an extension is present in the RTP packet.
func hasExt(d []byte) bool {
	return (d[0] & 0x10 >> 4) == 1
}

// csrcCount returns the number of CSRC fields.
func csrcCount(d []byte) int {
	return int(d[0] & 0x0f)
}

// version returns the version of the RTP packet.
func version(d []byte) int {
	return int(d[0] & 0xc0 >> 6)
}
