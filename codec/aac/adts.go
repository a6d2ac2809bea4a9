/*
NAME
  adts.go

DESCRIPTION
  adts.go provides encoding and parsing of ADTS (Audio Data Transport
  Stream) frame headers.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package aac

import (
	"bytes"
	"fmt"
	"io"

	"github.com/icza/bitio"
	"github.com/pkg/errors"
)

// ADTSHeader holds the fields of an ADTS frame header.
type ADTSHeader struct {
	// Fixed Header Fields
	Syncword               uint16 // Should always be 0xFFF
	MPEGID                 uint8  // 0: MPEG-4, 1: MPEG-2
	ProtectionAbsent       bool   // true if no CRC (7-byte header)
	Profile                uint8  // AAC Profile, the audio object type minus one (1=AAC-LC)
	SamplingFrequencyIndex uint8
	ChannelConfiguration   uint8

	// Variable Header Fields
	FrameLength    uint16 // Total length of this ADTS frame in bytes (header + payload)
	BufferFullness uint16 // Decoder buffer fullness; 0x7FF signals variable bit rate.
	RawDataBlocks  uint8  // Number of raw data blocks (payloads) in this frame minus 1 (usually 0)
}

// Fixed constant for the Syncword (1111 1111 1111)
const adtsSyncword uint16 = 0xFFF

// ADTSHeaderSize is 7 bytes if protection_absent is 1 (no CRC).
const ADTSHeaderSize = 7

// Largest value of the 13 bit frame length field.
const maxFrameLength = 1<<13 - 1

// Buffer fullness signalling a variable bit rate stream.
const vbrFullness = 0x7FF

// NewADTSHeader returns the header of an ADTS frame carrying one access unit
// of auLen bytes from a stream described by c.
func NewADTSHeader(c Config, auLen int) (*ADTSHeader, error) {
	if c.ObjectType < ObjectTypeMain || c.ObjectType > ObjectTypeLTP {
		return nil, fmt.Errorf("object type %d cannot be carried in ADTS", c.ObjectType)
	}
	if int(c.FrequencyIndex) >= len(sampleRates) {
		return nil, fmt.Errorf("frequency index %d cannot be carried in ADTS", c.FrequencyIndex)
	}
	if c.ChannelConfig > 7 {
		return nil, fmt.Errorf("channel configuration %d cannot be carried in ADTS", c.ChannelConfig)
	}
	if auLen+ADTSHeaderSize > maxFrameLength {
		return nil, fmt.Errorf("access unit of %d bytes too long for ADTS", auLen)
	}
	return &ADTSHeader{
		Syncword:               adtsSyncword,
		ProtectionAbsent:       true,
		Profile:                c.ObjectType - 1,
		SamplingFrequencyIndex: c.FrequencyIndex,
		ChannelConfiguration:   c.ChannelConfig,
		FrameLength:            uint16(auLen + ADTSHeaderSize),
		BufferFullness:         vbrFullness,
	}, nil
}

// Bytes returns the 7 byte encoding of h. The CRC, if any, is not included.
func (h *ADTSHeader) Bytes() []byte {
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	w.WriteBits(uint64(adtsSyncword), 12)
	w.WriteBits(uint64(h.MPEGID), 1)
	w.WriteBits(0, 2) // Layer.
	w.WriteBool(h.ProtectionAbsent)
	w.WriteBits(uint64(h.Profile), 2)
	w.WriteBits(uint64(h.SamplingFrequencyIndex), 4)
	w.WriteBits(0, 1) // Private bit.
	w.WriteBits(uint64(h.ChannelConfiguration), 3)
	w.WriteBits(0, 4) // Original/copy, home and copyright bits.
	w.WriteBits(uint64(h.FrameLength), 13)
	w.WriteBits(uint64(h.BufferFullness), 11)
	w.WriteBits(uint64(h.RawDataBlocks), 2)

	// Writes to a bytes.Buffer cannot fail.
	w.Close()
	return buf.Bytes()
}

// Config returns the AudioSpecificConfig fields described by h.
func (h *ADTSHeader) Config() Config {
	c := Config{
		ObjectType:     h.Profile + 1,
		FrequencyIndex: h.SamplingFrequencyIndex,
		ChannelConfig:  h.ChannelConfiguration,
	}
	if int(h.SamplingFrequencyIndex) < len(sampleRates) {
		c.Frequency = sampleRates[h.SamplingFrequencyIndex]
	}
	return c
}

// parseADTSHeader parses the 7 byte header in b.
func parseADTSHeader(b []byte) (*ADTSHeader, error) {
	r := bitio.NewReader(bytes.NewReader(b))
	var h ADTSHeader
	field := func(n uint8) uint64 {
		v, _ := r.ReadBits(n)
		return v
	}

	h.Syncword = uint16(field(12))
	if h.Syncword != adtsSyncword {
		return nil, fmt.Errorf("syncword mismatch: expected 0x%X, got 0x%X", adtsSyncword, h.Syncword)
	}
	h.MPEGID = uint8(field(1))
	field(2) // Layer.
	h.ProtectionAbsent = field(1) == 1
	h.Profile = uint8(field(2))
	h.SamplingFrequencyIndex = uint8(field(4))
	field(1) // Private bit.
	h.ChannelConfiguration = uint8(field(3))
	field(4) // Original/copy, home and copyright bits.
	h.FrameLength = uint16(field(13))
	h.BufferFullness = uint16(field(11))
	h.RawDataBlocks = uint8(field(2))
	return &h, nil
}

// ReadADTSFrame reads the next ADTS frame from the stream and returns the
// parsed header and the frame's payload. io.EOF is returned if the stream
// ends before a header.
func ReadADTSFrame(r io.Reader) (*ADTSHeader, []byte, error) {
	buf := make([]byte, ADTSHeaderSize)
	_, err := io.ReadFull(r, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, nil, io.EOF
		}
		return nil, nil, errors.Wrap(err, "failed to read ADTS header")
	}

	header, err := parseADTSHeader(buf)
	if err != nil {
		return nil, nil, err
	}

	payloadSize := int(header.FrameLength) - ADTSHeaderSize

	// If protection is NOT absent, the header is followed by a 16-bit CRC.
	if !header.ProtectionAbsent {
		payloadSize -= 2
		_, err = io.CopyN(io.Discard, r, 2)
		if err != nil {
			return header, nil, errors.Wrap(err, "failed to skip CRC checksum")
		}
	}

	if payloadSize <= 0 {
		return header, nil, fmt.Errorf("invalid frame length: %d bytes", header.FrameLength)
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(r, payload)
	if err != nil {
		return header, nil, errors.Wrapf(err, "failed to read frame payload of size %d", payloadSize)
	}
	return header, payload, nil
}
