/*
NAME
  interleaved.go

DESCRIPTION
  interleaved.go provides InterleavedReader, which extracts RTP packets from
  a stream using RTSP interleaved binary framing (RFC 2326 section 10.12).

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
)

// Interleaved frame marker.
const interleavedMagic = '$'

// InterleavedReader reads RTP packets carried on one channel of an RTSP
// interleaved stream. Each call to Read returns exactly one packet. Frames on
// other channels, and RTSP messages between frames, are skipped.
type InterleavedReader struct {
	r       *bufio.Reader
	tp      *textproto.Reader
	channel byte
}

// NewInterleavedReader returns an InterleavedReader reading packets on the
// given channel from r.
func NewInterleavedReader(r io.Reader, channel byte) *InterleavedReader {
	br := bufio.NewReader(r)
	return &InterleavedReader{r: br, tp: textproto.NewReader(br), channel: channel}
}

// Read implements io.Reader. If p is too small for the next packet, the packet
// is dropped and io.ErrShortBuffer is returned. io.EOF is returned only at a
// frame boundary; a stream ending mid frame gives io.ErrUnexpectedEOF.
func (ir *InterleavedReader) Read(p []byte) (int, error) {
	for {
		b, err := ir.r.Peek(1)
		if err != nil {
			return 0, err
		}
		if b[0] != interleavedMagic {
			err = ir.skipMessage()
			if err != nil {
				return 0, fmt.Errorf("could not skip RTSP message: %w", err)
			}
			continue
		}

		var hdr [4]byte
		_, err = io.ReadFull(ir.r, hdr[:])
		if err != nil {
			return 0, unexpected(err)
		}
		n := int(binary.BigEndian.Uint16(hdr[2:]))

		if hdr[1] != ir.channel || n > len(p) {
			_, err = ir.r.Discard(n)
			if err != nil {
				return 0, unexpected(err)
			}
			if hdr[1] == ir.channel {
				return 0, io.ErrShortBuffer
			}
			continue
		}

		_, err = io.ReadFull(ir.r, p[:n])
		if err != nil {
			return 0, unexpected(err)
		}
		return n, nil
	}
}

// skipMessage consumes an RTSP message, its headers and any body given by
// Content-Length.
func (ir *InterleavedReader) skipMessage() error {
	_, err := ir.tp.ReadLine()
	if err != nil {
		return unexpected(err)
	}
	hdr, err := ir.tp.ReadMIMEHeader()
	if err != nil {
		return unexpected(err)
	}
	cl := hdr.Get("Content-Length")
	if cl == "" {
		return nil
	}
	n, err := strconv.Atoi(cl)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid Content-Length: %q", cl)
	}
	_, err = ir.r.Discard(n)
	return unexpected(err)
}

// unexpected converts io.EOF to io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
