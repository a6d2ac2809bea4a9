/*
NAME
  writer.go

DESCRIPTION
  writer.go provides Writer, a pipeline sink writing H.264 frames as an
  Annex B byte stream.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package annexb provides a sink writing depacketized H.264 as an Annex B
// byte stream (ITU-T H.264 Annex B), the format of raw .264 files.
package annexb

import (
	"fmt"
	"io"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/codec/h264"
	"github.com/ausocean/rtpav/pipeline"
)

// Start code written before every NAL unit.
var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// Writer is a pipeline sink consuming frames of length-prefixed NAL units
// and writing each NAL unit, preceded by a start code, to an io.Writer.
//
// A decoder cannot begin without parameter sets, so nothing is written until
// both an SPS and a PPS have been seen. They are written first, followed by
// the NAL units after them.
type Writer struct {
	pipeline.Terminal
	name  string
	dst   io.Writer
	log   logging.Logger
	sps   []byte
	pps   []byte
	ready bool
}

// NewWriter returns a Writer called name writing to dst.
func NewWriter(name string, dst io.Writer, log logging.Logger) *Writer {
	return &Writer{name: name, dst: dst, log: log}
}

// Ready reports whether parameter sets have been seen and NAL units are
// being written.
func (w *Writer) Ready() bool { return w.ready }

// Push implements pipeline.Consumer. It returns false, raising EventError,
// if the frame is malformed or cannot be written.
func (w *Writer) Push(f *codecutil.View) bool {
	err := w.write(f)
	if err != nil {
		w.log.Error("could not write frame", "sink", w.name, "error", err)
		w.Emit(pipeline.Event{Kind: pipeline.EventError, Origin: w.name, Err: err})
		return false
	}
	return true
}

func (w *Writer) write(f *codecutil.View) error {
	// Read through a slice so that the frame's own cursor is untouched.
	v, err := f.Slice(0, f.Len())
	if err != nil {
		return err
	}
	nalus, err := codecutil.Records(v)
	if err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}

	for _, n := range nalus {
		nalu := n.Bytes()
		if !w.ready {
			w.gate(nalu)
			if !w.ready {
				continue
			}
			w.log.Info("parameter sets received, writing stream", "sink", w.name)
			err = w.writeNALU(w.sps)
			if err == nil {
				err = w.writeNALU(w.pps)
			}
			if err != nil {
				return err
			}
			continue
		}
		err = w.writeNALU(nalu)
		if err != nil {
			return err
		}
	}
	return nil
}

// gate records nalu if it is a parameter set and opens the gate once both an
// SPS and a PPS are held.
func (w *Writer) gate(nalu []byte) {
	typ, err := h264.UnitType(nalu)
	if err != nil {
		return
	}
	switch typ {
	case h264.NALTypeSPS:
		w.sps = append(w.sps[:0], nalu...)
	case h264.NALTypePPS:
		w.pps = append(w.pps[:0], nalu...)
	default:
		w.log.Debug("dropping NAL unit before parameter sets", "sink", w.name, "type", typ)
	}
	w.ready = w.sps != nil && w.pps != nil
}

func (w *Writer) writeNALU(nalu []byte) error {
	_, err := w.dst.Write(startCode)
	if err != nil {
		return err
	}
	_, err = w.dst.Write(nalu)
	return err
}
