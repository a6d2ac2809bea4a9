/*
NAME
  writer.go

DESCRIPTION
  writer.go provides Writer, a pipeline sink writing AAC access units as an
  ADTS stream.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package adts provides a sink writing depacketized AAC as an ADTS stream,
// the format of raw .aac files.
package adts

import (
	"fmt"
	"io"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/codec/aac"
	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/pipeline"
)

// Writer is a pipeline sink consuming frames of length-prefixed AAC access
// units and writing each access unit behind a 7 byte ADTS header.
type Writer struct {
	pipeline.Terminal
	name string
	dst  io.Writer
	log  logging.Logger
	cfg  aac.Config
}

// NewWriter returns a Writer called name writing to dst. The stream is
// described by cfg, usually from the config parameter of the stream's fmtp
// attribute.
func NewWriter(name string, dst io.Writer, cfg aac.Config, log logging.Logger) (*Writer, error) {
	_, err := aac.NewADTSHeader(cfg, 0)
	if err != nil {
		return nil, fmt.Errorf("unsupported stream config: %w", err)
	}
	return &Writer{name: name, dst: dst, log: log, cfg: cfg}, nil
}

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
	v, err := f.Slice(0, f.Len())
	if err != nil {
		return err
	}
	aus, err := codecutil.Records(v)
	if err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}

	for _, au := range aus {
		h, err := aac.NewADTSHeader(w.cfg, au.Len())
		if err != nil {
			w.log.Warning("dropping access unit", "sink", w.name, "error", err)
			continue
		}
		_, err = w.dst.Write(h.Bytes())
		if err != nil {
			return err
		}
		_, err = w.dst.Write(au.Bytes())
		if err != nil {
			return err
		}
	}
	return nil
}
