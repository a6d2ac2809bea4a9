/*
NAME
  outputs.go

DESCRIPTION
  outputs.go provides the pipeline sinks used by the receiver to hand frames
  to its senders.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package receiver

import (
	"bytes"
	"io"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/pipeline"
)

// Records is a pipeline sink writing frames as they are, a sequence of big
// endian int32 length prefixed records, without codec specific framing.
type Records struct {
	pipeline.Terminal
	name string
	dst  io.Writer
	log  logging.Logger
}

// NewRecords returns a Records sink called name writing to dst.
func NewRecords(name string, dst io.Writer, log logging.Logger) *Records {
	return &Records{name: name, dst: dst, log: log}
}

// Push implements pipeline.Consumer.
func (r *Records) Push(f *codecutil.View) bool {
	_, err := r.dst.Write(f.Bytes())
	if err != nil {
		r.log.Error("could not write frame", "sink", r.name, "error", err)
		r.Emit(pipeline.Event{Kind: pipeline.EventError, Origin: r.name, Err: err})
		return false
	}
	return true
}

// framed is a sink giving a container sink a buffer to write to, and then
// writing all that the container produced for a frame to dst at once.
// Senders storing or sending each write as a unit then hold whole frames.
type framed struct {
	pipeline.Terminal
	sink pipeline.Consumer[*codecutil.View]
	buf  *bytes.Buffer
	dst  io.Writer
	log  logging.Logger
}

// newFramed returns a framed sink. newSink is called with the buffer the
// container sink is to write to.
func newFramed(dst io.Writer, log logging.Logger, newSink func(w io.Writer) (pipeline.Consumer[*codecutil.View], error)) (*framed, error) {
	f := &framed{buf: &bytes.Buffer{}, dst: dst, log: log}
	s, err := newSink(f.buf)
	if err != nil {
		return nil, err
	}
	s.SetUpstream(pipeline.EventHandlerFunc(f.Emit))
	f.sink = s
	return f, nil
}

// Push implements pipeline.Consumer.
func (f *framed) Push(v *codecutil.View) bool {
	defer f.buf.Reset()
	ok := f.sink.Push(v)
	if f.buf.Len() == 0 {
		return ok
	}
	_, err := f.dst.Write(f.buf.Bytes())
	if err != nil {
		f.log.Error("could not write frame", "error", err)
		f.Emit(pipeline.Event{Kind: pipeline.EventError, Origin: "output", Err: err})
		return false
	}
	return ok
}

// tee is a sink pushing each frame to every one of a number of sinks.
type tee []pipeline.Consumer[*codecutil.View]

// Push implements pipeline.Consumer. It returns false if any sink did.
func (t tee) Push(f *codecutil.View) bool {
	ok := true
	for _, s := range t {
		ok = s.Push(f) && ok
	}
	return ok
}

// SetUpstream implements pipeline.Consumer.
func (t tee) SetUpstream(h pipeline.EventHandler) {
	for _, s := range t {
		s.SetUpstream(h)
	}
}
