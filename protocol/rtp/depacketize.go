/*
NAME
  depacketize.go

DESCRIPTION
  depacketize.go provides Depacketizer, a pipeline transform that reassembles
  codec frames from RTP packets, tracking sequence continuity and discarding
  frames damaged by packet loss.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/pipeline"
)

// Initial capacity of a frame buffer; frames grow beyond this as required.
const frameCap = 4096

// State is the reassembly state of a Depacketizer.
type State int

// Depacketizer states.
const (
	StateIdle         State = iota // No frame in progress.
	StateAccumulating              // Appending packets to a frame.
	StateDamaged                   // Discarding packets until the next frame boundary.
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateDamaged:
		return "damaged"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Extractor pulls codec data out of a packet payload and appends it to frame
// as length-prefixed records (see codecutil.WriteRecord). An Extractor may
// hold state across packets of the same frame, such as a partly reassembled
// fragment; Reset discards it.
//
// If Extract returns an error the Depacketizer discards whatever the call
// appended to frame, so an Extractor need not clean up after itself.
type Extractor interface {
	Extract(frame *codecutil.View, p *Packet) error
	Reset()
}

// Stats holds counters describing the work done by a Depacketizer.
type Stats struct {
	Frames      uint64 // Frames emitted.
	Damaged     uint64 // Frames discarded because of packet loss.
	Lost        uint64 // Packets missing from the sequence.
	Reordered   uint64 // Packets arriving behind the expected sequence number.
	Discarded   uint64 // Packets received while damaged and dropped.
	ParseErrors uint64 // Packets whose payload could not be extracted.
}

// Depacketizer is a pipeline transform that consumes RTP packets and produces
// frames. A frame is a read-only View holding one or more length-prefixed
// records, each a codec unit such as an H.264 NAL unit or an AAC access unit.
//
// Frame boundaries are found by two Demarcators. The start Demarcator marks
// the first packet of a frame; if a frame is still in progress when it fires,
// that frame is emitted if the new packet follows it without a gap, and
// discarded otherwise. The end Demarcator marks the last packet of a frame, on
// which the frame is emitted.
//
// A gap in sequence numbers while a frame is in progress damages it: the frame
// is discarded and packets are dropped until the next frame boundary.
//
// Push must not be called concurrently.
type Depacketizer struct {
	pipeline.Link[*codecutil.View]

	// OnDamage, if not nil, is called when a sequence gap damages a frame.
	// It is called from Push and must not block.
	OnDamage func(expected, got uint16)

	mu      sync.Mutex
	log     logging.Logger
	x       Extractor
	start   Demarcator
	end     Demarcator
	state   State
	frame   *codecutil.View
	frameTS uint32 // RTP timestamp of the frame in progress.
	emitTS  uint32 // RTP timestamp of the frame last pushed downstream.
	expect  uint16
	stats   Stats
}

// emitted is a completed frame and its RTP timestamp.
type emitted struct {
	f  *codecutil.View
	ts uint32
}

// NewDepacketizer returns a Depacketizer that extracts frame data using x and
// finds frame boundaries using the start and end Demarcators.
func NewDepacketizer(x Extractor, start, end Demarcator, log logging.Logger) *Depacketizer {
	return &Depacketizer{
		log:   log,
		x:     x,
		start: start,
		end:   end,
		frame: codecutil.NewView(frameCap),
	}
}

// Push implements pipeline.Consumer. Frames completed by p are pushed
// downstream before Push returns. While flushing, p is dropped.
func (d *Depacketizer) Push(p *Packet) bool {
	if d.Flushing() {
		return true
	}

	d.mu.Lock()
	frames := d.add(p)
	d.mu.Unlock()

	ok := true
	for _, e := range frames {
		d.mu.Lock()
		d.emitTS = e.ts
		d.mu.Unlock()
		if !d.Link.Push(e.f) {
			ok = false
		}
	}
	return ok
}

// Timestamp returns the RTP timestamp of the frame most recently pushed
// downstream, or returned by Assemble. Sinks may call it from their Push to
// learn the timestamp of the frame they are given.
func (d *Depacketizer) Timestamp() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emitTS
}

// add runs p through the state machine and returns any frames it completed.
func (d *Depacketizer) add(p *Packet) []emitted {
	var out []emitted

	if d.start.Check(p) {
		switch d.state {
		case StateAccumulating:
			if p.Sequence == d.expect {
				out = d.appendFrame(out)
			} else {
				d.damage(p)
			}
			d.resync()
		case StateDamaged:
			d.log.Debug("resynchronised at frame start", "seq", p.Sequence)
			d.resync()
		}
	}

	switch d.state {
	case StateIdle:
		d.frameTS = p.Timestamp
		d.extract(p)
		d.state = StateAccumulating
	case StateAccumulating:
		if p.Sequence != d.expect {
			d.damage(p)
			d.stats.Discarded++
			break
		}
		d.extract(p)
	case StateDamaged:
		d.log.Debug("discarding packet from damaged frame", "seq", p.Sequence)
		d.stats.Discarded++
	}
	d.expect = p.Sequence + 1

	if d.end.Check(p) {
		switch d.state {
		case StateAccumulating:
			out = d.appendFrame(out)
		case StateDamaged:
			d.resync()
		}
	}
	return out
}

// extract appends the contents of p to the current frame. On failure the
// packet's contribution is removed.
func (d *Depacketizer) extract(p *Packet) {
	mark := d.frame.Len()
	var err error
	if p.Payload == nil {
		err = &ParseError{Msg: "packet has no payload"}
	} else {
		err = d.x.Extract(d.frame, p)
	}
	if err == nil {
		return
	}

	d.stats.ParseErrors++
	var pe *ParseError
	if errors.As(err, &pe) {
		d.log.Warning("could not extract packet", "seq", p.Sequence, "error", err)
	} else {
		d.log.Error("unexpected extraction failure", "seq", p.Sequence, "error", err)
	}
	terr := d.frame.Truncate(mark)
	if terr != nil {
		panic(fmt.Sprintf("could not roll back frame: %v", terr))
	}
}

// Sequence gaps at or beyond this distance are taken to be packets arriving
// late or duplicated rather than lost.
const maxForwardGap = 0x8000

// damage discards the frame in progress and marks the Depacketizer damaged.
func (d *Depacketizer) damage(p *Packet) {
	gap := p.Sequence - d.expect
	if gap < maxForwardGap {
		d.log.Debug("lost packet", "expected", d.expect, "got", p.Sequence)
		d.stats.Lost += uint64(gap)
	} else {
		d.log.Debug("reordered packet", "expected", d.expect, "got", p.Sequence)
		d.stats.Reordered++
	}
	d.stats.Damaged++
	d.discard()
	d.state = StateDamaged
	if d.OnDamage != nil {
		d.OnDamage(d.expect, p.Sequence)
	}
}

// appendFrame assembles the current frame and appends it to out if it holds
// anything.
func (d *Depacketizer) appendFrame(out []emitted) []emitted {
	ts := d.frameTS
	f := d.assemble()
	if f.Len() == 0 {
		return out
	}
	d.stats.Frames++
	return append(out, emitted{f: f, ts: ts})
}

// assemble freezes and returns the current frame and returns to idle.
func (d *Depacketizer) assemble() *codecutil.View {
	f := d.frame
	f.MarkReadOnly()
	d.frame = codecutil.NewView(frameCap)
	d.x.Reset()
	d.state = StateIdle
	return f
}

// discard drops the current frame without leaving the current state.
func (d *Depacketizer) discard() {
	if d.frame.Len() != 0 {
		d.frame = codecutil.NewView(frameCap)
	}
	d.x.Reset()
}

// resync discards any frame in progress and returns to idle.
func (d *Depacketizer) resync() {
	d.discard()
	d.state = StateIdle
}

// Assemble freezes and returns the frame in progress, or nil if there is
// none, and returns the Depacketizer to idle. It is used to recover the last
// frame of a stream whose final packet carried no end boundary.
func (d *Depacketizer) Assemble() *codecutil.View {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateAccumulating || d.frame.Len() == 0 {
		d.resync()
		return nil
	}
	d.stats.Frames++
	d.emitTS = d.frameTS
	return d.assemble()
}

// SetFlushing overrides Link.SetFlushing; entering the flushing state also
// discards any frame in progress.
func (d *Depacketizer) SetFlushing(flushing bool) {
	d.Link.SetFlushing(flushing)
	if !flushing {
		return
	}
	d.mu.Lock()
	d.resync()
	d.start.Reset()
	d.end.Reset()
	d.mu.Unlock()
}

// State returns the current reassembly state.
func (d *Depacketizer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Stats returns a snapshot of the Depacketizer's counters.
func (d *Depacketizer) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
