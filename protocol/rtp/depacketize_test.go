/*
NAME
  depacketize_test.go

DESCRIPTION
  depacketize_test.go provides testing for the Depacketizer state machine.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"testing"

	"github.com/ausocean/utils/logging"
	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/pipeline"
)

const badPayload = 0xff

// recordExtractor writes each payload as a single record. A payload starting
// with badPayload is written and then reported as malformed.
type recordExtractor struct{ resets int }

func (x *recordExtractor) Extract(frame *codecutil.View, p *Packet) error {
	err := codecutil.WriteRecordView(frame, p.Payload)
	if err != nil {
		return err
	}
	if p.Payload.Len() != 0 && p.Payload.Bytes()[0] == badPayload {
		return &ParseError{Msg: "bad payload"}
	}
	return nil
}

func (x *recordExtractor) Reset() { x.resets++ }

// frameSink collects the records of each frame pushed to it.
type frameSink struct {
	pipeline.Terminal
	frames [][]string
	reject bool
}

func (s *frameSink) Push(f *codecutil.View) bool {
	if !f.ReadOnly() {
		panic("frame is writable")
	}
	recs, err := codecutil.Records(f)
	if err != nil {
		panic(err)
	}
	var strs []string
	for _, r := range recs {
		strs = append(strs, string(r.Bytes()))
	}
	s.frames = append(s.frames, strs)
	return !s.reject
}

// pkt returns a packet with the given sequence number, timestamp, marker and
// payload.
func pkt(seq uint16, ts uint32, marker bool, payload string) *Packet {
	v := codecutil.ViewOf([]byte(payload))
	v.MarkReadOnly()
	return &Packet{Version: rtpVer, Sequence: seq, Timestamp: ts, Marker: marker, Payload: v}
}

func newTestDepacketizer(t *testing.T, start, end Demarcator) (*Depacketizer, *frameSink) {
	d := NewDepacketizer(&recordExtractor{}, start, end, (*logging.TestLogger)(t))
	s := &frameSink{}
	d.SetDownstream(s)
	s.SetUpstream(d)
	return d, s
}

func TestDepacketizer(t *testing.T) {
	tests := []struct {
		name  string
		start Demarcator
		end   Demarcator
		in    []*Packet
		want  [][]string
		state State
		stats Stats
	}{
		{
			name:  "contiguous",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(100, 1, false, "a"),
				pkt(101, 1, false, "b"),
				pkt(102, 1, true, "c"),
			},
			want:  [][]string{{"a", "b", "c"}},
			state: StateIdle,
			stats: Stats{Frames: 1},
		},
		{
			name:  "gap",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(100, 1, false, "a"),
				pkt(102, 1, false, "c"),
			},
			state: StateDamaged,
			stats: Stats{Damaged: 1, Lost: 1, Discarded: 1},
		},
		{
			name:  "damaged until marker",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(100, 1, false, "a"),
				pkt(102, 1, false, "c"),
				pkt(103, 1, true, "d"),
				pkt(104, 2, false, "e"),
				pkt(105, 2, true, "f"),
			},
			want:  [][]string{{"e", "f"}},
			state: StateIdle,
			stats: Stats{Frames: 1, Damaged: 1, Lost: 1, Discarded: 2},
		},
		{
			name:  "damaged until new timestamp",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(100, 1, false, "a"),
				pkt(102, 1, false, "c"),
				pkt(103, 2, false, "d"),
				pkt(104, 2, true, "e"),
			},
			want:  [][]string{{"d", "e"}},
			state: StateIdle,
			stats: Stats{Frames: 1, Damaged: 1, Lost: 1, Discarded: 1},
		},
		{
			name:  "duplicate",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(100, 1, false, "a"),
				pkt(101, 1, false, "b"),
				pkt(101, 1, false, "b"),
				pkt(102, 1, false, "c"),
			},
			state: StateDamaged,
			stats: Stats{Damaged: 1, Reordered: 1, Discarded: 2},
		},
		{
			name:  "late packet",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(100, 1, false, "a"),
				pkt(101, 1, true, "b"),
				pkt(102, 2, false, "c"),
				pkt(99, 2, false, "z"),
				pkt(103, 3, true, "d"),
			},
			want:  [][]string{{"a", "b"}, {"d"}},
			state: StateIdle,
			stats: Stats{Frames: 2, Damaged: 1, Reordered: 1, Discarded: 1},
		},
		{
			name:  "lost marker contiguous",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(100, 1, false, "a"),
				pkt(101, 1, false, "b"),
				pkt(102, 2, true, "c"),
			},
			want:  [][]string{{"a", "b"}, {"c"}},
			state: StateIdle,
			stats: Stats{Frames: 2},
		},
		{
			name:  "lost marker with gap",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(100, 1, false, "a"),
				pkt(101, 1, false, "b"),
				pkt(104, 2, true, "c"),
			},
			want:  [][]string{{"c"}},
			state: StateIdle,
			stats: Stats{Frames: 1, Damaged: 1, Lost: 2},
		},
		{
			name:  "sequence wrap",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(65534, 7, false, "a"),
				pkt(65535, 7, false, "b"),
				pkt(0, 7, true, "c"),
			},
			want:  [][]string{{"a", "b", "c"}},
			state: StateIdle,
			stats: Stats{Frames: 1},
		},
		{
			name:  "always end",
			start: &TimestampDemarcator{},
			end:   AlwaysDemarcator{},
			in: []*Packet{
				pkt(1, 1, false, "a"),
				pkt(5, 2, false, "b"),
				pkt(6, 3, false, "c"),
			},
			want:  [][]string{{"a"}, {"b"}, {"c"}},
			state: StateIdle,
			stats: Stats{Frames: 3},
		},
		{
			name:  "parse error rolls back packet",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(1, 1, false, "a"),
				pkt(2, 1, false, "\xffbad"),
				pkt(3, 1, true, "c"),
			},
			want:  [][]string{{"a", "c"}},
			state: StateIdle,
			stats: Stats{Frames: 1, ParseErrors: 1},
		},
		{
			name:  "empty frame not emitted",
			start: &TimestampDemarcator{},
			end:   MarkerDemarcator{},
			in: []*Packet{
				pkt(1, 1, true, "\xff"),
				pkt(2, 2, true, "b"),
			},
			want:  [][]string{{"b"}},
			state: StateIdle,
			stats: Stats{Frames: 1, ParseErrors: 1},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, s := newTestDepacketizer(t, test.start, test.end)
			for _, p := range test.in {
				if !d.Push(p) {
					t.Fatalf("unexpected rejection of packet %d", p.Sequence)
				}
			}
			if !cmp.Equal(s.frames, test.want) {
				t.Errorf("unexpected frames, diff:\n%s", cmp.Diff(test.want, s.frames))
			}
			if d.State() != test.state {
				t.Errorf("unexpected state. Got: %v Want: %v", d.State(), test.state)
			}
			if !cmp.Equal(d.Stats(), test.stats) {
				t.Errorf("unexpected stats, diff:\n%s", cmp.Diff(test.stats, d.Stats()))
			}
		})
	}
}

func TestDepacketizerOnDamage(t *testing.T) {
	d, _ := newTestDepacketizer(t, &TimestampDemarcator{}, MarkerDemarcator{})
	var got [][2]uint16
	d.OnDamage = func(expected, seq uint16) { got = append(got, [2]uint16{expected, seq}) }

	d.Push(pkt(10, 1, false, "a"))
	d.Push(pkt(13, 1, false, "b"))

	want := [][2]uint16{{11, 13}}
	if !cmp.Equal(got, want) {
		t.Errorf("unexpected damage reports, diff:\n%s", cmp.Diff(want, got))
	}
}

func TestDepacketizerFlushing(t *testing.T) {
	d, s := newTestDepacketizer(t, &TimestampDemarcator{}, MarkerDemarcator{})

	d.Push(pkt(1, 1, false, "a"))
	d.SetFlushing(true)
	if d.State() != StateIdle {
		t.Errorf("frame in progress survived flushing, state: %v", d.State())
	}

	// Pushes while flushing are accepted and dropped.
	if !d.Push(pkt(2, 1, true, "b")) {
		t.Error("push while flushing was rejected")
	}

	d.SetFlushing(false)
	d.Push(pkt(3, 2, true, "c"))

	want := [][]string{{"c"}}
	if !cmp.Equal(s.frames, want) {
		t.Errorf("unexpected frames, diff:\n%s", cmp.Diff(want, s.frames))
	}
}

// timestampSink records the timestamp reported by its Depacketizer for each
// frame pushed to it.
type timestampSink struct {
	pipeline.Terminal
	d   *Depacketizer
	got []uint32
}

func (s *timestampSink) Push(*codecutil.View) bool {
	s.got = append(s.got, s.d.Timestamp())
	return true
}

func TestDepacketizerTimestamp(t *testing.T) {
	d := NewDepacketizer(&recordExtractor{}, &TimestampDemarcator{}, MarkerDemarcator{}, (*logging.TestLogger)(t))
	s := &timestampSink{d: d}
	d.SetDownstream(s)

	for _, p := range []*Packet{
		pkt(1, 3000, false, "a"),
		pkt(2, 3000, true, "b"),
		pkt(3, 6000, false, "c"),
		pkt(4, 9000, true, "d"), // Ends the frame at 6000 and the one at 9000.
		pkt(5, 12000, false, "e"),
	} {
		d.Push(p)
	}

	want := []uint32{3000, 6000, 9000}
	if !cmp.Equal(s.got, want) {
		t.Errorf("unexpected timestamps, diff:\n%s", cmp.Diff(want, s.got))
	}

	if d.Assemble() == nil {
		t.Fatal("expected frame in progress")
	}
	if d.Timestamp() != 12000 {
		t.Errorf("unexpected timestamp of assembled frame. Got: %d Want: 12000", d.Timestamp())
	}
}

func TestDepacketizerAssemble(t *testing.T) {
	d, _ := newTestDepacketizer(t, &TimestampDemarcator{}, MarkerDemarcator{})
	if f := d.Assemble(); f != nil {
		t.Errorf("expected no frame from idle depacketizer, got: %v", f)
	}

	d.Push(pkt(1, 1, false, "a"))
	f := d.Assemble()
	if f == nil {
		t.Fatal("expected frame in progress")
	}
	if !f.ReadOnly() {
		t.Error("assembled frame is writable")
	}
	recs, err := codecutil.Records(f)
	if err != nil || len(recs) != 1 || string(recs[0].Bytes()) != "a" {
		t.Errorf("unexpected assembled frame: %v, err: %v", f, err)
	}
	if d.State() != StateIdle {
		t.Errorf("unexpected state after Assemble: %v", d.State())
	}
}

func TestDepacketizerBackpressure(t *testing.T) {
	d, s := newTestDepacketizer(t, &TimestampDemarcator{}, MarkerDemarcator{})
	s.reject = true
	if d.Push(pkt(1, 1, true, "a")) {
		t.Error("expected downstream rejection to be reported")
	}
}
