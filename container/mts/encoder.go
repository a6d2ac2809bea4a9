/*
NAME
  encoder.go

DESCRIPTION
  encoder.go provides Encoder, a pipeline sink packetizing frames into an
  MPEG transport stream.

AUTHOR
  Saxon Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/codec/aac"
	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/codec/h264"
	"github.com/ausocean/rtpav/container/mts/pes"
	"github.com/ausocean/rtpav/container/mts/psi"
	"github.com/ausocean/rtpav/pipeline"
)

// These constants are used to select between the methods of when the PSI is
// sent.
const (
	psiMethodPacket = iota // PSI is inserted after a certain number of packets.
	psiMethodNAL           // PSI is inserted before each frame holding an SPS.
)

// Constants used to communicate which media codec will be packetized.
const (
	EncodeH264 = iota
	EncodeAAC
)

// The program IDs we assign to different types of media.
const (
	PIDVideo = 256
	PIDAudio = 210
)

// Time-related constants.
const (
	// ptsOffset is the offset added to the clock to determine
	// the current presentation timestamp.
	ptsOffset = 700 * time.Millisecond

	// PCRFrequency is the base Program Clock Reference frequency in Hz.
	PCRFrequency = 90000

	// PTSFrequency is the presentation timestamp frequency in Hz.
	PTSFrequency = 90000

	// MaxPTS is the largest PTS value (i.e., for a 33-bit unsigned integer).
	MaxPTS = (1 << 33) - 1

	// h264ClockRate is the RTP clock rate of H.264 (RFC 6184).
	h264ClockRate = 90000
)

// If we are not using NAL based PSI intervals then we will send PSI every 7 packets.
const psiSendCount = 7

// Default encoder configuration parameters.
const defaultRate = 25 // Frames per second.

// Start code written before every NAL unit.
var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// Encoder is a pipeline sink consuming frames of length-prefixed NAL units or
// AAC access units and writing them to an io.Writer as MPEG-TS, one PES
// packet per frame. H.264 frames are carried as Annex B and AAC access units
// behind ADTS headers.
//
// Presentation timestamps follow the RTP timestamps given by the Timestamps
// option, extended past 32 bit wrap and rescaled to 90 kHz. Without it they
// advance by a fixed frame period.
type Encoder struct {
	pipeline.Terminal
	name string
	dst  io.Writer
	log  logging.Logger

	mediaType  int
	audio      aac.Config
	mediaPID   uint16
	streamID   byte
	streamType byte

	timestamp   func() uint32
	clockRate   int64
	writePeriod time.Duration
	started     bool
	lastTS      uint32
	elapsed     int64 // In RTP clock units since the first frame.
	frames      int64

	psiMethod    int
	pktCount     int
	psiSendCount int
	psiWritten   bool

	continuity         map[uint16]byte
	patBytes, pmtBytes []byte
	es                 bytes.Buffer
	pesSpace           []byte
	tsSpace            [PacketSize]byte
}

// NewEncoder returns an Encoder called name writing to dst. By default it
// packetizes H.264.
func NewEncoder(name string, dst io.Writer, log logging.Logger, options ...func(*Encoder) error) (*Encoder, error) {
	e := &Encoder{
		name:         name,
		dst:          dst,
		log:          log,
		mediaType:    EncodeH264,
		writePeriod:  time.Second / defaultRate,
		psiSendCount: psiSendCount,
		pesSpace:     make([]byte, 0, pes.MaxPesSize),
	}

	for _, option := range options {
		err := option(e)
		if err != nil {
			return nil, fmt.Errorf("option failed with error: %w", err)
		}
	}

	switch e.mediaType {
	case EncodeH264:
		e.mediaPID = PIDVideo
		e.streamID = pes.VideoSID
		e.streamType = psi.StreamTypeH264
		e.clockRate = h264ClockRate
		e.psiMethod = psiMethodNAL
	case EncodeAAC:
		e.mediaPID = PIDAudio
		e.streamID = pes.AudioSID
		e.streamType = psi.StreamTypeADTS
		e.clockRate = int64(e.audio.Frequency)
		e.psiMethod = psiMethodPacket
	}
	if e.clockRate <= 0 {
		return nil, fmt.Errorf("invalid clock rate: %d", e.clockRate)
	}
	e.pktCount = e.psiSendCount
	e.continuity = map[uint16]byte{PatPid: 0, PmtPid: 0, e.mediaPID: 0}
	e.patBytes = psi.NewPATPSI(PmtPid).Bytes()
	e.pmtBytes = psi.NewPMTPSI(e.streamType, e.mediaPID).Bytes()
	log.Debug("encoder options applied", "encoder", name, "PID", e.mediaPID, "clockRate", e.clockRate)
	return e, nil
}

// Push implements pipeline.Consumer. It returns false, raising EventError,
// if the frame is malformed or cannot be written.
func (e *Encoder) Push(f *codecutil.View) bool {
	err := e.write(f)
	if err != nil {
		e.log.Error("could not write frame", "sink", e.name, "error", err)
		e.Emit(pipeline.Event{Kind: pipeline.EventError, Origin: e.name, Err: err})
		return false
	}
	return true
}

func (e *Encoder) write(f *codecutil.View) error {
	v, err := f.Slice(0, f.Len())
	if err != nil {
		return err
	}
	units, err := codecutil.Records(v)
	if err != nil {
		return fmt.Errorf("malformed frame: %w", err)
	}

	key := e.elementary(units)
	clock := e.clock()
	if e.es.Len() == 0 {
		return nil
	}

	switch e.psiMethod {
	case psiMethodPacket:
		if e.pktCount >= e.psiSendCount {
			e.pktCount = 0
			err = e.writePSI()
		}
	case psiMethodNAL:
		if key || !e.psiWritten {
			err = e.writePSI()
		}
	default:
		panic("undefined PSI method")
	}
	if err != nil {
		return fmt.Errorf("could not write psi: %w", err)
	}

	// Prepare PES data.
	pts := uint64(clock+e.ticks(ptsOffset)) & MaxPTS
	pesPkt := pes.Packet{
		StreamID: e.streamID,
		DAI:      true,
		PDI:      pes.HasPTS,
		PTS:      pts,
		Data:     e.es.Bytes(),
	}
	if n := pesPkt.HeaderLen() + len(pesPkt.Data); n <= 0xffff {
		pesPkt.Length = uint16(n)
	}
	e.pesSpace = pesPkt.Bytes(e.pesSpace)
	buf := e.pesSpace

	pusi := true
	for len(buf) != 0 {
		pkt := Packet{
			PUSI: pusi,
			PID:  e.mediaPID,
			RAI:  pusi && key,
			CC:   e.ccFor(e.mediaPID),
			AFC:  hasAdaptationField | hasPayload,
			PCRF: pusi,
		}
		if pusi {
			// If the packet has a Payload Unit Start Indicator
			// flag set then we need to write a PCR.
			pkt.PCR = uint64(clock) & MaxPTS
			e.log.Debug("new access unit", "PCR", pkt.PCR, "PTS", pts)
			pusi = false
		}
		n := pkt.FillPayload(buf)
		buf = buf[n:]

		_, err := e.dst.Write(pkt.Bytes(e.tsSpace[:0]))
		if err != nil {
			return fmt.Errorf("could not write MTS packet to destination: %w", err)
		}
		e.pktCount++
	}
	return nil
}

// elementary writes the elementary stream of units into e.es, reporting
// whether the frame begins a decodable sequence.
func (e *Encoder) elementary(units []*codecutil.View) bool {
	var key bool
	e.es.Reset()
	switch e.mediaType {
	case EncodeH264:
		for _, u := range units {
			typ, err := h264.UnitType(u.Bytes())
			if err != nil {
				continue
			}
			if typ == h264.NALTypeSPS {
				key = true
			}
			e.es.Write(startCode)
			e.es.Write(u.Bytes())
		}
	case EncodeAAC:
		key = true
		for _, au := range units {
			h, err := aac.NewADTSHeader(e.audio, au.Len())
			if err != nil {
				e.log.Warning("dropping access unit", "sink", e.name, "error", err)
				continue
			}
			e.es.Write(h.Bytes())
			e.es.Write(au.Bytes())
		}
	}
	return key
}

// writePSI writes a PAT followed by a PMT.
func (e *Encoder) writePSI() error {
	for _, t := range []struct {
		pid   uint16
		table []byte
	}{
		{pid: PatPid, table: e.patBytes},
		{pid: PmtPid, table: e.pmtBytes},
	} {
		pkt := Packet{
			PUSI:    true,
			PID:     t.pid,
			CC:      e.ccFor(t.pid),
			AFC:     hasPayload,
			Payload: psi.AddPadding(t.table),
		}
		_, err := e.dst.Write(pkt.Bytes(e.tsSpace[:0]))
		if err != nil {
			return fmt.Errorf("could not write PSI packet with PID %d: %w", t.pid, err)
		}
		e.pktCount++
	}
	e.psiWritten = true
	return nil
}

// clock returns the presentation time of the current frame, before offset,
// in 90 kHz ticks and advances the frame count.
func (e *Encoder) clock() int64 {
	defer func() { e.frames++ }()
	if e.timestamp == nil {
		return e.ticks(time.Duration(e.frames) * e.writePeriod)
	}

	ts := e.timestamp()
	if !e.started {
		e.started = true
		e.lastTS = ts
	}
	// The signed difference carries the clock across 32 bit wrap.
	e.elapsed += int64(int32(ts - e.lastTS))
	e.lastTS = ts
	return e.elapsed * PTSFrequency / e.clockRate
}

// ticks converts d to 90 kHz ticks.
func (e *Encoder) ticks(d time.Duration) int64 {
	return int64(d) * PTSFrequency / int64(time.Second)
}

// ccFor returns the next continuity counter for pid.
func (e *Encoder) ccFor(pid uint16) byte {
	cc := e.continuity[pid]
	const continuityCounterMask = 0xf
	e.continuity[pid] = (cc + 1) & continuityCounterMask
	return cc
}
