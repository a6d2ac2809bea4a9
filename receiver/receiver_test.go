/*
NAME
  receiver_test.go

DESCRIPTION
  receiver_test.go provides testing of the receiver from input to output
  files.

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
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	gotspacket "github.com/Comcast/gots/packet"
	gotspes "github.com/Comcast/gots/pes"
	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/rtpav/codec/aac"
	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/container/mts"
	"github.com/ausocean/rtpav/protocol/rtp"
	"github.com/ausocean/rtpav/receiver/config"
)

const testChannel = 2

var (
	sps    = []byte{0x67, 0x42, 0x00, 0x1e, 0xab}
	pps    = []byte{0x68, 0xce, 0x38, 0x80}
	idr    = append([]byte{0x65}, bytes.Repeat([]byte{0x88}, 40)...)
	nonIDR = []byte{0x41, 0x9a, 0x02, 0x03}
)

// packet returns an interleaved frame holding an RTP packet.
func packet(t *testing.T, seq uint16, ts uint32, marker bool, payload []byte) []byte {
	t.Helper()
	p := rtp.Packet{
		Version:     2,
		Marker:      marker,
		PayloadType: 96,
		Sequence:    seq,
		Timestamp:   ts,
		SSRC:        0x1234,
		Payload:     codecutil.ViewOf(payload),
	}
	b := p.Bytes(nil)
	hdr := []byte{'$', testChannel, 0, 0}
	binary.BigEndian.PutUint16(hdr[2:], uint16(len(b)))
	return append(hdr, b...)
}

// h264Stream returns an interleaved stream of two H.264 frames. The first
// carries parameter sets in a STAP-A and an IDR in FU-A fragments. The
// second has no end boundary; it is only complete at the end of the stream.
func h264Stream(t *testing.T) []byte {
	stap := []byte{0x18}
	for _, n := range [][]byte{sps, pps} {
		stap = append(stap, byte(len(n)>>8), byte(len(n)))
		stap = append(stap, n...)
	}
	fuStart := append([]byte{0x7c, 0x85}, idr[1:21]...)
	fuEnd := append([]byte{0x7c, 0x45}, idr[21:]...)

	var s []byte
	s = append(s, packet(t, 10, 1000, false, stap)...)
	s = append(s, "RTSP/1.0 200 OK\r\nCSeq: 4\r\nContent-Length: 0\r\n\r\n"...)
	s = append(s, packet(t, 11, 1000, false, fuStart)...)
	s = append(s, packet(t, 12, 1000, true, fuEnd)...)
	s = append(s, packet(t, 13, 4000, false, nonIDR)...)
	return s
}

// records returns frames as written by the records output.
func records(t *testing.T, frames ...[][]byte) []byte {
	t.Helper()
	v := codecutil.NewView(0)
	for _, f := range frames {
		for _, r := range f {
			err := codecutil.WriteRecord(v, r)
			if err != nil {
				t.Fatalf("could not write record: %v", err)
			}
		}
	}
	return v.Bytes()
}

// outputFile returns the content of the only file in dir with extension ext.
func outputFile(t *testing.T, dir, ext string) []byte {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one %s file, got: %v, err: %v", ext, matches, err)
	}
	d, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("could not read output: %v", err)
	}
	return d
}

// waitDone waits for the input of r to end.
func waitDone(t *testing.T, r *Receiver) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for end of stream")
	}
}

func TestManualH264(t *testing.T) {
	dir := t.TempDir()
	r, err := New(config.Config{
		Logger:     (*testLogger)(t),
		Input:      config.InputManual,
		InputCodec: codecutil.H264,
		Channel:    testChannel,
		Outputs:    []uint8{config.OutputFile, config.OutputRecords, config.OutputMTS},
		OutputPath: filepath.Join(dir, "out_"),
	})
	if err != nil {
		t.Fatalf("could not create receiver: %v", err)
	}

	err = r.Start()
	if err != nil {
		t.Fatalf("could not start receiver: %v", err)
	}

	_, err = r.Write(h264Stream(t))
	if err != nil {
		t.Fatalf("could not write to receiver: %v", err)
	}
	err = r.CloseInput()
	if err != nil {
		t.Fatalf("could not close input: %v", err)
	}
	waitDone(t, r)
	r.Stop()

	if r.Running() {
		t.Error("receiver running after stop")
	}
	if got := r.Stats(); got.Frames != 2 || got.Damaged != 0 || got.ParseErrors != 0 {
		t.Errorf("unexpected stats: %+v", got)
	}

	sc := []byte{0, 0, 0, 1}
	wantStream := bytes.Join([][]byte{sc, sps, sc, pps, sc, idr, sc, nonIDR}, nil)
	got := outputFile(t, dir, extH264)
	if !bytes.Equal(got, wantStream) {
		t.Errorf("unexpected Annex B output.\nGot:  %x\nWant: %x", got, wantStream)
	}

	wantRecords := records(t, [][]byte{sps, pps, idr}, [][]byte{nonIDR})
	got = outputFile(t, dir, extRecords)
	if !bytes.Equal(got, wantRecords) {
		t.Errorf("unexpected records output.\nGot:  %x\nWant: %x", got, wantRecords)
	}

	// Frames are 3000 ticks apart in RTP time, presented after a 63000 tick offset.
	wantPTS := []uint64{63000, 66000}
	gotPTS := videoPTS(t, outputFile(t, dir, extMTS))
	if !cmp.Equal(gotPTS, wantPTS) {
		t.Errorf("unexpected MPEG-TS presentation timestamps. Got: %v Want: %v", gotPTS, wantPTS)
	}
}

// videoPTS returns the PTS of each video PES packet in the transport stream d.
func videoPTS(t *testing.T, d []byte) []uint64 {
	t.Helper()
	if len(d) == 0 || len(d)%mts.PacketSize != 0 {
		t.Fatalf("transport stream of %d bytes is not whole packets", len(d))
	}
	var (
		pts []uint64
		pkt gotspacket.Packet
	)
	for i := 0; i < len(d); i += mts.PacketSize {
		copy(pkt[:], d[i:i+mts.PacketSize])
		if d[i] != 0x47 {
			t.Fatalf("bad sync byte in packet %d", i/mts.PacketSize)
		}
		if i == 0 && pkt.PID() != mts.PatPid {
			t.Fatalf("stream does not begin with PAT, got PID %d", pkt.PID())
		}
		if pkt.PID() != mts.PIDVideo || !pkt.PayloadUnitStartIndicator() {
			continue
		}
		payload, err := pkt.Payload()
		if err != nil {
			t.Fatalf("could not get payload: %v", err)
		}
		h, err := gotspes.NewPESHeader(payload)
		if err != nil {
			t.Fatalf("could not parse PES header: %v", err)
		}
		pts = append(pts, uint64(h.PTS()))
	}
	return pts
}

func TestFileAAC(t *testing.T) {
	aus := [][]byte{
		bytes.Repeat([]byte{0x21}, 30),
		bytes.Repeat([]byte{0x22}, 17),
		bytes.Repeat([]byte{0x23}, 25),
	}
	// auPacket returns an RFC 3640 AAC-hbr payload holding the given AUs.
	auPacket := func(aus ...[]byte) []byte {
		p := []byte{0, byte(16 * len(aus))}
		for _, au := range aus {
			p = append(p, byte(len(au)>>5), byte(len(au)<<3))
		}
		for _, au := range aus {
			p = append(p, au...)
		}
		return p
	}

	var capture []byte
	capture = append(capture, packet(t, 500, 0, true, auPacket(aus[0], aus[1]))...)
	capture = append(capture, packet(t, 501, 2048, true, auPacket(aus[2]))...)

	dir := t.TempDir()
	in := filepath.Join(dir, "capture.rtp")
	err := os.WriteFile(in, capture, 0644)
	if err != nil {
		t.Fatalf("could not write capture: %v", err)
	}

	out := filepath.Join(dir, "out")
	err = os.Mkdir(out, 0755)
	if err != nil {
		t.Fatalf("could not create output dir: %v", err)
	}

	r, err := New(config.Config{
		Logger:     (*testLogger)(t),
		Input:      config.InputFile,
		InputPath:  in,
		InputCodec: codecutil.AAC,
		AACConfig:  "a=fmtp:96 streamtype=5; mode=AAC-hbr; config=1210; sizelength=13; indexlength=3; indexdeltalength=3",
		Channel:    testChannel,
		Outputs:    []uint8{config.OutputFile},
		OutputPath: filepath.Join(out, "audio_"),
	})
	if err != nil {
		t.Fatalf("could not create receiver: %v", err)
	}
	err = r.Start()
	if err != nil {
		t.Fatalf("could not start receiver: %v", err)
	}
	waitDone(t, r)
	r.Stop()

	stream := bytes.NewReader(outputFile(t, out, extAAC))
	var got [][]byte
	for {
		h, au, err := aac.ReadADTSFrame(stream)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("could not read ADTS frame: %v", err)
		}
		if h.Config().FrequencyIndex != 4 || h.Config().ChannelConfig != 2 {
			t.Errorf("unexpected ADTS config: %+v", h.Config())
		}
		got = append(got, au)
	}
	if !cmp.Equal(got, aus) {
		t.Errorf("unexpected access units, diff:\n%s", cmp.Diff(aus, got))
	}
}

func TestStartErrors(t *testing.T) {
	r, err := New(config.Config{
		Logger:    (*testLogger)(t),
		Input:     config.InputFile,
		InputPath: filepath.Join(t.TempDir(), "missing.rtp"),
		Outputs:   []uint8{config.OutputRecords},
	})
	if err != nil {
		t.Fatalf("could not create receiver: %v", err)
	}
	err = r.Start()
	if err == nil {
		t.Error("expected error starting with missing input file")
		r.Stop()
	}
	if r.Running() {
		t.Error("receiver running after failed start")
	}

	_, err = r.Write([]byte{'$'})
	if err == nil {
		t.Error("expected error writing to file input")
	}

	_, err = New(config.Config{})
	if err == nil {
		t.Error("expected error for config without logger")
	}
}

func TestUpdate(t *testing.T) {
	dir := t.TempDir()
	r, err := New(config.Config{
		Logger:     (*testLogger)(t),
		Input:      config.InputManual,
		OutputPath: filepath.Join(dir, "out_"),
	})
	if err != nil {
		t.Fatalf("could not create receiver: %v", err)
	}
	err = r.Start()
	if err != nil {
		t.Fatalf("could not start receiver: %v", err)
	}

	err = r.Update(map[string]string{
		config.KeyInputCodec: "aac",
		config.KeyOutputs:    "Records",
		config.KeyChannel:    "4",
	})
	if err != nil {
		t.Fatalf("could not update receiver: %v", err)
	}
	if !r.Running() {
		t.Error("receiver not restarted after update")
	}

	c := r.Config()
	if c.InputCodec != codecutil.AAC || c.Channel != 4 || !cmp.Equal(c.Outputs, []uint8{config.OutputRecords}) {
		t.Errorf("config not updated: %+v", c)
	}
	if c.AACConfig == "" {
		t.Error("AAC config not defaulted")
	}
	r.Stop()
}
