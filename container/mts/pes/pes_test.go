/*
NAME
  pes_test.go

DESCRIPTION
  pes_test.go provides testing of PES packet encoding.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pes

import (
	"bytes"
	"testing"
)

// pts decodes the 33 bit timestamp of a PTS field.
func pts(b []byte) uint64 {
	return uint64(b[0]>>1&0x07)<<30 | uint64(b[1])<<22 | uint64(b[2]>>1)<<15 | uint64(b[3])<<7 | uint64(b[4]>>1)
}

func TestBytes(t *testing.T) {
	tests := []struct {
		pkt  Packet
		want []byte
	}{
		{
			pkt: Packet{StreamID: VideoSID, Data: []byte{0xaa, 0xbb}},
			want: []byte{
				0x00, 0x00, 0x01, 0xe0, // Start code and stream ID.
				0x00, 0x00, // Unbounded length.
				0x80, 0x00, 0x00, // No optional fields.
				0xaa, 0xbb,
			},
		},
		{
			pkt: Packet{StreamID: AudioSID, Length: 10, DAI: true, PDI: HasPTS, PTS: 63000, Data: []byte{0xcc, 0xdd}},
			want: []byte{
				0x00, 0x00, 0x01, 0xc0,
				0x00, 0x0a,
				0x84, 0x80, 0x05,
				0x21, 0x00, 0x03, 0xec, 0x31, // PTS 63000 with marker bits.
				0xcc, 0xdd,
			},
		},
	}

	for i, test := range tests {
		got := test.pkt.Bytes(nil)
		if !bytes.Equal(got, test.want) {
			t.Errorf("unexpected bytes for test %d.\nGot:  %x\nWant: %x", i, got, test.want)
		}
		if len(got) != 6+test.pkt.HeaderLen()+len(test.pkt.Data) {
			t.Errorf("header length disagrees with encoding for test %d", i)
		}
	}
}

func TestPTSRange(t *testing.T) {
	for _, want := range []uint64{0, 1, 90000, 1<<32 + 12345, 1<<33 - 1} {
		p := Packet{StreamID: VideoSID, PDI: HasPTS, PTS: want}
		b := p.Bytes(make([]byte, 0, 16))
		if got := pts(b[9:14]); got != want {
			t.Errorf("unexpected PTS. Got: %d Want: %d", got, want)
		}
		if b[9]&0xf1 != 0x21 || b[11]&1 != 1 || b[13]&1 != 1 {
			t.Errorf("bad PTS prefix or marker bits: %x", b[9:14])
		}
	}
}
