/*
NAME
  parse_test.go

DESCRIPTION
  parse_test.go provides testing for behaviour of functionality in parse.go.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/rtpav/codec/codecutil"
)

// viewComparer lets cmp compare Views by content.
var viewComparer = cmp.Comparer(func(a, b *codecutil.View) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
})

// TestVersion checks that we can correctly get the version from an RTP packet.
func TestVersion(t *testing.T) {
	const expect = 1
	got := version((&Packet{Version: expect}).Bytes(nil))
	if got != expect {
		t.Errorf("unexpected version for RTP packet. Got: %v\n Want: %v\n", got, expect)
	}
}

// TestCsrcCount checks that we can correctly obtain the csrc count from an
// RTP packet.
func TestCsrcCount(t *testing.T) {
	const ver, expect = 2, 2

	pkt := (&Packet{
		Version:   ver,
		CSRCCount: expect,
		CSRC:      make([][4]byte, expect),
	}).Bytes(nil)

	got := csrcCount(pkt)
	if got != expect {
		t.Errorf("unexpected csrc count for RTP packet. Got: %v\n Want: %v\n", got, expect)
	}
}

// TestHasExt checks the behaviour of hasExt with an RTP packet that has the
// extension indicator true, and one with the extension indicator set to false.
func TestHasExt(t *testing.T) {
	const ver = 2

	// First check for when there is an extension field.
	pkt := &Packet{
		Version:     ver,
		ExtHeadFlag: true,
		Extension: ExtensionHeader{
			ID:     0,
			Header: make([][4]byte, 0),
		},
	}

	got := hasExt(pkt.Bytes(nil))
	if !got {
		t.Error("RTP packet did not have true extension indicator as expected")
	}

	// Now check when there is not an extension field.
	pkt.ExtHeadFlag = false
	got = hasExt(pkt.Bytes(nil))
	if got {
		t.Error("did not expect to have extension indicator as true")
	}
}

// TestPayload checks that we can correctly get the payload of an RTP packet
// using Payload for a variety of RTP packet configurations.
func TestPayload(t *testing.T) {
	const ver = 2
	expect := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	testPkts := [][]byte{
		(&Packet{
			Version: ver,
			Payload: codecutil.ViewOf(expect),
		}).Bytes(nil),

		(&Packet{
			Version:   ver,
			CSRCCount: 3,
			CSRC:      make([][4]byte, 3),
			Payload:   codecutil.ViewOf(expect),
		}).Bytes(nil),

		(&Packet{
			Version:     ver,
			ExtHeadFlag: true,
			Extension: ExtensionHeader{
				ID:     0,
				Header: make([][4]byte, 3),
			},
			Payload: codecutil.ViewOf(expect),
		}).Bytes(nil),
	}

	for i, p := range testPkts {
		got, err := Payload(p)
		if err != nil {
			t.Errorf("unexpected error from Payload with pkt: %v", i)
		}

		if !bytes.Equal(got, expect) {
			t.Errorf("unexpected payload data from RTP packet: %v.\n Got: %v\n Want: %v\n", i, got, expect)
		}
	}
}

// TestParse checks that Parse recovers every field of an encoded packet.
func TestParse(t *testing.T) {
	tests := []struct {
		name string
		pkt  Packet
	}{
		{
			name: "plain",
			pkt: Packet{
				Version:     rtpVer,
				Marker:      true,
				PayloadType: 96,
				Sequence:    65535,
				Timestamp:   90000,
				SSRC:        0xdeadbeef,
				Payload:     codecutil.ViewOf([]byte{0x65, 0x88, 0x80}),
			},
		},
		{
			name: "csrc and extension",
			pkt: Packet{
				Version:     rtpVer,
				ExtHeadFlag: true,
				CSRCCount:   2,
				PayloadType: 97,
				Sequence:    7,
				Timestamp:   1,
				SSRC:        1,
				CSRC:        [][4]byte{{1, 2, 3, 4}, {5, 6, 7, 8}},
				Extension: ExtensionHeader{
					ID:     0xabac,
					Header: [][4]byte{{9, 9, 9, 9}},
				},
				Payload: codecutil.ViewOf([]byte{1, 2}),
			},
		},
		{
			name: "padding",
			pkt: Packet{
				Version:     rtpVer,
				PaddingFlag: true,
				PayloadType: 96,
				Sequence:    2,
				Payload:     codecutil.ViewOf([]byte{0xaa, 0xbb}),
				Padding:     []byte{0, 0, 3},
			},
		},
	}

	for _, test := range tests {
		d := test.pkt.Bytes(nil)
		got, err := Parse(d)
		if err != nil {
			t.Errorf("did not expect error for test %q: %v", test.name, err)
			continue
		}
		if !cmp.Equal(*got, test.pkt, viewComparer) {
			t.Errorf("unexpected packet for test %q, diff:\n%s", test.name, cmp.Diff(test.pkt, *got, viewComparer))
		}
		if !got.Payload.ReadOnly() {
			t.Errorf("payload of parsed packet for test %q is writable", test.name)
		}

		// The parsed payload must not alias the input.
		for i := range d {
			d[i] = 0
		}
		if !bytes.Equal(got.Payload.Bytes(), test.pkt.Payload.Bytes()) {
			t.Errorf("payload for test %q changed with its input", test.name)
		}
	}
}

// TestParseErrors checks that malformed input yields a ParseError.
func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{name: "short", in: []byte{0x80, 0x60, 0x00}},
		{name: "bad version", in: (&Packet{Version: 1}).Bytes(nil)},
		{name: "truncated csrc", in: []byte{0x82, 0x60, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 2}},
	}

	for _, test := range tests {
		_, err := Parse(test.in)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("expected ParseError for test %q, got: %v", test.name, err)
		}
	}
}
