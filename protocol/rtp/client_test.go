/*
NAME
  client_test.go

DESCRIPTION
  client_test.go provides testing utilities to check RTP client functionality
  provided in client.go.

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
	"net"
	"testing"
)

// TestReceive checks that the Client can correctly receive RTP packets sent
// over UDP and tracks the stream's SSRC and sequence numbers.
func TestReceive(t *testing.T) {
	const packetsToSend = 20

	c, err := NewClient("localhost:0")
	if err != nil {
		t.Fatalf("could not create client: %v", err)
	}
	defer c.Close()

	conn, err := net.DialUDP("udp", nil, c.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("could not dial udp: %v", err)
	}
	defer conn.Close()

	// Start near the top of the sequence space so that the count wraps.
	e := NewEncoder(conn, 96)
	e.SetSequence(65530)

	go func() {
		for i := 0; i < packetsToSend; i++ {
			err := e.Encode([]byte{byte(i)}, uint32(i), false)
			if err != nil {
				t.Errorf("could not write packet: %v", err)
				return
			}
		}
	}()

	buf := make([]byte, 4096)
	for i := 0; i < packetsToSend; i++ {
		n, err := c.Read(buf)
		if err != nil {
			t.Fatalf("unexpected error from Read: %v", err)
		}
		got, err := Payload(buf[:n])
		if err != nil {
			t.Fatalf("could not get payload: %v", err)
		}
		if !bytes.Equal(got, []byte{byte(i)}) {
			t.Errorf("did not get expected payload for packet %d. Got: %v", i, got)
		}
	}

	if c.SSRC() != e.SSRC() {
		t.Errorf("unexpected SSRC. Got: %x Want: %x", c.SSRC(), e.SSRC())
	}
	const wantSeq = uint16(65530 + packetsToSend - 1 - 65536)
	if c.Sequence() != wantSeq {
		t.Errorf("unexpected sequence. Got: %d Want: %d", c.Sequence(), wantSeq)
	}
	if c.Cycles() != 1 {
		t.Errorf("unexpected cycle count. Got: %d Want: 1", c.Cycles())
	}
}
