/*
DESCRIPTION
  udp_test.go tests the UDP AVDevice.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package udp

import (
	"errors"
	"net"
	"testing"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/device"
	"github.com/ausocean/rtpav/protocol/rtp"
	"github.com/ausocean/rtpav/receiver/config"
)

func TestSet(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{addr: "localhost:6970"},
		{addr: "", wantErr: true},
		{addr: "localhost", wantErr: true},
	}

	for i, test := range tests {
		err := New((*logging.TestLogger)(t)).Set(config.Config{RTPAddress: test.addr})
		if (err != nil) != test.wantErr {
			t.Errorf("unexpected error for test %d: %v", i, err)
		}
		var me device.MultiError
		if err != nil && !errors.As(err, &me) {
			t.Errorf("expected MultiError for test %d, got: %T", i, err)
		}
	}
}

func TestReceive(t *testing.T) {
	d := NewWith((*logging.TestLogger)(t), "localhost:0")
	_, err := d.Read(make([]byte, 10))
	if err == nil {
		t.Error("expected error reading before start")
	}

	err = d.Start()
	if err != nil {
		t.Fatalf("could not start device: %v", err)
	}
	if !d.IsRunning() {
		t.Error("device isn't running, when it should be")
	}

	conn, err := net.Dial("udp", d.LocalAddr().String())
	if err != nil {
		t.Fatalf("could not dial device: %v", err)
	}
	defer conn.Close()

	e := rtp.NewEncoder(conn, 96)
	payload := []byte("payload")
	err = e.Encode(payload, 1000, true)
	if err != nil {
		t.Fatalf("could not send packet: %v", err)
	}

	buf := make([]byte, 1500)
	n, err := d.Read(buf)
	if err != nil {
		t.Fatalf("could not read packet: %v", err)
	}
	p, err := rtp.Parse(buf[:n])
	if err != nil {
		t.Fatalf("could not parse packet: %v", err)
	}
	if string(p.Payload.Bytes()) != string(payload) || !p.Marker || p.Timestamp != 1000 {
		t.Errorf("unexpected packet: %+v", p)
	}

	err = d.Stop()
	if err != nil {
		t.Errorf("could not stop device: %v", err)
	}
	if d.IsRunning() {
		t.Error("device is running, when it should not be")
	}
	if d.LocalAddr() != nil {
		t.Error("expected nil address after stop")
	}
}
