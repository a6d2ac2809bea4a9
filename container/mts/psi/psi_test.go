/*
NAME
  psi_test.go

DESCRIPTION
  psi_test.go provides testing of PSI table encoding.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package psi

import (
	"bytes"
	"testing"
)

// residue returns the CRC of a whole section including its CRC, which is
// zero for an intact section.
func residue(b []byte) uint32 {
	crc := uint32(0xffffffff)
	for _, v := range b {
		crc = crcTable[byte(crc>>24)^v] ^ (crc << 8)
	}
	return crc
}

func TestPATBytes(t *testing.T) {
	want := []byte{
		0x00,             // Pointer.
		0x00, 0xb0, 0x0d, // Table ID, section length 13.
		0x00, 0x01, 0xc1, 0x00, 0x00, // Syntax section.
		0x00, 0x01, 0xf0, 0x00, // Program 1 on PMT PID 0x1000.
		0x2a, 0xb1, 0x04, 0xb2, // CRC.
	}
	got := NewPATPSI(0x1000).Bytes()
	if !bytes.Equal(got, want) {
		t.Errorf("unexpected PAT.\nGot:  %x\nWant: %x", got, want)
	}
}

func TestPMTBytes(t *testing.T) {
	tests := []struct {
		streamType byte
		pid        uint16
	}{
		{streamType: StreamTypeH264, pid: 0x100},
		{streamType: StreamTypeADTS, pid: 210},
	}

	for i, test := range tests {
		b := NewPMTPSI(test.streamType, test.pid).Bytes()
		if len(b) != 1+3+18 {
			t.Errorf("unexpected PMT length for test %d: %d", i, len(b))
			continue
		}
		if b[1] != pmtID {
			t.Errorf("unexpected table ID for test %d: %d", i, b[1])
		}
		pcrPID := uint16(b[9]&0x1f)<<8 | uint16(b[10])
		if pcrPID != test.pid {
			t.Errorf("unexpected PCR PID for test %d: %d", i, pcrPID)
		}
		if b[13] != test.streamType {
			t.Errorf("unexpected stream type for test %d: %x", i, b[13])
		}
		esPID := uint16(b[14]&0x1f)<<8 | uint16(b[15])
		if esPID != test.pid {
			t.Errorf("unexpected elementary PID for test %d: %d", i, esPID)
		}
		if r := residue(b[1:]); r != 0 {
			t.Errorf("bad CRC for test %d, residue: %x", i, r)
		}
	}
}

func TestAddPadding(t *testing.T) {
	got := AddPadding([]byte{1, 2})
	if len(got) != PacketSize || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected padded table: %x", got)
	}
	for _, b := range got[2:] {
		if b != 0xff {
			t.Fatalf("unexpected padding byte: %x", b)
		}
	}
}
