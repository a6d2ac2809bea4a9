/*
NAME
  psi.go

DESCRIPTION
  psi.go provides encoding of the MPEG-TS program association and program map
  tables.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package psi provides encoding of MPEG-TS program specific information.
package psi

// PacketSize of psi (without MPEG-TS header)
const PacketSize = 184

// Lengths of section definitions.
const (
	ESSDataLen = 5
	PMTDefLen  = 4
	PATLen     = 4
	TSSDefLen  = 5
	crcSize    = 4
)

// Table IDs.
const (
	patID = 0x00
	pmtID = 0x02
)

// Stream types (ITU-T H.222.0 table 2-34).
const (
	StreamTypeADTS = 0x0f
	StreamTypeH264 = 0x1b
)

// NewPATPSI will provide a program specific information (PSI) table with a
// program association table (PAT) for a single program whose map table is
// carried on pmtPID.
func NewPATPSI(pmtPID uint16) *PSI {
	return &PSI{
		TableID:    patID,
		SectionLen: TSSDefLen + PATLen + crcSize,
		SyntaxSection: &SyntaxSection{
			TableIDExt:  0x01,
			CurrentNext: true,
			SpecificData: &PAT{
				Program:       0x01,
				ProgramMapPID: pmtPID,
			},
		},
	}
}

// NewPMTPSI will provide a program specific information (PSI) table with a
// program map table (PMT) describing one elementary stream of the given type
// on pid. The stream also carries the program clock.
func NewPMTPSI(streamType byte, pid uint16) *PSI {
	return &PSI{
		TableID:    pmtID,
		SectionLen: TSSDefLen + PMTDefLen + ESSDataLen + crcSize,
		SyntaxSection: &SyntaxSection{
			TableIDExt:  0x01,
			CurrentNext: true,
			SpecificData: &PMT{
				ProgramClockPID: pid,
				StreamSpecificData: &StreamSpecificData{
					StreamType: streamType,
					PID:        pid,
				},
			},
		},
	}
}

// PSI is a program specific information table. Pointer filler bytes are not
// supported.
type PSI struct {
	PointerField  byte           // Point field
	TableID       byte           // Table ID
	SectionLen    uint16         // Section length
	SyntaxSection *SyntaxSection // Table syntax section (length defined by SectionLen)
}

// Table syntax section
type SyntaxSection struct {
	TableIDExt   uint16       // Table ID extension
	Version      byte         // Version number
	CurrentNext  bool         // Current/next indicator
	Section      byte         // Section number
	LastSection  byte         // Last section number
	SpecificData SpecificData // Specific data PAT/PMT
}

// Specific Data, (could be PAT or PMT)
type SpecificData interface {
	Bytes() []byte
}

// Program association table, implements SpecificData
type PAT struct {
	Program       uint16 // Program Number
	ProgramMapPID uint16 // Program map PID
}

// Program mapping table, implements SpecificData
type PMT struct {
	ProgramClockPID    uint16              // Program clock reference PID.
	StreamSpecificData *StreamSpecificData // Elementary stream specific data.
}

// Elementary stream specific data
type StreamSpecificData struct {
	StreamType byte   // Stream type.
	PID        uint16 // Elementary PID.
}

// Bytes outputs a byte slice representation of the PSI, including its CRC.
func (p *PSI) Bytes() []byte {
	out := make([]byte, 4)
	out[0] = p.PointerField
	if p.PointerField != 0 {
		panic("No support for pointer filler bytes")
	}
	out[1] = p.TableID
	out[2] = 0x80 | 0x30 | (0x03 & byte(p.SectionLen>>8))
	out[3] = byte(p.SectionLen)
	out = append(out, p.SyntaxSection.Bytes()...)
	return AddCRC(out)
}

// Bytes outputs a byte slice representation of the SyntaxSection
func (t *SyntaxSection) Bytes() []byte {
	out := make([]byte, TSSDefLen)
	out[0] = byte(t.TableIDExt >> 8)
	out[1] = byte(t.TableIDExt)
	out[2] = 0xc0 | (0x3e & (t.Version << 1)) | (0x01 & asByte(t.CurrentNext))
	out[3] = t.Section
	out[4] = t.LastSection
	return append(out, t.SpecificData.Bytes()...)
}

// Bytes outputs a byte slice representation of the PAT
func (p *PAT) Bytes() []byte {
	out := make([]byte, PATLen)
	out[0] = byte(p.Program >> 8)
	out[1] = byte(p.Program)
	out[2] = 0xe0 | (0x1f & byte(p.ProgramMapPID>>8))
	out[3] = byte(p.ProgramMapPID)
	return out
}

// Bytes outputs a byte slice representation of the PMT. Program descriptors
// are not written.
func (p *PMT) Bytes() []byte {
	out := make([]byte, PMTDefLen)
	out[0] = 0xe0 | (0x1f & byte(p.ProgramClockPID>>8))
	out[1] = byte(p.ProgramClockPID)
	out[2] = 0xf0
	out[3] = 0x00
	return append(out, p.StreamSpecificData.Bytes()...)
}

// Bytes outputs a byte slice representation of the StreamSpecificData
func (e *StreamSpecificData) Bytes() []byte {
	out := make([]byte, ESSDataLen)
	out[0] = e.StreamType
	out[1] = 0xe0 | (0x1f & byte(e.PID>>8))
	out[2] = byte(e.PID)
	out[3] = 0xf0
	out[4] = 0x00
	return out
}

func asByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}

// AddPadding pads a table to fill the payload of an MPEG-TS packet.
func AddPadding(d []byte) []byte {
	t := make([]byte, PacketSize)
	copy(t, d)
	padding := t[len(d):]
	for i := range padding {
		padding[i] = 0xff
	}
	return t
}
