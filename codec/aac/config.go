/*
NAME
  config.go

DESCRIPTION
  config.go provides parsing of the AAC stream parameters signalled out of
  band, in the SDP fmtp attribute and the AudioSpecificConfig it carries.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package aac

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/icza/bitio"
	"github.com/pkg/errors"
)

// Params holds the widths, in bits, of the fields of an RFC 3640 AU-header.
type Params struct {
	SizeLength       uint8 // Width of AU-size.
	IndexLength      uint8 // Width of AU-Index, in the first AU-header of a packet.
	IndexDeltaLength uint8 // Width of AU-Index-delta, in subsequent AU-headers.
}

// DefaultParams are the AU-header widths of the AAC-hbr mode, giving a
// 2 byte AU-header.
var DefaultParams = Params{SizeLength: 13, IndexLength: 3, IndexDeltaLength: 3}

// Validate checks that p describes AU-headers this package can parse.
func (p Params) Validate() error {
	if p.SizeLength == 0 {
		return errors.New("SizeLength must be non-zero")
	}
	if p.SizeLength > 32 || p.IndexLength > 32 || p.IndexDeltaLength > 32 {
		return fmt.Errorf("AU-header field too wide: %+v", p)
	}
	return nil
}

// Audio object types.
const (
	ObjectTypeMain = 1
	ObjectTypeLC   = 2
	ObjectTypeSSR  = 3
	ObjectTypeLTP  = 4
	ObjectTypeSBR  = 5
)

// Frequency index signalling an explicit 24 bit sampling frequency.
const explicitFrequency = 0xf

// sampleRates maps sampling frequency indices to rates in Hz.
var sampleRates = [...]uint32{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

// Config holds the fields of an AudioSpecificConfig (ISO/IEC 14496-3
// section 1.6.2.1) needed to describe a stream.
type Config struct {
	ObjectType     uint8  // Audio object type, e.g. ObjectTypeLC.
	FrequencyIndex uint8  // Sampling frequency index.
	Frequency      uint32 // Sampling frequency in Hz.
	ChannelConfig  uint8  // Channel configuration.
}

// ParseConfig parses a hex encoded AudioSpecificConfig, as found in the config
// parameter of an fmtp attribute.
func ParseConfig(s string) (Config, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Config{}, errors.Wrap(err, "could not decode config")
	}
	r := bitio.NewReader(bytes.NewReader(b))

	var c Config
	ot, err := r.ReadBits(5)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not read object type")
	}
	if ot == 31 {
		ext, err := r.ReadBits(6)
		if err != nil {
			return Config{}, errors.Wrap(err, "could not read extended object type")
		}
		ot = 32 + ext
	}
	c.ObjectType = uint8(ot)

	fi, err := r.ReadBits(4)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not read frequency index")
	}
	c.FrequencyIndex = uint8(fi)
	switch {
	case fi == explicitFrequency:
		f, err := r.ReadBits(24)
		if err != nil {
			return Config{}, errors.Wrap(err, "could not read frequency")
		}
		c.Frequency = uint32(f)
	case int(fi) < len(sampleRates):
		c.Frequency = sampleRates[fi]
	default:
		return Config{}, fmt.Errorf("reserved frequency index: %d", fi)
	}

	cc, err := r.ReadBits(4)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not read channel configuration")
	}
	c.ChannelConfig = uint8(cc)
	return c, nil
}

// Bytes returns c encoded as an AudioSpecificConfig with no extensions.
func (c Config) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	if c.ObjectType > 31 {
		w.WriteBits(31, 5)
		w.WriteBits(uint64(c.ObjectType-32), 6)
	} else {
		w.WriteBits(uint64(c.ObjectType), 5)
	}
	w.WriteBits(uint64(c.FrequencyIndex), 4)
	if c.FrequencyIndex == explicitFrequency {
		w.WriteBits(uint64(c.Frequency), 24)
	}
	w.WriteBits(uint64(c.ChannelConfig), 4)
	err := w.Close()
	if err != nil {
		return nil, errors.Wrap(err, "could not write config")
	}
	return buf.Bytes(), nil
}

// ParseFmtp parses the parameters of an SDP fmtp attribute for an
// mpeg4-generic stream, e.g.
//
//	a=fmtp:96 streamtype=5; mode=AAC-hbr; config=1210; SizeLength=13; IndexLength=3; IndexDeltaLength=3
//
// The attribute name and payload type are optional. Parameters not given take
// their values from DefaultParams. If there is no config parameter the
// returned Config is the zero value.
func ParseFmtp(s string) (Params, Config, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "a=")
	s = strings.TrimPrefix(s, "fmtp:")
	if i := strings.IndexAny(s, " \t"); i != -1 {
		if _, err := strconv.Atoi(s[:i]); err == nil {
			s = s[i+1:]
		}
	}

	p := DefaultParams
	var c Config
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return Params{}, Config{}, fmt.Errorf("malformed fmtp parameter: %q", kv)
		}
		k, v = strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)

		var err error
		switch k {
		case "sizelength":
			p.SizeLength, err = parseWidth(v)
		case "indexlength":
			p.IndexLength, err = parseWidth(v)
		case "indexdeltalength":
			p.IndexDeltaLength, err = parseWidth(v)
		case "config":
			c, err = ParseConfig(v)
		}
		if err != nil {
			return Params{}, Config{}, errors.Wrapf(err, "invalid fmtp parameter %s", k)
		}
	}

	err := p.Validate()
	if err != nil {
		return Params{}, Config{}, err
	}
	return p, c, nil
}

func parseWidth(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	return uint8(n), err
}
