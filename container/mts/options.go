/*
NAME
  options.go

DESCRIPTION
  options.go provides options for configuring an Encoder.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"errors"
	"fmt"

	"github.com/ausocean/rtpav/codec/aac"
)

// AudioConfig is an option that can be passed to NewEncoder to packetize AAC
// described by c, usually from the config parameter of the stream's fmtp
// attribute. The RTP clock rate is the sampling frequency of c.
func AudioConfig(c aac.Config) func(*Encoder) error {
	return func(e *Encoder) error {
		_, err := aac.NewADTSHeader(c, 0)
		if err != nil {
			return fmt.Errorf("unsupported stream config: %w", err)
		}
		e.mediaType = EncodeAAC
		e.audio = c
		e.log.Debug("configured for AAC packetisation", "frequency", c.Frequency)
		return nil
	}
}

// Timestamps is an option that can be passed to NewEncoder. ts is called
// once for each frame pushed and returns the frame's RTP timestamp, from
// which the PTS and PCR are derived.
func Timestamps(ts func() uint32) func(*Encoder) error {
	return func(e *Encoder) error {
		if ts == nil {
			return errors.New("nil timestamp source")
		}
		e.timestamp = ts
		return nil
	}
}
