/*
DESCRIPTION
  pipeline.go provides functionality for set up of the receiver processing
  pipeline.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Alan Noble <alan@ausocean.org>
  Dan Kortschak <dan@ausocean.org>
  Trek Hopton <trek@ausocean.org>
  Scott Barnard <scott@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package receiver

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ausocean/utils/ioext"

	"github.com/ausocean/rtpav/codec/aac"
	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/codec/h264"
	"github.com/ausocean/rtpav/container/adts"
	"github.com/ausocean/rtpav/container/annexb"
	"github.com/ausocean/rtpav/container/mts"
	"github.com/ausocean/rtpav/device"
	"github.com/ausocean/rtpav/device/file"
	"github.com/ausocean/rtpav/device/udp"
	"github.com/ausocean/rtpav/pipeline"
	"github.com/ausocean/rtpav/protocol/rtp"
	"github.com/ausocean/rtpav/receiver/config"
)

// File extensions of outputs.
const (
	extH264    = ".264"
	extAAC     = ".aac"
	extRecords = ".rec"
	extMTS     = ".ts"
)

// reset swaps the current config of a Receiver with the passed
// configuration; checking validity and returning errors if not valid. It then
// sets up the data pipeline accordingly to this configuration.
func (r *Receiver) reset(c config.Config) error {
	r.cfg.Logger.Debug("setting config")
	err := r.setConfig(c)
	if err != nil {
		return fmt.Errorf("could not set config: %w", err)
	}
	r.cfg.Logger.Info("config set")

	r.cfg.Logger.Debug("setting up receiver pipeline")
	err = r.setupPipeline()
	if err != nil {
		return fmt.Errorf("could not set up pipeline: %w", err)
	}
	r.cfg.Logger.Info("finished setting pipeline")
	return nil
}

// setConfig takes a config, checks it's validity and then replaces the current
// receiver config.
func (r *Receiver) setConfig(config config.Config) error {
	r.cfg.Logger = config.Logger
	r.cfg.Logger.Debug("validating config")
	err := config.Validate()
	if err != nil {
		return errors.New("Config struct is bad: " + err.Error())
	}
	r.cfg.Logger.Info("config validated")
	r.cfg = config
	r.cfg.Logger.SetLevel(r.cfg.LogLevel)
	return nil
}

// setupPipeline constructs the receiver pipeline. The input device, RTP
// source, depacketizer and outputs are created and linked based on the
// current config.
func (r *Receiver) setupPipeline() error {
	src, err := r.setupInput()
	if err != nil {
		return err
	}
	r.source = rtp.NewSource("rtp", src, r.cfg.Logger)

	err = r.setupDepacketizer()
	if err != nil {
		return err
	}

	err = r.setupOutputs()
	if err != nil {
		return err
	}

	r.pipe, err = pipeline.To(
		pipeline.Then(
			pipeline.From[*rtp.Packet](r.source),
			pipeline.Transform[*rtp.Packet, *codecutil.View](r.depack),
		),
		r.sink,
	)
	return err
}

// deviceReader adapts an input device for use by an rtp.Source; packets are
// read from the embedded Reader, and closing stops the device.
type deviceReader struct {
	io.Reader
	dev device.AVDevice
}

// Close implements io.Closer.
func (d deviceReader) Close() error { return d.dev.Stop() }

// setupInput creates and configures the input device, returning the reader
// packets are to be read from.
func (r *Receiver) setupInput() (io.ReadCloser, error) {
	interleaved := true
	switch r.cfg.Input {
	case config.InputUDP:
		r.cfg.Logger.Debug("using UDP input")
		r.input = udp.New(r.cfg.Logger)
		interleaved = false
	case config.InputFile:
		r.cfg.Logger.Debug("using file input")
		r.input = file.New(r.cfg.Logger)
	case config.InputManual:
		r.cfg.Logger.Debug("using manual input")
		r.input = device.NewManualInput()
	default:
		return nil, fmt.Errorf("unrecognised input type: %v", r.cfg.Input)
	}

	r.cfg.Logger.Debug("configuring input device")
	err := r.input.Set(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("could not configure input device: %w", err)
	}
	r.cfg.Logger.Info("input device configured")

	if !interleaved {
		return deviceReader{Reader: r.input, dev: r.input}, nil
	}
	r.cfg.Logger.Debug("reading interleaved RTP", "channel", r.cfg.Channel)
	return deviceReader{Reader: rtp.NewInterleavedReader(r.input, r.cfg.Channel), dev: r.input}, nil
}

// setupDepacketizer creates the depacketizer for the input codec.
func (r *Receiver) setupDepacketizer() error {
	switch r.cfg.InputCodec {
	case codecutil.H264:
		r.cfg.Logger.Debug("using H.264 depacketizer")
		r.depack = h264.NewDepacketizer(r.cfg.Logger)
	case codecutil.AAC:
		r.cfg.Logger.Debug("using AAC depacketizer")
		p, _, err := aac.ParseFmtp(r.cfg.AACConfig)
		if err != nil {
			return fmt.Errorf("could not parse AAC config: %w", err)
		}
		r.depack, err = aac.NewDepacketizer(p, r.cfg.Logger)
		if err != nil {
			return fmt.Errorf("could not create AAC depacketizer: %w", err)
		}
	default:
		return fmt.Errorf("unrecognised codec: %s", r.cfg.InputCodec)
	}
	r.depack.OnDamage = func(expected, got uint16) {
		r.cfg.Logger.Debug("frame damaged by packet loss", "expected", expected, "got", got)
	}
	return nil
}

// setupOutputs creates a sink and sender for each output. Every sender is
// buffered by a pool buffer so that slow writes do not hold up the pipeline.
func (r *Receiver) setupOutputs() error {
	capacity := int(r.cfg.PoolCapacity)
	elemSize := int(r.cfg.PoolStartElementSize)
	writeTimeout := time.Duration(r.cfg.PoolWriteTimeout) * time.Second

	var (
		sinks   tee
		senders []io.WriteCloser
	)
	for _, out := range r.cfg.Outputs {
		switch out {
		case config.OutputFile, config.OutputFiles:
			multi := out == config.OutputFiles
			r.cfg.Logger.Debug("using file output", "multiFile", multi)
			fs := newFileSender(r.cfg.Logger, r.cfg.OutputPath, r.extension(), multi, r.cfg.MaxFileSize)
			ps := newPoolSender(fs, r.cfg.Logger, capacity, elemSize, writeTimeout, r.bitrate.Report)
			senders = append(senders, ps)
			s, err := newFramed(ps, r.cfg.Logger, r.newContainer)
			if err != nil {
				closeAll(senders)
				return fmt.Errorf("could not create output: %w", err)
			}
			sinks = append(sinks, s)
		case config.OutputRecords:
			r.cfg.Logger.Debug("using records output")
			fs := newFileSender(r.cfg.Logger, r.cfg.OutputPath, extRecords, false, r.cfg.MaxFileSize)
			ps := newPoolSender(fs, r.cfg.Logger, capacity, elemSize, writeTimeout, r.bitrate.Report)
			senders = append(senders, ps)
			sinks = append(sinks, NewRecords("records", ps, r.cfg.Logger))
		case config.OutputMTS:
			r.cfg.Logger.Debug("using MPEG-TS output")
			fs := newFileSender(r.cfg.Logger, r.cfg.OutputPath, extMTS, false, r.cfg.MaxFileSize)
			ps := newPoolSender(fs, r.cfg.Logger, capacity, elemSize, writeTimeout, r.bitrate.Report)
			senders = append(senders, ps)
			s, err := newFramed(ps, r.cfg.Logger, r.newMTS)
			if err != nil {
				closeAll(senders)
				return fmt.Errorf("could not create MPEG-TS output: %w", err)
			}
			sinks = append(sinks, s)
		default:
			r.cfg.Logger.Warning("ignoring unknown output", "output", out)
		}
	}
	if len(sinks) == 0 {
		return errors.New("no outputs")
	}

	r.sink = sinks
	r.senders = ioext.MultiWriteCloser(senders...)
	return nil
}

// newContainer returns the sink writing the elementary stream of the input
// codec to w.
func (r *Receiver) newContainer(w io.Writer) (pipeline.Consumer[*codecutil.View], error) {
	switch r.cfg.InputCodec {
	case codecutil.H264:
		return annexb.NewWriter("annexb", w, r.cfg.Logger), nil
	case codecutil.AAC:
		_, c, err := aac.ParseFmtp(r.cfg.AACConfig)
		if err != nil {
			return nil, err
		}
		return adts.NewWriter("adts", w, c, r.cfg.Logger)
	default:
		return nil, fmt.Errorf("no container for codec: %s", r.cfg.InputCodec)
	}
}

// newMTS returns an MPEG-TS encoder writing to w, timed by the RTP timestamps
// of the depacketizer.
func (r *Receiver) newMTS(w io.Writer) (pipeline.Consumer[*codecutil.View], error) {
	opts := []func(*mts.Encoder) error{mts.Timestamps(r.depack.Timestamp)}
	switch r.cfg.InputCodec {
	case codecutil.H264:
	case codecutil.AAC:
		_, c, err := aac.ParseFmtp(r.cfg.AACConfig)
		if err != nil {
			return nil, err
		}
		opts = append(opts, mts.AudioConfig(c))
	default:
		return nil, fmt.Errorf("no MPEG-TS encoding for codec: %s", r.cfg.InputCodec)
	}
	return mts.NewEncoder("mts", w, r.cfg.Logger, opts...)
}

// extension returns the file extension of the input codec's elementary
// stream.
func (r *Receiver) extension() string {
	if r.cfg.InputCodec == codecutil.AAC {
		return extAAC
	}
	return extH264
}

// closeAll closes each of ws, for cleanup after a failed setup.
func closeAll(ws []io.WriteCloser) {
	for _, w := range ws {
		w.Close()
	}
}
