/*
NAME
  receiver.go

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

// Package receiver provides an API for receiving RTP streams, depacketizing
// the H.264 or AAC they carry, and writing the media to files.
package receiver

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ausocean/utils/bitrate"

	"github.com/ausocean/rtpav/codec/codecutil"
	"github.com/ausocean/rtpav/device"
	"github.com/ausocean/rtpav/pipeline"
	"github.com/ausocean/rtpav/protocol/rtp"
	"github.com/ausocean/rtpav/receiver/config"
)

// Receiver provides methods to control a receiver session; providing methods
// to start, stop and change the state of an instance using the Config struct.
type Receiver struct {
	// cfg holds the Receiver configuration, including its logger.
	cfg config.Config

	// input is the device RTP is read from.
	input device.AVDevice

	// source reads packets from input and pushes them into the pipeline.
	source *rtp.Source

	// depack reassembles frames from packets.
	depack *rtp.Depacketizer

	// sink receives frames, handing them to each output.
	sink pipeline.Consumer[*codecutil.View]

	// senders holds the destinations of the outputs, closed on Stop.
	senders io.WriteCloser

	// pipe links source, depack and sink.
	pipe *pipeline.Pipeline

	// mu guards running.
	mu      sync.Mutex
	running bool

	// wg is used to wait for the event handling routine to finish.
	wg sync.WaitGroup

	// stop signals the event handling routine to return.
	stop chan struct{}

	// done is closed when the input ends, either at end of stream or on error.
	done chan struct{}

	// bitrate is used for bitrate calculations.
	bitrate bitrate.Calculator
}

// New returns a pointer to a new Receiver with the desired configuration,
// and/or an error if construction of the new instance was not successful.
func New(c config.Config) (*Receiver, error) {
	if c.Logger == nil {
		return nil, errors.New("config has no logger")
	}
	r := Receiver{}
	err := r.setConfig(c)
	if err != nil {
		return nil, fmt.Errorf("could not set config, failed with error: %w", err)
	}
	return &r, nil
}

// Config returns a copy of the receiver's current config.
func (r *Receiver) Config() config.Config {
	return r.cfg
}

// Bitrate returns the result of the most recent bitrate check of output
// writes.
func (r *Receiver) Bitrate() int {
	return r.bitrate.Bitrate()
}

// Stats returns the depacketizer counters of the current or most recent run.
func (r *Receiver) Stats() rtp.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.depack == nil {
		return rtp.Stats{}
	}
	return r.depack.Stats()
}

// Done returns a channel that is closed when the input of the current run
// ends, either at the end of the stream or because of a read error, or when
// the receiver is stopped. The receiver remains running until Stop is called.
func (r *Receiver) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Write writes interleaved RTP to the receiver's input, which must be
// manual input.
func (r *Receiver) Write(p []byte) (int, error) {
	mi, ok := r.input.(*device.ManualInput)
	if !ok {
		return 0, errors.New("cannot write to anything but ManualInput")
	}
	return mi.Write(p)
}

// CloseInput ends the stream written to a manual input.
func (r *Receiver) CloseInput() error {
	mi, ok := r.input.(*device.ManualInput)
	if !ok {
		return errors.New("cannot close anything but ManualInput")
	}
	return mi.CloseWrite()
}

// Start sets up the pipeline from the current config and starts receiving.
func (r *Receiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.cfg.Logger.Warning("start called, but receiver already running")
		return nil
	}

	r.cfg.Logger.Debug("resetting receiver")
	err := r.reset(r.cfg)
	if err != nil {
		r.closeSenders()
		return err
	}
	r.cfg.Logger.Info("receiver reset")

	r.cfg.Logger.Debug("starting input")
	err = r.input.Start()
	if err != nil {
		r.closeSenders()
		return fmt.Errorf("could not start input device: %w", err)
	}
	r.cfg.Logger.Info("input started", "device", r.input.Name())

	err = r.pipe.Start()
	if err != nil {
		r.input.Stop()
		r.closeSenders()
		return fmt.Errorf("could not start pipeline: %w", err)
	}

	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.handleEvents(r.pipe.Events(), r.stop, r.done)

	r.running = true
	return nil
}

// Stop closes down the pipeline. Any partially received frame is discarded.
// Outputs are flushed and their files closed.
func (r *Receiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		r.cfg.Logger.Warning("stop called but receiver isn't running")
		return
	}

	r.cfg.Logger.Debug("stopping pipeline")
	err := r.pipe.Stop()
	if err != nil {
		r.cfg.Logger.Error("could not stop pipeline", "error", err.Error())
	} else {
		r.cfg.Logger.Info("pipeline stopped")
	}

	r.cfg.Logger.Debug("waiting for routines to finish")
	close(r.stop)
	r.wg.Wait()
	r.cfg.Logger.Info("routines finished")

	r.closeSenders()

	s := r.depack.Stats()
	r.cfg.Logger.Info("receiver stopped", "frames", s.Frames, "damaged", s.Damaged, "lost", s.Lost, "discarded", s.Discarded, "parseErrors", s.ParseErrors, "malformed", r.source.Malformed())
	r.running = false
}

// Running reports whether the receiver has been started and not stopped.
func (r *Receiver) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Update takes a map of variables and their values and edits the current config
// if the variables are recognised as valid parameters. A running receiver is
// restarted with the new config.
func (r *Receiver) Update(vars map[string]string) error {
	wasRunning := r.Running()
	if wasRunning {
		r.cfg.Logger.Debug("receiver running; stopping for re-config")
		r.Stop()
		r.cfg.Logger.Info("receiver was running; stopped for re-config")
	}

	r.cfg.Logger.Debug("checking vars", "vars", vars)
	r.cfg.Update(vars)
	err := r.setConfig(r.cfg)
	if err != nil {
		return err
	}
	r.cfg.Logger.Info("finished reconfig")
	r.cfg.Logger.Debug("config changed", "config", r.cfg)

	if wasRunning {
		return r.Start()
	}
	return nil
}

// handleEvents is run as a routine to act on events raised by the pipeline.
// At the end of the stream, a frame still in progress is assembled and
// written, as the final packet of a stream may not mark a frame boundary.
func (r *Receiver) handleEvents(events <-chan pipeline.Event, stop, done chan struct{}) {
	defer r.wg.Done()
	ended := false
	end := func() {
		if !ended {
			close(done)
			ended = true
		}
	}
	defer end()

	for {
		select {
		case <-stop:
			return
		case e := <-events:
			switch e.Kind {
			case pipeline.EventEndOfStream:
				r.cfg.Logger.Info("end of stream", "origin", e.Origin)
				if f := r.depack.Assemble(); f != nil {
					r.cfg.Logger.Debug("writing final frame", "len", f.Len())
					r.sink.Push(f)
				}
				end()
			case pipeline.EventError:
				r.cfg.Logger.Error("pipeline error", "origin", e.Origin, "error", e.Err)
				if e.Origin == r.source.Name() {
					end()
				}
			default:
				r.cfg.Logger.Debug("pipeline event", "kind", e.Kind.String(), "origin", e.Origin)
			}
		}
	}
}

// closeSenders closes the outputs' senders, if any.
func (r *Receiver) closeSenders() {
	if r.senders == nil {
		return
	}
	r.cfg.Logger.Debug("closing senders")
	err := r.senders.Close()
	if err != nil {
		r.cfg.Logger.Error("failed to close senders", "error", err.Error())
	} else {
		r.cfg.Logger.Info("senders closed")
	}
	r.senders = nil
}
