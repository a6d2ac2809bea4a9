/*
NAME
  source.go

DESCRIPTION
  source.go provides Source, a pipeline source that reads RTP packets from
  an io.Reader and pushes them downstream.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/pipeline"
)

// Largest packet a Source will read.
const maxPacketSize = 65536

// Source is a pipeline source reading RTP packets from an io.Reader, such as
// a Client or an InterleavedReader, where each Read yields one packet.
//
// Malformed packets are logged and dropped. Read timeouts are retried. When
// the reader is exhausted the Source raises EventEndOfStream; any other read
// failure raises EventError. Either ends the read loop.
type Source struct {
	pipeline.Link[*Packet]

	name string
	src  io.Reader
	log  logging.Logger

	mu        sync.Mutex
	running   bool
	done      chan struct{}
	wg        sync.WaitGroup
	malformed uint64
}

// NewSource returns a Source called name reading packets from src.
func NewSource(name string, src io.Reader, log logging.Logger) *Source {
	return &Source{name: name, src: src, log: log}
}

// Name returns the name of the Source, used as the origin of its events.
func (s *Source) Name() string { return s.name }

// Start starts the read loop. It implements pipeline.Starter.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.done = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.read()
	return nil
}

// Stop ends the read loop and waits for it to return. If the underlying
// reader is an io.Closer it is closed to interrupt a blocked Read. It
// implements pipeline.Stopper.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	var err error
	if c, ok := s.src.(io.Closer); ok {
		err = c.Close()
	}
	s.wg.Wait()
	return err
}

// Malformed returns the number of packets dropped because they could not be
// parsed.
func (s *Source) Malformed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.malformed
}

// read is the read loop, run in its own routine by Start.
func (s *Source) read() {
	defer s.wg.Done()
	buf := make([]byte, maxPacketSize)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.src.Read(buf)
		if err != nil {
			if s.stopped() {
				return
			}
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				s.log.Debug("read timed out", "source", s.name)
				continue
			case errors.Is(err, io.ErrShortBuffer):
				s.log.Warning("dropped oversized packet", "source", s.name)
				continue
			case errors.Is(err, io.EOF):
				s.log.Info("end of stream", "source", s.name)
				s.Emit(pipeline.Event{Kind: pipeline.EventEndOfStream, Origin: s.name})
				return
			default:
				s.log.Error("read failed", "source", s.name, "error", err)
				s.Emit(pipeline.Event{Kind: pipeline.EventError, Origin: s.name, Err: err})
				return
			}
		}
		if n == 0 {
			continue
		}

		p, err := Parse(buf[:n])
		if err != nil {
			s.mu.Lock()
			s.malformed++
			s.mu.Unlock()
			s.log.Warning("dropping malformed packet", "source", s.name, "error", err)
			continue
		}

		if !s.Push(p) {
			s.log.Debug("packet rejected downstream", "source", s.name, "seq", p.Sequence)
		}
	}
}

// stopped reports whether Stop has been called.
func (s *Source) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
