/*
NAME
  pipeline.go

DESCRIPTION
  pipeline.go provides the stage interfaces of a push based media pipeline,
  the Link type that carries a producing stage's flow state, and the events
  that travel back upstream.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package pipeline provides a push based source -> transform -> sink
// pipeline. Data flows downstream by synchronous calls to Push; control
// events flow upstream, one link at a time, until they reach the origin.
//
// A stage that produces values embeds a Link, which owns the reference to the
// next stage and the flushing flag. While a Link is flushing, pushes through
// it are accepted and dropped. A terminal stage embeds a Terminal so that it
// can raise events.
package pipeline

import (
	"fmt"
	"sync"
)

// EventKind identifies the type of an Event.
type EventKind int

// Event kinds.
const (
	EventEndOfStream EventKind = iota // The origin has no more data.
	EventBufferState                  // A stage changed buffering state.
	EventError                        // A stage failed to handle data.
	EventFlush                        // A stage requests that data be discarded.
)

func (k EventKind) String() string {
	switch k {
	case EventEndOfStream:
		return "end-of-stream"
	case EventBufferState:
		return "buffer-state"
	case EventError:
		return "error"
	case EventFlush:
		return "flush"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a control message. Events only ever travel upstream and are
// delivered without backpressure.
type Event struct {
	Kind      EventKind
	Origin    string // Name of the stage that raised the event.
	Buffering bool   // Buffering state, for EventBufferState.
	Err       error  // Cause, for EventError.
}

// EventHandler receives events from the stage downstream of it.
type EventHandler interface {
	OnEvent(e Event)
}

// EventHandlerFunc adapts a function to an EventHandler.
type EventHandlerFunc func(e Event)

// OnEvent implements EventHandler.
func (f EventHandlerFunc) OnEvent(e Event) { f(e) }

// Consumer is a stage that accepts values of type T pushed from upstream.
type Consumer[T any] interface {
	// Push hands v to the stage. A false return asks upstream to stop sending
	// work down this path; it is advisory.
	Push(v T) bool

	// SetUpstream sets the handler that events raised by this stage are sent to.
	SetUpstream(h EventHandler)
}

// Producer is a stage that pushes values of type T downstream.
type Producer[T any] interface {
	EventHandler

	SetDownstream(c Consumer[T])
	SetUpstream(h EventHandler)
	SetFlushing(flushing bool)
}

// Transform is a stage that consumes In and produces Out.
type Transform[In, Out any] interface {
	Consumer[In]
	Producer[Out]
}

// Starter is implemented by stages that need starting, such as sources that
// read from a connection.
type Starter interface {
	Start() error
}

// Stopper is implemented by stages that hold resources that must be released
// when the pipeline stops.
type Stopper interface {
	Stop() error
}

// Link holds the flow state of a producing stage. It is intended to be
// embedded. The zero value is an unlinked, non-flushing Link.
//
// Push holds the Link's lock for the duration of the downstream call, so
// SetFlushing waits for any push in flight. Downstream stages must therefore
// not flush or stop their own upstream from within Push; they should raise an
// event instead.
type Link[T any] struct {
	mu       sync.Mutex
	flushing bool
	down     Consumer[T]
	up       EventHandler
}

// SetDownstream sets the stage that values are pushed to.
func (l *Link[T]) SetDownstream(c Consumer[T]) {
	l.mu.Lock()
	l.down = c
	l.mu.Unlock()
}

// SetUpstream sets the handler that events are forwarded to. It must be
// called before the pipeline is started.
func (l *Link[T]) SetUpstream(h EventHandler) { l.up = h }

// SetFlushing sets or clears the flushing flag.
func (l *Link[T]) SetFlushing(flushing bool) {
	l.mu.Lock()
	l.flushing = flushing
	l.mu.Unlock()
}

// Flushing reports whether the Link is flushing.
func (l *Link[T]) Flushing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushing
}

// Push sends v downstream and returns the downstream stage's answer. While
// flushing, or if there is no downstream stage, v is dropped and Push
// returns true.
func (l *Link[T]) Push(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.flushing || l.down == nil {
		return true
	}
	return l.down.Push(v)
}

// OnEvent forwards e upstream. Events are forwarded whether or not the Link
// is flushing.
func (l *Link[T]) OnEvent(e Event) {
	if l.up != nil {
		l.up.OnEvent(e)
	}
}

// Emit raises e from this stage.
func (l *Link[T]) Emit(e Event) { l.OnEvent(e) }

// Terminal holds the upstream reference of a sink. It is intended to be
// embedded.
type Terminal struct {
	up EventHandler
}

// SetUpstream implements Consumer.
func (t *Terminal) SetUpstream(h EventHandler) { t.up = h }

// Emit sends e upstream.
func (t *Terminal) Emit(e Event) {
	if t.up != nil {
		t.up.OnEvent(e)
	}
}
