/*
NAME
  builder.go

DESCRIPTION
  builder.go provides functions for composing stages into a Pipeline, and the
  Pipeline type that starts, stops and flushes them.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// eventQueueLen is the number of origin events held for a reader of
// Pipeline.Events before further events are dropped.
const eventQueueLen = 16

var (
	errNilStage   = errors.New("nil stage")
	errDupStage   = errors.New("stage used more than once")
	errNotRunning = errors.New("pipeline not running")
)

// Chain is a partially built pipeline whose last stage produces T. Chains are
// created with From and extended with Then; because these are generic
// functions, a stage that does not accept what the previous stage produces is
// a compile time error.
type Chain[T any] struct {
	stages []any
	wires  []func()
	origin func(EventHandler)
	detach func()
	tail   Producer[T]
	err    error
}

// From starts a chain at the source src.
func From[T any](src Producer[T]) *Chain[T] {
	c := &Chain[T]{
		tail:   src,
		origin: func(h EventHandler) { src.SetUpstream(h) },
		detach: func() { src.SetDownstream(nil) },
	}
	c.add(src)
	return c
}

// Then appends the transform t to c.
func Then[In, Out any](c *Chain[In], t Transform[In, Out]) *Chain[Out] {
	next := &Chain[Out]{stages: c.stages, wires: c.wires, origin: c.origin, detach: c.detach, tail: t, err: c.err}
	next.add(t)
	up := c.tail
	next.wires = append(next.wires, func() {
		up.SetDownstream(t)
		t.SetUpstream(up)
	})
	return next
}

// To terminates c with the sink s and returns the assembled Pipeline. Stages
// are only wired together if the chain is valid.
func To[T any](c *Chain[T], s Consumer[T]) (*Pipeline, error) {
	c.add(s)
	if c.err != nil {
		return nil, c.err
	}
	up := c.tail
	wires := append(c.wires, func() {
		up.SetDownstream(s)
		s.SetUpstream(up)
	})

	p := &Pipeline{
		stages: c.stages,
		wires:  wires,
		origin: c.origin,
		detach: c.detach,
		events: make(chan Event, eventQueueLen),
	}
	p.wire()
	return p, nil
}

// add records stage v, noting the first validation failure.
func (c *Chain[T]) add(v any) {
	if c.err != nil {
		return
	}
	if isNil(v) {
		c.err = fmt.Errorf("stage %d: %w", len(c.stages), errNilStage)
		return
	}
	for i, s := range c.stages {
		if sameStage(s, v) {
			c.err = fmt.Errorf("stages %d and %d: %w", i, len(c.stages), errDupStage)
			return
		}
	}
	c.stages = append(c.stages, v)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func sameStage(a, b any) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.TypeOf(a).Comparable() {
		return false
	}
	return a == b
}

// Pipeline is an assembled, startable chain of stages.
type Pipeline struct {
	mu      sync.Mutex
	stages  []any
	wires   []func()
	origin  func(EventHandler)
	detach  func()
	events  chan Event
	running bool
}

// wire links every stage to its neighbours and routes events reaching the
// source to the pipeline's event queue.
func (p *Pipeline) wire() {
	for _, w := range p.wires {
		w()
	}
	p.origin(EventHandlerFunc(p.deliver))
}

// deliver queues e for Events, dropping it if the queue is full.
func (p *Pipeline) deliver(e Event) {
	select {
	case p.events <- e:
	default:
	}
}

// Events returns a channel receiving events that have propagated all the way
// to the source.
func (p *Pipeline) Events() <-chan Event { return p.events }

// Start clears flushing and starts each stage that is a Starter, sink first,
// so that the source begins pushing only once everything downstream is ready.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.wire()
	p.setFlushing(false)
	for i := len(p.stages) - 1; i >= 0; i-- {
		s, ok := p.stages[i].(Starter)
		if !ok {
			continue
		}
		err := s.Start()
		if err != nil {
			p.setFlushing(true)
			p.stop(i + 1)
			return fmt.Errorf("could not start stage %d: %w", i, err)
		}
	}
	p.running = true
	return nil
}

// Stop sets every stage flushing, detaches the source and stops each stage
// that is a Stopper, source first. Any partially assembled data held by a
// stage is discarded.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return errNotRunning
	}
	p.setFlushing(true)
	err := p.stop(0)
	p.running = false
	return err
}

// stop stops the stages from index from to the sink and detaches the source.
func (p *Pipeline) stop(from int) error {
	var errs []error
	for i := from; i < len(p.stages); i++ {
		s, ok := p.stages[i].(Stopper)
		if !ok {
			continue
		}
		err := s.Stop()
		if err != nil {
			errs = append(errs, fmt.Errorf("stage %d: %w", i, err))
		}
	}
	p.detach()
	return errors.Join(errs...)
}

// SetFlushing sets or clears flushing on every producing stage.
func (p *Pipeline) SetFlushing(flushing bool) {
	p.mu.Lock()
	p.setFlushing(flushing)
	p.mu.Unlock()
}

func (p *Pipeline) setFlushing(flushing bool) {
	for _, s := range p.stages {
		if f, ok := s.(interface{ SetFlushing(bool) }); ok {
			f.SetFlushing(flushing)
		}
	}
}

// Running reports whether the pipeline has been started and not stopped.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
