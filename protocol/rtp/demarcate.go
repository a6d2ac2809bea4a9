/*
NAME
  demarcate.go

DESCRIPTION
  demarcate.go provides Demarcators, the policies that decide where frames
  begin and end in a stream of RTP packets.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

// Demarcator decides whether a packet lies on a frame boundary. A Demarcator
// may keep state between calls; Reset returns it to its initial state.
type Demarcator interface {
	Check(p *Packet) bool
	Reset()
}

// TimestampDemarcator reports a boundary whenever a packet's timestamp differs
// from that of the previous packet. The first packet checked is a boundary.
type TimestampDemarcator struct {
	last    uint32
	started bool
}

// Check implements Demarcator.
func (d *TimestampDemarcator) Check(p *Packet) bool {
	boundary := !d.started || p.Timestamp != d.last
	d.last = p.Timestamp
	d.started = true
	return boundary
}

// Reset implements Demarcator.
func (d *TimestampDemarcator) Reset() { *d = TimestampDemarcator{} }

// MarkerDemarcator reports a boundary when the packet's marker bit is set.
type MarkerDemarcator struct{}

// Check implements Demarcator.
func (MarkerDemarcator) Check(p *Packet) bool { return p.Marker }

// Reset implements Demarcator.
func (MarkerDemarcator) Reset() {}

// AlwaysDemarcator reports every packet as a boundary.
type AlwaysDemarcator struct{}

// Check implements Demarcator.
func (AlwaysDemarcator) Check(*Packet) bool { return true }

// Reset implements Demarcator.
func (AlwaysDemarcator) Reset() {}
