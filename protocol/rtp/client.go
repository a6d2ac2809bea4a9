/*
NAME
  client.go

DESCRIPTION
  client.go provides an RTP client that receives packets over UDP.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Default time a Client waits for a packet before Read returns a timeout.
const defaultReadTimeout = 5 * time.Second

// Client describes an RTP client that can receive an RTP stream and implements
// io.Reader. Each call to Read returns exactly one datagram.
type Client struct {
	r        *PacketReader
	mu       sync.Mutex
	ssrc     uint32
	sequence uint16
	cycles   uint16
	started  bool
}

// NewClient returns a pointer to a new Client.
//
// addr is the address of form <ip>:<port> that we expect to receive
// RTP at. A port of 0 selects a free port; see LocalAddr.
func NewClient(addr string) (*Client, error) {
	c := &Client{r: &PacketReader{Timeout: defaultReadTimeout}}

	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not resolve address: %w", err)
	}

	c.r.PacketConn, err = net.ListenUDP("udp", a)
	if err != nil {
		return nil, fmt.Errorf("could not listen on %s: %w", addr, err)
	}

	return c, nil
}

// LocalAddr returns the address the client is receiving on.
func (c *Client) LocalAddr() net.Addr {
	return c.r.PacketConn.LocalAddr()
}

// SSRC returns the identified for the source from which the RTP packets being
// received are coming from.
func (c *Client) SSRC() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ssrc
}

// Read implements io.Reader.
func (c *Client) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil {
		return n, err
	}
	s, serr := Sequence(p[:n])
	if serr != nil {
		return n, nil
	}
	c.mu.Lock()
	if c.ssrc == 0 {
		c.ssrc, _ = SSRC(p[:n])
	}
	c.mu.Unlock()
	c.setSequence(s)
	return n, nil
}

// Close will close the RTP client's connection.
func (c *Client) Close() error {
	return c.r.PacketConn.Close()
}

// setSequence sets the most recently received sequence number, and updates the
// cycles count if the sequence number has rolled over.
func (c *Client) setSequence(s uint16) {
	c.mu.Lock()
	if c.started && s < c.sequence {
		c.cycles++
	}
	c.sequence = s
	c.started = true
	c.mu.Unlock()
}

// Sequence returns the most recent RTP packet sequence number received.
func (c *Client) Sequence() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence
}

// Cycles returns the number of RTP sequence number cycles that have been received.
func (c *Client) Cycles() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

// PacketReader provides an io.Reader interface to an underlying UDP PacketConn.
// If Timeout is non-zero, a Read waiting longer than Timeout for a packet
// fails with an error satisfying net.Error whose Timeout method returns true.
type PacketReader struct {
	net.PacketConn
	Timeout time.Duration
}

// Read implements io.Reader.
func (r PacketReader) Read(b []byte) (int, error) {
	if r.Timeout != 0 {
		err := r.PacketConn.SetReadDeadline(time.Now().Add(r.Timeout))
		if err != nil {
			return 0, fmt.Errorf("could not set read deadline for PacketConn: %w", err)
		}
	}
	n, _, err := r.PacketConn.ReadFrom(b)
	return n, err
}
