/*
DESCRIPTION
  udp.go provides an implementation of the AVDevice interface for RTP
  received over UDP.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package udp provides an implementation of AVDevice for RTP over UDP.
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/rtpav/device"
	"github.com/ausocean/rtpav/protocol/rtp"
	"github.com/ausocean/rtpav/receiver/config"
)

// UDP is an AVDevice receiving RTP datagrams on a local address. Each Read
// returns exactly one packet. Reads time out if nothing arrives for a while,
// returning an error satisfying net.Error.
type UDP struct {
	addr   string
	log    logging.Logger
	mu     sync.Mutex
	client *rtp.Client
}

// New returns a new UDP device.
func New(l logging.Logger) *UDP { return &UDP{log: l} }

// NewWith returns a new UDP device receiving on addr i.e. the Set method does
// not need to be called.
func NewWith(l logging.Logger, addr string) *UDP { return &UDP{log: l, addr: addr} }

// Name returns the name of the device.
func (u *UDP) Name() string { return "UDP" }

// Set sets the receive address from the RTPAddress field of the config.
func (u *UDP) Set(c config.Config) error {
	var errs device.MultiError
	if c.RTPAddress == "" {
		errs = append(errs, errors.New("no RTP address"))
	} else if _, _, err := net.SplitHostPort(c.RTPAddress); err != nil {
		errs = append(errs, fmt.Errorf("invalid RTP address: %w", err))
	}
	if errs != nil {
		return errs
	}
	u.addr = c.RTPAddress
	return nil
}

// Start begins listening on the configured address.
func (u *UDP) Start() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.client != nil {
		return nil
	}
	c, err := rtp.NewClient(u.addr)
	if err != nil {
		return fmt.Errorf("could not create RTP client: %w", err)
	}
	u.client = c
	u.log.Info("receiving RTP", "address", c.LocalAddr().String())
	return nil
}

// Stop closes the connection, interrupting any blocked Read.
func (u *UDP) Stop() error {
	u.mu.Lock()
	c := u.client
	u.client = nil
	u.mu.Unlock()
	if c == nil {
		return nil
	}
	u.log.Info("stopped receiving RTP", "ssrc", c.SSRC(), "sequence", c.Sequence(), "cycles", c.Cycles())
	return c.Close()
}

// Read implements io.Reader.
func (u *UDP) Read(p []byte) (int, error) {
	u.mu.Lock()
	c := u.client
	u.mu.Unlock()
	if c == nil {
		return 0, errors.New("UDP device not started")
	}
	return c.Read(p)
}

// IsRunning is used to determine if the device is running.
func (u *UDP) IsRunning() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.client != nil
}

// LocalAddr returns the address packets are received on, or nil if the
// device is not running.
func (u *UDP) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.client == nil {
		return nil
	}
	return u.client.LocalAddr()
}
