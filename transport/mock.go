// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transport

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
)

// ErrMockDial is returned by a MockDialer with no connection queued for a host.
var ErrMockDial = errors.New("mock dial failure")

// MockDial records a single dial made against a MockDialer.
type MockDial struct {
	URL     string
	Version byte
}

// MockDialer is a dialer for testing which hands out the client side of an
// in-memory pipe. The server side is delivered on Accepted for a test to
// play the part of the broker.
type MockDialer struct {
	sync.Mutex
	Dials    []MockDial    // every dial in the order it was made
	Accepted chan net.Conn // the server side of each successful dial
	Refuse   map[string]bool
}

// NewMockDialer returns a new instance of MockDialer.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		Accepted: make(chan net.Conn, 16),
		Refuse:   map[string]bool{},
	}
}

// Dial records the dial and returns one end of a net.Pipe, or ErrMockDial if
// the host has been refused.
func (d *MockDialer) Dial(ctx context.Context, u *url.URL, version byte) (net.Conn, error) {
	d.Lock()
	d.Dials = append(d.Dials, MockDial{URL: u.String(), Version: version})
	refuse := d.Refuse[u.Host]
	d.Unlock()

	if refuse {
		return nil, ErrMockDial
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, server := net.Pipe()
	d.Accepted <- server
	return client, nil
}

// Attempts returns a copy of the recorded dials.
func (d *MockDialer) Attempts() []MockDial {
	d.Lock()
	defer d.Unlock()
	return append([]MockDial{}, d.Dials...)
}
