// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
)

// TCP is a dialer for establishing connections over basic TCP, optionally wrapped in tls.
type TCP struct {
	config *Config    // configuration values for the dialer
	dialer net.Dialer // the underlying network dialer
}

// NewTCP initialises and returns a new TCP dialer.
func NewTCP(config *Config) *TCP {
	if config == nil {
		config = new(Config)
	}

	return &TCP{
		config: config,
	}
}

// Dial opens a tcp connection to the host of the URI, negotiating tls for the secure schemes.
func (d *TCP) Dial(ctx context.Context, u *url.URL, _ byte) (net.Conn, error) {
	if !secure(u.Scheme) {
		return d.dialer.DialContext(ctx, "tcp", u.Host)
	}

	cfg := d.config.TLSConfig
	if cfg == nil {
		cfg = new(tls.Config)
	}

	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = u.Hostname()
	}

	td := &tls.Dialer{
		NetDialer: &d.dialer,
		Config:    cfg,
	}

	return td.DialContext(ctx, "tcp", u.Host)
}
