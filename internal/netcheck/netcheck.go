// Package netcheck answers whether the host currently has a usable network
// path, which both the update checker and backup flows require up front.
package netcheck

import (
	"context"
	"errors"
	"net"
	"time"
)

// ErrNoConnectivity is returned by operations that refuse to start offline.
var ErrNoConnectivity = errors.New("no internet connection")

const (
	DefaultAddr    = "api.github.com:443"
	DefaultTimeout = 3 * time.Second
)

// Checker reports current connectivity. Implementations must not block
// longer than their own timeout.
type Checker interface {
	Online(ctx context.Context) bool
}

// Func adapts a function to Checker.
type Func func(ctx context.Context) bool

func (f Func) Online(ctx context.Context) bool { return f(ctx) }

// Static reports a fixed state. Useful for tests and for forcing offline mode.
type Static bool

func (s Static) Online(context.Context) bool { return bool(s) }

// Dialer probes connectivity by opening a TCP connection to one of Addrs.
type Dialer struct {
	Addrs   []string
	Timeout time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewDialer(timeout time.Duration, addrs ...string) *Dialer {
	if len(addrs) == 0 {
		addrs = []string{DefaultAddr}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &net.Dialer{}
	return &Dialer{Addrs: addrs, Timeout: timeout, dial: d.DialContext}
}

// Online dials each address in turn. A zero Dialer probes DefaultAddr with
// DefaultTimeout.
func (d *Dialer) Online(ctx context.Context) bool {
	addrs, timeout, dial := d.Addrs, d.Timeout, d.dial
	if len(addrs) == 0 {
		addrs = []string{DefaultAddr}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for _, addr := range addrs {
		conn, err := dial(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}
