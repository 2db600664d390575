package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	berr "github.com/next-trace/scg-chain-relay/contract/errors"
)

// Concrete NATS connection-backed Conn and constructor.

type natsConn struct{ nc *nats.Conn }

func (c natsConn) ChanSubscribe(subj string, ch chan *nats.Msg) (Unsubscriber, error) {
	return c.nc.ChanSubscribe(subj, ch)
}

func (c natsConn) PublishMsg(m *nats.Msg) error { return c.nc.PublishMsg(m) }

func (c natsConn) RequestMsgWithContext(ctx context.Context, m *nats.Msg) (*nats.Msg, error) {
	return c.nc.RequestMsgWithContext(ctx, m)
}

type Config struct {
	URL           string
	Name          string
	Subject       string // well-known provider-side subject prefix
	ConnTimeout   time.Duration
	MaxReconnects int
}

// NewWithNATS creates a real NATS connection and returns an Endpoint and a cleanup.
func NewWithNATS(cfg Config) (*Endpoint, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: nats url required", berr.ErrSubscribeFailed)
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nats connect: %w", berr.ErrSubscribeFailed, err)
	}

	ep := New(natsConn{nc: nc}, cfg.Subject)
	cleanup := func() {
		if nc != nil && !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
			nc.Close()
		}
	}

	return ep, cleanup, nil
}
