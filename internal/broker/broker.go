// Copyright 2024-2025 Andres Morey
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package broker implements the Stream Orchestrator: a TCP listener that
// demultiplexes a producer's framed record stream by sub-stream id,
// applies the configured join/filter chain to each sub-stream, and
// re-multiplexes the result out to a lag-tolerant fan-out of loader
// sinks.
package broker

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
	zlog "github.com/rs/zerolog/log"

	"github.com/dolysis/recordbroker/internal/execlist"
	"github.com/dolysis/recordbroker/internal/filter"
	"github.com/dolysis/recordbroker/internal/join"
)

// Default tuning values, overridable via Option.
const (
	DefaultChannelBuffer         = 256
	DefaultLoaderBroadcastBuffer = 256
	DefaultInactivityTimeout     = 3 * time.Second
)

// Event names published on the broker's EventBus. Subscribers are
// pass-through instrumentation only; nothing in the pipeline depends on
// a subscriber being present.
const (
	EventSubstreamOpened = "substream.opened"
	EventSubstreamClosed = "substream.closed"
)

// Broker is the Stream Orchestrator.
type Broker struct {
	bindAddr              string
	inactivityTimeout     time.Duration
	channelBuffer         int
	loaderBroadcastBuffer int

	filters *filter.FilterSet
	join    *join.Handle
	exec    *execlist.ExecList

	bus evbus.Bus

	listener net.Listener
	bc       *broadcaster

	closeOnce sync.Once
	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Broker at construction time, in the teacher's
// functional-options style.
type Option func(*Broker) error

// WithBindAddr sets the TCP address the broker listens on.
func WithBindAddr(addr string) Option {
	return func(b *Broker) error {
		b.bindAddr = addr
		return nil
	}
}

// WithInactivityTimeout bounds how long a producer connection may go
// without a frame before the broker closes it.
func WithInactivityTimeout(d time.Duration) Option {
	return func(b *Broker) error {
		if d <= 0 {
			return fmt.Errorf("broker: inactivity timeout must be positive")
		}
		b.inactivityTimeout = d
		return nil
	}
}

// WithChannelBuffer sets the per-sub-stream channel capacity.
func WithChannelBuffer(n int) Option {
	return func(b *Broker) error {
		if n <= 0 {
			return fmt.Errorf("broker: channel buffer must be positive")
		}
		b.channelBuffer = n
		return nil
	}
}

// WithLoaderBroadcastBuffer sets the per-loader fan-out channel capacity.
func WithLoaderBroadcastBuffer(n int) Option {
	return func(b *Broker) error {
		if n <= 0 {
			return fmt.Errorf("broker: loader broadcast buffer must be positive")
		}
		b.loaderBroadcastBuffer = n
		return nil
	}
}

// WithFilters supplies the compiled FilterSet referenced by exec's
// filter(name) stages.
func WithFilters(fs *filter.FilterSet) Option {
	return func(b *Broker) error {
		b.filters = fs
		return nil
	}
}

// WithJoin supplies the compiled join Handle used whenever exec's
// operation chain contains a Join stage.
func WithJoin(h *join.Handle) Option {
	return func(b *Broker) error {
		b.join = h
		return nil
	}
}

// WithExecList supplies the normalized operation/loader chain.
func WithExecList(el *execlist.ExecList) Option {
	return func(b *Broker) error {
		b.exec = el
		return nil
	}
}

// New builds a Broker from options, validating the exec list's filter
// references against the compiled FilterSet.
func New(opts ...Option) (*Broker, error) {
	b := &Broker{
		inactivityTimeout:     DefaultInactivityTimeout,
		channelBuffer:         DefaultChannelBuffer,
		loaderBroadcastBuffer: DefaultLoaderBroadcastBuffer,
		bus:                   evbus.New(),
		ready:                 make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.bindAddr == "" {
		return nil, fmt.Errorf("broker: bind address is required")
	}
	if b.exec == nil {
		return nil, fmt.Errorf("broker: exec list is required")
	}
	if b.filters == nil {
		b.filters, _, _ = filter.Compile(nil)
	}
	for _, op := range b.exec.Ops() {
		if op.Join && b.join == nil {
			return nil, fmt.Errorf("broker: exec list references join but no join handle was configured")
		}
	}
	if err := b.exec.Validate(b.filters); err != nil {
		return nil, err
	}

	b.bc = newBroadcaster(b.loaderBroadcastBuffer, b.exec.Loads())
	return b, nil
}

// Bus exposes the substream lifecycle EventBus for instrumentation.
func (b *Broker) Bus() evbus.Bus {
	return b.bus
}

// ListenAndServe binds the listener, starts the loader fan-out, and
// accepts connections until ctx is cancelled. Any accept error while ctx
// is still live ends the accept loop and is returned; the loop does not
// retry.
func (b *Broker) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", b.bindAddr)
	if err != nil {
		return fmt.Errorf("broker: listen on %s: %w", b.bindAddr, err)
	}
	b.listener = lis
	zlog.Info().Str("addr", lis.Addr().String()).Msg("broker listening")
	b.readyOnce.Do(func() { close(b.ready) })

	b.bc.start(ctx)

	go func() {
		<-ctx.Done()
		b.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("broker: accept: %w", err)
		}
		go b.handleConn(ctx, conn)
	}
}

// Addr blocks until the listener is bound and returns its address. It is
// meant for tests and for bindAddr ":0" ephemeral-port setups.
func (b *Broker) Addr() net.Addr {
	<-b.ready
	return b.listener.Addr()
}

// Close shuts the listener down. Safe to call more than once.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		if b.listener != nil {
			_ = b.listener.Close()
		}
	})
}
