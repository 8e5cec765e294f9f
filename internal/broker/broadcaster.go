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

package broker

import (
	"context"
	"net"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/dolysis/recordbroker/internal/execlist"
	"github.com/dolysis/recordbroker/internal/wire"
	"github.com/dolysis/recordbroker/logging"
)

// consumer is one loader sink's outbound queue. Go has no ecosystem
// equivalent of tokio::sync::broadcast wired through the retrieved pack,
// so the lag-tolerant fan-out is hand-written directly over channel
// semantics: a full queue means that consumer is lagging, its record is
// dropped, and a single warning is logged per lag episode rather than
// once per dropped record.
type consumer struct {
	addr    string
	ch      chan wire.Record
	lagging bool
	dropped uint64
}

// broadcaster fans transformed records out to every configured loader
// sink.
type broadcaster struct {
	mu        sync.Mutex
	consumers []*consumer
	bufSize   int
}

func newBroadcaster(bufSize int, loads []execlist.Load) *broadcaster {
	bc := &broadcaster{bufSize: bufSize}
	for _, l := range loads {
		bc.consumers = append(bc.consumers, &consumer{
			addr: l.Addr,
			ch:   make(chan wire.Record, bufSize),
		})
	}
	return bc
}

// start dials every loader sink and begins draining its queue. Dialing
// happens in the background so a slow or absent loader never blocks
// broker startup; a dial failure is retried once after a short backoff.
// If the second dial also fails, the failure is logged and that sink's
// queue is drained and discarded. No reconnect is attempted, either after
// a failed dial or after a write error mid-stream.
func (bc *broadcaster) start(ctx context.Context) {
	for _, c := range bc.consumers {
		go bc.runConsumer(ctx, c)
	}
}

func (bc *broadcaster) runConsumer(ctx context.Context, c *consumer) {
	var conn net.Conn
	var err error
	dialer := net.Dialer{}

	for attempt := 0; attempt < 2; attempt++ {
		conn, err = dialer.DialContext(ctx, "tcp", c.addr)
		if err == nil || attempt == 1 {
			break
		}
		zlog.Warn().Str("kind", logging.KindIO).Str("loader", c.addr).Err(err).Msg("failed to dial loader, retrying")
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
	if err != nil {
		zlog.Error().Str("kind", logging.KindIO).Str("loader", c.addr).Err(err).Msg("giving up dialing loader; records to it will be dropped")
		bc.drain(ctx, c, nil)
		return
	}
	defer conn.Close()

	fw := wire.NewFrameWriter(conn)
	bc.drain(ctx, c, fw)
}

func (bc *broadcaster) drain(ctx context.Context, c *consumer, fw *wire.FrameWriter) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-c.ch:
			if !ok {
				return
			}
			if fw == nil {
				continue
			}
			if err := fw.WriteRecord(rec); err != nil {
				zlog.Warn().Str("kind", logging.KindIO).Str("loader", c.addr).Err(err).Msg("write to loader failed; dropping further records for this sink")
				fw = nil
			}
		}
	}
}

// publish offers rec to every consumer's queue. A full queue marks that
// consumer as lagging: the record is dropped and, for the first drop in
// an unbroken run, one warning is logged.
func (bc *broadcaster) publish(rec wire.Record) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for _, c := range bc.consumers {
		select {
		case c.ch <- rec:
			c.lagging = false
		default:
			c.dropped++
			if !c.lagging {
				zlog.Warn().Str("kind", logging.KindChannel).Str("loader", c.addr).Uint64("dropped", c.dropped).Msg("loader fell behind, dropping records until it catches up")
				c.lagging = true
			}
		}
	}
}
