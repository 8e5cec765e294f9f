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
	"sync"

	set "github.com/deckarep/golang-set/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/dolysis/recordbroker/internal/wire"
	"github.com/dolysis/recordbroker/logging"
)

// substream is the per-sub-stream pipeline state: an input channel the
// demux feeds and a WaitGroup the owning connection waits on before it
// considers the sub-stream fully drained.
type substream struct {
	in chan wire.Record
	wg sync.WaitGroup
}

// demux owns the live sub-stream table for one producer connection. It
// is only ever touched by that connection's own goroutine, so it carries
// no internal locking.
type demux struct {
	broker *Broker
	remote string

	open set.Set[string]
	subs map[string]*substream
}

func newDemux(b *Broker, remote string) *demux {
	return &demux{
		broker: b,
		remote: remote,
		open:   set.NewThreadUnsafeSet[string](),
		subs:   make(map[string]*substream),
	}
}

// dispatch routes one post-lookahead record: Header Start opens a
// sub-stream and spawns its pipeline goroutine, Header End closes it,
// Data is routed to its open sub-stream, and Log/Error pass straight to
// the loader broadcaster unmodified.
func (d *demux) dispatch(rec wire.Record) {
	switch v := rec.(type) {
	case wire.Header:
		switch v.Cxt {
		case wire.DataContextStart:
			if d.open.Contains(v.ID) {
				zlog.Warn().Str("kind", logging.KindRecord).Str("remote", d.remote).Str("id", v.ID).Msg("duplicate Header start for already-open sub-stream")
				return
			}
			d.open.Add(v.ID)
			sub := &substream{in: make(chan wire.Record, d.broker.channelBuffer)}
			d.subs[v.ID] = sub
			sub.wg.Add(1)
			go d.broker.runSubstream(sub, v.ID)
			sub.in <- v
			d.broker.bus.Publish(EventSubstreamOpened, v.ID)

		case wire.DataContextEnd:
			sub, ok := d.subs[v.ID]
			if !ok {
				zlog.Warn().Str("kind", logging.KindRecord).Str("remote", d.remote).Str("id", v.ID).Msg("Header end for unknown sub-stream")
				return
			}
			sub.in <- v
			close(sub.in)
			sub.wg.Wait()
			delete(d.subs, v.ID)
			d.open.Remove(v.ID)
			d.broker.bus.Publish(EventSubstreamClosed, v.ID)

		default:
			zlog.Warn().Str("kind", logging.KindRecord).Str("remote", d.remote).Str("id", v.ID).Msg("Header record has non-bracketing context")
		}

	case wire.Data:
		sub, ok := d.subs[v.ID]
		if !ok {
			zlog.Warn().Str("kind", logging.KindRecord).Str("remote", d.remote).Str("id", v.ID).Msg("Data record for unknown sub-stream, dropping")
			return
		}
		sub.in <- v

	case wire.Log:
		d.broker.bc.publish(v)

	case wire.Error:
		d.broker.bc.publish(v)

	default:
		zlog.Warn().Str("kind", logging.KindRecord).Str("remote", d.remote).Msg("unexpected record kind at demux stage")
	}
}

// closeAll force-closes every still-open sub-stream's input channel
// (the producer vanished before sending a matching Header end) and
// waits for their pipeline goroutines to drain.
func (d *demux) closeAll() {
	pending := make([]*substream, 0, len(d.subs))
	for id, sub := range d.subs {
		close(sub.in)
		pending = append(pending, sub)
		delete(d.subs, id)
		d.open.Remove(id)
	}
	for _, sub := range pending {
		sub.wg.Wait()
	}
}
