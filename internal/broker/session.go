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
	"errors"
	"io"
	"net"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/dolysis/recordbroker/internal/wire"
	"github.com/dolysis/recordbroker/logging"
)

// handleConn owns one producer connection end to end: framed read with
// an inactivity deadline, a one-record lookahead that validates the
// session starts with StreamStart and ends with StreamEnd, and demux
// dispatch of everything in between. The transformed output is
// re-multiplexed onto the broker's loader broadcaster, not written back
// to this connection: a producer connection is input-only.
func (b *Broker) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	zlog.Debug().Str("remote", remote).Msg("connection accepted")

	dx := newDemux(b, remote)
	fr := wire.NewFrameReader(conn)

	var prev wire.Record
	havePrev := false
	isFirst := true
	sawStreamStart := false
	sawStreamEnd := false

	for {
		select {
		case <-ctx.Done():
			dx.closeAll()
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(b.inactivityTimeout)); err != nil {
			zlog.Warn().Str("kind", logging.KindIO).Str("remote", remote).Err(err).Msg("failed to set read deadline")
		}

		rec, err := fr.ReadRecord()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				zlog.Warn().Str("kind", logging.KindIO).Str("remote", remote).Msg("connection inactive past timeout, closing")
			} else {
				zlog.Warn().Str("kind", logging.KindRecord).Str("remote", remote).Err(err).Msg("frame read error, closing connection")
			}
			break
		}

		if isFirst {
			if _, ok := rec.(wire.StreamStart); !ok {
				zlog.Error().Str("kind", logging.KindRecord).Str("remote", remote).Msg("session did not begin with StreamStart, closing")
				break
			}
			sawStreamStart = true
			isFirst = false
			b.bc.publish(wire.StreamStart{})
			continue
		}

		if sawStreamEnd {
			zlog.Error().Str("kind", logging.KindRecord).Str("remote", remote).Msg("record received after StreamEnd, closing connection")
			break
		}

		if havePrev {
			dx.dispatch(prev)
		}
		if _, ok := rec.(wire.StreamEnd); ok {
			sawStreamEnd = true
		}
		prev = rec
		havePrev = true
	}

	if havePrev {
		if _, ok := prev.(wire.StreamEnd); !ok {
			zlog.Warn().Str("kind", logging.KindRecord).Str("remote", remote).Msg("session did not end with StreamEnd")
			dx.dispatch(prev)
		}
	}

	dx.closeAll()
	if sawStreamStart {
		b.bc.publish(wire.StreamEnd{})
	}
}
