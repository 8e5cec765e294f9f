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
	"bytes"

	zlog "github.com/rs/zerolog/log"

	"github.com/dolysis/recordbroker/internal/join"
	"github.com/dolysis/recordbroker/internal/wire"
	"github.com/dolysis/recordbroker/logging"
)

// runSubstream is the per-sub-stream operator pipeline goroutine: it
// folds the configured exec-list ops (Join then Filter) over the
// sub-stream's Data records and republishes the result to the loader
// broadcaster. Header records bracketing the sub-stream pass straight
// through.
func (b *Broker) runSubstream(sub *substream, id string) {
	defer sub.wg.Done()

	var machine *join.Machine[wire.Data]
	if b.join != nil {
		for _, op := range b.exec.Ops() {
			if op.Join {
				machine = join.NewMachine(b.join, dataLineText, 0)
				break
			}
		}
	}

	filterNames := make([]string, 0, len(b.exec.Ops()))
	for _, op := range b.exec.Ops() {
		if !op.Join {
			filterNames = append(filterNames, op.FilterName)
		}
	}

	emit := func(d wire.Data) {
		for _, name := range filterNames {
			ok, err := b.filters.Match(name, dataLineText(d))
			if err != nil {
				zlog.Warn().Str("kind", logging.KindRecord).Str("id", id).Str("filter", name).Err(err).Msg("filter evaluation error, dropping record")
				return
			}
			if !ok {
				return
			}
		}
		b.bc.publish(d)
	}

	for rec := range sub.in {
		switch v := rec.(type) {
		case wire.Header:
			if v.Cxt == wire.DataContextEnd && machine != nil {
				if group := machine.Flush(); group != nil {
					emit(joinGroup(group))
				}
			}
			b.bc.publish(v)

		case wire.Data:
			if machine == nil {
				emit(v)
				continue
			}
			for _, group := range machine.Push(v) {
				emit(joinGroup(group))
			}

		default:
			zlog.Warn().Str("kind", logging.KindRecord).Str("id", id).Msg("unexpected record kind reached sub-stream pipeline")
		}
	}

	if machine != nil {
		if group := machine.Flush(); group != nil {
			emit(joinGroup(group))
		}
	}
}

// dataLineText is the text a join/filter predicate matches against.
func dataLineText(d wire.Data) string {
	return string(d.Payload)
}

// joinGroup collapses a run of Data records into one, concatenating
// their payloads with newlines and keeping the first record's framing
// fields (id, pid, version, context).
func joinGroup(group []wire.Data) wire.Data {
	if len(group) == 1 {
		return group[0]
	}
	head := group[0]
	var buf bytes.Buffer
	for i, d := range group {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.Write(d.Payload)
	}
	head.Payload = buf.Bytes()
	return head
}
