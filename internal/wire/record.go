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

// Package wire implements the Record wire model: the tag/content CBOR
// envelope exchanged between producers and the broker, and between the
// broker and its loader sinks.
package wire

import "fmt"

// Record is any of the six wire variants. Kind identifies which one.
type Record interface {
	Kind() KindMarker
}

// StreamStart brackets a connection's framed record sequence. It carries
// no payload.
type StreamStart struct{}

func (StreamStart) Kind() KindMarker { return KindStreamStart }

// StreamEnd brackets a connection's framed record sequence. It carries no
// payload.
type StreamEnd struct{}

func (StreamEnd) Kind() KindMarker { return KindStreamEnd }

// Header marks the start or end of a logical sub-stream identified by ID.
// Cxt must be DataContextStart or DataContextEnd; any other value is
// invalid for a Header record.
type Header struct {
	Version uint32
	Time    int64
	ID      string
	Pid     uint32
	Cxt     DataContext
}

func (Header) Kind() KindMarker { return KindHeader }

// ValidHeaderContext reports whether ctx is legal on a Header record.
func ValidHeaderContext(ctx DataContext) bool {
	return ctx == DataContextStart || ctx == DataContextEnd
}

// ValidDataContext reports whether ctx is legal on a Data record. Start
// and End are reserved for the bracketing Header records and are never
// legal here.
func ValidDataContext(ctx DataContext) bool {
	return ctx == DataContextStdout || ctx == DataContextStderr
}

// Data carries one line of output for a sub-stream identified by ID. Cxt
// is always DataContextStdout or DataContextStderr; Start/End bracket the
// body at the Header level and never appear on a Data record.
type Data struct {
	Version uint32
	Time    int64
	ID      string
	Pid     uint32
	Cxt     DataContext
	Payload []byte
	Utf8    bool
}

func (Data) Kind() KindMarker { return KindData }

// Log is an auxiliary out-of-band diagnostic record, passed through the
// orchestrator unmodified.
type Log struct {
	Version uint32
	Message string
}

func (Log) Kind() KindMarker { return KindLog }

// Error is a terminal per-connection error surfaced on the wire before a
// connection closes, passed through the orchestrator unmodified.
type Error struct {
	Version uint32
	Message string
}

func (Error) Kind() KindMarker { return KindError }

// NewErrorRecord builds an Error record from a Go error, mirroring
// Record::new_error from the predecessor's serde_interface crate.
func NewErrorRecord(version uint32, err error) Record {
	return Error{Version: version, Message: err.Error()}
}

// String renders a Data record for logging; it never includes payload
// bytes.
func (d Data) String() string {
	return fmt.Sprintf("Data{id=%s pid=%d cxt=%s n=%d}", d.ID, d.Pid, d.Cxt, len(d.Payload))
}
