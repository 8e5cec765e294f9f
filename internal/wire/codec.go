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

package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// envelope is the {t:..., c:...} outer shape shared by every Record
// variant. c is omitted entirely for the two payload-free variants
// (StreamStart, StreamEnd).
type envelope struct {
	T KindMarker      `cbor:"t"`
	C cbor.RawMessage `cbor:"c,omitempty"`
}

// Marshal encodes a Record into its CBOR envelope.
func Marshal(r Record) ([]byte, error) {
	env := envelope{T: r.Kind()}

	switch v := r.(type) {
	case StreamStart, StreamEnd:
		// no content map

	case Header:
		content := map[TagMarker]any{
			TagVersion:     v.Version,
			TagTime:        v.Time,
			TagID:          v.ID,
			TagPid:         v.Pid,
			TagDataContext: v.Cxt,
		}
		raw, err := cbor.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal header content: %w", err)
		}
		env.C = raw

	case Data:
		content := map[TagMarker]any{
			TagVersion:     v.Version,
			TagTime:        v.Time,
			TagID:          v.ID,
			TagPid:         v.Pid,
			TagDataContext: v.Cxt,
		}
		if v.Utf8 {
			content[TagUtf8Data] = string(v.Payload)
		} else {
			content[TagData] = v.Payload
		}
		raw, err := cbor.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal data content: %w", err)
		}
		env.C = raw

	case Log:
		content := map[TagMarker]any{
			TagVersion:  v.Version,
			TagUtf8Data: v.Message,
		}
		raw, err := cbor.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal log content: %w", err)
		}
		env.C = raw

	case Error:
		content := map[TagMarker]any{
			TagVersion: v.Version,
			TagError:   v.Message,
		}
		raw, err := cbor.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("wire: marshal error content: %w", err)
		}
		env.C = raw

	default:
		return nil, fmt.Errorf("wire: unknown record type %T", r)
	}

	out, err := cbor.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal envelope: %w", err)
	}
	return out, nil
}

// Unmarshal decodes a Record from its CBOR envelope. Unknown content keys
// are ignored, matching the producer-side tolerance of the original
// serde_interface encoding (ignore-unknown-key, not reject).
func Unmarshal(b []byte) (Record, error) {
	var env envelope
	if err := cbor.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("wire: unmarshal envelope: %w", err)
	}

	switch env.T {
	case KindStreamStart:
		return StreamStart{}, nil
	case KindStreamEnd:
		return StreamEnd{}, nil

	case KindHeader:
		var fields map[TagMarker]cbor.RawMessage
		if err := cbor.Unmarshal(env.C, &fields); err != nil {
			return nil, fmt.Errorf("wire: unmarshal header content: %w", err)
		}
		var h Header
		if err := decodeField(fields, TagVersion, &h.Version); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagTime, &h.Time); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagID, &h.ID); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagPid, &h.Pid); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagDataContext, &h.Cxt); err != nil {
			return nil, err
		}
		if !ValidHeaderContext(h.Cxt) {
			return nil, fmt.Errorf("wire: header record has invalid context %d", h.Cxt)
		}
		return h, nil

	case KindData:
		var fields map[TagMarker]cbor.RawMessage
		if err := cbor.Unmarshal(env.C, &fields); err != nil {
			return nil, fmt.Errorf("wire: unmarshal data content: %w", err)
		}
		var d Data
		if err := decodeField(fields, TagVersion, &d.Version); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagTime, &d.Time); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagID, &d.ID); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagPid, &d.Pid); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagDataContext, &d.Cxt); err != nil {
			return nil, err
		}
		if !ValidDataContext(d.Cxt) {
			return nil, fmt.Errorf("wire: data record has invalid context %d", d.Cxt)
		}
		if raw, ok := fields[TagUtf8Data]; ok {
			var s string
			if err := cbor.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("wire: unmarshal data utf8 payload: %w", err)
			}
			d.Payload = []byte(s)
			d.Utf8 = true
		} else if raw, ok := fields[TagData]; ok {
			if err := cbor.Unmarshal(raw, &d.Payload); err != nil {
				return nil, fmt.Errorf("wire: unmarshal data payload: %w", err)
			}
		}
		return d, nil

	case KindLog:
		var fields map[TagMarker]cbor.RawMessage
		if err := cbor.Unmarshal(env.C, &fields); err != nil {
			return nil, fmt.Errorf("wire: unmarshal log content: %w", err)
		}
		var l Log
		if err := decodeField(fields, TagVersion, &l.Version); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagUtf8Data, &l.Message); err != nil {
			return nil, err
		}
		return l, nil

	case KindError:
		var fields map[TagMarker]cbor.RawMessage
		if err := cbor.Unmarshal(env.C, &fields); err != nil {
			return nil, fmt.Errorf("wire: unmarshal error content: %w", err)
		}
		var e Error
		if err := decodeField(fields, TagVersion, &e.Version); err != nil {
			return nil, err
		}
		if err := decodeField(fields, TagError, &e.Message); err != nil {
			return nil, err
		}
		return e, nil

	default:
		return nil, fmt.Errorf("wire: unknown record kind %q", env.T)
	}
}

func decodeField(fields map[TagMarker]cbor.RawMessage, tag TagMarker, dst any) error {
	raw, ok := fields[tag]
	if !ok {
		return fmt.Errorf("wire: missing required field tag %d", tag)
	}
	if err := cbor.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("wire: decode field tag %d: %w", tag, err)
	}
	return nil
}
