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
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameBytes bounds a single frame's declared length, guarding against
// a corrupt or hostile length prefix causing an unbounded allocation.
const MaxFrameBytes = 16 << 20

// FrameReader reads length-prefixed CBOR records off r: a 4-byte
// big-endian length followed by that many bytes of CBOR payload.
type FrameReader struct {
	r   io.Reader
	buf []byte
}

// NewFrameReader wraps r for framed Record reads.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadRecord reads and decodes the next framed Record. It returns io.EOF
// (unwrapped) only when the connection closes exactly on a frame
// boundary; a partial frame surfaces as io.ErrUnexpectedEOF.
func (f *FrameReader) ReadRecord() (Record, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f.r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, err
		}
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return nil, fmt.Errorf("wire: frame length %d exceeds maximum %d", n, MaxFrameBytes)
	}

	if cap(f.buf) < int(n) {
		f.buf = make([]byte, n)
	}
	body := f.buf[:n]
	if _, err := io.ReadFull(f.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("wire: short frame body: %w", err)
	}

	return Unmarshal(body)
}

// FrameWriter writes length-prefixed CBOR records to w.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter wraps w for framed Record writes.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteRecord encodes and writes a single framed Record.
func (f *FrameWriter) WriteRecord(r Record) error {
	body, err := Marshal(r)
	if err != nil {
		return err
	}
	if len(body) > MaxFrameBytes {
		return fmt.Errorf("wire: encoded frame length %d exceeds maximum %d", len(body), MaxFrameBytes)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))

	if _, err := f.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := f.w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}
