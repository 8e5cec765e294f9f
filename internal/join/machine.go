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

package join

// Machine is one per-substream instance of a compiled Handle. It is not
// safe for concurrent use; the orchestrator owns exactly one Machine per
// open substream.
type Machine[T any] struct {
	handle   *Handle
	lineText func(T) string
	maxSize  int

	acc  []T
	have bool
}

// NewMachine creates a Machine driven by h. lineText extracts the text a
// predicate matches against from an item of type T. maxSize bounds the
// accumulator; 0 means unbounded. Reaching maxSize forces an early
// flush of the run so far without closing the logical record (have
// stays true), so one overlong run becomes several bounded groups
// instead of one unbounded allocation.
func NewMachine[T any](h *Handle, lineText func(T) string, maxSize int) *Machine[T] {
	return &Machine[T]{handle: h, lineText: lineText, maxSize: maxSize}
}

// Push feeds one item through the state machine. It returns zero, one,
// or two completed groups: two only when a non-consuming flush (While,
// StartWhile) both closes the prior run and the new item is itself a
// solitary record that does not open a new one.
func (m *Machine[T]) Push(item T) [][]T {
	line := m.lineText(item)
	sj := m.handle.shouldJoin(m.have, line)

	switch {
	case !m.have && !sj:
		return [][]T{{item}}

	case !m.have && sj:
		m.acc = append(m.acc[:0:0], item)
		m.have = true
		return nil

	case m.have && sj:
		m.acc = append(m.acc, item)
		if m.maxSize > 0 && len(m.acc) >= m.maxSize {
			out := m.acc
			m.acc = nil
			return [][]T{out}
		}
		return nil

	default: // m.have && !sj
		if m.handle.consumesOnFlush() {
			m.acc = append(m.acc, item)
			out := m.acc
			m.acc, m.have = nil, false
			return [][]T{out}
		}

		flushed := m.acc
		m.acc, m.have = nil, false

		if m.handle.shouldJoin(false, line) {
			m.acc = append(m.acc[:0:0], item)
			m.have = true
			return [][]T{flushed}
		}
		return [][]T{flushed, {item}}
	}
}

// Flush drains any open accumulator at substream end, returning it as a
// final completed group (or nil if nothing was pending).
func (m *Machine[T]) Flush() []T {
	if !m.have {
		return nil
	}
	out := m.acc
	m.acc, m.have = nil, false
	return out
}
