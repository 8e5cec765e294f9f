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

// Package execlist parses and normalizes the `exec:` configuration
// section: the ordered chain of join/filter(name)/load(addr) operations
// applied to every sub-stream.
package execlist

import (
	"fmt"
	"sort"

	"github.com/dolysis/recordbroker/internal/filter"
)

// opKind distinguishes the three exec entry shapes. The numeric order
// below is load-bearing: sorting by opKind is what makes Join sort
// before Filter sort before Load.
type opKind int

const (
	opJoin opKind = iota
	opFilter
	opLoad
)

// entry is one normalized exec-list element.
type entry struct {
	kind opKind
	arg  string // filter name, or loader address; unused for opJoin
}

// OpKind is the exported shape of a non-loader operation: either the
// single Join stage or a named Filter stage.
type OpKind struct {
	Join       bool
	FilterName string
}

// Load is one loader sink address.
type Load struct {
	Addr string
}

// ExecList is the parsed, sorted, deduplicated, range-split exec chain.
type ExecList struct {
	entries []entry
	opsLo, opsHi   int
	loadLo, loadHi int
	hasOps, hasLoad bool
}

// New normalizes raw into an ExecList: sorts by the Join < Filter < Load
// total order, collapses duplicate Join entries (only one Join may ever
// run), and computes the ops/loaders sub-ranges.
func New(raw []Seed) (*ExecList, error) {
	entries := make([]entry, 0, len(raw))
	for _, s := range raw {
		e, err := s.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].kind != entries[j].kind {
			return entries[i].kind < entries[j].kind
		}
		return false
	})

	deduped := entries[:0:0]
	sawJoin := false
	for _, e := range entries {
		if e.kind == opJoin {
			if sawJoin {
				continue
			}
			sawJoin = true
		}
		deduped = append(deduped, e)
	}
	entries = deduped

	el := &ExecList{entries: entries}

	for i, e := range entries {
		if e.kind == opJoin || e.kind == opFilter {
			if !el.hasOps {
				el.opsLo, el.opsHi, el.hasOps = i, i+1, true
			} else {
				el.opsHi = i + 1
			}
		}
	}
	for i, e := range entries {
		if e.kind == opLoad {
			if !el.hasLoad {
				el.loadLo, el.loadHi, el.hasLoad = i, i+1, true
			} else {
				el.loadHi = i + 1
			}
		}
	}

	return el, nil
}

// Ops returns the join/filter operation chain in normalized order: the
// Join stage (if any) first, then Filter stages in document order.
func (el *ExecList) Ops() []OpKind {
	if !el.hasOps {
		return nil
	}
	out := make([]OpKind, 0, el.opsHi-el.opsLo)
	for _, e := range el.entries[el.opsLo:el.opsHi] {
		switch e.kind {
		case opJoin:
			out = append(out, OpKind{Join: true})
		case opFilter:
			out = append(out, OpKind{FilterName: e.arg})
		}
	}
	return out
}

// Loads returns the loader sink addresses.
func (el *ExecList) Loads() []Load {
	if !el.hasLoad {
		return nil
	}
	out := make([]Load, 0, el.loadHi-el.loadLo)
	for _, e := range el.entries[el.loadLo:el.loadHi] {
		out = append(out, Load{Addr: e.arg})
	}
	return out
}

// Validate checks every Filter(name) op against a compiled FilterSet,
// rejecting references to undefined filters.
func (el *ExecList) Validate(fs *filter.FilterSet) error {
	for _, e := range el.entries {
		if e.kind == opFilter && !fs.Has(e.arg) {
			return fmt.Errorf("execlist: filter(%q) has no matching compiled filter", e.arg)
		}
	}
	return nil
}
