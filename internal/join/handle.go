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

import "github.com/dolysis/recordbroker/internal/filter"

// Variant names the three legal join state machines.
type Variant int

const (
	VariantStartEnd Variant = iota
	VariantStartWhile
	VariantWhile
)

// Handle is a compiled join configuration: the variant plus whichever of
// the three predicate trees that variant needs.
type Handle struct {
	variant Variant
	start   *filter.Tree
	while   *filter.Tree
	end     *filter.Tree
}

// NewHandle compiles seed into a Handle, rejecting any (start,while,end)
// presence combination outside the three legal ones.
func NewHandle(seed Seed) (*Handle, []string, error) {
	k := inputKind{start: seed.Start != nil, while: seed.While != nil, end: seed.End != nil}

	variant := -1
	for i, valid := range validInputKinds {
		if valid == k {
			variant = i
			break
		}
	}
	if variant == -1 {
		return nil, nil, errInvalidInputKind(k)
	}

	h := &Handle{variant: Variant(variant)}
	var warnings []string

	if seed.Start != nil {
		t, w, err := filter.CompileSeed(seed.Start)
		if err != nil {
			return nil, nil, err
		}
		h.start = t
		warnings = append(warnings, w...)
	}
	if seed.While != nil {
		t, w, err := filter.CompileSeed(seed.While)
		if err != nil {
			return nil, nil, err
		}
		h.while = t
		warnings = append(warnings, w...)
	}
	if seed.End != nil {
		t, w, err := filter.CompileSeed(seed.End)
		if err != nil {
			return nil, nil, err
		}
		h.end = t
		warnings = append(warnings, w...)
	}

	return h, warnings, nil
}

// shouldJoin reports whether line should be folded into the current
// accumulator (or start a new one), given whether one is already open.
// This is the 2-bit (haveAccumulator, shouldJoin) decision described by
// the engine: emit/accumulate/overflow behavior is a function of these
// two booleans, plus consumesOnFlush for where the line that ends a run
// goes.
func (h *Handle) shouldJoin(haveAccumulator bool, line string) bool {
	switch h.variant {
	case VariantStartEnd:
		if !haveAccumulator {
			return h.start.Match(line)
		}
		return !h.end.Match(line)

	case VariantStartWhile:
		if !haveAccumulator {
			return h.start.Match(line)
		}
		return h.while.Match(line)

	case VariantWhile:
		return h.while.Match(line)

	default:
		return false
	}
}

// consumesOnFlush reports whether the line that triggers a flush (the
// first line that fails shouldJoin while accumulating) is itself part of
// the record being flushed, or starts the next one. StartEnd's End
// marker is consumed into the closed block; StartWhile's and While's
// non-matching line is not, it begins the next (possibly solitary)
// record.
func (h *Handle) consumesOnFlush() bool {
	return h.variant == VariantStartEnd
}
