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

// Package join implements the Join Engine: a per-substream state machine
// that collapses a run of lines bounded by start/while/end predicates
// into a single logical record.
package join

import (
	"fmt"

	"github.com/dolysis/recordbroker/internal/filter"
)

// Seed is the raw `join:` YAML shape: up to three named predicate
// expr-lists. Exactly one of the three legal (start,while,end) presence
// combinations is accepted; see validInputKinds. A key's absence (nil
// slice) is distinct from an empty list (present but vacuous).
type Seed struct {
	Start []filter.Seed `yaml:"start,omitempty"`
	While []filter.Seed `yaml:"while,omitempty"`
	End   []filter.Seed `yaml:"end,omitempty"`
}

// inputKind captures which of the three roots are present, used to pick
// the join variant and to validate against validInputKinds.
type inputKind struct {
	start, while, end bool
}

// validInputKinds enumerates the three legal (start,while,end) presence
// combinations. Order matches the original's StartEnd/StartWhile/While
// variant order.
var validInputKinds = []inputKind{
	{start: true, while: false, end: true},  // StartEnd
	{start: true, while: true, end: false},  // StartWhile
	{start: false, while: true, end: false}, // While
}

func (k inputKind) String() string {
	return fmt.Sprintf("(start=%v, while=%v, end=%v)", k.start, k.while, k.end)
}

// errInvalidInputKind formats the legal combinations into the error
// message, mirroring print_valid_input from the predecessor's join
// config validator.
func errInvalidInputKind(got inputKind) error {
	msg := "join: invalid combination of start/while/end roots " + got.String() + "; valid combinations are "
	for i, k := range validInputKinds {
		if i > 0 {
			msg += ", "
		}
		msg += k.String()
	}
	return fmt.Errorf("%s", msg)
}

// Config is the shape of a config file's top-level `join:` section.
type Config struct {
	Join Seed `yaml:"join"`
}
