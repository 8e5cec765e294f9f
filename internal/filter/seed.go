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

// Package filter implements the Filter Engine: a YAML-compiled boolean
// DAG of regex leaves, shared with the join engine via internal/graph's
// arena.
package filter

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// seedKind distinguishes the shapes a Seed's YAML mapping can take. Only
// one of the fields below a given seed may be set.
type seedKind int

const (
	seedRegex seedKind = iota
	seedAnd
	seedOr
	seedNot
)

// Seed is the raw, not-yet-compiled tree parsed straight out of YAML. It
// mirrors the `all`/`any`/`not`/`re` aliases of the original FilterSeed
// enum.
type Seed struct {
	kind     seedKind
	pattern  string
	children []Seed
	inner    *Seed // seedNot only
}

// UnmarshalYAML implements the recursive filter DSL: a mapping with
// exactly one of `all`, `any`, `not`, `re` (alias `rx`) as its single key.
func (s *Seed) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("filter: seed must have exactly one of all/any/not/re, got %d keys", len(node.Content)/2)
	}

	key := node.Content[0].Value
	val := node.Content[1]

	switch key {
	case "re", "rx":
		var pattern string
		if err := val.Decode(&pattern); err != nil {
			return fmt.Errorf("filter: decoding regex pattern: %w", err)
		}
		s.kind = seedRegex
		s.pattern = pattern

	case "all":
		var children []Seed
		if err := val.Decode(&children); err != nil {
			return fmt.Errorf("filter: decoding 'all' children: %w", err)
		}
		s.kind = seedAnd
		s.children = children

	case "any":
		var children []Seed
		if err := val.Decode(&children); err != nil {
			return fmt.Errorf("filter: decoding 'any' children: %w", err)
		}
		s.kind = seedOr
		s.children = children

	case "not":
		var inner Seed
		if err := val.Decode(&inner); err != nil {
			return fmt.Errorf("filter: decoding 'not' child: %w", err)
		}
		s.kind = seedNot
		s.inner = &inner

	default:
		return fmt.Errorf("filter: unknown seed key %q (want all/any/not/re)", key)
	}
	return nil
}
