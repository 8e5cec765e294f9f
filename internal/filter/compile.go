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

package filter

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/dolysis/recordbroker/internal/graph"
)

// NodeKind distinguishes the three compiled node shapes.
type NodeKind int

const (
	KindRegex NodeKind = iota
	KindAnd
	KindOr
)

// treeNode is the compiled payload stored in the shared arena.
type treeNode struct {
	Kind   NodeKind
	Negate bool
	Regex  *regexp.Regexp // KindRegex only
}

// FilterSet is a compiled set of named filter trees sharing one arena.
type FilterSet struct {
	arena *graph.Arena[treeNode]
	roots map[string]graph.Index
}

// Compile builds a FilterSet from named, not-yet-compiled expr-lists. It
// returns non-fatal warnings (one per vacuous all/any/top-level list)
// alongside any compile error.
func Compile(seeds map[string][]Seed) (*FilterSet, []string, error) {
	fs := &FilterSet{
		arena: &graph.Arena[treeNode]{},
		roots: make(map[string]graph.Index, len(seeds)),
	}
	var warnings []string

	names := make([]string, 0, len(seeds))
	for name := range seeds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		idx, warn, err := fs.compileList(name, seeds[name], false)
		if err != nil {
			return nil, nil, fmt.Errorf("filter %q: %w", name, err)
		}
		warnings = append(warnings, warn...)
		fs.roots[name] = idx
	}
	return fs, warnings, nil
}

// compileList folds a flat expr-list the same way a nested all/any list
// folds: an empty list compiles to an And root that always matches, a
// single-element list compiles to that element directly (no synthetic
// node), and two or more elements are implicitly AND-ed under a
// top-level And root.
func (fs *FilterSet) compileList(name string, seeds []Seed, negate bool) (graph.Index, []string, error) {
	switch len(seeds) {
	case 0:
		warn := fmt.Sprintf("filter %q: empty expression list evaluates to %v", name, !negate)
		idx := fs.arena.Insert(treeNode{Kind: KindAnd, Negate: negate}, nil)
		return idx, []string{warn}, nil

	case 1:
		return fs.compileNode(name, seeds[0], negate)

	default:
		var warnings []string
		edges := make([]graph.Index, 0, len(seeds))
		for _, seed := range seeds {
			idx, warn, err := fs.compileNode(name, seed, false)
			if err != nil {
				return 0, nil, err
			}
			warnings = append(warnings, warn...)
			edges = append(edges, idx)
		}
		idx := fs.arena.Insert(treeNode{Kind: KindAnd, Negate: negate}, edges)
		return idx, warnings, nil
	}
}

func (fs *FilterSet) compileNode(name string, seed Seed, negate bool) (graph.Index, []string, error) {
	switch seed.kind {
	case seedNot:
		return fs.compileNode(name, *seed.inner, !negate)

	case seedRegex:
		re, err := regexp.Compile(seed.pattern)
		if err != nil {
			return 0, nil, fmt.Errorf("compiling regex %q: %w", seed.pattern, err)
		}
		idx := fs.arena.Insert(treeNode{Kind: KindRegex, Negate: negate, Regex: re}, nil)
		return idx, nil, nil

	case seedAnd, seedOr:
		kind := KindAnd
		label := "all"
		if seed.kind == seedOr {
			kind = KindOr
			label = "any"
		}

		switch len(seed.children) {
		case 0:
			warn := fmt.Sprintf("filter %q: empty %q evaluates to %v", name, label, (kind == KindAnd) != negate)
			idx := fs.arena.Insert(treeNode{Kind: kind, Negate: negate}, nil)
			return idx, []string{warn}, nil

		case 1:
			return fs.compileNode(name, seed.children[0], negate)

		default:
			var warnings []string
			edges := make([]graph.Index, 0, len(seed.children))
			for _, child := range seed.children {
				idx, warn, err := fs.compileNode(name, child, false)
				if err != nil {
					return 0, nil, err
				}
				warnings = append(warnings, warn...)
				edges = append(edges, idx)
			}
			idx := fs.arena.Insert(treeNode{Kind: kind, Negate: negate}, edges)
			return idx, warnings, nil
		}

	default:
		return 0, nil, fmt.Errorf("unhandled seed kind %d", seed.kind)
	}
}

// Has reports whether name is a compiled filter in this set, used by
// exec-list validation to reject references to undefined filters.
func (fs *FilterSet) Has(name string) bool {
	_, ok := fs.roots[name]
	return ok
}
