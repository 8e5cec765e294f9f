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

import "github.com/dolysis/recordbroker/internal/graph"

// Tree is one standalone compiled boolean predicate tree: a Regex/And/Or
// DAG with its own arena. The join engine compiles its start/while/end
// roots as Trees, reusing the same grammar and short-circuit evaluator
// that FilterSet uses for named filters.
type Tree struct {
	arena *graph.Arena[treeNode]
	root  graph.Index
}

// CompileSeed compiles an unnamed expr-list into a standalone Tree, using
// the same 0/1/N top-level fold as a named filter's expr-list.
func CompileSeed(seeds []Seed) (*Tree, []string, error) {
	fs := &FilterSet{arena: &graph.Arena[treeNode]{}, roots: map[string]graph.Index{}}
	idx, warnings, err := fs.compileList("", seeds, false)
	if err != nil {
		return nil, nil, err
	}
	return &Tree{arena: fs.arena, root: idx}, warnings, nil
}

// Match evaluates the tree against line.
func (t *Tree) Match(line string) bool {
	fs := FilterSet{arena: t.arena}
	return fs.eval(t.root, line)
}
