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

	"github.com/dolysis/recordbroker/internal/graph"
)

// Match evaluates the named filter tree against line, short-circuiting
// And/Or children in document order.
func (fs *FilterSet) Match(name string, line string) (bool, error) {
	root, ok := fs.roots[name]
	if !ok {
		return false, fmt.Errorf("filter: no such filter %q", name)
	}
	return fs.eval(root, line), nil
}

func (fs *FilterSet) eval(idx graph.Index, line string) bool {
	n := fs.arena.Get(idx)

	var result bool
	switch n.Datum.Kind {
	case KindRegex:
		result = n.Datum.Regex.MatchString(line)

	case KindAnd:
		result = true
		for _, child := range n.Edges {
			if !fs.eval(child, line) {
				result = false
				break
			}
		}

	case KindOr:
		result = false
		for _, child := range n.Edges {
			if fs.eval(child, line) {
				result = true
				break
			}
		}
	}

	return result != n.Datum.Negate
}
