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

package execlist

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Seed is one raw `exec:` list entry: the bare scalar "join", or a single
// key mapping `filter: <name>` / `load: <addr>`.
type Seed struct {
	kind opKind
	arg  string
}

// UnmarshalYAML accepts either the bare scalar "join" or a one-key
// mapping of filter/load.
func (s *Seed) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var scalar string
		if err := node.Decode(&scalar); err != nil {
			return err
		}
		if scalar != "join" {
			return fmt.Errorf("execlist: bare exec entry must be \"join\", got %q", scalar)
		}
		s.kind = opJoin
		return nil
	}

	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("execlist: exec entry must be \"join\" or a single-key filter/load mapping")
	}

	key := node.Content[0].Value
	var val string
	if err := node.Content[1].Decode(&val); err != nil {
		return fmt.Errorf("execlist: decoding %q value: %w", key, err)
	}

	switch key {
	case "filter":
		s.kind, s.arg = opFilter, val
	case "load":
		s.kind, s.arg = opLoad, val
	default:
		return fmt.Errorf("execlist: unknown exec entry key %q (want filter/load)", key)
	}
	return nil
}

func (s Seed) toEntry() (entry, error) {
	return entry{kind: s.kind, arg: s.arg}, nil
}

// Config is the shape of a config file's top-level `exec:` section.
type Config struct {
	Exec []Seed `yaml:"exec"`
}
