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

// Config is the shape of a config file's top-level `filter:` section: a
// map of filter name to its (not yet compiled) expr-list.
type Config struct {
	Filter map[string][]Seed `yaml:"filter"`
}

// CompileConfig compiles every filter named in cfg into one FilterSet.
func CompileConfig(cfg Config) (*FilterSet, []string, error) {
	return Compile(cfg.Filter)
}
