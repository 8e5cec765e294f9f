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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dolysis/recordbroker/config"
	"github.com/dolysis/recordbroker/internal/broker"
	"github.com/dolysis/recordbroker/internal/execlist"
	"github.com/dolysis/recordbroker/internal/filter"
	"github.com/dolysis/recordbroker/internal/join"
	"github.com/dolysis/recordbroker/logging"
)

// pipelineDoc is the shape of one --file argument. filter/join/exec may be
// spread across several files; the same section may appear in more than
// one only for filter, where named entries are merged (duplicate names
// are rejected). join and exec are whole-object sections: defining either
// in more than one file is an error.
type pipelineDoc struct {
	Filter map[string][]filter.Seed `yaml:"filter"`
	Join   *join.Seed               `yaml:"join"`
	Exec   []execlist.Seed          `yaml:"exec"`
}

// loadPipeline reads and merges every --file path into a compiled
// FilterSet, an optional join Handle, and a validated ExecList. Files are
// read in the order given; a file that doesn't exist or doesn't parse is
// a hard error rather than silently skipped, since a producer depends on
// the full pipeline being present.
func loadPipeline(paths []string) (*filter.FilterSet, *join.Handle, *execlist.ExecList, error) {
	mergedFilters := map[string][]filter.Seed{}
	var joinSeed *join.Seed
	var joinSrc string
	var execSeeds []execlist.Seed
	var execSrc string

	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("read %s: %w", path, err)
		}

		var doc pipelineDoc
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return nil, nil, nil, fmt.Errorf("parse %s: %w", path, err)
		}

		for name, seed := range doc.Filter {
			if _, exists := mergedFilters[name]; exists {
				return nil, nil, nil, fmt.Errorf("filter %q defined more than once (duplicate in %s)", name, path)
			}
			mergedFilters[name] = seed
		}

		if doc.Join != nil {
			if joinSeed != nil {
				return nil, nil, nil, fmt.Errorf("join defined in both %s and %s", joinSrc, path)
			}
			joinSeed = doc.Join
			joinSrc = path
		}

		if len(doc.Exec) > 0 {
			if execSeeds != nil {
				return nil, nil, nil, fmt.Errorf("exec defined in both %s and %s", execSrc, path)
			}
			execSeeds = doc.Exec
			execSrc = path
		}
	}

	if execSeeds == nil {
		return nil, nil, nil, fmt.Errorf("no exec list found across %v", paths)
	}

	fs, warnings, err := filter.Compile(mergedFilters)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("compile filters: %w", err)
	}
	for _, w := range warnings {
		zlog.Warn().Str("kind", logging.KindConfig).Msg(w)
	}

	var jh *join.Handle
	if joinSeed != nil {
		jh, warnings, err = join.NewHandle(*joinSeed)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("compile join: %w", err)
		}
		for _, w := range warnings {
			zlog.Warn().Str("kind", logging.KindConfig).Msg(w)
		}
	}

	el, err := execlist.New(execSeeds)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build exec list: %w", err)
	}
	if err := el.Validate(fs); err != nil {
		return nil, nil, nil, err
	}

	return fs, jh, el, nil
}

func main() {
	var configPath string
	var pipelinePaths []string
	var bindAddr string

	cmd := &cobra.Command{
		Use:   "recordbroker",
		Short: "A record-stream processing broker",
	}

	tcpCmd := &cobra.Command{
		Use:   "tcp",
		Short: "Listen for producer connections over TCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer close(quit)

			cfg, err := config.NewBrokerConfig(configPath, nil)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logging.ConfigureLogger(logging.LoggerOptions{
				Enabled: cfg.Logging.Enabled,
				Level:   cfg.Logging.Level,
				Format:  cfg.Logging.Format,
			})

			if bindAddr == "" {
				bindAddr = cfg.Broker.BindAddr
			}

			if len(pipelinePaths) == 0 {
				return fmt.Errorf("at least one --file is required")
			}
			fs, jh, el, err := loadPipeline(pipelinePaths)
			if err != nil {
				return err
			}

			opts := []broker.Option{
				broker.WithBindAddr(bindAddr),
				broker.WithInactivityTimeout(cfg.InactivityTimeout()),
				broker.WithChannelBuffer(cfg.Broker.ChannelBuffer),
				broker.WithLoaderBroadcastBuffer(cfg.Broker.LoaderBroadcastBuffer),
				broker.WithFilters(fs),
				broker.WithExecList(el),
			}
			if jh != nil {
				opts = append(opts, broker.WithJoin(jh))
			}

			b, err := broker.New(opts...)
			if err != nil {
				return fmt.Errorf("init broker: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				<-quit
				zlog.Info().Msg("shutting down")
				cancel()
			}()

			zlog.Info().Str("addr", bindAddr).Msg("starting recordbroker")
			if err := b.ListenAndServe(ctx); err != nil {
				return err
			}
			return nil
		},
	}

	flagset := tcpCmd.Flags()
	flagset.SortFlags = false
	flagset.StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g. \"/etc/recordbroker/config.yaml\")")
	flagset.StringArrayVarP(&pipelinePaths, "file", "f", nil, "Read a pipeline config file, can be called multiple times. Must together provide 'filter', 'join' (optional) and 'exec' sections.")
	flagset.StringVarP(&bindAddr, "bind", "a", "", "Host address to bind to, overrides the config file")

	cmd.AddCommand(tcpCmd)

	if err := cmd.Execute(); err != nil {
		zlog.Fatal().Str("kind", logging.KindConfig).Err(err).Send()
	}
}
