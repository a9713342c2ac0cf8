package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/sensorsync/internal/adapters/decode"
	"github.com/bft-labs/sensorsync/internal/adapters/jsonl"
	"github.com/bft-labs/sensorsync/internal/cliconfig"
	pkglog "github.com/bft-labs/sensorsync/pkg/log"
	"github.com/bft-labs/sensorsync/pkg/sensorsync"
	"github.com/bft-labs/sensorsync/plugins/configwatcher"
)

const helpDescription = `
Align a multi-sensor recording into tuples whose timestamps agree within a tolerance.

Highlights:
  - One bounded queue per stream; the best combination is emitted as soon as it fits.
  - Tuples go to CSV files, a SQLite index and/or an HTTP collector.
  - Configure via file, env (SENSORSYNC_*), or flags. Tolerance reloads live from the config file.
`

var longHelp = "sensorsync\n\n" + strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  sensorsync --input rec.jsonl --out-dir ./aligned --tolerance 30ms --once
  sensorsync --config $HOME/.sensorsync/config.toml
  sensorsync simulate --out rec.jsonl --frames 200
  sensorsync query --index-db index.db --from 0 --to 5000000000
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string
	var streams string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "sensorsync",
		Short:   "Align timestamped sensor streams into approximately synchronized tuples",
		Long:    longHelp,
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if changed["streams"] {
				cfg.Streams = cliconfig.ParseStreams(streams)
			}

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			} else {
				cfgFile = ""
			}

			// Environment overrides the file; flags override both.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cliconfig.SetLogLevel(cfg.LogLevel); err != nil {
				return err
			}

			logCfg := cfg
			if len(logCfg.AuthKey) > 0 {
				logCfg.AuthKey = "*****"
			}
			log.Info().Interface("config", logCfg).Msg("configuration")

			return run(cfg, cfgFile, log)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.sensorsync/config.toml)")
	root.Flags().StringVar(&cfg.Input, "input", cfg.Input, "JSON-lines recording to synchronize")
	root.Flags().StringVar(&cfg.OutDir, "out-dir", cfg.OutDir, "directory for the CSV output")
	root.Flags().StringVar(&cfg.IndexDB, "index-db", cfg.IndexDB, "SQLite tuple index to write")
	root.Flags().StringVar(&cfg.SinkURL, "sink-url", cfg.SinkURL, "collector base URL to post tuples to")
	root.Flags().StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "API key for the collector")
	root.Flags().StringVar(&streams, "streams", "", "comma-separated streams as name[:capacity[:kind]] (default: the six-stream rig)")

	root.Flags().DurationVar(&cfg.Tolerance, "tolerance", cfg.Tolerance, "maximum spread between the members of a tuple")
	root.Flags().IntVar(&cfg.Capacity, "capacity", cfg.Capacity, "default per-stream queue capacity")
	root.Flags().IntVar(&cfg.Workers, "workers", cfg.Workers, "decode workers")
	root.Flags().IntVar(&cfg.Handoff, "handoff", cfg.Handoff, "tuples buffered between matching and the sinks")

	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "poll interval while the input has no new lines")
	root.Flags().DurationVar(&cfg.StatusInterval, "status-interval", cfg.StatusInterval, "how often status.json is written")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "HTTP timeout")

	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for status.json (defaults to out-dir)")
	if err := root.Flags().MarkHidden("state-dir"); err != nil {
		log.Info().Err(err).Msg("failed to hide state-dir flag")
	}
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "synchronize the available input and exit")

	root.AddCommand(newSimulateCmd(log), newQueryCmd(log))

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("sensorsync")
		os.Exit(1)
	}
}

func run(cfg cliconfig.Config, cfgFile string, log zerolog.Logger) error {
	logger := pkglog.NewZerologAdapterWithLogger(log)

	sinks, err := openSinks(cfg, logger)
	if err != nil {
		return err
	}

	opts := []sensorsync.Option{
		sensorsync.WithLogger(logger),
		sensorsync.WithSource(jsonl.NewReader(cfg.Input), decode.New(decoderKinds(cfg.Streams))),
		configwatcher.WithDefaultConfigWatcher(),
	}
	opts = append(opts, sinks.options()...)

	s, err := sensorsync.New(libConfig(cfg, cfgFile), opts...)
	if err != nil {
		sinks.closeAll()
		return fmt.Errorf("create sensorsync: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return fmt.Errorf("start sensorsync: %w", err)
	}

	select {
	case <-sigCh:
		log.Info().Msg("received signal, stopping...")
	case <-s.Done():
	}

	if s.Status() == sensorsync.StateCrashed {
		_ = s.Close()
		return errors.New("sensorsync crashed")
	}
	if err := s.Stop(); err != nil {
		return fmt.Errorf("stop sensorsync: %w", err)
	}

	st := s.Stats()
	log.Info().
		Uint64("pushed", st.Pushed).
		Uint64("emitted", st.Emitted).
		Uint64("evicted", st.Evicted).
		Uint64("stale", st.Stale).
		Uint64("decode_errors", st.DecodeErrors).
		Uint64("sink_errors", st.SinkErrors).
		Dur("spread_p50", st.SpreadP50).
		Dur("spread_p99", st.SpreadP99).
		Msg("synchronization finished")
	return nil
}

// libConfig converts the CLI configuration to the library's.
func libConfig(cfg cliconfig.Config, cfgFile string) sensorsync.Config {
	streams := make([]sensorsync.StreamConfig, 0, len(cfg.Streams))
	for _, sc := range cfg.Streams {
		streams = append(streams, sensorsync.StreamConfig{Name: sc.Name, Capacity: sc.Capacity})
	}
	return sensorsync.Config{
		Streams:        streams,
		Tolerance:      cfg.Tolerance,
		Capacity:       cfg.Capacity,
		Workers:        cfg.Workers,
		Handoff:        cfg.Handoff,
		PollInterval:   cfg.PollInterval,
		StatusInterval: cfg.StatusInterval,
		StateDir:       cfg.StateDir,
		ConfigPath:     cfgFile,
		Once:           cfg.Once,
	}
}
