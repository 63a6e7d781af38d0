// Package cli contains all the command-line interface logic for the application,
// powered by the cobra library. It defines the root command, subcommands,
// and their respective flags.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/shivanshkc/streamlat/internal/config"
)

var (
	// vip collects flags, environment variables and the config file.
	vip = viper.New()
	// rootConfigPath is the optional config file given by --config.
	rootConfigPath string

	// cfg and logger are set up before any subcommand runs. Defining them at the
	// package level allows all subcommands within this package to use them directly.
	cfg    config.Config
	logger zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands.
// It serves as the entry point and parent for all other commands.
var rootCmd = &cobra.Command{
	Use:   "streamlat",
	Short: "Measure end-to-end latency of a publish/subscribe stream.",
	Long: `Measure end-to-end latency of a publish/subscribe stream.
A single writer emits fixed-size samples at a paced rate while isolated readers
timestamp every read. Both records are joined into one per-sample latency table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(vip, rootConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(cfg.Log.Level)
		return nil
	},
}

// Execute is the primary entry point for the CLI application, called by main.go.
//
// It sets up a single, root cancellable context and wires it up to respond
// to OS interruption signals (like Ctrl+C or SIGTERM). This context is then passed down
// to all cobra commands, so a run in progress stops its readers and cleans up.
func Execute() error {
	// Create a root context that can be canceled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a channel to listen for specific OS signals.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	// Launch a goroutine to cancel the context upon receiving a signal.
	go func() {
		<-signals
		cancel()
	}()

	// Execute the root command with the cancellable context.
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

// newLogger returns the console logger for the given level and installs it as the global logger.
// Unknown levels fall back to info.
func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	log.Logger = l
	return l
}

// init configures the application's flags.
//
// Persistent flags describe the transport and logging, which both the bench
// command and the reader processes it spawns need.
func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&rootConfigPath, "config", "", "Path to a YAML, TOML or JSON config file.")
	flags.String("transport", config.KindRedis, "Transport kind: memory, redis, kafka, nats, zmq or amqp.")
	flags.String("host", "127.0.0.1", "Broker host.")
	flags.Int("port", 0, "Broker port. Zero selects the transport's default port.")
	flags.String("credential", "", "Broker credential, either user:password or a bare secret.")
	flags.Duration("init-timeout", 5*time.Second, "How long a reader waits for its stream to appear.")
	flags.Duration("memory-delay", 0, "Delivery delay of the memory transport.")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn or error.")

	bindFlags(flags, map[string]string{
		"transport.kind":         "transport",
		"transport.host":         "host",
		"transport.port":         "port",
		"transport.credential":   "credential",
		"transport.init_timeout": "init-timeout",
		"transport.memory_delay": "memory-delay",
		"log.level":              "log-level",
	})
}

// bindFlags binds config keys to the named flags.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := vip.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic("failed to bind flag " + name + ": " + err.Error())
		}
	}
}
