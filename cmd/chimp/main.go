// Chimp relays notifications from a cloud MQTT topic to a local indicator
// light and, optionally, a speaker.
//
// One invocation is one run: connect over mutual TLS, subscribe to a topic,
// blink the light for every received message until enough messages have
// arrived (or the wait times out), then unsubscribe and disconnect.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
	"github.com/nerrad567/chimp-relay/internal/speech"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// exitIOError is EX_IOERR from sysexits.h.
const exitIOError = 74

func main() {
	// Cancel on Ctrl+C or SIGTERM; the run still unsubscribes and disconnects.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, speech.ErrIOWrite):
		return exitIOError
	default:
		return 1
	}
}

// options holds the command-line flags. Flags override the config file and
// environment only when they are set explicitly.
type options struct {
	configPath string
	endpoint   string
	topic      string
	certFile   string
	keyFile    string
	caFile     string
	say        string
	logLevel   string
	threshold  int64
	unbounded  bool
	noGPIO     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "chimp",
		Short: "Relay MQTT notifications to an indicator light",
		Long: `Chimp connects to a cloud MQTT broker with the device certificate,
subscribes to one topic and blinks the indicator light for every message.
The run ends once the message threshold is reached.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runRelay(cmd.Context(), cfg)
		},
	}

	opts.addFlags(cmd.PersistentFlags())
	cmd.AddCommand(newHistoryCmd(opts))

	return cmd
}

func (o *options) addFlags(f *pflag.FlagSet) {
	defaults := config.Default()

	f.StringVar(&o.configPath, "config", "", "optional YAML configuration file")
	f.StringVar(&o.endpoint, "endpoint", "", "MQTT broker endpoint (required unless configured)")
	f.StringVar(&o.topic, "topic", defaults.Run.Topic, "topic to subscribe to")
	f.StringVar(&o.certFile, "cert", defaults.MQTT.CertFile, "device certificate (PEM)")
	f.StringVar(&o.keyFile, "key", defaults.MQTT.KeyFile, "device private key (PEM)")
	f.StringVar(&o.caFile, "ca", "", "CA bundle for the broker (defaults to the system pool)")
	f.StringVar(&o.say, "say", "", "text to synthesize to speech before subscribing")
	f.StringVar(&o.logLevel, "log-level", defaults.Logging.Level, "log level (debug, info, warn, error)")
	f.Int64Var(&o.threshold, "threshold", defaults.Run.MessageThreshold, "messages to receive before the run ends")
	f.BoolVar(&o.unbounded, "unbounded", false, "keep receiving until the message timeout or a signal")
	f.BoolVar(&o.noGPIO, "no-gpio", false, "run without the indicator light")
}

// load reads the configuration file (if any) and applies explicit flags.
func (o *options) load(f *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	o.apply(f, cfg)
	return cfg, nil
}

func (o *options) apply(f *pflag.FlagSet, cfg *config.Config) {
	if f.Changed("endpoint") {
		cfg.MQTT.Endpoint = o.endpoint
	}
	if f.Changed("topic") {
		cfg.Run.Topic = o.topic
	}
	if f.Changed("cert") {
		cfg.MQTT.CertFile = o.certFile
	}
	if f.Changed("key") {
		cfg.MQTT.KeyFile = o.keyFile
	}
	if f.Changed("ca") {
		cfg.MQTT.CAFile = o.caFile
	}
	if f.Changed("say") {
		cfg.Speech.Enabled = true
		cfg.Speech.Text = o.say
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if f.Changed("threshold") {
		cfg.Run.Termination = config.TerminationCount
		cfg.Run.MessageThreshold = o.threshold
	}
	if o.unbounded {
		cfg.Run.Termination = config.TerminationUnbounded
	}
	if o.noGPIO {
		cfg.Actuator.Enabled = false
	}
}
