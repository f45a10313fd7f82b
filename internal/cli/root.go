// Package cli implements the tether command: small utilities for sending,
// receiving, inspecting, recording and replaying Tether traffic.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RandomStudio/tether/internal/infrastructure/config"
)

// globalFlags are the persistent flags shared by every subcommand. Only
// flags the user actually set override the loaded configuration.
type globalFlags struct {
	configPath string

	host     string
	port     int
	protocol string
	basePath string
	username string
	password string

	role string
	id   string

	logLevel      string
	metricsListen string
}

// NewRootCmd builds the tether command tree. Output meant for the user
// (received messages, topic summaries) goes to out; logs go where the
// logging configuration says.
func NewRootCmd(version string, out io.Writer) *cobra.Command {
	return newRootCmd(newApp(version, out))
}

func newRootCmd(a *app) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "tether",
		Short: "Tether command-line utilities",
		Long: `Utilities for working with Tether agents over MQTT.

Every message published by a Tether agent travels on a topic of the form
<role>/<id>/<plug>. These commands publish, subscribe, summarise, record
and play back such traffic.`,
		Version:       a.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return a.init(cfg)
		},
	}
	root.SetOut(a.out)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file (default: built-in defaults)")
	pf.StringVar(&flags.host, "tether.host", "", "broker host")
	pf.IntVar(&flags.port, "tether.port", 0, "broker port")
	pf.StringVar(&flags.protocol, "tether.protocol", "", "broker protocol (tcp, ssl, ws, wss, ...)")
	pf.StringVar(&flags.basePath, "tether.path", "", "broker base path, for websocket listeners")
	pf.StringVar(&flags.username, "tether.username", "", "broker username")
	pf.StringVar(&flags.password, "tether.password", "", "broker password")
	pf.StringVar(&flags.role, "tether.role", "", "agent role used by this tool")
	pf.StringVar(&flags.id, "tether.id", "", "agent id used by this tool")
	pf.StringVar(&flags.logLevel, "loglevel", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.metricsListen, "metrics.listen", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newSendCmd(a),
		newReceiveCmd(a),
		newTopicsCmd(a),
		newRecordCmd(a),
		newPlaybackCmd(a),
		newRecordingsCmd(a),
	)

	return root
}

// loadConfig reads the config file (if any), then applies flags the user
// set on the command line.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	changed := cmd.Flags().Changed
	if changed("tether.host") {
		cfg.MQTT.Broker.Host = flags.host
	}
	if changed("tether.port") {
		cfg.MQTT.Broker.Port = flags.port
	}
	if changed("tether.protocol") {
		cfg.MQTT.Broker.Protocol = flags.protocol
	}
	if changed("tether.path") {
		cfg.MQTT.Broker.BasePath = flags.basePath
	}
	if changed("tether.username") {
		cfg.MQTT.Auth.Username = flags.username
	}
	if changed("tether.password") {
		cfg.MQTT.Auth.Password = flags.password
	}
	if changed("tether.role") {
		cfg.Agent.Role = flags.role
	}
	if changed("tether.id") {
		cfg.Agent.ID = flags.id
	}
	if changed("loglevel") {
		cfg.Logging.Level = flags.logLevel
	}
	if changed("metrics.listen") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = flags.metricsListen
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, nil
}
