// Command storebridge subscribes to an MQTT broker and stores the JSON
// messages of allow-listed topics as objects in a hierarchical store.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/illmade-knight/go-storebridge/pkg/config"
	"github.com/illmade-knight/go-storebridge/pkg/session"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "storebridge",
	Short:         "Bridge MQTT messages into object storage",
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runBridge,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default $HOME/.storebridge/storebridge.yaml)")
	pf.String("log_level", "", "log level: debug, info, warn, error")
	pf.String("log_format", "", "log format: console or json")
	pf.String("mqtt_host", "", "MQTT broker as [user[:password]@]host[:port]")
	pf.String("radon_host", "", "storage server as [user[:password]@]host[:port]")

	rootCmd.Flags().String("http_addr", "", "serve /healthz and /metrics on this address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a fatal storage failure to its status code when that fits an
// exit status.
func exitCode(err error) int {
	var fatal *session.FatalError
	if errors.As(err, &fatal) && fatal.Code > 0 && fatal.Code < 256 {
		return fatal.Code
	}
	return 1
}

// loadConfig layers defaults, config file, environment and the command's
// flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	fs := pflag.NewFlagSet("bound", pflag.ContinueOnError)
	fs.AddFlagSet(cmd.Flags())
	fs.AddFlagSet(cmd.InheritedFlags())
	if err := config.BindFlags(v, fs); err != nil {
		return nil, err
	}

	cfg, err := config.Load(v, flagString(cmd, "config"))
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyOverrides(flagString(cmd, "mqtt_host"), flagString(cmd, "radon_host")); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// flagString reads a local or inherited flag, "" when it is not defined.
func flagString(cmd *cobra.Command, name string) string {
	if fl := cmd.Flag(name); fl != nil {
		return fl.Value.String()
	}
	return ""
}
