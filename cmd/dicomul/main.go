// Command dicomul runs a DICOM SCP or issues SCU requests against one.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caio-sobreiro/dicomul/association"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DICOMUL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "dicomul",
		Short:        "DICOM upper layer association tool",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(v.GetString("log-level"), v.GetString("log-format"))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().String("log-format", "text", "log format: text or json")
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(newServeCommand(v), newEchoCommand(v), newStoreCommand(v))
	return root
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}

// bindFlags binds the flags of the running command, so commands sharing a
// flag name do not overwrite each other's binding.
func bindFlags(v *viper.Viper) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return v.BindPFlags(cmd.Flags())
	}
}

// associationConfig loads DICOMUL_* timeouts and PDU limits from the
// environment.
func associationConfig() (association.Config, error) {
	cfg, err := association.ConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
