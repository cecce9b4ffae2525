package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caio-sobreiro/dicomul/client"
	"github.com/caio-sobreiro/dicomul/types"
)

func newEchoCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "echo HOST:PORT",
		Short:   "Verify a remote AE with C-ECHO",
		Args:    cobra.ExactArgs(1),
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, args []string) error {
			return echo(cmd.Context(), cmd, v, args[0])
		},
	}
	addSCUFlags(cmd)
	cmd.Flags().Int("repeat", 1, "number of C-ECHO requests")
	return cmd
}

func addSCUFlags(cmd *cobra.Command) {
	cmd.Flags().String("calling", "DICOMUL", "calling AE title")
	cmd.Flags().String("called", "ANY-SCP", "called AE title")
}

func scuConfig(v *viper.Viper) (client.Config, error) {
	cfg, err := associationConfig()
	if err != nil {
		return client.Config{}, err
	}
	return client.Config{
		CallingAETitle: v.GetString("calling"),
		CalledAETitle:  v.GetString("called"),
		Association:    &cfg,
	}, nil
}

func echo(ctx context.Context, cmd *cobra.Command, v *viper.Viper, address string) error {
	config, err := scuConfig(v)
	if err != nil {
		return err
	}
	config.AbstractSyntaxes = []string{types.VerificationSOPClass}

	assoc, err := client.Connect(ctx, address, config)
	if err != nil {
		return err
	}
	for i := 0; i < v.GetInt("repeat"); i++ {
		rsp, err := assoc.SendCEcho(ctx)
		if err != nil {
			assoc.Abort()
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "C-ECHO %s: status 0x%04X\n", address, rsp.Status)
	}
	return assoc.Close(ctx)
}
