package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/caio-sobreiro/dicomul/client"
	"github.com/caio-sobreiro/dicomul/dicom"
	"github.com/caio-sobreiro/dicomul/types"
)

func newStoreCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "store HOST:PORT FILE...",
		Short:   "Send Part 10 files with C-STORE",
		Args:    cobra.MinimumNArgs(2),
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, args []string) error {
			return store(cmd.Context(), cmd, v, args[0], args[1:])
		},
	}
	addSCUFlags(cmd)
	return cmd
}

// proposal collects the SOP classes and transfer syntaxes of files.
func proposal(files []string) (abstract, transfer []string, err error) {
	transfer = types.DefaultTransferSyntaxes()
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		f, err := dicom.ReadPart10(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		if !slices.Contains(abstract, f.Meta.MediaStorageSOPClassUID) {
			abstract = append(abstract, f.Meta.MediaStorageSOPClassUID)
		}
		if !slices.Contains(transfer, f.Meta.TransferSyntaxUID) {
			transfer = append(transfer, f.Meta.TransferSyntaxUID)
		}
	}
	return abstract, transfer, nil
}

func store(ctx context.Context, cmd *cobra.Command, v *viper.Viper, address string, files []string) error {
	config, err := scuConfig(v)
	if err != nil {
		return err
	}
	config.AbstractSyntaxes, config.PreferredTransferSyntaxes, err = proposal(files)
	if err != nil {
		return err
	}

	assoc, err := client.Connect(ctx, address, config)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range files {
		rsp, err := assoc.StoreFile(ctx, path)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s status 0x%04X\n", path, rsp.SOPInstanceUID, rsp.Status)
		if rsp.Status != types.StatusSuccess {
			failed++
		}
	}
	if err := assoc.Close(ctx); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files not stored", failed, len(files))
	}
	return nil
}
