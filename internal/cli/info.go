package cli

import (
	"github.com/spf13/cobra"
)

// NewInfoCommand creates the info command, which prints collection metadata
// and row counts.
func NewInfoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "info",
		Short:         "Show collection metadata and counters",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			info, err := s.Info(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "read collection info", err)
			}

			if f.Format == "json" {
				return f.JSON(info)
			}
			f.Textf("collection:      %s", info.Collection)
			f.Textf("local version:   %s", info.LocalVersion)
			f.Textf("native version:  %s", info.NativeVersion)
			f.Textf("client id:       %s", info.ClientID)
			f.Textf("change counter:  %d", info.ChangeCounter)
			f.Textf("live records:    %d", info.LiveRecords)
			f.Textf("unsynced rows:   %d", info.UnsyncedRows)
			f.Textf("sync lockout:    %t", info.SyncLockout)
			return nil
		},
	}
}
