package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/remerge/internal/schema"
	"github.com/roach88/remerge/internal/storage"
)

// NewListCommand creates the list command, which prints every live record.
func NewListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List all live records",
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

			records, err := s.GetAll(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "list records", err)
			}
			f.VerboseLog("found %d live records", len(records))

			if f.Format == "json" {
				if records == nil {
					records = []schema.NativeRecord{}
				}
				return f.JSON(records)
			}
			guidField := s.Bundle().Native.OwnGuid().Name
			for _, rec := range records {
				line, err := json.Marshal(rec)
				if err != nil {
					return WrapExitError(ExitFailure, "encode record", err)
				}
				f.Textf("%v\t%s", rec[guidField], line)
			}
			return nil
		},
	}
}

// NewGetCommand creates the get command, which fetches one record by guid.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <guid>",
		Short:         "Fetch a record by guid",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			rec, err := s.GetByID(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "get record", err)
			}
			if rec == nil {
				return NewExitError(ExitFailure, fmt.Sprintf("no record with guid %q", args[0]))
			}
			return f.JSON(rec)
		},
	}
}

// NewCreateCommand creates the create command, which validates and stores a
// new record from a JSON document.
func NewCreateCommand(opts *RootOptions) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:           "create [json]",
		Short:         "Create a record from a JSON document",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			rec, err := readRecordArg(args, fromFile)
			if err != nil {
				return err
			}

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			guid, err := s.Create(cmd.Context(), rec)
			if err != nil {
				return WrapExitError(ExitFailure, "create record", err)
			}
			if f.Format == "json" {
				return f.JSON(map[string]string{"guid": guid})
			}
			f.Textf("%s", guid)
			return nil
		},
	}
	cmd.Flags().StringVar(&fromFile, "file", "", "read the record JSON from a file instead of the argument")
	return cmd
}

// NewUpdateCommand creates the update command, which replaces an existing
// record's state. The JSON document must carry the record's guid.
func NewUpdateCommand(opts *RootOptions) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:           "update [json]",
		Short:         "Update an existing record from a JSON document",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			rec, err := readRecordArg(args, fromFile)
			if err != nil {
				return err
			}

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.UpdateRecord(cmd.Context(), rec); err != nil {
				if storage.IsNoSuchRecord(err) {
					return NewExitError(ExitFailure, fmt.Sprintf("no record with guid %v", rec[s.Bundle().Native.OwnGuid().Name]))
				}
				return WrapExitError(ExitFailure, "update record", err)
			}
			if f.Format == "json" {
				return f.JSON(map[string]bool{"updated": true})
			}
			f.Textf("updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&fromFile, "file", "", "read the record JSON from a file instead of the argument")
	return cmd
}

// NewDeleteCommand creates the delete command, which tombstones a record.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <guid>",
		Short:         "Delete a record by guid",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			s, err := openStore(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer s.Close()

			deleted, err := s.DeleteByID(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "delete record", err)
			}
			if f.Format == "json" {
				return f.JSON(map[string]bool{"deleted": deleted})
			}
			if deleted {
				f.Textf("deleted %s", args[0])
			} else {
				f.Textf("no record with guid %s", args[0])
			}
			return nil
		},
	}
}

// readRecordArg decodes the record JSON from either the positional argument
// or the --file flag. Exactly one of the two must be given.
func readRecordArg(args []string, fromFile string) (schema.NativeRecord, error) {
	var data []byte
	switch {
	case fromFile != "" && len(args) > 0:
		return nil, NewExitError(ExitCommandError, "pass the record as an argument or via --file, not both")
	case fromFile != "":
		b, err := os.ReadFile(fromFile)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "read record file", err)
		}
		data = b
	case len(args) > 0:
		data = []byte(args[0])
	default:
		return nil, NewExitError(ExitCommandError, "no record given: pass a JSON document or --file")
	}

	var rec schema.NativeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, WrapExitError(ExitCommandError, "parse record JSON", err)
	}
	return rec, nil
}
