// Package cli implements the remerge inspection and administration command
// line: open a collection database with a schema file and create, read,
// update, delete, or inspect its records.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/remerge/internal/storage"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DBPath     string
	SchemaPath string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the remerge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "remerge",
		Short: "remerge - schema-versioned local record store",
		Long: "Inspect and administer a remerge collection database: a " +
			"single-collection record store with sync metadata and schema versioning.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			// Flags win; REMERGE_DB / REMERGE_SCHEMA fill the gaps.
			if opts.DBPath == "" {
				opts.DBPath = viper.GetString("db")
			}
			if opts.SchemaPath == "" {
				opts.SchemaPath = viper.GetString("schema")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to the collection database")
	cmd.PersistentFlags().StringVar(&opts.SchemaPath, "schema", "", "path to the native schema file (JSON or YAML)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	viper.SetEnvPrefix("REMERGE")
	viper.AutomaticEnv()

	cmd.AddCommand(NewInfoCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openStore loads the schema file and opens the collection database.
func openStore(ctx context.Context, opts *RootOptions) (*storage.Store, error) {
	if opts.DBPath == "" {
		return nil, NewExitError(ExitCommandError, "no database path: pass --db or set REMERGE_DB")
	}
	if opts.SchemaPath == "" {
		return nil, NewExitError(ExitCommandError, "no schema path: pass --schema or set REMERGE_SCHEMA")
	}
	native, err := LoadSchemaFile(opts.SchemaPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load schema", err)
	}
	s, err := storage.Open(ctx, opts.DBPath, native)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return s, nil
}
