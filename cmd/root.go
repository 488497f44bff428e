package cmd

import (
	"fmt"
	"os"

	"github.com/couchkit/couchkit/cmd/diag"
	"github.com/couchkit/couchkit/cmd/kv"
	"github.com/couchkit/couchkit/cmd/query"
	"github.com/couchkit/couchkit/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "couchkit",
		Short: "workbench for couchkit clusters",
		Long: fmt.Sprintf(`couchkit (v%s)

A workbench for the couchkit SDK: key-value, query and diagnostic
operations against either backend, selected by the connection-string
scheme (couchbase:// for the embedded engine, protostellar:// for a
gateway).`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of couchkit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("couchkit v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(query.QueryCommands)
	RootCmd.AddCommand(diag.DiagCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "verbose"
	RootCmd.PersistentFlags().Bool(key, false, util.WrapString("log backend calls to stderr"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
