package cmd

import (
	"fmt"
	"os"

	"github.com/sinkdb/core/cmd/resource"
	"github.com/sinkdb/core/cmd/serve"
	"github.com/sinkdb/core/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sinkdb",
		Short: "offline-first personal information sync core",
		Long: fmt.Sprintf(`sinkdb (v%s)

An offline-first entity store, change-replay engine and query core for
personal information (mail, contacts, events, ...), synchronized against
remote sources and exposed to other processes over RPC.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sinkdb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sinkdb v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(resource.ResourceCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
