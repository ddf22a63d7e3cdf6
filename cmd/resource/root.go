package resource

import (
	"github.com/sinkdb/core/adaptor"
	"github.com/sinkdb/core/cmd/util"
	"github.com/sinkdb/core/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcClient *client.ResourceClient

	// ResourceCommands represents the resource command group
	ResourceCommands = &cobra.Command{
		Use:               "resource",
		Short:             "Perform operations against a running sinkdb resource",
		PersistentPreRunE: setupResourceClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the resource command
	util.SetupRPCClientFlags(ResourceCommands)

	key := "entity-types"
	ResourceCommands.PersistentFlags().String(key, "mail=subject,from;contact=email", util.WrapString("Semicolon-separated list of entity types this client can encode/decode. Must match the server's own --entity-types. Format: TYPE=PROP,PROP"))

	// Add subcommands
	ResourceCommands.AddCommand(createCmd)
	ResourceCommands.AddCommand(modifyCmd)
	ResourceCommands.AddCommand(removeCmd)
	ResourceCommands.AddCommand(queryCmd)
	ResourceCommands.AddCommand(syncCmd)
	ResourceCommands.AddCommand(flushCmd)
}

// setupResourceClient initializes the RPC resource client
func setupResourceClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	registry, err := adaptor.ParseRegistrySpec(viper.GetString("entity-types"))
	if err != nil {
		return err
	}

	config := util.GetClientConfig()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcClient, err = client.NewResourceClient(*config, t, s, registry)
	return err
}
