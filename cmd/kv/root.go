package kv

import (
	"github.com/couchkit/couchkit/client"
	"github.com/couchkit/couchkit/cmd/util"
	"github.com/spf13/cobra"
)

var (
	cluster    *client.Cluster
	collection *client.Collection

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value operations on a collection",
		PersistentPreRunE: setupKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add the common connection flags to the KV command
	util.SetupConnectionFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(upsertCmd)
	KeyValueCommands.AddCommand(insertCmd)
	KeyValueCommands.AddCommand(replaceCmd)
	KeyValueCommands.AddCommand(removeCmd)
	KeyValueCommands.AddCommand(existsCmd)
	KeyValueCommands.AddCommand(touchCmd)
	KeyValueCommands.AddCommand(lockCmd)
	KeyValueCommands.AddCommand(unlockCmd)
	KeyValueCommands.AddCommand(counterCmd)
	KeyValueCommands.AddCommand(lookupCmd)
	KeyValueCommands.AddCommand(mutateCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient connects the cluster and resolves the target collection
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	cluster, err = util.GetCluster()
	if err != nil {
		return err
	}
	collection = util.GetCollection(cluster)

	return nil
}
