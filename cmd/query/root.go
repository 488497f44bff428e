package query

import (
	"encoding/json"
	"fmt"

	"github.com/couchkit/couchkit/client"
	"github.com/couchkit/couchkit/cmd/util"
	"github.com/couchkit/couchkit/lib/options"
	"github.com/spf13/cobra"
)

var (
	cluster *client.Cluster

	// QueryCommands represents the query command group
	QueryCommands = &cobra.Command{
		Use:               "query",
		Short:             "Run statements and manage query indexes",
		PersistentPreRunE: setupQueryClient,
	}

	runCmd = &cobra.Command{
		Use:   "run [statement]",
		Short: "Executes a statement and prints each row as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []interface{}
			if readonly, _ := cmd.Flags().GetBool("readonly"); readonly {
				opts = append(opts, client.WithReadonly())
			}
			if consistent, _ := cmd.Flags().GetBool("request-plus"); consistent {
				opts = append(opts, client.WithScanConsistency(options.ScanConsistencyRequestPlus))
			}

			res, err := cluster.Query(args[0], opts...)
			if err != nil {
				return err
			}
			defer res.Close()

			rows := 0
			for res.Next() {
				var row interface{}
				if err := res.Row(&row); err != nil {
					return err
				}
				out, err := json.Marshal(row)
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				rows++
			}
			if err := res.Err(); err != nil {
				return err
			}

			meta, err := res.MetaData()
			if err != nil {
				return err
			}
			fmt.Printf("-- %d rows, status=%s, elapsed=%s\n", rows, meta.Status, meta.Metrics.ElapsedTime)
			return nil
		},
	}
	createIndexCmd = &cobra.Command{
		Use:   "create-index [bucket] [name] [field...]",
		Short: "Creates a secondary index (no fields creates the primary index)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket := args[0]
			if len(args) < 2 {
				if err := cluster.QueryIndexes().CreatePrimaryIndex(bucket); err != nil {
					return err
				}
				fmt.Println("primary index created")
				return nil
			}
			if len(args) < 3 {
				return fmt.Errorf("a secondary index needs at least one field")
			}
			if err := cluster.QueryIndexes().CreateIndex(bucket, args[1], args[2:]); err != nil {
				return err
			}
			fmt.Println("index created")
			return nil
		},
	}
	dropIndexCmd = &cobra.Command{
		Use:   "drop-index [bucket] [name]",
		Short: "Deletes an index by name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cluster.QueryIndexes().DropIndex(args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("index dropped")
			return nil
		},
	}
	listIndexesCmd = &cobra.Command{
		Use:   "indexes [bucket]",
		Short: "Lists a bucket's indexes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indexes, err := cluster.QueryIndexes().GetAll(args[0])
			if err != nil {
				return err
			}
			for _, idx := range indexes {
				kind := "secondary"
				if idx.IsPrimary {
					kind = "primary"
				}
				fmt.Printf("%-24s%-10s%v\n", idx.Name, kind, idx.Fields)
			}
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add the common connection flags to the query command
	util.SetupConnectionFlags(QueryCommands)

	// Add flags
	runCmd.Flags().Bool("readonly", false, util.WrapString("Mark the statement as non-mutating"))
	runCmd.Flags().Bool("request-plus", false, util.WrapString("Wait for the index to catch up with all mutations before scanning"))

	// Add subcommands
	QueryCommands.AddCommand(runCmd)
	QueryCommands.AddCommand(createIndexCmd)
	QueryCommands.AddCommand(dropIndexCmd)
	QueryCommands.AddCommand(listIndexesCmd)
}

// setupQueryClient connects the cluster
func setupQueryClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	cluster, err = util.GetCluster()
	return err
}
