package diag

import (
	"fmt"
	"os"

	"github.com/couchkit/couchkit/client"
	"github.com/couchkit/couchkit/cmd/util"
	"github.com/spf13/cobra"
)

var (
	cluster *client.Cluster

	// DiagCommands represents the diagnostics command group
	DiagCommands = &cobra.Command{
		Use:               "diag",
		Short:             "Ping services and inspect cluster state",
		PersistentPreRunE: setupDiagClient,
	}

	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Actively checks every service endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cluster.Ping()
			if err != nil {
				return err
			}
			fmt.Printf("report id: %s\n", res.ID)
			for service, reports := range res.Services {
				for _, rep := range reports {
					fmt.Printf("%-12s%-12s%s", service, rep.State, rep.Remote)
					if rep.State == client.PingStateOK {
						fmt.Printf("\t%s", rep.Latency)
					}
					if rep.Error != "" {
						fmt.Printf("\t%s", rep.Error)
					}
					fmt.Println()
				}
			}
			return nil
		},
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Reports the known connection states without performing I/O",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cluster.Diagnostics()
			if err != nil {
				return err
			}
			fmt.Printf("report id: %s, state: %s\n", res.ID, res.State)
			for service, endpoints := range res.Services {
				for _, ep := range endpoints {
					fmt.Printf("%-12s%-14s%s\n", service, ep.State, ep.Remote)
				}
			}
			return nil
		},
	}
	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Dumps the SDK operation metrics in Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cluster.WriteMetrics(os.Stdout)
			return nil
		},
	}
	bucketsCmd = &cobra.Command{
		Use:   "buckets",
		Short: "Lists the cluster's buckets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			buckets, err := cluster.Buckets().GetAll()
			if err != nil {
				return err
			}
			for _, b := range buckets {
				fmt.Printf("%-24sreplicas=%d, flush=%t\n", b.Name, b.NumReplicas, b.FlushEnabled)
			}
			return nil
		},
	}
	createBucketCmd = &cobra.Command{
		Use:   "create-bucket [name]",
		Short: "Creates a bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flush, _ := cmd.Flags().GetBool("flush")
			replicas, _ := cmd.Flags().GetUint32("replicas")
			err := cluster.Buckets().Create(client.BucketSettings{
				Name:         args[0],
				NumReplicas:  replicas,
				FlushEnabled: flush,
			})
			if err != nil {
				return err
			}
			fmt.Println("bucket created")
			return nil
		},
	}
	dropBucketCmd = &cobra.Command{
		Use:   "drop-bucket [name]",
		Short: "Deletes a bucket and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cluster.Buckets().Drop(args[0]); err != nil {
				return err
			}
			fmt.Println("bucket dropped")
			return nil
		},
	}
	flushBucketCmd = &cobra.Command{
		Use:   "flush-bucket [name]",
		Short: "Removes all documents from a bucket, keeping its configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cluster.Buckets().Flush(args[0]); err != nil {
				return err
			}
			fmt.Println("bucket flushed")
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add the common connection flags to the diag command
	util.SetupConnectionFlags(DiagCommands)

	// Add flags
	createBucketCmd.Flags().Bool("flush", false, util.WrapString("Allow flushing the bucket"))
	createBucketCmd.Flags().Uint32("replicas", 0, util.WrapString("Number of replicas to configure"))

	// Add subcommands
	DiagCommands.AddCommand(pingCmd)
	DiagCommands.AddCommand(statusCmd)
	DiagCommands.AddCommand(metricsCmd)
	DiagCommands.AddCommand(bucketsCmd)
	DiagCommands.AddCommand(createBucketCmd)
	DiagCommands.AddCommand(dropBucketCmd)
	DiagCommands.AddCommand(flushBucketCmd)
}

// setupDiagClient connects the cluster
func setupDiagClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	cluster, err = util.GetCluster()
	return err
}
