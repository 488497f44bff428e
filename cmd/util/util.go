package util

import (
	"strings"
	"time"

	"github.com/couchkit/couchkit/client"
	"github.com/couchkit/couchkit/lib/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupConnectionFlags adds the common cluster connection flags to a command
func SetupConnectionFlags(cmd *cobra.Command) {
	key := "connstr"
	cmd.PersistentFlags().String(key, "couchbase://localhost", WrapString("Connection string of the cluster. The scheme selects the backend: couchbase:// and couchbases:// run the embedded engine, protostellar:// dials a gateway"))

	key = "username"
	cmd.PersistentFlags().String(key, "", WrapString("Username to authenticate with"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("Password to authenticate with"))

	key = "cert-path"
	cmd.PersistentFlags().String(key, "", WrapString("Path to a CA bundle for TLS verification"))

	key = "bucket"
	cmd.PersistentFlags().String(key, "default", WrapString("Bucket to operate on"))

	key = "scope"
	cmd.PersistentFlags().String(key, "_default", WrapString("Scope inside the bucket"))

	key = "collection"
	cmd.PersistentFlags().String(key, "_default", WrapString("Collection inside the scope"))

	key = "kv-timeout"
	cmd.PersistentFlags().Float64(key, 0, WrapString("Key-value operation timeout in seconds (0 keeps the default)"))

	key = "query-timeout"
	cmd.PersistentFlags().Float64(key, 0, WrapString("Query timeout in seconds (0 keeps the default)"))

	key = "management-timeout"
	cmd.PersistentFlags().Float64(key, 0, WrapString("Management operation timeout in seconds (0 keeps the default)"))

	key = "connect-timeout"
	cmd.PersistentFlags().Float64(key, 0, WrapString("Connect timeout in seconds (0 keeps the default)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("couchkit")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClusterOptions reads the connection configuration from viper
func GetClusterOptions() *client.ClusterOptions {
	return &client.ClusterOptions{
		Username:          viper.GetString("username"),
		Password:          viper.GetString("password"),
		CertPath:          viper.GetString("cert-path"),
		KVTimeout:         secondsFlag("kv-timeout"),
		QueryTimeout:      secondsFlag("query-timeout"),
		ManagementTimeout: secondsFlag("management-timeout"),
		ConnectTimeout:    secondsFlag("connect-timeout"),
	}
}

func secondsFlag(key string) time.Duration {
	return time.Duration(viper.GetFloat64(key) * float64(time.Second))
}

// GetCluster connects to the cluster named by the connstr flag
func GetCluster() (*client.Cluster, error) {
	log := logger.NopLogger
	if viper.GetBool("verbose") {
		log = logger.StderrLogger
	}
	return client.Connect(
		viper.GetString("connstr"),
		GetClusterOptions(),
		client.OptClusterLogger(log),
	)
}

// GetCollection resolves the bucket/scope/collection flags on a cluster
func GetCollection(cluster *client.Cluster) *client.Collection {
	return cluster.
		Bucket(viper.GetString("bucket")).
		Scope(viper.GetString("scope")).
		Collection(viper.GetString("collection"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
