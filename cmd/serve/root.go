package serve

import (
	"fmt"
	"strings"

	"github.com/sinkdb/core/adaptor"
	cmdUtil "github.com/sinkdb/core/cmd/util"
	"github.com/sinkdb/core/pipeline"
	"github.com/sinkdb/core/resource"
	"github.com/sinkdb/core/rpc/common"
	"github.com/sinkdb/core/rpc/serializer"
	"github.com/sinkdb/core/rpc/server"
	"github.com/sinkdb/core/rpc/transport"
	"github.com/sinkdb/core/rpc/transport/http"
	"github.com/sinkdb/core/rpc/transport/tcp"
	"github.com/sinkdb/core/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a sinkdb resource process",
		Long:    `Start a sinkdb resource process with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SINKDB_<flag> (e.g. SINKDB_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	key := "resource-id"
	ServeCmd.PersistentFlags().String(key, "default", cmdUtil.WrapString("Unique identifier for this resource instance, used as the name other resources see in created/modified entities"))

	key = "storage-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("Directory the resource's entity store, revision log and durable command queue live in"))

	key = "entity-types"
	ServeCmd.PersistentFlags().String(key, "mail=subject,from;contact=email", cmdUtil.WrapString("Semicolon-separated list of entity types this resource serves. Format: TYPE=PROP,PROP where PROP names are indexed properties, e.g. mail=subject,from"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds applied to every RPC call handled by this resource"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. http:localhost:8080, /tmp/sinkdb.sock, ...)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.ResourceID = viper.GetString("resource-id")
	serveCmdConfig.StorageDir = viper.GetString("storage-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.ResourceID == "" {
		return fmt.Errorf("resource-id must not be empty")
	}

	return nil
}

// run starts a resource process and serves it over RPC until the transport's listen loop returns
func run(_ *cobra.Command, _ []string) error {
	registry, err := adaptor.ParseRegistrySpec(viper.GetString("entity-types"))
	if err != nil {
		return fmt.Errorf("invalid entity-types: %w", err)
	}

	res, err := resource.Open(serveCmdConfig.ResourceID, serveCmdConfig.StorageDir, registry, pipeline.NewChains())
	if err != nil {
		return fmt.Errorf("failed to open resource: %w", err)
	}

	// parse the serializer
	var s serializer.IRPCSerializer
	switch viper.GetString("serializer") {
	case "json":
		s = serializer.NewJSONSerializer()
	case "gob":
		s = serializer.NewGOBSerializer()
	case "binary":
		s = serializer.NewBinarySerializer()
	default:
		return fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}

	// parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport()
	case "tcp":
		t = tcp.NewTCPDefaultServerTransport()
	case "unix":
		t = unix.NewUnixDefaultServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	// this process has no remote source of its own, so a CLI-started
	// resource can only serve requests from a caller already holding
	// synchronized data; a SynchronizeRequest always fails with "no
	// synchronize routine configured". A program embedding this module as
	// a library supplies its own syncRunners map to server.NewRPCServer.
	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
		res,
		nil,
	)

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("sinkdb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
