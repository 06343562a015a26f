package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/openfga/fgabatch/cmd/util"
	"github.com/openfga/fgabatch/pkg/cache"
	"github.com/openfga/fgabatch/pkg/client"
	"github.com/openfga/fgabatch/pkg/events"
	"github.com/openfga/fgabatch/pkg/logger"
)

// bindConnectionFlags binds the flags shared by every command that talks to an
// OpenFGA server.
func bindConnectionFlags(command *cobra.Command) {
	flags := command.Flags()

	flags.String("api-addr", "localhost:8081", "the host:port address of the OpenFGA gRPC API")
	util.MustBindPFlag("api-addr", flags.Lookup("api-addr"))
	util.MustBindEnv("api-addr", "FGABATCH_API_ADDR")

	flags.String("store-id", "", "the OpenFGA store id")
	util.MustBindPFlag("store-id", flags.Lookup("store-id"))
	util.MustBindEnv("store-id", "FGABATCH_STORE_ID")

	flags.String("model-id", "", "the OpenFGA authorization model id")
	util.MustBindPFlag("model-id", flags.Lookup("model-id"))
	util.MustBindEnv("model-id", "FGABATCH_MODEL_ID")

	flags.String("log-format", "text", "the log format to output logs in ('text' or 'json')")
	util.MustBindPFlag("log-format", flags.Lookup("log-format"))

	flags.String("log-level", "info", "the log level to use ('none', 'debug', 'info', 'warn', 'error')")
	util.MustBindPFlag("log-level", flags.Lookup("log-level"))
}

// buildClient dials the configured OpenFGA server and assembles the pipeline
// around it. The returned cleanup closes the connection and the cache.
func buildClient(cfg client.Config) (*client.Client, func(), error) {
	storeID := viper.GetString("store-id")
	if storeID == "" {
		return nil, nil, fmt.Errorf("a store id is required; set --store-id")
	}

	log, err := logger.NewLogger(viper.GetString("log-format"), viper.GetString("log-level"))
	if err != nil {
		return nil, nil, err
	}

	conn, err := grpc.NewClient(
		viper.GetString("api-addr"),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing '%s': %w", viper.GetString("api-addr"), err)
	}

	backend := client.NewGRPCBackend(conn, storeID, viper.GetString("model-id"))

	c := cache.NewInMemoryCache()

	pipeline, err := client.NewClient(cfg, backend, c,
		client.WithLogger(log),
		client.WithSink(events.NewLogSink(log)),
	)
	if err != nil {
		conn.Close()
		c.Stop()
		return nil, nil, err
	}

	cleanup := func() {
		conn.Close()
		c.Stop()
	}

	return pipeline, cleanup, nil
}
