package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	openfgav1 "github.com/openfga/api/proto/openfga/v1"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfga/fgabatch/cmd/util"
	"github.com/openfga/fgabatch/pkg/client"
	"github.com/openfga/fgabatch/pkg/executor"
	"github.com/openfga/fgabatch/pkg/optimizer"
	tupleUtils "github.com/openfga/fgabatch/pkg/tuple"
)

// batchFile is the on-disk format of a mutation batch.
type batchFile struct {
	Writes  []batchTuple `json:"writes"`
	Deletes []batchTuple `json:"deletes"`
}

type batchTuple struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// NewWriteCommand submits a batch of tuple mutations through the optimizing,
// chunked write path.
func NewWriteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a batch of relationship tuples from a JSON file",
		RunE:  runWrite,
	}

	bindConnectionFlags(cmd)

	flags := cmd.Flags()

	flags.String("file", "", "path to a JSON file with 'writes' and 'deletes' tuple lists")
	util.MustBindPFlag("file", flags.Lookup("file"))
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}

	flags.Int("chunk-size", optimizer.DefaultChunkSize, "the maximum number of operations per write call")
	util.MustBindPFlag("chunk-size", flags.Lookup("chunk-size"))

	flags.Int("max-retries", executor.DefaultMaxRetries, "the maximum number of attempts per chunk")
	util.MustBindPFlag("max-retries", flags.Lookup("max-retries"))

	flags.Duration("retry-delay", executor.DefaultRetryDelay, "the base delay between chunk attempts")
	util.MustBindPFlag("retry-delay", flags.Lookup("retry-delay"))

	flags.Bool("fail-fast", false, "abort the batch on the first failed chunk")
	util.MustBindPFlag("fail-fast", flags.Lookup("fail-fast"))

	return cmd
}

func runWrite(cmd *cobra.Command, _ []string) error {
	data, err := os.ReadFile(viper.GetString("file"))
	if err != nil {
		return fmt.Errorf("reading batch file: %w", err)
	}

	var batch batchFile
	if err := json.Unmarshal(data, &batch); err != nil {
		return fmt.Errorf("parsing batch file: %w", err)
	}

	cfg := client.DefaultConfig()
	cfg.Optimizer.ChunkSize = viper.GetInt("chunk-size")
	cfg.Executor.MaxRetries = viper.GetInt("max-retries")
	cfg.Executor.RetryDelay = viper.GetDuration("retry-delay")
	cfg.Executor.FailFast = viper.GetBool("fail-fast")

	pipeline, cleanup, err := buildClient(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := pipeline.WriteBatch(cmd.Context(), toTupleKeys(batch.Writes), toTupleKeys(batch.Deletes))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "processed %d/%d operations in %s (%.1f ops/s)\n",
		result.ProcessedOperations,
		result.TotalOperations,
		result.Duration.Round(time.Millisecond),
		result.OperationsPerSecond(),
	)

	for _, msg := range result.Errors {
		fmt.Fprintf(out, "error: %s\n", msg)
	}

	if result.IsPartialSuccess() {
		return fmt.Errorf("%d operations failed", result.FailedOperations)
	}

	return nil
}

func toTupleKeys(tuples []batchTuple) []*openfgav1.TupleKey {
	result := make([]*openfgav1.TupleKey, 0, len(tuples))
	for _, tk := range tuples {
		result = append(result, tupleUtils.NewTupleKey(tk.Object, tk.Relation, tk.User))
	}
	return result
}
