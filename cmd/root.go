// Package cmd contains all the commands included in the binary file.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfga/fgabatch/internal/build"
)

// NewRootCommand enables all children commands to read flags from CLI flags, environment variables prefixed with FGABATCH, or config.yaml (in that order).
func NewRootCommand() *cobra.Command {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("FGABATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	configPaths := []string{"/etc/fgabatch", "$HOME/.fgabatch", "."}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	_ = viper.ReadInConfig()

	return &cobra.Command{
		Use:     "fgabatch",
		Short:   "A reliability layer for OpenFGA clients: coalesced permission checks and optimized, retried batch writes",
		Version: build.Version,
	}
}
