package main

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openfluke/attrib/config"
)

var (
	settings     = config.New()
	settingsFile string
)

// flagKeys maps flag names onto settings keys where the two differ.
var flagKeys = map[string]string{
	"abs":          "abs-value",
	"model":        "model.arch",
	"weights":      "model.weights",
	"store":        "store.kind",
	"db":           "store.path",
	"progress-url": "progress.url",
	"quiet":        "progress.quiet",
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:          "attrib",
	Short:        "Score nucleotide sequences with in-silico mutagenesis and gradient attributions",
	Version:      "0.1.0",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "config", "", "settings file (yaml, json or toml)")
}

// loadConfig binds the running command's flags and decodes the settings.
// Flags are bound per invocation since several commands share keys.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		key, ok := flagKeys[f.Name]
		if !ok {
			key = f.Name
		}
		bindErr = settings.BindPFlag(key, f)
	})
	if bindErr != nil {
		return config.Config{}, bindErr
	}
	c, err := config.Load(settings, settingsFile)
	if err != nil {
		return config.Config{}, err
	}
	return c, c.Validate()
}
