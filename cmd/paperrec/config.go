package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matsen/paperrec/internal/config"
)

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage paperrec configuration",
	Long: `Configuration is read from, in increasing priority: built-in defaults, the
YAML config file (--config, $PAPERREC_CONFIG or ~/.config/paperrec/config.yml),
and PAPERREC_<SECTION>_<KEY> environment variables, e.g. PAPERREC_STORE_DRIVER.
A .env file in the working directory is loaded first.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	// An existing invalid file must not prevent writing a fresh one.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, _ := config.ResolvePath(configFlag)
	if path == "" {
		exitWithError(ExitConfigError, "cannot determine config path; pass --config")
	}

	err := config.WriteFile(path, config.Default(), configInitForce)
	exitOnError(err, "writing config")

	if humanOutput {
		outputHuman("Wrote %s\n", path)
		return nil
	}
	return outputJSON(StatusResponse{Status: "created", Path: path})
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := config.Marshal(cfg.Config)
	exitOnError(err, "encoding config")

	if humanOutput {
		if cfg.Path != "" {
			outputHuman("# %s\n", cfg.Path)
		}
		outputHuman("%s", data)
		return nil
	}

	// Round-trip through YAML so JSON keys and durations match the file format.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		exitWithError(ExitError, "decoding config: %v", err)
	}
	return outputJSON(struct {
		Path   string         `json:"path,omitempty"`
		Config map[string]any `json:"config"`
	}{cfg.Path, doc})
}
