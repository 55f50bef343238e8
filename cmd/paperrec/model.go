package main

import (
	"github.com/spf13/cobra"

	"github.com/matsen/paperrec/internal/embedding"
)

// sampleText is embedded to verify the model end to end.
const sampleText = "Attention is all you need."

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelCheckCmd)
}

// ModelCheckResponse is the response for the model check command.
type ModelCheckResponse struct {
	Status     string  `json:"status"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	Dimensions int     `json:"dimensions"`
	Norm       float64 `json:"norm"`
	Cache      bool    `json:"cache"`
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect the embedding model",
}

var modelCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the model and verify it produces unit vectors",
	Args:  cobra.NoArgs,
	RunE:  runModelCheck,
}

func runModelCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	provider := mustLoadProvider(ctx)

	emb, err := provider.Embed(ctx, sampleText)
	exitOnError(err, "embedding sample text")

	if emb.Dimensions() != cfg.Model.Dimensions {
		exitWithError(ExitConfigError, "model produced %d dimensions, config expects %d", emb.Dimensions(), cfg.Model.Dimensions)
	}
	if !emb.IsUnit() {
		exitWithError(ExitError, "model output has norm %.6f, want 1 within %g", emb.Norm(), embedding.UnitTolerance)
	}

	resp := ModelCheckResponse{
		Status:     "ok",
		Provider:   cfg.Model.Provider,
		Model:      provider.ModelName(),
		Dimensions: emb.Dimensions(),
		Norm:       emb.Norm(),
		Cache:      cfg.Cache.Enabled,
	}
	if !humanOutput {
		return outputJSON(resp)
	}
	outputHuman("Model %s (%s) ok: %d dimensions, norm %.6f\n", resp.Model, resp.Provider, resp.Dimensions, resp.Norm)
	return nil
}
