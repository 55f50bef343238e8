package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var embedShowVector bool

func init() {
	rootCmd.AddCommand(embedCmd)
	embedCmd.Flags().BoolVar(&embedShowVector, "vector", true, "Include the full vector in JSON output")
}

// EmbedResponse is the response for the embed command.
type EmbedResponse struct {
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Norm       float64   `json:"norm"`
	Degenerate bool      `json:"degenerate"`
	Vector     []float32 `json:"vector,omitempty"`
}

var embedCmd = &cobra.Command{
	Use:   "embed <text>...",
	Short: "Embed text with the sentence model",
	Long: `Embed text into a 384-dimensional unit vector.

Text is tokenized to exactly 128 tokens (truncated or padded), run through the
model, mean-pooled over real tokens and L2-normalized. Text with no real tokens
yields a zero vector, reported as degenerate.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEmbed,
}

func runEmbed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	text := strings.Join(args, " ")

	provider := mustLoadProvider(ctx)
	emb, err := provider.Embed(ctx, text)
	exitOnError(err, "embedding text")

	resp := EmbedResponse{
		Model:      provider.ModelName(),
		Dimensions: emb.Dimensions(),
		Norm:       emb.Norm(),
		Degenerate: !emb.IsUnit(),
	}
	if embedShowVector {
		resp.Vector = emb.Vector
	}

	if humanOutput {
		outputHuman("Model:      %s\n", resp.Model)
		outputHuman("Dimensions: %d\n", resp.Dimensions)
		outputHuman("Norm:       %.6f\n", resp.Norm)
		if resp.Degenerate {
			outputHuman("Degenerate: text has no real tokens\n")
		}
		preview := emb.Vector
		if len(preview) > 8 {
			preview = preview[:8]
		}
		outputHuman("Vector:     %s\n", formatVectorPreview(preview, len(emb.Vector)))
		return nil
	}
	return outputJSON(resp)
}

// formatVectorPreview renders the leading components of a vector.
func formatVectorPreview(head []float32, total int) string {
	parts := make([]string, len(head))
	for i, x := range head {
		parts[i] = fmt.Sprintf("%.4f", x)
	}
	s := "[" + strings.Join(parts, " ")
	if total > len(head) {
		s += fmt.Sprintf(" ... (%d more)", total-len(head))
	}
	return s + "]"
}
