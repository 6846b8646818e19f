package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"trusight/models"
	"trusight/services"
)

var (
	flagTitle  string
	flagSource string
	flagURL    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Classify one article from a file, stdin or --url",
	Long: `Run a single bias analysis without the HTTP server.

Content is read from the given file, or from stdin when no file is given
and --url is not set. Prints the model result followed by the adjusted
confidence that chat histories would store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.AnalysisRequest{Title: flagTitle, Source: flagSource, URL: flagURL}
		if flagURL == "" || len(args) == 1 {
			content, err := readContent(args)
			if err != nil {
				return err
			}
			req.Content = content
		}

		prompts, err := loadPrompts()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		req, err = services.PrepareRequest(ctx, services.NewContentFetcher(), req)
		if err != nil {
			return err
		}

		analyzer := services.NewBiasAnalyzer(services.NewLLMClient(cfg), cfg.LLMModel, prompts)
		result, err := analyzer.Analyze(ctx, req, func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		adjusted := services.AdjustConfidence(string(result.Bias), result.Confidence, result.MissingPerspectives)
		fmt.Printf("\nconfidence: %.3f raw, %.3f adjusted\n", result.Confidence, adjusted)
		if result.Fallback {
			fmt.Println("(fallback result: the model reply could not be used)")
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&flagTitle, "title", "", "article title")
	analyzeCmd.Flags().StringVar(&flagSource, "source", "", "publication name")
	analyzeCmd.Flags().StringVar(&flagURL, "url", "", "fetch the article from this URL")
}

func readContent(args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("no article content given")
	}
	return string(data), nil
}
