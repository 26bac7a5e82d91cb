package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/doccheck/internal/config"
	"github.com/kalambet/doccheck/internal/pipeline"
)

// maxParallelChecks bounds how many --url checks run at once.
const maxParallelChecks = 4

// --- check ---

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a document or website against a running server",
	Long: `Check a document or website against a running server.

Examples:
  doccheck check --text "Публичная оферта ..."
  doccheck check --file ./offer.txt --user alice
  doccheck check --url shop.example --url https://other.example/privacy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		urls, _ := cmd.Flags().GetStringSlice("url")
		user, _ := cmd.Flags().GetString("user")

		sources, err := checkSources(text, file, urls)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(sources) > 1 {
			printStatus("Checking", "%d documents, %d at a time", len(sources), min(len(sources), maxParallelChecks))
		}
		results, err := runChecks(cmd.Context(), client, sources, user)
		if err != nil {
			return err
		}

		failed := 0
		for i, res := range results {
			if !res.Success {
				failed++
			}
			printResult(sources[i].label, res)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d checks failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().String("text", "", "document text to check")
	checkCmd.Flags().String("file", "", "path to a file with the document text")
	checkCmd.Flags().StringSlice("url", nil, "website to check (repeatable)")
	checkCmd.Flags().String("user", "cli", "requester id recorded in server logs")
}

// checkSource is one document handed to the server.
type checkSource struct {
	label   string
	content string
}

func checkSources(text, file string, urls []string) ([]checkSource, error) {
	var sources []checkSource
	if text != "" {
		sources = append(sources, checkSource{label: "text", content: text})
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading file: %w", err)
		}
		sources = append(sources, checkSource{label: file, content: string(data)})
	}
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		sources = append(sources, checkSource{label: u, content: pipeline.URLPrefix + u})
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("one of --text, --file, or --url is required")
	}
	return sources, nil
}

// runChecks posts every source concurrently and returns results in input
// order. A server-side check failure is a result, not an error; only
// transport failures abort the batch.
func runChecks(ctx context.Context, client *apiClient, sources []checkSource, user string) ([]pipeline.CheckResult, error) {
	results := make([]pipeline.CheckResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChecks)
	for i, src := range sources {
		g.Go(func() error {
			res, err := postCheck(gctx, client, pipeline.CheckRequest{
				Content:     src.content,
				RequesterID: user,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", src.label, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// checkResponse is a CheckResult as the server writes it. Requests the
// server cannot parse are answered with the {"error":{"message":...}}
// envelope instead, so Error is decoded lazily.
type checkResponse struct {
	Success bool            `json:"success"`
	Result  string          `json:"result"`
	Error   json.RawMessage `json:"error"`
	JobID   string          `json:"jobId"`
}

func (r checkResponse) errorMessage() string {
	if len(r.Error) == 0 {
		return ""
	}
	var msg string
	if json.Unmarshal(r.Error, &msg) == nil {
		return msg
	}
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(r.Error, &envelope) == nil {
		return envelope.Message
	}
	return string(r.Error)
}

// postCheck sends one check. The server answers 400 and 500 with an error
// body, so those are decoded into a failed result rather than an error.
func postCheck(ctx context.Context, client *apiClient, req pipeline.CheckRequest) (pipeline.CheckResult, error) {
	resp, err := client.post(ctx, "/api/check-document", req)
	if err != nil {
		return pipeline.CheckResult{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError:
		defer resp.Body.Close()
		var body checkResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return pipeline.CheckResult{}, fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
		}
		res := pipeline.CheckResult{
			Success:      body.Success,
			ReportText:   body.Result,
			ErrorMessage: body.errorMessage(),
			JobID:        body.JobID,
		}
		if !res.Success && res.ErrorMessage == "" {
			res.ErrorMessage = fmt.Sprintf("server returned %d", resp.StatusCode)
		}
		return res, nil
	default:
		var v any
		if err := decodeJSON(resp, &v); err != nil {
			return pipeline.CheckResult{}, err
		}
		return pipeline.CheckResult{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Valid keys: ` + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
