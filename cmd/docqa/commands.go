package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vkruglov/docqa/internal/config"
)

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question against the indexed documents",
	Long: `Ask a question against the indexed documents.

Examples:
  docqa query "what does the quarterly report say about revenue"
  docqa query --task "Summarize in one paragraph." "the onboarding guide"
  docqa query --context "$(cat notes.txt)" "what are the action items"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, _ := cmd.Flags().GetString("task")
		external, _ := cmd.Flags().GetStringArray("context")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postJSON(cmd.Context(), "/api/query", map[string]any{
			"query":            strings.Join(args, " "),
			"task_instruction": task,
			"external_context": external,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer string `json:"answer"`
			Source string `json:"source"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, result.Answer)
		return nil
	},
}

func init() {
	queryCmd.Flags().String("task", "", "instruction replacing the default answering task")
	queryCmd.Flags().StringArray("context", nil, "context that overrides retrieval entirely (repeatable)")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Upload a file into the document index",
	Long: `Upload a file into the document index.

Supported: plain text, markdown, source code, HTML, PDF, and (with the
optional transcription service and ffmpeg) audio and video.

Examples:
  docqa ingest report.pdf
  docqa ingest --note "meeting from 2026-08-12" standup.mp3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postFile(cmd.Context(), "/api/upload", args[0], note)
		if err != nil {
			return err
		}

		var result struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
			Added   int    `json:"chunks_added"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("%s", result.Message)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("note", "", "free-form note stored alongside the document's chunks")
}

// --- sources ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the documents currently in the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/documents")
		if err != nil {
			return err
		}

		var result struct {
			Documents []string `json:"documents"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Documents) == 0 {
			printWarning("no documents indexed yet")
			return nil
		}
		for _, name := range result.Documents {
			fmt.Fprintln(os.Stdout, name)
		}
		return nil
	},
}

// --- plan ---

var planCmd = &cobra.Command{
	Use:   "plan [request]",
	Short: "Produce a numbered action plan for a request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postJSON(cmd.Context(), "/api/plan", map[string]string{
			"request": strings.Join(args, " "),
		})
		if err != nil {
			return err
		}

		var result struct {
			Plan string `json:"plan"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, result.Plan)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, kv := range config.ShowAll(cfg) {
			printStatus(kv.Key, "%s", kv.Value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}
