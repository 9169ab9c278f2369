package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/protocanvas/protocanvas/internal/registry"
	"github.com/protocanvas/protocanvas/pkg/models"
	"github.com/protocanvas/protocanvas/pkg/server"
)

const cliWorkspace = "cli"

var (
	documentPath    string
	functionalityID string
	printTranscript bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one AI functionality of a document file and print its output",
	Example: `  protocanvas run --document app.json --functionality fn-1
  protocanvas run -d app.json -f fn-1 --transcript`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFunctionality(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	runCmd.Flags().StringVarP(&documentPath, "document", "d", "", "document JSON file")
	runCmd.Flags().StringVarP(&functionalityID, "functionality", "f", "", "functionality id to run")
	runCmd.Flags().BoolVar(&printTranscript, "transcript", false, "print the raw JSON transcript")
	runCmd.MarkFlagRequired("document")
	runCmd.MarkFlagRequired("functionality")
}

func runFunctionality(ctx context.Context, out io.Writer) error {
	data, err := os.ReadFile(documentPath)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	// Offline runs never touch the configured store.
	local := *cfg
	local.Store.Driver = "memory"
	local.Store.DataDir = ""
	local.Telemetry.Enabled = false

	srv, err := server.NewWithConfig(ctx, &local)
	if err != nil {
		return err
	}
	defer srv.Close(context.Background())

	if _, err := srv.Documents.Replace(ctx, cliWorkspace, &doc); err != nil {
		return err
	}
	outcome, err := srv.Engine.Process(ctx, cliWorkspace, functionalityID)
	if err != nil {
		return err
	}
	if !outcome.Written {
		fmt.Fprintln(out, outcome.Reply.Response)
		return nil
	}

	saved, err := srv.Documents.Get(ctx, cliWorkspace)
	if err != nil {
		return err
	}
	c := saved.Component(outcome.OutputID)
	if c == nil {
		return fmt.Errorf("output component %s vanished", outcome.OutputID)
	}
	if printTranscript {
		content, _ := c.AsTextValue()
		fmt.Fprintln(out, content)
		return nil
	}

	view := registry.Render(c)
	if len(view.Messages) == 0 {
		fmt.Fprintln(out, view.Text)
		return nil
	}
	for _, m := range view.Messages {
		fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
	}
	if outcome.Reply.Fallback {
		fmt.Fprintln(out, "(provider unavailable, fallback reply)")
	}
	return nil
}
