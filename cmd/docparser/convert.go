package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spherical/docparser/internal/domain"
	"github.com/spherical/docparser/internal/pipeline"
)

var (
	convertOutput string
	convertJSON   bool
	convertName   string
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a PDF or image to Markdown",
	Long: `Convert a local PDF or image file. The Markdown is written to --output, or to
stdout when no output file is given. With --json the job output object is
printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output Markdown file (default: stdout)")
	convertCmd.Flags().BoolVar(&convertJSON, "json", false, "print the job output as JSON")
	convertCmd.Flags().StringVar(&convertName, "name", "", "file name to report (default: base name of <file>)")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]
	ui := NewUI(cmd.ErrOrStderr())

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	name := convertName
	if name == "" {
		name = filepath.Base(path)
	}

	// keep the terminal readable: only warnings unless -v
	level := "warn"
	if verbose {
		level = "debug"
	}
	cliCfg := *cfg
	cliCfg.Observability.LogFormat = "console"
	logger := newLogger(&cliCfg, cmd.ErrOrStderr(), level)

	var progress *progressObserver
	if !convertJSON {
		progress = newProgressObserver(cmd.ErrOrStderr())
	}

	var observer pipeline.Observer
	if progress != nil {
		observer = progress
	}
	a, err := buildApp(ctx, &cliCfg, logger, observer)
	if err != nil {
		return err
	}
	defer a.Close()

	if !convertJSON {
		ui.Info("Converting %s (%d bytes)", path, len(data))
	}
	start := time.Now()
	if progress != nil {
		progress.Start("Decoding and splitting " + name)
	}

	out := a.service.Convert(ctx, domain.Job{
		Payload:  base64.StdEncoding.EncodeToString(data),
		FileName: name,
	})
	if progress != nil {
		progress.Finish()
	}

	if convertJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out.Result); err != nil {
			return err
		}
		if !out.Result.Success {
			return fmt.Errorf("conversion failed")
		}
		return nil
	}

	if !out.Result.Success {
		ui.Error("Conversion failed: %s", out.Result.Error)
		return fmt.Errorf("conversion failed")
	}

	if err := writeMarkdown(cmd.OutOrStdout(), convertOutput, out.Result.Markdown); err != nil {
		return err
	}

	ui.Success("Converted %d page(s) in %s", out.Result.PageCount, time.Since(start).Round(time.Millisecond))
	if convertOutput != "" {
		ui.Success("Markdown saved to: %s", convertOutput)
	}
	if out.OutputURI != "" {
		ui.Info("Published to %s", out.OutputURI)
	}
	return nil
}

func writeMarkdown(stdout io.Writer, path, markdown string) error {
	if path == "" {
		_, err := io.WriteString(stdout, markdown+"\n")
		return err
	}
	if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
