package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nconklindev/xlport/internal/config"
	"github.com/nconklindev/xlport/internal/converter"
	"github.com/nconklindev/xlport/internal/logging"
	"github.com/nconklindev/xlport/internal/types"
	"github.com/nconklindev/xlport/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputDir string
	format    string
	logLevel  string
	logFile   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xlport [input.xlsx]",
		Short: "Convert an Excel worksheet to SQLite or JSON Lines",
		Long: `xlport converts the first worksheet of an Excel workbook (row 1 = headers)
into a SQLite database with a single "data" table, or a JSON Lines file.

Without an input file it starts the interactive file picker.`,
		Version:       fmt.Sprintf("%s\ncommit: %s\nbuilt: %s", version, commit, date),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	rootCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory (default: $XLPORT_OUTPUT_DIR or ~/Desktop)")
	rootCmd.Flags().StringVarP(&format, "format", "f", "", "Output format: db or jsonl (default: $XLPORT_FORMAT or db)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Append logs to this file")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", converter.UserMessage(err))
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}

	if len(args) == 0 {
		return runTUI(cfg)
	}
	return runHeadless(cmd.Context(), cfg, args[0])
}

// applyFlags overrides config values with flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if cmd.Flags().Changed("format") {
		f, err := types.ParseFormat(format)
		if err != nil {
			return err
		}
		cfg.Format = f
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = logFile
	}
	return cfg.Validate()
}

func runHeadless(ctx context.Context, cfg *config.Config, input string) error {
	logger, closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFile, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	if ctx == nil {
		ctx = context.Background()
	}
	req := types.ConversionRequest{
		InputPath:  input,
		OutputPath: types.OutputPath(input, cfg.OutputDir, cfg.Format),
		Format:     cfg.Format,
	}

	result, err := converter.Convert(logging.WithRun(ctx, logger), req, nil)
	if err != nil {
		logger.Error().Err(err).Msg("conversion failed")
		return err
	}

	fmt.Printf("%s (%d rows)\n", result.OutputFile, result.RowsWritten)
	return nil
}

func runTUI(cfg *config.Config) error {
	logger, closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFile, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	p := tea.NewProgram(ui.InitialModel(cfg, logger), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	return err
}
