package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"resumeforge/internal/common"
	"resumeforge/internal/ingest"
	"resumeforge/internal/types"
	"resumeforge/internal/utils"
	"resumeforge/internal/workflow"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [resume-file]",
	Short: "Score a PDF or DOCX resume for ATS compatibility",
	Long: `Analyze an existing resume and score it for applicant tracking systems.

The document is sent as is for PDF files; DOCX files are converted to text
first. The analysis includes:
- Overall, ATS compatibility, content quality, formatting and keyword scores (0-100)
- Strengths and suggested improvements
- Missing keywords
- A short summary`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		// Apply default format if not specified
		if analyzeConfig.OutputFormat == "" {
			analyzeConfig.OutputFormat = cfg.App.DefaultFormat
		}
		// Validate format against supported formats
		return common.ValidateOutputFormat(analyzeConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runAnalyze,
}

var analyzeConfig common.CommandConfig

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	analyzeCmd.Flags().StringVar(&analyzeConfig.OutputFormat, "format", "", "Output format: json, text, markdown, or yaml")

	// Add completion for format flag
	_ = analyzeCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	doc, err := ingest.New(cfg.App.MaxFileSize, logger).IngestFile(ctx, args[0])
	if err != nil {
		return reportFailure("analyze", err)
	}

	p, closeClient, err := newPipeline(ctx, cfg, types.TaskAnalyze, logger)
	if err != nil {
		return fmt.Errorf("failed to create analysis pipeline: %w", err)
	}
	defer closeClient()

	session := workflow.NewSession("cli")
	logDetails := func(req types.TaskRequest, cmdCfg common.CommandConfig) {
		logger.Info("Starting resume analysis",
			"filename", req.Analyze.Document.Name,
			"media_type", req.Analyze.Document.MediaType,
			"size", utils.FormatFileSize(int64(req.Analyze.Document.Size)),
			"output_format", cmdCfg.OutputFormat)
	}

	_, err = common.RunTask(ctx, logger, analyzeConfig, p, session.Analyze,
		types.NewAnalyzeRequest(doc), logDetails)
	if err != nil {
		return reportFailure("analyze", err)
	}
	logger.Info("Resume analysis completed successfully")
	return nil
}
