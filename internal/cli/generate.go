package cli

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"resumeforge/internal/common"
	"resumeforge/internal/config"
	"resumeforge/internal/errors"
	"resumeforge/internal/jobdesc"
	"resumeforge/internal/types"
	"resumeforge/internal/workflow"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a one-page resume from your details",
	Long: `Generate an ATS-friendly, one-page resume from the details you pass as flags.

When a job description is supplied with --job-file or --job-url, the resume is
optimized for that posting: keywords are mirrored, relevant experience is
emphasized and the summary is aligned with the role. Otherwise a general
professional resume is produced.

Use --export-dir to also write the plain resume text to <Full_Name>_Resume.txt.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		// Apply default format if not specified
		if generateConfig.OutputFormat == "" {
			generateConfig.OutputFormat = cfg.App.DefaultFormat
		}
		// Validate format against supported formats
		return common.ValidateOutputFormat(generateConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runGenerate,
}

var (
	generateConfig common.CommandConfig
	generateFields types.GenerateFields
	jobFile        string
	jobURL         string
)

func init() {
	flags := generateCmd.Flags()
	flags.StringVar(&generateFields.FullName, "name", "", "Full name (required)")
	flags.StringVar(&generateFields.Email, "email", "", "Email address (required)")
	flags.StringVar(&generateFields.Phone, "phone", "", "Phone number")
	flags.StringVar(&generateFields.Location, "location", "", "Location, e.g. city and country")
	flags.StringVar(&generateFields.Summary, "summary", "", "Professional summary")
	flags.StringVar(&generateFields.Experience, "experience", "", "Work experience")
	flags.StringVar(&generateFields.Education, "education", "", "Education")
	flags.StringVar(&generateFields.Skills, "skills", "", "Skills")
	flags.StringVar(&jobFile, "job-file", "", "Text file holding the target job description")
	flags.StringVar(&jobURL, "job-url", "", "URL of the target job posting")
	flags.StringVar(&generateConfig.ExportDir, "export-dir", "", "Directory receiving the plain-text resume")
	flags.StringVarP(&generateConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	flags.StringVar(&generateConfig.OutputFormat, "format", "", "Output format: json, text, markdown, or yaml")

	generateCmd.MarkFlagsMutuallyExclusive("job-file", "job-url")

	// Add completion for format flag
	_ = generateCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	fields := generateFields
	jobDescription, err := resolveJobDescription(ctx, cfg, logger, jobFile, jobURL)
	if err != nil {
		return err
	}
	fields.JobDescription = jobDescription

	if err := common.ValidateGenerateFields(fields); err != nil {
		return err
	}

	p, closeClient, err := newPipeline(ctx, cfg, types.TaskGenerate, logger)
	if err != nil {
		return fmt.Errorf("failed to create generation pipeline: %w", err)
	}
	defer closeClient()

	session := workflow.NewSession("cli")
	logDetails := func(req types.TaskRequest, cmdCfg common.CommandConfig) {
		logger.Info("Starting resume generation",
			"tailored", req.Generate.HasJobDescription(),
			"output_format", cmdCfg.OutputFormat,
			"export_dir", cmdCfg.ExportDir)
	}

	_, err = common.RunTask(ctx, logger, generateConfig, p, session.Generate,
		types.NewGenerateRequest(fields), logDetails)
	if err != nil {
		return reportFailure("generate", err)
	}
	logger.Info("Resume generation completed successfully")
	return nil
}

// resolveJobDescription reads the optional job description from a file or URL
func resolveJobDescription(ctx context.Context, cfg *config.Config, logger *errors.Logger, file, url string) (string, error) {
	switch {
	case file != "":
		return common.NewFileProcessor(logger).ReadTextFile(file)
	case url != "":
		return jobdesc.New(cfg.JobFetch, logger).Fetch(ctx, url)
	}
	return "", nil
}

// reportFailure names the failure kind of a failed or rejected run. Cobra
// prints the returned error and main exits non-zero.
func reportFailure(operation string, err error) error {
	var failure *common.TaskFailure
	if stderrors.As(err, &failure) {
		return fmt.Errorf("%s failed (%s): %s", operation, failure.Kind, failure.Message)
	}
	return fmt.Errorf("%s rejected (%s): %w", operation, errors.KindOf(err), err)
}
