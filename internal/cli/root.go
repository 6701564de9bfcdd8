package cli

import (
	"context"

	"github.com/spf13/cobra"

	"resumeforge/internal/ai"
	"resumeforge/internal/config"
	"resumeforge/internal/errors"
	"resumeforge/internal/pipeline"
	"resumeforge/internal/prompt"
	"resumeforge/internal/types"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}

var rootCmd = &cobra.Command{
	Use:   "resumeforge",
	Short: "Generate and score resumes with AI",
	Long: `ResumeForge builds one-page resumes from your details, optionally tailored
to a job description, and scores existing PDF or DOCX resumes for ATS
compatibility. Run it once from the command line or serve the same
workflows over HTTP.`,
	SilenceUsage: true,
}

func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger) error {
	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

// newPipeline wires the prompt builder and the generation client of one task kind
func newPipeline(ctx context.Context, cfg *config.Config, kind types.TaskKind, logger *errors.Logger) (*pipeline.Pipeline, func(), error) {
	templates, err := cfg.PromptTemplates()
	if err != nil {
		return nil, nil, err
	}
	builder, err := prompt.NewBuilder(templates)
	if err != nil {
		return nil, nil, err
	}

	opCfg := cfg.OperationConfig(kind)
	if opCfg.APIKey == "" {
		return nil, nil, cfg.RequireAPIKeys()
	}
	client, err := ai.NewClient(ctx, &opCfg, kind, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.LogError(err, "Failed to close generation client")
		}
	}
	return pipeline.New(builder, client, logger), closeFn, nil
}

func init() {
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
