package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"resumeforge/internal/prompt"
)

// PromptTemplates resolves the active templates: file contents first, then
// inline config, then the built-in defaults.
func (c *Config) PromptTemplates() (prompt.Templates, error) {
	fromFile, err := c.loadPromptsFromFiles()
	if err != nil {
		return prompt.Templates{}, err
	}
	fromConfig := prompt.Templates{Generate: c.Prompts.Generate, Analyze: c.Prompts.Analyze}
	return prompt.Resolve(fromFile, fromConfig), nil
}

// PromptFilePaths lists the configured template files
func (c *Config) PromptFilePaths() []string {
	var paths []string
	for _, p := range []string{c.PromptFiles.Generate, c.PromptFiles.Analyze} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// loadPromptsFromFiles loads custom templates from external files if file paths are specified
func (c *Config) loadPromptsFromFiles() (prompt.Templates, error) {
	var t prompt.Templates
	var err error
	if c.PromptFiles.Generate != "" {
		if t.Generate, err = loadPromptFromFile(c.PromptFiles.Generate, "generate"); err != nil {
			return prompt.Templates{}, err
		}
	}
	if c.PromptFiles.Analyze != "" {
		if t.Analyze, err = loadPromptFromFile(c.PromptFiles.Analyze, "analyze"); err != nil {
			return prompt.Templates{}, err
		}
	}
	return t, nil
}

// loadPromptFromFile loads a prompt from a file with proper error handling and logging
func loadPromptFromFile(filePath, operation string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s prompt file '%s': %w", operation, filePath, err)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s prompt file not found: %s", operation, absPath)
		}
		return "", fmt.Errorf("failed to read %s prompt file '%s': %w", operation, absPath, err)
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return "", fmt.Errorf("%s prompt file '%s' is empty", operation, absPath)
	}

	log.Printf("[CONFIG] Loaded %s prompt from file: %s (%d characters)", operation, absPath, len(trimmed))
	return trimmed, nil
}

// validatePromptFiles validates that prompt files exist before loading
func (c *Config) validatePromptFiles() error {
	var validationErrors []string

	validateFile := func(filePath, operation string) {
		if filePath == "" {
			return
		}
		absPath, err := filepath.Abs(filePath)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("invalid path for %s prompt: %s", operation, filePath))
			return
		}
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			validationErrors = append(validationErrors, fmt.Sprintf("%s prompt file not found: %s", operation, absPath))
		}
	}

	validateFile(c.PromptFiles.Generate, "generate")
	validateFile(c.PromptFiles.Analyze, "analyze")

	if len(validationErrors) > 0 {
		return fmt.Errorf("prompt file validation errors:\n  - %s", strings.Join(validationErrors, "\n  - "))
	}
	return nil
}
