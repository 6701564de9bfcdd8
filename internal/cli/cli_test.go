package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumeforge/internal/common"
	"resumeforge/internal/config"
	"resumeforge/internal/errors"
)

func TestResolveJobDescription(t *testing.T) {
	cfg := &config.Config{}
	logger := errors.Discard()
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		text, err := resolveJobDescription(ctx, cfg, logger, "", "")
		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "job.txt")
		require.NoError(t, os.WriteFile(path, []byte("Senior Go Engineer"), 0o644))

		text, err := resolveJobDescription(ctx, cfg, logger, path, "")
		require.NoError(t, err)
		assert.Contains(t, text, "Senior Go Engineer")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := resolveJobDescription(ctx, cfg, logger, filepath.Join(t.TempDir(), "nope.txt"), "")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeFileNotFound))
	})

	t.Run("url", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("Platform engineer, remote"))
		}))
		defer srv.Close()

		text, err := resolveJobDescription(ctx, cfg, logger, "", srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "Platform engineer, remote", text)
	})
}

func TestReportFailure(t *testing.T) {
	err := reportFailure("analyze", &common.TaskFailure{Kind: errors.KindSchemaInvalid, Message: "overallScore out of range"})
	assert.EqualError(t, err, "analyze failed (SchemaInvalid): overallScore out of range")

	rejection := errors.NewWorkflowError(errors.ErrCodeWorkflowGuard, "email is required")
	err = reportFailure("generate", rejection)
	assert.EqualError(t, err, "generate rejected (InvalidInput): WORKFLOW_GUARD: email is required")
	assert.ErrorIs(t, err, rejection)

	err = reportFailure("generate", fmt.Errorf("boom"))
	assert.EqualError(t, err, "generate rejected (Internal): boom")
}
