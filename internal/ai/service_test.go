package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumeforge/internal/config"
	"resumeforge/internal/errors"
	"resumeforge/internal/types"
)

type stubClient struct {
	reply  *Reply
	err    error
	calls  []Request
	closed bool
}

func (s *stubClient) Generate(_ context.Context, req Request) (*Reply, error) {
	s.calls = append(s.calls, req)
	return s.reply, s.err
}

func (s *stubClient) Close() error {
	s.closed = true
	return nil
}

func TestRouterDispatchesByKind(t *testing.T) {
	generate := &stubClient{reply: &Reply{Model: "gen"}}
	analyze := &stubClient{reply: &Reply{Model: "ana"}}
	router := NewRouterFrom(map[types.TaskKind]Client{
		types.TaskGenerate: generate,
		types.TaskAnalyze:  analyze,
	})

	reply, err := router.Generate(context.Background(), Request{Kind: types.TaskAnalyze, Instruction: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ana", reply.Model)
	assert.Len(t, analyze.calls, 1)
	assert.Empty(t, generate.calls)

	require.NoError(t, router.Close())
	assert.True(t, generate.closed)
	assert.True(t, analyze.closed)
}

func TestRouterUnknownKind(t *testing.T) {
	router := NewRouterFrom(map[types.TaskKind]Client{})
	_, err := router.Generate(context.Background(), Request{Kind: "summarize"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestRouterStats(t *testing.T) {
	cfg := testOperationConfig(config.ProviderAnthropic, 4096)
	cfg.CircuitBreaker = breakerConfig(3, 0.6)
	p, err := NewAnthropicProvider(cfg, "generate", errors.Discard())
	require.NoError(t, err)

	router := NewRouterFrom(map[types.TaskKind]Client{
		types.TaskGenerate: p,
		types.TaskAnalyze:  &stubClient{},
	})
	stats := router.Stats()
	require.Contains(t, stats, types.TaskGenerate)
	assert.NotContains(t, stats, types.TaskAnalyze)
	assert.Equal(t, "AI-generate", stats[types.TaskGenerate]["name"])
}

func TestNewClient(t *testing.T) {
	t.Run("unsupported provider", func(t *testing.T) {
		cfg := testOperationConfig("openai", 100)
		_, err := NewClient(context.Background(), cfg, types.TaskGenerate, errors.Discard())
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
	})

	t.Run("missing key", func(t *testing.T) {
		for _, provider := range []string{config.ProviderAnthropic, config.ProviderGemini} {
			cfg := testOperationConfig(provider, 100)
			cfg.APIKey = ""
			_, err := NewClient(context.Background(), cfg, types.TaskAnalyze, errors.Discard())
			assert.True(t, errors.HasCode(err, errors.ErrCodeMissingAPIKey), provider)
		}
	})

	t.Run("per-kind router", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.AI.Provider = config.ProviderAnthropic
		cfg.AI.APIKey = "k"
		cfg.AI.Generate.MaxTokens = 10
		cfg.AI.Analyze.Provider = config.ProviderGemini
		cfg.AI.Analyze.MaxTokens = 10

		router, err := NewRouter(context.Background(), cfg, errors.Discard())
		require.NoError(t, err)
		assert.IsType(t, &AnthropicProvider{}, router.clients[types.TaskGenerate])
		assert.IsType(t, &GeminiProvider{}, router.clients[types.TaskAnalyze])
	})
}
