package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluxflag/internal/config"
	"fluxflag/internal/logger"
)

func TestShutdownSucceedsWithoutAdditionalHook(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())
	require.NoError(t, b.Shutdown(context.Background(), nil))
}

func TestShutdownRunsAdditionalHookAndPropagatesNoErrors(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())
	called := false

	err := b.Shutdown(context.Background(), func(ctx context.Context) []error {
		called = true
		return nil
	})

	require.NoError(t, err)
	assert.True(t, called)
}

func TestShutdownAggregatesAdditionalHookErrors(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())
	boom := errors.New("kafka writer close failed")

	err := b.Shutdown(context.Background(), func(ctx context.Context) []error {
		return []error{boom}
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka writer close failed")
}
