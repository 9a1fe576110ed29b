//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwatch/visibility/internal/model"
)

func resetEnqueueFlags() {
	enqueueModels = nil
	enqueuePrompts = nil
	enqueueParaphrases = 0
	enqueueMaxTokens = 0
	enqueueTemperature = 0
}

func TestEnqueueOptions_NoneSet(t *testing.T) {
	resetEnqueueFlags()
	t.Cleanup(resetEnqueueFlags)

	assert.Nil(t, enqueueOptions())
}

func TestEnqueueOptions_Overrides(t *testing.T) {
	resetEnqueueFlags()
	t.Cleanup(resetEnqueueFlags)

	enqueueModels = []string{"gpt-4o-mini"}
	enqueueParaphrases = 3

	opts := enqueueOptions()
	require.NotNil(t, opts)
	assert.Equal(t, &model.SamplingOptions{
		Models:          []string{"gpt-4o-mini"},
		ParaphraseCount: 3,
	}, opts)
}

func TestEnqueueOptions_SingleOverride(t *testing.T) {
	resetEnqueueFlags()
	t.Cleanup(resetEnqueueFlags)

	enqueueTemperature = 0.2

	opts := enqueueOptions()
	require.NotNil(t, opts)
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Empty(t, opts.Models)
}
