package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendsGolden(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "friends.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestFriendsSameTraceOnRemoteBuilder(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "friends.yaml"))
	require.NoError(t, err)
	scenario.Builder = "remote"

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	AssertGolden(t, "friends", result)
}
