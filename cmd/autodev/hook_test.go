package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akaszubski/autonomous-dev/internal/gate"
)

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestEvaluateHookEventWarnsOnStaleSession(t *testing.T) {
	workDir := t.TempDir()
	session := "sess-idle"
	activityDir := filepath.Join(workDir, ".autodev", "runtime", "activity")
	require.NoError(t, os.MkdirAll(activityDir, 0o755))

	// Last activity two hours ago, well past the staleness threshold.
	stale := strconv.FormatInt(time.Now().Add(-2*time.Hour).Unix(), 10)
	require.NoError(t, os.WriteFile(filepath.Join(activityDir, session), []byte(stale), 0o644))

	resp := evaluateHookEvent(workDir, session, gate.HookUserPromptSubmit, hookInput{})
	require.Equal(t, "allow", resp.Decision)
	assert.True(t, hasWarning(resp.Warnings, "stale-session"),
		"idle session should surface the staleness warning, got %v", resp.Warnings)

	// The activity file is refreshed after evaluation, so the next
	// prompt sees a fresh session.
	data, err := os.ReadFile(filepath.Join(activityDir, session))
	require.NoError(t, err)
	ts, err := strconv.ParseInt(string(data), 10, 64)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), time.Unix(ts, 0), time.Minute)

	resp = evaluateHookEvent(workDir, session, gate.HookUserPromptSubmit, hookInput{})
	assert.False(t, hasWarning(resp.Warnings, "stale-session"),
		"freshly active session should not warn, got %v", resp.Warnings)
}
