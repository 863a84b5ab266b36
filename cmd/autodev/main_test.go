package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akaszubski/autonomous-dev/internal/gate"
)

func TestGetActorPrecedence(t *testing.T) {
	t.Setenv("AUTODEV_ACTOR", "env-actor")

	actorFlag = "flag-actor"
	defer func() { actorFlag = "" }()
	assert.Equal(t, "flag-actor", getActor())

	actorFlag = ""
	assert.Equal(t, "env-actor", getActor())
}

func TestNeedsWorkspace(t *testing.T) {
	parent := &cobra.Command{Use: "autodev"}
	initCommand := &cobra.Command{Use: "init"}
	gateCommand := &cobra.Command{Use: "gate"}
	gateMark := &cobra.Command{Use: "mark"}
	parent.AddCommand(initCommand, gateCommand)
	gateCommand.AddCommand(gateMark)

	assert.False(t, needsWorkspace(initCommand))
	assert.True(t, needsWorkspace(gateCommand))
	assert.True(t, needsWorkspace(gateMark))

	// hook answers in decision JSON itself when no workspace exists, so
	// the generic missing-workspace exit must not fire for it.
	assert.False(t, needsWorkspace(hookCmd))
}

func TestDefaultPolicyJSONParsesBack(t *testing.T) {
	data, err := defaultPolicyJSON()
	require.NoError(t, err)

	policy, err := gate.ParsePolicy(data)
	require.NoError(t, err)

	stop, ok := policy.Hooks[gate.HookStop]
	require.True(t, ok)
	assert.Equal(t, "strict", stop.Gates["tests-pass"].Mode)
	assert.Equal(t, "soft", stop.Gates["clean-tree"].Mode)
}

func TestSoftCopyRegistryDowngradesOnlyTargetHook(t *testing.T) {
	reg := gate.NewRegistry()
	gate.RegisterBuiltinGates(reg)

	soft := softCopyRegistry(reg, gate.HookStop)

	for _, g := range soft.GatesForHook(gate.HookStop) {
		assert.Equal(t, gate.GateModeSoft, g.Mode, "gate %s", g.ID)
	}
	// PreToolUse gates keep their registered modes.
	var found bool
	for _, g := range soft.GatesForHook(gate.HookPreToolUse) {
		if g.ID == "destructive-op" {
			found = true
			assert.Equal(t, gate.GateModeStrict, g.Mode)
		}
	}
	require.True(t, found)

	// The copy must not mutate the original.
	for _, g := range reg.GatesForHook(gate.HookStop) {
		if g.ID == "tests-pass" {
			assert.Equal(t, gate.GateModeStrict, g.Mode)
		}
	}
}

func TestCheckPromptAlignment(t *testing.T) {
	dir := t.TempDir()
	charter := `# Payments

## Goals

- Build a reliable payments ledger service

## Non-Goals

- Mobile application work
`
	writeFile(t, dir, "PROJECT.md", charter)

	assert.Empty(t, checkPromptAlignment(dir, "improve the payments ledger"))
	warning := checkPromptAlignment(dir, "start the mobile application rewrite")
	assert.Contains(t, warning, "non-goal")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
