package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(args ...string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "qxy.yaml")
	yml := `
lattice: {kind: chain, lx: 4, ly: 1, bc: open}
tmax: 3
thetas: [0.4]
shots: 20
machine: H1-1SC
ed:
  lattice: {kind: chain, lx: 4, ly: 1, bc: open}
  points: 4
ground: {l: 4, bond_dim: 4}
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yml), 0644))
	runDir := filepath.Join(dir, "run")

	require.NoError(t, execute("lattice", "-c", cfgPath, "-d", runDir))
	require.NoError(t, execute("ed", "-c", cfgPath, "-d", runDir))
	require.FileExists(t, filepath.Join(runDir, "plots", "01_ed_order_parameter.png"))

	require.NoError(t, execute("submit", "--wait", "-c", cfgPath, "-d", runDir))
	require.FileExists(t, filepath.Join(runDir, "qxy.db"))
	require.FileExists(t, filepath.Join(runDir, "data", "XY_theta=0.40.json"))
	require.NoError(t, execute("plot", "-c", cfgPath, "-d", runDir))
	require.FileExists(t, filepath.Join(runDir, "plots", "07_order_parameter_vs_time.png"))

	require.NoError(t, execute("ground", "-c", cfgPath, "-d", runDir))
}

func TestCommandErrors(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, execute("lattice", "-c", filepath.Join(dir, "missing.yaml")))
	require.Error(t, execute("ed", "extra"))
	require.Error(t, execute("unknown"))

	// Emulator jobs are lost when the command exits.
	runDir := filepath.Join(dir, "run")
	require.Error(t, execute("submit", "-d", runDir))
	require.Error(t, execute("retrieve", "-d", runDir))
	require.NoFileExists(t, filepath.Join(runDir, "qxy.db"))
}
