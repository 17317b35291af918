package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fmukit/fmukit/internal/core/fmu"
	"github.com/fmukit/fmukit/internal/core/modeldesc"
	"github.com/fmukit/fmukit/internal/core/observability/log"
	"github.com/fmukit/fmukit/internal/core/sim"
	"github.com/fmukit/fmukit/internal/core/slave"
)

// packModel zips a registered model's description into a throwaway
// .fmu archive.
func packModel(t *testing.T, identifier string) string {
	t.Helper()

	desc, err := slave.Describe(identifier)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, desc.Encode(&buf))

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, fmu.DescriptionFileName), buf.Bytes(), 0o644))

	path := filepath.Join(t.TempDir(), identifier+".fmu")
	require.NoError(t, fmu.Pack(src, path))
	return path
}

func TestOpenLibrary(t *testing.T) {
	t.Run("identifier", func(t *testing.T) {
		lib, cleanup, err := openLibrary("BouncingBall")
		require.NoError(t, err)
		defer cleanup()
		require.Equal(t, "BouncingBall", lib.Description().ModelName)
	})

	t.Run("archive", func(t *testing.T) {
		lib, cleanup, err := openLibrary(packModel(t, "PlanarBall"))
		require.NoError(t, err)
		defer cleanup()
		require.Equal(t, "PlanarBall", lib.Description().ModelName)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		_, _, err := openLibrary("NoSuchModel")
		require.ErrorIs(t, err, slave.ErrModelNotRegistered)
	})
}

func TestResolveDescription(t *testing.T) {
	desc, cleanup, err := resolveDescription("BouncingBall")
	require.NoError(t, err)
	cleanup()
	require.Equal(t, "BouncingBall", desc.ModelName)

	desc, cleanup, err = resolveDescription(packModel(t, "BouncingBall"))
	require.NoError(t, err)
	defer cleanup()
	require.Equal(t, "BouncingBall", desc.ModelName)
}

func TestApplySets(t *testing.T) {
	desc, err := slave.Describe("PlanarBall")
	require.NoError(t, err)

	t.Run("real and integer", func(t *testing.T) {
		var exp sim.Experiment
		err := applySets(desc, &exp, []string{"mass=2.5", "instanceID=7"})
		require.NoError(t, err)
		require.Equal(t, 2.5, exp.Parameters["mass"])
		require.Equal(t, int32(7), exp.IntegerParameters["instanceID"])
	})

	t.Run("malformed pair", func(t *testing.T) {
		var exp sim.Experiment
		err := applySets(desc, &exp, []string{"mass"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "name=value")
	})

	t.Run("unknown variable", func(t *testing.T) {
		var exp sim.Experiment
		err := applySets(desc, &exp, []string{"spin=1"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "spin")
	})

	t.Run("bad number", func(t *testing.T) {
		var exp sim.Experiment
		err := applySets(desc, &exp, []string{"mass=heavy"})
		require.Error(t, err)
	})

	t.Run("unsupported type", func(t *testing.T) {
		boolDesc := &modeldesc.Description{
			ModelVariables: modeldesc.ModelVariables{Variables: []modeldesc.ScalarVariable{{
				Name:    "enabled",
				Boolean: &modeldesc.BooleanType{},
			}}},
		}
		var exp sim.Experiment
		err := applySets(boolDesc, &exp, []string{"enabled=true"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "Boolean")
	})
}

func TestRunSimulationWritesCSV(t *testing.T) {
	logger = log.Nop()
	out := filepath.Join(t.TempDir(), "ball.csv")

	flags := runCmd.Flags()
	require.NoError(t, flags.Set("stop", "1"))
	require.NoError(t, flags.Set("step", "0.5"))
	require.NoError(t, flags.Set("out", out))
	require.NoError(t, flags.Set("set", "h_start=12"))
	t.Cleanup(func() {
		runOut = ""
		runSets = nil
	})

	require.NoError(t, runSimulation(runCmd, []string{"BouncingBall"}))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Equal(t, []string{"time", "h_m", "v_m_s"}, rows[0])
	require.Len(t, rows, 3)

	last := rows[len(rows)-1]
	tFinal, err := strconv.ParseFloat(last[0], 64)
	require.NoError(t, err)
	require.InDelta(t, 1.0, tFinal, 1e-9)

	h, err := strconv.ParseFloat(last[1], 64)
	require.NoError(t, err)
	require.InDelta(t, 12-9.81/2, h, 0.01)
}
