package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExampleFiles(t *testing.T) {
	tests := []Mode{
		&GlobalConfig{},
		&RefineConfig{},
		&SmoothConfig{},
	}

	dir := t.TempDir()
	for i := range tests {
		mode := tests[i]
		fname := filepath.Join(dir, "example.config")
		err := os.WriteFile(fname, []byte(mode.ExampleConfig()), 0666)
		require.NoError(t, err)

		err = mode.ReadConfig(fname)
		assert.NoError(t, err, "%d) example config did not parse", i)
	}
}

func TestGlobalConfigVersionMismatch(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "global.config")
	text := "[config]\nVersion = 0.0.1\n"
	require.NoError(t, os.WriteFile(fname, []byte(text), 0666))

	config := &GlobalConfig{}
	assert.Error(t, config.ReadConfig(fname))
}

func TestRefineConfigValidation(t *testing.T) {
	tests := []struct {
		text string
		ok   bool
	}{
		{"Model = detector\nCoordStart = 0\nCoordEnd = 90\n" +
			"NumIntervals = 3", true},
		{"Model = goniometer\nCoordStart = 0\nCoordEnd = 90\n" +
			"NumIntervals = 3", false},
		{"CoordStart = 0\nCoordEnd = 90\nNumIntervals = 3", false},
		{"Model = beam\nCoordStart = 90\nCoordEnd = 0\n" +
			"NumIntervals = 3", false},
		{"Model = beam\nCoordStart = 0\nCoordEnd = 90\n" +
			"NumIntervals = 0", false},
		{"Model = cell\nCoordStart = 0\nCoordEnd = 90\n" +
			"NumIntervals = 3\nNoise = -1", false},
	}

	dir := t.TempDir()
	for i := range tests {
		fname := filepath.Join(dir, "refine.config")
		text := "[refine.config]\n" + tests[i].text + "\n"
		require.NoError(t, os.WriteFile(fname, []byte(text), 0666))

		config := &RefineConfig{}
		err := config.ReadConfig(fname)
		if tests[i].ok {
			assert.NoError(t, err, "%d) config: %s", i, tests[i].text)
		} else {
			assert.Error(t, err, "%d) config: %s", i, tests[i].text)
		}
	}
}

func TestRefineRunRecoversTruth(t *testing.T) {
	config := &RefineConfig{
		model:           "detector",
		coordStart:      0,
		coordEnd:        100,
		numIntervals:    3,
		numAverage:      3,
		sigma:           -1,
		numObservations: 60,
		spread:          0.5,
		seed:            1,
		maxIterations:   20,
		tolerance:       1e-8,
		maxResidual:     -1,
	}

	lines, err := config.Run(nil, &GlobalConfig{})
	require.NoError(t, err)
	require.NotEmpty(t, lines)

	// Noiseless observations of a linear model: the refined values in the
	// report must match the truth column to full precision.
	for _, line := range lines {
		if line[0] == '#' {
			continue
		}
		var name string
		var fitted, esd, truth float64
		_, err := fmt.Sscan(line, &name, &fitted, &esd, &truth)
		require.NoError(t, err)
		assert.InDelta(t, truth, fitted, 1e-7, "parameter %s", name)
	}
}

func TestSmoothRunGrid(t *testing.T) {
	config := &SmoothConfig{
		coordStart:   0,
		coordEnd:     10,
		numIntervals: 2,
		numAverage:   3,
		sigma:        -1,
		values:       []float64{1, 1, 1},
		gridStep:     1,
	}

	lines, err := config.Run(nil, &GlobalConfig{})
	require.NoError(t, err)

	// 2 header lines plus the 11 grid coordinates 0 through 10.
	require.Len(t, lines, 13)
	for _, line := range lines[2:] {
		var x, value, sumWeight float64
		_, err := fmt.Sscan(line, &x, &value, &sumWeight)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, value, 1e-12)
		assert.Greater(t, sumWeight, 0.0)
	}
}
