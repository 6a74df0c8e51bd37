package cmd

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/diffractio/scanfit/logging"
	"github.com/diffractio/scanfit/params"
	"github.com/diffractio/scanfit/parse"
	"github.com/diffractio/scanfit/smooth"
)

// SmoothConfig contains the configuration fields for the 'smooth' mode of
// the scanfit tool.
type SmoothConfig struct {
	coordStart, coordEnd float64
	numIntervals         int64
	numAverage           int64
	sigma                float64
	values               []float64
	gridStep             float64
}

var _ Mode = &SmoothConfig{}

// ExampleConfig creates an example smooth.config file.
func (config *SmoothConfig) ExampleConfig() string {
	return `[smooth.config]
#####################
## Required Fields ##
#####################

# Start and end of the coordinate range covered by the smoother.
CoordStart = 0
CoordEnd = 100

# Number of smoothing intervals across the range. A smoother with one
# interval carries two checkpoints, one with two intervals carries three,
# and every larger smoother carries NumIntervals + 2.
NumIntervals = 5

# Checkpoint values to smooth. The list must have exactly one entry per
# checkpoint.
Values = 0.0, 0.5, 1.5, 2.0, 1.0, 0.5, 0.0

#####################
## Optional Fields ##
#####################

# NumAverage is the number of checkpoints averaged into each smoothed value.
# It must be between 1 and 5. Defaults to 3 if not set.
#
# NumAverage = 3

# Sigma is the width of the Gaussian smoothing kernel in units of the
# checkpoint spacing. Non-positive values select a width matched to
# NumAverage.
#
# Sigma = -1

# GridStep is the spacing of the coordinates the smoothed value is tabulated
# at. Defaults to a hundredth of the coordinate range.
#
# GridStep = 1
`
}

// ReadConfig reads a smooth.config file into config.
func (config *SmoothConfig) ReadConfig(fname string) error {
	vars := parse.NewConfigVars("smooth.config")

	vars.Float(&config.coordStart, "CoordStart", 0)
	vars.Float(&config.coordEnd, "CoordEnd", 0)
	vars.Int(&config.numIntervals, "NumIntervals", 0)
	vars.Int(&config.numAverage, "NumAverage", 3)
	vars.Float(&config.sigma, "Sigma", -1)
	vars.Floats(&config.values, "Values", []float64{})
	vars.Float(&config.gridStep, "GridStep", 0)

	if err := parse.ReadConfig(fname, vars); err != nil {
		return err
	}
	return config.validate()
}

func (config *SmoothConfig) validate() error {
	if config.coordEnd <= config.coordStart {
		return fmt.Errorf("'CoordEnd' (%g) must be larger than "+
			"'CoordStart' (%g).", config.coordEnd, config.coordStart)
	}
	if config.numIntervals <= 0 {
		return fmt.Errorf("The 'NumIntervals' variable is set to %d, "+
			"but it must be positive.", config.numIntervals)
	}
	if len(config.values) == 0 {
		return fmt.Errorf("The 'Values' variable isn't set.")
	}

	return nil
}

// Run tabulates the smoothed value, the Gaussian weights, and their sum over
// a grid of coordinates.
func (config *SmoothConfig) Run(
	flags []string, gConfig *GlobalConfig,
) ([]string, error) {
	log := logging.Logger()

	smoother, err := smooth.NewGaussianSmoother(
		config.coordStart, config.coordEnd, int(config.numIntervals))
	if err != nil {
		return nil, err
	}
	err = smoother.SetSmoothing(int(config.numAverage), config.sigma)
	if err != nil {
		return nil, err
	}

	n := smoother.NumCheckpoints()
	if len(config.values) != n {
		return nil, fmt.Errorf("The 'Values' variable has %d entries, but "+
			"a smoother with %d intervals has %d checkpoints.",
			len(config.values), config.numIntervals, n)
	}

	set, err := params.NewSet(0, n, r3.Vec{}, "value", "value")
	if err != nil {
		return nil, err
	}
	p, err := params.NewModelParameterisation(
		nil, mat.NewVecDense(1, nil), []*params.Set{set}, smoother)
	if err != nil {
		return nil, err
	}
	if err := p.SetValues(config.values); err != nil {
		return nil, err
	}

	step := config.gridStep
	if step <= 0 {
		step = (config.coordEnd - config.coordStart) / 100
	}
	log.Infow("tabulating smoothed values",
		"checkpoints", n,
		"numAverage", smoother.NumAverage(),
		"sigma", smoother.Sigma(),
		"gridStep", step,
	)

	lines := []string{
		fmt.Sprintf("# scanfit smooth: %d checkpoints, sigma = %.4g",
			n, smoother.Sigma()),
		"# coord value sumWeight weights...",
	}
	for x := config.coordStart; x <= config.coordEnd+step/2; x += step {
		vw := p.ValueWeightsAt(x, false)[0]
		cols := make([]string, 0, 3+n)
		cols = append(cols,
			fmt.Sprintf("%.6g", x),
			fmt.Sprintf("%.10g", vw.Value),
			fmt.Sprintf("%.10g", vw.SumWeight),
		)
		for _, w := range vw.Weights {
			cols = append(cols, fmt.Sprintf("%.6g", w))
		}
		lines = append(lines, strings.Join(cols, " "))
	}

	return lines, nil
}
