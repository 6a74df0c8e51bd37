package cmd

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/diffractio/scanfit/geom"
	"github.com/diffractio/scanfit/logging"
	"github.com/diffractio/scanfit/parse"
	"github.com/diffractio/scanfit/refiner"
	"github.com/diffractio/scanfit/smooth"
)

// RefineConfig contains the configuration fields for the 'refine' mode of the
// scanfit tool.
type RefineConfig struct {
	model string

	coordStart, coordEnd     float64
	numIntervals, numAverage int64
	sigma                    float64
	numObservations, seed    int64
	spread, noise            float64
	maxIterations            int64
	tolerance, maxResidual   float64
	fixSets                  []int64
}

var _ Mode = &RefineConfig{}

// ExampleConfig creates an example refine.config file.
func (config *RefineConfig) ExampleConfig() string {
	return `[refine.config]
#####################
## Required Fields ##
#####################

# Model selects which scan-varying parameterisation is refined. It can be set
# to the following modes:
# detector - three translation sets along the detector axes
# beam     - two rotation sets perpendicular to the beam
# crystal  - three rotation sets about the laboratory axes
# cell     - six metric tensor element sets
Model = detector

# Start and end of the scan coordinate range covered by the smoother.
CoordStart = 0
CoordEnd = 100

# Number of smoothing intervals across the scan range.
NumIntervals = 5

#####################
## Optional Fields ##
#####################

# NumAverage is the number of checkpoints averaged into each smoothed value.
# It must be between 1 and 5. Defaults to 3 if not set.
#
# NumAverage = 3

# Sigma is the width of the Gaussian smoothing kernel in units of the
# checkpoint spacing. Non-positive values select a width matched to
# NumAverage, which is almost always what you want.
#
# Sigma = -1

# NumObservations is the number of synthetic observation coordinates spread
# evenly over the scan range. Every extractable element of the model state is
# observed at each coordinate. Defaults to 100.
#
# NumObservations = 100

# Spread sets the size of the random checkpoint offsets used to build the
# synthetic truth, in the natural units of the model's parameters. Defaults
# to 0.01.
#
# Spread = 0.01

# Noise is the standard deviation of the Gaussian noise added to each
# observation. Zero gives noiseless observations with unit weights. Defaults
# to 0.
#
# Noise = 0

# Seed for the random number generator used to build the truth and the
# noise. Defaults to 0.
#
# Seed = 0

# MaxIterations and Tolerance control the refinement loop. Refinement stops
# when the relative change in RMSD drops below Tolerance or after
# MaxIterations updates, whichever comes first.
#
# MaxIterations = 20
# Tolerance = 1e-6

# MaxResidual, if positive, rejects observations whose unweighted residual
# after a first refinement pass exceeds it, then refines again on the
# surviving observations.
#
# MaxResidual = -1

# FixSets is a list of parameter set indices held at their starting values
# during refinement.
#
# FixSets =
`
}

// ReadConfig reads a refine.config file into config.
func (config *RefineConfig) ReadConfig(fname string) error {
	vars := parse.NewConfigVars("refine.config")

	vars.String(&config.model, "Model", "")
	vars.Float(&config.coordStart, "CoordStart", 0)
	vars.Float(&config.coordEnd, "CoordEnd", 0)
	vars.Int(&config.numIntervals, "NumIntervals", 0)
	vars.Int(&config.numAverage, "NumAverage", 3)
	vars.Float(&config.sigma, "Sigma", -1)
	vars.Int(&config.numObservations, "NumObservations", 100)
	vars.Float(&config.spread, "Spread", 0.01)
	vars.Float(&config.noise, "Noise", 0)
	vars.Int(&config.seed, "Seed", 0)
	vars.Int(&config.maxIterations, "MaxIterations", 20)
	vars.Float(&config.tolerance, "Tolerance", 1e-6)
	vars.Float(&config.maxResidual, "MaxResidual", -1)
	vars.Ints(&config.fixSets, "FixSets", []int64{})

	if err := parse.ReadConfig(fname, vars); err != nil {
		return err
	}
	return config.validate()
}

func (config *RefineConfig) validate() error {
	switch config.model {
	case "detector", "beam", "crystal", "cell":
	case "":
		return fmt.Errorf("The 'Model' variable isn't set.")
	default:
		return fmt.Errorf("The 'Model' variable is set to '%s', "+
			"which I don't recognize.", config.model)
	}

	if config.coordEnd <= config.coordStart {
		return fmt.Errorf("'CoordEnd' (%g) must be larger than "+
			"'CoordStart' (%g).", config.coordEnd, config.coordStart)
	}
	if config.numIntervals <= 0 {
		return fmt.Errorf("The 'NumIntervals' variable is set to %d, "+
			"but it must be positive.", config.numIntervals)
	}
	if config.numObservations <= 0 {
		return fmt.Errorf("The 'NumObservations' variable is set to %d, "+
			"but it must be positive.", config.numObservations)
	}
	if config.noise < 0 {
		return fmt.Errorf("The 'Noise' variable is set to %g, "+
			"but it can't be negative.", config.noise)
	}

	return nil
}

// Run executes the refine mode: it builds a randomly perturbed truth model,
// observes its state elements across the scan range, and refines a second
// model of the same shape against those observations.
func (config *RefineConfig) Run(
	flags []string, gConfig *GlobalConfig,
) ([]string, error) {
	log := logging.Logger()

	truth, err := config.buildModel()
	if err != nil {
		return nil, err
	}
	model, err := config.buildModel()
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(config.seed))
	values := truth.Values(true)
	for i := range values {
		values[i] += config.spread * (2*rng.Float64() - 1)
	}
	if err := truth.SetValues(values); err != nil {
		return nil, err
	}

	obs, err := config.observe(truth, rng)
	if err != nil {
		return nil, err
	}
	log.Infow("generated synthetic observations",
		"model", config.model,
		"observations", len(obs),
		"free", model.NumFree(),
		"noise", config.noise,
	)

	gn := refiner.GaussNewton{
		MaxIterations: int(config.maxIterations),
		Tolerance:     config.tolerance,
	}
	target := &refiner.Target{Model: model, Obs: obs}
	res, err := gn.RefineWithRejection(target, config.maxResidual)
	if err != nil {
		return nil, err
	}
	log.Infow("refinement finished",
		"iterations", res.Iterations,
		"converged", res.Converged,
		"rmsd", res.RMSD[len(res.RMSD)-1],
		"rejected", res.Rejected,
	)
	if !res.Converged {
		log.Warnw("refinement did not converge",
			"maxIterations", config.maxIterations)
	}
	log.Debugw("refinement memory", "stats", logging.MemString())

	return config.report(model, truth, res), nil
}

// buildModel constructs the scan-varying parameterisation selected by the
// Model variable, with all its parameter sets at their resting values.
func (config *RefineConfig) buildModel() (refiner.Model, error) {
	smoother, err := smooth.NewGaussianSmoother(
		config.coordStart, config.coordEnd, int(config.numIntervals))
	if err != nil {
		return nil, err
	}
	err = smoother.SetSmoothing(int(config.numAverage), config.sigma)
	if err != nil {
		return nil, err
	}

	var model refiner.Model
	switch config.model {
	case "detector":
		model, err = geom.NewDetectorOrigin(nil,
			r3.Vec{X: -200, Y: 150, Z: -250},
			r3.Vec{X: 1}, r3.Vec{Y: -1}, smoother)
	case "beam":
		model, err = geom.NewBeamDirection(nil, r3.Vec{Z: -1}, smoother)
	case "crystal":
		model, err = geom.NewCrystalOrientation(nil, eye3(), smoother)
	case "cell":
		g0 := mat.NewSymDense(3, []float64{
			0.01, 0, 0,
			0, 0.02, 0,
			0, 0, 0.04,
		})
		model, err = geom.NewUnitCell(nil, g0, smoother)
	default:
		panic("impossible model: " + config.model)
	}
	if err != nil {
		return nil, err
	}

	fixer, ok := model.(interface{ FixSet(i int, fixed bool) })
	if !ok {
		panic("model does not support fixing sets")
	}
	for _, i := range config.fixSets {
		fixer.FixSet(int(i), true)
	}
	return model, nil
}

// observe composes truth across the scan range and records every state
// element at every coordinate, with optional Gaussian noise.
func (config *RefineConfig) observe(
	truth refiner.Model, rng *rand.Rand,
) ([]refiner.Observation, error) {
	weight := 1.0
	if config.noise > 0 {
		weight = 1 / (config.noise * config.noise)
	}

	n := int(config.numObservations)
	step := 0.0
	if n > 1 {
		step = (config.coordEnd - config.coordStart) / float64(n-1)
	}

	var obs []refiner.Observation
	for i := 0; i < n; i++ {
		t := config.coordStart + float64(i)*step
		if err := truth.Compose(t); err != nil {
			return nil, err
		}
		state, err := truth.State()
		if err != nil {
			return nil, err
		}

		rows, cols := state.Dims()
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				value := state.At(r, c)
				if config.noise > 0 {
					value += config.noise * rng.NormFloat64()
				}
				obs = append(obs, refiner.Observation{
					T:      t,
					Value:  value,
					Weight: weight,
					Of:     refiner.Element{Row: r, Col: c},
				})
			}
		}
	}
	return obs, nil
}

// report formats the refined parameters next to the truth they were fit
// against.
func (config *RefineConfig) report(
	model, truth refiner.Model, res *refiner.Result,
) []string {
	names := model.Names(true)
	fitted := model.Values(true)
	wanted := truth.Values(true)

	lines := []string{
		fmt.Sprintf("# scanfit refine: model = %s", config.model),
		fmt.Sprintf("# iterations = %d, converged = %t, rejected = %d",
			res.Iterations, res.Converged, res.Rejected),
		fmt.Sprintf("# final rmsd = %.6g", res.RMSD[len(res.RMSD)-1]),
		"# parameter refined esd truth",
	}
	for i, name := range names {
		esd := math.NaN()
		if i < len(res.ESDs) {
			esd = res.ESDs[i]
		}
		lines = append(lines, fmt.Sprintf("%s %.10g %.4g %.10g",
			name, fitted[i], esd, wanted[i]))
	}
	return lines
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}
