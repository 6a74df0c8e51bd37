package refiner

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultMaxIterations = 20
	defaultTolerance     = 1e-6
)

// GaussNewton iteratively solves the linearized normal equations of a
// Target. The zero value uses default settings.
type GaussNewton struct {
	// MaxIterations bounds the number of solve/update steps.
	MaxIterations int
	// Tolerance is the relative change in RMSD below which the refinement
	// is considered converged.
	Tolerance float64
}

// Result reports one refinement run.
type Result struct {
	// Iterations is the number of parameter updates applied.
	Iterations int
	// Converged reports whether the RMSD change dropped below tolerance
	// before MaxIterations was reached.
	Converged bool
	// RMSD holds the weighted root-mean-square residual at the start of
	// each iteration, and, last, at the final parameter values.
	RMSD []float64
	// Residuals holds the final weighted residuals.
	Residuals []float64
	// MeanResidual and StdDevResidual summarize the final residuals.
	MeanResidual, StdDevResidual float64
	// ESDs holds the estimated standard deviation of each free parameter,
	// in the same order as the model's flattened value vector. Also written
	// back to the model's parameter sets.
	ESDs []float64
	// Rejected is the number of observations discarded by outlier
	// rejection, if any was requested.
	Rejected int
}

// Refine runs Gauss-Newton iterations until convergence, updating the
// model's free parameters in place. After the run the model is left composed
// at the last observation coordinate with the refined values.
func (gn GaussNewton) Refine(target *Target) (*Result, error) {
	maxIter := gn.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	tol := gn.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}

	m := target.Model
	nParams := m.NumFree()
	nObs := target.NumResiduals()
	if nObs < nParams {
		return nil, fmt.Errorf("%w: %d observations, %d free parameters",
			ErrTooFewObservations, nObs, nParams)
	}

	r := make([]float64, nObs)
	jac := mat.NewDense(nObs, nParams, nil)
	rhs := mat.NewVecDense(nObs, nil)
	var (
		qr mat.QR
		dp mat.VecDense
	)

	res := &Result{}
	prev := math.Inf(1)
	for iter := 0; iter < maxIter; iter++ {
		if err := target.Linearize(r, jac); err != nil {
			return nil, err
		}
		rmsd := floats.Norm(r, 2) / math.Sqrt(float64(nObs))
		res.RMSD = append(res.RMSD, rmsd)

		// The floor keeps the threshold meaningful once the residuals
		// reach floating-point noise.
		if math.Abs(prev-rmsd) <= tol*math.Max(rmsd, 1) {
			res.Converged = true
			break
		}
		prev = rmsd

		qr.Factorize(jac)
		for i := range r {
			rhs.SetVec(i, -r[i])
		}
		if err := qr.SolveVecTo(&dp, false, rhs); err != nil {
			return nil, fmt.Errorf("linearized solve failed: %w", err)
		}

		p := m.Values(true)
		for j := range p {
			p[j] += dp.AtVec(j)
		}
		if err := m.SetValues(p); err != nil {
			return nil, err
		}
		res.Iterations++
	}

	// Final linearization at the refined values, for the residual report
	// and the variance-covariance estimate.
	if err := target.Linearize(r, jac); err != nil {
		return nil, err
	}
	if !res.Converged {
		res.RMSD = append(res.RMSD,
			floats.Norm(r, 2)/math.Sqrt(float64(nObs)))
	}
	res.Residuals = append([]float64{}, r...)
	res.MeanResidual = stat.Mean(r, nil)
	res.StdDevResidual = stat.StdDev(r, nil)

	esds, err := parameterESDs(r, jac, nParams)
	if err != nil {
		return nil, err
	}
	res.ESDs = esds
	if err := m.SetESDs(esds); err != nil {
		return nil, err
	}

	return res, nil
}

// RefineWithRejection refines, discards observations whose unweighted
// residual exceeds maxAbsResidual, and refines again on the survivors. A
// cutoff of zero or less disables rejection.
func (gn GaussNewton) RefineWithRejection(
	target *Target, maxAbsResidual float64,
) (*Result, error) {
	res, err := gn.Refine(target)
	if err != nil {
		return nil, err
	}
	if maxAbsResidual <= 0 {
		return res, nil
	}

	raw := make([]float64, len(target.Obs))
	if err := target.rawResiduals(raw); err != nil {
		return nil, err
	}
	kept := make([]Observation, 0, len(target.Obs))
	for i, obs := range target.Obs {
		if math.Abs(raw[i]) <= maxAbsResidual {
			kept = append(kept, obs)
		}
	}
	if len(kept) == len(target.Obs) {
		return res, nil
	}

	res, err = gn.Refine(&Target{Model: target.Model, Obs: kept})
	if err != nil {
		return nil, err
	}
	res.Rejected = len(target.Obs) - len(kept)
	return res, nil
}

// parameterESDs estimates per-parameter standard deviations from the
// diagonal of the inverse normal matrix, scaled by the reduced chi-squared.
func parameterESDs(r []float64, jac *mat.Dense, nParams int) ([]float64, error) {
	var normal mat.Dense
	normal.Mul(jac.T(), jac)

	var inv mat.Dense
	if err := inv.Inverse(&normal); err != nil {
		return nil, fmt.Errorf("normal matrix is singular: %w", err)
	}

	redChi2 := 0.0
	if dof := len(r) - nParams; dof > 0 {
		redChi2 = floats.Dot(r, r) / float64(dof)
	}

	esds := make([]float64, nParams)
	for j := range esds {
		esds[j] = math.Sqrt(math.Abs(inv.At(j, j)) * redChi2)
	}
	return esds, nil
}
