/*package smooth implements Gaussian-weighted interpolation between checkpoint
values distributed over a rotation scan. A GaussianSmoother fixes a set of
checkpoint positions over a scan coordinate range; the checkpoint values
themselves are held elsewhere (see the params package) and passed in at
evaluation time.
*/
package smooth

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfiguration is wrapped by errors returned for invalid smoother
// construction or smoothing settings.
var ErrConfiguration = errors.New("invalid smoother configuration")

// GaussianSmoother interpolates a value at any scan coordinate from
// checkpoint values at fixed positions, weighting nearby checkpoints by a
// Gaussian in normalized coordinate distance. One smoother is shared by every
// parameter set varying along the same scan coordinate basis.
type GaussianSmoother struct {
	x0         float64
	nIntervals int
	nPoints    int
	spacing    float64
	positions  []float64

	nAverage    int
	halfAverage float64
	sigma       float64
}

// NewGaussianSmoother creates a smoother covering the raw coordinate range
// [xStart, xEnd] subdivided into numIntervals sample intervals. Smoothing
// defaults to three averaged checkpoints with a derived sigma; call
// SetSmoothing to change this.
func NewGaussianSmoother(
	xStart, xEnd float64, numIntervals int,
) (*GaussianSmoother, error) {
	if numIntervals <= 0 {
		return nil, fmt.Errorf(
			"%w: numIntervals = %d, but at least one sample interval "+
				"is needed", ErrConfiguration, numIntervals,
		)
	}

	s := &GaussianSmoother{
		x0:         xStart,
		nIntervals: numIntervals,
		spacing:    (xEnd - xStart) / float64(numIntervals),
	}

	switch numIntervals {
	case 1:
		s.nPoints = 2
	case 2:
		s.nPoints = 3
	default:
		s.nPoints = numIntervals + 2
	}

	// The 2- and 3-checkpoint position tables are pinned as explicit cases.
	// Only larger checkpoint counts use the offset formula, which places the
	// first checkpoint at -0.5.
	switch s.nPoints {
	case 2:
		s.positions = []float64{1.0, 2.0}
	case 3:
		s.positions = []float64{0.0, 1.0, 2.0}
	default:
		s.positions = make([]float64, s.nPoints)
		for i := range s.positions {
			s.positions[i] = float64(i) - 0.5
		}
	}

	if err := s.SetSmoothing(3, -1.0); err != nil {
		return nil, err
	}
	return s, nil
}

// SetSmoothing sets the number of checkpoints included in each interpolation
// window and the width of the Gaussian used for smoothing. numAverage must be
// in [1, 5] and is clamped to the checkpoint count if larger. A negative
// sigma selects a suitable width for the (clamped) window size.
func (s *GaussianSmoother) SetSmoothing(numAverage int, sigma float64) error {
	if numAverage < 1 || numAverage > 5 {
		return fmt.Errorf(
			"%w: numAverage must be between 1 and 5, got %d",
			ErrConfiguration, numAverage,
		)
	}
	if numAverage > s.nPoints {
		numAverage = s.nPoints
	}

	s.nAverage = numAverage
	s.halfAverage = float64(numAverage) / 2
	s.sigma = sigma
	if sigma < 0 {
		// 0.65, 0.7, 0.75, 0.8 for numAverage = 2, 3, 4, 5.
		s.sigma = 0.65 + 0.05*float64(numAverage-2)
	}
	return nil
}

// ValueWeight returns the interpolated value at the raw coordinate x for the
// given checkpoint values, along with the weight given to each checkpoint and
// the sum of weights. The weight slice has one entry per checkpoint; entries
// outside the smoothing window are exactly zero. An optional output slice can
// be supplied to prevent a heap allocation on this path.
//
// The values slice must hold exactly NumCheckpoints values.
func (s *GaussianSmoother) ValueWeight(
	x float64, values []float64, out ...[]float64,
) (value float64, weight []float64, sumWeight float64) {
	if len(values) != s.nPoints {
		panic(fmt.Sprintf("GaussianSmoother with %d checkpoints given %d "+
			"values.", s.nPoints, len(values)))
	}

	if len(out) == 0 {
		weight = make([]float64, s.nPoints)
	} else {
		weight = out[0]
		if len(weight) != s.nPoints {
			panic(fmt.Sprintf("GaussianSmoother with %d checkpoints given "+
				"an output slice of length %d.", s.nPoints, len(weight)))
		}
		for i := range weight {
			weight[i] = 0
		}
	}

	// Normalized coordinate.
	z := (x - s.x0) / s.spacing

	// With three checkpoints or fewer every checkpoint contributes.
	// Otherwise center a window of nAverage checkpoints on z, clamped to the
	// ends of the scan while always spanning at least two checkpoints.
	i1, i2 := 0, s.nPoints
	if s.nPoints > 3 {
		i1 = int(math.Round(z-s.halfAverage)) + 1
		i2 = i1 + s.nAverage
		if i1 < 0 {
			i1 = 0
			if i2 < 2 {
				i2 = 2
			}
		}
		if i2 > s.nPoints {
			i2 = s.nPoints
			if i1 > s.nPoints-2 {
				i1 = s.nPoints - 2
			}
		}
	}

	sumWV := 0.0
	for i := i1; i < i2; i++ {
		ds := (z - s.positions[i]) / s.sigma
		weight[i] = math.Exp(-ds * ds)
		sumWV += weight[i] * values[i]
		sumWeight += weight[i]
	}

	// sumWeight can only vanish if sigma underflows the window distances.
	if sumWeight > 0 {
		value = sumWV / sumWeight
	}
	return value, weight, sumWeight
}

// NumCheckpoints returns the number of checkpoints. Every parameter set
// attached to this smoother must hold exactly this many values.
func (s *GaussianSmoother) NumCheckpoints() int { return s.nPoints }

// NumIntervals returns the number of sample intervals.
func (s *GaussianSmoother) NumIntervals() int { return s.nIntervals }

// NumAverage returns the number of checkpoints included in each
// interpolation window.
func (s *GaussianSmoother) NumAverage() int { return s.nAverage }

// Sigma returns the width of the smoothing Gaussian, in normalized
// coordinate units.
func (s *GaussianSmoother) Sigma() float64 { return s.sigma }

// Spacing returns the raw coordinate width of one sample interval.
func (s *GaussianSmoother) Spacing() float64 { return s.spacing }

// Positions returns the checkpoint positions in normalized coordinates. The
// returned slice is owned by the smoother and must not be modified.
func (s *GaussianSmoother) Positions() []float64 { return s.positions }
