/*package params implements scan-varying model parameterisation: checkpoint
value containers, and the aggregation layer that presents a collection of
smoothed parameter sets to a least-squares solver as a flat parameter vector
with per-parameter state derivatives.
*/
package params

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Kind tags the physical role of a parameter. It is carried through opaquely.
type Kind string

const (
	KindAngle  Kind = "angle (rad)"
	KindLength Kind = "length (mm)"
)

// Set holds the checkpoint values of one scan-varying scalar quantity. The
// effective value at an arbitrary scan coordinate is obtained by smoothed
// interpolation between the checkpoints (see smooth.GaussianSmoother).
// Externally, each checkpoint is presented as one parameter.
type Set struct {
	values []float64
	esds   []float64
	axis   r3.Vec
	kind   Kind
	stem   string
	names  []string
	fixed  bool
}

// NewSet creates a parameter set with numSamples checkpoints, every one
// initialized to value. numSamples must be at least 2; a quantity with a
// single checkpoint should use a scan-static parameterisation instead. The
// axis describes the physical axis the parameter acts along; it is opaque to
// this package.
func NewSet(
	value float64, numSamples int, axis r3.Vec, kind Kind, name string,
) (*Set, error) {
	if numSamples < 2 {
		return nil, fmt.Errorf(
			"%w: parameter set %s needs at least 2 checkpoints, got %d",
			ErrConfiguration, name, numSamples,
		)
	}

	s := &Set{
		values: make([]float64, numSamples),
		esds:   make([]float64, numSamples),
		axis:   axis,
		kind:   kind,
		stem:   name,
		names:  make([]string, numSamples),
	}
	for i := range s.values {
		s.values[i] = value
		s.esds[i] = math.NaN()
		s.names[i] = sampleName(name, i)
	}
	return s, nil
}

// sampleName derives the externally visible name of checkpoint i of a
// parameter set from the set's name stem.
func sampleName(stem string, i int) string {
	return fmt.Sprintf("%s_sample%d", stem, i)
}

// Len returns the number of checkpoints. This is fixed at construction.
func (s *Set) Len() int { return len(s.values) }

// Values returns the checkpoint values. The returned slice is owned by the
// set and must not be modified; use SetValues to replace values.
func (s *Set) Values() []float64 { return s.values }

// SetValues replaces every checkpoint value. The stored ESDs become unknown,
// since they described the previous values. Values are copied in.
func (s *Set) SetValues(values []float64) error {
	if len(values) != len(s.values) {
		return fmt.Errorf(
			"%w: parameter set %s holds %d checkpoints, given %d values",
			ErrLengthMismatch, s.stem, len(s.values), len(values),
		)
	}
	copy(s.values, values)
	for i := range s.esds {
		s.esds[i] = math.NaN()
	}
	return nil
}

// ESDs returns the estimated standard deviation of each checkpoint value.
// Entries are NaN until SetESDs is called, and revert to NaN whenever the
// values are replaced. The returned slice is owned by the set.
func (s *Set) ESDs() []float64 { return s.esds }

// SetESDs stores per-checkpoint uncertainties, typically after refinement
// has converged.
func (s *Set) SetESDs(esds []float64) error {
	if len(esds) != len(s.esds) {
		return fmt.Errorf(
			"%w: parameter set %s holds %d checkpoints, given %d esds",
			ErrLengthMismatch, s.stem, len(s.esds), len(esds),
		)
	}
	copy(s.esds, esds)
	return nil
}

// Fixed reports whether the set is excluded from the optimizer-visible
// parameter vector.
func (s *Set) Fixed() bool { return s.fixed }

// SetFixed fixes or frees the set. Stored values are not altered. When the
// set belongs to a ModelParameterisation, fix it through
// ModelParameterisation.FixSet instead so the free-parameter index stays
// current.
func (s *Set) SetFixed(fixed bool) { s.fixed = fixed }

// Names returns the derived per-checkpoint parameter names.
func (s *Set) Names() []string { return s.names }

// NameStem returns the base name the checkpoint names derive from.
func (s *Set) NameStem() string { return s.stem }

// Axis returns the physical axis this parameter acts along.
func (s *Set) Axis() r3.Vec { return s.axis }

// Kind returns the physical role tag.
func (s *Set) Kind() Kind { return s.kind }
