/*package geom implements concrete scan-varying parameterisations of the
experimental geometry models: crystal orientation and unit cell, beam
direction, and detector origin. Each type embeds params.ModelParameterisation
and implements the Compose contract, turning smoothed parameter values into
a gonum model state and per-checkpoint state derivatives.
*/
package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// skewMatrixInto writes the cross-product matrix [e]x of axis into dst, so
// that dst * v == axis x v.
func skewMatrixInto(dst *mat.Dense, axis r3.Vec) {
	dst.SetRow(0, []float64{0, -axis.Z, axis.Y})
	dst.SetRow(1, []float64{axis.Z, 0, -axis.X})
	dst.SetRow(2, []float64{-axis.Y, axis.X, 0})
}

// SkewMatrix returns the cross-product matrix [e]x of axis.
func SkewMatrix(axis r3.Vec) *mat.Dense {
	k := mat.NewDense(3, 3, nil)
	skewMatrixInto(k, axis)
	return k
}

// rotationAboutInto writes the rotation by angle radians about the unit axis
// into dst, using the Rodrigues form R = I + sin(a) K + (1 - cos(a)) K^2.
func rotationAboutInto(dst *mat.Dense, axis r3.Vec, angle float64) {
	axis = r3.Unit(axis)
	sin, cos := math.Sincos(angle)

	x, y, z := axis.X, axis.Y, axis.Z
	oc := 1 - cos
	dst.SetRow(0, []float64{
		cos + x*x*oc, x*y*oc - z*sin, x*z*oc + y*sin,
	})
	dst.SetRow(1, []float64{
		y*x*oc + z*sin, cos + y*y*oc, y*z*oc - x*sin,
	})
	dst.SetRow(2, []float64{
		z*x*oc - y*sin, z*y*oc + x*sin, cos + z*z*oc,
	})
}

// RotationAbout returns the 3x3 rotation by angle radians about axis. The
// axis need not be normalized.
func RotationAbout(axis r3.Vec, angle float64) *mat.Dense {
	r := mat.NewDense(3, 3, nil)
	rotationAboutInto(r, axis, angle)
	return r
}
