// Package math provides the small vector toolkit used by mesh conversion.
package math

import "math"

// Vec3 is a 3D vector.
type Vec3 struct {
	X, Y, Z float32
}

// V3 builds a Vec3 from an array.
func V3(a [3]float32) Vec3 {
	return Vec3{a[0], a[1], a[2]}
}

// Array returns the components as an array.
func (v Vec3) Array() [3]float32 {
	return [3]float32{v.X, v.Y, v.Z}
}

// Scale returns v * scalar.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Negate returns -v.
func (v Vec3) Negate() Vec3 {
	return Vec3{-v.X, -v.Y, -v.Z}
}

// Dot returns the dot product.
func (v Vec3) Dot(other Vec3) float32 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Length returns the magnitude.
func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Normalize returns a unit vector, or the zero vector for zero input.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// YUp converts from the engine's Z-up right-handed axes to the Y-up
// interchange axes: (x, y, z) becomes (-x, z, y).
func (v Vec3) YUp() Vec3 {
	return Vec3{-v.X, v.Z, v.Y}
}

// YUpPosition is YUp for a float32 array, widened to float64.
func YUpPosition(p [3]float32) [3]float64 {
	return [3]float64{-float64(p[0]), float64(p[2]), float64(p[1])}
}

// YUpRotation converts engine Euler angles in degrees (pitch, yaw, roll) to
// Y-up Euler angles in radians: (-roll, yaw, pitch).
func YUpRotation(angles [3]float32) [3]float64 {
	return [3]float64{
		-float64(angles[2]) * math.Pi / 180,
		float64(angles[1]) * math.Pi / 180,
		float64(angles[0]) * math.Pi / 180,
	}
}
