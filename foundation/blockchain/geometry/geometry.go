// Package geometry provides the triangle primitives the chain's outputs are
// made of: points, triangles, shoelace areas, canonical hashing and the
// Sierpinski subdivision rule.
package geometry

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"
)

// Tolerance is the absolute threshold below which two coordinates or areas
// are considered equal.
const Tolerance = 1e-9

// MaxCoordinate bounds the magnitude of any vertex coordinate.
const MaxCoordinate = 1e10

// =============================================================================

// Point represents a location in the 2D plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint constructs a new point. Bounds are not checked here, use IsValid.
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y}
}

// IsValid reports whether both coordinates are finite and within bounds.
func (p Point) IsValid() bool {
	if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
		return false
	}
	return math.Abs(p.X) < MaxCoordinate && math.Abs(p.Y) < MaxCoordinate
}

// Midpoint returns the point halfway between p and other.
func (p Point) Midpoint(other Point) Point {
	return Point{
		X: (p.X + other.X) * 0.5,
		Y: (p.Y + other.Y) * 0.5,
	}
}

// Equals reports proximity equality between two points within Tolerance.
func (p Point) Equals(other Point) bool {
	return scalar.EqualWithinAbs(p.X, other.X, Tolerance) &&
		scalar.EqualWithinAbs(p.Y, other.Y, Tolerance)
}

// Hash returns the canonical hash of the point: SHA-256 over the
// little-endian bytes of X then Y.
func (p Point) Hash() [32]byte {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], math.Float64bits(p.X))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(p.Y))
	return sha256.Sum256(buf[:])
}

// =============================================================================

// Triangle is the unit of value on the chain: three vertices, a declared
// owner, a lineage link to the output it came from, and an optional explicit
// value that overrides the geometric area.
type Triangle struct {
	A          Point     `json:"a"`
	B          Point     `json:"b"`
	C          Point     `json:"c"`
	ParentHash *[32]byte `json:"parent_hash,omitempty"`
	Owner      string    `json:"owner"`
	Value      *float64  `json:"value,omitempty"`
}

// NewTriangle constructs a triangle whose effective value is its area.
func NewTriangle(a, b, c Point, parentHash *[32]byte, owner string) Triangle {
	return Triangle{A: a, B: b, C: c, ParentHash: parentHash, Owner: owner}
}

// NewTriangleWithValue constructs a triangle carrying an explicit value,
// used after fee deduction so the geometry stays untouched.
func NewTriangleWithValue(a, b, c Point, parentHash *[32]byte, owner string, value float64) Triangle {
	return Triangle{A: a, B: b, C: c, ParentHash: parentHash, Owner: owner, Value: &value}
}

// Area computes the triangle's area with the shoelace formula.
func (t Triangle) Area() float64 {
	v := t.A.X*(t.B.Y-t.C.Y) + t.B.X*(t.C.Y-t.A.Y) + t.C.X*(t.A.Y-t.B.Y)
	return math.Abs(v) / 2
}

// EffectiveValue returns the spendable quantity of the triangle: the
// explicit value when set, the geometric area otherwise.
func (t Triangle) EffectiveValue() float64 {
	if t.Value != nil {
		return *t.Value
	}
	return t.Area()
}

// Hash returns the canonical hash of the triangle: SHA-256 over the sorted
// concatenation of the three vertex hashes, so any vertex ordering of the
// same triangle hashes identically.
func (t Triangle) Hash() [32]byte {
	hashes := [][32]byte{t.A.Hash(), t.B.Hash(), t.C.Hash()}
	sort.Slice(hashes, func(i, j int) bool {
		for k := 0; k < 32; k++ {
			if hashes[i][k] != hashes[j][k] {
				return hashes[i][k] < hashes[j][k]
			}
		}
		return false
	})

	h := sha256.New()
	for _, hash := range hashes {
		h.Write(hash[:])
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// IsValid reports whether the triangle has in-bounds vertices and a
// non-degenerate area.
func (t Triangle) IsValid() bool {
	if !t.A.IsValid() || !t.B.IsValid() || !t.C.IsValid() {
		return false
	}
	return t.Area() > Tolerance
}

// Subdivide splits the triangle into its three corner sub-triangles by
// midpoint construction. The central sub-triangle is elided, so the children
// together cover 75% of the parent's area. Children inherit the owner, and
// when the parent carried an explicit value each child gets a third of it.
func (t Triangle) Subdivide() [3]Triangle {
	midAB := t.A.Midpoint(t.B)
	midBC := t.B.Midpoint(t.C)
	midCA := t.C.Midpoint(t.A)

	parentHash := t.Hash()

	var childValue *float64
	if t.Value != nil {
		v := *t.Value / 3
		childValue = &v
	}

	children := [3]Triangle{
		{A: t.A, B: midAB, C: midCA, ParentHash: &parentHash, Owner: t.Owner, Value: childValue},
		{A: midAB, B: t.B, C: midBC, ParentHash: &parentHash, Owner: t.Owner, Value: childValue},
		{A: midCA, B: midBC, C: t.C, ParentHash: &parentHash, Owner: t.Owner, Value: childValue},
	}

	return children
}

// Equals reports whether two triangles have proximity-equal vertices in the
// same order.
func (t Triangle) Equals(other Triangle) bool {
	return t.A.Equals(other.A) && t.B.Equals(other.B) && t.C.Equals(other.C)
}
