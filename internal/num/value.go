package num

import "math"

// Value is a scalar or n-dimensional array of float64. A scalar has a nil
// shape and a single element. The zero Value is not usable; construct values
// with Scalar, Array, or Zeros.
type Value struct {
	shape []int
	data  []float64
}

func Scalar(v float64) Value {
	return Value{data: []float64{v}}
}

// Array builds a value of the given shape from row-major data. The data slice
// is copied.
func Array(shape []int, data []float64) (Value, error) {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return Value{}, ErrShape
		}
		n *= d
	}
	if len(data) != n {
		return Value{}, ErrShape
	}
	v := Value{shape: append([]int(nil), shape...), data: make([]float64, n)}
	copy(v.data, data)
	return v, nil
}

// Vector builds a one-dimensional array.
func Vector(data ...float64) Value {
	v, _ := Array([]int{len(data)}, data)
	return v
}

func Zeros(shape []int) Value {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Value{shape: append([]int(nil), shape...), data: make([]float64, n)}
}

func ZerosLike(v Value) Value {
	return Value{shape: append([]int(nil), v.shape...), data: make([]float64, len(v.data))}
}

func (v Value) IsScalar() bool { return len(v.shape) == 0 }

func (v Value) Defined() bool { return v.data != nil }

func (v Value) Size() int { return len(v.data) }

// Shape returns a copy of the value's shape; nil for scalars.
func (v Value) Shape() []int {
	if v.shape == nil {
		return nil
	}
	return append([]int(nil), v.shape...)
}

func (v Value) SameShape(o Value) bool {
	if len(v.shape) != len(o.shape) {
		return false
	}
	for i := range v.shape {
		if v.shape[i] != o.shape[i] {
			return false
		}
	}
	return len(v.data) == len(o.data)
}

// Float returns the first element. For scalars this is the value itself.
func (v Value) Float() float64 {
	if len(v.data) == 0 {
		return math.NaN()
	}
	return v.data[0]
}

func (v Value) At(i int) float64 { return v.data[i] }

// Data returns the backing slice. Callers must not hold onto it across
// mutations of the owning field.
func (v Value) Data() []float64 { return v.data }

func (v Value) Clone() Value {
	c := Value{shape: append([]int(nil), v.shape...), data: make([]float64, len(v.data))}
	copy(c.data, v.data)
	return c
}

// CopyFrom overwrites v's elements with o's. Shapes must match; extra
// elements on either side are left alone.
func (v Value) CopyFrom(o Value) {
	copy(v.data, o.data)
}

func (v Value) IsValid() bool {
	for _, x := range v.data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Value) Add(o Value) Value {
	r := v.Clone()
	for i := range r.data {
		if i < len(o.data) {
			r.data[i] += o.data[i]
		}
	}
	return r
}

func (v Value) Sub(o Value) Value {
	r := v.Clone()
	for i := range r.data {
		if i < len(o.data) {
			r.data[i] -= o.data[i]
		}
	}
	return r
}

func (v Value) Scale(factor float64) Value {
	r := v.Clone()
	for i := range r.data {
		r.data[i] *= factor
	}
	return r
}

// AddScaled returns v + factor*o.
func (v Value) AddScaled(o Value, factor float64) Value {
	r := v.Clone()
	for i := range r.data {
		if i < len(o.data) {
			r.data[i] += factor * o.data[i]
		}
	}
	return r
}

// Norm returns the Euclidean norm over all elements.
func (v Value) Norm() float64 {
	sum := 0.0
	for _, x := range v.data {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// RMS returns the root-mean-square over all elements.
func (v Value) RMS() float64 {
	if len(v.data) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v.data {
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(v.data)))
}

func (v Value) MaxAbs() float64 {
	m := 0.0
	for _, x := range v.data {
		m = math.Max(m, math.Abs(x))
	}
	return m
}
