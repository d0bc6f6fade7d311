// array_nn.go - Faltungen im NC(D)HW-Layout
// Enthält: Conv, ConvTranspose, ConvGradWeight

package cpu

import (
	"github.com/ollama/xcvm/ml"
)

// convGeom describes the spatial part of a convolution: input extent,
// kernel extent, output extent, strides and symmetric pads per axis.
type convGeom struct {
	in, kernel, out, strides, pads []int
}

func newConvGeom(op string, in, kernel, strides, pads []int) convGeom {
	n := len(in)
	g := convGeom{in: in, kernel: kernel, strides: make([]int, n), pads: make([]int, n)}
	for i := range n {
		g.strides[i], g.pads[i] = 1, 0
	}
	switch len(strides) {
	case 0:
	case n:
		copy(g.strides, strides)
	default:
		throw(op, "%d strides for %d spatial dimensions", len(strides), n)
	}
	switch len(pads) {
	case 0:
	case n, 2 * n:
		copy(g.pads, pads[:n])
	default:
		throw(op, "%d pads for %d spatial dimensions", len(pads), n)
	}
	for i, s := range g.strides {
		if s <= 0 {
			throw(op, "stride %d on axis %d must be positive", s, i)
		}
	}
	return g
}

// inputIndex maps an output position plus kernel offset to the flat input
// position inside one channel plane; ok is false when it falls into padding.
func (g convGeom) inputIndex(o, k []int) (int, bool) {
	idx := 0
	for d := range o {
		p := o[d]*g.strides[d] - g.pads[d] + k[d]
		if p < 0 || p >= g.in[d] {
			return 0, false
		}
		idx = idx*g.in[d] + p
	}
	return idx, true
}

func flatIndex(shape, idx []int) int {
	i := 0
	for d, v := range idx {
		i = i*shape[d] + v
	}
	return i
}

func (a *Array) convOperands(op string, w ml.Array) *Array {
	wa := asArray(op, w)
	a.sameDevice(op, wa)
	if len(a.shape) < 3 || len(wa.shape) != len(a.shape) {
		throw(op, "input %v and weight %v must share a rank of at least 3", a.shape, wa.shape)
	}
	return wa
}

func (a *Array) addBias(op string, y []float64, b ml.Array, channels, plane int) {
	if b == nil {
		return
	}
	ba := asArray(op, b)
	a.sameDevice(op, ba)
	if len(ba.data) != channels {
		throw(op, "bias of shape %v for %d output channels", ba.shape, channels)
	}
	for i := range y {
		y[i] += ba.data[(i/plane)%channels]
	}
}

// Conv computes y[n, f, o] = b[f] + sum_{c,k} x[n, c, o*s-p+k] * w[f, c, k].
func (a *Array) Conv(w, b ml.Array, strides, pads []int) ml.Array {
	wa := a.convOperands("Conv", w)
	batch, channels, filters := a.shape[0], a.shape[1], wa.shape[0]
	if wa.shape[1] != channels {
		throw("Conv", "weight %v does not match %d input channels", wa.shape, channels)
	}

	g := newConvGeom("Conv", a.shape[2:], wa.shape[2:], strides, pads)
	g.out = make([]int, len(g.in))
	for i := range g.in {
		g.out[i] = (g.in[i]+2*g.pads[i]-g.kernel[i])/g.strides[i] + 1
		if g.out[i] <= 0 {
			throw("Conv", "kernel %v does not fit input %v", g.kernel, g.in)
		}
	}

	inPlane, kPlane, outPlane := numel(g.in), numel(g.kernel), numel(g.out)
	y := make([]float64, batch*filters*outPlane)
	for n := range batch {
		for f := range filters {
			dst := y[(n*filters+f)*outPlane : (n*filters+f+1)*outPlane]
			oi := 0
			forEachIndex(g.out, func(o []int) {
				var s float64
				for c := range channels {
					x := a.data[(n*channels+c)*inPlane:]
					wk := wa.data[(f*channels+c)*kPlane:]
					ki := 0
					forEachIndex(g.kernel, func(k []int) {
						if i, ok := g.inputIndex(o, k); ok {
							s += x[i] * wk[ki]
						}
						ki++
					})
				}
				dst[oi] = s
				oi++
			})
		}
	}
	a.addBias("Conv", y, b, filters, outPlane)

	dtype := promote(a.dtype, wa.dtype)
	for i, v := range y {
		y[i] = convert(dtype, v)
	}
	return a.dev.newArray(dtype, append([]int{batch, filters}, g.out...), y)
}

// ConvTranspose is the gradient of Conv with respect to its input; w has
// shape (C, F, k...). outSize overrides the inferred spatial output extent.
func (a *Array) ConvTranspose(w, b ml.Array, strides, pads, outSize []int) ml.Array {
	wa := a.convOperands("ConvTranspose", w)
	batch, channels, filters := a.shape[0], a.shape[1], wa.shape[1]
	if wa.shape[0] != channels {
		throw("ConvTranspose", "weight %v does not match %d input channels", wa.shape, channels)
	}

	// roles swap: the convolution input is our output
	spatial := a.shape[2:]
	g := newConvGeom("ConvTranspose", spatial, wa.shape[2:], strides, pads)
	g.out = spatial
	g.in = make([]int, len(spatial))
	for i := range spatial {
		g.in[i] = g.strides[i]*(spatial[i]-1) + g.kernel[i] - 2*g.pads[i]
	}
	if len(outSize) > 0 {
		if len(outSize) != len(spatial) {
			throw("ConvTranspose", "output size %v for %d spatial dimensions", outSize, len(spatial))
		}
		for i, d := range outSize {
			if d < g.in[i] || d >= g.in[i]+g.strides[i] {
				throw("ConvTranspose", "output size %v is inconsistent with input %v", outSize, spatial)
			}
		}
		g.in = append([]int{}, outSize...)
	}
	for _, d := range g.in {
		if d <= 0 {
			throw("ConvTranspose", "empty output for input %v", spatial)
		}
	}

	inPlane, kPlane, outPlane := numel(g.out), numel(g.kernel), numel(g.in)
	y := make([]float64, batch*filters*outPlane)
	for n := range batch {
		for c := range channels {
			x := a.data[(n*channels+c)*inPlane:]
			xi := 0
			forEachIndex(g.out, func(o []int) {
				v := x[xi]
				xi++
				if v == 0 {
					return
				}
				for f := range filters {
					dst := y[(n*filters+f)*outPlane:]
					wk := wa.data[(c*filters+f)*kPlane:]
					ki := 0
					forEachIndex(g.kernel, func(k []int) {
						if i, ok := g.inputIndex(o, k); ok {
							dst[i] += v * wk[ki]
						}
						ki++
					})
				}
			})
		}
	}
	a.addBias("ConvTranspose", y, b, filters, outPlane)

	dtype := promote(a.dtype, wa.dtype)
	for i, v := range y {
		y[i] = convert(dtype, v)
	}
	return a.dev.newArray(dtype, append([]int{batch, filters}, g.in...), y)
}

// ConvGradWeight computes the weight gradient of Conv for input a and
// output gradient gy.
func (a *Array) ConvGradWeight(wShape []int, wDType ml.DType, t ml.Array, strides, pads []int) ml.Array {
	gy := asArray("ConvGradWeight", t)
	a.sameDevice("ConvGradWeight", gy)
	checkDType("ConvGradWeight", wDType)
	if len(a.shape) < 3 || len(wShape) != len(a.shape) || len(gy.shape) != len(a.shape) {
		throw("ConvGradWeight", "input %v, weight %v and gradient %v must share a rank of at least 3", a.shape, wShape, gy.shape)
	}
	batch, channels, filters := a.shape[0], a.shape[1], wShape[0]
	if wShape[1] != channels || gy.shape[0] != batch || gy.shape[1] != filters {
		throw("ConvGradWeight", "input %v, weight %v and gradient %v do not match", a.shape, wShape, gy.shape)
	}

	g := newConvGeom("ConvGradWeight", a.shape[2:], wShape[2:], strides, pads)
	g.out = gy.shape[2:]

	inPlane, kPlane, outPlane := numel(g.in), numel(g.kernel), numel(g.out)
	gw := make([]float64, filters*channels*kPlane)
	for n := range batch {
		for f := range filters {
			gyp := gy.data[(n*filters+f)*outPlane:]
			oi := 0
			forEachIndex(g.out, func(o []int) {
				v := gyp[oi]
				oi++
				for c := range channels {
					x := a.data[(n*channels+c)*inPlane:]
					dst := gw[(f*channels+c)*kPlane:]
					forEachIndex(g.kernel, func(k []int) {
						if i, ok := g.inputIndex(o, k); ok {
							dst[flatIndex(g.kernel, k)] += v * x[i]
						}
					})
				}
			})
		}
	}

	for i, v := range gw {
		gw[i] = convert(wDType, v)
	}
	return a.dev.newArray(wDType, wShape, gw)
}
