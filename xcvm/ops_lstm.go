// ops_lstm.go - Einrichtungs-LSTM
//
// MODUL: ops_lstm
// ZWECK: Rekurrente LSTM-Zelle ueber die Zeitachse
// INPUT: X [T, B, I], W [1, 4H, I], R [1, 4H, H], optional B [1, 8H],
//        sequence_lens, initial_h/initial_c [1, B, H], Peepholes P [1, 3H]
// OUTPUT: Y [T, B, H], Y_h [1, B, H], Y_c [1, B, H]
// HINWEISE: Gate-Reihenfolge im gepackten Gewicht ist [i, o, f, c];
//           jeder Zeitschritt haengt vom vorherigen ab
package xcvm

import (
	"fmt"

	"github.com/ollama/xcvm/ml"
)

func runLSTM(_ *State, in *args) ([]Value, error) {
	x, w, r := in.Array(0), in.Array(1), in.Array(2)
	b, seqLens, h0, c0, p := in.OptArray(3), in.OptArray(4), in.OptArray(5), in.OptArray(6), in.OptArray(7)

	if x.NDim() != 3 || w.NDim() != 3 || r.NDim() != 3 {
		return nil, fmt.Errorf("LSTM: x %v, w %v and r %v must be rank 3", x.Shape(), w.Shape(), r.Shape())
	}
	if x.DType() != ml.DTypeFloat32 {
		return nil, fmt.Errorf("LSTM supports float32 only, got %s", x.DType())
	}
	if dirs := w.Shape()[0]; dirs != 1 {
		return nil, fmt.Errorf("LSTM: %d directions, multi-directional LSTM is not implemented", dirs)
	}
	if seqLens != nil {
		warnOnce("LSTM with sequence_lens is not supported, the lengths are ignored")
	}

	steps, batch := x.Shape()[0], x.Shape()[1]
	if w.Shape()[1]%4 != 0 {
		return nil, fmt.Errorf("LSTM: weight rows %d are not a multiple of 4", w.Shape()[1])
	}
	hidden := w.Shape()[1] / 4
	if hs := in.Int(8); hs != 0 && int(hs) != hidden {
		return nil, fmt.Errorf("LSTM: hidden_size %d does not match weight %v", hs, w.Shape())
	}
	if r.Shape()[1] != 4*hidden {
		return nil, fmt.Errorf("LSTM: recurrence %v does not match hidden size %d", r.Shape(), hidden)
	}

	wt := w.Reshape(4*hidden, w.Shape()[2]).Transpose()
	rt := r.Reshape(4*hidden, r.Shape()[2]).Transpose()

	state := func(v ml.Array) ml.Array {
		if v == nil {
			return x.Device().Zeros(x.DType(), batch, hidden)
		}
		return v.Reshape(batch, hidden)
	}
	h, c := state(h0), state(c0)

	var bias ml.Array
	if b != nil {
		if b.Size() != 8*hidden {
			return nil, fmt.Errorf("LSTM: bias %v does not match hidden size %d", b.Shape(), hidden)
		}
		bs := b.Reshape(8 * hidden)
		bias = bs.Slice(ml.Span(0, 4*hidden)).Add(bs.Slice(ml.Span(4*hidden, 8*hidden)))
	}

	var pi, po, pf ml.Array
	if p != nil {
		if p.Size() != 3*hidden {
			return nil, fmt.Errorf("LSTM: peepholes %v do not match hidden size %d", p.Shape(), hidden)
		}
		ps := p.Reshape(3 * hidden)
		pi = ps.Slice(ml.Span(0, hidden))
		po = ps.Slice(ml.Span(hidden, 2*hidden))
		pf = ps.Slice(ml.Span(2*hidden, 3*hidden))
	}

	gate := func(gates ml.Array, k int) ml.Array {
		return gates.Slice(ml.All(), ml.Span(k*hidden, (k+1)*hidden))
	}

	ys := make([]ml.Array, 0, steps)
	for t := range steps {
		xt := x.Slice(ml.Span(t, t+1)).Reshape(batch, x.Shape()[2])
		gates := xt.Dot(wt).Add(h.Dot(rt))
		if bias != nil {
			gates = gates.Add(bias)
		}

		i, o, f, nc := gate(gates, 0), gate(gates, 1), gate(gates, 2), gate(gates, 3)
		if p != nil {
			i = i.Add(pi.Mul(c))
			f = f.Add(pf.Mul(c))
			o = o.Add(po.Mul(c))
		}

		c = logistic(f).Mul(c).Add(logistic(i).Mul(tanh(nc)))
		h = logistic(o).Mul(tanh(c))
		ys = append(ys, h.Reshape(1, batch, hidden))
	}

	y := x.Device().Zeros(x.DType(), steps, batch, hidden)
	if len(ys) > 0 {
		y = ys[0].Concat(0, ys[1:]...)
	}
	return []Value{
		ArrayValue{y},
		ArrayValue{h.Reshape(1, batch, hidden)},
		ArrayValue{c.Reshape(1, batch, hidden)},
	}, nil
}
