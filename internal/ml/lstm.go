package ml

import (
	"math"
	"math/rand"
)

// LSTM is a single-layer LSTM over a sequence whose last hidden state feeds
// a sigmoid output unit. Gate blocks are stacked input, forget, cell, output.
type LSTM struct {
	InputSize  int
	HiddenSize int
	// Wx is 4H x InputSize, Wh is 4H x H, both row-major
	Wx []float64
	Wh []float64
	B  []float64
	// Wy maps the last hidden state to the output logit
	Wy []float64
	By []float64
}

// NewLSTM initializes weights uniformly in [-1/sqrt(H), 1/sqrt(H)]
func NewLSTM(inputSize, hiddenSize int, rng *rand.Rand) *LSTM {
	h4 := 4 * hiddenSize
	net := &LSTM{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		Wx:         make([]float64, h4*inputSize),
		Wh:         make([]float64, h4*hiddenSize),
		B:          make([]float64, h4),
		Wy:         make([]float64, hiddenSize),
		By:         make([]float64, 1),
	}
	bound := 1 / math.Sqrt(float64(hiddenSize))
	for _, w := range net.params() {
		for i := range w {
			w[i] = (rng.Float64()*2 - 1) * bound
		}
	}
	return net
}

func (n *LSTM) params() [][]float64 {
	return [][]float64{n.Wx, n.Wh, n.B, n.Wy, n.By}
}

// Clone returns a deep copy of the weights
func (n *LSTM) Clone() *LSTM {
	out := &LSTM{InputSize: n.InputSize, HiddenSize: n.HiddenSize}
	out.Wx = append([]float64(nil), n.Wx...)
	out.Wh = append([]float64(nil), n.Wh...)
	out.B = append([]float64(nil), n.B...)
	out.Wy = append([]float64(nil), n.Wy...)
	out.By = append([]float64(nil), n.By...)
	return out
}

// stepCache keeps what backpropagation needs from one timestep
type stepCache struct {
	x, hPrev, cPrev []float64
	i, f, g, o, c   []float64
}

// forward runs the sequence and returns the output probability plus the
// per-step caches
func (n *LSTM) forward(seq [][]float64) (float64, []stepCache, []float64) {
	H := n.HiddenSize
	h := make([]float64, H)
	c := make([]float64, H)
	caches := make([]stepCache, len(seq))
	z := make([]float64, 4*H)

	for t, x := range seq {
		for r := 0; r < 4*H; r++ {
			sum := n.B[r]
			wx := n.Wx[r*n.InputSize : (r+1)*n.InputSize]
			for j, v := range x {
				if j < n.InputSize {
					sum += wx[j] * v
				}
			}
			wh := n.Wh[r*H : (r+1)*H]
			for j, v := range h {
				sum += wh[j] * v
			}
			z[r] = sum
		}

		sc := stepCache{
			x:     x,
			hPrev: h,
			cPrev: c,
			i:     make([]float64, H),
			f:     make([]float64, H),
			g:     make([]float64, H),
			o:     make([]float64, H),
			c:     make([]float64, H),
		}
		hNext := make([]float64, H)
		for k := 0; k < H; k++ {
			sc.i[k] = sigmoid(z[k])
			sc.f[k] = sigmoid(z[H+k])
			sc.g[k] = math.Tanh(z[2*H+k])
			sc.o[k] = sigmoid(z[3*H+k])
			sc.c[k] = sc.f[k]*c[k] + sc.i[k]*sc.g[k]
			hNext[k] = sc.o[k] * math.Tanh(sc.c[k])
		}
		caches[t] = sc
		h, c = hNext, sc.c
	}

	logit := n.By[0]
	for k, v := range h {
		logit += n.Wy[k] * v
	}
	return sigmoid(logit), caches, h
}

// PredictProba returns the positive-class probability for one sequence
func (n *LSTM) PredictProba(seq [][]float64) float64 {
	p, _, _ := n.forward(seq)
	return p
}

// backward accumulates the BCE gradient for one sequence into grads and
// returns the sample loss
func (n *LSTM) backward(seq [][]float64, label int, grads [][]float64) float64 {
	p, caches, hLast := n.forward(seq)
	H := n.HiddenSize
	dWx, dWh, dB, dWy, dBy := grads[0], grads[1], grads[2], grads[3], grads[4]

	dlogit := p - float64(label)
	for k := 0; k < H; k++ {
		dWy[k] += dlogit * hLast[k]
	}
	dBy[0] += dlogit

	dh := make([]float64, H)
	for k := 0; k < H; k++ {
		dh[k] = dlogit * n.Wy[k]
	}
	dc := make([]float64, H)
	dz := make([]float64, 4*H)

	for t := len(caches) - 1; t >= 0; t-- {
		sc := caches[t]
		dcPrev := make([]float64, H)
		for k := 0; k < H; k++ {
			tc := math.Tanh(sc.c[k])
			do := dh[k] * tc
			dck := dc[k] + dh[k]*sc.o[k]*(1-tc*tc)
			di := dck * sc.g[k]
			dg := dck * sc.i[k]
			df := dck * sc.cPrev[k]
			dcPrev[k] = dck * sc.f[k]

			dz[k] = di * sc.i[k] * (1 - sc.i[k])
			dz[H+k] = df * sc.f[k] * (1 - sc.f[k])
			dz[2*H+k] = dg * (1 - sc.g[k]*sc.g[k])
			dz[3*H+k] = do * sc.o[k] * (1 - sc.o[k])
		}

		dhPrev := make([]float64, H)
		for r := 0; r < 4*H; r++ {
			d := dz[r]
			if d == 0 {
				continue
			}
			dB[r] += d
			row := dWx[r*n.InputSize : (r+1)*n.InputSize]
			for j, v := range sc.x {
				if j < n.InputSize {
					row[j] += d * v
				}
			}
			hrow := dWh[r*H : (r+1)*H]
			wh := n.Wh[r*H : (r+1)*H]
			for j := 0; j < H; j++ {
				hrow[j] += d * sc.hPrev[j]
				dhPrev[j] += d * wh[j]
			}
		}
		dh, dc = dhPrev, dcPrev
	}

	return LogLoss([]int{label}, []float64{p})
}

// adam is the Adam optimizer state for a fixed parameter layout
type adam struct {
	lr, beta1, beta2, eps float64
	step                  int
	m, v                  [][]float64
}

func newAdam(params [][]float64, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-8}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

func (a *adam) update(params, grads [][]float64) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))
	for i, p := range params {
		m, v, g := a.m[i], a.v[i], grads[i]
		for j := range p {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*g[j]*g[j]
			p[j] -= a.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.eps)
		}
	}
}

func zeroGrads(params [][]float64) [][]float64 {
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = make([]float64, len(p))
	}
	return out
}
