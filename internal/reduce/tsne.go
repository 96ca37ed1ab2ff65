package reduce

import (
	"context"
	"math"
	"math/rand/v2"
)

// TSNEOptions configures the exact t-SNE projection.
type TSNEOptions struct {
	Perplexity   float64
	Iterations   int
	LearningRate float64
	Seed         uint64
}

// DefaultTSNEOptions matches the usual scikit-learn style settings with a
// fixed seed.
func DefaultTSNEOptions() TSNEOptions {
	return TSNEOptions{Perplexity: 30, Iterations: 500, LearningRate: 200, Seed: 42}
}

const (
	earlyExaggeration = 12.0
	minGain           = 0.01
)

// TSNE embeds the rows of x in two dimensions. The result is deterministic
// for a given input and seed. It returns ctx.Err() if ctx is cancelled
// between iterations.
func TSNE(ctx context.Context, x [][]float64, opts TSNEOptions) ([][]float64, error) {
	n := len(x)
	switch n {
	case 0:
		return [][]float64{}, nil
	case 1:
		return [][]float64{{0, 0}}, nil
	}
	def := DefaultTSNEOptions()
	if opts.Perplexity <= 0 {
		opts.Perplexity = def.Perplexity
	}
	if opts.Iterations <= 0 {
		opts.Iterations = def.Iterations
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = def.LearningRate
	}
	perplexity := math.Min(opts.Perplexity, math.Max(1, float64(n-1)/3))

	p := jointProbabilities(squaredDistances(x), perplexity)

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	y := make([][2]float64, n)
	for i := range y {
		y[i] = [2]float64{rng.NormFloat64() * 1e-4, rng.NormFloat64() * 1e-4}
	}
	update := make([][2]float64, n)
	gains := make([][2]float64, n)
	for i := range gains {
		gains[i] = [2]float64{1, 1}
	}
	num := make([]float64, n*n)
	grad := make([][2]float64, n)

	phase := opts.Iterations / 4
	for iter := 0; iter < opts.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		exaggeration, momentum := 1.0, 0.8
		if iter < phase {
			exaggeration, momentum = earlyExaggeration, 0.5
		}

		var sumQ float64
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx, dy := y[i][0]-y[j][0], y[i][1]-y[j][1]
				q := 1 / (1 + dx*dx + dy*dy)
				num[i*n+j], num[j*n+i] = q, q
				sumQ += 2 * q
			}
		}

		for i := 0; i < n; i++ {
			grad[i] = [2]float64{}
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				q := num[i*n+j]
				mult := (exaggeration*p[i*n+j] - q/sumQ) * q
				grad[i][0] += 4 * mult * (y[i][0] - y[j][0])
				grad[i][1] += 4 * mult * (y[i][1] - y[j][1])
			}
		}

		var mean [2]float64
		for i := 0; i < n; i++ {
			for d := 0; d < 2; d++ {
				if (grad[i][d] > 0) != (update[i][d] > 0) {
					gains[i][d] += 0.2
				} else {
					gains[i][d] *= 0.8
				}
				gains[i][d] = math.Max(gains[i][d], minGain)
				update[i][d] = momentum*update[i][d] - opts.LearningRate*gains[i][d]*grad[i][d]
				y[i][d] += update[i][d]
				mean[d] += y[i][d]
			}
		}
		for i := 0; i < n; i++ {
			y[i][0] -= mean[0] / float64(n)
			y[i][1] -= mean[1] / float64(n)
		}
	}

	out := make([][]float64, n)
	for i := range y {
		out[i] = []float64{y[i][0], y[i][1]}
	}
	return out, nil
}

func squaredDistances(x [][]float64) []float64 {
	n := len(x)
	d := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var s float64
			for k := range x[i] {
				diff := x[i][k] - x[j][k]
				s += diff * diff
			}
			d[i*n+j], d[j*n+i] = s, s
		}
	}
	return d
}

// jointProbabilities calibrates a Gaussian per row to the target perplexity
// and symmetrises the result.
func jointProbabilities(dist []float64, perplexity float64) []float64 {
	n := int(math.Sqrt(float64(len(dist))))
	cond := make([]float64, n*n)
	logU := math.Log(perplexity)
	row := make([]float64, n)

	for i := 0; i < n; i++ {
		minD := math.Inf(1)
		for j := 0; j < n; j++ {
			if j != i && dist[i*n+j] < minD {
				minD = dist[i*n+j]
			}
		}
		beta, lo, hi := 1.0, math.Inf(-1), math.Inf(1)
		for try := 0; try < 50; try++ {
			var sumP, sumDP float64
			for j := 0; j < n; j++ {
				if j == i {
					row[j] = 0
					continue
				}
				shifted := dist[i*n+j] - minD
				row[j] = math.Exp(-shifted * beta)
				sumP += row[j]
				sumDP += shifted * row[j]
			}
			h := math.Log(sumP) + beta*sumDP/sumP
			for j := 0; j < n; j++ {
				cond[i*n+j] = row[j] / sumP
			}
			diff := h - logU
			if math.Abs(diff) < 1e-5 {
				break
			}
			if diff > 0 {
				lo = beta
				if math.IsInf(hi, 1) {
					beta *= 2
				} else {
					beta = (beta + hi) / 2
				}
			} else {
				hi = beta
				if math.IsInf(lo, -1) {
					beta /= 2
				} else {
					beta = (beta + lo) / 2
				}
			}
		}
	}

	p := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			p[i*n+j] = math.Max((cond[i*n+j]+cond[j*n+i])/float64(2*n), 1e-12)
		}
	}
	return p
}
