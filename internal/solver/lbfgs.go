// Package solver provides the outer iterative optimizer driving a bound
// objective: L-BFGS with Armijo backtracking line search. It talks to the
// evaluation core only through the flat-weights callable, so any objective
// honoring that contract can be minimized.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bowyer-solver")

// Objective is one loss-and-gradient evaluation: the scalar loss at w, with
// the gradient written into grad as a side effect. Both slices must have the
// objective's parameter length.
type Objective func(w, grad []float32) float32

// Config holds the L-BFGS hyperparameters. Zero values select defaults.
type Config struct {
	// Memory is the number of (s, y) correction pairs kept. Default 10.
	Memory int
	// MaxIter caps the outer iterations. Default 100.
	MaxIter int
	// Tol is the gradient infinity-norm convergence threshold. Default 1e-4.
	Tol float32
	// Armijo is the sufficient-decrease constant c1. Default 1e-4.
	Armijo float32
	// MaxLineSearch caps the backtracking halvings per iteration. Default 30.
	MaxLineSearch int
}

func (c *Config) applyDefaults() error {
	if c.Memory == 0 {
		c.Memory = 10
	}
	if c.MaxIter == 0 {
		c.MaxIter = 100
	}
	if c.Tol == 0 {
		c.Tol = 1e-4
	}
	if c.Armijo == 0 {
		c.Armijo = 1e-4
	}
	if c.MaxLineSearch == 0 {
		c.MaxLineSearch = 30
	}
	switch {
	case c.Memory < 1:
		return fmt.Errorf("solver: memory must be >= 1, got %d", c.Memory)
	case c.MaxIter < 1:
		return fmt.Errorf("solver: max iterations must be >= 1, got %d", c.MaxIter)
	case c.Tol <= 0 || c.Armijo <= 0 || c.Armijo >= 1:
		return errors.New("solver: tol must be > 0 and armijo in (0, 1)")
	}
	return nil
}

// Result summarizes one fit.
type Result struct {
	Loss      float32
	GradNorm  float32
	Iters     int
	Evals     int
	Converged bool
}

// LBFGS minimizes an objective with limited-memory BFGS. An instance runs
// one fit at a time and is not goroutine-safe.
type LBFGS struct {
	cfg Config
}

// New validates the configuration and builds a solver.
func New(cfg Config) (*LBFGS, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &LBFGS{cfg: cfg}, nil
}

// Minimize iterates from w in place until the gradient infinity norm drops
// below Tol, MaxIter is reached, or the line search stalls. The context is
// checked between iterations; an in-flight evaluation always completes.
func (l *LBFGS) Minimize(ctx context.Context, f Objective, w []float32) (Result, error) {
	ctx, span := tracer.Start(ctx, "lbfgs.minimize", trace.WithAttributes(
		attribute.Int("params", len(w)),
		attribute.Int("memory", l.cfg.Memory),
	))
	defer span.End()

	n := len(w)
	grad := make([]float32, n)
	loss := f(w, grad)
	evals := 1

	m := l.cfg.Memory
	sHist := make([][]float32, 0, m)
	yHist := make([][]float32, 0, m)
	rhoHist := make([]float64, 0, m)

	dir := make([]float32, n)
	wNew := make([]float32, n)
	gradNew := make([]float32, n)
	alphas := make([]float64, m)

	res := Result{Loss: loss, GradNorm: infNorm(grad), Evals: evals}
	for iter := 0; iter < l.cfg.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if res.GradNorm <= l.cfg.Tol {
			res.Converged = true
			break
		}

		l.direction(dir, grad, sHist, yHist, rhoHist, alphas)

		// Backtracking Armijo line search along dir.
		g0 := dot(grad, dir)
		if g0 >= 0 {
			// Not a descent direction; history is stale. Fall back to
			// steepest descent.
			for i := range dir {
				dir[i] = -grad[i]
			}
			g0 = dot(grad, dir)
		}
		step := 1.0
		if iter == 0 {
			step = 1.0 / float64(res.GradNorm)
		}
		var lossNew float32
		ok := false
		for ls := 0; ls < l.cfg.MaxLineSearch; ls++ {
			for i := range wNew {
				wNew[i] = w[i] + float32(step)*dir[i]
			}
			lossNew = f(wNew, gradNew)
			evals++
			if float64(lossNew) <= float64(loss)+float64(l.cfg.Armijo)*step*g0 {
				ok = true
				break
			}
			step *= 0.5
		}
		if !ok {
			log.Warn().Int("iter", iter).Float32("loss", loss).Msg("line search stalled; stopping")
			break
		}

		// Update the correction history with s = wNew - w, y = gNew - g.
		sNew := make([]float32, n)
		yNew := make([]float32, n)
		for i := 0; i < n; i++ {
			sNew[i] = wNew[i] - w[i]
			yNew[i] = gradNew[i] - grad[i]
		}
		if sy := dot(sNew, yNew); sy > 1e-10 {
			if len(sHist) == m {
				sHist = sHist[1:]
				yHist = yHist[1:]
				rhoHist = rhoHist[1:]
			}
			sHist = append(sHist, sNew)
			yHist = append(yHist, yNew)
			rhoHist = append(rhoHist, 1.0/sy)
		}

		copy(w, wNew)
		copy(grad, gradNew)
		loss = lossNew

		res.Loss = loss
		res.GradNorm = infNorm(grad)
		res.Iters = iter + 1
		res.Evals = evals
		log.Debug().Int("iter", res.Iters).Float32("loss", loss).Float32("gnorm", res.GradNorm).Float64("step", step).Msg("lbfgs iteration")
	}
	if !res.Converged && res.GradNorm <= l.cfg.Tol {
		res.Converged = true
	}

	span.SetAttributes(
		attribute.Int("iters", res.Iters),
		attribute.Int("evals", res.Evals),
		attribute.Bool("converged", res.Converged),
	)
	return res, nil
}

// direction computes dir = -H*grad via the two-loop recursion over the
// stored correction pairs.
func (l *LBFGS) direction(dir, grad []float32, sHist, yHist [][]float32, rhoHist []float64, alphas []float64) {
	q := make([]float64, len(grad))
	for i, g := range grad {
		q[i] = float64(g)
	}
	k := len(sHist)
	for i := k - 1; i >= 0; i-- {
		var sq float64
		for j := range q {
			sq += float64(sHist[i][j]) * q[j]
		}
		alphas[i] = rhoHist[i] * sq
		for j := range q {
			q[j] -= alphas[i] * float64(yHist[i][j])
		}
	}
	if k > 0 {
		// Scale by s'y / y'y of the newest pair.
		sy := dot(sHist[k-1], yHist[k-1])
		yy := dot(yHist[k-1], yHist[k-1])
		if yy > 0 {
			gamma := sy / yy
			for j := range q {
				q[j] *= gamma
			}
		}
	}
	for i := 0; i < k; i++ {
		var yq float64
		for j := range q {
			yq += float64(yHist[i][j]) * q[j]
		}
		beta := rhoHist[i] * yq
		for j := range q {
			q[j] += (alphas[i] - beta) * float64(sHist[i][j])
		}
	}
	for i := range dir {
		dir[i] = float32(-q[i])
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func infNorm(v []float32) float32 {
	var max float32
	for _, x := range v {
		if ax := float32(math.Abs(float64(x))); ax > max {
			max = ax
		}
	}
	return max
}
