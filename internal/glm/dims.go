// Package glm implements the loss-and-gradient evaluation primitive for
// generalized linear models: a fused forward affine transform, elementwise
// loss pass and adjoint backward pass over device-resident matrices, exposed
// to an outer iterative optimizer as a flat-weights callable.
package glm

import "github.com/rs/zerolog/log"

// Dims describes the parameter layout of one model: class count, feature
// count and whether a per-class intercept column is appended to the weight
// matrix. It is immutable for the lifetime of an optimization run.
type Dims struct {
	Classes      int
	Features     int
	FitIntercept bool
}

// NewDims validates and builds a dimension descriptor.
func NewDims(classes, features int, fitIntercept bool) Dims {
	if classes < 1 || features < 1 {
		log.Panic().Msgf("glm: invalid dims: %d classes, %d features", classes, features)
	}
	return Dims{Classes: classes, Features: features, FitIntercept: fitIntercept}
}

// Cols is the padded column count of the weight matrix: the feature count
// plus one bias column when fitting an intercept. Column Features (zero
// indexed) is the bias column.
func (d Dims) Cols() int {
	if d.FitIntercept {
		return d.Features + 1
	}
	return d.Features
}

// NParam is the flat parameter count the outer optimizer works with.
func (d Dims) NParam() int {
	return d.Cols() * d.Classes
}
