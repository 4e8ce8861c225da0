// Package model defines the trained-GLM artifact: the fitted weights plus
// everything needed to evaluate them on new data, serialized with CBOR.
package model

import (
	"fmt"
	"math"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/glm"
)

// Family names a loss/link family.
type Family string

const (
	FamilyLinear   Family = "linear"
	FamilyLogistic Family = "logistic"
	FamilySoftmax  Family = "softmax"
)

const formatVersion = 1

// Model is the serialized artifact of one fit.
type Model struct {
	Version      int       `cbor:"version"`
	Family       Family    `cbor:"family"`
	Classes      int       `cbor:"classes"`
	Features     int       `cbor:"features"`
	FitIntercept bool      `cbor:"fit_intercept"`
	Weights      []float32 `cbor:"weights"`
}

// New builds an artifact around fitted flat weights.
func New(family Family, dims glm.Dims, weights []float32) (*Model, error) {
	if len(weights) != dims.NParam() {
		return nil, fmt.Errorf("model: %d weights for descriptor needing %d", len(weights), dims.NParam())
	}
	return &Model{
		Version:      formatVersion,
		Family:       family,
		Classes:      dims.Classes,
		Features:     dims.Features,
		FitIntercept: dims.FitIntercept,
		Weights:      weights,
	}, nil
}

// Dims reconstructs the dimension descriptor.
func (m *Model) Dims() glm.Dims {
	return glm.NewDims(m.Classes, m.Features, m.FitIntercept)
}

// Marshal encodes the artifact.
func (m *Model) Marshal() ([]byte, error) {
	data, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("model: encoding: %w", err)
	}
	return data, nil
}

// Unmarshal decodes and validates an artifact.
func Unmarshal(data []byte) (*Model, error) {
	var m Model
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: decoding: %w", err)
	}
	if m.Version != formatVersion {
		return nil, fmt.Errorf("model: unsupported format version %d", m.Version)
	}
	if m.Classes < 1 || m.Features < 1 {
		return nil, fmt.Errorf("model: invalid dims: %d classes, %d features", m.Classes, m.Features)
	}
	if want := m.Dims().NParam(); len(m.Weights) != want {
		return nil, fmt.Errorf("model: %d weights, want %d", len(m.Weights), want)
	}
	return &m, nil
}

// Save writes the artifact to path.
func (m *Model) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	log.Info().Str("path", path).Str("family", string(m.Family)).Int("params", len(m.Weights)).Msg("Saved model")
	return nil
}

// Load reads an artifact from path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	return Unmarshal(data)
}

// Predict runs the forward pass on x (N x Features) and applies the
// family's link: the raw value for linear models, the positive-class
// probability for logistic, and the argmax class index for softmax. One
// prediction per sample.
func (m *Model) Predict(s *device.Stream, x *device.Matrix) ([]float32, error) {
	d := m.Dims()
	if x.Cols() != d.Features {
		return nil, fmt.Errorf("model: input has %d features, model has %d", x.Cols(), d.Features)
	}
	n := x.Rows()
	z := device.NewMatrix(d.Classes, n, device.RowMajor)
	w := device.ViewOf(m.Weights, d.Classes, d.Cols(), device.RowMajor)
	glm.Forward(s, z, x, w, d)
	s.Synchronize()

	out := make([]float32, n)
	switch m.Family {
	case FamilyLinear:
		for j := 0; j < n; j++ {
			out[j] = z.At(0, j)
		}
	case FamilyLogistic:
		for j := 0; j < n; j++ {
			out[j] = sigmoid(z.At(0, j))
		}
	case FamilySoftmax:
		for j := 0; j < n; j++ {
			best, bestv := 0, z.At(0, j)
			for i := 1; i < d.Classes; i++ {
				if v := z.At(i, j); v > bestv {
					best, bestv = i, v
				}
			}
			out[j] = float32(best)
		}
	default:
		return nil, fmt.Errorf("model: unknown family %q", m.Family)
	}
	return out, nil
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(float64(-x))))
}
