package device

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Order is the storage order of a dense matrix buffer.
type Order int

const (
	RowMajor Order = iota
	ColMajor
)

func (o Order) String() string {
	if o == ColMajor {
		return "col-major"
	}
	return "row-major"
}

// Matrix is a dense float32 view over a device buffer. A view either owns
// its buffer (allocated by NewMatrix) or borrows one supplied by the caller
// (ViewOf, ColRange, Col). A borrowing view never outlives its buffer, and
// two mutable views must not overlap unless the aliasing is intentional
// (disjoint column slices of one buffer are fine); both are caller
// contracts.
//
// Element (i, j) lives at data[i*stride+j] for row-major storage and at
// data[j*stride+i] for column-major storage.
type Matrix struct {
	data   []float32
	rows   int
	cols   int
	stride int
	order  Order
	owned  bool
}

// NewMatrix allocates an owning, zero-filled matrix.
func NewMatrix(rows, cols int, order Order) *Matrix {
	if rows <= 0 || cols <= 0 {
		log.Panic().Msgf("device: NewMatrix with non-positive shape %dx%d", rows, cols)
	}
	stride := cols
	if order == ColMajor {
		stride = rows
	}
	return &Matrix{
		data:   make([]float32, rows*cols),
		rows:   rows,
		cols:   cols,
		stride: stride,
		order:  order,
		owned:  true,
	}
}

// ViewOf wraps an existing buffer as a non-owning matrix view.
// The buffer must hold at least rows*cols elements and must outlive the view.
func ViewOf(data []float32, rows, cols int, order Order) *Matrix {
	if rows <= 0 || cols <= 0 {
		log.Panic().Msgf("device: ViewOf with non-positive shape %dx%d", rows, cols)
	}
	if len(data) < rows*cols {
		log.Panic().Msgf("device: ViewOf buffer too small: %d elements for %dx%d", len(data), rows, cols)
	}
	stride := cols
	if order == ColMajor {
		stride = rows
	}
	return &Matrix{
		data:   data,
		rows:   rows,
		cols:   cols,
		stride: stride,
		order:  order,
	}
}

// VectorOf wraps a buffer as a 1xN row vector view.
func VectorOf(data []float32, n int) *Matrix {
	return ViewOf(data, 1, n, RowMajor)
}

func (m *Matrix) Rows() int    { return m.rows }
func (m *Matrix) Cols() int    { return m.cols }
func (m *Matrix) Order() Order { return m.order }

// Dims returns (rows, cols).
func (m *Matrix) Dims() (int, int) { return m.rows, m.cols }

func (m *Matrix) index(i, j int) int {
	if m.order == ColMajor {
		return j*m.stride + i
	}
	return i*m.stride + j
}

// At returns the value at (i, j). Slow; intended for tests and diagnostics.
func (m *Matrix) At(i, j int) float32 {
	m.boundsCheck(i, j)
	return m.data[m.index(i, j)]
}

// Set sets the value at (i, j).
func (m *Matrix) Set(i, j int, v float32) {
	m.boundsCheck(i, j)
	m.data[m.index(i, j)] = v
}

func (m *Matrix) boundsCheck(i, j int) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		log.Panic().Msgf("device: index (%d,%d) out of range for %dx%d matrix", i, j, m.rows, m.cols)
	}
}

// ColRange returns a view over the contiguous column range [j0, j1).
// Storage is shared with the parent; no copy is made.
func (m *Matrix) ColRange(j0, j1 int) *Matrix {
	if j0 < 0 || j1 > m.cols || j0 >= j1 {
		log.Panic().Msgf("device: ColRange [%d,%d) out of range for %d columns", j0, j1, m.cols)
	}
	off := j0
	if m.order == ColMajor {
		off = j0 * m.stride
	}
	return &Matrix{
		data:   m.data[off:],
		rows:   m.rows,
		cols:   j1 - j0,
		stride: m.stride,
		order:  m.order,
	}
}

// Col returns a rows x 1 vector view of column j, sharing storage.
func (m *Matrix) Col(j int) *Matrix {
	return m.ColRange(j, j+1)
}

// VecLen returns the length of a vector view. Panics if neither extent is 1.
func (m *Matrix) VecLen() int {
	switch {
	case m.rows == 1:
		return m.cols
	case m.cols == 1:
		return m.rows
	}
	log.Panic().Msgf("device: %dx%d matrix is not a vector view", m.rows, m.cols)
	return 0
}

// VecAt returns element i of a vector view, whichever extent is free.
func (m *Matrix) VecAt(i int) float32 {
	if m.rows == 1 {
		return m.data[m.index(0, i)]
	}
	return m.data[m.index(i, 0)]
}

// SetVecAt sets element i of a vector view.
func (m *Matrix) SetVecAt(i int, v float32) {
	if m.rows == 1 {
		m.data[m.index(0, i)] = v
	} else {
		m.data[m.index(i, 0)] = v
	}
}

// ToHost copies the view's contents into a fresh row-major slice.
func (m *Matrix) ToHost() []float32 {
	out := make([]float32, m.rows*m.cols)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			out[i*m.cols+j] = m.data[m.index(i, j)]
		}
	}
	return out
}

// blasOperand resolves a view, plus a requested transposition, into the
// row-major operand sgemm expects. A column-major view is the transpose of
// its row-major reinterpretation, so the effective transpose flag flips.
func (m *Matrix) blasOperand(trans bool) (t blas.Transpose, ld int, data []float32) {
	eff := trans != (m.order == ColMajor)
	if eff {
		return blas.Trans, m.stride, m.data
	}
	return blas.NoTrans, m.stride, m.data
}

// Gemm enqueues the scaled matrix product c <- alpha*op(a)*op(b) + beta*c
// on the stream, where op is identity or transpose per the flags and beta
// selects overwrite (0) versus accumulate semantics. The output view must
// be row-major. Shape mismatches are caller contract violations and abort.
func Gemm(s *Stream, transA, transB bool, alpha float32, a, b *Matrix, beta float32, c *Matrix) {
	am, ak := a.rows, a.cols
	if transA {
		am, ak = ak, am
	}
	bk, bn := b.rows, b.cols
	if transB {
		bk, bn = bn, bk
	}
	if ak != bk {
		log.Panic().Msgf("device: Gemm inner dimension mismatch: op(A) is %dx%d, op(B) is %dx%d", am, ak, bk, bn)
	}
	if c.rows != am || c.cols != bn {
		log.Panic().Msgf("device: Gemm output shape mismatch: want %dx%d, have %dx%d", am, bn, c.rows, c.cols)
	}
	if c.order != RowMajor {
		log.Panic().Msgf("device: Gemm output must be row-major, have %s", c.order)
	}

	tA, lda, adata := a.blasOperand(transA)
	tB, ldb, bdata := b.blasOperand(transB)

	launch(s, "gemm", func() {
		blas32.Implementation().Sgemm(tA, tB, am, bn, ak, alpha, adata, lda, bdata, ldb, beta, c.data, c.stride)
	})
}
