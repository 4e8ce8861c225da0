// Package dataset moves feature frames between Arrow IPC streams and the
// host-side buffers the device layer views. The on-disk layout is one IPC
// stream whose float32 columns are features, except for a designated label
// column.
package dataset

import (
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
)

// Frame is a fully materialized dataset: X in row-major N x D layout plus
// the target vector.
type Frame struct {
	X            []float32
	Y            []float32
	NumRows      int
	NumFeatures  int
	FeatureNames []string
}

// Read consumes an Arrow IPC stream. Every float32 column except labelCol
// becomes a feature, in schema order.
func Read(r io.Reader, labelCol string) (*Frame, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("dataset: creating IPC reader: %w", err)
	}
	defer reader.Release()

	schema := reader.Schema()
	labelIdx := -1
	featIdx := make([]int, 0, len(schema.Fields()))
	names := make([]string, 0, len(schema.Fields()))
	for i, f := range schema.Fields() {
		if f.Type.ID() != arrow.FLOAT32 {
			return nil, fmt.Errorf("dataset: column %q is %s, want float32", f.Name, f.Type)
		}
		if f.Name == labelCol {
			labelIdx = i
			continue
		}
		featIdx = append(featIdx, i)
		names = append(names, f.Name)
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("dataset: label column %q not in schema", labelCol)
	}
	if len(featIdx) == 0 {
		return nil, fmt.Errorf("dataset: no feature columns besides label %q", labelCol)
	}

	frame := &Frame{NumFeatures: len(featIdx), FeatureNames: names}
	for reader.Next() {
		rec := reader.Record()
		n := int(rec.NumRows())
		labels, ok := rec.Column(labelIdx).(*array.Float32)
		if !ok {
			return nil, fmt.Errorf("dataset: label column %q is not a float32 array", labelCol)
		}
		cols := make([]*array.Float32, len(featIdx))
		for k, idx := range featIdx {
			col, ok := rec.Column(idx).(*array.Float32)
			if !ok {
				return nil, fmt.Errorf("dataset: feature column %q is not a float32 array", names[k])
			}
			cols[k] = col
		}
		for i := 0; i < n; i++ {
			for _, col := range cols {
				frame.X = append(frame.X, col.Value(i))
			}
			frame.Y = append(frame.Y, labels.Value(i))
		}
		frame.NumRows += n
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("dataset: reading IPC stream: %w", err)
	}
	if frame.NumRows == 0 {
		return nil, fmt.Errorf("dataset: stream contains no rows")
	}
	return frame, nil
}

// ReadFile opens path and reads it as an IPC stream.
func ReadFile(path, labelCol string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("path", path).Msg("Failed to close dataset file")
		}
	}()
	frame, err := Read(f, labelCol)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("rows", frame.NumRows).Int("features", frame.NumFeatures).Msg("Loaded dataset")
	return frame, nil
}

// Write emits the frame as one IPC stream with the given label column name.
func Write(w io.Writer, frame *Frame, labelCol string) error {
	if len(frame.X) != frame.NumRows*frame.NumFeatures {
		return fmt.Errorf("dataset: X holds %d values for %dx%d", len(frame.X), frame.NumRows, frame.NumFeatures)
	}
	if len(frame.Y) != frame.NumRows {
		return fmt.Errorf("dataset: Y holds %d values for %d rows", len(frame.Y), frame.NumRows)
	}

	mem := memory.NewGoAllocator()
	fields := make([]arrow.Field, 0, frame.NumFeatures+1)
	for k := 0; k < frame.NumFeatures; k++ {
		name := fmt.Sprintf("f%d", k)
		if k < len(frame.FeatureNames) {
			name = frame.FeatureNames[k]
		}
		fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float32})
	}
	fields = append(fields, arrow.Field{Name: labelCol, Type: arrow.PrimitiveTypes.Float32})
	schema := arrow.NewSchema(fields, nil)

	cols := make([]arrow.Array, 0, len(fields))
	for k := 0; k < frame.NumFeatures; k++ {
		b := array.NewFloat32Builder(mem)
		for i := 0; i < frame.NumRows; i++ {
			b.Append(frame.X[i*frame.NumFeatures+k])
		}
		arr := b.NewArray()
		defer arr.Release()
		b.Release()
		cols = append(cols, arr)
	}
	lb := array.NewFloat32Builder(mem)
	lb.AppendValues(frame.Y, nil)
	labels := lb.NewArray()
	defer labels.Release()
	lb.Release()
	cols = append(cols, labels)

	rec := array.NewRecord(schema, cols, int64(frame.NumRows))
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return fmt.Errorf("dataset: writing record batch: %w", err)
	}
	return writer.Close()
}

// WriteFile writes the frame to path as an IPC stream.
func WriteFile(path string, frame *Frame, labelCol string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	if err := Write(f, frame, labelCol); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
