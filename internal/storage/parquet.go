package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/gridiron-data/nflrefresh/internal/dataset"
	"github.com/gridiron-data/nflrefresh/internal/errhandling"
	"github.com/gridiron-data/nflrefresh/internal/logger"
)

const (
	// defaultDirPerm is used when the output directory has to be created.
	defaultDirPerm = 0o755
	// defaultFilePerm is applied to the temp file before it is renamed.
	defaultFilePerm = 0o644
	// readBatchSize is the number of rows read per ReadRows call.
	readBatchSize = 512
)

// ParquetWriter writes datasets as Snappy-compressed Parquet files.
//
// Every column is stored as an optional leaf so that provider nulls survive
// the round trip. Writes to the same path from one process are serialized.
type ParquetWriter struct {
	locks sync.Map // path -> *sync.Mutex

	// rename is os.Rename; tests swap it to simulate a failing commit.
	rename func(oldpath, newpath string) error
}

// NewParquetWriter creates a ParquetWriter.
func NewParquetWriter() *ParquetWriter {
	return &ParquetWriter{rename: os.Rename}
}

func (w *ParquetWriter) lock(path string) func() {
	m, _ := w.locks.LoadOrStore(path, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Write stores ds at path. The parent directory is created when missing.
// Data goes to a temp file in the same directory which is synced and then
// renamed over path; the temp file is removed on every failure.
func (w *ParquetWriter) Write(ctx context.Context, path string, ds *dataset.Dataset) (int64, error) {
	if ds == nil {
		return 0, errhandling.NewValidationError("nil dataset", nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving output path: %w", err)
	}
	unlock := w.lock(abs)
	defer unlock()

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return 0, errhandling.ClassifyStorageError(err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(abs)+".*.tmp")
	if err != nil {
		return 0, errhandling.ClassifyStorageError(err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				logger.Warn("failed to remove temp file", "path", tmpName, "error", rmErr.Error())
			}
		}
	}()

	if err := encodeParquet(tmp, ds); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, errhandling.ClassifyStorageError(err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return 0, errhandling.ClassifyStorageError(err)
	}
	if err := tmp.Close(); err != nil {
		return 0, errhandling.ClassifyStorageError(err)
	}
	if err := os.Chmod(tmpName, defaultFilePerm); err != nil {
		return 0, errhandling.ClassifyStorageError(err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := w.rename(tmpName, abs); err != nil {
		return 0, errhandling.ClassifyStorageError(err)
	}
	committed = true

	logger.Debug("parquet file written",
		"output_path", abs,
		"record_count", ds.NumRows(),
		"column_count", ds.NumColumns(),
		"bytes", info.Size(),
	)
	return info.Size(), nil
}

// schemaFor builds the Parquet schema of ds. The returned slice maps each
// dataset column to its leaf column index; parquet groups order their
// fields by name.
func schemaFor(ds *dataset.Dataset) (*parquet.Schema, []int) {
	cols := ds.Columns()
	group := make(parquet.Group, len(cols))
	for _, c := range cols {
		group[c.Name] = parquet.Optional(nodeFor(c.Kind))
	}

	sorted := ds.ColumnNames()
	sort.Strings(sorted)
	pos := make(map[string]int, len(sorted))
	for i, name := range sorted {
		pos[name] = i
	}
	leaf := make([]int, len(cols))
	for i, c := range cols {
		leaf[i] = pos[c.Name]
	}
	return parquet.NewSchema("dataset", group), leaf
}

func nodeFor(k dataset.Kind) parquet.Node {
	switch k {
	case dataset.KindInt:
		return parquet.Int(64)
	case dataset.KindFloat:
		return parquet.Leaf(parquet.DoubleType)
	case dataset.KindBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func encodeParquet(out io.Writer, ds *dataset.Dataset) error {
	schema, leaf := schemaFor(ds)

	pw := parquet.NewWriter(out, schema, parquet.Compression(&parquet.Snappy))
	rows := make([]parquet.Row, 0, readBatchSize)
	var writeErr error

	flush := func() bool {
		if len(rows) == 0 {
			return true
		}
		if _, err := pw.WriteRows(rows); err != nil {
			writeErr = err
			return false
		}
		rows = rows[:0]
		return true
	}

	ds.Each(func(_ int, cells []any) bool {
		row := make(parquet.Row, len(cells))
		for i, cell := range cells {
			row[leaf[i]] = valueOf(cell, leaf[i])
		}
		rows = append(rows, row)
		if len(rows) == cap(rows) {
			return flush()
		}
		return true
	})
	if writeErr == nil {
		flush()
	}
	if writeErr != nil {
		_ = pw.Close()
		return errhandling.ClassifyStorageError(fmt.Errorf("encoding parquet rows: %w", writeErr))
	}
	if err := pw.Close(); err != nil {
		return errhandling.ClassifyStorageError(fmt.Errorf("closing parquet writer: %w", err))
	}
	return nil
}

// valueOf converts a dataset cell into a leveled parquet value for an
// optional top-level column.
func valueOf(cell any, column int) parquet.Value {
	var v parquet.Value
	switch c := cell.(type) {
	case nil:
		return parquet.NullValue().Level(0, 0, column)
	case string:
		v = parquet.ByteArrayValue([]byte(c))
	case int64:
		v = parquet.Int64Value(c)
	case float64:
		v = parquet.DoubleValue(c)
	case bool:
		v = parquet.BooleanValue(c)
	default:
		v = parquet.ByteArrayValue([]byte(fmt.Sprint(c)))
	}
	return v.Level(0, 1, column)
}

// ReadFile loads a Parquet file written by Write. Columns come back in
// schema order, which is sorted by name.
func (w *ParquetWriter) ReadFile(path string) (*dataset.Dataset, error) {
	return ReadFile(path)
}

// ReadFile loads a flat Parquet file into a Dataset.
func ReadFile(path string) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errhandling.ClassifyStorageError(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errhandling.ClassifyStorageError(err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, errhandling.NewValidationError(fmt.Sprintf("%s is not a parquet file", path), err)
	}

	r := parquet.NewReader(pf)
	defer r.Close()

	fields := r.Schema().Fields()
	columns := make([]dataset.Column, len(fields))
	for i, field := range fields {
		if !field.Leaf() {
			return nil, errhandling.NewValidationError(fmt.Sprintf("column %q is nested", field.Name()), nil)
		}
		columns[i] = dataset.Column{Name: field.Name(), Kind: kindOf(field.Type().Kind())}
	}

	out := make([][]any, 0, r.NumRows())
	buf := make([]parquet.Row, readBatchSize)
	for {
		n, err := r.ReadRows(buf)
		for _, row := range buf[:n] {
			cells := make([]any, len(columns))
			for _, v := range row {
				if c := v.Column(); c >= 0 && c < len(cells) {
					cells[c] = cellOf(v)
				}
			}
			out = append(out, cells)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errhandling.NewValidationError("reading parquet rows", err)
		}
	}

	ds, err := dataset.New(columns, out)
	if err != nil {
		return nil, errhandling.NewValidationError("parquet file does not form a dataset", err)
	}
	return ds, nil
}

func kindOf(k parquet.Kind) dataset.Kind {
	switch k {
	case parquet.Int32, parquet.Int64:
		return dataset.KindInt
	case parquet.Float, parquet.Double:
		return dataset.KindFloat
	case parquet.Boolean:
		return dataset.KindBool
	default:
		return dataset.KindString
	}
}

func cellOf(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.Boolean:
		return v.Boolean()
	default:
		return string(v.ByteArray())
	}
}

var (
	_ Writer = (*ParquetWriter)(nil)
	_ Reader = (*ParquetWriter)(nil)
)
