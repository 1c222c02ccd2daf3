package csvstream

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
)

// Writer is a write-only connector appending one row per create or update.
// Rows are serialized; the header is written on construction.
type Writer struct {
	spec    Spec
	columns []string

	mu   sync.Mutex
	csv  *csv.Writer
	rows int

	// rows staged by slots, emitted in slot order
	staged   map[int][][]string
	released map[int]bool
	next     int
}

// NewWriter writes the header row for spec.Columns.
func NewWriter(w io.Writer, spec Spec) (*Writer, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.WithDefaults()
	if len(spec.Columns) == 0 {
		return nil, clienterr.New(clienterr.InvalidValues, "no columns to write")
	}

	cw := csv.NewWriter(w)
	cw.Comma = spec.comma()
	cw.UseCRLF = spec.LineSeparator == "\r\n"
	if err := cw.Write(spec.Columns); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return &Writer{
		spec:     spec,
		columns:  spec.Columns,
		csv:      cw,
		staged:   make(map[int][][]string),
		released: make(map[int]bool),
	}, nil
}

// Rows returns the number of data rows written.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	return w.csv.Error()
}

func (w *Writer) Capabilities() connid.Capabilities {
	return connid.NewCapabilities(connid.CapCreate, connid.CapUpdate, connid.CapSearch)
}

func (w *Writer) Test(ctx context.Context) error {
	return nil
}

func (w *Writer) record(attrs connid.AttributeSet) ([]string, string) {
	record := make([]string, len(w.columns))
	for i, column := range w.columns {
		a, ok := attrs.Find(column)
		values := a.Strings()
		if !ok || len(values) == 0 {
			record[i] = w.spec.NullValue
			continue
		}
		record[i] = strings.Join(values, w.spec.ArrayElementSeparator)
	}

	if key := attrs.First(w.spec.KeyColumn); key != "" {
		return record, key
	}
	return record, attrs.First(connid.AttrName)
}

func (w *Writer) write(attrs connid.AttributeSet) (string, error) {
	record, key := w.record(attrs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.csv.Write(record); err != nil {
		return "", err
	}
	w.rows++
	return key, nil
}

// Slot returns a connector whose rows are held back until Release(index) and every
// lower slot has been closed.
func (w *Writer) Slot(index int) *Slot {
	return &Slot{Writer: w, index: index}
}

// Release ends slot index and writes the rows of every contiguous released slot.
func (w *Writer) Release(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released[index] = true
	for w.released[w.next] {
		for _, record := range w.staged[w.next] {
			if err := w.csv.Write(record); err != nil {
				return err
			}
			w.rows++
		}
		delete(w.staged, w.next)
		delete(w.released, w.next)
		w.next++
	}
	return nil
}

// Slot stages the rows of one producer of a Writer.
type Slot struct {
	*Writer
	index int
}

func (s *Slot) stage(ctx context.Context, attrs connid.AttributeSet) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	record, key := s.record(attrs)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged[s.index] = append(s.staged[s.index], record)
	return key, nil
}

func (s *Slot) Create(ctx context.Context, oc connid.ObjectClass, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	return s.stage(ctx, attrs)
}

func (s *Slot) Update(ctx context.Context, oc connid.ObjectClass, uid string, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	return s.stage(ctx, attrs)
}

func (w *Writer) Create(ctx context.Context, oc connid.ObjectClass, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return w.write(attrs)
}

func (w *Writer) Update(ctx context.Context, oc connid.ObjectClass, uid string, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return w.write(attrs)
}

// Search finds nothing: an output stream holds no prior objects.
func (w *Writer) Search(ctx context.Context, oc connid.ObjectClass, filter *connid.Filter, handler connid.ResultsHandler, opts connid.OperationOptions) (connid.SearchResult, error) {
	return connid.SearchResult{}, nil
}

func (w *Writer) GetObject(ctx context.Context, oc connid.ObjectClass, uid string, opts connid.OperationOptions) (*connid.ConnectorObject, error) {
	return nil, nil
}

func (w *Writer) Delete(ctx context.Context, oc connid.ObjectClass, uid string, opts connid.OperationOptions) error {
	return fmt.Errorf("delete is not supported on a CSV stream")
}

func (w *Writer) Sync(ctx context.Context, oc connid.ObjectClass, token connid.SyncToken, handler connid.SyncResultsHandler, opts connid.OperationOptions) (connid.SyncToken, error) {
	return token, fmt.Errorf("sync is not supported on a CSV output stream")
}

func (w *Writer) LatestSyncToken(ctx context.Context, oc connid.ObjectClass) (connid.SyncToken, error) {
	return "", nil
}
