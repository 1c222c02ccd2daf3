package csvstream

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Reader is a read-only, single pass connector over CSV rows.
type Reader struct {
	spec    Spec
	csv     *csv.Reader
	header  []string
	columns []string

	mu       sync.Mutex
	consumed bool
}

// NewReader reads the header row and resolves the columns. The header is mandatory.
func NewReader(r io.Reader, spec Spec) (*Reader, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.WithDefaults()

	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.Comma = spec.comma()
	if spec.AllowComments {
		cr.Comment = '#'
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, clienterr.New(clienterr.InvalidValues, "missing CSV header")
	}
	if err != nil {
		return nil, clienterr.Wrap(clienterr.InvalidValues, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	columns, err := spec.ResolveColumns(header)
	if err != nil {
		return nil, err
	}
	return &Reader{spec: spec, csv: cr, header: header, columns: columns}, nil
}

// Columns returns the resolved columns.
func (r *Reader) Columns() []string {
	return r.columns
}

func (r *Reader) Capabilities() connid.Capabilities {
	return connid.NewCapabilities(connid.CapSearch, connid.CapSync)
}

func (r *Reader) Test(ctx context.Context) error {
	return nil
}

// each delivers rows until fn returns false or the stream ends.
func (r *Reader) each(ctx context.Context, oc connid.ObjectClass, fn func(row int, obj *connid.ConnectorObject) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumed {
		return errors.New("CSV stream already consumed")
	}
	r.consumed = true

	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return clienterr.Wrap(clienterr.InvalidValues, err)
		}
		if !fn(row, r.toObject(oc, record)) {
			return nil
		}
	}
}

func (r *Reader) toObject(oc connid.ObjectClass, record []string) *connid.ConnectorObject {
	obj := &connid.ConnectorObject{ObjectClass: oc}
	for i, value := range record {
		if i >= len(r.header) {
			break
		}
		column := r.header[i]
		if !containsColumn(r.columns, column) {
			continue
		}
		var values []any
		if value != r.spec.NullValue && value != "" {
			for _, v := range strings.Split(value, r.spec.ArrayElementSeparator) {
				values = append(values, v)
			}
		}
		obj.Attrs = append(obj.Attrs, connid.Attribute{Name: column, Values: values})
		if column == r.spec.KeyColumn && len(values) > 0 {
			obj.UID = value
			obj.Name = value
		}
	}
	return obj
}

func (r *Reader) Search(ctx context.Context, oc connid.ObjectClass, filter *connid.Filter, handler connid.ResultsHandler, opts connid.OperationOptions) (connid.SearchResult, error) {
	err := r.each(ctx, oc, func(_ int, obj *connid.ConnectorObject) bool {
		if !filter.Matches(obj) {
			return true
		}
		return handler(obj)
	})
	return connid.SearchResult{}, err
}

func (r *Reader) Sync(ctx context.Context, oc connid.ObjectClass, token connid.SyncToken, handler connid.SyncResultsHandler, opts connid.OperationOptions) (connid.SyncToken, error) {
	last := token
	err := r.each(ctx, oc, func(row int, obj *connid.ConnectorObject) bool {
		last = connid.SyncToken(strconv.Itoa(row))
		return handler(&connid.SyncDelta{Token: last, Type: connid.DeltaCreateOrUpdate, UID: obj.UID, Object: obj})
	})
	return last, err
}

func (r *Reader) LatestSyncToken(ctx context.Context, oc connid.ObjectClass) (connid.SyncToken, error) {
	return "", nil
}

func (r *Reader) GetObject(ctx context.Context, oc connid.ObjectClass, uid string, opts connid.OperationOptions) (*connid.ConnectorObject, error) {
	return nil, fmt.Errorf("get is not supported on a CSV stream")
}

func (r *Reader) Create(ctx context.Context, oc connid.ObjectClass, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	return "", fmt.Errorf("create is not supported on a CSV input stream")
}

func (r *Reader) Update(ctx context.Context, oc connid.ObjectClass, uid string, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	return "", fmt.Errorf("update is not supported on a CSV input stream")
}

func (r *Reader) Delete(ctx context.Context, oc connid.ObjectClass, uid string, opts connid.OperationOptions) error {
	return fmt.Errorf("delete is not supported on a CSV stream")
}

func containsColumn(columns []string, c string) bool {
	for _, col := range columns {
		if col == c {
			return true
		}
	}
	return false
}
