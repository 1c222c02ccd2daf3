package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"idm-reconciler/core/connid"
)

// BundleName is the registry name of this bundle.
const BundleName = "memory"

// Info describes the bundle for registry listings.
var Info = connid.BundleInfo{
	Name:          BundleName,
	Version:       "1.0",
	ConnectorName: "MemoryConnector",
	Properties:    []string{"instance", "objectClasses", "failTest"},
}

// Connector is a connector over a Store.
type Connector struct {
	store    *Store
	failTest bool
}

// Factory builds connectors sharing the store named by the "instance" property.
func Factory(conf connid.Configuration) (connid.Connector, error) {
	var classes []connid.ObjectClass
	for _, oc := range conf.Strings("objectClasses") {
		classes = append(classes, connid.ObjectClass(oc))
	}
	store, err := Shared(conf.String("instance", "default"), classes...)
	if err != nil {
		return nil, err
	}
	return &Connector{store: store, failTest: conf.Bool("failTest")}, nil
}

// New creates a connector over store.
func New(store *Store) *Connector {
	return &Connector{store: store}
}

func (c *Connector) Capabilities() connid.Capabilities {
	return connid.NewCapabilities(
		connid.CapCreate, connid.CapUpdate, connid.CapDelete,
		connid.CapSearch, connid.CapPagedSearch, connid.CapSync, connid.CapTest, connid.CapSchema,
	)
}

func (c *Connector) Test(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.failTest {
		return errors.New("test failure requested by configuration")
	}
	return nil
}

func (c *Connector) Search(ctx context.Context, oc connid.ObjectClass, filter *connid.Filter, handler connid.ResultsHandler, opts connid.OperationOptions) (connid.SearchResult, error) {
	recs, handled, err := c.store.lookup(oc, filter)
	if err != nil {
		return connid.SearchResult{}, err
	}
	if !handled {
		if recs, err = c.store.all(oc); err != nil {
			return connid.SearchResult{}, err
		}
	}

	var matched []*connid.ConnectorObject
	for _, rec := range recs {
		obj := rec.object(oc, nil)
		if filter.Matches(obj) {
			matched = append(matched, rec.object(oc, opts.AttributesToGet))
		}
	}
	sortObjects(matched, opts.SortKeys)

	offset := 0
	if opts.PagedResultsCookie != "" {
		offset, err = strconv.Atoi(opts.PagedResultsCookie)
		if err != nil || offset < 0 {
			return connid.SearchResult{}, fmt.Errorf("invalid paged results cookie %q", opts.PagedResultsCookie)
		}
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := len(matched)
	if opts.PageSize > 0 && offset+opts.PageSize < end {
		end = offset + opts.PageSize
	}

	for i := offset; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return connid.SearchResult{}, err
		}
		if !handler(matched[i]) {
			end = i + 1
			break
		}
	}

	result := connid.SearchResult{RemainingPagedResults: len(matched) - end}
	if opts.PageSize > 0 && end < len(matched) {
		result.PagedResultsCookie = strconv.Itoa(end)
	}
	return result, nil
}

func (c *Connector) GetObject(ctx context.Context, oc connid.ObjectClass, uid string, opts connid.OperationOptions) (*connid.ConnectorObject, error) {
	rec, err := c.store.get(oc, uid)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.object(oc, opts.AttributesToGet), nil
}

func (c *Connector) Create(ctx context.Context, oc connid.ObjectClass, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.store.Put(oc, attrs)
}

func (c *Connector) Update(ctx context.Context, oc connid.ObjectClass, uid string, attrs connid.AttributeSet, opts connid.OperationOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.store.Modify(oc, uid, attrs); err != nil {
		return "", err
	}
	return uid, nil
}

func (c *Connector) Delete(ctx context.Context, oc connid.ObjectClass, uid string, opts connid.OperationOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store.Remove(oc, uid)
}

func (c *Connector) Sync(ctx context.Context, oc connid.ObjectClass, token connid.SyncToken, handler connid.SyncResultsHandler, opts connid.OperationOptions) (connid.SyncToken, error) {
	changes, err := c.store.changes(oc, token)
	if err != nil {
		return token, err
	}
	last := token
	for _, ch := range changes {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		delta := &connid.SyncDelta{
			Token: connid.SyncToken(strconv.FormatUint(ch.Seq, 10)),
			Type:  ch.Type,
			UID:   ch.UID,
		}
		if ch.Record != nil {
			delta.Object = ch.Record.object(oc, opts.AttributesToGet)
		}
		last = delta.Token
		if !handler(delta) {
			break
		}
	}
	return last, nil
}

func (c *Connector) LatestSyncToken(ctx context.Context, oc connid.ObjectClass) (connid.SyncToken, error) {
	return c.store.LatestToken(), nil
}

// Schema lists object classes with the attribute names currently in use.
func (c *Connector) Schema(ctx context.Context) ([]connid.ObjectClassInfo, error) {
	var infos []connid.ObjectClassInfo
	for _, oc := range c.store.classes {
		recs, err := c.store.all(oc)
		if err != nil {
			return nil, err
		}
		seen := map[string]bool{connid.AttrName: true}
		for _, rec := range recs {
			for _, a := range rec.Attrs {
				if !strings.EqualFold(a.Name, connid.AttrPassword) {
					seen[a.Name] = true
				}
			}
		}
		names := make([]string, 0, len(seen))
		for n := range seen {
			names = append(names, n)
		}
		sort.Strings(names)
		infos = append(infos, connid.ObjectClassInfo{Type: oc, Attributes: names})
	}
	return infos, nil
}

func sortObjects(objs []*connid.ConnectorObject, keys []connid.SortKey) {
	sort.SliceStable(objs, func(i, j int) bool {
		for _, k := range keys {
			a, b := firstOf(objs[i].Value(k.Field)), firstOf(objs[j].Value(k.Field))
			if a == b {
				continue
			}
			if k.Ascending {
				return a < b
			}
			return a > b
		}
		return objs[i].UID < objs[j].UID
	})
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
