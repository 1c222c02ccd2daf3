package memory

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"idm-reconciler/core/connid"

	"github.com/hashicorp/go-memdb"
)

const changesTable = "changes"

// record is one stored object; records are immutable once inserted.
type record struct {
	UID   string
	Name  string
	Attrs connid.AttributeSet
}

func (r *record) object(oc connid.ObjectClass, attrsToGet []string) *connid.ConnectorObject {
	obj := &connid.ConnectorObject{ObjectClass: oc, UID: r.UID, Name: r.Name}
	for _, a := range r.Attrs {
		if strings.EqualFold(a.Name, connid.AttrPassword) {
			continue
		}
		if len(attrsToGet) > 0 && !containsFold(attrsToGet, a.Name) {
			continue
		}
		obj.Attrs = append(obj.Attrs, connid.Attribute{Name: a.Name, Values: append([]any(nil), a.Values...)})
	}
	return obj
}

// change is one entry of the change log.
type change struct {
	Seq         uint64
	ObjectClass string
	Type        connid.DeltaType
	UID         string
	Record      *record
}

// Store is a named in-memory system.
type Store struct {
	db      *memdb.MemDB
	classes []connid.ObjectClass

	mu  sync.Mutex
	seq uint64
}

var (
	sharedMu sync.Mutex
	shared   = make(map[string]*Store)
)

// Shared returns the store called name, creating it with classes when absent.
func Shared(name string, classes ...connid.ObjectClass) (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if s, ok := shared[name]; ok {
		return s, nil
	}
	s, err := NewStore(classes...)
	if err != nil {
		return nil, err
	}
	shared[name] = s
	return s, nil
}

// Reset forgets the store called name.
func Reset(name string) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	delete(shared, name)
}

// NewStore creates a standalone store.
func NewStore(classes ...connid.ObjectClass) (*Store, error) {
	if len(classes) == 0 {
		classes = []connid.ObjectClass{connid.ObjectClassAccount, connid.ObjectClassGroup}
	}
	schema := &memdb.DBSchema{Tables: map[string]*memdb.TableSchema{
		changesTable: {
			Name: changesTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {Name: "id", Unique: true, Indexer: &memdb.UintFieldIndex{Field: "Seq"}},
			},
		},
	}}
	for _, oc := range classes {
		schema.Tables[string(oc)] = &memdb.TableSchema{
			Name: string(oc),
			Indexes: map[string]*memdb.IndexSchema{
				"id":      {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "UID"}},
				"name":    {Name: "name", Indexer: &memdb.StringFieldIndex{Field: "Name"}},
				"name_ci": {Name: "name_ci", Indexer: &memdb.StringFieldIndex{Field: "Name", Lowercase: true}},
			},
		}
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store: %w", err)
	}
	return &Store{db: db, classes: classes}, nil
}

func (s *Store) table(oc connid.ObjectClass) (string, error) {
	for _, c := range s.classes {
		if c == oc {
			return string(oc), nil
		}
	}
	return "", fmt.Errorf("unsupported object class %s", oc)
}

// Put stores attrs as a new object and returns its uid. The uid is the __UID__
// attribute when present, else the __NAME__.
func (s *Store) Put(oc connid.ObjectClass, attrs connid.AttributeSet) (string, error) {
	table, err := s.table(oc)
	if err != nil {
		return "", err
	}
	name := attrs.First(connid.AttrName)
	if name == "" {
		return "", fmt.Errorf("missing %s", connid.AttrName)
	}
	uid := attrs.First(connid.AttrUID)
	if uid == "" {
		uid = name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	if existing, err := txn.First(table, "id", uid); err != nil {
		return "", err
	} else if existing != nil {
		return "", fmt.Errorf("%s %s: %w", oc, uid, connid.ErrAlreadyExists)
	}
	if existing, err := txn.First(table, "name", name); err != nil {
		return "", err
	} else if existing != nil {
		return "", fmt.Errorf("%s %s: %w", oc, name, connid.ErrAlreadyExists)
	}

	rec := &record{UID: uid, Name: name, Attrs: attrs.Remove(connid.AttrUID).Remove(connid.AttrName)}
	if err := txn.Insert(table, rec); err != nil {
		return "", err
	}
	if err := s.logChange(txn, oc, connid.DeltaCreateOrUpdate, uid, rec); err != nil {
		return "", err
	}
	txn.Commit()
	return uid, nil
}

// Modify replaces the given attributes of uid; __NAME__ renames the object.
func (s *Store) Modify(oc connid.ObjectClass, uid string, attrs connid.AttributeSet) error {
	table, err := s.table(oc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(table, "id", uid)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("%s %s: %w", oc, uid, connid.ErrUnknownUID)
	}
	current := raw.(*record)
	next := &record{UID: current.UID, Name: current.Name, Attrs: current.Attrs.Clone()}

	for _, a := range attrs {
		switch {
		case strings.EqualFold(a.Name, connid.AttrUID):
			continue
		case strings.EqualFold(a.Name, connid.AttrName):
			name := a.Strings()
			if len(name) == 0 || name[0] == "" {
				return fmt.Errorf("empty %s", connid.AttrName)
			}
			if name[0] != current.Name {
				if clash, err := txn.First(table, "name", name[0]); err != nil {
					return err
				} else if clash != nil {
					return fmt.Errorf("%s %s: %w", oc, name[0], connid.ErrAlreadyExists)
				}
			}
			next.Name = name[0]
		case len(a.Values) == 0:
			next.Attrs = next.Attrs.Remove(a.Name)
		default:
			next.Attrs = next.Attrs.Set(a.Name, append([]any(nil), a.Values...)...)
		}
	}

	if err := txn.Insert(table, next); err != nil {
		return err
	}
	if err := s.logChange(txn, oc, connid.DeltaCreateOrUpdate, uid, next); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Remove deletes uid.
func (s *Store) Remove(oc connid.ObjectClass, uid string) error {
	table, err := s.table(oc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(table, "id", uid)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("%s %s: %w", oc, uid, connid.ErrUnknownUID)
	}
	if err := txn.Delete(table, raw); err != nil {
		return err
	}
	if err := s.logChange(txn, oc, connid.DeltaDelete, uid, nil); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// get returns uid, or nil.
func (s *Store) get(oc connid.ObjectClass, uid string) (*record, error) {
	table, err := s.table(oc)
	if err != nil {
		return nil, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(table, "id", uid)
	if err != nil || raw == nil {
		return nil, err
	}
	return raw.(*record), nil
}

// all returns every object of oc ordered by uid.
func (s *Store) all(oc connid.ObjectClass) ([]*record, error) {
	table, err := s.table(oc)
	if err != nil {
		return nil, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(table, "id")
	if err != nil {
		return nil, err
	}
	var out []*record
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*record))
	}
	return out, nil
}

// lookup uses the uid or name indexes to resolve simple equality filters.
// It returns handled=false when the filter needs a full scan.
func (s *Store) lookup(oc connid.ObjectClass, f *connid.Filter) (recs []*record, handled bool, err error) {
	if f == nil || (f.Op != connid.OpEquals && f.Op != connid.OpEqualsIgnoreCase) {
		return nil, false, nil
	}
	table, err := s.table(oc)
	if err != nil {
		return nil, true, err
	}

	var index, value string
	switch {
	case strings.EqualFold(f.Attr, connid.AttrUID) && f.Op == connid.OpEquals:
		index, value = "id", f.Value
	case strings.EqualFold(f.Attr, connid.AttrName) && f.Op == connid.OpEquals:
		index, value = "name", f.Value
	case strings.EqualFold(f.Attr, connid.AttrName):
		index, value = "name_ci", f.Value
	default:
		return nil, false, nil
	}

	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(table, index, value)
	if err != nil {
		return nil, true, err
	}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		recs = append(recs, raw.(*record))
	}
	return recs, true, nil
}

// changes returns the change log entries of oc after token.
func (s *Store) changes(oc connid.ObjectClass, token connid.SyncToken) ([]*change, error) {
	var after uint64
	if token != "" {
		v, err := strconv.ParseUint(string(token), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid sync token %q", token)
		}
		after = v
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.LowerBound(changesTable, "id", after+1)
	if err != nil {
		return nil, err
	}
	var out []*change
	for raw := it.Next(); raw != nil; raw = it.Next() {
		c := raw.(*change)
		if c.ObjectClass == string(oc) {
			out = append(out, c)
		}
	}
	return out, nil
}

// LatestToken returns the sequence number of the last change.
func (s *Store) LatestToken() connid.SyncToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return connid.SyncToken(strconv.FormatUint(s.seq, 10))
}

func (s *Store) logChange(txn *memdb.Txn, oc connid.ObjectClass, t connid.DeltaType, uid string, rec *record) error {
	s.seq++
	return txn.Insert(changesTable, &change{Seq: s.seq, ObjectClass: string(oc), Type: t, UID: uid, Record: rec})
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
