package connid

import (
	"slices"
	"strings"

	"idm-reconciler/core/utils"
)

// Special attribute names.
const (
	AttrUID      = "__UID__"
	AttrName     = "__NAME__"
	AttrPassword = "__PASSWORD__"
	AttrEnable   = "__ENABLE__"
)

// ObjectClass names a kind of object on the external system.
type ObjectClass string

const (
	ObjectClassAccount ObjectClass = "__ACCOUNT__"
	ObjectClassGroup   ObjectClass = "__GROUP__"
)

// Attribute is a named multi-valued attribute.
type Attribute struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// Strings returns the values converted to strings.
func (a Attribute) Strings() []string {
	return utils.ToStrings(a.Values)
}

// AttributeSet is an ordered set of attributes with case-insensitive names.
type AttributeSet []Attribute

// Find returns the attribute called name.
func (s AttributeSet) Find(name string) (Attribute, bool) {
	for _, a := range s {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Attribute{}, false
}

// First returns the first value of name as a string.
func (s AttributeSet) First(name string) string {
	a, ok := s.Find(name)
	if !ok || len(a.Values) == 0 {
		return ""
	}
	return utils.ToString(a.Values[0])
}

// Set replaces or appends an attribute, returning the new set.
func (s AttributeSet) Set(name string, values ...any) AttributeSet {
	for i, a := range s {
		if strings.EqualFold(a.Name, name) {
			s[i].Values = values
			return s
		}
	}
	return append(s, Attribute{Name: name, Values: values})
}

// Merge appends values to name, creating the attribute when needed.
func (s AttributeSet) Merge(name string, values ...any) AttributeSet {
	for i, a := range s {
		if strings.EqualFold(a.Name, name) {
			s[i].Values = append(s[i].Values, values...)
			return s
		}
	}
	return append(s, Attribute{Name: name, Values: values})
}

// Remove drops name, returning the new set.
func (s AttributeSet) Remove(name string) AttributeSet {
	return slices.DeleteFunc(slices.Clone(s), func(a Attribute) bool {
		return strings.EqualFold(a.Name, name)
	})
}

// Clone returns a copy safe to mutate.
func (s AttributeSet) Clone() AttributeSet {
	out := make(AttributeSet, len(s))
	for i, a := range s {
		out[i] = Attribute{Name: a.Name, Values: slices.Clone(a.Values)}
	}
	return out
}

// ConnectorObject is an object read from a connector.
type ConnectorObject struct {
	ObjectClass ObjectClass  `json:"objectClass"`
	UID         string       `json:"uid"`
	Name        string       `json:"name"`
	Attrs       AttributeSet `json:"attrs"`
}

// Value returns the values of name, resolving __UID__ and __NAME__.
func (o *ConnectorObject) Value(name string) []string {
	switch {
	case strings.EqualFold(name, AttrUID):
		return []string{o.UID}
	case strings.EqualFold(name, AttrName):
		return []string{o.Name}
	}
	if a, ok := o.Attrs.Find(name); ok {
		return a.Strings()
	}
	return nil
}

// Capability is an operation a connector may support.
type Capability string

const (
	CapCreate      Capability = "CREATE"
	CapUpdate      Capability = "UPDATE"
	CapDelete      Capability = "DELETE"
	CapSearch      Capability = "SEARCH"
	CapSync        Capability = "SYNC"
	CapTest        Capability = "TEST"
	CapAuth        Capability = "AUTHENTICATE"
	CapSchema      Capability = "SCHEMA"
	CapPagedSearch Capability = "PAGED_SEARCH"
)

// Capabilities is a set of capabilities.
type Capabilities map[Capability]bool

// NewCapabilities builds a set.
func NewCapabilities(caps ...Capability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// ParseCapabilities builds a set from stored names.
func ParseCapabilities(names []string) Capabilities {
	set := make(Capabilities, len(names))
	for _, n := range names {
		set[Capability(strings.ToUpper(n))] = true
	}
	return set
}

// Names returns the sorted capability names.
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(c))
	for cap, on := range c {
		if on {
			names = append(names, string(cap))
		}
	}
	slices.Sort(names)
	return names
}

// SortKey orders search results by one attribute.
type SortKey struct {
	Field     string `json:"field"`
	Ascending bool   `json:"ascending"`
}

// OperationOptions tune a connector call.
type OperationOptions struct {
	AttributesToGet    []string  `json:"attributesToGet,omitempty"`
	PageSize           int       `json:"pageSize,omitempty"`
	PagedResultsCookie string    `json:"pagedResultsCookie,omitempty"`
	SortKeys           []SortKey `json:"sortKeys,omitempty"`
}

// SearchResult closes a search.
type SearchResult struct {
	PagedResultsCookie    string `json:"pagedResultsCookie,omitempty"`
	RemainingPagedResults int    `json:"remainingPagedResults"`
}

// SyncToken is an opaque change-log cursor. The empty token means "from the start".
type SyncToken string

// DeltaType classifies a sync delta.
type DeltaType string

const (
	DeltaCreateOrUpdate DeltaType = "CREATE_OR_UPDATE"
	DeltaDelete         DeltaType = "DELETE"
)

// SyncDelta is one change delivered by Sync.
type SyncDelta struct {
	Token  SyncToken        `json:"token"`
	Type   DeltaType        `json:"type"`
	UID    string           `json:"uid"`
	Object *ConnectorObject `json:"object,omitempty"`
}

// ObjectClassInfo describes an object class for schema listing.
type ObjectClassInfo struct {
	Type       ObjectClass `json:"type"`
	Attributes []string    `json:"attributes"`
}
