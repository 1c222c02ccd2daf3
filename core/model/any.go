package model

import (
	"slices"
	"sort"
	"time"
)

// AnyTypeKind partitions any types by the logic that manages them.
type AnyTypeKind string

const (
	KindUser      AnyTypeKind = "USER"
	KindGroup     AnyTypeKind = "GROUP"
	KindAnyObject AnyTypeKind = "ANY_OBJECT"
)

// Valid reports whether k is a known kind.
func (k AnyTypeKind) Valid() bool {
	switch k {
	case KindUser, KindGroup, KindAnyObject:
		return true
	}
	return false
}

// User statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Realm is a node of the administrative tree.
type Realm struct {
	Key       string `gorm:"column:id;primaryKey;size:64" json:"key"`
	Name      string `gorm:"column:name;size:255" json:"name"`
	ParentKey string `gorm:"column:parent_id;size:64" json:"parent,omitempty"`
	FullPath  string `gorm:"column:full_path;uniqueIndex;size:255" json:"fullPath"`
}

func (Realm) TableName() string { return "realms" }

// AnyType is a type of managed entity: USER, GROUP or a custom any object type.
type AnyType struct {
	Key  string      `gorm:"column:id;primaryKey;size:64" json:"key"`
	Kind AnyTypeKind `gorm:"column:kind;size:16" json:"kind"`
}

func (AnyType) TableName() string { return "any_types" }

// Attrs holds multi-valued string attributes keyed by schema.
type Attrs map[string][]string

// First returns the first value of name, or "".
func (a Attrs) First(name string) string {
	if values := a[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

// Clone returns a deep copy.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = slices.Clone(v)
	}
	return out
}

// Any is a user, group or any object.
type Any struct {
	Key          string      `gorm:"column:id;primaryKey;size:64" json:"key"`
	Kind         AnyTypeKind `gorm:"column:kind;size:16;index" json:"kind"`
	Type         string      `gorm:"column:any_type;size:64;uniqueIndex:idx_any_type_name" json:"type"`
	Name         string      `gorm:"column:name;size:255;uniqueIndex:idx_any_type_name" json:"name"`
	RealmPath    string      `gorm:"column:realm;size:255;index" json:"realm"`
	Password     string      `gorm:"column:password;size:255" json:"-"`
	Status       string      `gorm:"column:status;size:32" json:"status,omitempty"`
	PlainAttrs   Attrs       `gorm:"column:plain_attrs;serializer:json" json:"plainAttrs,omitempty"`
	Resources    []string    `gorm:"column:resources;serializer:json" json:"resources,omitempty"`
	CreationDate time.Time   `gorm:"column:creation_date;autoCreateTime" json:"creationDate"`
	LastChange   time.Time   `gorm:"column:last_change;autoUpdateTime" json:"lastChange"`
}

func (Any) TableName() string { return "anys" }

// HasResource reports whether resourceKey is assigned.
func (a *Any) HasResource(resourceKey string) bool {
	return slices.Contains(a.Resources, resourceKey)
}

// AssignResource adds resourceKey, returning false when already assigned.
func (a *Any) AssignResource(resourceKey string) bool {
	if a.HasResource(resourceKey) {
		return false
	}
	a.Resources = append(a.Resources, resourceKey)
	sort.Strings(a.Resources)
	return true
}

// UnassignResource removes resourceKey, returning false when it was not assigned.
func (a *Any) UnassignResource(resourceKey string) bool {
	idx := slices.Index(a.Resources, resourceKey)
	if idx < 0 {
		return false
	}
	a.Resources = slices.Delete(a.Resources, idx, idx+1)
	return true
}

// PlainAttrValue indexes one plain attribute value for lookups by value.
type PlainAttrValue struct {
	ID         uint   `gorm:"column:id;primaryKey;autoIncrement"`
	AnyKey     string `gorm:"column:any_id;size:64;index"`
	AnyType    string `gorm:"column:any_type;size:64;index:idx_plain_lookup,priority:1"`
	Schema     string `gorm:"column:schema_name;size:255;index:idx_plain_lookup,priority:2"`
	Value      string `gorm:"column:value;size:255;index:idx_plain_lookup,priority:3"`
	ValueLower string `gorm:"column:value_lower;size:255;index"`
}

func (PlainAttrValue) TableName() string { return "plain_attr_values" }

// LinkedAccount is an additional account of a user on one resource.
type LinkedAccount struct {
	Key                string `gorm:"column:id;primaryKey;size:64" json:"key"`
	OwnerKey           string `gorm:"column:owner_id;size:64;index" json:"owner"`
	ResourceKey        string `gorm:"column:resource_id;size:64;uniqueIndex:idx_linked_resource_value" json:"resource"`
	ConnObjectKeyValue string `gorm:"column:conn_object_key_value;size:255;uniqueIndex:idx_linked_resource_value" json:"connObjectKeyValue"`
	Username           string `gorm:"column:username;size:255" json:"username,omitempty"`
	Password           string `gorm:"column:password;size:255" json:"-"`
	Suspended          bool   `gorm:"column:suspended" json:"suspended"`
	PlainAttrs         Attrs  `gorm:"column:plain_attrs;serializer:json" json:"plainAttrs,omitempty"`
}

func (LinkedAccount) TableName() string { return "linked_accounts" }

// DerSchema computes an attribute from an expression over the entity.
type DerSchema struct {
	Key        string `gorm:"column:id;primaryKey;size:255" json:"key"`
	Expression string `gorm:"column:expression;size:1024" json:"expression"`
}

func (DerSchema) TableName() string { return "der_schemas" }

// VirSchema reads an attribute from a resource on demand.
type VirSchema struct {
	Key         string `gorm:"column:id;primaryKey;size:255" json:"key"`
	ResourceKey string `gorm:"column:resource_id;size:64;index" json:"resource"`
	AnyType     string `gorm:"column:any_type;size:64" json:"anyType"`
	ExtAttrName string `gorm:"column:ext_attr_name;size:255" json:"extAttrName"`
}

func (VirSchema) TableName() string { return "vir_schemas" }
