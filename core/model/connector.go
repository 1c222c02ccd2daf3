package model

import (
	"strings"
	"time"
)

// ConfProperty is one connector configuration property.
type ConfProperty struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// ConnInstance is a configured connector.
type ConnInstance struct {
	Key                string         `gorm:"column:id;primaryKey;size:64" json:"key"`
	DisplayName        string         `gorm:"column:display_name;size:255;uniqueIndex" json:"displayName"`
	AdminRealm         string         `gorm:"column:admin_realm;size:255;index" json:"adminRealm"`
	Location           string         `gorm:"column:location;size:255" json:"location"`
	BundleName         string         `gorm:"column:bundle_name;size:128" json:"bundleName"`
	Version            string         `gorm:"column:version;size:32" json:"version"`
	ConnectorName      string         `gorm:"column:connector_name;size:255" json:"connectorName"`
	Capabilities       []string       `gorm:"column:capabilities;serializer:json" json:"capabilities"`
	Conf               []ConfProperty `gorm:"column:conf;serializer:json" json:"conf"`
	ConnRequestTimeout int            `gorm:"column:conn_request_timeout" json:"connRequestTimeout"`
	LastChange         time.Time      `gorm:"column:last_change;autoUpdateTime" json:"lastChange"`
}

func (ConnInstance) TableName() string { return "conn_instances" }

// OrgUnit maps realms onto a resource object class.
type OrgUnit struct {
	ObjectClass    string `json:"objectClass"`
	ConnObjectLink string `json:"connObjectLink,omitempty"`
}

// ExternalResource binds a connector to provisions.
type ExternalResource struct {
	Key                    string         `gorm:"column:id;primaryKey;size:64" json:"key"`
	ConnectorKey           string         `gorm:"column:connector_id;size:64;index" json:"connector"`
	Provisions             []Provision    `gorm:"foreignKey:ResourceKey;references:Key" json:"provisions"`
	OrgUnit                *OrgUnit       `gorm:"column:org_unit;serializer:json" json:"orgUnit,omitempty"`
	PropagationPriority    int            `gorm:"column:propagation_priority" json:"propagationPriority"`
	ConfOverride           []ConfProperty `gorm:"column:conf_override;serializer:json" json:"confOverride,omitempty"`
	RandomPwdIfNotProvided bool           `gorm:"column:random_pwd_if_not_provided" json:"randomPwdIfNotProvided"`
	LastChange             time.Time      `gorm:"column:last_change;autoUpdateTime" json:"lastChange"`
}

func (ExternalResource) TableName() string { return "external_resources" }

// Provision returns the provision for anyType.
func (r *ExternalResource) Provision(anyType string) (*Provision, bool) {
	for i := range r.Provisions {
		if r.Provisions[i].AnyType == anyType {
			return &r.Provisions[i], true
		}
	}
	return nil, false
}

// Provision binds an any type to an object class of a resource.
type Provision struct {
	ID              uint     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ResourceKey     string   `gorm:"column:resource_id;size:64;uniqueIndex:idx_provision_type" json:"resource"`
	AnyType         string   `gorm:"column:any_type;size:64;uniqueIndex:idx_provision_type" json:"anyType"`
	ObjectClass     string   `gorm:"column:object_class;size:128" json:"objectClass"`
	AuxClasses      []string `gorm:"column:aux_classes;serializer:json" json:"auxClasses,omitempty"`
	SyncToken       string   `gorm:"column:sync_token;size:1024" json:"syncToken,omitempty"`
	IgnoreCaseMatch bool     `gorm:"column:ignore_case_match" json:"ignoreCaseMatch"`
	UidOnCreate     string   `gorm:"column:uid_on_create;size:255" json:"uidOnCreate,omitempty"`
	Mapping         *Mapping `gorm:"column:mapping;serializer:json" json:"mapping,omitempty"`
}

func (Provision) TableName() string { return "provisions" }

// Purpose tells in which directions an item applies.
type Purpose string

const (
	PurposePropagation Purpose = "PROPAGATION"
	PurposePull        Purpose = "PULL"
	PurposeBoth        Purpose = "BOTH"
	PurposeNone        Purpose = "NONE"
)

// Outbound reports whether the item applies to push and propagation.
func (p Purpose) Outbound() bool {
	return p == PurposePropagation || p == PurposeBoth
}

// Inbound reports whether the item applies to pull.
func (p Purpose) Inbound() bool {
	return p == PurposePull || p == PurposeBoth
}

// Item maps one internal attribute to one external attribute.
type Item struct {
	IntAttrName            string  `json:"intAttrName"`
	ExtAttrName            string  `json:"extAttrName"`
	ConnObjectKey          bool    `json:"connObjectKey"`
	Password               bool    `json:"password"`
	MandatoryCondition     string  `json:"mandatoryCondition"`
	Multivalue             bool    `json:"multivalue"`
	Purpose                Purpose `json:"purpose"`
	PropagationTransformer string  `json:"propagationTransformer,omitempty"`
	PullTransformer        string  `json:"pullTransformer,omitempty"`
}

// Mapping is the ordered list of items of a provision.
type Mapping struct {
	ConnObjectLink string `json:"connObjectLink,omitempty"`
	Items          []Item `json:"items"`
}

// ConnObjectKeyItem returns the single item flagged as connObjectKey.
func (m *Mapping) ConnObjectKeyItem() (Item, bool) {
	if m == nil {
		return Item{}, false
	}
	for _, item := range m.Items {
		if item.ConnObjectKey {
			return item, true
		}
	}
	return Item{}, false
}

// KeyItemCount counts items flagged as connObjectKey.
func (m *Mapping) KeyItemCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, item := range m.Items {
		if item.ConnObjectKey {
			n++
		}
	}
	return n
}

// ExtAttrNames lists the distinct external names of items matching keep.
func (m *Mapping) ExtAttrNames(keep func(Item) bool) []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var names []string
	for _, item := range m.Items {
		if !keep(item) || item.ExtAttrName == "" {
			continue
		}
		key := strings.ToLower(item.ExtAttrName)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		names = append(names, item.ExtAttrName)
	}
	return names
}
