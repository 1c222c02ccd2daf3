package model

import "time"

// MatchType tells what an external object was matched to.
type MatchType string

const (
	MatchAny           MatchType = "ANY"
	MatchLinkedAccount MatchType = "LINKED_ACCOUNT"
)

// ConnObjectAttr is one attribute of a ConnObject snapshot.
type ConnObjectAttr struct {
	Schema string   `json:"schema"`
	Values []string `json:"values"`
}

// ConnObject is a snapshot of a connector object, internal or remote.
type ConnObject struct {
	FIQL  string           `json:"fiql"`
	Attrs []ConnObjectAttr `json:"attrs"`
}

// Attr returns the values of schema.
func (o *ConnObject) Attr(schema string) ([]string, bool) {
	if o == nil {
		return nil, false
	}
	for _, a := range o.Attrs {
		if a.Schema == schema {
			return a.Values, true
		}
	}
	return nil, false
}

// ReconStatus is the three-way reconciliation status of one key.
type ReconStatus struct {
	MatchType   MatchType   `json:"matchType,omitempty"`
	AnyTypeKind AnyTypeKind `json:"anyTypeKind,omitempty"`
	AnyKey      string      `json:"anyKey,omitempty"`
	RealmOrUnit string      `json:"realmOrUnit,omitempty"`
	OnSyncope   *ConnObject `json:"onSyncope,omitempty"`
	OnResource  *ConnObject `json:"onResource,omitempty"`
}

// Remediation records a pull failure for later replay.
type Remediation struct {
	Key         string    `gorm:"column:id;primaryKey;size:64" json:"key"`
	AnyType     string    `gorm:"column:any_type;size:64" json:"anyType"`
	Operation   string    `gorm:"column:operation;size:16" json:"operation"`
	Payload     string    `gorm:"column:payload;type:text" json:"payload"`
	Error       string    `gorm:"column:error;type:text" json:"error"`
	Instant     time.Time `gorm:"column:instant;index" json:"instant"`
	ResourceKey string    `gorm:"column:resource_id;size:64;index" json:"resource"`
	RemoteName  string    `gorm:"column:remote_name;size:255" json:"remoteName"`
}

func (Remediation) TableName() string { return "remediations" }

// All lists the persistent entities for schema migration.
func All() []any {
	return []any{
		&Realm{},
		&AnyType{},
		&ConnInstance{},
		&ExternalResource{},
		&Provision{},
		&Any{},
		&PlainAttrValue{},
		&LinkedAccount{},
		&DerSchema{},
		&VirSchema{},
		&Remediation{},
	}
}
