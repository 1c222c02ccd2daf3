package provisioning

import (
	"fmt"
	"strings"

	"idm-reconciler/core/clienterr"
	"idm-reconciler/core/connid"
)

// MatchingRule decides what happens when a counterpart is found.
type MatchingRule string

const (
	MatchingIgnore      MatchingRule = "IGNORE"
	MatchingUpdate      MatchingRule = "UPDATE"
	MatchingDeprovision MatchingRule = "DEPROVISION"
	MatchingUnassign    MatchingRule = "UNASSIGN"
	MatchingLink        MatchingRule = "LINK"
	MatchingUnlink      MatchingRule = "UNLINK"
)

// UnmatchingRule decides what happens when no counterpart is found.
type UnmatchingRule string

const (
	UnmatchingIgnore    UnmatchingRule = "IGNORE"
	UnmatchingAssign    UnmatchingRule = "ASSIGN"
	UnmatchingProvision UnmatchingRule = "PROVISION"
	UnmatchingUnlink    UnmatchingRule = "UNLINK"
)

// ParseMatchingRule accepts rule names in any case.
func ParseMatchingRule(s string) (MatchingRule, error) {
	rule := MatchingRule(strings.ToUpper(strings.TrimSpace(s)))
	switch rule {
	case MatchingIgnore, MatchingUpdate, MatchingDeprovision, MatchingUnassign, MatchingLink, MatchingUnlink:
		return rule, nil
	}
	return "", clienterr.Newf(clienterr.InvalidValues, "unknown matching rule %q", s)
}

// ParseUnmatchingRule accepts rule names in any case.
func ParseUnmatchingRule(s string) (UnmatchingRule, error) {
	rule := UnmatchingRule(strings.ToUpper(strings.TrimSpace(s)))
	switch rule {
	case UnmatchingIgnore, UnmatchingAssign, UnmatchingProvision, UnmatchingUnlink:
		return rule, nil
	}
	return "", clienterr.Newf(clienterr.InvalidValues, "unknown unmatching rule %q", s)
}

// Operation is the change applied by a report.
type Operation string

const (
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
	OperationNone   Operation = "NONE"
)

// Status is the outcome of a report.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusIgnore  Status = "IGNORE"
	StatusFailure Status = "FAILURE"
)

// ProvisioningReport is the outcome of provisioning one entity or object.
type ProvisioningReport struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	AnyType   string    `json:"anyType"`
	UIDValue  string    `json:"uidValue,omitempty"`
	Operation Operation `json:"operation"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

func (r *ProvisioningReport) ignore(op Operation, format string, args ...any) {
	r.Operation = op
	r.Status = StatusIgnore
	r.Message = fmt.Sprintf(format, args...)
}

func (r *ProvisioningReport) success(op Operation) {
	r.Operation = op
	r.Status = StatusSuccess
	r.Message = ""
}

func (r *ProvisioningReport) fail(err error) {
	r.Status = StatusFailure
	r.Message = err.Error()
}

// PushTask drives a push.
type PushTask struct {
	MatchingRule   MatchingRule   `json:"matchingRule"`
	UnmatchingRule UnmatchingRule `json:"unmatchingRule"`
	PerformCreate  bool           `json:"performCreate"`
	PerformUpdate  bool           `json:"performUpdate"`
	PerformDelete  bool           `json:"performDelete"`
	// SyncStatus propagates the user status as __ENABLE__.
	SyncStatus bool     `json:"syncStatus"`
	Actions    []string `json:"actions,omitempty"`
	DryRun     bool     `json:"dryRun"`
}

// DefaultPushTask updates matched objects and provisions unmatched ones.
func DefaultPushTask() PushTask {
	return PushTask{
		MatchingRule:   MatchingUpdate,
		UnmatchingRule: UnmatchingProvision,
		PerformCreate:  true,
		PerformUpdate:  true,
		PerformDelete:  true,
	}
}

// PullMode selects which remote objects PullAll reads.
type PullMode string

const (
	PullFullReconciliation PullMode = "FULL_RECONCILIATION"
	PullIncremental        PullMode = "INCREMENTAL"
	PullFiltered           PullMode = "FILTERED"
)

// ParsePullMode accepts mode names in any case, plus the short forms full, incremental
// and filtered.
func ParsePullMode(s string) (PullMode, error) {
	mode := PullMode(strings.ToUpper(strings.TrimSpace(s)))
	switch mode {
	case "FULL":
		return PullFullReconciliation, nil
	case PullFullReconciliation, PullIncremental, PullFiltered:
		return mode, nil
	}
	return "", clienterr.Newf(clienterr.InvalidValues, "unknown pull mode %q", s)
}

// PullTask drives a pull.
type PullTask struct {
	MatchingRule     MatchingRule   `json:"matchingRule"`
	UnmatchingRule   UnmatchingRule `json:"unmatchingRule"`
	DestinationRealm string         `json:"destinationRealm"`
	PerformCreate    bool           `json:"performCreate"`
	PerformUpdate    bool           `json:"performUpdate"`
	PerformDelete    bool           `json:"performDelete"`
	// Remediation saves failures for later replay instead of only reporting them.
	Remediation bool     `json:"remediation"`
	Actions     []string `json:"actions,omitempty"`
	PullMode    PullMode `json:"pullMode"`
	// Filter restricts FILTERED pulls.
	Filter *connid.Filter `json:"-"`
	DryRun bool           `json:"dryRun"`
}

// DefaultPullTask updates matched entities and creates unmatched ones in realm.
func DefaultPullTask(realm string) PullTask {
	return PullTask{
		MatchingRule:     MatchingUpdate,
		UnmatchingRule:   UnmatchingProvision,
		DestinationRealm: realm,
		PerformCreate:    true,
		PerformUpdate:    true,
		PerformDelete:    true,
		PullMode:         PullFullReconciliation,
	}
}

// Failures combines the FAILURE reports into one Reconciliation error, nil when none failed.
func Failures(reports []ProvisioningReport) error {
	var c clienterr.Collector
	for _, r := range reports {
		if r.Status == StatusFailure {
			c.Append(fmt.Errorf("%s %s: %s", r.AnyType, nameOrKey(r), r.Message))
		}
	}
	return c.Err(clienterr.Reconciliation)
}

func nameOrKey(r ProvisioningReport) string {
	if r.Name != "" {
		return r.Name
	}
	if r.Key != "" {
		return r.Key
	}
	return r.UIDValue
}
