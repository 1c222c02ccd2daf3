package connid

import (
	"strings"
)

// FilterOp is a filter operator.
type FilterOp string

const (
	OpEquals           FilterOp = "EQUALS"
	OpEqualsIgnoreCase FilterOp = "EQUALS_IGNORE_CASE"
	OpAnd              FilterOp = "AND"
	OpOr               FilterOp = "OR"
)

// Filter selects connector objects. A nil filter selects everything.
type Filter struct {
	Op       FilterOp
	Attr     string
	Value    string
	Children []*Filter
}

func Equals(attr, value string) *Filter {
	return &Filter{Op: OpEquals, Attr: attr, Value: value}
}

func EqualsIgnoreCase(attr, value string) *Filter {
	return &Filter{Op: OpEqualsIgnoreCase, Attr: attr, Value: value}
}

func And(children ...*Filter) *Filter {
	return &Filter{Op: OpAnd, Children: children}
}

func Or(children ...*Filter) *Filter {
	return &Filter{Op: OpOr, Children: children}
}

// Matches evaluates f against obj in memory.
func (f *Filter) Matches(obj *ConnectorObject) bool {
	if f == nil {
		return true
	}
	switch f.Op {
	case OpEquals, OpEqualsIgnoreCase:
		for _, v := range obj.Value(f.Attr) {
			if v == f.Value || (f.Op == OpEqualsIgnoreCase && strings.EqualFold(v, f.Value)) {
				return true
			}
		}
		return false
	case OpAnd:
		for _, c := range f.Children {
			if !c.Matches(obj) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.Children {
			if c.Matches(obj) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// String renders f in FIQL-like syntax for logs and status snapshots.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	switch f.Op {
	case OpEquals:
		return f.Attr + "==" + f.Value
	case OpEqualsIgnoreCase:
		return f.Attr + "=~" + f.Value
	case OpAnd, OpOr:
		sep := ";"
		if f.Op == OpOr {
			sep = ","
		}
		parts := make([]string, len(f.Children))
		for i, c := range f.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	default:
		return ""
	}
}
