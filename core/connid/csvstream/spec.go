package csvstream

import (
	"slices"
	"unicode/utf8"

	"idm-reconciler/core/clienterr"
)

// Spec describes the CSV layout.
type Spec struct {
	Columns               []string `json:"columns,omitempty"`
	KeyColumn             string   `json:"keyColumn,omitempty"`
	IgnoreColumns         []string `json:"ignoreColumns,omitempty"`
	ColumnSeparator       string   `json:"columnSeparator,omitempty"`
	ArrayElementSeparator string   `json:"arrayElementSeparator,omitempty"`
	QuoteChar             string   `json:"quoteChar,omitempty"`
	EscapeChar            string   `json:"escapeChar,omitempty"`
	NullValue             string   `json:"nullValue,omitempty"`
	LineSeparator         string   `json:"lineSeparator,omitempty"`
	AllowComments         bool     `json:"allowComments,omitempty"`
}

// WithDefaults fills unset separators.
func (s Spec) WithDefaults() Spec {
	if s.ColumnSeparator == "" {
		s.ColumnSeparator = ","
	}
	if s.ArrayElementSeparator == "" {
		s.ArrayElementSeparator = ";"
	}
	if s.QuoteChar == "" {
		s.QuoteChar = `"`
	}
	if s.LineSeparator == "" {
		s.LineSeparator = "\n"
	}
	return s
}

// Validate rejects layouts encoding/csv cannot produce or parse.
func (s Spec) Validate() error {
	s = s.WithDefaults()
	invalid := clienterr.New(clienterr.InvalidValues)
	if utf8.RuneCountInString(s.ColumnSeparator) != 1 {
		invalid.Add("column separator must be a single character")
	} else if r, _ := utf8.DecodeRuneInString(s.ColumnSeparator); r == '"' || r == '\r' || r == '\n' {
		invalid.Add("invalid column separator " + s.ColumnSeparator)
	}
	if s.QuoteChar != `"` {
		invalid.Add("only \" is supported as quote character")
	}
	if s.EscapeChar != "" && s.EscapeChar != `"` {
		invalid.Add("only \" is supported as escape character")
	}
	if s.LineSeparator != "\n" && s.LineSeparator != "\r\n" {
		invalid.Add("line separator must be \\n or \\r\\n")
	}
	if s.ArrayElementSeparator == s.ColumnSeparator {
		invalid.Add("array element separator must differ from column separator")
	}
	if len(invalid.Elements) > 0 {
		return invalid
	}
	return nil
}

// ResolveColumns drops ignored columns from header and checks the key column is kept.
func (s Spec) ResolveColumns(header []string) ([]string, error) {
	columns := make([]string, 0, len(header))
	for _, h := range header {
		if !slices.Contains(s.IgnoreColumns, h) {
			columns = append(columns, h)
		}
	}
	if s.KeyColumn == "" || !slices.Contains(columns, s.KeyColumn) {
		return nil, clienterr.Newf(clienterr.NotFound, "key column %q among %v", s.KeyColumn, columns)
	}
	return columns, nil
}

func (s Spec) comma() rune {
	r, _ := utf8.DecodeRuneInString(s.WithDefaults().ColumnSeparator)
	return r
}
