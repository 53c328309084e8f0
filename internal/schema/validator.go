package schema

import (
	"context"
	"strings"

	"db-portal/internal/dberr"
	"db-portal/internal/sqlscan"
)

// Validator is the only path by which a caller-supplied identifier reaches
// SQL text. A name is checked against the denylist first, then against the
// introspected catalog, and is returned in its catalog spelling.
type Validator struct {
	in        *Introspector
	forbidden map[string]struct{}
	lexOpts   sqlscan.Options
}

// ParseDenylist splits a comma separated list of table names.
func ParseDenylist(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func NewValidator(in *Introspector, forbidden []string, lexOpts sqlscan.Options) *Validator {
	v := &Validator{in: in, forbidden: make(map[string]struct{}, len(forbidden)), lexOpts: lexOpts}
	for _, name := range forbidden {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			v.forbidden[name] = struct{}{}
		}
	}
	return v
}

// IsForbidden reports whether name, or its unqualified part, is denylisted.
func (v *Validator) IsForbidden(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	if _, ok := v.forbidden[n]; ok {
		return true
	}
	if i := strings.LastIndexByte(n, '.'); i >= 0 {
		_, ok := v.forbidden[n[i+1:]]
		return ok
	}
	return false
}

// ValidateTable returns the descriptor for name. A denylisted name fails
// with ForbiddenTable without touching the catalog, so its existence is
// never revealed.
func (v *Validator) ValidateTable(ctx context.Context, name string) (*Table, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dberr.New(dberr.KindInvalidArgument, "table")
	}
	if v.IsForbidden(name) {
		return nil, dberr.New(dberr.KindForbiddenTable, name)
	}
	return v.in.DescribeTable(ctx, name)
}

// ValidateColumn returns t's column called name, or UnknownColumn.
func (v *Validator) ValidateColumn(t *Table, name string) (*Column, error) {
	if c, ok := t.Column(strings.TrimSpace(name)); ok {
		return c, nil
	}
	return nil, dberr.New(dberr.KindUnknownColumn, name)
}

// ValidateProcedure applies the denylist to both parts of a possibly
// qualified routine name before introspecting it.
func (v *Validator) ValidateProcedure(ctx context.Context, name string) (*Procedure, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dberr.New(dberr.KindInvalidArgument, "procedure")
	}
	for _, part := range strings.Split(name, ".") {
		if v.IsForbidden(part) {
			return nil, dberr.New(dberr.KindForbiddenTable, name)
		}
	}
	return v.in.DescribeProcedure(ctx, name)
}

// CheckStatement rejects raw SQL that names a denylisted table anywhere
// outside literals and comments, bare or quoted.
func (v *Validator) CheckStatement(sql string) error {
	if len(v.forbidden) == 0 {
		return nil
	}
	for _, tok := range sqlscan.Tokenize(sql, v.lexOpts) {
		if tok.Type != sqlscan.Word && tok.Type != sqlscan.QuotedIdent {
			continue
		}
		if _, ok := v.forbidden[strings.ToLower(tok.Value)]; ok {
			return dberr.New(dberr.KindForbiddenTable, tok.Value)
		}
	}
	return nil
}
