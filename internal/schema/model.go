package schema

import (
	"strings"

	"db-portal/internal/value"
)

// Table is an introspected table. Published descriptors are never mutated;
// a refresh replaces them.
type Table struct {
	Schema       string
	Name         string
	Columns      []*Column
	ForeignKeys  []*ForeignKey
	Dependencies []string
}

type Column struct {
	Name       string
	DataType   string // normalized by the dialect
	Kind       value.Kind
	IsNullable bool
	IsPK       bool
	IsAutoInc  bool
}

type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Column finds a column by name, ignoring case.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// PrimaryKey returns the first key column, or nil.
func (t *Table) PrimaryKey() *Column {
	for _, c := range t.Columns {
		if c.IsPK {
			return c
		}
	}
	return nil
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Routine types as reported by the catalogs.
const (
	RoutineProcedure = "PROCEDURE"
	RoutineFunction  = "FUNCTION"
)

// Parameter modes.
const (
	ModeIn    = "IN"
	ModeOut   = "OUT"
	ModeInOut = "INOUT"
)

// Procedure is an introspected stored procedure or function.
type Procedure struct {
	Schema       string
	Name         string
	Routine      string
	ReturnsTable bool
	Params       []*Param
}

type Param struct {
	Name     string // without any '@' prefix
	Position int    // 1-based catalog order
	Mode     string
	DataType string
	Kind     value.Kind
	Required bool
}

func (p *Procedure) IsFunction() bool { return p.Routine == RoutineFunction }

// Param finds a parameter by name, ignoring case and a leading '@'.
func (p *Procedure) Param(name string) (*Param, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	for _, prm := range p.Params {
		if strings.EqualFold(prm.Name, name) {
			return prm, true
		}
	}
	return nil, false
}

// HasOutput reports whether any parameter is OUT or INOUT.
func (p *Procedure) HasOutput() bool {
	for _, prm := range p.Params {
		if prm.Mode != ModeIn {
			return true
		}
	}
	return false
}
