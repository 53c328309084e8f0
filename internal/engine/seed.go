package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"db-portal/internal/dberr"
	"db-portal/internal/schema"
	"db-portal/internal/value"

	"github.com/brianvoe/gofakeit/v6"
)

// SeedResult reports how one table was filled.
type SeedResult struct {
	Table    string
	Target   int
	Inserted int
	Failed   int
	Err      error // last insert failure, if any
}

// Seeder fills tables with generated rows through the Repository, so every
// insert passes the same validation and binding as a caller's Create.
type Seeder struct {
	repo  *Repository
	faker *gofakeit.Faker
}

// NewSeeder returns a Seeder. A zero seed draws a random one.
func NewSeeder(repo *Repository, seed int64) *Seeder {
	return &Seeder{repo: repo, faker: gofakeit.New(seed)}
}

// typeMax returns the largest value an auto-increment column of dataType
// can hold, or 0 when it is effectively unbounded.
func typeMax(dataType string) int {
	switch strings.ToLower(dataType) {
	case "tinyint":
		return 255
	case "smallint":
		return 32767
	case "mediumint":
		return 8388607
	}
	return 0
}

// maxInsertCount shrinks count so an identity column cannot overflow.
func maxInsertCount(t *schema.Table, count int) int {
	for _, c := range t.Columns {
		if !c.IsAutoInc {
			continue
		}
		if m := typeMax(c.DataType); m > 0 && m < count {
			count = m
		}
	}
	return count
}

// Seed inserts count rows into each table in the given order. Tables
// should be sorted so referenced tables come first; foreign key columns
// draw from the keys generated for their parent earlier in the run.
// onProgress, when set, is called after each inserted row.
func (s *Seeder) Seed(ctx context.Context, tables []*schema.Table, count int, onProgress func()) ([]SeedResult, error) {
	keys := make(map[string][]value.Value)
	results := make([]SeedResult, 0, len(tables))

	for _, t := range tables {
		res := SeedResult{Table: t.Name, Target: maxInsertCount(t, count)}
		fks := make(map[string]*schema.ForeignKey, len(t.ForeignKeys))
		for _, fk := range t.ForeignKeys {
			fks[strings.ToLower(fk.Column)] = fk
		}

		for attempt := 0; res.Inserted < res.Target && attempt < res.Target*3; attempt++ {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			row, ok := s.row(t, fks, keys, attempt)
			if !ok {
				res.Err = fmt.Errorf("seed %s: no parent rows for a required foreign key", t.Name)
				break
			}
			out, err := s.repo.Create(ctx, t, row)
			if err != nil {
				if dberr.KindOf(err) == dberr.KindTimeout || dberr.KindOf(err) == dberr.KindConnectionBroken {
					return append(results, res), err
				}
				res.Failed++
				res.Err = err
				continue
			}
			res.Inserted++
			if !out.Key.IsNull() {
				keys[strings.ToLower(t.Name)] = append(keys[strings.ToLower(t.Name)], out.Key)
			}
			if onProgress != nil {
				onProgress()
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Seeder) row(t *schema.Table, fks map[string]*schema.ForeignKey, keys map[string][]value.Value, attempt int) (value.Row, bool) {
	var row value.Row
	for _, c := range t.Columns {
		if c.IsAutoInc {
			continue
		}
		if fk, ok := fks[strings.ToLower(c.Name)]; ok {
			parents := keys[strings.ToLower(fk.RefTable)]
			if len(parents) == 0 {
				if c.IsNullable {
					row.Set(c.Name, value.Null())
					continue
				}
				return value.Row{}, false
			}
			row.Set(c.Name, parents[s.faker.Number(0, len(parents)-1)])
			continue
		}
		if c.IsPK && c.Kind == value.KindNumber {
			// distinct per attempt; collisions with existing rows just fail the insert
			row.Set(c.Name, value.Int(int64(s.faker.Number(1, 1000)*100000+attempt)))
			continue
		}
		row.Set(c.Name, s.Value(c))
	}
	return row, true
}

// Value generates a plausible value for c from its kind and name.
func (s *Seeder) Value(c *schema.Column) value.Value {
	f := s.faker
	name := strings.ToLower(c.Name)
	dataType := strings.ToLower(c.DataType)

	switch c.Kind {
	case value.KindNumber:
		switch {
		case strings.Contains(name, "year"):
			return value.Int(int64(2000 + f.Number(0, 25)))
		case dataType == "tinyint":
			return value.Int(int64(f.Number(0, 127)))
		case dataType == "smallint":
			return value.Int(int64(f.Number(1, 30000)))
		case strings.Contains(dataType, "dec"), strings.Contains(dataType, "num"),
			strings.Contains(dataType, "money"), strings.Contains(dataType, "float"),
			strings.Contains(dataType, "double"), strings.Contains(dataType, "real"):
			return value.Float(f.Price(0.99, 999.99))
		}
		return value.Int(int64(f.Number(1, 50000)))
	case value.KindBool:
		return value.Bool(f.Bool())
	case value.KindTime:
		t := f.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()).UTC()
		if dataType == "date" {
			t = t.Truncate(24 * time.Hour)
		}
		return value.Time(t.Truncate(time.Second))
	case value.KindBinary:
		return value.Binary([]byte(f.LetterN(16)))
	}

	switch {
	case strings.Contains(name, "email"), strings.Contains(name, "correo"):
		return value.String(f.Email())
	case strings.Contains(name, "phone"), strings.Contains(name, "telefono"):
		return value.String(f.Phone())
	case strings.Contains(name, "name"), strings.Contains(name, "nombre"):
		return value.String(f.Name())
	case strings.Contains(name, "address"), strings.Contains(name, "direccion"):
		return value.String(f.Street())
	case strings.Contains(name, "city"), strings.Contains(name, "ciudad"):
		return value.String(f.City())
	case strings.Contains(name, "country"), strings.Contains(name, "pais"):
		return value.String(f.Country())
	case strings.Contains(name, "zip"), strings.Contains(name, "postal"):
		return value.String(f.Zip())
	case strings.HasPrefix(name, "is_"), strings.Contains(name, "active"):
		if f.Bool() {
			return value.String("Y")
		}
		return value.String("N")
	case strings.Contains(name, "desc"), strings.Contains(name, "comment"):
		return value.String(f.Sentence(8))
	}
	if dataType == "char" {
		return value.String(f.LetterN(1))
	}
	return value.String(f.Word())
}
