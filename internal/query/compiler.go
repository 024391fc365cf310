package query

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the page size applied when the request does not
	// supply one.
	DefaultLimit = 20
	// MaxLimit caps the page size; long scans are bounded by pagination,
	// not by timeouts.
	MaxLimit = 100
)

// PlaceholderFunc returns the SQL placeholder for a given 1-based parameter
// index.
type PlaceholderFunc func(index int) string

// DollarPlaceholder returns $1, $2, etc. (PostgreSQL).
func DollarPlaceholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// QuestionPlaceholder returns ? for all params (SQLite).
func QuestionPlaceholder(_ int) string {
	return "?"
}

// Page is a validated pagination request.
type Page struct {
	Page  int
	Limit int
}

// ParsePage extracts and clamps pagination from raw values. Missing or
// malformed values fall back to page 1 and the default limit.
func ParsePage(pageRaw, limitRaw string) Page {
	p := atoiDefault(pageRaw, 1)
	if p < 1 {
		p = 1
	}
	l := atoiDefault(limitRaw, DefaultLimit)
	if l < 1 {
		l = DefaultLimit
	}
	if l > MaxLimit {
		l = MaxLimit
	}
	return Page{Page: p, Limit: l}
}

// Offset returns the row offset for the page window.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Compiled is a deterministic, parameterized query: a WHERE fragment with
// bind values, a stable ORDER BY, and the page window. Compiling the same
// FilterSpec and page twice yields identical SQL and args, which is what
// guarantees reproducible pagination over unmodified data.
type Compiled struct {
	Where   string
	Args    []interface{}
	OrderBy string
	Limit   int
	Offset  int
}

// Compile translates a FilterSpec into SQL conditions for the given
// resource. AND predicates, presence checks, derived joins, and the count
// bound become one conjunction; the OR-group, if present, becomes a single
// disjunction conjoined with the rest.
func Compile(spec *FilterSpec, res *Resource, page Page, ph PlaceholderFunc) (*Compiled, error) {
	if ph == nil {
		ph = QuestionPlaceholder
	}

	b := &condBuilder{ph: ph}

	for _, p := range spec.And {
		col := res.Columns[p.Field]
		if col == "" {
			return nil, invalidf("unknown filter field %q", p.Field)
		}
		b.add(col + " " + string(p.Op) + " " + b.bind(p.Value))
	}

	for _, p := range spec.Presence {
		col := res.Presence[p.Field]
		if col == "" {
			return nil, invalidf("unknown presence field %q", p.Field)
		}
		if p.Present {
			b.add(col + " IS NOT NULL")
		} else {
			b.add(col + " IS NULL")
		}
	}

	for _, p := range spec.Derived {
		d, ok := res.Derived[p.Field]
		if !ok {
			return nil, invalidf("unknown derived field %q", p.Field)
		}
		cond := d.Column + " " + string(p.Op) + " " + b.bind(p.Value)
		b.add("EXISTS (" + d.Exists + cond + ")")
	}

	if spec.Count != nil {
		if res.CountSubquery == "" {
			return nil, invalidf("resource %q has no key-set cardinality filter", res.Name)
		}
		if spec.Count.Min != nil {
			b.add("(" + res.CountSubquery + ") >= " + b.bind(*spec.Count.Min))
		}
		if spec.Count.Max != nil {
			b.add("(" + res.CountSubquery + ") <= " + b.bind(*spec.Count.Max))
		}
	}

	if spec.Or != nil {
		fields := spec.Or.Fields
		if len(fields) == 0 {
			fields = res.DefaultText
		}
		pattern := "%" + strings.ToLower(spec.Or.Text) + "%"
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			col := res.Text[f]
			if col == "" {
				return nil, invalidf("field %q is not text-searchable", f)
			}
			parts = append(parts, "LOWER("+col+") LIKE "+b.bind(pattern))
		}
		b.add("(" + strings.Join(parts, " OR ") + ")")
	}

	return &Compiled{
		Where:   b.where(),
		Args:    b.args,
		OrderBy: res.OrderBy,
		Limit:   page.Limit,
		Offset:  page.Offset(),
	}, nil
}

// SelectSQL assembles the full page query for the given column list.
func (c *Compiled) SelectSQL(columns, table string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(columns)
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	if c.Where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(c.Where)
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(c.OrderBy)
	sb.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", c.Limit, c.Offset))
	return sb.String()
}

// CountSQL assembles the total-count query over the same conditions,
// unfiltered by the page window.
func (c *Compiled) CountSQL(table string) string {
	if c.Where == "" {
		return "SELECT COUNT(*) FROM " + table
	}
	return "SELECT COUNT(*) FROM " + table + " WHERE " + c.Where
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// condBuilder accumulates conjunctive conditions and their bind values.
type condBuilder struct {
	ph    PlaceholderFunc
	conds []string
	args  []interface{}
}

// bind registers a bind value and returns its placeholder.
func (b *condBuilder) bind(val interface{}) string {
	b.args = append(b.args, val)
	return b.ph(len(b.args))
}

func (b *condBuilder) add(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *condBuilder) where() string {
	return strings.Join(b.conds, " AND ")
}
