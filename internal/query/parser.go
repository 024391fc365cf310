package query

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// minTextLength is the shortest free-text query accepted by the OR-group.
const minTextLength = 3

// reservedParams are request parameters consumed outside the filter
// grammar: the OR-group inputs, pagination, and inclusion flags.
var reservedParams = map[string]bool{
	"q":      true,
	"fields": true,
	"page":   true,
	"limit":  true,
}

// Parse turns raw request parameters into a typed FilterSpec for the given
// resource. Unknown field names are rejected rather than ignored, as are
// free-text queries shorter than three characters, a fields list without a
// query, and more than one free-text query per request.
func Parse(params url.Values, res *Resource) (*FilterSpec, error) {
	spec := &FilterSpec{}

	if err := parseOrGroup(params, res, spec); err != nil {
		return nil, err
	}

	var min, max *int
	for field, values := range params {
		if reservedParams[field] {
			continue
		}
		// Inclusion expansion flags are handled by the handler layer.
		if strings.HasPrefix(field, "include") {
			continue
		}

		switch {
		case field == "minKeys" || field == "maxKeys":
			if res.CountSubquery == "" {
				return nil, invalidf("unknown filter field %q", field)
			}
			n, err := parseCountBound(field, values)
			if err != nil {
				return nil, err
			}
			if field == "minKeys" {
				min = n
			} else {
				max = n
			}

		case res.Presence[field] != "":
			p, err := parsePresence(field, values)
			if err != nil {
				return nil, err
			}
			spec.Presence = append(spec.Presence, *p)

		case res.Columns[field] != "":
			for _, raw := range values {
				op, val := splitOperator(raw)
				if res.Bools[field] {
					var err error
					val, err = normalizeBool(field, val)
					if err != nil {
						return nil, err
					}
				}
				spec.And = append(spec.And, Predicate{Field: field, Op: op, Value: val})
			}

		default:
			if _, ok := res.Derived[field]; ok {
				for _, raw := range values {
					op, val := splitOperator(raw)
					spec.Derived = append(spec.Derived, Predicate{Field: field, Op: op, Value: val})
				}
				continue
			}
			return nil, invalidf("unknown filter field %q", field)
		}
	}

	if min != nil || max != nil {
		if min != nil && max != nil && *min > *max {
			return nil, invalidf("minKeys (%d) exceeds maxKeys (%d)", *min, *max)
		}
		spec.Count = &CountRange{Min: min, Max: max}
	}

	// url.Values iterates in map order; sort so the same request always
	// compiles to the same SQL text.
	sortPredicates(spec.And)
	sortPredicates(spec.Derived)
	sort.Slice(spec.Presence, func(i, j int) bool {
		return spec.Presence[i].Field < spec.Presence[j].Field
	})

	return spec, nil
}

func sortPredicates(ps []Predicate) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Field != ps[j].Field {
			return ps[i].Field < ps[j].Field
		}
		if ps[i].Op != ps[j].Op {
			return ps[i].Op < ps[j].Op
		}
		return ps[i].Value < ps[j].Value
	})
}

// parseOrGroup validates and extracts the free-text OR-group from q/fields.
func parseOrGroup(params url.Values, res *Resource, spec *FilterSpec) error {
	qs := params["q"]
	if len(qs) > 1 {
		return invalidf("only one free-text query is permitted per request")
	}

	var text string
	if len(qs) == 1 {
		text = strings.TrimSpace(qs[0])
	}

	fieldsRaw := strings.TrimSpace(params.Get("fields"))
	if fieldsRaw != "" && text == "" {
		return invalidf("fields requires a free-text query")
	}
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) < minTextLength {
		return invalidf("free-text query must be at least %d characters", minTextLength)
	}

	fields := res.DefaultText
	if fieldsRaw != "" {
		fields = nil
		for _, f := range strings.Split(fieldsRaw, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if res.Text[f] == "" {
				return invalidf("field %q is not text-searchable", f)
			}
			fields = append(fields, f)
		}
		if len(fields) == 0 {
			return invalidf("fields requires at least one field name")
		}
	}

	spec.Or = &OrGroup{Text: text, Fields: fields}
	return nil
}

// splitOperator strips a comparison prefix from a raw value. An unprefixed
// value means equality. Two-character prefixes are checked first so that
// ">=1" does not parse as "> =1".
func splitOperator(raw string) (CompareOp, string) {
	switch {
	case strings.HasPrefix(raw, ">="):
		return OpGe, raw[2:]
	case strings.HasPrefix(raw, "<="):
		return OpLe, raw[2:]
	case strings.HasPrefix(raw, ">"):
		return OpGt, raw[1:]
	case strings.HasPrefix(raw, "<"):
		return OpLt, raw[1:]
	default:
		return OpEq, raw
	}
}

func parsePresence(field string, values []string) (*PresencePredicate, error) {
	if len(values) != 1 {
		return nil, invalidf("%s accepts a single true/false value", field)
	}
	switch strings.ToLower(values[0]) {
	case "true":
		return &PresencePredicate{Field: field, Present: true}, nil
	case "false":
		return &PresencePredicate{Field: field, Present: false}, nil
	default:
		return nil, invalidf("%s must be true or false, got %q", field, values[0])
	}
}

func parseCountBound(field string, values []string) (*int, error) {
	if len(values) != 1 {
		return nil, invalidf("%s accepts a single value", field)
	}
	n, err := strconv.Atoi(values[0])
	if err != nil || n < 0 {
		return nil, invalidf("%s must be a non-negative integer, got %q", field, values[0])
	}
	return &n, nil
}

// normalizeBool maps true/false filter values to the 0/1 representation the
// store uses for boolean columns.
func normalizeBool(field, val string) (string, error) {
	switch strings.ToLower(val) {
	case "true", "1":
		return "1", nil
	case "false", "0":
		return "0", nil
	default:
		return "", invalidf("%s must be true or false, got %q", field, val)
	}
}
