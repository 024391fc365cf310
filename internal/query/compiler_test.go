package query

import (
	"net/url"
	"reflect"
	"strings"
	"testing"
)

func mustCompile(t *testing.T, params url.Values, res *Resource) *Compiled {
	t.Helper()
	spec, err := Parse(params, res)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, err := Compile(spec, res, ParsePage(params.Get("page"), params.Get("limit")), QuestionPlaceholder)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return c
}

func TestCompileAndPredicates(t *testing.T) {
	c := mustCompile(t, url.Values{"loanType": {"TENANT"}, "contact": {"P-1"}}, Loans())

	want := "key_loans.contact_id = ? AND key_loans.loan_type = ?"
	if c.Where != want {
		t.Errorf("where = %q, want %q", c.Where, want)
	}
	if !reflect.DeepEqual(c.Args, []interface{}{"P-1", "TENANT"}) {
		t.Errorf("args = %v", c.Args)
	}
}

func TestCompilePresence(t *testing.T) {
	c := mustCompile(t, url.Values{"hasReturned": {"false"}, "hasPickedUp": {"true"}}, Loans())

	want := "key_loans.picked_up_at IS NOT NULL AND key_loans.returned_at IS NULL"
	if c.Where != want {
		t.Errorf("where = %q, want %q", c.Where, want)
	}
	if len(c.Args) != 0 {
		t.Errorf("expected no args, got %v", c.Args)
	}
}

func TestCompileDerivedExists(t *testing.T) {
	c := mustCompile(t, url.Values{"keyName": {"A-101-1"}}, Loans())

	if !strings.HasPrefix(c.Where, "EXISTS (SELECT 1 FROM key_loan_keys lk JOIN keys k ON k.id = lk.key_id") {
		t.Errorf("where = %q", c.Where)
	}
	if !strings.Contains(c.Where, "k.name = ?") {
		t.Errorf("where = %q", c.Where)
	}
	if !reflect.DeepEqual(c.Args, []interface{}{"A-101-1"}) {
		t.Errorf("args = %v", c.Args)
	}
}

func TestCompileCountBounds(t *testing.T) {
	c := mustCompile(t, url.Values{"minKeys": {"2"}, "maxKeys": {"4"}}, Loans())

	want := "(SELECT COUNT(*) FROM key_loan_keys lk WHERE lk.loan_id = key_loans.id) >= ?" +
		" AND (SELECT COUNT(*) FROM key_loan_keys lk WHERE lk.loan_id = key_loans.id) <= ?"
	if c.Where != want {
		t.Errorf("where = %q, want %q", c.Where, want)
	}
	if !reflect.DeepEqual(c.Args, []interface{}{2, 4}) {
		t.Errorf("args = %v", c.Args)
	}
}

func TestCompileOrGroupConjoined(t *testing.T) {
	c := mustCompile(t, url.Values{"q": {"Anna"}, "loanType": {"TENANT"}}, Loans())

	want := "key_loans.loan_type = ? AND " +
		"(LOWER(key_loans.contact_id) LIKE ? OR LOWER(key_loans.secondary_contact_id) LIKE ?)"
	if c.Where != want {
		t.Errorf("where = %q, want %q", c.Where, want)
	}
	// Free text is lowercased and wrapped for the contains match.
	if c.Args[1] != "%anna%" || c.Args[2] != "%anna%" {
		t.Errorf("args = %v", c.Args)
	}
}

func TestCompileDeterministicSQL(t *testing.T) {
	params := url.Values{
		"q":           {"storage"},
		"loanType":    {"TENANT"},
		"createdAt":   {">=2024-01-01", "<2025-01-01"},
		"hasReturned": {"false"},
		"minKeys":     {"1"},
		"keyName":     {"A-101-1"},
	}

	first := mustCompile(t, params, Loans())
	for i := 0; i < 10; i++ {
		next := mustCompile(t, params, Loans())
		if next.Where != first.Where {
			t.Fatalf("non-deterministic where:\n%s\n%s", first.Where, next.Where)
		}
		if !reflect.DeepEqual(next.Args, first.Args) {
			t.Fatalf("non-deterministic args: %v vs %v", first.Args, next.Args)
		}
	}
}

func TestCompileSelectAndCountSQL(t *testing.T) {
	c := mustCompile(t, url.Values{"loanType": {"TENANT"}, "page": {"2"}, "limit": {"10"}}, Loans())

	sel := c.SelectSQL("id", "key_loans")
	wantSel := "SELECT id FROM key_loans WHERE key_loans.loan_type = ?" +
		" ORDER BY key_loans.created_at DESC, key_loans.id DESC LIMIT 10 OFFSET 10"
	if sel != wantSel {
		t.Errorf("select = %q, want %q", sel, wantSel)
	}

	count := c.CountSQL("key_loans")
	wantCount := "SELECT COUNT(*) FROM key_loans WHERE key_loans.loan_type = ?"
	if count != wantCount {
		t.Errorf("count = %q, want %q", count, wantCount)
	}
}

func TestCompileEmptySpec(t *testing.T) {
	c := mustCompile(t, url.Values{}, Loans())
	if c.Where != "" {
		t.Errorf("expected empty where, got %q", c.Where)
	}
	sel := c.SelectSQL("id", "key_loans")
	if strings.Contains(sel, "WHERE") {
		t.Errorf("unexpected WHERE in %q", sel)
	}
}

func TestCompileDollarPlaceholders(t *testing.T) {
	spec, err := Parse(url.Values{"loanType": {"TENANT"}, "contact": {"P-1"}}, Loans())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, err := Compile(spec, Loans(), ParsePage("", ""), DollarPlaceholder)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	want := "key_loans.contact_id = $1 AND key_loans.loan_type = $2"
	if c.Where != want {
		t.Errorf("where = %q, want %q", c.Where, want)
	}
}

func TestParsePageClamps(t *testing.T) {
	tests := []struct {
		page, limit string
		wantPage    int
		wantLimit   int
	}{
		{"", "", 1, DefaultLimit},
		{"0", "0", 1, DefaultLimit},
		{"-3", "-5", 1, DefaultLimit},
		{"2", "50", 2, 50},
		{"1", "9999", 1, MaxLimit},
		{"abc", "xyz", 1, DefaultLimit},
	}
	for _, tt := range tests {
		p := ParsePage(tt.page, tt.limit)
		if p.Page != tt.wantPage || p.Limit != tt.wantLimit {
			t.Errorf("ParsePage(%q,%q) = %+v, want page %d limit %d",
				tt.page, tt.limit, p, tt.wantPage, tt.wantLimit)
		}
	}
}
