package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/service"
)

func TestWriteServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &service.ValidationError{Reason: "bad"}, http.StatusBadRequest},
		{"not found", &service.NotFoundError{Resource: "loan", ID: "x"}, http.StatusNotFound},
		{"conflict", &service.ConflictError{Reason: "taken", KeyIDs: []string{"k1"}}, http.StatusConflict},
		{"active loan", &service.ActiveLoanError{LoanID: "l1"}, http.StatusConflict},
		{"untyped", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeServiceError(rr, tt.err)
			if rr.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rr.Code)
			}

			var resp model.ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("envelope code %d, want %d", resp.Error.Code, tt.code)
			}
			if resp.Error.Message == "" {
				t.Error("expected non-empty message")
			}
		})
	}
}

func TestWriteServiceErrorHidesInternals(t *testing.T) {
	rr := httptest.NewRecorder()
	writeServiceError(rr, errors.New("pq: connection refused on 10.0.0.5"))

	var resp model.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Message != "internal error" {
		t.Errorf("internal details leaked: %q", resp.Error.Message)
	}
}

func TestBatchStatus(t *testing.T) {
	ok := service.BatchKeyResult{Key: &model.Key{ID: "k"}}
	bad := service.BatchKeyResult{Error: "nope"}

	tests := []struct {
		name    string
		results []service.BatchKeyResult
		want    int
	}{
		{"all succeed", []service.BatchKeyResult{ok, ok}, http.StatusCreated},
		{"all fail", []service.BatchKeyResult{bad, bad}, http.StatusBadRequest},
		{"mixed", []service.BatchKeyResult{ok, bad}, http.StatusMultiStatus},
	}
	for _, tt := range tests {
		if got := batchStatus(tt.results); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}
