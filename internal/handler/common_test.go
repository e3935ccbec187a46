package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hyunsoo-lee/roomstay/internal/payment"
	"github.com/hyunsoo-lee/roomstay/internal/repository"
	"github.com/hyunsoo-lee/roomstay/internal/service"
)

func newTestContext(t *testing.T, target string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestGetUserID(t *testing.T) {
	cases := []struct {
		name    string
		value   interface{}
		want    uint64
		wantErr bool
	}{
		{"float64 from JWT claims", float64(42), 42, false},
		{"uint64", uint64(7), 7, false},
		{"numeric string", "13", 13, false},
		{"missing", nil, 0, true},
		{"garbage string", "abc", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestContext(t, "/")
			if tc.value != nil {
				c.Set("user_id", tc.value)
			}
			got, err := getUserID(c)
			if tc.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPagination(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, _ := newTestContext(t, "/v1/orders")
		page, limit := pagination(c)
		if page != 1 || limit != 10 {
			t.Fatalf("got page=%d limit=%d", page, limit)
		}
	})
	t.Run("caps the limit", func(t *testing.T) {
		c, _ := newTestContext(t, "/v1/orders?page=3&limit=500")
		page, limit := pagination(c)
		if page != 3 || limit != 100 {
			t.Fatalf("got page=%d limit=%d", page, limit)
		}
	})
	t.Run("ignores invalid values", func(t *testing.T) {
		c, _ := newTestContext(t, "/v1/orders?page=-1&limit=abc")
		page, limit := pagination(c)
		if page != 1 || limit != 10 {
			t.Fatalf("got page=%d limit=%d", page, limit)
		}
	})
}

func TestNewPaginationMeta(t *testing.T) {
	m := newPaginationMeta(21, 2, 10)
	if m.TotalItems != 21 || m.TotalPages != 3 || m.CurrentPage != 2 || m.Limit != 10 {
		t.Fatalf("unexpected meta %+v", m)
	}
}

func TestOrderError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"order not found", repository.ErrOrderNotFound, http.StatusNotFound},
		{"room type not found", repository.ErrRoomTypeNotFound, http.StatusNotFound},
		{"forbidden", repository.ErrForbidden, http.StatusForbidden},
		{"state conflict", repository.ErrStateConflict, http.StatusConflict},
		{"already settled", service.ErrAlreadySettled, http.StatusConflict},
		{"amount mismatch", service.ErrAmountMismatch, http.StatusBadRequest},
		{"reason required", service.ErrReasonRequired, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newTestContext(t, "/")
			if err := orderError(c, tc.err); err != nil {
				t.Fatalf("orderError returned %v", err)
			}
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}

	t.Run("gateway error keeps its status and code", func(t *testing.T) {
		c, rec := newTestContext(t, "/")
		ge := &payment.GatewayError{Status: 400, Code: "ALREADY_PROCESSED_PAYMENT", Message: "이미 처리된 결제 입니다."}
		if err := orderError(c, ge); err != nil {
			t.Fatalf("orderError returned %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["code"] != "ALREADY_PROCESSED_PAYMENT" {
			t.Fatalf("body = %v", body)
		}
		if body["error"] != "이미 처리된 결제 입니다. (ALREADY_PROCESSED_PAYMENT)" {
			t.Fatalf("body = %v", body)
		}
	})
}

func TestHealth(t *testing.T) {
	c, rec := newTestContext(t, "/healthz")
	if err := Health(c); err != nil {
		t.Fatalf("Health returned %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
