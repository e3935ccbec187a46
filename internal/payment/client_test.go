package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Confirm(t *testing.T) {
	t.Run("parses a successful settlement", func(t *testing.T) {
		var gotAuth string
		var gotBody ConfirmRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/v1/payments/confirm" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			gotAuth = r.Header.Get("Authorization")
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decode request: %v", err)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"paymentKey": "pay_abc",
				"orderId": "42",
				"method": "카드",
				"totalAmount": 400,
				"status": "DONE",
				"requestedAt": "2026-03-01T11:59:00Z",
				"approvedAt": "2026-03-01T12:00:00Z",
				"card": {"company": "신한"}
			}`))
		}))
		defer srv.Close()

		c := NewClient("test_sk_secret", srv.URL)
		s, err := c.Confirm(context.Background(), ConfirmRequest{
			OrderID: "42", Amount: 400, PaymentKey: "pay_abc",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("test_sk_secret:"))
		if gotAuth != wantAuth {
			t.Fatalf("authorization header = %q, want %q", gotAuth, wantAuth)
		}
		if gotBody.OrderID != "42" || gotBody.Amount != 400 || gotBody.PaymentKey != "pay_abc" {
			t.Fatalf("unexpected request body %+v", gotBody)
		}
		if s.PaymentKey != "pay_abc" || s.Method != "카드" || s.TotalAmount != 400 || s.Status != "DONE" {
			t.Fatalf("unexpected settlement %+v", s)
		}
		// Raw keeps fields the typed struct drops.
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(s.Raw, &raw); err != nil {
			t.Fatalf("raw payload not valid JSON: %v", err)
		}
		if _, ok := raw["card"]; !ok {
			t.Fatalf("raw payload lost the card field")
		}
	})

	t.Run("surfaces the gateway's code and message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"ALREADY_PROCESSED_PAYMENT","message":"이미 처리된 결제 입니다."}`))
		}))
		defer srv.Close()

		c := NewClient("test_sk_secret", srv.URL)
		_, err := c.Confirm(context.Background(), ConfirmRequest{OrderID: "42", Amount: 400, PaymentKey: "pay_abc"})

		var ge *GatewayError
		if !errors.As(err, &ge) {
			t.Fatalf("expected *GatewayError, got %v", err)
		}
		if ge.Status != http.StatusBadRequest || ge.Code != "ALREADY_PROCESSED_PAYMENT" {
			t.Fatalf("unexpected gateway error %+v", ge)
		}
		if ge.Error() != "이미 처리된 결제 입니다. (ALREADY_PROCESSED_PAYMENT)" {
			t.Fatalf("unexpected error string %q", ge.Error())
		}
	})

	t.Run("falls back to UNKNOWN_ERROR on an unparseable error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream exploded"))
		}))
		defer srv.Close()

		c := NewClient("test_sk_secret", srv.URL)
		_, err := c.Confirm(context.Background(), ConfirmRequest{OrderID: "42", Amount: 400, PaymentKey: "pay_abc"})

		var ge *GatewayError
		if !errors.As(err, &ge) {
			t.Fatalf("expected *GatewayError, got %v", err)
		}
		if ge.Status != http.StatusBadGateway || ge.Code != "UNKNOWN_ERROR" {
			t.Fatalf("unexpected gateway error %+v", ge)
		}
	})
}

func TestClient_Cancel(t *testing.T) {
	t.Run("posts the reason to the payment's cancel endpoint", func(t *testing.T) {
		var gotPath, gotReason string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotReason = body["cancelReason"]
			_, _ = w.Write([]byte(`{"status":"CANCELED"}`))
		}))
		defer srv.Close()

		c := NewClient("test_sk_secret", srv.URL)
		if err := c.Cancel(context.Background(), "pay_abc", "고객 변심"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotPath != "/v1/payments/pay_abc/cancel" {
			t.Fatalf("unexpected path %q", gotPath)
		}
		if gotReason != "고객 변심" {
			t.Fatalf("unexpected reason %q", gotReason)
		}
	})

	t.Run("propagates a refund rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"code":"NOT_CANCELABLE_PAYMENT","message":"취소 할 수 없는 결제 입니다."}`))
		}))
		defer srv.Close()

		c := NewClient("test_sk_secret", srv.URL)
		err := c.Cancel(context.Background(), "pay_abc", "고객 변심")

		var ge *GatewayError
		if !errors.As(err, &ge) || ge.Code != "NOT_CANCELABLE_PAYMENT" {
			t.Fatalf("expected NOT_CANCELABLE_PAYMENT, got %v", err)
		}
	})
}
