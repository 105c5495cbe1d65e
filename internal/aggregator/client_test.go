package aggregator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/samuell-k/booking-center-sub004/internal/signing"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		Name:        "primary",
		BaseURL:     srv.URL,
		Username:    "bookingcenter",
		AccountNo:   "250160000011",
		Secret:      "s3cret",
		CallbackURL: "https://tickets.example.com/api/v1/webhooks/aggregator",
		Timeout:     2 * time.Second,
	}, zap.NewNop())
}

func TestRequestPaymentSignsAndSubmitsForm(t *testing.T) {
	var seen map[string]string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q, want form-encoded", ct)
		}
		if r.URL.Path != "/requestpayment" {
			t.Errorf("path = %q, want /requestpayment", r.URL.Path)
		}
		r.ParseForm()
		seen = map[string]string{}
		for k := range r.PostForm {
			seen[k] = r.PostForm.Get(k)
		}
		w.Write([]byte(`{"status":"Pending","responsecode":"1000","transactionid":"AGG-777","message":""}`))
	})

	result, err := client.RequestPayment(context.Background(), "BC20240115093000AB12CD34", "+250781234567", 10000, "ticket purchase")
	if err != nil {
		t.Fatalf("RequestPayment() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("RequestPayment() success = false, message %q", result.Message)
	}
	if result.ExternalReference != "AGG-777" {
		t.Errorf("external reference = %q, want AGG-777", result.ExternalReference)
	}

	if seen["mobilephone"] != "0781234567" {
		t.Errorf("mobilephone = %q, want normalized 0781234567", seen["mobilephone"])
	}
	if seen["amount"] != "10000" {
		t.Errorf("amount = %q, want 10000", seen["amount"])
	}
	if seen["requesttransactionid"] != "BC20240115093000AB12CD34" {
		t.Errorf("requesttransactionid = %q", seen["requesttransactionid"])
	}
	if seen["callbackurl"] == "" {
		t.Error("callbackurl missing from form")
	}

	want := signing.Sign("bookingcenter", "250160000011", "s3cret", seen["timestamp"])
	if seen["password"] != want {
		t.Errorf("password = %q, want signature over submitted timestamp", seen["password"])
	}
}

func TestRequestPaymentLocalRejects(t *testing.T) {
	called := false
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	tests := []struct {
		name   string
		phone  string
		amount int64
	}{
		{"bad prefix", "+250711234567", 10000},
		{"too short", "07812345", 10000},
		{"non-digit", "078123456x", 10000},
		{"below minimum", "+250781234567", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.RequestPayment(context.Background(), "BC1", tt.phone, tt.amount, "")
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}

	if called {
		t.Error("local validation failure still reached the network")
	}
}

func TestRequestPaymentBusinessRejection(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"Failed","responsecode":"1005","transactionid":""}`))
	})

	result, err := client.RequestPayment(context.Background(), "BC1", "0781234567", 10000, "")
	if err != nil {
		t.Fatalf("business rejection must not be a transport error, got %v", err)
	}
	if result.Success {
		t.Error("insufficient funds reported as success")
	}
	if result.ResponseCode != "1005" {
		t.Errorf("response code = %q, want 1005", result.ResponseCode)
	}
	if !strings.Contains(result.Message, "insufficient funds") {
		t.Errorf("message = %q, want mapped insufficient-funds text", result.Message)
	}
}

func TestTransportFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"non-JSON body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>maintenance</html>"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient(t, tt.handler)
			_, err := client.RequestPayment(context.Background(), "BC1", "0781234567", 10000, "")
			if !errors.Is(err, ErrTransport) {
				t.Errorf("error = %v, want ErrTransport", err)
			}
		})
	}
}

func TestGetTransactionStatus(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("requesttransactionid") != "BC1" || r.PostForm.Get("transactionid") != "AGG-777" {
			t.Errorf("status query ids = %q/%q", r.PostForm.Get("requesttransactionid"), r.PostForm.Get("transactionid"))
		}
		w.Write([]byte(`{"status":"Successful","responsecode":"2001"}`))
	})

	result, err := client.GetTransactionStatus(context.Background(), "BC1", "AGG-777")
	if err != nil {
		t.Fatalf("GetTransactionStatus() error = %v", err)
	}
	if !result.Success || result.ResponseCode != "2001" {
		t.Errorf("result = %+v, want success with code 2001", result)
	}
}

func TestGetAccountBalance(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"responsecode":"2001","balance":"154300.50"}`))
	})

	result, err := client.GetAccountBalance(context.Background())
	if err != nil {
		t.Fatalf("GetAccountBalance() error = %v", err)
	}
	if result.Balance != 154300.50 {
		t.Errorf("balance = %v, want 154300.50", result.Balance)
	}
}

func TestClassifyResponseCode(t *testing.T) {
	tests := []struct {
		code string
		want OutcomeClass
	}{
		{"1000", OutcomePending},
		{"1100", OutcomePending},
		{"2001", OutcomeSuccess},
		{"1002", OutcomePermanentFailure},
		{"1005", OutcomePermanentFailure},
		{"1008", OutcomePermanentFailure},
		{"2100", OutcomePermanentFailure},
		{"2500", OutcomePermanentFailure},
		{"1200", OutcomeTransientFailure},
		{"3000", OutcomeTransientFailure},
		{"9999", OutcomeTransientFailure}, // unknown codes default to transient
		{"", OutcomeTransientFailure},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			message, class := ClassifyResponseCode(tt.code)
			if class != tt.want {
				t.Errorf("ClassifyResponseCode(%q) class = %v, want %v", tt.code, class, tt.want)
			}
			if message == "" {
				t.Errorf("ClassifyResponseCode(%q) returned an empty message", tt.code)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		want    string
		wantErr bool
	}{
		{"international MTN", "+250781234567", "0781234567", false},
		{"international Airtel", "+250721234567", "0721234567", false},
		{"no plus", "250791234567", "0791234567", false},
		{"local", "0731234567", "0731234567", false},
		{"spaces", " 078 123 4567 ", "0781234567", false},
		{"landline prefix", "0251234567", "", true},
		{"unknown operator", "0751234567", "", true},
		{"too long", "07812345678", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.phone)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizePhone(%q) error = %v, wantErr %v", tt.phone, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.phone, got, tt.want)
			}
		})
	}
}

func TestNewTransactionIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewTransactionID()
		if !strings.HasPrefix(id, "BC") {
			t.Fatalf("transaction id %q missing merchant prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate transaction id %q", id)
		}
		seen[id] = true
	}
}
