package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("expected Accept header, got %q", got)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected User-Agent header")
		}
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := Default()
	body, status, err := c.DoGet(context.Background(), srv.URL, map[string]string{"Accept": "application/json"})
	if err != nil {
		t.Fatalf("DoGet: %v", err)
	}
	defer body.Close()
	if status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	data, _ := io.ReadAll(body)
	if string(data) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", data)
	}
}

func TestDoGetErrorCarriesStatusAndSnippet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("series does not exist")) //nolint:errcheck
	}))
	defer srv.Close()

	c := Default()
	_, status, err := c.DoGet(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
	var he *Error
	if !errors.As(err, &he) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if he.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", he.StatusCode)
	}
	if he.Body != "series does not exist" {
		t.Errorf("unexpected body snippet: %q", he.Body)
	}
}

func TestRetryAfterParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := Default()
	_, _, err := c.DoGet(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected error for 429")
	}
	if got := RetryAfter(err); got != 2*time.Second {
		t.Errorf("expected Retry-After 2s, got %s", got)
	}
	if StatusCode(err) != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", StatusCode(err))
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusUnprocessableEntity, false},
	}
	for _, tt := range tests {
		err := &Error{StatusCode: tt.status}
		if got := IsRetryable(err); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}

	if !IsRetryable(errors.New("connection reset")) {
		t.Error("plain transport errors should be retryable")
	}
	if IsRetryable(context.Canceled) {
		t.Error("context cancellation should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"UNRATE","value":3.5}`)) //nolint:errcheck
	}))
	defer srv.Close()

	var out struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}
	if err := Default().GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "UNRATE" || out.Value != 3.5 {
		t.Errorf("unexpected decode: %+v", out)
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		if string(data) != `[{"latestN":3,"vectorId":32164132}]` {
			t.Errorf("unexpected payload: %s", data)
		}
		w.Write([]byte(`[{"status":"SUCCESS"}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	payload := []map[string]int{{"vectorId": 32164132, "latestN": 3}}
	var out []struct {
		Status string `json:"status"`
	}
	if err := Default().PostJSON(context.Background(), srv.URL, payload, &out); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if len(out) != 1 || out[0].Status != "SUCCESS" {
		t.Errorf("unexpected decode: %+v", out)
	}
}
