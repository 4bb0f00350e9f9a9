package partnerapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func TestChangedDates(t *testing.T) {
	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		fmt.Fprint(w, `{"response": {"dates": ["2026-03-01", "2026-03-02"], "result_highwatermark": "1500"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sekret")
	result, err := client.ChangedDates(context.Background(), 1000)
	if err != nil {
		t.Fatalf("ChangedDates failed: %v", err)
	}
	if len(result.Dates) != 2 || result.Dates[0] != "2026-03-01" {
		t.Errorf("dates = %v", result.Dates)
	}
	// String-typed highwatermark is coerced.
	if result.Highwatermark != 1500 {
		t.Errorf("highwatermark = %d, want 1500", result.Highwatermark)
	}

	q := gotQuery.Load().(url.Values)
	if q.Get("key") != "sekret" || q.Get("highwatermark") != "1000" {
		t.Errorf("query params: key=%q highwatermark=%q", q.Get("key"), q.Get("highwatermark"))
	}
}

func TestChangedDatesStaleWatermark(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response": {"dates": [], "result_highwatermark": 400}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	result, err := client.ChangedDates(context.Background(), 500)
	if err != nil {
		t.Fatalf("ChangedDates failed: %v", err)
	}
	// A remote answer below our cursor never moves us backwards.
	if result.Highwatermark != 500 {
		t.Errorf("highwatermark = %d, want 500", result.Highwatermark)
	}
}

func TestSalesPagePagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("highwatermark_id") {
		case "0":
			fmt.Fprint(w, `{"response": {"max_id": 100, "results": [
				{"date": "2026-03-01", "line_item_type": "sale", "appid": 440,
				 "country_code": "US", "gross_sales_usd": "19.98", "net_units_sold": 2}],
				"app_info": [{"appid": 440, "name": "Team Fortress 2"}]}}`)
		case "100":
			fmt.Fprint(w, `{"response": {"max_id": 100, "results": []}}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("highwatermark_id"))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	ctx := context.Background()

	page, err := client.SalesPage(ctx, "2026-03-01", 0)
	if err != nil {
		t.Fatalf("SalesPage failed: %v", err)
	}
	if !page.HasMore(0) {
		t.Error("first page should report more")
	}
	if len(page.Results) != 1 || page.Results[0].AppID == nil || int64(*page.Results[0].AppID) != 440 {
		t.Errorf("results = %+v", page.Results)
	}
	if len(page.Apps) != 1 || page.Apps[0].Name != "Team Fortress 2" {
		t.Errorf("apps = %+v", page.Apps)
	}

	page, err = client.SalesPage(ctx, "2026-03-01", uint64(page.MaxID))
	if err != nil {
		t.Fatalf("second SalesPage failed: %v", err)
	}
	// Empty results terminate even though max_id did not advance.
	if page.HasMore(100) {
		t.Error("terminal page should not report more")
	}
}

func TestDoRequestRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"response": {"dates": [], "result_highwatermark": 1}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	if _, err := client.ChangedDates(context.Background(), 0); err != nil {
		t.Fatalf("ChangedDates failed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("made %d calls, want 3", calls.Load())
	}
}

func TestDoRequestExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	_, err := client.ChangedDates(context.Background(), 0)
	if err == nil {
		t.Fatal("ChangedDates succeeded, want error")
	}
	var serr *StatusError
	if !errors.As(err, &serr) || serr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("err = %v, want StatusError 503", err)
	}
	if calls.Load() != int32(DefaultMaxRetries+1) {
		t.Errorf("made %d calls, want %d", calls.Load(), DefaultMaxRetries+1)
	}
}

func TestDoRequestHonorsConfiguredRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	client.MaxRetries = 0
	if _, err := client.ChangedDates(context.Background(), 0); err == nil {
		t.Fatal("ChangedDates succeeded, want error")
	}
	if calls.Load() != 1 {
		t.Errorf("made %d calls, want 1 (retries disabled)", calls.Load())
	}
}

func TestDoRequestDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k")
	if _, err := client.ChangedDates(context.Background(), 0); err == nil {
		t.Fatal("ChangedDates succeeded, want error")
	}
	if calls.Load() != 1 {
		t.Errorf("made %d calls, want 1 (no retry on 400)", calls.Load())
	}
}

func TestDoRequestUnauthorized(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-key")
	_, err := client.ChangedDates(context.Background(), 0)
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if calls.Load() != 1 {
		t.Errorf("made %d calls, want 1 (auth failures never retry)", calls.Load())
	}
}

func TestDoRequestCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, "k")
	_, err := client.ChangedDates(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
