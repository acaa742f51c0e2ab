package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

func holidayJSON(date, name string, segments ...string) string {
	segs := ""
	for i, s := range segments {
		if i > 0 {
			segs += ","
		}
		segs += fmt.Sprintf(`{"segment_name":%q}`, s)
	}
	return fmt.Sprintf(`[{"holiday_date":%q,"holiday_name":%q,"segments_closed":[%s]}]`, date, name, segs)
}

func newTestHolidayProvider(url string) *HolidayProvider {
	return NewHolidayProvider(trace.NewNoopTracerProvider().Tracer("test"), url, time.Second)
}

func TestEquityHolidayMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, holidayJSON("January 26, 2024", "Republic Day", "Commodity", "EQUITY"))
	}))
	defer srv.Close()

	day := time.Date(2024, 1, 26, 11, 30, 0, 0, time.UTC)
	name, closed, err := newTestHolidayProvider(srv.URL).EquityHoliday(context.Background(), day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closed || name != "Republic Day" {
		t.Fatalf("expected equity holiday, got closed=%v name=%q", closed, name)
	}
}

func TestEquityHolidayOtherSegmentOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, holidayJSON("January 26, 2024", "Republic Day", "Commodity"))
	}))
	defer srv.Close()

	day := time.Date(2024, 1, 26, 0, 0, 0, 0, time.UTC)
	_, closed, err := newTestHolidayProvider(srv.URL).EquityHoliday(context.Background(), day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed {
		t.Fatal("equity trades when only other segments are closed")
	}
}

func TestEquityHolidayDifferentDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, holidayJSON("March 25, 2024", "Holi", "Equity"))
	}))
	defer srv.Close()

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	_, closed, err := newTestHolidayProvider(srv.URL).EquityHoliday(context.Background(), day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed {
		t.Fatal("expected a regular trading day")
	}
}

func TestEquityHolidayUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, _, err := newTestHolidayProvider(srv.URL).EquityHoliday(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error on upstream failure")
	}
}

func TestEquityHolidayMalformedCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"not":"an array"}`)
	}))
	defer srv.Close()

	_, _, err := newTestHolidayProvider(srv.URL).EquityHoliday(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected decode error")
	}
}
