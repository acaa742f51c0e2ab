package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const defaultHolidayURL = "https://fyers.in/holiday-data.json"

// HolidayProvider checks the Fyers holiday calendar. The exchange never
// publishes a ban list on equity trading holidays, so the calendar is the
// explicit "no data expected today" signal.
type HolidayProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
}

func NewHolidayProvider(tracer trace.Tracer, url string, timeout time.Duration) *HolidayProvider {
	if url == "" {
		url = defaultHolidayURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HolidayProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: url,
		tracer:  tracer,
	}
}

// EquityHoliday reports whether day is an equity trading holiday, along
// with the holiday name. A calendar entry counts only when the equity
// segment is among the closed segments.
func (p *HolidayProvider) EquityHoliday(ctx context.Context, day time.Time) (string, bool, error) {
	_, span := p.tracer.Start(ctx, "holiday.equity-holiday")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", false, fmt.Errorf("holiday calendar error %d: %s", resp.StatusCode, string(body))
	}

	var calendar []struct {
		HolidayDate    string `json:"holiday_date"`
		HolidayName    string `json:"holiday_name"`
		SegmentsClosed []struct {
			SegmentName string `json:"segment_name"`
		} `json:"segments_closed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&calendar); err != nil {
		return "", false, fmt.Errorf("decode holiday calendar: %w", err)
	}

	y, m, d := day.Date()
	for _, row := range calendar {
		// Dates arrive as "January 26, 2024".
		hd, err := time.Parse("January 2, 2006", strings.TrimSpace(row.HolidayDate))
		if err != nil {
			continue
		}
		hy, hm, hdD := hd.Date()
		if hy != y || hm != m || hdD != d {
			continue
		}
		for _, seg := range row.SegmentsClosed {
			if strings.EqualFold(strings.TrimSpace(seg.SegmentName), "equity") {
				return row.HolidayName, true, nil
			}
		}
		return "", false, nil
	}
	return "", false, nil
}
