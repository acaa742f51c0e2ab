package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strconv"
	"strings"
	"time"

	"watchtower/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	defaultNSEBaseURL = "https://www.nseindia.com"
	defaultBanListURL = "https://nsearchives.nseindia.com/content/fo/fo_secban.csv"
)

// NSE serves block pages to clients that look like scripts, so every
// request carries browser-like headers and the session is warmed up
// against the homepage first to collect the cookies the archive host
// expects.
var nseHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Referer":         "https://www.nseindia.com/",
	"Origin":          "https://www.nseindia.com",
	"Cache-Control":   "max-age=0",
}

// FetchError is returned when the ban list could not be retrieved or the
// payload could not be understood. An explicitly empty list is not a
// FetchError.
type FetchError struct {
	HTTPStatus int
	Cause      string
}

func (e *FetchError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("nse fetch error %d: %s", e.HTTPStatus, e.Cause)
	}
	return fmt.Sprintf("nse fetch error: %s", e.Cause)
}

type NSEOptions struct {
	BaseURL    string
	BanListURL string
	Timeout    time.Duration
	MaxRetries int
}

// NSEProvider fetches the daily F&O securities ban list CSV from the NSE
// archive.
type NSEProvider struct {
	client     *http.Client
	baseURL    string
	banListURL string
	tracer     trace.Tracer
	limiter    *RateLimiter
	maxRetries int
	backoff    time.Duration
	warmed     bool
}

func NewNSEProvider(tracer trace.Tracer, opts NSEOptions) *NSEProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultNSEBaseURL
	}
	if opts.BanListURL == "" {
		opts.BanListURL = defaultBanListURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	jar, _ := cookiejar.New(nil)
	return &NSEProvider{
		client:     &http.Client{Timeout: opts.Timeout, Jar: jar},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		banListURL: opts.BanListURL,
		tracer:     tracer,
		limiter:    NewRateLimiter(1, 2*time.Second),
		maxRetries: opts.MaxRetries,
		backoff:    2 * time.Second,
	}
}

// FetchBanList retrieves and parses today's ban list. Transport errors and
// block/server statuses are retried with exponential backoff on a fresh
// session; anything still failing after the retry budget comes back as a
// *FetchError. An empty published list returns Status=StatusEntries with
// zero entries.
func (p *NSEProvider) FetchBanList(ctx context.Context) (*domain.BanList, error) {
	_, span := p.tracer.Start(ctx, "nse.fetch-ban-list")
	defer span.End()

	var lastErr *FetchError
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			p.resetSession()
			if err := p.sleep(ctx, p.backoff<<uint(attempt-1)); err != nil {
				return nil, &FetchError{Cause: err.Error()}
			}
		}

		body, status, err := p.fetchOnce(ctx)
		if err != nil {
			lastErr = &FetchError{HTTPStatus: status, Cause: err.Error()}
			continue
		}

		tradeDate, entries, err := parseBanListCSV(body)
		if err != nil {
			// A body we cannot understand is an integration failure,
			// not a holiday. Retrying the same payload will not help.
			return nil, &FetchError{HTTPStatus: status, Cause: err.Error()}
		}

		return &domain.BanList{
			Status:    domain.StatusEntries,
			TradeDate: tradeDate,
			Entries:   entries,
			FetchedAt: time.Now().UTC(),
		}, nil
	}

	if lastErr == nil {
		lastErr = &FetchError{Cause: "no attempts made"}
	}
	return nil, lastErr
}

func (p *NSEProvider) fetchOnce(ctx context.Context) ([]byte, int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	if !p.warmed {
		if err := p.warmUp(ctx); err != nil {
			return nil, 0, fmt.Errorf("session warm-up: %w", err)
		}
		p.warmed = true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.banListURL, nil)
	if err != nil {
		return nil, 0, err
	}
	applyNSEHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// warmUp visits the NSE homepage so the cookie jar picks up the
// anti-bot cookies the archive host validates.
func (p *NSEProvider) warmUp(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/", nil)
	if err != nil {
		return err
	}
	applyNSEHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("homepage returned %d", resp.StatusCode)
	}
	return nil
}

func (p *NSEProvider) resetSession() {
	jar, _ := cookiejar.New(nil)
	p.client.Jar = jar
	p.warmed = false
}

func (p *NSEProvider) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func applyNSEHeaders(req *http.Request) {
	for k, v := range nseHeaders {
		req.Header.Set(k, v)
	}
}

var banListHeaderRe = regexp.MustCompile(`(?i)ban\s+for\s+trade\s+date\s+(\d{1,2}-[A-Za-z]{3}-\d{4})\s*:\s*(\d+)`)

// parseBanListCSV parses the fo_secban.csv payload. The first line declares
// the trade date and the number of banned securities, each following line
// is "serial,SYMBOL". A declared count of zero with no rows is a valid
// empty list.
func parseBanListCSV(body []byte) (time.Time, []domain.BanListEntry, error) {
	lines := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")

	var header string
	var rows []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if header == "" {
			header = line
			continue
		}
		rows = append(rows, line)
	}
	if header == "" {
		return time.Time{}, nil, fmt.Errorf("empty ban list payload")
	}

	m := banListHeaderRe.FindStringSubmatch(header)
	if m == nil {
		return time.Time{}, nil, fmt.Errorf("unrecognized ban list header: %q", truncate(header, 120))
	}

	tradeDate, err := time.Parse("2-Jan-2006", m[1])
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("parse trade date %q: %w", m[1], err)
	}
	declared, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("parse declared count %q: %w", m[2], err)
	}

	entries := make([]domain.BanListEntry, 0, len(rows))
	for _, row := range rows {
		parts := strings.Split(row, ",")
		if len(parts) < 2 {
			return time.Time{}, nil, fmt.Errorf("malformed ban list row: %q", truncate(row, 120))
		}
		serial, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("malformed serial in row %q", truncate(row, 120))
		}
		symbol := strings.ToUpper(strings.TrimSpace(parts[1]))
		if symbol == "" {
			return time.Time{}, nil, fmt.Errorf("missing symbol in row %q", truncate(row, 120))
		}
		entries = append(entries, domain.BanListEntry{
			Serial:        serial,
			Symbol:        symbol,
			EffectiveDate: tradeDate,
		})
	}

	if declared != len(entries) {
		return time.Time{}, nil, fmt.Errorf("header declares %d securities but %d rows present", declared, len(entries))
	}
	return tradeDate, entries, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
