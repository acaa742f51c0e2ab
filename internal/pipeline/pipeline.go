// Package pipeline runs the single fetch-format-deliver invocation and
// reduces it to a terminal RunReport.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"watchtower/internal/domain"
	"watchtower/internal/format"
	"watchtower/internal/provider"
	"watchtower/internal/zoho"

	"go.opentelemetry.io/otel/trace"
)

type TokenSource interface {
	ObtainAccessToken(ctx context.Context) (*domain.Credential, error)
}

type BanListSource interface {
	FetchBanList(ctx context.Context) (*domain.BanList, error)
}

type HolidayChecker interface {
	EquityHoliday(ctx context.Context, day time.Time) (string, bool, error)
}

type MessageSender interface {
	Send(ctx context.Context, msg domain.Message, cred *domain.Credential) error
}

// Runner drives one run to completion. Stages: token acquisition and list
// fetch (independent, run concurrently), then format and delivery. Any
// stage failure short-circuits delivery; a market holiday still delivers
// the heartbeat notice so a silent channel always means a missed run.
type Runner struct {
	tracer   trace.Tracer
	tokens   TokenSource
	source   BanListSource
	holidays HolidayChecker
	sender   MessageSender
	now      func() time.Time
}

func NewRunner(tracer trace.Tracer, tokens TokenSource, source BanListSource, holidays HolidayChecker, sender MessageSender) *Runner {
	return &Runner{
		tracer:   tracer,
		tokens:   tokens,
		source:   source,
		holidays: holidays,
		sender:   sender,
		now:      time.Now,
	}
}

func (r *Runner) Run(ctx context.Context) *domain.RunReport {
	ctx, span := r.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	report := &domain.RunReport{StartedAt: r.now().UTC()}

	type tokenResult struct {
		cred *domain.Credential
		err  error
	}
	type fetchResult struct {
		list *domain.BanList
		err  error
	}

	tokenCh := make(chan tokenResult, 1)
	fetchCh := make(chan fetchResult, 1)

	// No data dependency between the two, so they run in parallel.
	go func() {
		cred, err := r.tokens.ObtainAccessToken(ctx)
		tokenCh <- tokenResult{cred: cred, err: err}
	}()
	go func() {
		list, err := r.fetchList(ctx)
		fetchCh <- fetchResult{list: list, err: err}
	}()

	token := <-tokenCh
	fetch := <-fetchCh

	if token.err != nil {
		return r.finish(report, domain.StateTokenFailed, stageFailure(domain.StageToken, token.err))
	}
	if fetch.err != nil {
		return r.finish(report, domain.StateFetchFailed, stageFailure(domain.StageFetch, fetch.err))
	}

	report.NoData = fetch.list.Status == domain.StatusNoData
	report.EntryCount = len(fetch.list.Entries)

	msg := format.Render(fetch.list)
	if err := r.sender.Send(ctx, msg, token.cred); err != nil {
		return r.finish(report, domain.StateSendFailed, stageFailure(domain.StageDeliver, err))
	}

	log.Printf("Ban list delivered: entries=%d no_data=%v", report.EntryCount, report.NoData)
	return r.finish(report, domain.StateMessageSent, nil)
}

// fetchList consults the holiday calendar first: on an equity holiday no
// list is expected and the fetch is skipped in favor of the heartbeat. A
// failed holiday check is a fetch-stage failure, never a guessed holiday.
func (r *Runner) fetchList(ctx context.Context) (*domain.BanList, error) {
	if r.holidays != nil {
		name, closed, err := r.holidays.EquityHoliday(ctx, r.now())
		if err != nil {
			return nil, fmt.Errorf("holiday check: %w", err)
		}
		if closed {
			log.Printf("Equity holiday today (%s), no ban list expected", name)
			return domain.NoDataToday(name), nil
		}
	}
	return r.source.FetchBanList(ctx)
}

func (r *Runner) finish(report *domain.RunReport, state domain.RunState, failure *domain.StageError) *domain.RunReport {
	report.State = state
	report.Failure = failure
	report.FinishedAt = r.now().UTC()
	if failure != nil {
		log.Printf("Run failed: %v", failure)
	}
	return report
}

// stageFailure flattens a stage error into the report record, pulling out
// the HTTP status when the underlying typed error carries one.
func stageFailure(stage string, err error) *domain.StageError {
	out := &domain.StageError{Stage: stage, Cause: err.Error()}

	var authErr *zoho.AuthError
	var fetchErr *provider.FetchError
	var deliveryErr *zoho.DeliveryError
	switch {
	case errors.As(err, &authErr):
		out.HTTPStatus = authErr.HTTPStatus
	case errors.As(err, &fetchErr):
		out.HTTPStatus = fetchErr.HTTPStatus
	case errors.As(err, &deliveryErr):
		out.HTTPStatus = deliveryErr.HTTPStatus
	}
	return out
}
