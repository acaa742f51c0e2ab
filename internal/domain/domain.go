package domain

import (
	"fmt"
	"time"
)

// BanListStatus distinguishes a published list (possibly empty) from a day
// where no list exists at all. Fetch failures are carried as errors, never
// as a status, so "empty list" and "source broken" cannot be conflated.
type BanListStatus string

const (
	StatusEntries BanListStatus = "entries"
	StatusNoData  BanListStatus = "no_data"
)

// BanListEntry is one security under an F&O trading ban, in the order the
// exchange published it.
type BanListEntry struct {
	Serial        int
	Symbol        string
	EffectiveDate time.Time
}

type BanList struct {
	Status    BanListStatus
	TradeDate time.Time
	Entries   []BanListEntry
	FetchedAt time.Time
	// Reason holds context for StatusNoData (e.g. the holiday name).
	Reason string
}

func NoDataToday(reason string) *BanList {
	return &BanList{Status: StatusNoData, Reason: reason, FetchedAt: time.Now().UTC()}
}

// Credential is a short-lived Zoho access token. It is derived fresh from
// the refresh credential each run; ExpiresAt comes from the provider's
// declared lifetime at issuance.
type Credential struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Usable reports whether the token is still valid at now with the given
// safety margin before its declared expiry.
func (c *Credential) Usable(now time.Time, margin time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return now.Add(margin).Before(c.ExpiresAt)
}

// Message is the rendered chat payload. Built fresh per run, no state.
type Message struct {
	Text string
}

type RunState string

const (
	StateMessageSent RunState = "message_sent"
	StateTokenFailed RunState = "token_failed"
	StateFetchFailed RunState = "fetch_failed"
	StateSendFailed  RunState = "send_failed"
)

const (
	StageToken   = "token"
	StageFetch   = "fetch"
	StageDeliver = "deliver"
)

// StageError records which pipeline stage failed and why, with the HTTP
// status when one was observed (0 otherwise).
type StageError struct {
	Stage      string
	HTTPStatus int
	Cause      string
}

func (e *StageError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s stage failed (HTTP %d): %s", e.Stage, e.HTTPStatus, e.Cause)
	}
	return fmt.Sprintf("%s stage failed: %s", e.Stage, e.Cause)
}

// RunReport is the terminal record of one pipeline invocation.
type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	State      RunState
	NoData     bool
	EntryCount int
	Failure    *StageError
}

// ExitCode maps the terminal state to the process exit signal: zero only
// when the message (including the no-data heartbeat) was delivered.
func (r *RunReport) ExitCode() int {
	if r.State == StateMessageSent {
		return 0
	}
	return 1
}
