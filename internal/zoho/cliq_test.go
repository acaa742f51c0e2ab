package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"watchtower/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

func validCred() *domain.Credential {
	return &domain.Credential{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}
}

func newTestCliqClient(url string) *CliqClient {
	return NewCliqClient(
		trace.NewNoopTracerProvider().Tracer("test"),
		url+"/bots/watchtower/message",
		url+"/channelsbyname/playground/message",
		"watchtower",
		time.Second,
	)
}

func TestSendPostsToBotThenChannel(t *testing.T) {
	type hit struct {
		path  string
		query string
		auth  string
		text  string
	}
	var hits []hit

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload cliqPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Card.Title != "ANNOUNCEMENT" || payload.Card.Theme != "modern-inline" {
			t.Errorf("unexpected card: %+v", payload.Card)
		}
		hits = append(hits, hit{
			path:  r.URL.Path,
			query: r.URL.RawQuery,
			auth:  r.Header.Get("Authorization"),
			text:  payload.Text,
		})
	}))
	defer srv.Close()

	err := newTestCliqClient(srv.URL).Send(context.Background(), domain.Message{Text: "ban list body"}, validCred())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(hits) != 2 {
		t.Fatalf("expected bot then channel posts, got %d", len(hits))
	}
	if !strings.Contains(hits[0].path, "/bots/") {
		t.Fatalf("first post should target the bot, got %s", hits[0].path)
	}
	if !strings.Contains(hits[1].path, "/channelsbyname/") || hits[1].query != "bot_unique_name=watchtower" {
		t.Fatalf("second post should target the channel as the bot, got %s?%s", hits[1].path, hits[1].query)
	}
	for _, h := range hits {
		if h.auth != "Zoho-oauthtoken tok" {
			t.Fatalf("unexpected auth header: %q", h.auth)
		}
		if h.text != "### ban list body" {
			t.Fatalf("unexpected text: %q", h.text)
		}
	}
}

func TestSendDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"invalid_channel"}`))
	}))
	defer srv.Close()

	err := newTestCliqClient(srv.URL).Send(context.Background(), domain.Message{Text: "x"}, validCred())
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeliveryError, got %T", err)
	}
	if de.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", de.HTTPStatus)
	}
	if !strings.Contains(de.Body, "invalid_channel") {
		t.Fatalf("expected response excerpt, got %q", de.Body)
	}
}

func TestSendStopsAfterBotFailure(t *testing.T) {
	var channelHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/channelsbyname/") {
			channelHits++
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := newTestCliqClient(srv.URL).Send(context.Background(), domain.Message{Text: "x"}, validCred())
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if channelHits != 0 {
		t.Fatal("channel post must not happen after a bot post failure")
	}
}

func TestSendRejectsExpiredCredential(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	expired := &domain.Credential{AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Minute)}
	err := newTestCliqClient(srv.URL).Send(context.Background(), domain.Message{Text: "x"}, expired)
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError for expired token, got %v", err)
	}
	if hits != 0 {
		t.Fatal("expired token must never reach the wire")
	}
}
