package alerts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExpoValidToken(t *testing.T) {
	s := NewExpoSender("", "", 0, 0, nil)
	cases := map[string]bool{
		"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]":  true,
		"ExpoPushToken[abc]":                         true,
		"F5741A13-BCDA-434B-A316-5DC0E6FFA94F":       true,
		"ExponentPushToken[missing-bracket":          false,
		"fcm:abcdef":                                 false,
		"":                                           false,
		"f5741a13-bcda-434b-a316-5dc0e6ffa94f-extra": false,
	}
	for token, want := range cases {
		if got := s.ValidToken(token); got != want {
			t.Fatalf("ValidToken(%q) = %v, want %v", token, got, want)
		}
	}
}

func TestExpoChunkSizeIsClamped(t *testing.T) {
	if got := NewExpoSender("", "", 500, 0, nil).MaxChunkSize(); got != ExpoMaxChunkSize {
		t.Fatalf("expected clamp to %d, got %d", ExpoMaxChunkSize, got)
	}
	if got := NewExpoSender("", "", 25, 0, nil).MaxChunkSize(); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}
}

func newTestExpo(t *testing.T, handler http.HandlerFunc) *ExpoSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewExpoSender(srv.URL, "secret", 100, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestExpoSendBatchPostsMessages(t *testing.T) {
	var got []Message
	s := newTestExpo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"data":[{"status":"ok","id":"1"},{"status":"error","message":"gone","details":{"error":"DeviceNotRegistered"}}]}`)
	})

	res, err := s.SendBatch(context.Background(), []Message{
		{To: "ExponentPushToken[a]", Body: "hi", ExperienceID: "@me/app"},
		{To: "ExponentPushToken[b]", Body: "hi", ExperienceID: "@me/app"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].To != "ExponentPushToken[b]" || got[0].ExperienceID != "@me/app" {
		t.Fatalf("unexpected request body %+v", got)
	}
	if res.Accepted != 1 || len(res.TicketErrors) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.TicketErrors[0].Token != "ExponentPushToken[b]" || res.TicketErrors[0].Code != "DeviceNotRegistered" {
		t.Fatalf("unexpected ticket error %+v", res.TicketErrors[0])
	}
}

func TestExpoSendBatchFailsOnRequestErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"request error body": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"errors":[{"code":"PUSH_TOO_MANY_EXPERIENCE_IDS","message":"mixed"}]}`)
		},
		"errors on 200": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"errors":[{"code":"INTERNAL_SERVER_ERROR","message":"oops"}]}`)
		},
		"ticket mismatch": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"data":[]}`)
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `not json`)
		},
	}
	for name, h := range cases {
		s := newTestExpo(t, h)
		_, err := s.SendBatch(context.Background(), []Message{{To: "ExponentPushToken[a]", Body: "x"}})
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !strings.HasPrefix(err.Error(), "expo:") {
			t.Fatalf("%s: expected expo-prefixed error, got %v", name, err)
		}
	}
}

func TestExpoSendBatchRejectsOversizedBatch(t *testing.T) {
	s := NewExpoSender("http://127.0.0.1:0", "", 2, time.Second, nil)
	_, err := s.SendBatch(context.Background(), make([]Message, 3))
	if err == nil || !strings.Contains(err.Error(), "exceeds limit") {
		t.Fatalf("expected size error, got %v", err)
	}
}
