// Package alertstest provides in-memory collaborators for exercising the
// alert pipeline without Postgres or a push provider.
package alertstest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
)

// ErrUnavailable is returned by Store methods while Fail is set.
var ErrUnavailable = errors.New("store unavailable")

// Store is a thread-safe in-memory TokenStore and ReadingStore.
type Store struct {
	mu       sync.Mutex
	tokens   []alerts.DeviceToken
	readings []alerts.Reading

	FailTokens   bool
	FailReadings bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) UpsertToken(_ context.Context, token, tenantID string, registeredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTokens {
		return ErrUnavailable
	}
	for i := range s.tokens {
		if s.tokens[i].Token == token {
			s.tokens[i].TenantID = tenantID
			s.tokens[i].RegisteredAt = registeredAt
			return nil
		}
	}
	s.tokens = append(s.tokens, alerts.DeviceToken{Token: token, TenantID: tenantID, RegisteredAt: registeredAt})
	return nil
}

func (s *Store) FindAllTokens(context.Context) ([]alerts.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTokens {
		return nil, ErrUnavailable
	}
	out := make([]alerts.DeviceToken, len(s.tokens))
	copy(out, s.tokens)
	return out, nil
}

func (s *Store) InsertReading(_ context.Context, distanceCm float64, createdAt time.Time) (alerts.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReadings {
		return alerts.Reading{}, ErrUnavailable
	}
	r := alerts.Reading{ID: int64(len(s.readings) + 1), DistanceCm: distanceCm, CreatedAt: createdAt}
	s.readings = append(s.readings, r)
	return r, nil
}

func (s *Store) FindLatestReading(context.Context) (*alerts.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReadings {
		return nil, ErrUnavailable
	}
	if len(s.readings) == 0 {
		return nil, nil
	}
	r := s.readings[len(s.readings)-1]
	return &r, nil
}

// Readings returns a copy of everything appended so far.
func (s *Store) Readings() []alerts.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]alerts.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

// Sender records every batch it is handed. Tokens starting with
// "ExponentPushToken[" are valid; FailFor makes batches containing a given
// token fail.
type Sender struct {
	ChunkSize int
	FailFor   map[string]error
	PanicFor  map[string]bool
	Delay     func(batch []alerts.Message) time.Duration

	mu      sync.Mutex
	batches [][]alerts.Message
}

// NewSender returns a Sender with the given chunk size.
func NewSender(chunkSize int) *Sender {
	return &Sender{ChunkSize: chunkSize, FailFor: map[string]error{}, PanicFor: map[string]bool{}}
}

func (s *Sender) ValidToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") && strings.HasSuffix(token, "]")
}

func (s *Sender) MaxChunkSize() int { return s.ChunkSize }

func (s *Sender) SendBatch(_ context.Context, messages []alerts.Message) (alerts.SendResult, error) {
	if s.Delay != nil {
		time.Sleep(s.Delay(messages))
	}

	s.mu.Lock()
	s.batches = append(s.batches, messages)
	s.mu.Unlock()

	for _, m := range messages {
		if s.PanicFor[m.To] {
			panic("sender exploded on " + m.To)
		}
		if err, ok := s.FailFor[m.To]; ok {
			return alerts.SendResult{}, err
		}
	}
	return alerts.SendResult{Accepted: len(messages)}, nil
}

// Batches returns every batch received, in call order.
func (s *Sender) Batches() [][]alerts.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]alerts.Message, len(s.batches))
	copy(out, s.batches)
	return out
}

// Token builds a valid token for name.
func Token(name string) string {
	return "ExponentPushToken[" + name + "]"
}
