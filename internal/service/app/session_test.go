package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"word_armor/internal/dictionary"
	"word_armor/internal/model"
	"word_armor/internal/payload"
	"word_armor/internal/protocol/mapping"
	"word_armor/internal/protocol/permutation"
	"word_armor/internal/testutil/dicttest"
)

var (
	dictOnce sync.Once
	testDict *dictionary.Dictionary
)

func sharedDictionary(t *testing.T) *dictionary.Dictionary {
	t.Helper()
	dictOnce.Do(func() {
		testDict = dicttest.New(t, mapping.MinDictionarySize)
	})
	return testDict
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
	// failGets makes the next failGets calls to Get fail.
	failGets int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected value type %T", value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), b...)
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGets > 0 {
		m.failGets--
		return nil, false, errors.New("store unavailable")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

var sentAt = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func newTestSession(t *testing.T, user string, store StateStore) *Session {
	t.Helper()
	s := NewSession(SessionConfig{
		User:        user,
		Seed:        permutation.SeedFromUint64(69),
		Dictionary:  sharedDictionary(t),
		Compression: payload.None,
		SoftLimit:   40,
		Store:       store,
	})
	s.now = func() time.Time { return sentAt }
	return s
}

const longMessage = "meet me by the old mill at half past nine, bring the map"

func armorMessage(t *testing.T, s *Session, msg string) []model.Envelope {
	t.Helper()
	envs, err := s.Armor("bob", []byte(msg))
	if err != nil {
		t.Fatalf("Armor: %v", err)
	}
	if len(envs) < 3 {
		t.Fatalf("expected several fragments, got %d", len(envs))
	}
	return envs
}

func TestSessionReassemblesOutOfOrder(t *testing.T) {
	alice := newTestSession(t, "alice", nil)
	bob := newTestSession(t, "bob", nil)

	envs := armorMessage(t, alice, longMessage)
	for i := range envs {
		if envs[i].From != "alice" || envs[i].To != "bob" || !envs[i].SentAt.Equal(sentAt) {
			t.Fatalf("envelope %d: %+v", i, envs[i])
		}
	}

	ctx := context.Background()
	for i := len(envs) - 1; i >= 0; i-- {
		msg, done, err := bob.Receive(ctx, &envs[i])
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if done != (i == 0) {
			t.Fatalf("fragment %d: done=%v", i, done)
		}
		if done && string(msg) != longMessage {
			t.Fatalf("got %q", msg)
		}
	}
}

func TestSessionResumesFromStore(t *testing.T) {
	store := newMemoryStore()
	alice := newTestSession(t, "alice", nil)
	envs := armorMessage(t, alice, longMessage)

	ctx := context.Background()
	first := newTestSession(t, "bob", store)
	for i := range envs[:len(envs)-1] {
		if _, done, err := first.Receive(ctx, &envs[i]); err != nil || done {
			t.Fatalf("Receive %d: done=%v err=%v", i, done, err)
		}
	}
	if store.len() != 1 {
		t.Fatalf("expected pending state for alice, store has %d keys", store.len())
	}

	restarted := newTestSession(t, "bob", store)
	msg, done, err := restarted.Receive(ctx, &envs[len(envs)-1])
	if err != nil || !done {
		t.Fatalf("Receive last: done=%v err=%v", done, err)
	}
	if string(msg) != longMessage {
		t.Fatalf("got %q", msg)
	}
	if store.len() != 0 {
		t.Fatalf("pending state not cleared")
	}
}

func TestSessionRetriesStoreAfterLoadFailure(t *testing.T) {
	store := newMemoryStore()
	alice := newTestSession(t, "alice", nil)
	envs := armorMessage(t, alice, longMessage)

	ctx := context.Background()
	first := newTestSession(t, "bob", store)
	for i := range envs[:len(envs)-1] {
		if _, _, err := first.Receive(ctx, &envs[i]); err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
	}

	restarted := newTestSession(t, "bob", store)
	last := &envs[len(envs)-1]
	store.failGets = 1
	if _, done, err := restarted.Receive(ctx, last); err == nil || done {
		t.Fatalf("expected load failure, got done=%v err=%v", done, err)
	}

	msg, done, err := restarted.Receive(ctx, last)
	if err != nil || !done {
		t.Fatalf("Receive after recovery: done=%v err=%v", done, err)
	}
	if string(msg) != longMessage {
		t.Fatalf("got %q", msg)
	}
}

func TestSessionIgnoresPendingFromAnotherDay(t *testing.T) {
	store := newMemoryStore()
	alice := newTestSession(t, "alice", nil)
	envs := armorMessage(t, alice, longMessage)

	ctx := context.Background()
	err := SavePending(ctx, store, "bob", &model.Pending{
		From:      "alice",
		Date:      "2024-02-29",
		Fragments: []string{"stale words"},
	})
	if err != nil {
		t.Fatalf("SavePending: %v", err)
	}

	bob := newTestSession(t, "bob", store)
	var msg []byte
	for i := range envs {
		m, done, err := bob.Receive(ctx, &envs[i])
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if done {
			msg = m
		}
	}
	if string(msg) != longMessage {
		t.Fatalf("got %q", msg)
	}
}

func TestSessionNewMessageReplacesIncompleteOne(t *testing.T) {
	alice := newTestSession(t, "alice", nil)
	bob := newTestSession(t, "bob", nil)
	ctx := context.Background()

	abandoned := armorMessage(t, alice, longMessage)
	for i := range abandoned[:len(abandoned)-1] {
		if _, _, err := bob.Receive(ctx, &abandoned[i]); err != nil {
			t.Fatalf("Receive abandoned %d: %v", i, err)
		}
	}

	next := "second thoughts, the bridge is safer after dark"
	var got []byte
	for _, env := range armorMessage(t, alice, next) {
		msg, done, err := bob.Receive(ctx, &env)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if done {
			got = msg
		}
	}
	if string(got) != next {
		t.Fatalf("got %q", got)
	}
}

func TestSessionCompressedRoundTrip(t *testing.T) {
	alice := newTestSession(t, "alice", nil)
	alice.cfg.Compression = payload.Zstd
	bob := newTestSession(t, "bob", nil)

	msg := strings.Repeat("all quiet on the northern front. ", 20)
	envs, err := alice.Armor("bob", []byte(msg))
	if err != nil {
		t.Fatalf("Armor: %v", err)
	}

	var got []byte
	for i := range envs {
		m, done, err := bob.Receive(context.Background(), &envs[i])
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		if done {
			got = m
		}
	}
	if !bytes.Equal(got, []byte(msg)) {
		t.Fatalf("round trip mismatch")
	}
}

func TestPendingStateRoundTrip(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	if p, err := LoadPending(ctx, store, "bob", "alice"); err != nil || p != nil {
		t.Fatalf("empty store: p=%v err=%v", p, err)
	}

	want := &model.Pending{From: "alice", Date: "2024-03-01", Fragments: []string{"one two", "three"}}
	if err := SavePending(ctx, store, "bob", want); err != nil {
		t.Fatalf("SavePending: %v", err)
	}
	got, err := LoadPending(ctx, store, "bob", "alice")
	if err != nil {
		t.Fatalf("LoadPending: %v", err)
	}
	if got.From != want.From || got.Date != want.Date || strings.Join(got.Fragments, "|") != "one two|three" {
		t.Fatalf("got %+v", got)
	}

	if err := ClearPending(ctx, store, "bob", "alice"); err != nil {
		t.Fatalf("ClearPending: %v", err)
	}
	if store.len() != 0 {
		t.Fatalf("state not cleared")
	}
}

func TestFetchDictionary(t *testing.T) {
	words := dicttest.Words(40)
	dict, err := dictionary.New(words)
	if err != nil {
		t.Fatalf("dictionary.New: %v", err)
	}

	published := map[string]model.Dictionary{
		"v1":  {Version: "v1", Digest: dict.Digest(), Words: words},
		"bad": {Version: "bad", Digest: "0000", Words: words},
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, ok := published[strings.TrimPrefix(r.URL.Path, "/dictionary/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(d)
	}))
	defer ts.Close()
	host := strings.TrimPrefix(ts.URL, "http://")
	ctx := context.Background()

	got, err := FetchDictionary(ctx, host, "v1")
	if err != nil {
		t.Fatalf("FetchDictionary: %v", err)
	}
	if got.Digest() != dict.Digest() || got.Len() != 40 {
		t.Fatalf("unexpected dictionary: %d words, digest %s", got.Len(), got.Digest())
	}

	if _, err := FetchDictionary(ctx, host, "bad"); err == nil {
		t.Fatalf("expected digest mismatch")
	}
	if _, err := FetchDictionary(ctx, host, "v9"); err == nil {
		t.Fatalf("expected error for missing version")
	}
}
