package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"word_armor/internal/dictionary"
	"word_armor/internal/model"
	"word_armor/internal/payload"
	"word_armor/internal/protocol/armor"
	"word_armor/internal/protocol/mapping"
	"word_armor/internal/protocol/permutation"
	"word_armor/internal/utils/log"

	"go.uber.org/zap"
)

type (
	SessionConfig struct {
		User        string
		Seed        permutation.Seed
		Dictionary  *dictionary.Dictionary
		Compression payload.Compression
		SoftLimit   int
		// Store persists half-assembled messages; nil keeps them in memory only.
		Store StateStore
	}

	// Session turns outgoing text into envelopes and reassembles incoming
	// envelopes into messages, one assembler per sender.
	Session struct {
		cfg   SessionConfig
		cache *mapping.Cache

		mu      sync.Mutex
		pending map[string]*inbound

		now func() time.Time
	}

	inbound struct {
		date      string
		assembler *armor.Assembler
	}
)

func NewSession(cfg SessionConfig) *Session {
	return &Session{
		cfg:     cfg,
		cache:   mapping.NewCache(),
		pending: make(map[string]*inbound),
		now:     time.Now,
	}
}

// Armor encodes msg with today's mapping. Every envelope of one message
// carries the same SentAt, which tells the receiver which mapping to use.
func (s *Session) Armor(to string, msg []byte) ([]model.Envelope, error) {
	sentAt := s.now().UTC()
	m, err := s.cache.Get(s.cfg.Dictionary, s.cfg.Seed, sentAt)
	if err != nil {
		return nil, err
	}

	fragments, err := armor.NewEncoder(m).EncodeFramed(msg, s.cfg.Compression, s.cfg.SoftLimit)
	if err != nil {
		return nil, err
	}

	envs := make([]model.Envelope, len(fragments))
	for i, f := range fragments {
		envs[i] = model.Envelope{
			From:     s.cfg.User,
			To:       to,
			Fragment: f,
			SentAt:   sentAt,
		}
	}
	return envs, nil
}

// Receive adds env to its sender's message and returns the message once
// every fragment has arrived.
func (s *Session) Receive(ctx context.Context, env *model.Envelope) ([]byte, bool, error) {
	date := env.SentAt.UTC()
	day := permutation.DateKey(date)
	m, err := s.cache.Get(s.cfg.Dictionary, s.cfg.Seed, date)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in, err := s.inboundFor(ctx, env.From, day, m)
	if err != nil {
		return nil, false, err
	}

	done, err := in.assembler.Add(env.Fragment)
	if errors.Is(err, armor.ErrDuplicateFragment) {
		// The sender started a new message before the last one completed.
		log.Warn("discarding incomplete message", zap.String("from", env.From), zap.Int("fragments", in.assembler.Len()))
		in.assembler.Reset()
		done, err = in.assembler.Add(env.Fragment)
	}
	if err != nil {
		return nil, false, err
	}

	if !done {
		return nil, false, s.save(ctx, env.From, in)
	}

	delete(s.pending, env.From)
	if s.cfg.Store != nil {
		if err := ClearPending(ctx, s.cfg.Store, s.cfg.User, env.From); err != nil {
			log.Warn("clear pending state failed", zap.String("from", env.From), zap.Error(err))
		}
	}
	s.cache.Prune(date.AddDate(0, 0, -1))

	msg, err := in.assembler.MessageFramed()
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

func (s *Session) inboundFor(ctx context.Context, from, day string, m *mapping.Mapping) (*inbound, error) {
	if in, ok := s.pending[from]; ok && in.date == day {
		return in, nil
	}

	in := &inbound{date: day, assembler: armor.NewAssembler(m)}
	if s.cfg.Store == nil {
		s.pending[from] = in
		return in, nil
	}

	stored, err := LoadPending(ctx, s.cfg.Store, s.cfg.User, from)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.Date == day {
		for _, f := range stored.Fragments {
			if _, err := in.assembler.Add(f); err != nil {
				log.Warn("dropping stored fragment", zap.String("from", from), zap.Error(err))
			}
		}
	}
	s.pending[from] = in
	return in, nil
}

func (s *Session) save(ctx context.Context, from string, in *inbound) error {
	if s.cfg.Store == nil {
		return nil
	}
	return SavePending(ctx, s.cfg.Store, s.cfg.User, &model.Pending{
		From:      from,
		Date:      in.date,
		Fragments: in.assembler.Fragments(),
	})
}
