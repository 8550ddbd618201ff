package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"word_armor/internal/model"
	"word_armor/internal/utils/log"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const DefaultMailboxTTL = 72 * time.Hour

type (
	// Mailbox holds fragments for recipients that are offline.
	Mailbox interface {
		Append(ctx context.Context, key string, ttl time.Duration, values ...any) error
		Drain(ctx context.Context, key string) ([]string, error)
	}

	DictionaryStore interface {
		GetByVersion(ctx context.Context, version string) (*model.Dictionary, error)
	}

	peer struct {
		mu   sync.Mutex
		conn *websocket.Conn
	}

	// HttpServer relays armored fragments between connected clients. It
	// never holds a seed and cannot read what it forwards.
	HttpServer struct {
		mu     sync.RWMutex
		mapper map[string]*peer

		dictionaries DictionaryStore
		mailbox      Mailbox
		mailboxTTL   time.Duration

		srv *http.Server
	}
)

func NewHttpServer(dictionaries DictionaryStore, mailbox Mailbox) *HttpServer {
	return &HttpServer{
		mapper:       make(map[string]*peer),
		dictionaries: dictionaries,
		mailbox:      mailbox,
		mailboxTTL:   DefaultMailboxTTL,
	}
}

func mailboxKey(to string) string {
	return "mailbox:" + to
}

func (s *HttpServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/init", s.HandleInitWS()).Methods(http.MethodGet)
	r.HandleFunc("/dictionary/{version}", s.GetDictionary()).Methods(http.MethodGet)
	return r
}

// Run serves on addr in the background until Shutdown.
func (s *HttpServer) Run(addr string) {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("relay listening", zap.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("relay stopped", zap.Error(err))
		}
	}()
}

func (s *HttpServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id, p := range s.mapper {
		p.conn.Close()
		delete(s.mapper, id)
	}
	s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *HttpServer) Online(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.mapper[userID]
	return ok
}

func (s *HttpServer) HandleInitWS() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.URL.Query().Get("userID"))
		if userID == "" {
			http.Error(w, "userID cannot be empty", http.StatusBadRequest)
			return
		}

		if s.Online(userID) {
			http.Error(w, "duplicated userID", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", zap.Error(err))
			return
		}

		p := &peer{conn: conn}
		s.mu.Lock()
		if _, ok := s.mapper[userID]; ok {
			s.mu.Unlock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "duplicated userID"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		}
		s.mapper[userID] = p
		s.mu.Unlock()

		log.Debug("peer connected", zap.String("user", userID))
		go s.processWSMessage(userID, p)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.ForwardUnsentMessages(ctx, userID); err != nil {
			log.Error("forward msg failed", zap.Error(err))
		}
	}
}

func (s *HttpServer) processWSMessage(userID string, p *peer) {
	defer func() {
		s.mu.Lock()
		if s.mapper[userID] == p {
			delete(s.mapper, userID)
		}
		s.mu.Unlock()
		p.conn.Close()
	}()

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			log.Debug("peer web socket closed", zap.String("user", userID), zap.Error(err))
			return
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error("unmarshal envelope failed", zap.Error(err))
			continue
		}
		env.From = userID
		if env.To == "" || env.Fragment == "" {
			log.Warn("dropping envelope without recipient or fragment", zap.String("from", userID))
			continue
		}
		if env.SentAt.IsZero() {
			env.SentAt = time.Now().UTC()
		}

		if err := s.deliver(context.Background(), &env); err != nil {
			log.Error("deliver envelope failed", zap.String("to", env.To), zap.Error(err))
		}
	}
}

func (s *HttpServer) deliver(ctx context.Context, env *model.Envelope) error {
	s.mu.RLock()
	p, ok := s.mapper[env.To]
	s.mu.RUnlock()

	if ok {
		err := p.send(env)
		if err == nil {
			return nil
		}
		log.Warn("live delivery failed, queueing", zap.String("to", env.To), zap.Error(err))
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.mailbox.Append(ctx, mailboxKey(env.To), s.mailboxTTL, data)
}

func (p *peer) send(env *model.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteJSON(env)
}

func (s *HttpServer) ForwardUnsentMessages(ctx context.Context, userID string) error {
	vals, err := s.mailbox.Drain(ctx, mailboxKey(userID))
	if err != nil {
		return err
	}

	s.mu.RLock()
	p, ok := s.mapper[userID]
	s.mu.RUnlock()

	for i, v := range vals {
		var env model.Envelope
		if err := json.Unmarshal([]byte(v), &env); err != nil {
			log.Error("dropping corrupt mailbox entry", zap.String("user", userID), zap.Error(err))
			continue
		}
		if !ok {
			return s.requeue(ctx, userID, vals[i:])
		}
		if err := p.send(&env); err != nil {
			return errors.Join(err, s.requeue(ctx, userID, vals[i:]))
		}
	}
	return nil
}

func (s *HttpServer) requeue(ctx context.Context, userID string, vals []string) error {
	if len(vals) == 0 {
		return nil
	}
	items := make([]any, len(vals))
	for i, v := range vals {
		items[i] = v
	}
	return s.mailbox.Append(ctx, mailboxKey(userID), s.mailboxTTL, items...)
}

func (s *HttpServer) GetDictionary() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		version := mux.Vars(r)["version"]
		log.Info("GetDictionary", zap.String("version", version))

		dict, err := s.dictionaries.GetByVersion(ctx, version)
		if err != nil {
			log.Error("get dictionary failed", zap.Error(err))
			http.Error(w, "get dictionary failed", http.StatusInternalServerError)
			return
		}

		if dict == nil {
			http.Error(w, "dictionary version does not exist", http.StatusNotFound)
			return
		}

		data, err := json.Marshal(dict)
		if err != nil {
			log.Error("get dictionary failed", zap.Error(err))
			http.Error(w, "get dictionary failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
