package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vbonduro/sparx/internal/catalog"
	"github.com/vbonduro/sparx/internal/domain"
	"github.com/vbonduro/sparx/internal/favorites"
	"github.com/vbonduro/sparx/internal/kvstore"
	"github.com/vbonduro/sparx/internal/ledger"
	"github.com/vbonduro/sparx/internal/notify"
	"github.com/vbonduro/sparx/internal/workflow"
)

const (
	DefaultIdleTTL    = 24 * time.Hour
	DefaultMaxClients = 10000
)

// ClientService owns one workflow.App per client. Each App gets its own
// catalog, ledger and favorites key so clients never observe each other.
// Apps untouched for the idle TTL expire, and registering past the client
// cap evicts the least recently used App.
type ClientService struct {
	mu           sync.Mutex
	apps         *expirable.LRU[string, *workflow.App]
	kv           kvstore.Store
	favoritesKey string
	events       notify.Publisher
	logger       *slog.Logger
	appOpts      []workflow.Option
	idleTTL      time.Duration
	maxClients   int
}

type Option func(*ClientService)

// WithAppOptions passes opts to every App the service creates.
func WithAppOptions(opts ...workflow.Option) Option {
	return func(s *ClientService) { s.appOpts = append(s.appOpts, opts...) }
}

// WithIdleTTL sets how long an untouched App is kept. Zero keeps Apps until
// the cap evicts them.
func WithIdleTTL(d time.Duration) Option {
	return func(s *ClientService) { s.idleTTL = d }
}

// WithMaxClients caps the registry. Zero means no cap.
func WithMaxClients(n int) Option {
	return func(s *ClientService) { s.maxClients = n }
}

func NewClientService(
	kv kvstore.Store,
	favoritesKey string,
	events notify.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *ClientService {
	if favoritesKey == "" {
		favoritesKey = favorites.DefaultKey
	}
	s := &ClientService{
		kv:           kv,
		favoritesKey: favoritesKey,
		events:       events,
		logger:       logger,
		idleTTL:      DefaultIdleTTL,
		maxClients:   DefaultMaxClients,
	}
	for _, opt := range opts {
		opt(s)
	}
	// The callback runs under the cache's lock; it must not touch s.apps.
	s.apps = expirable.NewLRU(s.maxClients, func(clientID string, _ *workflow.App) {
		s.logger.Info("client state evicted", "client_id", clientID)
	}, s.idleTTL)
	return s
}

// App returns the App for clientID, creating and registering it on first
// use. Every call renews the client's idle TTL. A new App loads the
// client's favorites from durable storage.
func (s *ClientService) App(ctx context.Context, clientID string) (*workflow.App, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("client id required: %w", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps.Get(clientID)
	if !ok {
		app = s.newApp(ctx, clientID)
		s.logger.Info("client state created", "client_id", clientID, "clients", s.apps.Len()+1)
	}
	s.apps.Add(clientID, app)
	return app, nil
}

// View returns the registered App for clientID, or a fresh App that is not
// registered. Read-only requests use it so a client that never changes
// anything leaves nothing behind.
func (s *ClientService) View(ctx context.Context, clientID string) (*workflow.App, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, fmt.Errorf("client id required: %w", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if app, ok := s.apps.Get(clientID); ok {
		s.apps.Add(clientID, app)
		return app, nil
	}
	return s.newApp(ctx, clientID), nil
}

func (s *ClientService) newApp(ctx context.Context, clientID string) *workflow.App {
	store := favorites.NewStore(s.kv, s.FavoritesKey(clientID), s.logger)
	opts := append([]workflow.Option{workflow.WithClientID(clientID)}, s.appOpts...)
	return workflow.NewApp(catalog.NewDefault(), ledger.New(), favorites.Open(ctx, store), s.events, s.logger, opts...)
}

// FavoritesKey is the durable key holding clientID's favorites.
func (s *ClientService) FavoritesKey(clientID string) string {
	return s.favoritesKey + ":" + clientID
}

// Count reports registered Apps, including expired ones not yet swept.
func (s *ClientService) Count() int {
	return s.apps.Len()
}
