package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homegate/registration-server/internal/registration/model"
	"github.com/homegate/registration-server/internal/registration/repository"
)

// Sentinel errors returned by the registration services. Anything else coming
// out of a service call is a store failure.
var (
	// ErrNotFound means an unknown token or discovery id.
	ErrNotFound = errors.New("record not found")
	// ErrNameUnavailable means a record already exists for the requested name.
	ErrNameUnavailable = errors.New("name unavailable")
)

// DefaultStoreTimeout bounds every store call issued by the services.
// A store that never answers surfaces as a failure instead of a hung handler.
const DefaultStoreTimeout = 5 * time.Second

// recordStore is the persistence interface for the record lifecycle.
// *repository.RecordRepository satisfies this interface.
type recordStore interface {
	Add(ctx context.Context, rec *model.DomainRecord) error
	GetByToken(ctx context.Context, token string) (*model.DomainRecord, error)
	GetByName(ctx context.Context, remoteName string) (*model.DomainRecord, error)
	Update(ctx context.Context, rec *model.DomainRecord) error
	DeleteByToken(ctx context.Context, token string) (int64, error)
}

// discoveryCleaner removes a token's discovery mappings on unsubscribe.
// *repository.DiscoveryRepository satisfies this interface; nil disables cleanup.
type discoveryCleaner interface {
	DeleteByToken(ctx context.Context, token string) (int64, error)
}

// RecordService owns the domain record lifecycle: subscribe, register,
// dnsconfig, unsubscribe and info.
//
// Register and SetDNSConfig both do a read-then-full-rewrite of the same row.
// The store provides no per-record compare-and-swap, so the service serializes
// those rewrites per token; without that, two concurrent updates for one token
// could silently drop each other's fields.
type RecordService struct {
	store     recordStore
	discovery discoveryCleaner
	domain    string // registry domain, e.g. "example.com"
	timeout   time.Duration
	logger    *zap.Logger

	tokenLocks sync.Map // token → *sync.Mutex
}

// NewRecordService creates a RecordService for the given registry domain.
// discovery may be nil to skip discovery-mapping cleanup on unsubscribe.
func NewRecordService(store recordStore, discovery discoveryCleaner, domain string, logger *zap.Logger) *RecordService {
	return &RecordService{
		store:     store,
		discovery: discovery,
		domain:    domain,
		timeout:   DefaultStoreTimeout,
		logger:    logger,
	}
}

// SetStoreTimeout overrides the per-call store timeout.
func (s *RecordService) SetStoreTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// RemoteNameFor derives the fully-qualified name assigned to a subscription:
// lowercase, under the "box" label of the registry domain, trailing dot.
func (s *RecordService) RemoteNameFor(name string) string {
	return strings.ToLower(name + ".box." + s.domain + ".")
}

// storeCtx bounds a store call with the configured timeout.
func (s *RecordService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// lockToken serializes record rewrites for a single token. The returned
// function releases the lock.
func (s *RecordService) lockToken(token string) func() {
	mu, _ := s.tokenLocks.LoadOrStore(token, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Subscribe reserves a name and mints the token that acts as the credential
// for every later operation on the record.
func (s *RecordService) Subscribe(ctx context.Context, name, description string) (*model.NameAndToken, error) {
	remoteName := s.RemoteNameFor(name)

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()

	_, err := s.store.GetByName(cctx, remoteName)
	switch {
	case err == nil:
		return nil, ErrNameUnavailable
	case errors.Is(err, repository.ErrNoRecord):
		// Name is free.
	default:
		return nil, fmt.Errorf("check name availability: %w", err)
	}

	if description == "" {
		description = fmt.Sprintf("%s's server", name)
	}

	rec := &model.DomainRecord{
		Token:       uuid.NewString(),
		LocalName:   "local." + remoteName,
		RemoteName:  remoteName,
		Description: description,
		Timestamp:   0,
	}

	if err := s.store.Add(cctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			// Lost a race with a concurrent subscribe for the same name.
			return nil, ErrNameUnavailable
		}
		return nil, fmt.Errorf("add record: %w", err)
	}

	s.logger.Info("subscribed",
		zap.String("remote_name", remoteName),
	)
	return &model.NameAndToken{Name: name, Token: rec.Token}, nil
}

// Register records the device's current local and public addresses and bumps
// the registration timestamp. All other fields of the record are preserved.
func (s *RecordService) Register(ctx context.Context, token, localIP, publicIP string) error {
	unlock := s.lockToken(token)
	defer unlock()

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()

	rec, err := s.store.GetByToken(cctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNoRecord) {
			return ErrNotFound
		}
		return fmt.Errorf("get record: %w", err)
	}

	rec.LocalIP = localIP
	rec.PublicIP = publicIP
	rec.Timestamp = time.Now().Unix()

	if err := s.store.Update(cctx, rec); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	s.logger.Info("registered",
		zap.String("remote_name", rec.RemoteName),
		zap.String("local_ip", localIP),
		zap.String("public_ip", publicIP),
	)
	return nil
}

// SetDNSConfig stores the ACME DNS-01 challenge value for the record,
// preserving every other field.
func (s *RecordService) SetDNSConfig(ctx context.Context, token, challenge string) error {
	unlock := s.lockToken(token)
	defer unlock()

	cctx, cancel := s.storeCtx(ctx)
	defer cancel()

	rec, err := s.store.GetByToken(cctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNoRecord) {
			return ErrNotFound
		}
		return fmt.Errorf("get record: %w", err)
	}

	rec.DNSChallenge = challenge

	if err := s.store.Update(cctx, rec); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	s.logger.Info("dns challenge set", zap.String("remote_name", rec.RemoteName))
	return nil
}

// Unsubscribe deletes the record for token, along with its discovery mappings.
func (s *RecordService) Unsubscribe(ctx context.Context, token string) error {
	cctx, cancel := s.storeCtx(ctx)
	defer cancel()

	n, err := s.store.DeleteByToken(cctx, token)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	// The token is dead, so its rewrite lock entry can go too. A racing
	// Register on the same token may mint a fresh mutex, but it only guards
	// a lookup that now returns ErrNotFound.
	s.tokenLocks.Delete(token)

	if s.discovery != nil {
		if _, err := s.discovery.DeleteByToken(cctx, token); err != nil {
			// The record is already gone; orphaned mappings resolve to a
			// dead token and fail lookups, so this is non-fatal.
			s.logger.Warn("discovery cleanup failed", zap.Error(err))
		}
	}

	s.logger.Info("unsubscribed")
	return nil
}

// Info returns the full record for token.
func (s *RecordService) Info(ctx context.Context, token string) (*model.DomainRecord, error) {
	cctx, cancel := s.storeCtx(ctx)
	defer cancel()

	rec, err := s.store.GetByToken(cctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNoRecord) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}
