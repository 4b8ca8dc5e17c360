package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homegate/registration-server/internal/registration/model"
	"github.com/homegate/registration-server/internal/registration/repository"
)

// nameLookup is the read-only access ChallengeService needs.
// *repository.RecordRepository satisfies this interface.
type nameLookup interface {
	GetByName(ctx context.Context, remoteName string) (*model.DomainRecord, error)
}

// ChallengeService is the thin read surface the DNS bridge uses to answer
// challenge and address queries. Every call hits the store: the bridge must
// see the latest value written by SetDNSConfig, never a cached snapshot.
type ChallengeService struct {
	store   nameLookup
	timeout time.Duration
}

// NewChallengeService creates a ChallengeService.
func NewChallengeService(store nameLookup) *ChallengeService {
	return &ChallengeService{store: store, timeout: DefaultStoreTimeout}
}

// LookupChallenge returns the current DNS-01 challenge for remoteName, or ""
// when the name is unknown or no challenge has been set.
func (s *ChallengeService) LookupChallenge(ctx context.Context, remoteName string) (string, error) {
	rec, err := s.LookupRecord(ctx, remoteName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return rec.DNSChallenge, nil
}

// LookupRecord returns the current record for remoteName, for address queries.
func (s *ChallengeService) LookupRecord(ctx context.Context, remoteName string) (*model.DomainRecord, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.store.GetByName(cctx, remoteName)
	if err != nil {
		if errors.Is(err, repository.ErrNoRecord) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record by name: %w", err)
	}
	return rec, nil
}
