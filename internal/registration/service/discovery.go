package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/homegate/registration-server/internal/registration/model"
	"github.com/homegate/registration-server/internal/registration/repository"
)

// discoveryStore persists discovery-id → token mappings.
// *repository.DiscoveryRepository satisfies this interface.
type discoveryStore interface {
	Add(ctx context.Context, token, disco string) error
	Delete(ctx context.Context, token, disco string) error
	GetToken(ctx context.Context, disco string) (string, error)
}

// recordLookup is the read-only record access DiscoveryService needs.
// *repository.RecordRepository satisfies this interface.
type recordLookup interface {
	GetByToken(ctx context.Context, token string) (*model.DomainRecord, error)
	GetByPublicIP(ctx context.Context, publicIP string) ([]*model.DomainRecord, error)
}

// DiscoveryService implements NAT-aware peer rendezvous: devices that observe
// the same public IP are assumed to share a LAN, so they get each other's
// local names; everyone else gets the public name.
type DiscoveryService struct {
	records   recordLookup
	discovery discoveryStore
	timeout   time.Duration
	logger    *zap.Logger
}

// NewDiscoveryService creates a DiscoveryService.
func NewDiscoveryService(records recordLookup, discovery discoveryStore, logger *zap.Logger) *DiscoveryService {
	return &DiscoveryService{
		records:   records,
		discovery: discovery,
		timeout:   DefaultStoreTimeout,
		logger:    logger,
	}
}

// SetStoreTimeout overrides the per-call store timeout.
func (s *DiscoveryService) SetStoreTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Ping returns every record registered from publicIP, keyed on the local name.
// The caller's own record is not filtered out: the server cannot tell which of
// the co-located records, if any, belongs to the caller.
func (s *DiscoveryService) Ping(ctx context.Context, publicIP string) ([]model.Discovered, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	records, err := s.records.GetByPublicIP(cctx, publicIP)
	if err != nil {
		return nil, fmt.Errorf("get records by public ip: %w", err)
	}

	results := make([]model.Discovered, 0, len(records))
	for _, rec := range records {
		results = append(results, rec.DiscoveredLocal())
	}
	return results, nil
}

// AddDiscovery publishes a discovery id for the record owned by token.
func (s *DiscoveryService) AddDiscovery(ctx context.Context, token, disco string) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.records.GetByToken(cctx, token); err != nil {
		if errors.Is(err, repository.ErrNoRecord) {
			return ErrNotFound
		}
		return fmt.Errorf("get record: %w", err)
	}

	if err := s.discovery.Add(cctx, token, disco); err != nil {
		return fmt.Errorf("add discovery: %w", err)
	}

	s.logger.Info("discovery id added")
	return nil
}

// RevokeDiscovery deletes the mapping for disco. The mapping must belong to
// token: revoking someone else's discovery id fails with ErrNotFound.
func (s *DiscoveryService) RevokeDiscovery(ctx context.Context, token, disco string) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.records.GetByToken(cctx, token); err != nil {
		if errors.Is(err, repository.ErrNoRecord) {
			return ErrNotFound
		}
		return fmt.Errorf("get record: %w", err)
	}

	if err := s.discovery.Delete(cctx, token, disco); err != nil {
		if errors.Is(err, repository.ErrNoDiscovery) {
			return ErrNotFound
		}
		return fmt.Errorf("delete discovery: %w", err)
	}

	s.logger.Info("discovery id revoked")
	return nil
}

// Discover resolves a discovery id from the vantage point of publicIP.
//
// When the owner's records are visible on the caller's public IP, the caller
// shares the owner's NAT and gets local (hairpin-free) addresses. Otherwise
// the owner's public name is returned so the peer stays reachable over the WAN.
func (s *DiscoveryService) Discover(ctx context.Context, disco, publicIP string) ([]model.Discovered, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ownerToken, err := s.discovery.GetToken(cctx, disco)
	if err != nil {
		if errors.Is(err, repository.ErrNoDiscovery) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve discovery id: %w", err)
	}

	colocated, err := s.records.GetByPublicIP(cctx, publicIP)
	if err != nil {
		return nil, fmt.Errorf("get records by public ip: %w", err)
	}

	var results []model.Discovered
	for _, rec := range colocated {
		if rec.Token == ownerToken {
			results = append(results, rec.DiscoveredLocal())
		}
	}
	if len(results) > 0 {
		return results, nil
	}

	// Owner is not on the caller's network: fall back to the public name.
	owner, err := s.records.GetByToken(cctx, ownerToken)
	if err != nil {
		if errors.Is(err, repository.ErrNoRecord) {
			// Mapping outlived its record.
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get owner record: %w", err)
	}
	return []model.Discovered{owner.DiscoveredRemote()}, nil
}
