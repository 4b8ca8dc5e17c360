package service_test

import (
	"context"
	"sync"

	"github.com/homegate/registration-server/internal/registration/model"
	"github.com/homegate/registration-server/internal/registration/repository"
)

// ── Stub record store ────────────────────────────────────────────────────

type stubRecordStore struct {
	mu   sync.RWMutex
	rows map[string]*model.DomainRecord // token → record

	// err, when set, is returned by every call.
	err error
	// addErr, when set, is returned by Add only.
	addErr error
	// block, when set, makes every call wait for ctx cancellation and then
	// return ctx.Err(); used to exercise the store timeout.
	block bool
}

func newStubRecordStore() *stubRecordStore {
	return &stubRecordStore{rows: make(map[string]*model.DomainRecord)}
}

func (s *stubRecordStore) gate(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *stubRecordStore) Add(ctx context.Context, rec *model.DomainRecord) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	if s.addErr != nil {
		return s.addErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.rows[rec.Token] = &cp
	return nil
}

func (s *stubRecordStore) GetByToken(ctx context.Context, token string) (*model.DomainRecord, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[token]
	if !ok {
		return nil, repository.ErrNoRecord
	}
	cp := *rec
	return &cp, nil
}

func (s *stubRecordStore) GetByName(ctx context.Context, remoteName string) (*model.DomainRecord, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.rows {
		if rec.RemoteName == remoteName {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNoRecord
}

func (s *stubRecordStore) GetByPublicIP(ctx context.Context, publicIP string) ([]*model.DomainRecord, error) {
	if err := s.gate(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []*model.DomainRecord
	for _, rec := range s.rows {
		if rec.PublicIP == publicIP {
			cp := *rec
			records = append(records, &cp)
		}
	}
	return records, nil
}

func (s *stubRecordStore) Update(ctx context.Context, rec *model.DomainRecord) error {
	if err := s.gate(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[rec.Token]; !ok {
		return repository.ErrNoRecord
	}
	cp := *rec
	s.rows[rec.Token] = &cp
	return nil
}

func (s *stubRecordStore) DeleteByToken(ctx context.Context, token string) (int64, error) {
	if err := s.gate(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[token]; !ok {
		return 0, nil
	}
	delete(s.rows, token)
	return 1, nil
}

// get returns the stored record without copying, for direct assertions.
func (s *stubRecordStore) get(token string) *model.DomainRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows[token]
}

func (s *stubRecordStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// ── Stub discovery store ─────────────────────────────────────────────────

type stubDiscoveryStore struct {
	mu       sync.RWMutex
	mappings map[string]string // disco → token
}

func newStubDiscoveryStore() *stubDiscoveryStore {
	return &stubDiscoveryStore{mappings: make(map[string]string)}
}

func (s *stubDiscoveryStore) Add(_ context.Context, token, disco string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[disco] = token
	return nil
}

func (s *stubDiscoveryStore) Delete(_ context.Context, token, disco string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.mappings[disco]
	if !ok || owner != token {
		return repository.ErrNoDiscovery
	}
	delete(s.mappings, disco)
	return nil
}

func (s *stubDiscoveryStore) DeleteByToken(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for disco, owner := range s.mappings {
		if owner == token {
			delete(s.mappings, disco)
			n++
		}
	}
	return n, nil
}

func (s *stubDiscoveryStore) GetToken(_ context.Context, disco string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.mappings[disco]
	if !ok {
		return "", repository.ErrNoDiscovery
	}
	return token, nil
}
