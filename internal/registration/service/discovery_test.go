package service_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/homegate/registration-server/internal/registration/model"
	"github.com/homegate/registration-server/internal/registration/service"
)

// fixture wires a record service and a discovery service over shared stubs.
type fixture struct {
	store   *stubRecordStore
	disco   *stubDiscoveryStore
	records *service.RecordService
	svc     *service.DiscoveryService
}

func newFixture() *fixture {
	store := newStubRecordStore()
	disco := newStubDiscoveryStore()
	return &fixture{
		store:   store,
		disco:   disco,
		records: service.NewRecordService(store, disco, "example.com", zap.NewNop()),
		svc:     service.NewDiscoveryService(store, disco, zap.NewNop()),
	}
}

// subscribeAndRegister creates a record and registers it from the given IPs.
func (f *fixture) subscribeAndRegister(t *testing.T, name, localIP, publicIP string) string {
	t.Helper()
	ctx := context.Background()
	nt, err := f.records.Subscribe(ctx, name, "")
	if err != nil {
		t.Fatalf("subscribe %s: %v", name, err)
	}
	if err := f.records.Register(ctx, nt.Token, localIP, publicIP); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return nt.Token
}

func hrefs(results []model.Discovered) map[string]bool {
	set := make(map[string]bool, len(results))
	for _, d := range results {
		set[d.Href] = true
	}
	return set
}

func TestPing_returnsColocatedRecords(t *testing.T) {
	f := newFixture()
	f.subscribeAndRegister(t, "alpha", "10.0.0.2", "203.0.113.5")
	f.subscribeAndRegister(t, "beta", "10.0.0.3", "203.0.113.5")
	f.subscribeAndRegister(t, "gamma", "10.0.0.4", "198.51.100.7")

	results, err := f.svc.Ping(context.Background(), "203.0.113.5")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	got := hrefs(results)
	for _, want := range []string{
		"https://local.alpha.box.example.com",
		"https://local.beta.box.example.com",
	} {
		if !got[want] {
			t.Errorf("missing %s in %v", want, got)
		}
	}
	for _, d := range results {
		if d.Desc == "" {
			t.Error("discovered entry has no description")
		}
	}
}

func TestPing_emptyWhenNoMatch(t *testing.T) {
	f := newFixture()
	f.subscribeAndRegister(t, "alpha", "10.0.0.2", "203.0.113.5")

	results, err := f.svc.Ping(context.Background(), "198.51.100.7")
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
}

func TestAddDiscovery_unknownToken(t *testing.T) {
	f := newFixture()
	err := f.svc.AddDiscovery(context.Background(), "no-such-token", "disco-1")
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDiscover_unknownID(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Discover(context.Background(), "no-such-disco", "203.0.113.5")
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Caller behind the same NAT as the owner gets the owner's local name.
func TestDiscover_sameNetwork(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.subscribeAndRegister(t, "alpha", "10.0.0.2", "203.0.113.5")
	f.subscribeAndRegister(t, "beta", "10.0.0.3", "203.0.113.5") // same NAT, different owner

	if err := f.svc.AddDiscovery(ctx, owner, "disco-1"); err != nil {
		t.Fatalf("adddiscovery: %v", err)
	}

	results, err := f.svc.Discover(ctx, "disco-1", "203.0.113.5")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Href != "https://local.alpha.box.example.com" {
		t.Errorf("href: got %q", results[0].Href)
	}
}

// Caller on a different network falls back to the owner's public name.
func TestDiscover_differentNetwork(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.subscribeAndRegister(t, "alpha", "10.0.0.2", "203.0.113.5")
	f.svc.AddDiscovery(ctx, owner, "disco-1")

	results, err := f.svc.Discover(ctx, "disco-1", "198.51.100.7")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Href != "https://alpha.box.example.com" {
		t.Errorf("href: got %q", results[0].Href)
	}
}

func TestRevokeDiscovery(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.subscribeAndRegister(t, "alpha", "10.0.0.2", "203.0.113.5")
	f.svc.AddDiscovery(ctx, owner, "disco-1")

	if err := f.svc.RevokeDiscovery(ctx, owner, "disco-1"); err != nil {
		t.Fatalf("revokediscovery: %v", err)
	}
	if _, err := f.svc.Discover(ctx, "disco-1", "203.0.113.5"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("discover after revoke: expected ErrNotFound, got %v", err)
	}
}

// Revoking a discovery id that belongs to someone else must fail and leave
// the mapping in place.
func TestRevokeDiscovery_enforcesOwnership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	owner := f.subscribeAndRegister(t, "alpha", "10.0.0.2", "203.0.113.5")
	other := f.subscribeAndRegister(t, "beta", "10.0.0.3", "198.51.100.7")
	f.svc.AddDiscovery(ctx, owner, "disco-1")

	if err := f.svc.RevokeDiscovery(ctx, other, "disco-1"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Discover(ctx, "disco-1", "203.0.113.5"); err != nil {
		t.Fatalf("mapping should survive a foreign revoke: %v", err)
	}
}
