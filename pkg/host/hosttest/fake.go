// Package hosttest provides controllable in-memory implementations of the
// host collaborator interfaces.
package hosttest

import (
	"context"
	"sync"
	"time"

	"vpn-sentinel/pkg/host"
)

// Service is a fake ServiceControl. Restart brings it up unless StayDown is set.
type Service struct {
	mu         sync.Mutex
	Active     bool
	Since      time.Time
	StayDown   bool
	StatusErr  error
	RestartErr error
	Restarts   int
	// OnRestart runs at the start of every Restart call.
	OnRestart func()
}

func (s *Service) IsActive(_ context.Context, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatusErr != nil {
		return false, s.StatusErr
	}
	return s.Active, nil
}

func (s *Service) ActiveSince(_ context.Context, _ string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Since, nil
}

func (s *Service) Restart(_ context.Context, _ string) error {
	if s.OnRestart != nil {
		s.OnRestart()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Restarts++
	if s.RestartErr != nil {
		return s.RestartErr
	}
	if !s.StayDown {
		s.Active = true
		s.Since = time.Now()
	}
	return nil
}

// RestartCount returns the number of Restart calls.
func (s *Service) RestartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Restarts
}

// Links is a fake InterfaceQuery. When Follow is set the interface is up
// exactly when that service is active.
type Links struct {
	mu     sync.Mutex
	Up     bool
	Follow *Service
	Err    error
}

func (l *Links) ExistsAndUp(_ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return false, l.Err
	}
	if l.Follow != nil {
		active, _ := l.Follow.IsActive(context.Background(), "")
		return active, nil
	}
	return l.Up, nil
}

// Firewall is a fake Firewall holding a count of present rules.
type Firewall struct {
	mu         sync.Mutex
	Present    int
	Broken     bool // Install succeeds but installs nothing
	CountErr   error
	InstallErr error
	PersistErr error
	Installs   int
	Persists   int
}

func (f *Firewall) CountMatching(_ context.Context, _ host.RuleSet) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CountErr != nil {
		return 0, f.CountErr
	}
	return f.Present, nil
}

func (f *Firewall) Install(_ context.Context, rs host.RuleSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Installs++
	if f.InstallErr != nil {
		return f.InstallErr
	}
	if !f.Broken {
		f.Present = len(rs.Rules())
	}
	return nil
}

func (f *Firewall) Persist(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Persists++
	return f.PersistErr
}

// InstallCount returns the number of Install calls.
func (f *Firewall) InstallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Installs
}

// Kernel is a fake KernelFlags.
type Kernel struct {
	mu         sync.Mutex
	On         bool
	Persisted  bool
	ReadErr    error
	SetErr     error
	PersistErr error
	Sets       int
}

func (k *Kernel) Forwarding(_ context.Context) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ReadErr != nil {
		return false, k.ReadErr
	}
	return k.On, nil
}

func (k *Kernel) SetForwarding(_ context.Context, on bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Sets++
	if k.SetErr != nil {
		return k.SetErr
	}
	k.On = on
	return nil
}

func (k *Kernel) PersistForwarding(_ context.Context, on bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.PersistErr != nil {
		return k.PersistErr
	}
	k.Persisted = on
	return nil
}

// Resources is a fake Resources.
type Resources struct {
	Disk    int
	Memory  int
	DiskErr error
	MemErr  error
}

func (r *Resources) DiskUsagePercent(_ string) (int, error) { return r.Disk, r.DiskErr }
func (r *Resources) MemoryUsagePercent() (int, error)       { return r.Memory, r.MemErr }

// Connections is a fake Connections source.
type Connections struct {
	Count int
	Err   error
}

func (c *Connections) ActiveConnections(_ context.Context) (int, error) { return c.Count, c.Err }

// Healthy bundles fakes describing a fully healthy gateway.
type Healthy struct {
	Service     *Service
	Links       *Links
	Firewall    *Firewall
	Kernel      *Kernel
	Resources   *Resources
	Connections *Connections
}

// NewHealthy returns fakes where every probe would pass.
func NewHealthy() *Healthy {
	svc := &Service{Active: true, Since: time.Now().Add(-time.Hour)}
	return &Healthy{
		Service:     svc,
		Links:       &Links{Follow: svc},
		Firewall:    &Firewall{Present: 5},
		Kernel:      &Kernel{On: true, Persisted: true},
		Resources:   &Resources{Disk: 40, Memory: 30},
		Connections: &Connections{Count: 3},
	}
}
