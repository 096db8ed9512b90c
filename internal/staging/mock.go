package staging

import (
	"context"
	"sync"

	"github.com/climadw/climadw/internal/weather"
)

// MockStore is an in-memory staging table for tests. It honours transactions:
// rows written in a session become visible only after Commit.
type MockStore struct {
	mu   sync.Mutex
	Rows []weather.Observation

	BeginErr    error
	TruncateErr error
	CommitErr   error
	CopyErr     error
	// InsertErrAt fails the row insert at this index when InsertErr is set.
	InsertErrAt int
	InsertErr   error

	Calls []string
}

// Begin starts a mock session.
func (m *MockStore) Begin(ctx context.Context) (Session, error) {
	m.record("begin")
	if m.BeginErr != nil {
		return nil, m.BeginErr
	}
	m.mu.Lock()
	pending := append([]weather.Observation(nil), m.Rows...)
	m.mu.Unlock()
	return &MockSession{store: m, pending: pending}, nil
}

func (m *MockStore) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// MockSession buffers writes until Commit.
type MockSession struct {
	store   *MockStore
	pending []weather.Observation
	inserts int
}

func (s *MockSession) Truncate(ctx context.Context) error {
	s.store.record("truncate")
	if s.store.TruncateErr != nil {
		return s.store.TruncateErr
	}
	s.pending = nil
	return nil
}

func (s *MockSession) InsertRow(ctx context.Context, obs weather.Observation) error {
	s.store.record("insert")
	if s.store.InsertErr != nil && s.inserts == s.store.InsertErrAt {
		return s.store.InsertErr
	}
	s.inserts++
	s.pending = append(s.pending, obs)
	return nil
}

func (s *MockSession) InsertRows(ctx context.Context, obs []weather.Observation) (int64, error) {
	s.store.record("copy")
	if s.store.CopyErr != nil {
		return 0, s.store.CopyErr
	}
	s.pending = append(s.pending, obs...)
	return int64(len(obs)), nil
}

func (s *MockSession) Commit(ctx context.Context) error {
	s.store.record("commit")
	if s.store.CommitErr != nil {
		return s.store.CommitErr
	}
	s.store.mu.Lock()
	s.store.Rows = s.pending
	s.store.mu.Unlock()
	return nil
}

func (s *MockSession) Rollback(ctx context.Context) error {
	s.store.record("rollback")
	s.pending = nil
	return nil
}
