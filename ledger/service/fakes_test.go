package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
	"github.com/Ftotnem/POINTS-LEDGER/shared/models"
)

// memStore backs teams, transactions, admin markers and the adjustment writer with maps.
type memStore struct {
	mu       sync.Mutex
	teams    map[string]models.Team
	txs      []models.Transaction
	admins   map[string]bool
	writes   int
	applyErr error
	readErrs []error // returned by reads in order before succeeding
	onRank   func()  // runs before ListByPointsDesc reads
}

func newMemStore() *memStore {
	return &memStore{teams: map[string]models.Team{}, admins: map[string]bool{}}
}

func (m *memStore) addTeam(t models.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[t.ID] = t
}

func (m *memStore) nextReadErr() error {
	if len(m.readErrs) == 0 {
		return nil
	}
	err := m.readErrs[0]
	m.readErrs = m.readErrs[1:]
	return err
}

func (m *memStore) FindByID(ctx context.Context, id string) (*models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextReadErr(); err != nil {
		return nil, err
	}
	t, ok := m.teams[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("team", id)
	}
	return &t, nil
}

func (m *memStore) FindByAuthUID(ctx context.Context, subjectID string) ([]models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Team{}
	for _, t := range m.teams {
		if t.AuthUID == subjectID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) all() []models.Team {
	out := make([]models.Team, 0, len(m.teams))
	for _, t := range m.teams {
		out = append(out, t)
	}
	return out
}

func (m *memStore) ListByName(ctx context.Context) ([]models.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.all()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) ListByPointsDesc(ctx context.Context) ([]models.Team, error) {
	if m.onRank != nil {
		m.onRank()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextReadErr(); err != nil {
		return nil, err
	}
	out := m.all()
	sort.Slice(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	return out, nil
}

func (m *memStore) list(teamID string, limit int64) []models.Transaction {
	out := []models.Transaction{}
	for _, tx := range m.txs {
		if teamID == "" || tx.TeamID == teamID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memStore) ListRecent(ctx context.Context, limit int64) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list("", limit), nil
}

func (m *memStore) ListByTeam(ctx context.Context, teamID string, limit int64) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(teamID, limit), nil
}

func (m *memStore) Exists(ctx context.Context, subjectID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admins[subjectID], nil
}

func (m *memStore) Apply(ctx context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}
	for _, recorded := range m.txs {
		if recorded.ID == tx.ID {
			return nil
		}
	}
	t, ok := m.teams[tx.TeamID]
	if !ok {
		return apperrors.NewNotFoundError("team", tx.TeamID)
	}
	t.Points += tx.Delta
	m.teams[tx.TeamID] = t
	m.txs = append(m.txs, *tx)
	m.writes++
	return nil
}

func (m *memStore) sumFor(teamID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, tx := range m.txs {
		if tx.TeamID == teamID {
			sum += tx.Delta
		}
	}
	return sum
}

type memCache struct {
	generation  int64
	snapshots   map[int64][]models.RankedTeam
	getErr      error
	invalidated int
}

func (c *memCache) Get(ctx context.Context) ([]models.RankedTeam, int64, bool, error) {
	if c.getErr != nil {
		return nil, 0, false, c.getErr
	}
	rows, ok := c.snapshots[c.generation]
	return rows, c.generation, ok, nil
}

func (c *memCache) Set(ctx context.Context, generation int64, rows []models.RankedTeam) error {
	if c.snapshots == nil {
		c.snapshots = map[int64][]models.RankedTeam{}
	}
	c.snapshots[generation] = rows
	return nil
}

func (c *memCache) Invalidate(ctx context.Context) error {
	c.generation++
	c.invalidated++
	return nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]models.SessionRecord
	next     int
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[string]models.SessionRecord{}}
}

func (s *memSessions) Create(ctx context.Context, subjectID, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	token := "token-" + string(rune('a'+s.next-1))
	s.sessions[token] = models.SessionRecord{SubjectID: subjectID, Email: email, CreatedAt: time.Now()}
	return token, nil
}

func (s *memSessions) Resolve(ctx context.Context, token string) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[token]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return &rec, nil
}

func (s *memSessions) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

type fakeIdentity struct {
	accounts map[string]models.Principal // keyed by email
	password string
}

func (f *fakeIdentity) SignIn(ctx context.Context, email, password string) (*models.Principal, error) {
	p, ok := f.accounts[email]
	if !ok {
		return nil, apperrors.NewAuthenticationError("EMAIL_NOT_FOUND", "email not found")
	}
	if password != f.password {
		return nil, apperrors.NewAuthenticationError("INVALID_PASSWORD", "invalid password")
	}
	return &p, nil
}

var errConnReset = errors.New("connection reset by peer")
