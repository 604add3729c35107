package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sakif/jokebox/internal/apperror"
	"github.com/sakif/jokebox/internal/auth"
	"github.com/sakif/jokebox/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository. Email uniqueness
// is enforced the same way the database does it.
type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]*model.User
	nextID  int
	// set to a non-nil error to simulate a database failure
	createErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, taken := f.byEmail[user.Email]; taken {
		return apperror.Conflict("user", "with this email already exists")
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.byID[user.ID] = &stored
	f.byEmail[user.Email] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", email)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		delete(f.byEmail, u.Email)
		delete(f.byID, id)
	}
}

// fakeSessionRepo is an in-memory repository.SessionRepository.
type fakeSessionRepo struct {
	mu   sync.Mutex
	rows map[string]model.Session
	// set to a non-nil error to simulate a database failure
	getErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: make(map[string]model.Session)}
}

func (f *fakeSessionRepo) CreateSession(_ context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[s.TokenHash]; ok {
		return apperror.Conflict("session", "already exists")
	}
	f.rows[s.TokenHash] = *s
	return nil
}

func (f *fakeSessionRepo) GetSession(_ context.Context, hash string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.rows[hash]
	if !ok {
		return nil, apperror.NotFound("session", "(redacted)")
	}
	return &s, nil
}

func (f *fakeSessionRepo) DeleteSession(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, hash)
	return nil
}

func (f *fakeSessionRepo) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for hash, s := range f.rows {
		if s.Expired(now) {
			delete(f.rows, hash)
			n++
		}
	}
	return n, nil
}

func (f *fakeSessionRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeJokeRepo is an in-memory repository.JokeRepository.
type fakeJokeRepo struct {
	mu     sync.Mutex
	rows   map[string]model.Joke
	nextID int
	now    func() time.Time
	// set to a non-nil error to simulate a database failure
	createErr error
}

func newFakeJokeRepo() *fakeJokeRepo {
	return &fakeJokeRepo{rows: make(map[string]model.Joke), now: time.Now}
}

func (f *fakeJokeRepo) CreateJoke(_ context.Context, j *model.Joke) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if j.ID == "" {
		f.nextID++
		j.ID = fmt.Sprintf("joke-%d", f.nextID)
	}
	if _, ok := f.rows[j.ID]; ok {
		return apperror.Conflict("joke", "with this id already exists")
	}
	if j.Status == "" {
		j.Status = model.JokeCompleted
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = f.now().UTC()
	}
	j.UpdatedAt = j.CreatedAt
	f.rows[j.ID] = *j
	return nil
}

func (f *fakeJokeRepo) GetJoke(_ context.Context, id string) (*model.Joke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return nil, apperror.NotFound("joke", id)
	}
	return &j, nil
}

func (f *fakeJokeRepo) CompleteJoke(_ context.Context, id, text string) (*model.Joke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return nil, apperror.NotFound("joke", id)
	}
	j.Text = text
	j.Status = model.JokeCompleted
	j.UpdatedAt = f.now().UTC()
	f.rows[id] = j
	return &j, nil
}

func (f *fakeJokeRepo) FailJoke(_ context.Context, id string) (*model.Joke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.rows[id]
	if !ok {
		return nil, apperror.NotFound("joke", id)
	}
	if j.Status != model.JokeCompleted {
		j.Status = model.JokeFailed
		j.UpdatedAt = f.now().UTC()
		f.rows[id] = j
	}
	return &j, nil
}

func (f *fakeJokeRepo) ListJokesByUser(_ context.Context, userID string) ([]model.Joke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Joke{}
	for _, j := range f.rows {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID > out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out, nil
}

func (f *fakeJokeRepo) FailStalePending(_ context.Context, before time.Time) ([]model.Joke, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Joke
	for id, j := range f.rows {
		if j.Status == model.JokePending && j.CreatedAt.Before(before) {
			j.Status = model.JokeFailed
			j.UpdatedAt = f.now().UTC()
			f.rows[id] = j
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJokeRepo) get(id string) model.Joke {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

// fakeGenerator returns text/err and counts calls.
type fakeGenerator struct {
	mu     sync.Mutex
	text   string
	err    error
	calls  int
	topics []string
	// block, when set, makes GenerateJoke wait for ctx to end.
	block bool
}

func (g *fakeGenerator) GenerateJoke(ctx context.Context, topic string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.topics = append(g.topics, topic)
	block, text, err := g.block, g.text, g.err
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return text, err
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// fakePublisher records every published event.
type fakePublisher struct {
	mu     sync.Mutex
	events []model.JokeEvent
}

func (p *fakePublisher) Publish(evt model.JokeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *fakePublisher) all() []model.JokeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.JokeEvent(nil), p.events...)
}

const testSecret = "service-test-secret-at-least-32-chars"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSessionManager(t *testing.T, users *fakeUserRepo, sessions *fakeSessionRepo) *SessionManager {
	t.Helper()

	tokens, err := auth.NewTokenService(testSecret, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewSessionManager(sessions, users, tokens, discardLogger())
}

// newTestAuthService returns an AuthService wired with fake dependencies.
func newTestAuthService(t *testing.T, users *fakeUserRepo, sessions *fakeSessionRepo) *AuthService {
	t.Helper()

	// Cost 4 is the bcrypt minimum and keeps tests fast.
	ps := auth.NewPasswordServiceForTest(4)
	return NewAuthService(users, newTestSessionManager(t, users, sessions), ps, discardLogger())
}
