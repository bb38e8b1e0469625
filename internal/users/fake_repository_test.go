package users

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// fakeRepository mirrors the SQL schema: unconditional unique usernames and
// emails, soft delete filtering and a strictly increasing updated_at.
type fakeRepository struct {
	mu      sync.Mutex
	rows    map[int64]*fakeRow
	nextID  int64
	clock   time.Time
	closed  bool
	schemas int

	insertErr    error
	findErr      error
	lastLoginErr error
	pingErr      error

	// listGate, when set, holds ListActive after signalling listEntered.
	listGate    chan struct{}
	listEntered chan struct{}
	// findGate, when set, holds the next FindActive after it has read the
	// row and signalled findEntered.
	findGate    chan struct{}
	findEntered chan struct{}
}

type fakeRow struct {
	user User
	hash string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		rows:  make(map[int64]*fakeRow),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRepository) tick() time.Time {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock
}

func (f *fakeRepository) EnsureSchema(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemas++
	return nil
}

func (f *fakeRepository) Insert(ctx context.Context, rec NewRecord) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return User{}, f.insertErr
	}
	for _, row := range f.rows {
		if row.user.Username == rec.Username {
			return User{}, &DuplicateError{Field: FieldUsername}
		}
		if row.user.Email == rec.Email {
			return User{}, &DuplicateError{Field: FieldEmail}
		}
	}
	f.nextID++
	now := f.tick()
	row := &fakeRow{
		user: User{
			ID:        f.nextID,
			FullName:  rec.FullName,
			Username:  rec.Username,
			Email:     rec.Email,
			CreatedAt: now,
			UpdatedAt: now,
			IsActive:  true,
		},
		hash: rec.PasswordHash,
	}
	f.rows[row.user.ID] = row
	return row.user, nil
}

func (f *fakeRepository) ListActive(ctx context.Context) ([]User, error) {
	if f.listGate != nil {
		close(f.listEntered)
		<-f.listGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]User, 0, len(f.rows))
	for _, row := range f.rows {
		if row.user.IsActive {
			users = append(users, row.user)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID > users[j].ID
		}
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (f *fakeRepository) FindActive(ctx context.Context, id int64) (User, bool, error) {
	f.mu.Lock()
	gate, entered := f.findGate, f.findEntered
	f.findGate, f.findEntered = nil, nil
	user, found, err := f.findActiveLocked(id)
	f.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}
	return user, found, err
}

func (f *fakeRepository) findActiveLocked(id int64) (User, bool, error) {
	if f.findErr != nil {
		return User{}, false, f.findErr
	}
	row, ok := f.rows[id]
	if !ok || !row.user.IsActive {
		return User{}, false, nil
	}
	return row.user, true, nil
}

// holdNextFind makes the next FindActive pause after reading its row.
func (f *fakeRepository) holdNextFind() (entered <-chan struct{}, release chan<- struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findGate = make(chan struct{})
	f.findEntered = make(chan struct{})
	return f.findEntered, f.findGate
}

func (f *fakeRepository) FindCredentials(ctx context.Context, username string) (Credentials, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return Credentials{}, false, f.findErr
	}
	for _, row := range f.rows {
		if row.user.Username == username && row.user.IsActive {
			return Credentials{ID: row.user.ID, PasswordHash: row.hash}, true, nil
		}
	}
	return Credentials{}, false, nil
}

func (f *fakeRepository) Update(ctx context.Context, id int64, changes Changes) (User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || !row.user.IsActive {
		return User{}, false, nil
	}
	if changes.IsEmpty() {
		return row.user, true, nil
	}
	if changes.Email != nil {
		for otherID, other := range f.rows {
			if otherID != id && other.user.Email == *changes.Email {
				return User{}, false, &DuplicateError{Field: FieldEmail}
			}
		}
		row.user.Email = *changes.Email
	}
	if changes.FullName != nil {
		row.user.FullName = *changes.FullName
	}
	if changes.PasswordHash != nil {
		row.hash = *changes.PasswordHash
	}
	row.user.UpdatedAt = f.tick()
	return row.user, true, nil
}

func (f *fakeRepository) Deactivate(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || !row.user.IsActive {
		return false, nil
	}
	row.user.IsActive = false
	row.user.UpdatedAt = f.tick()
	return true, nil
}

func (f *fakeRepository) SetLastLogin(ctx context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastLoginErr != nil {
		return f.lastLoginErr
	}
	row, ok := f.rows[id]
	if !ok || !row.user.IsActive {
		return nil
	}
	stamp := at.UTC()
	if row.user.LastLogin != nil && row.user.LastLogin.After(stamp) {
		stamp = *row.user.LastLogin
	}
	row.user.LastLogin = &stamp
	row.user.UpdatedAt = f.tick()
	return nil
}

func (f *fakeRepository) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeRepository) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeRepository) hashOf(id int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		return row.hash
	}
	return ""
}

var errFakeDriver = errors.New("fake driver: connection reset by peer")

var _ Repository = (*fakeRepository)(nil)
