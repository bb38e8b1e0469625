package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/accounts/internal/credential"
)

const (
	defaultConnectAttempts = 5
	defaultRetryDelay      = 2 * time.Second
	dummyPassword          = "accounts-dummy-password"
)

// Operation outcomes reported to an Observer.
const (
	OutcomeOK             = "ok"
	OutcomeNotFound       = "not_found"
	OutcomeDuplicate      = "duplicate"
	OutcomeInvalid        = "invalid"
	OutcomeNotInitialized = "not_initialized"
	OutcomeError          = "error"
)

// Observer receives the outcome and latency of every store operation.
type Observer interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
}

// LoginRecorder persists last-login timestamps. Failures are logged by the
// store and never change a verification result.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, userID int64, at time.Time) error
}

// Options configures a Store.
type Options struct {
	Dial            Dialer
	Hasher          credential.Hasher
	Logger          *slog.Logger
	ConnectAttempts int
	RetryDelay      time.Duration
	Cache           *RecordCache
	Observer        Observer
	LoginRecorder   LoginRecorder
	Now             func() time.Time
}

// Store owns the repository lifecycle and enforces account rules.
// Create one per process with New, Connect it at startup and Close it on shutdown.
type Store struct {
	dial      Dialer
	hasher    credential.Hasher
	logger    *slog.Logger
	attempts  int
	delay     time.Duration
	cache     *RecordCache
	observer  Observer
	login     LoginRecorder
	now       func() time.Time
	validator *Validator

	dummyOnce sync.Once
	dummyHash string

	mu    sync.RWMutex
	state State
	repo  Repository
}

// New builds a Store in the uninitialized state.
func New(opts Options) (*Store, error) {
	if opts.Dial == nil {
		return nil, errors.New("users: dialer required")
	}
	if opts.Hasher == nil {
		return nil, errors.New("users: hasher required")
	}
	s := &Store{
		dial:      opts.Dial,
		hasher:    opts.Hasher,
		logger:    opts.Logger,
		attempts:  opts.ConnectAttempts,
		delay:     opts.RetryDelay,
		cache:     opts.Cache,
		observer:  opts.Observer,
		login:     opts.LoginRecorder,
		now:       opts.Now,
		validator: NewValidator(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.attempts <= 0 {
		s.attempts = defaultConnectAttempts
	}
	if s.delay <= 0 {
		s.delay = defaultRetryDelay
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.login == nil {
		s.login = inlineRecorder{store: s}
	}
	return s, nil
}

// SetLoginRecorder replaces the last-login sink. Passing nil restores the
// inline recorder that writes through this store.
func (s *Store) SetLoginRecorder(r LoginRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == nil {
		r = inlineRecorder{store: s}
	}
	s.login = r
}

// State reports the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connect dials the repository, retrying a fixed number of times with a fixed
// delay. After the last failed attempt the store is Failed for good and the
// returned error matches ErrConnection.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return nil
	case StateUninitialized:
		s.state = StateConnecting
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: store is %s", ErrConnection, state)
	}
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		repo, err := s.dial(ctx)
		if err == nil {
			s.mu.Lock()
			if s.state != StateConnecting {
				s.mu.Unlock()
				repo.Close()
				return fmt.Errorf("%w: store closed while connecting", ErrConnection)
			}
			s.repo = repo
			s.state = StateConnected
			s.mu.Unlock()
			s.logger.Info("users store connected", slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err
		s.logger.Warn("users store connect attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", s.attempts),
			slog.Any("error", err))
		if attempt == s.attempts {
			break
		}
		if err := sleepCtx(ctx, s.delay); err != nil {
			lastErr = err
			break
		}
	}

	s.mu.Lock()
	if s.state == StateConnecting {
		s.state = StateFailed
	}
	s.mu.Unlock()
	return fmt.Errorf("%w after %d attempts: %w", ErrConnection, s.attempts, lastErr)
}

// InitializeSchema idempotently ensures the users table and its trigger.
func (s *Store) InitializeSchema(ctx context.Context) error {
	err := s.with(func(repo Repository) error {
		return repo.EnsureSchema(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}
	s.logger.Info("users schema ready")
	return nil
}

// Create validates, normalises and stores a new user.
func (s *Store) Create(ctx context.Context, in CreateInput) (user User, err error) {
	start := time.Now()
	defer func() { s.observe("create", start, err, true) }()

	if !s.ready() {
		return User{}, ErrNotInitialized
	}
	in = NormalizeCreate(in)
	if err := s.validator.Create(in); err != nil {
		return User{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, &StoreError{Op: "create", Err: err}
	}

	err = s.with(func(repo Repository) error {
		var insertErr error
		user, insertErr = repo.Insert(ctx, NewRecord{
			FullName:     in.FullName,
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: hash,
		})
		return insertErr
	})
	if err != nil {
		return User{}, s.classify("create", err)
	}
	return user, nil
}

// ListActive returns every active user, newest first.
func (s *Store) ListActive(ctx context.Context) (users []User, err error) {
	start := time.Now()
	defer func() { s.observe("list_active", start, err, true) }()

	err = s.with(func(repo Repository) error {
		var listErr error
		users, listErr = repo.ListActive(ctx)
		return listErr
	})
	if err != nil {
		return nil, s.classify("list_active", err)
	}
	return users, nil
}

// GetByID returns an active user. found is false when no active user has id.
func (s *Store) GetByID(ctx context.Context, id int64) (user User, found bool, err error) {
	start := time.Now()
	defer func() { s.observe("get_by_id", start, err, found) }()

	if !s.ready() {
		return User{}, false, ErrNotInitialized
	}
	if id <= 0 {
		return User{}, false, nil
	}
	user, found, err = s.cache.Fetch(ctx, id, func(ctx context.Context) (User, bool, error) {
		var u User
		var ok bool
		err := s.with(func(repo Repository) error {
			var findErr error
			u, ok, findErr = repo.FindActive(ctx, id)
			return findErr
		})
		return u, ok, err
	})
	if err != nil {
		return User{}, false, s.classify("get_by_id", err)
	}
	return user, found, nil
}

// Update applies a partial update to an active user. An empty input returns
// the current record without touching updated_at. found is false when no
// active user has id.
func (s *Store) Update(ctx context.Context, id int64, in UpdateInput) (user User, found bool, err error) {
	start := time.Now()
	defer func() { s.observe("update", start, err, found) }()

	if !s.ready() {
		return User{}, false, ErrNotInitialized
	}
	in = NormalizeUpdate(in)
	if err := s.validator.Update(in); err != nil {
		return User{}, false, err
	}
	if id <= 0 {
		return User{}, false, nil
	}

	changes := Changes{FullName: in.FullName, Email: in.Email}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return User{}, false, &StoreError{Op: "update", Err: err}
		}
		changes.PasswordHash = &hash
	}

	err = s.with(func(repo Repository) error {
		var updateErr error
		user, found, updateErr = repo.Update(ctx, id, changes)
		return updateErr
	})
	if err != nil {
		return User{}, false, s.classify("update", err)
	}
	if found && !changes.IsEmpty() {
		s.cache.Invalidate(ctx, id)
	}
	return user, found, nil
}

// SoftDelete deactivates an active user and reports whether a row changed.
func (s *Store) SoftDelete(ctx context.Context, id int64) (deleted bool, err error) {
	start := time.Now()
	defer func() { s.observe("soft_delete", start, err, deleted) }()

	if !s.ready() {
		return false, ErrNotInitialized
	}
	if id <= 0 {
		return false, nil
	}
	err = s.with(func(repo Repository) error {
		var deleteErr error
		deleted, deleteErr = repo.Deactivate(ctx, id)
		return deleteErr
	})
	if err != nil {
		return false, s.classify("soft_delete", err)
	}
	if deleted {
		s.cache.Invalidate(ctx, id)
	}
	return deleted, nil
}

// VerifyCredentials reports whether password belongs to the active user
// username. Unknown users and wrong passwords both yield false without an
// error; only lifecycle and persistence failures are returned as errors.
// A successful check stamps last_login best-effort.
func (s *Store) VerifyCredentials(ctx context.Context, username, password string) (ok bool, err error) {
	start := time.Now()
	defer func() { s.observe("verify_credentials", start, err, true) }()

	if !s.ready() {
		return false, ErrNotInitialized
	}
	username = normalizeIdentifier(username)
	if !s.validator.Username(username) || password == "" {
		s.hasher.Verify(password, s.dummy())
		return false, nil
	}

	var creds Credentials
	var found bool
	err = s.with(func(repo Repository) error {
		var findErr error
		creds, found, findErr = repo.FindCredentials(ctx, username)
		return findErr
	})
	if err != nil {
		return false, s.classify("verify_credentials", err)
	}
	if !found {
		s.hasher.Verify(password, s.dummy())
		return false, nil
	}
	if !s.hasher.Verify(password, creds.PasswordHash) {
		return false, nil
	}

	if s.hasher.NeedsRehash(creds.PasswordHash) {
		s.rehash(ctx, creds.ID, password)
	}
	s.mu.RLock()
	recorder := s.login
	s.mu.RUnlock()
	if err := recorder.RecordLogin(ctx, creds.ID, s.now()); err != nil {
		s.logger.Warn("record last login", slog.Int64("user_id", creds.ID), slog.Any("error", err))
	}
	return true, nil
}

// StampLastLogin sets last_login for an active user.
func (s *Store) StampLastLogin(ctx context.Context, id int64, at time.Time) (err error) {
	start := time.Now()
	defer func() { s.observe("stamp_last_login", start, err, true) }()

	err = s.with(func(repo Repository) error {
		return repo.SetLastLogin(ctx, id, at)
	})
	if err != nil {
		return s.classify("stamp_last_login", err)
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// Ping checks that the store is connected and the database reachable.
func (s *Store) Ping(ctx context.Context) error {
	err := s.with(func(repo Repository) error {
		return repo.Ping(ctx)
	})
	if err != nil {
		return s.classify("ping", err)
	}
	return nil
}

// Stat returns pool statistics when the store runs on a pgx pool.
func (s *Store) Stat() *pgxpool.Stat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected {
		return nil
	}
	statter, ok := s.repo.(interface{ Stat() *pgxpool.Stat })
	if !ok {
		return nil
	}
	return statter.Stat()
}

// Close waits for in-flight operations, closes the repository and moves the
// store to Closed. Repeated calls are no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed, StateFailed:
		return
	}
	if s.repo != nil {
		s.repo.Close()
		s.repo = nil
	}
	s.state = StateClosed
	s.logger.Info("users store closed")
}

func (s *Store) ready() bool {
	return s.State() == StateConnected
}

// with runs fn while holding the lifecycle read lock so Close waits for it.
func (s *Store) with(fn func(Repository) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateConnected || s.repo == nil {
		return ErrNotInitialized
	}
	return fn(s.repo)
}

func (s *Store) classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotInitialized), errors.Is(err, ErrDuplicate), errors.Is(err, ErrValidation):
		return err
	case errors.Is(err, ErrStore):
		return err
	default:
		s.logger.Error("users store operation failed", slog.String("op", op), slog.Any("error", err))
		return &StoreError{Op: op, Err: err}
	}
}

func (s *Store) observe(op string, start time.Time, err error, found bool) {
	if s.observer == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil && !found:
		outcome = OutcomeNotFound
	case err == nil:
	case errors.Is(err, ErrDuplicate):
		outcome = OutcomeDuplicate
	case errors.Is(err, ErrValidation):
		outcome = OutcomeInvalid
	case errors.Is(err, ErrNotInitialized):
		outcome = OutcomeNotInitialized
	default:
		outcome = OutcomeError
	}
	s.observer.ObserveOperation(op, outcome, time.Since(start))
}

func (s *Store) rehash(ctx context.Context, id int64, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("rehash password", slog.Int64("user_id", id), slog.Any("error", err))
		return
	}
	err = s.with(func(repo Repository) error {
		_, _, updateErr := repo.Update(ctx, id, Changes{PasswordHash: &hash})
		return updateErr
	})
	if err != nil {
		s.logger.Warn("store rehashed password", slog.Int64("user_id", id), slog.Any("error", err))
		return
	}
	s.cache.Invalidate(ctx, id)
}

// dummy returns a token used to spend hashing time on unknown usernames.
func (s *Store) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Warn("build dummy hash", slog.Any("error", err))
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

type inlineRecorder struct {
	store *Store
}

func (r inlineRecorder) RecordLogin(ctx context.Context, userID int64, at time.Time) error {
	return r.store.StampLastLogin(ctx, userID, at)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
