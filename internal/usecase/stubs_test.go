package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/security"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/repository"
)

type memUserRepository struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newMemUserRepository() *memUserRepository {
	return &memUserRepository{users: make(map[string]domain.User)}
}

func (r *memUserRepository) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		copy := user
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepository) GetByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == identifier || user.Email == identifier {
			copy := user
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLogin = &at
	r.users[id] = user
	return nil
}

func (r *memUserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type memSecurityRepository struct {
	mu      sync.Mutex
	records map[string]domain.AccountSecurity
}

func newMemSecurityRepository() *memSecurityRepository {
	return &memSecurityRepository{records: make(map[string]domain.AccountSecurity)}
}

func (r *memSecurityRepository) Create(_ context.Context, record domain.AccountSecurity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.UserID]; ok {
		return repository.ErrDuplicate
	}
	r.records[record.UserID] = record
	return nil
}

func (r *memSecurityRepository) GetByUserID(_ context.Context, userID string) (*domain.AccountSecurity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[userID]; ok {
		copy := record
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memSecurityRepository) IncrementWarns(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	record.SecurityWarns++
	r.records[userID] = record
	return record.SecurityWarns, nil
}

func (r *memSecurityRepository) ResetWarns(_ context.Context, userID string) error {
	return r.update(userID, func(record *domain.AccountSecurity) {
		record.SecurityWarns = 0
	})
}

func (r *memSecurityRepository) SetLock(_ context.Context, userID string, until *time.Time) error {
	return r.update(userID, func(record *domain.AccountSecurity) {
		record.Locked = true
		record.LockedUntil = until
	})
}

func (r *memSecurityRepository) ClearLock(_ context.Context, userID string) error {
	return r.update(userID, func(record *domain.AccountSecurity) {
		record.Locked = false
		record.LockedUntil = nil
		record.SecurityWarns = 0
	})
}

func (r *memSecurityRepository) SetVerified(_ context.Context, userID string, verified bool) error {
	return r.update(userID, func(record *domain.AccountSecurity) {
		record.Verified = verified
	})
}

func (r *memSecurityRepository) SetSimpleOTP(_ context.Context, userID string, slot *string) error {
	return r.update(userID, func(record *domain.AccountSecurity) {
		record.SimpleOTP = slot
	})
}

func (r *memSecurityRepository) UpdatePasswordHash(_ context.Context, userID string, hash string) error {
	return r.update(userID, func(record *domain.AccountSecurity) {
		record.PasswordHash = hash
	})
}

func (r *memSecurityRepository) SetTwoFactorEnabled(_ context.Context, userID string, enabled bool) error {
	return r.update(userID, func(record *domain.AccountSecurity) {
		record.TwoFactorEnabled = enabled
	})
}

func (r *memSecurityRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.records, userID)
	return nil
}

func (r *memSecurityRepository) update(userID string, mutate func(*domain.AccountSecurity)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[userID]
	if !ok {
		return repository.ErrNotFound
	}
	mutate(&record)
	r.records[userID] = record
	return nil
}

type memTwoFactorRepository struct {
	mu      sync.Mutex
	records map[string]domain.TwoFactor
}

func newMemTwoFactorRepository() *memTwoFactorRepository {
	return &memTwoFactorRepository{records: make(map[string]domain.TwoFactor)}
}

func (r *memTwoFactorRepository) Create(_ context.Context, record domain.TwoFactor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.UserID]; ok {
		return repository.ErrDuplicate
	}
	r.records[record.UserID] = record
	return nil
}

func (r *memTwoFactorRepository) GetByUserID(_ context.Context, userID string) (*domain.TwoFactor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.records[userID]; ok {
		copy := record
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memTwoFactorRepository) SetLastOTP(_ context.Context, userID string, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[userID]
	if !ok {
		return repository.ErrNotFound
	}
	record.LastOTP = &code
	r.records[userID] = record
	return nil
}

func (r *memTwoFactorRepository) SetBackupCodes(_ context.Context, userID string, joined string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[userID]
	if !ok {
		return repository.ErrNotFound
	}
	record.BackupCodes = joined
	r.records[userID] = record
	return nil
}

func (r *memTwoFactorRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.records, userID)
	return nil
}

type memTokenLedger struct {
	mu      sync.Mutex
	records map[string]domain.TokenRecord
}

func newMemTokenLedger() *memTokenLedger {
	return &memTokenLedger{records: make(map[string]domain.TokenRecord)}
}

func (l *memTokenLedger) Insert(_ context.Context, record domain.TokenRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[record.JTI]; ok {
		return repository.ErrDuplicate
	}
	l.records[record.JTI] = record
	return nil
}

func (l *memTokenLedger) Exists(_ context.Context, userID, jti, audience string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[jti]
	if !ok {
		return false, nil
	}
	return record.UserID == userID && record.Audience.String() == audience, nil
}

func (l *memTokenLedger) Delete(_ context.Context, jtis []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, jti := range jtis {
		delete(l.records, jti)
	}
	return nil
}

func (l *memTokenLedger) DeleteAll(_ context.Context, userID string, kind *domain.TokenKind, audience *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for jti, record := range l.records {
		if record.UserID != userID {
			continue
		}
		if kind != nil && record.Kind != *kind {
			continue
		}
		if audience != nil && record.Audience.String() != *audience {
			continue
		}
		delete(l.records, jti)
	}
	return nil
}

func (l *memTokenLedger) Prune(_ context.Context, userID string, oldJTI string, now time.Time) (*domain.PruneResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := &domain.PruneResult{}
	for jti, record := range l.records {
		if record.UserID != userID {
			continue
		}
		if record.IsExpired(now) || (oldJTI != "" && jti == oldJTI) {
			result.Removed = append(result.Removed, jti)
			delete(l.records, jti)
			continue
		}
		switch record.Kind {
		case domain.TokenKindApplication:
			result.Application = append(result.Application, record)
		case domain.TokenKindTemporary:
			result.Temporary = append(result.Temporary, record)
		case domain.TokenKindAccess:
			result.Access = append(result.Access, record)
		}
	}

	return result, nil
}

func (l *memTokenLedger) count(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, record := range l.records {
		if record.UserID == userID {
			n++
		}
	}
	return n
}

type memApplicationRepository struct {
	mu   sync.Mutex
	apps map[string]domain.RegisteredApplication
}

func newMemApplicationRepository() *memApplicationRepository {
	return &memApplicationRepository{apps: make(map[string]domain.RegisteredApplication)}
}

func (r *memApplicationRepository) Create(_ context.Context, app domain.RegisteredApplication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.apps {
		if existing.UserID == app.UserID && existing.Name == app.Name {
			return repository.ErrDuplicate
		}
	}
	r.apps[app.ID] = app
	return nil
}

func (r *memApplicationRepository) GetByID(_ context.Context, id string) (*domain.RegisteredApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if app, ok := r.apps[id]; ok {
		copy := app
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memApplicationRepository) GetByUserAndName(_ context.Context, userID, name string) (*domain.RegisteredApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, app := range r.apps {
		if app.UserID == userID && app.Name == name {
			copy := app
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memApplicationRepository) UpdateLastLocation(_ context.Context, id, location string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return repository.ErrNotFound
	}
	app.LastLocation = location
	app.UpdatedAt = at
	r.apps[id] = app
	return nil
}

func (r *memApplicationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.apps, id)
	return nil
}

// memEventPublisher records published events for assertions.
type memEventPublisher struct {
	mu             sync.Mutex
	verifications  []domain.VerificationCodeIssuedEvent
	resetRequests  []domain.PasswordResetRequestedEvent
	passwordResets []domain.PasswordChangedEvent
	twoFactorOn    []domain.TwoFactorEnabledEvent
	twoFactorOff   []domain.TwoFactorDisabledEvent
	locks          []domain.AccountLockedEvent
}

func (p *memEventPublisher) PublishVerificationCodeIssued(_ context.Context, event domain.VerificationCodeIssuedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifications = append(p.verifications, event)
	return nil
}

func (p *memEventPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetRequests = append(p.resetRequests, event)
	return nil
}

func (p *memEventPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwordResets = append(p.passwordResets, event)
	return nil
}

func (p *memEventPublisher) PublishTwoFactorEnabled(_ context.Context, event domain.TwoFactorEnabledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.twoFactorOn = append(p.twoFactorOn, event)
	return nil
}

func (p *memEventPublisher) PublishTwoFactorDisabled(_ context.Context, event domain.TwoFactorDisabledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.twoFactorOff = append(p.twoFactorOff, event)
	return nil
}

func (p *memEventPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locks = append(p.locks, event)
	return nil
}

func (p *memEventPublisher) lastVerification(t *testing.T) domain.VerificationCodeIssuedEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.verifications) == 0 {
		t.Fatal("expected a verification code event")
	}
	return p.verifications[len(p.verifications)-1]
}

func (p *memEventPublisher) lastResetRequest(t *testing.T) domain.PasswordResetRequestedEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.resetRequests) == 0 {
		t.Fatal("expected a password reset event")
	}
	return p.resetRequests[len(p.resetRequests)-1]
}

// testEnv wires the full service graph against in-memory stores with a
// shared movable clock.
type testEnv struct {
	cfg          *config.AuthSettings
	users        *memUserRepository
	security     *memSecurityRepository
	twofactorDB  *memTwoFactorRepository
	ledger       *memTokenLedger
	apps         *memApplicationRepository
	events       *memEventPublisher
	codec        *security.TokenCodec
	totp         *security.TOTPProvider
	lockout      *Lockout
	tokens       *TokenService
	onecode      *OneCodeEngine
	twofactor    *TwoFactorService
	auth         *AuthService
	registration *RegistrationService
	reset        *PasswordResetService

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.AuthSettings{
		Issuer:             "test-issuer",
		AccessTokenTTL:     8 * time.Minute,
		WebRefreshTokenTTL: 15 * time.Minute,
		AppRefreshTokenTTL: 720 * time.Hour,
		SecurityTokenTTL:   5 * time.Minute,
		SimpleOTPTTL:       15 * time.Minute,
		MaxAccessTokens:    8,
		MaxRefreshTokens:   5,
		MaxSecurityWarns:   5,
		LockDuration:       2 * time.Hour,
		BackupCodeCount:    6,
	}

	env := &testEnv{
		cfg:         cfg,
		users:       newMemUserRepository(),
		security:    newMemSecurityRepository(),
		twofactorDB: newMemTwoFactorRepository(),
		ledger:      newMemTokenLedger(),
		apps:        newMemApplicationRepository(),
		events:      &memEventPublisher{},
		now:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := env.clock

	env.codec = security.NewTokenCodec(security.NewKeyManager(t.TempDir()), cfg.Issuer)
	env.codec.WithClock(clock)
	env.totp = security.NewTOTPProvider("test-suite")
	env.totp.WithClock(clock)

	env.lockout = NewLockout(cfg, env.security, env.users, env.events, nil)
	env.lockout.WithClock(clock)
	env.tokens = NewTokenService(cfg, env.codec, env.ledger, env.lockout, nil, nil)
	env.tokens.WithClock(clock)
	env.onecode = NewOneCodeEngine(cfg, env.security, env.lockout)
	env.onecode.WithClock(clock)
	env.twofactor = NewTwoFactorService(cfg, env.users, env.security, env.twofactorDB, env.totp, env.tokens, env.lockout, env.events, nil)
	env.twofactor.WithClock(clock)
	env.auth = NewAuthService(cfg, env.users, env.security, env.apps, env.tokens, env.twofactor, env.lockout, nil)
	env.auth.WithClock(clock)
	env.registration = NewRegistrationService(env.users, env.security, env.onecode, env.lockout, security.NewPasswordValidator(security.MinLengthRule(10)), env.events, nil)
	env.registration.WithClock(clock)
	env.reset = NewPasswordResetService(env.users, env.security, env.onecode, env.tokens, env.lockout, security.NewPasswordValidator(security.MinLengthRule(10)), env.events, nil)
	env.reset.WithClock(clock)

	return env
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// seedUser creates a verified account with the given password and returns
// its id.
func (e *testEnv) seedUser(t *testing.T, username, password string) string {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	id := "user-" + username
	user := domain.User{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		RegisteredAt: e.clock(),
	}
	if err := e.users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	sec := domain.AccountSecurity{
		UserID:       id,
		PasswordHash: hash,
		Verified:     true,
		UpdatedAt:    e.clock(),
	}
	if err := e.security.Create(context.Background(), sec); err != nil {
		t.Fatalf("seed security record: %v", err)
	}

	return id
}

// enableTwoFactor walks the full activation flow and returns the secret and
// backup codes.
func (e *testEnv) enableTwoFactor(t *testing.T, userID, password string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := e.twofactor.Enable(ctx, userID, password)
	if err != nil {
		t.Fatalf("enable two-factor: %v", err)
	}

	code, err := e.totp.CurrentCode(enrollment.Secret)
	if err != nil {
		t.Fatalf("current code: %v", err)
	}

	codes, err := e.twofactor.ConfirmFirst(ctx, userID, code)
	if err != nil {
		t.Fatalf("confirm first code: %v", err)
	}

	return enrollment.Secret, codes
}
