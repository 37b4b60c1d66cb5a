// Package identity resolves session tokens to principals. It is the sole
// source of role truth: every downstream component takes the resolved
// Principal and never a role claim from a request payload.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"gadify-server/internal/nonce"
	"gadify-server/internal/storage"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password too short")
	ErrMissingField       = errors.New("required field missing")
)

// Principal is an authenticated actor. ProfileComplete is a soft flag: an
// incomplete profile never blocks resolution, callers decide whether to
// surface the onboarding nudge.
type Principal struct {
	ID              string
	Role            storage.Role
	ProfileComplete bool
}

type Manager struct {
	secret []byte
	ttl    time.Duration

	store  storage.Provider
	nonces nonce.Store

	logger *slog.Logger
}

func NewManager(secret string, sessionTTL time.Duration, store storage.Provider, nonces nonce.Store) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    sessionTTL,
		store:  store,
		nonces: nonces,
		logger: slog.With("component", "identity"),
	}
}

// Resolve validates a session token and loads the principal behind it.
// Fails with ErrUnauthenticated for missing, malformed, expired or revoked
// tokens and for tokens whose profile no longer exists.
func (m *Manager) Resolve(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnauthenticated
	}

	claims, err := decodeJWT(m.secret, token, &SessionClaims{})
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}

	// A consumed nonce means the session was signed out
	if !m.nonces.Exists(ctx, claims.ID) {
		return Principal{}, ErrUnauthenticated
	}

	profile, err := m.store.GetProfile(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}

	return Principal{
		ID:              profile.ID,
		Role:            profile.Role,
		ProfileComplete: profileComplete(profile),
	}, nil
}

// profileComplete mirrors the onboarding rule: students need department,
// study level and hall of residence before their profile counts as
// complete. Staff profiles are always complete.
func profileComplete(profile *storage.Profile) bool {
	if profile.Role == storage.RoleStaff {
		return true
	}
	return hasValue(profile.Department) && hasValue(profile.StudyLevel) && hasValue(profile.HallOfResidence)
}

func hasValue(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

type SignUpParams struct {
	Email    string
	Password string
	FullName string
	Role     storage.Role

	MatricNumber *string
	StaffID      *string
	PhoneNumber  *string
}

// SignUp creates a profile and opens a session for it.
func (m *Manager) SignUp(ctx context.Context, params SignUpParams) (*storage.Profile, string, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" || strings.TrimSpace(params.FullName) == "" {
		return nil, "", ErrMissingField
	}
	if len(params.Password) < minPasswordLength {
		return nil, "", ErrWeakPassword
	}
	if params.Role != storage.RoleStudent && params.Role != storage.RoleStaff {
		return nil, "", ErrMissingField
	}

	if _, err := m.store.GetProfileByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, "", err
	}

	hash, err := hashPassword(params.Password)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	profile := storage.Profile{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(params.FullName),
		MatricNumber: params.MatricNumber,
		StaffID:      params.StaffID,
		PhoneNumber:  params.PhoneNumber,
		Role:         params.Role,
		Status:       storage.ProfileStatusActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.store.CreateProfile(ctx, profile); err != nil {
		return nil, "", err
	}

	token, err := m.issueSession(ctx, profile.ID)
	if err != nil {
		return nil, "", err
	}

	m.logger.Info("Account created", "user_id", profile.ID, "role", profile.Role)
	return &profile, token, nil
}

// ProfileUpdate carries the descriptive fields a user may edit about
// themselves. Role, status and credentials are not among them. Nil fields
// are left unchanged.
type ProfileUpdate struct {
	FullName        *string
	MatricNumber    *string
	PhoneNumber     *string
	Department      *string
	StudyLevel      *string
	HallOfResidence *string
	HomeAddress     *string
	Biography       *string
}

// UpdateProfile applies an onboarding or profile edit for the given user
// and returns the refreshed profile.
func (m *Manager) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*storage.Profile, error) {
	profile, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if update.FullName != nil {
		if strings.TrimSpace(*update.FullName) == "" {
			return nil, ErrMissingField
		}
		profile.FullName = strings.TrimSpace(*update.FullName)
	}
	if update.MatricNumber != nil {
		profile.MatricNumber = update.MatricNumber
	}
	if update.PhoneNumber != nil {
		profile.PhoneNumber = update.PhoneNumber
	}
	if update.Department != nil {
		profile.Department = update.Department
	}
	if update.StudyLevel != nil {
		profile.StudyLevel = update.StudyLevel
	}
	if update.HallOfResidence != nil {
		profile.HallOfResidence = update.HallOfResidence
	}
	if update.HomeAddress != nil {
		profile.HomeAddress = update.HomeAddress
	}
	if update.Biography != nil {
		profile.Biography = update.Biography
	}

	if err := m.store.UpdateProfile(ctx, *profile); err != nil {
		return nil, err
	}
	return m.store.GetProfile(ctx, userID)
}

// CreateStaff provisions a staff profile without opening a session. Staff
// accounts are never created over HTTP, only from the operator console.
func CreateStaff(ctx context.Context, store storage.Provider, email, password, fullName string, staffID *string) (*storage.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(fullName) == "" {
		return nil, ErrMissingField
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	if _, err := store.GetProfileByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	profile := storage.Profile{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		StaffID:      staffID,
		Role:         storage.RoleStaff,
		Status:       storage.ProfileStatusActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := store.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// SignIn verifies credentials and opens a session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (string, error) {
	profile, err := m.store.GetProfileByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !checkPassword(profile.PasswordHash, password) {
		m.logger.Warn("Failed sign-in attempt", "user_id", profile.ID)
		return "", ErrInvalidCredentials
	}

	return m.issueSession(ctx, profile.ID)
}

// SignOut revokes the session behind a token by consuming its nonce.
// Invalid tokens are ignored; signing out is never an error for the caller.
func (m *Manager) SignOut(ctx context.Context, token string) {
	claims, err := decodeJWT(m.secret, token, &SessionClaims{})
	if err != nil {
		return
	}
	if _, err := m.nonces.Consume(ctx, claims.ID); err != nil {
		m.logger.Debug("Sign-out for already revoked session", "error", err)
	}
}

func (m *Manager) issueSession(ctx context.Context, userID string) (string, error) {
	id, err := nonce.New(ctx, m.nonces, m.ttl)
	if err != nil {
		return "", err
	}

	claims := &SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(m.ttl)),
		},
	}
	return generateJWT(m.secret, claims)
}

// SessionTTL exposes the configured session length, e.g. for cookie expiry.
func (m *Manager) SessionTTL() time.Duration {
	return m.ttl
}

// SignDevicePass issues a short-lived signed token embedding a device ID,
// rendered as the QR property pass.
func (m *Manager) SignDevicePass(deviceID string, ttl time.Duration) (string, error) {
	claims := &DevicePassClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(ttl)),
		},
	}
	return generateJWT(m.secret, claims)
}

// VerifyDevicePass decodes a device pass token and returns the device ID.
func (m *Manager) VerifyDevicePass(token string) (string, error) {
	claims, err := decodeJWT(m.secret, token, &DevicePassClaims{})
	if err != nil {
		return "", err
	}
	return claims.DeviceID, nil
}

// DevicePassClaims identify a verified device on a printable pass.
type DevicePassClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}
