package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const minPasswordLength = 8

// UserStore is the slice of the repository the auth manager needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    UserStore
}

type cafeClaims struct {
	jwtlib.RegisteredClaims
	Email string `json:"email"`
	Admin bool   `json:"admin,omitempty"`
}

func NewAuthManager(users UserStore, secret string, tokenTTL time.Duration) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
	}
}

func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.UserProfile, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, " <>") {
		return domain.UserProfile{}, fmt.Errorf("a valid email is required: %w", store.ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return domain.UserProfile{}, fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, store.ErrInvalidInput)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.users.CreateUser(ctx, domain.User{Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.UserProfile{}, fmt.Errorf("email already registered: %w", err)
		}
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{ID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin, CreatedAt: user.CreatedAt}, nil
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	user, err := a.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		// Spend the same bcrypt time as a real comparison.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if !verifyPassword(user.PasswordHash, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(*user, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		UserID:      user.ID,
		Email:       user.Email,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &cafeClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{UserID: sub, Email: claims.Email, IsAdmin: claims.Admin}, nil
}

func (a *AuthManager) sign(user domain.User, expiresAt time.Time) (string, error) {
	claims := cafeClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "cafeledger",
		},
		Email: user.Email,
		Admin: user.IsAdmin,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("cafeledger-dummy-password"), bcrypt.DefaultCost)

func verifyPassword(stored string, input string) bool {
	if stored == "" || input == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
