package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/store"
	"github.com/congo-pay/walletledger/internal/wallet"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
)

// Service registers owners and issues access tokens.
type Service struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHashCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(st store.Store, secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{store: st, secret: []byte(secret), ttl: ttl, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token is a signed access token.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Register creates the user and its wallet in one unit of work.
func (s *Service) Register(ctx context.Context, creds identity.Credentials) (identity.User, wallet.Wallet, error) {
	email, err := validEmail(creds.Email)
	if err != nil {
		return identity.User{}, wallet.Wallet{}, err
	}
	if len(creds.Password) < MinPasswordLength {
		return identity.User{}, wallet.Wallet{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cost)
	if err != nil {
		return identity.User{}, wallet.Wallet{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := identity.User{ID: uuid.NewString(), Email: email, PasswordHash: hash, CreatedAt: now}
	w := wallet.New(uuid.NewString(), user.ID, now)

	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return tx.Wallets().Create(ctx, w)
	})
	if errors.Is(err, identity.ErrEmailTaken) {
		return identity.User{}, wallet.Wallet{}, ErrEmailTaken
	}
	if err != nil {
		return identity.User{}, wallet.Wallet{}, fmt.Errorf("register %s: %w", email, err)
	}
	return user, w, nil
}

// Login checks the password and signs an access token for the user.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) (Token, identity.User, error) {
	user, err := s.store.Users().FindByEmail(ctx, identity.NormalizeEmail(creds.Email))
	if errors.Is(err, identity.ErrNotFound) {
		return Token{}, identity.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, identity.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return Token{}, identity.User{}, ErrInvalidCredentials
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, identity.User{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresIn: int64(s.ttl.Seconds())}, user, nil
}

// Verify validates an access token and returns its subject.
func (s *Service) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func validEmail(raw string) (string, error) {
	email := identity.NormalizeEmail(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
