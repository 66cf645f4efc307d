package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/db"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const tokenTTL = 24 * time.Hour

type UserStore interface {
	Create(ctx context.Context, user *models.User) (string, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	SetPremium(ctx context.Context, email string, at time.Time) (bool, error)
}

// Claims carried by login tokens.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type UserService struct {
	store     UserStore
	jwtSecret []byte
	logger    *zap.Logger
}

func NewUserService(store UserStore, jwtSecret string, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{store: store, jwtSecret: []byte(jwtSecret), logger: logger}
}

func (s *UserService) Register(ctx context.Context, fullName, email, password string) (string, error) {
	fullName = strings.TrimSpace(fullName)
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("invalid email: %w", err)
	}
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	id, err := s.store.Create(ctx, &models.User{
		FullName:  fullName,
		Email:     email,
		HPassword: string(hash),
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return "", ErrEmailTaken
		}
		return "", err
	}
	s.logger.Info("User registered", zap.String("user_id", id), zap.String("email", maskEmail(email)))
	return id, nil
}

// Login checks the password and returns a signed HS256 token.
func (s *UserService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HPassword), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, user, nil
}

func (s *UserService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.store.List(ctx)
}

// MarkPremium upgrades the account that paid. An unknown email is logged
// and ignored since guests may pay without an account.
func (s *UserService) MarkPremium(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	found, err := s.store.SetPremium(ctx, email, time.Now().UTC())
	if err != nil {
		return err
	}
	if !found {
		s.logger.Info("No account for paying email", zap.String("email", maskEmail(email)))
		return nil
	}
	s.logger.Info("User upgraded to premium", zap.String("email", maskEmail(email)))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
