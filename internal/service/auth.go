package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ridehail/internal/auth"
	"ridehail/internal/domain"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

const (
	minPasswordLength = 8
	// bcrypt rejects longer input.
	maxPasswordBytes = 72
	maxNameLength     = 255
)

var (
	phonePattern   = regexp.MustCompile(`^\+?\d+$`)
	phoneSeparator = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// AuthService handles registration, login and token revocation.
type AuthService struct {
	userRepo repository.UserRepository
	tokens   *auth.Manager
	denylist redis.TokenDenylistInterface
	now      func() time.Time
}

// NewAuthService creates a new AuthService. denylist may be nil, which
// disables logout.
func NewAuthService(userRepo repository.UserRepository, tokens *auth.Manager, denylist redis.TokenDenylistInterface) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		tokens:   tokens,
		denylist: denylist,
		now:      time.Now,
	}
}

// RegisterRequest contains the parameters for creating an account.
type RegisterRequest struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     string // defaults to passenger
}

// AuthResult is a user together with a freshly issued access token.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// Register creates a new account and signs the user in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	if len([]rune(name)) > maxNameLength {
		return nil, invalid("name must be at most %d characters", maxNameLength)
	}

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < minPasswordLength {
		return nil, invalid("password must be at least %d characters", minPasswordLength)
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, invalid("password must be at most %d bytes", maxPasswordBytes)
	}

	role := domain.RolePassenger
	if strings.TrimSpace(req.Role) != "" {
		role, err = domain.ParseRole(req.Role)
		if err != nil {
			return nil, invalid("role must be passenger or driver")
		}
	}

	exists, err := s.userRepo.ExistsByEmailOrPhone(ctx, email, phone)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: email or phone already registered", ErrDuplicate)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email or phone already registered", ErrDuplicate)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issue(user)
}

// Login verifies credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// Logout revokes the token identified by tokenID until it expires.
func (s *AuthService) Logout(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if s.denylist == nil {
		return nil
	}
	if err := s.denylist.Revoke(ctx, tokenID, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Authenticate verifies an access token and returns its claims.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*auth.Claims, domain.Actor, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, domain.Actor{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	actor, err := claims.Actor()
	if err != nil {
		return nil, domain.Actor{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, domain.Actor{}, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return nil, domain.Actor{}, fmt.Errorf("%w: token revoked", ErrUnauthenticated)
		}
	}

	return claims, actor, nil
}

// Profile returns the account of the signed-in user.
func (s *AuthService) Profile(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, actor.ID)
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, claims, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:      user,
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// NormalizeEmail trims and lowercases an email address and checks its syntax.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", invalid("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > maxNameLength {
		return "", invalid("email is not valid")
	}
	return email, nil
}

// NormalizePhone strips common separators, turns a leading 00 into +, and
// checks that only digits remain.
func NormalizePhone(raw string) (string, error) {
	phone := phoneSeparator.Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(phone, "00") {
		phone = "+" + phone[2:]
	}
	if phone == "" {
		return "", invalid("phone is required")
	}
	if !phonePattern.MatchString(phone) || len(phone) > 20 {
		return "", invalid("phone must contain digits only")
	}
	return phone, nil
}
