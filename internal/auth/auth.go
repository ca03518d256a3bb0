package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ksred/klear-journal/internal/types"
	"github.com/ksred/klear-journal/pkg/response"
	"github.com/ksred/klear-journal/pkg/validation"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTokenGeneration    = errors.New("failed to generate token")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidToken       = errors.New("invalid token")
)

const (
	maxUsernameLength = 150
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything longer
)

// Registration is the sign-up request body
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Credentials represents the login request body
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Claims represents the JWT claims structure
type Claims struct {
	jwt.RegisteredClaims
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// Service handles accounts and token issuance
type Service struct {
	db        *gorm.DB
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewService creates a new authentication service
func NewService(db *gorm.DB, jwtSecret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		db:        db,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// Validate checks a registration request
func (r *Registration) Validate() error {
	errs := validation.Errors{}

	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	switch {
	case r.Username == "":
		errs.Add("username", "This field is required.")
	case len(r.Username) > maxUsernameLength:
		errs.Add("username", fmt.Sprintf("Ensure this field has no more than %d characters.", maxUsernameLength))
	}

	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			errs.Add("email", "Enter a valid email address.")
		}
	}

	switch {
	case len(r.Password) < minPasswordLength:
		errs.Add("password", fmt.Sprintf("Ensure this field has at least %d characters.", minPasswordLength))
	case len(r.Password) > maxPasswordLength:
		errs.Add("password", fmt.Sprintf("Ensure this field has no more than %d characters.", maxPasswordLength))
	}

	return errs.Err()
}

// Register creates a user together with its trade settings in one transaction
func (s *Service) Register(ctx context.Context, reg Registration) (*types.User, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("username", reg.Username).
		Str("service", "auth").
		Logger()

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &types.User{
		Username:     reg.Username,
		Email:        reg.Email,
		PasswordHash: string(hash),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&types.User{}).Where("username = ?", user.Username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrUsernameTaken
		}
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&types.UserTradeSettings{UserID: user.ID}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = ErrUsernameTaken
	}
	if err != nil {
		if !errors.Is(err, ErrUsernameTaken) {
			logger.Error().Err(err).Msg("failed to register user")
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	logger.Info().Uint("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Authenticate checks a username and password pair
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (*types.User, error) {
	user, err := s.UserByUsername(ctx, creds.Username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// UserByUsername loads a user by login name
func (s *Service) UserByUsername(ctx context.Context, username string) (*types.User, error) {
	var user types.User
	if err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GenerateToken verifies credentials and issues a signed JWT for the user
func (s *Service) GenerateToken(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	user, err := s.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.IssueToken(user)
}

// IssueToken signs a token for user without checking a password
func (s *Service) IssueToken(user *types.User) (*TokenResponse, error) {
	now := time.Now()
	expiration := now.Add(s.tokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		UserID:   user.ID,
		Username: user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken validates a JWT token and returns the claims
// Verifies token signature and expiration
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// UserIDFromToken returns the user a valid token was issued for
func (s *Service) UserIDFromToken(tokenString string) (uint, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return 0, err
	}
	if claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

// GinHandlers contains HTTP handlers for authentication endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for authentication endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RegisterHandler handles POST requests creating an account
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var reg Registration
		if err := c.ShouldBindJSON(&reg); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		user, err := h.service.Register(c.Request.Context(), reg)
		if errors.Is(err, ErrUsernameTaken) {
			response.Conflict(c, ErrUsernameTaken.Error())
			return
		}
		response.Handle(c, user, err)
	}
}

// GenerateTokenHandler handles POST requests to generate JWT tokens
// Request body should contain a username and password
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var creds Credentials
		if err := c.ShouldBindJSON(&creds); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}

		token, err := h.service.GenerateToken(c.Request.Context(), creds)
		if errors.Is(err, ErrInvalidCredentials) {
			response.Unauthorized(c, err.Error())
			return
		}
		response.Handle(c, token, err)
	}
}
