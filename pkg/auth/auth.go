package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var jwtAlgorithm = jwt.SigningMethodHS256

// Claims represents the JWT claims. Subject holds the user id.
type Claims struct {
	Email string        `json:"email"`
	Role  database.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks session tokens and password hashes.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	cost   int
}

func New(secret string, ttl time.Duration, bcryptCost int) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, cost: bcryptCost}
}

func (a *Authenticator) TTL() time.Duration { return a.ttl }

// HashPassword hashes a password using bcrypt
func (a *Authenticator) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateToken creates a new JWT token for a user
func (a *Authenticator) CreateToken(user *database.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwtAlgorithm, claims)
	return token.SignedString(a.secret)
}

// VerifyToken verifies a JWT token
func (a *Authenticator) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtAlgorithm {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// Identity is the authenticated caller of one request.
type Identity struct {
	UserID string
	Email  string
	Role   database.Role
}

func (i Identity) HasRole(roles ...database.Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the caller may act on any home.
func (i Identity) IsStaff() bool {
	return i.HasRole(database.RoleAdmin, database.RoleStaff)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// EnsureAdminExists creates the configured admin when no admin user exists.
func EnsureAdminExists(db *gorm.DB, a *Authenticator, email, password string, log *zap.Logger) error {
	var count int64
	if err := db.Model(&database.User{}).Where("role = ?", database.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		log.Warn("no admin user exists and admin.password is empty; skipping seed")
		return nil
	}

	hash, err := a.HashPassword(password)
	if err != nil {
		return err
	}

	user := database.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Admin",
		Role:         database.RoleAdmin,
		Status:       database.UserActive,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}
	log.Info("default admin user created", zap.String("email", email))
	return nil
}
