// Package identity provides JWT bearer authentication and profile resolution.
//
// Every request is resolved to a fresh profile row so role or status changes
// take effect immediately; any lookup failure fails closed.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/cloudvault/cloudvault/internal/logging"
	"github.com/cloudvault/cloudvault/internal/metadata/postgres"
	"github.com/cloudvault/cloudvault/internal/metrics"
	"github.com/cloudvault/cloudvault/internal/protocol"
	"github.com/cloudvault/cloudvault/internal/scope"
)

type contextKey string

const profileContextKey contextKey = "profile"

const tokenTTL = 24 * time.Hour

// Claims holds JWT token claims.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth handles bearer token authentication against the profiles table.
type Auth struct {
	store  *postgres.Store
	secret []byte
}

// New creates a new Auth handler.
func New(store *postgres.Store, jwtSecret string) *Auth {
	return &Auth{
		store:  store,
		secret: []byte(jwtSecret),
	}
}

// Middleware validates the bearer token and resolves the caller's profile.
// Rejects with 401 on a missing or invalid token, 403 when the account is not
// active, and 403 when a non-super_admin profile has no tenant association.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := a.validateToken(tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		profile, err := a.store.GetProfile(r.Context(), claims.UserID)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "unknown user")
			return
		}

		if profile.Status != scope.StatusActive {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusForbidden, "account is not active")
			return
		}
		if profile.CompanyID == "" && profile.Role != scope.RoleSuperAdmin {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusForbidden, "account has no company association")
			return
		}

		metrics.RecordAuthAttempt(true)
		ctx := context.WithValue(r.Context(), profileContextKey, toScopeProfile(profile))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ProfileFrom extracts the resolved profile from the request context.
func ProfileFrom(ctx context.Context) (scope.Profile, bool) {
	p, ok := ctx.Value(profileContextKey).(scope.Profile)
	return p, ok
}

// HandleLogin handles POST /api/v1/auth/token.
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		sendAuthError(w, http.StatusBadRequest, "email and password required")
		return
	}

	profile, err := a.store.GetProfileByEmail(r.Context(), req.Email)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(req.Password)); err != nil {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if profile.Status != scope.StatusActive {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusForbidden, "account is not active")
		return
	}

	now := time.Now()
	claims := &Claims{
		UserID: profile.ID,
		Email:  profile.Email,
		Role:   profile.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "cloudvault",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		sendAuthError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	metrics.RecordAuthAttempt(true)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.TokenResponse{
		Token:     tokenStr,
		ExpiresAt: claims.ExpiresAt.Time,
		UserID:    profile.ID,
		Role:      profile.Role,
	})
}

// EnsureDefaultAdmin creates a default super_admin when no profiles exist.
func (a *Auth) EnsureDefaultAdmin(ctx context.Context) error {
	var count int
	err := a.store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count)
	if err != nil {
		return fmt.Errorf("count profiles: %w", err)
	}
	if count > 0 {
		return nil
	}

	logging.Info("no profiles found, creating default super admin",
		zap.String("email", "admin@cloudvault.local"))
	hashed, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = a.store.DB().ExecContext(ctx,
		`INSERT INTO profiles (id, email, password, role, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), "admin@cloudvault.local", string(hashed),
		scope.RoleSuperAdmin, scope.StatusActive)
	if err != nil {
		return fmt.Errorf("insert default admin: %w", err)
	}
	return nil
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func toScopeProfile(p *postgres.Profile) scope.Profile {
	return scope.Profile{
		UserID:       p.ID,
		Role:         p.Role,
		CompanyID:    p.CompanyID,
		DepartmentID: p.DepartmentID,
		PositionID:   p.PositionID,
		Status:       p.Status,
	}
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
