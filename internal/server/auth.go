package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/graphdesk/server/internal/store"
	logx "github.com/graphdesk/server/pkg/logger"
)

// AuthConfig holds token signing settings, sourced from the environment.
type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  string `envconfig:"TOKEN_TTL" default:"1h"`
}

// claims carries the authenticated identity inside the signed token.
type claims struct {
	CustomerID string `json:"customerId"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

type authHandler struct {
	graph  *store.Graph
	secret []byte
	ttl    time.Duration
}

func newAuthHandler(graph *store.Graph, cfg AuthConfig) (*authHandler, error) {
	ttl, err := time.ParseDuration(cfg.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &authHandler{graph: graph, secret: []byte(cfg.JWTSecret), ttl: ttl}, nil
}

func (a *authHandler) issueToken(customerID, role string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		CustomerID: customerID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})
	return token.SignedString(a.secret)
}

func (a *authHandler) parseToken(raw string) (*claims, error) {
	token, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return c, nil
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token      string `json:"token"`
	CustomerID string `json:"customerId"`
	Role       string `json:"role"`
}

func (a *authHandler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := a.graph.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		logx.Error().Err(err).Msg("user lookup failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if user == nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := a.issueToken(user.CustomerID, user.Role)
	if err != nil {
		logx.Error().Err(err).Msg("token signing failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, CustomerID: user.CustomerID, Role: user.Role})
}

func (a *authHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "please fill in all fields")
		return
	}

	existing, err := a.graph.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		logx.Error().Err(err).Msg("user lookup failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, "user already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logx.Error().Err(err).Msg("password hashing failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	customerID, err := a.graph.CreateUser(r.Context(), req.Email, string(hash), req.Name)
	if err != nil {
		logx.Error().Err(err).Msg("user creation failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}

	token, err := a.issueToken(customerID, store.RoleCustomer)
	if err != nil {
		logx.Error().Err(err).Msg("token signing failed")
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, CustomerID: customerID, Role: store.RoleCustomer})
}

type ctxKey int

const claimsKey ctxKey = 0

// requireAuth validates the x-auth-token header and stores the claims on
// the request context.
func (a *authHandler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("x-auth-token")
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "no token, authorization denied")
			return
		}
		c, err := a.parseToken(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token is not valid")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, c)))
	})
}

// requireRole gates a subtree to one role.
func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := claimsFrom(r.Context())
			if c == nil || c.Role != role {
				writeError(w, http.StatusForbidden, "access denied: insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimsFrom(ctx context.Context) *claims {
	c, _ := ctx.Value(claimsKey).(*claims)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
