package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/govindrajpootecosoul/project-tracker/internal/authz"
	"github.com/govindrajpootecosoul/project-tracker/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// AuthHandler authenticates bearer tokens issued by the identity provider.
// The token only names the caller; role and department come from the user
// directory on every request.
type AuthHandler struct {
	users     repository.UserRepository
	jwtSecret string
	logger    zerolog.Logger
}

func NewAuthHandler(users repository.UserRepository, jwtSecret string, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:     users,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("handler", "auth").Logger(),
	}
}

// IssueToken signs a token for userID. Used by the dev tooling and tests;
// production tokens come from the identity provider with the same secret.
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "Authorization header required")
			return
		}
		userID, err := h.subject(tokenString)
		if err != nil {
			unauthorized(w, "Invalid token: "+err.Error())
			return
		}

		user, err := h.users.GetUserByID(r.Context(), userID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !user.IsActive) {
			unauthorized(w, "Unknown or inactive user")
			return
		}
		if err != nil {
			h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to load caller")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to load user"})
			return
		}

		next.ServeHTTP(w, r.WithContext(authz.WithUser(r.Context(), user)))
	})
}

func (h *AuthHandler) subject(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return "", errors.New("token expired")
	}
	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return "", errors.New("missing subject claim")
	}
	return sub, nil
}

// bearerToken reads the Authorization header. Websocket upgrades from
// browsers cannot set headers, so access_token in the query is accepted too.
func bearerToken(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}
