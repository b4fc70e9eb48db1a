package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/observatory/pkg/booking"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultSessionTTL    = 24 * time.Hour
	defaultCookieName    = "observatory_session"
	sessionContextKey    = "session_claims"
	minimumSigningKeyLen = 32
)

var errWeakSigningKey = errors.New("httpserver: session signing key must be at least 32 bytes")

// sessionClaims is the JWT payload carried by the session cookie.
type sessionClaims struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

type sessionManager struct {
	signingKey    []byte
	ttl           time.Duration
	cookieName    string
	secureCookies bool
}

func newSessionManager(signingKey []byte, ttl time.Duration, cookieName string, secureCookies bool) (*sessionManager, error) {
	if len(signingKey) < minimumSigningKeyLen {
		return nil, errWeakSigningKey
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if cookieName == "" {
		cookieName = defaultCookieName
	}
	return &sessionManager{
		signingKey:    signingKey,
		ttl:           ttl,
		cookieName:    cookieName,
		secureCookies: secureCookies,
	}, nil
}

func (manager *sessionManager) issue(ctx *gin.Context, profile booking.AccountProfile) error {
	now := time.Now()
	claims := sessionClaims{
		AccountID: profile.ID.String(),
		Role:      profile.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(manager.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(manager.signingKey)
	if err != nil {
		return fmt.Errorf("httpserver: signing session token: %w", err)
	}
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(manager.cookieName, signed, int(manager.ttl.Seconds()), "/", "", manager.secureCookies, true)
	return nil
}

func (manager *sessionManager) clear(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(manager.cookieName, "", -1, "/", "", manager.secureCookies, true)
}

func (manager *sessionManager) parse(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return manager.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

// requireSession validates the session cookie and stashes its claims in the
// request context.
func (server *Server) requireSession() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, err := ctx.Cookie(server.sessions.cookieName)
		if err != nil || raw == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		claims, err := server.sessions.parse(raw)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session"))
			return
		}
		ctx.Set(sessionContextKey, claims)
		ctx.Next()
	}
}

// requireRole gates a route group behind a minimum role. The role is loaded
// from the store rather than trusted from the token, so a demotion takes
// effect before the session expires.
func (server *Server) requireRole(minimum booking.Role) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		session := currentSession(ctx)
		if session == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		accountID, err := booking.NewAccountID(session.AccountID)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session"))
			return
		}
		profile, err := server.service.GetProfile(ctx.Request.Context(), accountID)
		if err != nil {
			server.respondError(ctx, err)
			ctx.Abort()
			return
		}
		if profile.Blocked || !roleAtLeast(profile.Role, minimum) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "insufficient role"))
			return
		}
		ctx.Next()
	}
}

func roleAtLeast(role booking.Role, minimum booking.Role) bool {
	order := map[booking.Role]int{
		booking.RoleUser:       0,
		booking.RoleAdmin:      1,
		booking.RoleSuperadmin: 2,
	}
	return order[role] >= order[minimum]
}

func currentSession(ctx *gin.Context) *sessionClaims {
	value, ok := ctx.Get(sessionContextKey)
	if !ok {
		return nil
	}
	claims, _ := value.(*sessionClaims)
	return claims
}

func (server *Server) sessionAccountID(ctx *gin.Context) (booking.AccountID, bool) {
	session := currentSession(ctx)
	if session == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return booking.AccountID{}, false
	}
	accountID, err := booking.NewAccountID(session.AccountID)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session"))
		return booking.AccountID{}, false
	}
	return accountID, true
}
