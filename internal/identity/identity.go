package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/TranThienNhat/shop/internal/domain"
)

// SessionHeader carries the guest cart token.
const SessionHeader = "X-Session-ID"

const (
	contextKey       = "identity"
	maxSessionLength = 128
)

// Claims payload of access tokens
type Claims struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Resolver turns a request into an Identity.
type Resolver struct {
	secret []byte
}

func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// Resolve reads the bearer token and the session header. No credentials at
// all is an anonymous identity, not an error; a bad token is.
func (r *Resolver) Resolve(req *http.Request) (domain.Identity, error) {
	var id domain.Identity
	if sid := strings.TrimSpace(req.Header.Get(SessionHeader)); sid != "" {
		if len(sid) > maxSessionLength {
			return id, domain.Errorf(domain.ErrInvalidInput, "%s is too long", SessionHeader)
		}
		id.SessionID = sid
	}

	raw := strings.TrimSpace(req.Header.Get("Authorization"))
	if raw == "" {
		return id, nil
	}
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	claims, err := r.parse(raw)
	if err != nil {
		return id, err
	}
	uid := claims.ID
	id.UserID = &uid
	id.Email = claims.Email
	id.Role = claims.Role
	return id, nil
}

func (r *Resolver) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.Errorf(domain.ErrInvalidToken, "token has expired")
		}
		return nil, domain.ErrInvalidToken
	}
	if !token.Valid || claims.ID <= 0 {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}

// Issuer signs access tokens with the shared secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

func (i *Issuer) Issue(userID int64, email, role string, ttl time.Duration) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("issue token: user id must be positive")
	}
	now := i.now()
	claims := Claims{
		ID:    userID,
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// NewSessionID hands out a fresh guest token.
func NewSessionID() string {
	return uuid.NewString()
}

// ErrorWriter renders a failure and aborts the chain.
type ErrorWriter func(c *gin.Context, err error)

// Middleware resolves the caller once per request.
func Middleware(r *Resolver, fail ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := r.Resolve(c.Request)
		if err != nil {
			fail(c, err)
			return
		}
		c.Set(contextKey, id)
		c.Next()
	}
}

// FromContext returns the identity stored by Middleware.
func FromContext(c *gin.Context) domain.Identity {
	if v, ok := c.Get(contextKey); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{}
}

// RequireUser rejects callers without a valid token.
func RequireUser(fail ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !FromContext(c).Authenticated() {
			fail(c, domain.ErrUnauthenticated)
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects everyone but administrators.
func RequireAdmin(fail ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := FromContext(c)
		switch {
		case !id.Authenticated():
			fail(c, domain.ErrUnauthenticated)
		case !id.IsAdmin():
			fail(c, domain.ErrForbidden)
		default:
			c.Next()
		}
	}
}
