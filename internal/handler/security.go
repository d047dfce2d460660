package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
)

// DefaultSessionCookie is the cookie consulted when no bearer token is sent.
const DefaultSessionCookie = "storefront_session"

// adminFlag accepts both true and "true", as issued by older session
// services.
type adminFlag bool

func (f *adminFlag) UnmarshalJSON(data []byte) error {
	d := jx.DecodeBytes(data)
	switch d.Next() {
	case jx.Bool:
		v, err := d.Bool()
		*f = adminFlag(v)
		return err
	case jx.String:
		v, err := d.Str()
		*f = adminFlag(v == "true")
		return err
	default:
		*f = false
		return d.Skip()
	}
}

type sessionClaims struct {
	UserID string    `json:"userId"`
	Admin  adminFlag `json:"admin,omitempty"`
	Role   string    `json:"role,omitempty"`
	Roles  []string  `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// SecurityHandler authenticates requests with HS256 session tokens taken
// from the Authorization header or the session cookie.
type SecurityHandler struct {
	secret []byte
	cookie string
	parser *jwt.Parser
	now    func() time.Time
}

// NewSecurityHandler creates a SecurityHandler. An empty cookieName falls
// back to DefaultSessionCookie.
func NewSecurityHandler(secret []byte, cookieName string) *SecurityHandler {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	s := &SecurityHandler{
		secret: secret,
		cookie: cookieName,
		now:    time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s
}

// Issue signs a session token for id. It is used by tooling to mint
// development tokens.
func (s *SecurityHandler) Issue(id auth.Identity, ttl time.Duration) (string, error) {
	now := s.now()
	claims := sessionClaims{
		UserID: id.UserID,
		Admin:  adminFlag(id.Admin),
		Role:   id.Role,
		Roles:  id.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// Identify returns the caller behind r or auth.ErrUnauthorized.
func (s *SecurityHandler) Identify(r *http.Request) (auth.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		if c, err := r.Cookie(s.cookie); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		return auth.Identity{}, errors.Wrap(auth.ErrUnauthorized, "no token provided")
	}

	var claims sessionClaims
	if _, err := s.parser.ParseWithClaims(raw, &claims, s.key); err != nil {
		return auth.Identity{}, errors.Wrapf(auth.ErrUnauthorized, "invalid token: %v", err)
	}
	if claims.UserID == "" {
		return auth.Identity{}, errors.Wrap(auth.ErrUnauthorized, "token has no userId")
	}
	return auth.Identity{
		UserID: claims.UserID,
		Admin:  bool(claims.Admin),
		Role:   claims.Role,
		Roles:  claims.Roles,
	}, nil
}

func (s *SecurityHandler) key(*jwt.Token) (any, error) {
	return s.secret, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Require rejects unauthenticated requests with 401 and stores the identity
// in the request context otherwise.
func (s *SecurityHandler) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.Identify(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// Optional attaches the identity when a valid token is present and lets
// anonymous requests through.
func (s *SecurityHandler) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := s.Identify(r); err == nil {
			r = r.WithContext(auth.WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
