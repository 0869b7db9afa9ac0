package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	domainAccount "dropin/internal/domain/account"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const accountContextKey contextKey = "account"

// SessionTTL is how long a login stays valid.
const SessionTTL = 12 * time.Hour

const sessionCookieName = "dropin_session"

// Session represents an authenticated session.
type Session struct {
	AccountID string
	Email     string
	Role      string
	CreatedAt time.Time
}

// SessionStore keeps sessions in process memory; they expire after SessionTTL.
type SessionStore struct {
	cache *gocache.Cache
}

// NewSessionStore creates a session store that purges expired sessions every ten minutes.
func NewSessionStore() *SessionStore {
	return &SessionStore{cache: gocache.New(SessionTTL, 10*time.Minute)}
}

// Create stores a new session and returns its token.
// PRE: accountID, email, role are non-empty
// POST: Session is stored, token is returned
func (ss *SessionStore) Create(accountID, email, role string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	ss.cache.SetDefault(token, Session{
		AccountID: accountID,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now(),
	})
	return token, nil
}

// Get retrieves a live session by token.
func (ss *SessionStore) Get(token string) (Session, bool) {
	v, ok := ss.cache.Get(token)
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

// Delete removes a session by token.
func (ss *SessionStore) Delete(token string) {
	ss.cache.Delete(token)
}

// DeleteAccount ends every session of accountID except keep.
// POST: returns the number of sessions removed
func (ss *SessionStore) DeleteAccount(accountID, keep string) int {
	n := 0
	for token, item := range ss.cache.Items() {
		if token == keep {
			continue
		}
		if sess, ok := item.Object.(Session); ok && sess.AccountID == accountID {
			ss.cache.Delete(token)
			n++
		}
	}
	return n
}

// Auth returns middleware that loads the session from the cookie into the context.
// It does not block unauthenticated requests; use RequireRole for that.
func Auth(sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				if session, ok := sessions.Get(cookie.Value); ok {
					r = r.WithContext(ContextWithSession(r.Context(), session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole blocks requests whose session role ranks below min.
// Roles rank admin > staff > volunteer.
func RequireRole(min string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSessionFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "login required")
				return
			}
			acct := domainAccount.Account{Role: session.Role}
			if !acct.HasRole(min) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionFromContext extracts the session from the request context.
func GetSessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(accountContextKey).(Session)
	return session, ok
}

// ContextWithSession returns a context with the given session set.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, accountContextKey, sess)
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   int(SessionTTL.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

// SessionToken returns the raw session token from the request cookie.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
