package passgate

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"

	"github.com/panyam/passgate/internal/logging"
	"github.com/panyam/passgate/oauth2"
)

// Options configures New. Store and Sessions are required.
type Options struct {
	Store    CredentialStore
	Sessions *SessionIssuer

	// Defaults to bcrypt at PasswordCost
	Hasher Hasher

	// Defaults to ConsoleEmailSender
	EmailSender  SendEmail
	ResetBaseURL string

	// Defaults to scs.New()
	Session *scs.SessionManager

	// Google sign-in is mounted only when this is set
	Google       *oauth2.GoogleConfig
	LinkPolicy   LinkPolicy
	OAuthClient  *http.Client
	OAuthTimeout time.Duration

	// CORS origins. Empty means "*".
	TrustedOrigins []string

	// Optional limiter applied per client IP and route
	RateLimiter RateLimiter

	// Take the client IP from X-Forwarded-For / X-Real-IP. Set only when a
	// proxy that overwrites these headers sits in front.
	TrustProxyHeaders bool

	// Defaults to slog.Default()
	Logger *slog.Logger
}

// PassGate wires the auth endpoints onto a router
type PassGate struct {
	Local      *LocalAuth
	Google     *oauth2.GoogleOAuth2
	Reconciler *Reconciler
	Middleware Middleware
	Session    *scs.SessionManager

	store          CredentialStore
	rateLimiter    RateLimiter
	trustProxy     bool
	trustedOrigins []string
	logger         *slog.Logger
	router         *mux.Router
}

func New(opts Options) *PassGate {
	hasher := opts.Hasher
	if hasher == nil {
		hasher = NewBcryptHasher()
	}
	session := opts.Session
	if session == nil {
		session = scs.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := opts.TrustedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	p := &PassGate{
		Session:        session,
		store:          opts.Store,
		rateLimiter:    opts.RateLimiter,
		trustProxy:     opts.TrustProxyHeaders,
		trustedOrigins: origins,
		logger:         logger,
		Local: &LocalAuth{
			Store:        opts.Store,
			Hasher:       hasher,
			Tokens:       NewResetTokens(hasher),
			Sessions:     opts.Sessions,
			EmailSender:  opts.EmailSender,
			ResetBaseURL: opts.ResetBaseURL,
			Session:      session,
		},
		Reconciler: &Reconciler{Store: opts.Store, Policy: opts.LinkPolicy},
	}
	p.Middleware = Middleware{
		VerifyToken: opts.Sessions.Verify,
		SessionGetter: func(r *http.Request, param string) string {
			return session.GetString(r.Context(), param)
		},
	}

	if opts.Google != nil {
		cfg := *opts.Google
		if cfg.VerifyState && cfg.States == nil {
			cfg.States = session
		}
		p.Google = oauth2.NewGoogleOAuth2(cfg, GoogleUserHandler(p.Reconciler, opts.Sessions))
		p.Google.HTTPClient = opts.OAuthClient
		if opts.OAuthTimeout > 0 {
			p.Google.Timeout = opts.OAuthTimeout
		}
	}
	return p
}

// Router returns the route table without the outer middleware
func (p *PassGate) Router() *mux.Router {
	if p.router != nil {
		return p.router
	}
	r := mux.NewRouter()
	r.HandleFunc("/health", p.HandleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/signup", p.rateLimited(p.Local.HandleSignup)).Methods(http.MethodPost)
	api.HandleFunc("/login", p.rateLimited(p.Local.HandleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/forgot-password", p.rateLimited(p.Local.HandleForgotPassword)).Methods(http.MethodPost)
	api.HandleFunc("/reset-password", p.rateLimited(p.Local.HandleResetPassword)).Methods(http.MethodPost)
	api.Handle("/me", p.Middleware.EnsureUser(http.HandlerFunc(p.HandleMe))).Methods(http.MethodGet)

	if p.Google != nil {
		r.HandleFunc("/auth/google", p.Google.HandleAuthorize).Methods(http.MethodGet)
		r.HandleFunc("/auth/google/callback", p.Google.HandleCallback).Methods(http.MethodGet)
	}

	p.router = r
	return r
}

// Handler returns the router wrapped with logging, security headers, CORS,
// session loading and panic recovery.
func (p *PassGate) Handler() http.Handler {
	var h http.Handler = p.Router()
	h = recoverer(h)
	h = p.Session.LoadAndSave(h)
	h = cors.Handler(cors.Options{
		AllowedOrigins:   p.trustedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", logging.RequestIDHeader},
		ExposedHeaders:   []string{logging.RequestIDHeader},
		AllowCredentials: !slices.Contains(p.trustedOrigins, "*"),
		MaxAge:           300,
	})(h)
	h = SecurityHeaders(h)
	return logging.RequestLogger(p.logger)(h)
}

// HandleMe returns the profile of the logged in account
func (p *PassGate) HandleMe(w http.ResponseWriter, r *http.Request) {
	email := p.Middleware.GetLoggedInEmail(r)
	users, err := p.store.Load(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("error loading users", "err", err)
		writeServerError(w)
		return
	}
	user := users.Find(email)
	if user == nil {
		writeError(w, NewAuthError(http.StatusNotFound, ErrCodeNotFound, MsgUserNotFound, ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"email":        user.Email,
		"name":         user.Name,
		"hasPassword":  user.HasPassword(),
		"googleLinked": user.IsGoogleLinked(),
	})
}

func (p *PassGate) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (p *PassGate) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	if p.rateLimiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := getClientIP(r, p.trustProxy) + ":" + r.URL.Path
		if !p.rateLimiter.Allow(key) {
			writeError(w, NewAuthError(http.StatusTooManyRequests, ErrCodeRateLimited, MsgTooManyRequests, ""))
			return
		}
		next(w, r)
	}
}

// SecurityHeaders adds security-related headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a handler panic into the generic 500 response
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logging.FromContext(r.Context()).Error("panic serving request", "panic", rec)
				writeServerError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
