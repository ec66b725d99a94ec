// Package stubapi is an in-memory implementation of the task API. It backs the
// stub-api command for local development and the client tests.
package stubapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/dori/taskdeck/internal/logging"
	"github.com/dori/taskdeck/internal/model"
)

const (
	purposeSession = "session"
	purposeReset   = "reset"
)

// Options configures a stub server.
type Options struct {
	// HS256 signing secret; a random one is generated when empty
	Secret string
	// Lifetime of session tokens, default one hour
	TokenTTL time.Duration
	// Lifetime of password reset tokens, default fifteen minutes
	ResetTTL time.Duration
	// AutoVerify marks new accounts verified so login works right after signup
	AutoVerify bool
	Logger     *log.Logger
	Now        func() time.Time
}

type account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	Verified     bool
	VerifyToken  string
	ResetToken   string
}

// Server is the stub API.
type Server struct {
	echo     *echo.Echo
	secret   []byte
	tokenTTL time.Duration
	resetTTL time.Duration
	auto     bool
	logger   *log.Logger
	now      func() time.Time

	mu       sync.Mutex
	accounts map[string]*account // by lowercased email
	tasks    map[string][]model.Task
	hits     map[string]int
}

// claims are the JWT claims of both session and reset tokens.
type claims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// New creates a stub server with its routes registered.
func New(opts Options) *Server {
	if opts.Secret == "" {
		opts.Secret = uuid.NewString()
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		secret:   []byte(opts.Secret),
		tokenTTL: opts.TokenTTL,
		resetTTL: opts.ResetTTL,
		auto:     opts.AutoVerify,
		logger:   logging.OrDiscard(opts.Logger),
		now:      opts.Now,
		accounts: make(map[string]*account),
		tasks:    make(map[string][]model.Task),
		hits:     make(map[string]int),
	}

	e.Use(middleware.Recover())
	e.Use(s.countHits)
	e.HTTPErrorHandler = s.handleError
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.echo.Group("/api")

	api.POST("/user/user-registration", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/email-verification", s.handleVerifyEmail)
	api.POST("/auth/resend-email-verification", s.handleResendVerification)
	api.POST("/auth/forget-password", s.handleForgotPassword)
	api.POST("/auth/reset-password", s.handleResetPassword)

	tasks := api.Group("/task", s.requireSession)
	tasks.GET("", s.handleListTasks)
	tasks.POST("/create-task", s.handleCreateTask)
	tasks.PATCH("/update-status/:id", s.handleUpdateStatus)
	tasks.PATCH("/update-task/:id", s.handleUpdateTask)
	tasks.DELETE("/delete-task/:id", s.handleDeleteTask)
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("stub api listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Hits returns how many requests reached the route, e.g. Hits("DELETE", "/api/task/delete-task/:id").
func (s *Server) Hits(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+route]
}

// VerificationToken returns the pending verification token of an account,
// standing in for the verification email.
func (s *Server) VerificationToken(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[normalizeEmail(email)]
	if !ok || a.VerifyToken == "" {
		return "", false
	}
	return a.VerifyToken, true
}

// ResetToken returns the last reset token issued for an account.
func (s *Server) ResetToken(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[normalizeEmail(email)]
	if !ok || a.ResetToken == "" {
		return "", false
	}
	return a.ResetToken, true
}

// SeedUser adds an account directly and returns its id.
func (s *Server) SeedUser(name, email, password string, verified bool) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &account{ID: uuid.NewString(), Name: name, Email: normalizeEmail(email), PasswordHash: hash, Verified: verified}
	if !verified {
		a.VerifyToken = uuid.NewString()
	}
	s.accounts[a.Email] = a
	return a.ID, nil
}

// IssueToken signs a session token for a user that expires after ttl.
// A negative ttl produces an already expired token.
func (s *Server) IssueToken(userID, email string, ttl time.Duration) (string, error) {
	return s.sign(userID, email, purposeSession, ttl)
}

func (s *Server) sign(subject, email, purpose string, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *Server) parse(raw, purpose string) (*claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	var c claims
	if _, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, err
	}
	if c.ExpiresAt == nil || !s.now().Before(c.ExpiresAt.Time) {
		return nil, errors.New("token expired")
	}
	if c.Purpose != purpose {
		return nil, errors.New("wrong token purpose")
	}
	return &c, nil
}

// countHits records each request by its route pattern.
func (s *Server) countHits(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		s.hits[c.Request().Method+" "+c.Path()]++
		s.mu.Unlock()
		return next(c)
	}
}

// requireSession authenticates "Authorization: Bearer <token>".
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			return failure(c, http.StatusUnauthorized, "You are not authorized.")
		}
		cl, err := s.parse(raw, purposeSession)
		if err != nil {
			return failure(c, http.StatusUnauthorized, "Your session has expired. Please log in again.")
		}
		c.Set("uid", cl.Subject)
		return next(c)
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "Something went wrong."
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= 500 {
		s.logger.Error("stub api error", "path", c.Path(), "err", err)
	}
	_ = failure(c, code, msg)
}

func success(c echo.Context, code int, message string, data interface{}) error {
	body := map[string]interface{}{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	return c.JSON(code, body)
}

func failure(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]interface{}{"success": false, "errorMessage": message})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
