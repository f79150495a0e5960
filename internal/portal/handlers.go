package portal

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kilimopesa/internal/apipaths"
	"github.com/kilimopesa/internal/domain"
	"github.com/kilimopesa/internal/guard"
)

// loginForm accepts the identifier under any of the names the forms use
type loginForm struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (f loginForm) request() domain.LoginRequest {
	identifier := f.Identifier
	for _, alt := range []string{f.Email, f.Username} {
		if strings.TrimSpace(identifier) == "" {
			identifier = alt
		}
	}
	return domain.LoginRequest{Identifier: identifier, Password: f.Password}
}

// SessionResponse is the portal's view of the session
type SessionResponse struct {
	Status    domain.Status             `json:"status"`
	User      *domain.User              `json:"user,omitempty"`
	Decisions map[string]guard.Decision `json:"decisions"`
	Pending   string                    `json:"pending_verification,omitempty"`
	Navigate  string                    `json:"navigate,omitempty"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "kilimo",
		"session": s.store.Status(),
	})
}

func (s *Server) getSession(c *gin.Context) {
	snap := s.store.Snapshot()
	resp := SessionResponse{
		Status: snap.Status,
		User:   snap.User,
		Decisions: map[string]guard.Decision{
			"verified":  guard.Decide(snap, guard.Verified),
			"signed_in": guard.Decide(snap, guard.SignedIn),
		},
		Navigate: s.takeNavigation(),
	}
	if pending, ok := s.onboarding.Pending(); ok {
		resp.Pending = pending.Email
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format"})
		return
	}

	user, err := s.store.Login(c.Request.Context(), form.request())
	if err != nil {
		s.respondError(c, "login", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": user,
		"next": s.afterSignIn(user, c.Query("next")),
	})
}

func (s *Server) register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format"})
		return
	}

	resp, err := s.onboarding.Register(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, "registration", err)
		return
	}

	pending, _ := s.onboarding.Pending()
	c.JSON(http.StatusCreated, gin.H{
		"message": ackMessage(resp, "Registration successful. Check your email for the verification code."),
		"email":   pending.Email,
		"next":    s.paths.Verification,
	})
}

func (s *Server) verifyEmail(c *gin.Context) {
	var req domain.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format"})
		return
	}

	var (
		resp *domain.AuthResponse
		err  error
	)
	// Continue the onboarding started here; otherwise verify as given
	if pending, ok := s.onboarding.Pending(); ok && (req.Email == "" || strings.EqualFold(strings.TrimSpace(req.Email), pending.Email)) {
		resp, err = s.onboarding.Verify(c.Request.Context(), req.Code)
	} else {
		resp, err = s.store.VerifyEmail(c.Request.Context(), req)
	}
	if err != nil {
		s.respondError(c, "email verification", err)
		return
	}

	snap := s.store.Snapshot()
	next := s.paths.Login
	if snap.Authenticated() {
		next = s.afterSignIn(snap.User, c.Query("next"))
	}
	c.JSON(http.StatusOK, gin.H{
		"message": ackMessage(resp, "Email verified successfully"),
		"status":  snap.Status,
		"next":    next,
	})
}

func (s *Server) resendVerification(c *gin.Context) {
	var req domain.ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format"})
		return
	}

	var (
		resp *domain.AuthResponse
		err  error
	)
	if _, ok := s.onboarding.Pending(); ok && req.Email == "" {
		resp, err = s.onboarding.Resend(c.Request.Context())
	} else {
		resp, err = s.store.ResendVerification(c.Request.Context(), req)
	}
	if err != nil {
		s.respondError(c, "resend verification", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": ackMessage(resp, "Verification code sent"),
	})
}

func (s *Server) logout(c *gin.Context) {
	if err := s.store.Logout(c.Request.Context()); err != nil {
		s.respondError(c, "logout", err)
		return
	}
	s.onboarding.Cancel()

	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out",
		"next":    s.paths.Login,
	})
}

// ============================================================================
// Pages
// ============================================================================

func (s *Server) loginPage(c *gin.Context) {
	snap := s.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"page":          "login",
		"fields":        []string{"identifier", "password"},
		"authenticated": snap.Authenticated(),
		"next":          safeNext(c.Query("next"), apipaths.DashboardPage),
	})
}

func (s *Server) verifyEmailPage(c *gin.Context) {
	email := ""
	if pending, ok := s.onboarding.Pending(); ok {
		email = pending.Email
	} else if user := s.store.User(); user != nil {
		email = user.Email
	}

	c.JSON(http.StatusOK, gin.H{
		"page":   "verify_email",
		"fields": []string{"email", "code"},
		"email":  email,
		"next":   safeNext(c.Query("next"), apipaths.DashboardPage),
	})
}

func (s *Server) dashboardPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"page": "dashboard",
		"user": s.store.User(),
	})
}

func (s *Server) profilePage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"page": "profile",
		"user": s.store.User(),
	})
}

// afterSignIn picks where a freshly signed in user goes
func (s *Server) afterSignIn(user *domain.User, next string) string {
	if user != nil && !user.IsEmailVerified {
		return s.paths.Verification
	}
	return safeNext(next, apipaths.DashboardPage)
}

func ackMessage(resp *domain.AuthResponse, fallback string) string {
	if resp != nil && resp.Message != "" {
		return resp.Message
	}
	return fallback
}
