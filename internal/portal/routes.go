package portal

import (
	"github.com/kilimopesa/internal/apipaths"
	"github.com/kilimopesa/internal/guard"
)

// setupRoutes configures all portal routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.engine.GET(apipaths.PortalHealth, s.health)

	// Session and auth form endpoints
	s.engine.GET(apipaths.PortalSession, s.getSession)
	s.engine.POST(apipaths.PortalLogin, s.login)
	s.engine.POST(apipaths.PortalRegister, s.register)
	s.engine.POST(apipaths.PortalVerifyEmail, s.verifyEmail)
	s.engine.POST(apipaths.PortalResendVerification, s.resendVerification)
	s.engine.POST(apipaths.PortalLogout, s.logout)

	// Public pages
	s.engine.GET(apipaths.LoginPage, s.loginPage)
	s.engine.GET(apipaths.VerifyEmailPage, s.verifyEmailPage)

	// Gated pages
	s.engine.GET(apipaths.DashboardPage, s.requirePolicy(guard.Verified), s.dashboardPage)
	s.engine.GET(apipaths.ProfilePage, s.requirePolicy(guard.SignedIn), s.profilePage)
}
