package apipaths

// Remote marketplace API paths used by the auth client. The trailing slashes
// are significant: the server redirects (and drops POST bodies) without them.
const (
	CurrentUser        = "/api/user/"
	Login              = "/api/login/"
	Register           = "/api/register/"
	VerifyEmail        = "/api/verify-email/"
	ResendVerification = "/api/resend-verification/"
	Logout             = "/api/logout/"
	CSRF               = "/api/csrf/"
	CSRFLegacy         = "/api/get-csrf/"
)

// Local portal paths.
const (
	PortalHealth             = "/api/health"
	PortalSession            = "/api/session"
	PortalLogin              = "/api/login"
	PortalRegister           = "/api/register"
	PortalVerifyEmail        = "/api/verify-email"
	PortalResendVerification = "/api/resend-verification"
	PortalLogout             = "/api/logout"

	LoginPage       = "/login"
	VerifyEmailPage = "/verify-email"
	DashboardPage   = "/dashboard"
	ProfilePage     = "/profile"
)

// RequiresAuth reports whether a remote endpoint only answers for an
// authenticated caller. A 401/403 on these means the credential expired
// rather than that the submitted credentials were wrong.
func RequiresAuth(path string) bool {
	switch path {
	case CurrentUser, Logout:
		return true
	}
	return false
}
