// Package guard decides whether a page may be shown for a session.
package guard

import (
	"fmt"

	"github.com/kilimopesa/internal/apipaths"
	"github.com/kilimopesa/internal/domain"
)

// Decision is the outcome of a page access check
type Decision int

const (
	// Wait means the session is still being restored; render a placeholder
	Wait Decision = iota
	RedirectToLogin
	RedirectToVerification
	Allow
)

var decisionNames = map[Decision]string{
	Wait:                   "wait",
	RedirectToLogin:        "redirect_to_login",
	RedirectToVerification: "redirect_to_verification",
	Allow:                  "allow",
}

func (d Decision) String() string {
	if name, ok := decisionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// MarshalText renders the decision name in JSON
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Policy is a page's access requirement
type Policy struct {
	RequireVerifiedEmail bool
}

var (
	// Verified admits signed in users whose email is verified
	Verified = Policy{RequireVerifiedEmail: true}
	// SignedIn admits any signed in user
	SignedIn = Policy{}
)

// Decide is a pure function of its inputs.
func Decide(s domain.Session, p Policy) Decision {
	switch s.Status {
	case domain.StatusAnonymous:
		return RedirectToLogin
	case domain.StatusAuthenticated:
		if s.User == nil {
			return RedirectToLogin
		}
		if p.RequireVerifiedEmail && !s.User.IsEmailVerified {
			return RedirectToVerification
		}
		return Allow
	default:
		return Wait
	}
}

// Paths are the redirect destinations
type Paths struct {
	Login        string
	Verification string
}

// DefaultPaths are the portal's pages
var DefaultPaths = Paths{
	Login:        apipaths.LoginPage,
	Verification: apipaths.VerifyEmailPage,
}

// Target returns where a redirect decision leads. ok is false for Wait
// and Allow.
func Target(d Decision, paths Paths) (string, bool) {
	switch d {
	case RedirectToLogin:
		return paths.Login, true
	case RedirectToVerification:
		return paths.Verification, true
	default:
		return "", false
	}
}
