package api

import (
	"context"
	"net/http"

	"github.com/kilimopesa/internal/apipaths"
	"github.com/kilimopesa/internal/config"
)

// AttachCredential makes every following request carry credential: as a
// bearer header, or as the session cookie when the API uses cookie sessions.
func (c *Client) AttachCredential(credential string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.credential = credential
	if c.opts.Transport == config.TransportCookie {
		c.jar.SetCookies(c.baseURL, []*http.Cookie{{
			Name:  c.opts.SessionCookieName,
			Value: credential,
			Path:  "/",
		}})
	}
}

// DetachCredential stops sending the credential and forgets the CSRF token
// bound to the old session.
func (c *Client) DetachCredential() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.credential = ""
	c.csrfToken = ""
	if c.opts.Transport == config.TransportCookie {
		c.jar.SetCookies(c.baseURL, []*http.Cookie{{
			Name:   c.opts.SessionCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		}})
	}
}

// Credential returns the attached credential, or ""
func (c *Client) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

func (c *Client) setCredentialHeader(req *http.Request) {
	if c.opts.Transport != config.TransportBearer {
		return
	}
	c.mu.RLock()
	credential := c.credential
	c.mu.RUnlock()

	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
}

// sessionCookie returns the server session cookie currently in the jar
func (c *Client) sessionCookie() string {
	return c.cookie(c.opts.SessionCookieName)
}

func (c *Client) cookie(name string) string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

type csrfResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// csrf returns the token echoed on state-changing requests. The cookie set
// by the server wins since it rotates on login; otherwise the token is
// fetched once and cached until the session changes.
func (c *Client) csrf(ctx context.Context) (string, error) {
	if token := c.cookie(c.opts.CSRFCookieName); token != "" {
		return token, nil
	}

	c.mu.RLock()
	cached := c.csrfToken
	c.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	var out csrfResponse
	_, err := c.do(ctx, http.MethodGet, apipaths.CSRF, nil, &out)
	if isNotFound(err) {
		_, err = c.do(ctx, http.MethodGet, apipaths.CSRFLegacy, nil, &out)
	}
	if err != nil {
		c.logger.Warn("failed to fetch CSRF token", "error", err)
		return "", err
	}

	token := out.CSRFToken
	if cookieToken := c.cookie(c.opts.CSRFCookieName); cookieToken != "" {
		token = cookieToken
	}

	c.mu.Lock()
	c.csrfToken = token
	c.mu.Unlock()

	c.logger.Debug("CSRF token fetched")
	return token, nil
}

func (c *Client) resetCSRF() {
	c.mu.Lock()
	c.csrfToken = ""
	c.mu.Unlock()
}
