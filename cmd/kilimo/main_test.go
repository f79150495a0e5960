package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilimopesa/internal/api/apitest"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// setupEnv points the CLI at a fake API with a sqlite credential file
func setupEnv(t *testing.T) *apitest.Server {
	t.Helper()
	srv := apitest.NewServer(t)
	t.Setenv("KILIMO_CONFIG", "")
	t.Setenv("APP_ENV", "test")
	t.Setenv("KILIMO_API_BASE_URL", srv.URL)
	t.Setenv("KILIMO_AUTH_TRANSPORT", "bearer")
	t.Setenv("KILIMO_STORAGE", "sqlite")
	t.Setenv("KILIMO_STORAGE_PATH", filepath.Join(t.TempDir(), "kilimo.db"))
	t.Setenv("KILIMO_PASSWORD", "")
	return srv
}

func TestCLI_LoginPersistsAcrossRuns(t *testing.T) {
	srv := setupEnv(t)
	srv.AddAccount("juma", "j@example.com", "secret123", true)

	res := runCLI(t, "", "-quiet", "login", "-identifier", "juma", "-password", "secret123")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "signed in as juma <j@example.com>")

	res = runCLI(t, "", "-quiet", "whoami")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "juma <j@example.com> id=1 verified=true")
	assert.Contains(t, res.stdout, "dashboard: allow")

	res = runCLI(t, "", "-quiet", "status")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "status:    authenticated")

	res = runCLI(t, "", "-quiet", "logout")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "signed out")
	assert.Contains(t, res.stderr, "kilimo login", "navigation hint printed")

	res = runCLI(t, "", "-quiet", "whoami")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "not signed in (redirect_to_login)")
}

func TestCLI_LoginPrompts(t *testing.T) {
	srv := setupEnv(t)
	srv.AddAccount("juma", "j@example.com", "secret123", true)

	res := runCLI(t, "j@example.com\nsecret123\n", "-quiet", "login")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Email or username: ")
	assert.Contains(t, res.stdout, "signed in as juma")
}

func TestCLI_WrongPassword(t *testing.T) {
	srv := setupEnv(t)
	srv.AddAccount("juma", "j@example.com", "secret123", true)

	res := runCLI(t, "", "-quiet", "login", "-identifier", "j@example.com", "-password", "wrong")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Invalid credentials (INVALID_CREDENTIALS)")

	res = runCLI(t, "", "-quiet", "status")
	assert.Contains(t, res.stdout, "status:    anonymous")
}

func TestCLI_RegisterAndVerify(t *testing.T) {
	setupEnv(t)

	res := runCLI(t, apitest.VerificationCode+"\n", "-quiet", "register",
		"-username", "amina", "-email", "a@example.com", "-password", "pw123456")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Check your email")
	assert.Contains(t, res.stdout, "Verification code sent to a@example.com: ")
	assert.Contains(t, res.stdout, "Email verified successfully")
	assert.Contains(t, res.stdout, "signed in as amina <a@example.com>")
}

func TestCLI_RegisterConfirmMismatch(t *testing.T) {
	setupEnv(t)

	res := runCLI(t, "pw123456\nother\n", "-quiet", "register", "-username", "amina", "-email", "a@example.com")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "passwords do not match")
	assert.Contains(t, res.stderr, "VALIDATION_FAILED")
}

func TestCLI_VerifyAndResend(t *testing.T) {
	srv := setupEnv(t)
	srv.AddAccount("amina", "a@example.com", "pw123456", false)

	res := runCLI(t, "", "-quiet", "resend", "-email", "a@example.com")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Verification code resent")

	res = runCLI(t, "", "-quiet", "verify", "-email", "a@example.com", "-code", "000000")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Invalid or expired verification code")

	res = runCLI(t, "", "-quiet", "verify", "-email", "a@example.com", "-code", apitest.VerificationCode)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Email verified successfully")
}

func TestCLI_Usage(t *testing.T) {
	setupEnv(t)

	res := runCLI(t, "")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "usage: kilimo")

	res = runCLI(t, "", "bogus")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, `unknown command "bogus"`)

	res = runCLI(t, "", "login", "-nope")
	assert.Equal(t, 2, res.code)
}

func TestCLI_MissingBaseURL(t *testing.T) {
	setupEnv(t)
	t.Setenv("KILIMO_API_BASE_URL", "")

	res := runCLI(t, "", "-quiet", "status")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "KILIMO_API_BASE_URL is required")
}
