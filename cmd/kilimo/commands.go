package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kilimopesa/internal/domain"
	"github.com/kilimopesa/internal/guard"
	"github.com/kilimopesa/internal/portal"
	"github.com/kilimopesa/internal/session"
)

type command func(ctx context.Context, env *environment, args []string) error

var commands = map[string]command{
	"serve":    serveCmd,
	"login":    loginCmd,
	"register": registerCmd,
	"verify":   verifyCmd,
	"resend":   resendCmd,
	"whoami":   whoamiCmd,
	"status":   statusCmd,
	"logout":   logoutCmd,
}

func newFlagSet(env *environment, name string) *flag.FlagSet {
	fs := flag.NewFlagSet("kilimo "+name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

// orPrompt returns value, asking on stdin when it is empty
func orPrompt(env *environment, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return env.prompt(label)
}

func serveCmd(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "serve")
	addr := fs.String("addr", "", "listen address (default from KILIMO_PORTAL_ADDRESS)")
	if err := parse(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	if *addr != "" {
		a.cfg.Portal.ListenAddress = *addr
	}

	refresher, err := session.NewRefresher(a.store, a.cfg.Session.RefreshSchedule, a.logger)
	if err != nil {
		return err
	}
	refresher.Start()
	defer refresher.Stop()

	a.logger.Info("portal configuration loaded",
		"api_base_url", a.client.BaseURL(),
		"listen_address", a.cfg.Portal.ListenAddress,
		"transport", a.cfg.Auth.Transport,
		"storage", a.cfg.Storage.Driver,
		"session", a.store.Status(),
	)

	return portal.NewServer(a.cfg, a.store, a.logger).Run(ctx)
}

func loginCmd(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "login")
	identifier := fs.String("identifier", "", "email or username")
	password := fs.String("password", "", "password (default KILIMO_PASSWORD, else prompted)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("KILIMO_PASSWORD")
	}

	a, err := open(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := orPrompt(env, *identifier, "Email or username")
	if err != nil {
		return err
	}
	pw, err := orPrompt(env, *password, "Password")
	if err != nil {
		return err
	}

	user, err := a.store.Login(ctx, domain.LoginRequest{Identifier: id, Password: pw})
	if err != nil {
		return err
	}

	env.printf("signed in as %s <%s>\n", user.Username, user.Email)
	if !user.IsEmailVerified {
		env.printf("email not verified yet\n")
	}
	return nil
}

func registerCmd(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "register")
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (default KILIMO_PASSWORD, else prompted)")
	code := fs.String("code", "", "verification code (prompted when omitted)")
	noVerify := fs.Bool("no-verify", false, "stop after registration")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("KILIMO_PASSWORD")
	}

	a, err := open(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	req := domain.RegisterRequest{}
	if req.Username, err = orPrompt(env, *username, "Username"); err != nil {
		return err
	}
	if req.Email, err = orPrompt(env, *email, "Email"); err != nil {
		return err
	}
	if req.Password, err = orPrompt(env, *password, "Password"); err != nil {
		return err
	}
	if *password == "" {
		if req.ConfirmPassword, err = env.prompt("Confirm password"); err != nil {
			return err
		}
	}

	flow := session.NewOnboarding(a.store)
	resp, err := flow.Register(ctx, req)
	if err != nil {
		return err
	}
	env.printf("%s\n", message(resp, "registered"))

	if *noVerify {
		return nil
	}

	pending, _ := flow.Pending()
	c, err := orPrompt(env, *code, fmt.Sprintf("Verification code sent to %s", pending.Email))
	if err != nil {
		return err
	}
	resp, err = flow.Verify(ctx, c)
	if err != nil {
		return err
	}
	env.printf("%s\n", message(resp, "email verified"))

	if user := a.store.User(); user != nil {
		env.printf("signed in as %s <%s>\n", user.Username, user.Email)
	}
	return nil
}

func verifyCmd(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "verify")
	email := fs.String("email", "", "email address (default: signed in user)")
	code := fs.String("code", "", "verification code")
	if err := parse(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := *email
	if addr == "" {
		if user := a.store.User(); user != nil {
			addr = user.Email
		}
	}
	if addr, err = orPrompt(env, addr, "Email"); err != nil {
		return err
	}
	c, err := orPrompt(env, *code, "Verification code")
	if err != nil {
		return err
	}

	resp, err := a.store.VerifyEmail(ctx, domain.VerifyEmailRequest{Email: addr, Code: c})
	if err != nil {
		return err
	}
	env.printf("%s\n", message(resp, "email verified"))
	return nil
}

func resendCmd(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "resend")
	email := fs.String("email", "", "email address (default: signed in user)")
	if err := parse(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := *email
	if addr == "" {
		if user := a.store.User(); user != nil {
			addr = user.Email
		}
	}
	if addr, err = orPrompt(env, addr, "Email"); err != nil {
		return err
	}

	resp, err := a.store.ResendVerification(ctx, domain.ResendVerificationRequest{Email: addr})
	if err != nil {
		return err
	}
	env.printf("%s\n", message(resp, "verification code sent"))
	return nil
}

func whoamiCmd(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "whoami")
	if err := parse(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	snap := a.store.Snapshot()
	if !snap.Authenticated() {
		env.printf("not signed in (%s)\n", guard.Decide(snap, guard.SignedIn))
		return nil
	}

	env.printf("%s <%s> id=%d verified=%t\n", snap.User.Username, snap.User.Email, snap.User.ID, snap.User.IsEmailVerified)
	env.printf("dashboard: %s\n", guard.Decide(snap, guard.Verified))
	return nil
}

func statusCmd(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "status")
	if err := parse(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	snap := a.store.Snapshot()
	env.printf("api:       %s\n", a.client.BaseURL())
	env.printf("status:    %s\n", snap.Status)
	env.printf("verified:  %s\n", guard.Decide(snap, guard.Verified))
	env.printf("signed_in: %s\n", guard.Decide(snap, guard.SignedIn))
	return nil
}

func logoutCmd(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "logout")
	if err := parse(fs, args); err != nil {
		return err
	}

	a, err := open(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Logout(ctx); err != nil {
		return err
	}
	env.printf("signed out\n")
	return nil
}

func message(resp *domain.AuthResponse, fallback string) string {
	if resp != nil && resp.Message != "" {
		return resp.Message
	}
	return fallback
}
