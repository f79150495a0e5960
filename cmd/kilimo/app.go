package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/kilimopesa/internal/api"
	"github.com/kilimopesa/internal/config"
	"github.com/kilimopesa/internal/credstore"
	"github.com/kilimopesa/internal/domain"
	"github.com/kilimopesa/internal/guard"
	"github.com/kilimopesa/internal/logger"
	"github.com/kilimopesa/internal/session"
)

// errUsage signals that a command already printed its usage
var errUsage = errors.New("usage")

// environment is what a command may touch
type environment struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	quiet  bool

	lines *bufio.Scanner
}

// prompt asks for one line on stdin
func (e *environment) prompt(label string) (string, error) {
	if e.lines == nil {
		e.lines = bufio.NewScanner(e.stdin)
	}
	fmt.Fprintf(e.stdout, "%s: ", label)
	if !e.lines.Scan() {
		if err := e.lines.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(e.lines.Text()), nil
}

func (e *environment) printf(format string, args ...any) {
	fmt.Fprintf(e.stdout, format, args...)
}

// app is a session restored from the configured credential store
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	client      *api.Client
	credentials domain.CredentialStore
	store       *session.Store
	stopWatch   func()
}

// open loads configuration and restores the session
func open(ctx context.Context, env *environment) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.Discard()
	if !env.quiet {
		log = logger.InitLogger(cfg.Environment, env.stderr)
	}

	credentials, err := credstore.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	client, err := api.NewClient(api.OptionsFromConfig(cfg, log))
	if err != nil {
		credentials.Close()
		return nil, err
	}

	store := session.New(client, credentials, session.WithLogger(log))

	// Tell the user where to go when the session changes under them
	navigator := guard.NewNavigator(guard.DefaultPaths, func(path string) {
		if hint := hints[path]; hint != "" {
			fmt.Fprintln(env.stderr, hint)
		}
	}, log)
	navigator.SetPolicy(guard.Verified)

	a := &app{
		cfg:         cfg,
		logger:      log,
		client:      client,
		credentials: credentials,
		store:       store,
		stopWatch:   navigator.Watch(store),
	}

	if err := store.Initialize(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the credential store
func (a *app) Close() {
	a.stopWatch()
	if err := a.credentials.Close(); err != nil {
		a.logger.Warn("failed to close credential store", "error", err)
	}
}

var hints = map[string]string{
	guard.DefaultPaths.Login:        "hint: you are signed out, run `kilimo login`",
	guard.DefaultPaths.Verification: "hint: your email is not verified, run `kilimo verify -email <email> -code <code>`",
}

// describe renders an error for the terminal
func describe(err error) string {
	if errors.Is(err, session.ErrNoPendingVerification) {
		return err.Error()
	}
	var domainErr *domain.DomainError
	if !errors.As(err, &domainErr) {
		return err.Error()
	}

	msg := domain.PublicMessage(err)
	if len(domainErr.Fields) > 1 {
		var b strings.Builder
		b.WriteString(msg)
		fields := make([]string, 0, len(domainErr.Fields))
		for field := range domainErr.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(&b, "\n  %s: %s", field, strings.Join(domainErr.Fields[field], " "))
		}
		msg = b.String()
	}
	return fmt.Sprintf("%s (%s)", msg, domainErr.Code)
}
