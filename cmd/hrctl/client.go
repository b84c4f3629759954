package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/peopleops/hrportal/internal/adapters/backend"
	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
	"github.com/peopleops/hrportal/internal/service/session"
	"github.com/peopleops/hrportal/internal/service/ssobridge"
)

var errNotSignedIn = errors.New("not signed in")

// terminalNavigator turns the guard's sign-in navigation into a hint.
type terminalNavigator struct {
	w io.Writer
}

func (n terminalNavigator) Navigate(path string) {
	_ = writef(n.w, "Sign-in required (%s): run `hrctl login --email <email>`.\n", path)
}

// terminalOpener prints launch URLs instead of starting a browser.
type terminalOpener struct {
	w io.Writer
}

func (o terminalOpener) Open(_ context.Context, url string) error {
	return writef(o.w, "%s\n", url)
}

var (
	_ ports.Navigator = terminalNavigator{}
	_ ports.Opener    = terminalOpener{}
)

// clientSession is one command's view of the stored credentials.
type clientSession struct {
	backend *backend.Client
	file    *tokenstore.File
	auth    *session.Context
	guard   *session.Guard
	bridge  *ssobridge.Bridge
}

func openClientSession(cmdCtx *commandContext) (*clientSession, error) {
	cfg := cmdCtx.Config
	client, err := backend.New(backend.Config{
		BaseURL:  cfg.Backend.URL,
		Timeout:  cfg.Backend.Timeout,
		UserPath: cfg.Backend.UserPath,
		RoleExpr: cfg.Backend.RoleExpr,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	file := tokenstore.NewFile(cmdCtx.StorePath, cmdCtx.Logger)
	resolver := session.NewResolver(session.ResolverOptions{
		Users:          client,
		Timeout:        cfg.Session.ResolveTimeout,
		ClearOnFailure: cfg.Session.ClearOnFailure,
		Logger:         cmdCtx.Logger,
	})
	factory := session.Factory{Resolver: resolver, Logger: cmdCtx.Logger}

	dir := ssobridge.NewDirectory(ssobridge.DirectoryOptions{
		Backend: client,
		Timeout: cfg.Backend.DirectoryTimeout,
		TTL:     cfg.Backend.DirectoryTTL,
		Entries: cfg.Backend.DirectoryEntries,
		Logger:  cmdCtx.Logger,
	})
	bridge := ssobridge.NewBridge(ssobridge.BridgeOptions{
		Directory:       dir,
		Backend:         client,
		Store:           file.Slot(ports.SlotSSO),
		ExchangeTimeout: cfg.Backend.ExchangeTimeout,
		Logger:          cmdCtx.Logger,
	})

	return &clientSession{
		backend: client,
		file:    file,
		auth:    factory.New(file.Slot(ports.SlotPrimary)),
		guard: session.NewGuard(session.GuardOptions{
			Navigator: terminalNavigator{w: cmdCtx.Out},
			Logger:    cmdCtx.Logger,
		}),
		bridge: bridge,
	}, nil
}

// resolve reads the stored credential and waits for a terminal state.
func (c *clientSession) resolve(ctx context.Context) (domainauth.Snapshot, error) {
	c.auth.Start(ctx)
	snap, err := c.auth.Wait(ctx)
	if err != nil {
		return snap, fmt.Errorf("resolve session: %w", err)
	}
	return snap, nil
}

// requireUser resolves the session and lets the guard decide.
func (c *clientSession) requireUser(ctx context.Context) (*domainauth.User, error) {
	snap, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	out := c.guard.Evaluate(snap)
	if out.Decision != session.Allow {
		return nil, errNotSignedIn
	}
	return out.User, nil
}

func commandContextWithSignals(cmdCtx *commandContext) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
}

type loginOptions struct {
	Email    string
	Password string
}

func parseLoginFlags(args []string, in io.Reader) (loginOptions, error) {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts loginOptions
	fs.StringVar(&opts.Email, "email", "", "Account email address")
	fs.StringVar(&opts.Password, "password", "", "Account password (read from stdin when omitted)")
	if err := fs.Parse(args); err != nil {
		return loginOptions{}, err
	}

	opts.Email = strings.TrimSpace(opts.Email)
	if opts.Email == "" {
		return loginOptions{}, errors.New("--email is required")
	}
	if opts.Password == "" && in != nil {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return loginOptions{}, fmt.Errorf("read password: %w", err)
		}
		opts.Password = strings.TrimRight(line, "\r\n")
	}
	if opts.Password == "" {
		return loginOptions{}, errors.New("a password is required")
	}
	return opts, nil
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseLoginFlags(args, cmdCtx.In)
	if err != nil {
		return err
	}
	ctx, stop := commandContextWithSignals(cmdCtx)
	defer stop()

	cs, err := openClientSession(cmdCtx)
	if err != nil {
		return err
	}
	defer cs.auth.Drain()

	res, err := cs.backend.Login(ctx, opts.Email, opts.Password)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if err := cs.auth.Login(ctx, res.AccessToken); err != nil {
		return err
	}
	snap, err := cs.auth.Wait(ctx)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	if !snap.Authenticated() {
		return errors.New("the backend issued a token it does not accept")
	}
	return writef(cmdCtx.Out, "Signed in as %s (%s).\n", snap.User.DisplayName(), snap.User.Role)
}

func runLogout(cmdCtx *commandContext, _ []string) error {
	ctx, stop := commandContextWithSignals(cmdCtx)
	defer stop()

	cs, err := openClientSession(cmdCtx)
	if err != nil {
		return err
	}
	if err := cs.bridge.SignOut(ctx); err != nil {
		return err
	}
	if err := cs.auth.Logout(ctx); err != nil {
		return err
	}
	return writef(cmdCtx.Out, "Signed out.\n")
}

func runWhoami(cmdCtx *commandContext, _ []string) error {
	ctx, stop := commandContextWithSignals(cmdCtx)
	defer stop()

	cs, err := openClientSession(cmdCtx)
	if err != nil {
		return err
	}
	defer cs.auth.Drain()

	user, err := cs.requireUser(ctx)
	if errors.Is(err, errNotSignedIn) {
		return nil
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 0, 2, ' ', 0)
	rows := [][2]string{
		{"Name", user.DisplayName()},
		{"Email", user.Email},
		{"Role", string(user.Role)},
	}
	if user.Profile.Position != "" {
		rows = append(rows, [2]string{"Position", user.Profile.Position})
	}
	for _, row := range rows {
		if err := writef(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	caps := domainauth.CapabilitiesOf(user)
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, string(c))
	}
	if err := writef(tw, "Capabilities:\t%s\n", strings.Join(names, ", ")); err != nil {
		return err
	}
	return tw.Flush()
}

func runApps(cmdCtx *commandContext, _ []string) error {
	ctx, stop := commandContextWithSignals(cmdCtx)
	defer stop()

	cs, err := openClientSession(cmdCtx)
	if err != nil {
		return err
	}
	defer cs.auth.Drain()

	if _, err := cs.requireUser(ctx); err != nil {
		if errors.Is(err, errNotSignedIn) {
			return nil
		}
		return err
	}
	if err := cs.bridge.RefreshApplications(ctx, cs.auth); err != nil {
		return fmt.Errorf("load applications: %w", err)
	}

	apps := cs.bridge.Applications(cs.auth)
	if len(apps) == 0 {
		return writef(cmdCtx.Out, "No applications available for your role.\n")
	}
	tw := tabwriter.NewWriter(cmdCtx.Out, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tNAME\tSSO\tURL\n"); err != nil {
		return err
	}
	for _, a := range apps {
		sso := "no"
		if a.RequiresAuth {
			sso = "yes"
		}
		if err := writef(tw, "%s\t%s\t%s\t%s\n", a.ID, a.Name, sso, a.URL); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runLaunch(cmdCtx *commandContext, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("usage: hrctl launch <application-id>")
	}
	ctx, stop := commandContextWithSignals(cmdCtx)
	defer stop()

	cs, err := openClientSession(cmdCtx)
	if err != nil {
		return err
	}
	defer cs.auth.Drain()

	if _, err := cs.requireUser(ctx); err != nil {
		if errors.Is(err, errNotSignedIn) {
			return nil
		}
		return err
	}

	bridge := cs.bridge.Bind(cs.file.Slot(ports.SlotSSO), terminalOpener{w: cmdCtx.Out})
	launch, err := bridge.Launch(ctx, cs.auth, args[0])
	switch {
	case errors.Is(err, ssobridge.ErrUnknownApplication):
		return fmt.Errorf("no application named %q", args[0])
	case errors.Is(err, ssobridge.ErrForbidden):
		return fmt.Errorf("your role may not launch %q", args[0])
	case err != nil:
		return err
	}
	if launch.Fallback() {
		return writef(cmdCtx.Out, "Token exchange failed; %s will ask you to sign in.\n", launch.Application.Name)
	}
	return nil
}
