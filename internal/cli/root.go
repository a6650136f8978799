// Package cli turns command-line arguments into a session run and maps the
// outcome onto an exit code.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"cdpinject/internal/chrome"
	"cdpinject/internal/config"
	"cdpinject/internal/session"
	"cdpinject/internal/stealth"
)

const Name = "cdpinject"

var version = "0.3.0"

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// LauncherFunc builds the browser launcher for a validated session.
type LauncherFunc func(cfg config.Session, logger *slog.Logger) session.Launcher

// DefaultLauncher drives a real browser through chromedp.
func DefaultLauncher(cfg config.Session, logger *slog.Logger) session.Launcher {
	return &chrome.Launcher{
		Logger: logger,
		Quiet:  !cfg.Verbose,
		Probe:  cfg.Settings.ProbeEndpoint,
	}
}

// UsageError marks invalid or conflicting arguments.
type UsageError struct{ Err error }

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

type flags struct {
	connect    string
	launch     bool
	url        string
	headful    bool
	clean      bool
	payload    string
	output     string
	wait       bool
	confirm    bool
	userAgent  string
	incognito  bool
	stealth    bool
	verbose    bool
	configPath string
	importFrom string
}

type app struct {
	in          io.Reader
	out         io.Writer
	newLauncher LauncherFunc
	f           flags

	// started is set once arguments are valid; errors after that are
	// operational.
	started bool
	logger  *slog.Logger
}

func (a *app) session(cmd *cobra.Command) config.Session {
	s := config.Session{
		URL:                a.f.url,
		Headful:            a.f.headful,
		UserAgent:          a.f.userAgent,
		Incognito:          a.f.incognito,
		Stealth:            a.f.stealth,
		Clean:              a.f.clean,
		PayloadPath:        a.f.payload,
		OutputPath:         a.f.output,
		Wait:               a.f.wait,
		Confirm:            a.f.confirm,
		Verbose:            a.f.verbose,
		CookiesFromBrowser: a.f.importFrom,
	}
	connect := cmd.Flags().Changed("connect")
	switch {
	case a.f.launch:
		s.Mode = config.ModeLaunch
		if connect {
			s.ConnectURL = a.f.connect
		}
	case connect:
		s.Mode = config.ModeAttach
		s.ConnectURL = a.f.connect
	}
	return s
}

func (a *app) run(cmd *cobra.Command, _ []string) error {
	cfg := a.session(cmd)
	if err := cfg.Validate(); err != nil {
		return &UsageError{Err: err}
	}
	a.started = true
	a.logger = config.NewLogger(Name, a.out, cfg.Verbose)

	settings, err := config.Load(config.ResolvePath(a.f.configPath))
	if err != nil {
		return &session.StepError{Step: "loading settings", Err: err}
	}
	cfg.Settings = settings

	d := session.New(a.newLauncher(cfg, a.logger), a.logger, a.in)
	return d.Run(cmd.Context(), cfg)
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     Name + " (--connect <ws_url> | --new) [flags]",
		Short:   "Drive a Chromium tab over the DevTools protocol: navigate, export cookies, inject a payload.",
		Long: "Drive a Chromium tab over the DevTools protocol: navigate, export cookies, inject a payload.\n\n" +
			"--stealth: " + stealth.LongHelp,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.run,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return &UsageError{Err: err} })

	fs := cmd.Flags()
	fs.SortFlags = false
	fs.StringVarP(&a.f.connect, "connect", "c", "", "Connect to an existing browser instance (ws:// or http:// debugging endpoint).")
	fs.BoolVarP(&a.f.launch, "new", "n", false, "Launch a new browser instance.")
	fs.StringVarP(&a.f.url, "url", "u", "", "Set an URL for the target tab.")
	fs.BoolVarP(&a.f.headful, "headful", "H", false, "Run browser in headful mode (requires --new).")
	fs.BoolVarP(&a.f.clean, "clean", "C", false, "Start the tab with a clean localStorage and cookies (requires --output).")
	fs.StringVarP(&a.f.payload, "payload", "p", "", "Specify a JavaScript payload file to inject into the target tab.")
	fs.StringVarP(&a.f.output, "output", "o", "", "Output cookies to the specified file.")
	fs.BoolVarP(&a.f.wait, "wait", "w", false, "Hang browser after executing tasks.")
	fs.BoolVarP(&a.f.confirm, "confirm", "y", false, "Confirm before executing tasks.")
	fs.StringVarP(&a.f.userAgent, "user-agent", "a", "", "Specify a custom User-Agent (requires --new).")
	fs.BoolVarP(&a.f.incognito, "incognito", "i", false, "Enable incognito mode.")
	fs.BoolVarP(&a.f.stealth, "stealth", "s", false, "Enable stealth mode (see more with '--help').")
	fs.BoolVarP(&a.f.verbose, "verbose", "v", false, "Enable verbose output.")
	fs.StringVar(&a.f.configPath, "config", "", "YAML settings file (default $"+config.EnvConfigPath+").")
	fs.StringVar(&a.f.importFrom, "cookies-from-browser", "", "Seed the tab with cookies for --url from a local browser profile (chrome, chromium, edge, brave, opera).")

	cmd.MarkFlagsMutuallyExclusive("connect", "new")
	cmd.MarkFlagsOneRequired("connect", "new")
	cmd.SetVersionTemplate(fmt.Sprintf("%s {{.Version}}\n", Name))
	return cmd
}

// Main runs the program with the given arguments and returns the exit code.
func Main(ctx context.Context, args []string, in io.Reader, out io.Writer, newLauncher LauncherFunc) int {
	if newLauncher == nil {
		newLauncher = DefaultLauncher
	}
	a := &app{in: in, out: out, newLauncher: newLauncher}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(out)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var ue *UsageError
	if !a.started || errors.As(err, &ue) {
		fmt.Fprintf(out, "[%s] error: %v\n\n%s", Name, err, cmd.UsageString())
		return ExitUsage
	}

	var se *session.StepError
	if errors.As(err, &se) {
		a.logger.Error(fmt.Sprintf("Error occurred while %s: %v", se.Step, se.Err))
	} else {
		a.logger.Error(fmt.Sprintf("Error occurred: %v", err))
	}
	return ExitFailure
}
