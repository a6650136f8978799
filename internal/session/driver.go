package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/chromedp/cdproto/network"

	"cdpinject/internal/config"
	"cdpinject/internal/cookies"
)

const clearLocalStorage = "localStorage.clear()"

// Driver runs the session steps in order. The function fields default to
// the real filesystem and clock and may be replaced in tests.
type Driver struct {
	Launcher Launcher
	Log      *slog.Logger

	ReadFile      func(path string) ([]byte, error)
	WriteCookies  func(path string, cs []*network.Cookie) error
	ImportCookies func(browser, targetURL string) ([]*network.CookieParam, error)
	Sleep         func(time.Duration)

	in *bufio.Reader
}

func New(l Launcher, logger *slog.Logger, in io.Reader) *Driver {
	return &Driver{
		Launcher:      l,
		Log:           logger,
		ReadFile:      os.ReadFile,
		WriteCookies:  cookies.Write,
		ImportCookies: cookies.FromBrowser,
		Sleep:         time.Sleep,
		in:            bufio.NewReader(in),
	}
}

// LaunchOptionsFor maps the session configuration onto a process launch.
func LaunchOptionsFor(cfg config.Session) LaunchOptions {
	return LaunchOptions{
		Headless:    !cfg.Headful,
		UserAgent:   cfg.EffectiveUserAgent(),
		Incognito:   cfg.Incognito && !cfg.IncognitoContext(),
		ExecPath:    cfg.Settings.ExecPath,
		UserDataDir: cfg.Settings.UserDataDir,
		ExtraFlags:  cfg.Settings.ExtraFlags,
	}
}

// Run executes the whole session. Any failure stops the remaining steps and
// is returned as a *StepError. The tab is closed on every path once opened.
func (d *Driver) Run(ctx context.Context, cfg config.Session) error {
	br, err := d.acquire(ctx, cfg)
	if err != nil {
		return err
	}
	defer br.Close()

	if cfg.WantsOutput() {
		d.Log.Info(fmt.Sprintf("Saving cookies to '%s'", cfg.OutputPath))
	}
	if cfg.WantsPayload() {
		d.Log.Info(fmt.Sprintf("Using payload from '%s'", cfg.PayloadPath))
	}

	tab, err := br.NewTab(cfg.IncognitoContext())
	if err != nil {
		return stepErr("opening tab", err)
	}
	closed := false
	defer func() {
		if !closed {
			if err := tab.Close(); err != nil {
				d.Log.Debug("closing tab after failure", slog.String("err", err.Error()))
			}
		}
	}()

	if d.Log.Enabled(ctx, slog.LevelDebug) {
		v, err := br.Version()
		if err != nil {
			return stepErr("fetching browser version", err)
		}
		d.Log.Debug("Browser information",
			slog.String("user_agent", v.UserAgent),
			slog.String("product", v.Product),
			slog.String("js_version", v.JSVersion),
		)
	}

	if err := d.prepare(tab, cfg); err != nil {
		return err
	}

	if cfg.Confirm {
		d.Log.Info("Waiting for user confirmation to proceed...")
		if err := d.hang(); err != nil {
			return stepErr("reading confirmation", err)
		}
	}

	if cfg.WantsOutput() {
		if cfg.Clean {
			if err := d.clean(tab, cfg.Settings.SettleDelay); err != nil {
				return err
			}
		}
		if err := d.export(tab, cfg.OutputPath); err != nil {
			return err
		}
	}

	if cfg.WantsPayload() {
		if err := d.inject(tab, cfg.PayloadPath); err != nil {
			return err
		}
	}

	if cfg.Wait {
		d.Log.Info("Hanging browser, press Enter to exit...")
		if err := d.hang(); err != nil {
			return stepErr("waiting for input", err)
		}
	}

	d.Log.Info("Exiting instance...")
	closed = true
	if err := tab.Close(); err != nil {
		return stepErr("closing tab", err)
	}
	return nil
}

func (d *Driver) acquire(ctx context.Context, cfg config.Session) (Browser, error) {
	if cfg.Mode == config.ModeAttach {
		d.Log.Info("Connecting to existing browser instance at " + cfg.ConnectURL)
		br, err := d.Launcher.Connect(ctx, cfg.ConnectURL)
		if err != nil {
			return nil, stepErr("connecting to browser", err)
		}
		return br, nil
	}

	opts := LaunchOptionsFor(cfg)
	kind := "headless"
	if !opts.Headless {
		kind = "headful"
	}
	d.Log.Info("Launching new " + kind + " browser instance")
	if opts.Incognito {
		d.Log.Debug("Launching instance with incognito flag")
	}
	br, err := d.Launcher.Launch(ctx, opts)
	if err != nil {
		return nil, stepErr("launching browser", err)
	}
	return br, nil
}

// prepare runs everything that has to happen before the operator gate:
// stealth, cookie import and navigation.
func (d *Driver) prepare(tab Tab, cfg config.Session) error {
	if cfg.StealthEnabled() {
		d.Log.Debug("Using stealth mode. (may make detection easier, consider turning it off)")
		if err := tab.ApplyStealth(); err != nil {
			return stepErr("applying stealth", err)
		}
	}

	if cfg.CookiesFromBrowser != "" {
		params, err := d.ImportCookies(cfg.CookiesFromBrowser, cfg.URL)
		if err != nil {
			return stepErr("importing cookies", err)
		}
		if err := tab.SetCookies(params); err != nil {
			return stepErr("setting cookies", err)
		}
		d.Log.Info("Imported cookies from browser",
			slog.String("browser", cfg.CookiesFromBrowser),
			slog.Int("count", len(params)),
		)
	}

	if cfg.URL != "" {
		d.Log.Debug("Navigating", slog.String("url", cfg.URL))
		if err := tab.Navigate(cfg.URL); err != nil {
			return stepErr("navigating", err)
		}
	}
	return nil
}

// clean drops every visible cookie and localStorage, then reloads. Deletion
// is keyed on name and domain only, so same-named cookies on other paths go
// too.
func (d *Driver) clean(tab Tab, settle time.Duration) error {
	d.Log.Debug("Deleting cookies...")
	cs, err := tab.Cookies()
	if err != nil {
		return stepErr("fetching cookies", err)
	}
	for _, c := range cs {
		if err := tab.DeleteCookie(c.Name, c.Domain); err != nil {
			return stepErr("deleting cookies", err)
		}
	}
	if err := tab.Evaluate(clearLocalStorage); err != nil {
		return stepErr("clearing localStorage", err)
	}
	if err := tab.Reload(); err != nil {
		return stepErr("reloading", err)
	}
	// The reload's load event fires before late cookies land.
	d.Sleep(settle)
	d.Log.Debug("Cookies deleted successfully", slog.Int("count", len(cs)))
	return nil
}

func (d *Driver) export(tab Tab, path string) error {
	cs, err := tab.Cookies()
	if err != nil {
		return stepErr("fetching cookies", err)
	}
	d.Log.Debug("Writing cookies...", slog.String("path", path), slog.Int("count", len(cs)))
	if err := d.WriteCookies(path, cs); err != nil {
		return stepErr("writing cookies", err)
	}
	d.Log.Info(fmt.Sprintf("Cookies successfully saved to '%s'", path))
	return nil
}

func (d *Driver) inject(tab Tab, path string) error {
	d.Log.Debug("Reading payload...", slog.String("path", path))
	b, err := d.ReadFile(path)
	if err != nil {
		return stepErr("reading payload file", err)
	}
	d.Log.Debug("Payload successfully read", slog.Int("bytes", len(b)))

	d.Log.Debug("Injecting payload...")
	if err := tab.Evaluate(string(b)); err != nil {
		return stepErr("executing payload", err)
	}
	d.Log.Info("Payload executed successfully")
	return nil
}

// hang blocks until the operator enters a line. A closed input counts as
// an answer.
func (d *Driver) hang() error {
	_, err := d.in.ReadString('\n')
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
