// Package session drives one browser session from acquisition to tab close.
//
// The browser is reached through the Launcher, Browser and Tab interfaces so
// the pipeline can run against chromedp or against a fake in tests.
package session

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
)

// LaunchOptions describe a browser process to start.
type LaunchOptions struct {
	Headless  bool
	UserAgent string
	// Incognito passes the --incognito switch to the new process.
	Incognito   bool
	ExecPath    string
	UserDataDir string
	ExtraFlags  map[string]any
}

// Version identifies the browser at the other end of the connection.
type Version struct {
	ProtocolVersion string
	Product         string
	Revision        string
	UserAgent       string
	JSVersion       string
}

type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
	Connect(ctx context.Context, wsURL string) (Browser, error)
}

// Browser is a live connection to a browser process, owned or borrowed.
type Browser interface {
	Version() (Version, error)
	// NewTab returns the single tab for this run. When incognito is set the
	// tab is created inside a new browser context.
	NewTab(incognito bool) (Tab, error)
	Close() error
}

// Tab is one page. Every call blocks until the browser replies.
type Tab interface {
	ApplyStealth() error
	SetCookies(cookies []*network.CookieParam) error
	Navigate(url string) error
	Reload() error
	Cookies() ([]*network.Cookie, error)
	// DeleteCookie removes cookies matching name and domain, on any path.
	DeleteCookie(name, domain string) error
	Evaluate(script string) error
	// Close closes the tab without running beforeunload handlers.
	Close() error
}

// StepError tags an operational failure with the stage that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step string, err error) error {
	return &StepError{Step: step, Err: err}
}
