// Package chrome implements the session browser interfaces on chromedp.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"cdpinject/internal/devtools"
	"cdpinject/internal/session"
	"cdpinject/internal/stealth"
)

const probeTimeout = 15 * time.Second

// Launcher starts or attaches to browsers through chromedp allocators.
type Launcher struct {
	Logger *slog.Logger
	// Quiet silences chromedp's own log output.
	Quiet bool
	// Probe checks a ws:// endpoint with Browser.getVersion before attaching.
	Probe bool
}

func (l *Launcher) contextOptions() []chromedp.ContextOption {
	if l.Quiet || l.Logger == nil {
		return []chromedp.ContextOption{
			chromedp.WithLogf(func(string, ...any) {}),
			chromedp.WithErrorf(func(string, ...any) {}),
		}
	}
	return []chromedp.ContextOption{
		chromedp.WithLogf(func(f string, a ...any) { l.Logger.Debug(fmt.Sprintf(f, a...)) }),
		chromedp.WithErrorf(func(f string, a ...any) { l.Logger.Warn(fmt.Sprintf(f, a...)) }),
	}
}

func allocatorOptions(opts session.LaunchOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Headless)
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Incognito {
		allocOpts = append(allocOpts, chromedp.Flag("incognito", true))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	for name, v := range opts.ExtraFlags {
		allocOpts = append(allocOpts, chromedp.Flag(name, v))
	}
	return allocOpts
}

// Launch starts a browser process and attaches to its first tab.
func (l *Launcher) Launch(ctx context.Context, opts session.LaunchOptions) (session.Browser, error) {
	actx, acancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	cctx, ccancel := chromedp.NewContext(actx, l.contextOptions()...)
	if err := chromedp.Run(cctx); err != nil {
		ccancel()
		acancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &Browser{
		ctxOpts:     l.contextOptions(),
		allocCtx:    actx,
		cancelAlloc: acancel,
		root:        cctx,
		cancelRoot:  ccancel,
	}, nil
}

// Connect attaches to a running browser. An http(s) endpoint is resolved to
// its websocket URL through /json/version, so an unreachable endpoint fails
// here. Nothing is created in the browser until NewTab.
func (l *Launcher) Connect(ctx context.Context, endpoint string) (session.Browser, error) {
	b := &Browser{ctxOpts: l.contextOptions()}
	wsURL := endpoint
	if isHTTPURL(endpoint) {
		dctx, cancel := context.WithTimeout(ctx, probeTimeout)
		ws, v, err := devtools.Discover(dctx, endpoint)
		cancel()
		if err != nil {
			return nil, err
		}
		wsURL = ws
		b.version = fromDevtools(v)
	}
	if l.Probe && isWebSocketURL(wsURL) {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		v, err := devtools.Probe(pctx, wsURL)
		cancel()
		if err != nil {
			return nil, err
		}
		b.version = fromDevtools(v)
	}
	b.allocCtx, b.cancelAlloc = chromedp.NewRemoteAllocator(ctx, wsURL)
	return b, nil
}

func fromDevtools(v devtools.Version) *session.Version {
	return &session.Version{
		ProtocolVersion: v.ProtocolVersion,
		Product:         v.Product,
		Revision:        v.Revision,
		UserAgent:       v.UserAgent,
		JSVersion:       v.JSVersion,
	}
}

func isWebSocketURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "ws" || u.Scheme == "wss")
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// Browser is an allocated chromedp browser. In launch mode root is the tab
// chromedp attached to when the process started.
type Browser struct {
	ctxOpts []chromedp.ContextOption

	allocCtx    context.Context
	cancelAlloc context.CancelFunc

	root       context.Context
	cancelRoot context.CancelFunc
	rootUsed   bool

	// first is the first tab opened; attach mode asks it for the version.
	first context.Context

	version *session.Version
}

// Version reports the browser version. Attach mode without a known version
// needs a tab to talk through, so call it after NewTab.
func (b *Browser) Version() (session.Version, error) {
	if b.version != nil {
		return *b.version, nil
	}
	ctx := b.root
	if ctx == nil {
		ctx = b.first
	}
	if ctx == nil {
		return session.Version{}, errors.New("no tab open to query the browser version")
	}
	var v session.Version
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		v.ProtocolVersion, v.Product, v.Revision, v.UserAgent, v.JSVersion, err =
			browser.GetVersion().Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
		return err
	}))
	if err == nil {
		b.version = &v
	}
	return v, err
}

func (b *Browser) NewTab(incognito bool) (session.Tab, error) {
	if b.root != nil && !incognito && !b.rootUsed {
		b.rootUsed = true
		t, err := newTab(b.root, b.cancelRoot)
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	parent := b.allocCtx
	if b.root != nil {
		parent = b.root
	}
	opts := append([]chromedp.ContextOption{}, b.ctxOpts...)
	if incognito {
		opts = append(opts, chromedp.WithNewBrowserContext())
	}
	tctx, cancel := chromedp.NewContext(parent, opts...)
	t, err := newTab(tctx, cancel)
	if err != nil {
		return nil, err
	}
	if b.first == nil {
		b.first = tctx
	}
	return t, nil
}

func (b *Browser) Close() error {
	if b.cancelRoot != nil {
		b.cancelRoot()
	}
	b.cancelAlloc()
	return nil
}

// Tab wraps one chromedp target context.
type Tab struct {
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func newTab(ctx context.Context, cancel context.CancelFunc) (*Tab, error) {
	// beforeunload prompts would hold the tab open on close.
	chromedp.ListenTarget(ctx, func(ev any) {
		if e, ok := ev.(*page.EventJavascriptDialogOpening); ok && e.Type == page.DialogTypeBeforeunload {
			go func() { _ = chromedp.Run(ctx, page.HandleJavaScriptDialog(true)) }()
		}
	})
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		cancel()
		return nil, err
	}
	return &Tab{ctx: ctx, cancel: cancel}, nil
}

func (t *Tab) ApplyStealth() error {
	src := stealth.Script()
	return chromedp.Run(t.ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx)
			return err
		}),
		evaluate(src),
	)
}

func (t *Tab) SetCookies(cs []*network.CookieParam) error {
	if len(cs) == 0 {
		return nil
	}
	return chromedp.Run(t.ctx, network.SetCookies(cs))
}

func (t *Tab) Navigate(u string) error { return chromedp.Run(t.ctx, chromedp.Navigate(u)) }

func (t *Tab) Reload() error { return chromedp.Run(t.ctx, chromedp.Reload()) }

func (t *Tab) Cookies() ([]*network.Cookie, error) {
	var cs []*network.Cookie
	err := chromedp.Run(t.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cs, err = network.GetCookies().Do(ctx)
		return err
	}))
	return cs, err
}

func (t *Tab) DeleteCookie(name, domain string) error {
	return chromedp.Run(t.ctx, network.DeleteCookies(name).WithDomain(domain))
}

func (t *Tab) Evaluate(script string) error { return chromedp.Run(t.ctx, evaluate(script)) }

// evaluate runs script in the page's main world and drops the result. A
// thrown exception is returned as the error.
func evaluate(script string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, exp, err := runtime.Evaluate(script).Do(ctx)
		if err != nil {
			return err
		}
		if exp != nil {
			return exp
		}
		return nil
	})
}

func (t *Tab) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	err := chromedp.Cancel(t.ctx)
	t.cancel()
	return err
}
