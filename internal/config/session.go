package config

import "errors"

// Mode selects how the browser handle is acquired.
type Mode int

const (
	ModeUnset Mode = iota
	ModeLaunch
	ModeAttach
)

func (m Mode) String() string {
	switch m {
	case ModeLaunch:
		return "launch"
	case ModeAttach:
		return "attach"
	default:
		return "unset"
	}
}

var (
	ErrModeRequired      = errors.New("one of --connect or --new is required")
	ErrModeConflict      = errors.New("--connect and --new cannot be used together")
	ErrHeadfulNeedsNew   = errors.New("--headful requires --new")
	ErrUserAgentNeedsNew = errors.New("--user-agent requires --new")
	ErrCleanNeedsOutput  = errors.New("--clean requires --output")
	ErrImportNeedsURL    = errors.New("--cookies-from-browser requires --url")
)

// Session is the per-run configuration. It is built once and passed by value.
type Session struct {
	Mode       Mode
	ConnectURL string

	URL       string
	Headful   bool
	UserAgent string
	Incognito bool
	Stealth   bool
	Clean     bool

	PayloadPath string
	OutputPath  string

	Wait    bool
	Confirm bool
	Verbose bool

	CookiesFromBrowser string

	Settings Settings
}

// Validate enforces the flag dependency rules.
func (s Session) Validate() error {
	switch {
	case s.Mode == ModeUnset:
		return ErrModeRequired
	case s.Mode == ModeAttach && s.ConnectURL == "":
		return ErrModeRequired
	case s.Mode == ModeLaunch && s.ConnectURL != "":
		return ErrModeConflict
	}
	if s.Mode != ModeLaunch {
		if s.Headful {
			return ErrHeadfulNeedsNew
		}
		if s.UserAgent != "" {
			return ErrUserAgentNeedsNew
		}
	}
	if s.Clean && s.OutputPath == "" {
		return ErrCleanNeedsOutput
	}
	if s.CookiesFromBrowser != "" && s.URL == "" {
		return ErrImportNeedsURL
	}
	return nil
}

// EffectiveUserAgent is the user agent a launched browser should advertise.
func (s Session) EffectiveUserAgent() string {
	if s.UserAgent != "" {
		return s.UserAgent
	}
	if s.Settings.UserAgent != "" {
		return s.Settings.UserAgent
	}
	return DefaultUserAgent
}

func (s Session) StealthEnabled() bool { return s.Stealth || s.Settings.AlwaysStealth }

func (s Session) WantsOutput() bool  { return s.OutputPath != "" }
func (s Session) WantsPayload() bool { return s.PayloadPath != "" }

// IncognitoContext reports whether the tab should live in a fresh browser
// context rather than relying on the launch switch.
func (s Session) IncognitoContext() bool {
	if !s.Incognito {
		return false
	}
	return s.Mode == ModeAttach || s.Settings.IncognitoContextOnLaunch
}
