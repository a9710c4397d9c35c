package session

import (
	"fmt"

	"github.com/wanmail/webdriver"
	"github.com/wanmail/webdriver/chrome"
	"github.com/wanmail/webdriver/firefox"
)

// Kind selects the browser engine a session runs.
type Kind string

// Supported browser kinds.
const (
	Chrome  Kind = "chrome"
	Firefox Kind = "firefox"
)

// DefaultBrowser is used when no WithBrowser option is given.
const DefaultBrowser = Chrome

// ParseKind maps a browser name as written in flags and config files to a
// Kind.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(name); k {
	case Chrome, Firefox:
		return k, nil
	case "":
		return DefaultBrowser, nil
	}
	return "", fmt.Errorf("unsupported browser %q, want %q or %q", name, Chrome, Firefox)
}

// Capabilities returns the capabilities that start this kind of browser.
// binary, if non-empty, is the path of the browser executable.
func (k Kind) Capabilities(headless bool, binary string) webdriver.Capabilities {
	caps := webdriver.Capabilities{"browserName": string(k)}
	switch k {
	case Chrome:
		c := chrome.Capabilities{Path: binary, W3C: true}
		if headless {
			c.Headless()
		}
		caps.AddChrome(c)
	case Firefox:
		f := firefox.Capabilities{Binary: binary}
		if headless {
			f.Headless()
		}
		caps.AddFirefox(f)
	}
	return caps
}

// Option configures Run.
type Option func(*options)

type options struct {
	browser  Kind
	headless bool
	binary   string
	extra    webdriver.Capabilities
	provider Provider
}

func newOptions(opts []Option) *options {
	o := &options{browser: DefaultBrowser}
	for _, opt := range opts {
		opt(o)
	}
	if o.provider == nil {
		o.provider = Remote{}
	}
	return o
}

func (o *options) capabilities() webdriver.Capabilities {
	caps := o.browser.Capabilities(o.headless, o.binary)
	caps.Merge(o.extra)
	return caps
}

// WithBrowser selects the browser kind. The default is DefaultBrowser.
func WithBrowser(k Kind) Option {
	return func(o *options) {
		o.browser = k
	}
}

// Headless runs the browser without a display.
func Headless() Option {
	return func(o *options) {
		o.headless = true
	}
}

// WithBinary sets the path of the browser executable.
func WithBinary(path string) Option {
	return func(o *options) {
		o.binary = path
	}
}

// WithCapabilities merges caps over the capabilities derived from the browser
// kind. Later calls add to earlier ones.
func WithCapabilities(caps webdriver.Capabilities) Option {
	return func(o *options) {
		if o.extra == nil {
			o.extra = webdriver.Capabilities{}
		}
		o.extra.Merge(caps)
	}
}

// WithAddr uses a Remote provider at the given WebDriver URL prefix.
func WithAddr(addr string) Option {
	return WithProvider(Remote{Addr: addr})
}

// WithProvider sets the source of sessions.
func WithProvider(p Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}
