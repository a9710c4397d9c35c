// Package config loads the settings shared by the commands.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wanmail/webdriver"
	"github.com/wanmail/webdriver/causelist"
	"github.com/wanmail/webdriver/notify"
	"github.com/wanmail/webdriver/sauce"
	"github.com/wanmail/webdriver/session"
)

// Config holds everything needed to start browser sessions and fetch cause
// lists. Zero values in a file leave the defaults untouched.
type Config struct {
	// Addr is the WebDriver URL prefix. It is ignored when a local driver
	// is started or Sauce is configured.
	Addr     string `yaml:"addr"`
	Browser  string `yaml:"browser"`
	Headless bool   `yaml:"headless"`
	// Binary is the browser executable.
	Binary string `yaml:"binary"`

	// ChromeDriver is started for chrome and GeckoDriver for firefox when
	// its path is set.
	ChromeDriver Driver `yaml:"chromedriver"`
	GeckoDriver  Driver `yaml:"geckodriver"`
	// Xvfb gives a started driver a virtual display when not headless.
	Xvfb Xvfb `yaml:"xvfb"`
	// Display and XAuthority point a started driver at an existing X
	// display instead, e.g. "1" for :1.
	Display    string `yaml:"display"`
	XAuthority string `yaml:"xauthority"`

	Sauce *Sauce `yaml:"sauce"`

	FormURL string `yaml:"form_url"`
	// Parallel bounds how many sessions run at once.
	Parallel int `yaml:"parallel"`
	// Wait bounds how long a results page may take to render.
	Wait time.Duration `yaml:"wait"`

	// SearchTerms, if any, are looked up in every fetched list.
	SearchTerms []string `yaml:"search_terms"`
	// Notify mails the search outcome. Fields left out of the file take
	// their values from notify.DefaultConfig.
	Notify *notify.Config `yaml:"notify"`
}

// Driver describes a local driver binary to start.
type Driver struct {
	Path string `yaml:"path"`
	Port int    `yaml:"port"`
}

// Xvfb configures the virtual frame buffer.
type Xvfb struct {
	Enabled bool `yaml:"enabled"`
	// Screen is "WxH[xD]". Empty keeps the Xvfb default.
	Screen string `yaml:"screen"`
}

// Sauce selects the Sauce Labs grid. AccessKey falls back to the
// SAUCE_ACCESS_KEY environment variable.
type Sauce struct {
	User      string `yaml:"user"`
	AccessKey string `yaml:"access_key"`
	Region    string `yaml:"region"`
	Platform  string `yaml:"platform"`
	Version   string `yaml:"version"`
	TestName  string `yaml:"test_name"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Browser:  string(session.DefaultBrowser),
		Headless: true,
		ChromeDriver: Driver{
			Port: 9515,
		},
		GeckoDriver: Driver{
			Port: 4444,
		},
		FormURL:  causelist.DefaultFormURL,
		Parallel: 2,
		Wait:     10 * time.Second,
	}
}

// LoadFile reads a YAML file over Default. An empty path returns the
// defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if n := cfg.Notify; n != nil {
		d := notify.DefaultConfig()
		if n.Server == "" {
			n.Server = d.Server
		}
		if n.Port == 0 {
			n.Port = d.Port
		}
		if n.SenderName == "" {
			n.SenderName = d.SenderName
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	kind, err := session.ParseKind(c.Browser)
	if err != nil {
		return err
	}
	switch {
	case kind == session.Firefox && c.ChromeDriver.Path != "":
		return errors.New("chromedriver cannot drive firefox, set geckodriver.path instead")
	case kind == session.Chrome && c.GeckoDriver.Path != "":
		return errors.New("geckodriver cannot drive chrome, set chromedriver.path instead")
	}
	if c.Xvfb.Enabled {
		if c.Headless {
			return errors.New("xvfb is only used with headless: false")
		}
		if c.Display != "" {
			return errors.New("xvfb and display are exclusive")
		}
		if _, _, ok := c.LocalDriver(); !ok {
			return errors.New("xvfb needs a local chromedriver or geckodriver")
		}
	}
	if c.Display != "" && !webdriver.ValidDisplay(c.Display) {
		return fmt.Errorf("display %q is not of the form x or x.y", c.Display)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be positive, got %d", c.Parallel)
	}
	if c.Wait < 0 {
		return fmt.Errorf("wait must not be negative, got %v", c.Wait)
	}
	if c.Sauce != nil && c.Sauce.User == "" {
		return errors.New("sauce: user is required")
	}
	if err := c.Query(time.Now()).Validate(); err != nil {
		return err
	}
	if len(c.SearchTerms) > 0 {
		if _, err := causelist.NormalizeTerms(c.SearchTerms); err != nil {
			return err
		}
	}
	if c.Notify != nil {
		if len(c.SearchTerms) == 0 {
			return errors.New("notify needs search_terms")
		}
		if err := c.Notify.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LocalDriver returns the driver binary to start for the configured browser.
// ok is false when sessions go to Addr or Sauce instead.
func (c Config) LocalDriver() (kind webdriver.Driver, d Driver, ok bool) {
	switch session.Kind(c.Browser) {
	case session.Chrome:
		kind, d = webdriver.ChromeDriver, c.ChromeDriver
	case session.Firefox:
		kind, d = webdriver.GeckoDriver, c.GeckoDriver
	}
	return kind, d, d.Path != ""
}

// ServiceOptions returns the options for starting LocalDriver, with its
// output going to w.
func (c Config) ServiceOptions(w io.Writer) []webdriver.ServiceOption {
	opts := []webdriver.ServiceOption{webdriver.Output(w)}
	switch {
	case c.Xvfb.Enabled && !c.Headless:
		opts = append(opts, webdriver.WithFrameBuffer(c.Xvfb.Screen))
	case c.Display != "":
		opts = append(opts, webdriver.Display(c.Display, c.XAuthority))
	}
	return opts
}

// SessionOptions translates the browser settings into session options. addr
// overrides Addr and Sauce when non-empty, e.g. the address of a driver
// service the caller started.
func (c Config) SessionOptions(addr string) ([]session.Option, error) {
	kind, err := session.ParseKind(c.Browser)
	if err != nil {
		return nil, err
	}
	opts := []session.Option{session.WithBrowser(kind)}
	if c.Headless {
		opts = append(opts, session.Headless())
	}
	if c.Binary != "" {
		opts = append(opts, session.WithBinary(c.Binary))
	}

	switch {
	case addr != "":
		opts = append(opts, session.WithAddr(addr))
	case c.Sauce != nil:
		key := c.Sauce.AccessKey
		if key == "" {
			key = os.Getenv("SAUCE_ACCESS_KEY")
		}
		caps, err := sauce.Session(c.Sauce.Platform, c.Sauce.Version, sauce.Capabilities{TestName: c.Sauce.TestName})
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			session.WithAddr(sauce.Addr(c.Sauce.User, key, c.Sauce.Region)),
			session.WithCapabilities(caps))
	default:
		opts = append(opts, session.WithAddr(c.Addr))
	}
	return opts, nil
}

// Query builds the cause-list query for one date.
func (c Config) Query(date time.Time) causelist.Query {
	return causelist.Query{Date: date, FormURL: c.FormURL, Wait: c.Wait}
}
