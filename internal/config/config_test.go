package config

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wanmail/webdriver"
	"github.com/wanmail/webdriver/causelist"
	"github.com/wanmail/webdriver/internal/webdrivertest"
	"github.com/wanmail/webdriver/notify"
	"github.com/wanmail/webdriver/sauce"
	"github.com/wanmail/webdriver/session"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("os.WriteFile(%q) returned error: %v", path, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() returned error: %v", err)
	}
}

func TestLoadFileEmptyPath(t *testing.T) {
	got, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile(\"\") returned error: %v", err)
	}
	if diff := cmp.Diff(Default(), got); diff != "" {
		t.Errorf("LoadFile(\"\") returned diff (-want/+got):\n%s", diff)
	}
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
browser: firefox
headless: false
geckodriver:
  path: /usr/bin/geckodriver
xvfb:
  enabled: true
  screen: 1280x1024x24
parallel: 4
wait: 30s
sauce:
  user: court
  platform: Linux
`)
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	want := Default()
	want.Browser = "firefox"
	want.Headless = false
	want.GeckoDriver.Path = "/usr/bin/geckodriver"
	want.Xvfb = Xvfb{Enabled: true, Screen: "1280x1024x24"}
	want.Parallel = 4
	want.Wait = 30 * time.Second
	want.Sauce = &Sauce{User: "court", Platform: "Linux"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadFile() returned diff (-want/+got):\n%s", diff)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("LoadFile(missing) returned error %v, want fs.ErrNotExist", err)
	}
	for _, contents := range []string{
		"browser: safari\n",
		"parallel: 0\n",
		"wait: -1s\n",
		"sauce:\n  region: eu-central-1\n",
		"browser: firefox\nchromedriver:\n  path: /usr/bin/chromedriver\n",
		"geckodriver:\n  path: /usr/bin/geckodriver\n",
		"xvfb:\n  enabled: true\nchromedriver:\n  path: /usr/bin/chromedriver\n",
		"headless: false\nxvfb:\n  enabled: true\n",
		"display: ':one'\n",
		"search_terms: [' ', '']\n",
		"form_url: clc.php\n",
		"notify:\n  sender: checker@example.com\n  recipients: [advocate@example.com]\n",
		"search_terms: [versus]\nnotify:\n  sender: checker@example.com\n",
		"parallel: [\n",
	} {
		if _, err := LoadFile(writeConfig(t, contents)); err == nil {
			t.Errorf("LoadFile(%q) did not return an error", contents)
		}
	}
}

func TestLoadFileNotifyDefaults(t *testing.T) {
	path := writeConfig(t, `
search_terms: [State of Punjab, CRM-M-1234]
notify:
  sender: checker@example.com
  recipients: [advocate@example.com]
`)
	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	want := notify.DefaultConfig()
	want.Sender = "checker@example.com"
	want.Recipients = []string{"advocate@example.com"}
	if diff := cmp.Diff(&want, got.Notify); diff != "" {
		t.Errorf("LoadFile() notify returned diff (-want/+got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"State of Punjab", "CRM-M-1234"}, got.SearchTerms); diff != "" {
		t.Errorf("LoadFile() search_terms returned diff (-want/+got):\n%s", diff)
	}
}

func TestLocalDriver(t *testing.T) {
	for _, tc := range []struct {
		browser       string
		chrome, gecko string
		wantName      string
		wantPath      string
		wantPort      int
		wantOK        bool
	}{
		{browser: "chrome", chrome: "/usr/bin/chromedriver", wantName: "chromedriver", wantPath: "/usr/bin/chromedriver", wantPort: 9515, wantOK: true},
		{browser: "firefox", gecko: "/usr/bin/geckodriver", wantName: "geckodriver", wantPath: "/usr/bin/geckodriver", wantPort: 4444, wantOK: true},
		{browser: "chrome", wantName: "chromedriver", wantPort: 9515},
		{browser: "firefox", chrome: "/usr/bin/chromedriver", wantName: "geckodriver", wantPort: 4444},
	} {
		cfg := Default()
		cfg.Browser = tc.browser
		cfg.ChromeDriver.Path = tc.chrome
		cfg.GeckoDriver.Path = tc.gecko
		kind, d, ok := cfg.LocalDriver()
		if kind.Name != tc.wantName || d.Path != tc.wantPath || d.Port != tc.wantPort || ok != tc.wantOK {
			t.Errorf("%s with chromedriver %q and geckodriver %q: LocalDriver() = %s, %+v, %t; want %s, {Path:%s Port:%d}, %t",
				tc.browser, tc.chrome, tc.gecko, kind.Name, d, ok, tc.wantName, tc.wantPath, tc.wantPort, tc.wantOK)
		}
	}
}

func TestServiceOptions(t *testing.T) {
	cfg := Default()
	if got := len(cfg.ServiceOptions(io.Discard)); got != 1 {
		t.Errorf("headless ServiceOptions() returned %d options, want 1", got)
	}

	cfg.Headless = false
	cfg.Display = "1"
	opts := cfg.ServiceOptions(io.Discard)
	if len(opts) != 2 {
		t.Fatalf("ServiceOptions() with a display returned %d options, want 2", len(opts))
	}
	for i, opt := range opts {
		if err := opt(&webdriver.Service{}); err != nil {
			t.Errorf("option %d returned error: %v", i, err)
		}
	}

	cfg.Display = ""
	cfg.Xvfb.Enabled = true
	if got := len(cfg.ServiceOptions(io.Discard)); got != 2 {
		t.Errorf("ServiceOptions() with xvfb returned %d options, want 2", got)
	}
}

func TestQuery(t *testing.T) {
	date := time.Date(2022, time.March, 21, 0, 0, 0, 0, time.UTC)
	got := Default().Query(date)
	want := causelist.Query{Date: date, FormURL: causelist.DefaultFormURL, Wait: 10 * time.Second}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Query() returned diff (-want/+got):\n%s", diff)
	}
}

// requestedCapabilities runs an empty action with the options built from cfg
// against a fake server and returns the capabilities the server received.
func requestedCapabilities(t *testing.T, cfg Config) map[string]interface{} {
	t.Helper()
	s := webdrivertest.NewServer(nil)
	defer s.Close()

	opts, err := cfg.SessionOptions("")
	if err != nil {
		t.Fatalf("SessionOptions() returned error: %v", err)
	}
	opts = append(opts, session.WithAddr(s.URL))
	if err := session.Run(context.Background(), func(context.Context, webdriver.WebDriver) error { return nil }, opts...); err != nil {
		t.Fatalf("session.Run() returned error: %v", err)
	}
	caps := s.Capabilities()
	if len(caps) != 1 {
		t.Fatalf("server saw %d session requests, want 1", len(caps))
	}
	return caps[0]
}

func TestSessionOptionsHeadlessChrome(t *testing.T) {
	cfg := Default()
	cfg.Binary = "/opt/chrome/chrome"
	got := requestedCapabilities(t, cfg)

	if got["browserName"] != "chrome" {
		t.Errorf("browserName = %v, want chrome", got["browserName"])
	}
	opts, ok := got["goog:chromeOptions"].(map[string]interface{})
	if !ok {
		t.Fatalf("goog:chromeOptions = %v, want an object", got["goog:chromeOptions"])
	}
	want := map[string]interface{}{
		"binary": "/opt/chrome/chrome",
		"args":   []interface{}{"--headless=new", "--no-sandbox", "--disable-gpu"},
		"w3c":    true,
	}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("goog:chromeOptions returned diff (-want/+got):\n%s", diff)
	}
}

func TestSessionOptionsSauce(t *testing.T) {
	t.Setenv("SAUCE_ACCESS_KEY", "from-env")
	cfg := Default()
	cfg.Sauce = &Sauce{User: "court", Platform: "Linux", TestName: "cause list"}
	got := requestedCapabilities(t, cfg)

	if got["platformName"] != "Linux" || got["browserVersion"] != "latest" {
		t.Errorf("platformName, browserVersion = %v, %v; want Linux, latest", got["platformName"], got["browserVersion"])
	}
	want := map[string]interface{}{"name": "cause list"}
	if diff := cmp.Diff(want, got[sauce.CapabilitiesKey]); diff != "" {
		t.Errorf("%s returned diff (-want/+got):\n%s", sauce.CapabilitiesKey, diff)
	}
}

func TestSessionOptionsBadBrowser(t *testing.T) {
	cfg := Default()
	cfg.Browser = "lynx"
	if _, err := cfg.SessionOptions(""); err == nil {
		t.Error("SessionOptions() with an unknown browser did not return an error")
	}
}
