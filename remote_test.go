package webdriver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blang/semver"
	"github.com/google/go-cmp/cmp"

	"github.com/wanmail/webdriver/internal/webdrivertest"
	"github.com/wanmail/webdriver/log"
)

const homeURL = "https://example.test/"

var pages = map[string]webdrivertest.Page{
	homeURL: {
		Title:  "Example home",
		Source: "<html><head><title>Example home</title></head><body></body></html>",
		Elements: []webdrivertest.Element{
			{By: ByName, Value: "q", Attributes: map[string]string{"type": "search"}},
			{By: ByName, Value: "go", Navigate: homeURL + "results"},
			{By: ByCSSSelector, Value: "li", ID: "li-1", Text: "first"},
			{By: ByCSSSelector, Value: "li", ID: "li-2", Text: "second"},
		},
	},
	homeURL + "results": {
		Title: "Results",
	},
}

func newFake(t *testing.T, legacy bool) *webdrivertest.Server {
	t.Helper()
	s := webdrivertest.NewServer(pages)
	s.Legacy = legacy
	t.Cleanup(s.Close)
	return s
}

func newRemote(t *testing.T, addr string) WebDriver {
	t.Helper()
	wd, err := NewRemote(Capabilities{"browserName": "chrome"}, addr)
	if err != nil {
		t.Fatalf("NewRemote(_, %q) returned error: %v", addr, err)
	}
	return wd
}

func runBothProtocols(t *testing.T, f func(t *testing.T, s *webdrivertest.Server)) {
	for _, legacy := range []bool{false, true} {
		name := "W3C"
		if legacy {
			name = "Legacy"
		}
		t.Run(name, func(t *testing.T) {
			f(t, newFake(t, legacy))
		})
	}
}

func TestNewSession(t *testing.T) {
	runBothProtocols(t, func(t *testing.T, s *webdrivertest.Server) {
		wd := newRemote(t, s.URL)
		if wd.SessionID() == "" {
			t.Fatal("wd.SessionID() is empty")
		}
		want := []map[string]interface{}{{"browserName": "chrome"}}
		if diff := cmp.Diff(want, s.Capabilities()); diff != "" {
			t.Errorf("desired capabilities returned diff (-want/+got):\n%s", diff)
		}
		if err := wd.Quit(); err != nil {
			t.Fatalf("wd.Quit() returned error: %v", err)
		}
	})
}

func TestNewSessionFailure(t *testing.T) {
	runBothProtocols(t, func(t *testing.T, s *webdrivertest.Server) {
		s.FailNewSession("Chrome failed to start: exited abnormally")
		_, err := NewRemote(nil, s.URL)
		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("NewRemote() returned error %v, want *Error", err)
		}
		if e.Err != "session not created" {
			t.Errorf("e.Err = %q, want %q", e.Err, "session not created")
		}
		if e.HTTPCode != http.StatusInternalServerError {
			t.Errorf("e.HTTPCode = %d, want %d", e.HTTPCode, http.StatusInternalServerError)
		}
	})
}

func TestQuit(t *testing.T) {
	s := newFake(t, false)
	wd := newRemote(t, s.URL)
	if err := wd.Quit(); err != nil {
		t.Fatalf("wd.Quit() returned error: %v", err)
	}
	if wd.SessionID() != "" {
		t.Errorf("wd.SessionID() = %q after Quit, want empty", wd.SessionID())
	}
	// A second Quit is a no-op.
	if err := wd.Quit(); err != nil {
		t.Fatalf("second wd.Quit() returned error: %v", err)
	}
	if got := s.Quits(); got != 1 {
		t.Errorf("server saw %d quits, want 1", got)
	}
}

func TestStatus(t *testing.T) {
	s := newFake(t, false)
	wd := newRemote(t, s.URL)
	defer wd.Quit()

	status, err := wd.Status()
	if err != nil {
		t.Fatalf("wd.Status() returned error: %v", err)
	}
	if !status.Ready || status.OS.Name != "Linux" {
		t.Errorf("wd.Status() = %+v, want ready on Linux", status)
	}
	v, err := status.DriverVersion()
	if err != nil {
		t.Fatalf("status.DriverVersion() returned error: %v", err)
	}
	if want := semver.MustParse("114.0.5735"); !v.Equals(want) {
		t.Errorf("status.DriverVersion() = %s, want %s", v, want)
	}
}

func TestDriverVersionMissing(t *testing.T) {
	if _, err := new(Status).DriverVersion(); err == nil {
		t.Fatal("DriverVersion() on an empty status did not return an error")
	}
}

func TestGetAndTitle(t *testing.T) {
	runBothProtocols(t, func(t *testing.T, s *webdrivertest.Server) {
		wd := newRemote(t, s.URL)
		defer wd.Quit()

		if err := wd.Get(homeURL); err != nil {
			t.Fatalf("wd.Get(%q) returned error: %v", homeURL, err)
		}
		title, err := wd.Title()
		if err != nil {
			t.Fatalf("wd.Title() returned error: %v", err)
		}
		if title != "Example home" {
			t.Errorf("wd.Title() = %q, want %q", title, "Example home")
		}
		u, err := wd.CurrentURL()
		if err != nil {
			t.Fatalf("wd.CurrentURL() returned error: %v", err)
		}
		if u != homeURL {
			t.Errorf("wd.CurrentURL() = %q, want %q", u, homeURL)
		}
		src, err := wd.PageSource()
		if err != nil {
			t.Fatalf("wd.PageSource() returned error: %v", err)
		}
		if src != pages[homeURL].Source {
			t.Errorf("wd.PageSource() = %q, want %q", src, pages[homeURL].Source)
		}
	})
}

func TestGetError(t *testing.T) {
	s := newFake(t, false)
	wd := newRemote(t, s.URL)
	defer wd.Quit()

	if err := wd.Get("https://unreachable.test/"); err == nil {
		t.Fatal("wd.Get() of an unknown page did not return an error")
	}
}

func TestFindSendKeysClick(t *testing.T) {
	runBothProtocols(t, func(t *testing.T, s *webdrivertest.Server) {
		wd := newRemote(t, s.URL)
		defer wd.Quit()

		if err := wd.Get(homeURL); err != nil {
			t.Fatalf("wd.Get(%q) returned error: %v", homeURL, err)
		}
		q, err := wd.FindElement(ByName, "q")
		if err != nil {
			t.Fatalf("wd.FindElement(ByName, \"q\") returned error: %v", err)
		}
		if err := q.SendKeys("21/03/2022"); err != nil {
			t.Fatalf("q.SendKeys() returned error: %v", err)
		}
		if got, want := s.Typed("name=q"), "21/03/2022"; got != want {
			t.Errorf("typed text = %q, want %q", got, want)
		}
		typ, err := q.GetAttribute("type")
		if err != nil {
			t.Fatalf("q.GetAttribute(\"type\") returned error: %v", err)
		}
		if typ != "search" {
			t.Errorf("q.GetAttribute(\"type\") = %q, want %q", typ, "search")
		}

		btn, err := wd.FindElement(ByName, "go")
		if err != nil {
			t.Fatalf("wd.FindElement(ByName, \"go\") returned error: %v", err)
		}
		if err := btn.Click(); err != nil {
			t.Fatalf("btn.Click() returned error: %v", err)
		}
		if title, _ := wd.Title(); title != "Results" {
			t.Errorf("title after click = %q, want %q", title, "Results")
		}
	})
}

func TestFindElementNotFound(t *testing.T) {
	runBothProtocols(t, func(t *testing.T, s *webdrivertest.Server) {
		wd := newRemote(t, s.URL)
		defer wd.Quit()

		if err := wd.Get(homeURL); err != nil {
			t.Fatalf("wd.Get(%q) returned error: %v", homeURL, err)
		}
		_, err := wd.FindElement(ByID, "no-such-element")
		if !IsNoSuchElement(err) {
			t.Fatalf("wd.FindElement(ByID, \"no-such-element\") returned error %v, want no such element", err)
		}
	})
}

func TestFindElements(t *testing.T) {
	s := newFake(t, false)
	wd := newRemote(t, s.URL)
	defer wd.Quit()

	if err := wd.Get(homeURL); err != nil {
		t.Fatalf("wd.Get(%q) returned error: %v", homeURL, err)
	}
	elems, err := wd.FindElements(ByCSSSelector, "li")
	if err != nil {
		t.Fatalf("wd.FindElements() returned error: %v", err)
	}
	var texts []string
	for _, e := range elems {
		text, err := e.Text()
		if err != nil {
			t.Fatalf("e.Text() returned error: %v", err)
		}
		texts = append(texts, text)
	}
	if diff := cmp.Diff([]string{"first", "second"}, texts); diff != "" {
		t.Errorf("element texts returned diff (-want/+got):\n%s", diff)
	}

	none, err := wd.FindElements(ByCSSSelector, "table")
	if err != nil {
		t.Fatalf("wd.FindElements() returned error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("wd.FindElements(\"table\") returned %d elements, want 0", len(none))
	}
}

func TestTimeoutsScreenshotLog(t *testing.T) {
	s := newFake(t, false)
	s.SetLogs([]webdrivertest.LogEntry{
		{Timestamp: 1647856800000, Level: "SEVERE", Message: "clc.php 0:0 Uncaught ReferenceError"},
	})
	wd := newRemote(t, s.URL)
	defer wd.Quit()

	if err := wd.SetImplicitWaitTimeout(2 * time.Second); err != nil {
		t.Fatalf("wd.SetImplicitWaitTimeout() returned error: %v", err)
	}
	if err := wd.SetPageLoadTimeout(10 * time.Second); err != nil {
		t.Fatalf("wd.SetPageLoadTimeout() returned error: %v", err)
	}

	png, err := wd.Screenshot()
	if err != nil {
		t.Fatalf("wd.Screenshot() returned error: %v", err)
	}
	if diff := cmp.Diff(webdrivertest.ScreenshotPNG, png); diff != "" {
		t.Errorf("wd.Screenshot() returned diff (-want/+got):\n%s", diff)
	}

	msgs, err := wd.Log(log.Browser)
	if err != nil {
		t.Fatalf("wd.Log(log.Browser) returned error: %v", err)
	}
	want := []log.Message{{
		Timestamp: time.Unix(1647856800, 0),
		Level:     log.Severe,
		Message:   "clc.php 0:0 Uncaught ReferenceError",
	}}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("wd.Log(log.Browser) returned diff (-want/+got):\n%s", diff)
	}
}

func TestBadServerReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "<html>gateway timeout</html>", http.StatusGatewayTimeout)
	}))
	defer ts.Close()

	_, err := NewRemote(nil, ts.URL)
	if err == nil {
		t.Fatal("NewRemote() against a non-WebDriver server did not return an error")
	}
	var e *Error
	if errors.As(err, &e) {
		t.Fatalf("NewRemote() returned *Error %v, want a plain error", e)
	}
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities{"browserName": "firefox"}
	caps.SetLogLevel(log.Browser, log.Severe)
	caps.SetLogLevel(log.Driver, log.Warning)
	caps.Merge(Capabilities{"acceptInsecureCerts": true})

	want := Capabilities{
		"browserName":         "firefox",
		"acceptInsecureCerts": true,
		log.CapabilitiesKey: log.Capabilities{
			log.Browser: log.Severe,
			log.Driver:  log.Warning,
		},
	}
	if diff := cmp.Diff(want, caps); diff != "" {
		t.Errorf("capabilities returned diff (-want/+got):\n%s", diff)
	}
	if got := caps.BrowserName(); got != "firefox" {
		t.Errorf("caps.BrowserName() = %q, want %q", got, "firefox")
	}
}

func TestContextBoundsCommands(t *testing.T) {
	const slowURL = "https://slow.test/"
	s := webdrivertest.NewServer(map[string]webdrivertest.Page{
		slowURL: {Title: "Slow", Delay: 5 * time.Second},
	})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	wd, err := NewRemoteContext(ctx, nil, s.URL)
	if err != nil {
		t.Fatalf("NewRemoteContext() returned error: %v", err)
	}
	if err := wd.Get(slowURL); err != nil {
		t.Fatalf("wd.Get(%q) returned error: %v", slowURL, err)
	}

	start := time.Now()
	_, err = wd.Title()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wd.Title() returned error %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("wd.Title() took %v, want it cut short by the deadline", elapsed)
	}

	// The session can still be ended after its context expired.
	if err := wd.Quit(); err != nil {
		t.Fatalf("wd.Quit() after the deadline returned error: %v", err)
	}
	if s.Quits() != 1 || s.Open() != 0 {
		t.Errorf("server saw %d quits and %d open sessions, want 1 and 0", s.Quits(), s.Open())
	}
}
