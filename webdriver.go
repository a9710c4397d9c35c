package webdriver

import (
	"fmt"
	"strings"
	"time"

	"github.com/blang/semver"

	"github.com/wanmail/webdriver/chrome"
	"github.com/wanmail/webdriver/firefox"
	"github.com/wanmail/webdriver/log"
)

// Methods by which to find elements.
const (
	ByID              = "id"
	ByXPATH           = "xpath"
	ByLinkText        = "link text"
	ByPartialLinkText = "partial link text"
	ByName            = "name"
	ByTagName         = "tag name"
	ByClassName       = "class name"
	ByCSSSelector     = "css selector"
)

// Capabilities configures both the WebDriver process and the target browsers,
// with standard and browser-specific options.
type Capabilities map[string]interface{}

// BrowserName returns the "browserName" entry, or "" if it is unset.
func (c Capabilities) BrowserName() string {
	name, _ := c["browserName"].(string)
	return name
}

// AddChrome adds Chrome-specific capabilities.
func (c Capabilities) AddChrome(f chrome.Capabilities) {
	c[chrome.CapabilitiesKey] = f
}

// AddFirefox adds Firefox-specific capabilities.
func (c Capabilities) AddFirefox(f firefox.Capabilities) {
	c[firefox.CapabilitiesKey] = f
}

// SetLogLevel asks the driver to keep log entries of typ at level or above,
// so that they can be read back with WebDriver.Log.
func (c Capabilities) SetLogLevel(typ log.Type, level log.Level) {
	m, ok := c[log.CapabilitiesKey].(log.Capabilities)
	if !ok {
		m = make(log.Capabilities)
		c[log.CapabilitiesKey] = m
	}
	m[typ] = level
}

// Merge copies every entry of other into c, replacing existing keys.
func (c Capabilities) Merge(other Capabilities) {
	for k, v := range other {
		c[k] = v
	}
}

// Status contains information returned by the Status method.
type Status struct {
	// The following fields are used by Selenium and ChromeDriver.
	Build struct {
		Version, Revision, Time string
	}
	OS struct {
		Arch, Name, Version string
	}

	// The following fields are specified by the W3C WebDriver specification and
	// are used by GeckoDriver and recent ChromeDriver releases.
	Ready   bool
	Message string
}

// DriverVersion parses Build.Version. ChromeDriver reports four numeric
// components followed by a commit reference, e.g.
// "114.0.5735.90 (386bc09e8f4f2e025eddae123f36f6263096ae49-refs/...)"; only
// the first three components are kept.
func (s *Status) DriverVersion() (semver.Version, error) {
	fields := strings.Fields(s.Build.Version)
	if len(fields) == 0 {
		return semver.Version{}, fmt.Errorf("no build version in status")
	}
	parts := strings.Split(fields[0], ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return semver.ParseTolerant(strings.Join(parts, "."))
}

// WebDriver defines methods supported by WebDriver drivers.
type WebDriver interface {
	// Status returns various pieces of information about the server environment.
	Status() (*Status, error)

	// SessionID returns the current session ID. It is empty once Quit has
	// succeeded.
	SessionID() string

	// SetImplicitWaitTimeout sets the amount of time the driver should wait when
	// searching for elements. The timeout will be rounded to nearest millisecond.
	SetImplicitWaitTimeout(timeout time.Duration) error
	// SetPageLoadTimeout sets the amount of time the driver should wait when
	// loading a page. The timeout will be rounded to nearest millisecond.
	SetPageLoadTimeout(timeout time.Duration) error

	// Quit ends the current session. The browser instance will be closed.
	Quit() error

	// Get navigates the browser to the provided URL.
	Get(url string) error
	// CurrentURL returns the browser's current URL.
	CurrentURL() (string, error)
	// Title returns the current page's title.
	Title() (string, error)
	// PageSource returns the current page's source.
	PageSource() (string, error)

	// FindElement finds exactly one element in the current page's DOM.
	FindElement(by, value string) (WebElement, error)
	// FindElements finds potentially many elements in the current page's DOM.
	FindElements(by, value string) ([]WebElement, error)

	// Screenshot takes a screenshot of the browser window.
	Screenshot() ([]byte, error)
	// Log fetches the logs. Log types must be previously configured in the
	// capabilities.
	Log(typ log.Type) ([]log.Message, error)
}

// WebElement defines method supported by web elements.
type WebElement interface {
	// Click clicks on the element.
	Click() error
	// SendKeys types into the element.
	SendKeys(keys string) error

	// FindElement finds a child element.
	FindElement(by, value string) (WebElement, error)
	// FindElements finds multiple children elements.
	FindElements(by, value string) ([]WebElement, error)

	// Text returns the text of the element.
	Text() (string, error)
	// GetAttribute returns the named attribute of the element.
	GetAttribute(name string) (string, error)
}
