// Package sauce configures sessions on the Sauce Labs hosted browser grid.
package sauce

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/wanmail/webdriver"
)

// DefaultRegion is the data center used when none is given.
const DefaultRegion = "us-west-1"

// CapabilitiesKey is the W3C extension key under which Sauce options are sent.
const CapabilitiesKey = "sauce:options"

// Addr returns the WebDriver URL prefix for a Sauce Labs account. The
// credentials are escaped so that access keys containing reserved characters
// survive.
func Addr(userName, accessKey, region string) string {
	if region == "" {
		region = DefaultRegion
	}
	u := url.URL{
		Scheme: "https",
		User:   url.UserPassword(userName, accessKey),
		Host:   fmt.Sprintf("ondemand.%s.saucelabs.com", region),
		Path:   "/wd/hub",
	}
	return u.String()
}

// Capabilities are the Sauce-specific options of a session.
//
// See https://docs.saucelabs.com/dev/test-configuration-options/ for what
// each field means.
type Capabilities struct {
	// Used to record test names for jobs.
	TestName string `json:"name,omitempty"`
	// Used to associate jobs with a build number or app version.
	BuildNumber string   `json:"build,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// In seconds.
	MaximumDuration int `json:"maxDuration,omitempty"`
	CommandTimeout  int `json:"commandTimeout,omitempty"`
	IdleTimeout     int `json:"idleTimeout,omitempty"`

	ScreenResolution string `json:"screenResolution,omitempty"`
	TimeZone         string `json:"timeZone,omitempty"`

	// Set to false to disable video recording.
	RecordVideo *bool `json:"recordVideo,omitempty"`
}

// ToMap returns the capabilities in a key/value structure.
func (c *Capabilities) ToMap() (map[string]interface{}, error) {
	buf, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Session returns the capabilities that request a Sauce session on the given
// platform, e.g. "Windows 11" or "Linux". An empty version means the latest
// browser release.
func Session(platform, version string, c Capabilities) (webdriver.Capabilities, error) {
	opts, err := c.ToMap()
	if err != nil {
		return nil, err
	}
	caps := webdriver.Capabilities{CapabilitiesKey: opts}
	if platform != "" {
		caps["platformName"] = platform
	}
	if version == "" {
		version = "latest"
	}
	caps["browserVersion"] = version
	return caps, nil
}
