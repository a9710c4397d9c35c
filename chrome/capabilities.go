// Package chrome provides Chrome-specific options for WebDriver.
package chrome

// CapabilitiesKey is the key in the top-level Capabilities map under which
// ChromeDriver expects the Chrome-specific options to be set.
const CapabilitiesKey = "goog:chromeOptions"

// Capabilities defines the Chrome-specific desired capabilities when using
// ChromeDriver. See
// https://chromedriver.chromium.org/capabilities
type Capabilities struct {
	// Path is the file path to the Chrome binary to use.
	Path string `json:"binary,omitempty"`
	// Args are the command-line arguments to pass to the Chrome binary, in
	// addition to the ChromeDriver-supplied ones.
	Args []string `json:"args,omitempty"`
	// ExcludeSwitches are the command line flags that should be removed from
	// the ChromeDriver-supplied default flags. The strings included here should
	// not include a preceding '--'.
	ExcludeSwitches []string `json:"excludeSwitches,omitempty"`
	// Prefs are the key/value pairs that are applied to the preferences of the
	// user profile in use.
	Prefs map[string]interface{} `json:"prefs,omitempty"`
	// Detach, if true, will cause the browser to not be killed when
	// ChromeDriver quits if the session was not terminated.
	Detach *bool `json:"detach,omitempty"`
	// Use W3C mode, if true.
	W3C bool `json:"w3c"`
}

// Headless adds the flags needed to run Chrome without a display. The sandbox
// is disabled as well since it requires a setuid helper that containers and
// CI runners usually lack.
func (c *Capabilities) Headless() {
	for _, arg := range []string{"--headless=new", "--no-sandbox", "--disable-gpu"} {
		if !c.hasArg(arg) {
			c.Args = append(c.Args, arg)
		}
	}
}

func (c *Capabilities) hasArg(arg string) bool {
	for _, a := range c.Args {
		if a == arg {
			return true
		}
	}
	return false
}
