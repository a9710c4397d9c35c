// Package pagecheck verifies that a page loads with the expected title.
package pagecheck

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/wanmail/webdriver"
	"github.com/wanmail/webdriver/session"
)

// The page checked when no other is configured.
const (
	DefaultURL   = "https://wonderproxy.com"
	DefaultTitle = "Localization testing with confidence - WonderProxy"
)

// MismatchError reports a page whose title differs from the expected one.
type MismatchError struct {
	URL  string
	Got  string
	Want string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: title is %q, want %q", e.URL, e.Got, e.Want)
}

// Title returns an action that navigates to url and compares the page title
// with want. The comparison is exact.
func Title(url, want string) session.Action {
	return func(ctx context.Context, wd webdriver.WebDriver) error {
		if err := wd.Get(url); err != nil {
			return fmt.Errorf("opening %s: %w", url, err)
		}
		got, err := wd.Title()
		if err != nil {
			return fmt.Errorf("reading title of %s: %w", url, err)
		}
		glog.V(1).Infof("session %s: %s has title %q", wd.SessionID(), url, got)
		if got != want {
			return &MismatchError{URL: url, Got: got, Want: want}
		}
		return nil
	}
}

// Check runs Title in a fresh session.
func Check(ctx context.Context, url, want string, opts ...session.Option) error {
	return session.Run(ctx, Title(url, want), opts...)
}
