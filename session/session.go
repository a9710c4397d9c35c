// Package session runs actions against a browser session that is guaranteed
// to be released when the action returns.
//
// A typical call site looks like:
//
//	err := session.Run(ctx, func(ctx context.Context, wd webdriver.WebDriver) error {
//		if err := wd.Get("https://wonderproxy.com"); err != nil {
//			return err
//		}
//		title, err := wd.Title()
//		...
//	}, session.WithAddr(addr))
//
// The session is created before the action runs and quit after it returns,
// fails or panics. Run never retries.
package session

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/wanmail/webdriver"
)

// Action is a unit of work performed against a browser session. The session
// belongs to the action only until it returns; it must not be retained.
type Action func(ctx context.Context, wd webdriver.WebDriver) error

// Provider creates browser sessions.
type Provider interface {
	NewSession(ctx context.Context, caps webdriver.Capabilities) (webdriver.WebDriver, error)
}

// Remote is a Provider backed by a WebDriver server listening at Addr. An
// empty Addr means webdriver.DefaultURLPrefix.
type Remote struct {
	Addr string
}

// NewSession implements Provider.
func (r Remote) NewSession(ctx context.Context, caps webdriver.Capabilities) (webdriver.WebDriver, error) {
	return webdriver.NewRemoteContext(ctx, caps, r.Addr)
}

// AcquireError is returned by Run when no session could be created. The
// action is not invoked in that case.
type AcquireError struct {
	Browser Kind
	Err     error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("starting %s session: %v", e.Browser, e.Err)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// Run acquires a session, invokes action with it and releases the session
// before returning, whatever the outcome of the action.
//
// Sessions from the Remote provider are bound to ctx, so a deadline on ctx
// cuts short whatever command the action is waiting on. The release is not
// bound to ctx and still happens after the deadline.
//
// If the action fails, its error is returned unchanged. A failure to release
// the session is returned only when the action itself succeeded; otherwise it
// is logged.
func Run(ctx context.Context, action Action, opts ...Option) (err error) {
	o := newOptions(opts)

	if err := ctx.Err(); err != nil {
		return &AcquireError{Browser: o.browser, Err: err}
	}
	wd, err := o.provider.NewSession(ctx, o.capabilities())
	if err != nil {
		return &AcquireError{Browser: o.browser, Err: err}
	}
	id := wd.SessionID()
	glog.V(1).Infof("session %s: started %s", id, o.browser)

	defer func() {
		qerr := wd.Quit()
		switch {
		case qerr == nil:
			glog.V(1).Infof("session %s: released", id)
		case err == nil:
			err = fmt.Errorf("releasing session %s: %w", id, qerr)
		default:
			glog.Warningf("session %s: release failed after action error %v: %v", id, err, qerr)
		}
	}()

	return action(ctx, wd)
}
