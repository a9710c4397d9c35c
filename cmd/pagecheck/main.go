// Binary pagecheck opens a page in a browser and exits with status 1 unless its
// title is the expected one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/wanmail/webdriver/pagecheck"
	"github.com/wanmail/webdriver/session"
)

var (
	pageURL  = flag.String("url", pagecheck.DefaultURL, "Page to open.")
	title    = flag.String("title", pagecheck.DefaultTitle, "Expected page title.")
	addr     = flag.String("addr", "", "WebDriver URL prefix.")
	browser  = flag.String("browser", string(session.DefaultBrowser), "Browser to drive: chrome or firefox.")
	headless = flag.Bool("headless", true, "Run the browser without a display.")
	timeout  = flag.Duration("timeout", 10*time.Second, "Deadline for the whole check.")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	kind, err := session.ParseKind(*browser)
	if err != nil {
		glog.Exit(err)
	}
	opts := []session.Option{session.WithBrowser(kind), session.WithAddr(*addr)}
	if *headless {
		opts = append(opts, session.Headless())
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	err = pagecheck.Check(ctx, *pageURL, *title, opts...)
	var me *pagecheck.MismatchError
	switch {
	case errors.As(err, &me):
		fmt.Fprintln(os.Stderr, me)
		glog.Flush()
		os.Exit(1)
	case err != nil:
		glog.Exit(err)
	}
	fmt.Printf("%s: %q\n", *pageURL, *title)
}
