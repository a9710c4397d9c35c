// Binary causelist prints the cause lists the High Court publishes for one or
// more dates, one "date<TAB>name<TAB>url" line per list. Given search terms,
// it also looks for them in the lists' PDFs, prints a
// "date<TAB>match<TAB>term<TAB>page<TAB>name<TAB>url" line per hit and, if
// configured, mails the outcome.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/wanmail/webdriver"
	"github.com/wanmail/webdriver/causelist"
	"github.com/wanmail/webdriver/internal/config"
	"github.com/wanmail/webdriver/log"
	"github.com/wanmail/webdriver/notify"
	"github.com/wanmail/webdriver/session"
)

var (
	configPath   = flag.String("config", "", "YAML file with default settings.")
	dates        = flag.String("date", defaultDate(time.Now()), "Comma-separated dates to fetch, as dd/mm/yyyy. Defaults to tomorrow.")
	addr         = flag.String("addr", "", "WebDriver URL prefix. Defaults to "+webdriver.DefaultURLPrefix+".")
	browser      = flag.String("browser", "", "Browser to drive: chrome or firefox.")
	headless     = flag.Bool("headless", true, "Run the browser without a display.")
	chromeDriver = flag.String("chromedriver", "", "If set and -browser is chrome, start this chromedriver binary instead of using -addr.")
	geckoDriver  = flag.String("geckodriver", "", "If set and -browser is firefox, start this geckodriver binary instead of using -addr.")
	port         = flag.Int("port", 0, "Port for the started driver.")
	parallel     = flag.Int("parallel", 0, "Maximum number of concurrent browser sessions.")
	formURL      = flag.String("form_url", "", "Address of the cause-list form.")
	terms        = flag.String("terms", "", "Comma-separated terms to look for in the lists.")
	timeout      = flag.Duration("timeout", 10*time.Minute, "Deadline for the whole run.")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := causeLists(); err != nil {
		glog.Exit(err)
	}
}

// defaultDate is the day after now, the first day whose lists are usually
// not yet known.
func defaultDate(now time.Time) string {
	return now.AddDate(0, 0, 1).Format(causelist.DateLayout)
}

func causeLists() error {
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		return err
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	var n notify.Notifier
	if cfg.Notify != nil {
		if n, err = notify.NewMailer(*cfg.Notify); err != nil {
			return err
		}
	}

	days, err := parseDates(*dates)
	if err != nil {
		return notifyError(n, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var serviceAddr string
	if kind, d, ok := cfg.LocalDriver(); ok {
		svc, err := webdriver.StartService(ctx, kind, d.Path, d.Port, cfg.ServiceOptions(os.Stderr)...)
		if err != nil {
			return notifyError(n, fmt.Errorf("starting %s: %w", kind.Name, err))
		}
		defer func() {
			if err := svc.Stop(); err != nil {
				glog.Warningf("stopping %s: %v", kind.Name, err)
			}
		}()
		if fb := svc.FrameBuffer(); fb != nil {
			glog.Infof("%s running on display :%s", kind.Name, fb.Display)
		}
		serviceAddr = svc.Addr()
	}

	return run(ctx, cfg, serviceAddr, days, os.Stdout, n)
}

// notifyError mails err, if a notifier is configured, and returns it.
func notifyError(n notify.Notifier, err error) error {
	if n == nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if nerr := n.Notify(ctx, notify.Report{Err: err}); nerr != nil {
		glog.Errorf("mailing error report: %v", nerr)
	}
	return err
}

// applyFlags copies the flags given on the command line over cfg.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "browser":
			cfg.Browser = *browser
		case "headless":
			cfg.Headless = *headless
		case "chromedriver":
			cfg.ChromeDriver.Path = *chromeDriver
		case "geckodriver":
			cfg.GeckoDriver.Path = *geckoDriver
		case "port":
			cfg.ChromeDriver.Port = *port
			cfg.GeckoDriver.Port = *port
		case "parallel":
			cfg.Parallel = *parallel
		case "form_url":
			cfg.FormURL = *formURL
		case "terms":
			cfg.SearchTerms = strings.Split(*terms, ",")
		}
	})
}

func parseDates(s string) ([]time.Time, error) {
	var days []time.Time
	for _, f := range strings.Split(s, ",") {
		if strings.TrimSpace(f) == "" {
			continue
		}
		d, err := causelist.ParseDate(f)
		if err != nil {
			return nil, fmt.Errorf("bad -date %q: %v", f, err)
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no dates in %q", s)
	}
	return days, nil
}

// run fetches the lists of every day, writes them, searches them when cfg has
// search terms and reports to n, which may be nil. Failures are mailed as one
// error report; nothing else is mailed then.
func run(ctx context.Context, cfg config.Config, serviceAddr string, days []time.Time, w io.Writer, n notify.Notifier) error {
	lists, err := fetchAll(ctx, cfg, serviceAddr, days)
	for i, day := range days {
		for _, e := range lists[i] {
			fmt.Fprintf(w, "%s\t%s\t%s\n", day.Format(causelist.DateLayout), e.Name, e.URL)
		}
	}
	if err != nil {
		return report(ctx, n, notify.Report{Err: err})
	}
	if len(cfg.SearchTerms) == 0 {
		return nil
	}

	var reports []notify.Report
	for i, day := range days {
		res, err := causelist.Search(ctx, lists[i], cfg.SearchTerms)
		if err != nil {
			err = fmt.Errorf("%s: searching: %w", day.Format(causelist.DateLayout), err)
			return report(ctx, n, notify.Report{Date: day, Err: err})
		}
		glog.Infof("%s: %d matches in %d of %d lists", day.Format(causelist.DateLayout), len(res.Matches), res.Searched, len(lists[i]))
		for _, m := range res.Matches {
			fmt.Fprintf(w, "%s\tmatch\t%s\t%d\t%s\t%s\n", day.Format(causelist.DateLayout), m.Term, m.Page, m.Entry.Name, m.Entry.URL)
		}
		reports = append(reports, notify.Report{Date: day, Result: res})
	}

	var errs []error
	for _, r := range reports {
		if n == nil {
			break
		}
		if err := n.Notify(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// report sends r, when n is set, and returns r.Err along with any failure to
// send it.
func report(ctx context.Context, n notify.Notifier, r notify.Report) error {
	if n == nil {
		return r.Err
	}
	// ctx may be the reason r.Err happened.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if err := n.Notify(nctx, r); err != nil {
		return errors.Join(r.Err, fmt.Errorf("mailing error report: %w", err))
	}
	return r.Err
}

// fetchAll fetches the lists of every day, each in its own session. Lists of
// days that could be fetched are returned even when another day fails.
func fetchAll(ctx context.Context, cfg config.Config, serviceAddr string, days []time.Time) ([][]causelist.Entry, error) {
	opts, err := cfg.SessionOptions(serviceAddr)
	if err != nil {
		return make([][]causelist.Entry, len(days)), err
	}
	opts = append(opts, session.WithCapabilities(loggingCapabilities()))

	results := make([][]causelist.Entry, len(days))
	var g errgroup.Group
	g.SetLimit(cfg.Parallel)
	for i, day := range days {
		g.Go(func() error {
			err := session.Run(ctx, func(ctx context.Context, wd webdriver.WebDriver) error {
				logDriverVersion(wd)
				entries, err := causelist.Fetch(ctx, wd, cfg.Query(day))
				results[i] = entries
				return err
			}, opts...)
			if err != nil {
				return fmt.Errorf("%s: %w", day.Format(causelist.DateLayout), err)
			}
			glog.Infof("%s: %d cause lists", day.Format(causelist.DateLayout), len(results[i]))
			return nil
		})
	}
	return results, g.Wait()
}

// loggingCapabilities asks the driver to keep browser console warnings, which
// causelist.Fetch logs when a fetch fails.
func loggingCapabilities() webdriver.Capabilities {
	caps := webdriver.Capabilities{}
	caps.SetLogLevel(log.Browser, log.Warning)
	return caps
}

func logDriverVersion(wd webdriver.WebDriver) {
	if !glog.V(1) {
		return
	}
	status, err := wd.Status()
	if err != nil {
		glog.Infof("session %s: reading driver status: %v", wd.SessionID(), err)
		return
	}
	v, err := status.DriverVersion()
	if err != nil {
		glog.Infof("session %s: %v", wd.SessionID(), err)
		return
	}
	glog.Infof("session %s: driver version %s on %s", wd.SessionID(), v, status.OS.Name)
}
