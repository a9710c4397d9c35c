// Package causelist drives the Punjab & Haryana High Court cause-list form and
// reads the lists it publishes for a date.
package causelist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/golang/glog"

	"github.com/wanmail/webdriver"
	"github.com/wanmail/webdriver/log"
	"github.com/wanmail/webdriver/session"
)

const (
	// DefaultFormURL is the page holding the cause-list date form.
	DefaultFormURL = "https://highcourtchd.gov.in/clc.php"
	// DateField is the name of the date input.
	DateField = "t_f_date"
	// SubmitButton is the name of the button that submits the form.
	SubmitButton = "button"
	// DateLayout is the format the form expects, e.g. "21/03/2022".
	DateLayout = "02/01/2006"

	tableSelector = "table#tables11"
)

// ParseDate parses a date written in DateLayout.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// Query selects the cause lists to fetch.
type Query struct {
	Date time.Time
	// FormURL overrides DefaultFormURL.
	FormURL string
	// Wait bounds how long Fetch waits for the results table after
	// submitting. Zero means 10 seconds.
	Wait time.Duration
}

// Validate reports whether q can be submitted.
func (q Query) Validate() error {
	if q.Date.IsZero() {
		return errors.New("causelist: no date")
	}
	if q.FormURL != "" {
		u, err := url.ParseRequestURI(q.FormURL)
		if err != nil {
			return fmt.Errorf("causelist: bad form URL: %v", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("causelist: form URL %q is not absolute", q.FormURL)
		}
	}
	return nil
}

func (q Query) formURL() string {
	if q.FormURL == "" {
		return DefaultFormURL
	}
	return q.FormURL
}

func (q Query) wait() time.Duration {
	if q.Wait == 0 {
		return 10 * time.Second
	}
	return q.Wait
}

// Entry is one published cause list.
type Entry struct {
	// Name is "ListType | MainSup".
	Name     string
	ListType string
	MainSup  string
	// URL is the absolute address of the list's PDF.
	URL string
}

// Submit returns an action that opens the form, types the query's date and
// clicks the submit button.
func Submit(q Query) session.Action {
	return func(ctx context.Context, wd webdriver.WebDriver) error {
		if err := q.Validate(); err != nil {
			return err
		}
		if err := wd.Get(q.formURL()); err != nil {
			return fmt.Errorf("opening %s: %w", q.formURL(), err)
		}
		field, err := wd.FindElement(webdriver.ByName, DateField)
		if err != nil {
			return fmt.Errorf("finding %s: %w", DateField, err)
		}
		if err := field.SendKeys(q.Date.Format(DateLayout)); err != nil {
			return fmt.Errorf("typing date: %w", err)
		}
		btn, err := wd.FindElement(webdriver.ByName, SubmitButton)
		if err != nil {
			return fmt.Errorf("finding %s: %w", SubmitButton, err)
		}
		if err := btn.Click(); err != nil {
			return fmt.Errorf("submitting form: %w", err)
		}
		return nil
	}
}

// Fetch submits the form for q and parses the cause lists on the resulting
// page.
func Fetch(ctx context.Context, wd webdriver.WebDriver, q Query) ([]Entry, error) {
	entries, err := fetch(ctx, wd, q)
	if err != nil {
		logBrowserErrors(wd)
	}
	return entries, err
}

func fetch(ctx context.Context, wd webdriver.WebDriver, q Query) ([]Entry, error) {
	if err := Submit(q)(ctx, wd); err != nil {
		return nil, err
	}
	if err := waitForTable(ctx, wd, q.wait()); err != nil {
		return nil, err
	}

	src, err := wd.PageSource()
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	current, err := wd.CurrentURL()
	if err != nil {
		return nil, fmt.Errorf("reading results URL: %w", err)
	}
	base, err := url.Parse(current)
	if err != nil {
		return nil, fmt.Errorf("parsing results URL %q: %v", current, err)
	}
	return ParseTable(strings.NewReader(src), base)
}

var pollInterval = 250 * time.Millisecond

// waitForTable polls until the results table is present.
func waitForTable(ctx context.Context, wd webdriver.WebDriver, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		elems, err := wd.FindElements(webdriver.ByCSSSelector, tableSelector)
		if err != nil {
			return fmt.Errorf("looking for %s: %w", tableSelector, err)
		}
		if len(elems) > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", tableSelector, ctx.Err())
		case <-ticker.C:
		}
	}
}

// logBrowserErrors logs severe browser console entries. Not every driver
// supports the log command, so failures are only logged at V(1).
func logBrowserErrors(wd webdriver.WebDriver) {
	msgs, err := wd.Log(log.Browser)
	if err != nil {
		glog.V(1).Infof("session %s: fetching browser log: %v", wd.SessionID(), err)
		return
	}
	for _, m := range msgs {
		if m.Level.AtLeast(log.Warning) {
			glog.Warningf("session %s: browser: %s", wd.SessionID(), m)
		}
	}
}

// ParseTable extracts the cause lists from a results page. The first two rows
// of the table are headers. Each list row has three cells: a link whose
// onclick handler holds the PDF path in single quotes, the list type, and
// whether the list is a main or supplementary one.
func ParseTable(r io.Reader, base *url.URL) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing results page: %v", err)
	}

	var entries []Entry
	doc.Find(tableSelector + " tr").Each(func(i int, row *goquery.Selection) {
		if i < 2 {
			return
		}
		cells := row.Find("td")
		if cells.Length() != 3 {
			return
		}
		link := cells.Eq(0).Find("a[href]").First()
		if link.Length() == 0 {
			return
		}
		onclick, _ := link.Attr("onclick")
		parts := strings.Split(onclick, "'")
		if len(parts) < 2 {
			return
		}
		ref, err := url.Parse(parts[1])
		if err != nil {
			glog.V(1).Infof("skipping cause list with bad link %q: %v", parts[1], err)
			return
		}
		e := Entry{
			ListType: strings.TrimSpace(cells.Eq(1).Text()),
			MainSup:  strings.TrimSpace(cells.Eq(2).Text()),
			URL:      ref.String(),
		}
		if base != nil {
			e.URL = base.ResolveReference(ref).String()
		}
		e.Name = e.ListType + " | " + e.MainSup
		entries = append(entries, e)
	})
	return entries, nil
}
