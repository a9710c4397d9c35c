package causelist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
)

const (
	// SearchWorkers is the default number of PDFs searched at once.
	SearchWorkers = 4

	// maxPDFSize bounds a single download.
	maxPDFSize = 64 << 20
	// contextLines is how many lines around a hit go into Match.Context.
	contextLines = 2
	maxContext   = 10
)

// NormalizeTerms trims every term and drops the empty ones. It fails when no
// term is left.
func NormalizeTerms(terms []string) ([]string, error) {
	var out []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("causelist: no search terms")
	}
	return out, nil
}

// Match is one term found on one page of a cause list.
type Match struct {
	Entry Entry
	Term  string
	// Page is 1-based.
	Page int
	// Context holds the lines around the hits, lower-cased.
	Context string
}

// Result is the outcome of a search over the lists of one date.
type Result struct {
	Terms   []string
	Matches []Match
	// Searched counts the lists that were read.
	Searched int
	// Failed lists the entries whose PDF could not be downloaded or read.
	Failed []Entry
}

// Searcher downloads cause-list PDFs and looks for terms in their text.
type Searcher struct {
	// Client fetches the PDFs. nil means http.DefaultClient.
	Client *http.Client
	// Workers bounds the concurrent downloads. Zero means SearchWorkers.
	Workers int
}

// Search runs a default Searcher.
func Search(ctx context.Context, entries []Entry, terms []string) (*Result, error) {
	return (&Searcher{}).Search(ctx, entries, terms)
}

// Search looks for every term, ignoring case, on every page of every entry's
// PDF. A list that cannot be downloaded or parsed is logged and recorded in
// Result.Failed; only ctx ends the search early. Matches come in the order of
// entries, then pages, then terms.
func (s *Searcher) Search(ctx context.Context, entries []Entry, terms []string) (*Result, error) {
	terms, err := NormalizeTerms(terms)
	if err != nil {
		return nil, err
	}
	workers := s.Workers
	if workers <= 0 {
		workers = SearchWorkers
	}

	perEntry := make([][]Match, len(entries))
	failed := make([]bool, len(entries))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, e := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pages, err := s.pageTexts(ctx, e.URL)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				glog.Warningf("searching %s (%s): %v", e.Name, e.URL, err)
				failed[i] = true
				return nil
			}
			perEntry[i] = searchPages(e, pages, terms)
			if n := len(perEntry[i]); n > 0 {
				glog.Infof("%d matches in %s", n, e.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Terms: terms}
	for i, e := range entries {
		if failed[i] {
			res.Failed = append(res.Failed, e)
			continue
		}
		res.Searched++
		res.Matches = append(res.Matches, perEntry[i]...)
	}
	return res, nil
}

func (s *Searcher) client() *http.Client {
	if s.Client == nil {
		return http.DefaultClient
	}
	return s.Client
}

// pageTexts downloads the PDF at u and returns the lower-cased text of each
// page.
func (s *Searcher) pageTexts(ctx context.Context, u string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxPDFSize {
		return nil, fmt.Errorf("PDF larger than %d bytes", maxPDFSize)
	}
	return readPages(data)
}

// readPages extracts the text of each page of a PDF.
func readPages(data []byte) (pages []string, err error) {
	// The pdf package panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("reading PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading PDF: %w", err)
	}
	n := r.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages[i-1] = strings.ToLower(text)
	}
	return pages, nil
}

func searchPages(e Entry, pages []string, terms []string) []Match {
	var matches []Match
	for i, text := range pages {
		for _, term := range terms {
			t := strings.ToLower(term)
			if !strings.Contains(text, t) {
				continue
			}
			matches = append(matches, Match{
				Entry:   e,
				Term:    term,
				Page:    i + 1,
				Context: matchContext(text, t),
			})
		}
	}
	return matches
}

// matchContext returns the lines within contextLines of each line holding t.
func matchContext(text, t string) string {
	lines := strings.Split(text, "\n")
	var out []string
	for i, l := range lines {
		if !strings.Contains(l, t) {
			continue
		}
		lo, hi := max(0, i-contextLines), min(len(lines), i+contextLines+1)
		out = append(out, lines[lo:hi]...)
	}
	if len(out) > maxContext {
		out = out[:maxContext]
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
