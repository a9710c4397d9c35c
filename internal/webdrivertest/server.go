// Package webdrivertest provides an in-process fake WebDriver server so that
// clients of package webdriver can be exercised without a browser.
package webdrivertest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Element is a locatable element on a fake Page.
type Element struct {
	// By and Value form the locator that finds this element, e.g. "name" and
	// "t_f_date".
	By, Value string
	// ID is the element reference handed to the client. It defaults to
	// By + "=" + Value.
	ID string
	// Text is returned by the element text command.
	Text string
	// Attributes are returned by the element attribute command.
	Attributes map[string]string
	// Navigate, if set, is the URL loaded when the element is clicked.
	Navigate string
}

func (e Element) id() string {
	if e.ID != "" {
		return e.ID
	}
	return e.By + "=" + e.Value
}

// Page is what the fake browser shows after navigating to a URL.
type Page struct {
	Title    string
	Source   string
	Elements []Element
	// Delay holds back the title, source and URL commands while this page is
	// loaded, like a page that never finishes rendering.
	Delay time.Duration
}

// LogEntry is returned by the log command.
type LogEntry struct {
	Timestamp int64  `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

type session struct {
	url string
}

// Server is a fake WebDriver endpoint. Its URL field is the prefix to pass to
// webdriver.NewRemote.
type Server struct {
	*httptest.Server

	// Legacy makes the server reply in the JSON wire protocol format instead
	// of the W3C one.
	Legacy bool

	mu             sync.Mutex
	pages          map[string]Page
	sessions       map[string]*session
	nextID         int
	created, quits int
	failNewSession string
	capabilities   []map[string]interface{}
	typed          map[string]string
	clicks         []string
	logs           []LogEntry
}

// NewServer starts a fake server that serves the given pages, keyed by URL.
// Close it when done.
func NewServer(pages map[string]Page) *Server {
	s := &Server{
		pages:    pages,
		sessions: make(map[string]*session),
		typed:    make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.status)
	mux.HandleFunc("POST /session", s.newSession)
	mux.HandleFunc("DELETE /session/{id}", s.withSession(s.deleteSession))
	mux.HandleFunc("POST /session/{id}/url", s.withSession(s.navigate))
	mux.HandleFunc("GET /session/{id}/url", s.delayed(s.withSession(s.currentURL)))
	mux.HandleFunc("GET /session/{id}/title", s.delayed(s.withSession(s.title)))
	mux.HandleFunc("GET /session/{id}/source", s.delayed(s.withSession(s.source)))
	mux.HandleFunc("POST /session/{id}/timeouts", s.withSession(s.empty))
	mux.HandleFunc("POST /session/{id}/element", s.withSession(s.findElement))
	mux.HandleFunc("POST /session/{id}/elements", s.withSession(s.findElements))
	mux.HandleFunc("POST /session/{id}/element/{eid}/value", s.withSession(s.sendKeys))
	mux.HandleFunc("POST /session/{id}/element/{eid}/click", s.withSession(s.click))
	mux.HandleFunc("GET /session/{id}/element/{eid}/text", s.withSession(s.text))
	mux.HandleFunc("GET /session/{id}/element/{eid}/attribute/{name}", s.withSession(s.attribute))
	mux.HandleFunc("GET /session/{id}/screenshot", s.withSession(s.screenshot))
	mux.HandleFunc("POST /session/{id}/log", s.withSession(s.log))
	s.Server = httptest.NewServer(mux)
	return s
}

// FailNewSession makes every following session request fail with the given
// message.
func (s *Server) FailNewSession(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNewSession = message
}

// SetLogs sets the entries returned by the log command.
func (s *Server) SetLogs(entries []LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = entries
}

// Created returns the number of sessions created so far.
func (s *Server) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Quits returns the number of sessions deleted so far.
func (s *Server) Quits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quits
}

// Open returns the number of sessions not yet deleted.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Typed returns everything typed into the element with the given ID.
func (s *Server) Typed(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typed[id]
}

// Clicks returns the IDs of clicked elements, in order.
func (s *Server) Clicks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.clicks...)
}

// Capabilities returns the desired capabilities of every session request.
func (s *Server) Capabilities() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.capabilities...)
}

type handler func(w http.ResponseWriter, r *http.Request, sess *session)

func (s *Server) withSession(h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		sess, ok := s.sessions[r.PathValue("id")]
		if !ok {
			s.fail(w, http.StatusNotFound, "invalid session id", 6, "session "+r.PathValue("id")+" does not exist")
			return
		}
		h(w, r, sess)
	}
}

// delayed waits out the Delay of the session's current page before running
// next. The lock is not held while waiting, so other commands of the session,
// Quit included, are served meanwhile.
func (s *Server) delayed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		var d time.Duration
		if sess, ok := s.sessions[r.PathValue("id")]; ok {
			d = s.pages[sess.url].Delay
		}
		s.mu.Unlock()

		if d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-t.C:
			case <-r.Context().Done():
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) reply(w http.ResponseWriter, value interface{}) {
	body := map[string]interface{}{"value": value}
	if s.Legacy {
		body["status"] = 0
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(body)
}

func (s *Server) fail(w http.ResponseWriter, code int, errName string, legacyStatus int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if s.Legacy {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": legacyStatus,
			"value":  map[string]string{"message": message},
		})
		return
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"value": map[string]string{
			"error":      errName,
			"message":    message,
			"stacktrace": "",
		},
	})
}

func (s *Server) elementRef(id string) map[string]string {
	if s.Legacy {
		return map[string]string{"ELEMENT": id}
	}
	return map[string]string{"element-6066-11e4-a52e-4f735466cecf": id}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	s.reply(w, map[string]interface{}{
		"ready":   true,
		"message": "fake driver ready",
		"build":   map[string]string{"version": "114.0.5735.90 (fake-refs/branch-heads/5735@{#1052})"},
		"os":      map[string]string{"name": "Linux"},
	})
}

func (s *Server) newSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DesiredCapabilities map[string]interface{} `json:"desiredCapabilities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid argument", 13, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities = append(s.capabilities, body.DesiredCapabilities)
	if s.failNewSession != "" {
		s.fail(w, http.StatusInternalServerError, "session not created", 33, s.failNewSession)
		return
	}

	s.nextID++
	s.created++
	id := fmt.Sprintf("session-%d", s.nextID)
	s.sessions[id] = &session{url: "about:blank"}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if s.Legacy {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sessionId": id,
			"status":    0,
			"value":     body.DesiredCapabilities,
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"value": map[string]interface{}{
			"sessionId":    id,
			"capabilities": body.DesiredCapabilities,
		},
	})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request, _ *session) {
	delete(s.sessions, r.PathValue("id"))
	s.quits++
	s.reply(w, nil)
}

func (s *Server) empty(w http.ResponseWriter, r *http.Request, _ *session) {
	s.reply(w, nil)
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request, sess *session) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid argument", 13, err.Error())
		return
	}
	if _, ok := s.pages[body.URL]; !ok {
		s.fail(w, http.StatusInternalServerError, "unknown error", 13, "net::ERR_NAME_NOT_RESOLVED loading "+body.URL)
		return
	}
	sess.url = body.URL
	s.reply(w, nil)
}

func (s *Server) currentURL(w http.ResponseWriter, r *http.Request, sess *session) {
	s.reply(w, sess.url)
}

func (s *Server) title(w http.ResponseWriter, r *http.Request, sess *session) {
	s.reply(w, s.pages[sess.url].Title)
}

func (s *Server) source(w http.ResponseWriter, r *http.Request, sess *session) {
	s.reply(w, s.pages[sess.url].Source)
}

func (s *Server) lookup(sess *session, by, value string) []Element {
	var found []Element
	for _, e := range s.pages[sess.url].Elements {
		if e.By == by && e.Value == value {
			found = append(found, e)
		}
	}
	return found
}

func (s *Server) element(sess *session, id string) (Element, bool) {
	for _, e := range s.pages[sess.url].Elements {
		if e.id() == id {
			return e, true
		}
	}
	return Element{}, false
}

type locator struct {
	Using string `json:"using"`
	Value string `json:"value"`
}

func (s *Server) findElement(w http.ResponseWriter, r *http.Request, sess *session) {
	var l locator
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid argument", 13, err.Error())
		return
	}
	found := s.lookup(sess, l.Using, l.Value)
	if len(found) == 0 {
		s.fail(w, http.StatusNotFound, "no such element", 7,
			fmt.Sprintf("no such element: Unable to locate element: {%q:%q}", l.Using, l.Value))
		return
	}
	s.reply(w, s.elementRef(found[0].id()))
}

func (s *Server) findElements(w http.ResponseWriter, r *http.Request, sess *session) {
	var l locator
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid argument", 13, err.Error())
		return
	}
	refs := []map[string]string{}
	for _, e := range s.lookup(sess, l.Using, l.Value) {
		refs = append(refs, s.elementRef(e.id()))
	}
	s.reply(w, refs)
}

func (s *Server) withElement(w http.ResponseWriter, r *http.Request, sess *session) (Element, bool) {
	e, ok := s.element(sess, r.PathValue("eid"))
	if !ok {
		s.fail(w, http.StatusNotFound, "stale element reference", 10, "element "+r.PathValue("eid")+" is not attached to the page document")
	}
	return e, ok
}

func (s *Server) sendKeys(w http.ResponseWriter, r *http.Request, sess *session) {
	e, ok := s.withElement(w, r, sess)
	if !ok {
		return
	}
	var body struct {
		Text  string   `json:"text"`
		Value []string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid argument", 13, err.Error())
		return
	}
	text := body.Text
	if s.Legacy {
		text = ""
		for _, v := range body.Value {
			text += v
		}
	}
	s.typed[e.id()] += text
	s.reply(w, nil)
}

func (s *Server) click(w http.ResponseWriter, r *http.Request, sess *session) {
	e, ok := s.withElement(w, r, sess)
	if !ok {
		return
	}
	s.clicks = append(s.clicks, e.id())
	if e.Navigate != "" {
		sess.url = e.Navigate
	}
	s.reply(w, nil)
}

func (s *Server) text(w http.ResponseWriter, r *http.Request, sess *session) {
	if e, ok := s.withElement(w, r, sess); ok {
		s.reply(w, e.Text)
	}
}

func (s *Server) attribute(w http.ResponseWriter, r *http.Request, sess *session) {
	e, ok := s.withElement(w, r, sess)
	if !ok {
		return
	}
	if v, ok := e.Attributes[r.PathValue("name")]; ok {
		s.reply(w, v)
		return
	}
	s.reply(w, nil)
}

// ScreenshotPNG is the payload of every screenshot.
var ScreenshotPNG = []byte("\x89PNG\r\n\x1a\nfake")

func (s *Server) screenshot(w http.ResponseWriter, r *http.Request, _ *session) {
	s.reply(w, base64.StdEncoding.EncodeToString(ScreenshotPNG))
}

func (s *Server) log(w http.ResponseWriter, r *http.Request, _ *session) {
	entries := s.logs
	if entries == nil {
		entries = []LogEntry{}
	}
	s.reply(w, entries)
}
