// Remote WebDriver client implementation.
// See https://www.w3.org/TR/webdriver for the protocol.

package webdriver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wanmail/webdriver/log"
)

const (
	// DefaultURLPrefix is the default HTTP endpoint that offers the WebDriver
	// API.
	DefaultURLPrefix = "http://127.0.0.1:4444/wd/hub"
	// JSONType is JSON content type.
	JSONType = "application/json"
	// MaxRedirects is the maximum number of redirects to follow.
	MaxRedirects = 10
	// QuitTimeout bounds the request that ends a session. It does not depend on
	// the session's context, so a session whose context has expired can still
	// be quit.
	QuitTimeout = 30 * time.Second

	// webElementIdentifier is the key under which W3C servers return element
	// references.
	webElementIdentifier = "element-6066-11e4-a52e-4f735466cecf"
	// legacyWebElementIdentifier is the JSON wire protocol equivalent.
	legacyWebElementIdentifier = "ELEMENT"
)

var httpClient *http.Client

func init() {
	// http.Client doesn't copy request headers on redirect, and the drivers
	// require them.
	httpClient = &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > MaxRedirects {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}
			req.Header.Add("Accept", JSONType)
			return nil
		},
	}
}

type remoteWD struct {
	// ctx bounds every command except Quit.
	ctx           context.Context
	id, urlPrefix string
	capabilities  Capabilities
}

// NewRemote creates new remote client, this will also start a new session.
// capabilities provides the desired capabilities. urlPrefix is the URL to the
// WebDriver server, e.g. "http://127.0.0.1:9515" for a bare ChromeDriver, and
// must be prefixed with the protocol. An empty string means DefaultURLPrefix.
func NewRemote(capabilities Capabilities, urlPrefix string) (WebDriver, error) {
	return NewRemoteContext(context.Background(), capabilities, urlPrefix)
}

// NewRemoteContext is like NewRemote but the session is bound to ctx: once
// ctx is done, pending and later commands fail with its error. Quit is the
// exception and always gets QuitTimeout to complete.
func NewRemoteContext(ctx context.Context, capabilities Capabilities, urlPrefix string) (WebDriver, error) {
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	if capabilities == nil {
		capabilities = Capabilities{}
	}

	wd := &remoteWD{
		ctx:          ctx,
		urlPrefix:    strings.TrimSuffix(urlPrefix, "/"),
		capabilities: capabilities,
	}
	if _, err := wd.newSession(ctx); err != nil {
		return nil, err
	}
	return wd, nil
}

func (wd *remoteWD) requestURL(template string, args ...interface{}) string {
	return wd.urlPrefix + fmt.Sprintf(template, args...)
}

type serverReply struct {
	SessionID *string // SessionID is only set by JSON wire protocol servers.
	Status    int
	Value     json.RawMessage
}

func isMimeType(response *http.Response, mtype string) bool {
	return strings.HasPrefix(response.Header.Get("Content-Type"), mtype)
}

func cleanNils(buf []byte) {
	for i, b := range buf {
		if b == 0 {
			buf[i] = ' '
		}
	}
}

// replyError builds an *Error from a reply whose HTTP status or legacy status
// indicates failure.
func replyError(response *http.Response, reply *serverReply) error {
	e := new(Error)
	if len(reply.Value) > 0 {
		// The value of legacy errors is often just {"message": ...}.
		json.Unmarshal(reply.Value, e)
	}
	e.HTTPCode = response.StatusCode
	e.LegacyCode = reply.Status
	if e.Err == "" {
		if msg, ok := remoteErrors[reply.Status]; ok {
			e.Err = msg
		} else if reply.Status != 0 {
			e.Err = fmt.Sprintf("unknown error - %d", reply.Status)
		} else {
			e.Err = "unknown error"
		}
	}
	return e
}

func (wd *remoteWD) execute(ctx context.Context, method, url string, data []byte) ([]byte, error) {
	debugLog("-> %s %s\n%s", method, url, data)
	request, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	request.Header.Add("Accept", JSONType)
	if data != nil {
		request.Header.Set("Content-Type", JSONType+"; charset=utf-8")
	}

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	buf, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading reply to %s %s: %v (HTTP status %s)", method, url, err, response.Status)
	}
	if debugFlag {
		var prettyBuf bytes.Buffer
		if err := json.Indent(&prettyBuf, buf, "", "    "); err == nil && prettyBuf.Len() > 0 {
			debugLog("<- %s [%s]\n%s", response.Status, response.Header.Get("Content-Type"), prettyBuf.Bytes())
		} else {
			debugLog("<- %s [%s]\n%s", response.Status, response.Header.Get("Content-Type"), buf)
		}
	}

	cleanNils(buf)
	if response.StatusCode >= 400 {
		reply := new(serverReply)
		if err := json.Unmarshal(buf, reply); err != nil {
			return nil, fmt.Errorf("bad server reply status: %s", response.Status)
		}
		return nil, replyError(response, reply)
	}

	if isMimeType(response, JSONType) {
		reply := new(serverReply)
		if err := json.Unmarshal(buf, reply); err != nil {
			return nil, err
		}
		if reply.Status != 0 {
			return nil, replyError(response, reply)
		}
	}

	// Nothing was returned, this is OK for some commands.
	return buf, nil
}

func (wd *remoteWD) newSession(ctx context.Context) (string, error) {
	data, err := json.Marshal(map[string]interface{}{
		"desiredCapabilities": wd.capabilities,
		"capabilities": map[string]interface{}{
			"alwaysMatch": wd.capabilities,
		},
	})
	if err != nil {
		return "", err
	}

	response, err := wd.execute(ctx, "POST", wd.requestURL("/session"), data)
	if err != nil {
		return "", err
	}

	reply := new(serverReply)
	if err := json.Unmarshal(response, reply); err != nil {
		return "", err
	}
	if reply.SessionID != nil && *reply.SessionID != "" {
		wd.id = *reply.SessionID
		return wd.id, nil
	}

	value := new(struct {
		SessionID string
	})
	if err := json.Unmarshal(reply.Value, value); err != nil {
		return "", fmt.Errorf("decoding new session reply: %v", err)
	}
	if value.SessionID == "" {
		return "", fmt.Errorf("new session reply carries no session ID: %s", response)
	}
	wd.id = value.SessionID
	return wd.id, nil
}

func (wd *remoteWD) get(urlTemplate string, args ...interface{}) ([]byte, error) {
	return wd.execute(wd.ctx, "GET", wd.requestURL(urlTemplate, args...), nil)
}

func (wd *remoteWD) post(params interface{}, urlTemplate string, args ...interface{}) ([]byte, error) {
	data := []byte("{}")
	if params != nil {
		var err error
		if data, err = json.Marshal(params); err != nil {
			return nil, err
		}
	}
	return wd.execute(wd.ctx, "POST", wd.requestURL(urlTemplate, args...), data)
}

func decodeValue(response []byte, v interface{}) error {
	reply := new(struct{ Value json.RawMessage })
	if err := json.Unmarshal(response, reply); err != nil {
		return err
	}
	if len(reply.Value) == 0 {
		return fmt.Errorf("reply has no value")
	}
	return json.Unmarshal(reply.Value, v)
}

func (wd *remoteWD) stringCommand(urlTemplate string, args ...interface{}) (string, error) {
	response, err := wd.get(urlTemplate, args...)
	if err != nil {
		return "", err
	}

	var value *string
	if err := decodeValue(response, &value); err != nil {
		return "", err
	}
	if value == nil {
		return "", fmt.Errorf("nil return value")
	}
	return *value, nil
}

func (wd *remoteWD) voidCommand(params interface{}, urlTemplate string, args ...interface{}) error {
	_, err := wd.post(params, urlTemplate, args...)
	return err
}

func (wd *remoteWD) Status() (*Status, error) {
	response, err := wd.get("/status")
	if err != nil {
		return nil, err
	}

	status := new(Status)
	if err := decodeValue(response, status); err != nil {
		return nil, err
	}
	return status, nil
}

// SessionID returns the current session ID.
func (wd *remoteWD) SessionID() string {
	return wd.id
}

func (wd *remoteWD) SetImplicitWaitTimeout(timeout time.Duration) error {
	return wd.voidCommand(map[string]uint{
		"implicit": uint(timeout / time.Millisecond),
	}, "/session/%s/timeouts", wd.id)
}

func (wd *remoteWD) SetPageLoadTimeout(timeout time.Duration) error {
	return wd.voidCommand(map[string]uint{
		"pageLoad": uint(timeout / time.Millisecond),
	}, "/session/%s/timeouts", wd.id)
}

func (wd *remoteWD) Quit() error {
	if wd.id == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(wd.ctx), QuitTimeout)
	defer cancel()
	_, err := wd.execute(ctx, "DELETE", wd.requestURL("/session/%s", wd.id), nil)
	if err == nil {
		wd.id = ""
	}
	return err
}

func (wd *remoteWD) Get(url string) error {
	return wd.voidCommand(map[string]string{
		"url": url,
	}, "/session/%s/url", wd.id)
}

func (wd *remoteWD) CurrentURL() (string, error) {
	return wd.stringCommand("/session/%s/url", wd.id)
}

func (wd *remoteWD) Title() (string, error) {
	return wd.stringCommand("/session/%s/title", wd.id)
}

func (wd *remoteWD) PageSource() (string, error) {
	return wd.stringCommand("/session/%s/source", wd.id)
}

func (wd *remoteWD) find(by, value, suffix, urlTemplate string, args ...interface{}) ([]byte, error) {
	return wd.post(map[string]string{
		"using": by,
		"value": value,
	}, urlTemplate+suffix, args...)
}

func elementID(v map[string]string) (string, error) {
	if id, ok := v[webElementIdentifier]; ok {
		return id, nil
	}
	if id, ok := v[legacyWebElementIdentifier]; ok {
		return id, nil
	}
	return "", fmt.Errorf("invalid element returned: %+v", v)
}

func (wd *remoteWD) decodeElement(data []byte) (WebElement, error) {
	var value map[string]string
	if err := decodeValue(data, &value); err != nil {
		return nil, err
	}
	id, err := elementID(value)
	if err != nil {
		return nil, err
	}
	return &remoteWE{parent: wd, id: id}, nil
}

func (wd *remoteWD) decodeElements(data []byte) ([]WebElement, error) {
	var values []map[string]string
	if err := decodeValue(data, &values); err != nil {
		return nil, err
	}

	elems := make([]WebElement, len(values))
	for i, v := range values {
		id, err := elementID(v)
		if err != nil {
			return nil, err
		}
		elems[i] = &remoteWE{parent: wd, id: id}
	}
	return elems, nil
}

func (wd *remoteWD) FindElement(by, value string) (WebElement, error) {
	response, err := wd.find(by, value, "", "/session/%s/element", wd.id)
	if err != nil {
		return nil, err
	}
	return wd.decodeElement(response)
}

func (wd *remoteWD) FindElements(by, value string) ([]WebElement, error) {
	response, err := wd.find(by, value, "s", "/session/%s/element", wd.id)
	if err != nil {
		return nil, err
	}
	return wd.decodeElements(response)
}

func (wd *remoteWD) Screenshot() ([]byte, error) {
	data, err := wd.stringCommand("/session/%s/screenshot", wd.id)
	if err != nil {
		return nil, err
	}
	// The image is returned base64 encoded.
	return base64.StdEncoding.DecodeString(data)
}

func (wd *remoteWD) Log(typ log.Type) ([]log.Message, error) {
	response, err := wd.post(map[string]log.Type{
		"type": typ,
	}, "/session/%s/log", wd.id)
	if err != nil {
		return nil, err
	}

	var entries []struct {
		Timestamp int64
		Level     string
		Message   string
	}
	if err := decodeValue(response, &entries); err != nil {
		return nil, err
	}

	msgs := make([]log.Message, len(entries))
	for i, e := range entries {
		msgs[i] = log.Message{
			Timestamp: time.Unix(0, e.Timestamp*int64(time.Millisecond)),
			Level:     log.Level(e.Level),
			Message:   e.Message,
		}
	}
	return msgs, nil
}

type remoteWE struct {
	parent *remoteWD
	id     string
}

func (elem *remoteWE) Click() error {
	wd := elem.parent
	return wd.voidCommand(nil, "/session/%s/element/%s/click", wd.id, elem.id)
}

func (elem *remoteWE) SendKeys(keys string) error {
	wd := elem.parent
	return wd.voidCommand(processKeyString(keys), "/session/%s/element/%s/value", wd.id, elem.id)
}

// processKeyString builds a body understood by both W3C servers ("text") and
// JSON wire protocol servers ("value").
func processKeyString(keys string) interface{} {
	chars := make([]string, 0, len(keys))
	for _, c := range keys {
		chars = append(chars, string(c))
	}
	return map[string]interface{}{
		"text":  keys,
		"value": chars,
	}
}

func (elem *remoteWE) FindElement(by, value string) (WebElement, error) {
	wd := elem.parent
	response, err := wd.find(by, value, "", "/session/%s/element/%s/element", wd.id, elem.id)
	if err != nil {
		return nil, err
	}
	return wd.decodeElement(response)
}

func (elem *remoteWE) FindElements(by, value string) ([]WebElement, error) {
	wd := elem.parent
	response, err := wd.find(by, value, "s", "/session/%s/element/%s/element", wd.id, elem.id)
	if err != nil {
		return nil, err
	}
	return wd.decodeElements(response)
}

func (elem *remoteWE) Text() (string, error) {
	wd := elem.parent
	return wd.stringCommand("/session/%s/element/%s/text", wd.id, elem.id)
}

func (elem *remoteWE) GetAttribute(name string) (string, error) {
	wd := elem.parent
	return wd.stringCommand("/session/%s/element/%s/attribute/%s", wd.id, elem.id, name)
}
