// Package notify mails the outcome of a cause-list search.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/wneessen/go-mail"

	"github.com/wanmail/webdriver/causelist"
)

// Report is the outcome of one run. Err is set when the run failed, otherwise
// Result holds the search over the lists of Date.
type Report struct {
	Date   time.Time
	Result *causelist.Result
	Err    error
}

// Notifier delivers reports.
type Notifier interface {
	Notify(ctx context.Context, r Report) error
}

// Config describes the SMTP account reports are sent from.
type Config struct {
	Server     string `yaml:"smtp_server"`
	Port       int    `yaml:"smtp_port"`
	Sender     string `yaml:"sender"`
	SenderName string `yaml:"sender_name"`
	// Password falls back to the SENDER_PASSWORD environment variable. No
	// password means no authentication.
	Password   string   `yaml:"password"`
	Recipients []string `yaml:"recipients"`
	// TLS is "mandatory", "opportunistic" or "none". Empty means mandatory.
	TLS string `yaml:"tls"`
}

// DefaultConfig returns the settings used for fields a file leaves out.
func DefaultConfig() Config {
	return Config{
		Server:     "smtp.gmail.com",
		Port:       587,
		SenderName: "Cause List Checker",
	}
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	if c.Server == "" {
		return errors.New("notify: smtp_server is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("notify: bad smtp_port %d", c.Port)
	}
	if c.Sender == "" {
		return errors.New("notify: sender is required")
	}
	if len(c.Recipients) == 0 {
		return errors.New("notify: no recipients")
	}
	if _, err := c.tlsPolicy(); err != nil {
		return err
	}
	return nil
}

func (c Config) tlsPolicy() (mail.TLSPolicy, error) {
	switch c.TLS {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	}
	return 0, fmt.Errorf("notify: unknown tls policy %q", c.TLS)
}

func (c Config) password() string {
	if c.Password != "" {
		return c.Password
	}
	return os.Getenv("SENDER_PASSWORD")
}

// Mailer is a Notifier sending HTML mail over SMTP.
type Mailer struct {
	cfg Config
	// now is replaced in tests.
	now func() time.Time
}

// NewMailer checks cfg and returns a Mailer for it.
func NewMailer(cfg Config) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Mailer{cfg: cfg, now: time.Now}, nil
}

// Notify implements Notifier.
func (m *Mailer) Notify(ctx context.Context, r Report) error {
	subject, body, err := Compose(r, m.now())
	if err != nil {
		return err
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(m.cfg.SenderName, m.cfg.Sender); err != nil {
		return fmt.Errorf("notify: sender: %w", err)
	}
	if err := msg.To(m.cfg.Recipients...); err != nil {
		return fmt.Errorf("notify: recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextHTML, body)

	policy, err := m.cfg.tlsPolicy()
	if err != nil {
		return err
	}
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(30 * time.Second),
	}
	if pw := m.cfg.password(); pw != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Sender),
			mail.WithPassword(pw))
	}
	c, err := mail.NewClient(m.cfg.Server, opts...)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: sending %q: %w", subject, err)
	}
	glog.Infof("sent %q to %v", subject, m.cfg.Recipients)
	return nil
}

// IST is the zone report timestamps are written in.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// Compose renders the subject and HTML body of r as of now.
func Compose(r Report, now time.Time) (subject, body string, err error) {
	data := struct {
		Report
		DateText  string
		Generated string
	}{
		Report:    r,
		DateText:  r.Date.Format(causelist.DateLayout),
		Generated: now.In(IST).Format("2006-01-02 15:04:05 MST"),
	}

	var t *template.Template
	switch {
	case r.Err != nil:
		subject, t = "Cause List Checker Error", errorPage
	case r.Result == nil:
		return "", "", errors.New("notify: report has neither a result nor an error")
	case len(r.Result.Matches) > 0:
		subject, t = "Cause List Matches Found - "+data.DateText, matchesPage
	default:
		subject, t = "No Matches Found - "+data.DateText, noMatchesPage
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("notify: rendering %q: %w", subject, err)
	}
	return subject, buf.String(), nil
}
