package webdriver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
)

// newExecCommand is replaced in tests.
var newExecCommand = exec.Command

var (
	// statusPollInterval and statusPollAttempts bound how long a freshly
	// started driver has to answer on /status.
	statusPollInterval = time.Second
	statusPollAttempts = 30

	// xvfbStartTimeout bounds the wait for Xvfb to report its display.
	xvfbStartTimeout = 3 * time.Second
)

// Driver describes how to run one kind of driver binary.
type Driver struct {
	// Name is used in logs and errors.
	Name string
	// portArgs returns the flags that make the binary listen on port.
	portArgs func(port int) []string
	// shutdownPath, if set, is requested to stop the driver gracefully.
	// Drivers without one are killed.
	shutdownPath string
}

// The drivers Service knows how to run.
var (
	ChromeDriver = Driver{
		Name:         "chromedriver",
		portArgs:     func(port int) []string { return []string{"--port=" + strconv.Itoa(port)} },
		shutdownPath: "/shutdown",
	}
	GeckoDriver = Driver{
		Name:     "geckodriver",
		portArgs: func(port int) []string { return []string{"--port", strconv.Itoa(port)} },
	}
)

// ServiceOption configures a Service before its driver starts.
type ServiceOption func(*Service) error

// Output sends the driver's stdout and stderr to w.
func Output(w io.Writer) ServiceOption {
	return func(s *Service) error {
		s.output = w
		return nil
	}
}

// Display runs the driver, and so the browsers it starts, on the X display d
// ("x" or "x.y"). xauthPath, if set, is exported as XAUTHORITY.
func Display(d, xauthPath string) ServiceOption {
	return func(s *Service) error {
		if s.display != "" {
			return fmt.Errorf("display already set to :%s", s.display)
		}
		if !ValidDisplay(d) {
			return fmt.Errorf("display %q is not of the form x or x.y", d)
		}
		s.display, s.xauthPath = d, xauthPath
		return nil
	}
}

// ValidDisplay reports whether disp is "x" or "x.y" with integer x and y.
func ValidDisplay(disp string) bool {
	ds := strings.Split(disp, ".")
	if len(ds) > 2 {
		return false
	}
	for _, d := range ds {
		if _, err := strconv.Atoi(d); err != nil {
			return false
		}
	}
	return true
}

// WithFrameBuffer starts an Xvfb server for the driver and stops it with the
// service. screen is "WxH[xD]", e.g. "1280x1024x24"; empty keeps the Xvfb
// default.
func WithFrameBuffer(screen string) ServiceOption {
	return func(s *Service) error {
		if s.display != "" {
			return fmt.Errorf("display already set to :%s", s.display)
		}
		fb, err := NewFrameBuffer(screen)
		if err != nil {
			return fmt.Errorf("starting frame buffer: %w", err)
		}
		s.xvfb = fb
		return Display(fb.Display, fb.AuthPath)(s)
	}
}

// Service is a driver running as a local subprocess.
type Service struct {
	driver Driver
	port   int
	addr   string
	cmd    *exec.Cmd
	output io.Writer

	display, xauthPath string
	xvfb               *FrameBuffer
}

// Addr returns the URL prefix to hand to NewRemote.
func (s *Service) Addr() string {
	return s.addr
}

// FrameBuffer returns the frame buffer started by WithFrameBuffer, or nil.
func (s *Service) FrameBuffer() *FrameBuffer {
	return s.xvfb
}

// StartService runs the driver binary at path on port and waits until it
// answers on /status, or ctx is done.
func StartService(ctx context.Context, d Driver, path string, port int, opts ...ServiceOption) (*Service, error) {
	s := &Service{
		driver: d,
		port:   port,
		addr:   fmt.Sprintf("http://127.0.0.1:%d", port),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.stopFrameBuffer()
			return nil, err
		}
	}

	cmd := newExecCommand(path, d.portArgs(port)...)
	cmd.Stdout, cmd.Stderr = s.output, s.output
	cmd.Env = append(os.Environ(), cmd.Env...)
	if s.display != "" {
		cmd.Env = append(cmd.Env, "DISPLAY=:"+s.display)
	}
	if s.xauthPath != "" {
		cmd.Env = append(cmd.Env, "XAUTHORITY="+s.xauthPath)
	}
	s.cmd = cmd

	if err := cmd.Start(); err != nil {
		s.stopFrameBuffer()
		return nil, fmt.Errorf("starting %s: %w", d.Name, err)
	}
	glog.V(1).Infof("started %s (pid %d), waiting for %s/status", d.Name, cmd.Process.Pid, s.addr)
	if err := s.waitReady(ctx); err != nil {
		s.kill()
		s.stopFrameBuffer()
		return nil, err
	}
	return s, nil
}

func (s *Service) waitReady(ctx context.Context) error {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	for i := 0; i < statusPollAttempts; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", s.driver.Name, ctx.Err())
		case <-ticker.C:
		}
		resp, err := http.Get(s.addr + "/status")
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
	}
	return fmt.Errorf("%s did not respond on port %d", s.driver.Name, s.port)
}

// Stop ends the driver and the frame buffer, if any.
func (s *Service) Stop() error {
	var err error
	if s.driver.shutdownPath != "" {
		resp, herr := http.Get(s.addr + s.driver.shutdownPath)
		if herr == nil {
			resp.Body.Close()
			err = waitKilled(s.cmd)
		} else {
			glog.Warningf("%s: shutdown request failed, killing it: %v", s.driver.Name, herr)
			err = s.kill()
		}
	} else {
		err = s.kill()
	}
	if fbErr := s.stopFrameBuffer(); err == nil {
		err = fbErr
	}
	return err
}

func (s *Service) kill() error {
	if err := s.cmd.Process.Kill(); err != nil {
		return err
	}
	return waitKilled(s.cmd)
}

func (s *Service) stopFrameBuffer() error {
	if s.xvfb == nil {
		return nil
	}
	return s.xvfb.Stop()
}

// waitKilled waits for cmd, treating death by SIGKILL as a clean exit.
func waitKilled(cmd *exec.Cmd) error {
	if err := cmd.Wait(); err != nil && err.Error() != "signal: killed" {
		return err
	}
	return nil
}

// FrameBuffer is an Xvfb server running in the background.
type FrameBuffer struct {
	// Display is the display number, without the colon.
	Display string
	// AuthPath is the Xauthority file granting access to the display.
	AuthPath string

	cmd *exec.Cmd
}

var screenSizeExpression = regexp.MustCompile(`^\d+x\d+(?:x\d+)?$`)

// NewFrameBuffer starts Xvfb on a free display and authorizes it with xauth.
// screen is as for WithFrameBuffer.
func NewFrameBuffer(screen string) (*FrameBuffer, error) {
	args := []string{"-displayfd", "3", "-nolisten", "tcp"}
	if screen != "" {
		if !screenSizeExpression.MatchString(screen) {
			return nil, fmt.Errorf("invalid screen size %q, want WxH[xD]", screen)
		}
		args = append(args, "-screen", "0", screen)
	}

	auth, err := os.CreateTemp("", "webdriver-xvfb")
	if err != nil {
		return nil, err
	}
	authPath := auth.Name()
	auth.Close()

	// Xvfb writes the display it picked to fd 3.
	r, w, err := os.Pipe()
	if err != nil {
		os.Remove(authPath)
		return nil, err
	}
	defer r.Close()

	xvfb := newExecCommand("Xvfb", args...)
	xvfb.ExtraFiles = []*os.File{w}
	xvfb.Env = append(xvfb.Env, "XAUTHORITY="+authPath)
	err = xvfb.Start()
	w.Close()
	if err != nil {
		os.Remove(authPath)
		return nil, err
	}
	fb := &FrameBuffer{AuthPath: authPath, cmd: xvfb}

	display, err := readDisplay(r)
	if err != nil {
		fb.Stop()
		return nil, err
	}
	fb.Display = display

	xauth := newExecCommand("xauth", "generate", ":"+display, ".", "trusted")
	xauth.Stdout, xauth.Stderr = os.Stderr, os.Stderr
	xauth.Env = append(xauth.Env, "XAUTHORITY="+authPath)
	if err := xauth.Run(); err != nil {
		fb.Stop()
		return nil, fmt.Errorf("xauth: %w", err)
	}
	return fb, nil
}

func readDisplay(r io.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(r).ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("reading Xvfb display: %w", res.err)
		}
		display := strings.TrimSpace(res.line)
		if _, err := strconv.Atoi(display); err != nil {
			return "", errors.New("Xvfb did not print the display number")
		}
		return display, nil
	case <-time.After(xvfbStartTimeout):
		return "", errors.New("timeout waiting for Xvfb")
	}
}

// Stop kills Xvfb and removes the Xauthority file.
func (f *FrameBuffer) Stop() error {
	defer os.Remove(f.AuthPath)
	if err := f.cmd.Process.Kill(); err != nil {
		return err
	}
	return waitKilled(f.cmd)
}
