package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/parley-go/parley/pkg/agent"
	"github.com/parley-go/parley/pkg/core"
)

const (
	defaultServerURL = "http://127.0.0.1:3001"
	defaultTimeout   = 30 * time.Second
)

type chatConfig struct {
	ServerURL  string
	ScenarioID string
	Timeout    time.Duration
	ListOnly   bool
	Verbose    bool
}

func parseChatConfig(args []string) (chatConfig, error) {
	cfg := chatConfig{}
	fs := flag.NewFlagSet("parley-chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "server", defaultServerURL, "parley server base URL")
	fs.StringVar(&cfg.ScenarioID, "scenario", "", "scenario id (empty uses the server default)")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-turn timeout (e.g. 30s)")
	fs.BoolVar(&cfg.ListOnly, "list", false, "list available scenarios and exit")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "print state transitions and debug events")

	if err := fs.Parse(args); err != nil {
		return chatConfig{}, err
	}

	cfg.ServerURL = strings.TrimSpace(cfg.ServerURL)
	if cfg.ServerURL == "" {
		return chatConfig{}, errors.New("server must not be empty")
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return chatConfig{}, errors.New("server must be a valid absolute URL")
	}
	if cfg.Timeout <= 0 {
		return chatConfig{}, errors.New("timeout must be > 0")
	}
	return cfg, nil
}

func listScenarios(ctx context.Context, cfg chatConfig, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ServerURL+"/scenarios", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("list scenarios: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("list scenarios: status %d", resp.StatusCode)
	}

	var scenarios []core.ScenarioInfo
	if err := json.NewDecoder(resp.Body).Decode(&scenarios); err != nil {
		return fmt.Errorf("list scenarios: %w", err)
	}
	for _, sc := range scenarios {
		fmt.Fprintf(out, "%s\t%s\n", sc.ID, sc.Name)
	}
	return nil
}

// lineCapture adapts typed input to the controller's speech-capture
// interface: each line stands in for one finalized utterance.
type lineCapture struct {
	mu      sync.Mutex
	handler func(agent.CaptureEvent)
}

func (c *lineCapture) Acquire(ctx context.Context) error { return nil }

func (c *lineCapture) Start(handler func(agent.CaptureEvent)) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
	return nil
}

func (c *lineCapture) Stop() {
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
}

func (c *lineCapture) Release() {}

// Utter delivers one finalized utterance. It reports false when no capture
// session is armed, so the caller can tell the user to wait.
func (c *lineCapture) Utter(text string) bool {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(agent.CaptureEvent{Kind: agent.CaptureFinal, Transcript: text})
	return true
}

// printSynth "speaks" by printing. Completion is immediate, which keeps the
// conversation loop snappy.
type printSynth struct {
	out io.Writer
}

func (s *printSynth) Speak(text string, done func(error)) {
	fmt.Fprintf(s.out, "agent> %s\n", text)
	done(nil)
}

func (s *printSynth) Cancel() {}

func waitListening(ctrl *agent.Controller, deadline time.Duration) bool {
	stop := time.Now().Add(deadline)
	for time.Now().Before(stop) {
		switch ctrl.State() {
		case agent.StateListening:
			return true
		case agent.StateIdle, agent.StateError:
			return false
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func pumpEvents(ctrl *agent.Controller, cfg chatConfig, errOut io.Writer, done <-chan struct{}) {
	events := ctrl.Events()
	for {
		select {
		case <-done:
			return
		case ev := <-events:
			switch e := ev.(type) {
			case *agent.ErrorEvent:
				fmt.Fprintf(errOut, "error: %s\n", e.Message)
			case *agent.StateChangedEvent:
				if cfg.Verbose {
					fmt.Fprintf(errOut, "state: %s -> %s\n", e.From, e.To)
				}
			case *agent.DebugEvent:
				if cfg.Verbose {
					fmt.Fprintf(errOut, "debug: %s\n", e.Message)
				}
			}
		}
	}
}

func runChat(ctx context.Context, cfg chatConfig, in io.Reader, out, errOut io.Writer) error {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	if cfg.ListOnly {
		return listScenarios(ctx, cfg, out)
	}

	chat := agent.NewChatClient(cfg.ServerURL, agent.WithTimeout(cfg.Timeout))
	capture := &lineCapture{}
	synth := &printSynth{out: out}
	ctrl := agent.NewController(capture, synth, chat)

	done := make(chan struct{})
	defer close(done)
	go pumpEvents(ctrl, cfg, errOut, done)

	if err := ctrl.Start(ctx, cfg.ScenarioID); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer ctrl.Stop()

	fmt.Fprintf(out, "Connected to %s. Type /quit to stop.\n", cfg.ServerURL)

	scanner := bufio.NewScanner(in)
	for {
		if !waitListening(ctrl, cfg.Timeout) {
			if ctrl.State() == agent.StateError {
				snap := ctrl.Snapshot()
				return fmt.Errorf("session failed: %s", snap.LastError)
			}
			return nil
		}

		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			fmt.Fprintln(out, "bye")
			return nil
		}

		// The capture handler arms a beat after the state flips to listening.
		if !capture.Utter(line) {
			time.Sleep(50 * time.Millisecond)
			if !capture.Utter(line) {
				fmt.Fprintln(errOut, "still processing, try again in a moment")
			}
		}
	}
}

func main() {
	_ = godotenv.Load()

	cfg, err := parseChatConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "parley-chat: %v\n", err)
		os.Exit(1)
	}

	if err := runChat(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "parley-chat: %v\n", err)
		os.Exit(1)
	}
}
