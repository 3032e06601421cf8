package browser

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/tinyagi/tinyagi/internal/config"
)

// mirrorExcludeDirs lists the Chrome profile subdirectories excluded
// from the mirrored snapshot (spec §4.I "Session"): large, regenerable
// cache directories that would slow the copy without the mirror
// needing them to present a working profile.
var mirrorExcludeDirs = map[string]bool{
	"Cache": true, "Code Cache": true, "GPUCache": true,
	"ShaderCache": true, "GrShaderCache": true, "DawnCache": true, "Media Cache": true,
}

const mirrorStaleAfter = 2 * time.Minute

// debuggerReadyTimeout bounds how long Session waits for a launched
// browser's debugger endpoint to respond (spec §4.I: "Wait up to 12 s").
const debuggerReadyTimeout = 12 * time.Second

// unreachableErrors are substrings of a CDP-attach failure that trigger
// the auto provider's fallback to the external broker (spec §4.I
// "Provider selection").
var unreachableErrors = []string{
	"no reachable debugger",
	"profile lock",
	"will not relaunch chrome",
	"debugger did not become ready",
}

// IsFallbackSignal reports whether err's message matches one of the
// auto-fallback trigger phrases.
func IsFallbackSignal(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, s := range unreachableErrors {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// mcpCloser is the subset of mcpclient.Client Session needs to release
// an MCP channel connection without importing mcp-go into this file.
type mcpCloser interface {
	Close() error
}

// Session wraps a live rod.Browser plus the debugger URL it attached to.
type Session struct {
	Browser     *rod.Browser
	DebuggerURL string
	ProfilePath string

	// mcpClient is set when the session was opened over an MCP channel
	// (spec §4.I "mcp_channel"); Close releases it alongside the browser.
	mcpClient mcpCloser
}

// Close releases the browser connection and, if the session was opened
// via an MCP channel, the underlying MCP client too.
func (s *Session) Close() {
	s.Browser.MustClose()
	if s.mcpClient != nil {
		_ = s.mcpClient.Close()
	}
}

// sessionProvider describes an open/close provider path. The CDP, broker
// and MCP paths are plain connect functions and do not implement it.
type sessionProvider interface {
	open(ctx context.Context) (*Session, error)
	close(s *Session) error
}

// Connect implements spec §4.I's provider-selection + session logic:
// "auto" tries direct debugger attach first, falling back to the
// external broker on a recognized unreachable-debugger signal; "cdp",
// "broker", and "mcp" force one path each.
func Connect(ctx context.Context, cfg config.BrowserConfig) (*Session, error) {
	switch cfg.Provider {
	case "cdp":
		return connectCDP(ctx, cfg)
	case "broker":
		return connectBroker(ctx, cfg)
	case "mcp":
		return connectMCP(ctx, cfg)
	default: // "auto"
		sess, err := connectCDP(ctx, cfg)
		if err == nil {
			return sess, nil
		}
		if IsFallbackSignal(err) {
			return connectBroker(ctx, cfg)
		}
		return nil, err
	}
}

func connectCDP(ctx context.Context, cfg config.BrowserConfig) (*Session, error) {
	debuggerURL := cfg.DebuggerURL
	if debuggerURL == "" {
		var err error
		debuggerURL, err = findLiveDebugger(ctx, cfg.DebuggerPorts)
		if err != nil {
			return nil, err
		}
	}

	if debuggerURL == "" {
		mirror, err := prepareProfileMirror(cfg.ProfilePath, cfg.ProfileDirectory)
		if err != nil {
			return nil, fmt.Errorf("prepare profile mirror: %w", err)
		}

		port := 9222 + rand.Intn(9621-9222+1)
		l := launcher.New().
			UserDataDir(mirror).
			Headless(false).
			Set("remote-debugging-port", strconv.Itoa(port))
		defer l.Cleanup()

		launchCtx, cancel := context.WithTimeout(ctx, debuggerReadyTimeout)
		defer cancel()

		url, err := l.Context(launchCtx).Launch()
		if err != nil {
			return nil, fmt.Errorf("no reachable debugger: launch failed: %w", err)
		}
		debuggerURL = url
	}

	browser := rod.New().ControlURL(debuggerURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("debugger did not become ready: %w", err)
	}

	return &Session{Browser: browser, DebuggerURL: debuggerURL, ProfilePath: cfg.ProfilePath}, nil
}

func connectBroker(ctx context.Context, cfg config.BrowserConfig) (*Session, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("browser broker requested but no broker_url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BrokerURL+"/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("build broker session request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("broker returned status %d", resp.StatusCode)
	}
	debuggerURL := resp.Header.Get("X-Debugger-Url")
	browser := rod.New().ControlURL(debuggerURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("broker debugger did not become ready: %w", err)
	}
	return &Session{Browser: browser, DebuggerURL: debuggerURL}, nil
}

// findLiveDebugger probes the configured candidate ports and returns the
// first one whose /json/version endpoint answers 200. It does not look at
// known-active sessions or compare profile paths; with no answering port
// it returns "".
func findLiveDebugger(ctx context.Context, ports []int) (string, error) {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	for _, port := range ports {
		url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return fmt.Sprintf("127.0.0.1:%d", port), nil
		}
	}
	return "", nil
}

// prepareProfileMirror copies the user-data directory into a scratch
// mirror, skipping top-level entries named in mirrorExcludeDirs (nested
// directories of those names are copied). An existing mirror younger
// than 2 minutes is reused as is; changes to the source are not detected.
func prepareProfileMirror(profilePath, mirrorDest string) (string, error) {
	if profilePath == "" {
		return mirrorDest, os.MkdirAll(mirrorDest, 0o755)
	}

	if fi, err := os.Stat(mirrorDest); err == nil && time.Since(fi.ModTime()) < mirrorStaleAfter {
		return mirrorDest, nil
	}

	if err := os.RemoveAll(mirrorDest); err != nil {
		return "", err
	}
	if err := os.MkdirAll(mirrorDest, 0o755); err != nil {
		return "", err
	}

	entries, err := os.ReadDir(profilePath)
	if err != nil {
		return "", fmt.Errorf("read profile dir: %w", err)
	}
	for _, e := range entries {
		if mirrorExcludeDirs[e.Name()] {
			continue
		}
		src := filepath.Join(profilePath, e.Name())
		dst := filepath.Join(mirrorDest, e.Name())
		if err := copyPath(src, dst); err != nil {
			return "", fmt.Errorf("mirror %s: %w", e.Name(), err)
		}
	}
	return mirrorDest, nil
}

func copyPath(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		if err := os.MkdirAll(dst, fi.Mode()); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := copyPath(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, fi.Mode())
}
