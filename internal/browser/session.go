// ABOUTME: Session façade over the shell's command channel
// ABOUTME: Tracks windows as pages and forwards browser commands with window ids

package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/autai/agent-bridge/internal/rpc"
	"github.com/autai/agent-bridge/internal/wire"
)

var (
	// ErrNotConnected rejects commands issued before Connect or after Close.
	ErrNotConnected = errors.New("not connected to shell")
	// ErrNoActivePage rejects page-scoped session operations when no window
	// is current.
	ErrNoActivePage = errors.New("no active page")
	// ErrTabOutOfRange rejects a SwitchTab index outside the open tab list.
	ErrTabOutOfRange = errors.New("tab index out of range")
)

// Options configures a Session.
type Options struct {
	Logger      *slog.Logger
	CallTimeout time.Duration
	// Profile is sent verbatim with the initialize command. The shell
	// interprets it; the session does not.
	Profile map[string]any
}

// shellConn is the slice of rpc.Conn the session drives. Tests substitute a
// scripted peer.
type shellConn interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	On(event string, fn rpc.Handler) string
	Off(event, id string)
	State() rpc.State
	Close() error
}

type dialFunc func(ctx context.Context, addr string) (shellConn, error)

// Session drives the shell's browser over the command channel. It keeps a
// registry of open windows as Page values, tracks which one is current, and
// routes page_event frames to the Page that registered interest.
//
// The registry survives a reconnect; pages whose windows died with the old
// shell process fail on next use with the shell's own error.
type Session struct {
	addr   string
	opts   Options
	logger *slog.Logger
	dial   dialFunc

	mu      sync.Mutex
	conn    shellConn
	pages   map[string]*Page
	order   []string
	current string
}

// Connect dials the command endpoint, initializes the browser with the
// configured profile, and subscribes to page events.
func Connect(ctx context.Context, addr string, opts Options) (*Session, error) {
	s := newSession(addr, opts, nil)
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newSession(addr string, opts Options, dial dialFunc) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "browser", "peer", addr)

	s := &Session{
		addr:   addr,
		opts:   opts,
		logger: logger,
		dial:   dial,
		pages:  make(map[string]*Page),
	}
	if s.dial == nil {
		s.dial = func(ctx context.Context, addr string) (shellConn, error) {
			return rpc.Dial(ctx, addr, rpc.Options{
				Logger:      opts.Logger,
				CallTimeout: opts.CallTimeout,
			})
		}
	}
	return s
}

// connect dials a fresh connection, wires page-event routing, and sends
// initialize. The old connection, if any, is replaced.
func (s *Session) connect(ctx context.Context) error {
	conn, err := s.dial(ctx, s.addr)
	if err != nil {
		return err
	}
	conn.On(wire.EventPageEvent, s.routePageEvent)

	profile := s.opts.Profile
	if profile == nil {
		profile = map[string]any{}
	}
	if _, err := conn.Call(ctx, "initialize", map[string]any{"profile": profile}); err != nil {
		conn.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("browser session ready")
	return nil
}

// call sends one command over the current connection.
func (s *Session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}
	return conn.Call(ctx, method, params)
}

// navigateResult is the shell's answer to navigate and create_tab.
type navigateResult struct {
	WindowID string `json:"window_id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
}

// Navigate loads url in the current window, or in a new one when none is
// open yet, and makes that window current.
func (s *Session) Navigate(ctx context.Context, url string) (*Page, error) {
	return s.navigate(ctx, url, false)
}

// NewTab opens a new window. With a url it navigates there immediately;
// without one the shell opens its blank page.
func (s *Session) NewTab(ctx context.Context, url string) (*Page, error) {
	if url != "" {
		return s.navigate(ctx, url, true)
	}

	result, err := s.call(ctx, "create_tab", nil)
	if err != nil {
		return nil, err
	}
	var res navigateResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("decode create_tab result: %w", err)
	}
	return s.upsertPage(res, true), nil
}

func (s *Session) navigate(ctx context.Context, url string, newTab bool) (*Page, error) {
	result, err := s.call(ctx, "navigate", map[string]any{
		"url":     url,
		"new_tab": newTab,
	})
	if err != nil {
		return nil, err
	}

	var res navigateResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("decode navigate result: %w", err)
	}
	return s.upsertPage(res, true), nil
}

// upsertPage records the window in the registry, refreshing the cached url
// and title, and optionally makes it current.
func (s *Session) upsertPage(res navigateResult, makeCurrent bool) *Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, ok := s.pages[res.WindowID]
	if !ok {
		page = newPage(res.WindowID, s)
		s.pages[res.WindowID] = page
		s.order = append(s.order, res.WindowID)
	}
	page.setLocation(res.URL, res.Title)
	if makeCurrent {
		s.current = res.WindowID
	}
	return page
}

// removePage drops a closed window from the registry.
func (s *Session) removePage(windowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[windowID]; !ok {
		return
	}
	delete(s.pages, windowID)
	for i, id := range s.order {
		if id == windowID {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	if s.current == windowID {
		s.current = ""
	}
}

// CurrentPage returns the current window, or nil when none is open.
func (s *Session) CurrentPage() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[s.current]
}

// Tabs lists open windows in the order they were opened.
func (s *Session) Tabs() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	tabs := make([]*Page, 0, len(s.order))
	for _, id := range s.order {
		tabs = append(tabs, s.pages[id])
	}
	return tabs
}

// SwitchTab makes the tab at index current, both locally and in the shell.
func (s *Session) SwitchTab(ctx context.Context, index int) (*Page, error) {
	tabs := s.Tabs()
	if index < 0 || index >= len(tabs) {
		return nil, fmt.Errorf("%w: %d of %d", ErrTabOutOfRange, index, len(tabs))
	}
	page := tabs[index]

	if _, err := s.call(ctx, "switch_tab", map[string]any{"window_id": page.WindowID()}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = page.WindowID()
	s.mu.Unlock()
	return page, nil
}

// ExecuteJS evaluates script on the current page.
func (s *Session) ExecuteJS(ctx context.Context, script string) (json.RawMessage, error) {
	page := s.CurrentPage()
	if page == nil {
		return nil, ErrNoActivePage
	}
	return s.call(ctx, "execute_js", map[string]any{
		"window_id": page.WindowID(),
		"script":    script,
	})
}

// Screenshot captures the current window and returns the decoded image bytes.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	result, err := s.call(ctx, "screenshot", map[string]any{"full_page": fullPage})
	if err != nil {
		return nil, err
	}
	var res struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("decode screenshot result: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot data: %w", err)
	}
	return data, nil
}

// Ping checks that the shell answers on the command channel.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.call(ctx, "ping", nil)
	return err
}

// TabInfo is one entry in a state summary's tab list.
type TabInfo struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// StateSummary is a snapshot of the browser for an agent step: where it is,
// what is open, and what the page looks like.
type StateSummary struct {
	URL         string
	Title       string
	Tabs        []TabInfo
	DOMTree     json.RawMessage
	SelectorMap json.RawMessage
	Screenshot  []byte
}

// StateSummary collects the current page's DOM tree, a screenshot, and the
// tab list. DOM and screenshot failures are logged and leave their fields
// empty rather than failing the whole summary; with no page open the summary
// is empty.
func (s *Session) StateSummary(ctx context.Context) (*StateSummary, error) {
	page := s.CurrentPage()
	if page == nil {
		return &StateSummary{Title: "No page", Tabs: []TabInfo{}}, nil
	}

	url, title := page.snapshot()
	summary := &StateSummary{URL: url, Title: title}

	result, err := s.call(ctx, "get_dom_tree", map[string]any{"window_id": page.WindowID()})
	if err != nil {
		s.logger.Warn("dom tree unavailable", "window_id", page.WindowID(), "error", err)
	} else {
		var res struct {
			DOMTree     json.RawMessage `json:"dom_tree"`
			SelectorMap json.RawMessage `json:"selector_map"`
		}
		if err := json.Unmarshal(result, &res); err != nil {
			s.logger.Warn("malformed dom tree result", "error", err)
		} else {
			summary.DOMTree = res.DOMTree
			summary.SelectorMap = res.SelectorMap
		}
	}

	shot, err := s.Screenshot(ctx, false)
	if err != nil {
		s.logger.Warn("screenshot unavailable", "error", err)
	} else {
		summary.Screenshot = shot
	}

	for _, tab := range s.Tabs() {
		u, t := tab.snapshot()
		summary.Tabs = append(summary.Tabs, TabInfo{URL: u, Title: t})
	}
	return summary, nil
}

// EnsureConnected pings the shell and, when the connection is gone or
// unresponsive, dials and initializes a fresh one. This is the reconnect
// policy the rpc layer deliberately leaves to its callers.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn != nil && conn.State() == rpc.StateConnected {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		s.logger.Warn("shell not answering, reconnecting")
	}

	if conn != nil {
		conn.Close()
	}
	return s.connect(ctx)
}

// Close tears down the connection. Pending calls resolve with the rpc
// layer's close error. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// routePageEvent delivers a page_event frame to the window it names.
// Runs on the event sink's dispatch goroutine.
func (s *Session) routePageEvent(ev wire.Event) {
	var pe wire.PageEvent
	if err := ev.Decode(&pe); err != nil {
		s.logger.Warn("malformed page_event", "error", err)
		return
	}

	s.mu.Lock()
	page := s.pages[pe.WindowID]
	s.mu.Unlock()

	if page == nil {
		s.logger.Debug("page_event for unknown window", "window_id", pe.WindowID, "event", pe.Event)
		return
	}
	page.deliver(pe.Event, pe.Data)
}
