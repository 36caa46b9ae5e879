// ABOUTME: In-process stand-in for the Autai desktop shell, speaking both channels
// ABOUTME: Tracks windows, answers the command vocabulary, and plays the person at the UI

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autai/agent-bridge/internal/wire"
)

// tinyPNG is a 1x1 transparent PNG, already base64 encoded for screenshot
// results.
const tinyPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type shellConfig struct {
	latency     time.Duration
	autoAnswer  string
	answerDelay time.Duration
	emitEvery   time.Duration
}

// shell emulates the desktop shell: a window table behind the command
// channel and an automatic person behind the UI channel.
type shell struct {
	logger   *slog.Logger
	cfg      shellConfig
	upgrader websocket.Upgrader

	mu        sync.Mutex
	windows   map[string]*window
	order     []string
	current   string
	windowSeq int
	listeners map[string]map[string]bool // window id -> event name
}

type window struct {
	id      string
	url     string
	title   string
	history []string
	histPos int
}

func newShell(logger *slog.Logger, cfg shellConfig) *shell {
	return &shell{
		logger:    logger,
		cfg:       cfg,
		windows:   make(map[string]*window),
		listeners: make(map[string]map[string]bool),
	}
}

// wsConn serializes writes; gorilla allows one concurrent writer and both
// delayed answers and command emission write from their own goroutines.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func titleFor(raw string) string {
	if raw == "" {
		return "New Tab"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.Host == "example.com" || u.Host == "www.example.com" {
		return "Example Domain"
	}
	return u.Host
}

func (w *window) visit(urlStr string) {
	if w.histPos < len(w.history)-1 {
		w.history = w.history[:w.histPos+1]
	}
	w.history = append(w.history, urlStr)
	w.histPos = len(w.history) - 1
	w.url = urlStr
	w.title = titleFor(urlStr)
}

// navigate loads url in the current window, or a fresh one when newTab is
// set or nothing is open yet.
func (s *shell) navigate(urlStr string, newTab bool) (id, loadedURL, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var w *window
	if !newTab && s.current != "" {
		w = s.windows[s.current]
	}
	if w == nil {
		s.windowSeq++
		w = &window{id: fmt.Sprintf("win-%d", s.windowSeq)}
		s.windows[w.id] = w
		s.order = append(s.order, w.id)
	}
	w.visit(urlStr)
	s.current = w.id
	return w.id, w.url, w.title
}

// withWindow runs fn on the window with the shell lock held.
func (s *shell) withWindow(id string, fn func(w *window)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return fmt.Errorf("unknown window: %s", id)
	}
	fn(w)
	return nil
}

// snapshot returns the window's url and title without exposing the live
// struct.
func (s *shell) snapshot(id string) (urlStr, title string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return "", "", fmt.Errorf("unknown window: %s", id)
	}
	return w.url, w.title, nil
}

func (s *shell) switchTo(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return fmt.Errorf("unknown window: %s", id)
	}
	s.current = id
	return nil
}

func (s *shell) closeWindow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return fmt.Errorf("unknown window: %s", id)
	}
	delete(s.windows, id)
	delete(s.listeners, id)
	for i, wid := range s.order {
		if wid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.current == id {
		s.current = ""
		if len(s.order) > 0 {
			s.current = s.order[len(s.order)-1]
		}
	}
	return nil
}

func (s *shell) addListener(id, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return fmt.Errorf("unknown window: %s", id)
	}
	if s.listeners[id] == nil {
		s.listeners[id] = make(map[string]bool)
	}
	s.listeners[id][event] = true
	return nil
}

func (s *shell) removeListener(id, event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return fmt.Errorf("unknown window: %s", id)
	}
	delete(s.listeners[id], event)
	return nil
}

func (s *shell) hasListener(id, event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listeners[id][event]
}

// handleCommand serves one agent connection on the command channel.
func (s *shell) handleCommand(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("command upgrade failed", "error", err)
		return
	}
	conn := &wsConn{ws: ws}
	defer ws.Close()

	logger := s.logger.With("channel", "command", "remote", r.RemoteAddr)
	logger.Info("agent connected")
	defer logger.Info("agent disconnected")

	for {
		var req struct {
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read ended", "error", err)
			}
			return
		}
		if s.cfg.latency > 0 {
			time.Sleep(s.cfg.latency)
		}

		logger.Debug("command", "method", req.Method, "id", req.ID)
		result, err := s.dispatch(conn, req.Method, req.Params)

		resp := wire.Response{ID: req.ID}
		if err != nil {
			logger.Warn("command failed", "method", req.Method, "error", err)
			resp.Error = &wire.ErrorDetail{Message: err.Error()}
		} else {
			resp.Result = result
		}
		if err := conn.writeJSON(resp); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}

// dispatch answers one command. Unknown methods are rejected, never
// absorbed.
func (s *shell) dispatch(conn *wsConn, method string, params json.RawMessage) (any, error) {
	var p struct {
		URL        string `json:"url"`
		NewTab     bool   `json:"new_tab"`
		WindowID   string `json:"window_id"`
		Script     string `json:"script"`
		Expression string `json:"expression"`
		Selector   string `json:"selector"`
		Event      string `json:"event"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("malformed params: %v", err)
		}
	}

	switch method {
	case "initialize":
		return map[string]any{"status": "ready"}, nil

	case "ping":
		return struct{}{}, nil

	case "navigate":
		id, loadedURL, title := s.navigate(p.URL, p.NewTab)
		s.emitLoad(conn, id, loadedURL)
		return map[string]any{"window_id": id, "url": loadedURL, "title": title}, nil

	case "create_tab":
		id, _, _ := s.navigate("", true)
		return map[string]any{"window_id": id}, nil

	case "switch_tab":
		return struct{}{}, s.switchTo(p.WindowID)

	case "close_window", "page.close":
		return struct{}{}, s.closeWindow(p.WindowID)

	case "screenshot", "page.screenshot":
		// Session screenshots have no window id; page screenshots do.
		// Either way the canned image is the same pixel.
		return map[string]any{"data": tinyPNG}, nil

	case "get_dom_tree":
		_, title, err := s.snapshot(p.WindowID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"dom_tree":     domTree(title),
			"selector_map": map[string]any{"1": "body > h1", "2": "body > p"},
		}, nil

	case "execute_js":
		urlStr, title, err := s.snapshot(p.WindowID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": evalValue(title, urlStr, p.Script)}, nil

	case "page.goto":
		var loadedURL string
		err := s.withWindow(p.WindowID, func(w *window) {
			w.visit(p.URL)
			loadedURL = w.url
		})
		if err != nil {
			return nil, err
		}
		s.emitLoad(conn, p.WindowID, loadedURL)
		return map[string]any{"url": loadedURL, "status": 200}, nil

	case "page.reload":
		urlStr, _, err := s.snapshot(p.WindowID)
		if err != nil {
			return nil, err
		}
		s.emitLoad(conn, p.WindowID, urlStr)
		return struct{}{}, nil

	case "page.goBack":
		err := s.withWindow(p.WindowID, func(w *window) {
			if w.histPos > 0 {
				w.histPos--
				w.url = w.history[w.histPos]
				w.title = titleFor(w.url)
			}
		})
		return struct{}{}, err

	case "page.goForward":
		err := s.withWindow(p.WindowID, func(w *window) {
			if w.histPos < len(w.history)-1 {
				w.histPos++
				w.url = w.history[w.histPos]
				w.title = titleFor(w.url)
			}
		})
		return struct{}{}, err

	case "page.title":
		_, title, err := s.snapshot(p.WindowID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"title": title}, nil

	case "page.evaluate":
		urlStr, title, err := s.snapshot(p.WindowID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"value": evalValue(title, urlStr, p.Expression)}, nil

	case "page.content":
		_, title, err := s.snapshot(p.WindowID)
		if err != nil {
			return nil, err
		}
		content := fmt.Sprintf(
			"<html><head><title>%s</title></head><body><h1>%s</h1><p>Served by fake-shell.</p></body></html>",
			title, title)
		return map[string]any{"content": content}, nil

	case "page.waitForLoadState":
		// Canned pages are always loaded.
		_, _, err := s.snapshot(p.WindowID)
		return struct{}{}, err

	case "page.waitForSelector":
		if _, _, err := s.snapshot(p.WindowID); err != nil {
			return nil, err
		}
		return map[string]any{"found": true}, nil

	case "page.click", "page.fill", "page.type", "page.press":
		_, _, err := s.snapshot(p.WindowID)
		return struct{}{}, err

	case "page.innerText":
		_, title, err := s.snapshot(p.WindowID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": title}, nil

	case "page.isVisible":
		if _, _, err := s.snapshot(p.WindowID); err != nil {
			return nil, err
		}
		return map[string]any{"visible": true}, nil

	case "page.querySelector":
		if _, _, err := s.snapshot(p.WindowID); err != nil {
			return nil, err
		}
		return map[string]any{
			"element": map[string]any{"tag": "div", "selector": p.Selector},
		}, nil

	case "page.querySelectorAll":
		if _, _, err := s.snapshot(p.WindowID); err != nil {
			return nil, err
		}
		return map[string]any{
			"elements": []any{map[string]any{"tag": "div", "selector": p.Selector}},
		}, nil

	case "page.addEventListener":
		return struct{}{}, s.addListener(p.WindowID, p.Event)

	case "page.removeEventListener":
		return struct{}{}, s.removeListener(p.WindowID, p.Event)

	case "keyboard.press", "keyboard.type", "mouse.click", "mouse.move", "mouse.down", "mouse.up":
		_, _, err := s.snapshot(p.WindowID)
		return struct{}{}, err

	default:
		return nil, fmt.Errorf("unknown method: %s", method)
	}
}

// emitLoad pushes a load page event to windows that registered interest.
func (s *shell) emitLoad(conn *wsConn, windowID, urlStr string) {
	if !s.hasListener(windowID, "load") {
		return
	}
	data, _ := json.Marshal(map[string]string{"url": urlStr})
	frame := wire.PageEvent{
		Type:     wire.EventPageEvent,
		WindowID: windowID,
		Event:    "load",
		Data:     data,
	}
	if err := conn.writeJSON(frame); err != nil {
		s.logger.Warn("page event write failed", "error", err)
	}
}

// domTree is the canned DOM for get_dom_tree, small but nested enough to
// look like one.
func domTree(title string) map[string]any {
	return map[string]any{
		"tag": "html",
		"children": []any{
			map[string]any{"tag": "head", "children": []any{
				map[string]any{"tag": "title", "text": title},
			}},
			map[string]any{"tag": "body", "children": []any{
				map[string]any{"tag": "h1", "text": title, "index": 1},
				map[string]any{"tag": "p", "text": "Served by fake-shell.", "index": 2},
			}},
		},
	}
}

func evalValue(title, urlStr, expr string) any {
	switch {
	case strings.Contains(expr, "document.title"):
		return title
	case strings.Contains(expr, "location.href"), strings.Contains(expr, "window.location"):
		return urlStr
	default:
		return nil
	}
}

// handleUI serves one agent connection on the UI channel.
func (s *shell) handleUI(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ui upgrade failed", "error", err)
		return
	}
	conn := &wsConn{ws: ws}
	defer ws.Close()

	logger := s.logger.With("channel", "ui", "remote", r.RemoteAddr)
	logger.Info("agent connected")
	defer logger.Info("agent disconnected")

	if s.cfg.emitEvery > 0 {
		done := make(chan struct{})
		defer close(done)
		go s.emitCommands(conn, logger, done)
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("read ended", "error", err)
			}
			return
		}

		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			logger.Warn("malformed frame", "error", err)
			continue
		}

		switch head.Type {
		case wire.EventAgentEvent:
			var ev wire.AgentEvent
			if err := json.Unmarshal(data, &ev); err == nil {
				logger.Info("agent event", "event", ev.Event)
			}
		case wire.EventNotification:
			var n wire.Notification
			if err := json.Unmarshal(data, &n); err == nil {
				logger.Info("notification", "title", n.Title, "level", n.Level)
			}
		case wire.EventInputRequest:
			var req wire.InputRequest
			if err := json.Unmarshal(data, &req); err != nil {
				logger.Warn("malformed input_request", "error", err)
				continue
			}
			logger.Info("input request", "input_id", req.InputID, "prompt", req.Prompt)
			go s.answerInput(conn, logger, req)
		default:
			logger.Warn("unhandled frame", "type", head.Type)
		}
	}
}

// answerInput plays the person: wait a beat, then answer with the canned
// value, or the first offered option.
func (s *shell) answerInput(conn *wsConn, logger *slog.Logger, req wire.InputRequest) {
	if s.cfg.answerDelay > 0 {
		time.Sleep(s.cfg.answerDelay)
	}

	answer := s.cfg.autoAnswer
	if answer == "" {
		if len(req.Options) > 0 {
			answer = req.Options[0]
		} else {
			answer = "ok"
		}
	}

	value, _ := json.Marshal(answer)
	frame := wire.UserInput{
		Type:    wire.EventUserInput,
		InputID: req.InputID,
		Value:   value,
	}
	if err := conn.writeJSON(frame); err != nil {
		logger.Warn("answer write failed", "input_id", req.InputID, "error", err)
		return
	}
	logger.Info("answered input request", "input_id", req.InputID, "answer", answer)
}

// emitCommands pushes pause/resume commands on a timer, for exercising
// command subscribers.
func (s *shell) emitCommands(conn *wsConn, logger *slog.Logger, done chan struct{}) {
	ticker := time.NewTicker(s.cfg.emitEvery)
	defer ticker.Stop()

	commands := []string{"pause", "resume"}
	i := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			cmd := commands[i%len(commands)]
			i++
			frame := wire.UICommand{Type: wire.EventCommand, Command: cmd}
			if err := conn.writeJSON(frame); err != nil {
				return
			}
			logger.Info("emitted command", "command", cmd)
		}
	}
}
