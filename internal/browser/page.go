// ABOUTME: Page handle for one shell window, with keyboard, mouse, and locator helpers
// ABOUTME: Every method forwards a page.* command carrying the window id

package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Page is a handle on one shell window. Methods forward commands with the
// window id attached; the shell's errors come back as remote errors from the
// rpc layer. URL and Title are cached from the last navigation or title
// fetch so state summaries do not hit the wire.
type Page struct {
	windowID string
	session  *Session

	mu        sync.Mutex
	url       string
	title     string
	closed    bool
	listeners map[string][]pageListener
}

type pageListener struct {
	id string
	fn func(data json.RawMessage)
}

func newPage(windowID string, session *Session) *Page {
	return &Page{
		windowID:  windowID,
		session:   session,
		listeners: make(map[string][]pageListener),
	}
}

// WindowID returns the shell's identifier for this window.
func (p *Page) WindowID() string {
	return p.windowID
}

// URL returns the page's address as of the last navigation.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Closed reports whether Close has been called on this page.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) setLocation(url, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if url != "" {
		p.url = url
	}
	if title != "" {
		p.title = title
	}
}

func (p *Page) snapshot() (url, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, p.title
}

// call forwards one command with this page's window id merged into params.
func (p *Page) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	params["window_id"] = p.windowID
	return p.session.call(ctx, method, params)
}

// Goto loads url in this window and refreshes the cached address.
func (p *Page) Goto(ctx context.Context, url string) error {
	result, err := p.call(ctx, "page.goto", map[string]any{"url": url})
	if err != nil {
		return err
	}
	var res struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(result, &res); err == nil && res.URL != "" {
		p.setLocation(res.URL, "")
	}
	return nil
}

// Reload reloads the current address.
func (p *Page) Reload(ctx context.Context) error {
	_, err := p.call(ctx, "page.reload", nil)
	return err
}

// GoBack navigates one step back in the window's history.
func (p *Page) GoBack(ctx context.Context) error {
	_, err := p.call(ctx, "page.goBack", nil)
	return err
}

// GoForward navigates one step forward in the window's history.
func (p *Page) GoForward(ctx context.Context) error {
	_, err := p.call(ctx, "page.goForward", nil)
	return err
}

// Title fetches the document title and refreshes the cache.
func (p *Page) Title(ctx context.Context) (string, error) {
	result, err := p.call(ctx, "page.title", nil)
	if err != nil {
		return "", err
	}
	var res struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return "", fmt.Errorf("decode title result: %w", err)
	}
	p.setLocation("", res.Title)
	return res.Title, nil
}

// Evaluate runs a JavaScript expression in the page and returns its value.
func (p *Page) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	result, err := p.call(ctx, "page.evaluate", map[string]any{"expression": expression})
	if err != nil {
		return nil, err
	}
	var res struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("decode evaluate result: %w", err)
	}
	return res.Value, nil
}

// Content returns the page's full HTML.
func (p *Page) Content(ctx context.Context) (string, error) {
	result, err := p.call(ctx, "page.content", nil)
	if err != nil {
		return "", err
	}
	var res struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return "", fmt.Errorf("decode content result: %w", err)
	}
	return res.Content, nil
}

// WaitForLoadState blocks until the page reaches the given load state
// ("load", "domcontentloaded", "networkidle"). The shell errors on timeout.
func (p *Page) WaitForLoadState(ctx context.Context, state string) error {
	_, err := p.call(ctx, "page.waitForLoadState", map[string]any{"state": state})
	return err
}

// WaitForSelector blocks until an element matching selector reaches the
// given state ("attached", "visible"). The shell errors on timeout.
func (p *Page) WaitForSelector(ctx context.Context, selector, state string) error {
	_, err := p.call(ctx, "page.waitForSelector", map[string]any{
		"selector": selector,
		"options":  map[string]any{"state": state},
	})
	return err
}

// Screenshot captures this window and returns the decoded image bytes.
func (p *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	result, err := p.call(ctx, "page.screenshot", map[string]any{
		"options": map[string]any{"fullPage": fullPage},
	})
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

// Click clicks the first element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	_, err := p.call(ctx, "page.click", map[string]any{"selector": selector})
	return err
}

// Fill sets the value of the input matching selector.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	_, err := p.call(ctx, "page.fill", map[string]any{
		"selector": selector,
		"value":    value,
	})
	return err
}

// Type sends text to the element matching selector, one key at a time.
func (p *Page) Type(ctx context.Context, selector, text string) error {
	_, err := p.call(ctx, "page.type", map[string]any{
		"selector": selector,
		"text":     text,
	})
	return err
}

// Press sends a single key to the element matching selector.
func (p *Page) Press(ctx context.Context, selector, key string) error {
	_, err := p.call(ctx, "page.press", map[string]any{
		"selector": selector,
		"key":      key,
	})
	return err
}

// InnerText returns the rendered text of the element matching selector.
func (p *Page) InnerText(ctx context.Context, selector string) (string, error) {
	result, err := p.call(ctx, "page.innerText", map[string]any{"selector": selector})
	if err != nil {
		return "", err
	}
	var res struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return "", fmt.Errorf("decode innerText result: %w", err)
	}
	return res.Text, nil
}

// IsVisible reports whether the element matching selector is visible.
func (p *Page) IsVisible(ctx context.Context, selector string) (bool, error) {
	result, err := p.call(ctx, "page.isVisible", map[string]any{"selector": selector})
	if err != nil {
		return false, err
	}
	var res struct {
		Visible bool `json:"visible"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return false, fmt.Errorf("decode isVisible result: %w", err)
	}
	return res.Visible, nil
}

// QuerySelector returns the shell's description of the first matching
// element, or nil when nothing matches.
func (p *Page) QuerySelector(ctx context.Context, selector string) (json.RawMessage, error) {
	result, err := p.call(ctx, "page.querySelector", map[string]any{"selector": selector})
	if err != nil {
		return nil, err
	}
	var res struct {
		Element json.RawMessage `json:"element"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("decode querySelector result: %w", err)
	}
	if string(res.Element) == "null" {
		return nil, nil
	}
	return res.Element, nil
}

// QuerySelectorAll returns the shell's descriptions of every matching
// element.
func (p *Page) QuerySelectorAll(ctx context.Context, selector string) ([]json.RawMessage, error) {
	result, err := p.call(ctx, "page.querySelectorAll", map[string]any{"selector": selector})
	if err != nil {
		return nil, err
	}
	var res struct {
		Elements []json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, fmt.Errorf("decode querySelectorAll result: %w", err)
	}
	return res.Elements, nil
}

// Close closes the window in the shell and removes this page from the
// session's registry.
func (p *Page) Close(ctx context.Context) error {
	_, err := p.call(ctx, "page.close", nil)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.session.removePage(p.windowID)
	return nil
}

// On subscribes to a shell-emitted page event for this window, registering
// interest with the shell when this is the event's first handler. Handlers
// run on the connection's dispatch goroutine and must not block. Returns a
// subscription id for Off.
func (p *Page) On(ctx context.Context, event string, fn func(data json.RawMessage)) (string, error) {
	p.mu.Lock()
	first := len(p.listeners[event]) == 0
	id := uuid.New().String()
	p.listeners[event] = append(p.listeners[event], pageListener{id: id, fn: fn})
	p.mu.Unlock()

	if first {
		if _, err := p.call(ctx, "page.addEventListener", map[string]any{"event": event}); err != nil {
			p.dropListener(event, id)
			return "", err
		}
	}
	return id, nil
}

// Off removes a subscription made with On, telling the shell to stop
// emitting the event once its last handler is gone.
func (p *Page) Off(ctx context.Context, event, id string) error {
	if !p.dropListener(event, id) {
		return nil
	}

	p.mu.Lock()
	last := len(p.listeners[event]) == 0
	p.mu.Unlock()

	if last {
		if _, err := p.call(ctx, "page.removeEventListener", map[string]any{"event": event}); err != nil {
			return err
		}
	}
	return nil
}

func (p *Page) dropListener(event, id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.listeners[event]
	for i, sub := range subs {
		if sub.id == id {
			p.listeners[event] = append(subs[:i:i], subs[i+1:]...)
			if len(p.listeners[event]) == 0 {
				delete(p.listeners, event)
			}
			return true
		}
	}
	return false
}

// deliver fans a page event out to this window's handlers.
func (p *Page) deliver(event string, data json.RawMessage) {
	p.mu.Lock()
	subs := make([]pageListener, len(p.listeners[event]))
	copy(subs, p.listeners[event])
	p.mu.Unlock()

	for _, sub := range subs {
		sub.fn(data)
	}
}

// Keyboard returns window-level keyboard input.
func (p *Page) Keyboard() *Keyboard {
	return &Keyboard{page: p}
}

// Mouse returns window-level mouse input.
func (p *Page) Mouse() *Mouse {
	return &Mouse{page: p}
}

// Keyboard sends key input to a window as a whole, independent of any
// focused element.
type Keyboard struct {
	page *Page
}

// Press sends a single key or chord, e.g. "Enter" or "Control+a".
func (k *Keyboard) Press(ctx context.Context, key string) error {
	_, err := k.page.call(ctx, "keyboard.press", map[string]any{
		"key":   key,
		"delay": 0,
	})
	return err
}

// Type sends text one character at a time.
func (k *Keyboard) Type(ctx context.Context, text string) error {
	_, err := k.page.call(ctx, "keyboard.type", map[string]any{
		"text":  text,
		"delay": 0,
	})
	return err
}

// Mouse sends pointer input to a window by coordinate.
type Mouse struct {
	page *Page
}

// Click presses and releases the left button at (x, y).
func (m *Mouse) Click(ctx context.Context, x, y float64) error {
	_, err := m.page.call(ctx, "mouse.click", map[string]any{
		"x":       x,
		"y":       y,
		"options": map[string]any{},
	})
	return err
}

// Move moves the pointer to (x, y).
func (m *Mouse) Move(ctx context.Context, x, y float64) error {
	_, err := m.page.call(ctx, "mouse.move", map[string]any{"x": x, "y": y})
	return err
}

// Down presses the left button at the pointer's position.
func (m *Mouse) Down(ctx context.Context) error {
	_, err := m.page.call(ctx, "mouse.down", nil)
	return err
}

// Up releases the left button.
func (m *Mouse) Up(ctx context.Context) error {
	_, err := m.page.call(ctx, "mouse.up", nil)
	return err
}

// Locator binds a selector to a page so repeated actions on one element
// read naturally.
type Locator struct {
	page     *Page
	selector string
}

// Locator returns a selector-bound view of this page.
func (p *Page) Locator(selector string) *Locator {
	return &Locator{page: p, selector: selector}
}

// Click clicks the matched element.
func (l *Locator) Click(ctx context.Context) error {
	return l.page.Click(ctx, l.selector)
}

// Fill sets the matched input's value.
func (l *Locator) Fill(ctx context.Context, value string) error {
	return l.page.Fill(ctx, l.selector, value)
}

// Type sends text to the matched element key by key.
func (l *Locator) Type(ctx context.Context, text string) error {
	return l.page.Type(ctx, l.selector, text)
}

// Press sends a single key to the matched element.
func (l *Locator) Press(ctx context.Context, key string) error {
	return l.page.Press(ctx, l.selector, key)
}

// InnerText returns the matched element's rendered text.
func (l *Locator) InnerText(ctx context.Context) (string, error) {
	return l.page.InnerText(ctx, l.selector)
}

// IsVisible reports whether the matched element is visible.
func (l *Locator) IsVisible(ctx context.Context) (bool, error) {
	return l.page.IsVisible(ctx, l.selector)
}
