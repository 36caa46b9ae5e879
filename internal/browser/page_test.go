// ABOUTME: Tests for Page command forwarding and the event listener lifecycle
// ABOUTME: Verifies window ids, param shapes, and addEventListener bookkeeping

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func navigatedPage(t *testing.T, respond func(method string, params map[string]any) (any, error)) (*Page, *Session, *fakeShell) {
	t.Helper()

	base := windowShell()
	s, fake := newTestSession(t, func(method string, params map[string]any) (any, error) {
		if respond != nil {
			if result, err := respond(method, params); result != nil || err != nil {
				return result, err
			}
		}
		return base(method, params)
	})
	page, err := s.Navigate(t.Context(), "https://example.com")
	require.NoError(t, err)
	return page, s, fake
}

func TestPage_CommandsCarryWindowID(t *testing.T) {
	tests := []struct {
		name       string
		do         func(ctx context.Context, p *Page) error
		method     string
		wantParams map[string]any
	}{
		{
			name:   "reload",
			do:     func(ctx context.Context, p *Page) error { return p.Reload(ctx) },
			method: "page.reload",
		},
		{
			name:   "go back",
			do:     func(ctx context.Context, p *Page) error { return p.GoBack(ctx) },
			method: "page.goBack",
		},
		{
			name:   "go forward",
			do:     func(ctx context.Context, p *Page) error { return p.GoForward(ctx) },
			method: "page.goForward",
		},
		{
			name: "wait for load state",
			do: func(ctx context.Context, p *Page) error {
				return p.WaitForLoadState(ctx, "domcontentloaded")
			},
			method:     "page.waitForLoadState",
			wantParams: map[string]any{"state": "domcontentloaded"},
		},
		{
			name: "wait for selector",
			do: func(ctx context.Context, p *Page) error {
				return p.WaitForSelector(ctx, "#login", "visible")
			},
			method: "page.waitForSelector",
			wantParams: map[string]any{
				"selector": "#login",
				"options":  map[string]any{"state": "visible"},
			},
		},
		{
			name:       "click",
			do:         func(ctx context.Context, p *Page) error { return p.Click(ctx, "#go") },
			method:     "page.click",
			wantParams: map[string]any{"selector": "#go"},
		},
		{
			name:       "fill",
			do:         func(ctx context.Context, p *Page) error { return p.Fill(ctx, "#q", "weather") },
			method:     "page.fill",
			wantParams: map[string]any{"selector": "#q", "value": "weather"},
		},
		{
			name:       "type",
			do:         func(ctx context.Context, p *Page) error { return p.Type(ctx, "#q", "hi") },
			method:     "page.type",
			wantParams: map[string]any{"selector": "#q", "text": "hi"},
		},
		{
			name:       "press",
			do:         func(ctx context.Context, p *Page) error { return p.Press(ctx, "#q", "Enter") },
			method:     "page.press",
			wantParams: map[string]any{"selector": "#q", "key": "Enter"},
		},
		{
			name:       "keyboard press",
			do:         func(ctx context.Context, p *Page) error { return p.Keyboard().Press(ctx, "Escape") },
			method:     "keyboard.press",
			wantParams: map[string]any{"key": "Escape", "delay": float64(0)},
		},
		{
			name:       "keyboard type",
			do:         func(ctx context.Context, p *Page) error { return p.Keyboard().Type(ctx, "hello") },
			method:     "keyboard.type",
			wantParams: map[string]any{"text": "hello", "delay": float64(0)},
		},
		{
			name:   "mouse click",
			do:     func(ctx context.Context, p *Page) error { return p.Mouse().Click(ctx, 10, 20) },
			method: "mouse.click",
			wantParams: map[string]any{
				"x": float64(10), "y": float64(20), "options": map[string]any{},
			},
		},
		{
			name:       "mouse move",
			do:         func(ctx context.Context, p *Page) error { return p.Mouse().Move(ctx, 3, 4) },
			method:     "mouse.move",
			wantParams: map[string]any{"x": float64(3), "y": float64(4)},
		},
		{
			name:   "mouse down",
			do:     func(ctx context.Context, p *Page) error { return p.Mouse().Down(ctx) },
			method: "mouse.down",
		},
		{
			name:   "mouse up",
			do:     func(ctx context.Context, p *Page) error { return p.Mouse().Up(ctx) },
			method: "mouse.up",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, _, fake := navigatedPage(t, nil)
			require.NoError(t, tt.do(t.Context(), page))

			call := fake.lastCall(t)
			assert.Equal(t, tt.method, call.method)
			assert.Equal(t, "win-1", call.params["window_id"])
			for key, want := range tt.wantParams {
				assert.Equal(t, want, call.params[key], "param %q", key)
			}
		})
	}
}

func TestPage_GotoUpdatesCachedURL(t *testing.T) {
	page, _, fake := navigatedPage(t, func(method string, params map[string]any) (any, error) {
		if method == "page.goto" {
			return map[string]any{"url": params["url"], "status": float64(200)}, nil
		}
		return nil, nil
	})

	require.NoError(t, page.Goto(t.Context(), "https://example.org/next"))
	assert.Equal(t, "https://example.org/next", page.URL())

	call := fake.lastCall(t)
	assert.Equal(t, "page.goto", call.method)
	assert.Equal(t, "win-1", call.params["window_id"])
}

func TestPage_TitleRefreshesCache(t *testing.T) {
	page, s, _ := navigatedPage(t, func(method string, params map[string]any) (any, error) {
		if method == "page.title" {
			return map[string]any{"title": "Fresh Title"}, nil
		}
		return nil, nil
	})

	title, err := page.Title(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Fresh Title", title)

	summary, err := s.StateSummary(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Fresh Title", summary.Title, "summary reads the cached title")
}

func TestPage_EvaluateReturnsValue(t *testing.T) {
	page, _, _ := navigatedPage(t, func(method string, params map[string]any) (any, error) {
		if method == "page.evaluate" {
			return map[string]any{"value": map[string]any{"n": float64(42)}}, nil
		}
		return nil, nil
	})

	value, err := page.Evaluate(t.Context(), "({n: 42})")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":42}`, string(value))
}

func TestPage_ContentAndInnerTextAndVisibility(t *testing.T) {
	page, _, _ := navigatedPage(t, func(method string, params map[string]any) (any, error) {
		switch method {
		case "page.content":
			return map[string]any{"content": "<html></html>"}, nil
		case "page.innerText":
			return map[string]any{"text": "Sign in"}, nil
		case "page.isVisible":
			return map[string]any{"visible": true}, nil
		}
		return nil, nil
	})
	ctx := t.Context()

	content, err := page.Content(ctx)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", content)

	text, err := page.InnerText(ctx, "#login")
	require.NoError(t, err)
	assert.Equal(t, "Sign in", text)

	visible, err := page.IsVisible(ctx, "#login")
	require.NoError(t, err)
	assert.True(t, visible)
}

func TestPage_QuerySelector(t *testing.T) {
	page, _, _ := navigatedPage(t, func(method string, params map[string]any) (any, error) {
		switch method {
		case "page.querySelector":
			sel, _ := params["selector"].(string)
			if sel == "#missing" {
				return map[string]any{"element": nil}, nil
			}
			return map[string]any{"element": map[string]any{"tag": "button"}}, nil
		case "page.querySelectorAll":
			return map[string]any{"elements": []any{
				map[string]any{"tag": "a"},
				map[string]any{"tag": "a"},
			}}, nil
		}
		return nil, nil
	})
	ctx := t.Context()

	el, err := page.QuerySelector(ctx, "#go")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag":"button"}`, string(el))

	missing, err := page.QuerySelector(ctx, "#missing")
	require.NoError(t, err)
	assert.Nil(t, missing, "no match decodes to nil, not an error")

	all, err := page.QuerySelectorAll(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPage_CloseRemovesFromSession(t *testing.T) {
	page, s, fake := navigatedPage(t, nil)

	require.NoError(t, page.Close(t.Context()))
	assert.True(t, page.Closed())
	assert.Nil(t, s.CurrentPage())
	assert.Empty(t, s.Tabs())

	call := fake.lastCall(t)
	assert.Equal(t, "page.close", call.method)
	assert.Equal(t, "win-1", call.params["window_id"])
}

func TestPage_CloseFailureKeepsPage(t *testing.T) {
	page, s, _ := navigatedPage(t, func(method string, params map[string]any) (any, error) {
		if method == "page.close" {
			return nil, errors.New("window busy")
		}
		return nil, nil
	})

	err := page.Close(t.Context())
	require.Error(t, err)
	assert.False(t, page.Closed())
	assert.Same(t, page, s.CurrentPage())
}

func TestPage_ListenerLifecycle(t *testing.T) {
	page, _, fake := navigatedPage(t, nil)
	ctx := t.Context()

	countMethod := func(method string) int {
		n := 0
		for _, m := range fake.methods() {
			if m == method {
				n++
			}
		}
		return n
	}

	id1, err := page.On(ctx, "load", func(json.RawMessage) {})
	require.NoError(t, err)
	id2, err := page.On(ctx, "load", func(json.RawMessage) {})
	require.NoError(t, err)
	assert.Equal(t, 1, countMethod("page.addEventListener"),
		"interest is registered once per event name")

	require.NoError(t, page.Off(ctx, "load", id1))
	assert.Equal(t, 0, countMethod("page.removeEventListener"),
		"interest stays while handlers remain")

	require.NoError(t, page.Off(ctx, "load", id2))
	assert.Equal(t, 1, countMethod("page.removeEventListener"))

	// Unknown ids are a no-op.
	require.NoError(t, page.Off(ctx, "load", "nope"))
	assert.Equal(t, 1, countMethod("page.removeEventListener"))
}

func TestPage_OnRollsBackWhenRegistrationFails(t *testing.T) {
	fail := true
	page, _, fake := navigatedPage(t, func(method string, params map[string]any) (any, error) {
		if method == "page.addEventListener" && fail {
			return nil, errors.New("shell refused")
		}
		return nil, nil
	})
	ctx := t.Context()

	_, err := page.On(ctx, "load", func(json.RawMessage) {})
	require.Error(t, err)

	// The failed handler was rolled back, so the next On is "first" again.
	fail = false
	_, err = page.On(ctx, "load", func(json.RawMessage) {})
	require.NoError(t, err)

	registrations := 0
	for _, m := range fake.methods() {
		if m == "page.addEventListener" {
			registrations++
		}
	}
	assert.Equal(t, 2, registrations)
}

func TestPage_DeliverSkipsRemovedHandlers(t *testing.T) {
	page, _, _ := navigatedPage(t, nil)
	ctx := t.Context()

	var kept, removed int
	idKeep, err := page.On(ctx, "load", func(json.RawMessage) { kept++ })
	require.NoError(t, err)
	idDrop, err := page.On(ctx, "load", func(json.RawMessage) { removed++ })
	require.NoError(t, err)
	require.NoError(t, page.Off(ctx, "load", idDrop))

	// Removal holds across repeated deliveries, not just the next one.
	page.deliver("load", json.RawMessage(`{}`))
	page.deliver("load", json.RawMessage(`{}`))
	page.deliver("other", json.RawMessage(`{}`))

	assert.Equal(t, 2, kept)
	assert.Equal(t, 0, removed)
	_ = idKeep
}

func TestLocator_DelegatesToPage(t *testing.T) {
	page, _, fake := navigatedPage(t, func(method string, params map[string]any) (any, error) {
		switch method {
		case "page.innerText":
			return map[string]any{"text": "Go"}, nil
		case "page.isVisible":
			return map[string]any{"visible": true}, nil
		}
		return nil, nil
	})
	ctx := t.Context()
	loc := page.Locator("#go")

	require.NoError(t, loc.Click(ctx))
	call := fake.lastCall(t)
	assert.Equal(t, "page.click", call.method)
	assert.Equal(t, "#go", call.params["selector"])

	require.NoError(t, loc.Fill(ctx, "v"))
	require.NoError(t, loc.Type(ctx, "t"))
	require.NoError(t, loc.Press(ctx, "Tab"))

	text, err := loc.InnerText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Go", text)

	visible, err := loc.IsVisible(ctx)
	require.NoError(t, err)
	assert.True(t, visible)
}
