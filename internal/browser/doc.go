// Package browser exposes the Autai shell's embedded browser as a session
// of pages, hiding the command-channel protocol behind ordinary method
// calls.
//
// # Session
//
// A Session owns the command-channel connection and a registry of open
// windows:
//
//	sess, err := browser.Connect(ctx, "ws://127.0.0.1:9222", browser.Options{})
//	page, err := sess.Navigate(ctx, "https://example.com")
//
// The shell names windows; the session mirrors them as *Page values, keeps
// them in opening order for Tabs, and remembers which one is current.
// Navigate and NewTab make the new window current, SwitchTab moves the
// cursor, and session-level operations like ExecuteJS and StateSummary act
// on the current page. ExecuteJS with no page open fails with
// ErrNoActivePage rather than guessing.
//
// # Pages
//
// A Page forwards page.* commands carrying its window id: navigation
// (Goto, Reload, GoBack, GoForward), reading (Title, Content, InnerText,
// Evaluate), element actions (Click, Fill, Type, Press), queries
// (QuerySelector, IsVisible, WaitForSelector), and Screenshot. Keyboard and
// Mouse send window-level input by key name or coordinate, and Locator
// binds a selector for repeated actions on one element.
//
// Failures stay loud: the shell's error message comes back as the call's
// error. The one deliberate exception is StateSummary, which logs and omits
// the DOM tree or screenshot when the shell cannot produce them, because an
// agent step with a partial snapshot beats no step at all.
//
// # Page events
//
// The shell pushes page_event frames for windows that registered interest.
// Page.On subscribes a handler and sends page.addEventListener when it is
// the first for that event name; Page.Off reverses both. The session routes
// each frame to its window by id. Handlers run on the connection's dispatch
// goroutine in arrival order and must not block.
//
// # Reconnecting
//
// The rpc layer never redials. EnsureConnected is the policy layer on top:
// it pings, and on silence or a dead connection dials a fresh socket and
// re-sends initialize. The page registry survives; windows that died with
// the old shell process fail on next use with the shell's own error.
package browser
