// internal/actuator/browser/browser.go

// Package browser drives a managed Chrome instance over CDP and exposes it
// as an actuator. One Actuator owns one browser; sessions share it.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
)

// Actuator is the CDP-backed implementation of schemas.Actuator.
type Actuator struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	// tabCtx is the chromedp context of the currently active tab. Every
	// action and screenshot runs against it.
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

// New launches the browser and opens the start page.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Actuator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	a := &Actuator{
		cfg:         cfg,
		logger:      logger.Named("BrowserActuator"),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
	startURL := cfg.StartURL
	if startURL == "" {
		startURL = "about:blank"
	}
	if err := a.openFirstTabLocked(startURL); err != nil {
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return a, nil
}

// Close shuts the browser down.
func (a *Actuator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tabCancel != nil {
		a.tabCancel()
	}
	if a.allocCancel != nil {
		a.allocCancel()
	}
}

// TakeScreenshot captures the active tab as a PNG data URI together with the
// viewport size, the current URL and the open tab list. Failures come back in
// the result, not as an error, so the caller's retry loop stays simple.
func (a *Actuator) TakeScreenshot(ctx context.Context) (*schemas.ScreenshotResult, error) {
	a.mu.Lock()
	tabCtx := a.tabCtx
	a.mu.Unlock()

	var buf []byte
	var url string
	var width, height int
	err := a.run(ctx, tabCtx, chromedp.Tasks{
		chromedp.Location(&url),
		chromedp.Evaluate(`window.innerWidth`, &width),
		chromedp.Evaluate(`window.innerHeight`, &height),
		chromedp.CaptureScreenshot(&buf),
	})
	if err != nil {
		return &schemas.ScreenshotResult{Success: false, Error: err.Error()}, nil
	}

	tabs, err := a.listTabs(tabCtx)
	if err != nil {
		a.logger.Warn("Failed to list tabs.", zap.Error(err))
	}

	return &schemas.ScreenshotResult{
		Success:    true,
		Screenshot: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf),
		Width:      width,
		Height:     height,
		URL:        url,
		Tabs:       tabs,
	}, nil
}

// ExecuteAction maps one tool call onto CDP input events or tab management.
func (a *Actuator) ExecuteAction(ctx context.Context, action schemas.ActionRequest) (schemas.ActionResult, error) {
	a.mu.Lock()
	tabCtx := a.tabCtx
	a.mu.Unlock()

	a.logger.Debug("Executing browser action.", zap.String("type", action.Type))

	switch action.Type {
	case "mouse_click", "mouse_double_click", "mouse_hover", "mouse_drag",
		"mouse_scroll", "keyboard_type", "keyboard_press", "clear_text", "click_and_type":
		task, desc, err := buildInputTask(action)
		if err != nil {
			return schemas.FailedResult(err.Error()), nil
		}
		if err := a.run(ctx, tabCtx, task); err != nil {
			return schemas.FailedResult(err.Error()), nil
		}
		return schemas.OKResult(desc), nil

	case "navigate":
		url, err := strParam(action.Params, "url")
		if err != nil {
			return schemas.FailedResult(err.Error()), nil
		}
		if err := a.run(ctx, tabCtx, chromedp.Navigate(url)); err != nil {
			return schemas.FailedResult(err.Error()), nil
		}
		return schemas.OKResult("navigated to " + url), nil

	case "new_tab":
		return a.newTab(ctx, action.Params)

	case "switch_tab":
		return a.switchTab(ctx, action.Params)

	case "list_tabs":
		tabs, err := a.listTabs(tabCtx)
		if err != nil {
			return schemas.FailedResult(err.Error()), nil
		}
		return schemas.ActionResult{"status": "success", "tabs": tabs, "count": len(tabs)}, nil

	case "clear_cookies":
		if err := a.run(ctx, tabCtx, clearCookiesTask()); err != nil {
			return schemas.FailedResult(err.Error()), nil
		}
		return schemas.OKResult("cookies and local storage cleared"), nil

	case "reset_browser":
		return a.reset(action.Params)
	}

	return schemas.FailedResult(fmt.Sprintf("unsupported browser action: %s", action.Type)), nil
}

// run executes a chromedp task against the tab, bounded by both the caller's
// context and the configured navigation timeout.
func (a *Actuator) run(ctx context.Context, tabCtx context.Context, task chromedp.Action) error {
	runCtx := tabCtx
	var cancel context.CancelFunc
	if a.cfg.NavigationTimeout > 0 {
		runCtx, cancel = context.WithTimeout(tabCtx, a.cfg.NavigationTimeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, task) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		return ctx.Err()
	}
}

func (a *Actuator) listTabs(tabCtx context.Context) ([]schemas.TabInfo, error) {
	infos, err := chromedp.Targets(tabCtx)
	if err != nil {
		return nil, err
	}
	current := currentTargetID(tabCtx)

	var tabs []schemas.TabInfo
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabs = append(tabs, schemas.TabInfo{
			Index:    len(tabs),
			Title:    info.Title,
			URL:      info.URL,
			IsActive: info.TargetID == current,
		})
	}
	return tabs, nil
}

func (a *Actuator) pageTargets(tabCtx context.Context) ([]*target.Info, error) {
	infos, err := chromedp.Targets(tabCtx)
	if err != nil {
		return nil, err
	}
	var pages []*target.Info
	for _, info := range infos {
		if info.Type == "page" {
			pages = append(pages, info)
		}
	}
	return pages, nil
}

func (a *Actuator) newTab(ctx context.Context, params map[string]interface{}) (schemas.ActionResult, error) {
	url, err := strParam(params, "url")
	if err != nil {
		return schemas.FailedResult(err.Error()), nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(a.tabCtx)
	if err := chromedp.Run(tabCtx, chromedp.Navigate(url)); err != nil {
		tabCancel()
		return schemas.FailedResult(err.Error()), nil
	}
	// The new tab becomes active. The old tab stays open; its context is
	// re-attachable through switch_tab.
	a.tabCtx = tabCtx
	a.tabCancel = tabCancel
	return schemas.OKResult("opened new tab at " + url), nil
}

func (a *Actuator) switchTab(ctx context.Context, params map[string]interface{}) (schemas.ActionResult, error) {
	index, err := intParam(params, "index")
	if err != nil {
		return schemas.FailedResult(err.Error()), nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pages, err := a.pageTargets(a.tabCtx)
	if err != nil {
		return schemas.FailedResult(err.Error()), nil
	}
	if index < 0 || index >= len(pages) {
		return schemas.FailedResult(fmt.Sprintf("tab index %d out of range (0-%d)", index, len(pages)-1)), nil
	}

	tabCtx, tabCancel := chromedp.NewContext(a.tabCtx, chromedp.WithTargetID(pages[index].TargetID))
	// Attach and bring the tab to the foreground.
	if err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(c context.Context) error {
		return target.ActivateTarget(pages[index].TargetID).Do(c)
	})); err != nil {
		tabCancel()
		return schemas.FailedResult(err.Error()), nil
	}
	a.tabCtx = tabCtx
	a.tabCancel = tabCancel
	return schemas.OKResult(fmt.Sprintf("switched to tab %d (%s)", index, pages[index].Title)), nil
}

func (a *Actuator) reset(params map[string]interface{}) (schemas.ActionResult, error) {
	url, _ := params["url"].(string)
	if url == "" {
		url = "about:blank"
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.tabCancel != nil {
		a.tabCancel()
	}
	if err := a.openFirstTabLocked(url); err != nil {
		return schemas.FailedResult(err.Error()), nil
	}
	a.logger.Info("Browser environment reset.", zap.String("url", url))
	return schemas.OKResult("browser reset, now at " + url), nil
}

func (a *Actuator) openFirstTabLocked(url string) error {
	tabCtx, tabCancel := chromedp.NewContext(a.allocCtx)
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(a.cfg.ViewportWidth), int64(a.cfg.ViewportHeight)),
		chromedp.Navigate(url),
	}
	if err := chromedp.Run(tabCtx, tasks); err != nil {
		tabCancel()
		return err
	}
	a.tabCtx = tabCtx
	a.tabCancel = tabCancel
	return nil
}

func currentTargetID(tabCtx context.Context) target.ID {
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		return c.Target.TargetID
	}
	return ""
}
