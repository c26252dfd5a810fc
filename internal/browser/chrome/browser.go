// Package chrome implements the Browser over the Chrome DevTools Protocol.
//
// The browser is either launched (exec allocator) or attached to through a
// DevTools websocket (remote allocator). A control tab owned by this package
// carries cookie commands; script evaluation in user tabs runs through
// per-target attachments that are released when the tab goes away.
package chrome

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/models"
)

const (
	eventBufferSize = 256
	healthInterval  = 5 * time.Second
)

// Browser drives one Chrome instance
type Browser struct {
	logger        arbor.ILogger
	actionTimeout time.Duration
	remote        bool

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	controlID     target.ID

	events chan models.BrowserEvent

	mu       sync.Mutex
	pages    map[target.ID]string // Open page targets and their last URL
	attached map[target.ID]attachment
	closed   bool

	suspendOnce sync.Once
	done        chan struct{}
	wg          sync.WaitGroup
}

type attachment struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New launches or attaches to Chrome and starts watching its targets
func New(ctx context.Context, config common.BrowserConfig, logger arbor.ILogger) (*Browser, error) {
	b := &Browser{
		logger:        logger,
		actionTimeout: common.ParseDuration(config.ActionTimeout, 15*time.Second),
		remote:        config.RemoteURL != "",
		events:        make(chan models.BrowserEvent, eventBufferSize),
		pages:         make(map[target.ID]string),
		attached:      make(map[target.ID]attachment),
		done:          make(chan struct{}),
	}

	var allocCtx context.Context
	if b.remote {
		allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), config.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", config.Headless),
			chromedp.Flag("no-sandbox", config.NoSandbox),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if config.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(config.UserDataDir))
		}
		if config.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(config.UserAgent))
		}
		allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	}

	b.browserCtx, b.browserCancel = chromedp.NewContext(allocCtx)

	// The first Run starts the browser (or connects) and creates the control tab.
	// It must not carry a timeout, which would end the browser with it.
	if err := chromedp.Run(b.browserCtx); err != nil {
		b.browserCancel()
		b.allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	startCtx, cancel := context.WithTimeout(b.browserCtx, common.ParseDuration(config.StartupTimeout, 30*time.Second))
	defer cancel()

	err := chromedp.Run(startCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return target.SetDiscoverTargets(true).Do(b.browserExecutor(ctx))
		}),
	)
	if err != nil {
		b.browserCancel()
		b.allocCancel()
		return nil, fmt.Errorf("enable target discovery: %w", err)
	}
	b.controlID = chromedp.FromContext(b.browserCtx).Target.TargetID

	chromedp.ListenBrowser(b.browserCtx, b.onBrowserEvent)

	// Seed known pages so navigations of tabs opened before start are recognised
	if _, err := b.ListContexts(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial target scan failed")
	}

	b.wg.Add(1)
	go b.watchHealth()

	logger.Info().
		Bool("remote", b.remote).
		Str("control_target", string(b.controlID)).
		Msg("Browser connected")
	return b, nil
}

// Events streams context and lifecycle notifications
func (b *Browser) Events() <-chan models.BrowserEvent {
	return b.events
}

// Close releases the browser. A launched browser exits; an attached browser
// keeps running with its tabs intact.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()

	b.browserCancel()
	b.allocCancel()
	b.logger.Info().Bool("remote", b.remote).Msg("Browser released")
	return nil
}

// browserExecutor runs commands against the browser target rather than a tab
func (b *Browser) browserExecutor(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser)
}

// run executes actions on the control tab within the action timeout
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	if b.isClosed() {
		return fmt.Errorf("browser closed")
	}
	runCtx, cancel := b.actionContext(ctx, b.browserCtx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// actionContext derives from base (which carries the chromedp target) and
// also ends when the caller's ctx ends or the action timeout passes
func (b *Browser) actionContext(ctx, base context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(base, b.actionTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (b *Browser) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Browser) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo == nil || !b.isUserPage(e.TargetInfo) {
			return
		}
		b.trackPage(e.TargetInfo.TargetID, e.TargetInfo.URL)
		b.emit(models.BrowserEvent{Type: models.BrowserContextOpened, ContextID: string(e.TargetInfo.TargetID), URL: e.TargetInfo.URL})

	case *target.EventTargetInfoChanged:
		if e.TargetInfo == nil || !b.isUserPage(e.TargetInfo) {
			return
		}
		if !b.trackPage(e.TargetInfo.TargetID, e.TargetInfo.URL) {
			return
		}
		b.emit(models.BrowserEvent{Type: models.BrowserContextNavigated, ContextID: string(e.TargetInfo.TargetID), URL: e.TargetInfo.URL})

	case *target.EventTargetDestroyed:
		if !b.forgetPage(e.TargetID) {
			return
		}
		b.emit(models.BrowserEvent{Type: models.BrowserContextClosed, ContextID: string(e.TargetID)})
	}
}

func (b *Browser) isUserPage(info *target.Info) bool {
	return info.Type == "page" && info.TargetID != b.controlID
}

// trackPage records a page URL and reports whether it changed
func (b *Browser) trackPage(id target.ID, url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	previous, known := b.pages[id]
	b.pages[id] = url
	return !known || previous != url
}

// forgetPage drops a page and its attachment, reporting whether it was known
func (b *Browser) forgetPage(id target.ID) bool {
	b.mu.Lock()
	_, known := b.pages[id]
	delete(b.pages, id)
	att, hasAttachment := b.attached[id]
	delete(b.attached, id)
	b.mu.Unlock()

	if hasAttachment {
		// The target is gone, so the close issued on cancel is a no-op
		att.cancel()
	}
	return known
}

// emit never blocks the CDP event loop. Dropped events are recovered by the
// manager's rescans.
func (b *Browser) emit(event models.BrowserEvent) {
	select {
	case b.events <- event:
	default:
		b.logger.Warn().Str("type", string(event.Type)).Str("context_id", event.ContextID).Msg("Browser event dropped, consumer is behind")
	}
}

// watchHealth emits one suspend event when the browser stops answering
func (b *Browser) watchHealth() {
	defer b.wg.Done()
	defer common.Recover(b.logger, "browser-health")

	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-b.browserCtx.Done():
			b.suspend("browser context ended")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(b.browserCtx, b.actionTimeout)
			_, err := target.GetTargets().Do(b.browserExecutor(ctx))
			cancel()
			if err != nil && !b.isClosed() {
				b.logger.Warn().Err(err).Msg("Browser stopped answering")
				b.suspend(err.Error())
				return
			}
		}
	}
}

func (b *Browser) suspend(reason string) {
	b.suspendOnce.Do(func() {
		b.logger.Info().Str("reason", reason).Msg("Browser suspending")
		b.emit(models.BrowserEvent{Type: models.BrowserSuspend})
	})
}
