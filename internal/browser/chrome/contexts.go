package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/cookiepool/internal/models"
)

// ListContexts returns the open user tabs
func (b *Browser) ListContexts(ctx context.Context) ([]models.BrowsingContext, error) {
	var infos []*target.Info
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		infos, err = target.GetTargets().Do(b.browserExecutor(ctx))
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	contexts := make([]models.BrowsingContext, 0, len(infos))
	for _, info := range infos {
		if info == nil || !b.isUserPage(info) {
			continue
		}
		b.trackPage(info.TargetID, info.URL)
		contexts = append(contexts, models.BrowsingContext{ID: string(info.TargetID), URL: info.URL})
	}
	return contexts, nil
}

// OpenContext opens a new tab on url
func (b *Browser) OpenContext(ctx context.Context, url string) (models.BrowsingContext, error) {
	var id target.ID
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		id, err = target.CreateTarget(url).Do(b.browserExecutor(ctx))
		return err
	}))
	if err != nil {
		return models.BrowsingContext{}, fmt.Errorf("open %s: %w", url, err)
	}
	b.trackPage(id, url)
	return models.BrowsingContext{ID: string(id), URL: url}, nil
}

// CloseContext closes a tab. Unknown tabs are not an error.
func (b *Browser) CloseContext(ctx context.Context, contextID string) error {
	id := target.ID(contextID)
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.CloseTarget(id).Do(b.browserExecutor(ctx))
	}))
	if err != nil && !isNoTarget(err) {
		return fmt.Errorf("close %s: %w", contextID, err)
	}
	return nil
}

// InjectStorage writes payload into the tab origin's local and session storage.
// It fails while the document is still loading so callers can retry.
func (b *Browser) InjectStorage(ctx context.Context, contextID string, payload models.StoragePayload) error {
	script, err := injectScript(payload)
	if err != nil {
		return err
	}
	return b.evaluate(ctx, target.ID(contextID), script)
}

// ClearStorage clears the tab origin's local and session storage
func (b *Browser) ClearStorage(ctx context.Context, contextID string) error {
	return b.evaluate(ctx, target.ID(contextID), clearScript)
}

func (b *Browser) evaluate(ctx context.Context, id target.ID, script string) error {
	tabCtx, err := b.attach(id)
	if err != nil {
		return err
	}
	runCtx, cancel := b.actionContext(ctx, tabCtx)
	defer cancel()

	var ok bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &ok)); err != nil {
		return fmt.Errorf("evaluate in %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("evaluate in %s: document not ready", id)
	}
	return nil
}

// attach returns a chromedp context bound to the tab. Attachments derive from
// an uncancellable copy of the browser context: chromedp closes a target when
// its context is cancelled, and user tabs must survive our shutdown.
func (b *Browser) attach(id target.ID) (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("browser closed")
	}
	if id == b.controlID {
		return b.browserCtx, nil
	}
	if att, ok := b.attached[id]; ok {
		return att.ctx, nil
	}

	ctx, cancel := chromedp.NewContext(context.WithoutCancel(b.browserCtx), chromedp.WithTargetID(id))
	b.attached[id] = attachment{ctx: ctx, cancel: cancel}
	return ctx, nil
}

func isNoTarget(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no target with given id")
}

// injectScript returns an expression that stores payload and yields true, or
// false while the document is not ready
func injectScript(payload models.StoragePayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode storage payload: %w", err)
	}
	return fmt.Sprintf(`(function(p) {
	if (document.readyState === "loading" || location.protocol === "about:") { return false; }
	for (const [k, v] of Object.entries(p.local || {})) { window.localStorage.setItem(k, v); }
	for (const [k, v] of Object.entries(p.session || {})) { window.sessionStorage.setItem(k, v); }
	return true;
})(%s)`, data), nil
}

const clearScript = `(function() {
	if (location.protocol === "about:") { return true; }
	window.localStorage.clear();
	window.sessionStorage.clear();
	return true;
})()`
