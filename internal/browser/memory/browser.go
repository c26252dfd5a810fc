// Package memory is an in-process Browser with a cookie store that follows
// the browser's prefix and scoping rules. It backs the "memory" browser mode
// and the lifecycle tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// ErrCookieRejected is returned when the store refuses a cookie write
var ErrCookieRejected = errors.New("cookie rejected")

// ErrUnknownContext is returned for operations on a context that is not open
var ErrUnknownContext = errors.New("unknown browsing context")

type cookieKey struct {
	domain string
	path   string
	name   string
}

type storageArea struct {
	local   map[string]string
	session map[string]string
}

// Browser is safe for concurrent use
type Browser struct {
	mu       sync.Mutex
	cookies  map[cookieKey]models.Cookie
	contexts map[string]string // context ID -> URL
	order    []string
	storage  map[string]*storageArea // host -> storage
	nextID   int
	events   chan models.BrowserEvent
	closed   bool

	rejectCookie func(models.CookieParam) error
	failRemove   func(url, name string) error
	injectFails  int
}

var _ interfaces.Browser = (*Browser)(nil)

// New creates an empty browser
func New() *Browser {
	return &Browser{
		cookies:  make(map[cookieKey]models.Cookie),
		contexts: make(map[string]string),
		storage:  make(map[string]*storageArea),
		events:   make(chan models.BrowserEvent, 256),
	}
}

// RejectCookie installs a predicate that can refuse cookie writes, on top of the built-in rules
func (b *Browser) RejectCookie(fn func(models.CookieParam) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectCookie = fn
}

// FailRemove installs a predicate that can fail cookie removals
func (b *Browser) FailRemove(fn func(url, name string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRemove = fn
}

// FailInject makes the next n storage injections fail
func (b *Browser) FailInject(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.injectFails = n
}

func (b *Browser) SetCookie(ctx context.Context, param models.CookieParam) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := url.Parse(param.URL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("%w: invalid url %q", ErrCookieRejected, param.URL)
	}
	host := strings.ToLower(u.Hostname())
	path := param.Path
	if path == "" {
		path = "/"
	}

	if param.Name == "" {
		return fmt.Errorf("%w: empty name", ErrCookieRejected)
	}
	if param.Secure && u.Scheme != "https" {
		return fmt.Errorf("%w: secure cookie %s from insecure url", ErrCookieRejected, param.Name)
	}
	if strings.HasPrefix(param.Name, "__Secure-") && !param.Secure {
		return fmt.Errorf("%w: %s requires secure", ErrCookieRejected, param.Name)
	}
	if strings.HasPrefix(param.Name, "__Host-") && (!param.Secure || param.Domain != "" || path != "/") {
		return fmt.Errorf("%w: %s requires secure, path=/ and no domain", ErrCookieRejected, param.Name)
	}

	domain := host
	if param.Domain != "" {
		if !common.HostMatchesDomain(host, param.Domain) {
			return fmt.Errorf("%w: domain %s does not cover %s", ErrCookieRejected, param.Domain, host)
		}
		domain = "." + common.NormalizeDomain(param.Domain)
	}

	if b.rejectCookie != nil {
		if err := b.rejectCookie(param); err != nil {
			return fmt.Errorf("%w: %v", ErrCookieRejected, err)
		}
	}

	b.cookies[cookieKey{domain: domain, path: path, name: param.Name}] = models.Cookie{
		Name:     param.Name,
		Value:    param.Value,
		Domain:   domain,
		Path:     path,
		Secure:   param.Secure,
		HTTPOnly: param.HTTPOnly,
		SameSite: param.SameSite,
	}
	return nil
}

func (b *Browser) GetCookies(ctx context.Context) ([]models.Cookie, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cookies := make([]models.Cookie, 0, len(b.cookies))
	for _, c := range b.cookies {
		cookies = append(cookies, c)
	}
	sort.Slice(cookies, func(i, j int) bool {
		if cookies[i].Domain != cookies[j].Domain {
			return cookies[i].Domain < cookies[j].Domain
		}
		return cookies[i].Name < cookies[j].Name
	})
	return cookies, nil
}

// RemoveCookie removes every cookie named name that a request to rawURL would carry
func (b *Browser) RemoveCookie(ctx context.Context, rawURL string, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failRemove != nil {
		if err := b.failRemove(rawURL, name); err != nil {
			return err
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("invalid url %q", rawURL)
	}
	host := strings.ToLower(u.Hostname())
	reqPath := u.Path
	if reqPath == "" {
		reqPath = "/"
	}

	for key, c := range b.cookies {
		if c.Name != name || !cookieApplies(c, u.Scheme, host, reqPath) {
			continue
		}
		delete(b.cookies, key)
	}
	return nil
}

func cookieApplies(c models.Cookie, scheme, host, reqPath string) bool {
	if c.Secure && scheme != "https" {
		return false
	}
	if strings.HasPrefix(c.Domain, ".") {
		if !common.HostMatchesDomain(host, c.Domain) {
			return false
		}
	} else if c.Domain != host {
		return false
	}
	return strings.HasPrefix(reqPath, c.Path)
}

func (b *Browser) ListContexts(ctx context.Context) ([]models.BrowsingContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	contexts := make([]models.BrowsingContext, 0, len(b.order))
	for _, id := range b.order {
		contexts = append(contexts, models.BrowsingContext{ID: id, URL: b.contexts[id]})
	}
	return contexts, nil
}

func (b *Browser) OpenContext(ctx context.Context, rawURL string) (models.BrowsingContext, error) {
	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("ctx-%d", b.nextID)
	b.contexts[id] = rawURL
	b.order = append(b.order, id)
	b.mu.Unlock()

	b.emit(models.BrowserEvent{Type: models.BrowserContextOpened, ContextID: id, URL: rawURL})
	return models.BrowsingContext{ID: id, URL: rawURL}, nil
}

// Navigate points an open context at a new URL
func (b *Browser) Navigate(contextID, rawURL string) error {
	b.mu.Lock()
	if _, ok := b.contexts[contextID]; !ok {
		b.mu.Unlock()
		return ErrUnknownContext
	}
	b.contexts[contextID] = rawURL
	b.mu.Unlock()

	b.emit(models.BrowserEvent{Type: models.BrowserContextNavigated, ContextID: contextID, URL: rawURL})
	return nil
}

func (b *Browser) CloseContext(ctx context.Context, contextID string) error {
	b.mu.Lock()
	if _, ok := b.contexts[contextID]; !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.contexts, contextID)
	for i, id := range b.order {
		if id == contextID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	// Closed events do not carry the last URL, as with real browsers
	b.emit(models.BrowserEvent{Type: models.BrowserContextClosed, ContextID: contextID})
	return nil
}

// Suspend announces that the browser process is going away
func (b *Browser) Suspend() {
	b.emit(models.BrowserEvent{Type: models.BrowserSuspend})
}

func (b *Browser) InjectStorage(ctx context.Context, contextID string, payload models.StoragePayload) error {
	b.mu.Lock()
	rawURL, ok := b.contexts[contextID]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownContext
	}
	if b.injectFails > 0 {
		b.injectFails--
		b.mu.Unlock()
		return fmt.Errorf("page not ready")
	}

	area := b.area(models.HostFromURL(rawURL))
	for k, v := range payload.Local {
		area.local[k] = v
	}
	for k, v := range payload.Session {
		area.session[k] = v
	}
	b.mu.Unlock()

	b.emit(models.BrowserEvent{Type: models.BrowserStorageChanged, ContextID: contextID, URL: rawURL})
	return nil
}

func (b *Browser) ClearStorage(ctx context.Context, contextID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rawURL, ok := b.contexts[contextID]
	if !ok {
		return ErrUnknownContext
	}
	delete(b.storage, models.HostFromURL(rawURL))
	return nil
}

// Storage returns copies of the local and session storage of host
func (b *Browser) Storage(host string) (local, session map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	local, session = map[string]string{}, map[string]string{}
	if area, ok := b.storage[strings.ToLower(host)]; ok {
		for k, v := range area.local {
			local[k] = v
		}
		for k, v := range area.session {
			session[k] = v
		}
	}
	return local, session
}

// Cookie finds a stored cookie by name whose domain matches host
func (b *Browser) Cookie(host, name string) (models.Cookie, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range b.cookies {
		if c.Name == name && common.HostMatchesDomain(host, c.Domain) {
			return c, true
		}
	}
	return models.Cookie{}, false
}

func (b *Browser) area(host string) *storageArea {
	area, ok := b.storage[host]
	if !ok {
		area = &storageArea{local: map[string]string{}, session: map[string]string{}}
		b.storage[host] = area
	}
	return area
}

func (b *Browser) Events() <-chan models.BrowserEvent {
	return b.events
}

// emit never blocks; a full buffer drops the event
func (b *Browser) emit(event models.BrowserEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.events <- event:
	default:
	}
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}
