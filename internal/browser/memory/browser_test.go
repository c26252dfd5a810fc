package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/cookiepool/internal/models"
)

func TestSetCookie_PrefixRules(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		param   models.CookieParam
		wantErr bool
	}{
		{"plain domain cookie", models.CookieParam{URL: "https://example.com/", Name: "sid", Value: "1", Domain: ".example.com", Secure: true}, false},
		{"domain does not cover host", models.CookieParam{URL: "https://other.com/", Name: "sid", Value: "1", Domain: "example.com"}, true},
		{"secure over http", models.CookieParam{URL: "http://example.com/", Name: "sid", Value: "1", Secure: true}, true},
		{"__Secure- without secure", models.CookieParam{URL: "https://example.com/", Name: "__Secure-id", Value: "1"}, true},
		{"__Host- with domain", models.CookieParam{URL: "https://example.com/", Name: "__Host-id", Value: "1", Domain: "example.com", Secure: true, Path: "/"}, true},
		{"__Host- valid", models.CookieParam{URL: "https://example.com/", Name: "__Host-id", Value: "1", Secure: true, Path: "/"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			err := b.SetCookie(ctx, tt.param)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCookieRejected)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRemoveCookie_Scoping(t *testing.T) {
	ctx := context.Background()
	b := New()

	require.NoError(t, b.SetCookie(ctx, models.CookieParam{URL: "https://example.com/", Name: "sid", Value: "1", Domain: ".example.com", Secure: true}))
	require.NoError(t, b.SetCookie(ctx, models.CookieParam{URL: "https://other.com/", Name: "sid", Value: "2"}))

	// Secure cookie is not sent over http, so the http variant leaves it alone
	require.NoError(t, b.RemoveCookie(ctx, "http://example.com/", "sid"))
	_, ok := b.Cookie("example.com", "sid")
	assert.True(t, ok)

	require.NoError(t, b.RemoveCookie(ctx, "https://app.example.com/", "sid"))
	_, ok = b.Cookie("example.com", "sid")
	assert.False(t, ok)

	c, ok := b.Cookie("other.com", "sid")
	assert.True(t, ok)
	assert.Equal(t, "2", c.Value)
}

func TestContextsAndEvents(t *testing.T) {
	ctx := context.Background()
	b := New()

	tab, err := b.OpenContext(ctx, "https://example.com/home")
	require.NoError(t, err)
	require.NoError(t, b.Navigate(tab.ID, "https://example.com/other"))
	require.NoError(t, b.CloseContext(ctx, tab.ID))
	require.NoError(t, b.CloseContext(ctx, tab.ID), "closing twice is harmless")

	var types []models.BrowserEventType
	for i := 0; i < 3; i++ {
		event := <-b.Events()
		types = append(types, event.Type)
	}
	assert.Equal(t, []models.BrowserEventType{
		models.BrowserContextOpened,
		models.BrowserContextNavigated,
		models.BrowserContextClosed,
	}, types)

	contexts, err := b.ListContexts(ctx)
	require.NoError(t, err)
	assert.Empty(t, contexts)

	require.NoError(t, b.Close())
	_, open := <-b.Events()
	assert.False(t, open)
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	b := New()
	tab, err := b.OpenContext(ctx, "https://example.com/")
	require.NoError(t, err)

	b.FailInject(1)
	assert.Error(t, b.InjectStorage(ctx, tab.ID, models.StoragePayload{Local: map[string]string{"k": "v"}}))
	require.NoError(t, b.InjectStorage(ctx, tab.ID, models.StoragePayload{
		Local:   map[string]string{"k": "v"},
		Session: map[string]string{"s": "1"},
	}))

	local, session := b.Storage("example.com")
	assert.Equal(t, map[string]string{"k": "v"}, local)
	assert.Equal(t, map[string]string{"s": "1"}, session)

	require.NoError(t, b.ClearStorage(ctx, tab.ID))
	local, _ = b.Storage("example.com")
	assert.Empty(t, local)

	assert.ErrorIs(t, b.InjectStorage(ctx, "missing", models.StoragePayload{}), ErrUnknownContext)
}
