package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/cookiepool/internal/models"
)

func TestParseHeaderCookies(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		outcome ParseOutcome
		cookies []ParsedCookie
		dropped int
	}{
		{
			name:    "semicolon list",
			raw:     "a=1; b=2",
			outcome: Parsed,
			cookies: []ParsedCookie{{Name: "a", Value: "1", Domain: "example.com"}, {Name: "b", Value: "2", Domain: "example.com"}},
		},
		{
			name:    "segment without equals is dropped",
			raw:     "a=1; c; b=2",
			outcome: Parsed,
			cookies: []ParsedCookie{{Name: "a", Value: "1", Domain: "example.com"}, {Name: "b", Value: "2", Domain: "example.com"}},
			dropped: 1,
		},
		{
			name:    "splits on first equals only",
			raw:     "token=YWJj==; x=1",
			outcome: Parsed,
			cookies: []ParsedCookie{{Name: "token", Value: "YWJj==", Domain: "example.com"}, {Name: "x", Value: "1", Domain: "example.com"}},
		},
		{
			name:    "empty name or value dropped",
			raw:     "=1; a=; b=2;",
			outcome: Parsed,
			cookies: []ParsedCookie{{Name: "b", Value: "2", Domain: "example.com"}},
			dropped: 2,
		},
		{
			name:    "json array with domain override",
			raw:     `[{"name":"a","value":"1"},{"name":"b","value":"2","domain":".other.com"},{"name":"","value":"x"}]`,
			outcome: Parsed,
			cookies: []ParsedCookie{{Name: "a", Value: "1", Domain: "example.com"}, {Name: "b", Value: "2", Domain: ".other.com"}},
			dropped: 1,
		},
		{
			name:    "nothing usable",
			raw:     "c; d",
			outcome: Malformed,
			dropped: 2,
		},
		{
			name:    "empty",
			raw:     "  ",
			outcome: Malformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHeaderCookies(tt.raw, "example.com")
			assert.Equal(t, tt.outcome, got.Outcome)
			assert.Equal(t, tt.cookies, got.Cookies)
			assert.Equal(t, tt.dropped, got.Dropped)
			if tt.outcome == Malformed {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}

func TestParseStoragePayload(t *testing.T) {
	payload, err := ParseStoragePayload(`__storage__:{"local":{"token":"abc"},"session":{"tab":"1"}}`, "__storage__:")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"token": "abc"}, payload.Local)
	assert.Equal(t, map[string]string{"tab": "1"}, payload.Session)

	_, err = ParseStoragePayload(`__storage__:{not json`, "__storage__:")
	assert.ErrorIs(t, err, models.ErrMalformedCredentialData)

	_, err = ParseStoragePayload(`__storage__:{}`, "__storage__:")
	assert.ErrorIs(t, err, models.ErrMalformedCredentialData)

	_, err = ParseStoragePayload(`__storage__:`, "__storage__:")
	assert.ErrorIs(t, err, models.ErrMalformedCredentialData)
}

func TestInferKind(t *testing.T) {
	const header, prefix = "header_cookies", "__storage__:"

	assert.Equal(t, models.CredentialHeaderCookieString,
		InferKind(models.CredentialEntry{Name: "header_cookies", Value: "a=1"}, header, prefix))
	assert.Equal(t, models.CredentialStoragePayload,
		InferKind(models.CredentialEntry{Name: "state", Value: `__storage__:{"local":{}}`}, header, prefix))
	assert.Equal(t, models.CredentialPlainCookie,
		InferKind(models.CredentialEntry{Name: "sid", Value: "abc"}, header, prefix))
	assert.Equal(t, models.CredentialPlainCookie,
		InferKind(models.CredentialEntry{Name: "header_cookies", Value: "a=1", Kind: models.CredentialPlainCookie}, header, prefix),
		"explicit kind wins")
}
