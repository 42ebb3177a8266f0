package remote

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailvault/pkg/errors"
)

func TestListMessageIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "label:work", r.URL.Query().Get("q"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		switch r.URL.Query().Get("pageToken") {
		case "":
			w.Write([]byte(`{"messages":[{"id":"aaa111"},{"id":"bbb222"}],"nextPageToken":"tok-2","resultSizeEstimate":3}`))
		case "tok-2":
			w.Write([]byte(`{"messages":[{"id":"ccc333"}],"resultSizeEstimate":3}`))
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", nil)

	page, err := client.ListMessageIDs(context.Background(), "label:work", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa111", "bbb222"}, page.IDs)
	assert.Equal(t, "tok-2", page.NextPageToken)
	assert.Equal(t, 3, page.ResultSizeEstimate)

	page, err = client.ListMessageIDs(context.Background(), "label:work", "tok-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"ccc333"}, page.IDs)
	assert.Empty(t, page.NextPageToken)
}

func TestFetchMessage(t *testing.T) {
	raw := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte("From: a@b\r\n\r\nhello"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/aaa111", r.URL.Path)
		assert.Equal(t, "raw", r.URL.Query().Get("format"))
		w.Write([]byte(`{"id":"aaa111","internalDate":"1706715753000","subject":"hello","raw":"` + raw + `"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", nil)
	msg, err := client.FetchMessage(context.Background(), "aaa111")
	require.NoError(t, err)

	assert.Equal(t, "aaa111", msg.ID)
	assert.Equal(t, "hello", msg.Subject)
	assert.Equal(t, []byte("From: a@b\r\n\r\nhello"), msg.Raw)
	assert.Equal(t, time.UnixMilli(1706715753000).Unix(), msg.Received.Unix())
}

func TestAPIErrorTranslation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"rate limit exceeded"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", nil)
	_, err := client.ListMessageIDs(context.Background(), "", "")
	require.Error(t, err)

	apiErr, ok := errors.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 429, apiErr.StatusCode)
	assert.Equal(t, "rate limit exceeded", apiErr.Message)
	assert.Equal(t, 17*time.Second, apiErr.RetryAfter)
	assert.Equal(t, errors.ErrorTypeRateLimit, apiErr.Type())
}

func TestQuotaErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"Quota exceeded for quota metric"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", nil)
	_, err := client.FetchMessage(context.Background(), "aaa111")
	require.Error(t, err)

	apiErr, ok := errors.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorTypeQuota, apiErr.Type())
}

func TestNetworkErrorIsNotAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewClient(server.URL, "test-token", nil)
	_, err := client.ListMessageIDs(context.Background(), "", "")
	require.Error(t, err)

	_, ok := errors.AsAPIError(err)
	assert.False(t, ok, "transport failures must not look like API errors")
}

func TestMalformedBodyStillUsesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("<html>bad gateway page</html>"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token", nil)
	_, err := client.ListMessageIDs(context.Background(), "", "")
	require.Error(t, err)

	apiErr, ok := errors.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, errors.ErrorTypeServerError, apiErr.Type())
}
