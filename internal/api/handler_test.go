package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bradykim7/dentscraper/internal/crawler"
	"github.com/bradykim7/dentscraper/internal/models"
	"github.com/bradykim7/dentscraper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testToken = "s3cret"

type fakeScraper struct {
	calls    []models.ScrapeParameters
	result   int
	err      error
	stats    crawler.RunStats
	maxPages int
}

func (f *fakeScraper) Run(ctx context.Context, params models.ScrapeParameters) (int, error) {
	f.calls = append(f.calls, params)
	return f.result, f.err
}

func (f *fakeScraper) Stats() crawler.RunStats {
	return f.stats
}

func (f *fakeScraper) MaxPageLimit() int {
	return f.maxPages
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context) (models.NotificationPreference, bool, error) {
	return models.NotificationPreference{}, false, errors.New("connection refused")
}

func (failingStore) Upsert(ctx context.Context, pref models.NotificationPreference) error {
	return errors.New("connection refused")
}

func newTestHandler(scraper *fakeScraper, prefs storage.PreferenceStore) http.Handler {
	return NewHandler(scraper, prefs, models.DefaultNotificationPreference(), testToken, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestPublicRoutes(t *testing.T) {
	h := newTestHandler(&fakeScraper{}, storage.NewMemoryPreferenceStore())

	rec := do(t, h, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to DentScraper API", decode[messageResponse](t, rec).Message)

	rec = do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	scraper := &fakeScraper{}
	h := newTestHandler(scraper, storage.NewMemoryPreferenceStore())

	routes := []struct{ method, path, body string }{
		{http.MethodPost, "/api/scrape", `{"page_limit":1}`},
		{http.MethodGet, "/api/scrape/stats", ""},
		{http.MethodGet, "/api/notification/config", ""},
		{http.MethodPost, "/api/notification/config", `{"notification_type":"terminal"}`},
	}

	for _, route := range routes {
		for _, token := range []string{"", "wrong", testToken + "x"} {
			rec := do(t, h, route.method, route.path, token, route.body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s token=%q", route.method, route.path, token)
			assert.Equal(t, "Invalid token", decode[errorResponse](t, rec).Detail)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/scrape/stats", nil)
	req.Header.Set("Authorization", "Basic "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, scraper.calls)
}

func TestAuthSchemeCaseInsensitive(t *testing.T) {
	h := newTestHandler(&fakeScraper{}, storage.NewMemoryPreferenceStore())

	for _, header := range []string{"Bearer " + testToken, "bearer " + testToken, "BEARER " + testToken, "Bearer  " + testToken} {
		req := httptest.NewRequest(http.MethodGet, "/api/scrape/stats", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, header)
	}

	for _, header := range []string{"bearer", "Bearer" + testToken, "Token " + testToken, "bearer wrong"} {
		req := httptest.NewRequest(http.MethodGet, "/api/scrape/stats", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}

func TestEmptyTokenRejectsEverything(t *testing.T) {
	h := NewHandler(&fakeScraper{}, storage.NewMemoryPreferenceStore(), models.DefaultNotificationPreference(), "", zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/scrape/stats", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostScrape(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		scraper := &fakeScraper{result: 7}
		h := newTestHandler(scraper, storage.NewMemoryPreferenceStore())

		rec := do(t, h, http.MethodPost, "/api/scrape", testToken, `{"page_limit":3,"proxy":"http://10.0.0.1:3128"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[scrapeResponse](t, rec)
		assert.Equal(t, "Scraped and updated 7 products", resp.Message)
		assert.Equal(t, 7, resp.ChangedCount)
		assert.Equal(t, []models.ScrapeParameters{{PageLimit: 3, Proxy: "http://10.0.0.1:3128"}}, scraper.calls)
	})

	t.Run("RejectsNonPositivePageLimit", func(t *testing.T) {
		scraper := &fakeScraper{}
		h := newTestHandler(scraper, storage.NewMemoryPreferenceStore())

		for _, body := range []string{`{"page_limit":0}`, `{"page_limit":-2}`, `{}`} {
			rec := do(t, h, http.MethodPost, "/api/scrape", testToken, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
		assert.Empty(t, scraper.calls)
	})

	t.Run("RejectsOversizedPageLimit", func(t *testing.T) {
		scraper := &fakeScraper{}
		h := newTestHandler(scraper, storage.NewMemoryPreferenceStore())

		for _, body := range []string{`{"page_limit":1001}`, `{"page_limit":4611686018427387904}`} {
			rec := do(t, h, http.MethodPost, "/api/scrape", testToken, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Contains(t, decode[errorResponse](t, rec).Detail, "page_limit exceeds the maximum")
		}
		assert.Empty(t, scraper.calls)
	})

	t.Run("ConfiguredPageLimit", func(t *testing.T) {
		scraper := &fakeScraper{maxPages: 10}
		h := newTestHandler(scraper, storage.NewMemoryPreferenceStore())

		rec := do(t, h, http.MethodPost, "/api/scrape", testToken, `{"page_limit":11}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, scraper.calls)

		rec = do(t, h, http.MethodPost, "/api/scrape", testToken, `{"page_limit":10}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, scraper.calls, 1)
	})

	t.Run("RunRejectsParameters", func(t *testing.T) {
		scraper := &fakeScraper{err: fmt.Errorf("%w: got 5, maximum is 4", models.ErrPageLimitTooLarge)}
		h := newTestHandler(scraper, storage.NewMemoryPreferenceStore())

		rec := do(t, h, http.MethodPost, "/api/scrape", testToken, `{"page_limit":5}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("RejectsMalformedBody", func(t *testing.T) {
		scraper := &fakeScraper{}
		h := newTestHandler(scraper, storage.NewMemoryPreferenceStore())

		rec := do(t, h, http.MethodPost, "/api/scrape", testToken, `{"page_limit":"two"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, scraper.calls)
	})

	t.Run("RunFailure", func(t *testing.T) {
		scraper := &fakeScraper{result: 2, err: errors.New("disk full")}
		h := newTestHandler(scraper, storage.NewMemoryPreferenceStore())

		rec := do(t, h, http.MethodPost, "/api/scrape", testToken, `{"page_limit":1}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Scrape failed", decode[errorResponse](t, rec).Detail)
	})

	t.Run("WrongMethod", func(t *testing.T) {
		h := newTestHandler(&fakeScraper{}, storage.NewMemoryPreferenceStore())
		rec := do(t, h, http.MethodGet, "/api/scrape", testToken, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestGetStats(t *testing.T) {
	scraper := &fakeScraper{stats: crawler.RunStats{RunCount: 4, ProductsChanged: 2, PagesFailed: 1}}
	h := newTestHandler(scraper, storage.NewMemoryPreferenceStore())

	rec := do(t, h, http.MethodGet, "/api/scrape/stats", testToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decode[crawler.RunStats](t, rec)
	assert.Equal(t, 4, stats.RunCount)
	assert.Equal(t, 2, stats.ProductsChanged)
	assert.Equal(t, 1, stats.PagesFailed)
}

func TestNotificationConfig(t *testing.T) {
	t.Run("DefaultWhenUnset", func(t *testing.T) {
		h := newTestHandler(&fakeScraper{}, storage.NewMemoryPreferenceStore())

		rec := do(t, h, http.MethodGet, "/api/notification/config", testToken, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"notification_type":"terminal","recipients":[]}`, rec.Body.String())
	})

	t.Run("UpdateThenRead", func(t *testing.T) {
		prefs := storage.NewMemoryPreferenceStore()
		h := newTestHandler(&fakeScraper{}, prefs)

		rec := do(t, h, http.MethodPost, "/api/notification/config", testToken,
			`{"notification_type":"email","recipients":["a@x.com","b@x.com"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Notification configuration updated successfully", decode[messageResponse](t, rec).Message)

		rec = do(t, h, http.MethodGet, "/api/notification/config", testToken, "")
		assert.JSONEq(t, `{"notification_type":"email","recipients":["a@x.com","b@x.com"]}`, rec.Body.String())

		stored, ok, err := prefs.Get(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a@x.com,b@x.com", stored.JoinRecipients())
	})

	t.Run("MissingRecipientsStoredEmpty", func(t *testing.T) {
		prefs := storage.NewMemoryPreferenceStore()
		h := newTestHandler(&fakeScraper{}, prefs)

		rec := do(t, h, http.MethodPost, "/api/notification/config", testToken, `{"notification_type":"Terminal"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		stored, _, _ := prefs.Get(context.Background())
		assert.Equal(t, models.ChannelTerminal, stored.Channel)
		assert.Equal(t, []string{}, stored.Recipients)
	})

	t.Run("RejectsUnjoinableRecipients", func(t *testing.T) {
		prefs := storage.NewMemoryPreferenceStore()
		h := newTestHandler(&fakeScraper{}, prefs)

		for _, body := range []string{
			`{"notification_type":"email","recipients":["a@x.com,b@x.com"]}`,
			`{"notification_type":"email","recipients":["a@x.com",""]}`,
			`{"notification_type":"email","recipients":["  "]}`,
		} {
			rec := do(t, h, http.MethodPost, "/api/notification/config", testToken, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}

		_, ok, _ := prefs.Get(context.Background())
		assert.False(t, ok)
	})

	t.Run("UnknownChannel", func(t *testing.T) {
		prefs := storage.NewMemoryPreferenceStore()
		h := newTestHandler(&fakeScraper{}, prefs)

		rec := do(t, h, http.MethodPost, "/api/notification/config", testToken, `{"notification_type":"pager"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		_, ok, _ := prefs.Get(context.Background())
		assert.False(t, ok)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		h := newTestHandler(&fakeScraper{}, failingStore{})

		rec := do(t, h, http.MethodGet, "/api/notification/config", testToken, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"notification_type":"terminal","recipients":[]}`, rec.Body.String())

		rec = do(t, h, http.MethodPost, "/api/notification/config", testToken, `{"notification_type":"email"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
