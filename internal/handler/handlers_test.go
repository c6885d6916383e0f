package handler_test

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raditia/duet-media/internal/cleanup"
	"github.com/raditia/duet-media/internal/config"
	"github.com/raditia/duet-media/internal/handler"
	"github.com/raditia/duet-media/internal/mediastore"
	"github.com/raditia/duet-media/internal/quote"
	"github.com/raditia/duet-media/internal/router"
	"github.com/raditia/duet-media/internal/signing"
	"github.com/raditia/duet-media/internal/transform"
)

const (
	testToken  = "test-token"
	testSecret = "test-secret"
)

// upstream fakes the remote media store, an AI endpoint and the quote API.
type upstream struct {
	*httptest.Server

	mu           sync.Mutex
	destroyed    []string
	uploads      int
	quoteCalls   int
	aiCalls      int
	destroyReply string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{destroyReply: `{"result": "ok"}`}

	mux := http.NewServeMux()
	mux.HandleFunc("/demo/resources/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"resources": [
				{
					"public_id": "gallery/pic1",
					"secure_url": "https://x/upload/gallery/pic1.jpg",
					"resource_type": "image",
					"created_at": "2023-11-14T10:30:00Z",
					"context": {"custom": {"caption": "Sunset walk"}}
				},
				{
					"public_id": "gallery/clip1",
					"secure_url": "https://x/upload/gallery/clip1.mp4",
					"resource_type": "video",
					"created_at": "2023-12-01T08:00:00Z",
					"duration": 65.6
				}
			],
			"next_cursor": "cur-2"
		}`))
	})
	mux.HandleFunc("/demo/image/destroy", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		u.mu.Lock()
		u.destroyed = append(u.destroyed, r.PostForm.Get("public_id"))
		reply := u.destroyReply
		u.mu.Unlock()
		w.Write([]byte(reply))
	})
	mux.HandleFunc("/demo/image/upload", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(8<<20))
		u.mu.Lock()
		u.uploads++
		u.mu.Unlock()
		w.Write([]byte(`{
			"public_id": "temp/t1",
			"secure_url": "https://x/upload/temp/t1.jpg",
			"resource_type": "image",
			"created_at": "2024-01-01T00:00:00Z"
		}`))
	})
	mux.HandleFunc("/ai/removebg", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.aiCalls++
		u.mu.Unlock()
		if r.URL.Query().Get("url") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"url": "https://x/out/t1-nobg.png"}`))
	})
	mux.HandleFunc("/gold", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.quoteCalls++
		u.mu.Unlock()
		w.Write([]byte(`{"metal": "XAU", "currency": "USD", "price": 2045.5}`))
	})

	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

// testServer builds the full router backed by fake upstreams and a
// temporary cleanup journal.
func testServer(t *testing.T, u *upstream) *httptest.Server {
	t.Helper()

	cfg := &config.Config{
		AuthToken:     testToken,
		CloudName:     "demo",
		APIKey:        "key-1",
		APISecret:     testSecret,
		UploadBaseURL: u.URL,
		AdminBaseURL:  u.URL,
		QuoteTTL:      time.Hour,
	}

	journal, err := cleanup.OpenJournal("file:" + t.TempDir() + "/journal.db")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	logger := zerolog.Nop()

	store := mediastore.NewClient(mediastore.ClientOptions{
		CloudName: cfg.CloudName,
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.AdminBaseURL,
		Logger:    logger,
	})

	issuer := signing.Issuer{APIKey: cfg.APIKey, CloudName: cfg.CloudName, Secret: cfg.APISecret}
	uploader := mediastore.NewUploader(issuer, cfg.UploadBaseURL, nil)
	coordinator := cleanup.NewCoordinator(store, journal, logger)

	executor := transform.NewExecutor(nil, logger)
	executor.InitialDelay = time.Millisecond

	pipeline := transform.NewPipeline(uploader, coordinator, executor, map[string]transform.Endpoint{
		"remove-background": {URL: u.URL + "/ai/removebg"},
	}, logger)

	quotes := quote.NewService(quote.NewFetcher(u.URL+"/gold", "tok"), quote.NewCache(cfg.QuoteTTL))

	h := &handler.Handler{
		Issuer:   issuer,
		Store:    store,
		Pipeline: pipeline,
		Quote:    quotes,
		Config:   cfg,
		Logger:   logger,
	}

	srv := router.New(h)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return ts
}

// authReq creates an *http.Request with the test bearer token.
func authReq(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

// envelope is the generic response envelope for assertions.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestHealthNoAuth(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownRouteEnvelope(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, env.Success)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, 9404, env.Errors[0].Code)
}

func TestAPIRequiresAuth(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	resp, err := http.Get(ts.URL + "/api/gallery")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignEndpoint(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	body := strings.NewReader(`{"params": {"timestamp": 1700000000, "tags": "gallery"}}`)
	req := authReq(t, "POST", ts.URL+"/api/media/sign", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)

	var cred signing.Credential
	require.NoError(t, json.Unmarshal(env.Result, &cred))

	wantSig, err := signing.Sign(map[string]string{
		"timestamp": "1700000000",
		"tags":      "gallery",
	}, testSecret)
	require.NoError(t, err)

	assert.Equal(t, wantSig, cred.Signature)
	assert.Equal(t, "key-1", cred.APIKey)
	assert.Equal(t, "demo", cred.CloudName)
	assert.Equal(t, int64(1700000000), cred.Timestamp)
}

func TestSignEndpointRejectsEmptyParams(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	req := authReq(t, "POST", ts.URL+"/api/media/sign", strings.NewReader(`{"params": {}}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestDestroyEndpoint(t *testing.T) {
	u := newUpstream(t)
	ts := testServer(t, u)

	body := strings.NewReader(`{"public_id": "gallery/old", "resource_type": "image"}`)
	req := authReq(t, "POST", ts.URL+"/api/media/destroy", body)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, env.Success)
	assert.Equal(t, []string{"gallery/old"}, u.destroyed)
}

func TestDestroyEndpointNotFoundIsDeleted(t *testing.T) {
	u := newUpstream(t)
	u.destroyReply = `{"result": "not found"}`
	ts := testServer(t, u)

	body := strings.NewReader(`{"public_id": "gone", "resource_type": "image"}`)
	req := authReq(t, "POST", ts.URL+"/api/media/destroy", body)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)

	// An already-gone asset is still a successful deletion.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)

	var res mediastore.DestroyResult
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Equal(t, "not found", res.Result)
}

func TestDestroyEndpointStoreRefusal(t *testing.T) {
	u := newUpstream(t)
	u.destroyReply = `{"result": "pending"}`
	ts := testServer(t, u)

	body := strings.NewReader(`{"public_id": "stuck", "resource_type": "image"}`)
	req := authReq(t, "POST", ts.URL+"/api/media/destroy", body)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestDestroyEndpointRequiresPublicID(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	req := authReq(t, "POST", ts.URL+"/api/media/destroy", strings.NewReader(`{}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListResourcesProxiesNativeListing(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	req := authReq(t, "GET", ts.URL+"/api/media/resources?type=image", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)

	var list mediastore.ListResponse
	require.NoError(t, json.Unmarshal(env.Result, &list))
	assert.Len(t, list.Resources, 2)
	assert.Equal(t, "cur-2", list.NextCursor)
}

func TestGalleryNormalizesListing(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	req := authReq(t, "GET", ts.URL+"/api/gallery?type=image", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)

	var result struct {
		Items []struct {
			PublicID      string `json:"public_id"`
			Title         string `json:"title"`
			ThumbnailURL  string `json:"thumbnail_url"`
			DurationLabel string `json:"duration_label"`
		} `json:"items"`
		NextCursor string `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &result))
	require.Len(t, result.Items, 2)

	assert.Equal(t, "Sunset walk", result.Items[0].Title)
	assert.Contains(t, result.Items[0].ThumbnailURL, "/upload/g_center,w_300,h_300,c_fill,q_auto,f_auto/")

	assert.Contains(t, result.Items[1].ThumbnailURL, "so_0,g_center,w_500,h_280,c_fill,q_auto,f_auto")
	assert.True(t, strings.HasSuffix(result.Items[1].ThumbnailURL, ".jpg"))
	assert.Equal(t, "1:06", result.Items[1].DurationLabel)
	assert.Equal(t, "cur-2", result.NextCursor)
}

func TestGalleryRejectsUnknownType(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	req := authReq(t, "GET", ts.URL+"/api/gallery?type=raw", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func toolRequest(t *testing.T, url, tool string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("tool", tool))
	fw, err := w.CreateFormFile("file", "input.jpg")
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte("img"), 512))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := authReq(t, "POST", url+"/api/tools/transform", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestTransformRunsPipelineAndCleansUp(t *testing.T) {
	u := newUpstream(t)
	ts := testServer(t, u)

	resp, err := http.DefaultClient.Do(toolRequest(t, ts.URL, "remove-background"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "t1-nobg.png")

	assert.Equal(t, 1, u.uploads)
	assert.Equal(t, 1, u.aiCalls)
	// The temporary upload must have been released.
	assert.Equal(t, []string{"temp/t1"}, u.destroyed)
}

func TestTransformUnknownTool(t *testing.T) {
	u := newUpstream(t)
	ts := testServer(t, u)

	resp, err := http.DefaultClient.Do(toolRequest(t, ts.URL, "colorize"))
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Len(t, env.Errors, 1)
	assert.Contains(t, env.Errors[0].Message, `"colorize"`)
	assert.Contains(t, env.Errors[0].Message, "remove-background")
	assert.Zero(t, u.uploads, "unknown tools must not upload anything")
}

func TestTransformMissingFile(t *testing.T) {
	ts := testServer(t, newUpstream(t))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("tool", "remove-background"))
	require.NoError(t, w.Close())

	req := authReq(t, "POST", ts.URL+"/api/tools/transform", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGoldQuoteCaching(t *testing.T) {
	u := newUpstream(t)
	ts := testServer(t, u)

	req := authReq(t, "GET", ts.URL+"/api/quote/gold", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)

	var first struct {
		Cached bool `json:"cached"`
		Quote  struct {
			Price float64 `json:"price"`
		} `json:"quote"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &first))
	assert.False(t, first.Cached)
	assert.Equal(t, 2045.5, first.Quote.Price)

	resp, err = http.DefaultClient.Do(authReq(t, "GET", ts.URL+"/api/quote/gold", nil))
	require.NoError(t, err)
	env = decodeEnvelope(t, resp)

	var second struct {
		Cached bool `json:"cached"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &second))
	assert.True(t, second.Cached)
	assert.Equal(t, 1, u.quoteCalls)
}
