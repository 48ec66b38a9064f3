package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-profile-studio/internal/credential"
	"ai-profile-studio/internal/generation"
	"ai-profile-studio/internal/studio"
)

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, req generation.Request) (generation.Result, error) {
	res := generation.Result{Requested: req.ImageCount}
	for i := 0; i < req.ImageCount; i++ {
		res.Images = append(res.Images, generation.Image{Data: []byte{0xff, 0xd8, byte(i)}, MIMEType: "image/jpeg"})
	}
	return res, nil
}

type testEnv struct {
	studio *studio.Studio
	server *Server
	http   *httptest.Server
}

func newEnv(t *testing.T, key, password string) *testEnv {
	t.Helper()
	st, err := studio.New(studio.Options{
		Credentials: credential.NewMemoryStore(key),
		Generator:   fakeGenerator{},
		Now:         func() time.Time { return time.UnixMilli(1700000000000) },
	})
	require.NoError(t, err)
	srv, err := New(Options{Studio: st, AccessPassword: password})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{studio: st, server: srv, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCredentialGate(t *testing.T) {
	env := newEnv(t, "", "")

	resp := env.do(t, http.MethodGet, "/api/state", nil)
	assert.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp = env.do(t, http.MethodGet, "/api/credential", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]bool{"set": false}, decode[map[string]bool](t, resp))

	resp = env.do(t, http.MethodPut, "/api/credential", map[string]string{"key": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/credential", map[string]string{"key": "abc"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[stateJSON](t, resp).CredentialSet)

	resp = env.do(t, http.MethodGet, "/api/state", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/credential", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/state", nil)
	assert.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
}

func TestCatalogFollowsGender(t *testing.T) {
	env := newEnv(t, "k", "")

	hairIDs := func() []string {
		resp := env.do(t, http.MethodGet, "/api/catalog", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var ids []string
		for _, c := range decode[[]categoryJSON](t, resp) {
			if c.ID == "hair" {
				for _, o := range c.Options {
					ids = append(ids, o.ID)
				}
			}
		}
		return ids
	}

	assert.Contains(t, hairIDs(), "bob")
	resp := env.do(t, http.MethodPut, "/api/selections/age", map[string]string{"option": "male_20s"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s := decode[stateJSON](t, resp)
	assert.Equal(t, "short_male", s.Selections["hair"])
	assert.NotContains(t, hairIDs(), "bob")
}

func TestSelectUnknown(t *testing.T) {
	env := newEnv(t, "k", "")
	resp := env.do(t, http.MethodPut, "/api/selections/style", map[string]string{"option": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/selections/style", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerateAndDownload(t *testing.T) {
	env := newEnv(t, "k", "")

	resp := env.do(t, http.MethodPut, "/api/selections/numberOfImages", map[string]string{"option": "2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/generate", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, uint64(1), decode[map[string]uint64](t, resp)["epoch"])
	env.studio.Wait()

	resp = env.do(t, http.MethodGet, "/api/state", nil)
	s := decode[stateJSON](t, resp)
	assert.False(t, s.Loading)
	require.Len(t, s.Images, 2)
	assert.Equal(t, "/api/images/1", s.Images[1].URL)

	resp = env.do(t, http.MethodGet, "/api/images", nil)
	imgs := decode[map[string][]string](t, resp)["images"]
	require.Len(t, imgs, 2)
	assert.True(t, strings.HasPrefix(imgs[0], "data:image/jpeg;base64,"))

	resp = env.do(t, http.MethodGet, "/api/images/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("content-type"))
	assert.Contains(t, resp.Header.Get("content-disposition"), "generated-image-1700000000000-2.jpg")

	resp = env.do(t, http.MethodGet, "/api/images/7", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/downloads", nil)
	files := decode[map[string][]downloadJSON](t, resp)["files"]
	require.Len(t, files, 2)
	assert.Equal(t, "generated-image-1700000000000-1.jpg", files[0].Filename)
}

func pngUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 4, 3))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "face.png")
	require.NoError(t, err)
	_, err = fw.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestReference(t *testing.T) {
	env := newEnv(t, "k", "")

	body, contentType := pngUpload(t)
	resp, err := http.Post(env.http.URL+"/api/reference", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s := decode[stateJSON](t, resp)
	require.NotNil(t, s.Reference)
	assert.Equal(t, "image/png", s.Reference.MIMEType)
	assert.Equal(t, 4, s.Reference.Width)

	got := env.do(t, http.MethodGet, "/api/reference", nil)
	assert.Equal(t, "image/png", got.Header.Get("content-type"))

	thumb := env.do(t, http.MethodGet, "/api/reference?preview=1", nil)
	assert.Equal(t, http.StatusOK, thumb.StatusCode)
	assert.Equal(t, "image/jpeg", thumb.Header.Get("content-type"))

	resp2 := env.do(t, http.MethodDelete, "/api/reference", nil)
	assert.Nil(t, decode[stateJSON](t, resp2).Reference)

	got = env.do(t, http.MethodGet, "/api/reference", nil)
	assert.Equal(t, http.StatusNotFound, got.StatusCode)
}

func TestReferenceRejectsText(t *testing.T) {
	env := newEnv(t, "k", "")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.http.URL+"/api/reference", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	s := toState(env.studio.View())
	require.NotNil(t, s.Notification)
	assert.Equal(t, "error", s.Notification.Kind)
}

func TestResetAndDismiss(t *testing.T) {
	env := newEnv(t, "k", "")
	env.do(t, http.MethodPut, "/api/selections/style", map[string]string{"option": "ghibli"})

	resp := env.do(t, http.MethodPost, "/api/reset", nil)
	s := decode[stateJSON](t, resp)
	assert.Equal(t, "realistic", s.Selections["style"])
	require.NotNil(t, s.Notification)

	resp = env.do(t, http.MethodDelete, "/api/notification", nil)
	assert.Nil(t, decode[stateJSON](t, resp).Notification)
}

func TestBasicAuth(t *testing.T) {
	env := newEnv(t, "k", "pw")

	resp := env.do(t, http.MethodGet, "/api/state", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/api/state", nil)
	require.NoError(t, err)
	req.SetBasicAuth("anyone", "pw")
	ok, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
}

func TestStaticIndex(t *testing.T) {
	env := newEnv(t, "", "")
	resp := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "app.js")
	assert.Contains(t, string(b), `id="dropzone"`)
	assert.Contains(t, string(b), `id="zoom"`)

	resp = env.do(t, http.MethodGet, "/app.js", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	js := string(b)
	assert.Contains(t, js, "addEventListener('drop'")
	assert.Contains(t, js, "s.version < state.version")
}

func TestWebsocketPush(t *testing.T) {
	env := newEnv(t, "k", "")

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first wsMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "state", first.Type)
	assert.Equal(t, "realistic", first.State.Selections["style"])

	require.Eventually(t, func() bool { return env.server.Hub().Len() == 1 }, time.Second, 10*time.Millisecond)
	_, err = env.studio.Select("style", "ghibli")
	require.NoError(t, err)

	var pushed wsMessage
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, "ghibli", pushed.State.Selections["style"])
	assert.Greater(t, pushed.State.Version, first.State.Version)

	conn.Close()
	assert.Eventually(t, func() bool { return env.server.Hub().Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubDropsOlderVersions(t *testing.T) {
	h := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := &client{send: make(chan []byte, sendBuffer), version: 3}
	h.clients[c] = struct{}{}

	h.Broadcast(2, "stale")
	h.Broadcast(3, "same")
	assert.Empty(t, c.send)

	h.Broadcast(4, "fresh")
	require.Len(t, c.send, 1)
	assert.JSONEq(t, `"fresh"`, string(<-c.send))
	assert.Equal(t, uint64(4), c.version)
}
