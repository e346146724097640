package dummy

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *httptest.Server) {
	t.Helper()
	s := New(cfg)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func login(t *testing.T, srv *httptest.Server, user, pass string) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": user, "password": pass})
	resp, err := http.Post(srv.URL+"/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func decode(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&m))
	return m
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})

	resp, err := http.Post(srv.URL+"/login", "application/json", strings.NewReader(`{"username":"demo","password":"nope"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
}

func TestUserIDsAreStable(t *testing.T) {
	s := New(ServerConfig{Users: map[string]string{"zoe": "z", "adam": "a", "mia": "m"}})

	assert.Equal(t, 1, s.users["adam"].ID)
	assert.Equal(t, 2, s.users["mia"].ID)
	assert.Equal(t, 3, s.users["zoe"].ID)
}

func TestProxyUpload(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})
	ck := login(t, srv, "demo", "1")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("fileName", "renamed.bin")
	fw, _ := mw.CreateFormFile("file", "orig.bin")
	fw.Write(bytes.Repeat([]byte("x"), 1000))
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/user/proxy-upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(ck)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode(t, resp.Body)
	assert.Equal(t, "renamed.bin", m["fileName"])
	assert.Equal(t, "user-1/renamed.bin", m["filePath"])
	assert.IsType(t, "", m["serverTime_s"])
	assert.IsType(t, "", m["serverCPU_pct"])
	assert.IsType(t, "", m["serverMemory_MB"])
}

func TestProxyUploadEmptyFile(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})
	ck := login(t, srv, "demo", "1")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.CreateFormFile("file", "empty.bin")
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/user/proxy-upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(ck)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Empty file", decode(t, resp.Body)["message"])
}

func TestUploadSASRequiresSession(t *testing.T) {
	s, srv := newTestServer(t, ServerConfig{})

	resp, err := http.Post(srv.URL+"/user/upload-sas?blobName=a.bin", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int64(1), s.Counters().Rejected)
}

func requestSAS(t *testing.T, srv *httptest.Server, ck *http.Cookie, blob string) map[string]any {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/user/upload-sas?blobName="+url.QueryEscape(blob), nil)
	req.AddCookie(ck)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode(t, resp.Body)
}

func put(t *testing.T, target string, blobType string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPut, target, strings.NewReader("payload"))
	if blobType != "" {
		req.Header.Set("x-ms-blob-type", blobType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestSASFlow(t *testing.T) {
	s, srv := newTestServer(t, ServerConfig{})
	ck := login(t, srv, "demo", "1")

	m := requestSAS(t, srv, ck, "a.bin")
	assert.Equal(t, "user-1/a.bin", m["blobPath"])
	assert.Equal(t, float64(3), m["expiresInMinutes"])
	sasURL := m["sasUrl"].(string)
	assert.True(t, strings.HasPrefix(sasURL, srv.URL+"/blob/user-1/a.bin?sig="))

	assert.Equal(t, http.StatusCreated, put(t, sasURL, "BlockBlob").StatusCode)
	assert.Equal(t, http.StatusBadRequest, put(t, sasURL, "").StatusCode)

	// signature bound to its path
	u, _ := url.Parse(sasURL)
	u.Path = "/blob/user-1/other.bin"
	assert.Equal(t, http.StatusForbidden, put(t, u.String(), "BlockBlob").StatusCode)
	u.RawQuery = ""
	assert.Equal(t, http.StatusForbidden, put(t, u.String(), "BlockBlob").StatusCode)

	c := s.Counters()
	assert.Equal(t, int64(1), c.SASIssued)
	assert.Equal(t, int64(1), c.BlobPuts)
	assert.Equal(t, int64(7), c.Bytes)
}

func TestSASExpires(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{SASExpiry: time.Second})
	ck := login(t, srv, "demo", "1")
	sasURL := requestSAS(t, srv, ck, "late.bin")["sasUrl"].(string)

	time.Sleep(2100 * time.Millisecond)

	assert.Equal(t, http.StatusForbidden, put(t, sasURL, "BlockBlob").StatusCode)
}

func TestSignatureFromOtherServerRejected(t *testing.T) {
	_, a := newTestServer(t, ServerConfig{Secret: []byte("one")})
	_, b := newTestServer(t, ServerConfig{Secret: []byte("two")})
	ck := login(t, a, "demo", "1")
	sasURL := requestSAS(t, a, ck, "x.bin")["sasUrl"].(string)

	forged := strings.Replace(sasURL, a.URL, b.URL, 1)
	assert.Equal(t, http.StatusForbidden, put(t, forged, "BlockBlob").StatusCode)
}

func TestUploadSASRejectsTraversal(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})
	ck := login(t, srv, "demo", "1")

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/user/upload-sas?blobName=../../etc/passwd", nil)
	req.AddCookie(ck)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
