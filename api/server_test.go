package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/airpulse/console/api/models"
	"github.com/airpulse/console/config"
	"github.com/airpulse/console/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

type testEnv struct {
	ws *WebServer
	db *store.Database
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.DataRoot = root

	db, err := store.NewDatabase(root + "/console.db")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InsertSession(testToken, time.Now().Add(time.Hour)))

	return &testEnv{ws: NewWebServer(db, cfg), db: db}
}

func (e *testEnv) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.ws.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req, testToken)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func uploadRequest(t *testing.T, name string, payload []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("action", "upload"))
	part, err := w.CreateFormFile("fileToUpload", name)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/media_library", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestRequestsWithoutSessionAreRejected(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/media_library?list=1", nil)
	w := e.do(t, req, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, models.ErrExpiredToken, resp.Error)
}

func TestExpiredSessionSentinel(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.db.InsertSession("stale", time.Now().Add(-time.Minute)))

	req := httptest.NewRequest(http.MethodGet, "/media_library?list=1", nil)
	w := e.do(t, req, "stale")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decode[models.ErrorResponse](t, w)
	assert.Equal(t, models.ErrExpiredToken, resp.Error)
}

func TestMediaUploadListDelete(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, uploadRequest(t, "poster.png", []byte("pngbytes")), testToken)
	require.Equal(t, http.StatusOK, w.Code)
	up := decode[models.MutationResponse](t, w)
	require.Equal(t, models.ResOK, up.Res)
	assert.Equal(t, "image", up.Type)
	assert.Equal(t, "poster.png", up.Name)
	assert.True(t, strings.HasPrefix(up.Path, "media/"))

	req := httptest.NewRequest(http.MethodGet, "/media_library?list=1", nil)
	w = e.do(t, req, testToken)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.MediaListResponse](t, w)
	require.Len(t, list.Items, 1)
	assert.Equal(t, up.ID, list.Items[0].ID)

	w = e.postForm(t, "/media_library", url.Values{
		"action": {"delete"},
		"id":     {strconv.FormatInt(up.ID, 10)},
	})
	del := decode[models.MutationResponse](t, w)
	assert.Equal(t, models.ResOK, del.Res)

	w = e.do(t, httptest.NewRequest(http.MethodGet, "/media_library?list=1", nil), testToken)
	list = decode[models.MediaListResponse](t, w)
	assert.Empty(t, list.Items)
}

func TestMediaUploadRejectsUnknownExtension(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, uploadRequest(t, "notes.txt", []byte("hello")), testToken)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.MutationResponse](t, w)
	assert.NotEqual(t, models.ResOK, resp.Res)
	assert.Contains(t, resp.Res, ".txt")
}

func TestAdvertisementFlow(t *testing.T) {
	e := newTestEnv(t)

	customer := &store.Customer{Name: "Acme Air"}
	require.NoError(t, e.db.InsertCustomer(customer))
	machine := &store.Machine{CustomerID: customer.ID, Name: "lobby"}
	require.NoError(t, e.db.InsertMachine(machine))

	w := e.do(t, uploadRequest(t, "promo.png", []byte("pngbytes")), testToken)
	up := decode[models.MutationResponse](t, w)
	require.Equal(t, models.ResOK, up.Res)

	machineParam := strconv.FormatInt(machine.ID, 10)
	var entryIDs []int64
	for i := 0; i < 3; i++ {
		w = e.postForm(t, "/advertisment", url.Values{
			"action":   {"create"},
			"api":      {machineParam},
			"media_id": {strconv.FormatInt(up.ID, 10)},
			"time":     {"15"},
		})
		created := decode[models.MutationResponse](t, w)
		require.Equal(t, models.ResOK, created.Res)
		entryIDs = append(entryIDs, created.ID)
	}

	req := httptest.NewRequest(http.MethodGet, "/advertisment?list=1&api="+machineParam, nil)
	w = e.do(t, req, testToken)
	list := decode[models.AdListResponse](t, w)
	require.Len(t, list.Items, 3)
	for i, item := range list.Items {
		assert.Equal(t, i, item.Position)
		assert.Equal(t, 15, item.Duration)
	}

	// Reverse the order through a bulk update.
	updates := []store.PositionUpdate{
		{ID: entryIDs[2], Position: 0},
		{ID: entryIDs[1], Position: 1},
		{ID: entryIDs[0], Position: 2},
	}
	payload, err := json.Marshal(updates)
	require.NoError(t, err)
	w = e.postForm(t, "/advertisment", url.Values{
		"action":  {"bulk_update"},
		"updates": {string(payload)},
	})
	bulk := decode[models.MutationResponse](t, w)
	require.Equal(t, models.ResOK, bulk.Res)

	w = e.do(t, httptest.NewRequest(http.MethodGet, "/advertisment?list=1&api="+machineParam, nil), testToken)
	list = decode[models.AdListResponse](t, w)
	assert.Equal(t, entryIDs[2], list.Items[0].ID)
	assert.Equal(t, entryIDs[0], list.Items[2].ID)

	// Partial updates are rejected with the current order untouched.
	partial, err := json.Marshal(updates[:2])
	require.NoError(t, err)
	w = e.postForm(t, "/advertisment", url.Values{
		"action":  {"bulk_update"},
		"updates": {string(partial)},
	})
	rejected := decode[models.MutationResponse](t, w)
	assert.NotEqual(t, models.ResOK, rejected.Res)

	w = e.postForm(t, "/advertisment", url.Values{
		"action": {"delete"},
		"id":     {strconv.FormatInt(entryIDs[1], 10)},
	})
	del := decode[models.MutationResponse](t, w)
	require.Equal(t, models.ResOK, del.Res)

	w = e.do(t, httptest.NewRequest(http.MethodGet, "/advertisment?list=1&api="+machineParam, nil), testToken)
	list = decode[models.AdListResponse](t, w)
	require.Len(t, list.Items, 2)
	assert.Equal(t, []int{0, 1}, []int{list.Items[0].Position, list.Items[1].Position})
}

func TestChunkedUploadEndpoint(t *testing.T) {
	e := newTestEnv(t)

	const (
		fileID    = "0f8fad5b-d9cb-469f-a165-70867728950e"
		chunkSize = 4
		total     = 3
	)
	content := []byte("abcdefghijk") // 11 bytes over 3 chunks

	for i := 0; i < total; i++ {
		end := (i + 1) * chunkSize
		if end > len(content) {
			end = len(content)
		}

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("fileId", fileID))
		require.NoError(t, w.WriteField("chunkIndex", strconv.Itoa(i)))
		require.NoError(t, w.WriteField("totalChunks", strconv.Itoa(total)))
		require.NoError(t, w.WriteField("fileName", "clip.mp4"))
		require.NoError(t, w.WriteField("fileSize", strconv.Itoa(len(content))))
		part, err := w.CreateFormFile("file", fmt.Sprintf("clip.mp4.%d", i))
		require.NoError(t, err)
		_, err = part.Write(content[i*chunkSize : end])
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/upload_chunk", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		resp := decode[models.ChunkResponse](t, e.do(t, req, testToken))
		require.True(t, resp.Success, resp.Error)
	}

	w := e.postForm(t, "/upload_chunk", url.Values{
		"action":      {"finalize"},
		"fileId":      {fileID},
		"fileName":    {"clip.mp4"},
		"fileSize":    {strconv.Itoa(len(content))},
		"totalChunks": {strconv.Itoa(total)},
	})
	final := decode[models.ChunkResponse](t, w)
	require.True(t, final.Success, final.Error)
	assert.Equal(t, "video", final.Type)
	assert.Equal(t, int64(len(content)), final.Size)

	item, err := e.db.GetMediaItem(final.ID)
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", item.Name)
}

func TestChunkedUploadFinalizeRejectsMissingChunk(t *testing.T) {
	e := newTestEnv(t)

	const fileID = "1f8fad5b-d9cb-469f-a165-70867728950e"
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("fileId", fileID))
	require.NoError(t, w.WriteField("chunkIndex", "0"))
	require.NoError(t, w.WriteField("totalChunks", "2"))
	require.NoError(t, w.WriteField("fileName", "clip.mp4"))
	require.NoError(t, w.WriteField("fileSize", "8"))
	part, err := w.CreateFormFile("file", "clip.mp4.0")
	require.NoError(t, err)
	_, err = part.Write([]byte("abcd"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload_chunk", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp := decode[models.ChunkResponse](t, e.do(t, req, testToken))
	require.True(t, resp.Success, resp.Error)

	rec := e.postForm(t, "/upload_chunk", url.Values{
		"action":      {"finalize"},
		"fileId":      {fileID},
		"fileName":    {"clip.mp4"},
		"fileSize":    {"8"},
		"totalChunks": {"2"},
	})
	final := decode[models.ChunkResponse](t, rec)
	assert.False(t, final.Success)
	assert.Contains(t, final.Error, "missing chunk")
}

func TestRelayToggle(t *testing.T) {
	e := newTestEnv(t)

	customer := &store.Customer{Name: "Acme Air"}
	require.NoError(t, e.db.InsertCustomer(customer))
	machine := &store.Machine{CustomerID: customer.ID, Name: "lobby"}
	require.NoError(t, e.db.InsertMachine(machine))
	machineParam := strconv.FormatInt(machine.ID, 10)

	req := httptest.NewRequest(http.MethodGet, "/relays?api="+machineParam+"&relay=fan", nil)
	w := e.do(t, req, testToken)
	resp := decode[models.RelaysResponse](t, w)
	assert.True(t, resp.Relays["fan"])

	req = httptest.NewRequest(http.MethodGet, "/relays?api="+machineParam+"&relay=fan", nil)
	resp = decode[models.RelaysResponse](t, e.do(t, req, testToken))
	assert.False(t, resp.Relays["fan"])
}

func TestDashboardReportsAQI(t *testing.T) {
	e := newTestEnv(t)

	body, err := json.Marshal(models.ReadingRequest{
		MachineID: 1,
		Temp:      22.5,
		Humidity:  40,
		PM25:      35.5,
		PM10:      50,
		CO2:       600,
		TVOC:      0.2,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/dashboard", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := e.do(t, req, testToken)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/dashboard?api=1", nil)
	w = e.do(t, req, testToken)
	resp := decode[models.DashboardResponse](t, w)
	assert.Equal(t, 35.5, resp.PM25)
	// 35.5 ug/m3 is the bottom of the unhealthy-for-sensitive band.
	assert.Equal(t, 101, resp.AQI)
}

func TestMediaFileTraversalBlocked(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/img/..%2F..%2Fetc%2Fpasswd", nil)
	w := e.do(t, req, "")
	assert.NotEqual(t, http.StatusOK, w.Code)
}
