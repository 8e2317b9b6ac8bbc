package client

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/airpulse/console/api/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkRecorder fakes the chunk endpoint and records what arrives.
type chunkRecorder struct {
	mu        sync.Mutex
	chunks    map[int][]byte
	finalizes int
	failAt    int // chunk index to reject, -1 for none
}

func newChunkServer(t *testing.T, rec *chunkRecorder) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()

	router.POST("/upload_chunk", func(c *gin.Context) {
		rec.mu.Lock()
		defer rec.mu.Unlock()

		if c.PostForm("action") == "finalize" {
			rec.finalizes++
			c.JSON(http.StatusOK, models.ChunkResponse{
				Success: true,
				ID:      42,
				Name:    c.PostForm("fileName"),
				Path:    "media/stored.mp4",
				Type:    "video",
			})
			return
		}

		index, err := strconv.Atoi(c.PostForm("chunkIndex"))
		require.NoError(t, err)
		if index == rec.failAt {
			c.JSON(http.StatusOK, models.ChunkResponse{Error: "disk full"})
			return
		}

		file, err := c.FormFile("file")
		require.NoError(t, err)
		f, err := file.Open()
		require.NoError(t, err)
		defer f.Close()
		var buf bytes.Buffer
		_, err = buf.ReadFrom(f)
		require.NoError(t, err)

		rec.chunks[index] = buf.Bytes()
		c.JSON(http.StatusOK, models.ChunkResponse{Success: true})
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func writeTempFile(t *testing.T, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestChunkedUploadSplitsAndFinalizesOnce(t *testing.T) {
	rec := &chunkRecorder{chunks: map[int][]byte{}, failAt: -1}
	srv := newChunkServer(t, rec)

	const (
		chunkSize = 1000
		threshold = 2000
		fileSize  = 4500 // 5 chunks, last one short
	)
	c := New(srv.URL, Session{Token: "tok", Expiry: time.Now().Add(time.Hour)},
		WithChunking(chunkSize, threshold))

	path := writeTempFile(t, "big.mp4", fileSize)
	item, err := c.Upload(path, nil)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, int64(42), item.ID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.chunks, 5)
	for i := 0; i < 4; i++ {
		assert.Len(t, rec.chunks[i], chunkSize)
	}
	assert.Len(t, rec.chunks[4], 500)
	assert.Equal(t, 1, rec.finalizes)
}

func TestChunkedUploadAbortsOnChunkError(t *testing.T) {
	rec := &chunkRecorder{chunks: map[int][]byte{}, failAt: 2}
	srv := newChunkServer(t, rec)

	c := New(srv.URL, Session{Token: "tok", Expiry: time.Now().Add(time.Hour)},
		WithChunking(1000, 2000))

	path := writeTempFile(t, "big.mp4", 4500)
	_, err := c.Upload(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	// Nothing after the failed chunk, and no finalize.
	assert.Len(t, rec.chunks, 2)
	assert.Equal(t, 0, rec.finalizes)
}

func TestChunkedUploadProgressIsMonotonic(t *testing.T) {
	rec := &chunkRecorder{chunks: map[int][]byte{}, failAt: -1}
	srv := newChunkServer(t, rec)

	c := New(srv.URL, Session{Token: "tok", Expiry: time.Now().Add(time.Hour)},
		WithChunking(1000, 2000))

	var fractions []float64
	path := writeTempFile(t, "big.mp4", 3000)
	_, err := c.Upload(path, func(f float64) {
		fractions = append(fractions, f)
	})
	require.NoError(t, err)

	require.NotEmpty(t, fractions)
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
	assert.InDelta(t, 1.0, fractions[len(fractions)-1], 1e-9)
	for _, f := range fractions {
		assert.LessOrEqual(t, f, 1.0)
	}
}

func TestSmallFileSkipsChunking(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	uploads := 0
	router.POST("/media_library", func(c *gin.Context) {
		uploads++
		file, err := c.FormFile("fileToUpload")
		require.NoError(t, err)
		c.JSON(http.StatusOK, models.MutationResponse{
			Res:  models.ResOK,
			ID:   7,
			Name: file.Filename,
			Path: "media/stored.png",
			Type: "image",
			Size: file.Size,
			Time: 30,
		})
	})
	router.POST("/upload_chunk", func(c *gin.Context) {
		t.Error("small upload must not hit the chunk endpoint")
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	c := New(srv.URL, Session{Token: "tok", Expiry: time.Now().Add(time.Hour)},
		WithChunking(1000, 2000))

	path := writeTempFile(t, "small.png", 1500)
	item, err := c.Upload(path, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), item.ID)
	assert.Equal(t, 1, uploads)
}
