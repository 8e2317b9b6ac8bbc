package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/airpulse/console/api/models"
	"github.com/airpulse/console/store"
	"github.com/airpulse/console/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleUploadChunk receives one chunk of a large upload, or assembles the
// finished file when the finalize action arrives. Chunks for a session are
// staged under a per-session directory keyed by fileId and joined in index
// order on finalize.
func (ws *WebServer) handleUploadChunk(c *gin.Context) {
	if c.PostForm("action") == "finalize" {
		ws.handleUploadFinalize(c)
		return
	}

	fileID := c.PostForm("fileId")
	if !validSessionID(fileID) {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: "Invalid fileId"})
		return
	}

	chunkIndex, err := strconv.Atoi(c.PostForm("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: "Invalid chunkIndex"})
		return
	}
	totalChunks, err := strconv.Atoi(c.PostForm("totalChunks"))
	if err != nil || totalChunks < 1 || chunkIndex >= totalChunks {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: "Invalid totalChunks"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: "Missing chunk payload"})
		return
	}

	sessionDir := filepath.Join(ws.chunkDir, fileID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: fmt.Sprintf("Failed to stage chunk: %v", err)})
		return
	}

	dst := filepath.Join(sessionDir, strconv.Itoa(chunkIndex))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: fmt.Sprintf("Failed to stage chunk: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.ChunkResponse{Success: true})
}

func (ws *WebServer) handleUploadFinalize(c *gin.Context) {
	fileID := c.PostForm("fileId")
	if !validSessionID(fileID) {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: "Invalid fileId"})
		return
	}

	fileName := c.PostForm("fileName")
	fileSize, err := strconv.ParseInt(c.PostForm("fileSize"), 10, 64)
	if err != nil || fileSize < 1 {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: "Invalid fileSize"})
		return
	}
	totalChunks, err := strconv.Atoi(c.PostForm("totalChunks"))
	if err != nil || totalChunks < 1 {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: "Invalid totalChunks"})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	mediaType := util.MediaTypeForExt(ext)
	if mediaType == "" {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: fmt.Sprintf("Unsupported file type: %s", ext)})
		return
	}
	var maxBytes int64
	if mediaType == "video" {
		maxBytes = ws.cfg.Upload.MaxVideoBytes
	} else {
		maxBytes = ws.cfg.Upload.MaxImageBytes
	}
	if fileSize > maxBytes {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: fmt.Sprintf("File exceeds the %d byte limit", maxBytes)})
		return
	}

	sessionDir := filepath.Join(ws.chunkDir, fileID)
	if err := verifyChunkSet(sessionDir, totalChunks); err != nil {
		c.JSON(http.StatusOK, models.ChunkResponse{Error: err.Error()})
		return
	}

	storedName := uuid.NewString() + ext
	finalPath := filepath.Join(ws.mediaDir, storedName)
	written, err := assembleChunks(sessionDir, totalChunks, finalPath)
	if err != nil {
		os.Remove(finalPath)
		c.JSON(http.StatusOK, models.ChunkResponse{Error: fmt.Sprintf("Failed to assemble file: %v", err)})
		return
	}
	if written != fileSize {
		os.Remove(finalPath)
		c.JSON(http.StatusOK, models.ChunkResponse{Error: fmt.Sprintf("Assembled size %d does not match declared size %d", written, fileSize)})
		return
	}

	item := &store.MediaItem{
		Path:     filepath.ToSlash(filepath.Join("media", storedName)),
		Type:     mediaType,
		Name:     fileName,
		Size:     written,
		Duration: defaultMediaDuration,
	}
	if err := ws.db.InsertMediaItem(item); err != nil {
		os.Remove(finalPath)
		c.JSON(http.StatusOK, models.ChunkResponse{Error: fmt.Sprintf("Failed to register media: %v", err)})
		return
	}

	if err := os.RemoveAll(sessionDir); err != nil {
		slog.Warn("failed to clean up chunk session", "fileId", fileID, "error", err)
	}

	c.JSON(http.StatusOK, models.ChunkResponse{
		Success: true,
		ID:      item.ID,
		Name:    item.Name,
		Path:    item.Path,
		Type:    item.Type,
		Size:    item.Size,
		Time:    item.Duration,
	})
}

// verifyChunkSet checks that exactly chunks 0..total-1 are staged.
func verifyChunkSet(sessionDir string, total int) error {
	entries, err := os.ReadDir(sessionDir)
	if err != nil {
		return fmt.Errorf("no staged chunks for this upload")
	}
	seen := make(map[int]bool, len(entries))
	for _, e := range entries {
		idx, err := strconv.Atoi(e.Name())
		if err != nil || idx < 0 || idx >= total {
			return fmt.Errorf("unexpected staged chunk %q", e.Name())
		}
		seen[idx] = true
	}
	for i := 0; i < total; i++ {
		if !seen[i] {
			return fmt.Errorf("missing chunk %d of %d", i, total)
		}
	}
	return nil
}

func assembleChunks(sessionDir string, total int, finalPath string) (int64, error) {
	out, err := os.Create(finalPath)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	var written int64
	for i := 0; i < total; i++ {
		n, err := appendChunk(out, filepath.Join(sessionDir, strconv.Itoa(i)))
		if err != nil {
			return written, fmt.Errorf("chunk %d: %w", i, err)
		}
		written += n
	}
	return written, nil
}

func appendChunk(out *os.File, path string) (int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return io.Copy(out, in)
}

// validSessionID restricts fileId to uuid-shaped names so staged paths
// cannot escape the chunk directory.
func validSessionID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
