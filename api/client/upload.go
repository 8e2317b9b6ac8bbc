package client

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/airpulse/console/api/models"
	"github.com/airpulse/console/store"
	"github.com/google/uuid"
)

// ProgressFunc receives upload progress in [0,1]. Chunked uploads report
// the completed-chunk fraction plus the in-flight chunk's bytes.
type ProgressFunc func(fraction float64)

// Upload sends a local file into the media library. Files over the
// chunk threshold are split and streamed chunk by chunk; anything
// smaller goes up as a single request. The first failed chunk aborts
// the whole upload.
func (c *Client) Upload(path string, progress ProgressFunc) (*store.MediaItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	if info.Size() > c.chunkThreshold {
		return c.uploadChunked(f, filepath.Base(path), info.Size(), progress)
	}
	return c.uploadWhole(f, filepath.Base(path), progress)
}

func (c *Client) uploadWhole(f *os.File, name string, progress ProgressFunc) (*store.MediaItem, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("action", "upload"); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("fileToUpload", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(http.MethodPost, "/media_library", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp models.MutationResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Res != models.ResOK {
		return nil, fmt.Errorf("upload rejected: %s", resp.Res)
	}
	if progress != nil {
		progress(1)
	}

	return &store.MediaItem{
		ID:       resp.ID,
		Path:     resp.Path,
		Type:     resp.Type,
		Name:     resp.Name,
		Size:     resp.Size,
		Duration: resp.Time,
	}, nil
}

func (c *Client) uploadChunked(f *os.File, name string, size int64, progress ProgressFunc) (*store.MediaItem, error) {
	fileID := uuid.NewString()
	totalChunks := int((size + c.chunkSize - 1) / c.chunkSize)

	buf := make([]byte, c.chunkSize)
	for index := 0; index < totalChunks; index++ {
		n, err := io.ReadFull(f, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("reading chunk %d: %w", index, err)
		}

		base := float64(index) / float64(totalChunks)
		if err := c.sendChunk(fileID, name, size, index, totalChunks, buf[:n], func(sent int64) {
			if progress != nil {
				// The body includes multipart framing, so clamp to one
				// full chunk's worth.
				frac := float64(sent) / float64(n)
				if frac > 1 {
					frac = 1
				}
				progress(base + frac/float64(totalChunks))
			}
		}); err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", index+1, totalChunks, err)
		}
	}

	return c.finalizeUpload(fileID, name, size, totalChunks, progress)
}

func (c *Client) sendChunk(fileID, name string, size int64, index, total int, chunk []byte, sent func(int64)) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"fileId":      fileID,
		"chunkIndex":  strconv.Itoa(index),
		"totalChunks": strconv.Itoa(total),
		"fileName":    name,
		"fileSize":    strconv.FormatInt(size, 10),
		"to_library":  "1",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("file", fmt.Sprintf("%s.%d", name, index))
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	body := &countingReader{r: &buf, sent: sent}
	req, err := c.newRequest(http.MethodPost, "/upload_chunk", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp models.ChunkResponse
	if err := c.do(req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("server rejected chunk: %s", resp.Error)
	}
	return nil
}

func (c *Client) finalizeUpload(fileID, name string, size int64, total int, progress ProgressFunc) (*store.MediaItem, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"action":      "finalize",
		"fileId":      fileID,
		"fileName":    name,
		"fileSize":    strconv.FormatInt(size, 10),
		"totalChunks": strconv.Itoa(total),
		"to_library":  "1",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(http.MethodPost, "/upload_chunk", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp models.ChunkResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("finalize rejected: %s", resp.Error)
	}
	if progress != nil {
		progress(1)
	}

	return &store.MediaItem{
		ID:       resp.ID,
		Path:     resp.Path,
		Type:     resp.Type,
		Name:     resp.Name,
		Size:     resp.Size,
		Duration: resp.Time,
	}, nil
}

// countingReader reports cumulative bytes read so the progress callback
// can include the in-flight chunk.
type countingReader struct {
	r     io.Reader
	total int64
	sent  func(int64)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.total += int64(n)
		if cr.sent != nil {
			cr.sent(cr.total)
		}
	}
	return n, err
}
