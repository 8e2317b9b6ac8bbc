// Package api is the main api web server
package api

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/airpulse/console/api/models"
	"github.com/airpulse/console/config"
	"github.com/airpulse/console/store"
	"github.com/airpulse/console/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultMediaDuration = 30

type WebServer struct {
	router *gin.Engine
	db     *store.Database
	cfg    *config.Config

	mediaDir string
	chunkDir string
}

func NewWebServer(db *store.Database, cfg *config.Config) *WebServer {
	router := gin.Default()

	ws := &WebServer{
		router:   router,
		db:       db,
		cfg:      cfg,
		mediaDir: filepath.Join(cfg.Server.DataRoot, "media"),
		chunkDir: filepath.Join(cfg.Server.DataRoot, "chunks"),
	}

	for _, dir := range []string{ws.mediaDir, ws.chunkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	ws.setupRoutes()

	return ws
}

func (ws *WebServer) setupRoutes() {
	// Media bytes are public reads; everything else sits behind the
	// session check.
	ws.router.GET("/img/*filepath", ws.handleMediaFile)

	authed := ws.router.Group("/", ws.requireSession)

	authed.GET("/media_library", ws.handleListMedia)
	authed.POST("/media_library", ws.handleMediaAction)
	authed.POST("/upload_chunk", ws.handleUploadChunk)

	authed.GET("/advertisment", ws.handleListAds)
	authed.POST("/advertisment", ws.handleAdAction)

	authed.GET("/customers", ws.handleListCustomers)
	authed.POST("/customers", ws.handleCreateCustomer)
	authed.DELETE("/customers/:id", ws.handleDeleteCustomer)

	authed.GET("/machines", ws.handleListMachines)
	authed.POST("/machines", ws.handleCreateMachine)
	authed.DELETE("/machines/:id", ws.handleDeleteMachine)

	authed.GET("/relays", ws.handleRelays)
	authed.GET("/dashboard", ws.handleDashboard)
	authed.POST("/dashboard", ws.handlePostReading)
	authed.GET("/report", ws.handleReport)

	authed.GET("/settings/display", ws.handleGetDisplaySettings)
	authed.PUT("/settings/display", ws.handleUpdateDisplaySettings)
}

// requireSession validates the bearer token on every request. The expiry
// sentinel body is identical across all endpoints; clients key off the
// error string, not the status code.
func (ws *WebServer) requireSession(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrExpiredToken})
		return
	}

	ok, err := ws.db.SessionValid(token, time.Now())
	if err != nil {
		slog.Error("session lookup failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: "session lookup failed"})
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: models.ErrExpiredToken})
		return
	}

	c.Next()
}

func (ws *WebServer) Start(addr string) {
	log.Printf("Starting web server on %s", addr)
	if err := ws.router.Run(addr); err != nil {
		log.Fatalf("Failed to start web server: %v", err)
	}
}

// Handler exposes the router for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

func (ws *WebServer) handleMediaFile(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("filepath"), "/")
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid path"})
		return
	}

	full := filepath.Join(ws.cfg.Server.DataRoot, clean)
	if _, err := os.Stat(full); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: fmt.Sprintf("media file not found: %s", clean)})
		return
	}
	c.File(full)
}

func (ws *WebServer) handleListMedia(c *gin.Context) {
	if c.Query("list") != "1" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "list=1 is required"})
		return
	}

	items, err := ws.db.GetMediaItems()
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	if items == nil {
		items = []store.MediaItem{}
	}

	c.JSON(http.StatusOK, models.MediaListResponse{Items: items})
}

func (ws *WebServer) handleMediaAction(c *gin.Context) {
	switch c.PostForm("action") {
	case "upload":
		ws.handleMediaUpload(c)
	case "delete":
		ws.handleMediaDelete(c)
	case "update":
		ws.handleMediaUpdate(c)
	default:
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("unknown action: %s", c.PostForm("action"))})
	}
}

func (ws *WebServer) handleMediaUpload(c *gin.Context) {
	file, err := c.FormFile("fileToUpload")
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "No file provided"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	mediaType := util.MediaTypeForExt(ext)
	if mediaType == "" {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Unsupported file extension: %s", ext)})
		return
	}

	if mediaType == "image" && file.Size > ws.cfg.Upload.MaxImageBytes {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Image too large: %d bytes", file.Size)})
		return
	}
	if mediaType == "video" && file.Size > ws.cfg.Upload.MaxVideoBytes {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Video too large: %d bytes", file.Size)})
		return
	}

	storedName := uuid.NewString() + ext
	fullPath := filepath.Join(ws.mediaDir, storedName)
	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Failed to save file: %v", err)})
		return
	}

	item := &store.MediaItem{
		Path:     filepath.ToSlash(filepath.Join("media", storedName)),
		Type:     mediaType,
		Name:     file.Filename,
		Size:     file.Size,
		Duration: defaultMediaDuration,
	}
	if err := ws.db.InsertMediaItem(item); err != nil {
		// Clean up file if DB insert fails
		os.Remove(fullPath)
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Failed to register media: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{
		Res:  models.ResOK,
		ID:   item.ID,
		Path: item.Path,
		Type: item.Type,
		Name: item.Name,
		Size: item.Size,
		Time: item.Duration,
	})
}

func (ws *WebServer) handleMediaDelete(c *gin.Context) {
	id, err := strconv.ParseInt(c.PostForm("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid id parameter"})
		return
	}

	item, err := ws.db.GetMediaItem(id)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Delete failed: %v", err)})
		return
	}

	removed, err := ws.db.DeleteMediaItem(id)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Delete failed: %v", err)})
		return
	}

	// Storage cleanup is best-effort once the row is gone.
	full := filepath.Join(ws.cfg.Server.DataRoot, filepath.FromSlash(item.Path))
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove media file", "path", full, "error", err)
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, ID: id, RemovedCount: removed})
}

func (ws *WebServer) handleMediaUpdate(c *gin.Context) {
	id, err := strconv.ParseInt(c.PostForm("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid id parameter"})
		return
	}

	duration, err := strconv.Atoi(c.PostForm("duration"))
	if err != nil || duration < 1 {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "duration must be a positive integer"})
		return
	}

	if err := ws.db.UpdateMediaDefaultDuration(id, duration); err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Update failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, ID: id, Time: duration})
}
