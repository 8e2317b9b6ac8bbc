package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/airpulse/console/api/models"
	"github.com/airpulse/console/store"
	"github.com/gin-gonic/gin"
)

// The advertisment resource keeps the upstream spelling; machine and
// customer ids arrive as the legacy "api" and "cid" parameters.

func (ws *WebServer) handleListAds(c *gin.Context) {
	if c.Query("list") != "1" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "list=1 is required"})
		return
	}

	machineID, err := strconv.ParseInt(c.Query("api"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid api parameter"})
		return
	}

	entries, err := ws.db.GetTimelineEntries(machineID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("Database error: %v", err)})
		return
	}
	if entries == nil {
		entries = []store.TimelineEntry{}
	}

	c.JSON(http.StatusOK, models.AdListResponse{Items: entries})
}

func (ws *WebServer) handleAdAction(c *gin.Context) {
	action := c.PostForm("action")
	switch action {
	case "create":
		ws.handleAdCreate(c)
	case "delete":
		ws.handleAdDelete(c)
	case "update", "update_time":
		ws.handleAdDurationUpdate(c)
	case "bulk_update":
		ws.handleAdBulkUpdate(c)
	case "assign_media_to_all":
		ws.handleAssignMediaToAll(c)
	case "update_media_duration":
		ws.handleUpdateMediaDuration(c)
	case "update_machine_times":
		ws.handleUpdateMachineTimes(c)
	case "update_all_times":
		ws.handleUpdateAllTimes(c)
	case "delete_machine_ads":
		ws.handleDeleteMachineAds(c)
	case "delete_all_ads":
		ws.handleDeleteAllAds(c)
	default:
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("unknown action: %s", action)})
	}
}

func (ws *WebServer) handleAdCreate(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.PostForm("api"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid api parameter"})
		return
	}
	mediaID, err := strconv.ParseInt(c.PostForm("media_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid media_id parameter"})
		return
	}
	duration := parseDuration(c.PostForm("time"))

	entry, err := ws.db.AppendTimelineEntry(machineID, mediaID, duration)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Create failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{
		Res:  models.ResOK,
		ID:   entry.ID,
		Path: entry.Path,
		Type: entry.Type,
		Time: entry.Duration,
	})
}

func (ws *WebServer) handleAdDelete(c *gin.Context) {
	id, err := strconv.ParseInt(c.PostForm("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid id parameter"})
		return
	}

	if err := ws.db.DeleteTimelineEntry(id); err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Delete failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, ID: id})
}

func (ws *WebServer) handleAdDurationUpdate(c *gin.Context) {
	id, err := strconv.ParseInt(c.PostForm("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid id parameter"})
		return
	}

	// The two upstream call sites named the field differently.
	raw := c.PostForm("ad_time")
	if raw == "" {
		raw = c.PostForm("time")
	}
	duration, err := strconv.Atoi(raw)
	if err != nil || duration < 1 {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "duration must be a positive integer"})
		return
	}

	if err := ws.db.UpdateEntryDuration(id, duration); err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Update failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, ID: id, Time: duration})
}

func (ws *WebServer) handleAdBulkUpdate(c *gin.Context) {
	var updates []store.PositionUpdate
	if err := json.Unmarshal([]byte(c.PostForm("updates")), &updates); err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Invalid updates payload: %v", err)})
		return
	}
	if len(updates) == 0 {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "updates payload is empty"})
		return
	}

	machineID, err := ws.db.GetTimelineEntryMachine(updates[0].ID)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Bulk update failed: %v", err)})
		return
	}

	if err := ws.db.BulkUpdatePositions(machineID, updates); err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Bulk update failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, UpdatedCount: len(updates)})
}

func (ws *WebServer) handleAssignMediaToAll(c *gin.Context) {
	mediaID, err := strconv.ParseInt(c.PostForm("media_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid media_id parameter"})
		return
	}
	duration := parseDuration(c.PostForm("time"))

	added, err := ws.db.AssignMediaToAllMachines(mediaID, duration)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Assign failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, AddedCount: added})
}

func (ws *WebServer) handleUpdateMediaDuration(c *gin.Context) {
	mediaID, err := strconv.ParseInt(c.PostForm("media_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid media_id parameter"})
		return
	}
	duration, err := strconv.Atoi(c.PostForm("time"))
	if err != nil || duration < 1 {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "duration must be a positive integer"})
		return
	}

	updated, err := ws.db.UpdateMediaDurationAcrossTimelines(mediaID, duration)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Update failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, UpdatedCount: updated})
}

func (ws *WebServer) handleUpdateMachineTimes(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.PostForm("api"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid api parameter"})
		return
	}
	duration, err := strconv.Atoi(c.PostForm("time"))
	if err != nil || duration < 1 {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "duration must be a positive integer"})
		return
	}

	updated, err := ws.db.UpdateMachineDurations(machineID, duration)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Update failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, UpdatedCount: updated})
}

func (ws *WebServer) handleUpdateAllTimes(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.PostForm("cid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid cid parameter"})
		return
	}
	duration, err := strconv.Atoi(c.PostForm("time"))
	if err != nil || duration < 1 {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "duration must be a positive integer"})
		return
	}

	updated, err := ws.db.UpdateCustomerDurations(customerID, duration)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Update failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, UpdatedCount: updated})
}

func (ws *WebServer) handleDeleteMachineAds(c *gin.Context) {
	machineID, err := strconv.ParseInt(c.PostForm("api"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid api parameter"})
		return
	}

	removed, err := ws.db.DeleteMachineTimeline(machineID)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Delete failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, RemovedCount: removed})
}

func (ws *WebServer) handleDeleteAllAds(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.PostForm("cid"), 10, 64)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: "Invalid cid parameter"})
		return
	}

	removed, err := ws.db.DeleteCustomerTimelines(customerID)
	if err != nil {
		c.JSON(http.StatusOK, models.MutationResponse{Res: fmt.Sprintf("Delete failed: %v", err)})
		return
	}

	c.JSON(http.StatusOK, models.MutationResponse{Res: models.ResOK, RemovedCount: removed})
}

// parseDuration falls back to the library default when the field is absent
// or malformed, matching how the editor submits.
func parseDuration(raw string) int {
	duration, err := strconv.Atoi(raw)
	if err != nil || duration < 1 {
		return defaultMediaDuration
	}
	return duration
}
