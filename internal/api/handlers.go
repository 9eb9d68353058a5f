// Package api exposes the HTTP surface: the update webhook and the admin
// REST endpoints.
package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"collalearn/internal/ailog"
	"collalearn/internal/auth"
	"collalearn/internal/bot"
	"collalearn/internal/catalog"
	"collalearn/internal/config"
	"collalearn/internal/models"
	"collalearn/internal/settings"
)

// ActorHeader identifies the acting user on admin REST calls.
const ActorHeader = "X-Actor-ID"

// Handler wires HTTP routes to the update router and the stores.
type Handler struct {
	cfg     *config.Config
	router  *bot.Router
	groups  *settings.Store
	files   *catalog.Store
	logs    *ailog.Store
	checker *auth.Checker
}

// NewHandler constructs a Handler instance.
func NewHandler(cfg *config.Config, router *bot.Router, groups *settings.Store, files *catalog.Store, logs *ailog.Store, checker *auth.Checker) *Handler {
	return &Handler{cfg: cfg, router: router, groups: groups, files: files, logs: logs, checker: checker}
}

// RegisterRoutes attaches all HTTP routes to the engine.
func (h *Handler) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", h.health)

	api := engine.Group("/api", auth.RequireSecret(h.cfg.WebhookSecret))
	api.POST("/updates", h.handleUpdate)

	admin := api.Group("/admin", h.requireGlobalAdmin())
	admin.GET("/groups", h.listGroups)
	admin.GET("/groups/:id", h.getGroup)
	admin.GET("/groups/:id/settings", h.getSettings)
	admin.PUT("/groups/:id/settings", h.putSettings)
	admin.GET("/groups/:id/stats", h.groupStats)
	admin.GET("/groups/:id/ai_logs", h.recentAILogs)
	admin.DELETE("/groups/:id", h.deleteGroup)
	admin.DELETE("/files/:id", h.deleteFile)
	admin.DELETE("/files/:id/tags/:tag", h.removeFileTag)
	admin.GET("/stats", h.globalStats)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleUpdate(c *gin.Context) {
	var update bot.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update body"})
		return
	}
	replies, err := h.router.Handle(c.Request.Context(), update)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if replies == nil {
		replies = []bot.Reply{}
	}
	c.JSON(http.StatusOK, gin.H{"replies": replies})
}

// requireGlobalAdmin gates the admin REST surface on the operator allowlist.
func (h *Handler) requireGlobalAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, err := strconv.ParseInt(c.GetHeader(ActorHeader), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "actor id required"})
			return
		}
		if !h.checker.IsGlobalAdmin(actorID) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a global admin"})
			return
		}
		c.Next()
	}
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) listGroups(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	groups, err := h.groups.ListGroups(c.Request.Context(), offset, limit)
	if err != nil {
		log.Printf("list groups: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if groups == nil {
		groups = []models.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *Handler) getGroup(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	group, err := h.groups.GetGroup(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, settings.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		log.Printf("get group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *Handler) getSettings(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	group, err := h.groups.GetGroup(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, settings.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		log.Printf("get group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, group.Settings)
}

func (h *Handler) putSettings(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var s models.GroupSettings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings body"})
		return
	}
	if s.MaxSearchResults < 1 || s.MaxSearchResults > h.cfg.Limits.MaxSearchResultsCap {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "max_search_results out of range",
			"max":   h.cfg.Limits.MaxSearchResultsCap,
		})
		return
	}
	if err := h.groups.UpdateSettings(c.Request.Context(), id, s); err != nil {
		if errors.Is(err, settings.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		log.Printf("update settings for group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) groupStats(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	group, err := h.groups.GetGroup(ctx, id)
	if err != nil {
		if errors.Is(err, settings.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		log.Printf("get group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	files, err := h.files.CountFiles(ctx, id)
	if err != nil {
		log.Printf("count files for group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	uploaders, err := h.files.TopUploaders(ctx, id, 5)
	if err != nil {
		log.Printf("top uploaders for group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	tags, err := h.files.TagDistribution(ctx, id, 10)
	if err != nil {
		log.Printf("tag distribution for group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	usage, err := h.logs.CountByKind(ctx, id)
	if err != nil {
		log.Printf("ai usage for group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chat_id":           group.ChatID,
		"title":             group.Title,
		"total_files":       files,
		"total_ai_requests": group.Stats.TotalAIRequests,
		"ai_usage":          usage,
		"top_uploaders":     uploaders,
		"top_tags":          tags,
	})
}

func (h *Handler) deleteGroup(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.groups.DeleteGroup(c.Request.Context(), id); err != nil {
		if errors.Is(err, settings.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		log.Printf("delete group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) recentAILogs(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	entries, err := h.logs.Recent(c.Request.Context(), id, limit)
	if err != nil {
		log.Printf("recent ai logs for group %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if entries == nil {
		entries = []models.AILog{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries})
}

func (h *Handler) deleteFile(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.files.SoftDelete(c.Request.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		log.Printf("delete file %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) removeFileTag(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	tag := c.Param("tag")
	if err := h.files.RemoveTag(c.Request.Context(), id, tag); err != nil {
		log.Printf("remove tag from file %d: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"file_id": id, "removed": tag})
}

func (h *Handler) globalStats(c *gin.Context) {
	stats, err := h.groups.GetGlobalStats(c.Request.Context())
	if err != nil {
		log.Printf("global stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
