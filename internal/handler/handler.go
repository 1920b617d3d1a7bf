package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/config"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/domain"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/service"
)

const uploadField = "screenshots"

type Handler struct {
	screenshots service.ScreenshotService
	ingestion   service.IngestionService
	mirror      service.MirrorService
	cfg         *config.AppConfig
	log         *zap.Logger
}

func NewHandler(screenshots service.ScreenshotService, ingestion service.IngestionService, mirror service.MirrorService, cfg *config.AppConfig, log *zap.Logger) *Handler {
	return &Handler{
		screenshots: screenshots,
		ingestion:   ingestion,
		mirror:      mirror,
		cfg:         cfg,
		log:         log,
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) ListScreenshots(c *gin.Context) {
	screenshots := h.screenshots.List(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    screenshots,
		"count":   len(screenshots),
	})
}

func (h *Handler) SaveScreenshots(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	var screenshots []domain.Screenshot
	if !isArray(body) || json.Unmarshal(body, &screenshots) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Screenshots data must be an array"})
		return
	}

	if err := h.screenshots.SaveAll(screenshots); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to save screenshots", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Saved %d screenshots", len(screenshots)),
		"count":   len(screenshots),
	})
}

type descriptionRequest struct {
	Description *string `json:"description" binding:"required"`
}

func (h *Handler) UpdateDescription(c *gin.Context) {
	var req descriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}

	id := c.Param("id")
	if err := h.screenshots.UpdateDescription(id, *req.Description); err != nil {
		h.respondError(c, "Failed to update description", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (h *Handler) RemoveScreenshot(c *gin.Context) {
	removed, err := h.screenshots.Remove(c.Param("id"))
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to remove screenshot", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}

func (h *Handler) ClearScreenshots(c *gin.Context) {
	if err := h.screenshots.Clear(); err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to clear screenshots", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "All screenshots cleared"})
}

func (h *Handler) ImportScreenshots(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	var entries []domain.ExportEntry
	if !isArray(body) || json.Unmarshal(body, &entries) != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format. Expected an array of screenshots."})
		return
	}

	added, skipped, err := h.screenshots.Import(entries)
	if err != nil {
		h.respondError(c, "Failed to import screenshots", err)
		return
	}

	message := fmt.Sprintf("Successfully imported %d screenshot(s)", added)
	if added == 0 {
		message = "All screenshots already exist"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"added":   added,
		"skipped": skipped,
	})
}

func (h *Handler) ExportScreenshots(c *gin.Context) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, service.ExportFilename(time.Now())))
	c.IndentedJSON(http.StatusOK, h.screenshots.Export())
}

// UploadScreenshots stores the files and returns asset descriptors; the
// client still has to save them as records.
func (h *Handler) UploadScreenshots(c *gin.Context) {
	files, ok := h.formFiles(c)
	if !ok {
		return
	}

	summary := h.ingestion.StoreAssets(c.Request.Context(), files)
	h.respondSummary(c, summary)
}

// IngestScreenshots runs the full pipeline: store files and add records.
func (h *Handler) IngestScreenshots(c *gin.Context) {
	files, ok := h.formFiles(c)
	if !ok {
		return
	}

	summary, err := h.ingestion.Ingest(c.Request.Context(), files)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to save screenshots", err)
		return
	}
	h.respondSummary(c, summary)
}

func (h *Handler) ListData(c *gin.Context) {
	files, err := h.screenshots.ListData()
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "Failed to list JSON files", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"files":   files,
		"total":   len(files),
	})
}

func (h *Handler) LoadData(c *gin.Context) {
	blob, err := h.screenshots.LoadData(c.Param("filename"))
	if err != nil {
		h.respondError(c, "Failed to load JSON data", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     blob.Data,
		"filename": blob.Name,
		"path":     blob.Path,
		"size":     blob.Size,
	})
}

func (h *Handler) SaveData(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.fail(c, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	name := c.Param("filename")
	blob, err := h.screenshots.SaveData(name, body)
	if err != nil {
		h.respondError(c, "Failed to save JSON data", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Data saved to %s", name),
		"path":    blob.Path,
		"size":    blob.Size,
	})
}

func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, h.screenshots.Info())
}

func (h *Handler) Backup(c *gin.Context) {
	result, err := h.mirror.Backup(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrMirrorDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, http.StatusBadGateway, "Backup failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "backup": result})
}

func (h *Handler) formFiles(c *gin.Context) ([]domain.FileCandidate, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded"})
		return nil, false
	}

	headers := form.File[uploadField]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files uploaded"})
		return nil, false
	}
	if len(headers) > h.cfg.MaxUploadFiles {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Too many files: at most %d per upload", h.cfg.MaxUploadFiles),
		})
		return nil, false
	}

	files := make([]domain.FileCandidate, 0, len(headers))
	for _, fh := range headers {
		header := fh
		files = append(files, domain.FileCandidate{
			Name: header.Filename,
			Size: header.Size,
			Open: func() (io.ReadCloser, error) { return header.Open() },
		})
	}
	return files, true
}

func (h *Handler) respondSummary(c *gin.Context, summary domain.IngestSummary) {
	status := http.StatusOK
	if summary.Succeeded == 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{
		"success":  summary.Succeeded > 0,
		"files":    summary.Assets,
		"count":    summary.Succeeded,
		"failed":   summary.Failed,
		"rejected": summary.Rejections,
	})
}

// respondError picks the status code from the error's type.
func (h *Handler) respondError(c *gin.Context, message string, err error) {
	var verr *domain.ValidationError
	var corrupt *domain.CorruptStoreError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &corrupt):
		h.fail(c, http.StatusUnprocessableEntity, message, err)
	default:
		h.fail(c, http.StatusInternalServerError, message, err)
	}
}

func (h *Handler) fail(c *gin.Context, status int, message string, err error) {
	h.log.Error(message,
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err))
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func isArray(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
