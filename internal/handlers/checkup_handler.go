package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/onlyfix-api/internal/ledger"
	"github.com/harentsoaR/onlyfix-api/internal/models"
	"github.com/harentsoaR/onlyfix-api/internal/report"
)

const (
	maxCompletionBody   = 64 << 20
	maxImagesPerCheckup = 10
	minStreamInterval   = time.Second
)

func (h *Handler) CreateCheckup(c *gin.Context) {
	var req struct {
		DentistID string `json:"dentistId" binding:"required"`
		Notes     string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	r, ok := requester(c)
	if !ok {
		return
	}

	dentistID, err := primitive.ObjectIDFromHex(req.DentistID)
	if err != nil {
		h.respondError(c, ledger.ErrDentistNotFound)
		return
	}

	checkup, err := h.Ledger.Create(c.Request.Context(), r, dentistID, req.Notes)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Checkup requested successfully",
		"checkup": models.NewCheckupView(checkup, nil, nil),
	})
}

// GetMyCheckups lists the caller's checkups with per-status counts.
func (h *Handler) GetMyCheckups(c *gin.Context) {
	r, ok := requester(c)
	if !ok {
		return
	}

	list, err := h.Ledger.ListMine(c.Request.Context(), r)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func parseInterval(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, err
		}
		d = time.Duration(secs) * time.Second
	}
	if d < minStreamInterval {
		return 0, fmt.Errorf("interval must be at least %s", minStreamInterval)
	}
	return d, nil
}

// StreamMyCheckups pushes a fresh snapshot of the caller's checkups as a
// server-sent event every time it changes.
func (h *Handler) StreamMyCheckups(c *gin.Context) {
	r, ok := requester(c)
	if !ok {
		return
	}

	interval, err := parseInterval(c.Query("interval"), h.PollInterval)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	updates, err := h.Ledger.Watch(c.Request.Context(), r, interval)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Streams outlive the server write timeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.Log.Debug("could not clear write deadline", zap.Error(err))
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	for list := range updates {
		c.SSEvent("checkups", list)
		c.Writer.Flush()
	}
}

func (h *Handler) GetCheckup(c *gin.Context) {
	id, ok := parseObjectID(c, "id", "Checkup")
	if !ok {
		return
	}
	r, ok := requester(c)
	if !ok {
		return
	}

	view, err := h.Ledger.GetByID(c.Request.Context(), id, r)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkup": view})
}

func (h *Handler) UpdateCheckupStatus(c *gin.Context) {
	id, ok := parseObjectID(c, "id", "Checkup")
	if !ok {
		return
	}
	var req struct {
		Status models.Status `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	r, ok := requester(c)
	if !ok {
		return
	}

	checkup, err := h.Ledger.SetStatus(c.Request.Context(), id, r, req.Status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Status updated successfully",
		"checkup": models.NewCheckupView(checkup, nil, nil),
	})
}

// CompleteCheckup accepts a multipart form with the dentist's notes, the
// image files under "images" and their descriptions as "descriptions[i]".
func (h *Handler) CompleteCheckup(c *gin.Context) {
	id, ok := parseObjectID(c, "id", "Checkup")
	if !ok {
		return
	}
	r, ok := requester(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCompletionBody)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, err)
			return
		}
		badRequest(c, "Expected a multipart form")
		return
	}

	files := form.File["images"]
	if len(files) > maxImagesPerCheckup {
		badRequest(c, fmt.Sprintf("At most %d images are allowed", maxImagesPerCheckup))
		return
	}

	uploads := make([]ledger.Upload, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			h.respondError(c, fmt.Errorf("opening upload %d: %w", i, err))
			return
		}
		defer f.Close()

		uploads = append(uploads, ledger.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
			Description: formValue(form.Value, fmt.Sprintf("descriptions[%d]", i)),
		})
	}

	checkup, err := h.Ledger.Complete(c.Request.Context(), id, r, formValue(form.Value, "notes"), uploads)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var stored int64
	for _, img := range checkup.Images {
		stored += img.Size
	}
	h.Metrics.ImageBytesStored.Add(float64(stored))

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkup completed successfully",
		"checkup": models.NewCheckupView(checkup, nil, nil),
	})
}

func formValue(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (h *Handler) GetCheckupImage(c *gin.Context) {
	id, ok := parseObjectID(c, "id", "Checkup")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Image not found"})
		return
	}
	r, ok := requester(c)
	if !ok {
		return
	}

	img, rc, err := h.Ledger.Image(c.Request.Context(), id, r, index)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, img.Size, img.ContentType, rc, map[string]string{
		"Cache-Control": "private, max-age=3600",
	})
}

// DownloadReport renders the PDF report of a completed checkup.
func (h *Handler) DownloadReport(c *gin.Context) {
	id, ok := parseObjectID(c, "id", "Checkup")
	if !ok {
		return
	}
	r, ok := requester(c)
	if !ok {
		return
	}

	in, err := h.Ledger.ReportInput(c.Request.Context(), id, r)
	if err != nil {
		h.respondError(c, err)
		return
	}

	pdf, err := report.Render(*in, h.now())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.Metrics.ReportsGenerated.Inc()

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Filename(id.Hex())))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Ping != nil {
		if err := h.Ping(c.Request.Context()); err != nil {
			h.Log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
