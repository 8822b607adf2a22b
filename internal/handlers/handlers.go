package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/example/id-verify/internal/auth"
	"github.com/example/id-verify/internal/scanner"
	"github.com/example/id-verify/internal/usecase"
)

// MaxUploadSize bounds a single multipart upload. Camera frames are small;
// anything larger is a client bug.
const MaxUploadSize = 8 << 20

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.ScanUseCase, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	scans := router.Group("/scans", authMiddleware)

	scans.POST("", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		sessionID, err := uc.StartScan(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start scan"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"session_id": sessionID})
	})

	scans.POST("/:id/frames", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		frame, status, message := parseFrame(c)
		if status != 0 {
			c.JSON(status, gin.H{"error": message})
			return
		}

		accepted, phase, progress, err := uc.SubmitFrame(userID, c.Param("id"), frame)
		if err != nil {
			renderSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"frame_id": frame.ID,
			"accepted": accepted,
			"phase":    phase,
			"progress": progress,
		})
	})

	scans.GET("/:id", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		phase, progress, err := uc.GetStatus(userID, c.Param("id"))
		if err != nil {
			renderSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": c.Param("id"),
			"phase":      phase,
			"progress":   progress,
		})
	})

	scans.GET("/:id/events", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		events, cancel, err := uc.Subscribe(userID, c.Param("id"))
		if err != nil {
			renderSessionError(c, err)
			return
		}
		defer cancel()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		c.Stream(func(w io.Writer) bool {
			select {
			case ev, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(string(ev.Type), ev)
				return !terminalEvent(ev)
			case <-c.Request.Context().Done():
				return false
			}
		})
	})

	scans.GET("/:id/result", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		outcome, err := uc.GetResult(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			if errors.Is(err, usecase.ErrScanNotCompleted) {
				c.JSON(http.StatusConflict, gin.H{"error": "scan has not completed"})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}

		if outcome.Result != nil {
			c.JSON(http.StatusOK, gin.H{
				"session_id": outcome.SessionID,
				"result":     outcome.Result,
			})
			return
		}
		record := outcome.Record
		c.JSON(http.StatusOK, gin.H{
			"session_id":         record.SessionID,
			"authenticity_score": record.AuthenticityScore,
			"structural_score":   record.StructuralScore,
			"checksum_score":     record.ChecksumScore,
			"checksum_valid":     record.ChecksumValid,
			"duration_ms":        record.DurationMs,
			"error_count":        record.ErrorCount,
			"created_at":         record.CreatedAt,
		})
	})

	scans.POST("/:id/reset", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		if err := uc.ResetScan(userID, c.Param("id")); err != nil {
			renderSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	})

	scans.DELETE("/:id", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		if err := uc.EndScan(c.Request.Context(), userID, c.Param("id")); err != nil {
			renderSessionError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ended"})
	})

	router.GET("/metrics/summary", authMiddleware, func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// terminalEvent reports whether an event ends the SSE stream. Error events
// carrying a non-fatal code are mid-scan feedback (quality hints, per-frame
// findings) and must leave the stream open.
func terminalEvent(ev scanner.Event) bool {
	if ev.Type == scanner.EventScanCompleted {
		return true
	}
	return ev.Type == scanner.EventError && ev.Code.Fatal()
}

// parseFrame decodes the multipart frame upload. A non-zero status means the
// request was rejected.
func parseFrame(c *gin.Context) (scanner.Frame, int, string) {
	var frame scanner.Frame

	frame.ID = c.PostForm("frame_id")
	if frame.ID == "" {
		frame.ID = uuid.NewString()
	}

	switch side := c.PostForm("side"); side {
	case "front":
		frame.Side = scanner.SideFront
	case "back":
		frame.Side = scanner.SideBack
	default:
		return frame, http.StatusBadRequest, "side must be front or back"
	}

	width, err := strconv.Atoi(c.PostForm("width"))
	if err != nil || width <= 0 {
		return frame, http.StatusBadRequest, "width is required"
	}
	height, err := strconv.Atoi(c.PostForm("height"))
	if err != nil || height <= 0 {
		return frame, http.StatusBadRequest, "height is required"
	}
	frame.Width = width
	frame.Height = height

	lumaFile, err := c.FormFile("frame")
	if err != nil {
		return frame, http.StatusBadRequest, "frame file is required"
	}
	if lumaFile.Size > MaxUploadSize {
		return frame, http.StatusRequestEntityTooLarge, "frame too large"
	}
	luma, status, message := readPart(lumaFile)
	if status != 0 {
		return frame, status, message
	}
	if len(luma) != width*height {
		return frame, http.StatusBadRequest, "frame size does not match dimensions"
	}
	frame.Luma = luma

	if imageFile, err := c.FormFile("image"); err == nil {
		if imageFile.Size > MaxUploadSize {
			return frame, http.StatusRequestEntityTooLarge, "image too large"
		}
		contentType := imageFile.Header.Get("Content-Type")
		if contentType != "" && !strings.HasPrefix(contentType, "image/") {
			return frame, http.StatusUnsupportedMediaType, "image must be an image type"
		}
		image, status, message := readPart(imageFile)
		if status != 0 {
			return frame, status, message
		}
		frame.Image = image
	}

	// The OCR collaborator consumes encoded image bytes, not the raw
	// luminance plane, so the MRZ side cannot go without them.
	if frame.Side == scanner.SideBack && frame.Image == nil {
		return frame, http.StatusBadRequest, "image file is required for back frames"
	}

	return frame, 0, ""
}

func readPart(fh *multipart.FileHeader) ([]byte, int, string) {
	src, err := fh.Open()
	if err != nil {
		return nil, http.StatusBadRequest, "unable to open upload"
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, http.StatusInternalServerError, "failed to read upload"
	}
	return data, 0, ""
}

func renderSessionError(c *gin.Context, err error) {
	if errors.Is(err, usecase.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan session not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
