package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/store"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
)

const defaultDetectNote = "Created via /detect-image"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Text string `json:"text"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ImageResponse is returned by POST /analyze-image.
type ImageResponse struct {
	Reply           string   `json:"reply"`
	InputImage      string   `json:"input_image"`
	ProcessedImages []string `json:"processed_images"`
}

// DetectionsResponse is returned by GET /detections.
type DetectionsResponse struct {
	Items []store.DetectionListing `json:"items"`
}

func (s *Server) fail(c echo.Context, code int, detail string, err error) error {
	attrs := []any{"path", c.Request().URL.Path, "status", code, "detail", detail}
	var ee *pcberrors.EnhancedError
	if pcberrors.As(err, &ee) {
		attrs = append(attrs, ee.LogAttrs()...)
	} else if err != nil {
		attrs = append(attrs, "error", err)
	}
	s.logger.Error("request failed", attrs...)
	return c.JSON(code, ErrorResponse{Detail: detail})
}

// statusFor maps input validation errors to 400 and everything else to 500.
func statusFor(err error) int {
	if pcberrors.CategoryOf(err) == pcberrors.CategoryInputValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "PCB Supervisor Agent API is running",
	})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid request body", err)
	}
	reply, err := s.supervisor.Chat(c.Request().Context(), req.Text)
	if err != nil {
		return s.fail(c, statusFor(err), err.Error(), err)
	}
	return c.JSON(http.StatusOK, ChatResponse{Reply: reply})
}

func (s *Server) analyzeImage(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return s.fail(c, http.StatusBadRequest, "file is required", err)
	}
	if !isImageUpload(fh) {
		return s.fail(c, http.StatusBadRequest, "only image uploads are accepted", nil)
	}
	inputPath := filepath.Join(s.uploadDir, filepath.Base(fh.Filename))
	if err := saveUpload(fh, inputPath); err != nil {
		return s.fail(c, http.StatusInternalServerError, fmt.Sprintf("Cannot save uploaded file: %v", err), err)
	}

	reply, err := s.supervisor.AnalyzeImage(c.Request().Context(), inputPath)
	if err != nil {
		return s.fail(c, statusFor(err), err.Error(), err)
	}

	names, err := vision.ListArtifacts(s.outputDir)
	if err != nil {
		s.logger.Warn("listing processed images", "dir", s.outputDir, "error", err)
	}
	processed := make([]string, 0, len(names))
	for _, name := range names {
		processed = append(processed, filepath.Join(s.outputDir, name))
	}
	return c.JSON(http.StatusOK, ImageResponse{
		Reply:           reply,
		InputImage:      inputPath,
		ProcessedImages: processed,
	})
}

func (s *Server) detectImage(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return s.fail(c, http.StatusBadRequest, "file is required", err)
	}
	if !isImageUpload(fh) {
		return s.fail(c, http.StatusBadRequest, "only image uploads are accepted", nil)
	}
	note := c.FormValue("note")
	if strings.TrimSpace(note) == "" {
		note = defaultDetectNote
	}
	boardCode := store.OptionalString(c.FormValue("board_code"))

	tmpPath := filepath.Join(s.uploadDir, uuid.NewString()+"_"+filepath.Base(fh.Filename))
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing temp upload", "path", tmpPath, "error", err)
		}
	}()

	var bundle store.PersistedBundle
	ctx := c.Request().Context()
	err = s.detects.Do(ctx, func() error {
		s.metrics.DetectStarted()
		defer s.metrics.DetectFinished()

		if err := saveUpload(fh, tmpPath); err != nil {
			return err
		}
		res, err := s.pipeline.Analyze(ctx, tmpPath)
		if err != nil {
			return err
		}
		classes := make([]string, 0, len(res.Detections))
		for _, d := range res.Detections {
			classes = append(classes, d.Class)
		}
		s.metrics.RecordDetections(classes)

		main, crops := store.UploadsFromResult(res, fh.Filename, boardCode, &note)
		bundle, err = s.records.Persist(ctx, main, crops)
		return err
	})
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, fmt.Sprintf("processing error: %v", err), err)
	}
	return c.JSON(http.StatusOK, bundle)
}

func (s *Server) listDetections(c echo.Context) error {
	items, err := s.records.ListDetections(c.Request().Context())
	if err != nil {
		return s.fail(c, http.StatusInternalServerError, fmt.Sprintf("db error: %v", err), err)
	}
	return c.JSON(http.StatusOK, DetectionsResponse{Items: items})
}

func isImageUpload(fh *multipart.FileHeader) bool {
	return strings.HasPrefix(fh.Header.Get("Content-Type"), "image/")
}

// saveUpload copies the multipart file to path, creating its directory.
func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
