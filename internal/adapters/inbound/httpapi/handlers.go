package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdidvp/layerfix/internal/adapters/outbound/output"
	"github.com/abdidvp/layerfix/internal/adapters/outbound/scanner"
	"github.com/abdidvp/layerfix/internal/bootstrap"
	"github.com/abdidvp/layerfix/internal/domain"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// Handlers serves the HTTP routes from one App.
type Handlers struct {
	app       *bootstrap.App
	maxUpload int64
}

func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handlers) HandleRules(c *gin.Context) {
	c.JSON(http.StatusOK, h.app.Service.Catalog().Rules())
}

// HandleDetectJSON reports violations of a {path: source} payload without
// generating anything. It needs no API key.
func (h *Handlers) HandleDetectJSON(c *gin.Context) {
	project, ok := h.bindSources(c)
	if !ok {
		return
	}
	rep, err := h.app.Service.Detect(c.Request.Context(), project)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// HandleFixJSON fixes a {path: source} payload and answers with the report,
// whose "fixed" member maps each changed or created path to its new text.
func (h *Handlers) HandleFixJSON(c *gin.Context) {
	if !h.requireGenerator(c) {
		return
	}
	project, ok := h.bindSources(c)
	if !ok {
		return
	}
	rep, err := h.app.Run(c.Request.Context(), project, fixOptions(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// HandleFixZip fixes an uploaded zip ("file" form field) and answers with a
// zip of the fixed project plus the JSON report.
func (h *Handlers) HandleFixZip(c *gin.Context) {
	if !h.requireGenerator(c) {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "multipart field \"file\" is required", Code: "INVALID_REQUEST"})
		return
	}
	if fh.Size > h.maxUpload {
		h.tooLarge(c)
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if int64(len(data)) > h.maxUpload {
		h.tooLarge(c)
		return
	}

	ctx := c.Request.Context()
	project, err := h.app.Loader.LoadZip(ctx, fh.Filename, data)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_ARCHIVE"})
		return
	}
	if len(project.Files) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No Java files found in zip", Code: "EMPTY_PROJECT"})
		return
	}

	rep, err := h.app.Run(ctx, project, fixOptions(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	body, err := output.ZipReport(ctx, output.Merge(project.Files, rep.Fixed), rep)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=fixed.zip")
	c.Data(http.StatusOK, "application/zip", body)
}

func (h *Handlers) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
		Error: "Upload exceeds " + strconv.FormatInt(h.maxUpload, 10) + " bytes",
		Code:  "TOO_LARGE",
	})
}

func (h *Handlers) requireGenerator(c *gin.Context) bool {
	if _, err := h.app.Fixer(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "MISSING_API_KEY"})
		return false
	}
	return true
}

func (h *Handlers) bindSources(c *gin.Context) (domain.Project, bool) {
	var payload map[string]string
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Code: "INVALID_REQUEST"})
		return domain.Project{}, false
	}
	if len(payload) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Empty payload", Code: "EMPTY_PROJECT"})
		return domain.Project{}, false
	}
	project, err := scanner.FromSources(c.DefaultQuery("project", "json"), payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return domain.Project{}, false
	}
	return project, true
}

// fixOptions reads ?dry_run=true and ?rules=BL001,BL003.
func fixOptions(c *gin.Context) domain.FixOptions {
	var opts domain.FixOptions
	opts.DryRun, _ = strconv.ParseBool(c.Query("dry_run"))
	for _, id := range strings.Split(c.Query("rules"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.Rules = append(opts.Rules, strings.ToUpper(id))
		}
	}
	return opts
}

func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNoParsableUnits), errors.Is(err, domain.ErrEmptyProject):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "NOTHING_TO_FIX"})
	case bootstrap.MissingKey(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "MISSING_API_KEY"})
	default:
		h.app.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL_ERROR"})
	}
}
