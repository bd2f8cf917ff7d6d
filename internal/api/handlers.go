// Package api is the HTTP surface of the scoring pipeline.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/monitoring"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/pipeline"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/resilience"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/schema"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/types"
)

// ScoringUnavailableHeader marks responses where the model side failed and
// no trial-specific result exists.
const ScoringUnavailableHeader = "X-Scoring-Unavailable"

// Handler serves the pipeline over HTTP.
type Handler struct {
	pipeline      *pipeline.Pipeline
	metrics       *monitoring.Metrics
	breakers      *resilience.Registry
	version       string
	predictorMode string
	now           func() time.Time

	statsMu sync.RWMutex
	stats   map[string]func() map[string]interface{}
}

// NewHandler wires a handler. breakers may be nil.
func NewHandler(p *pipeline.Pipeline, metrics *monitoring.Metrics, breakers *resilience.Registry, version, predictorMode string) *Handler {
	return &Handler{
		pipeline:      p,
		metrics:       metrics,
		breakers:      breakers,
		version:       version,
		predictorMode: predictorMode,
		now:           time.Now,
		stats:         make(map[string]func() map[string]interface{}),
	}
}

// RegisterStats adds a named section to the /metrics output.
func (h *Handler) RegisterStats(name string, fn func() map[string]interface{}) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.stats[name] = fn
}

// Validate godoc
// @Summary      Validate a trial design
// @Description  Checks a raw trial against the schema and returns the canonical form.
// @Tags         pipeline
// @Accept       json
// @Produce      json
// @Param        trial  body      object  true  "Raw trial fields"
// @Success      200    {object}  types.ValidateResponse
// @Failure      400    {object}  apperrors.AppError
// @Router       /v1/validate [post]
func (h *Handler) Validate(c *gin.Context) {
	raw, ok := h.bindTrial(c)
	if !ok {
		return
	}
	spec, notices, err := h.pipeline.Validate(raw)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, types.ValidateResponse{Spec: spec, Notices: notices})
}

// Assemble godoc
// @Summary      Assemble the feature vector
// @Description  Validates a trial, builds its model input and flags out-of-distribution inputs.
// @Tags         pipeline
// @Accept       json
// @Produce      json
// @Param        trial  body      object  true  "Raw trial fields"
// @Success      200    {object}  pipeline.Assembly
// @Failure      400    {object}  apperrors.AppError
// @Router       /v1/assemble [post]
func (h *Handler) Assemble(c *gin.Context) {
	raw, ok := h.bindTrial(c)
	if !ok {
		return
	}
	asm, err := h.pipeline.Assemble(raw)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, asm)
}

// Score godoc
// @Summary      Score a trial design
// @Description  Runs the full pipeline: validation, features, prediction, CDR score and policy.
// @Tags         pipeline
// @Accept       json
// @Produce      json
// @Param        trial  body      object  true  "Raw trial fields"
// @Success      200    {object}  pipeline.Result
// @Failure      400    {object}  apperrors.AppError
// @Failure      422    {object}  apperrors.AppError
// @Failure      500    {object}  apperrors.AppError
// @Failure      502    {object}  apperrors.AppError
// @Failure      504    {object}  apperrors.AppError
// @Router       /v1/score [post]
func (h *Handler) Score(c *gin.Context) {
	raw, ok := h.bindTrial(c)
	if !ok {
		return
	}
	res, err := h.pipeline.Run(c.Request.Context(), raw)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ScorePredictions godoc
// @Summary      Score supplied predictions
// @Description  Scores a prediction per reference target and returns the policy reading.
// @Tags         pipeline
// @Accept       json
// @Produce      json
// @Param        request  body      types.ScorePredictionsRequest  true  "Predictions and optional trial"
// @Success      200      {object}  pipeline.Evaluation
// @Failure      400      {object}  apperrors.AppError
// @Failure      422      {object}  apperrors.AppError
// @Router       /v1/score/predictions [post]
func (h *Handler) ScorePredictions(c *gin.Context) {
	var req types.ScorePredictionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.NewBadRequestError("request body must be a JSON object with predictions", err))
		return
	}

	var spec *schema.TrialSpec
	if len(req.Trial) > 0 {
		var err error
		spec, _, err = h.pipeline.Validate(req.Trial)
		if err != nil {
			h.fail(c, err)
			return
		}
	}

	pv := req.Vector(h.pipeline.Bundle().Targets())
	ev, err := h.pipeline.ScorePredictions(c.Request.Context(), pv, spec)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// Reference godoc
// @Summary      Reference proportions
// @Tags         artifacts
// @Produce      json
// @Success      200  {object}  types.ReferenceResponse
// @Router       /v1/reference [get]
func (h *Handler) Reference(c *gin.Context) {
	c.JSON(http.StatusOK, types.NewReferenceResponse(h.pipeline.Bundle()))
}

// Rules godoc
// @Summary      Policy rule base
// @Tags         artifacts
// @Produce      json
// @Success      200  {object}  types.RulesResponse
// @Router       /v1/rules [get]
func (h *Handler) Rules(c *gin.Context) {
	e := h.pipeline.Engine()
	c.JSON(http.StatusOK, types.RulesResponse{Levels: e.Levels(), Rules: e.Spec()})
}

// Health godoc
// @Summary      Service health
// @Tags         ops
// @Produce      json
// @Success      200  {object}  types.HealthResponse
// @Failure      503  {object}  types.HealthResponse
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	res := types.NewHealthResponse(h.version, h.pipeline.Bundle(), h.predictorMode, h.breakers, h.now())
	status := http.StatusOK
	if res.Status != types.StatusOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, res)
}

// Metrics godoc
// @Summary      Service metrics
// @Tags         ops
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /metrics [get]
func (h *Handler) Metrics(c *gin.Context) {
	out := h.metrics.GetStats()
	h.statsMu.RLock()
	for name, fn := range h.stats {
		out[name] = fn()
	}
	h.statsMu.RUnlock()
	if h.breakers != nil {
		out["circuit_breakers"] = h.breakers.Stats()
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) bindTrial(c *gin.Context) (schema.RawInput, bool) {
	var raw schema.RawInput
	if err := c.ShouldBindJSON(&raw); err != nil {
		h.fail(c, apperrors.NewBadRequestError("request body must be a JSON object of trial fields", err))
		return nil, false
	}
	if raw == nil {
		raw = schema.RawInput{}
	}
	return raw, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	appErr := apperrors.ToAppError(err)
	appErr.RequestID = c.GetString("request_id")
	if apperrors.ScoringUnavailable(appErr) {
		c.Header(ScoringUnavailableHeader, "true")
	}
	apperrors.LogError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}
