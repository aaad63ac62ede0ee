package main

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aysenursarun/ChurnGuard-AI/internal/analytics"
	"github.com/aysenursarun/ChurnGuard-AI/internal/charts"
	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/aysenursarun/ChurnGuard-AI/internal/errors"
	"github.com/aysenursarun/ChurnGuard-AI/internal/model"
	"github.com/aysenursarun/ChurnGuard-AI/internal/report"
	"github.com/aysenursarun/ChurnGuard-AI/internal/scoring"
	"github.com/aysenursarun/ChurnGuard-AI/internal/session"
)

// DatasetResponse describes one dataset session
type DatasetResponse struct {
	Session *session.Session `json:"session"`
	Rows    int              `json:"rows"`
	Columns []string         `json:"columns"`
}

// ModelResponse describes the loaded model
type ModelResponse struct {
	Info      model.Info `json:"info"`
	Features  []string   `json:"features"`
	Threshold float64    `json:"decision_threshold"`
}

// ScanFailure is one row the encoder could not score
type ScanFailure struct {
	Row   int    `json:"row"`
	Field string `json:"field"`
	Error string `json:"error"`
}

// ScanResponse summarises a batch scan
type ScanResponse struct {
	Scored      int                `json:"scored"`
	Threshold   float64            `json:"threshold"`
	AtRiskCount int                `json:"at_risk_count"`
	AtRisk      []scoring.RowScore `json:"at_risk"`
	Failures    []ScanFailure      `json:"failures"`
}

// PredictRequest carries one customer. Values may be strings or numbers.
// SessionID optionally selects the portfolio used for insight baselines.
type PredictRequest struct {
	Customer  map[string]interface{} `json:"customer" binding:"required"`
	SessionID string                 `json:"session_id,omitempty"`
}

// PredictResponse is the score, the what-if scenarios and the retention insight
type PredictResponse struct {
	Simulation scoring.Simulation `json:"simulation"`
	Insight    analytics.Insight  `json:"insight"`
	Baseline   analytics.Baseline `json:"baseline"`
}

// handleHealth godoc
// @Summary Liveness and model availability
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if !s.engine.Available() {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"model_available": s.engine.Available(),
		"sessions":        s.sessions.Size(),
		"rate_limiter":    s.limiter.Health(c.Request.Context()),
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

// handleMetrics godoc
// @Summary Request, scoring and limiter counters
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /metrics [get]
func (s *Server) handleMetrics(c *gin.Context) {
	stats := s.metrics.GetStats()
	stats["sessions"] = s.sessions.Stats()
	stats["rate_limiter"] = s.limiter.GetStats()
	stats["compression"] = s.gzip.GetStats()
	stats["response_cache"] = s.views.Stats()
	c.JSON(http.StatusOK, stats)
}

// handleModel godoc
// @Summary Model info and feature schema
// @Tags model
// @Produce json
// @Success 200 {object} ModelResponse
// @Failure 503 {object} errors.Response
// @Router /api/model [get]
func (s *Server) handleModel(c *gin.Context) {
	a, err := s.engine.Artifacts()
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ModelResponse{
		Info:      a.Info(),
		Features:  a.Schema().Names(),
		Threshold: a.Info().Threshold,
	})
}

// handleUpload godoc
// @Summary Upload a customer CSV and open a dataset session
// @Tags datasets
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Customer CSV"
// @Success 201 {object} DatasetResponse
// @Failure 400 {object} errors.Response
// @Failure 413 {object} errors.Response
// @Failure 422 {object} errors.Response
// @Router /api/datasets [post]
func (s *Server) handleUpload(c *gin.Context) {
	if c.Request.ContentLength > s.cfg.MaxUploadBytes {
		_ = c.Error(errors.NewUploadTooLargeError(s.cfg.MaxUploadBytes))
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			_ = c.Error(err)
			return
		}
		_ = c.Error(errors.NewValidationError("multipart field 'file' is required", err.Error()))
		return
	}

	table, err := readUpload(header)
	if err != nil {
		_ = c.Error(err)
		return
	}

	s.openSession(c, header.Filename, header.Size, table)
}

func readUpload(header *multipart.FileHeader) (*dataset.Table, error) {
	file, err := header.Open()
	if err != nil {
		return nil, errors.WrapError(err, "opening upload")
	}
	defer errors.SafeClose(file, "upload")

	return parseCSV(file)
}

// parseCSV maps reader failures onto client errors. Only the empty dataset
// and size limit keep their own categories.
func parseCSV(r io.Reader) (*dataset.Table, error) {
	table, err := dataset.ReadCSV(r)
	if err == nil {
		return table, nil
	}

	var tooLarge *http.MaxBytesError
	if stderrors.Is(err, dataset.ErrEmptyDataset) || stderrors.As(err, &tooLarge) {
		return nil, err
	}
	return nil, errors.NewValidationError("Could not parse CSV", err.Error())
}

// handleLoadDefault godoc
// @Summary Open a dataset session on the configured default dataset
// @Tags datasets
// @Produce json
// @Success 201 {object} DatasetResponse
// @Failure 404 {object} errors.Response
// @Failure 422 {object} errors.Response
// @Router /api/datasets/default [post]
func (s *Server) handleLoadDefault(c *gin.Context) {
	path := s.cfg.DefaultDataset

	info, err := os.Stat(path)
	if err != nil {
		_ = c.Error(errors.NewNotFoundError("default dataset", filepath.Base(path)))
		return
	}

	file, err := os.Open(path)
	if err != nil {
		_ = c.Error(errors.WrapError(err, "opening default dataset"))
		return
	}
	defer errors.SafeClose(file, "default dataset")

	table, err := parseCSV(file)
	if err != nil {
		_ = c.Error(err)
		return
	}

	s.openSession(c, filepath.Base(path), info.Size(), table)
}

// openSession validates table and stores it. A fatal report refuses the
// dataset; warnings are kept on the session.
func (s *Server) openSession(c *gin.Context, source string, size int64, table *dataset.Table) {
	report := dataset.Validate(table, dataset.RequiredColumns)

	s.logger.UploadLogger(source, size, table.Len(), len(table.Columns()), report.Fatal(), len(report.Warnings()))
	s.metrics.RecordDataset(!report.Fatal())

	if report.Fatal() {
		_ = c.Error(errors.NewSchemaError(report))
		return
	}

	sess := s.sessions.Create(source, table, report)
	c.JSON(http.StatusCreated, datasetResponse(sess))
}

func datasetResponse(sess *session.Session) DatasetResponse {
	return DatasetResponse{
		Session: sess,
		Rows:    sess.Table.Len(),
		Columns: sess.Table.Columns(),
	}
}

func (s *Server) session(c *gin.Context) (*session.Session, bool) {
	id := c.Param("id")
	sess, err := s.sessions.Get(id)
	if err != nil {
		_ = c.Error(errors.NewNotFoundError("dataset session", id))
		return nil, false
	}
	return sess, true
}

// handleGetDataset godoc
// @Summary Dataset session summary and validation report
// @Tags datasets
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} DatasetResponse
// @Failure 404 {object} errors.Response
// @Router /api/datasets/{id} [get]
func (s *Server) handleGetDataset(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, datasetResponse(sess))
}

// handleAnalytics godoc
// @Summary Portfolio overview, segments, stickiness and payment losses
// @Tags analytics
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} analytics.Summary
// @Failure 404 {object} errors.Response
// @Router /api/datasets/{id}/analytics [get]
func (s *Server) handleAnalytics(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, analytics.Summarize(dataset.Customers(sess.Table)))
}

// handleStrategy godoc
// @Summary Financial targets, roadmap and action priorities
// @Tags analytics
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} analytics.Strategy
// @Failure 404 {object} errors.Response
// @Router /api/datasets/{id}/strategy [get]
func (s *Server) handleStrategy(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, analytics.ComputeStrategy(dataset.Customers(sess.Table)))
}

// handleChart godoc
// @Summary Render an analytics chart as PNG
// @Tags analytics
// @Produce png
// @Param id path string true "Session ID"
// @Param chart path string true "segments, contracts, stickiness, payments or charges"
// @Success 200 {file} binary
// @Failure 404 {object} errors.Response
// @Failure 422 {object} errors.Response
// @Router /api/datasets/{id}/charts/{chart} [get]
func (s *Server) handleChart(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	summary := analytics.Summarize(dataset.Customers(sess.Table))

	var buf bytes.Buffer
	if err := charts.Render(&buf, c.Param("chart"), summary); err != nil {
		_ = c.Error(err)
		return
	}

	s.metrics.IncrementChartsRendered()
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) scan(sess *session.Session) (scoring.Scan, error) {
	start := time.Now()
	scan, err := s.engine.ScanTable(sess.Table)
	if err != nil {
		return scoring.Scan{}, err
	}

	atRisk := len(scan.AtRisk(report.RiskThreshold))
	s.metrics.RecordScan(len(scan.Scores), len(scan.Failures))
	s.logger.ScoringLogger("scan", len(scan.Scores), len(scan.Failures), atRisk, time.Since(start))
	return scan, nil
}

// handleScan godoc
// @Summary Score every customer in the session
// @Tags scoring
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} ScanResponse
// @Failure 404 {object} errors.Response
// @Failure 503 {object} errors.Response
// @Router /api/datasets/{id}/scan [post]
func (s *Server) handleScan(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	scan, err := s.scan(sess)
	if err != nil {
		_ = c.Error(err)
		return
	}

	atRisk := scan.AtRisk(report.RiskThreshold)
	resp := ScanResponse{
		Scored:      len(scan.Scores),
		Threshold:   report.RiskThreshold,
		AtRiskCount: len(atRisk),
		AtRisk:      atRisk,
		Failures:    make([]ScanFailure, 0, len(scan.Failures)),
	}
	for _, f := range scan.Failures {
		resp.Failures = append(resp.Failures, ScanFailure{Row: f.Row, Field: f.Field, Error: f.Err.Error()})
	}

	c.JSON(http.StatusOK, resp)
}

// handleReport godoc
// @Summary Download the risk report as CSV
// @Tags scoring
// @Produce text/csv
// @Param id path string true "Session ID"
// @Success 200 {file} binary
// @Failure 404 {object} errors.Response
// @Failure 503 {object} errors.Response
// @Router /api/datasets/{id}/report.csv [get]
func (s *Server) handleReport(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	scan, err := s.scan(sess)
	if err != nil {
		_ = c.Error(err)
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, report.Build(sess.Table, scan)); err != nil {
		_ = c.Error(errors.WrapError(err, "writing risk report"))
		return
	}

	s.metrics.IncrementReportsExported()
	c.Header("Content-Disposition", `attachment; filename="churn_risk_report.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// handlePredict godoc
// @Summary Score one customer with what-if scenarios and a retention insight
// @Tags scoring
// @Accept json
// @Produce json
// @Param request body PredictRequest true "Customer attributes"
// @Success 200 {object} PredictResponse
// @Failure 400 {object} errors.Response
// @Failure 404 {object} errors.Response
// @Failure 422 {object} errors.Response
// @Failure 503 {object} errors.Response
// @Router /api/predict [post]
func (s *Server) handlePredict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("invalid JSON body", err.Error()))
		return
	}
	if len(req.Customer) == 0 {
		_ = c.Error(errors.NewValidationError("customer attributes are required", "customer"))
		return
	}

	record, err := customerRecord(req.Customer)
	if err != nil {
		_ = c.Error(err)
		return
	}

	baseline := analytics.DefaultBaseline
	if req.SessionID != "" {
		sess, err := s.sessions.Get(req.SessionID)
		if err != nil {
			_ = c.Error(errors.NewNotFoundError("dataset session", req.SessionID))
			return
		}
		baseline = analytics.ComputeBaseline(dataset.Customers(sess.Table))
	}

	start := time.Now()
	sim, err := s.engine.Simulate(record)
	if err != nil {
		_ = c.Error(err)
		return
	}
	s.metrics.RecordPrediction()
	s.logger.ScoringLogger("predict", 1, 0, boolToInt(sim.Baseline.Churn), time.Since(start))

	customer := dataset.CustomerFromRecord(record)
	c.JSON(http.StatusOK, PredictResponse{
		Simulation: sim,
		Insight:    analytics.CustomerInsight(customer, sim.Baseline.Probability, sim.Baseline.Churn, baseline),
		Baseline:   baseline,
	})
}

// customerRecord turns JSON attributes into a record. Numbers are formatted
// the way CSV cells would carry them. Negative tenure or charges are rejected.
func customerRecord(attrs map[string]interface{}) (dataset.Record, error) {
	values := make(map[string]string, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			values[k] = val
		case float64:
			values[k] = dataset.FormatFloat(val)
		case nil:
			// Absent and null are the same to the encoder
		default:
			return dataset.Record{}, errors.NewValidationError(
				fmt.Sprintf("attribute %q must be a string or number", k), k)
		}
	}
	record := dataset.NewRecord(values)
	for _, col := range dataset.NonNegativeColumns {
		if v, ok, err := record.Float(col); ok && err == nil && v < 0 {
			return dataset.Record{}, errors.NewValidationError(
				fmt.Sprintf("attribute %q must not be negative", col), col)
		}
	}
	return record, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
