package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/crawler"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/ingress"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/metrics"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/scheduler"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/publishers"
)

const (
	defaultLinksLimit = 10
	maxLinksLimit     = 100
	healthTimeout     = 2 * time.Second
)

type linksRequest struct {
	Links  []string `json:"links"`
	Source string   `json:"source"`
}

type linkResult struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) webhookLinks(c *gin.Context) {
	var req linksRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Links == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Links array is required"})
		return
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "webhook"
	}
	actor := fmt.Sprintf("webhook-%d", time.Now().UnixMilli())

	stored, err := s.deps.Intake.SubmitAll(c.Request.Context(), req.Links, actor, source)
	results := make([]linkResult, 0, len(stored))
	for i, r := range stored {
		results = append(results, linkResult{URL: req.Links[i], Success: r.OK, Message: storeMessage(r)})
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "results": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

func storeMessage(r domain.StoreResult) string {
	switch {
	case r.OK:
		return "Link stored successfully"
	case errors.Is(r.Err(), domain.ErrDuplicateSubmission):
		return "Link already submitted"
	case r.Reason == domain.ReasonInvalidURL:
		return "Invalid URL"
	default:
		return r.Reason
	}
}

type scholarshipsRequest struct {
	Scholarships json.RawMessage `json:"scholarships"`
}

// decodeScholarships accepts a single record or an array of records.
func decodeScholarships(raw json.RawMessage) ([]domain.ScholarshipRecord, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.New("scholarships data is required")
	}
	if raw[0] == '[' {
		var list []domain.ScholarshipRecord
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("invalid scholarships: %w", err)
		}
		return list, nil
	}
	var one domain.ScholarshipRecord
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("invalid scholarship: %w", err)
	}
	return []domain.ScholarshipRecord{one}, nil
}

func (s *Server) webhookScholarships(c *gin.Context) {
	var req scholarshipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Scholarships data is required"})
		return
	}
	recs, err := decodeScholarships(req.Scholarships)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	results := make([]domain.UpsertResult, 0, len(recs))
	success := true
	for _, rec := range recs {
		res, err := s.deps.Store.Upsert(ctx, rec)
		if err != nil {
			success = false
			res = domain.UpsertResult{Status: domain.UpsertError, Name: rec.Name, Reason: err.Error()}
			_ = c.Error(err)
		}
		metrics.CatalogUpserts.WithLabelValues(string(res.Status)).Inc()
		if res.Status == domain.UpsertAdded {
			rec.ID = res.ID
			s.publish(ctx, publishers.NewScholarshipAddedEvent(rec))
		}
		results = append(results, res)
	}
	c.JSON(http.StatusOK, gin.H{"success": success, "results": results})
}

type linkView struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) unprocessedLinks(c *gin.Context) {
	limit := defaultLinksLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLinksLimit {
		limit = maxLinksLimit
	}

	links, err := s.deps.Store.ListUnprocessed(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]linkView, 0, len(links))
	for _, l := range links {
		out = append(out, linkView{ID: l.ID, URL: l.URL, CreatedAt: l.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "links": out})
}

type markRequest struct {
	LinkIDs []string `json:"linkIds"`
}

func (s *Server) markProcessed(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.LinkIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "linkIds array is required"})
		return
	}
	marked, err := s.deps.Store.MarkProcessed(c.Request.Context(), req.LinkIDs)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "marked": marked})
}

func (s *Server) scanMessage(c *gin.Context) {
	if s.deps.Scanner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message scanning is disabled"})
		return
	}
	var msg ingress.ChatMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message"})
		return
	}
	res, err := s.deps.Scanner.Scan(c.Request.Context(), msg)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

type batchRequest struct {
	Limit  int  `json:"limit"`
	DryRun bool `json:"dry_run"`
}

func (s *Server) runBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch request"})
		return
	}

	if req.DryRun {
		links, err := s.deps.Batch.Preview(c.Request.Context(), req.Limit)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "dry_run": true, "links": links})
		return
	}

	// The batch outlives a dropped client connection.
	run, err := s.deps.Batch.ProcessBatch(context.WithoutCancel(c.Request.Context()), req.Limit)
	switch {
	case errors.Is(err, crawler.ErrBatchInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "batch": run, "summary": run.Summary()})
}

type processLinkRequest struct {
	URL    string `json:"url"`
	LinkID string `json:"linkId"`
}

func (s *Server) processLink(c *gin.Context) {
	var req processLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is required"})
		return
	}

	res := s.deps.Batch.ProcessURL(c.Request.Context(), strings.TrimSpace(req.URL))
	if !res.OK {
		body := gin.H{"success": false, "reason": res.Reason}
		if res.Err != nil {
			body["error"] = res.Err.Error()
		}
		c.JSON(http.StatusOK, body)
		return
	}

	if req.LinkID != "" {
		if _, err := s.deps.Store.MarkProcessed(c.Request.Context(), []string{req.LinkID}); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "scholarship": res.Data, "method": res.Method})
}

func (s *Server) searchScholarships(c *gin.Context) {
	q := domain.SearchQuery{
		Name:      c.Query("name"),
		MinAmount: c.Query("min_amount"),
	}
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			q.Limit = n
		}
	}
	recs, err := s.deps.Store.Search(c.Request.Context(), q)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []domain.ScholarshipRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(recs), "scholarships": recs})
}

func (s *Server) runSweep(c *gin.Context) {
	if s.deps.Sweeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweeper is not configured"})
		return
	}
	res, err := s.deps.Sweeper.RunSweep(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, scheduler.ErrSkipped):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed_count": res.RemovedCount, "removed": res.Removed})
}

type jobView struct {
	scheduler.JobStatus
	NextRun *time.Time `json:"next_run,omitempty"`
}

func (s *Server) jobs(c *gin.Context) {
	if s.deps.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is not configured"})
		return
	}
	next := s.deps.Jobs.NextRuns()
	out := make([]jobView, 0, 2)
	for _, st := range s.deps.Jobs.Jobs() {
		v := jobView{JobStatus: st}
		if t, ok := next[st.Name]; ok && !t.IsZero() {
			v.NextRun = &t
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "jobs": out})
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := map[string]string{"storage": "ok"}
	if err := s.deps.Store.Ping(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		checks["storage"] = err.Error()
	}
	if s.deps.Jobs != nil {
		for _, job := range s.deps.Jobs.Jobs() {
			switch {
			case job.Running:
				checks["job_"+job.Name] = "running"
			case job.LastError != "":
				checks["job_"+job.Name] = "last run failed: " + job.LastError
			default:
				checks["job_"+job.Name] = "idle"
			}
		}
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": s.opts.Service,
		"version": s.opts.Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"checks":  checks,
	})
}

func (s *Server) publish(ctx context.Context, evt publishers.Event) {
	if s.deps.Publisher == nil {
		return
	}
	if _, err := s.deps.Publisher.Publish(ctx, evt); err != nil {
		s.log.WarnObj("event publish failed", "publish_error", map[string]any{
			"event_type": evt.Type,
			"error":      err.Error(),
		})
	}
}
