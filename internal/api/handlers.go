package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectoradmin/internal/queue"
	"github.com/fyrsmithlabs/vectoradmin/internal/records"
	"github.com/fyrsmithlabs/vectoradmin/internal/workers"
)

// JobResponse wraps an admitted job. Success is false when admission
// refused the request; Message explains why.
type JobResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Job     *queue.Job `json:"job,omitempty"`
}

// ListJobsResponse is the response for GET /v1/jobs/:orgID.
type ListJobsResponse struct {
	Success bool        `json:"success"`
	Jobs    []queue.Job `json:"jobs"`
}

// SearchRequest is the body for workspace similarity search.
type SearchRequest struct {
	WorkspaceID uint   `json:"workspaceId"`
	Query       string `json:"query"`
	TopK        int    `json:"topK"`
}

// SearchResponse carries the matches for a similarity search.
type SearchResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message,omitempty"`
	Matches []workers.SearchMatch `json:"matches,omitempty"`
}

// MigrateRequest is the body for POST /v1/tools/org/:slug/migrate.
type MigrateRequest struct {
	DestinationOrganizationID uint `json:"destinationOrganizationId"`
}

// CloneRequest is the body for POST /v1/workspace/:workspaceID/clone.
type CloneRequest struct {
	NewWorkspaceName string `json:"newWorkspaceName"`
}

// userID returns the authenticated user id when an auth middleware has
// stored one on the request context, zero otherwise.
func userID(c echo.Context) uint {
	if v, ok := c.Get("userID").(uint); ok {
		return v
	}
	return 0
}

// refusal reports whether err is an admission refusal rather than an
// internal failure. Refusals return 200 with success false so clients
// can surface the message as-is.
func refusal(err error) bool {
	switch {
	case errors.Is(err, queue.ErrDuplicatePending),
		errors.Is(err, queue.ErrTerminal),
		errors.Is(err, workers.ErrSelfMigration),
		errors.Is(err, workers.ErrNoConnector),
		errors.Is(err, workers.ErrPendingJobs),
		errors.Is(err, workers.ErrNotRetryable),
		errors.Is(err, workers.ErrJobStillPending):
		return true
	}
	return false
}

func (s *Server) jobResult(c echo.Context, job *queue.Job, err error) error {
	if err == nil {
		return c.JSON(http.StatusOK, JobResponse{Success: true, Job: job})
	}
	if errors.Is(err, queue.ErrDuplicatePending) {
		// The existing pending job rides along with the refusal.
		return c.JSON(http.StatusOK, JobResponse{Success: false, Message: err.Error(), Job: job})
	}
	if refusal(err) {
		return c.JSON(http.StatusOK, JobResponse{Success: false, Message: err.Error()})
	}
	if errors.Is(err, records.ErrNotFound) || errors.Is(err, queue.ErrNotFound) {
		return c.JSON(http.StatusNotFound, JobResponse{Success: false, Message: err.Error()})
	}
	s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, JobResponse{Success: false, Message: "internal error"})
}

func (s *Server) organization(c echo.Context) (*records.Organization, error) {
	return s.service.Store().OrganizationBySlug(c.Request().Context(), c.Param("slug"))
}

func pathID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}

func (s *Server) handleMigrate(c echo.Context) error {
	org, err := s.organization(c)
	if err != nil {
		return s.jobResult(c, nil, err)
	}
	var req MigrateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	job, err := s.service.SubmitMigrate(c.Request().Context(), org.ID, req.DestinationOrganizationID, userID(c))
	return s.jobResult(c, job, err)
}

func (s *Server) handleReset(c echo.Context) error {
	org, err := s.organization(c)
	if err != nil {
		return s.jobResult(c, nil, err)
	}
	job, err := s.service.SubmitReset(c.Request().Context(), org.ID, userID(c))
	return s.jobResult(c, job, err)
}

func (s *Server) handleSimilaritySearch(c echo.Context) error {
	org, err := s.organization(c)
	if err != nil {
		return s.jobResult(c, nil, err)
	}
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return c.JSON(http.StatusOK, SearchResponse{Success: false, Message: "query is required"})
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}
	matches, err := s.service.WorkspaceSimilaritySearch(c.Request().Context(), org.ID, req.WorkspaceID, req.Query, req.TopK)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return c.JSON(http.StatusNotFound, SearchResponse{Success: false, Message: err.Error()})
		}
		s.log.Error("similarity search failed", zap.Uint("organization", org.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, SearchResponse{Success: false, Message: "internal error"})
	}
	return c.JSON(http.StatusOK, SearchResponse{Success: true, Matches: matches})
}

func (s *Server) handleAddDocuments(c echo.Context) error {
	workspaceID, err := pathID(c, "workspaceID")
	if err != nil {
		return err
	}
	ws, err := s.service.Store().WorkspaceByID(c.Request().Context(), workspaceID)
	if err != nil {
		return s.jobResult(c, nil, err)
	}
	var req struct {
		Documents []workers.DocumentUpload `json:"documents"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return c.JSON(http.StatusOK, JobResponse{Success: false, Message: "no documents provided"})
	}
	data := workers.AddDocumentsData{WorkspaceID: ws.ID, Documents: req.Documents}
	job, err := s.service.SubmitAddDocuments(c.Request().Context(), ws.OrganizationID, userID(c), data)
	return s.jobResult(c, job, err)
}

func (s *Server) handleCloneWorkspace(c echo.Context) error {
	workspaceID, err := pathID(c, "workspaceID")
	if err != nil {
		return err
	}
	ws, err := s.service.Store().WorkspaceByID(c.Request().Context(), workspaceID)
	if err != nil {
		return s.jobResult(c, nil, err)
	}
	var req CloneRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.NewWorkspaceName == "" {
		req.NewWorkspaceName = ws.Name + " Copy"
	}
	data := workers.CloneWorkspaceData{WorkspaceID: ws.ID, NewWorkspaceName: req.NewWorkspaceName}
	job, err := s.service.SubmitCloneWorkspace(c.Request().Context(), ws.OrganizationID, userID(c), data)
	return s.jobResult(c, job, err)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	doc, err := s.service.Store().DocumentByID(c.Request().Context(), id)
	if err != nil {
		return s.jobResult(c, nil, err)
	}
	job, err := s.service.SubmitDeleteDocument(c.Request().Context(), doc.OrganizationID, userID(c), doc.ID)
	return s.jobResult(c, job, err)
}

func (s *Server) handleDeleteFragment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	vec, err := s.service.Store().VectorByID(c.Request().Context(), id)
	if err != nil {
		return s.jobResult(c, nil, err)
	}
	job, err := s.service.SubmitDeleteFragment(c.Request().Context(), vec.OrganizationID, userID(c), vec.ID)
	return s.jobResult(c, job, err)
}

func (s *Server) handleListJobs(c echo.Context) error {
	orgID, err := pathID(c, "orgID")
	if err != nil {
		return err
	}
	filter := queue.Filter{OrganizationID: orgID}
	if status := c.QueryParam("status"); status != "" {
		filter.Status = status
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		filter.Limit = n
	}
	jobs, err := s.service.Ledger().Where(c.Request().Context(), filter)
	if err != nil {
		s.log.Error("list jobs failed", zap.Uint("organization", orgID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ListJobsResponse{Success: false})
	}
	return c.JSON(http.StatusOK, ListJobsResponse{Success: true, Jobs: jobs})
}

func (s *Server) handleRetryJob(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	job, err := s.service.Retry(c.Request().Context(), id, userID(c))
	return s.jobResult(c, job, err)
}

func (s *Server) handleKillJob(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := s.service.Ledger().Kill(c.Request().Context(), id); err != nil {
		return s.jobResult(c, nil, err)
	}
	job, err := s.service.Ledger().Get(c.Request().Context(), id)
	return s.jobResult(c, job, err)
}
