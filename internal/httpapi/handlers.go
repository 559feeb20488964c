package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Zykairotis/contextd/internal/jobs"
	"github.com/Zykairotis/contextd/internal/observability"
	"github.com/Zykairotis/contextd/internal/retrieve"
	"github.com/Zykairotis/contextd/internal/scope"
)

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// tools describes the operations LLM-oriented clients can call.
func (s *Server) tools(c echo.Context) error {
	return c.JSON(http.StatusOK, []map[string]string{
		{"name": "query", "description": "Hybrid context retrieval with reranking"},
		{"name": "ingest_github", "description": "Index a GitHub repository"},
		{"name": "ingest_web", "description": "Index web pages"},
	})
}

func (s *Server) projectStats(c echo.Context) error {
	ctx := c.Request().Context()
	project := c.Param("project")
	proj, ok, err := s.core.Catalog.LookupProject(ctx, project)
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown project "+project)
	}
	datasets, err := s.core.Catalog.ListDatasets(ctx, proj.ID)
	if err != nil {
		return err
	}
	type datasetStats struct {
		Name       string `json:"name"`
		Documents  int    `json:"documents"`
		Chunks     int    `json:"chunks"`
		Collection string `json:"collection,omitempty"`
		PointCount int64  `json:"point_count,omitempty"`
	}
	out := make([]datasetStats, 0, len(datasets))
	for _, ds := range datasets {
		docs, chunks, err := s.core.Catalog.DatasetStats(ctx, ds.ID)
		if err != nil {
			return err
		}
		st := datasetStats{Name: ds.Name, Documents: docs, Chunks: chunks}
		if col, ok, err := s.core.Catalog.CollectionForDataset(ctx, ds.ID); err == nil && ok {
			st.Collection = col.Name
			st.PointCount = col.PointCount
		}
		out = append(out, st)
	}
	return c.JSON(http.StatusOK, map[string]any{"project": project, "datasets": out})
}

func (s *Server) projectScopes(c echo.Context) error {
	ctx := c.Request().Context()
	project := c.Param("project")
	scopes, err := s.core.Catalog.ListRetrievalScopes(ctx, project)
	if err != nil {
		return err
	}
	names := make([]string, len(scopes))
	for i, sc := range scopes {
		names[i] = sc.DatasetName
	}
	out := map[string]any{
		"datasets": names,
		"patterns": scope.SuggestPatterns(names),
	}
	if input := c.QueryParam("validate"); input != "" {
		out["validation"] = scope.Validate(input, names)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) projectOperations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"operations": []string{"query", "ingest_github", "ingest_web", "validate_scope"},
	})
}

func (s *Server) ingestHistory(c echo.Context) error {
	ctx := c.Request().Context()
	proj, ok, err := s.core.Catalog.LookupProject(ctx, c.Param("project"))
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown project")
	}
	history, err := s.core.Catalog.JobHistory(ctx, proj.ID, 50)
	if err != nil {
		return err
	}
	for i := range history {
		history[i].Params = observability.RedactJSON(history[i].Params)
	}
	return c.JSON(http.StatusOK, map[string]any{"jobs": history})
}

func (s *Server) ingestGitHub(c echo.Context) error {
	project := c.Param("project")
	var params jobs.GitHubParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if params.Repo == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repo is required")
	}
	params.Project = project
	branch := params.Branch
	if branch == "" {
		branch = "default"
	}
	job, err := s.core.Queue.Submit(c.Request().Context(), "github", project, params.Repo, branch, params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]any{"jobId": job.ID, "status": job.Status})
}

func (s *Server) ingestWeb(c echo.Context) error {
	project := c.Param("project")
	var params jobs.WebParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(params.URLs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "urls are required")
	}
	params.Project = project
	job, err := s.core.Queue.Submit(c.Request().Context(), "web", project, params.URLs[0], params.Dataset, params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]any{"jobId": job.ID, "status": job.Status})
}

func (s *Server) ingestText(c echo.Context) error {
	project := c.Param("project")
	var params jobs.TextParams
	if err := c.Bind(&params); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if params.Dataset == "" || len(params.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "dataset and documents are required")
	}
	params.Project = project
	job, err := s.core.Queue.Submit(c.Request().Context(), "text", project, "text:"+params.Dataset, params.Dataset, params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]any{"jobId": job.ID, "status": job.Status})
}

// resetDataset deletes a dataset's documents and vector points; the
// collection itself is dropped so a re-ingest starts observably fresh.
func (s *Server) resetDataset(c echo.Context) error {
	ctx := c.Request().Context()
	proj, ok, err := s.core.Catalog.LookupProject(ctx, c.Param("project"))
	if err != nil {
		return err
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown project")
	}
	datasetName := c.Param("dataset")
	datasets, err := s.core.Catalog.ListDatasets(ctx, proj.ID)
	if err != nil {
		return err
	}
	for _, ds := range datasets {
		if ds.Name != datasetName {
			continue
		}
		if col, ok, err := s.core.Catalog.CollectionForDataset(ctx, ds.ID); err == nil && ok {
			if err := s.core.Vector.DropCollection(ctx, col.Name); err != nil {
				return err
			}
			if err := s.core.Catalog.DropCollection(ctx, col.Name); err != nil {
				return err
			}
		}
		if err := s.core.Catalog.DeleteDatasetDocuments(ctx, ds.ID); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]any{"reset": datasetName})
	}
	return echo.NewHTTPError(http.StatusNotFound, "unknown dataset")
}

type queryRequest struct {
	Query         string `json:"query"`
	Dataset       string `json:"dataset,omitempty"`
	TopK          int    `json:"top_k,omitempty"`
	IncludeGlobal bool   `json:"include_global,omitempty"`
	Hybrid        *bool  `json:"hybrid,omitempty"`
	Rerank        *bool  `json:"rerank,omitempty"`
}

func (s *Server) query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	resp, err := s.core.Retrieve.Execute(c.Request().Context(), retrieve.Request{
		Project:       c.Param("project"),
		Dataset:       req.Dataset,
		Query:         req.Query,
		TopK:          req.TopK,
		IncludeGlobal: req.IncludeGlobal,
		Hybrid:        req.Hybrid,
		Rerank:        req.Rerank,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
