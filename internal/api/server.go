// Package api exposes the read/seed HTTP surface over the graph: stats,
// search, person detail, tree rendering, categories, the activity feed,
// and the two write operations (seed a person, assert a verified link).
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/activity"
	"github.com/ashvattha/ashvattha/internal/lineage"
	"github.com/ashvattha/ashvattha/internal/merge"
	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/queue"
	"github.com/ashvattha/ashvattha/internal/store"
)

// Server is the HTTP API
type Server struct {
	store     store.Store
	scheduler *queue.Scheduler
	agg       *lineage.Aggregator
	merger    *merge.Engine
	feed      *activity.Logger
	policy    model.PolicyConfig
	log       *zap.Logger
	echo      *echo.Echo
}

// NewServer wires the API over its collaborators
func NewServer(st store.Store, sched *queue.Scheduler, agg *lineage.Aggregator, merger *merge.Engine, policy model.PolicyConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		store: st, scheduler: sched, agg: agg, merger: merger,
		feed:   activity.NewLogger(st, log),
		policy: policy, log: log, echo: echo.New(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.routes()
	return s
}

func (s *Server) routes() {
	g := s.echo.Group("/api")
	g.GET("/stats", s.getStats)
	g.GET("/activity", s.getActivity)
	g.GET("/persons/search", s.searchPersons)
	g.GET("/persons/:id", s.getPerson)
	g.GET("/persons/:id/tree", s.getTree)
	g.POST("/persons", s.createPerson)
	g.POST("/relationships", s.createRelationship)
	g.GET("/categories", s.getCategories)
	g.GET("/categories/:id/persons", s.getCategoryPersons)
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start(addr string) error {
	s.log.Info("http api listening", zap.String("addr", addr))
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) getStats(c echo.Context) error {
	stats, err := s.store.Stats(c.Request().Context())
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) getActivity(c echo.Context) error {
	limit := intQuery(c, "limit", 50)
	entries, err := s.feed.Recent(c.Request().Context(), limit)
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"activity": entries})
}

func (s *Server) searchPersons(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit := intQuery(c, "limit", 20)
	persons, err := s.store.SearchPersons(c.Request().Context(), q, limit)
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"persons": persons})
}

// personView is the detail payload: the person, their immediate edges,
// and the categories they belong to
type personView struct {
	Person     *model.Person        `json:"person"`
	Parents    []model.Relationship `json:"parents"`
	Children   []model.Relationship `json:"children"`
	Categories []model.Category     `json:"categories"`
}

func (s *Server) getPerson(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	p, err := s.store.Person(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "person not found")
	}
	if err != nil {
		return s.internal(c, err)
	}

	parents, err := s.store.ParentsOf(ctx, p.ID)
	if err != nil {
		return s.internal(c, err)
	}
	children, err := s.store.ChildrenOf(ctx, p.ID, childFanoutLimit)
	if err != nil {
		return s.internal(c, err)
	}
	cats, err := s.store.CategoriesFor(ctx, p.ID)
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(http.StatusOK, personView{Person: p, Parents: parents, Children: children, Categories: cats})
}

func (s *Server) getTree(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	depth := intQuery(c, "depth", defaultTreeDepth)
	if depth > maxTreeDepth {
		depth = maxTreeDepth
	}

	tree, err := s.buildTree(c.Request().Context(), id, depth)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "person not found")
	}
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(http.StatusOK, tree)
}

type createPersonRequest struct {
	Name        string `json:"name"`
	Gender      string `json:"gender"`
	Era         string `json:"era"`
	Kind        string `json:"kind"`
	BirthYear   *int   `json:"birth_year"`
	DeathYear   *int   `json:"death_year"`
	ExternalKey string `json:"external_key"`
}

// createPerson seeds a new research root. The person opens a genesis
// block and is queued at seed priority in both directions.
func (s *Server) createPerson(c echo.Context) error {
	var req createPersonRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	kind := model.KindHuman
	switch req.Kind {
	case "", "human":
	case "mythological":
		kind = model.KindMythological
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be human or mythological")
	}

	ctx := c.Request().Context()
	p := &model.Person{
		Name:        req.Name,
		Kind:        kind,
		Gender:      req.Gender,
		Era:         req.Era,
		BirthYear:   req.BirthYear,
		DeathYear:   req.DeathYear,
		ExternalKey: req.ExternalKey,
	}
	err := s.store.InTx(ctx, func(tx store.Store) error {
		code, err := tx.NextGenesisCode(ctx)
		if err != nil {
			return err
		}
		p.GenesisCode = code
		if err := tx.CreatePerson(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendActivity(ctx, &model.ActivityEntry{
			PersonID:   p.ID,
			PersonName: p.Name,
			Action:     model.ActionDiscovered,
			Detail:     "seeded via api",
		}); err != nil {
			return err
		}
		_, err = s.scheduler.EnqueueIn(ctx, tx, p.ID, model.DirBoth, s.policy.SeedPriority)
		return err
	})
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

type createRelationshipRequest struct {
	ChildID   int64  `json:"child_id"`
	ParentID  int64  `json:"parent_id"`
	Role      string `json:"role"`
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
}

// createRelationship asserts a manually verified parent link. Verified
// links win the primary election immediately and stay primary.
func (s *Server) createRelationship(c echo.Context) error {
	var req createRelationshipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	role := model.Role(req.Role)
	if role != model.RoleFather && role != model.RoleMother {
		return echo.NewHTTPError(http.StatusBadRequest, "role must be father or mother")
	}
	if req.ChildID == 0 || req.ParentID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "child_id and parent_id are required")
	}
	if req.ChildID == req.ParentID {
		return echo.NewHTTPError(http.StatusBadRequest, "a person cannot be their own parent")
	}

	ctx := c.Request().Context()
	var out *lineage.Outcome
	var child *model.Person
	err := s.store.InTx(ctx, func(tx store.Store) error {
		var err error
		if child, err = tx.Person(ctx, req.ChildID); err != nil {
			return err
		}
		if _, err = tx.Person(ctx, req.ParentID); err != nil {
			return err
		}

		var src *model.Source
		if req.SourceURL != "" {
			src = &model.Source{
				URL:       req.SourceURL,
				Title:     req.Title,
				Kind:      model.SourceUser,
				Authority: lineage.ClassifyAuthority(req.SourceURL),
			}
		}
		out, err = s.agg.Apply(ctx, tx, lineage.Claim{
			ChildID:    req.ChildID,
			ParentID:   req.ParentID,
			Role:       role,
			Confidence: 100,
			Verified:   true,
			Source:     src,
		})
		if err != nil {
			return err
		}
		_, err = s.merger.CheckDissolve(ctx, tx, req.ChildID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "person not found")
	}
	if err != nil {
		return s.internal(c, err)
	}
	s.feed.Record(ctx, child, model.ActionLinked,
		fmt.Sprintf("%s link verified by user", role))
	return c.JSON(http.StatusCreated, out.Relationship)
}

func (s *Server) getCategories(c echo.Context) error {
	cats, err := s.store.Categories(c.Request().Context())
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"categories": cats})
}

func (s *Server) getCategoryPersons(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	persons, err := s.store.PersonsInCategory(c.Request().Context(), id, limit, offset)
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"persons": persons})
}

func (s *Server) internal(c echo.Context, err error) error {
	s.log.Error("request failed",
		zap.String("path", c.Path()),
		zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func intQuery(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
