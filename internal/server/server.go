// Package server exposes the published enrollment matrices over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocarina/gocsv"

	"github.com/withObsrvr/enrollstat/internal/bundle"
	"github.com/withObsrvr/enrollstat/internal/dashboard"
	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/logging"
	"github.com/withObsrvr/enrollstat/internal/metrics"
	"github.com/withObsrvr/enrollstat/internal/refresh"
)

// Refresher runs one refresh. *refresh.Refresher implements it.
type Refresher interface {
	Run(ctx context.Context, job refresh.Job) (*refresh.Outcome, error)
}

// Config configures the HTTP listener.
type Config struct {
	Address      string
	Mode         string // gin mode
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server serves one bundle at a time. The bundle is replaced atomically after
// each successful refresh; a failed refresh leaves it in place.
type Server struct {
	cfg       Config
	engine    *gin.Engine
	current   atomic.Pointer[bundle.Bundle]
	dash      *dashboard.Dashboard
	refresher Refresher
	job       refresh.Job
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// New builds the router. refresher may be nil, in which case POST
// /api/v1/refresh is not available.
func New(cfg Config, dash *dashboard.Dashboard, refresher Refresher, job refresh.Job, m *metrics.Metrics) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if dash == nil {
		dash = dashboard.New(dashboard.DefaultConfig())
	}

	s := &Server{
		cfg:       cfg,
		dash:      dash,
		refresher: refresher,
		job:       job,
		metrics:   m,
		log:       logging.Component("server"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log, m))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(m.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/bundle", s.getBundle)
		api.GET("/groups", s.getGroups)
		api.GET("/matrices/:name", s.getMatrix)
		api.GET("/latest", s.getLatest)
		api.GET("/overlay", s.getOverlay)
		api.POST("/refresh", s.postRefresh)
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Set swaps the served bundle.
func (s *Server) Set(b *bundle.Bundle) {
	if b == nil {
		return
	}
	s.current.Store(b)
	s.log.Info("serving build", "build_id", b.BuildID, "terms", b.Terms.String())
}

// Bundle returns the served bundle, or nil before the first Set.
func (s *Server) Bundle() *bundle.Bundle {
	return s.current.Load()
}

// Refresh runs the configured job and serves its bundle on success.
func (s *Server) Refresh(ctx context.Context, force bool) (*refresh.Outcome, error) {
	if s.refresher == nil {
		return nil, errors.New("refresh not configured")
	}
	job := s.job
	job.Force = force
	out, err := s.refresher.Run(ctx, job)
	if err != nil {
		return nil, err
	}
	if cur := s.Bundle(); cur == nil || cur.BuildID != out.Bundle.BuildID {
		s.Set(out.Bundle)
	}
	return out, nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "address", s.cfg.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) health(c *gin.Context) {
	h := gin.H{"status": "ok", "ready": false}
	if b := s.Bundle(); b != nil {
		h["ready"] = true
		h["build_id"] = b.BuildID
	}
	c.JSON(http.StatusOK, h)
}

// served returns the current bundle or answers 503.
func (s *Server) served(c *gin.Context) (*bundle.Bundle, bool) {
	b := s.Bundle()
	if b == nil {
		unavailable(c, "no bundle published yet")
		return nil, false
	}
	return b, true
}

// BundleInfo is the metadata of the served bundle.
type BundleInfo struct {
	BuildID           string            `json:"build_id"`
	CurrentTerm       string            `json:"current_term"`
	PreviousTerm      string            `json:"previous_term"`
	ReferenceDate     enrollment.Date   `json:"reference_date"`
	PreviousDate      enrollment.Date   `json:"previous_date"`
	LatestDate        enrollment.Date   `json:"latest_date"`
	RenameVersion     int               `json:"rename_version"`
	Fingerprint       string            `json:"fingerprint"`
	CreatedAt         time.Time         `json:"created_at"`
	Producer          bundle.Producer   `json:"producer"`
	Courses           []string          `json:"courses"`
	Dates             []enrollment.Date `json:"dates"`
	UnmatchedCapacity []string          `json:"unmatched_capacity"`
	UnmatchedPrevious []string          `json:"unmatched_previous"`
	Views             []dashboard.View  `json:"views"`
	Groups            []dashboard.Group `json:"groups"`
}

func (s *Server) getBundle(c *gin.Context) {
	b, ok := s.served(c)
	if !ok {
		return
	}
	res := b.Result
	success(c, BundleInfo{
		BuildID:           b.BuildID,
		CurrentTerm:       b.Terms.Current.String(),
		PreviousTerm:      b.Terms.Previous.String(),
		ReferenceDate:     b.ReferenceDate,
		PreviousDate:      res.PreviousDate,
		LatestDate:        res.LatestDate,
		RenameVersion:     b.RenameVersion,
		Fingerprint:       b.Fingerprint,
		CreatedAt:         b.CreatedAt,
		Producer:          b.Producer,
		Courses:           res.Enrollment.Courses,
		Dates:             res.Enrollment.Dates,
		UnmatchedCapacity: nonNil(res.UnmatchedCapacity),
		UnmatchedPrevious: nonNil(res.UnmatchedPrevious),
		Views:             dashboard.Views,
		Groups:            s.dash.Groups(),
	})
}

func (s *Server) getGroups(c *gin.Context) {
	success(c, s.dash.Groups())
}

// MatrixResponse is one view of the served result.
type MatrixResponse struct {
	View   dashboard.View     `json:"view"`
	Group  string             `json:"group"`
	Matrix *enrollment.Matrix `json:"matrix"`
	Series []dashboard.Series `json:"series"`
}

func (s *Server) getMatrix(c *gin.Context) {
	view, err := dashboard.ParseView(c.Param("name"))
	if err != nil {
		notFound(c, err.Error())
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, "invalid limit parameter")
		return
	}
	b, ok := s.served(c)
	if !ok {
		return
	}

	group := c.DefaultQuery("group", dashboard.AllGroup)
	m, err := s.dash.Matrix(b.Result, view, dashboard.Query{Group: group, Limit: limit})
	if err != nil {
		s.queryError(c, err)
		return
	}
	success(c, MatrixResponse{
		View:   view,
		Group:  group,
		Matrix: m,
		Series: dashboard.SeriesOf(m),
	})
}

// LatestResponse is the flagged data table of the newest snapshot.
type LatestResponse struct {
	Date  enrollment.Date      `json:"date"`
	Group string               `json:"group"`
	Rows  []dashboard.TableRow `json:"rows"`
}

func (s *Server) getLatest(c *gin.Context) {
	b, ok := s.served(c)
	if !ok {
		return
	}
	g, err := s.dash.Group(c.DefaultQuery("group", dashboard.AllGroup))
	if err != nil {
		s.queryError(c, err)
		return
	}
	rows := dashboard.FilterTable(dashboard.Table(b.Result.Latest), g)

	switch c.DefaultQuery("format", "json") {
	case "json":
		success(c, LatestResponse{Date: b.Result.LatestDate, Group: g.Slug, Rows: rows})
	case "csv":
		data, err := gocsv.MarshalBytes(&rows)
		if err != nil {
			internalError(c, fmt.Sprintf("encode csv: %v", err))
			return
		}
		name := fmt.Sprintf("%s_%s.csv", b.Terms.Current, b.Result.LatestDate.Stamp())
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
	default:
		badRequest(c, "format must be json or csv")
	}
}

func (s *Server) getOverlay(c *gin.Context) {
	b, ok := s.served(c)
	if !ok {
		return
	}
	ov, err := s.dash.Overlay(b.Result, c.DefaultQuery("group", dashboard.AllGroup))
	if err != nil {
		s.queryError(c, err)
		return
	}
	success(c, ov)
}

// RefreshResponse summarises a refresh triggered over HTTP.
type RefreshResponse struct {
	Status     string   `json:"status"`
	BuildID    string   `json:"build_id"`
	Duration   string   `json:"duration"`
	Warnings   []string `json:"warnings,omitempty"`
	StorageURI string   `json:"storage_uri,omitempty"`
}

func (s *Server) postRefresh(c *gin.Context) {
	if s.refresher == nil {
		fail(c, http.StatusNotImplemented, "refresh not configured")
		return
	}
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	out, err := s.Refresh(c.Request.Context(), force)
	switch {
	case errors.Is(err, refresh.ErrInProgress):
		fail(c, http.StatusConflict, err.Error())
		return
	case err != nil:
		_ = c.Error(err)
		internalError(c, err.Error())
		return
	}

	resp := RefreshResponse{
		Status:   out.Status,
		BuildID:  out.Ref.BuildID,
		Duration: out.Duration.String(),
		Warnings: out.Validation.Warnings,
	}
	if out.Record != nil {
		resp.StorageURI = out.Record.StorageURI
	}
	success(c, resp)
}

func (s *Server) queryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dashboard.ErrUnknownGroup), errors.Is(err, dashboard.ErrUnknownView):
		badRequest(c, err.Error())
	default:
		internalError(c, err.Error())
	}
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
