// Package web serves the question dashboard and its JSON API.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ragchat/internal/domain"
	"ragchat/internal/qa"
	"ragchat/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	tabChat    = "chat"
	tabHistory = "history"
)

// Questions is the part of the question service the dashboard uses.
type Questions interface {
	AskWith(ctx context.Context, question, chainType string, contextSize int) (domain.Answer, error)
}

// History lists previously asked questions.
type History interface {
	Read() ([]string, error)
}

// Config holds dashboard settings.
type Config struct {
	Addr  string
	Title string
}

// Server provides the dashboard endpoints.
type Server struct {
	echo      *echo.Echo
	questions Questions
	history   History
	logger    *zap.Logger
	config    Config
}

// NewServer creates the echo server. gatherer backs /metrics and may be nil.
func NewServer(questions Questions, history History, gatherer prometheus.Gatherer, logger *zap.Logger, cfg Config) (*Server, error) {
	if questions == nil {
		return nil, errors.New("question service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{"join": strings.Join}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &renderer{tmpl: tmpl}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{echo: e, questions: questions, history: history, logger: logger, config: cfg}
	s.registerRoutes(gatherer)
	return s, nil
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/", s.handleIndex)
	s.echo.POST("/ask", s.handleAskForm)
	s.echo.GET("/healthz", s.handleHealth)

	api := s.echo.Group("/api")
	api.POST("/ask", s.handleAsk)
	api.GET("/history", s.handleHistory)

	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

type renderer struct {
	tmpl *template.Template
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}

// AskRequest is the request body for POST /api/ask.
type AskRequest struct {
	Question    string `json:"question"`
	ChainType   string `json:"chain_type"`
	ContextSize int    `json:"context_size"`
}

// AskResponse is the response body for POST /api/ask.
type AskResponse struct {
	Answer    string   `json:"answer"`
	ChainType string   `json:"chain_type"`
	Sources   []string `json:"sources"`
	Texts     []string `json:"texts"`
}

// HistoryResponse is the response body for GET /api/history.
type HistoryResponse struct {
	Questions []string `json:"questions"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

type source struct {
	Name string
	Text string
}

type result struct {
	Answer      string
	Unrelated   bool
	SourceNames []string
	Sources     []source
}

type page struct {
	Title    string
	Tab      string
	Question string
	History  []string
	Result   *result
	Error    string
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleIndex(c echo.Context) error {
	p := s.newPage(c.QueryParam("tab"))
	return c.Render(http.StatusOK, "index", p)
}

func (s *Server) handleAskForm(c echo.Context) error {
	p := s.newPage(c.FormValue("tab"))
	p.Question = strings.TrimSpace(c.FormValue("question"))
	if p.Question == "" {
		return c.Render(http.StatusOK, "index", p)
	}
	answer, err := s.questions.AskWith(c.Request().Context(), p.Question, "", 0)
	if err != nil {
		status, msg := errorStatus(err)
		p.Error = msg
		return c.Render(status, "index", p)
	}
	names := service.ExtractSources(answer.Metadata)
	r := &result{Answer: answer.Text, Unrelated: len(answer.Texts) == 0, SourceNames: names}
	for i, text := range answer.Texts {
		r.Sources = append(r.Sources, source{Name: names[i], Text: text})
	}
	p.Result = r
	return c.Render(http.StatusOK, "index", p)
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	answer, err := s.questions.AskWith(c.Request().Context(), req.Question, req.ChainType, req.ContextSize)
	if err != nil {
		status, msg := errorStatus(err)
		return echo.NewHTTPError(status, msg)
	}
	return c.JSON(http.StatusOK, AskResponse{
		Answer:    answer.Text,
		ChainType: answer.ChainType,
		Sources:   service.ExtractSources(answer.Metadata),
		Texts:     answer.Texts,
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	if s.history == nil {
		return c.JSON(http.StatusOK, HistoryResponse{Questions: []string{}})
	}
	questions, err := s.history.Read()
	if err != nil {
		s.logger.Error("cannot read history", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot read history")
	}
	return c.JSON(http.StatusOK, HistoryResponse{Questions: questions})
}

func (s *Server) newPage(tab string) *page {
	if tab != tabHistory {
		tab = tabChat
	}
	p := &page{Title: s.config.Title, Tab: tab}
	if tab == tabHistory {
		p.History = s.readHistory()
	}
	return p
}

func (s *Server) readHistory() []string {
	if s.history == nil {
		return nil
	}
	questions, err := s.history.Read()
	if err != nil {
		s.logger.Warn("cannot read history", zap.Error(err))
	}
	return questions
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		return http.StatusBadRequest, "question is required"
	case errors.Is(err, qa.ErrUnknownChainType):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "cannot answer the question right now"
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	err := s.echo.Start(s.config.Addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
