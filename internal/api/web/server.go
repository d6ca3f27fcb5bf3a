package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	app "ctscan/internal/application"
)

//go:embed templates/*
var templates embed.FS

const (
	sessionCookie = "ctscan_session"
	sessionKey    = "session_id"
)

// Options параметры веб-интерфейса
type Options struct {
	MaxUploadBytes int64
	HistoryDisplay int
	SessionTTL     time.Duration
}

// Server веб-интерфейс и JSON API
type Server struct {
	analysis *app.AnalysisService
	sessions *app.SessionService
	opts     Options
	log      *zap.Logger
	engine   *gin.Engine
}

// NewServer собирает роутер
func NewServer(analysis *app.AnalysisService, sessions *app.SessionService, opts Options, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))
	engine.SetHTMLTemplate(tmpl)
	engine.MaxMultipartMemory = opts.MaxUploadBytes

	s := &Server{
		analysis: analysis,
		sessions: sessions,
		opts:     opts,
		log:      log,
		engine:   engine,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)

	ui := s.engine.Group("/", s.sessionMiddleware)
	{
		ui.GET("/", s.index)
		ui.POST("/analyze", s.analyze)
		ui.POST("/session/end", s.endSession)
	}

	v1 := s.engine.Group("/api/v1", s.sessionMiddleware)
	{
		v1.POST("/analyze", s.apiAnalyze)
		v1.GET("/history", s.apiHistory)
	}
}

// Handler http.Handler для тестов и встраивания
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run слушает addr до отмены ctx
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("web server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// sessionMiddleware выдаёт cookie с идентификатором сессии
func (s *Server) sessionMiddleware(c *gin.Context) {
	id, err := c.Cookie(sessionCookie)
	if err != nil || uuid.Validate(id) != nil {
		id = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, id, int(s.opts.SessionTTL.Seconds()), "/", "", false, true)
	}
	c.Set(sessionKey, id)
	c.Next()
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) healthz(c *gin.Context) {
	model := s.analysis.Model()
	status := "available"
	if !model.Available() {
		status = "unavailable"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"model":      status,
		"model_path": model.Path(),
	})
}
