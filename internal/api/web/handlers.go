package web

import (
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	app "ctscan/internal/application"
	"ctscan/internal/domain/entity"
)

var errNoUpload = errors.New("no scan uploaded")

// pageData данные шаблона index.html
type pageData struct {
	ModelAvailable bool
	ModelPath      string
	Warning        string
	Error          string
	Result         *app.AnalysisOutput
	Preview        template.URL
	History        []entity.HistoryRecord
	HistoryTotal   int
}

var funcs = template.FuncMap{
	"percent": func(s entity.RiskScore) string { return fmt.Sprintf("%.0f", float64(s)*100) },
	"positive": func(v entity.Verdict) bool {
		return v == entity.VerdictPositive
	},
}

func (s *Server) page(c *gin.Context) *pageData {
	model := s.analysis.Model()
	data := &pageData{
		ModelAvailable: model.Available(),
		ModelPath:      model.Path(),
	}
	if !data.ModelAvailable {
		data.Warning = modelMissing(model.Path())
	}
	if session, err := s.sessions.Get(c.Request.Context(), sessionID(c)); err == nil {
		data.History = session.History.Recent(s.opts.HistoryDisplay)
		data.HistoryTotal = session.History.Len()
	}
	return data
}

func modelMissing(path string) string {
	return "Model file not found at " + path
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.page(c))
}

func (s *Server) analyze(c *gin.Context) {
	upload, err := s.readUpload(c)
	if err != nil {
		data := s.page(c)
		data.Error = err.Error()
		c.HTML(uploadStatus(err), "index.html", data)
		return
	}

	out, _, err := s.analysis.AnalyzeInSession(c.Request.Context(), sessionID(c), upload)
	data := s.page(c)
	switch {
	case err == nil:
		data.Result = out
		data.Preview = preview(upload)
	case errors.Is(err, app.ErrModelUnavailable):
		data.Warning = modelMissing(s.analysis.Model().Path())
	case errors.Is(err, app.ErrInvalidImage):
		data.Error = err.Error()
		c.HTML(http.StatusBadRequest, "index.html", data)
		return
	default:
		s.log.Error("analysis failed", zap.String("file", upload.Name), zap.Error(err))
		data.Error = "analysis failed"
		c.HTML(http.StatusInternalServerError, "index.html", data)
		return
	}
	c.HTML(http.StatusOK, "index.html", data)
}

func (s *Server) endSession(c *gin.Context) {
	if err := s.sessions.End(c.Request.Context(), sessionID(c)); err != nil {
		s.log.Warn("end session failed", zap.Error(err))
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, "/")
}

type scanResponse struct {
	Name       string `json:"name"`
	Size       string `json:"size"`
	Resolution string `json:"resolution"`
	Format     string `json:"format"`
}

type analyzeResponse struct {
	Verdict    entity.Verdict       `json:"verdict"`
	Headline   string               `json:"headline"`
	Score      entity.RiskScore     `json:"score"`
	Confidence string               `json:"confidence"`
	Record     entity.HistoryRecord `json:"record"`
	Scan       scanResponse         `json:"scan"`
}

func (s *Server) apiAnalyze(c *gin.Context) {
	upload, err := s.readUpload(c)
	if err != nil {
		c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
		return
	}

	out, _, err := s.analysis.AnalyzeInSession(c.Request.Context(), sessionID(c), upload)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrModelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": modelMissing(s.analysis.Model().Path())})
		return
	case errors.Is(err, app.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	default:
		s.log.Error("analysis failed", zap.String("file", upload.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}

	c.JSON(http.StatusOK, analyzeResponse{
		Verdict:    out.Verdict,
		Headline:   out.Verdict.Headline(),
		Score:      out.Score,
		Confidence: out.Score.Percent(),
		Record:     out.Record,
		Scan: scanResponse{
			Name:       out.Scan.Name,
			Size:       out.Scan.SizeKB(),
			Resolution: out.Scan.Resolution(),
			Format:     out.Scan.Format,
		},
	})
}

func (s *Server) apiHistory(c *gin.Context) {
	records := []entity.HistoryRecord{}
	if session, err := s.sessions.Get(c.Request.Context(), sessionID(c)); err == nil {
		records = session.History.Recent(0)
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
}

// readUpload читает ровно один файл из поля scan с ограничением размера
func (s *Server) readUpload(c *gin.Context) (entity.Upload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes)

	header, err := c.FormFile("scan")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return entity.Upload{}, err
		}
		return entity.Upload{}, errNoUpload
	}
	f, err := header.Open()
	if err != nil {
		return entity.Upload{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return entity.Upload{}, fmt.Errorf("read upload: %w", err)
	}
	return entity.Upload{Name: header.Filename, Data: data}, nil
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func preview(u entity.Upload) template.URL {
	mime := http.DetectContentType(u.Data)
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(u.Data))
}
