package web

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	app "ctscan/internal/application"
	"ctscan/internal/domain/entity"
	"ctscan/internal/infrastructure/storage"
	"ctscan/internal/infrastructure/vision"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedClassifier struct {
	score entity.RiskScore
}

func (f fixedClassifier) Predict(ctx context.Context, _ entity.ImageTensor) (entity.RiskScore, error) {
	return f.score, nil
}

func setup(t *testing.T, model *app.ModelHandle) http.Handler {
	t.Helper()
	sessions := app.NewSessionService(storage.NewMemorySessionRepository(16, time.Hour), func() string { return "unused" })
	analysis := app.NewAnalysisService(sessions, model, vision.NewPreprocessor(32), entity.VerdictPolicy{Threshold: 0.5}, nil)
	srv, err := NewServer(analysis, sessions, Options{MaxUploadBytes: 1 << 20, HistoryDisplay: 5, SessionTTL: time.Hour}, nil)
	require.NoError(t, err)
	return srv.Handler()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30))))
	return buf.Bytes()
}

// oversizedPNG заголовок PNG 16000x16000 без данных: несколько десятков байт
func oversizedPNG() []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	binary.Write(&ihdr, binary.BigEndian, uint32(16000))
	binary.Write(&ihdr, binary.BigEndian, uint32(16000))
	ihdr.Write([]byte{8, 0, 0, 0, 0})

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(ihdr.Bytes())
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path, name string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		w, err := mw.CreateFormFile("scan", name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func withCookies(req *http.Request, cookies []*http.Cookie) *http.Request {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func historyOf(t *testing.T, h http.Handler, cookies []*http.Cookie) []entity.HistoryRecord {
	t.Helper()
	rec := serve(h, withCookies(httptest.NewRequest(http.MethodGet, "/api/v1/history", nil), cookies))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Records []entity.HistoryRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Records
}

func TestAPIAnalyze_AppendsToSessionHistory(t *testing.T) {
	h := setup(t, app.NewModelHandle("model.ctm", fixedClassifier{score: 0.82}))

	rec := serve(h, uploadRequest(t, "/api/v1/analyze", "scan_01.png", pngBytes(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, entity.VerdictPositive, resp.Verdict)
	require.Equal(t, "82.0%", resp.Confidence)
	require.Equal(t, "40x30", resp.Scan.Resolution)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	rec = serve(h, withCookies(uploadRequest(t, "/api/v1/analyze", "scan_02.png", pngBytes(t)), cookies))
	require.Equal(t, http.StatusOK, rec.Code)

	records := historyOf(t, h, cookies)
	require.Len(t, records, 2)
	require.Equal(t, "scan_02.png", records[0].FileName)
	require.Equal(t, "82.0%", records[1].Confidence)

	// другая сессия не видит чужую историю
	require.Empty(t, historyOf(t, h, nil))
}

func TestAPIAnalyze_ModelUnavailable(t *testing.T) {
	h := setup(t, app.NewModelHandle("artifacts/training/model.ctm", nil))

	rec := serve(h, uploadRequest(t, "/api/v1/analyze", "scan.png", pngBytes(t)))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "Model file not found at artifacts/training/model.ctm")

	require.Empty(t, historyOf(t, h, rec.Result().Cookies()))
}

func TestAPIAnalyze_BadUploads(t *testing.T) {
	h := setup(t, app.NewModelHandle("model.ctm", fixedClassifier{score: 0.3}))

	rec := serve(h, uploadRequest(t, "/api/v1/analyze", "scan.jpg", []byte("not an image")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, historyOf(t, h, rec.Result().Cookies()))

	rec = serve(h, uploadRequest(t, "/api/v1/analyze", "bomb.png", oversizedPNG()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "image dimensions too large")
	require.Empty(t, historyOf(t, h, rec.Result().Cookies()))

	rec = serve(h, uploadRequest(t, "/api/v1/analyze", "scan.gif", pngBytes(t)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, uploadRequest(t, "/api/v1/analyze", "", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), errNoUpload.Error())
}

func TestAPIAnalyze_TooLarge(t *testing.T) {
	h := setup(t, app.NewModelHandle("model.ctm", fixedClassifier{score: 0.3}))

	rec := serve(h, uploadRequest(t, "/api/v1/analyze", "big.png", bytes.Repeat([]byte{1}, 2<<20)))
	require.NotEqual(t, http.StatusOK, rec.Code)
	require.Empty(t, historyOf(t, h, rec.Result().Cookies()))
}

func TestDashboard(t *testing.T) {
	h := setup(t, app.NewModelHandle("model.ctm", fixedClassifier{score: 0.2}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "No scans processed yet.")
	cookies := rec.Result().Cookies()

	rec = serve(h, withCookies(uploadRequest(t, "/analyze", "scan.png", pngBytes(t)), cookies))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "NEGATIVE: No Malignancy Detected")
	require.Contains(t, body, "<b>Negative</b> (20.0%)")
	require.Contains(t, body, "data:image/png;base64,")

	rec = serve(h, withCookies(httptest.NewRequest(http.MethodPost, "/session/end", nil), cookies))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Empty(t, historyOf(t, h, cookies))
}

func TestDashboard_HistoryCappedForDisplay(t *testing.T) {
	h := setup(t, app.NewModelHandle("model.ctm", fixedClassifier{score: 0.9}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	for i := 0; i < 7; i++ {
		rec = serve(h, withCookies(uploadRequest(t, "/analyze", "scan.png", pngBytes(t)), cookies))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Equal(t, 5, bytes.Count(body, []byte("<b>Positive</b>")))
	require.Contains(t, string(body), "7 scans in this session")
	require.Len(t, historyOf(t, h, cookies), 7)
}

func TestDashboard_ModelMissingWarning(t *testing.T) {
	h := setup(t, app.NewModelHandle("artifacts/training/model.ctm", nil))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Model file not found at artifacts/training/model.ctm")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"model":"unavailable"`)
}
