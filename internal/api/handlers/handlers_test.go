package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/isdelr/neuroscan-be/internal/auth"
	"github.com/isdelr/neuroscan-be/internal/database"
	"github.com/isdelr/neuroscan-be/internal/models"
	"github.com/isdelr/neuroscan-be/internal/overlay"
	"github.com/isdelr/neuroscan-be/internal/services"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type fakeAnalysis struct {
	userID int64
	data   []byte
	result services.Analysis
	err    error
}

func (f *fakeAnalysis) Analyze(_ context.Context, userID int64, data []byte) (services.Analysis, error) {
	f.userID, f.data = userID, data
	return f.result, f.err
}

func (f *fakeAnalysis) Preview(_ context.Context, data []byte) (services.Preview, error) {
	f.data = data
	if f.err != nil {
		return services.Preview{}, f.err
	}
	return services.Preview{OriginalImage: "orig", ProcessedImage: f.result.ProcessedImage, Detections: f.result.Detections}, nil
}

type fakeChat struct {
	keys    []string
	prompts []string
	err     error
}

func (f *fakeChat) Ask(_ context.Context, userKey, prompt string) (string, []models.Message, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	f.keys = append(f.keys, userKey)
	f.prompts = append(f.prompts, prompt)
	return "reply", []models.Message{
		{Role: models.RoleUser, Content: prompt},
		{Role: models.RoleAssistant, Content: "reply"},
	}, nil
}

func newServices(t *testing.T) (*services.UserService, *services.ReportService, *services.EventService) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "handlers.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { db.Close() })
	assert.NilError(t, database.Migrate(db))
	return services.NewUserService(db), services.NewReportService(db), services.NewEventService(db)
}

func uploadRequest(t *testing.T, userID string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if userID != "" {
		assert.NilError(t, mw.WriteField("user_id", userID))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "scan.png")
		assert.NilError(t, err)
		_, err = part.Write(image)
		assert.NilError(t, err)
	}
	assert.NilError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload_image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	assert.NilError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestUploadMissingFields(t *testing.T) {
	h := NewAnalysisHandler(&fakeAnalysis{}, 1)

	for name, req := range map[string]*http.Request{
		"no image":      uploadRequest(t, "3", nil),
		"no user id":    uploadRequest(t, "", []byte("png")),
		"not multipart": jsonRequest(http.MethodPost, "/upload_image", `{}`),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Upload(rec, req)
			assert.Equal(t, rec.Code, http.StatusBadRequest)
			assert.Assert(t, is.Contains(decodeBody(t, rec), "error"))
		})
	}
}

func TestUploadSuccess(t *testing.T) {
	svc := &fakeAnalysis{result: services.Analysis{ProcessedImage: "aGVsbG8=", Report: "report text"}}
	h := NewAnalysisHandler(svc, 1)

	rec := httptest.NewRecorder()
	h.Upload(rec, uploadRequest(t, " 42 ", []byte("scan-bytes")))

	assert.Equal(t, rec.Code, http.StatusOK)
	assert.DeepEqual(t, decodeBody(t, rec), map[string]interface{}{"processedImage": "aGVsbG8=", "report": "report text"})
	assert.Equal(t, svc.userID, int64(42))
	assert.Equal(t, string(svc.data), "scan-bytes")
}

func TestUploadErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: bad header", services.ErrInvalidImage), http.StatusBadRequest},
		{services.ErrUserNotFound, http.StatusNotFound},
		{errors.New("detector unreachable"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		NewAnalysisHandler(&fakeAnalysis{err: tc.err}, 1).Upload(rec, uploadRequest(t, "1", []byte("x")))
		assert.Equal(t, rec.Code, tc.code, tc.err.Error())
		assert.Assert(t, is.Contains(decodeBody(t, rec), "error"))
	}
}

func TestUploadTooLarge(t *testing.T) {
	svc := &fakeAnalysis{}
	rec := httptest.NewRecorder()
	NewAnalysisHandler(svc, 1).Upload(rec, uploadRequest(t, "1", bytes.Repeat([]byte{0xff}, 2<<20)))

	assert.Equal(t, rec.Code, http.StatusRequestEntityTooLarge)
	assert.Assert(t, is.Contains(decodeBody(t, rec)["error"], "1 MB"))
	assert.Assert(t, svc.data == nil)
}

func TestUploadImageDimensionsTooLarge(t *testing.T) {
	err := fmt.Errorf("%w: %w", services.ErrInvalidImage, overlay.ErrTooLarge)
	rec := httptest.NewRecorder()
	NewAnalysisHandler(&fakeAnalysis{err: err}, 1).Upload(rec, uploadRequest(t, "1", []byte("x")))
	assert.Equal(t, rec.Code, http.StatusRequestEntityTooLarge)
}

func TestUploadRejectsForeignToken(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	token, err := issuer.Generate(models.User{ID: 1})
	assert.NilError(t, err)

	svc := &fakeAnalysis{}
	h := issuer.Middleware()(http.HandlerFunc(NewAnalysisHandler(svc, 1).Upload))

	req := uploadRequest(t, "2", []byte("x"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusForbidden)
	assert.Assert(t, svc.data == nil)
}

func TestPredictNormalisesUserID(t *testing.T) {
	chat := &fakeChat{}
	h := NewChatHandler(chat)

	rec := httptest.NewRecorder()
	h.Predict(rec, jsonRequest(http.MethodPost, "/predict", `{"user_id": 7, "input_text": "Is it serious?"}`))
	assert.Equal(t, rec.Code, http.StatusOK)
	body := decodeBody(t, rec)
	assert.Equal(t, body["message"], "reply")
	assert.Assert(t, is.Len(body["messages"], 2))

	rec = httptest.NewRecorder()
	h.Predict(rec, jsonRequest(http.MethodPost, "/predict", `{"user_id": "7", "input_text": "And treatment?"}`))
	assert.Equal(t, rec.Code, http.StatusOK)

	assert.DeepEqual(t, chat.keys, []string{"7", "7"})
}

func TestPredictValidation(t *testing.T) {
	h := NewChatHandler(&fakeChat{})
	for _, body := range []string{`{"input_text": "hi"}`, `{"user_id": 1}`, `not json`} {
		rec := httptest.NewRecorder()
		h.Predict(rec, jsonRequest(http.MethodPost, "/predict", body))
		assert.Equal(t, rec.Code, http.StatusBadRequest, body)
		assert.Assert(t, is.Contains(decodeBody(t, rec), "error"))
	}

	rec := httptest.NewRecorder()
	NewChatHandler(&fakeChat{err: errors.New("provider down")}).
		Predict(rec, jsonRequest(http.MethodPost, "/predict", `{"user_id": 1, "input_text": "hi"}`))
	assert.Equal(t, rec.Code, http.StatusInternalServerError)
}

func TestRegisterAndLogin(t *testing.T) {
	users, _, events := newServices(t)
	h := NewUserHandler(users, events, auth.NewIssuer("secret", time.Hour))

	register := `{"name": "Li Na", "account": "lina", "password": "pw", "age": "45", "sex": "F"}`
	rec := httptest.NewRecorder()
	h.Register(rec, jsonRequest(http.MethodPost, "/register", register))
	assert.Equal(t, rec.Code, http.StatusCreated)

	rec = httptest.NewRecorder()
	h.Register(rec, jsonRequest(http.MethodPost, "/register", register))
	assert.Equal(t, rec.Code, http.StatusConflict)
	assert.Assert(t, is.Contains(decodeBody(t, rec), "message"))

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(http.MethodPost, "/login", `{"account": "lina", "password": "wrong"}`))
	assert.Equal(t, rec.Code, http.StatusUnauthorized)

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(http.MethodPost, "/login", `{"account": "lina", "password": "pw"}`))
	assert.Equal(t, rec.Code, http.StatusOK)
	body := decodeBody(t, rec)
	assert.Equal(t, body["id"], float64(1))
	token, _ := body["token"].(string)
	assert.Assert(t, token != "")

	uid := int64(1)
	recent, err := events.GetRecentEvents(context.Background(), 10, &uid)
	assert.NilError(t, err)
	types := make([]string, 0, len(recent))
	for _, e := range recent {
		types = append(types, e.Type)
	}
	assert.Assert(t, is.Contains(types, "user.register"))
	assert.Assert(t, is.Contains(types, "user.login.failed"))
}

func TestRegisterValidation(t *testing.T) {
	users, _, _ := newServices(t)
	h := NewUserHandler(users, nil, auth.NewIssuer("", time.Hour))

	for _, body := range []string{
		`{"account": "a", "password": "pw", "age": 3, "sex": "M"}`,
		`{"name": "A", "account": "a", "password": "pw", "age": "old", "sex": "M"}`,
		`{"name": "A", "account": "a", "password": "", "age": 30, "sex": "M"}`,
	} {
		rec := httptest.NewRecorder()
		h.Register(rec, jsonRequest(http.MethodPost, "/register", body))
		assert.Equal(t, rec.Code, http.StatusBadRequest, body)
	}

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(http.MethodPost, "/login", `{"account": ""}`))
	assert.Equal(t, rec.Code, http.StatusBadRequest)
}

func TestLoginWithoutSigningOmitsToken(t *testing.T) {
	users, _, _ := newServices(t)
	_, err := users.Register(context.Background(), "A", "a", "pw", 30, "M")
	assert.NilError(t, err)

	rec := httptest.NewRecorder()
	NewUserHandler(users, nil, auth.NewIssuer("", time.Hour)).
		Login(rec, jsonRequest(http.MethodPost, "/login", `{"account": "a", "password": "pw"}`))
	assert.Equal(t, rec.Code, http.StatusOK)
	_, hasToken := decodeBody(t, rec)["token"]
	assert.Assert(t, !hasToken)
}

func TestListReports(t *testing.T) {
	users, reports, _ := newServices(t)
	ctx := context.Background()
	user, err := users.Register(ctx, "A", "a", "pw", 30, "M")
	assert.NilError(t, err)
	_, err = reports.CreateReport(ctx, user.ID, "Diagnostic report: ...", "2026-10-19 09:00:00")
	assert.NilError(t, err)

	h := NewReportHandler(reports)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/reports?user_id=1", nil))
	assert.Equal(t, rec.Code, http.StatusOK)
	var list []map[string]string
	assert.NilError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.DeepEqual(t, list, []map[string]string{{"create_time": "2026-10-19 09:00:00", "content": "Diagnostic report: ..."}})

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/reports?user_id=99", nil))
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, strings.TrimSpace(rec.Body.String()), "[]")
}

func TestRecentEventsLimit(t *testing.T) {
	_, _, events := newServices(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.NilError(t, events.CreateEvent(ctx, "scan.analyze", "info", "scan", nil))
	}

	rec := httptest.NewRecorder()
	NewEventHandler(events).GetRecent(rec, httptest.NewRequest(http.MethodGet, "/events?limit=2", nil))
	assert.Equal(t, rec.Code, http.StatusOK)
	var got []models.Event
	assert.NilError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Assert(t, is.Len(got, 2))
}
