package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"celebdetect/internal/config"
	"celebdetect/internal/domain"
	"celebdetect/internal/service"
	"celebdetect/internal/vision"
	"celebdetect/web"
)

type fakeExtractor struct {
	out  []byte
	face *domain.FaceRegion
	err  error
	got  []byte
}

func (f *fakeExtractor) Extract(raw []byte) ([]byte, *domain.FaceRegion, error) {
	f.got = raw
	if f.err != nil {
		return nil, nil, f.err
	}
	if f.face == nil {
		return raw, nil, nil
	}
	return f.out, f.face, nil
}

type fakeCelebrity struct {
	info, name string
	calls      int
	got        []byte
}

func (f *fakeCelebrity) Identify(ctx context.Context, image []byte) (string, string) {
	f.calls++
	f.got = image
	return f.info, f.name
}

func (f *fakeCelebrity) Recognize(ctx context.Context, image []byte) (*domain.Identification, error) {
	return &domain.Identification{Info: f.info, Name: f.name}, nil
}

type fakeQA struct {
	answer         string
	calls          int
	name, question string
}

func (f *fakeQA) Ask(ctx context.Context, name, question string) string {
	f.calls++
	f.name, f.question = name, question
	return f.answer
}

func (f *fakeQA) Answer(ctx context.Context, name, question string) (string, error) {
	return f.answer, nil
}

type fakeArchive struct {
	saved []domain.Detection
	err   error
}

func (f *fakeArchive) Save(ctx context.Context, info, name string, face domain.FaceRegion, image []byte) (*domain.Detection, error) {
	if f.err != nil {
		return nil, f.err
	}
	det := domain.Detection{ID: fmt.Sprintf("id-%d", len(f.saved)), Name: name, Info: info, Face: face}
	f.saved = append(f.saved, det)
	return &det, nil
}

func (f *fakeArchive) List(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]string, 0, len(f.saved))
	for _, d := range f.saved {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (f *fakeArchive) Get(ctx context.Context, id string) (*domain.Detection, error) {
	for _, d := range f.saved {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, service.ErrDetectionNotFound
}

const testSecret = "test-secret"

type fixture struct {
	faces     *fakeExtractor
	celebrity *fakeCelebrity
	qa        *fakeQA
	archive   *fakeArchive
	handler   *Handler
	router    *gin.Engine
}

func newFixture(t *testing.T, withArchive bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		faces:     &fakeExtractor{},
		celebrity: &fakeCelebrity{info: "- **Full Name**: Jane Doe", name: "Jane Doe"},
		qa:        &fakeQA{answer: "Paris"},
	}

	var archive service.ArchiveService
	if withArchive {
		f.archive = &fakeArchive{}
		archive = f.archive
	}

	f.handler = NewHandler(f.faces, f.celebrity, f.qa, archive, &config.AppConfig{SecretKey: testSecret}, zap.NewNop())

	tmpl, err := web.Templates()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	f.router = gin.New()
	f.router.SetHTMLTemplate(tmpl)
	f.router.GET("/", f.handler.Index)
	f.router.POST("/", f.handler.Index)
	f.router.GET("/health", f.handler.HealthCheck)
	f.router.GET("/api/detections", f.handler.ListDetections)
	f.router.GET("/api/detections/:id", f.handler.GetDetection)
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, "photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func questionRequest(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func multipartQuestionRequest(t *testing.T, values url.Values) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, vs := range values {
		for _, v := range vs {
			if err := mw.WriteField(key, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// largeContext is a signed identification whose image is 8 MiB before encoding.
func largeContext() url.Values {
	encoded := base64.StdEncoding.EncodeToString(make([]byte, 8<<20))
	info := "- **Full Name**: Jane Doe"
	return url.Values{
		"question":        {"Where born?"},
		"player_name":     {"Jane Doe"},
		"player_info":     {info},
		"result_img_data": {encoded},
		"context_sig":     {newContextSigner(testSecret).Sign("Jane Doe", info, encoded)},
	}
}

func TestIndexGetRendersEmptyForm(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `name="image"`) {
		t.Error("upload form missing")
	}
	if strings.Contains(body, `name="question"`) {
		t.Error("question form must not render without an identification")
	}
}

func TestUploadWithFace(t *testing.T) {
	f := newFixture(t, true)
	annotated := []byte("annotated-jpeg")
	f.faces.out = annotated
	f.faces.face = &domain.FaceRegion{X: 1, Y: 2, Width: 3, Height: 4}

	w := f.do(uploadRequest(t, "image", []byte("raw-upload")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	if string(f.faces.got) != "raw-upload" {
		t.Errorf("extractor got %q", f.faces.got)
	}
	if !bytes.Equal(f.celebrity.got, annotated) {
		t.Errorf("identifier got %q, want the annotated bytes", f.celebrity.got)
	}

	body := w.Body.String()
	encoded := base64.StdEncoding.EncodeToString(annotated)
	if !strings.Contains(body, `src="data:image/jpeg;base64,`+encoded+`"`) {
		t.Error("annotated image not rendered")
	}
	if !strings.Contains(body, `name="result_img_data" value="`+encoded+`"`) {
		t.Error("annotated image not round-tripped in hidden field")
	}
	if !strings.Contains(body, html.EscapeString(f.celebrity.info)) {
		t.Error("identification text not rendered")
	}
	sig := newContextSigner(testSecret).Sign("Jane Doe", f.celebrity.info, encoded)
	if !strings.Contains(body, `value="`+sig+`"`) {
		t.Error("context signature not rendered")
	}

	if len(f.archive.saved) != 1 || f.archive.saved[0].Name != "Jane Doe" {
		t.Errorf("archive = %+v, want one Jane Doe record", f.archive.saved)
	}
}

func TestUploadWithoutFace(t *testing.T) {
	f := newFixture(t, true)

	w := f.do(uploadRequest(t, "image", []byte("raw-upload")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, MsgNoFace) {
		t.Errorf("body does not contain %q", MsgNoFace)
	}
	if strings.Contains(body, "data:image/jpeg;base64,") || strings.Contains(body, `name="result_img_data"`) {
		t.Error("no image payload expected when no face is found")
	}
	if f.celebrity.calls != 0 {
		t.Error("identifier must not run without a face")
	}
	if len(f.archive.saved) != 0 {
		t.Error("nothing should be archived")
	}
}

func TestUploadInvalidImage(t *testing.T) {
	f := newFixture(t, false)
	f.faces.err = fmt.Errorf("%w: unknown format", vision.ErrDecode)

	w := f.do(uploadRequest(t, "image", []byte("text file")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), MsgInvalidImage) {
		t.Error("invalid image message missing")
	}
	if f.celebrity.calls != 0 {
		t.Error("identifier must not run on an invalid image")
	}
}

func TestUploadIdentificationFailureIsNotArchived(t *testing.T) {
	f := newFixture(t, true)
	f.faces.out = []byte("annotated")
	f.faces.face = &domain.FaceRegion{Width: 1, Height: 1}
	f.celebrity.info, f.celebrity.name = service.FallbackInfo, ""

	w := f.do(uploadRequest(t, "image", []byte("raw")))
	if !strings.Contains(w.Body.String(), `id="player-info">Unknown<`) {
		t.Error("fallback info not rendered")
	}
	if len(f.archive.saved) != 0 {
		t.Error("failed identifications must not be archived")
	}
}

func TestUploadArchiveFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, true)
	f.faces.out = []byte("annotated")
	f.faces.face = &domain.FaceRegion{Width: 1, Height: 1}
	f.archive.err = errors.New("s3 down")

	w := f.do(uploadRequest(t, "image", []byte("raw")))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Jane Doe") {
		t.Error("identification should still render")
	}
}

func TestQuestionWithSignedContext(t *testing.T) {
	f := newFixture(t, false)
	encoded := base64.StdEncoding.EncodeToString([]byte("annotated"))
	info := "- **Full Name**: Jane Doe"
	sig := newContextSigner(testSecret).Sign("Jane Doe", info, encoded)

	w := f.do(questionRequest(url.Values{
		"question":        {"Where born?"},
		"player_name":     {"Jane Doe"},
		"player_info":     {info},
		"result_img_data": {encoded},
		"context_sig":     {sig},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	if f.qa.calls != 1 || f.qa.name != "Jane Doe" || f.qa.question != "Where born?" {
		t.Errorf("qa called %d times with %q/%q", f.qa.calls, f.qa.name, f.qa.question)
	}
	if f.celebrity.calls != 0 {
		t.Error("a question must not re-run identification")
	}

	body := w.Body.String()
	if !strings.Contains(body, `id="answer">Paris<`) {
		t.Error("answer not rendered")
	}
	if !strings.Contains(body, "Where born?") {
		t.Error("question not echoed")
	}
	if !strings.Contains(body, `value="`+encoded+`"`) || !strings.Contains(body, html.EscapeString(info)) {
		t.Error("identification context not redisplayed")
	}
}

func TestQuestionWithLargeImageContext(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(multipartQuestionRequest(t, largeContext()))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.qa.calls != 1 {
		t.Fatalf("qa called %d times, want 1", f.qa.calls)
	}
	body := w.Body.String()
	if !strings.Contains(body, `id="answer">Paris<`) {
		t.Error("answer not rendered")
	}
	if !strings.Contains(body, "data:image/jpeg;base64,") {
		t.Error("image context not redisplayed")
	}
}

func TestQuestionURLEncodedAboveFormLimit(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(questionRequest(largeContext()))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if !strings.Contains(w.Body.String(), MsgTooLarge) {
		t.Error("too large message missing")
	}
	if f.qa.calls != 0 {
		t.Errorf("qa called %d times, want 0", f.qa.calls)
	}
}

func TestQuestionMalformedURLEncodedBody(t *testing.T) {
	f := newFixture(t, false)
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("question=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := f.do(req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), html.EscapeString(MsgSessionExpired)) {
		t.Error("session expired message missing")
	}
	if f.qa.calls != 0 {
		t.Errorf("qa called %d times, want 0", f.qa.calls)
	}
}

func TestQuestionFormPostsMultipart(t *testing.T) {
	f := newFixture(t, false)
	f.faces.out = []byte("annotated")
	f.faces.face = &domain.FaceRegion{Width: 10, Height: 10}

	w := f.do(uploadRequest(t, "image", []byte("raw")))
	body := w.Body.String()
	if !strings.Contains(body, `name="question"`) {
		t.Fatal("question form missing")
	}
	if n := strings.Count(body, `enctype="multipart/form-data"`); n != 2 {
		t.Errorf("multipart forms = %d, want 2", n)
	}
}

func TestQuestionFallbackAnswerIsEscaped(t *testing.T) {
	f := newFixture(t, false)
	f.qa.answer = service.FallbackAnswer
	sig := newContextSigner(testSecret).Sign("X", "info", "")

	w := f.do(questionRequest(url.Values{
		"question":    {"Where born?"},
		"player_name": {"X"},
		"player_info": {"info"},
		"context_sig": {sig},
	}))
	if !strings.Contains(w.Body.String(), html.EscapeString(service.FallbackAnswer)) {
		t.Errorf("fallback answer missing from %s", w.Body.String())
	}
}

func TestQuestionWithTamperedContext(t *testing.T) {
	f := newFixture(t, false)
	encoded := base64.StdEncoding.EncodeToString([]byte("annotated"))
	sig := newContextSigner(testSecret).Sign("Jane Doe", "info", encoded)

	tests := []struct {
		name   string
		values url.Values
	}{
		{
			name: "changed name",
			values: url.Values{
				"question": {"q"}, "player_name": {"Someone Else"}, "player_info": {"info"},
				"result_img_data": {encoded}, "context_sig": {sig},
			},
		},
		{
			name: "missing signature",
			values: url.Values{
				"question": {"q"}, "player_name": {"Jane Doe"}, "player_info": {"info"},
				"result_img_data": {encoded},
			},
		},
		{
			name: "signed with another key",
			values: url.Values{
				"question": {"q"}, "player_name": {"Jane Doe"}, "player_info": {"info"},
				"result_img_data": {encoded},
				"context_sig":     {newContextSigner("other").Sign("Jane Doe", "info", encoded)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(questionRequest(tt.values))
			if !strings.Contains(w.Body.String(), html.EscapeString(MsgSessionExpired)) {
				t.Error("expected the session expired message")
			}
		})
	}
	if f.qa.calls != 0 {
		t.Errorf("qa called %d times, want 0", f.qa.calls)
	}
}

func TestQuestionInvalidImageDataIsDropped(t *testing.T) {
	f := newFixture(t, false)
	bad := `"><script>alert(1)</script>`
	sig := newContextSigner(testSecret).Sign("X", "info", bad)

	w := f.do(questionRequest(url.Values{
		"question": {"q"}, "player_name": {"X"}, "player_info": {"info"},
		"result_img_data": {bad}, "context_sig": {sig},
	}))
	if strings.Contains(w.Body.String(), "<script>") {
		t.Error("unescaped script rendered")
	}
	if strings.Contains(w.Body.String(), "data:image/jpeg;base64,") {
		t.Error("invalid image data should not render an image")
	}
}

func TestPostWithoutImageOrQuestionRendersIdle(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(questionRequest(url.Values{"something": {"else"}}))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.qa.calls != 0 || f.celebrity.calls != 0 || f.faces.got != nil {
		t.Error("no component should run for an unknown form")
	}
	if strings.Contains(w.Body.String(), `id="player-info"`) {
		t.Error("idle page should not render a result")
	}
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t, false)
	req := uploadRequest(t, "image", bytes.Repeat([]byte("x"), 4096))
	req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, 512)

	w := f.do(req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	if !strings.Contains(w.Body.String(), MsgTooLarge) {
		t.Error("too large message missing")
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"OK"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestDetectionEndpoints(t *testing.T) {
	f := newFixture(t, true)
	f.archive.saved = []domain.Detection{{ID: "id-0", Name: "Jane Doe"}}

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/detections", nil))
	var list struct {
		Detections []string `json:"detections"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("list response: %v", err)
	}
	if len(list.Detections) != 1 || list.Detections[0] != "id-0" {
		t.Errorf("detections = %v", list.Detections)
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/detections/id-0", nil))
	var det domain.Detection
	if err := json.Unmarshal(w.Body.Bytes(), &det); err != nil {
		t.Fatalf("get response: %v", err)
	}
	if det.Name != "Jane Doe" {
		t.Errorf("detection = %+v", det)
	}

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/detections/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing detection status = %d, want 404", w.Code)
	}
}
