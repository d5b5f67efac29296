package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"celebdetect/internal/config"
	"celebdetect/internal/domain"
	"celebdetect/internal/service"
	"celebdetect/internal/vision"
)

// Messages shown in place of identification text.
const (
	MsgNoFace         = "No face detected. Please try another image."
	MsgInvalidImage   = "Invalid image. Please upload a JPEG, PNG or GIF file."
	MsgTooLarge       = "Image is too large."
	MsgSessionExpired = "Your session has expired. Please upload the image again."
)

const archiveTimeout = 10 * time.Second

// urlencodedFormLimit is the largest application/x-www-form-urlencoded body
// net/http will parse.
const urlencodedFormLimit = 10 << 20

// FaceExtractor is satisfied by *vision.Extractor.
type FaceExtractor interface {
	Extract(raw []byte) ([]byte, *domain.FaceRegion, error)
}

type Handler struct {
	faces     FaceExtractor
	celebrity service.CelebrityService
	qa        service.QAService
	archive   service.ArchiveService
	signer    *contextSigner
	log       *zap.Logger
}

// NewHandler wires the request handler. archive may be nil when archiving is disabled.
func NewHandler(
	faces FaceExtractor,
	celebrity service.CelebrityService,
	qa service.QAService,
	archive service.ArchiveService,
	cfg *config.AppConfig,
	log *zap.Logger,
) *Handler {
	return &Handler{
		faces:     faces,
		celebrity: celebrity,
		qa:        qa,
		archive:   archive,
		signer:    newContextSigner(cfg.SecretKey),
		log:       log,
	}
}

// indexPage is the view model of templates/index.html.
type indexPage struct {
	PlayerInfo   string
	PlayerName   string
	ImageData    string
	ImageSrc     template.URL
	UserQuestion string
	Answer       string
	Signature    string
}

// setImage only accepts standard base64 so the data URL cannot break out of
// the attribute it is rendered into.
func (p *indexPage) setImage(encoded string) bool {
	if encoded == "" {
		return false
	}
	if _, err := base64.StdEncoding.DecodeString(encoded); err != nil {
		return false
	}
	p.ImageData = encoded
	p.ImageSrc = template.URL("data:image/jpeg;base64," + encoded)
	return true
}

// Index serves the single page: GET renders the empty form, POST handles an
// image upload or a follow-up question.
func (h *Handler) Index(c *gin.Context) {
	var page indexPage
	status := http.StatusOK

	if c.Request.Method == http.MethodPost {
		status = h.handlePost(c, &page)
	}

	c.HTML(status, "index.html", page)
}

func (h *Handler) handlePost(c *gin.Context, page *indexPage) int {
	// gin's form accessors drop parse errors of non-multipart bodies.
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		if err := c.Request.ParseForm(); err != nil {
			return h.rejectForm(c, err, page)
		}
	}

	file, err := c.FormFile("image")
	switch {
	case err == nil:
		return h.handleUpload(c, file, page)
	case isTooLarge(err):
		h.log.Warn("Upload rejected", zap.Error(err))
		page.PlayerInfo = MsgTooLarge
		return http.StatusRequestEntityTooLarge
	}

	if question, ok := c.GetPostForm("question"); ok {
		return h.handleQuestion(c, question, page)
	}

	return http.StatusOK
}

func (h *Handler) rejectForm(c *gin.Context, err error, page *indexPage) int {
	h.log.Warn("Form rejected",
		zap.Int64("content_length", c.Request.ContentLength),
		zap.Error(err))

	if isTooLarge(err) || c.Request.ContentLength > urlencodedFormLimit {
		page.PlayerInfo = MsgTooLarge
		return http.StatusRequestEntityTooLarge
	}
	page.PlayerInfo = MsgSessionExpired
	return http.StatusBadRequest
}

func (h *Handler) handleUpload(c *gin.Context, file *multipart.FileHeader, page *indexPage) int {
	raw, err := readUpload(file)
	if err != nil {
		if isTooLarge(err) {
			page.PlayerInfo = MsgTooLarge
			return http.StatusRequestEntityTooLarge
		}
		h.log.Error("Failed to read upload", zap.String("filename", file.Filename), zap.Error(err))
		page.PlayerInfo = MsgInvalidImage
		return http.StatusOK
	}

	annotated, face, err := h.faces.Extract(raw)
	if err != nil {
		if errors.Is(err, vision.ErrDecode) {
			h.log.Info("Upload is not a decodable image",
				zap.String("filename", file.Filename),
				zap.Int("size", len(raw)),
				zap.Error(err))
		} else {
			h.log.Error("Face extraction failed", zap.String("filename", file.Filename), zap.Error(err))
		}
		page.PlayerInfo = MsgInvalidImage
		return http.StatusOK
	}

	if face == nil {
		h.log.Info("No face detected", zap.String("filename", file.Filename))
		page.PlayerInfo = MsgNoFace
		return http.StatusOK
	}

	info, name := h.celebrity.Identify(c.Request.Context(), annotated)

	encoded := base64.StdEncoding.EncodeToString(annotated)
	page.PlayerInfo = info
	page.PlayerName = name
	page.setImage(encoded)
	page.Signature = h.signer.Sign(name, info, encoded)

	if h.archive != nil && name != "" {
		h.archiveDetection(c.Request.Context(), info, name, *face, annotated)
	}

	return http.StatusOK
}

func (h *Handler) handleQuestion(c *gin.Context, question string, page *indexPage) int {
	name := c.PostForm("player_name")
	info := c.PostForm("player_info")
	encoded := c.PostForm("result_img_data")

	if !h.signer.Verify(name, info, encoded, c.PostForm("context_sig")) {
		h.log.Warn("Rejected question with unverified context", zap.String("client_ip", c.ClientIP()))
		page.PlayerInfo = MsgSessionExpired
		return http.StatusOK
	}

	page.PlayerName = name
	page.PlayerInfo = info
	page.UserQuestion = question
	page.Signature = c.PostForm("context_sig")
	page.setImage(encoded)

	if strings.TrimSpace(question) == "" {
		return http.StatusOK
	}

	page.Answer = h.qa.Ask(c.Request.Context(), name, question)
	return http.StatusOK
}

func (h *Handler) archiveDetection(ctx context.Context, info, name string, face domain.FaceRegion, image []byte) {
	// The page is already complete; a client disconnect must not abort the write.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	if _, err := h.archive.Save(ctx, info, name, face, image); err != nil {
		h.log.Error("Failed to archive detection", zap.String("name", name), zap.Error(err))
	}
}

// ListDetections returns the IDs of archived detections.
func (h *Handler) ListDetections(c *gin.Context) {
	ids, err := h.archive.List(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to list detections", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list detections"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"detections": ids})
}

// GetDetection returns one archived detection record.
func (h *Handler) GetDetection(c *gin.Context) {
	det, err := h.archive.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrDetectionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Detection not found"})
			return
		}
		h.log.Error("Failed to load detection", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load detection"})
		return
	}

	c.JSON(http.StatusOK, det)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func readUpload(file *multipart.FileHeader) ([]byte, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func isTooLarge(err error) bool {
	var maxBytes *http.MaxBytesError
	return errors.As(err, &maxBytes) || errors.Is(err, multipart.ErrMessageTooLarge)
}
