// Package handlers exposes the HTTP surface of the appraisal service.
package handlers

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"appraisal-service/formatter"
	"appraisal-service/images"
	"appraisal-service/llm"
	"appraisal-service/middleware"
	"appraisal-service/models"
	"appraisal-service/service"
)

// Appraiser runs the appraisal pipeline.
type Appraiser interface {
	Run(ctx context.Context, req models.AppraisalRequest) (*models.Appraisal, error)
	Refine(ctx context.Context, prior *models.Appraisal, feedback string) (*models.Appraisal, error)
	Expert(ctx context.Context, prior *models.Appraisal, passes []string) ([]models.ExpertSection, error)
	Get(ctx context.Context, id string) (*models.Appraisal, error)
}

// ImageStore persists uploads and returns their public URL.
type ImageStore interface {
	Save(ctx context.Context, r io.Reader) (id, url string, err error)
}

// MediaStore serves stored images and audio.
type MediaStore interface {
	GetImage(ctx context.Context, id string) (string, []byte, error)
	SaveAudio(ctx context.Context, id, appraisalID string, data []byte) error
	GetAudio(ctx context.Context, id string) ([]byte, error)
}

// Synthesizer converts text to speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Handlers wires the HTTP layer to the pipeline. media and tts may be nil;
// the endpoints that need them answer 503.
type Handlers struct {
	appraiser  Appraiser
	imageStore ImageStore
	media      MediaStore
	tts        Synthesizer
	baseURL    string
}

func New(appraiser Appraiser, imageStore ImageStore, media MediaStore, tts Synthesizer, baseURL string) *Handlers {
	return &Handlers{
		appraiser:  appraiser,
		imageStore: imageStore,
		media:      media,
		tts:        tts,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type refineRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

type expertRequest struct {
	Passes []string `json:"passes"`
}

// audioRequest carries either literal text to synthesize or the ID of a
// stored appraisal to summarize.
type audioRequest struct {
	Text        string `json:"text"`
	AppraisalID string `json:"appraisal_id"`
}

// CreateAppraisal handles POST /api/v1/appraisals.
func (h *Handlers) CreateAppraisal(c *gin.Context) {
	var req models.AppraisalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request body",
			"remedy": "send a JSON body with an image_urls array and an optional tier",
		})
		return
	}
	req.UserID = c.GetString(middleware.UserIDKey)

	appraisal, err := h.appraiser.Run(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, appraisal)
}

// GetAppraisal handles GET /api/v1/appraisals/:id. With ?format=html the
// report is rendered; otherwise the stored appraisal is returned as JSON.
func (h *Handlers) GetAppraisal(c *gin.Context) {
	appraisal, ok := h.loadAppraisal(c)
	if !ok {
		return
	}

	if c.Query("format") == "html" {
		html := formatter.RenderHTML(appraisal.Report, nil)
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
		return
	}
	c.JSON(http.StatusOK, appraisal)
}

// RefineAppraisal handles POST /api/v1/appraisals/:id/refine.
func (h *Handlers) RefineAppraisal(c *gin.Context) {
	prior, ok := h.loadAppraisal(c)
	if !ok {
		return
	}

	var req refineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request body",
			"remedy": "send a JSON body with a feedback string describing your corrections",
		})
		return
	}

	refined, err := h.appraiser.Refine(c.Request.Context(), prior, req.Feedback)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refined)
}

// ExpertAppraisal handles POST /api/v1/appraisals/:id/expert.
func (h *Handlers) ExpertAppraisal(c *gin.Context) {
	prior, ok := h.loadAppraisal(c)
	if !ok {
		return
	}

	var req expertRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request body",
			"remedy": "send an empty body for all passes, or a passes array of \"history\" and \"market\"",
		})
		return
	}

	sections, err := h.appraiser.Expert(c.Request.Context(), prior, req.Passes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"appraisal_id": prior.ID,
		"sections":     sections,
	})
}

// UploadImage handles POST /api/v1/images (multipart field "image").
func (h *Handlers) UploadImage(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "missing image file",
			"remedy": "upload the photograph as a multipart form field named image",
		})
		return
	}
	defer file.Close()

	id, url, err := h.imageStore.Save(c.Request.Context(), file)
	if err != nil {
		switch {
		case errors.Is(err, images.ErrNotImage):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "the uploaded file is not an image",
				"remedy": "upload a JPEG or PNG photograph of the item",
			})
		case errors.Is(err, images.ErrTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  "the uploaded file is too large",
				"remedy": "resize the photograph below the upload limit and try again",
			})
		default:
			log.Errorf("image upload failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "failed to store the image",
				"remedy": "try the upload again shortly",
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "url": url})
}

// GetImage handles GET /api/v1/images/:id.
func (h *Handlers) GetImage(c *gin.Context) {
	if h.media == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage is not configured"})
		return
	}

	contentType, data, err := h.media.GetImage(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
			return
		}
		log.Errorf("failed to load image %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load the image"})
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// CreateAudioSummary handles POST /api/v1/audio-summaries: synthesize speech
// from supplied text, or from the overview and conclusion of a stored
// appraisal when appraisal_id is given instead.
func (h *Handlers) CreateAudioSummary(c *gin.Context) {
	if h.media == nil || h.tts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audio summaries are not configured"})
		return
	}

	var req audioRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Text == "" && req.AppraisalID == "") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid request body",
			"remedy": "send a JSON body with the text to speak, or an appraisal_id to summarize",
		})
		return
	}

	text := req.Text
	if text == "" {
		appraisal, err := h.appraiser.Get(c.Request.Context(), req.AppraisalID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "appraisal not found"})
				return
			}
			log.Errorf("failed to load appraisal %s: %v", req.AppraisalID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load the appraisal"})
			return
		}
		text = appraisal.Report.Overview + " " + appraisal.Report.Conclusion
	}

	audio, err := h.tts.Synthesize(c.Request.Context(), text)
	if err != nil {
		h.writeError(c, err)
		return
	}

	id := uuid.New().String()
	if err := h.media.SaveAudio(c.Request.Context(), id, req.AppraisalID, audio); err != nil {
		log.Errorf("failed to save audio summary: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "failed to store the audio summary",
			"remedy": "try the request again shortly",
		})
		return
	}

	resp := gin.H{"id": id, "url": h.baseURL + "/api/v1/audio/" + id}
	if req.AppraisalID != "" {
		resp["appraisal_id"] = req.AppraisalID
	}
	c.JSON(http.StatusOK, resp)
}

// GetAudio handles GET /api/v1/audio/:id.
func (h *Handlers) GetAudio(c *gin.Context) {
	if h.media == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audio summaries are not configured"})
		return
	}

	data, err := h.media.GetAudio(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "audio summary not found"})
			return
		}
		log.Errorf("failed to load audio %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load the audio summary"})
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", data)
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// loadAppraisal resolves the :id path parameter, answering the error itself
// when the appraisal cannot be loaded.
func (h *Handlers) loadAppraisal(c *gin.Context) (*models.Appraisal, bool) {
	appraisal, err := h.appraiser.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "appraisal not found"})
			return nil, false
		}
		log.Errorf("failed to load appraisal %s: %v", c.Param("id"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load the appraisal"})
		return nil, false
	}
	return appraisal, true
}

// writeError maps pipeline errors onto HTTP statuses. Every body carries a
// remedy the caller can act on.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoImages):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "no images were provided",
			"remedy": "include at least one image URL in the request",
		})
	case errors.Is(err, llm.ErrModelTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":  "the analysis did not finish in time",
			"remedy": "retry the request; if it keeps timing out, try fewer or smaller photographs",
		})
	case errors.Is(err, llm.ErrUpstreamAuth):
		log.Errorf("upstream credentials rejected: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "the appraisal service is misconfigured",
			"remedy": "contact support; retrying will not help until the service is fixed",
		})
	case errors.Is(err, llm.ErrModelRunFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "the analysis failed upstream",
			"remedy": "retry with clearer, well-lit photographs of the item",
		})
	default:
		log.Errorf("appraisal failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "the appraisal could not be completed",
			"remedy": "retry the request shortly",
		})
	}
}
