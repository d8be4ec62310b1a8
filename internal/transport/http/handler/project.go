package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pcbrecon/internal/app"
	"pcbrecon/internal/model"
	"pcbrecon/internal/transport/http/response"
)

const defaultImagePath = "upload"

type ProjectHandler struct {
	projectService *app.ProjectService
	maxImageBytes  int
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,max=128"`
	ImagePath   string `json:"image_path" binding:"max=512"`
	ImageBase64 string `json:"image_base64" binding:"required"`
}

type ProjectResponse struct {
	ID           uint                `json:"id"`
	Name         string              `json:"name"`
	ImagePath    string              `json:"image_path"`
	ImageBase64  string              `json:"image_base64"`
	Analysis     string              `json:"analysis"`
	CreatedAt    time.Time           `json:"created_at"`
	ChatMessages []model.ChatMessage `json:"chat_messages"`
}

func NewProjectHandler(projectService *app.ProjectService, maxImageBytes int) *ProjectHandler {
	if maxImageBytes <= 0 {
		maxImageBytes = 10 << 20
	}
	return &ProjectHandler{projectService: projectService, maxImageBytes: maxImageBytes}
}

// Create accepts either JSON with a base64 image or a multipart form with
// an "image" file and a "name" field.
func (h *ProjectHandler) Create(c *gin.Context) {
	var (
		input app.CreateProjectInput
		ok    bool
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		input, ok = h.bindMultipart(c)
	} else {
		input, ok = h.bindJSON(c)
	}
	if !ok {
		return
	}

	project, err := h.projectService.CreateProject(c.Request.Context(), input)
	if err != nil {
		writeServiceError(c, err, "create project failed")
		return
	}
	response.OK(c, toProjectResponse(project))
}

func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projectService.ListProjects(queryInt(c, "offset", 0), queryInt(c, "limit", 100))
	if err != nil {
		writeServiceError(c, err, "list projects failed")
		return
	}
	out := make([]ProjectResponse, 0, len(projects))
	for i := range projects {
		out = append(out, toProjectResponse(&projects[i]))
	}
	response.OK(c, out)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	projectID, ok := parseProjectID(c)
	if !ok {
		return
	}
	project, err := h.projectService.GetProject(projectID)
	if err != nil {
		writeServiceError(c, err, "get project failed")
		return
	}
	response.OK(c, toProjectResponse(project))
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	projectID, ok := parseProjectID(c)
	if !ok {
		return
	}
	if err := h.projectService.DeleteProject(c.Request.Context(), projectID); err != nil {
		writeServiceError(c, err, "delete project failed")
		return
	}
	response.OK(c, gin.H{"status": "deleted"})
}

func (h *ProjectHandler) bindJSON(c *gin.Context) (app.CreateProjectInput, bool) {
	// base64 inflates by 4/3; the slack covers the data-URL prefix and
	// the other fields
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(h.maxImageBytes/3*4+4096))
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.tooLarge(c)
			return app.CreateProjectInput{}, false
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return app.CreateProjectInput{}, false
	}
	if len(req.ImageBase64) > h.maxImageBytes/3*4+64 {
		h.tooLarge(c)
		return app.CreateProjectInput{}, false
	}
	image, err := app.DecodeImage(req.ImageBase64)
	if err != nil {
		writeServiceError(c, err, "decode image failed")
		return app.CreateProjectInput{}, false
	}
	if len(image) > h.maxImageBytes {
		h.tooLarge(c)
		return app.CreateProjectInput{}, false
	}
	imagePath := req.ImagePath
	if strings.TrimSpace(imagePath) == "" {
		imagePath = defaultImagePath
	}
	return app.CreateProjectInput{Name: req.Name, ImagePath: imagePath, Image: image}, true
}

func (h *ProjectHandler) bindMultipart(c *gin.Context) (app.CreateProjectInput, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing image file (form field 'image')")
		return app.CreateProjectInput{}, false
	}
	if file.Size > int64(h.maxImageBytes) {
		h.tooLarge(c)
		return app.CreateProjectInput{}, false
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return app.CreateProjectInput{}, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(h.maxImageBytes)+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to read image")
		return app.CreateProjectInput{}, false
	}
	if len(data) > h.maxImageBytes {
		h.tooLarge(c)
		return app.CreateProjectInput{}, false
	}

	imagePath := c.PostForm("image_path")
	if imagePath == "" {
		imagePath = file.Filename
	}
	if imagePath == "" {
		imagePath = defaultImagePath
	}
	return app.CreateProjectInput{Name: c.PostForm("name"), ImagePath: imagePath, Image: data}, true
}

func (h *ProjectHandler) tooLarge(c *gin.Context) {
	response.Error(c, http.StatusRequestEntityTooLarge, response.CodeImageTooLarge,
		fmt.Sprintf("image too large (max %d bytes)", h.maxImageBytes))
}

func toProjectResponse(p *model.Project) ProjectResponse {
	messages := p.ChatMessages
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	return ProjectResponse{
		ID:           p.ID,
		Name:         p.Name,
		ImagePath:    p.ImagePath,
		ImageBase64:  p.ImageDataURL(),
		Analysis:     p.Analysis,
		CreatedAt:    p.CreatedAt,
		ChatMessages: messages,
	}
}
