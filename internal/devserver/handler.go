package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"execal-client/internal/labreport"
	"execal-client/internal/shared/server/middleware"
	"execal-client/internal/shared/server/respond"
)

const (
	maxUploadSize = 10 << 20 // 10MB
	userKey       = "devUser"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
	// AltIDKey answers uploads with "analysisId" instead of "analysis_id".
	AltIDKey bool
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterPublicRoutes attaches routes that need no token.
func (h *Handler) RegisterPublicRoutes(r gin.IRoutes) {
	r.GET("/", h.root)
	r.POST("/auth/register", h.register)
	r.POST("/auth/login", h.login)
	r.GET("/tests/list", h.referenceTests)
}

// RegisterRoutes attaches authenticated routes. The group must run Bearer.
// uploadGuards run before the upload handler only.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, uploadGuards ...gin.HandlerFunc) {
	rg.Use(h.requireUser)
	rg.POST("/upload/document", append(uploadGuards, h.upload)...)
	rg.GET("/upload/history", h.history)
	rg.GET("/report/:id", h.report)
	rg.GET("/report/:id/pdf", h.reportPDF)
	rg.POST("/consultation/request", h.consultation)
}

func (h *Handler) root(c *gin.Context) {
	respond.OK(c, gin.H{"status": "ok", "message": "Medical Lab MVP Backend"})
}

type userResponse struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Age       *int    `json:"age"`
	Gender    *string `json:"gender"`
	Language  string  `json:"language"`
	CreatedAt string  `json:"created_at"`
}

func (h *Handler) register(c *gin.Context) {
	var req Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	u, err := h.Svc.Register(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserExists):
			respond.Error(c, http.StatusBadRequest, "User exists")
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusUnprocessableEntity, err.Error())
		default:
			respond.Error(c, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}
	respond.OK(c, userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Age:       u.Age,
		Gender:    u.Gender,
		Language:  u.Language,
		CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05.000000"),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	token, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrIncorrectCredentials) {
			respond.Error(c, http.StatusBadRequest, "Incorrect credentials")
			return
		}
		respond.Error(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respond.OK(c, gin.H{"access_token": token, "token_type": "bearer"})
}

// requireUser loads the account named by the verified token subject.
func (h *Handler) requireUser(c *gin.Context) {
	u, err := h.Svc.Authenticate(c.Request.Context(), middleware.UserEmailFromContext(c))
	if err != nil {
		respond.Error(c, http.StatusUnauthorized, "User not found")
		return
	}
	c.Set(userKey, u)
	c.Next()
}

func currentUser(c *gin.Context) User {
	u, _ := c.Get(userKey)
	user, _ := u.(User)
	return user
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "file is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "unable to read file")
		return
	}
	defer file.Close()

	a, err := h.Svc.Upload(c.Request.Context(), currentUser(c), fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	c.Set(middleware.AnalysisIDKey, a.ID)

	idKey := "analysis_id"
	if h.AltIDKey {
		idKey = "analysisId"
	}
	respond.OK(c, gin.H{idKey: a.ID, "status": a.Status})
}

type historyEntry struct {
	ID     int64  `json:"id"`
	Date   string `json:"date"`
	Status string `json:"status"`
	Source string `json:"source"`
	Format string `json:"format"`
}

func (h *Handler) history(c *gin.Context) {
	rows, err := h.Svc.History(c.Request.Context(), currentUser(c))
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	out := make([]historyEntry, 0, len(rows))
	for _, a := range rows {
		out = append(out, historyEntry{
			ID:     a.ID,
			Date:   a.Date.Format("2006-01-02T15:04:05.000000"),
			Status: a.Status,
			Source: a.Source,
			Format: a.Format,
		})
	}
	respond.OK(c, out)
}

func (h *Handler) report(c *gin.Context) {
	id, ok := analysisID(c)
	if !ok {
		return
	}
	r, err := h.Svc.Report(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.analysisError(c, err)
		return
	}
	respond.OK(c, r)
}

func (h *Handler) reportPDF(c *gin.Context) {
	id, ok := analysisID(c)
	if !ok {
		return
	}
	data, err := h.Svc.ReportPDF(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.analysisError(c, err)
		return
	}
	respond.Attachment(c, "application/pdf", fmt.Sprintf("report_%d.pdf", id), data)
}

func (h *Handler) analysisError(c *gin.Context, err error) {
	if errors.Is(err, ErrAnalysisNotFound) {
		respond.Error(c, http.StatusNotFound, "Analysis not found")
		return
	}
	respond.Error(c, http.StatusInternalServerError, "Internal Server Error")
}

func analysisID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "analysis id must be an integer")
		return 0, false
	}
	c.Set(middleware.AnalysisIDKey, id)
	return id, true
}

func (h *Handler) consultation(c *gin.Context) {
	respond.OK(c, gin.H{
		"status":  "requested",
		"details": "consultation scheduled (MVP stub)",
		"user_id": currentUser(c).ID,
	})
}

type referenceTest struct {
	Name   string  `json:"name"`
	RefMin float64 `json:"ref_min"`
	RefMax float64 `json:"ref_max"`
	Units  string  `json:"units"`
}

func (h *Handler) referenceTests(c *gin.Context) {
	refs := labreport.References()
	out := make([]referenceTest, 0, len(refs))
	for _, r := range refs {
		out = append(out, referenceTest{Name: r.TestName, RefMin: r.RefMin, RefMax: r.RefMax, Units: r.Units})
	}
	respond.OK(c, out)
}
