package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"execal-client/internal/extract"
	"execal-client/internal/labreport"
	"execal-client/internal/shared/auth"
	"execal-client/internal/shared/storage/object"
	"execal-client/internal/shared/telemetry"
	"execal-client/internal/shared/util"
)

const minPasswordLength = 6

// Service implements the backend behavior behind the HTTP handlers.
type Service struct {
	Repo   *MemoryRepo
	Store  object.Store
	Signer *auth.Signer
	// MockTests fills in a fixed indicator set when nothing was parsed.
	MockTests bool
	// HashCost is the bcrypt cost; zero means bcrypt.DefaultCost.
	HashCost int
	Now      func() time.Time
}

// Registration is the body of POST /auth/register.
type Registration struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Age      *int    `json:"age"`
	Gender   *string `json:"gender"`
	Language string  `json:"language"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, req Registration) (User, error) {
	email := strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	cost := s.HashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = "ru"
	}
	return s.Repo.CreateUser(ctx, User{
		Email:        email,
		PasswordHash: hash,
		Age:          req.Age,
		Gender:       req.Gender,
		Language:     lang,
		CreatedAt:    s.now(),
	})
}

// Login verifies credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.Repo.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", ErrIncorrectCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return "", ErrIncorrectCredentials
	}
	return s.Signer.Sign(u.Email)
}

// Authenticate resolves the account a verified token subject names.
func (s *Service) Authenticate(ctx context.Context, email string) (User, error) {
	if strings.TrimSpace(email) == "" {
		return User{}, ErrUserNotFound
	}
	return s.Repo.UserByEmail(ctx, email)
}

// Upload stores the document, extracts indicators and records a processed analysis.
func (s *Service) Upload(ctx context.Context, u User, fileName, contentType string, r io.Reader) (Analysis, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		name = "document"
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Analysis{}, fmt.Errorf("read upload: %w", err)
	}
	key := path.Join("uploads", strconv.FormatInt(u.ID, 10), uuid.NewString()+"_"+name)
	if _, err := s.Store.Save(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		return Analysis{}, fmt.Errorf("store upload: %w", err)
	}

	format := strings.TrimSpace(contentType)
	if format == "" {
		format = "file"
	}
	a, err := s.Repo.CreateAnalysis(ctx, Analysis{
		UserID:      u.ID,
		Date:        s.now(),
		Status:      StatusReceived,
		Source:      "web",
		Format:      format,
		DocumentRef: key,
	})
	if err != nil {
		return Analysis{}, err
	}

	text, err := extract.ExtractText(ctx, s.Store, key, contentType, name)
	if err != nil {
		telemetry.Debug("devserver.extract_skipped", map[string]any{
			"analysis_id": a.ID,
			"mime":        contentType,
			"error":       err.Error(),
		})
		text = ""
	}
	indicators := labreport.ParseIndicators(text)
	if len(indicators) == 0 && s.MockTests {
		indicators = labreport.MockIndicators()
	}

	a.OCRText = text
	a.Indicators = indicators
	a.Status = StatusProcessed
	if err := s.Repo.UpdateAnalysis(ctx, a); err != nil {
		return Analysis{}, err
	}
	telemetry.Info("devserver.analysis_processed", map[string]any{
		"analysis_id": a.ID,
		"user_id":     u.ID,
		"indicators":  len(indicators),
		"bytes":       len(data),
	})
	return a, nil
}

// Report builds the report of one of u's analyses.
func (s *Service) Report(ctx context.Context, u User, id int64) (labreport.Report, error) {
	a, err := s.Repo.AnalysisForUser(ctx, u.ID, id)
	if err != nil {
		return labreport.Report{}, err
	}
	return labreport.Build(a.ID, a.OCRText, a.Indicators), nil
}

// ReportPDF renders the report of one of u's analyses.
func (s *Service) ReportPDF(ctx context.Context, u User, id int64) ([]byte, error) {
	r, err := s.Report(ctx, u, id)
	if err != nil {
		return nil, err
	}
	return labreport.RenderPDF(r), nil
}

// History lists u's analyses.
func (s *Service) History(ctx context.Context, u User) ([]Analysis, error) {
	return s.Repo.AnalysesForUser(ctx, u.ID)
}
