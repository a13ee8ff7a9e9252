package upload

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/logger"
)

// FormField is the multipart field that carries files.
const FormField = "files"

type Limits struct {
	MaxFileSize int64
	MaxFiles    int
	AllowedMIME []string
}

type Service struct {
	storage Storage
	repo    Repository
	limits  Limits
}

func NewService(storage Storage, repo Repository, limits Limits) *Service {
	return &Service{storage: storage, repo: repo, limits: limits}
}

// SaveForm validates and stores every file of the multipart form.
func (s *Service) SaveForm(ctx context.Context, ownerID string, form *multipart.Form) ([]File, error) {
	if form == nil {
		return nil, ErrNoFiles
	}
	for field := range form.File {
		if field != FormField {
			return nil, unexpectedField(field)
		}
	}
	headers := form.File[FormField]
	if len(headers) == 0 {
		return nil, ErrNoFiles
	}
	if len(headers) > s.limits.MaxFiles {
		return nil, tooMany(s.limits.MaxFiles)
	}
	for _, h := range headers {
		if h.Size > s.limits.MaxFileSize {
			return nil, tooLarge(s.limits.MaxFileSize)
		}
	}

	var saved []File
	for _, h := range headers {
		f, err := s.save(ctx, ownerID, h)
		if err != nil {
			s.rollback(ctx, saved)
			return nil, err
		}
		saved = append(saved, *f)
	}
	logger.FromContext(ctx).Info("files uploaded",
		zap.String("owner_id", ownerID), zap.Int("count", len(saved)), zap.String("storage", s.storage.Name()))
	return saved, nil
}

func (s *Service) save(ctx context.Context, ownerID string, h *multipart.FileHeader) (*File, error) {
	src, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, s.limits.MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.limits.MaxFileSize {
		return nil, tooLarge(s.limits.MaxFileSize)
	}

	mt := mimetype.Detect(data)
	if !s.allowed(mt) {
		return nil, unsupported(mt.String())
	}

	key := uuid.NewString() + mt.Extension()
	contentType := strings.SplitN(mt.String(), ";", 2)[0]
	url, err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, err
	}
	f := &File{
		Key:          key,
		OriginalName: filepath.Base(h.Filename),
		ContentType:  contentType,
		Size:         int64(len(data)),
		URL:          url,
		OwnerID:      ownerID,
	}
	if err := s.repo.Create(ctx, f); err != nil {
		_ = s.storage.Delete(ctx, key)
		return nil, err
	}
	return f, nil
}

func (s *Service) allowed(mt *mimetype.MIME) bool {
	for _, a := range s.limits.AllowedMIME {
		if mt.Is(a) {
			return true
		}
	}
	return false
}

func (s *Service) rollback(ctx context.Context, files []File) {
	for _, f := range files {
		_ = s.storage.Delete(ctx, f.Key)
		_ = s.repo.Delete(ctx, f.Key)
	}
}

// List returns the caller's uploads; admins see all.
func (s *Service) List(ctx context.Context, p *auth.Principal, page, limit int) ([]File, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	owner := p.UserID
	if p.Role == auth.RoleAdmin {
		owner = ""
	}
	return s.repo.List(ctx, owner, page, limit)
}

func (s *Service) Delete(ctx context.Context, p *auth.Principal, key string) error {
	f, err := s.repo.Get(ctx, key)
	if err != nil {
		return err
	}
	if f.OwnerID != p.UserID && p.Role != auth.RoleAdmin {
		return ErrForbidden
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		return err
	}
	return s.repo.Delete(ctx, key)
}
