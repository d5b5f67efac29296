package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"celebdetect/internal/domain"
	"celebdetect/internal/repository"
)

const (
	imagesPrefix  = "images/"
	recordsPrefix = "records/"
)

// ErrDetectionNotFound is returned by Get for an unknown ID.
var ErrDetectionNotFound = errors.New("detection not found")

// ArchiveService keeps identified uploads in object storage.
type ArchiveService interface {
	Save(ctx context.Context, info, name string, face domain.FaceRegion, image []byte) (*domain.Detection, error)
	List(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id string) (*domain.Detection, error)
}

type archiveService struct {
	repo repository.S3Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewArchiveService(repo repository.S3Repository, log *zap.Logger) ArchiveService {
	return &archiveService{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (s *archiveService) Save(ctx context.Context, info, name string, face domain.FaceRegion, image []byte) (*domain.Detection, error) {
	id := uuid.New().String()
	imageKey := imagesPrefix + id + ".jpg"

	if err := s.repo.UploadFile(ctx, imageKey, bytes.NewReader(image), int64(len(image)), "image/jpeg"); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	det := &domain.Detection{
		ID:        id,
		Name:      name,
		Info:      info,
		Face:      face,
		ImageKey:  imageKey,
		CreatedAt: s.now().UTC(),
	}

	record, err := json.Marshal(det)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detection: %w", err)
	}
	if err := s.repo.UploadFile(ctx, recordKey(id), bytes.NewReader(record), int64(len(record)), "application/json"); err != nil {
		return nil, fmt.Errorf("failed to store detection record: %w", err)
	}

	s.log.Info("Detection archived",
		zap.String("id", id),
		zap.String("name", name),
		zap.Int("image_size", len(image)))

	return det, nil
}

func (s *archiveService) List(ctx context.Context) ([]string, error) {
	keys, err := s.repo.ListFiles(ctx, recordsPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list detections: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if path.Ext(key) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(path.Base(key), ".json"))
	}
	sort.Strings(ids)

	return ids, nil
}

func (s *archiveService) Get(ctx context.Context, id string) (*domain.Detection, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%q: %w", id, ErrDetectionNotFound)
	}

	body, err := s.repo.DownloadFile(ctx, recordKey(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%q: %w", id, ErrDetectionNotFound)
		}
		return nil, fmt.Errorf("failed to load detection: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read detection: %w", err)
	}

	var det domain.Detection
	if err := json.Unmarshal(data, &det); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detection: %w", err)
	}

	return &det, nil
}

func recordKey(id string) string {
	return recordsPrefix + id + ".json"
}
