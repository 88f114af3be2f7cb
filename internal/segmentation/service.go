package segmentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/heimdex/heimdex-timeline/internal/timeline"
)

var (
	ErrNoSession = errors.New("no session loaded")
	ErrNotFound  = errors.New("segmentation not found")
)

// Loader receives a restored segmentation.
type Loader interface {
	LoadVideo(v timeline.VideoLoad)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Save persists the cut layout of the loaded session, keeping its first save time.
func (s *Service) Save(ctx context.Context, st timeline.State) (*Segmentation, error) {
	if st.Session.ID == "" {
		return nil, ErrNoSession
	}

	seg := FromState(st)
	now := s.now().UTC().Truncate(time.Second)
	seg.CreatedAt = now
	seg.UpdatedAt = now

	existing, err := s.repo.GetSegmentation(ctx, seg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load existing segmentation: %w", err)
	}
	if existing != nil && !existing.CreatedAt.IsZero() {
		seg.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.SaveSegmentation(ctx, seg); err != nil {
		return nil, fmt.Errorf("save segmentation: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("segmentation saved",
			"session_id", seg.SessionID,
			"cuts", len(seg.CutPoints),
			"manual", len(seg.ManualCutPoints),
			"hidden", len(seg.HiddenSegments),
		)
	}
	return seg, nil
}

func (s *Service) Get(ctx context.Context, sessionID string) (*Segmentation, error) {
	seg, err := s.repo.GetSegmentation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		return nil, ErrNotFound
	}
	return seg, nil
}

// Restore loads a persisted segmentation into the editor.
func (s *Service) Restore(ctx context.Context, sessionID string, loader Loader) (*Segmentation, error) {
	seg, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	loader.LoadVideo(seg.VideoLoad())

	if s.logger != nil {
		s.logger.Info("segmentation restored", "session_id", sessionID, "cuts", len(seg.CutPoints))
	}
	return seg, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Summary, error) {
	return s.repo.ListSegmentations(ctx, limit)
}

func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.repo.DeleteSegmentation(ctx, sessionID)
}
