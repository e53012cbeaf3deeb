package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pdfchat/internal/model"
)

const settleAttempts = 3

const (
	NoticeUploadSucceeded = "File uploaded successfully!"
	NoticeUploadFailed    = "Failed to upload file."
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrAnswerPending = errors.New("an answer is still pending")
)

// Backend is the remote question-answering service.
type Backend interface {
	ListDocuments(ctx context.Context) ([]model.Document, error)
	UploadDocument(ctx context.Context, filename string, file io.Reader) error
	Ask(ctx context.Context, documentID int, question string) (string, error)
}

type ScreenStore interface {
	Get(ctx context.Context, viewerID string) (*model.Screen, bool, error)
	Save(ctx context.Context, viewerID string, screen *model.Screen) error
	Delete(ctx context.Context, viewerID string) error
}

// ScreenService drives the chat screen of every viewer. Each event is a
// locked load, apply, save cycle; backend calls run outside the lock.
type ScreenService struct {
	backend Backend
	store   ScreenStore
	initial *model.Document
	log     *zap.Logger

	settleBackoff time.Duration
	locks         sync.Map
}

// PendingAnswer is a question that has been recorded on the screen and
// still needs its backend round trip.
type PendingAnswer struct {
	service  *ScreenService
	viewerID string
	ticket   model.QuestionTicket
}

func NewScreenService(backend Backend, store ScreenStore, initial *model.Document, log *zap.Logger) *ScreenService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScreenService{
		backend: backend,
		store:   store,
		initial: initial,
		log:     log,

		settleBackoff: 100 * time.Millisecond,
	}
}

// Mount starts a fresh screen for the viewer and loads the registry.
func (s *ScreenService) Mount(ctx context.Context, viewerID string) (*model.Screen, error) {
	if strings.TrimSpace(viewerID) == "" {
		return nil, ErrInvalidInput
	}
	err := s.withViewer(viewerID, func() error {
		return s.store.Save(ctx, viewerID, model.NewScreen(s.initial))
	})
	if err != nil {
		return nil, err
	}
	return s.RefreshDocuments(ctx, viewerID)
}

// Screen returns the viewer's screen, mounting one on first sight.
func (s *ScreenService) Screen(ctx context.Context, viewerID string) (*model.Screen, error) {
	if strings.TrimSpace(viewerID) == "" {
		return nil, ErrInvalidInput
	}
	screen, found, err := s.store.Get(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if !found {
		return s.Mount(ctx, viewerID)
	}
	return screen, nil
}

// Close forgets the viewer's screen. Answers still in flight for it are
// dropped when they land.
func (s *ScreenService) Close(ctx context.Context, viewerID string) error {
	err := s.withViewer(viewerID, func() error {
		return s.store.Delete(ctx, viewerID)
	})
	s.locks.Delete(viewerID)
	return err
}

// TakeNotice returns the viewer's screen and consumes its pending notice.
func (s *ScreenService) TakeNotice(ctx context.Context, viewerID string) (*model.Screen, string, error) {
	if _, err := s.Screen(ctx, viewerID); err != nil {
		return nil, "", err
	}
	var notice string
	screen, err := s.update(ctx, viewerID, func(screen *model.Screen) error {
		notice = screen.PopNotice()
		return nil
	})
	return screen, notice, err
}

// RefreshDocuments re-reads the registry. A failed listing is logged and
// leaves the screen unchanged.
func (s *ScreenService) RefreshDocuments(ctx context.Context, viewerID string) (*model.Screen, error) {
	docs, err := s.backend.ListDocuments(ctx)
	if err != nil {
		s.log.Error("fetch documents failed",
			zap.String("module", "registry"),
			zap.String("viewer_id", viewerID),
			zap.Error(err),
		)
		return s.Screen(ctx, viewerID)
	}
	s.log.Debug("documents fetched",
		zap.String("module", "registry"),
		zap.String("viewer_id", viewerID),
		zap.Int("count", len(docs)),
	)
	return s.update(ctx, viewerID, func(screen *model.Screen) error {
		screen.ApplyRegistry(docs)
		return nil
	})
}

// Upload forwards the file to the backend and leaves a notice describing
// the outcome. The registry is refreshed only after a successful upload.
func (s *ScreenService) Upload(ctx context.Context, viewerID, filename string, file io.Reader) (*model.Screen, error) {
	if _, err := s.Screen(ctx, viewerID); err != nil {
		return nil, err
	}

	if err := s.backend.UploadDocument(ctx, filename, file); err != nil {
		s.log.Error("upload document failed",
			zap.String("module", "upload"),
			zap.String("viewer_id", viewerID),
			zap.String("filename", filename),
			zap.Error(err),
		)
		return s.update(ctx, viewerID, func(screen *model.Screen) error {
			screen.PushNotice(NoticeUploadFailed)
			return nil
		})
	}

	s.log.Info("document uploaded",
		zap.String("module", "upload"),
		zap.String("viewer_id", viewerID),
		zap.String("filename", filename),
	)
	if _, err := s.update(ctx, viewerID, func(screen *model.Screen) error {
		screen.PushNotice(NoticeUploadSucceeded)
		return nil
	}); err != nil {
		return nil, err
	}
	return s.RefreshDocuments(ctx, viewerID)
}

func (s *ScreenService) SelectDocument(ctx context.Context, viewerID string, documentID int) (*model.Screen, error) {
	if _, err := s.Screen(ctx, viewerID); err != nil {
		return nil, err
	}
	return s.update(ctx, viewerID, func(screen *model.Screen) error {
		return screen.Select(documentID)
	})
}

func (s *ScreenService) ToggleDropdown(ctx context.Context, viewerID string) (*model.Screen, error) {
	if _, err := s.Screen(ctx, viewerID); err != nil {
		return nil, err
	}
	return s.update(ctx, viewerID, func(screen *model.Screen) error {
		screen.ToggleDropdown()
		return nil
	})
}

// SubmitQuestion records the question on the screen. It returns a nil
// PendingAnswer, without touching the backend, when the text is blank or
// no document is selected. While another answer is outstanding the text is
// kept as the draft and ErrAnswerPending is returned.
func (s *ScreenService) SubmitQuestion(ctx context.Context, viewerID, question string) (*PendingAnswer, error) {
	if _, err := s.Screen(ctx, viewerID); err != nil {
		return nil, err
	}

	var (
		ticket   model.QuestionTicket
		accepted bool
		busy     bool
	)
	_, err := s.update(ctx, viewerID, func(screen *model.Screen) error {
		if screen.Awaiting && strings.TrimSpace(question) != "" && screen.Selected != nil {
			screen.SetQuestion(question)
			busy = true
			return nil
		}
		ticket, accepted = screen.BeginQuestion(question)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrAnswerPending
	}
	if !accepted {
		return nil, nil
	}
	return &PendingAnswer{service: s, viewerID: viewerID, ticket: ticket}, nil
}

// Await performs the question round trip. A failed call is logged and adds
// nothing to the transcript. The awaiting flag is cleared either way, unless
// a newer question or a remount has superseded this one. Saving the settled
// screen is retried a few times before giving up.
func (p *PendingAnswer) Await(ctx context.Context) (*model.Screen, error) {
	s := p.service
	answer, askErr := s.backend.Ask(ctx, p.ticket.DocumentID, p.ticket.Question)
	if askErr != nil {
		s.log.Error("process question failed",
			zap.String("module", "conversation"),
			zap.String("viewer_id", p.viewerID),
			zap.Int("document_id", p.ticket.DocumentID),
			zap.Error(askErr),
		)
	}

	settle := func(screen *model.Screen) error {
		if askErr == nil && !screen.ResolveAnswer(p.ticket, answer) {
			s.log.Warn("answer dropped for superseded question",
				zap.String("module", "conversation"),
				zap.String("viewer_id", p.viewerID),
				zap.String("ticket", p.ticket.ID),
				zap.Int("document_id", p.ticket.DocumentID),
			)
		}
		screen.Settle(p.ticket)
		return nil
	}

	var lastErr error
retry:
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		screen, err := s.update(ctx, p.viewerID, settle)
		if err == nil {
			return screen, nil
		}
		lastErr = err
		s.log.Warn("settle answer failed",
			zap.String("module", "conversation"),
			zap.String("viewer_id", p.viewerID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == settleAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break retry
		case <-time.After(time.Duration(attempt) * s.settleBackoff):
		}
	}

	s.log.Error("screen left awaiting an answer",
		zap.String("module", "conversation"),
		zap.String("viewer_id", p.viewerID),
		zap.String("ticket", p.ticket.ID),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

// update applies fn to the stored screen under the viewer's lock. The screen
// is only saved when fn succeeds.
func (s *ScreenService) update(ctx context.Context, viewerID string, fn func(*model.Screen) error) (*model.Screen, error) {
	var out *model.Screen
	err := s.withViewer(viewerID, func() error {
		screen, found, err := s.store.Get(ctx, viewerID)
		if err != nil {
			return err
		}
		if !found {
			screen = model.NewScreen(s.initial)
		}
		if err := fn(screen); err != nil {
			return err
		}
		if err := s.store.Save(ctx, viewerID, screen); err != nil {
			return fmt.Errorf("save screen failed: %w", err)
		}
		out = screen.Clone()
		return nil
	})
	return out, err
}

func (s *ScreenService) withViewer(viewerID string, fn func() error) error {
	v, _ := s.locks.LoadOrStore(viewerID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
