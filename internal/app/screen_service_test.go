package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdfchat/internal/model"
	"pdfchat/internal/screenstore"
)

type askCall struct {
	DocumentID int
	Question   string
}

type fakeBackend struct {
	mu sync.Mutex

	docs      []model.Document
	listErr   error
	uploadErr error
	answer    string
	askErr    error

	listCalls int
	uploads   []string
	asks      []askCall
}

func (f *fakeBackend) ListDocuments(ctx context.Context) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Document{}, f.docs...), nil
}

func (f *fakeBackend) UploadDocument(ctx context.Context, filename string, file io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := io.ReadAll(file); err != nil {
		return err
	}
	f.uploads = append(f.uploads, filename)
	return f.uploadErr
}

func (f *fakeBackend) Ask(ctx context.Context, documentID int, question string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asks = append(f.asks, askCall{DocumentID: documentID, Question: question})
	return f.answer, f.askErr
}

// flakyStore fails the next failSaves saves.
type flakyStore struct {
	*screenstore.MemoryStore

	mu        sync.Mutex
	failSaves int
}

func (f *flakyStore) Save(ctx context.Context, viewerID string, screen *model.Screen) error {
	f.mu.Lock()
	if f.failSaves > 0 {
		f.failSaves--
		f.mu.Unlock()
		return errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.MemoryStore.Save(ctx, viewerID, screen)
}

func (f *flakyStore) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSaves = n
}

func demoDocs() []model.Document {
	return []model.Document{{ID: 1, Filename: "demo.pdf"}, {ID: 2, Filename: "manual.pdf"}}
}

func newService(backend *fakeBackend) *ScreenService {
	return NewScreenService(backend, screenstore.NewMemoryStore(time.Minute), nil, nil)
}

func TestMount_SelectsFirstDocument(t *testing.T) {
	backend := &fakeBackend{docs: demoDocs()}
	svc := newService(backend)

	screen, err := svc.Mount(context.Background(), "viewer")
	require.NoError(t, err)
	require.Equal(t, demoDocs(), screen.Documents)
	require.Equal(t, model.Document{ID: 1, Filename: "demo.pdf"}, *screen.Selected)
	require.Equal(t, 1, backend.listCalls)
}

func TestMount_InitialSelectionKept(t *testing.T) {
	backend := &fakeBackend{docs: demoDocs()}
	initial := &model.Document{ID: 2, Filename: "manual.pdf"}
	svc := NewScreenService(backend, screenstore.NewMemoryStore(time.Minute), initial, nil)

	screen, err := svc.Mount(context.Background(), "viewer")
	require.NoError(t, err)
	require.Equal(t, 2, screen.Selected.ID)
}

func TestMount_EmptyViewer(t *testing.T) {
	_, err := newService(&fakeBackend{}).Mount(context.Background(), " ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRefreshDocuments_FailureKeepsRegistry(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs()}
	svc := newService(backend)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	backend.listErr = errors.New("tunnel down")
	screen, err := svc.RefreshDocuments(ctx, "viewer")
	require.NoError(t, err)
	require.Equal(t, demoDocs(), screen.Documents)
	require.Equal(t, 1, screen.Selected.ID)
	require.Empty(t, screen.Notice)
}

func TestScreen_MountsOnFirstSight(t *testing.T) {
	backend := &fakeBackend{docs: demoDocs()}
	svc := newService(backend)

	screen, err := svc.Screen(context.Background(), "viewer")
	require.NoError(t, err)
	require.Len(t, screen.Documents, 2)

	_, err = svc.Screen(context.Background(), "viewer")
	require.NoError(t, err)
	require.Equal(t, 1, backend.listCalls)
}

func TestSelectDocument_ClearsTranscript(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), answer: "yes"}
	svc := newService(backend)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	pending, err := svc.SubmitQuestion(ctx, "viewer", "anything?")
	require.NoError(t, err)
	_, err = pending.Await(ctx)
	require.NoError(t, err)

	_, err = svc.ToggleDropdown(ctx, "viewer")
	require.NoError(t, err)
	screen, err := svc.SelectDocument(ctx, "viewer", 2)
	require.NoError(t, err)
	require.Empty(t, screen.Messages)
	require.False(t, screen.DropdownOpen)
	require.Equal(t, 2, screen.Selected.ID)
}

func TestSelectDocument_Unknown(t *testing.T) {
	ctx := context.Background()
	svc := newService(&fakeBackend{docs: demoDocs()})
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	_, err = svc.SelectDocument(ctx, "viewer", 42)
	require.ErrorIs(t, err, model.ErrDocumentNotFound)

	screen, err := svc.Screen(ctx, "viewer")
	require.NoError(t, err)
	require.Equal(t, 1, screen.Selected.ID)
}

func TestSubmitQuestion_RoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), answer: "$42"}
	svc := newService(backend)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)
	_, err = svc.SelectDocument(ctx, "viewer", 2)
	require.NoError(t, err)

	pending, err := svc.SubmitQuestion(ctx, "viewer", "What is the total?")
	require.NoError(t, err)
	require.NotNil(t, pending)

	during, err := svc.Screen(ctx, "viewer")
	require.NoError(t, err)
	require.True(t, during.Awaiting)
	require.False(t, during.CanSubmit())
	require.Len(t, during.Messages, 1)

	screen, err := pending.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, []askCall{{DocumentID: 2, Question: "What is the total?"}}, backend.asks)
	require.Equal(t, []model.Message{
		{Type: model.MessageTypeUser, Content: "What is the total?"},
		{Type: model.MessageTypeAI, Content: "$42"},
	}, screen.Messages)
	require.False(t, screen.Awaiting)
}

func TestSubmitQuestion_FailureAddsOnlyUserMessage(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), askErr: errors.New("503")}
	svc := newService(backend)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	pending, err := svc.SubmitQuestion(ctx, "viewer", "hello")
	require.NoError(t, err)
	screen, err := pending.Await(ctx)
	require.NoError(t, err)

	require.Equal(t, []model.Message{{Type: model.MessageTypeUser, Content: "hello"}}, screen.Messages)
	require.False(t, screen.Awaiting)
	require.Empty(t, screen.Notice)
}

func TestSubmitQuestion_IgnoredWithoutCall(t *testing.T) {
	ctx := context.Background()

	t.Run("blank question", func(t *testing.T) {
		backend := &fakeBackend{docs: demoDocs()}
		svc := newService(backend)
		_, err := svc.Mount(ctx, "viewer")
		require.NoError(t, err)

		for _, q := range []string{"", "   ", "\n\t"} {
			pending, err := svc.SubmitQuestion(ctx, "viewer", q)
			require.NoError(t, err)
			require.Nil(t, pending)
		}
		screen, err := svc.Screen(ctx, "viewer")
		require.NoError(t, err)
		require.Empty(t, screen.Messages)
		require.Empty(t, backend.asks)
	})

	t.Run("no document selected", func(t *testing.T) {
		backend := &fakeBackend{}
		svc := newService(backend)
		_, err := svc.Mount(ctx, "viewer")
		require.NoError(t, err)

		pending, err := svc.SubmitQuestion(ctx, "viewer", "What is the total?")
		require.NoError(t, err)
		require.Nil(t, pending)
		require.Empty(t, backend.asks)
	})
}

func TestSubmitQuestion_RejectsOverlap(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), answer: "a"}
	svc := newService(backend)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	first, err := svc.SubmitQuestion(ctx, "viewer", "one")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.SubmitQuestion(ctx, "viewer", "two")
	require.ErrorIs(t, err, ErrAnswerPending)
	require.Nil(t, second)

	screen, err := svc.Screen(ctx, "viewer")
	require.NoError(t, err)
	require.Equal(t, "two", screen.Question)
	require.Len(t, screen.Messages, 1)

	screen, err = first.Await(ctx)
	require.NoError(t, err)
	require.Len(t, backend.asks, 1)
	require.Len(t, screen.Messages, 2)
	require.Equal(t, "two", screen.Question)
	require.True(t, screen.CanSubmit())
}

func TestAwait_RemountDropsInFlightAnswer(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), answer: "answer to old question"}
	svc := newService(backend)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	old, err := svc.SubmitQuestion(ctx, "viewer", "old question")
	require.NoError(t, err)
	require.NotNil(t, old)

	_, err = svc.Mount(ctx, "viewer")
	require.NoError(t, err)
	current, err := svc.SubmitQuestion(ctx, "viewer", "new question")
	require.NoError(t, err)
	require.NotNil(t, current)

	screen, err := old.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Message{{Type: model.MessageTypeUser, Content: "new question"}}, screen.Messages)
	require.True(t, screen.Awaiting)

	_, err = svc.SubmitQuestion(ctx, "viewer", "third")
	require.ErrorIs(t, err, ErrAnswerPending)

	backend.mu.Lock()
	backend.answer = "answer to new question"
	backend.mu.Unlock()
	screen, err = current.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Message{
		{Type: model.MessageTypeUser, Content: "new question"},
		{Type: model.MessageTypeAI, Content: "answer to new question"},
	}, screen.Messages)
	require.False(t, screen.Awaiting)
}

func TestAwait_RetriesSettleSave(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), answer: "$42"}
	store := &flakyStore{MemoryStore: screenstore.NewMemoryStore(time.Minute)}
	svc := NewScreenService(backend, store, nil, nil)
	svc.settleBackoff = time.Millisecond
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	pending, err := svc.SubmitQuestion(ctx, "viewer", "What is the total?")
	require.NoError(t, err)

	store.failNext(settleAttempts - 1)
	screen, err := pending.Await(ctx)
	require.NoError(t, err)
	require.False(t, screen.Awaiting)
	require.Len(t, screen.Messages, 2)

	stored, err := svc.Screen(ctx, "viewer")
	require.NoError(t, err)
	require.False(t, stored.Awaiting)
}

func TestAwait_GivesUpAfterRepeatedSaveFailures(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), answer: "$42"}
	store := &flakyStore{MemoryStore: screenstore.NewMemoryStore(time.Minute)}
	svc := NewScreenService(backend, store, nil, nil)
	svc.settleBackoff = time.Millisecond
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	pending, err := svc.SubmitQuestion(ctx, "viewer", "What is the total?")
	require.NoError(t, err)

	store.failNext(settleAttempts)
	screen, err := pending.Await(ctx)
	require.Error(t, err)
	require.Nil(t, screen)
}

func TestClose_ForgetsScreen(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs()}
	store := screenstore.NewMemoryStore(time.Minute)
	svc := NewScreenService(backend, store, nil, nil)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)
	_, err = svc.SelectDocument(ctx, "viewer", 2)
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx, "viewer"))
	_, found, err := store.Get(ctx, "viewer")
	require.NoError(t, err)
	require.False(t, found)
}

func TestAwait_DropsAnswerAfterSelectionChange(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), answer: "stale"}
	svc := newService(backend)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	pending, err := svc.SubmitQuestion(ctx, "viewer", "about demo")
	require.NoError(t, err)
	_, err = svc.SelectDocument(ctx, "viewer", 2)
	require.NoError(t, err)

	screen, err := pending.Await(ctx)
	require.NoError(t, err)
	require.Empty(t, screen.Messages)
	require.False(t, screen.Awaiting)
}

func TestUpload_SuccessRefreshesRegistry(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs()}
	svc := newService(backend)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	backend.docs = append(backend.docs, model.Document{ID: 3, Filename: "new.pdf"})
	screen, err := svc.Upload(ctx, "viewer", "new.pdf", strings.NewReader("pdf"))
	require.NoError(t, err)
	require.Equal(t, []string{"new.pdf"}, backend.uploads)
	require.Equal(t, 2, backend.listCalls)
	require.Len(t, screen.Documents, 3)
	require.Equal(t, NoticeUploadSucceeded, screen.Notice)

	_, notice, err := svc.TakeNotice(ctx, "viewer")
	require.NoError(t, err)
	require.Equal(t, NoticeUploadSucceeded, notice)
	_, notice, err = svc.TakeNotice(ctx, "viewer")
	require.NoError(t, err)
	require.Empty(t, notice)
}

func TestUpload_FailureDoesNotRefresh(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), uploadErr: errors.New("rejected")}
	svc := newService(backend)
	_, err := svc.Mount(ctx, "viewer")
	require.NoError(t, err)

	screen, err := svc.Upload(ctx, "viewer", "bad.pdf", strings.NewReader("pdf"))
	require.NoError(t, err)
	require.Equal(t, 1, backend.listCalls)
	require.Equal(t, NoticeUploadFailed, screen.Notice)
}

func TestViewersAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{docs: demoDocs(), answer: "x"}
	svc := newService(backend)

	_, err := svc.Mount(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.Mount(ctx, "bob")
	require.NoError(t, err)
	_, err = svc.SelectDocument(ctx, "bob", 2)
	require.NoError(t, err)

	pending, err := svc.SubmitQuestion(ctx, "alice", "hi")
	require.NoError(t, err)
	_, err = pending.Await(ctx)
	require.NoError(t, err)

	alice, err := svc.Screen(ctx, "alice")
	require.NoError(t, err)
	bob, err := svc.Screen(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, alice.Messages, 2)
	require.Empty(t, bob.Messages)
	require.Equal(t, 1, alice.Selected.ID)
	require.Equal(t, 2, bob.Selected.ID)
}
