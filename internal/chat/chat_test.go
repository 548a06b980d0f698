package chat

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorllm/tutorllm/internal/api"
	"github.com/tutorllm/tutorllm/internal/identity"
	"github.com/tutorllm/tutorllm/internal/log"
	"github.com/tutorllm/tutorllm/internal/transcript"
)

// fakeBackend is a controllable Backend for engine tests.
type fakeBackend struct {
	mu sync.Mutex

	queryCalls  int
	createCalls int
	listCalls   int
	loadCalls   int
	ingestCalls int

	lastQuery    api.QueryRequest
	createdTitle string

	queryChunks []string
	queryErr    error // yielded after queryChunks (before, when errFirst)
	errFirst    bool

	// When non-nil, Query signals queryStarted after the first chunk and
	// blocks until queryRelease is closed.
	queryStarted chan struct{}
	queryRelease chan struct{}

	createID  string
	createErr error
	// When non-nil, CreateChat signals createStarted and blocks until
	// createRelease is closed.
	createStarted chan struct{}
	createRelease chan struct{}

	chats   []api.ChatSummary
	listErr error

	detail  api.ChatDetail
	loadErr error

	ingestErr error
}

func (f *fakeBackend) Query(ctx context.Context, req api.QueryRequest) iter.Seq2[string, error] {
	f.mu.Lock()
	f.queryCalls++
	f.lastQuery = req
	chunks := f.queryChunks
	qerr := f.queryErr
	errFirst := f.errFirst
	started, release := f.queryStarted, f.queryRelease
	f.mu.Unlock()

	return func(yield func(string, error) bool) {
		if errFirst {
			yield("", qerr)
			return
		}
		for i, ch := range chunks {
			if !yield(ch, nil) {
				return
			}
			if i == 0 && started != nil {
				close(started)
				f.mu.Lock()
				f.queryStarted = nil // only the first call blocks
				f.mu.Unlock()
				select {
				case <-release:
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				}
			}
		}
		if qerr != nil {
			yield("", qerr)
		}
	}
}

func (f *fakeBackend) CreateChat(ctx context.Context, userEmail, title string) (string, error) {
	f.mu.Lock()
	f.createCalls++
	f.createdTitle = title
	started, release := f.createStarted, f.createRelease
	id, err := f.createID, f.createErr
	f.mu.Unlock()

	if started != nil {
		close(started)
		f.mu.Lock()
		f.createStarted = nil // only the first call blocks
		f.mu.Unlock()
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if id == "" {
		id = "chat-1"
	}
	return id, nil
}

func (f *fakeBackend) ListChats(ctx context.Context, userEmail string) ([]api.ChatSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.chats, nil
}

func (f *fakeBackend) LoadChat(ctx context.Context, chatID, userEmail string) (api.ChatDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	if f.loadErr != nil {
		return api.ChatDetail{}, f.loadErr
	}
	return f.detail, nil
}

func (f *fakeBackend) Ingest(ctx context.Context, filename string, content io.Reader, userEmail, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingestCalls++
	return f.ingestErr
}

func (f *fakeBackend) counts() (query, create, list, load, ingest int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryCalls, f.createCalls, f.listCalls, f.loadCalls, f.ingestCalls
}

var testProfile = identity.Profile{Name: "Ada", Email: "ada@example.com"}

func newTestEngine(t *testing.T, backend *fakeBackend, provider identity.Provider) *Engine {
	t.Helper()
	e, err := New(Config{
		Backend:  backend,
		Identity: provider,
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)
	return e
}

// drainEvents consumes an event channel until closure and returns the events.
func drainEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out draining events")
		}
	}
}

func lastMessage(t *testing.T, e *Engine) transcript.Message {
	t.Helper()
	msgs := e.Transcript()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Identity: identity.Anonymous{}, Logger: log.NewNop()})
	assert.Error(t, err, "missing Backend")

	_, err = New(Config{Backend: &fakeBackend{}, Logger: log.NewNop()})
	assert.Error(t, err, "missing Identity")

	_, err = New(Config{Backend: &fakeBackend{}, Identity: identity.Anonymous{}})
	assert.Error(t, err, "missing Logger")
}

func TestSend_StreamsAndSettles(t *testing.T) {
	backend := &fakeBackend{queryChunks: []string{"Photosynthesis ", "converts ", "light."}}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	events, err := e.Send(context.Background(), "what is photosynthesis")
	require.NoError(t, err)
	drained := drainEvents(t, events)

	var chunks []string
	var done bool
	for _, ev := range drained {
		if ev.Chunk != "" {
			chunks = append(chunks, ev.Chunk)
		}
		if ev.Done {
			done = true
		}
	}
	assert.True(t, done, "expected a Done event")
	assert.Equal(t, []string{"Photosynthesis ", "converts ", "light."}, chunks)

	msgs := e.Transcript()
	require.Len(t, msgs, 3) // greeting, user, assistant
	assert.Equal(t, transcript.RoleUser, msgs[1].Role)
	assert.Equal(t, "what is photosynthesis", msgs[1].Text)
	assert.Equal(t, transcript.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "Photosynthesis converts light.", msgs[2].Text)
	assert.Equal(t, transcript.PhaseSettled, msgs[2].Phase)
}

func TestSend_EmptyQuestionRejected(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{}, identity.Anonymous{})

	_, err := e.Send(context.Background(), "   \n ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Len(t, e.Transcript(), 1, "transcript must stay untouched")
}

func TestSend_AnonymousSkipsPersistence(t *testing.T) {
	backend := &fakeBackend{queryChunks: []string{"answer"}}
	e := newTestEngine(t, backend, identity.Anonymous{})

	events, err := e.Send(context.Background(), "a question")
	require.NoError(t, err)
	drainEvents(t, events)

	last := lastMessage(t, e)
	assert.Equal(t, transcript.PhaseSettled, last.Phase)
	assert.Equal(t, "answer", last.Text)

	query, create, list, _, _ := backend.counts()
	assert.Equal(t, 1, query)
	assert.Zero(t, create, "anonymous send must not create a chat")
	assert.Zero(t, list, "anonymous send must not list chats")

	backend.mu.Lock()
	lastQuery := backend.lastQuery
	backend.mu.Unlock()
	assert.Empty(t, lastQuery.UserEmail)
	assert.Empty(t, lastQuery.ChatID)
	assert.Equal(t, SessionNone, e.Session().State)
}

func TestSend_FirstSendCreatesChatWithTruncatedTitle(t *testing.T) {
	backend := &fakeBackend{queryChunks: []string{"ok"}, createID: "chat-99"}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	question := "Explain photosynthesis in simple terms please"
	events, err := e.Send(context.Background(), question)
	require.NoError(t, err)
	drainEvents(t, events)

	backend.mu.Lock()
	title := backend.createdTitle
	lastQuery := backend.lastQuery
	backend.mu.Unlock()

	assert.Equal(t, "Explain photosynthesis in simp...", title)
	assert.Equal(t, "chat-99", lastQuery.ChatID, "query must carry the freshly assigned chat id")
	assert.Equal(t, testProfile.Email, lastQuery.UserEmail)

	sess := e.Session()
	assert.Equal(t, SessionAssigned, sess.State)
	assert.Equal(t, "chat-99", sess.ID)
	assert.Equal(t, title, sess.Title)
}

func TestEnsureSession_IdempotentAcrossSends(t *testing.T) {
	backend := &fakeBackend{queryChunks: []string{"ok"}}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	for _, q := range []string{"first question", "second question"} {
		events, err := e.Send(context.Background(), q)
		require.NoError(t, err)
		drainEvents(t, events)
	}

	_, create, _, _, _ := backend.counts()
	assert.Equal(t, 1, create, "one session lifetime must create at most one chat")
	assert.Equal(t, "chat-1", e.Session().ID)
}

func TestEnsureSession_JoinsInFlightCreation(t *testing.T) {
	backend := &fakeBackend{
		createID:      "chat-sf",
		createStarted: make(chan struct{}),
		createRelease: make(chan struct{}),
	}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	results := make(chan string, 2)
	go func() {
		results <- e.ensureSession(context.Background(), "the very first message", testProfile)
	}()
	<-backend.createStarted

	// Second caller arrives while creation is outstanding: it must join
	// the in-flight result, not issue a duplicate request.
	go func() {
		results <- e.ensureSession(context.Background(), "another message", testProfile)
	}()

	time.Sleep(20 * time.Millisecond) // give the joiner time to block
	close(backend.createRelease)

	id1, id2 := <-results, <-results
	assert.Equal(t, "chat-sf", id1)
	assert.Equal(t, "chat-sf", id2)

	_, create, _, _, _ := backend.counts()
	assert.Equal(t, 1, create, "joiner must not issue a second creation call")
}

func TestSend_CreationFailureDegradesToEphemeral(t *testing.T) {
	backend := &fakeBackend{queryChunks: []string{"still answered"}, createErr: errors.New("db down")}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	events, err := e.Send(context.Background(), "a question")
	require.NoError(t, err)
	drainEvents(t, events)

	last := lastMessage(t, e)
	assert.Equal(t, transcript.PhaseSettled, last.Phase)
	assert.Equal(t, "still answered", last.Text)

	backend.mu.Lock()
	lastQuery := backend.lastQuery
	backend.mu.Unlock()
	assert.Empty(t, lastQuery.ChatID, "failed creation must not leak a chat id")
	assert.Equal(t, SessionNone, e.Session().State, "session stays ephemeral")
}

func TestSend_RejectsConcurrentSend(t *testing.T) {
	backend := &fakeBackend{
		queryChunks:  []string{"part one", "rest"},
		queryStarted: make(chan struct{}),
		queryRelease: make(chan struct{}),
	}
	e := newTestEngine(t, backend, identity.Anonymous{})

	events, err := e.Send(context.Background(), "slow question")
	require.NoError(t, err)
	<-backend.queryStarted

	_, err = e.Send(context.Background(), "impatient question")
	assert.ErrorIs(t, err, ErrStreamInFlight)

	close(backend.queryRelease)
	drainEvents(t, events)

	// The guard is released after completion.
	events, err = e.Send(context.Background(), "next question")
	require.NoError(t, err)
	drainEvents(t, events)
}

func TestSend_FailureBeforeIncrements(t *testing.T) {
	backend := &fakeBackend{errFirst: true, queryErr: api.ErrUnreachable}
	e := newTestEngine(t, backend, identity.Anonymous{})

	events, err := e.Send(context.Background(), "a question")
	require.NoError(t, err)
	drained := drainEvents(t, events)

	var sawErr bool
	for _, ev := range drained {
		if ev.Err != nil {
			sawErr = true
		}
		assert.Empty(t, ev.Chunk)
	}
	assert.True(t, sawErr, "expected an Err event")

	last := lastMessage(t, e)
	assert.Equal(t, "Sorry, I can't reach the server right now.", last.Text)
	assert.Equal(t, transcript.PhaseFailed, last.Phase)
}

func TestSend_FailureAfterIncrementsPreservesPartialText(t *testing.T) {
	backend := &fakeBackend{queryChunks: []string{"partial ans"}, queryErr: api.ErrUnreachable}
	e := newTestEngine(t, backend, identity.Anonymous{})

	events, err := e.Send(context.Background(), "a question")
	require.NoError(t, err)
	drainEvents(t, events)

	last := lastMessage(t, e)
	assert.Equal(t, "partial ans", last.Text, "partial content must not be rolled back")
	assert.Equal(t, transcript.PhaseFailed, last.Phase)
}

func TestSend_TriggersHistoryRefresh(t *testing.T) {
	backend := &fakeBackend{
		queryChunks: []string{"ok"},
		chats:       []api.ChatSummary{{ID: "chat-1", Title: "T"}},
	}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	events, err := e.Send(context.Background(), "a question")
	require.NoError(t, err)
	drainEvents(t, events)

	require.Eventually(t, func() bool {
		return len(e.History()) == 1
	}, 2*time.Second, 10*time.Millisecond, "history should refresh after settling")
}

func TestLoadChat_ReplacesTranscriptAndMapsRoles(t *testing.T) {
	backend := &fakeBackend{detail: api.ChatDetail{
		Title: "Biology basics",
		Messages: []api.StoredMessage{
			{Role: "user", Content: "what is a cell"},
			{Role: "assistant", Content: "the unit of life"},
			{Role: "model", Content: "any non-user role is assistant"},
		},
	}}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	require.NoError(t, e.LoadChat(context.Background(), "chat-7"))

	msgs := e.Transcript()
	require.Len(t, msgs, 3, "load replaces wholesale, greeting included")
	assert.Equal(t, transcript.RoleUser, msgs[0].Role)
	assert.Equal(t, transcript.RoleAssistant, msgs[1].Role)
	assert.Equal(t, transcript.RoleAssistant, msgs[2].Role, "unknown role maps to assistant")

	sess := e.Session()
	assert.Equal(t, SessionAssigned, sess.State)
	assert.Equal(t, "chat-7", sess.ID)
	assert.Equal(t, "Biology basics", sess.Title)
}

func TestLoadChat_CurrentChatIsNoop(t *testing.T) {
	backend := &fakeBackend{detail: api.ChatDetail{Title: "T"}}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	require.NoError(t, e.LoadChat(context.Background(), "chat-7"))
	before := e.Transcript()

	require.NoError(t, e.LoadChat(context.Background(), "chat-7"))

	_, _, _, load, _ := backend.counts()
	assert.Equal(t, 1, load, "re-loading the open chat must not hit the network")
	assert.Equal(t, before, e.Transcript(), "transcript unchanged")
}

func TestLoadChat_RequiresIdentity(t *testing.T) {
	e := newTestEngine(t, &fakeBackend{}, identity.Anonymous{})
	assert.ErrorIs(t, e.LoadChat(context.Background(), "chat-1"), ErrNoIdentity)
}

func TestLoadChat_OrphansActiveStream(t *testing.T) {
	backend := &fakeBackend{
		queryChunks:  []string{"from chat A, part 1 ", "from chat A, part 2"},
		queryStarted: make(chan struct{}),
		queryRelease: make(chan struct{}),
		detail: api.ChatDetail{
			Title:    "Chat B",
			Messages: []api.StoredMessage{{Role: "user", Content: "b question"}},
		},
	}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	events, err := e.Send(context.Background(), "a question")
	require.NoError(t, err)
	<-backend.queryStarted

	// Switch to chat B while A's stream is mid-flight.
	require.NoError(t, e.LoadChat(context.Background(), "chat-b"))
	close(backend.queryRelease)
	drainEvents(t, events)

	for _, m := range e.Transcript() {
		assert.NotContains(t, m.Text, "from chat A", "orphaned increments must not reach B's transcript")
	}
}

func TestNewChat_ResetsSessionAndTranscript(t *testing.T) {
	backend := &fakeBackend{queryChunks: []string{"ok"}}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	events, err := e.Send(context.Background(), "a question")
	require.NoError(t, err)
	drainEvents(t, events)
	require.Equal(t, SessionAssigned, e.Session().State)

	e.NewChat()

	assert.Equal(t, SessionNone, e.Session().State)
	msgs := e.Transcript()
	require.Len(t, msgs, 1)
	assert.Equal(t, Greeting, msgs[0].Text)

	// A send after reset creates a fresh chat identity.
	events, err = e.Send(context.Background(), "new session question")
	require.NoError(t, err)
	drainEvents(t, events)

	_, create, _, _, _ := backend.counts()
	assert.Equal(t, 2, create, "new chat starts a new session lifetime")
}

func TestUpload_Success(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	events, err := e.Upload(context.Background(), "notes.pdf", strings.NewReader("content"))
	require.NoError(t, err)
	drained := drainEvents(t, events)
	require.Len(t, drained, 1)
	assert.True(t, drained[0].Done)

	msgs := e.Transcript()
	require.Len(t, msgs, 3) // greeting, upload entry, confirmation
	assert.Equal(t, "Uploaded notes.pdf", msgs[1].Text)
	assert.Equal(t, transcript.PhaseUploaded, msgs[1].Phase)
	assert.Equal(t, transcript.RoleUser, msgs[1].Role)
	assert.Equal(t, transcript.RoleAssistant, msgs[2].Role)
	assert.Equal(t, uploadedReply, msgs[2].Text)
}

func TestUpload_FailureAltersOnlyItsOwnEntry(t *testing.T) {
	backend := &fakeBackend{queryChunks: []string{"an earlier answer"}}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	// Establish prior transcript content that must stay untouched.
	events, err := e.Send(context.Background(), "earlier question")
	require.NoError(t, err)
	drainEvents(t, events)
	before := e.Transcript()

	backend.mu.Lock()
	backend.ingestErr = api.ErrServer
	backend.mu.Unlock()

	upEvents, err := e.Upload(context.Background(), "broken.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	drained := drainEvents(t, upEvents)
	require.Len(t, drained, 1)
	assert.ErrorIs(t, drained[0].Err, api.ErrServer)

	msgs := e.Transcript()
	require.Len(t, msgs, len(before)+2)
	for i, m := range before {
		assert.Equal(t, m, msgs[i], "pre-existing entry %d must be unaltered", i)
	}
	entry := msgs[len(before)]
	assert.Equal(t, "Failed to upload broken.pdf", entry.Text)
	assert.Equal(t, transcript.PhaseUploadFailed, entry.Phase)
	assert.Equal(t, uploadFailedReply, msgs[len(before)+1].Text)
}

func TestUpload_ConcurrentWithStreamTargetsDistinctEntries(t *testing.T) {
	backend := &fakeBackend{
		queryChunks:  []string{"stream part 1 ", "stream part 2"},
		queryStarted: make(chan struct{}),
		queryRelease: make(chan struct{}),
	}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	events, err := e.Send(context.Background(), "a question")
	require.NoError(t, err)
	<-backend.queryStarted

	upEvents, err := e.Upload(context.Background(), "mid.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	drainEvents(t, upEvents)

	close(backend.queryRelease)
	drainEvents(t, events)

	var streamed, upload *transcript.Message
	for _, m := range e.Transcript() {
		switch {
		case strings.HasPrefix(m.Text, "stream part"):
			streamed = &m
		case m.Phase == transcript.PhaseUploaded:
			upload = &m
		}
	}
	require.NotNil(t, streamed, "streamed answer present")
	require.NotNil(t, upload, "upload entry present")
	assert.Equal(t, "stream part 1 stream part 2", streamed.Text)
	assert.Equal(t, transcript.PhaseSettled, streamed.Phase)
	assert.Equal(t, "Uploaded mid.pdf", upload.Text)
}

func TestUpload_CarriesAssignedChatID(t *testing.T) {
	backend := &fakeBackend{queryChunks: []string{"ok"}}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	events, err := e.Send(context.Background(), "establish a chat")
	require.NoError(t, err)
	drainEvents(t, events)
	require.Equal(t, SessionAssigned, e.Session().State)

	upEvents, err := e.Upload(context.Background(), "doc.pdf", strings.NewReader("x"))
	require.NoError(t, err)
	drainEvents(t, upEvents)

	_, _, _, _, ingest := backend.counts()
	assert.Equal(t, 1, ingest)
}

func TestRefreshHistory_SilentFailureKeepsStaleList(t *testing.T) {
	backend := &fakeBackend{chats: []api.ChatSummary{{ID: "a", Title: "A"}}}
	e := newTestEngine(t, backend, identity.Static{P: testProfile})

	e.RefreshHistory(context.Background())
	require.Len(t, e.History(), 1)

	backend.mu.Lock()
	backend.listErr = api.ErrUnreachable
	backend.mu.Unlock()

	e.RefreshHistory(context.Background())
	assert.Len(t, e.History(), 1, "failed refresh must keep the stale list")
	assert.Equal(t, "a", e.History()[0].ID)
}

func TestRefreshHistory_AnonymousIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, identity.Anonymous{})

	e.RefreshHistory(context.Background())

	_, _, list, _, _ := backend.counts()
	assert.Zero(t, list)
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short stays whole", "What is a cell?", "What is a cell?"},
		{"exactly thirty", strings.Repeat("a", 30), strings.Repeat("a", 30)},
		{"truncated with ellipsis", "Explain photosynthesis in simple terms please", "Explain photosynthesis in simp..."},
		{"multibyte runes counted as characters", strings.Repeat("光", 31), strings.Repeat("光", 30) + "..."},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveTitle(tt.input))
		})
	}
}
