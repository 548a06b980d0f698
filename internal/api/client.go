// Package api implements the HTTP client for the tutoring backend.
//
// The backend is an external collaborator: it owns answer generation,
// retrieval, and chat persistence. This package only speaks its wire
// contract:
//
//	POST /query        chunked text stream (the answer)
//	GET  /chats        ordered chat summaries for a user
//	POST /chats        create a chat record
//	GET  /chats/{id}   full transcript of one chat
//	POST /ingest       multipart document upload
//	GET  /files        knowledge-base listing
//	POST /flashcards   flashcard generation
//	POST /generate_quiz quiz generation
//
// Failures are classified with the sentinel errors in errors.go; callers
// decide how to surface them.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tutorllm/tutorllm/internal/log"
)

const tracerName = "github.com/tutorllm/tutorllm/internal/api"

// streamChunkSize is the read buffer for the /query answer stream.
// Chunk boundaries carry no meaning; only arrival order does.
const streamChunkSize = 4096

// Config holds the Client's construction parameters.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000". Required.
	BaseURL string

	// Timeout bounds every non-streaming call. Required.
	Timeout time.Duration

	// Logger is required.
	Logger log.Logger

	// HTTPClient overrides the transport. Optional; defaults to a client
	// without a global timeout so answer streams are bounded only by the
	// caller's context.
	HTTPClient *http.Client
}

func (c Config) validate() error {
	if c.BaseURL == "" {
		return errors.New("api: BaseURL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("api: invalid BaseURL: %w", err)
	}
	if c.Timeout <= 0 {
		return errors.New("api: Timeout must be positive")
	}
	if c.Logger == nil {
		return errors.New("api: Logger is required")
	}
	return nil
}

// Client talks to the tutoring backend. Safe for concurrent use.
type Client struct {
	baseURL string
	timeout time.Duration
	httpc   *http.Client
	logger  log.Logger
	tracer  trace.Tracer
}

// New creates a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		// No Timeout here: /query streams for as long as the answer takes.
		// Per-call contexts bound everything else.
		httpc = &http.Client{}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		httpc:   httpc,
		logger:  cfg.Logger,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Query issues POST /query and returns the answer as a lazy sequence of text
// increments in arrival order. The sequence is finite and non-restartable:
// range over it exactly once. It terminates normally at stream end, or yields
// a single non-nil error (classified per errors.go) and stops.
//
// Cancellation: abandon the range or cancel ctx; the underlying response
// body is closed either way.
func (c *Client) Query(ctx context.Context, req QueryRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, span := c.tracer.Start(ctx, "tutor.query")
		defer span.End()

		body, err := json.Marshal(req)
		if err != nil {
			yield("", fmt.Errorf("encoding query: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
		if err != nil {
			yield("", fmt.Errorf("building query request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpc.Do(httpReq)
		if err != nil {
			span.SetStatus(codes.Error, "unreachable")
			yield("", fmt.Errorf("%w: %v", ErrUnreachable, err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			err := statusErr(resp.StatusCode)
			span.SetStatus(codes.Error, resp.Status)
			yield("", err)
			return
		}

		buf := make([]byte, streamChunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				if !yield(string(buf[:n]), nil) {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return // normal termination
				}
				span.RecordError(err)
				yield("", fmt.Errorf("%w: reading answer stream: %v", ErrUnreachable, err))
				return
			}
		}
	}
}

// ListChats returns the user's chats in server-assigned recency order.
func (c *Client) ListChats(ctx context.Context, userEmail string) ([]ChatSummary, error) {
	var chats []ChatSummary
	path := "/chats?user_email=" + url.QueryEscape(userEmail)
	if err := c.getJSON(ctx, "tutor.list_chats", path, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChat creates a server-side chat record and returns its identifier.
func (c *Client) CreateChat(ctx context.Context, userEmail, title string) (string, error) {
	var resp createChatResponse
	err := c.postJSON(ctx, "tutor.create_chat", "/chats", createChatRequest{UserEmail: userEmail, Title: title}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ChatID == "" {
		return "", fmt.Errorf("%w: empty chat_id in response", ErrServer)
	}
	return resp.ChatID, nil
}

// LoadChat fetches the full transcript of one chat.
func (c *Client) LoadChat(ctx context.Context, chatID, userEmail string) (ChatDetail, error) {
	var detail ChatDetail
	path := "/chats/" + url.PathEscape(chatID) + "?user_email=" + url.QueryEscape(userEmail)
	if err := c.getJSON(ctx, "tutor.load_chat", path, &detail); err != nil {
		return ChatDetail{}, err
	}
	return detail, nil
}

// Ingest uploads a document for server-side processing via multipart POST.
// userEmail and chatID are optional; without them the document is ingested
// into the shared knowledge base only.
func (c *Client) Ingest(ctx context.Context, filename string, content io.Reader, userEmail, chatID string) error {
	ctx, span := c.tracer.Start(ctx, "tutor.ingest")
	defer span.End()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("building multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("reading upload content: %w", err)
	}
	if userEmail != "" {
		if err := mw.WriteField("user_email", userEmail); err != nil {
			return fmt.Errorf("building multipart body: %w", err)
		}
	}
	if chatID != "" {
		if err := mw.WriteField("chat_id", chatID); err != nil {
			return fmt.Errorf("building multipart body: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", &body)
	if err != nil {
		return fmt.Errorf("building ingest request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "unreachable")
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		return statusErr(resp.StatusCode)
	}
	return nil
}

// ListFiles returns the knowledge-base file listing.
func (c *Client) ListFiles(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo
	if err := c.getJSON(ctx, "tutor.list_files", "/files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

// Flashcards generates flashcards for a topic.
func (c *Client) Flashcards(ctx context.Context, topic string) (FlashcardSet, error) {
	var set FlashcardSet
	err := c.postJSON(ctx, "tutor.flashcards", "/flashcards", FlashcardRequest{Topic: topic}, &set)
	if err != nil {
		return FlashcardSet{}, err
	}
	return set, nil
}

// GenerateQuiz generates a multiple-choice quiz.
func (c *Client) GenerateQuiz(ctx context.Context, req QuizRequest) (Quiz, error) {
	var quiz Quiz
	if err := c.postJSON(ctx, "tutor.generate_quiz", "/generate_quiz", req, &quiz); err != nil {
		return Quiz{}, err
	}
	return quiz, nil
}

// getJSON performs a GET bounded by the client timeout and decodes the body.
func (c *Client) getJSON(ctx context.Context, span, path string, out any) error {
	return c.doJSON(ctx, span, http.MethodGet, path, nil, out)
}

// postJSON performs a POST bounded by the client timeout and decodes the body.
func (c *Client) postJSON(ctx context.Context, span, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.doJSON(ctx, span, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, spanName, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, spanName)
	defer span.End()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "unreachable")
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		drain(resp.Body)
		span.SetStatus(codes.Error, resp.Status)
		return ErrChatNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp.Body)
		span.SetStatus(codes.Error, resp.Status)
		return statusErr(resp.StatusCode)
	}

	if out == nil {
		drain(resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrServer, err)
	}
	return nil
}

// statusErr classifies a non-success HTTP status.
// 500-class errors match both ErrServer and ErrServerInternal.
func statusErr(code int) error {
	if code >= 500 {
		return fmt.Errorf("%w: %w (status %d)", ErrServer, ErrServerInternal, code)
	}
	return fmt.Errorf("%w (status %d)", ErrServer, code)
}

// drain consumes a response body so the connection can be reused.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 1<<20))
}
