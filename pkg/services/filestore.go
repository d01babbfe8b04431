package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fathomresearch/fathom/pkg/httpclient"
)

// ErrUploadFailed classifies storage failures in the evidence pipeline.
var ErrUploadFailed = errors.New("upload failed")

// FileStore stores downloaded source bytes and hands back an opaque id that
// the parser later resolves.
type FileStore interface {
	Upload(ctx context.Context, content []byte, filename string) (string, error)

	// Retrieve returns the stored bytes for a file id.
	Retrieve(ctx context.Context, fileID string) ([]byte, string, error)
}

// UploadFilename derives the canonical upload name for a source URL:
// "upload_<hash><suffix>", where the suffix comes from the URL path and
// falls back to ".html".
func UploadFilename(sourceURL string) string {
	h := fnv.New64a()
	h.Write([]byte(sourceURL))
	return fmt.Sprintf("upload_%d%s", h.Sum64(), inferSuffix(sourceURL))
}

func inferSuffix(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return ".html"
	}
	suffix := strings.ToLower(path.Ext(parsed.Path))
	if suffix == "" || len(suffix) > 10 || !strings.HasPrefix(suffix, ".") {
		return ".html"
	}
	return suffix
}

// MemoryFileStore keeps uploads in memory. The default store for runs that
// parse locally.
type MemoryFileStore struct {
	mu    sync.RWMutex
	next  int
	files map[string]memoryFile
}

type memoryFile struct {
	content  []byte
	filename string
}

// NewMemoryFileStore creates an empty in-memory store.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string]memoryFile)}
}

// Upload implements FileStore.
func (s *MemoryFileStore) Upload(ctx context.Context, content []byte, filename string) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty content", ErrUploadFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := fmt.Sprintf("mem-%d", s.next)
	s.files[id] = memoryFile{content: append([]byte(nil), content...), filename: filename}
	return id, nil
}

// Retrieve implements FileStore.
func (s *MemoryFileStore) Retrieve(ctx context.Context, fileID string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[fileID]
	if !ok {
		return nil, "", fmt.Errorf("unknown file id: %s", fileID)
	}
	return f.content, f.filename, nil
}

const defaultLlamaCloudBaseURL = "https://api.cloud.llamaindex.ai"

// LlamaCloudStore uploads files to LlamaCloud. Retrieval is not offered by
// the API in a form the local parser can use, so Retrieve fails; pair this
// store with a remote parser.
type LlamaCloudStore struct {
	apiKey     string
	baseURL    string
	httpClient *httpclient.Client
}

// NewLlamaCloudStore reads LLAMA_CLOUD_API_KEY (required) and
// LLAMA_CLOUD_BASE_URL (optional) from the environment.
func NewLlamaCloudStore() (*LlamaCloudStore, error) {
	apiKey := os.Getenv("LLAMA_CLOUD_API_KEY")
	if apiKey == "" {
		return nil, errors.New("LLAMA_CLOUD_API_KEY is required")
	}
	baseURL := os.Getenv("LLAMA_CLOUD_BASE_URL")
	if baseURL == "" {
		baseURL = defaultLlamaCloudBaseURL
	}

	return &LlamaCloudStore{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
		),
	}, nil
}

// Upload implements FileStore.
func (s *LlamaCloudStore) Upload(ctx context.Context, content []byte, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("upload_file", filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/files", &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status=%d body=%s", ErrUploadFailed, resp.StatusCode, payload)
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil || parsed.ID == "" {
		return "", fmt.Errorf("%w: malformed upload response", ErrUploadFailed)
	}
	return parsed.ID, nil
}

// Retrieve implements FileStore.
func (s *LlamaCloudStore) Retrieve(ctx context.Context, fileID string) ([]byte, string, error) {
	return nil, "", errors.New("llamacloud store does not support local retrieval")
}

// MirrorStore uploads through a remote store while keeping the bytes in
// memory, so the local parser can retrieve what upload-only stores cannot
// serve back.
type MirrorStore struct {
	remote FileStore

	mu    sync.Mutex
	files map[string]memoryFile
}

// NewMirrorStore wraps remote with an in-memory retrieval cache.
func NewMirrorStore(remote FileStore) *MirrorStore {
	return &MirrorStore{remote: remote, files: make(map[string]memoryFile)}
}

// Upload implements FileStore. The remote's file id keys the cached copy.
func (s *MirrorStore) Upload(ctx context.Context, content []byte, filename string) (string, error) {
	fileID, err := s.remote.Upload(ctx, content, filename)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.files[fileID] = memoryFile{content: append([]byte(nil), content...), filename: filename}
	s.mu.Unlock()
	return fileID, nil
}

// Retrieve implements FileStore from the in-memory copy.
func (s *MirrorStore) Retrieve(ctx context.Context, fileID string) ([]byte, string, error) {
	s.mu.Lock()
	f, ok := s.files[fileID]
	s.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("unknown file id %q", fileID)
	}
	return f.content, f.filename, nil
}
