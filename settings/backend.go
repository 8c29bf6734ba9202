package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrNotFound is returned by a Backend that holds no settings yet.
var ErrNotFound = errors.New("settings not found")

// Backend persists the encoded settings document.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

type FileBackend struct {
	FilePath string
}

func NewFileBackend(filePath string) *FileBackend {
	return &FileBackend{FilePath: filePath}
}

func (f *FileBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Save writes through a temp file so a crash never leaves a truncated document.
func (f *FileBackend) Save(ctx context.Context, data []byte) error {
	if dir := filepath.Dir(f.FilePath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create settings directory: %w", err)
		}
	}
	tmp := f.FilePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return os.Rename(tmp, f.FilePath)
}

type s3API interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Backend keeps the settings document in a single S3 object.
type S3Backend struct {
	bucket string
	key    string
	s3     s3API
}

func NewS3Backend(s3Client s3API, bucket, key string) *S3Backend {
	return &S3Backend{
		bucket: bucket,
		key:    key,
		s3:     s3Client,
	}
}

func (s *S3Backend) Load(ctx context.Context) ([]byte, error) {
	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get settings object from S3: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (s *S3Backend) Save(ctx context.Context, data []byte) error {
	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put settings object to S3: %w", err)
	}
	return nil
}

// MemoryBackend is an in-memory Backend for tests and throwaway sessions.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
	err  error
}

func NewMemoryBackend(data []byte) *MemoryBackend {
	return &MemoryBackend{data: data}
}

func NewMemoryBackendWithError(err error) *MemoryBackend {
	return &MemoryBackend{err: err}
}

func (m *MemoryBackend) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.data == nil {
		return nil, ErrNotFound
	}
	return bytes.Clone(m.data), nil
}

func (m *MemoryBackend) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data = bytes.Clone(data)
	return nil
}

// Bytes returns the last saved document.
func (m *MemoryBackend) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.data)
}
