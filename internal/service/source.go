package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/skillcapital/coursebot/internal/domain"
)

// FileSource reads the knowledge corpus from a local file.
type FileSource struct {
	Path string
}

func (s FileSource) Read(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
				fmt.Sprintf("knowledge file %q not found", s.Path), err)
		}
		return "", fmt.Errorf("failed to read knowledge file %q: %w", s.Path, err)
	}
	return string(data), nil
}

// ObjectFetcher fetches an object's bytes from remote storage.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, key string) ([]byte, error)
}

// S3Source reads the knowledge corpus from an S3 object.
type S3Source struct {
	Client ObjectFetcher
	Key    string
}

func (s S3Source) Read(ctx context.Context) (string, error) {
	data, err := s.Client.FetchObject(ctx, s.Key)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("knowledge object %q not readable", s.Key), err)
	}
	return string(data), nil
}
