package oss

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage 本地磁盘存储，用于开发环境和测试
type LocalStorage struct {
	root      string
	urlPrefix string
}

func NewLocalStorage(root, urlPrefix string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalStorage{root: root, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}, nil
}

// Root 存储根目录，路由用它挂载静态文件
func (s *LocalStorage) Root() string {
	return s.root
}

func (s *LocalStorage) UploadFile(objectKey string, data []byte, contentType string) (string, error) {
	full, err := s.resolve(objectKey)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return s.urlPrefix + "/" + objectKey, nil
}

func (s *LocalStorage) Delete(objectKey string) error {
	full, err := s.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetSignedURL 本地文件没有签名，直接返回访问路径
func (s *LocalStorage) GetSignedURL(objectKey string, _ ...int64) (string, error) {
	if _, err := s.resolve(objectKey); err != nil {
		return "", err
	}
	return s.urlPrefix + "/" + objectKey, nil
}

func (s *LocalStorage) resolve(objectKey string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	return filepath.Join(s.root, clean), nil
}
