// Package storage archives backtest reports on the local filesystem or in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Shuvam-Das/AlgoTradingWithZerodha.io/internal/config"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get and Delete for unknown keys.
var ErrNotFound = errors.New("object not found")

// Storage defines the operations on archived objects
type Storage interface {
	// Put stores body under key and returns a URL for it
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)

	// Get opens a stored object
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a stored object
	Delete(ctx context.Context, key string) error
}

// NewStorage creates a new storage implementation based on the configuration
func NewStorage(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Storage(cfg)
	case "local", "":
		return NewLocalStorage(cfg.LocalPath, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// ReportKey builds a unique object key for a backtest report.
func ReportKey(userID, backtestID int) string {
	return fmt.Sprintf("backtests/%d/%d-%s.json", userID, backtestID, uuid.New().String())
}
