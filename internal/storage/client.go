// Package storage implements the object store collaborator contract: download
// with a local-mount fast path and a MinIO API fallback, upload via the API
// with a volume copy as a last resort.
//
// Source objects are never deleted as part of normal success; deletion is
// disabled by policy.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/openstream/transcoder/internal/config"
)

// Store is the storage contract the pipelines depend on.
type Store interface {
	// Download fetches bucket/objectPath into destFile.
	Download(ctx context.Context, bucket, objectPath, destFile string) error

	// Upload stores localFile as bucket/objectPath and returns the path
	// clients resolve it by.
	Upload(ctx context.Context, localFile, bucket, objectPath string) (string, error)

	// UploadDir recursively uploads localDir under bucket/objectPrefix.
	UploadDir(ctx context.Context, localDir, bucket, objectPrefix string) error
}

// Client is the MinIO-backed Store.
type Client struct {
	api        *minio.Client
	volumePath string
	publicBase string
	logger     *slog.Logger
}

// NewClient connects to the object store API and remembers the local volume
// mount used as the download fast path.
func NewClient(cfg config.StorageConfig, logger *slog.Logger) (*Client, error) {
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}
	return &Client{
		api:        api,
		volumePath: strings.TrimRight(cfg.VolumePath, "/"),
		publicBase: strings.TrimRight(cfg.PublicBase, "/"),
		logger:     logger,
	}, nil
}

// Download implements Store. The volume mount is tried first; a miss or read
// error falls back to the API so the worker runs in both co-located and
// remote deployments.
func (c *Client) Download(ctx context.Context, bucket, objectPath, destFile string) error {
	if c.volumePath != "" {
		src := filepath.Join(c.volumePath, bucket, filepath.FromSlash(objectPath))
		if err := copyFile(src, destFile); err == nil {
			c.logger.Debug("downloaded via volume mount",
				slog.String("object", objectPath),
				slog.String("dest", destFile),
			)
			return nil
		} else if !os.IsNotExist(err) {
			c.logger.Warn("volume fast path failed, falling back to API",
				slog.String("object", objectPath),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := c.api.FGetObject(ctx, bucket, objectPath, destFile, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("downloading %s/%s: %w", bucket, objectPath, err)
	}
	return nil
}

// Upload implements Store. The API is the primary path; if it fails and a
// volume mount exists, the file is copied directly as an emergency fallback.
func (c *Client) Upload(ctx context.Context, localFile, bucket, objectPath string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: ContentTypeFor(objectPath)}

	if _, err := c.api.FPutObject(ctx, bucket, objectPath, localFile, opts); err != nil {
		c.logger.Error("API upload failed",
			slog.String("object", objectPath),
			slog.String("error", err.Error()),
		)
		if c.volumePath == "" {
			return "", fmt.Errorf("uploading %s/%s: %w", bucket, objectPath, err)
		}
		dest := filepath.Join(c.volumePath, bucket, filepath.FromSlash(objectPath))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", fmt.Errorf("uploading %s/%s: %w", bucket, objectPath, err)
		}
		if copyErr := copyFile(localFile, dest); copyErr != nil {
			return "", fmt.Errorf("uploading %s/%s (volume fallback also failed: %v): %w",
				bucket, objectPath, copyErr, err)
		}
		c.logger.Warn("upload used emergency volume fallback", slog.String("object", objectPath))
	}

	return c.objectURL(bucket, objectPath), nil
}

// UploadDir implements Store.
func (c *Client) UploadDir(ctx context.Context, localDir, bucket, objectPrefix string) error {
	return filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		objectPath := path.Join(objectPrefix, filepath.ToSlash(rel))
		if _, err := c.Upload(ctx, p, bucket, objectPath); err != nil {
			return err
		}
		return nil
	})
}

// objectURL returns the client-resolvable location of an object.
func (c *Client) objectURL(bucket, objectPath string) string {
	if c.publicBase == "" {
		return path.Join(bucket, objectPath)
	}
	return c.publicBase + "/" + path.Join(bucket, objectPath)
}

// ContentTypeFor maps artifact extensions to the content types playback
// clients require. Manifests must be served as vnd.apple.mpegurl and segments
// as transport stream for HLS players to accept them.
func ContentTypeFor(objectPath string) string {
	switch strings.ToLower(path.Ext(objectPath)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".vtt":
		return "text/vtt"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".wav":
		return "audio/wav"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
