// Package storage keeps album covers and audio files in S3-compatible
// object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"trackdrop/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// Store wraps a MinIO client bound to the covers and music buckets
type Store struct {
	client        *minio.Client
	region        string
	coversBucket  string
	musicBucket   string
	publicBaseURL string
	logger        *logrus.Logger
}

// Object is a downloaded object with its metadata
type Object struct {
	Data        []byte
	ContentType string
	Size        int64
}

// New creates a store from the storage configuration. No network calls are
// made until EnsureBuckets or an object operation runs.
func New(cfg *config.StorageConfig, logger *logrus.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Store{
		client:        client,
		region:        cfg.Region,
		coversBucket:  cfg.CoversBucket,
		musicBucket:   cfg.MusicBucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        logger,
	}, nil
}

// CoversBucket returns the bucket name holding album covers
func (s *Store) CoversBucket() string { return s.coversBucket }

// MusicBucket returns the bucket name holding audio files
func (s *Store) MusicBucket() string { return s.musicBucket }

// EnsureBuckets creates the covers and music buckets when they are missing.
func (s *Store) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.coversBucket, s.musicBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}

		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		s.logger.WithField("bucket", bucket).Info("Created storage bucket")
	}
	return nil
}

// PutObject uploads data under key and returns its public URL.
func (s *Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": bucket,
		"key":    key,
		"size":   size,
	}).Debug("Uploaded object")

	return s.PublicURL(bucket, key), nil
}

// GetObject downloads the object stored under key.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (*Object, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s/%s: %w", bucket, key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, key, err)
	}

	return &Object{
		Data:        data,
		ContentType: info.ContentType,
		Size:        info.Size,
	}, nil
}

// RemoveObject deletes the object stored under key. Removing a missing
// object is not an error.
func (s *Store) RemoveObject(ctx context.Context, bucket, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Ping checks that the music bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.musicBucket)
	return err
}

// PublicURL returns the URL clients use to fetch the object directly.
func (s *Store) PublicURL(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicBaseURL + "/" + bucket + "/" + strings.Join(segments, "/")
}

// KeyFromURL recovers the object key from a URL produced by PublicURL for
// bucket. It reports false for URLs outside this store.
func (s *Store) KeyFromURL(bucket, rawURL string) (string, bool) {
	prefix := s.publicBaseURL + "/" + bucket + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// CoverKey names a cover upload: <unix millis>.<ext>
func CoverKey(now time.Time, filename string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "." + extension(filename, "jpg")
}

// TrackKey names a track upload: <album id>/<unix millis>_<title>.<ext>
// where every character of title outside [A-Za-z0-9] becomes '_'.
func TrackKey(albumID string, now time.Time, title, filename string) string {
	name := fmt.Sprintf("%d_%s.%s", now.UnixMilli(), sanitizeKeyPart(title), extension(filename, "mp3"))
	return path.Join(albumID, name)
}

func extension(filename, fallback string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return fallback
	}
	return ext
}

func sanitizeKeyPart(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '_'
	}, s)
}
