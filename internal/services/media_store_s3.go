package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"helpcy/internal/config"
	"helpcy/internal/models"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
)

// S3MediaStore keeps media in an S3-compatible bucket (MinIO in development)
type S3MediaStore struct {
	client    *minio.Client
	bucket    string
	region    string
	urlExpiry time.Duration
	logger    *observability.Logger

	bucketMu    sync.Mutex
	bucketReady bool
}

// NewS3MediaStore validates cfg and creates the client. No request is made
// until the first Put or Get.
func NewS3MediaStore(cfg config.MediaConfig, logger *observability.Logger) (*S3MediaStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityError, "media endpoint is required", "")
	}
	access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityError, "media access key and secret key are required", "")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeMissingRequired, contextutils.SeverityError, "media bucket is required", "")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = config.DefaultMediaURLExpiry
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeMediaStorage, contextutils.SeverityError, "failed to create s3 client", endpoint, err)
	}

	return &S3MediaStore{
		client:    client,
		bucket:    bucket,
		region:    region,
		urlExpiry: expiry,
		logger:    logger,
	}, nil
}

// ensureBucket creates the bucket once. A failed attempt is retried on the next call.
func (s *S3MediaStore) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeMediaStorage, contextutils.SeverityError, "failed to check bucket", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return contextutils.NewAppErrorWithCause(contextutils.ErrorCodeMediaStorage, contextutils.SeverityError, "failed to create bucket", s.bucket, err)
		}
		s.logger.Info(ctx, "Created media bucket", map[string]interface{}{"bucket": s.bucket})
	}
	s.bucketReady = true
	return nil
}

// Put uploads data under a fresh name and returns its object key
func (s *S3MediaStore) Put(ctx context.Context, userID int64, kind models.MediaKind, data []byte, contentType string) (string, error) {
	return s.PutNamed(ctx, userID, kind, uuid.NewString(), data, contentType)
}

// PutNamed uploads data under name and returns its object key
func (s *S3MediaStore) PutNamed(ctx context.Context, userID int64, kind models.MediaKind, name string, data []byte, contentType string) (ref string, err error) {
	ctx, span := observability.TraceMediaFunction(ctx, "s3.Put",
		observability.AttributeUserID(userID),
		attribute.String("media.kind", string(kind)),
		attribute.Int("media.size", len(data)),
	)
	defer observability.FinishSpan(span, &err)

	if err := validateMedia(kind, data); err != nil {
		return "", err
	}
	if err := validMediaName(name); err != nil {
		return "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	ct := NormalizeContentType(data, contentType)
	key := mediaKey(userID, kind, name, ct)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ct,
	})
	if err != nil {
		return "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeMediaStorage, contextutils.SeverityError, "failed to upload media", key, err)
	}
	return key, nil
}

// Find lists the bucket for an object stored by PutNamed
func (s *S3MediaStore) Find(ctx context.Context, userID int64, kind models.MediaKind, name string) (ref string, err error) {
	ctx, span := observability.TraceMediaFunction(ctx, "s3.Find", observability.AttributeUserID(userID))
	defer observability.FinishSpan(span, &err)

	if err := validMediaName(name); err != nil {
		return "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	prefix := mediaPrefix(userID, kind, name)
	for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeMediaStorage, contextutils.SeverityError, "failed to list media", prefix, obj.Err)
		}
		if obj.Key == prefix || strings.HasPrefix(obj.Key, prefix+".") {
			return obj.Key, nil
		}
	}
	return "", nil
}

// Get downloads the object
func (s *S3MediaStore) Get(ctx context.Context, ref string) (result *MediaObject, err error) {
	ctx, span := observability.TraceMediaFunction(ctx, "s3.Get", attribute.String("media.ref", ref))
	defer observability.FinishSpan(span, &err)

	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeMediaStorage, contextutils.SeverityError, "failed to open media", ref, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, config.MaxMediaBytes+1))
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "media %s not found", ref)
		}
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeMediaStorage, contextutils.SeverityError, "failed to read media", ref, err)
	}

	ct := ""
	if info, statErr := obj.Stat(); statErr == nil {
		ct = info.ContentType
	}
	return &MediaObject{
		Ref:         ref,
		Kind:        kindFromKey(ref),
		ContentType: NormalizeContentType(data, ct),
		Data:        data,
	}, nil
}

// URL returns a presigned GET URL valid for the configured expiry
func (s *S3MediaStore) URL(ctx context.Context, ref string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ref, s.urlExpiry, nil)
	if err != nil {
		return "", contextutils.NewAppErrorWithCause(contextutils.ErrorCodeMediaStorage, contextutils.SeverityError, "failed to presign media url", ref, err)
	}
	return u.String(), nil
}
