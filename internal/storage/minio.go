package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"time"

	"github.com/Soumit27/eazzgrievnce/internal/config"
	"github.com/Soumit27/eazzgrievnce/internal/logger"
	"github.com/Soumit27/eazzgrievnce/internal/models"
	"github.com/Soumit27/eazzgrievnce/pkg/apperror"
	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const sniffLen = 512

// allowedProofTypes are the only content types accepted as proof of work.
var allowedProofTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

type MinIOStorage struct {
	client     *minio.Client
	bucketName string
	urlExpiry  time.Duration
}

func NewMinIOStorage(cfg *config.MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Log.WithField("bucket", cfg.BucketName).Info("Bucket created")
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	logger.Log.Info("MinIO storage connected successfully")
	return &MinIOStorage{
		client:     client,
		bucketName: cfg.BucketName,
		urlExpiry:  expiry,
	}, nil
}

// DetectProofType sniffs the magic bytes of an upload and returns its MIME
// type and canonical extension. Anything other than JPEG, PNG or PDF is a
// validation error, whatever the client claimed.
func DetectProofType(head []byte) (string, string, error) {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "", "", apperror.New(apperror.ErrCodeValidation, "could not determine file type, allowed: jpeg, png, pdf")
	}
	if !allowedProofTypes[kind.MIME.Value] {
		return "", "", apperror.Newf(apperror.ErrCodeValidation, "file type %s not allowed, allowed: jpeg, png, pdf", kind.MIME.Value)
	}
	return kind.MIME.Value, kind.Extension, nil
}

// UploadProof stores one proof file under complaints/<id>/.
func (s *MinIOStorage) UploadProof(ctx context.Context, complaintID uuid.UUID, header *multipart.FileHeader) (*models.ProofFile, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]

	contentType, ext, err := DetectProofType(head)
	if err != nil {
		return nil, err
	}

	objectKey := fmt.Sprintf("complaints/%s/%s.%s", complaintID, uuid.New().String(), ext)
	body := io.MultiReader(bytes.NewReader(head), file)

	_, err = s.client.PutObject(ctx, s.bucketName, objectKey, body, header.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &models.ProofFile{
		FileName:   header.Filename,
		ObjectKey:  objectKey,
		FileType:   contentType,
		Size:       header.Size,
		UploadedAt: time.Now(),
	}, nil
}

func (s *MinIOStorage) GetFileURL(ctx context.Context, objectName string) (string, error) {
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucketName, objectName, s.urlExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get presigned URL: %w", err)
	}
	return presignedURL.String(), nil
}

func (s *MinIOStorage) DeleteFile(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *MinIOStorage) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}
