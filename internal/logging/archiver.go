package logging

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Archiver uploads the event log to S3-compatible object storage
// (Cloudflare R2 by convention, any S3-compatible endpoint in practice)
// at the end of a night, so operational logs outlive the per-run sqlite
// file without this process ever reading them back itself.
type Archiver struct {
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// NewArchiver builds an Archiver configured against accountID's R2
// endpoint. Returns an error if any credential is missing — archiving is
// opt-in (config.ArchiveEnabled), so a missing credential at construction
// time is a configuration mistake, not a transient condition to retry.
func NewArchiver(accountID, accessKeyID, secretAccessKey, bucket string, log zerolog.Logger) (*Archiver, error) {
	if accountID == "" || accessKeyID == "" || secretAccessKey == "" || bucket == "" {
		return nil, fmt.Errorf("logging: archive credentials incomplete")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL:               fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountID),
			HostnameImmutable: true,
			SigningRegion:     "auto",
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("logging: failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 2
	})

	return &Archiver{uploader: uploader, bucket: bucket, log: log.With().Str("component", "archiver").Logger()}, nil
}

// ArchiveFile uploads the file at localPath under key, timing out after
// ten minutes — generous for a single night's event log, short enough
// that a hung archive never blocks the rotation job it runs under.
func (a *Archiver) ArchiveFile(ctx context.Context, localPath, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("logging: failed to open %s for archive: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("logging: failed to stat %s: %w", localPath, err)
	}

	a.log.Info().Str("key", key).Int64("size", info.Size()).Msg("archiving event log")
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("logging: failed to archive %s: %w", localPath, err)
	}
	a.log.Info().Str("key", key).Msg("archive uploaded")
	return nil
}
