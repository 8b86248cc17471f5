// Package reliability provides operational safeguards around the ledger:
// scheduled offsite snapshots of the journal database.
package reliability

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/harmoniceagle/trader/internal/config"
	"github.com/harmoniceagle/trader/internal/database"
)

const backupPrefix = "backups/ledger-"

// BackupService snapshots the ledger database and uploads compressed copies
// to an S3-compatible bucket, pruning old snapshots past the retention count.
type BackupService struct {
	db       *database.DB
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	keep     int
	log      zerolog.Logger
}

// NewBackupService builds the service from backup configuration. Returns an
// error if the S3 client cannot be constructed; a disabled config should be
// checked by the caller before calling this.
func NewBackupService(ctx context.Context, db *database.DB, cfg config.BackupConfig, log zerolog.Logger) (*BackupService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	return &BackupService{
		db:       db,
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		keep:     cfg.Keep,
		log:      log.With().Str("service", "backup").Logger(),
	}, nil
}

// Run takes a snapshot, uploads it and prunes old backups. Safe to run while
// the ledger is in use; the snapshot is a consistent VACUUM INTO copy.
func (b *BackupService) Run(ctx context.Context) error {
	snapPath := filepath.Join(os.TempDir(), fmt.Sprintf("ledger-snapshot-%d.db", time.Now().UnixNano()))
	defer os.Remove(snapPath)

	if err := b.db.Snapshot(snapPath); err != nil {
		return fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	gzPath := snapPath + ".gz"
	defer os.Remove(gzPath)
	if err := compressFile(snapPath, gzPath); err != nil {
		return fmt.Errorf("failed to compress snapshot: %w", err)
	}

	key := backupPrefix + time.Now().UTC().Format("20060102-150405") + ".db.gz"
	if err := b.upload(ctx, gzPath, key); err != nil {
		return err
	}

	b.log.Info().Str("bucket", b.bucket).Str("key", key).Msg("Ledger backup uploaded")

	if err := b.prune(ctx); err != nil {
		// Retention failure is not worth failing the backup itself.
		b.log.Error().Err(err).Msg("Backup pruning failed")
	}
	return nil
}

func (b *BackupService) upload(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	_, err = b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}
	return nil
}

// prune deletes the oldest backups beyond the retention count. Keys embed a
// sortable timestamp, so lexical order is chronological order.
func (b *BackupService) prune(ctx context.Context) error {
	if b.keep <= 0 {
		return nil
	}

	prefix := backupPrefix
	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: &b.bucket,
		Prefix: &prefix,
	})
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key != nil {
			keys = append(keys, *obj.Key)
		}
	}
	if len(keys) <= b.keep {
		return nil
	}
	sort.Strings(keys)

	for _, key := range keys[:len(keys)-b.keep] {
		k := key
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: &b.bucket,
			Key:    &k,
		}); err != nil {
			return fmt.Errorf("failed to delete old backup %s: %w", k, err)
		}
		b.log.Debug().Str("key", k).Msg("Old backup pruned")
	}
	return nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		return err
	}
	return gz.Close()
}
