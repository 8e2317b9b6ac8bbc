// Package archive mirrors the media library into an S3 bucket so a
// console host can be rebuilt from the bucket alone.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/airpulse/console/config"
	"github.com/airpulse/console/util"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	mapset "github.com/deckarep/golang-set/v2"
)

const syncTimeout = 30 * time.Minute

type Manager struct {
	client   *s3.Client
	s3Bucket string

	mediaDir string
	interval time.Duration
}

func NewManager(cfg *config.Config) (*Manager, error) {
	if cfg.Archive.S3Bucket == "" {
		return nil, fmt.Errorf("no s3 bucket configured")
	}

	ctxCfg, cancelCfg := context.WithTimeout(context.Background(), 3*time.Second)
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctxCfg,
		awsconfig.WithSharedConfigProfile(cfg.Archive.AWSProfile),
	)
	cancelCfg()
	if err != nil {
		return nil, err
	}

	interval := cfg.Archive.SyncInterval
	if interval <= 0 {
		interval = time.Hour
	}

	return &Manager{
		client:   s3.NewFromConfig(awsCfg),
		s3Bucket: cfg.Archive.S3Bucket,
		mediaDir: filepath.Join(cfg.Server.DataRoot, "media"),
		interval: interval,
	}, nil
}

func (m *Manager) getLocalFiles() (mapset.Set[string], error) {
	dirs, err := os.ReadDir(m.mediaDir)
	if err != nil {
		return nil, fmt.Errorf("unable to read directory, %s, %w", m.mediaDir, err)
	}

	localFiles := mapset.NewSet[string]()
	for _, dir := range dirs {
		name := dir.Name()
		if !util.SupportedExt(strings.ToLower(filepath.Ext(name))) {
			continue
		}
		localFiles.Add(name)
	}
	return localFiles, nil
}

func (m *Manager) getRemoteFiles(ctx context.Context) (mapset.Set[string], error) {
	remoteFiles := mapset.NewSet[string]()

	paginator := s3.NewListObjectsV2Paginator(m.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.s3Bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, object := range page.Contents {
			name := aws.ToString(object.Key)
			if !util.SupportedExt(strings.ToLower(filepath.Ext(name))) {
				continue
			}
			remoteFiles.Add(name)
		}
	}
	return remoteFiles, nil
}

func (m *Manager) uploadObject(ctx context.Context, name string) error {
	f, err := os.Open(filepath.Join(m.mediaDir, name))
	if err != nil {
		return fmt.Errorf("unable to open file for s3 upload, %s, %w", name, err)
	}
	defer f.Close()

	uploader := manager.NewUploader(m.client)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.s3Bucket),
		Key:    aws.String(name),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("unable to upload object to s3, %s, %w", name, err)
	}
	return nil
}

// SyncBucket makes the bucket match the local media directory. New
// local files are uploaded and remote objects with no local file are
// removed.
func (m *Manager) SyncBucket(ctx context.Context) error {
	localFiles, err := m.getLocalFiles()
	if err != nil {
		return err
	}

	remoteFiles, err := m.getRemoteFiles(ctx)
	if err != nil {
		return err
	}

	toUpload := localFiles.Difference(remoteFiles).ToSlice()
	toDelete := remoteFiles.Difference(localFiles).ToSlice()

	if len(toUpload) > 0 {
		slog.Info("archiving media", "count", len(toUpload), "names", toUpload)
		for _, name := range toUpload {
			if err := m.uploadObject(ctx, name); err != nil {
				slog.Warn("error while uploading media to s3", "name", name, "error", err)
			}
		}
	}
	if len(toDelete) > 0 {
		slog.Info("removing archived media", "count", len(toDelete), "names", toDelete)
		for _, name := range toDelete {
			_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(m.s3Bucket),
				Key:    aws.String(name),
			})
			if err != nil {
				slog.Warn("error while deleting s3 object", "name", name, "error", err)
			}
		}
	}
	return nil
}

func (m *Manager) Run(ctx context.Context) {
	sync := func() {
		syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
		if err := m.SyncBucket(syncCtx); err != nil {
			slog.Warn("error while syncing with s3", "error", err)
		}
		cancel()
	}

	sync()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sync()
		}
	}
}
