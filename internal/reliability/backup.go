// Package reliability provides database backup and maintenance services.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/database"
)

// BackupService archives the databases and uploads them to S3-compatible
// object storage. Databases are copied through VACUUM INTO so the backup is
// a consistent snapshot even while the pipeline writes.
type BackupService struct {
	databases map[string]*database.DB
	bucket    string
	prefix    string
	dataDir   string
	uploader  *manager.Uploader
	log       zerolog.Logger
}

// NewBackupService creates a backup service. AWS credentials and region
// resolve through the default chain (env, shared config, instance role).
func NewBackupService(
	ctx context.Context,
	databases map[string]*database.DB,
	bucket, prefix, dataDir string,
	log zerolog.Logger,
) (*BackupService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &BackupService{
		databases: databases,
		bucket:    bucket,
		prefix:    prefix,
		dataDir:   dataDir,
		uploader:  manager.NewUploader(client),
		log:       log.With().Str("service", "backup").Logger(),
	}, nil
}

// CreateAndUpload snapshots every database into a tar.gz archive and
// uploads it. The staging directory is removed afterwards.
func (s *BackupService) CreateAndUpload(ctx context.Context) error {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	var files []string
	for name, db := range s.databases {
		dest := filepath.Join(stagingDir, name+".db")
		if err := snapshotDatabase(db, dest); err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", name, err)
		}
		files = append(files, dest)
	}

	archiveName := fmt.Sprintf("fundtrail-backup-%s.tar.gz", time.Now().UTC().Format("2006-01-02-150405"))
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := createArchive(archivePath, files); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	key := archiveName
	if s.prefix != "" {
		key = s.prefix + "/" + archiveName
	}

	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   archive,
	}); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	s.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Str("key", key).
		Msg("Backup completed")
	return nil
}

// snapshotDatabase copies a live database into dest as a consistent snapshot.
func snapshotDatabase(db *database.DB, dest string) error {
	if _, err := db.Exec("VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("vacuum into failed: %w", err)
	}
	return nil
}

// createArchive builds a tar.gz of the named files.
func createArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, file := range files {
		if err := addToArchive(tw, file); err != nil {
			return err
		}
	}
	return nil
}

func addToArchive(tw *tar.Writer, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to build tar header for %s: %w", file, err)
	}
	header.Name = filepath.Base(file)

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", file, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", file, err)
	}
	return nil
}

// BackupJob adapts the backup service to the scheduler's Job interface.
type BackupJob struct {
	service *BackupService
}

// NewBackupJob creates a backup job
func NewBackupJob(service *BackupService) *BackupJob {
	return &BackupJob{service: service}
}

// Name returns the job name
func (j *BackupJob) Name() string { return "backup" }

// Run executes one backup
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return j.service.CreateAndUpload(ctx)
}
