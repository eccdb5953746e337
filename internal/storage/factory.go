package storage

import (
	"context"
	"fmt"

	"manimrender/internal/adapters/storage/gdrive"
	"manimrender/internal/adapters/storage/localfs"
	"manimrender/internal/adapters/storage/s3store"
	"manimrender/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "s3":
		return s3store.New(ctx, s3store.Options{
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})

	case "localfs":
		if cfg.LocalRoot == "" {
			return nil, fmt.Errorf("localfs storage requires a root directory")
		}
		return localfs.New(cfg.LocalRoot, cfg.LocalPublicBaseURL), nil

	case "gdrive":
		return newGDriveProvider(ctx, cfg.GDrive)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, cfg config.GDriveConfig) (Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, fmt.Errorf("gdrive storage requires client id, client secret and refresh token")
	}

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	// The refresh token is exchanged for access tokens on demand.
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gdrive service: %w", err)
	}

	return gdrive.NewClient(srv, cfg.FolderID), nil
}
