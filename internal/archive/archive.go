// Package archive writes exported reports to a blob sink: a local directory,
// an S3 compatible bucket or a Google Cloud Storage bucket.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Sink stores one object and returns where it went.
type Sink interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Close() error
}

// Config selects a sink. Kind is fs, s3 or gcs.
type Config struct {
	Kind   string `yaml:"kind"`
	Dir    string `yaml:"dir"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`

	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
}

// Open builds the sink named by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "fs":
		return NewFS(cfg.Dir)
	case "s3":
		return NewS3(ctx, S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case "gcs":
		return NewGCS(ctx, GCSConfig{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
	default:
		return nil, fmt.Errorf("unknown archive kind %q", cfg.Kind)
	}
}

// ObjectName builds a stable, sortable name for a report export.
func ObjectName(kind, round string, at time.Time, ext string) string {
	stamp := at.UTC().Format("20060102T150405Z")
	parts := []string{kind}
	if round != "" {
		parts = append(parts, round)
	}
	parts = append(parts, stamp)
	return strings.Join(parts, "-") + "." + strings.TrimPrefix(ext, ".")
}

func objectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
