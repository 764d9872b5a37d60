//go:build integration

package minio

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lakeshift/lakeshift/internal/storage"
)

func TestStorePutAgainstMinIO(t *testing.T) {
	endpoint := envOr("LAKESHIFT_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("LAKESHIFT_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("LAKESHIFT_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("LAKESHIFT_TEST_S3_BUCKET", "lakeshift-it"),
		AccessKeyID:      envOr("LAKESHIFT_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("LAKESHIFT_TEST_S3_SECRET_KEY", "miniostorage"),
		UseSSL:           false,
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	payload := []byte("lakeshift-integration")
	info, err := store.Put(ctx, "data/orders/roundtrip.parquet", bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/x-parquet"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	raw, err := miniogo.New(endpoint, &miniogo.Options{
		Creds: credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	})
	if err != nil {
		t.Fatalf("miniogo.New() error = %v", err)
	}
	stat, err := raw.StatObject(ctx, cfg.Bucket, info.Key, miniogo.StatObjectOptions{})
	if err != nil {
		t.Fatalf("StatObject() error = %v", err)
	}
	if stat.Size != int64(len(payload)) {
		t.Fatalf("StatObject().Size = %d, want %d", stat.Size, len(payload))
	}
	if stat.ContentType != "application/x-parquet" {
		t.Fatalf("StatObject().ContentType = %q", stat.ContentType)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
