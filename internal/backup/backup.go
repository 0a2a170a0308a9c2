package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/pokerjest/modlistAutoTool/internal/config"
)

// Client 把状态库备份到 S3 兼容存储 (R2/MinIO 等)，
// 让跑了一半的会话可以换台机器接着跑
type Client struct {
	s3     *s3.Client
	bucket string
}

// Enabled reports whether backup is configured at all.
func Enabled(cfg appconfig.BackupConfig) bool {
	return cfg.Endpoint != "" && cfg.AccessKey != "" && cfg.SecretKey != "" && cfg.Bucket != ""
}

func NewClient(ctx context.Context, cfg appconfig.BackupConfig) (*Client, error) {
	if !Enabled(cfg) {
		return nil, fmt.Errorf("backup configuration is incomplete")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("us-east-1"),
	)
	if err != nil {
		return nil, err
	}

	// 自定义端点走 PathStyle，R2/MinIO 都吃这套
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// UploadState uploads the state database file and returns the object key.
func (c *Client) UploadState(ctx context.Context, dbPath string) (string, error) {
	file, err := os.Open(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open state database: %w", err)
	}
	defer file.Close()

	key := fmt.Sprintf("modlist-state-%s.db", time.Now().Format("20060102-150405"))
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload state backup: %w", err)
	}
	return key, nil
}

// DownloadState fetches a backup object into destPath.
// 调用方负责在引擎未运行时恢复，运行中替换状态库是自找麻烦
func (c *Client) DownloadState(ctx context.Context, key, destPath string) error {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to fetch state backup %s: %w", key, err)
	}
	defer out.Body.Close()

	file, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(file, out.Body); err != nil {
		return fmt.Errorf("failed to write restored state: %w", err)
	}
	return nil
}

// LatestKey returns the most recent backup object key, or "" when none exist.
func (c *Client) LatestKey(ctx context.Context) (string, error) {
	out, err := c.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String("modlist-state-"),
	})
	if err != nil {
		return "", err
	}

	latest := ""
	var latestTime time.Time
	for _, obj := range out.Contents {
		if obj.LastModified != nil && obj.LastModified.After(latestTime) {
			latestTime = *obj.LastModified
			latest = aws.ToString(obj.Key)
		}
	}
	return latest, nil
}
