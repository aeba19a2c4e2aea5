package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"screening-agent-go/internal/config"
)

// MinIO 对象存储适配器，归档提交的原始简历文件
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	logger *log.Logger
}

// NewMinIO 创建MinIO客户端并确保归档桶存在
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
		logger: logger,
	}

	if err := m.ensureBucketExists(cfg.ResumesBucket, cfg.Location); err != nil {
		return nil, err
	}

	if cfg.ResumeExpireDays > 0 {
		if err := m.setupBucketLifecycle(context.Background(), cfg.ResumesBucket, cfg.ResumeExpireDays); err != nil {
			// 生命周期规则失败不阻塞启动，只影响过期清理
			m.logger.Printf("设置归档桶生命周期规则失败: %v", err)
		}
	}

	return m, nil
}

// ensureBucketExists 确保存储桶存在，不存在则创建
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶失败 (%s): %w", bucketName, err)
	}
	if exists {
		return nil
	}

	err = m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location})
	if err != nil {
		return fmt.Errorf("创建存储桶失败 (%s): %w", bucketName, err)
	}
	m.logger.Printf("创建存储桶成功: %s", bucketName)
	return nil
}

// setupBucketLifecycle 为存储桶设置对象过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName string, expireDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     "expire-archived-resumes",
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expireDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// ArchiveResumeFile 将一份原始简历文件归档到对象存储。
// 对象键格式: {batchID}/{序号}_{原始文件名}
func (m *MinIO) ArchiveResumeFile(ctx context.Context, batchID string, index int, filename string, data []byte) (string, error) {
	objectName := fmt.Sprintf("%s/%d_%s", batchID, index, filepath.Base(filename))
	contentType := getContentType(filepath.Ext(filename))

	_, err := m.client.PutObject(ctx, m.cfg.ResumesBucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("归档简历文件失败 (%s): %w", objectName, err)
	}

	return objectName, nil
}

// GetResumeFile 取回一份已归档的简历文件
func (m *MinIO) GetResumeFile(ctx context.Context, objectName string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.cfg.ResumesBucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取归档文件失败 (%s): %w", objectName, err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("读取归档文件内容失败 (%s): %w", objectName, err)
	}
	return buf.Bytes(), nil
}

// getContentType 根据扩展名推断Content-Type
func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
