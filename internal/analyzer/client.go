package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"screening-agent-go/internal/tracing"
	"screening-agent-go/internal/types"
)

var analyzerTracer = otel.Tracer("screening-agent-go/analyzer")

// WebhookAnalyzer 调用外部简历分析服务的HTTP客户端。
// 一个批次的所有文件打包为单个multipart请求提交，只发生一次网络往返。
type WebhookAnalyzer struct {
	// 分析服务地址
	EndpointURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
	// 可选的API鉴权令牌，随请求头发送
	apiToken string
	// 日志记录
	logger *log.Logger
}

// AnalyzerOption 定义配置选项函数
type AnalyzerOption func(*WebhookAnalyzer)

// WithAPIToken 配置请求鉴权令牌
func WithAPIToken(token string) AnalyzerOption {
	return func(a *WebhookAnalyzer) {
		a.apiToken = token
	}
}

// WithAnalyzerLogger 配置自定义日志记录器
func WithAnalyzerLogger(logger *log.Logger) AnalyzerOption {
	return func(a *WebhookAnalyzer) {
		a.logger = logger
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) AnalyzerOption {
	return func(a *WebhookAnalyzer) {
		a.Client.Timeout = timeout
	}
}

// NewWebhookAnalyzer 创建一个新的分析服务客户端
func NewWebhookAnalyzer(endpointURL string, options ...AnalyzerOption) *WebhookAnalyzer {
	// 批量分析耗时较长，默认超时放宽到120秒
	client := &http.Client{
		Timeout: 120 * time.Second,
	}

	analyzer := &WebhookAnalyzer{
		EndpointURL: endpointURL,
		Client:      client,
		logger:      log.New(os.Stderr, "[Analyzer] ", log.LstdFlags),
	}

	for _, option := range options {
		option(analyzer)
	}

	return analyzer
}

// AnalyzeBatch 将整个文件批次连同岗位ID提交给分析服务并解析响应。
// 网络错误、非2xx状态码或响应体无法解析都视为整体失败，由调用方决定重试。
func (a *WebhookAnalyzer) AnalyzeBatch(ctx context.Context, jobID string, files []types.FileBlob) (*types.AnalysisResponse, error) {
	startTime := time.Now()
	a.logger.Printf("开始提交分析批次 (岗位: %s, 文件数: %d)", jobID, len(files))

	ctx, span := analyzerTracer.Start(ctx, "analyzer.AnalyzeBatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("screening.job_id", jobID),
			attribute.Int("screening.file_count", len(files)),
		))
	defer span.End()

	body, contentType, err := a.buildMultipartBody(jobID, files)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.EndpointURL, body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if a.apiToken != "" {
		req.Header.Set("Authorization", "Token "+a.apiToken)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, fmt.Errorf("发送请求到分析服务失败: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, fmt.Errorf("读取分析服务响应失败: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		err := fmt.Errorf("分析服务返回错误状态码: %d", resp.StatusCode)
		tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeExternal,
			attribute.Int("http.status_code", resp.StatusCode))
		return nil, err
	}

	var analysisResp types.AnalysisResponse
	if err := json.Unmarshal(respBytes, &analysisResp); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, fmt.Errorf("解析分析服务响应失败: %w", err)
	}

	span.SetAttributes(attribute.Int("screening.result_count", len(analysisResp.Candidates)))
	a.logger.Printf("分析批次完成: %d 条结果 (用时 %.2f秒)",
		len(analysisResp.Candidates), time.Since(startTime).Seconds())

	return &analysisResp, nil
}

// buildMultipartBody 构建批量提交的multipart请求体
func (a *WebhookAnalyzer) buildMultipartBody(jobID string, files []types.FileBlob) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("job_id", jobID); err != nil {
		return nil, "", fmt.Errorf("写入岗位ID字段失败: %w", err)
	}

	for i, file := range files {
		part, err := writer.CreateFormFile(fmt.Sprintf("files[%d]", i), file.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("创建文件表单字段失败 (%s): %w", file.Filename, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("写入文件内容失败 (%s): %w", file.Filename, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("关闭multipart写入器失败: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}
