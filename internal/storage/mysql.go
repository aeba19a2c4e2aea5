package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"screening-agent-go/internal/config"
	"screening-agent-go/internal/storage/models"
	"screening-agent-go/internal/tracing"
)

var mysqlTracer = otel.Tracer("screening-agent-go/storage/mysql")

// ErrRecordNotFound 查询目标不存在
var ErrRecordNotFound = gorm.ErrRecordNotFound

// MySQL 关系型存储适配器，实现候选人与岗位的持久化边界
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 连接MySQL并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	case 4:
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		// 孤儿候选人是刻意保留的行为，禁止GORM自动创建外键
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	// 注册OpenTelemetry追踪插件
	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Job{}, &models.Candidate{}); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// DB 返回底层GORM实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateCandidate 创建候选人记录，由存储层分配ID与筛选时间戳。
// 记录创建后不再修改。
func (m *MySQL) CreateCandidate(ctx context.Context, candidate *models.Candidate) (*models.Candidate, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成候选人ID失败: %w", err)
	}
	candidate.CandidateID = id.String()
	if candidate.ScreenedAt.IsZero() {
		candidate.ScreenedAt = time.Now()
	}

	if err := m.db.WithContext(ctx).Create(candidate).Error; err != nil {
		return nil, fmt.Errorf("写入候选人记录失败: %w", err)
	}
	return candidate, nil
}

// ListCandidatesByJob 按岗位取候选人，筛选时间倒序
func (m *MySQL) ListCandidatesByJob(ctx context.Context, jobID string) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := m.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("screened_at DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("查询岗位候选人失败: %w", err)
	}
	return candidates, nil
}

// ListCandidatesByOwner 按用户取候选人，筛选时间倒序
func (m *MySQL) ListCandidatesByOwner(ctx context.Context, ownerID string) ([]models.Candidate, error) {
	var candidates []models.Candidate
	err := m.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerID).
		Order("screened_at DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户候选人失败: %w", err)
	}
	return candidates, nil
}

// ListJobsByOwner 按用户取岗位，创建时间倒序
func (m *MySQL) ListJobsByOwner(ctx context.Context, ownerID string) ([]models.Job, error) {
	var jobs []models.Job
	err := m.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerID).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户岗位失败: %w", err)
	}
	return jobs, nil
}

// GetJob 按ID取岗位，不存在时返回 ErrRecordNotFound
func (m *MySQL) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := m.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("查询岗位失败: %w", err)
	}
	return &job, nil
}

// CreateJob 创建岗位，由存储层分配ID
func (m *MySQL) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成岗位ID失败: %w", err)
	}
	job.JobID = id.String()

	if err := m.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("写入岗位记录失败: %w", err)
	}
	return job, nil
}

// DeleteJob 删除岗位本身。引用该岗位的候选人故意不级联删除，
// 留作孤儿记录供审计，统计引擎会容忍这些记录。
func (m *MySQL) DeleteJob(ctx context.Context, jobID string) error {
	result := m.db.WithContext(ctx).Delete(&models.Job{}, "job_id = ?", jobID)
	if result.Error != nil {
		return fmt.Errorf("删除岗位失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// NewGormTracingPlugin 创建GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer: mysqlTracer,
		dbName: dbName,
	}
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		ctx, _ = p.tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			))

		db.Statement.Context = ctx
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span := trace.SpanFromContext(db.Statement.Context)
		if !span.IsRecording() {
			return
		}
		defer span.End()

		span.SetAttributes(
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
			attribute.String("db.statement", tracing.SafeSQL(db.Statement.SQL.String())),
		)

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
		}
	}
}
