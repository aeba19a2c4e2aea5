package models

import (
	"time"

	"gorm.io/datatypes"
)

// User 招聘方用户表
type User struct {
	UserID       string    `gorm:"type:char(36);primaryKey"`
	Name         string    `gorm:"type:varchar(255);not null"`
	Company      string    `gorm:"type:varchar(255)"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex:idx_users_email_unique"`
	PasswordHash string    `gorm:"type:varchar(255)"`
	AvatarURL    string    `gorm:"type:varchar(1024)"`
	CreatedAt    time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt    time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

// Job 筛选岗位表
// 一个岗位只属于一个用户; JobID 创建后不可变
type Job struct {
	JobID          string    `gorm:"type:char(36);primaryKey"`
	Title          string    `gorm:"type:varchar(255);not null"`
	Description    string    `gorm:"type:text"`
	RequiredSkills string    `gorm:"type:text"`
	DesiredSkills  string    `gorm:"type:text"`
	OwnerUserID    string    `gorm:"type:char(36);index:idx_jobs_owner_user_id"`
	CreatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_jobs_created_at"`
	UpdatedAt      time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// Candidate 候选人表，一条记录对应一份已评分的简历
// 由摄入流程在分析服务成功返回后创建，创建后不再修改。
// JobID 故意不加外键约束: 删除岗位后候选人保留为孤儿记录（审计用途），
// 统计引擎必须容忍这种情况。
type Candidate struct {
	CandidateID     string         `gorm:"type:char(36);primaryKey"`
	Name            string         `gorm:"type:varchar(255);not null"`
	Phone           *string        `gorm:"type:varchar(50)"` // 标准化后的电话，无法标准化时为空
	Score           *int           `gorm:"type:int"`         // [0,100]，NULL表示尚未评分
	Summary         string         `gorm:"type:text"`
	RawAnalysisJSON datatypes.JSON `gorm:"type:json"` // 分析服务返回的原始载荷
	JobID           string         `gorm:"type:char(36);index:idx_candidates_job_id"`
	OwnerUserID     string         `gorm:"type:char(36);index:idx_candidates_owner_user_id"`
	ScreenedAt      time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_candidates_screened_at"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// JobRefs 以单元素集合形式返回岗位引用，兼容关系型链接字段的语义
func (c *Candidate) JobRefs() []string {
	if c.JobID == "" {
		return nil
	}
	return []string{c.JobID}
}
