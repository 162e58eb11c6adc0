package models

import (
	"fmt"
	"time"
)

// FileType 文档类型
type FileType string

const (
	FileTypeMinutes  FileType = "minutes"  // 会议纪要
	FileTypeContract FileType = "contract" // 合同
	FileTypeOther    FileType = "other"
)

type AuditFile struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement;comment:主键" json:"id"`
	ProjectID  uint64    `gorm:"not null;index;comment:所属审计项目" json:"project_id"`
	FileID     string    `gorm:"size:100;not null;uniqueIndex;comment:平台上传文件ID" json:"file_id"`
	FileName   string    `gorm:"size:500;not null;comment:原始文件名" json:"file_name"`
	FileType   FileType  `gorm:"size:20;default:null;comment:文档类型" json:"file_type"`
	ObjectKey  string    `gorm:"size:1000;default:null;comment:对象存储路径" json:"object_key"`
	IsAnalyzed bool      `gorm:"not null;default:false;comment:是否已分析" json:"is_analyzed"`
	CreatedAt  time.Time `gorm:"comment:记录创建时间" json:"created_at"`
	UpdatedAt  time.Time `gorm:"comment:最后更新时间" json:"updated_at"`
}

// TableName 指定表名
func (AuditFile) TableName() string {
	return "audit_file"
}

// FileRef 平台请求中引用的文件
func (f *AuditFile) FileRef() FileRef {
	return FileRef{
		Type:           "document",
		TransferMethod: "local_file",
		UploadFileID:   f.FileID,
	}
}

// Validate 验证模型数据
func (f *AuditFile) Validate() error {
	if f.ProjectID == 0 {
		return fmt.Errorf("项目ID不能为空")
	}
	if f.FileName == "" {
		return fmt.Errorf("文件名不能为空")
	}
	if f.FileID == "" {
		return fmt.Errorf("文件ID不能为空")
	}
	switch f.FileType {
	case "", FileTypeMinutes, FileTypeContract, FileTypeOther:
	default:
		return fmt.Errorf("未知文档类型: %s", f.FileType)
	}
	return nil
}

// FileRef 对应平台 files 字段中的一项
type FileRef struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id"`
}
