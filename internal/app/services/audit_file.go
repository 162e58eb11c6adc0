package services

import (
	"audit-agent/internal/app/models"
	"audit-agent/internal/app/repositories"
)

type IAuditFile interface {
	CreateAuditFile(file *models.AuditFile) error
	GetAuditFileByID(id uint64) (*models.AuditFile, error)
	ListAuditFilesByCont(file models.AuditFile, limit, offset int) ([]models.AuditFile, error)
	DeleteAuditFile(id uint64) error
}

type AuditFileService struct {
	repo *repositories.AuditFileRepository
}

func NewAuditFileService(repo *repositories.AuditFileRepository) IAuditFile {
	return &AuditFileService{repo: repo}
}

func (s *AuditFileService) CreateAuditFile(file *models.AuditFile) error {
	return s.repo.Create(file)
}

func (s *AuditFileService) GetAuditFileByID(id uint64) (*models.AuditFile, error) {
	return s.repo.GetByID(id)
}

func (s *AuditFileService) ListAuditFilesByCont(file models.AuditFile, limit, offset int) ([]models.AuditFile, error) {
	return s.repo.ListByCont(file, limit, offset)
}

func (s *AuditFileService) DeleteAuditFile(id uint64) error {
	return s.repo.Delete(id)
}
