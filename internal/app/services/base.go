package services

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"audit-agent/internal/app/repositories"
	"audit-agent/internal/pkg/lock"
	"audit-agent/internal/pkg/storage"
	"audit-agent/pkg/config"
)

var initOnce sync.Once

var (
	AuditFile     IAuditFile
	ExtractedItem IExtractedItem
	Platform      *PlatformClient
	Analysis      *AnalysisService
	KnowledgeChat *KnowledgeChatService
)

// Init 在 storage.Init 之后调用
func Init() {
	initOnce.Do(func() {
		files := repositories.NewAuditFileRepository(storage.DB)
		items := repositories.NewExtractedItemRepository(storage.DB)

		var locker lock.Locker
		if storage.Redis != nil {
			locker = lock.NewRedisLocker(storage.Redis, config.GetRedisConf().LockExpiry)
			log.Info("extracted item lock: redis")
		} else {
			locker = lock.NewLocalLocker()
			log.Info("extracted item lock: local")
		}

		AuditFile = NewAuditFileService(files)
		itemService := NewExtractedItemService(files, items, locker)
		ExtractedItem = itemService
		Platform = NewPlatformClient(config.GetPlatformConf())
		Analysis = NewAnalysisService(Platform, files, itemService)
		KnowledgeChat = NewKnowledgeChatService(config.GetOpenaiConf(), items)
	})
}
