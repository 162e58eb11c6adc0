package routers

import (
	"sync"

	"github.com/gin-gonic/gin"

	"audit-agent/internal/app/controllers"
	v1 "audit-agent/internal/app/controllers/v1"
	"audit-agent/internal/app/services"
)

var apiOnce sync.Once
var g *gin.Engine

// SetUp 使用 services.Init 初始化后的全局服务
func SetUp() *gin.Engine {
	apiOnce.Do(func() {
		g = NewEngine(services.Analysis, services.AuditFile, services.ExtractedItem, services.KnowledgeChat)
	})

	return g
}

func NewEngine(analysis *services.AnalysisService, files services.IAuditFile, items services.IExtractedItem,
	chat *services.KnowledgeChatService) *gin.Engine {
	engine := gin.Default()
	engine.Use(corsMiddleware())

	mainGroup := engine.Group("/audit/")
	mainGroup.GET("/health", controllers.Health)

	analysisController := v1.NewAnalysisController(analysis)
	analysisGroup := mainGroup.Group("/analysis")
	{
		analysisGroup.POST("/stream", analysisController.Stream)
		analysisGroup.POST("/stop", analysisController.Stop)
		analysisGroup.GET("/tasks/:taskId", analysisController.GetTask)
		analysisGroup.POST("/classify", analysisController.Classify)
	}

	fileController := v1.NewAuditFileController(files, items)
	auditFileGroup := mainGroup.Group("/files")
	{
		auditFileGroup.POST("/add", fileController.CreateAuditFile)
		auditFileGroup.GET("/list", fileController.ListAuditFiles)
		auditFileGroup.GET("/:id", fileController.GetAuditFile)
		auditFileGroup.DELETE("/:id", fileController.DeleteAuditFile)
		auditFileGroup.POST("/:id/items", fileController.SaveItems)
		auditFileGroup.GET("/:id/items", fileController.ListItems)
	}
	mainGroup.GET("/items", fileController.ListProjectItems)

	if chat != nil {
		mainGroup.POST("/chat", v1.NewChatController(chat).Chat)
	}

	return engine
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Origin")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	}
}
