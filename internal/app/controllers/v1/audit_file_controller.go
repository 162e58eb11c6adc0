package v1

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"audit-agent/internal/app/controllers"
	"audit-agent/internal/app/models"
	"audit-agent/internal/app/services"
	"audit-agent/internal/pkg/code"
)

type AuditFileController struct {
	auditFileService services.IAuditFile
	itemService      services.IExtractedItem
}

func NewAuditFileController(service services.IAuditFile, items services.IExtractedItem) *AuditFileController {
	return &AuditFileController{auditFileService: service, itemService: items}
}

// CreateAuditFile 登记已上传到平台的文件
func (c *AuditFileController) CreateAuditFile(ctx *gin.Context) {
	var auditFile models.AuditFile
	if err := ctx.ShouldBindJSON(&auditFile); err != nil {
		controllers.ResponseWithErr(ctx, code.ParamErr, code.MsgParamErr, err.Error(), nil)
		return
	}

	if err := c.auditFileService.CreateAuditFile(&auditFile); err != nil {
		controllers.ResponseWithErr(ctx, code.HTTPStatusErr, code.MsgFailed, err.Error(), nil)
		return
	}

	controllers.Response(ctx, code.Success, code.MsgSuccess, auditFile)
}

// GetAuditFile 获取单个文件
func (c *AuditFileController) GetAuditFile(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	auditFile, err := c.auditFileService.GetAuditFileByID(id)
	if err != nil {
		notFoundOrFailed(ctx, err)
		return
	}

	controllers.Response(ctx, code.Success, code.MsgSuccess, auditFile)
}

// ListAuditFiles 获取文件列表
func (c *AuditFileController) ListAuditFiles(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))
	projectID, _ := strconv.ParseUint(ctx.Query("project_id"), 10, 64)
	auditFile := models.AuditFile{
		ProjectID: projectID,
		FileType:  models.FileType(ctx.Query("file_type")),
		FileName:  ctx.Query("file_name"),
	}

	auditFiles, err := c.auditFileService.ListAuditFilesByCont(auditFile, limit, offset)
	if err != nil {
		controllers.ResponseWithErr(ctx, code.HTTPStatusErr, code.MsgFailed, err.Error(), nil)
		return
	}

	controllers.Response(ctx, code.Success, code.MsgSuccess, auditFiles)
}

// DeleteAuditFile 删除文件记录
func (c *AuditFileController) DeleteAuditFile(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	if err := c.auditFileService.DeleteAuditFile(id); err != nil {
		controllers.ResponseWithErr(ctx, code.HTTPStatusErr, code.MsgFailed, err.Error(), nil)
		return
	}

	controllers.Response(ctx, code.Success, code.MsgSuccess, nil)
}

// SaveItems 保存人工确认后的事项
func (c *AuditFileController) SaveItems(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	var req models.SaveItemsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controllers.ResponseWithErr(ctx, code.ParamErr, code.MsgParamErr, err.Error(), nil)
		return
	}

	inputs := make([]models.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, models.ItemInput{FileID: id, ExtractedItemPayload: item})
	}

	report, err := c.itemService.SaveItems(ctx.Request.Context(), req.ProjectID, inputs)
	if err != nil {
		status := code.HTTPStatusErr
		if errors.Is(err, services.ErrFileNotOwned) || errors.Is(err, services.ErrInvalidCategory) {
			status = code.ParamErr
		}
		controllers.ResponseWithErr(ctx, status, code.MsgFailed, err.Error(), report)
		return
	}

	controllers.Response(ctx, code.Success, code.MsgSuccess, report)
}

// ListItems 按类别分组返回文件的事项
func (c *AuditFileController) ListItems(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	groups, err := c.itemService.ListGroupedByFile(id)
	if err != nil {
		controllers.ResponseWithErr(ctx, code.HTTPStatusErr, code.MsgFailed, err.Error(), nil)
		return
	}

	controllers.Response(ctx, code.Success, code.MsgSuccess, groups)
}

// ListProjectItems 列出项目下已入库的事项
func (c *AuditFileController) ListProjectItems(ctx *gin.Context) {
	projectID, err := strconv.ParseUint(ctx.Query("project_id"), 10, 64)
	if err != nil || projectID == 0 {
		controllers.ResponseWithErr(ctx, code.ParamErr, code.MsgParamErr, "invalid project_id", nil)
		return
	}
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))

	items, err := c.itemService.ListByProject(projectID, limit, offset)
	if err != nil {
		controllers.ResponseWithErr(ctx, code.HTTPStatusErr, code.MsgFailed, err.Error(), nil)
		return
	}

	controllers.Response(ctx, code.Success, code.MsgSuccess, items)
}

func parseID(ctx *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		controllers.ResponseWithErr(ctx, code.ParamErr, code.MsgParamErr, "invalid id", nil)
		return 0, false
	}
	return id, true
}

func notFoundOrFailed(ctx *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		controllers.Response(ctx, code.NotFound, code.MsgNotFound, nil)
		return
	}
	controllers.ResponseWithErr(ctx, code.HTTPStatusErr, code.MsgFailed, err.Error(), nil)
}
