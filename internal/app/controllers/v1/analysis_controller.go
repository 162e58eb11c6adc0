package v1

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"audit-agent/internal/app/controllers"
	"audit-agent/internal/app/models"
	"audit-agent/internal/app/services"
	"audit-agent/internal/pkg/code"
	"audit-agent/pkg/util"
)

type AnalysisController struct {
	service *services.AnalysisService
}

func NewAnalysisController(service *services.AnalysisService) *AnalysisController {
	return &AnalysisController{service: service}
}

// Stream 发起文档分析并以 SSE 推送事件
func (c *AnalysisController) Stream(ctx *gin.Context) {
	var req models.AnalyzeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controllers.ResponseWithErr(ctx, code.ParamErr, code.MsgParamErr, err.Error(), nil)
		return
	}

	log.Infof("analysis request: %s", util.GetJson(req))

	reqCtx := ctx.Request.Context()
	events := make(chan models.Event, 64)
	run, err := c.service.Start(reqCtx, req, func(e models.Event) {
		select {
		case events <- e:
		case <-reqCtx.Done():
		}
	})
	if err != nil {
		status := code.HTTPStatusErr
		if errors.Is(err, services.ErrAutoSaveMultipleFiles) || errors.Is(err, services.ErrFileNotOwned) {
			status = code.ParamErr
		}
		controllers.ResponseWithErr(ctx, status, code.MsgFailed, err.Error(), nil)
		return
	}

	controllers.SSEHeaders(ctx)
	ctx.Writer.Flush()
	log.Infof("[Run %s] streaming to client", run.ID)

	write := func(e models.Event) {
		if err := util.WriteEvent(ctx.Writer, e); err != nil {
			log.Warnf("[Run %s] write event %s failed: %v", run.ID, e.EventName(), err)
		}
	}

	for {
		select {
		case e := <-events:
			write(e)
		case <-run.Done():
			// 回调在 finish 之前全部返回，剩余事件都已在通道中
			for {
				select {
				case e := <-events:
					write(e)
				default:
					return
				}
			}
		case <-reqCtx.Done():
			log.Infof("[Run %s] client gone", run.ID)
			return
		}
	}
}

// Stop 请求平台停止生成
func (c *AnalysisController) Stop(ctx *gin.Context) {
	var req models.CancelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil || req.TaskID == "" {
		msg := "taskId 不能为空"
		if err != nil {
			msg = err.Error()
		}
		controllers.ResponseWithErr(ctx, code.ParamErr, code.MsgParamErr, msg, nil)
		return
	}

	if !c.service.Cancel(ctx.Request.Context(), req.TaskID, req.UserID) {
		controllers.Response(ctx, code.PlatformErr, code.MsgFailed, gin.H{"success": false})
		return
	}
	controllers.Response(ctx, code.Success, code.MsgSuccess, gin.H{"success": true})
}

// GetTask 查询进行中的分析任务
func (c *AnalysisController) GetTask(ctx *gin.Context) {
	task, ok := c.service.GetTask(ctx.Param("taskId"))
	if !ok {
		controllers.Response(ctx, code.NotFound, code.MsgNotFound, nil)
		return
	}
	controllers.Response(ctx, code.Success, code.MsgSuccess, task)
}

// Classify 对已有回答文本重新分类
func (c *AnalysisController) Classify(ctx *gin.Context) {
	var req models.ClassifyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controllers.ResponseWithErr(ctx, code.ParamErr, code.MsgParamErr, err.Error(), nil)
		return
	}
	metadata := req.Metadata
	var text string
	if err := json.Unmarshal(metadata, &text); err == nil {
		metadata = json.RawMessage(text)
	}
	controllers.Response(ctx, code.Success, code.MsgSuccess, services.Classify(req.Answer, metadata))
}
