package v1

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"audit-agent/internal/app/controllers"
	"audit-agent/internal/app/models"
	"audit-agent/internal/pkg/code"
	"audit-agent/pkg/util"
)

type chatStreamer interface {
	ChatStream(ctx context.Context, req models.ChatRequest) (<-chan string, <-chan error)
}

type ChatController struct {
	service chatStreamer
}

func NewChatController(service chatStreamer) *ChatController {
	return &ChatController{service: service}
}

// Chat 知识库问答，SSE 推送增量文本
func (c *ChatController) Chat(ctx *gin.Context) {
	var req models.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		controllers.ResponseWithErr(ctx, code.ParamErr, code.MsgParamErr, err.Error(), nil)
		return
	}

	controllers.SSEHeaders(ctx)

	contentChan, errorChan := c.service.ChatStream(ctx.Request.Context(), req)
	var fullContent strings.Builder
	for {
		select {
		case content, ok := <-contentChan:
			if !ok {
				// 错误先于内容通道关闭写入
				if err, ok := <-errorChan; ok && err != nil {
					log.Errorf("chat stream failed: %v", err)
					_ = util.WriteEvent(ctx.Writer, models.ErrorEvent{Message: err.Error()})
				}
				log.Debugf("chat answer: %s", fullContent.String())
				util.WriteDone(ctx.Writer)
				return
			}
			fullContent.WriteString(content)
			_ = util.WriteAppendText(ctx.Writer, content)
		case <-ctx.Request.Context().Done():
			return
		}
	}
}
