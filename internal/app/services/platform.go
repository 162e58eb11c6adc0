package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"audit-agent/internal/app/models"
	"audit-agent/pkg/config"
	"audit-agent/pkg/util"
)

var ErrPlatformNotConfigured = errors.New("analysis platform api key is not configured")

type platformChatRequest struct {
	Query          string                 `json:"query"`
	Inputs         map[string]interface{} `json:"inputs"`
	User           string                 `json:"user"`
	ResponseMode   string                 `json:"response_mode"`
	ConversationID string                 `json:"conversation_id"`
	Files          []models.FileRef       `json:"files"`
}

// PlatformClient 大模型应用平台客户端：发起流式分析、停止生成
type PlatformClient struct {
	client  *req.Client
	conf    config.Platform
	limiter *rate.Limiter
}

func NewPlatformClient(conf config.Platform) *PlatformClient {
	if conf.Endpoint == "" {
		conf.Endpoint = "/chat-messages"
	}
	if conf.Prompt == "" {
		conf.Prompt = config.DefaultAnalysisPrompt
	}

	// 流式响应不能设置整体超时，空闲超时由 idleReader 负责
	client := req.C().
		SetBaseURL(strings.TrimSuffix(conf.BaseURL, "/")).
		SetTimeout(0)
	if conf.ApiKey != "" {
		client.SetCommonBearerAuthToken(conf.ApiKey)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if conf.QPS > 0 {
		burst := conf.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(conf.QPS), burst)
	}

	return &PlatformClient{
		client:  client,
		conf:    conf,
		limiter: limiter,
	}
}

func (c *PlatformClient) buildRequest(files []models.FileRef, user string) platformChatRequest {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.UploadFileID)
	}
	return platformChatRequest{
		Query:        util.RenderPrompt(c.conf.Prompt, map[string]string{"file_ids": strings.Join(ids, ",")}),
		Inputs:       map[string]interface{}{},
		User:         user,
		ResponseMode: "streaming",
		Files:        files,
	}
}

// StreamAnalysis 发起流式分析并解码事件流，所有事件同步回调给 onEvent。
// 返回首个出现的平台任务ID；传输层错误只以 error 事件通知，不作为返回值。
func (c *PlatformClient) StreamAnalysis(ctx context.Context, files []models.FileRef, user string, onEvent func(models.Event)) (string, error) {
	if len(files) == 0 {
		onEvent(models.ErrorEvent{Message: "请至少选择一个文件进行分析"})
		return "", nil
	}
	if c.conf.ApiKey == "" {
		onEvent(models.ErrorEvent{Message: ErrPlatformNotConfigured.Error()})
		return "", ErrPlatformNotConfigured
	}
	if user == "" {
		user = c.conf.User
	}

	if err := c.limiter.Wait(ctx); err != nil {
		onEvent(models.ErrorEvent{Message: fmt.Sprintf("等待分析请求配额失败: %v", err)})
		return "", nil
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var watchdog *idleReader
	if c.conf.IdleTimeout > 0 {
		timer := time.AfterFunc(c.conf.IdleTimeout, func() { cancel(ErrStreamIdle) })
		defer timer.Stop()
		watchdog = &idleReader{ctx: ctx, timer: timer, idle: c.conf.IdleTimeout}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(c.buildRequest(files, user)).
		DisableAutoReadResponse().
		Post(c.conf.Endpoint)
	if err != nil {
		if ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		log.Errorf("open analysis stream failed: %v", err)
		onEvent(models.ErrorEvent{Message: fmt.Sprintf("连接分析平台失败: %v", err)})
		return "", nil
	}
	defer resp.Body.Close()

	if !resp.IsSuccessState() {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Errorf("analysis platform returned %s: %s", resp.Status, text)
		onEvent(models.ErrorEvent{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("分析平台返回错误: %s %s", resp.Status, strings.TrimSpace(string(text))),
		})
		return "", nil
	}

	var body io.Reader = resp.Body
	if watchdog != nil {
		watchdog.r = resp.Body
		watchdog.timer.Reset(watchdog.idle)
		body = watchdog
	}

	taskID, err := DecodeEventStream(body, onEvent)
	if err != nil {
		log.Errorf("analysis stream aborted, task %s: %v", taskID, err)
	}
	return taskID, nil
}

// StopGenerating 请求平台停止任务，失败只记录日志并返回 false
func (c *PlatformClient) StopGenerating(ctx context.Context, taskID, user string) bool {
	if taskID == "" || c.conf.ApiKey == "" {
		return false
	}
	if user == "" {
		user = c.conf.User
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(map[string]string{"user": user}).
		Post("/stop-generating/" + url.PathEscape(taskID))
	if err != nil {
		log.Errorf("stop task %s failed: %v", taskID, err)
		return false
	}
	if !resp.IsSuccessState() {
		log.Errorf("stop task %s failed: %s %s", taskID, resp.Status, resp.String())
		return false
	}
	log.Infof("task %s stop requested", taskID)
	return true
}
