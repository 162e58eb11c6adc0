package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	log "github.com/sirupsen/logrus"

	"audit-agent/internal/app/models"
	"audit-agent/internal/app/repositories"
	"audit-agent/pkg/config"
	"audit-agent/pkg/util"
)

// KnowledgeChatService 基于已入库事项的知识库问答
type KnowledgeChatService struct {
	client openai.Client
	conf   config.Openai
	items  *repositories.ExtractedItemRepository
}

func NewKnowledgeChatService(conf config.Openai, items *repositories.ExtractedItemRepository) *KnowledgeChatService {
	if conf.ChatPrompt == "" {
		conf.ChatPrompt = config.DefaultChatPrompt
	}
	if conf.RetrieveLimit <= 0 {
		conf.RetrieveLimit = 20
	}
	return &KnowledgeChatService{
		client: openai.NewClient(
			option.WithAPIKey(conf.ApiKey),
			option.WithBaseURL(conf.BaseURL),
		),
		conf:  conf,
		items: items,
	}
}

// Retrieve 按问题关键词检索事项，无命中时退回到项目最近的事项
func (s *KnowledgeChatService) Retrieve(projectID uint64, question string) ([]models.ExtractedItem, error) {
	items, err := s.items.Search(projectID, keywords(question), s.conf.RetrieveLimit)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return s.items.ListByProject(projectID, s.conf.RetrieveLimit, 0)
	}
	return items, nil
}

func (s *KnowledgeChatService) buildPrompt(req models.ChatRequest, items []models.ExtractedItem) string {
	var b strings.Builder
	for i := range items {
		it := &items[i]
		fmt.Fprintf(&b, "%d. [%s] %s %s 议题：%s；结论：%s；摘要：%s",
			i+1, it.EventCategory, it.MeetingTime, it.DocumentNumber, it.Topic, it.Conclusion, it.Summary)
		if it.AmountInvolved != nil {
			fmt.Fprintf(&b, "；金额：%.2f", *it.AmountInvolved)
		}
		b.WriteString("\n")
	}
	prompt := util.RenderPrompt(s.conf.ChatPrompt, map[string]string{
		"context":        b.String(),
		"input_question": req.Input,
	})
	if req.History != "" {
		prompt = "对话历史：\n" + req.History + "\n\n" + prompt
	}
	return prompt
}

// ChatStream 流式回答，内容通道关闭表示结束
func (s *KnowledgeChatService) ChatStream(ctx context.Context, req models.ChatRequest) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errorChan := make(chan error, 1) // 缓冲通道，避免goroutine泄漏

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		items, err := s.Retrieve(req.ProjectID, req.Input)
		if err != nil {
			errorChan <- fmt.Errorf("检索事项失败: %w", err)
			return
		}
		log.Debugf("chat project %d retrieved %d items", req.ProjectID, len(items))

		stream := s.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage("You are a helpful assistant."),
				openai.UserMessage(s.buildPrompt(req, items)),
			},
			Model:       s.conf.Model,
			Temperature: openai.Float(0),
		})
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				select {
				case contentChan <- content:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			errorChan <- err
		}
	}()

	return contentChan, errorChan
}

// keywords 按空白和标点切分问题，去掉单字
func keywords(question string) []string {
	fields := strings.FieldsFunc(question, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			out = append(out, f)
		}
	}
	return out
}
