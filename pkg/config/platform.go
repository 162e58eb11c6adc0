package config

import "time"

var platformConf Platform

// Platform 文档分析所用的大模型应用平台
type Platform struct {
	BaseURL     string        `mapstructure:"baseUrl"`
	ApiKey      string        `mapstructure:"apiKey"`
	Endpoint    string        `mapstructure:"endpoint"`
	Prompt      string        `mapstructure:"prompt"`
	User        string        `mapstructure:"user"`
	IdleTimeout time.Duration `mapstructure:"idleTimeout"`
	QPS         float64       `mapstructure:"qps"`
	Burst       int           `mapstructure:"burst"`
}

func GetPlatformConf() Platform {
	return platformConf
}

const DefaultAnalysisPrompt = `请阅读附件中的会议纪要或合同（文件ID：{{file_ids}}），提取其中涉及“三重一大”的事项。
事项类别只能是：重大决策、重要人事任免、重大项目、大额资金。
以 JSON 数组输出，放在 ` + "```json" + ` 代码块中，每个元素包含字段：
eventCategory, meetingTime, documentNumber, topic, conclusion, summary,
amountInvolved, departments, personnel, decisionBasis, originalText。`
