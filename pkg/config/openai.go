package config

var myopenai Openai

// Openai 知识库问答使用的兼容模式接口
type Openai struct {
	ApiKey        string `mapstructure:"apikey"`
	BaseURL       string `mapstructure:"baseUrl"`
	Model         string `mapstructure:"model"`
	ChatPrompt    string `mapstructure:"chatPrompt"`
	RetrieveLimit int    `mapstructure:"retrieveLimit"`
}

func GetOpenaiConf() Openai {
	return myopenai
}

const DefaultChatPrompt = `你是一名审计助手，请根据以下“三重一大”事项记录回答问题。
记录：
{{context}}

问题：{{input_question}}
如果记录中没有相关信息，请直接说明。`
