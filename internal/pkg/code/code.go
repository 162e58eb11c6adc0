package code

const (
	Success       = 200
	ParamErr      = 400
	NotFound      = 404
	HTTPStatusErr = 500
	PlatformErr   = 502
)

const (
	MsgSuccess  = "success"
	MsgParamErr = "参数错误"
	MsgNotFound = "记录不存在"
	MsgFailed   = "操作失败"
)
