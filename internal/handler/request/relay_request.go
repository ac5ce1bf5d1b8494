package request

// PairRequest 配对请求参数
type PairRequest struct {
	URI string `json:"uri" binding:"required,startswith=wc:"` // WalletConnect 配对 URI
}

// InitSessionRequest 重新初始化会话传输层 (身份变化时调用)
type InitSessionRequest struct {
	Name string `json:"name" binding:"omitempty,max=64"` // 展示给 dApp 的钱包名
}

// HistoryQuery 归档查询参数
type HistoryQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}
