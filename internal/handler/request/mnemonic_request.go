package request

// CreateMnemonicRequest 创建主密钥并开始抄写确认
type CreateMnemonicRequest struct {
	Password string `json:"password" binding:"required,min=8,max=128"`
	Words    int    `json:"words" binding:"omitempty,oneof=12 15 18 21 24"` // 默认 24 个单词
}

// VerifyMnemonicRequest answers 的 key 为挖空位置 (0 起)
type VerifyMnemonicRequest struct {
	Answers map[int]string `json:"answers" binding:"required"`
}
