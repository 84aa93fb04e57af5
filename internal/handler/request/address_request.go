package request

// AllocateAddressRequest 获取充值地址，network 为空时使用该链的主网
type AllocateAddressRequest struct {
	UserID  uint64 `json:"user_id" binding:"required"`
	Chain   string `json:"chain" binding:"required,chain"` // evm / tron / btc / xrp 及其别名
	Network string `json:"network" binding:"max=32"`
	Asset   string `json:"asset" binding:"required,asset"`
}

type ListAddressesQuery struct {
	UserID uint64 `form:"user_id" binding:"required"`
}

type ClassifyRequest struct {
	Address        string `json:"address" binding:"required,max=128"`
	Network        string `json:"network" binding:"max=64"`
	DerivationPath string `json:"derivation_path" binding:"max=128"`
}
