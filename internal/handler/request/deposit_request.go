package request

type LatestDepositsQuery struct {
	UserID  uint64 `form:"user_id" binding:"required"`
	Chain   string `form:"chain" binding:"required,chain"`
	Network string `form:"network" binding:"max=32"`
	Asset   string `form:"asset" binding:"required,asset"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

type DepositFeedQuery struct {
	UserID uint64 `form:"user_id" binding:"required"`
}
