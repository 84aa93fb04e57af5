package model

// AllModels 返回所有需要迁移的数据库模型对象
// 生产环境使用 migrations/ 下的 SQL，这里只用于开发环境 AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&WalletRoot{},
		&DepositAddress{},
		&UserDepositAddress{},
		&Deposit{},
		&OutboxMessage{},
	}
}
