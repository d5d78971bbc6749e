package services

import "gorm.io/gorm"

// ownedBy 限定租户；userID 为 0 表示系统调用（CLI、扫描器）不过滤
func ownedBy(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if userID == 0 {
			return db
		}
		return db.Where("user_id = ?", userID)
	}
}

// normalizePage 归一化分页参数
func normalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
