package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound 记录不存在或不属于当前用户
var ErrNotFound = errors.New("record not found")

// Repository gorm数据访问
type Repository struct {
	db *gorm.DB
}

// New 创建Repository
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB 返回底层连接
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
