package models

import (
	"time"

	"gorm.io/datatypes"
)

// User 用户账户
type User struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	Name      string    `json:"name" gorm:"size:255"`
	Email     string    `json:"email" gorm:"size:120;uniqueIndex;not null"`
	Password  string    `json:"-" gorm:"size:128;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserSettings 用户偏好，每个用户一行
type UserSettings struct {
	ID                uint                                `json:"-" gorm:"primarykey"`
	UserID            uint                                `json:"-" gorm:"uniqueIndex;not null"`
	Timezone          string                              `json:"timezone" gorm:"size:64"`
	Language          string                              `json:"language" gorm:"size:2"`
	Currency          string                              `json:"currency" gorm:"size:3"`
	RiskProfile       string                              `json:"riskProfile" gorm:"size:20"`
	InvestmentHorizon string                              `json:"investmentHorizon" gorm:"size:20"`
	Notifications     datatypes.JSONType[map[string]bool] `json:"notifications"`
	CreatedAt         time.Time                           `json:"-"`
	UpdatedAt         time.Time                           `json:"-"`
}
