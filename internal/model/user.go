package model

import "time"

// User 用户资料（只读，用于连接列表补全）
type User struct {
	ID           string `gorm:"primaryKey;type:varchar(128)"`
	DisplayName  string `gorm:"type:varchar(128)"`
	Email        string `gorm:"type:varchar(255);index"`
	Role         string `gorm:"type:varchar(16)"`
	ProfileImage string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (User) TableName() string { return "users" }

// Profile 返回给调用方的精简资料
func (u User) Profile() Profile {
	return Profile{UID: u.ID, DisplayName: u.DisplayName, Email: u.Email, Role: u.Role, ProfileImage: u.ProfileImage}
}

// Profile 附加在连接上的精简资料；资料缺失时只有 uid
type Profile struct {
	UID          string `json:"uid" dynamodbav:"userId" bson:"_id"`
	DisplayName  string `json:"displayName,omitempty" dynamodbav:"displayName,omitempty" bson:"displayName,omitempty"`
	Email        string `json:"email,omitempty" dynamodbav:"email,omitempty" bson:"email,omitempty"`
	Role         string `json:"role,omitempty" dynamodbav:"role,omitempty" bson:"role,omitempty"`
	ProfileImage string `json:"profileImage,omitempty" dynamodbav:"profileImage,omitempty" bson:"profileImage,omitempty"`
}

// ConnectionView 带双方资料的连接
type ConnectionView struct {
	Connection
	Student Profile `json:"student"`
	Teacher Profile `json:"teacher"`
}
