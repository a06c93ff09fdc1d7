package model

import "time"

// UserConnection 按用户冗余的连接索引（每条连接两份：学生侧 + 老师侧），冗余自 Connection
type UserConnection struct {
	OwnerUserID  string           `json:"ownerUserId" gorm:"primaryKey;type:varchar(128);index:idx_uc_owner_created"`
	ConnectionID string           `json:"connectionId" gorm:"primaryKey;type:varchar(36);index"`
	StudentID    string           `json:"studentId" gorm:"type:varchar(128);not null"`
	TeacherID    string           `json:"teacherId" gorm:"type:varchar(128);not null"`
	Role         Role             `json:"role" gorm:"type:varchar(16);not null"`
	RequestedBy  string           `json:"requestedBy" gorm:"type:varchar(128)"`
	Message      string           `json:"message" gorm:"type:text"`
	Status       ConnectionStatus `json:"status" gorm:"type:varchar(16);index"`
	CreatedAt    time.Time        `json:"createdAt" gorm:"index:idx_uc_owner_created"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

func (UserConnection) TableName() string { return "user_connections" }

// Snapshot 主记录缺失时，用冗余字段还原一条连接
func (u *UserConnection) Snapshot() Connection {
	return Connection{
		ID:          u.ConnectionID,
		StudentID:   u.StudentID,
		TeacherID:   u.TeacherID,
		RequestedBy: u.RequestedBy,
		Message:     u.Message,
		Status:      u.Status,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
