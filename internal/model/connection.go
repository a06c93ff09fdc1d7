package model

import (
	"fmt"
	"time"
)

// ConnectionStatus 连接请求状态
type ConnectionStatus string

const (
	ConnectionStatusPending   ConnectionStatus = "pending"
	ConnectionStatusAccepted  ConnectionStatus = "accepted"
	ConnectionStatusRejected  ConnectionStatus = "rejected"
	ConnectionStatusCancelled ConnectionStatus = "cancelled"
)

// ParseConnectionStatus 只接受四个已知状态
func ParseConnectionStatus(s string) (ConnectionStatus, error) {
	switch st := ConnectionStatus(s); st {
	case ConnectionStatusPending, ConnectionStatusAccepted, ConnectionStatusRejected, ConnectionStatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown connection status %q", s)
	}
}

// IsActive pending 与 accepted 占用 (student, teacher) 对
func (s ConnectionStatus) IsActive() bool {
	return s == ConnectionStatusPending || s == ConnectionStatusAccepted
}

// IsUpdateTarget 状态更新只能写入 accepted / rejected / cancelled
func (s ConnectionStatus) IsUpdateTarget() bool {
	return s == ConnectionStatusAccepted || s == ConnectionStatusRejected || s == ConnectionStatusCancelled
}

// CanTransitionTo 生命周期：
// pending -> accepted | rejected | cancelled, accepted -> cancelled；
// 对非 pending 状态重复写入相同值视为幂等刷新。
func (s ConnectionStatus) CanTransitionTo(next ConnectionStatus) bool {
	if !next.IsUpdateTarget() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case ConnectionStatusPending:
		return true
	case ConnectionStatusAccepted:
		return next == ConnectionStatusCancelled
	default:
		return false
	}
}

// Role 用户在连接中扮演的一方
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleTeacher:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Connection 学生与老师之间的连接请求（权威记录）
type Connection struct {
	ID          string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StudentID   string           `json:"studentId" gorm:"type:varchar(128);index:idx_conn_student_created;index:idx_conn_pair;not null"`
	TeacherID   string           `json:"teacherId" gorm:"type:varchar(128);index:idx_conn_teacher_created;index:idx_conn_pair;not null"`
	RequestedBy string           `json:"requestedBy" gorm:"type:varchar(128);not null"`
	Message     string           `json:"message" gorm:"type:text"`
	Status      ConnectionStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	// 仅在 pending/accepted 时为 "student|teacher"，其余为 NULL；唯一索引保证同一对只有一条活跃记录
	ActivePair *string   `json:"-" gorm:"type:varchar(260);uniqueIndex:ux_conn_active_pair"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index:idx_conn_student_created;index:idx_conn_teacher_created;not null"`
	UpdatedAt  time.Time `json:"updatedAt" gorm:"not null"`
}

func (Connection) TableName() string { return "connections" }

// ActivePairKey 计算 active_pair 列的值
func ActivePairKey(studentID, teacherID string, status ConnectionStatus) *string {
	if !status.IsActive() {
		return nil
	}
	key := studentID + "|" + teacherID
	return &key
}

// RoleOf 返回 userID 在该连接中的角色
func (c *Connection) RoleOf(userID string) (Role, bool) {
	switch userID {
	case c.StudentID:
		return RoleStudent, true
	case c.TeacherID:
		return RoleTeacher, true
	default:
		return "", false
	}
}

// Mirrors 生成学生侧与老师侧两条索引记录
func (c *Connection) Mirrors() []UserConnection {
	return []UserConnection{c.mirrorFor(c.StudentID, RoleStudent), c.mirrorFor(c.TeacherID, RoleTeacher)}
}

func (c *Connection) mirrorFor(owner string, role Role) UserConnection {
	return UserConnection{
		OwnerUserID:  owner,
		ConnectionID: c.ID,
		StudentID:    c.StudentID,
		TeacherID:    c.TeacherID,
		Role:         role,
		RequestedBy:  c.RequestedBy,
		Message:      c.Message,
		Status:       c.Status,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
