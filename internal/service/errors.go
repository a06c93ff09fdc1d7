package service

import (
	"errors"
	"fmt"

	"github.com/d60-Lab/tutorlink/internal/model"
)

var (
	ErrMissingParties     = errors.New("studentId and teacherId are required")
	ErrSelfConnection     = errors.New("studentId and teacherId must differ")
	ErrInvalidRequester   = errors.New("requestedBy must be the student or the teacher")
	ErrMissingUserID      = errors.New("userId is required")
	ErrInvalidStatus      = errors.New("status must be one of accepted, rejected, cancelled")
	ErrInvalidTransition  = errors.New("status transition not allowed")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConcurrentUpdate   = errors.New("connection status changed concurrently")
)

var validationErrors = []error{
	ErrMissingParties, ErrSelfConnection, ErrInvalidRequester, ErrMissingUserID, ErrInvalidStatus, ErrInvalidTransition,
}

// IsValidation 调用方输入错误（400）
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// DuplicateConnectionError 同一对学生/老师已有 pending 或 accepted 的请求
type DuplicateConnectionError struct {
	ConnectionID string
	Status       model.ConnectionStatus
}

func (e *DuplicateConnectionError) Error() string {
	return fmt.Sprintf("an active connection request already exists (%s, %s)", e.ConnectionID, e.Status)
}
