package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
	"github.com/d60-Lab/tutorlink/pkg/logger"
)

// CreateInput 创建连接请求的参数；CallerID 来自身份中间件，可以为空
type CreateInput struct {
	StudentID   string
	TeacherID   string
	RequestedBy string
	Message     string
	CallerID    string
}

// ConnectionService 连接请求生命周期
type ConnectionService interface {
	// Create 同一对已有 pending/accepted 记录时返回 *DuplicateConnectionError
	Create(ctx context.Context, in CreateInput) (*model.Connection, error)
	Get(ctx context.Context, id string) (*model.ConnectionView, error)
	UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) (*model.Connection, error)
	Delete(ctx context.Context, id string) error
	// List 不会因为查询层失败而报错，最坏情况返回空列表
	List(ctx context.Context, q ListQuery) ([]model.ConnectionView, error)
}

type connectionService struct {
	conns    repository.ConnectionRepository
	index    IndexWriter
	resolver *QueryResolver
	enricher *ProfileEnricher
	now      func() time.Time
}

func NewConnectionService(conns repository.ConnectionRepository, index IndexWriter, resolver *QueryResolver, enricher *ProfileEnricher) ConnectionService {
	return &connectionService{
		conns:    conns,
		index:    index,
		resolver: resolver,
		enricher: enricher,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *connectionService) Create(ctx context.Context, in CreateInput) (*model.Connection, error) {
	studentID := strings.TrimSpace(in.StudentID)
	teacherID := strings.TrimSpace(in.TeacherID)
	if studentID == "" || teacherID == "" {
		return nil, ErrMissingParties
	}
	if studentID == teacherID {
		return nil, ErrSelfConnection
	}
	requestedBy := strings.TrimSpace(in.RequestedBy)
	if requestedBy == "" {
		requestedBy = studentID
		if in.CallerID == teacherID {
			requestedBy = teacherID
		}
	}
	if requestedBy != studentID && requestedBy != teacherID {
		return nil, ErrInvalidRequester
	}

	existing, err := s.conns.FindActiveByPair(ctx, studentID, teacherID)
	switch {
	case err == nil:
		return nil, &DuplicateConnectionError{ConnectionID: existing.ID, Status: existing.Status}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("find active connection: %w", err)
	}

	now := s.now()
	c := &model.Connection{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		TeacherID:   teacherID,
		RequestedBy: requestedBy,
		Message:     in.Message,
		Status:      model.ConnectionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.conns.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}
	if !created {
		// 并发创建输给了另一个请求，读回胜出者
		winner, err := s.conns.FindActiveByPair(ctx, studentID, teacherID)
		if err != nil {
			return nil, fmt.Errorf("read concurrent connection: %w", err)
		}
		return nil, &DuplicateConnectionError{ConnectionID: winner.ID, Status: winner.Status}
	}

	s.index.ConnectionCreated(ctx, c)
	logger.Info("connection requested",
		zap.String("connection", c.ID), zap.String("student", studentID),
		zap.String("teacher", teacherID), zap.String("requested_by", requestedBy))
	return c, nil
}

func (s *connectionService) Get(ctx context.Context, id string) (*model.ConnectionView, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	views := s.enricher.Enrich(ctx, []model.Connection{*c})
	return &views[0], nil
}

func (s *connectionService) UpdateStatus(ctx context.Context, id string, status model.ConnectionStatus) (*model.Connection, error) {
	if !status.IsUpdateTarget() {
		return nil, ErrInvalidStatus
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, status)
	}

	now := s.now()
	ok, err := s.conns.UpdateStatus(ctx, c, status, now)
	if err != nil {
		return nil, fmt.Errorf("update connection status: %w", err)
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}
	prev := c.Status
	c.Status = status
	c.UpdatedAt = now
	c.ActivePair = model.ActivePairKey(c.StudentID, c.TeacherID, status)

	s.index.ConnectionUpdated(ctx, c)
	logger.Info("connection status changed",
		zap.String("connection", c.ID), zap.String("from", string(prev)), zap.String("to", string(status)))
	return c, nil
}

func (s *connectionService) Delete(ctx context.Context, id string) error {
	c, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.conns.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if !deleted {
		return ErrConnectionNotFound
	}
	s.index.ConnectionDeleted(ctx, c)
	logger.Info("connection deleted", zap.String("connection", id))
	return nil
}

func (s *connectionService) List(ctx context.Context, q ListQuery) ([]model.ConnectionView, error) {
	q.UserID = strings.TrimSpace(q.UserID)
	if q.UserID == "" {
		return nil, ErrMissingUserID
	}
	conns := s.resolver.ListForUser(ctx, q)
	return s.enricher.Enrich(ctx, conns), nil
}

func (s *connectionService) load(ctx context.Context, id string) (*model.Connection, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrConnectionNotFound
	}
	c, err := s.conns.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}
