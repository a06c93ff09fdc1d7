package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/repository"
	"github.com/d60-Lab/tutorlink/pkg/logger"
)

// ListQuery 查询某用户的连接；Role / Status 为空表示不过滤
type ListQuery struct {
	UserID string
	Role   model.Role
	Status model.ConnectionStatus
}

// listStrategy 一层查询；返回空结果或错误时交给下一层
type listStrategy struct {
	name string
	run  func(ctx context.Context, q ListQuery) ([]model.Connection, error)
}

// QueryResolver 三层降级查询：
//  1. 用户索引（按 created_at 倒序）+ 分片批量回查主表，主记录缺失时用镜像快照
//  2. 主表按 student_id / teacher_id 查询（索引尚未回填的历史数据）
//  3. 用户索引不排序（排序所需的复合索引不可用时）
//
// 最后再读一次用户索引，把只在镜像里出现的连接补进结果，按 connectionId 去重。
type QueryResolver struct {
	conns      repository.ConnectionRepository
	index      repository.UserConnectionRepository
	batchSize  int
	strategies []listStrategy
}

func NewQueryResolver(conns repository.ConnectionRepository, index repository.UserConnectionRepository, batchSize int) *QueryResolver {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	r := &QueryResolver{conns: conns, index: index, batchSize: batchSize}
	r.strategies = []listStrategy{
		{name: "index_first", run: r.indexFirst},
		{name: "primary_table", run: r.primaryTable},
		{name: "degraded_index", run: r.degradedIndex},
	}
	return r
}

// ListForUser 从不返回错误：所有层都失败时结果为空
func (r *QueryResolver) ListForUser(ctx context.Context, q ListQuery) []model.Connection {
	tracer := otel.Tracer("tutorlink/resolver")

	var result []model.Connection
	for _, s := range r.strategies {
		spanCtx, span := tracer.Start(ctx, "resolver."+s.name)
		res, err := s.run(spanCtx, q)
		span.SetAttributes(attribute.String("user_id", q.UserID), attribute.Int("results", len(res)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("connection query tier failed, falling back",
				zap.String("tier", s.name), zap.String("user", q.UserID), zap.Error(err))
		}
		span.End()
		if err == nil && len(res) > 0 {
			logger.Debug("connection query resolved",
				zap.String("tier", s.name), zap.String("user", q.UserID), zap.Int("results", len(res)))
			result = res
			break
		}
	}
	return r.merge(ctx, q, result)
}

func (r *QueryResolver) indexFirst(ctx context.Context, q ListQuery) ([]model.Connection, error) {
	entries, err := r.index.ListByOwner(ctx, q.UserID, repository.IndexFilter{Role: q.Role, Status: q.Status, Ordered: true})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ConnectionID)
	}
	primaries := make(map[string]*model.Connection, len(ids))
	for _, part := range chunk(ids, r.batchSize) {
		found, err := r.conns.GetByIDs(ctx, part)
		if err != nil {
			// 该分片使用镜像快照
			logger.Warn("batched connection lookup failed", zap.Strings("ids", part), zap.Error(err))
			continue
		}
		for _, c := range found {
			primaries[c.ID] = c
		}
	}

	out := make([]model.Connection, 0, len(entries))
	for _, e := range entries {
		if c, ok := primaries[e.ConnectionID]; ok {
			out = append(out, *c)
			continue
		}
		out = append(out, e.Snapshot())
	}
	return out, nil
}

func (r *QueryResolver) primaryTable(ctx context.Context, q ListQuery) ([]model.Connection, error) {
	role := q.Role
	if role == "" {
		role = model.RoleStudent
	}
	rows, err := r.conns.ListByParty(ctx, role, q.UserID, q.Status)
	if err != nil {
		return nil, err
	}
	out := make([]model.Connection, 0, len(rows))
	for _, c := range rows {
		out = append(out, *c)
	}
	return out, nil
}

func (r *QueryResolver) degradedIndex(ctx context.Context, q ListQuery) ([]model.Connection, error) {
	entries, err := r.index.ListByOwner(ctx, q.UserID, repository.IndexFilter{Role: q.Role, Status: q.Status})
	if err != nil {
		return nil, err
	}
	return snapshots(entries), nil
}

func (r *QueryResolver) merge(ctx context.Context, q ListQuery, result []model.Connection) []model.Connection {
	seen := make(map[string]struct{}, len(result))
	out := make([]model.Connection, 0, len(result))
	for _, c := range result {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}

	entries, err := r.index.ListByOwner(ctx, q.UserID, repository.IndexFilter{Role: q.Role, Status: q.Status})
	if err != nil {
		logger.Warn("index merge read failed", zap.String("user", q.UserID), zap.Error(err))
		return out
	}
	for _, e := range entries {
		if _, ok := seen[e.ConnectionID]; ok {
			continue
		}
		seen[e.ConnectionID] = struct{}{}
		out = append(out, e.Snapshot())
	}
	return out
}

func snapshots(entries []*model.UserConnection) []model.Connection {
	out := make([]model.Connection, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Snapshot())
	}
	return out
}
