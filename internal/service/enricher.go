package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/pkg/logger"
)

// DefaultBatchSize 批量存在性查询的分片大小
const DefaultBatchSize = 10

// ProfileSource 按用户 ID 批量读取资料；不存在的 ID 在结果中缺席即可
type ProfileSource interface {
	FetchProfiles(ctx context.Context, ids []string) (map[string]model.Profile, error)
}

// ProfileEnricher 为连接附加 student / teacher 资料，按分片批量查询而不是逐条查询
type ProfileEnricher struct {
	source    ProfileSource
	batchSize int
}

func NewProfileEnricher(source ProfileSource, batchSize int) *ProfileEnricher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ProfileEnricher{source: source, batchSize: batchSize}
}

// Enrich 总是为每条连接附加 student 和 teacher；资料缺失时只带 uid
func (e *ProfileEnricher) Enrich(ctx context.Context, conns []model.Connection) []model.ConnectionView {
	ids := partyIDs(conns)
	profiles := make(map[string]model.Profile, len(ids))

	if e.source != nil {
		for _, part := range chunk(ids, e.batchSize) {
			got, err := e.source.FetchProfiles(ctx, part)
			if err != nil {
				logger.Warn("profile batch lookup failed", zap.Strings("ids", part), zap.Error(err))
				continue
			}
			for id, p := range got {
				profiles[id] = p
			}
		}
	}

	views := make([]model.ConnectionView, 0, len(conns))
	for _, c := range conns {
		views = append(views, model.ConnectionView{
			Connection: c,
			Student:    profileOrStub(profiles, c.StudentID),
			Teacher:    profileOrStub(profiles, c.TeacherID),
		})
	}
	return views
}

func profileOrStub(profiles map[string]model.Profile, id string) model.Profile {
	if p, ok := profiles[id]; ok {
		p.UID = id
		return p
	}
	return model.Profile{UID: id}
}

// partyIDs 按首次出现顺序收集去重后的双方 ID
func partyIDs(conns []model.Connection) []string {
	seen := make(map[string]struct{}, len(conns)*2)
	ids := make([]string, 0, len(conns)*2)
	for _, c := range conns {
		for _, id := range []string{c.StudentID, c.TeacherID} {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}

func chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	parts := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		parts = append(parts, ids[start:end])
	}
	return parts
}
