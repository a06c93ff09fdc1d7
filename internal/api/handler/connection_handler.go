package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/tutorlink/internal/api/middleware"
	"github.com/d60-Lab/tutorlink/internal/model"
	"github.com/d60-Lab/tutorlink/internal/service"
	"github.com/d60-Lab/tutorlink/pkg/response"
)

type createConnectionRequest struct {
	StudentID   string `json:"studentId" binding:"required"`
	TeacherID   string `json:"teacherId" binding:"required"`
	RequestedBy string `json:"requestedBy"`
	Message     string `json:"message" binding:"max=2000"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required,connstatus"`
}

type listConnectionsQuery struct {
	UserID string `form:"userId"`
	Role   string `form:"role" binding:"omitempty,oneof=student teacher"`
	Status string `form:"status" binding:"omitempty,oneof=pending accepted rejected cancelled"`
}

// CreateConnection 发起连接请求
// @Summary 发起连接请求
// @Description 同一对学生/老师已有 pending 或 accepted 请求时返回 400 及已有请求的 connectionId/status
// @Tags 连接
// @Accept json
// @Produce json
// @Param request body createConnectionRequest true "连接请求"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /connections [post]
func (h *Handler) CreateConnection(c *gin.Context) {
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindErrorMessage(err))
		return
	}

	conn, err := h.connService.Create(c.Request.Context(), service.CreateInput{
		StudentID:   req.StudentID,
		TeacherID:   req.TeacherID,
		RequestedBy: req.RequestedBy,
		Message:     req.Message,
		CallerID:    middleware.CallerID(c),
	})
	var dup *service.DuplicateConnectionError
	switch {
	case err == nil:
		response.Created(c, gin.H{"connectionId": conn.ID, "connection": conn})
	case errors.As(err, &dup):
		response.Fail(c, http.StatusBadRequest, "connection request already exists", gin.H{
			"connectionId": dup.ConnectionID,
			"status":       dup.Status,
		})
	case service.IsValidation(err):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, "failed to create connection", err)
	}
}

// ListConnections 查询用户的连接
// @Summary 查询用户的连接
// @Description userId 缺省为当前登录用户；结果附带 student / teacher 资料
// @Tags 连接
// @Produce json
// @Param userId query string false "用户 ID"
// @Param role query string false "student 或 teacher"
// @Param status query string false "pending / accepted / rejected / cancelled"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.Response
// @Router /connections [get]
func (h *Handler) ListConnections(c *gin.Context) {
	var q listConnectionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, bindErrorMessage(err))
		return
	}
	if q.UserID == "" {
		q.UserID = middleware.CallerID(c)
	}

	views, err := h.connService.List(c.Request.Context(), service.ListQuery{
		UserID: q.UserID,
		Role:   model.Role(q.Role),
		Status: model.ConnectionStatus(q.Status),
	})
	if err != nil {
		if service.IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		response.InternalError(c, "failed to list connections", err)
		return
	}
	response.Success(c, gin.H{"connections": views, "total": len(views)})
}

// GetConnection 查询单个连接
// @Summary 查询单个连接
// @Tags 连接
// @Produce json
// @Param connectionId path string true "连接 ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} response.Response
// @Router /connections/{connectionId} [get]
func (h *Handler) GetConnection(c *gin.Context) {
	view, err := h.connService.Get(c.Request.Context(), c.Param("connectionId"))
	if err != nil {
		h.writeError(c, err, "failed to get connection")
		return
	}
	response.Success(c, gin.H{"connection": view})
}

// UpdateConnectionStatus 接受 / 拒绝 / 取消连接请求
// @Summary 更新连接状态
// @Tags 连接
// @Accept json
// @Produce json
// @Param connectionId path string true "连接 ID"
// @Param request body updateStatusRequest true "accepted / rejected / cancelled"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /connections/{connectionId} [put]
func (h *Handler) UpdateConnectionStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindErrorMessage(err))
		return
	}

	conn, err := h.connService.UpdateStatus(c.Request.Context(), c.Param("connectionId"), model.ConnectionStatus(req.Status))
	if err != nil {
		h.writeError(c, err, "failed to update connection")
		return
	}
	response.Success(c, gin.H{"message": "connection " + string(conn.Status), "connection": conn})
}

// DeleteConnection 删除连接
// @Summary 删除连接
// @Tags 连接
// @Produce json
// @Param connectionId path string true "连接 ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /connections/{connectionId} [delete]
func (h *Handler) DeleteConnection(c *gin.Context) {
	if err := h.connService.Delete(c.Request.Context(), c.Param("connectionId")); err != nil {
		h.writeError(c, err, "failed to delete connection")
		return
	}
	response.Success(c, gin.H{"message": "connection deleted"})
}

func (h *Handler) writeError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, service.ErrConnectionNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrConcurrentUpdate):
		response.Conflict(c, err.Error())
	case service.IsValidation(err):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, message, err)
	}
}

// bindErrorMessage 把绑定/校验错误转成逐字段的提示
func bindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "connstatus":
			msgs = append(msgs, service.ErrInvalidStatus.Error())
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
