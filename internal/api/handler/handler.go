package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tutorlink/internal/service"
)

// Handler HTTP 处理器
type Handler struct {
	connService service.ConnectionService
}

func NewHandler(connService service.ConnectionService) *Handler {
	return &Handler{connService: connService}
}

// Health 健康检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
