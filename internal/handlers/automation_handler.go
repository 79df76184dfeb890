package handlers

import (
	"errors"
	"net/http"

	"hostpilot/internal/models"
	"hostpilot/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler exposes the engine surface over HTTP. It is a thin
// shell: validation, scheduling and execution all live behind the service.
type AutomationHandler struct {
	service *services.AutomationService
	logger  *logrus.Logger
}

func NewAutomationHandler(service *services.AutomationService, logger *logrus.Logger) *AutomationHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationHandler{service: service, logger: logger}
}

// ListAutomations 获取全部自动化规则
func (h *AutomationHandler) ListAutomations(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.ListRules(c.Request.Context()))
}

// GetAutomation 获取单条规则
func (h *AutomationHandler) GetAutomation(c *gin.Context) {
	rule, err := h.service.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateAutomation 创建规则
func (h *AutomationHandler) CreateAutomation(c *gin.Context) {
	var rule models.AutomationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	id, err := h.service.CreateRule(c.Request.Context(), &rule)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse{Message: "Automation created", Data: gin.H{"id": id}})
}

// UpdateAutomation 全量替换规则
func (h *AutomationHandler) UpdateAutomation(c *gin.Context) {
	var rule models.AutomationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	if err := h.service.UpdateRule(c.Request.Context(), c.Param("id"), &rule); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Automation updated"})
}

// DeleteAutomation 删除规则并取消其调度
func (h *AutomationHandler) DeleteAutomation(c *gin.Context) {
	if err := h.service.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Automation deleted"})
}

// ExecuteAutomation 立即执行（跳过触发器判定）
func (h *AutomationHandler) ExecuteAutomation(c *gin.Context) {
	started, err := h.service.ExecuteNow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	if !started {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Already running", Message: "an execution for this automation is still in flight"})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Automation execution started"})
}

// Status 引擎与主机状态
func (h *AutomationHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Status(c.Request.Context()))
}

func (h *AutomationHandler) renderError(c *gin.Context, err error) {
	if ve, ok := models.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Message: ve.Error()})
		return
	}
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found", Message: err.Error()})
		return
	}
	h.logger.Errorf("automation handler: %v", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal error", Message: err.Error()})
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	auto := r.Group("/automations")
	{
		auto.GET("", handler.ListAutomations)
		auto.POST("", handler.CreateAutomation)
		auto.GET(":id", handler.GetAutomation)
		auto.PUT(":id", handler.UpdateAutomation)
		auto.DELETE(":id", handler.DeleteAutomation)
		auto.POST(":id/execute", handler.ExecuteAutomation)
	}
	r.GET("/status", handler.Status)
}
