package api

import (
	"net/http"

	"ovozber-backend/conversation"

	"github.com/gin-gonic/gin"
)

// ConversationController 聊天消息入口，每个请求对应一条入站消息
type ConversationController struct {
	machine *conversation.Machine
}

// NewConversationController 创建会话控制器
func NewConversationController(machine *conversation.Machine) *ConversationController {
	return &ConversationController{machine: machine}
}

// RegisterRoutes 注册会话路由
func (c *ConversationController) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/conversations/:telegram_id/events", c.HandleEvent)
}

// HandleEvent 执行一次状态转换并返回下一条提示
func (c *ConversationController) HandleEvent(ctx *gin.Context) {
	telegramID, ok := parseTelegramID(ctx.Param("telegram_id"))
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid telegram_id"})
		return
	}

	var ev conversation.Event
	if err := ctx.ShouldBindJSON(&ev); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	prompt, err := c.machine.Handle(ctx.Request.Context(), telegramID, ev)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, prompt)
}
