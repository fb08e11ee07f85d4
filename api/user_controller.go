package api

import (
	"net/http"

	"ovozber-backend/model"
	"ovozber-backend/service"

	"github.com/gin-gonic/gin"
)

// UserController 用户注册、订阅、投票状态
type UserController struct {
	users *service.UserService
}

// NewUserController 创建用户控制器
func NewUserController(users *service.UserService) *UserController {
	return &UserController{users: users}
}

// RegisterRoutes 注册用户相关路由
func (c *UserController) RegisterRoutes(api *gin.RouterGroup) {
	users := api.Group("/users")
	{
		users.POST("/register", c.Register)
		users.POST("/:telegram_id/subscribe", c.MarkSubscribed)
		users.GET("/:telegram_id/voted-polls", c.VotedPolls)
	}
	api.POST("/check-subscription", c.CheckSubscription)
	api.GET("/polls/:id/has-voted", c.HasVoted)
}

// Register 注册或更新用户，新建返回 201
func (c *UserController) Register(ctx *gin.Context) {
	var req model.RegisterUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	user, created, err := c.users.RegisterOrUpdate(ctx.Request.Context(), req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ctx.JSON(status, user)
}

// MarkSubscribed 确认用户已订阅
func (c *UserController) MarkSubscribed(ctx *gin.Context) {
	telegramID, ok := parseTelegramID(ctx.Param("telegram_id"))
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid telegram_id"})
		return
	}

	if err := c.users.MarkSubscribed(ctx.Request.Context(), telegramID); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Subscription confirmed"})
}

// VotedPolls 用户已投过的投票
func (c *UserController) VotedPolls(ctx *gin.Context) {
	telegramID, ok := parseTelegramID(ctx.Param("telegram_id"))
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid telegram_id"})
		return
	}

	polls, err := c.users.VotedPolls(ctx.Request.Context(), telegramID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, polls)
}

// CheckSubscription 订阅状态，带 poll_id 时同时返回是否已投票
func (c *UserController) CheckSubscription(ctx *gin.Context) {
	var req model.CheckSubscriptionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	status, err := c.users.SubscriptionStatus(ctx.Request.Context(), req)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, status)
}

// HasVoted 查询用户是否已在该投票中投票
func (c *UserController) HasVoted(ctx *gin.Context) {
	pollID, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	telegramID, ok := parseTelegramID(ctx.Query("telegram_id"))
	if !ok {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "telegram_id is required"})
		return
	}

	voted, err := c.users.HasVoted(ctx.Request.Context(), telegramID, pollID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"poll_id": pollID, "telegram_id": telegramID, "has_voted": voted})
}
