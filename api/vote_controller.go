package api

import (
	"net/http"

	"ovozber-backend/model"
	"ovozber-backend/service"

	"github.com/gin-gonic/gin"
)

// 拒绝原因对应的状态码
var rejectStatus = map[model.RejectReason]int{
	model.ReasonUserNotFound:      http.StatusNotFound,
	model.ReasonPollNotFound:      http.StatusNotFound,
	model.ReasonCandidateNotFound: http.StatusNotFound,
	model.ReasonPollClosed:        http.StatusForbidden,
	model.ReasonAlreadyVoted:      http.StatusConflict,
	model.ReasonCandidateMismatch: http.StatusUnprocessableEntity,
}

// VoteController 投票提交
type VoteController struct {
	votes *service.VoteService
}

// NewVoteController 创建投票控制器
func NewVoteController(votes *service.VoteService) *VoteController {
	return &VoteController{votes: votes}
}

// RegisterRoutes 注册投票路由，middleware 只作用于提交投票
func (c *VoteController) RegisterRoutes(api *gin.RouterGroup, middleware ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc{}, middleware...), c.CastVote)
	api.POST("/votes", handlers...)
}

// CastVote 提交投票
func (c *VoteController) CastVote(ctx *gin.Context) {
	var req model.CastVoteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}
	req.IPAddress = ctx.ClientIP()

	result, err := c.votes.CastVote(ctx.Request.Context(), req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	if !result.Success {
		status, ok := rejectStatus[result.Reason]
		if !ok {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, result)
		return
	}
	ctx.JSON(http.StatusCreated, result)
}
