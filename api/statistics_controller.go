package api

import (
	"net/http"

	"ovozber-backend/service"

	"github.com/gin-gonic/gin"
)

// StatisticsController 统计查询，每次实时计算
type StatisticsController struct {
	stats *service.StatisticsService
}

// NewStatisticsController 创建统计控制器
func NewStatisticsController(stats *service.StatisticsService) *StatisticsController {
	return &StatisticsController{stats: stats}
}

// RegisterRoutes 注册统计路由
func (c *StatisticsController) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/polls/:id/statistics", c.PollStatistics)
	api.GET("/statistics", c.GlobalStatistics)
}

// PollStatistics 单个投票的统计
func (c *StatisticsController) PollStatistics(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	stats, err := c.stats.PollStatistics(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}

// GlobalStatistics 全站统计
func (c *StatisticsController) GlobalStatistics(ctx *gin.Context) {
	stats, err := c.stats.GlobalStatistics(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, stats)
}
