package api

import (
	"net/http"
	"strconv"

	"ovozber-backend/service"

	"github.com/gin-gonic/gin"
)

// CatalogController 频道、投票、地区、候选人查询
type CatalogController struct {
	catalog *service.CatalogService
}

// NewCatalogController 创建目录控制器
func NewCatalogController(catalog *service.CatalogService) *CatalogController {
	return &CatalogController{catalog: catalog}
}

// RegisterRoutes 注册目录查询路由
func (c *CatalogController) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/channels", c.ListChannels)

	polls := api.Group("/polls")
	{
		polls.GET("", c.ListPolls)
		polls.GET("/:id", c.GetPoll)
		polls.GET("/:id/regions", c.ListRegions)
		polls.GET("/:id/candidates", c.ListPollCandidates)
	}
	api.GET("/regions/:id/districts", c.ListDistricts)
	api.GET("/districts/:id/candidates", c.ListDistrictCandidates)
}

// ListChannels 必须订阅的频道
func (c *CatalogController) ListChannels(ctx *gin.Context) {
	channels, err := c.catalog.ListChannels(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, channels)
}

// ListPolls 默认只返回开放中的投票，?all=true 返回全部启用的投票
func (c *CatalogController) ListPolls(ctx *gin.Context) {
	all, _ := strconv.ParseBool(ctx.DefaultQuery("all", "false"))

	polls, err := c.catalog.ListPolls(ctx.Request.Context(), all)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, polls)
}

// GetPoll 投票详情
func (c *CatalogController) GetPoll(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	poll, err := c.catalog.GetPoll(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, poll)
}

// ListRegions 投票下的地区及区县
func (c *CatalogController) ListRegions(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	regions, err := c.catalog.ListGroups(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, regions)
}

// ListPollCandidates 投票下的全部候选人
func (c *CatalogController) ListPollCandidates(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	candidates, err := c.catalog.ListCandidatesByPoll(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, candidates)
}

// ListDistricts 地区下的区县
func (c *CatalogController) ListDistricts(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	districts, err := c.catalog.ListDistricts(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, districts)
}

// ListDistrictCandidates 区县下的候选人
func (c *CatalogController) ListDistrictCandidates(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}

	candidates, err := c.catalog.ListCandidatesByDistrict(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, candidates)
}
