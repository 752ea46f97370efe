package api

import (
	"net/http"

	"github.com/Kellerman81/go_media_organizer/config"
	"github.com/Kellerman81/go_media_organizer/database"
	"github.com/Kellerman81/go_media_organizer/logger"
	"github.com/Kellerman81/go_media_organizer/parser"
	"github.com/Kellerman81/go_media_organizer/scheduler"
	"github.com/Kellerman81/go_media_organizer/tasks"
	"github.com/Kellerman81/go_media_organizer/utils"
	gin "github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

func AddGeneralRoutes(rg *gin.RouterGroup) {
	rg.GET("/parse", apiParse)
	rg.GET("/queue", apiQueue)
	rg.GET("/schedules", apiSchedules)
	rg.GET("/jobs", apiJobsList)
	rg.POST("/jobs/:name", apiJobsStart)
	rg.GET("/history", apiJobHistory)
}

// @Summary Parse a release name
// @Param name query string true "release or folder name"
// @Param config query string false "movie section for the default quality"
// @Success 200 {object} parser.ParseInfo
// @Router /api/parse [get]
func apiParse(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		abortError(c, errors.Wrap(logger.ErrInvalidInput, "name is required"))
		return
	}
	m, err := parser.NewFileParser(name, c.Query("year") == "true")
	if err != nil {
		abortError(c, err)
		return
	}
	var quality, resolution string
	if cfgname := c.Query("config"); cfgname != "" {
		cfg, err := config.GetMovie(cfgname)
		if err != nil {
			abortError(c, err)
			return
		}
		quality, resolution = cfg.DefaultQuality, cfg.DefaultResolution
	}
	m.GetPriority(quality, resolution)
	c.JSON(http.StatusOK, m)
}

// @Summary List queued and running jobs
// @Router /api/queue [get]
func apiQueue(c *gin.Context) {
	jobs := []tasks.Job{}
	for _, q := range scheduler.Queues() {
		jobs = append(jobs, q.Queue()...)
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs, "rows": len(jobs)})
}

// @Summary List schedules
// @Router /api/schedules [get]
func apiSchedules(c *gin.Context) {
	schedules := []tasks.Schedule{}
	for _, q := range scheduler.Queues() {
		schedules = append(schedules, q.Schedules()...)
	}
	c.JSON(http.StatusOK, gin.H{"data": schedules, "rows": len(schedules)})
}

// @Summary List job names
// @Router /api/jobs [get]
func apiJobsList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": utils.Jobs()})
}

type jobRequest struct {
	Args []string `json:"args"`
}

// @Summary Queue a job
// @Description Arguments come from the json body {"args": [...]} or repeated ?args= parameters
// @Param name path string true "job name"
// @Success 200 {object} string
// @Failure 409 {object} string "already queued"
// @Router /api/jobs/{name} [post]
func apiJobsStart(c *gin.Context) {
	var req jobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	req.Args = append(req.Args, c.QueryArray("args")...)
	id, err := scheduler.Dispatch(c.Param("name"), req.Args)
	if err != nil {
		if errors.Is(err, logger.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "id": id})
			return
		}
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// @Summary Last job runs
// @Router /api/history [get]
func apiJobHistory(c *gin.Context) {
	qu, err := pageQuery(c)
	if err != nil {
		abortError(c, err)
		return
	}
	if qu.Limit == 0 {
		qu.Limit = 50
	}
	qu.OrderBy = "id desc"
	history, err := database.QueryJobHistory(qu)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history, "rows": len(history)})
}
