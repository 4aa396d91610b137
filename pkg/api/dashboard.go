package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pishield/pishield/pkg/database"
	"github.com/pishield/pishield/pkg/models"
)

const attackSourceLimit = 5

type chartQuery struct {
	Days int `form:"days,default=7" binding:"min=1,max=90"`
}

type chartPoint struct {
	Date    string `json:"date"`
	Attacks int    `json:"attacks"`
}

func (s *Server) dashboardStats(c *gin.Context) {
	stats, err := s.deps.Stats.Compute(c.Request.Context())
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) chartData(c *gin.Context) {
	var q chartQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, bindMessage(err))
		return
	}

	points, err := s.chartPoints(c, q.Days, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Error("Error getting chart data")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, points)
}

// chartPoints returns one point per UTC day, oldest first, ending today.
func (s *Server) chartPoints(c *gin.Context, days int, now time.Time) ([]chartPoint, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	since := today.AddDate(0, 0, -(days - 1))
	until := today.AddDate(0, 0, 1)

	counts, err := s.deps.Store.AlertsPerDay(c.Request.Context(), since, until)
	if err != nil {
		return nil, err
	}
	byDay := make(map[time.Time]int, len(counts))
	for _, dc := range counts {
		d := dc.Day.UTC()
		byDay[time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)] = dc.Count
	}

	points := make([]chartPoint, 0, days)
	for day := since; day.Before(until); day = day.AddDate(0, 0, 1) {
		points = append(points, chartPoint{Date: day.Format("Jan 2"), Attacks: byDay[day]})
	}
	return points, nil
}

func (s *Server) attackSources(c *gin.Context) {
	alerts, _, err := s.deps.Store.ListAlerts(c.Request.Context(), models.AlertFilter{}, models.Page{
		Sort:  models.SortTimestamp,
		Limit: attackSourceLimit,
	})
	if err != nil {
		s.log.WithError(err).Error("Error getting attack sources")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	sources := make([]models.AttackSource, 0, len(alerts))
	for _, a := range alerts {
		sources = append(sources, models.AttackSource{
			ID:        a.ID,
			SourceIP:  a.SourceIP,
			Country:   database.ResolveOrUnknown(s.deps.Resolver, a.SourceIP),
			Timestamp: a.Timestamp,
			Severity:  a.Severity,
		})
	}
	c.JSON(http.StatusOK, sources)
}

func (s *Server) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": s.deps.Devices.List()})
}
