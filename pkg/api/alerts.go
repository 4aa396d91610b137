package api

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pishield/pishield/pkg/database"
	"github.com/pishield/pishield/pkg/models"
)

type listAlertsQuery struct {
	Severity string `form:"severity"`
	Status   string `form:"status"`
	Search   string `form:"search"`
	Sort     string `form:"sort,default=timestamp" binding:"oneof=timestamp severity type sourceIp status"`
	Order    string `form:"order,default=desc" binding:"oneof=asc desc"`
	Page     int    `form:"page,default=1" binding:"min=1"`
	Limit    int    `form:"limit,default=20" binding:"min=1,max=100"`
}

type pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func (s *Server) listAlerts(c *gin.Context) {
	var q listAlertsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortError(c, http.StatusBadRequest, bindMessage(err))
		return
	}

	filter := models.AlertFilter{Search: strings.TrimSpace(q.Search)}
	if q.Severity != "" && q.Severity != "all" {
		for _, v := range strings.Split(q.Severity, ",") {
			sev, err := models.ParseSeverity(strings.TrimSpace(v))
			if err != nil {
				abortError(c, http.StatusBadRequest, "Invalid severity")
				return
			}
			filter.Severities = append(filter.Severities, sev)
		}
	}
	if q.Status != "" && q.Status != "all" {
		st := models.AlertStatus(q.Status)
		if !st.Valid() {
			abortError(c, http.StatusBadRequest, "Invalid status")
			return
		}
		filter.Status = st
	}

	page := models.Page{
		Sort:   q.Sort,
		Asc:    q.Order == "asc",
		Offset: (q.Page - 1) * q.Limit,
		Limit:  q.Limit,
	}
	alerts, total, err := s.deps.Store.ListAlerts(c.Request.Context(), filter, page)
	if err != nil {
		s.log.WithError(err).Error("Error fetching alerts")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"pagination": pagination{
			Total:      total,
			Page:       q.Page,
			Limit:      q.Limit,
			TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
		},
	})
}

func (s *Server) getAlert(c *gin.Context) {
	id := c.Param("id")
	alert, err := s.deps.Store.GetAlert(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		abortError(c, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("alert_id", id).Error("Error fetching alert")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateAlertStatus(c *gin.Context) {
	id := c.Param("id")
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.AlertStatus(req.Status).Valid() {
		abortError(c, http.StatusBadRequest, "Valid status is required")
		return
	}
	status := models.AlertStatus(req.Status)

	alert, err := s.deps.Store.UpdateAlertStatus(c.Request.Context(), id, status)
	if errors.Is(err, database.ErrNotFound) {
		abortError(c, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("alert_id", id).Error("Error updating alert")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	s.deps.Broadcaster.BroadcastAlertUpdate(alert.ID, alert.Status)
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

type createAlertRequest struct {
	Severity  string     `json:"severity" binding:"omitempty,oneof=critical high medium low"`
	Type      string     `json:"type"`
	SourceIP  string     `json:"sourceIp" binding:"omitempty,strictipv4"`
	DestPort  *int       `json:"destPort" binding:"omitempty,min=0,max=65535"`
	Status    string     `json:"status" binding:"omitempty,oneof=new investigating resolved"`
	Details   string     `json:"details"`
	Timestamp *time.Time `json:"timestamp"`
}

func (r createAlertRequest) missing() []string {
	var out []string
	if r.Severity == "" {
		out = append(out, "severity")
	}
	if strings.TrimSpace(r.Type) == "" {
		out = append(out, "type")
	}
	if r.SourceIP == "" {
		out = append(out, "sourceIp")
	}
	return out
}

func (s *Server) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, bindMessage(err))
		return
	}
	if missing := req.missing(); len(missing) > 0 {
		abortError(c, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	alert := models.Alert{
		Severity: models.Severity(req.Severity),
		Type:     strings.TrimSpace(req.Type),
		SourceIP: req.SourceIP,
		DestPort: req.DestPort,
		Status:   models.AlertStatus(req.Status),
		Details:  req.Details,
	}
	if req.Timestamp != nil {
		alert.Timestamp = req.Timestamp.UTC()
	} else {
		alert.Timestamp = time.Now().UTC()
	}
	if alert.Status == "" {
		alert.Status = models.StatusNew
	}

	ctx := c.Request.Context()
	created, err := s.deps.Store.InsertAlert(ctx, alert)
	if err != nil {
		s.log.WithError(err).Error("Error creating alert")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.WithFields(logrus.Fields{"alert_id": created.ID, "severity": created.Severity}).Info("New alert created")

	s.deps.Broadcaster.BroadcastNewAlert(created)
	s.pushStats(ctx)
	c.JSON(http.StatusCreated, gin.H{"alert": created})
}
