package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pishield/pishield/pkg/database"
	"github.com/pishield/pishield/pkg/models"
)

const defaultBlockReason = "Manually blocked via dashboard"

type blockRequest struct {
	IP        string     `json:"ip" binding:"required,strictipv4"`
	Reason    string     `json:"reason"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type unblockRequest struct {
	IP string `json:"ip" binding:"required,strictipv4"`
}

// ipBindMessage maps binding errors of the ip field to the dashboard's messages.
func ipBindMessage(err error) string {
	if fe, ok := fieldError(err); ok && fe.Field() == "ip" {
		if fe.Tag() == "required" {
			return "IP address is required"
		}
		return "Invalid IP address format"
	}
	return bindMessage(err)
}

func (s *Server) blockIP(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, ipBindMessage(err))
		return
	}
	req.IP = NormalizeIPv4(req.IP)
	now := time.Now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		abortError(c, http.StatusBadRequest, "expiresAt must be in the future")
		return
	}

	ctx := c.Request.Context()
	blocked, err := s.deps.Store.IsBlocked(ctx, req.IP, now)
	if err != nil {
		s.log.WithError(err).Error("Error checking blocked IP")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if blocked {
		abortError(c, http.StatusConflict, "IP "+req.IP+" is already blocked")
		return
	}

	record := models.BlockedIP{
		IPAddress: req.IP,
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
	}
	if record.Reason == "" {
		record.Reason = defaultBlockReason
	}
	if p, ok := principalFrom(c); ok {
		record.BlockedBy = p.ID
	}

	stored, err := s.deps.Store.InsertBlockedIP(ctx, record)
	if err != nil {
		s.log.WithError(err).Error("Error storing blocked IP in database")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.deps.Firewall.Block(ctx, req.IP); err != nil {
		s.log.WithError(err).WithField("ip", req.IP).Error("Error executing firewall command")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to block IP at firewall level",
			"message": "IP " + req.IP + " was recorded as blocked in the database, but the firewall command failed.",
		})
		return
	}

	s.log.WithFields(logrus.Fields{"ip": req.IP, "blocked_by": stored.BlockedBy}).Info("Successfully blocked IP")
	s.pushStats(ctx)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "IP " + req.IP + " has been blocked successfully",
		"blockedIp": stored,
	})
}

func (s *Server) unblockIP(c *gin.Context) {
	var req unblockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, ipBindMessage(err))
		return
	}
	req.IP = NormalizeIPv4(req.IP)

	ctx := c.Request.Context()
	if _, err := s.deps.Store.DeleteBlockedIP(ctx, req.IP); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			abortError(c, http.StatusNotFound, "IP "+req.IP+" is not blocked")
			return
		}
		s.log.WithError(err).Error("Error removing blocked IP from database")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.deps.Firewall.Unblock(ctx, req.IP); err != nil {
		s.log.WithError(err).WithField("ip", req.IP).Error("Error executing firewall command")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to unblock IP at firewall level",
			"message": "IP " + req.IP + " was removed from blocked IPs in the database, but the firewall command failed.",
		})
		return
	}

	s.log.WithField("ip", req.IP).Info("Successfully unblocked IP")
	s.pushStats(ctx)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "IP " + req.IP + " has been unblocked successfully",
	})
}

func (s *Server) blockedIPs(c *gin.Context) {
	list, err := s.deps.Store.ListBlockedIPs(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("Error getting blocked IPs")
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"blockedIps": list})
}
