package storeapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okian/gridedge/internal/adapters/repository"
	"github.com/okian/gridedge/internal/domain/model"
	"github.com/okian/gridedge/pkg/logger"
)

// storeRequest is the body of POST /store_data. Required numerics are
// pointers so that a missing field is told apart from a zero.
type storeRequest struct {
	SourceID             string                  `json:"source_id"`
	City                 string                  `json:"city"`
	Timestamp            *time.Time              `json:"timestamp" binding:"required"`
	Voltage              *float64                `json:"voltage" binding:"required"`
	Current              *float64                `json:"current" binding:"required"`
	PowerConsumption     *float64                `json:"power_consumption" binding:"required"`
	Temperature          *float64                `json:"temperature"`
	Humidity             *float64                `json:"humidity"`
	ZoneDistribution     *model.ZoneDistribution `json:"zone_distribution"`
	PerCapitaConsumption *float64                `json:"per_capita_consumption"`
	EfficiencyScore      *float64                `json:"efficiency_score"`
	IsPeakHour           *bool                   `json:"is_peak_hour"`
	IsAnomaly            *bool                   `json:"is_anomaly"`
	Status               model.Status            `json:"status"`
	Flagged              bool                    `json:"flagged"`
	Anomaly              bool                    `json:"anomaly"`
	ZScore               float64                 `json:"z_score"`
}

func (r storeRequest) record() model.StoreRecord {
	source := strings.TrimSpace(r.SourceID)
	if source == "" {
		source = strings.TrimSpace(r.City)
	}
	status := r.Status
	if status == "" {
		status = model.StatusValid
	}
	return model.StoreRecord{
		SourceID:             source,
		City:                 source,
		Timestamp:            r.Timestamp.UTC(),
		Voltage:              *r.Voltage,
		Current:              *r.Current,
		PowerConsumption:     *r.PowerConsumption,
		Temperature:          r.Temperature,
		Humidity:             r.Humidity,
		ZoneDistribution:     r.ZoneDistribution,
		PerCapitaConsumption: r.PerCapitaConsumption,
		EfficiencyScore:      r.EfficiencyScore,
		IsPeakHour:           r.IsPeakHour,
		IsAnomaly:            r.IsAnomaly,
		Status:               status,
		Flagged:              r.Flagged,
		Anomaly:              r.Anomaly,
		ZScore:               r.ZScore,
	}
}

// handleStoreData persists one reading.
// POST /store_data
func (s *Server) handleStoreData(c *gin.Context) {
	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	rec := req.record()
	id, err := s.store.Save(ctx, rec)
	switch {
	case errors.Is(err, repository.ErrInvalidRecord):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	case err != nil:
		s.logger.Error(ctx, "store write failed", logger.String("source_id", rec.SourceID), logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	s.logger.Debug(ctx, "reading stored",
		logger.String("source_id", rec.SourceID),
		logger.Any("id", id),
		logger.Bool("anomaly", rec.Anomaly),
	)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Data stored successfully", "id": id})
}

// handleCityStats returns the readings of one city within the last N hours.
// GET /city_stats/:city?hours=N
func (s *Server) handleCityStats(c *gin.Context) {
	city := c.Param("city")

	hours := defaultHours
	if raw := c.Query("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "hours must be a positive integer"})
			return
		}
		hours = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	since := s.now().Add(-time.Duration(hours) * time.Hour)
	readings, err := s.store.Readings(ctx, city, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"city":     city,
		"hours":    hours,
		"count":    len(readings),
		"readings": readings,
	})
}
