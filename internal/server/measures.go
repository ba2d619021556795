package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wolfsonlabs/commercelens/internal/measure"
	"github.com/wolfsonlabs/commercelens/internal/store"
)

// filterRequest is the wire form of a store.FilterContext. Dates are
// "2006-01-02".
type filterRequest struct {
	From       *string  `json:"from"`
	To         *string  `json:"to"`
	Shops      []string `json:"shops"`
	Brands     []string `json:"brands"`
	Companies  []string `json:"companies"`
	Countries  []string `json:"countries"`
	Payments   []string `json:"payments"`
	Campaigns  []string `json:"campaigns"`
	HasCoupon  *bool    `json:"has_coupon"`
	CustomerID string   `json:"customer_id"`
}

func (r filterRequest) context() (store.FilterContext, error) {
	fc := store.FilterContext{
		Shops:      r.Shops,
		Brands:     r.Brands,
		Companies:  r.Companies,
		Countries:  r.Countries,
		Payments:   r.Payments,
		Campaigns:  r.Campaigns,
		HasCoupon:  r.HasCoupon,
		CustomerID: r.CustomerID,
	}
	if r.From != nil {
		t, err := time.Parse("2006-01-02", *r.From)
		if err != nil {
			return fc, errors.New("from must be YYYY-MM-DD")
		}
		fc.From = &t
	}
	if r.To != nil {
		t, err := time.Parse("2006-01-02", *r.To)
		if err != nil {
			return fc, errors.New("to must be YYYY-MM-DD")
		}
		fc.To = &t
	}
	return fc, nil
}

func (s *Server) EvaluateMeasure(c *gin.Context) {
	name := c.Param("name")

	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	fc, err := req.context()
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	eval, cycleID, err := s.currentEvaluator()
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(c.Request.Context(), cycleID, "scalar", name, req); ok {
			c.Data(http.StatusOK, "application/json", cached)
			return
		}
	}

	value, err := eval.Evaluate(name, fc)
	if err != nil {
		status := http.StatusInternalServerError
		var unknown *measure.ErrUnknownMeasure
		var dateDim *measure.DateDimensionError
		switch {
		case errors.As(err, &unknown):
			status = http.StatusNotFound
		case errors.As(err, &dateDim):
			// Undefined, not a wrong number; surfaced explicitly.
			status = http.StatusUnprocessableEntity
		default:
			status = http.StatusBadRequest
		}
		respondError(c, status, err)
		return
	}

	body := gin.H{"data": gin.H{"measure": name, "value": value}}
	if s.cache != nil {
		s.cache.Put(c.Request.Context(), cycleID, "scalar", name, req, body)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) EvaluateMeasureSeries(c *gin.Context) {
	name := c.Param("name")

	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	fc, err := req.context()
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	eval, cycleID, err := s.currentEvaluator()
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, err)
		return
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(c.Request.Context(), cycleID, "series", name, req); ok {
			c.Data(http.StatusOK, "application/json", cached)
			return
		}
	}

	points, err := eval.EvaluateSeries(name, fc)
	if err != nil {
		var unknown *measure.ErrUnknownMeasure
		if errors.As(err, &unknown) {
			respondError(c, http.StatusNotFound, err)
			return
		}
		respondError(c, http.StatusBadRequest, err)
		return
	}

	body := gin.H{"data": gin.H{"measure": name, "series": points}}
	if s.cache != nil {
		s.cache.Put(c.Request.Context(), cycleID, "series", name, req, body)
	}
	c.JSON(http.StatusOK, body)
}

// TriggerRefresh runs a full refresh cycle and reloads the served snapshot
// once the new tables are published.
func (s *Server) TriggerRefresh(c *gin.Context) {
	cycle, err := s.refreshSvc.Run(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if err := s.ReloadSnapshot(c.Request.Context()); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondData(c, cycle)
}
