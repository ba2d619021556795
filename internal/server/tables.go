package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func limitParam(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s *Server) ListTargets(c *gin.Context) {
	rows, err := s.repo.ListTargets(c.Request.Context(), limitParam(c, 200))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondData(c, rows)
}

func (s *Server) ListRules(c *gin.Context) {
	rows, err := s.repo.ListRules(c.Request.Context(), limitParam(c, 200))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondData(c, rows)
}

func (s *Server) ListColumnProfiles(c *gin.Context) {
	rows, err := s.repo.ListColumnProfiles(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondData(c, rows)
}

func (s *Server) ListOutlierProfiles(c *gin.Context) {
	rows, err := s.repo.ListOutlierProfiles(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondData(c, rows)
}

func (s *Server) ListAuditOrders(c *gin.Context) {
	rows, err := s.repo.ListAuditOrders(c.Request.Context(), limitParam(c, 200))
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondData(c, rows)
}
