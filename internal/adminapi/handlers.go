package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradehost/internal/logging"
	"tradehost/internal/pluginsupervisor"
	"tradehost/internal/storage"
	"tradehost/internal/userfeed"
)

type startInstanceRequest struct {
	StrategyID   string          `json:"strategy_id" binding:"required"`
	Symbol       string          `json:"symbol" binding:"required"`
	ArtifactPath string          `json:"artifact_path" binding:"required"`
	Params       json.RawMessage `json:"params"`
}

func (s *Server) handleStartInstance(c *gin.Context) {
	var req startInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.supervisor.Start(req.StrategyID, req.Symbol, req.ArtifactPath, req.Params); err != nil {
		if errors.Is(err, pluginsupervisor.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, pluginsupervisor.ErrLocked) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		logging.FromContext(c.Request.Context()).Warn("start instance failed", "strategy_id", req.StrategyID, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"strategy_id": req.StrategyID, "symbol": req.Symbol})
}

func (s *Server) handleStopInstance(c *gin.Context) {
	id := c.Param("id")
	if err := s.supervisor.Stop(id); err != nil {
		if errors.Is(err, pluginsupervisor.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListInstances(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instances": s.supervisor.List()})
}

type connectCredentialsRequest struct {
	APIKey    string `json:"api_key" binding:"required"`
	SecretKey string `json:"secret_key" binding:"required"`
}

func (s *Server) handleConnectCredentials(c *gin.Context) {
	var req connectCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hash := s.userFeeds.Connect(userfeed.Credentials{APIKey: req.APIKey, SecretKey: req.SecretKey})
	c.JSON(http.StatusCreated, gin.H{"credential_hash": hash})
}

func (s *Server) handleDisconnectCredentials(c *gin.Context) {
	hash := c.Param("hash")
	if err := s.userFeeds.Disconnect(hash); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListCredentials(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"credential_hashes": s.userFeeds.List()})
}

type upsertArtifactRequest struct {
	StrategyID   string          `json:"strategy_id" binding:"required"`
	Symbol       string          `json:"symbol" binding:"required"`
	ArtifactPath string          `json:"artifact_path" binding:"required"`
	Params       json.RawMessage `json:"params"`
}

func (s *Server) handleUpsertArtifact(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "artifact storage not configured"})
		return
	}
	var req upsertArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec := storage.ArtifactRecord{
		StrategyID:   req.StrategyID,
		Symbol:       req.Symbol,
		ArtifactPath: req.ArtifactPath,
		Params:       req.Params,
	}
	if err := s.store.Upsert(c.Request.Context(), rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy_id": rec.StrategyID, "symbol": rec.Symbol})
}

func (s *Server) handleGetArtifact(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "artifact storage not configured"})
		return
	}
	rec, err := s.store.Get(c.Request.Context(), c.Param("strategyID"), c.Param("symbol"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleListArtifacts(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "artifact storage not configured"})
		return
	}
	recs, err := s.store.List(c.Request.Context(), c.Query("strategy_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": recs})
}

func (s *Server) handleDeleteArtifact(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "artifact storage not configured"})
		return
	}
	if err := s.store.Delete(c.Request.Context(), c.Param("strategyID"), c.Param("symbol")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
