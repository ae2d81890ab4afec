// Package handlers implements the REST surface over the orchestrator.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soullab/oracle-choreography/choreography"
	"github.com/soullab/oracle-choreography/communication"
	"github.com/soullab/oracle-choreography/core"
	"github.com/soullab/oracle-choreography/orchestrator"
	"github.com/soullab/oracle-choreography/registry"
)

// Deps carries the injected collaborators every handler needs.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Hub          *communication.Hub
}

// TurnRequest is the inbound body for POST /api/turn.
type TurnRequest struct {
	Input            string            `json:"input" binding:"required"`
	UserID           string            `json:"user_id" binding:"required"`
	SessionID        string            `json:"session_id" binding:"required"`
	UserProfile      *core.UserProfile `json:"user_profile,omitempty"`
	SessionContext   map[string]string `json:"session_context,omitempty"`
	PreviousMessages []string          `json:"previous_messages,omitempty"`
}

// HandleTurn runs one orchestrated turn.
func (d *Deps) HandleTurn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid turn request"})
		return
	}

	tctx := core.TurnContext{
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		UserProfile:      req.UserProfile,
		SessionContext:   req.SessionContext,
		PreviousMessages: req.PreviousMessages,
	}

	result, err := d.Orchestrator.HandleTurn(c.Request.Context(), req.Input, tctx)
	if err != nil {
		if errors.Is(err, core.ErrNoAgentsAvailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no agents available"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if d.Hub != nil {
		d.Hub.Broadcast(communication.EventTurnCompleted, gin.H{
			"turn_id":        result.TurnID,
			"selected_agent": result.SelectedAgent,
			"session_id":     req.SessionID,
		})
	}

	c.JSON(http.StatusOK, result)
}

// GetAgents lists the registered personality profiles.
func (d *Deps) GetAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": d.Registry.All()})
}

// GetAgent returns one profile by id.
func (d *Deps) GetAgent(c *gin.Context) {
	profile, ok := d.Registry.Get(c.Param("agentID"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateAgent applies a partial profile update.
func (d *Deps) UpdateAgent(c *gin.Context) {
	var patch core.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile patch"})
		return
	}
	if err := d.Registry.UpdateProfile(c.Param("agentID"), patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile, _ := d.Registry.Get(c.Param("agentID"))
	c.JSON(http.StatusOK, profile)
}

// GetSessionMetrics returns the latest metrics snapshot for a session.
func (d *Deps) GetSessionMetrics(c *gin.Context) {
	tctx := core.TurnContext{UserID: c.Query("user_id"), SessionID: c.Param("sessionID")}
	m, ok := d.Orchestrator.SessionMetrics(tctx)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// GetSessionHistory returns a session's retained response records.
func (d *Deps) GetSessionHistory(c *gin.Context) {
	tctx := core.TurnContext{UserID: c.Query("user_id"), SessionID: c.Param("sessionID")}
	records := d.Orchestrator.SessionHistory(tctx)
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ReplaceRules atomically swaps in a whole new choreography rule set.
func (d *Deps) ReplaceRules(c *gin.Context) {
	var rs choreography.RuleSet
	if err := c.ShouldBindJSON(&rs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule set"})
		return
	}

	d.Orchestrator.RuleEngine().ReplaceRules(&rs)
	active := d.Orchestrator.RuleEngine().Rules()

	if d.Hub != nil {
		d.Hub.Broadcast(communication.EventRulesReplaced, gin.H{"version": active.Version})
	}

	c.JSON(http.StatusOK, gin.H{
		"version":         active.Version,
		"diversity_rules": len(active.Diversity),
		"conflict_rules":  len(active.Conflict),
	})
}

// GetRules returns the active choreography rule set.
func (d *Deps) GetRules(c *gin.Context) {
	c.JSON(http.StatusOK, d.Orchestrator.RuleEngine().Rules())
}
