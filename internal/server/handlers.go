package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/dataset"
	"github.com/tablechat/tablechat/internal/utils"
)

// maxPreviewRows caps the preview size a client may request.
const maxPreviewRows = 100

type columnInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type datasetInfo struct {
	Name      string       `json:"name"`
	Columns   []columnInfo `json:"columns"`
	RowCount  int          `json:"row_count"`
	TotalRows int          `json:"total_rows"`
	LoadedAt  time.Time    `json:"loaded_at"`
}

type datasetResponse struct {
	Dataset *datasetInfo `json:"dataset"`
	Header  []string     `json:"header"`
	Preview [][]string   `json:"preview"`
}

type stateResponse struct {
	SessionID  string       `json:"session_id"`
	Configured bool         `json:"configured"`
	Model      string       `json:"model"`
	Dataset    *datasetInfo `json:"dataset,omitempty"`
	Turns      []chat.Turn  `json:"turns"`
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Turns []chat.Turn `json:"turns"`
}

func infoFor(ds *dataset.Dataset) *datasetInfo {
	cols := make([]columnInfo, len(ds.Columns))
	for i, col := range ds.Columns {
		cols[i] = columnInfo{Name: col.Name, Kind: string(col.Kind)}
	}
	return &datasetInfo{
		Name:      ds.Name,
		Columns:   cols,
		RowCount:  ds.RowCount,
		TotalRows: ds.TotalRows,
		LoadedAt:  ds.LoadedAt,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleState(c *gin.Context) {
	sess := currentSession(c)
	resp := stateResponse{
		SessionID:  sess.ID,
		Configured: s.cfg.APIKeySet(),
		Model:      s.cfg.Model,
		Turns:      sess.Turns(),
	}
	if ds := sess.Dataset(); ds != nil {
		resp.Dataset = infoFor(ds)
	}
	c.JSON(http.StatusOK, resp)
}

// handleUpload replaces the session's dataset with the uploaded CSV.
// A rejected file leaves the previous dataset in place.
func (s *Server) handleUpload(c *gin.Context) {
	sess := currentSession(c)
	sess.Acquire()
	defer sess.Release()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("file too large; the limit is %d MB", s.cfg.MaxUploadBytes>>20),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "send a CSV file in the 'file' form field"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read the uploaded file"})
		return
	}
	defer f.Close()

	ds, err := dataset.Load(fh.Filename, f, dataset.DefaultOptions())
	if err != nil {
		s.log.Warn("csv rejected",
			zap.String("session", sess.ID),
			zap.String("file", fh.Filename),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess.SetDataset(ds)
	s.log.Info("dataset loaded",
		zap.String("session", sess.ID),
		zap.String("file", ds.Name),
		zap.Int("rows", ds.RowCount),
		zap.Int("columns", len(ds.Columns)))
	c.JSON(http.StatusOK, datasetResponse{
		Dataset: infoFor(ds),
		Header:  ds.Header(),
		Preview: ds.Preview(s.cfg.PreviewRows),
	})
}

func (s *Server) handleDataset(c *gin.Context) {
	sess := currentSession(c)
	ds := sess.Dataset()
	if ds == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no dataset loaded"})
		return
	}
	n := s.cfg.PreviewRows
	if q := c.Query("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'n' must be a positive integer"})
			return
		}
		n = v
	}
	if n > maxPreviewRows {
		n = maxPreviewRows
	}
	c.JSON(http.StatusOK, datasetResponse{
		Dataset: infoFor(ds),
		Header:  ds.Header(),
		Preview: ds.Preview(n),
	})
}

// handleAsk runs one question through the external agent. The session
// stays locked for the whole pass, so a session handles one
// interaction at a time. On success exactly two turns are appended;
// on failure none are.
func (s *Server) handleAsk(c *gin.Context) {
	sess := currentSession(c)

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be JSON with a 'question' field"})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question must not be empty"})
		return
	}
	if !s.cfg.APIKeySet() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": missingKeyMessage()})
		return
	}

	sess.Acquire()
	defer sess.Release()

	ds := sess.Dataset()
	if ds == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "upload a CSV before asking questions"})
		return
	}

	start := time.Now()
	s.log.Info("dispatching question",
		zap.String("session", sess.ID),
		zap.Int("question_tokens", utils.CountTokens(question)),
		zap.Int("history_turns", sess.TurnCount()))
	res, err := s.agent.Ask(c.Request.Context(), question, sess.Turns(), ds)
	if err != nil {
		status, msg := errorStatus(err)
		s.log.Warn("ask failed",
			zap.String("session", sess.ID),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}

	userTurn := chat.NewUserTurn(question)
	agentTurn := chat.NewAgentTurn(res.Text, res.Tables, res.Charts)
	sess.Append(userTurn, agentTurn)
	s.log.Info("ask answered",
		zap.String("session", sess.ID),
		zap.Duration("took", time.Since(start)),
		zap.Int("prompt_tokens", res.Usage.PromptTokens),
		zap.Int("response_tokens", res.Usage.ResponseTokens),
		zap.Int("tables", len(res.Tables)),
		zap.Int("charts", len(res.Charts)))
	c.JSON(http.StatusOK, askResponse{Turns: []chat.Turn{userTurn, agentTurn}})
}

func (s *Server) handleReset(c *gin.Context) {
	sess := currentSession(c)
	sess.Acquire()
	defer sess.Release()
	sess.Reset()
	s.log.Info("session reset", zap.String("session", sess.ID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
