package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/ape/internal/assist"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/extract"
	"github.com/joseph-ayodele/ape/internal/jobs"
	"github.com/joseph-ayodele/ape/internal/llm"
)

type AssistServer struct {
	chat     *assist.ChatService
	code     *assist.CodeService
	research *assist.ResearchService
	tracker  *jobs.Tracker
	logger   *slog.Logger
}

func NewAssistServer(gen assist.Generator, tracker *jobs.Tracker, contextTurns int, lenient bool, logger *slog.Logger, chatOpts ...assist.ChatOption) *AssistServer {
	if logger == nil {
		logger = slog.Default()
	}
	if gen == nil {
		gen = noGenerator{}
	}
	return &AssistServer{
		chat:     assist.NewChatService(gen, contextTurns, logger, chatOpts...),
		code:     assist.NewCodeService(gen, logger),
		research: assist.NewResearchService(gen, lenient, logger),
		tracker:  tracker,
		logger:   logger,
	}
}

func (s *AssistServer) Chat(c *gin.Context) {
	var req assist.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	res, err := s.chat.Reply(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ChatStream relays chunks as server-sent events: "message" per chunk, then
// "done", or "error" when the stream fails after it started.
func (s *AssistServer) ChatStream(c *gin.Context) {
	var req assist.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	ch, err := s.chat.Stream(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	relaySSE(c, ch, s.logger)
}

// relaySSE writes chunks until the channel closes, the stream fails or the
// client goes away.
func relaySSE(c *gin.Context, ch <-chan llm.Chunk, logger *slog.Logger) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Info("assist.stream.client_gone", "error", ctx.Err())
			return
		case chunk, ok := <-ch:
			// a closed channel can race the cancellation
			if ctx.Err() != nil {
				logger.Info("assist.stream.client_gone", "error", ctx.Err())
				return
			}
			switch {
			case !ok:
				c.SSEvent("done", "[DONE]")
			case chunk.Err != nil:
				logger.Warn("assist.stream.failed", "error", chunk.Err)
				c.SSEvent("error", common.PublicMessage(chunk.Err))
			default:
				c.SSEvent("message", chunk.Text)
			}
			c.Writer.Flush()
			if !ok || chunk.Err != nil {
				return
			}
		}
	}
}

func (s *AssistServer) Code(c *gin.Context) {
	var req assist.CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	res, err := s.code.Run(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type researchRequest struct {
	assist.ResearchRequest
	// JobIDs pulls extracted text from tracked jobs as extra sources.
	JobIDs []string `json:"job_ids,omitempty"`
}

func (s *AssistServer) Research(c *gin.Context) {
	var req researchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	for _, id := range req.JobIDs {
		src, err := s.jobSource(id)
		if err != nil {
			writeError(c, err)
			return
		}
		req.Sources = append(req.Sources, src)
	}
	res, err := s.research.Research(c.Request.Context(), req.ResearchRequest)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *AssistServer) jobSource(id string) (assist.Source, error) {
	j, ok := s.tracker.Get(id)
	if !ok {
		return assist.Source{}, common.NotFoundf("processing job %s not found", id)
	}
	res, ok := j.Result.(extract.Result)
	if !ok || res.Text == "" {
		return assist.Source{}, common.InvalidInputf("job %s has no extracted text", id)
	}
	return assist.Source{Title: j.FileName, Content: res.Text}, nil
}
