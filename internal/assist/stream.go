package assist

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	pkgllm "github.com/HerbHall/netsage/pkg/llm"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// streamTimeout bounds one streamed answer end to end.
const streamTimeout = 5 * time.Minute

// StreamMessage is one frame of the websocket chat protocol.
type StreamMessage struct {
	Type    string `json:"type"` // "chunk", "done", "error"
	Content string `json:"content,omitempty"`
	Reply   string `json:"reply,omitempty"`
	Model   string `json:"model,omitempty"`
	Message string `json:"message,omitempty"`
}

// handleChatStream answers one chat request over a websocket, streaming
// tokens as the provider produces them. The client sends a single
// ChatRequest frame; the server replies with chunk frames and a final done
// frame, then closes.
//
//	@Summary		Streamed chat
//	@Description	WebSocket endpoint. Send one ChatRequest frame, receive chunk frames and a final done frame.
//	@Tags			assist
//	@Security		BearerAuth
//	@Router			/assist/chat/ws [get]
func (m *Module) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin checks are redundant here: the auth middleware has already
		// validated the request.
		InsecureSkipVerify: true,
	})
	if err != nil {
		m.logger.Error("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx, cancel := context.WithTimeout(r.Context(), streamTimeout)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}

	var req ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		m.streamError(ctx, conn, "invalid request frame")
		return
	}
	if req.Message == "" {
		m.streamError(ctx, conn, "message is required")
		return
	}
	if len(req.History) > m.cfg.HistoryLimit {
		req.History = req.History[len(req.History)-m.cfg.HistoryLimit:]
	}

	messages, err := m.buildMessages(ctx, req)
	if err != nil {
		m.streamError(ctx, conn, err.Error())
		return
	}

	lp, err := m.llmProvider()
	if err != nil {
		m.streamError(ctx, conn, err.Error())
		return
	}

	resp, err := lp.Provider().Chat(ctx, messages, pkgllm.WithStreamFunc(func(chunkCtx context.Context, chunk []byte) error {
		return m.writeFrame(chunkCtx, conn, StreamMessage{Type: "chunk", Content: string(chunk)})
	}))
	if err != nil {
		m.logger.Error("streamed chat failed", zap.Error(err))
		m.streamError(ctx, conn, "LLM request failed: "+err.Error())
		return
	}

	if err := m.writeFrame(ctx, conn, StreamMessage{
		Type:  "done",
		Reply: resp.Content,
		Model: resp.Model,
	}); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (m *Module) streamError(ctx context.Context, conn *websocket.Conn, msg string) {
	_ = m.writeFrame(ctx, conn, StreamMessage{Type: "error", Message: msg})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (m *Module) writeFrame(ctx context.Context, conn *websocket.Conn, frame StreamMessage) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
