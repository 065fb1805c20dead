package transport

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"aikun/internal/logging"
	"aikun/internal/pipeline"
	"aikun/internal/reply"
)

// maxBodyBytes bounds webhook payloads. LINE batches at most a few
// dozen events per delivery.
const maxBodyBytes = 1 << 20

// eventTimeout bounds one event's full pipeline run, independent of the
// webhook request deadline.
const eventTimeout = 60 * time.Second

// EventHandler runs one decoded text event through the reply flow.
type EventHandler interface {
	Handle(ctx context.Context, in pipeline.Inbound) string
}

// Server is the webhook-facing HTTP surface: signature verification,
// event fan-out, and the health route.
type Server struct {
	handler EventHandler
	sender  ReplySender
	secret  string
	log     *zap.Logger
}

func NewServer(handler EventHandler, sender ReplySender, channelSecret string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{handler: handler, sender: sender, secret: channelSecret, log: log}
}

// Routes returns the HTTP mux: POST /callback for the webhook, GET /
// as the health check.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/callback", s.handleWebhook)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	io.WriteString(w, "AI-kun running")
}

// Webhook wire shapes, matching the platform's event envelope.
type webhookBody struct {
	Events []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		UserID  string `json:"userId"`
		GroupID string `json:"groupId"`
		RoomID  string `json:"roomId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// handleWebhook verifies the signature, fans events out with per-event
// concurrency, and acknowledges with 200 regardless of per-event
// outcomes. The delivery platform retries non-200 acknowledgements,
// which would double-reply.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.log.Warn("webhook body read failed", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	if !s.validSignature(body, r.Header.Get("X-Line-Signature")) {
		s.log.Warn("webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		s.log.Warn("webhook decode failed", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	var wg sync.WaitGroup
	for _, ev := range payload.Events {
		wg.Add(1)
		go func(ev webhookEvent) {
			defer wg.Done()
			s.handleEvent(ev)
		}(ev)
	}
	wg.Wait()

	w.WriteHeader(http.StatusOK)
}

// handleEvent produces exactly one outbound reply per inbound message
// event. Runs on a detached context so a slow pipeline never races the
// webhook deadline.
func (s *Server) handleEvent(ev webhookEvent) {
	if ev.Type != "message" || ev.ReplyToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var text string
	if ev.Message.Type == "text" {
		text = s.handler.Handle(ctx, pipeline.Inbound{
			GroupID: ev.Source.GroupID,
			RoomID:  ev.Source.RoomID,
			UserID:  ev.Source.UserID,
			Text:    ev.Message.Text,
		})
	} else {
		text = reply.TextOnlyReply
	}

	if err := s.sender.Reply(ctx, ev.ReplyToken, text); err != nil {
		logging.Transport("reply delivery failed: %v", err)
		s.log.Warn("reply delivery failed", zap.Error(err))
	}
}

// validSignature checks the HMAC-SHA256 digest of the raw body against
// the signature header. An empty configured secret disables the check
// for local development.
func (s *Server) validSignature(body []byte, signature string) bool {
	if s.secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
