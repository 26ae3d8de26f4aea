package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"htbot/internal/transport"
	logx "htbot/pkg/logx"
)

var ErrInvalidSignature = errors.New("invalid signature")

const SignatureHeader = "X-Line-Signature"

const maxBody = 1 << 20

// VerifySignature checks the base64 HMAC-SHA256 of body under secret.
func VerifySignature(secret []byte, body []byte, signature string) error {
	got, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Event is the subset of a webhook event the bot reacts to.
type Event struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		Type    string `json:"type"`
		UserID  string `json:"userId"`
		GroupID string `json:"groupId"`
		RoomID  string `json:"roomId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// ChatID is the destination id of the conversation the event came from.
func (e Event) ChatID() string {
	switch e.Source.Type {
	case "user":
		return e.Source.UserID
	case "group":
		return e.Source.GroupID
	case "room":
		return e.Source.RoomID
	}
	return "unknown"
}

func (e Event) IsText() bool { return e.Type == "message" && e.Message.Type == "text" }

// ParseEvents decodes a webhook body.
func ParseEvents(body []byte) ([]Event, error) {
	var payload struct {
		Events []Event `json:"events"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload.Events, nil
}

// Webhook serves the LINE callback endpoint. Text messages starting with
// /ht are answered with the device menu card.
type Webhook struct {
	client  *Client
	baseURL string
	log     logx.Logger
}

func NewWebhook(client *Client, baseURL string, log logx.Logger) *Webhook {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Webhook{client: client, baseURL: baseURL, log: log}
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		http.Error(w, "Missing signature", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		http.Error(w, "Bad body", http.StatusBadRequest)
		return
	}
	if err := VerifySignature(h.client.secret, body, sig); err != nil {
		h.log.Warn("line webhook rejected", logx.Err(err))
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}
	events, err := ParseEvents(body)
	if err != nil {
		// 200 so LINE does not redeliver a body we will never parse.
		h.log.Warn("line webhook parse error", logx.Err(err))
		http.Error(w, "Parse error", http.StatusOK)
		return
	}

	for _, ev := range events {
		if !ev.IsText() || !transport.IsMenuCommand(ev.Message.Text) {
			continue
		}
		chat := ev.ChatID()
		card := MenuCard(transport.NewLinks(h.baseURL, chat))
		if err := h.client.Reply(r.Context(), ev.ReplyToken, FlexMessage(transport.MenuAltText, card)); err != nil {
			h.log.Error("line reply failed", logx.String("chat", chat), logx.Err(err))
			continue
		}
		h.log.Info("menu sent", logx.String("chat", chat))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}
