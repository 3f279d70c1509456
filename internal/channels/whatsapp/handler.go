// Package whatsapp serves the Twilio-compatible WhatsApp webhook.
package whatsapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/internal/conversation"
)

const (
	component    = "wa"
	maxFormBytes = 64 << 10
	// DefaultPath is where the provider posts inbound messages.
	DefaultPath = "/whatsapp/webhook"
	// HealthPath answers load balancer probes.
	HealthPath = "/healthz"
)

// Engine is the part of conversation.Engine the webhook uses.
type Engine interface {
	Handle(ctx context.Context, ev conversation.Event) (conversation.Response, error)
}

// Pinger reports datastore health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures Handler.
type Options struct {
	Engine Engine
	// Health is checked by /healthz; nil always reports healthy.
	Health Pinger
	Path   string
	// PublicURL is the webhook URL as the provider sees it, used for signatures.
	PublicURL         string
	AuthToken         string
	ValidateSignature bool
}

// Handler turns webhook posts into conversation events.
type Handler struct {
	opts Options
	sig  *signatureCheck
}

// NewHandler validates opts.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Engine == nil {
		return nil, errors.New("whatsapp: engine is required")
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.ValidateSignature && (opts.AuthToken == "" || opts.PublicURL == "") {
		return nil, errors.New("whatsapp: signature validation needs auth token and public url")
	}
	h := &Handler{opts: opts}
	if opts.ValidateSignature {
		h.sig = newSignatureCheck(opts.AuthToken, opts.PublicURL)
	}
	return h, nil
}

// Routes returns the webhook and health endpoints.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+h.opts.Path, h.ServeWebhook)
	mux.HandleFunc("GET "+HealthPath, h.ServeHealth)
	return mux
}

// ServeWebhook handles one inbound message and answers with TwiML.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rid := r.Header.Get("X-Request-Id")
	if rid == "" {
		rid = uuid.NewString()
	}
	meta := logger.Meta{RID: rid, Bot: "whatsapp"}
	ctx := logger.WithLogger(logger.WithMeta(r.Context(), meta), logger.WA)

	status := http.StatusOK
	var handleErr error
	defer func() {
		attrs := []slog.Attr{
			slog.String("status", logger.Status(handleErr)),
			slog.Int("http_status", status),
			slog.Duration("duration", logger.Took(start)),
		}
		if handleErr != nil {
			attrs = append(attrs, slog.String("err", logger.SanitizeLimit(handleErr.Error(), 256)))
			logger.Warn(ctx, component, "webhook.handled", attrs...)
			return
		}
		logger.Info(ctx, component, "webhook.handled", attrs...)
	}()

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		status, handleErr = http.StatusBadRequest, err
		http.Error(w, "bad form", status)
		return
	}
	if h.sig != nil {
		if err := h.sig.verify(r.PostForm, r.Header.Get(SignatureHeader)); err != nil {
			status, handleErr = http.StatusForbidden, err
			http.Error(w, "forbidden", status)
			return
		}
	}

	from := PhoneFrom(r.PostForm.Get("From"))
	if from == "" {
		status, handleErr = http.StatusBadRequest, errors.New("missing From")
		http.Error(w, "missing From", status)
		return
	}
	meta.UserID = logger.MaskPhone(from)
	ctx = logger.WithMeta(ctx, meta)

	ev := conversation.Event{
		Key:     conversation.Key{Channel: conversation.ChannelWhatsApp, UserID: from},
		Kind:    conversation.EventText,
		Payload: strings.TrimSpace(r.PostForm.Get("Body")),
	}
	if name, ok := conversation.ParseCommand(ev.Payload); ok {
		ev.Kind, ev.Payload = conversation.EventCommand, name
	}
	resp, err := h.opts.Engine.Handle(ctx, ev)
	// An engine error still comes with a reply for the user; the provider gets 200.
	handleErr = err

	body, err := RenderTwiML(resp)
	if err != nil {
		status, handleErr = http.StatusInternalServerError, errors.Join(handleErr, err)
		http.Error(w, "render failed", status)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// ServeHealth reports 200 when the datastore answers.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Health.Ping(ctx); err != nil {
			logger.Warn(ctx, component, "health.fail", slog.String("err", err.Error()))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// PhoneFrom strips the channel prefix from a sender address.
func PhoneFrom(from string) string {
	from = strings.TrimSpace(from)
	from = strings.TrimPrefix(from, "whatsapp:")
	return strings.TrimSpace(from)
}
