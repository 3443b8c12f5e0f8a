package session

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gurutvapay/checkout-api/internal/pkg/response"
	"github.com/gurutvapay/checkout-api/internal/pkg/validator"
)

// WebSocket constants
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64KB
)

// Handler handles checkout session HTTP requests and the surface bridge
type Handler struct {
	service  *Service
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler creates the session handler
func NewHandler(service *Service, hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// Allow all in development
				if len(allowedOrigins) == 0 {
					return true
				}

				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}

				log.Warn().Str("origin", origin).Msg("Bridge origin rejected")
				return false
			},
		},
	}
}

// Create handles POST /checkout/sessions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errors := validator.Validate(&req); errors != nil {
		response.ValidationError(w, errors)
		return
	}

	resp, err := h.service.Create(r.Context(), &req)
	if err != nil {
		switch err {
		case ErrDuplicateOrder:
			response.Conflict(w, "An active session already exists for this merchant order id")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, resp)
}

// Get handles GET /checkout/sessions/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return
	}

	snap, err := h.service.Get(r.Context(), id)
	if err != nil {
		switch err {
		case ErrSessionNotFound:
			response.NotFound(w, "Session not found")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, SessionResponseFromSnapshot(snap, ""))
}

// Cancel handles POST /checkout/sessions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return
	}

	if err := h.service.Cancel(r.Context(), id); err != nil {
		switch err {
		case ErrSessionNotFound:
			response.NotFound(w, "Session not found")
		case ErrSessionTerminal:
			response.Conflict(w, "Session already completed")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, map[string]string{"status": "cancelling"})
}

// CheckStatus handles POST /checkout/sessions/{id}/status
func (h *Handler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return
	}

	snap, err := h.service.CheckStatus(r.Context(), id)
	if err != nil {
		switch err {
		case ErrSessionNotFound:
			response.NotFound(w, "Session not found")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, SessionResponseFromSnapshot(snap, ""))
}

// Bridge handles WS /ws/checkout/{id}?token=xxx
func (h *Handler) Bridge(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid session ID")
		return
	}

	sessionID, err := h.service.VerifyBridgeToken(r.URL.Query().Get("token"))
	if err != nil || sessionID != id {
		response.Unauthorized(w, "Invalid bridge token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Bridge upgrade failed")
		return
	}

	bridge := NewBridgeConn(sessionID, conn, h.hub)
	h.hub.Register(bridge)

	if err := h.service.Attach(r.Context(), bridge); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Bridge attach failed")
	}

	go h.wsReader(bridge)
	go h.wsWriter(bridge)
}

func (h *Handler) wsReader(bridge *BridgeConn) {
	defer func() {
		h.hub.Unregister(bridge)
		h.service.BridgeClosed(bridge)
		bridge.Conn.Close()
	}()

	bridge.Conn.SetReadLimit(maxMessageSize)
	bridge.Conn.SetReadDeadline(time.Now().Add(pongWait))
	bridge.Conn.SetPongHandler(func(string) error {
		bridge.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := bridge.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("session_id", bridge.SessionID.String()).Msg("Bridge read error")
			}
			break
		}

		frame, ok := DecodeBridgeFrame(message)
		if !ok {
			continue
		}

		if frame.Kind == FrameHello {
			bridge.SetHandlers(frame.Payload)
			continue
		}

		if err := h.service.HandleFrame(bridge.SessionID, frame); err != nil {
			log.Debug().Err(err).Str("session_id", bridge.SessionID.String()).Msg("Bridge frame dropped")
		}
	}
}

func (h *Handler) wsWriter(bridge *BridgeConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		bridge.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-bridge.Send:
			bridge.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				bridge.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := bridge.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			bridge.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := bridge.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
