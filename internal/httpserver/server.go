package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/voicekiosk/voicekiosk/internal/live"
	"github.com/voicekiosk/voicekiosk/internal/order"
)

// SessionControl is the slice of the voice session the control API drives.
type SessionControl interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() live.State
}

// Server bundles the control API router and its dependencies.
type Server struct {
	Router  http.Handler
	logger  zerolog.Logger
	session SessionControl
	orders  *order.Manager
}

// New constructs the control API with routes.
func New(session SessionControl, orders *order.Manager, logger zerolog.Logger) *Server {
	s := &Server{
		logger:  logger.With().Str("component", "httpserver").Logger(),
		session: session,
		orders:  orders,
	}

	e := newRouter()
	e.GET("/healthz", s.handleHealthz)
	e.GET("/api/status", s.handleStatus)
	e.GET("/api/cart", s.handleCart)
	e.POST("/api/session/connect", s.handleConnect)
	e.POST("/api/session/disconnect", s.handleDisconnect)
	e.POST("/api/order/reset", s.handleOrderReset)
	s.Router = e

	return s
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type statusResponse struct {
	Session       string `json:"session"`
	Category      string `json:"category"`
	ActiveItem    string `json:"activeItem,omitempty"`
	ActiveVariant string `json:"activeVariant,omitempty"`
	Step          string `json:"step"`
	CartCount     int    `json:"cartCount"`
	CartTotal     int    `json:"cartTotal"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	CardStatus    string `json:"cardStatus"`
}

func (s *Server) handleStatus(c echo.Context) error {
	snap := s.orders.Snapshot()
	return c.JSON(http.StatusOK, statusResponse{
		Session:       string(s.session.State()),
		Category:      snap.Category,
		ActiveItem:    snap.ActiveItem,
		ActiveVariant: snap.ActiveVariant,
		Step:          string(snap.Step),
		CartCount:     snap.CartCount,
		CartTotal:     snap.CartTotal,
		PaymentMethod: string(snap.PaymentMethod),
		CardStatus:    string(snap.CardStatus),
	})
}

type cartModifierResponse struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
	Qty   int    `json:"qty"`
}

type cartLineResponse struct {
	CartID    string                 `json:"cartId"`
	Name      string                 `json:"name"`
	Variant   string                 `json:"variant"`
	Qty       int                    `json:"qty"`
	Total     int                    `json:"total"`
	Modifiers []cartModifierResponse `json:"modifiers,omitempty"`
	Note      string                 `json:"note,omitempty"`
}

type cartResponse struct {
	Lines []cartLineResponse `json:"lines"`
	Total int                `json:"total"`
}

func (s *Server) handleCart(c echo.Context) error {
	lines := s.orders.Cart()
	resp := cartResponse{Lines: make([]cartLineResponse, 0, len(lines)), Total: s.orders.CartTotal()}
	for _, l := range lines {
		out := cartLineResponse{
			CartID:  l.CartID,
			Name:    l.Name,
			Variant: l.VariantName,
			Qty:     l.Qty,
			Total:   l.Total,
			Note:    l.Note,
		}
		for _, m := range l.Modifiers {
			out.Modifiers = append(out.Modifiers, cartModifierResponse{Name: m.Name, Price: m.Price, Qty: m.Qty})
		}
		resp.Lines = append(resp.Lines, out)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleConnect(c echo.Context) error {
	if err := s.session.Connect(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("session connect failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"session": string(s.session.State())})
}

func (s *Server) handleDisconnect(c echo.Context) error {
	s.session.Disconnect()
	return c.JSON(http.StatusOK, map[string]string{"session": string(s.session.State())})
}

// handleOrderReset clears a stuck or abandoned order from the staff
// side without touching the voice session.
func (s *Server) handleOrderReset(c echo.Context) error {
	s.orders.Reset()
	return c.NoContent(http.StatusNoContent)
}
