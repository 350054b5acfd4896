// Package httpapi serves the shopping REST routes with the health and
// metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glimte/shopbus/contracts"
	"github.com/glimte/shopbus/health"
	"github.com/glimte/shopbus/internal/shopping"
)

// Shopping is the part of the shopping service exposed over HTTP
type Shopping interface {
	Cart(ctx context.Context, customerID string) (*shopping.Cart, error)
	Orders(ctx context.Context, customerID string) ([]contracts.Order, error)
	PlaceOrder(ctx context.Context, customerID, txnNumber string, address contracts.Address) (*contracts.Order, error)
	ChangeOrderStatus(ctx context.Context, id, status string) (*contracts.Order, error)
	RemoveOrder(ctx context.Context, orderID string) (*contracts.Order, error)
}

type Server struct {
	Router *mux.Router
	svc    Shopping
	logger *slog.Logger
}

// Option configures the server
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer builds the router. A nil registry or health registry leaves the
// matching endpoint unregistered.
func NewServer(svc Shopping, checks *health.Registry, reg *prometheus.Registry, options ...Option) *Server {
	s := &Server{Router: mux.NewRouter(), svc: svc, logger: slog.Default()}
	for _, opt := range options {
		opt(s)
	}

	r := s.Router
	r.Use(s.logRequests)

	r.Handle("/healthz", health.LivenessHandler()).Methods(http.MethodGet)
	if checks != nil {
		r.Handle("/readyz", health.NewHandler(checks, 5*time.Second)).Methods(http.MethodGet)
	}
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc("/whoami", s.handleWhoami).Methods(http.MethodGet)

	r.HandleFunc("/customers/{customerId}/cart", s.handleCart).Methods(http.MethodGet)
	r.HandleFunc("/customers/{customerId}/orders", s.handleCustomerOrders).Methods(http.MethodGet)
	r.HandleFunc("/customers/{customerId}/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	r.HandleFunc("/admin/orders", s.handleAllOrders).Methods(http.MethodGet)
	r.HandleFunc("/admin/order/{id}", s.handleUpdateOrder).Methods(http.MethodPut)
	r.HandleFunc("/admin/order/{orderId}", s.handleDeleteOrder).Methods(http.MethodDelete)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"msg": "/shopping : I am Shopping Service"})
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.svc.Cart(r.Context(), mux.Vars(r)["customerId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (s *Server) handleCustomerOrders(w http.ResponseWriter, r *http.Request) {
	s.listOrders(w, r, mux.Vars(r)["customerId"])
}

func (s *Server) handleAllOrders(w http.ResponseWriter, r *http.Request) {
	s.listOrders(w, r, "")
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request, customerID string) {
	orders, err := s.svc.Orders(r.Context(), customerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []contracts.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

type placeOrderRequest struct {
	TxnNumber string            `json:"txnNumber"`
	Address   contracts.Address `json:"address"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{"invalid request body"})
		return
	}

	order, err := s.svc.PlaceOrder(r.Context(), mux.Vars(r)["customerId"], req.TxnNumber, req.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{"invalid request body"})
		return
	}

	order, err := s.svc.ChangeOrderStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.svc.RemoveOrder(r.Context(), mux.Vars(r)["orderId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps shopping errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, shopping.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shopping.ErrInvalidStatus),
		errors.Is(err, shopping.ErrInvalidAddress),
		errors.Is(err, shopping.ErrMissingTxnNumber),
		errors.Is(err, shopping.ErrEmptyCart),
		errors.Is(err, shopping.ErrMissingProduct):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, code, errorBody{"internal error"})
		return
	}
	writeJSON(w, code, errorBody{err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
