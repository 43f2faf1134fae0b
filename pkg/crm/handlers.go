package crm

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/opsforge/gatehouse/pkg/authclient"
	"github.com/opsforge/gatehouse/pkg/httputil"
	"github.com/opsforge/gatehouse/pkg/orders"
)

var dashboardTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head><title>CRM Dashboard</title></head>
<body>
<h1>Welcome, {{.User.Name}}</h1>
<p>Role: {{.User.Role}}</p>
<h2>Your orders</h2>
<table>
<tr><th>Item</th><th>Price</th></tr>
{{range .Orders}}<tr><td>{{.Item}}</td><td>{{.Price}}</td></tr>
{{else}}<tr><td colspan="2">No orders yet</td></tr>{{end}}
</table>
</body>
</html>
`))

type dashboardData struct {
	User   *authclient.Identity
	Orders []orders.Order
}

// dashboard handles GET /dashboard
func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	user := authclient.FromContext(r.Context())

	userOrders, err := s.orders.ListByUser(r.Context(), user.Name)
	if err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("orders", "list").Inc()
		s.logger.WithError(err).Error("order listing failed")
		httputil.WriteInternalError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, dashboardData{User: user, Orders: userOrders}); err != nil {
		s.logger.WithError(err).Error("dashboard template render failed")
	}
}

type orderRequest struct {
	Item  string  `json:"item"`
	Price float64 `json:"price"`
}

// createOrder handles POST /api/orders
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	user := authclient.FromContext(r.Context())

	var req orderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Item == "" || req.Price == 0 {
		httputil.WriteBadRequest(w, "Missing fields")
		return
	}

	id, err := s.orders.Create(r.Context(), orders.Order{
		Username: user.Name,
		Item:     req.Item,
		Price:    req.Price,
	})
	if err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("orders", "create").Inc()
		s.logger.WithError(err).Error("order creation failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]string{
		"status":   "ok",
		"order_id": id,
	})
}

// listOrders handles GET /api/orders
func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	user := authclient.FromContext(r.Context())

	userOrders, err := s.orders.ListByUser(r.Context(), user.Name)
	if err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("orders", "list").Inc()
		s.logger.WithError(err).Error("order listing failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"orders": userOrders,
	})
}

// updateOrder handles PUT /api/orders/{id}
func (s *Server) updateOrder(w http.ResponseWriter, r *http.Request) {
	user := authclient.FromContext(r.Context())

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req orderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	update := orders.Update{Item: req.Item, Price: req.Price}
	if update.IsEmpty() {
		httputil.WriteBadRequest(w, "Nothing to update")
		return
	}

	if err := s.orders.Update(r.Context(), id, user.Name, update); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			httputil.WriteNotFound(w, "Order not found")
			return
		}
		s.metrics.StoreErrorsTotal.WithLabelValues("orders", "update").Inc()
		s.logger.WithError(err).Error("order update failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// deleteOrder handles DELETE /api/orders/{id}
func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	user := authclient.FromContext(r.Context())

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.orders.Delete(r.Context(), id, user.Name); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			httputil.WriteNotFound(w, "Order not found")
			return
		}
		s.metrics.StoreErrorsTotal.WithLabelValues("orders", "delete").Inc()
		s.logger.WithError(err).Error("order deletion failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
