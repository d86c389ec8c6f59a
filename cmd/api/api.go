package api

import (
	"log"
	"net/http"

	"github.com/brianmaseno/readypips-sub001/cmd/utils"
	"github.com/brianmaseno/readypips-sub001/service/admin"
	"github.com/brianmaseno/readypips-sub001/service/dashboard"
	"github.com/brianmaseno/readypips-sub001/service/live"
	"github.com/brianmaseno/readypips-sub001/service/market"
	"github.com/brianmaseno/readypips-sub001/service/notifications"
	"github.com/brianmaseno/readypips-sub001/service/payments"
	"github.com/brianmaseno/readypips-sub001/service/signals"
	"github.com/brianmaseno/readypips-sub001/service/subscription"
	"github.com/brianmaseno/readypips-sub001/service/user"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	userHandler := user.NewHandler(s.db)
	userHandler.RegisterRoutes(subrouter)

	adminHandler := admin.NewHandler(s.db)
	adminHandler.RegisterRoutes(subrouter)

	subscriptionHandler := subscription.NewSubscriptionHandler(s.db)
	subscriptionHandler.RegisterRoutes(subrouter)

	paymentHandler := payments.NewPaymentHandler(s.db)
	paymentHandler.RegisterRoutes(subrouter)

	notificationHandler := notifications.NewHandler(s.db)
	notificationHandler.RegisterRoutes(subrouter)

	hub := live.NewHub(s.db)
	signalHandler := signals.NewSignalHandler(s.db, hub, notificationHandler)
	signalHandler.RegisterRoutes(subrouter)

	dashboardHandler := dashboard.NewHandler(s.db)
	dashboardHandler.RegisterRoutes(subrouter)

	marketHandler := market.NewHandler(s.db)
	marketHandler.RegisterRoutes(subrouter)

	wsHandler := live.NewWebSocketHandler(hub)
	wsHandler.RegisterRoutes(router)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, corsHandler(utils.MonitorMiddleware(router)))
}
