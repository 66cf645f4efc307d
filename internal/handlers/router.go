package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/logger"
)

// NewRouter registers every API route. The provider-facing routes are not
// behind auth; the rest require a bearer token.
func NewRouter(users *UserHandler, payments *PaymentHandler, parser TokenParser, limiter *RateLimiter, log *zap.Logger) *mux.Router {
	auth := AuthMiddleware(parser)
	protect := func(h http.HandlerFunc) http.Handler { return auth(h) }
	limit := func(h http.Handler) http.Handler {
		if limiter == nil {
			return h
		}
		return limiter.Middleware(h)
	}

	router := mux.NewRouter()
	router.Use(logger.RequestLogger(log))

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	router.Handle("/api/user", limit(http.HandlerFunc(users.CreateUser))).Methods("POST")
	router.Handle("/api/user", protect(users.GetUsers)).Methods("GET")
	router.Handle("/api/login", limit(http.HandlerFunc(users.Login))).Methods("POST")

	router.Handle("/api/payment", limit(protect(payments.CreatePayment))).Methods("POST")
	router.HandleFunc("/api/payment/webhook", payments.Webhook).Methods("POST")
	router.Handle("/api/payment/return", limit(http.HandlerFunc(payments.PaymentReturn))).Methods("GET")
	router.Handle("/api/payment/verify/{tx_ref}", limit(protect(payments.VerifyPayment))).Methods("GET")
	router.Handle("/api/payment/{tx_ref}", protect(payments.GetTransaction)).Methods("GET")
	router.Handle("/api/banks", protect(payments.ListBanks)).Methods("GET")

	return router
}
