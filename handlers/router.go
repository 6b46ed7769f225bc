package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Queries reúne as leituras servidas pela API.
type Queries interface {
	TransactionReader
	AssetReader
}

// NewRouter monta as rotas da API. feed pode ser nil.
func NewRouter(engine Purchaser, queries Queries, feed *FeedHub, log *zap.Logger) http.Handler {
	purchaseHandler := NewPurchaseHandler(engine, log)
	transactionHandler := NewTransactionHandler(queries)
	assetHandler := NewAssetHandler(queries)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.URLFormat)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/buy", purchaseHandler.Buy)

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", transactionHandler.List)
		r.Get("/summary", transactionHandler.Summary)
		if feed != nil {
			r.Get("/feed", feed.Subscribe)
		}
	})

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", assetHandler.List)
		r.Get("/{id}", assetHandler.GetAssetByID)
		r.Get("/{id}/projection", assetHandler.Projection)
	})

	return r
}
