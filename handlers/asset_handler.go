package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ferreirogomes/ryzer/models"
)

// AssetReader expõe o catálogo de ativos.
type AssetReader interface {
	Assets(ctx context.Context) ([]models.Asset, error)
	Asset(ctx context.Context, id int64) (models.Asset, error)
	Projection(ctx context.Context, id, quantity int64) (models.Projection, error)
}

// AssetHandler lida com requisições HTTP relacionadas a ativos.
type AssetHandler struct {
	Catalog AssetReader
}

// NewAssetHandler cria uma nova instância do handler de ativos.
func NewAssetHandler(c AssetReader) *AssetHandler {
	return &AssetHandler{Catalog: c}
}

// List lista o catálogo com o estoque restante de cada ativo.
// GET /assets
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Catalog.Assets(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

// GetAssetByID obtém um ativo pelo ID.
// GET /assets/{id}
func (h *AssetHandler) GetAssetByID(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(r)
	if !ok {
		writeFailure(w, models.ErrAssetNotFound)
		return
	}

	asset, err := h.Catalog.Asset(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

// Projection calcula preço total e renda projetada para o diálogo de compra.
// GET /assets/{id}/projection?quantity=
func (h *AssetHandler) Projection(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(r)
	if !ok {
		writeFailure(w, models.ErrAssetNotFound)
		return
	}
	quantity, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil {
		quantity = 0
	}

	p, err := h.Catalog.Projection(r.Context(), id, quantity)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func assetIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}
