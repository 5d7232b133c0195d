package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"nexerp.io/internal/auth"
	"nexerp.io/internal/crm"
	"nexerp.io/internal/obs"
)

type createCompanyRequest struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Website  string `json:"website"`
}

func (a *API) handleCompaniesCollection(w http.ResponseWriter, r *http.Request) {
	sec, ok := auth.SecurityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		companies, err := a.crm.ListCompanies(r.Context(), sec)
		if err != nil {
			a.handleCRMError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, map[string]any{"companies": companies})
	case http.MethodPost:
		var req createCompanyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusUnprocessableEntity, err.Error())
			return
		}
		company, err := a.crm.CreateCompany(r.Context(), sec, crm.CreateCompanyInput{
			Name:     req.Name,
			Industry: req.Industry,
			Website:  req.Website,
		})
		if err != nil {
			a.handleCRMError(w, r, err)
			return
		}
		writeData(w, r, http.StatusCreated, company)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCompanyResource(w http.ResponseWriter, r *http.Request) {
	sec, ok := auth.SecurityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/crm/companies/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		company, err := a.crm.GetCompany(r.Context(), sec, id)
		if err != nil {
			a.handleCRMError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, company)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) handleCRMError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, crm.ErrInvalidInput):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, crm.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "company not found")
	default:
		obs.LogRequest(map[string]any{
			"level":      "error",
			"msg":        "crm request failed",
			"error":      err.Error(),
			"request_id": RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
