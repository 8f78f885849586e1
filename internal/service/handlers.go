// Package service contains HTTP handler implementations for the quest board API endpoints.
// It orchestrates request parsing, calls the underlying business logic in the app package,
// maps errors (including database-specific errors) to status codes, and writes JSON responses.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"questboard/internal/app"
	"questboard/internal/calendar"
	"questboard/internal/models"
	"questboard/internal/pkg/auth"
	"questboard/internal/pkg/logger"
	"questboard/internal/quest"
	"questboard/internal/shop"
	"questboard/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

const requestTimeout = 10 * time.Second

// handlers aggregates dependencies needed by HTTP handlers,
// including the application business logic and logger.
type handlers struct {
	app *app.App
	log *logger.Logger
}

// newHandlers initializes a new handlers instance with the provided app and logger dependencies.
func newHandlers(app *app.App, l *logger.Logger) *handlers {
	return &handlers{app: app, log: l}
}

// authHandler handles user authentication requests.
// It reads the request body, unmarshals it into an AuthRequest,
// invokes the authentication process, and returns a JSON response with a token.
func (handlers *handlers) authHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var authRequest models.AuthRequest
	if !decodeBody(res, req, &authRequest) {
		return
	}

	var authResponse models.AuthResponse
	var pgError *pgconn.PgError
	var err error
	authResponse.Token, err = handlers.app.ProcessAuth(ctx, authRequest)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) ||
			(errors.As(err, &pgError) && pgError.Code == pgerrcode.UniqueViolation) {
			writeErrorResponse(res, "user with provided name already exists", http.StatusUnauthorized)
			return
		}

		if errors.Is(err, app.ErrMissingUsernameOrPassword) {
			writeErrorResponse(res, "missing username or password", http.StatusBadRequest)
			return
		}

		if errors.Is(err, storage.ErrInvalidCredentials) {
			writeErrorResponse(res, "incorrect password", http.StatusUnauthorized)
			return
		}
		writeErrorResponse(res, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(res, http.StatusOK, authResponse)
}

// queryHandler dispatches a tagged query to the handler registered under the name in the URL.
// Business failures are part of the 200 response body. The admission queue has no timeout on
// the host side, so the query keeps its place when the caller disconnects.
func (handlers *handlers) queryHandler(res http.ResponseWriter, req *http.Request) {
	var query models.Query
	if !decodeBody(res, req, &query) {
		return
	}

	if query.Type == models.QueryGrantRewards && !auth.IsGM(req.Context()) {
		writeErrorResponse(res, "game master only", http.StatusForbidden)
		return
	}

	ctx := context.WithoutCancel(req.Context())
	result, err := handlers.app.Registry().Dispatch(ctx, chi.URLParam(req, "name"), query)
	if errors.Is(err, app.ErrUnknownHandler) {
		writeErrorResponse(res, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		writeErrorResponse(res, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(res, http.StatusOK, result)
}

// stockHandler lists the derived stock of a shop.
func (handlers *handlers) stockHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	listings, err := handlers.app.Stock(ctx, chi.URLParam(req, "ref"))
	if err != nil {
		handlers.writeError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, listings)
}

func (handlers *handlers) addStockHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var addRequest models.AddRefRequest
	if !decodeBody(res, req, &addRequest) {
		return
	}

	listing, err := handlers.app.AddStock(ctx, chi.URLParam(req, "ref"), addRequest.ItemRef)
	if err != nil {
		handlers.writeError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, listing)
}

// editStockHandler applies a partial edit. Editing the quantity to zero removes the entry and
// answers with 204.
func (handlers *handlers) editStockHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var edit models.StockEdit
	if !decodeBody(res, req, &edit) {
		return
	}

	listing, err := handlers.app.EditStock(ctx, chi.URLParam(req, "ref"), chi.URLParam(req, "id"), edit)
	if err != nil {
		handlers.writeError(res, err)
		return
	}
	if listing == nil {
		res.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(res, http.StatusOK, listing)
}

func (handlers *handlers) removeStockHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	if err := handlers.app.RemoveStock(ctx, chi.URLParam(req, "ref"), chi.URLParam(req, "id")); err != nil {
		handlers.writeError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

func (handlers *handlers) addRewardHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var addRequest models.AddRefRequest
	if !decodeBody(res, req, &addRequest) {
		return
	}

	entry, err := handlers.app.AddReward(ctx, chi.URLParam(req, "ref"), addRequest.ItemRef)
	if err != nil {
		handlers.writeError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, entry)
}

func (handlers *handlers) removeRewardHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	if err := handlers.app.RemoveReward(ctx, chi.URLParam(req, "ref"), chi.URLParam(req, "id")); err != nil {
		handlers.writeError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

// eventsHandler lists the pages of the calendar events active on ?day=&year=.
func (handlers *handlers) eventsHandler(res http.ResponseWriter, req *http.Request) {
	day, errDay := strconv.Atoi(req.URL.Query().Get("day"))
	year, errYear := strconv.Atoi(req.URL.Query().Get("year"))
	if errDay != nil || errYear != nil {
		writeErrorResponse(res, "day and year must be integers", http.StatusBadRequest)
		return
	}

	pages, err := handlers.app.EventsOn(models.EventDate{Day: day, Year: year})
	if err != nil {
		handlers.writeError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, map[string][]string{"pages": pages})
}

func (handlers *handlers) storeEventHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var storeRequest models.StoreEventRequest
	if !decodeBody(res, req, &storeRequest) {
		return
	}

	event, err := handlers.app.StoreEvent(ctx, storeRequest)
	if err != nil {
		handlers.writeError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, event)
}

func (handlers *handlers) removeEventHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	page := req.URL.Query().Get("page")
	if page == "" {
		writeErrorResponse(res, "missing page", http.StatusBadRequest)
		return
	}

	removed, err := handlers.app.RemoveEventPage(ctx, page)
	if err != nil {
		handlers.writeError(res, err)
		return
	}
	writeJSON(res, http.StatusOK, map[string]int{"removed": removed})
}

func (handlers *handlers) clearCalendarHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	if err := handlers.app.ClearCalendar(ctx); err != nil {
		handlers.writeError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

// writeError maps operation errors to status codes.
func (handlers *handlers) writeError(res http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shop.ErrShopNotFound),
		errors.Is(err, shop.ErrStockNotFound),
		errors.Is(err, shop.ErrItemNotFound),
		errors.Is(err, quest.ErrQuestNotFound),
		errors.Is(err, quest.ErrRewardNotFound),
		errors.Is(err, quest.ErrItemNotFound):
		writeErrorResponse(res, err.Error(), http.StatusNotFound)
	case errors.Is(err, shop.ErrInvalidRequest),
		errors.Is(err, shop.ErrItemNotAllowed),
		errors.Is(err, quest.ErrInvalidRequest),
		errors.Is(err, quest.ErrItemNotAllowed),
		errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, calendar.ErrInvalidEvent),
		errors.Is(err, calendar.ErrUnsupportedRecurrence):
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		writeErrorResponse(res, "request timed out", http.StatusGatewayTimeout)
	default:
		handlers.log.Sugar().Errorf("Failed to handle request: %s", err)
		writeErrorResponse(res, err.Error(), http.StatusInternalServerError)
	}
}

func decodeBody(res http.ResponseWriter, req *http.Request, v any) bool {
	requestBody, err := io.ReadAll(req.Body)
	if err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return false
	}
	if err = json.Unmarshal(requestBody, v); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(res http.ResponseWriter, statusCode int, v any) {
	result, err := json.Marshal(v)
	if err != nil {
		writeErrorResponse(res, err.Error(), http.StatusInternalServerError)
		return
	}
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	res.Write(result)
}

func writeErrorResponse(res http.ResponseWriter, errorInfo string, statusCode int) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	json.NewEncoder(res).Encode(models.ErrorResponse{Errors: errorInfo})
}
