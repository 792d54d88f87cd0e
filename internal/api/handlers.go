package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"dealdesk/internal/config"
	"dealdesk/internal/domain"
	"dealdesk/internal/notify"
	"dealdesk/internal/review"
	"dealdesk/internal/storage"
)

type dealReviewer interface {
	ReviewDeal(ctx context.Context, dealID int64) (review.Result, error)
}

type imageStore interface {
	PutImage(ctx context.Context, dealID int64, filename, contentType string, content []byte) (string, error)
	GetImage(ctx context.Context, objectKey string) ([]byte, error)
	RemoveImage(ctx context.Context, objectKey string) error
}

type Handler struct {
	cfg           config.Config
	store         *storage.PostgresStore
	images        imageStore
	reviewer      dealReviewer
	notifications notify.Store
	reviewLimiter *rate.Limiter
	log           zerolog.Logger
}

func NewHandler(cfg config.Config, store *storage.PostgresStore, images imageStore, reviewer dealReviewer, notifications notify.Store, log zerolog.Logger) *Handler {
	return &Handler{
		cfg:           cfg,
		store:         store,
		images:        images,
		reviewer:      reviewer,
		notifications: notifications,
		reviewLimiter: rate.NewLimiter(rate.Limit(cfg.ReviewRatePerSec), cfg.ReviewRateBurst),
		log:           log,
	}
}

type dealRequest struct {
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Description   string   `json:"description"`
	Amount        float64  `json:"amount"`
	InsuranceType *string  `json:"insurance_type,omitempty"`
	Coverage      *float64 `json:"coverage,omitempty"`
	PropertyType  *string  `json:"property_type,omitempty"`
	Location      *string  `json:"location,omitempty"`
	Make          *string  `json:"make,omitempty"`
	Model         *string  `json:"model,omitempty"`
	Year          *int     `json:"year,omitempty"`
}

type reviewResponse struct {
	Status   domain.DealStatus `json:"status"`
	Feedback *string           `json:"feedback"`
}

type orderRequest struct {
	DealID        int64           `json:"deal_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Amount        float64         `json:"amount"`
	BankReference string          `json:"bank_reference"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

func (r dealRequest) toDeal(userID int64) domain.Deal {
	return domain.Deal{
		UserID:        userID,
		Title:         r.Title,
		Type:          domain.DealType(r.Type),
		Description:   r.Description,
		Amount:        r.Amount,
		InsuranceType: r.InsuranceType,
		Coverage:      r.Coverage,
		PropertyType:  r.PropertyType,
		Location:      r.Location,
		Make:          r.Make,
		Model:         r.Model,
		Year:          r.Year,
	}
}

func (h *Handler) ListDeals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deals, err := h.store.ListDealsByUser(ctx, userID(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch deals"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": deals})
}

func (h *Handler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	var req dealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	deal := req.toDeal(userID(r))
	if failed := domain.ValidateDeal(deal); len(failed) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "failed_rules": failed})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	created, err := h.store.CreateDeal(ctx, deal)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create deal"})
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateDeal(w http.ResponseWriter, r *http.Request, dealID int64) {
	var req dealRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	existing, err := h.store.GetDealForUser(ctx, dealID, userID(r))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "deal not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch deal"})
		return
	}

	deal := req.toDeal(existing.UserID)
	deal.ID = existing.ID
	deal.Images = existing.Images
	if failed := domain.ValidateDeal(deal); len(failed) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "failed_rules": failed})
		return
	}

	updated, err := h.store.UpdateDeal(ctx, deal)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to update deal"})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteDeal(w http.ResponseWriter, r *http.Request, dealID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	deal, err := h.store.GetDealForUser(ctx, dealID, userID(r))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "deal not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch deal"})
		return
	}

	if err := h.store.DeleteDeal(ctx, dealID, userID(r)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "deal not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to delete deal"})
		return
	}

	// object cleanup is best-effort once the row is gone
	for _, objectKey := range deal.Images {
		if err := h.images.RemoveImage(ctx, objectKey); err != nil {
			h.log.Warn().Err(err).Str("object_key", objectKey).Msg("image cleanup failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "deal deleted successfully"})
}

// ReviewDeal triggers one compliance review. Rate limited because every
// accepted request can spend an external completion call.
func (h *Handler) ReviewDeal(w http.ResponseWriter, r *http.Request, dealID int64) {
	if !h.reviewLimiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "too many review requests, try again shortly"})
		return
	}

	res, err := h.reviewer.ReviewDeal(r.Context(), dealID)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "deal not found"})
		case errors.Is(err, review.ErrReviewFailed):
			h.log.Error().Err(err).Int64("deal_id", dealID).Msg("review failed")
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": "review could not be completed, deal is still pending"})
		default:
			h.log.Error().Err(err).Int64("deal_id", dealID).Msg("review persistence failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to review deal"})
		}
		return
	}

	status := http.StatusOK
	if res.ShortCircuited {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, reviewResponse{Status: res.Status, Feedback: res.Feedback})
}

func (h *Handler) ReviewHistory(w http.ResponseWriter, r *http.Request, dealID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.store.GetDealForUser(ctx, dealID, userID(r)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "deal not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch deal"})
		return
	}

	entries, err := h.store.ListReviewLog(ctx, dealID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch review history"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h *Handler) DealStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.store.GetDealStats(ctx, userID(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) UploadDealImage(w http.ResponseWriter, r *http.Request, dealID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	deal, err := h.store.GetDealForUser(ctx, dealID, userID(r))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "deal not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch deal"})
		return
	}

	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart payload"})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "image form field is required"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read image"})
		return
	}
	if int64(len(body)) > h.cfg.AllowedUploadBytes {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "image exceeds size limit"})
		return
	}

	objectKey, err := h.images.PutImage(ctx, dealID, header.Filename, header.Header.Get("Content-Type"), body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to store image"})
		return
	}

	deal.Images = append(deal.Images, objectKey)
	updated, err := h.store.UpdateDeal(ctx, deal)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to record image"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"object_key": objectKey, "images": updated.Images})
}

// DownloadDealImage streams one stored image back. The object key is rebuilt
// from the deal id and the requested name and must appear in the deal's
// recorded image list, so a caller can only fetch keys their own deal owns.
func (h *Handler) DownloadDealImage(w http.ResponseWriter, r *http.Request, dealID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	deal, err := h.store.GetDealForUser(ctx, dealID, userID(r))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "deal not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch deal"})
		return
	}

	objectKey := storage.ImageObjectKey(dealID, chi.URLParam(r, "imageName"))
	if !dealHasImage(deal, objectKey) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "image not found"})
		return
	}

	body, err := h.images.GetImage(ctx, objectKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch image"})
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(body))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func dealHasImage(deal domain.Deal, objectKey string) bool {
	for _, key := range deal.Images {
		if key == objectKey {
			return true
		}
	}
	return false
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orders, err := h.store.ListOrdersByUser(ctx, userID(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch orders"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.CustomerName == "" || req.CustomerEmail == "" || req.BankReference == "" || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "customer_name, customer_email, bank_reference and a positive amount are required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deal, err := h.store.GetDeal(ctx, req.DealID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "deal not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch deal"})
		return
	}
	if deal.Status != domain.StatusApproved {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "orders can only be placed against approved deals"})
		return
	}

	order, err := h.store.CreateOrder(ctx, domain.Order{
		ID:            uuid.NewString(),
		DealID:        req.DealID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Amount:        req.Amount,
		Status:        domain.OrderPending,
		BankReference: req.BankReference,
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to create order"})
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.notifications.List(ctx, userID(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch notifications"})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request, notificationID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.notifications.MarkRead(ctx, userID(r), notificationID); err != nil {
		if errors.Is(err, notify.ErrNotificationNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "notification not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to update notification"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "notification marked as read"})
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.notifications.MarkAllRead(ctx, userID(r)); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to update notifications"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "all notifications marked as read"})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz counts deals instead of pinging: a count proves the schema is
// migrated, not just that the connection is alive.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	total, err := h.store.CountDeals(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "deals": total})
}

func parseID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
