// Package handler provides HTTP handlers for the pushgate API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/trovehunt/pushgate/internal/api/middleware"
	"github.com/trovehunt/pushgate/internal/api/models"
	"github.com/trovehunt/pushgate/internal/api/response"
	"github.com/trovehunt/pushgate/internal/delivery"
	"github.com/trovehunt/pushgate/internal/subscription"
)

// PushHandler handles subscription and send endpoints.
type PushHandler struct {
	subscriptions *subscription.Service
	deliveries    *delivery.Service
	publicKey     string
}

// NewPushHandler creates a new PushHandler.
func NewPushHandler(subscriptions *subscription.Service, deliveries *delivery.Service, publicKey string) *PushHandler {
	return &PushHandler{
		subscriptions: subscriptions,
		deliveries:    deliveries,
		publicKey:     publicKey,
	}
}

// Subscribe handles POST /push/subscribe - store or renew a subscription.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var input models.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrors := validateSubscribe(&input); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid subscription", fieldErrors)
		return
	}

	sub := &subscription.Subscription{
		Endpoint: input.Endpoint,
		P256dh:   input.Keys.P256dh,
		Auth:     input.Keys.Auth,
	}

	// A verified bearer token outranks whatever user the body claims.
	userID := input.UserID
	if authenticated := middleware.GetUserID(r.Context()); authenticated != "" {
		userID = authenticated
	}
	if userID != "" {
		sub.UserID = &userID
	}
	ua := input.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	if ua != "" {
		sub.UserAgent = &ua
	}

	if err := h.subscriptions.Save(r.Context(), sub); err != nil {
		switch {
		case errors.Is(err, subscription.ErrInvalidSubscription):
			response.BadRequest(w, r, err.Error(), nil)
		default:
			response.ServiceUnavailable(w, r, "subscription storage is unavailable")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, models.AckResponse{OK: true})
}

// Unsubscribe handles POST /push/unsubscribe - drop a subscription.
// Unsubscribing an unknown endpoint succeeds; the end state is the same.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var input models.UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if input.Endpoint == "" {
		response.BadRequest(w, r, "endpoint is required", []models.FieldError{
			{Field: "endpoint", Message: "endpoint is required", Code: "required"},
		})
		return
	}

	if err := h.subscriptions.Remove(r.Context(), input.Endpoint); err != nil {
		if errors.Is(err, subscription.ErrInvalidSubscription) {
			response.BadRequest(w, r, err.Error(), nil)
			return
		}
		response.ServiceUnavailable(w, r, "subscription storage is unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.AckResponse{OK: true})
}

// Send handles POST /push/send - fan a notification out to an audience.
// Requires the operator scope.
func (h *PushHandler) Send(w http.ResponseWriter, r *http.Request) {
	var input models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if input.Target.Empty() {
		response.BadRequest(w, r, "target is required", []models.FieldError{
			{Field: "target", Message: `target must be "all", a userId, or a userIds list`, Code: "required"},
		})
		return
	}
	if input.Title == "" {
		response.BadRequest(w, r, "title is required", []models.FieldError{
			{Field: "title", Message: "title is required", Code: "required"},
		})
		return
	}

	result, err := h.deliveries.Send(r.Context(), delivery.Target{
		All:     input.Target.All,
		UserID:  input.Target.UserID,
		UserIDs: input.Target.UserIDs,
	}, delivery.Notification{
		Title: input.Title,
		Body:  input.Body,
		Data:  input.Data,
	})
	if err != nil {
		if errors.Is(err, delivery.ErrNoTarget) {
			response.BadRequest(w, r, "target is required", nil)
			return
		}
		response.ServiceUnavailable(w, r, "delivery is unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.SendResponse{
		Delivered:      result.Delivered,
		Expired:        result.Expired,
		TransientError: result.TransientError,
		PermanentError: result.PermanentError,
	})
}

// VAPIDPublicKey handles GET /push/vapid-public-key - the application
// server key clients subscribe against.
func (h *PushHandler) VAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.VAPIDPublicKeyResponse{Key: h.publicKey})
}

// validateSubscribe checks the shape of a subscribe request. Deep key
// validation happens in the subscription service; this catches the obvious
// omissions with field-level errors.
func validateSubscribe(input *models.SubscribeRequest) []models.FieldError {
	var fieldErrors []models.FieldError
	if input.Endpoint == "" {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "endpoint", Message: "endpoint is required", Code: "required",
		})
	}
	if input.Keys.P256dh == "" {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "keys.p256dh", Message: "p256dh key is required", Code: "required",
		})
	}
	if input.Keys.Auth == "" {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "keys.auth", Message: "auth secret is required", Code: "required",
		})
	}
	return fieldErrors
}
