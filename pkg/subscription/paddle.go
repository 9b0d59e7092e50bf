package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
	"github.com/google/uuid"
)

// PaddleConfig holds configuration for the Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements BillingProvider for Paddle.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}
	if config.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

// ChargeProrated bills the exact amount against the subscription's saved
// payment method right away, as a one-time subscription charge with a
// non-catalog price. The related catalog price and the idempotency key ride
// in custom data; the resulting transaction ID arrives asynchronously on
// the transaction.completed webhook.
func (p *PaddleProvider) ChargeProrated(ctx context.Context, req ProratedChargeRequest) (*ChargeResult, error) {
	if req.ProviderSubID == "" {
		return nil, errors.New("provider subscription ID is required")
	}
	if req.PriceID == "" {
		return nil, errors.New("price ID is required")
	}
	if req.Amount.Amount <= 0 {
		return nil, fmt.Errorf("charge must be positive, got %d", req.Amount.Amount)
	}

	name := req.Description
	if name == "" {
		name = "One-time charge"
	}

	item := paddle.NewCreateSubscriptionChargeItemsSubscriptionChargeItemCreateWithProduct(&paddle.SubscriptionChargeItemCreateWithProduct{
		Quantity: 1,
		Price: paddle.SubscriptionChargeCreateWithProduct{
			Description: name,
			Name:        paddle.PtrTo(name),
			UnitPrice: paddle.Money{
				Amount:       fmt.Sprintf("%d", req.Amount.Amount),
				CurrencyCode: paddle.CurrencyCode(req.Amount.Currency),
			},
			CustomData: paddle.CustomData{
				"account_id":      req.AccountID.String(),
				"idempotency_key": req.IdempotencyKey,
				"price_id":        req.PriceID,
			},
			Product: paddle.TransactionSubscriptionProductCreate{
				Name:        name,
				TaxCategory: paddle.TaxCategoryStandard,
			},
		},
	})

	_, err := p.client.SubscriptionsClient.CreateSubscriptionCharge(ctx, &paddle.CreateSubscriptionChargeRequest{
		SubscriptionID: req.ProviderSubID,
		EffectiveFrom:  paddle.EffectiveFromImmediately,
		Items:          []paddle.CreateSubscriptionChargeItems{*item},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle subscription charge: %w", err)
	}

	return &ChargeResult{Amount: req.Amount}, nil
}

// ChangePlan switches the Paddle subscription to a new price. Immediate
// switches use do_not_bill because the orchestrator has already charged the
// prorated difference as its own idempotent transaction; renewal switches
// bill the full new price at the next period.
func (p *PaddleProvider) ChangePlan(ctx context.Context, providerSubID, priceID string, timing ChangeTiming) error {
	if providerSubID == "" {
		return errors.New("provider subscription ID is required")
	}
	if priceID == "" {
		return errors.New("price ID is required")
	}

	mode := paddle.ProrationBillingModeFullNextBillingPeriod
	if timing == ChangeImmediate {
		mode = paddle.ProrationBillingModeDoNotBill
	}

	item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})

	_, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:       providerSubID,
		Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		ProrationBillingMode: paddle.NewPatchField(mode),
	})
	if err != nil {
		return fmt.Errorf("failed to update paddle subscription: %w", err)
	}
	return nil
}

// CancelAtPeriodEnd schedules the Paddle subscription to lapse at the end
// of the current billing period.
func (p *PaddleProvider) CancelAtPeriodEnd(ctx context.Context, providerSubID string) error {
	if providerSubID == "" {
		return errors.New("provider subscription ID is required")
	}

	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: providerSubID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromNextBillingPeriod),
	})
	if err != nil {
		return fmt.Errorf("failed to cancel paddle subscription: %w", err)
	}
	return nil
}

// Reactivate removes a scheduled cancellation by clearing the pending
// scheduled change on the Paddle subscription.
func (p *PaddleProvider) Reactivate(ctx context.Context, providerSubID string) error {
	if providerSubID == "" {
		return errors.New("provider subscription ID is required")
	}

	// Paddle only accepts null here; it clears the pending change.
	_, err := p.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
		SubscriptionID:  providerSubID,
		ScheduledChange: paddle.NewPatchField[*paddle.SubscriptionScheduledChange](nil),
	})
	if err != nil {
		return fmt.Errorf("failed to remove scheduled cancellation: %w", err)
	}
	return nil
}

// Fetch pulls Paddle's current view of the subscription.
func (p *PaddleProvider) Fetch(ctx context.Context, providerSubID string) (*RemoteSubscription, error) {
	if providerSubID == "" {
		return nil, errors.New("provider subscription ID is required")
	}

	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: providerSubID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch paddle subscription: %w", err)
	}

	remote := &RemoteSubscription{
		Status:     mapPaddleStatus(string(sub.Status)),
		Terminated: sub.Status == paddle.SubscriptionStatusCanceled,
	}

	if sub.CurrentBillingPeriod != nil {
		if t, err := time.Parse(time.RFC3339, sub.CurrentBillingPeriod.StartsAt); err == nil {
			remote.PeriodStart = t
		}
		if t, err := time.Parse(time.RFC3339, sub.CurrentBillingPeriod.EndsAt); err == nil {
			remote.PeriodEnd = t
		}
	}

	if sub.ScheduledChange != nil && sub.ScheduledChange.Action == paddle.ScheduledChangeActionCancel {
		remote.CancelAtPeriodEnd = true
	}

	return remote, nil
}

// ParseWebhook validates and parses incoming webhook data from Paddle.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	// The verifier works on an http.Request, so wrap the raw delivery.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, fmt.Errorf("webhook verification error: %w", err)
	}
	if !valid {
		return nil, errors.New("webhook signature verification failed")
	}

	var paddleEvent struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &paddleEvent); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	event := &WebhookEvent{
		ID:            paddleEvent.EventID,
		Type:          mapPaddleEventType(paddleEvent.EventType),
		ProviderEvent: paddleEvent.EventType,
		Raw:           paddleEvent.Data,
	}

	data := paddleEvent.Data

	if strings.HasPrefix(paddleEvent.EventType, "subscription.") {
		if subID, ok := data["id"].(string); ok {
			event.ProviderSubID = subID
		}
	} else if subID, ok := data["subscription_id"].(string); ok {
		event.ProviderSubID = subID
	}

	if status, ok := data["status"].(string); ok {
		event.Status = string(mapPaddleStatus(status))
	}

	if customData, ok := data["custom_data"].(map[string]any); ok {
		if rawID, ok := customData["account_id"].(string); ok {
			if id, err := uuid.Parse(rawID); err == nil {
				event.AccountID = id
			}
		}
	}

	if period, ok := data["current_billing_period"].(map[string]any); ok {
		if raw, ok := period["starts_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				event.PeriodStart = t
			}
		}
		if raw, ok := period["ends_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				event.PeriodEnd = t
			}
		}
	}

	if change, ok := data["scheduled_change"].(map[string]any); ok {
		if action, ok := change["action"].(string); ok && action == "cancel" {
			event.CancelAtPeriodEnd = true
		}
	}

	if items, ok := data["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			if price, ok := item["price"].(map[string]any); ok {
				if priceID, ok := price["id"].(string); ok {
					event.PlanID = priceID
				}
			} else if priceID, ok := item["price_id"].(string); ok {
				event.PlanID = priceID
			}
		}
	}

	if event.Type == EventTypePaymentFailed {
		if details, ok := data["payments"].([]any); ok && len(details) > 0 {
			if payment, ok := details[0].(map[string]any); ok {
				if reason, ok := payment["error_code"].(string); ok {
					event.FailureMessage = reason
				}
			}
		}
	}

	return event, nil
}

// mapPaddleEventType maps Paddle event names to normalized types.
func mapPaddleEventType(paddleEvent string) EventType {
	switch paddleEvent {
	case "transaction.completed":
		return EventTypePaymentSucceeded
	case "transaction.payment_failed":
		return EventTypePaymentFailed
	case "subscription.updated", "subscription.resumed", "subscription.activated":
		return EventTypeSubscriptionUpdated
	case "subscription.canceled":
		return EventTypeSubscriptionDeleted
	default:
		return EventType(paddleEvent)
	}
}

// mapPaddleStatus maps Paddle subscription statuses to local ones.
func mapPaddleStatus(status string) Status {
	switch status {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "paused":
		return StatusSuspended
	case "canceled":
		return StatusCanceled
	default:
		return Status(status)
	}
}

// ProcessorMessage extracts a human-readable failure message from a
// provider error for surfacing to the caller. Falls back to a generic
// message so internals never leak verbatim.
func ProcessorMessage(err error) string {
	var apiErr *paddleerr.Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return "payment could not be processed"
}
