package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"velvetink/internal/infra/metrics"
	"velvetink/internal/usecase"
)

// maxBodyBytes caps webhook payload size per the provider's guidance.
const maxBodyBytes = 65536

// BillingEventSink is what the webhook needs from the reconciler.
type BillingEventSink interface {
	HandleCheckoutCompleted(ctx context.Context, ev usecase.CheckoutEvent) error
	HandleSubscriptionUpserted(ctx context.Context, ev usecase.SubscriptionEvent) error
	HandleSubscriptionDeleted(ctx context.Context, customerID string) error
	HandleInvoicePaid(ctx context.Context, ev usecase.InvoiceEvent) error
	HandleInvoiceFailed(ctx context.Context, ev usecase.InvoiceEvent) error
}

// Deduper remembers processed event ids across redeliveries. Forget releases
// a claim when dispatch fails, so the provider's retry is not treated as a
// duplicate of an event that was never applied.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// StripeWebhookHandler verifies, deduplicates and dispatches billing events.
// Every accepted event is acknowledged with 200 even when ignored; only
// transient handler failures return 5xx so the provider retries.
type StripeWebhookHandler struct {
	sink   BillingEventSink
	dedupe Deduper
	secret string
	log    *zerolog.Logger
}

func NewStripeWebhookHandler(sink BillingEventSink, dedupe Deduper, secret string, log *zerolog.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{sink: sink, dedupe: dedupe, secret: secret, log: log}
}

func (h *StripeWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.IncWebhookEvent("unknown", "rejected")
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	// Dashboard API versions drift ahead of the SDK's pin; the signature is
	// what authenticates the payload, not the version label.
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("webhook signature verification failed")
		metrics.IncWebhookEvent("unknown", "rejected")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	eventType := string(event.Type)

	first, err := h.dedupe.FirstSeen(r.Context(), event.ID)
	if err != nil {
		h.log.Error().Err(err).Str("event_id", event.ID).Msg("dedupe check failed")
		metrics.IncWebhookEvent(eventType, "error")
		http.Error(w, "dedupe unavailable", http.StatusInternalServerError)
		return
	}
	if !first {
		h.log.Debug().Str("event_id", event.ID).Msg("duplicate webhook delivery dropped")
		metrics.IncWebhookEvent(eventType, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	outcome, err := h.dispatch(r.Context(), event)
	if err != nil {
		h.log.Error().Err(err).Str("event_id", event.ID).Str("type", eventType).Msg("webhook handler failed")
		// Release the dedupe claim: the event was not applied, and the
		// provider's redelivery must get another chance.
		if ferr := h.dedupe.Forget(r.Context(), event.ID); ferr != nil {
			h.log.Error().Err(ferr).Str("event_id", event.ID).Msg("could not release dedupe claim")
		}
		metrics.IncWebhookEvent(eventType, "error")
		http.Error(w, "handler failed", http.StatusInternalServerError)
		return
	}
	metrics.IncWebhookEvent(eventType, outcome)
	w.WriteHeader(http.StatusOK)
}

// Minimal views of the provider objects; only the fields the reconciler needs.
type checkoutSession struct {
	Metadata    map[string]string `json:"metadata"`
	AmountTotal int64             `json:"amount_total"`
}

type subscriptionObject struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoiceObject struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	BillingReason string `json:"billing_reason"`
	AmountPaid    int64  `json:"amount_paid"`
	AmountDue     int64  `json:"amount_due"`
	Lines         struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (h *StripeWebhookHandler) dispatch(ctx context.Context, event stripe.Event) (string, error) {
	switch event.Type {
	case "checkout.session.completed":
		var s checkoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return "", err
		}
		ev := usecase.CheckoutEvent{
			UserID:      s.Metadata["user_id"],
			Kind:        s.Metadata["kind"],
			AmountCents: s.AmountTotal,
		}
		return "applied", h.sink.HandleCheckoutCompleted(ctx, ev)

	case "customer.subscription.created", "customer.subscription.updated":
		var s subscriptionObject
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return "", err
		}
		ev := usecase.SubscriptionEvent{
			CustomerID:     s.Customer,
			SubscriptionID: s.ID,
			PeriodEnd:      time.Unix(s.CurrentPeriodEnd, 0).UTC(),
		}
		if len(s.Items.Data) > 0 {
			ev.PriceID = s.Items.Data[0].Price.ID
		}
		return "applied", h.sink.HandleSubscriptionUpserted(ctx, ev)

	case "customer.subscription.deleted":
		var s subscriptionObject
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return "", err
		}
		return "applied", h.sink.HandleSubscriptionDeleted(ctx, s.Customer)

	case "invoice.paid":
		ev, err := toInvoiceEvent(event.Data.Raw)
		if err != nil {
			return "", err
		}
		return "applied", h.sink.HandleInvoicePaid(ctx, ev)

	case "invoice.payment_failed":
		ev, err := toInvoiceEvent(event.Data.Raw)
		if err != nil {
			return "", err
		}
		return "applied", h.sink.HandleInvoiceFailed(ctx, ev)

	default:
		h.log.Debug().Str("type", string(event.Type)).Msg("unhandled webhook event type")
		return "ignored", nil
	}
}

func toInvoiceEvent(raw json.RawMessage) (usecase.InvoiceEvent, error) {
	var inv invoiceObject
	if err := json.Unmarshal(raw, &inv); err != nil {
		return usecase.InvoiceEvent{}, err
	}
	ev := usecase.InvoiceEvent{
		CustomerID:     inv.Customer,
		SubscriptionID: inv.Subscription,
		InvoiceID:      inv.ID,
		BillingReason:  inv.BillingReason,
		AmountCents:    inv.AmountPaid,
	}
	if len(inv.Lines.Data) > 0 {
		ev.PeriodEnd = time.Unix(inv.Lines.Data[0].Period.End, 0).UTC()
	}
	return ev, nil
}
