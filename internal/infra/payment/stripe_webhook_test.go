package payment_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"velvetink/internal/infra/payment"
	"velvetink/internal/usecase"
)

const testSecret = "whsec_test_secret"

type recordingSink struct {
	checkouts     []usecase.CheckoutEvent
	subscriptions []usecase.SubscriptionEvent
	deletions     []string
	paid          []usecase.InvoiceEvent
	failed        []usecase.InvoiceEvent
	err           error
}

func (s *recordingSink) HandleCheckoutCompleted(ctx context.Context, ev usecase.CheckoutEvent) error {
	s.checkouts = append(s.checkouts, ev)
	return s.err
}
func (s *recordingSink) HandleSubscriptionUpserted(ctx context.Context, ev usecase.SubscriptionEvent) error {
	s.subscriptions = append(s.subscriptions, ev)
	return s.err
}
func (s *recordingSink) HandleSubscriptionDeleted(ctx context.Context, customerID string) error {
	s.deletions = append(s.deletions, customerID)
	return s.err
}
func (s *recordingSink) HandleInvoicePaid(ctx context.Context, ev usecase.InvoiceEvent) error {
	s.paid = append(s.paid, ev)
	return s.err
}
func (s *recordingSink) HandleInvoiceFailed(ctx context.Context, ev usecase.InvoiceEvent) error {
	s.failed = append(s.failed, ev)
	return s.err
}

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDeduper() *memoryDeduper { return &memoryDeduper{seen: map[string]bool{}} }

func (d *memoryDeduper) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

func (d *memoryDeduper) Forget(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}

// sign produces a Stripe-Signature header the verifier accepts.
func sign(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func deliver(t *testing.T, h http.Handler, payload []byte, sigHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sigHeader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func eventPayload(id, typ, object string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":%s}}`, id, typ, object))
}

func TestStripeWebhookHandler(t *testing.T) {
	log := zerolog.Nop()

	newHandler := func() (*payment.StripeWebhookHandler, *recordingSink) {
		sink := &recordingSink{}
		return payment.NewStripeWebhookHandler(sink, newMemoryDeduper(), testSecret, &log), sink
	}

	t.Run("rejects a tampered signature", func(t *testing.T) {
		h, sink := newHandler()
		payload := eventPayload("evt_1", "checkout.session.completed", `{"metadata":{"user_id":"u1","kind":"credit_topup"},"amount_total":299}`)
		rec := deliver(t, h, payload, "t=1,v1=deadbeef")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if len(sink.checkouts) != 0 {
			t.Error("unverified event must not reach the sink")
		}
	})

	t.Run("dispatches checkout completion", func(t *testing.T) {
		h, sink := newHandler()
		payload := eventPayload("evt_2", "checkout.session.completed", `{"metadata":{"user_id":"u1","kind":"credit_topup"},"amount_total":299}`)
		rec := deliver(t, h, payload, sign(payload))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(sink.checkouts) != 1 {
			t.Fatalf("expected 1 checkout event, got %d", len(sink.checkouts))
		}
		got := sink.checkouts[0]
		if got.UserID != "u1" || got.Kind != "credit_topup" || got.AmountCents != 299 {
			t.Errorf("unexpected event: %+v", got)
		}
	})

	t.Run("accepts an event from a newer api version", func(t *testing.T) {
		h, sink := newHandler()
		payload := []byte(`{"id":"evt_v","api_version":"2099-01-01","type":"checkout.session.completed",` +
			`"data":{"object":{"metadata":{"user_id":"u1","kind":"credit_topup"},"amount_total":299}}}`)
		rec := deliver(t, h, payload, sign(payload))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(sink.checkouts) != 1 {
			t.Fatalf("expected 1 checkout event, got %d", len(sink.checkouts))
		}
	})

	t.Run("drops a redelivered event id", func(t *testing.T) {
		h, sink := newHandler()
		payload := eventPayload("evt_3", "customer.subscription.deleted", `{"id":"sub_1","customer":"cus_1"}`)
		for i := 0; i < 2; i++ {
			rec := deliver(t, h, payload, sign(payload))
			if rec.Code != http.StatusOK {
				t.Fatalf("delivery %d: expected 200, got %d", i, rec.Code)
			}
		}
		if len(sink.deletions) != 1 {
			t.Fatalf("expected exactly one applied deletion, got %d", len(sink.deletions))
		}
	})

	t.Run("dispatches subscription upsert with price and period", func(t *testing.T) {
		h, sink := newHandler()
		end := time.Now().AddDate(0, 1, 0).Unix()
		object := fmt.Sprintf(`{"id":"sub_9","customer":"cus_9","current_period_end":%d,"items":{"data":[{"price":{"id":"price_plus_monthly"}}]}}`, end)
		payload := eventPayload("evt_4", "customer.subscription.updated", object)
		deliver(t, h, payload, sign(payload))
		if len(sink.subscriptions) != 1 {
			t.Fatalf("expected 1 subscription event, got %d", len(sink.subscriptions))
		}
		got := sink.subscriptions[0]
		if got.CustomerID != "cus_9" || got.SubscriptionID != "sub_9" || got.PriceID != "price_plus_monthly" {
			t.Errorf("unexpected event: %+v", got)
		}
		if got.PeriodEnd.Unix() != end {
			t.Errorf("expected period end %d, got %d", end, got.PeriodEnd.Unix())
		}
	})

	t.Run("dispatches invoice paid with billing reason", func(t *testing.T) {
		h, sink := newHandler()
		end := time.Now().AddDate(0, 1, 0).Unix()
		object := fmt.Sprintf(`{"id":"in_1","customer":"cus_2","subscription":"sub_2","billing_reason":"subscription_cycle","amount_paid":999,"lines":{"data":[{"period":{"end":%d}}]}}`, end)
		payload := eventPayload("evt_5", "invoice.paid", object)
		deliver(t, h, payload, sign(payload))
		if len(sink.paid) != 1 {
			t.Fatalf("expected 1 invoice event, got %d", len(sink.paid))
		}
		got := sink.paid[0]
		if got.BillingReason != usecase.BillingReasonSubscriptionCycle || got.AmountCents != 999 {
			t.Errorf("unexpected event: %+v", got)
		}
		if got.PeriodEnd.Unix() != end {
			t.Errorf("expected period end %d, got %d", end, got.PeriodEnd.Unix())
		}
	})

	t.Run("acknowledges unhandled event types", func(t *testing.T) {
		h, _ := newHandler()
		payload := eventPayload("evt_6", "customer.created", `{"id":"cus_3"}`)
		rec := deliver(t, h, payload, sign(payload))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for ignored type, got %d", rec.Code)
		}
	})

	t.Run("returns 500 so failed events are retried", func(t *testing.T) {
		h, sink := newHandler()
		sink.err = fmt.Errorf("db down")
		payload := eventPayload("evt_7", "invoice.payment_failed", `{"id":"in_2","customer":"cus_4","subscription":"sub_4"}`)
		rec := deliver(t, h, payload, sign(payload))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("applies the redelivery of an event whose first dispatch failed", func(t *testing.T) {
		h, sink := newHandler()
		payload := eventPayload("evt_8", "checkout.session.completed", `{"metadata":{"user_id":"u2","kind":"credit_topup"},"amount_total":299}`)

		sink.err = fmt.Errorf("db down")
		if rec := deliver(t, h, payload, sign(payload)); rec.Code != http.StatusInternalServerError {
			t.Fatalf("first delivery: expected 500, got %d", rec.Code)
		}

		// The provider retries after the outage; the event id must not be
		// remembered as already processed.
		sink.err = nil
		rec := deliver(t, h, payload, sign(payload))
		if rec.Code != http.StatusOK {
			t.Fatalf("redelivery: expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(sink.checkouts) != 2 {
			t.Fatalf("expected the redelivery to be dispatched, got %d dispatches", len(sink.checkouts))
		}
	})
}
