package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/interfaces"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const (
	defaultSideEffectTimeout = 15 * time.Second

	// OrdersLink is where order notifications point in the storefront.
	OrdersLink = "/profile?tab=orders"
)

// SideEffects dispatches email and in-app notifications after an order change
// has been committed. Every dispatch runs on its own goroutine and failures
// are only logged.
type SideEffects struct {
	mailer   interfaces.EmailDispatcher
	notifier interfaces.NotificationDispatcher
	users    interfaces.UserDirectory
	timeout  time.Duration
	logger   *logging.LoggerV2
	wg       sync.WaitGroup
}

func NewSideEffects(
	mailer interfaces.EmailDispatcher,
	notifier interfaces.NotificationDispatcher,
	users interfaces.UserDirectory,
	timeout time.Duration,
) *SideEffects {
	if timeout <= 0 {
		timeout = defaultSideEffectTimeout
	}
	return &SideEffects{
		mailer:   mailer,
		notifier: notifier,
		users:    users,
		timeout:  timeout,
		logger:   logging.NewLoggerV2("side-effects"),
	}
}

// OrderConfirmed emails the order confirmation.
func (s *SideEffects) OrderConfirmed(order *models.Order) {
	s.email("order_confirmation", order, RenderConfirmationEmail)
}

// PaymentFailed emails the payment failure notice.
func (s *SideEffects) PaymentFailed(order *models.Order) {
	s.email("payment_failed", order, RenderPaymentFailedEmail)
}

// StatusChanged always notifies the owner in-app and emails only when the
// status actually changed.
func (s *SideEffects) StatusChanged(order *models.Order, previous models.OrderStatus) {
	snapshot := order.Clone()
	message := fmt.Sprintf("Your order #%s has been updated to: %s", snapshot.ShortID(), snapshot.Status)

	s.run("notification", snapshot.ID, func(ctx context.Context) error {
		if s.notifier == nil {
			return nil
		}
		return s.notifier.Create(ctx, snapshot.UserID, message, OrdersLink)
	})

	if previous != order.Status {
		s.email("status_update", order, RenderStatusEmail)
	}
}

// Wait blocks until every dispatched side effect has finished.
func (s *SideEffects) Wait() {
	s.wg.Wait()
}

type emailRenderer func(order *models.Order, name string) (subject, body string, err error)

func (s *SideEffects) email(kind string, order *models.Order, render emailRenderer) {
	snapshot := order.Clone()

	s.run(kind, snapshot.ID, func(ctx context.Context) error {
		if s.mailer == nil {
			return nil
		}

		to, name := s.recipient(ctx, snapshot)
		if to == "" {
			s.logger.Warn("No email address for order owner", logging.Fields{
				"order_id": snapshot.ID,
				"user_id":  snapshot.UserID,
				"kind":     kind,
			})
			metrics.SideEffects.WithLabelValues(kind, "skipped").Inc()
			return errSkipped
		}

		subject, body, err := render(snapshot, name)
		if err != nil {
			return err
		}
		return s.mailer.Send(ctx, to, subject, body)
	})
}

// recipient resolves the owner's address, falling back to the payer email the
// gateway reported.
func (s *SideEffects) recipient(ctx context.Context, order *models.Order) (string, string) {
	var email, name string
	if s.users != nil {
		user, err := s.users.GetUser(ctx, order.UserID)
		if err != nil {
			s.logger.Warn("Failed to resolve order owner", logging.Fields{
				"user_id": order.UserID,
				"error":   err.Error(),
			})
		}
		if user != nil {
			email, name = user.Email, user.Name
		}
	}
	if email == "" && order.PaymentResult != nil {
		email = order.PaymentResult.PayerEmail
	}
	if name == "" {
		name = order.ShippingAddress.Name
	}
	return email, name
}

var errSkipped = errors.New("side effect skipped")

func (s *SideEffects) run(kind, orderID string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		err := fn(ctx)
		switch {
		case err == errSkipped:
		case err != nil:
			metrics.SideEffects.WithLabelValues(kind, "failed").Inc()
			s.logger.Error("Side effect failed", logging.Fields{
				"kind":     kind,
				"order_id": orderID,
				"error":    err.Error(),
			})
		default:
			metrics.SideEffects.WithLabelValues(kind, "sent").Inc()
		}
	}()
}
