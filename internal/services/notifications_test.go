package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-lifecycle/internal/testutil"
	billing_errors "billing-lifecycle/pkg/errors"
)

func TestNotificationsRenderBothBodies(t *testing.T) {
	h := newHarness(t)

	err := h.notifications.Send(h.ctx, mailDomainRenewed, h.customer.ID, "k1", mailData{
		Subject:  "<b>example.com</b>",
		Date:     "2027-01-02",
		Amount:   testutil.Money(t, "12.00"),
		Currency: "USD",
	})
	require.NoError(t, err)

	emails := h.mail.Emails()
	require.Len(t, emails, 1)
	e := emails[0]
	assert.Equal(t, "ada@example.com", e.To)
	assert.Equal(t, "k1", e.DedupeKey)
	assert.Contains(t, e.BodyText, "Hello Ada Lovelace")
	assert.Contains(t, e.BodyText, "<b>example.com</b> was renewed until 2027-01-02")
	assert.Contains(t, e.BodyHTML, "&lt;b&gt;example.com&lt;/b&gt;")
	assert.Contains(t, e.BodyText, "Charged 12.00 USD")
}

func TestNotificationsErrors(t *testing.T) {
	h := newHarness(t)

	err := h.notifications.Send(h.ctx, "nope", h.customer.ID, "", mailData{})
	assert.Error(t, err)

	err = h.notifications.Send(h.ctx, mailOrderCreated, 404, "", mailData{})
	assert.ErrorIs(t, err, billing_errors.ErrNotFound)

	h.mail.Err = errors.New("smtp down")
	err = h.notifications.Send(h.ctx, mailOrderCreated, h.customer.ID, "", mailData{OrderNumber: "ORD-1"})
	assert.ErrorContains(t, err, "smtp down")
}
