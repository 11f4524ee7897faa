package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Mutombe/cargo-space/internal/models"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func fastOptions() bookOptions {
	return bookOptions{
		From: "Harare CBD", To: "Chitungwiza", Title: "Office Furniture", WeightKg: 120,
		Mode: string(models.ModeSmallTruck), Method: "ecocash", Fast: true, LogLevel: "error",
	}
}

func TestRunBookingListedPrice(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	o := fastOptions()
	o.Driver = "1"
	var out lockedBuffer
	b, err := runBooking(ctx, o, &out)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, b.Status)
	assert.EqualValues(t, 4500, b.AgreedPrice)
	assert.EqualValues(t, 4950, b.Total)
	assert.Equal(t, models.PayMobileMoney, b.PaymentMethod)
	assert.Contains(t, out.String(), "delivered, 4 booking events published")
	assert.Contains(t, out.String(), "estimate ZWL 5,000")
}

func TestRunBookingCounterOffer(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	o := fastOptions()
	o.Driver = "4"
	o.Offer = "16000"
	o.Method = "cash"
	b, err := runBooking(ctx, o, &lockedBuffer{})
	require.NoError(t, err)
	assert.Equal(t, models.PriceNegotiated, b.PriceSource)
	assert.EqualValues(t, 17600, b.Total)
}

func TestRunBookingRejectsUnknownLocation(t *testing.T) {
	o := fastOptions()
	o.From = "Atlantis"
	_, err := runBooking(context.Background(), o, &lockedBuffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Atlantis")
}

func TestQuoteCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"quote", "--fragile", "small-truck", "bike"})
	require.NoError(t, cmd.Execute())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ZWL 5,500")

	cmd = newRootCmd()
	cmd.SetArgs([]string{"quote", "rocket"})
	assert.Error(t, cmd.Execute())
}
