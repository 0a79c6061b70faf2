package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/dojo/internal/cache"
	"github.com/smallbiznis/dojo/internal/errs"
	paymentdomain "github.com/smallbiznis/dojo/internal/payment/domain"
	"github.com/smallbiznis/dojo/internal/payment/paymenttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrievePriceServedFromCache(t *testing.T) {
	gw := paymenttest.NewGateway()
	gw.Prices["price_x"] = &paymentdomain.Price{ID: "price_x", ProductID: "prod_x", UnitAmount: 900, Active: true}
	cached := cache.NewPriceCachingGateway(gw, 8, time.Minute)

	first, err := cached.RetrievePrice(context.Background(), "price_x")
	require.NoError(t, err)
	second, err := cached.RetrievePrice(context.Background(), "price_x")
	require.NoError(t, err)

	assert.Equal(t, "prod_x", first.ProductID)
	assert.Equal(t, *first, *second)
	assert.Equal(t, 1, gw.CallCount("RetrievePrice"))
	assert.Equal(t, 1, cached.Len())

	// callers get their own copy
	second.Active = false
	third, err := cached.RetrievePrice(context.Background(), "price_x")
	require.NoError(t, err)
	assert.True(t, third.Active)
}

func TestRetrievePriceErrorsNotCached(t *testing.T) {
	gw := paymenttest.NewGateway()
	cached := cache.NewPriceCachingGateway(gw, 0, 0)

	_, err := cached.RetrievePrice(context.Background(), "price_missing")
	require.True(t, errors.Is(err, errs.ErrNotFound))

	gw.Prices["price_missing"] = &paymentdomain.Price{ID: "price_missing", Active: true}
	price, err := cached.RetrievePrice(context.Background(), "price_missing")
	require.NoError(t, err)
	assert.Equal(t, "price_missing", price.ID)
	assert.Equal(t, 2, gw.CallCount("RetrievePrice"))
}

func TestOtherCallsPassThrough(t *testing.T) {
	gw := paymenttest.NewGateway()
	cached := cache.NewPriceCachingGateway(gw, 8, time.Minute)

	_, err := cached.CreatePaymentIntent(context.Background(), paymentdomain.IntentInput{Amount: 100, Currency: "mxn"})
	require.NoError(t, err)
	assert.Equal(t, 1, gw.CallCount("CreatePaymentIntent"))
}

func TestPurge(t *testing.T) {
	gw := paymenttest.NewGateway()
	gw.Prices["price_x"] = &paymentdomain.Price{ID: "price_x", Active: true}
	cached := cache.NewPriceCachingGateway(gw, 8, time.Minute)

	_, err := cached.RetrievePrice(context.Background(), "price_x")
	require.NoError(t, err)
	cached.Purge()
	_, err = cached.RetrievePrice(context.Background(), "price_x")
	require.NoError(t, err)
	assert.Equal(t, 2, gw.CallCount("RetrievePrice"))
}
