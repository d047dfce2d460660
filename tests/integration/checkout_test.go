//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shoesAndCap = []itemRequest{
	{ProductID: "p-shoe", Quantity: 2, Price: 0.01},
	{ProductID: "p-cap", Quantity: 1},
}

func TestCheckout_ServerSidePrices(t *testing.T) {
	resp, data := do(t, http.MethodPost, "/api/checkout", aliceToken, orderRequest{Items: shoesAndCap})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	q := decode[quoteResponse](t, data)
	assert.Equal(t, "u-alice", q.UserID)
	assert.Equal(t, "standard", q.ShippingOption)
	require.Len(t, q.Items, 2)
	assert.True(t, dec("100").Equal(q.Items[0].Price), "client price ignored")
	assert.Equal(t, "Classic Sneaker", q.Items[0].Name)

	assert.True(t, dec("240").Equal(q.Summary.Subtotal))
	assert.True(t, dec("50").Equal(q.Summary.Shipping))
	assert.True(t, dec("12").Equal(q.Summary.Taxes))
	assert.Nil(t, q.Summary.Discount)
	assert.True(t, dec("302").Equal(q.Summary.Total))
}

func TestCheckout_Express(t *testing.T) {
	resp, data := do(t, http.MethodPost, "/api/checkout", aliceToken, orderRequest{
		Items:          shoesAndCap,
		ShippingOption: "express",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	q := decode[quoteResponse](t, data)
	assert.True(t, dec("120").Equal(q.Summary.Shipping))
	assert.True(t, dec("372").Equal(q.Summary.Total))
}

func TestCheckout_Promotions(t *testing.T) {
	tests := []struct {
		name         string
		code         string
		discount     string
		shipping     string
		total        string
		freeShipping bool
	}{
		// Taxes stay on the pre-discount subtotal.
		{name: "percent", code: "ten", discount: "24", shipping: "50", total: "278"},
		{name: "category percent", code: "SHOES20", discount: "40", shipping: "50", total: "262"},
		{name: "free shipping", code: "FREESHIP", discount: "0", shipping: "0", total: "252", freeShipping: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := do(t, http.MethodPost, "/api/checkout", aliceToken, orderRequest{
				Items:     shoesAndCap,
				PromoCode: tt.code,
			})
			require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

			q := decode[quoteResponse](t, data)
			require.NotNil(t, q.Summary.Discount)
			assert.True(t, dec(tt.discount).Equal(*q.Summary.Discount), q.Summary.Discount.String())
			assert.True(t, dec(tt.shipping).Equal(q.Summary.Shipping))
			assert.True(t, dec("12").Equal(q.Summary.Taxes))
			assert.True(t, dec(tt.total).Equal(q.Summary.Total), q.Summary.Total.String())
			assert.Equal(t, tt.freeShipping, q.FreeShipping)
			assert.NotEmpty(t, q.PromoCode)
		})
	}
}

func TestCheckout_EmptyBodyUsesCart(t *testing.T) {
	resp, data := do(t, http.MethodPost, "/api/checkout", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	q := decode[quoteResponse](t, data)
	require.Len(t, q.Items, 1)
	assert.Equal(t, "p-tee", q.Items[0].ProductID)
	assert.Equal(t, 2, q.Items[0].Quantity)
	assert.True(t, dec("50").Equal(q.Summary.Subtotal))
	assert.True(t, dec("102.5").Equal(q.Summary.Total))
}

func TestCheckout_Errors(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		body   orderRequest
		status int
	}{
		{name: "unknown product", token: aliceToken, body: orderRequest{Items: []itemRequest{{ProductID: "ghost", Quantity: 1}}}, status: http.StatusUnprocessableEntity},
		{name: "zero quantity", token: aliceToken, body: orderRequest{Items: []itemRequest{{ProductID: "p-cap", Quantity: 0}}}, status: http.StatusUnprocessableEntity},
		{name: "no cart", token: bobToken, body: orderRequest{}, status: http.StatusBadRequest},
		{name: "unknown code", token: aliceToken, body: orderRequest{Items: shoesAndCap, PromoCode: "NOPE"}, status: http.StatusNotFound},
		{name: "expired code", token: aliceToken, body: orderRequest{Items: shoesAndCap, PromoCode: "SPRING"}, status: http.StatusBadRequest},
		{name: "below minimum", token: aliceToken, body: orderRequest{Items: shoesAndCap, PromoCode: "SAVE50"}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := do(t, http.MethodPost, "/api/checkout", tt.token, tt.body)
			requireError(t, resp, data, tt.status)
		})
	}
}

func TestCheckoutSummary(t *testing.T) {
	resp, data := do(t, http.MethodGet, "/api/checkout/summary", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	q := decode[quoteResponse](t, data)
	require.Len(t, q.Items, 1)
	assert.True(t, dec("50").Equal(q.Summary.Subtotal))
	assert.True(t, dec("2.5").Equal(q.Summary.Taxes))

	resp, data = do(t, http.MethodGet, "/api/checkout/summary", bobToken, nil)
	requireError(t, resp, data, http.StatusBadRequest)
}
