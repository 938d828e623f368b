package anet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		APILoginID:     "login123",
		TransactionKey: "txnkey456",
		SignatureKey:   testSignatureKey,
		Sandbox:        true,
	})
	c.Endpoint = srv.URL
	return c
}

func TestAuthorizeOnly_Approved(t *testing.T) {
	var got map[string]any
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		// The live endpoint prefixes responses with a BOM.
		w.Write([]byte("\xef\xbb\xbf" + `{"transactionResponse":{"responseCode":"1","authCode":"A1B2C3","transId":"60157382923","transHashSha2":"DEADBEEF"},"messages":{"resultCode":"Ok","message":[{"code":"I00001","text":"Successful."}]}}`))
	})

	res, err := client.AuthorizeOnly(context.Background(), 25, Card{
		Number:   "4111111111111111",
		ExpYear:  2030,
		ExpMonth: 6,
		Code:     "123",
	}, "ref1")
	require.NoError(t, err)
	assert.Equal(t, "60157382923", res.TransactionID)
	assert.Equal(t, ResponseCodeApproved, res.ResponseCode)
	assert.Equal(t, "DEADBEEF", res.IntegrityHash)

	outer := got["createTransactionRequest"].(map[string]any)
	txn := outer["transactionRequest"].(map[string]any)
	assert.Equal(t, "authOnlyTransaction", txn["transactionType"])
	assert.Equal(t, "25.00", txn["amount"])
	assert.Equal(t, "ref1", outer["refId"])

	card := txn["payment"].(map[string]any)["creditCard"].(map[string]any)
	assert.Equal(t, "2030-06", card["expirationDate"])
}

func TestAuthorizeOnly_Declined(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transactionResponse":{"responseCode":"2","errors":[{"errorCode":"2","errorText":"This transaction has been declined."}]},"messages":{"resultCode":"Ok","message":[{"code":"I00001","text":"Successful."}]}}`))
	})

	_, err := client.AuthorizeOnly(context.Background(), 25, Card{Number: "4", ExpYear: 2030, ExpMonth: 1}, "ref1")
	var perr *ProcessorError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "2", perr.Code)
	assert.Contains(t, perr.Text, "declined")
}

func TestAuthorizeOnly_APIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"messages":{"resultCode":"Error","message":[{"code":"E00007","text":"User authentication failed."}]}}`))
	})

	_, err := client.AuthorizeOnly(context.Background(), 25, Card{Number: "4", ExpYear: 2030, ExpMonth: 1}, "ref1")
	var perr *ProcessorError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "E00007", perr.Code)
}

func TestCreateSubscription(t *testing.T) {
	var got map[string]any
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"subscriptionId":"1397","messages":{"resultCode":"Ok","message":[{"code":"I00001","text":"Successful."}]}}`))
	})

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	id, err := client.CreateSubscription(context.Background(), SubscriptionSpec{
		Name:             strings.Repeat("Gold Membership - key", 4),
		Amount:           9.99,
		IntervalLength:   1,
		IntervalUnit:     "months",
		StartDate:        start,
		TotalOccurrences: 9999,
		TrialOccurrences: 1,
		TrialAmount:      0,
		Card:             Card{Number: "4111111111111111", ExpYear: 2030, ExpMonth: 6, Code: "123"},
		OrderDescription: "sub_key_abc",
		FirstName:        "Ada",
		LastName:         "Lovelace",
		Zip:              "10115",
	}, "ref2")
	require.NoError(t, err)
	assert.Equal(t, "1397", id)

	sub := got["ARBCreateSubscriptionRequest"].(map[string]any)["subscription"].(map[string]any)
	assert.Len(t, sub["name"], 50)
	assert.Equal(t, "9.99", sub["amount"])
	assert.Equal(t, "0.00", sub["trialAmount"])

	schedule := sub["paymentSchedule"].(map[string]any)
	assert.Equal(t, "2026-03-01", schedule["startDate"])
	assert.Equal(t, float64(9999), schedule["totalOccurrences"])
	assert.Equal(t, float64(1), schedule["trialOccurrences"])
}

func TestGetTransactionSubscription(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transaction":{"subscription":{"id":1397,"payNum":2}},"messages":{"resultCode":"Ok","message":[{"code":"I00001","text":"Successful."}]}}`))
	})

	id, err := client.GetTransactionSubscription(context.Background(), "60998")
	require.NoError(t, err)
	assert.Equal(t, "1397", id)
}

func TestGetTransactionSubscription_OneTimePayment(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transaction":{},"messages":{"resultCode":"Ok","message":[{"code":"I00001","text":"Successful."}]}}`))
	})

	id, err := client.GetTransactionSubscription(context.Background(), "60998")
	require.NoError(t, err)
	assert.Equal(t, "", id)
}

func TestVoidTransaction(t *testing.T) {
	var got map[string]any
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"transactionResponse":{"responseCode":"1","transId":"60998"},"messages":{"resultCode":"Ok","message":[{"code":"I00001","text":"Successful."}]}}`))
	})

	require.NoError(t, client.VoidTransaction(context.Background(), "60998", "ref3"))

	txn := got["createTransactionRequest"].(map[string]any)["transactionRequest"].(map[string]any)
	assert.Equal(t, "voidTransaction", txn["transactionType"])
	assert.Equal(t, "60998", txn["refTransId"])
}

func TestClient_MissingCredentials(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.AuthorizeOnly(context.Background(), 1, Card{}, "ref")
	require.True(t, errors.Is(err, ErrMissingCredentials))
}

func TestCardExpiresBefore(t *testing.T) {
	card := Card{ExpYear: 2026, ExpMonth: 2}
	assert.False(t, card.ExpiresBefore(time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)))
	assert.True(t, card.ExpiresBefore(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestNewRefIDUnique(t *testing.T) {
	a, b := NewRefID(), NewRefID()
	assert.True(t, strings.HasPrefix(a, "ref"))
	assert.NotEqual(t, a, b)
}
