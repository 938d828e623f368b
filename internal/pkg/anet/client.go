package anet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client talks to the Authorize.net JSON API. All calls are synchronous RPCs
// with a bounded timeout and return structured results; processor-reported
// failures come back as *ProcessorError rather than being folded into
// transport errors.
type Client struct {
	Config   Config
	Endpoint string

	HTTPClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		Config:   cfg,
		Endpoint: cfg.Endpoint(),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func NewClientFromEnv() *Client {
	return NewClient(NewConfigFromEnv())
}

// NewRefID builds a caller-supplied idempotency reference for a single
// logical attempt, from the current time plus a random component.
func NewRefID() string {
	return "ref" + time.Now().UTC().Format("20060102150405") + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Card holds the payment instrument details collected at checkout.
type Card struct {
	Number   string
	ExpYear  int
	ExpMonth int
	Code     string
	Name     string
	Zip      string
}

func (c Card) expirationDate() string {
	return fmt.Sprintf("%04d-%02d", c.ExpYear, c.ExpMonth)
}

// ExpiresBefore reports whether the card expires before t. A card is valid
// through the last day of its expiration month.
func (c Card) ExpiresBefore(t time.Time) bool {
	endOfMonth := time.Date(c.ExpYear, time.Month(c.ExpMonth), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 1, 0)
	return endOfMonth.Before(t)
}

// TransactionResult is the outcome of a transaction request (authorization,
// capture or void). IntegrityHash is the transHashSHA2 Authorize.net returns
// for verification of the response.
type TransactionResult struct {
	TransactionID string
	ResponseCode  int
	AuthCode      string
	IntegrityHash string
}

// SubscriptionSpec describes an ARB subscription to create.
type SubscriptionSpec struct {
	Name             string
	Amount           float64
	IntervalLength   int
	IntervalUnit     string // "days" or "months"
	StartDate        time.Time
	TotalOccurrences int
	TrialOccurrences int
	TrialAmount      float64
	Card             Card
	OrderDescription string
	FirstName        string
	LastName         string
	Zip              string
}

// ChargeOrder is the order metadata attached to a one-time charge.
type ChargeOrder struct {
	InvoiceNumber string
	Description   string
	Email         string
}

type merchantAuthentication struct {
	Name           string `json:"name"`
	TransactionKey string `json:"transactionKey"`
}

type apiMessages struct {
	ResultCode string `json:"resultCode"`
	Message    []struct {
		Code string `json:"code"`
		Text string `json:"text"`
	} `json:"message"`
}

func (m apiMessages) ok() bool {
	return strings.EqualFold(m.ResultCode, "Ok")
}

func (m apiMessages) processorError() *ProcessorError {
	perr := &ProcessorError{Code: "E00000", Text: "unknown gateway error"}
	if len(m.Message) > 0 {
		perr.Code = m.Message[0].Code
		perr.Text = m.Message[0].Text
	}
	return perr
}

type creditCard struct {
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
	CardCode       string `json:"cardCode,omitempty"`
}

type paymentType struct {
	CreditCard creditCard `json:"creditCard"`
}

type transactionResponse struct {
	ResponseCode  string `json:"responseCode"`
	AuthCode      string `json:"authCode"`
	TransID       string `json:"transId"`
	TransHashSha2 string `json:"transHashSha2"`
	Errors        []struct {
		ErrorCode string `json:"errorCode"`
		ErrorText string `json:"errorText"`
	} `json:"errors"`
}

func (c *Client) auth() merchantAuthentication {
	return merchantAuthentication{
		Name:           c.Config.APILoginID,
		TransactionKey: c.Config.TransactionKey,
	}
}

// post sends one JSON API request and decodes the response into out. The
// Authorize.net endpoint prefixes responses with a UTF-8 BOM which must be
// stripped before decoding.
func (c *Client) post(ctx context.Context, reqBody, out any) error {
	if err := c.Config.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("anet: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("anet: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("anet: invalid response: %w", err)
	}
	return nil
}

func resultFromTransactionResponse(tr transactionResponse) (*TransactionResult, error) {
	if tr.ResponseCode != "1" {
		perr := &ProcessorError{Code: "E00027", Text: "the transaction was unsuccessful"}
		if len(tr.Errors) > 0 {
			perr.Code = tr.Errors[0].ErrorCode
			perr.Text = tr.Errors[0].ErrorText
		}
		return nil, perr
	}
	return &TransactionResult{
		TransactionID: tr.TransID,
		ResponseCode:  ResponseCodeApproved,
		AuthCode:      tr.AuthCode,
		IntegrityHash: tr.TransHashSha2,
	}, nil
}

type createTransactionRequest struct {
	CreateTransactionRequest struct {
		MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
		RefID                  string                 `json:"refId"`
		TransactionRequest     map[string]any         `json:"transactionRequest"`
	} `json:"createTransactionRequest"`
}

type createTransactionResponse struct {
	TransactionResponse transactionResponse `json:"transactionResponse"`
	Messages            apiMessages         `json:"messages"`
}

func (c *Client) createTransaction(ctx context.Context, refID string, txn map[string]any) (*TransactionResult, error) {
	var req createTransactionRequest
	req.CreateTransactionRequest.MerchantAuthentication = c.auth()
	req.CreateTransactionRequest.RefID = refID
	req.CreateTransactionRequest.TransactionRequest = txn

	var resp createTransactionResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Messages.ok() {
		return nil, resp.Messages.processorError()
	}
	return resultFromTransactionResponse(resp.TransactionResponse)
}

// AuthorizeOnly places a hold on the card for the given amount without
// capturing funds. The returned transaction id can later be voided.
func (c *Client) AuthorizeOnly(ctx context.Context, amount float64, card Card, refID string) (*TransactionResult, error) {
	return c.createTransaction(ctx, refID, map[string]any{
		"transactionType": "authOnlyTransaction",
		"amount":          fmt.Sprintf("%.2f", amount),
		"payment": paymentType{CreditCard: creditCard{
			CardNumber:     card.Number,
			ExpirationDate: card.expirationDate(),
			CardCode:       card.Code,
		}},
	})
}

// ChargeCard runs a one-time auth-capture transaction.
func (c *Client) ChargeCard(ctx context.Context, amount float64, card Card, order ChargeOrder, firstName, lastName string, refID string) (*TransactionResult, error) {
	return c.createTransaction(ctx, refID, map[string]any{
		"transactionType": "authCaptureTransaction",
		"amount":          fmt.Sprintf("%.2f", amount),
		"payment": paymentType{CreditCard: creditCard{
			CardNumber:     card.Number,
			ExpirationDate: card.expirationDate(),
			CardCode:       card.Code,
		}},
		"order": map[string]any{
			"invoiceNumber": order.InvoiceNumber,
			"description":   order.Description,
		},
		"billTo": map[string]any{
			"firstName": firstName,
			"lastName":  lastName,
			"zip":       card.Zip,
			"email":     order.Email,
		},
	})
}

// VoidTransaction cancels an authorization that has not been captured.
func (c *Client) VoidTransaction(ctx context.Context, transactionID, refID string) error {
	_, err := c.createTransaction(ctx, refID, map[string]any{
		"transactionType": "voidTransaction",
		"refTransId":      transactionID,
	})
	return err
}

type arbCreateRequest struct {
	ARBCreateSubscriptionRequest struct {
		MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
		RefID                  string                 `json:"refId"`
		Subscription           map[string]any         `json:"subscription"`
	} `json:"ARBCreateSubscriptionRequest"`
}

type arbCreateResponse struct {
	SubscriptionID string      `json:"subscriptionId"`
	Messages       apiMessages `json:"messages"`
}

// CreateSubscription creates an ARB recurring subscription and returns the
// new subscription id.
func (c *Client) CreateSubscription(ctx context.Context, spec SubscriptionSpec, refID string) (string, error) {
	name := spec.Name
	if len(name) > 50 {
		name = name[:50] // ARB limit
	}

	occurrences := spec.TotalOccurrences
	if occurrences <= 0 {
		occurrences = 9999 // ARB's "ongoing" value
	}

	schedule := map[string]any{
		"interval": map[string]any{
			"length": spec.IntervalLength,
			"unit":   spec.IntervalUnit,
		},
		"startDate":        spec.StartDate.Format("2006-01-02"),
		"totalOccurrences": occurrences,
	}
	if spec.TrialOccurrences > 0 {
		schedule["trialOccurrences"] = spec.TrialOccurrences
	}

	subscription := map[string]any{
		"name":            name,
		"paymentSchedule": schedule,
		"amount":          fmt.Sprintf("%.2f", spec.Amount),
		"payment": paymentType{CreditCard: creditCard{
			CardNumber:     spec.Card.Number,
			ExpirationDate: spec.Card.expirationDate(),
			CardCode:       spec.Card.Code,
		}},
		"order": map[string]any{
			"description": spec.OrderDescription,
		},
		"billTo": map[string]any{
			"firstName": spec.FirstName,
			"lastName":  spec.LastName,
			"zip":       spec.Zip,
		},
	}
	if spec.TrialOccurrences > 0 {
		subscription["trialAmount"] = fmt.Sprintf("%.2f", spec.TrialAmount)
	}

	var req arbCreateRequest
	req.ARBCreateSubscriptionRequest.MerchantAuthentication = c.auth()
	req.ARBCreateSubscriptionRequest.RefID = refID
	req.ARBCreateSubscriptionRequest.Subscription = subscription

	var resp arbCreateResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return "", err
	}
	if !resp.Messages.ok() {
		return "", resp.Messages.processorError()
	}
	return resp.SubscriptionID, nil
}

type arbCancelRequest struct {
	ARBCancelSubscriptionRequest struct {
		MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
		RefID                  string                 `json:"refId"`
		SubscriptionID         string                 `json:"subscriptionId"`
	} `json:"ARBCancelSubscriptionRequest"`
}

type arbCancelResponse struct {
	Messages apiMessages `json:"messages"`
}

// CancelSubscription cancels an ARB subscription at the processor.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, refID string) error {
	var req arbCancelRequest
	req.ARBCancelSubscriptionRequest.MerchantAuthentication = c.auth()
	req.ARBCancelSubscriptionRequest.RefID = refID
	req.ARBCancelSubscriptionRequest.SubscriptionID = subscriptionID

	var resp arbCancelResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return err
	}
	if !resp.Messages.ok() {
		return resp.Messages.processorError()
	}
	return nil
}

type getTransactionDetailsRequest struct {
	GetTransactionDetailsRequest struct {
		MerchantAuthentication merchantAuthentication `json:"merchantAuthentication"`
		TransID                string                 `json:"transId"`
	} `json:"getTransactionDetailsRequest"`
}

type getTransactionDetailsResponse struct {
	Transaction struct {
		Subscription struct {
			ID     json.Number `json:"id"`
			PayNum int         `json:"payNum"`
		} `json:"subscription"`
	} `json:"transaction"`
	Messages apiMessages `json:"messages"`
}

// GetTransactionSubscription resolves the ARB subscription a transaction
// belongs to. Returns "" when the transaction is a plain one-time payment.
func (c *Client) GetTransactionSubscription(ctx context.Context, transactionID string) (string, error) {
	var req getTransactionDetailsRequest
	req.GetTransactionDetailsRequest.MerchantAuthentication = c.auth()
	req.GetTransactionDetailsRequest.TransID = transactionID

	var resp getTransactionDetailsResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return "", err
	}
	if !resp.Messages.ok() {
		return "", resp.Messages.processorError()
	}
	return resp.Transaction.Subscription.ID.String(), nil
}
