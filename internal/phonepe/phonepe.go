// Package phonepe implements the PhonePe payment gateway wire format:
// base64-encoded JSON payloads signed with a keyed SHA-256 checksum.
package phonepe

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"ngoportal/internal/domain"
)

// Client builds signed pay requests and verifies inbound callbacks.
type Client struct {
	merchantID string
	saltKey    string
	saltIndex  string
	baseURL    string
	payPath    string
}

// New creates a Client for the given merchant credentials.
func New(merchantID, saltKey, saltIndex, baseURL, payPath string) *Client {
	return &Client{
		merchantID: merchantID,
		saltKey:    saltKey,
		saltIndex:  saltIndex,
		baseURL:    baseURL,
		payPath:    payPath,
	}
}

// PayRequest is the outbound payment initiation payload.
type PayRequest struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	MerchantUserID        string `json:"merchantUserId"`
	Amount                int64  `json:"amount"`
	RedirectURL           string `json:"redirectUrl"`
	RedirectMode          string `json:"redirectMode"`
	CallbackURL           string `json:"callbackUrl"`
	MobileNumber          string `json:"mobileNumber,omitempty"`
	PaymentInstrument     struct {
		Type string `json:"type"`
	} `json:"paymentInstrument"`
}

// SignedRequest is a pay request ready for the gateway: the base64
// payload plus its X-VERIFY checksum and the endpoint to post it to.
type SignedRequest struct {
	Payload  string
	Checksum string
	URL      string
}

// Sign encodes and signs a pay request. The checksum is
// sha256(base64(payload) + payPath + saltKey) + "###" + saltIndex; the
// concatenation order and separator are fixed by the gateway.
func (c *Client) Sign(req *PayRequest) (*SignedRequest, error) {
	req.MerchantID = c.merchantID
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("phonepe: marshal pay request: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(raw)
	return &SignedRequest{
		Payload:  payload,
		Checksum: c.checksum(payload + c.payPath),
		URL:      c.baseURL + c.payPath,
	}, nil
}

// CallbackEnvelope is the body of the gateway's asynchronous
// notification: a single base64 field holding the JSON response.
type CallbackEnvelope struct {
	Response string `json:"response"`
}

// CallbackPayload is the decoded notification content.
type CallbackPayload struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
		TransactionID         string `json:"transactionId"`
		Amount                int64  `json:"amount"`
		State                 string `json:"state"`
		ResponseCode          string `json:"responseCode"`
	} `json:"data"`
}

// VerifyCallback authenticates an inbound notification. The payload is
// decoded only after the X-VERIFY checksum passes a constant-time
// comparison; any mismatch rejects the whole body unprocessed.
func (c *Client) VerifyCallback(body []byte, xVerify string) (*CallbackPayload, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.WrapErr(domain.KindIntegrity, err, "malformed callback body")
	}
	if env.Response == "" {
		return nil, domain.Errorf(domain.KindIntegrity, "callback missing response field")
	}

	expected := c.checksum(env.Response)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(xVerify)) != 1 {
		return nil, domain.Errorf(domain.KindIntegrity, "callback checksum mismatch")
	}

	raw, err := base64.StdEncoding.DecodeString(env.Response)
	if err != nil {
		return nil, domain.WrapErr(domain.KindIntegrity, err, "callback payload not base64")
	}
	var payload CallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, domain.WrapErr(domain.KindIntegrity, err, "callback payload not json")
	}
	return &payload, nil
}

func (c *Client) checksum(data string) string {
	sum := sha256.Sum256([]byte(data + c.saltKey))
	return hex.EncodeToString(sum[:]) + "###" + c.saltIndex
}

// StatusFor maps a gateway response code to a domain donation status.
// Unknown codes fail closed.
func StatusFor(code string) domain.DonationStatus {
	switch code {
	case "PAYMENT_SUCCESS":
		return domain.DonationCompleted
	case "PAYMENT_PENDING", "INTERNAL_SERVER_ERROR":
		return domain.DonationPending
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "PAYMENT_CANCELLED", "TIMED_OUT":
		return domain.DonationFailed
	default:
		return domain.DonationFailed
	}
}
