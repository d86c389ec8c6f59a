package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

var providerClient = &http.Client{Timeout: 15 * time.Second}

// --- Paystack ---

type paystackInitResponse struct {
	Status bool `json:"status"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func initializePaystack(email, reference, planID string, amount float64, userID uint) (*paystackInitResponse, error) {
	payload := map[string]interface{}{
		"email":     email,
		"amount":    int64(amount * 100), // smallest currency unit
		"reference": reference,
		"metadata": map[string]interface{}{
			"payment_type": "signal_subscription",
			"user_id":      userID,
			"plan_id":      planID,
		},
	}

	payloadBytes, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", "https://api.paystack.co/transaction/initialize", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+os.Getenv("PAYSTACK_SECRET_KEY"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := providerClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var initResp paystackInitResponse
	if err := json.NewDecoder(resp.Body).Decode(&initResp); err != nil {
		return nil, err
	}
	if !initResp.Status {
		return nil, fmt.Errorf("paystack rejected the initialization")
	}
	return &initResp, nil
}

// --- Pesapal ---

var pesapalBaseURL = "https://pay.pesapal.com/v3"

type pesapalTokenResponse struct {
	Token      string `json:"token"`
	ExpiryDate string `json:"expiryDate"`
	Status     string `json:"status"`
}

// pesapalToken fetches a short-lived bearer token for the Pesapal v3 API.
func pesapalToken() (string, error) {
	payload := map[string]string{
		"consumer_key":    os.Getenv("PESAPAL_CONSUMER_KEY"),
		"consumer_secret": os.Getenv("PESAPAL_CONSUMER_SECRET"),
	}
	payloadBytes, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", pesapalBaseURL+"/api/Auth/RequestToken", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := providerClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var tokenResp pesapalTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}
	if tokenResp.Token == "" {
		return "", fmt.Errorf("pesapal token request failed with status %q", tokenResp.Status)
	}
	return tokenResp.Token, nil
}

type pesapalOrderResponse struct {
	OrderTrackingID string `json:"order_tracking_id"`
	RedirectURL     string `json:"redirect_url"`
	Error           *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func submitPesapalOrder(email, reference string, amount float64, currency, description string) (*pesapalOrderResponse, error) {
	token, err := pesapalToken()
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"id":              reference,
		"currency":        currency,
		"amount":          amount,
		"description":     description,
		"callback_url":    os.Getenv("PESAPAL_CALLBACK_URL"),
		"notification_id": os.Getenv("PESAPAL_IPN_ID"),
		"billing_address": map[string]interface{}{
			"email_address": email,
		},
	}
	payloadBytes, _ := json.Marshal(payload)

	req, err := http.NewRequest("POST", pesapalBaseURL+"/api/Transactions/SubmitOrderRequest", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := providerClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var orderResp pesapalOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		return nil, err
	}
	if orderResp.Error != nil {
		return nil, fmt.Errorf("pesapal order rejected: %s", orderResp.Error.Message)
	}
	return &orderResp, nil
}

type pesapalTransactionStatus struct {
	PaymentMethod     string  `json:"payment_method"`
	Amount            float64 `json:"amount"`
	PaymentStatusDesc string  `json:"payment_status_description"`
	StatusCode        int     `json:"status_code"`
	MerchantReference string  `json:"merchant_reference"`
	Currency          string  `json:"currency"`
}

// Pesapal status codes: 0 invalid, 1 completed, 2 failed, 3 reversed.
const (
	pesapalStatusCompleted = 1
	pesapalStatusFailed    = 2
	pesapalStatusReversed  = 3
)

func getPesapalTransactionStatus(orderTrackingID string) (*pesapalTransactionStatus, error) {
	token, err := pesapalToken()
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/Transactions/GetTransactionStatus?orderTrackingId=%s", pesapalBaseURL, orderTrackingID)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := providerClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status pesapalTransactionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}
