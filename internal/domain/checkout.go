package domain

import "time"

type PendingCheckout struct {
	Plan          Plan
	Type          PaymentType
	CorrelationID string
	ChainID       int64
	CreatedAt     time.Time
}

// PaymentSuccess is the breadcrumb an external completion handler leaves behind.
type PaymentSuccess struct {
	Plan           Plan
	Type           PaymentType
	CorrelationID  string
	CustomerID     string
	SubscriptionID string
	Last4          string
	TxHash         string
	WalletAddress  string
	ChainID        int64
	CreatedAt      time.Time
}

type CryptoPaymentRequest struct {
	To        string `json:"to"`
	Amount    string `json:"amount"`
	ChainID   int64  `json:"chainId"`
	ChainName string `json:"chainName"`
	Currency  string `json:"currency"`
	USDAmount string `json:"usdAmount"`
}
