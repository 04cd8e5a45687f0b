// Package models defines the JSON bodies of the HTTP API.
package models

import (
	"encoding/json"
	"time"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type AnalyzeResponse struct {
	Result           json.RawMessage `json:"result"`
	CreditsRemaining int             `json:"creditsRemaining"`
	DocumentID       string          `json:"documentId"`
}

type DocumentSummary struct {
	ID           string          `json:"id"`
	OriginalName string          `json:"originalName"`
	Result       json.RawMessage `json:"result"`
	Fallback     bool            `json:"fallback,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type TransactionEntry struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Amount      int       `json:"amount"`
	Description string    `json:"description"`
	PaymentRef  string    `json:"paymentRef,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PaymentIntentRequest struct {
	Credits int `json:"credits" binding:"required,min=1"`
}

type PaymentIntentResponse struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type ConfirmPurchaseRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	Credits         int    `json:"credits" binding:"required,min=1"`
}

type ConfirmPurchaseResponse struct {
	CreditsAdded bool `json:"creditsAdded"`
	NewBalance   int  `json:"newBalance"`
}
