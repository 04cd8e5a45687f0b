package models

// MeResponse describes the authenticated account.
type MeResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email,omitempty"`
	Credits            int    `json:"credits"`
	SubscriptionStatus string `json:"subscriptionStatus"`
}
