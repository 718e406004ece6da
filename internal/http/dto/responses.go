package dto

type AuthResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"` // machine-readable rule / conflict code
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type InitializePaymentResponse struct {
	BookingID   string `json:"booking_id"`
	CheckoutURL string `json:"checkout_url"`
	Reference   string `json:"reference"`
}

type CancellationResponse struct {
	BookingID     string `json:"booking_id"`
	RefundPercent int    `json:"refund_percent"`
	GuestRefund   int64  `json:"guest_refund"` // includes the security deposit
	HostShare     int64  `json:"host_share"`
	PlatformShare int64  `json:"platform_share"`
}

type AllowedTransitionsResponse struct {
	BookingID string   `json:"booking_id"`
	Status    string   `json:"status"`
	Allowed   []string `json:"allowed"`
}

type BatchTransitionResponse struct {
	Target  string            `json:"target"`
	Results []BatchItemResult `json:"results"`
}

type BatchItemResult struct {
	BookingID string `json:"booking_id"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}
