package dto

import "time"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateBookingRequest struct {
	PropertyID      string    `json:"property_id"`
	CheckInDate     time.Time `json:"check_in_date"`
	CheckOutDate    time.Time `json:"check_out_date"`
	RoomFee         int64     `json:"room_fee"`     // minor units
	CleaningFee     int64     `json:"cleaning_fee"` // minor units
	SecurityDeposit int64     `json:"security_deposit"`
	ServiceFee      int64     `json:"service_fee"`
	Currency        string    `json:"currency,omitempty"` // defaults to platform currency
}

type TransitionRequest struct {
	Target string `json:"target"`
}

type ForceTransitionRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

type BatchTransitionRequest struct {
	BookingIDs []string `json:"booking_ids"`
	Target     string   `json:"target"`
}

type AssertStatusRequest struct {
	Expected string `json:"expected"`
}

type InitializePaymentRequest struct {
	Provider string `json:"provider,omitempty"` // defaults to platform provider
}

type OpenDisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Resolution string `json:"resolution"` // full_refund / partial_refund / no_refund
	GuestShare *int64 `json:"guest_share,omitempty"`
	HostShare  *int64 `json:"host_share,omitempty"`
}

type SetBankDetailsRequest struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
}
