package bank

// ResponseStatus is the bank's verdict on a processing request.
type ResponseStatus string

const (
	StatusSuccess           ResponseStatus = "SUCCESS"
	StatusFailed            ResponseStatus = "FAILED"
	StatusTimeout           ResponseStatus = "TIMEOUT"
	StatusInsufficientFunds ResponseStatus = "INSUFFICIENT_FUNDS"
	StatusUnavailable       ResponseStatus = "UNAVAILABLE"
)

type ProcessRequest struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	UserID        string `json:"user_id"`
	TransactionID string `json:"transaction_id"`
}

type ProcessResponse struct {
	Status        ResponseStatus `json:"status"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Message       string         `json:"message,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
}

type ErrorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}
