package facilitator

// ErrorCode is one of the facilitator's stable, wire-visible reason codes.
// These strings are part of the protocol: clients match on them, so they
// never change once shipped.
type ErrorCode string

const (
	ErrInsufficientFunds       ErrorCode = "insufficient_funds"
	ErrAuthValidAfter          ErrorCode = "invalid_exact_evm_payload_authorization_valid_after"
	ErrAuthValidBefore         ErrorCode = "invalid_exact_evm_payload_authorization_valid_before"
	ErrAuthValue               ErrorCode = "invalid_exact_evm_payload_authorization_value"
	ErrInvalidSignature        ErrorCode = "invalid_exact_evm_payload_signature"
	ErrRecipientMismatch       ErrorCode = "invalid_exact_evm_payload_recipient_mismatch"
	ErrInvalidNetwork          ErrorCode = "invalid_network"
	ErrInvalidPayload          ErrorCode = "invalid_payload"
	ErrInvalidPaymentReqs      ErrorCode = "invalid_payment_requirements"
	ErrInvalidScheme           ErrorCode = "invalid_scheme"
	ErrUnsupportedScheme       ErrorCode = "unsupported_scheme"
	ErrInvalidX402Version      ErrorCode = "invalid_x402_version"
	ErrInvalidTransactionState ErrorCode = "invalid_transaction_state"
	ErrUnexpectedVerify        ErrorCode = "unexpected_verify_error"
	ErrUnexpectedSettle        ErrorCode = "unexpected_settle_error"
)
