package proto

// Stable numeric error codes, grouped by concern. Codes are part of the wire
// contract; never renumber.
const (
	// Auth.
	CodeInvalidToken   = 1001
	CodeExpiredToken   = 1002
	CodeSignatureWrong = 1003
	CodeAccountSwitch  = 1004

	// Admission.
	CodeLobbyFull        = 2001
	CodeAlreadySeated    = 2002
	CodeLobbyNotJoinable = 2003
	CodeRefundTooEarly   = 2004
	CodeNotSeated        = 2005

	// Deposit.
	CodeTxNotFound       = 3001
	CodeWrongRecipient   = 3002
	CodeWrongAmount      = 3003
	CodeUnconfirmed      = 3004
	CodeDevTxOnPublic    = 3005
	CodeDuplicateDeposit = 3006

	// Protocol.
	CodeUnknownType     = 4001
	CodeMalformedFrame  = 4002
	CodeOversizeFrame   = 4003
	CodeInvalidInput    = 4004
	CodeRateLimited     = 4005
	CodeHandshakeFirst  = 4006

	// Settlement.
	CodePayoutFailed        = 5001
	CodeRefundFailed        = 5002
	CodeInsufficientBalance = 5003
	CodeRPCError            = 5004

	// Internal.
	CodeStoreError = 9001
	CodeAssertion  = 9002
)

// Errorf builds an outbound ERROR frame.
func Errorf(code int, message string) Error {
	return Error{Type: TypeError, Code: code, Message: message}
}
