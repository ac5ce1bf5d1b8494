package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
// 先匹配中继层的哨兵错误 (可能被 %w 包装)，再回退到 Errno 本身
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	for sentinel, code := range relayCodes {
		if errors.Is(err, sentinel) {
			return code.Code, err.Error()
		}
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var ptr *Errno
	if errors.As(err, &ptr) {
		return ptr.Code, ptr.Message
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Session errors (20100+)
var (
	ErrNotInitialized          = errors.New("session transport not initialized")
	ErrPairingFailed           = errors.New("pairing failed")
	ErrSessionProposalRejected = errors.New("session proposal rejected")
	ErrInvalidSession          = errors.New("invalid session")
	ErrUnsupportedMethod       = errors.New("unsupported method")
	ErrInvalidParams           = errors.New("invalid request params")
)

// Relay errors (20200+)
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrProcessingBusy      = errors.New("another transaction is processing")
	ErrGasEstimationFailed = errors.New("gas estimation failed")
	ErrSubmissionFailed    = errors.New("submission failed")
	ErrSignatureTimeout    = errors.New("signature timeout")
	ErrReceiptCheckFailed  = errors.New("receipt check failed")
	ErrCheckNotReady       = errors.New("manual check not enabled")
	ErrCheckThrottled      = errors.New("receipt check throttled")
)

var relayCodes = map[error]Errno{
	ErrNotInitialized:          {Code: 20101, Message: "Session transport not initialized"},
	ErrPairingFailed:           {Code: 20102, Message: "Pairing failed"},
	ErrSessionProposalRejected: {Code: 20103, Message: "Session proposal rejected"},
	ErrInvalidSession:          {Code: 20104, Message: "Invalid session"},
	ErrUnsupportedMethod:       {Code: 20105, Message: "Unsupported method"},
	ErrInvalidParams:           {Code: 20106, Message: "Invalid request params"},

	ErrTransactionNotFound: {Code: 20201, Message: "Transaction not found"},
	ErrProcessingBusy:      {Code: 20202, Message: "Another transaction is processing"},
	ErrGasEstimationFailed: {Code: 20203, Message: "Gas estimation failed"},
	ErrSubmissionFailed:    {Code: 20204, Message: "Submission failed"},
	ErrSignatureTimeout:    {Code: 20205, Message: "Signature timeout"},
	ErrReceiptCheckFailed:  {Code: 20206, Message: "Receipt check failed"},
	ErrCheckNotReady:       {Code: 20207, Message: "Manual check not enabled"},
	ErrCheckThrottled:      {Code: 20208, Message: "Receipt check throttled"},
}
