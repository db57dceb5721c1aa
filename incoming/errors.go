package incoming

import "fmt"

// ErrorKind classifies a validation error.
type ErrorKind int

const (
	_ ErrorKind = iota
	// KindStructural covers malformed documents and schema violations.
	KindStructural
	// KindBusinessReasonOrVersion is reported when no schema exists for the
	// document's process type and version.
	KindBusinessReasonOrVersion
	// KindAuthorization covers sender, receiver, role and delegation checks.
	KindAuthorization
	// KindDuplicate is reported when a message id or transaction id was
	// already registered by the sender.
	KindDuplicate
	// KindBusinessRule covers field-level rules.
	KindBusinessRule
)

func (k ErrorKind) String() string {
	switch k {
	case KindStructural:
		return "Structural"
	case KindBusinessReasonOrVersion:
		return "BusinessReasonOrVersion"
	case KindAuthorization:
		return "Authorization"
	case KindDuplicate:
		return "Duplicate"
	case KindBusinessRule:
		return "BusinessRule"
	default:
		return "Unknown"
	}
}

// Codes reported to the sender.
const (
	CodeInvalidMessageStructure                  = "00302"
	CodeInvalidBusinessReasonOrVersion           = "00303"
	CodeDuplicateMessageIDDetected               = "00101"
	CodeDuplicateTransactionIDDetected           = "00102"
	CodeInvalidMessageID                         = "00103"
	CodeInvalidTransactionID                     = "00104"
	CodeInvalidReceiverID                        = "00201"
	CodeInvalidReceiverRole                      = "00202"
	CodeSenderIDDoesNotMatchAuthenticatedUser    = "00203"
	CodeAuthenticatedUserDoesNotHoldRequiredRole = "00204"
	CodeNotSupportedProcessType                  = "00401"
	CodeNotSupportedMessageType                  = "00402"
	CodeNotSupportedBusinessType                 = "00403"
	CodeInvalidPeriod                            = "E50"
	CodeInvalidMeteringPointType                 = "D18"
	CodeInvalidSettlementMethod                  = "D15"
	CodeInvalidSettlementVersion                 = "E86"
	CodeInvalidGridArea                          = "D46"
	CodeInvalidEnergySupplier                    = "E16"
	CodeInvalidBalanceResponsible                = "E18"
	CodeInvalidResolution                        = "D23"
	CodeInvalidChargeType                        = "D14"
)

// ValidationError describes one problem found in an incoming message. Errors
// are values: they are accumulated and returned to the sender as a list.
type ValidationError struct {
	Kind    ErrorKind
	Code    string
	Target  string
	Message string
}

func (e ValidationError) String() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Target)
}

// InvalidMessageStructure reports a malformed document or a schema violation
// at target.
func InvalidMessageStructure(target, message string) ValidationError {
	return ValidationError{
		Kind:    KindStructural,
		Code:    CodeInvalidMessageStructure,
		Target:  target,
		Message: message,
	}
}

// InvalidBusinessReasonOrVersion reports a document whose process type and
// version have no schema.
func InvalidBusinessReasonOrVersion(documentType, processType, version string) ValidationError {
	return ValidationError{
		Kind:    KindBusinessReasonOrVersion,
		Code:    CodeInvalidBusinessReasonOrVersion,
		Target:  documentType,
		Message: fmt.Sprintf("Schema version %s for business process type %s does not exist", version, processType),
	}
}

// DuplicateMessageIDDetected reports a message id already registered by the
// sender.
func DuplicateMessageIDDetected(messageID string) ValidationError {
	return ValidationError{
		Kind:    KindDuplicate,
		Code:    CodeDuplicateMessageIDDetected,
		Target:  "messageId",
		Message: fmt.Sprintf("Message id '%s' is not unique", messageID),
	}
}

// DuplicateTransactionIDDetected reports a transaction id already registered
// by the sender or repeated within the message.
func DuplicateTransactionIDDetected(transactionID string) ValidationError {
	return ValidationError{
		Kind:    KindDuplicate,
		Code:    CodeDuplicateTransactionIDDetected,
		Target:  "transactionId",
		Message: fmt.Sprintf("Transaction id '%s' is not unique", transactionID),
	}
}
