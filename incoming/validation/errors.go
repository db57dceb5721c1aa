package validation

import (
	"fmt"

	"github.com/gridexchange/edi-gateway/incoming"
)

func authorization(code, target, message string) incoming.ValidationError {
	return incoming.ValidationError{
		Kind:    incoming.KindAuthorization,
		Code:    code,
		Target:  target,
		Message: message,
	}
}

func businessRule(code, target, message string) incoming.ValidationError {
	return incoming.ValidationError{
		Kind:    incoming.KindBusinessRule,
		Code:    code,
		Target:  target,
		Message: message,
	}
}

func invalidReceiverID(id string) incoming.ValidationError {
	return authorization(incoming.CodeInvalidReceiverID, "receiverId",
		fmt.Sprintf("Receiver id '%s' is not the calculation responsible", id))
}

func invalidReceiverRole(role string) incoming.ValidationError {
	return authorization(incoming.CodeInvalidReceiverRole, "receiverRole",
		fmt.Sprintf("Receiver role '%s' is not the calculation responsible role", role))
}

func senderIDDoesNotMatchAuthenticatedUser(id string) incoming.ValidationError {
	return authorization(incoming.CodeSenderIDDoesNotMatchAuthenticatedUser, "senderId",
		fmt.Sprintf("Sender id '%s' does not match the authenticated user", id))
}

func authenticatedUserDoesNotHoldRequiredRole() incoming.ValidationError {
	return authorization(incoming.CodeAuthenticatedUserDoesNotHoldRequiredRole, "senderRole",
		"The authenticated user does not hold the required role")
}

func invalidMessageID(message string) incoming.ValidationError {
	return businessRule(incoming.CodeInvalidMessageID, "messageId", message)
}

func invalidTransactionID(message string) incoming.ValidationError {
	return businessRule(incoming.CodeInvalidTransactionID, "transactionId", message)
}

func notSupported(code, target, what, value string) incoming.ValidationError {
	return businessRule(code, target, fmt.Sprintf("%s '%s' is not supported", what, value))
}
