// Package validation applies the business rules to parsed incoming messages.
package validation

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gridexchange/edi-gateway/incoming"
	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/masterdata"
	"github.com/gridexchange/edi-gateway/registry"
)

// maxIDLength is the longest message or transaction id accepted.
const maxIDLength = 36

// A rule inspects one aspect of a message. Rules are independent: all of
// them run and their errors are concatenated.
type rule func(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error)

// Validator checks a parsed message on behalf of an authenticated actor.
type Validator struct {
	logger      logrus.FieldLogger
	gatewayID   market.ActorNumber
	registry    registry.Reader
	delegations masterdata.DelegationReader
	now         func() time.Time
	rules       []rule
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock replaces the clock used to decide whether delegations are active.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// New returns a Validator for the gateway identified by gatewayID.
func New(logger logrus.FieldLogger, gatewayID market.ActorNumber, reg registry.Reader, delegations masterdata.DelegationReader, opts ...Option) *Validator {
	v := &Validator{
		logger:      logger,
		gatewayID:   gatewayID,
		registry:    reg,
		delegations: delegations,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.rules = []rule{
		v.receiverID,
		v.receiverRole,
		v.senderID,
		v.senderRole,
		v.messageID,
		v.transactionIDs,
		v.processType,
		v.messageType,
		v.businessType,
		v.series,
	}
	return v
}

// Validate runs every rule against msg. An empty result means the message is
// accepted. The error return is reserved for failed lookups.
func (v *Validator) Validate(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	var all []incoming.ValidationError
	for _, r := range v.rules {
		errs, err := r(ctx, msg, actor)
		if err != nil {
			return nil, err
		}
		all = append(all, errs...)
	}
	if len(all) > 0 {
		v.logger.WithFields(logrus.Fields{
			"messageID":    msg.Header.MessageID,
			"sender":       msg.Header.SenderID,
			"documentType": msg.DocumentType,
			"errors":       len(all),
		}).Info("Message rejected")
	}
	return all, nil
}

// codeTables groups the code tables of one document format.
type codeTables struct {
	roles              market.CodeTable[market.ActorRole]
	businessReasons    market.CodeTable[market.BusinessReason]
	settlementVersions market.CodeTable[market.SettlementVersion]
	meteringPointTypes market.CodeTable[market.MeteringPointType]
	settlementMethods  market.CodeTable[market.SettlementMethod]
	resolutions        market.CodeTable[market.Resolution]
}

var (
	cimCodes = codeTables{
		roles:              market.CIMActorRoles,
		businessReasons:    market.CIMBusinessReasons,
		settlementVersions: market.CIMSettlementVersions,
		meteringPointTypes: market.CIMMeteringPointTypes,
		settlementMethods:  market.CIMSettlementMethods,
		resolutions:        market.CIMResolutions,
	}
	ebixCodes = codeTables{
		roles:              market.EbixActorRoles,
		businessReasons:    market.EbixBusinessReasons,
		settlementVersions: market.EbixSettlementVersions,
		meteringPointTypes: market.EbixMeteringPointTypes,
		settlementMethods:  market.EbixSettlementMethods,
		resolutions:        market.EbixResolutions,
	}
)

func codesOf(msg *incoming.Message) codeTables {
	if msg.Format == market.DocumentFormatEbix {
		return ebixCodes
	}
	return cimCodes
}

// Allow-lists per document type, in the format's codes.
var (
	allowedProcessTypes = map[market.IncomingDocumentType]mapset.Set[string]{
		market.IncomingDocumentTypeRequestAggregatedMeasureData: mapset.NewSet("D03", "D04", "D05", "D32"),
		market.IncomingDocumentTypeRequestWholesaleSettlement:   mapset.NewSet("D05", "D32"),
	}
	allowedMessageTypes = map[market.IncomingDocumentType]mapset.Set[string]{
		market.IncomingDocumentTypeRequestAggregatedMeasureData: mapset.NewSet(market.MessageTypeRequestAggregatedMeasureData),
		market.IncomingDocumentTypeRequestWholesaleSettlement:   mapset.NewSet(market.MessageTypeRequestWholesaleSettlement),
	}
	allowedBusinessTypes = mapset.NewSet(market.BusinessTypeElectricity)
)

// calculationResponsible is the role every request must be addressed to.
const calculationResponsible = market.ActorRoleMeteredDataAdministrator

func (v *Validator) receiverID(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	if market.ActorNumber(msg.Header.ReceiverID) == v.gatewayID {
		return nil, nil
	}
	return []incoming.ValidationError{invalidReceiverID(msg.Header.ReceiverID)}, nil
}

func (v *Validator) receiverRole(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	role, ok := codesOf(msg).roles.Parse(msg.Header.ReceiverRole)
	if ok && role == calculationResponsible {
		return nil, nil
	}
	return []incoming.ValidationError{invalidReceiverRole(msg.Header.ReceiverRole)}, nil
}

// senderID requires the sender to be the authenticated actor. Delegated
// actors send on behalf of others and are checked by senderRole instead.
func (v *Validator) senderID(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	if actor.Role == market.ActorRoleDelegated {
		return nil, nil
	}
	if market.ActorNumber(msg.Header.SenderID) == actor.Number {
		return nil, nil
	}
	return []incoming.ValidationError{senderIDDoesNotMatchAuthenticatedUser(msg.Header.SenderID)}, nil
}

// senderRole requires the authenticated actor to hold the claimed role.
//
// A grid access provider may send as metered data responsible. Actors still
// use the old role code; remove the exception once they have migrated.
func (v *Validator) senderRole(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	claimed, ok := codesOf(msg).roles.Parse(msg.Header.SenderRole)
	if !ok {
		return []incoming.ValidationError{authenticatedUserDoesNotHoldRequiredRole()}, nil
	}
	switch {
	case claimed == actor.Role:
		return nil, nil
	case actor.Role == market.ActorRoleGridAccessProvider && claimed == market.ActorRoleMeteredDataResponsible:
		return nil, nil
	case actor.Role == market.ActorRoleDelegated:
		ok, err := v.delegated(ctx, msg, actor, claimed)
		if err != nil || ok {
			return nil, err
		}
	}
	return []incoming.ValidationError{authenticatedUserDoesNotHoldRequiredRole()}, nil
}

// delegated reports whether the delegated actor holds an active delegation
// from the claimed sender for the grid area of every series.
func (v *Validator) delegated(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity, claimed market.ActorRole) (bool, error) {
	processType := msg.DocumentType.ProcessType()
	delegations, err := v.delegations.Delegations(ctx, actor.Number, processType)
	if err != nil {
		return false, errors.Wrap(err, "looking up delegations")
	}
	now := v.now()
	for _, s := range msg.Series {
		if s.GridArea == nil {
			return false, nil
		}
		_, ok := masterdata.ActiveDelegation(delegations, masterdata.DelegationQuery{
			DelegatedBy:     market.ActorNumber(msg.Header.SenderID),
			DelegatedByRole: claimed,
			DelegatedTo:     actor.Number,
			GridArea:        *s.GridArea,
			ProcessType:     processType,
		}, now)
		if !ok {
			return false, nil
		}
	}
	return len(msg.Series) > 0, nil
}

func (v *Validator) messageID(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	id := msg.Header.MessageID
	switch {
	case id == "":
		return []incoming.ValidationError{invalidMessageID("Message id must not be empty")}, nil
	case len(id) > maxIDLength:
		return []incoming.ValidationError{invalidMessageID("Message id '" + id + "' is longer than 36 characters")}, nil
	}
	found, err := v.registry.MessageIDExists(ctx, msg.Header.SenderID, id)
	if err != nil {
		return nil, errors.Wrap(err, "looking up message id")
	}
	if found {
		return []incoming.ValidationError{incoming.DuplicateMessageIDDetected(id)}, nil
	}
	return nil, nil
}

func (v *Validator) transactionIDs(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	var errs []incoming.ValidationError
	seen := mapset.NewThreadUnsafeSet[string]()
	reported := mapset.NewThreadUnsafeSet[string]()
	for _, id := range msg.TransactionIDs() {
		switch {
		case id == "":
			errs = append(errs, invalidTransactionID("Transaction id must not be empty"))
			continue
		case len(id) > maxIDLength:
			errs = append(errs, invalidTransactionID("Transaction id '"+id+"' is longer than 36 characters"))
			continue
		}
		if !seen.Add(id) {
			if reported.Add(id) {
				errs = append(errs, incoming.DuplicateTransactionIDDetected(id))
			}
			continue
		}
		found, err := v.registry.TransactionIDExists(ctx, msg.Header.SenderID, id)
		if err != nil {
			return nil, errors.Wrap(err, "looking up transaction id")
		}
		if found && reported.Add(id) {
			errs = append(errs, incoming.DuplicateTransactionIDDetected(id))
		}
	}
	return errs, nil
}

func (v *Validator) processType(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	if allowedProcessTypes[msg.DocumentType].Contains(msg.Header.BusinessReason) {
		return nil, nil
	}
	return []incoming.ValidationError{notSupported(incoming.CodeNotSupportedProcessType, "businessReason", "Process type", msg.Header.BusinessReason)}, nil
}

func (v *Validator) messageType(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	if allowedMessageTypes[msg.DocumentType].Contains(msg.Header.MessageType) {
		return nil, nil
	}
	return []incoming.ValidationError{notSupported(incoming.CodeNotSupportedMessageType, "messageType", "Message type", msg.Header.MessageType)}, nil
}

// businessType accepts an omitted business type; ebIX documents may leave
// the industry classification out.
func (v *Validator) businessType(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	if msg.Header.BusinessType == "" || allowedBusinessTypes.Contains(msg.Header.BusinessType) {
		return nil, nil
	}
	return []incoming.ValidationError{notSupported(incoming.CodeNotSupportedBusinessType, "businessType", "Business type", msg.Header.BusinessType)}, nil
}
