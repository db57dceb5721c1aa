package validation

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/gridexchange/edi-gateway/incoming"
	"github.com/gridexchange/edi-gateway/market"
)

var gridAreaPattern = regexp.MustCompile(`^\d{3}$`)

// periodLayouts are the accepted encodings of period boundaries. Some actors
// leave out the seconds.
var periodLayouts = []string{time.RFC3339, "2006-01-02T15:04Z07:00"}

func parsePeriodTime(v string) (time.Time, bool) {
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// series applies the field rules to every series. Errors target the
// transaction id of the series they were found in.
func (v *Validator) series(ctx context.Context, msg *incoming.Message, actor market.ActorIdentity) ([]incoming.ValidationError, error) {
	codes := codesOf(msg)
	reason, _ := codes.businessReasons.Parse(msg.Header.BusinessReason)

	var errs []incoming.ValidationError
	for _, s := range msg.Series {
		sv := seriesValidator{
			codes:  codes,
			series: s,
			reason: reason,
			actor:  actor,
		}
		errs = append(errs, sv.validate(msg.DocumentType)...)
	}
	return errs, nil
}

type seriesValidator struct {
	codes  codeTables
	series incoming.Series
	reason market.BusinessReason
	actor  market.ActorIdentity
	errs   []incoming.ValidationError
}

func (sv *seriesValidator) fail(code, format string, args ...interface{}) {
	sv.errs = append(sv.errs, businessRule(code, sv.series.TransactionID, fmt.Sprintf(format, args...)))
}

func (sv *seriesValidator) validate(documentType market.IncomingDocumentType) []incoming.ValidationError {
	sv.period()
	sv.meteringPointType()
	sv.settlementMethod()
	sv.settlementVersion()
	sv.gridArea()
	sv.energySupplier()
	sv.balanceResponsible()
	if documentType == market.IncomingDocumentTypeRequestWholesaleSettlement {
		sv.resolution()
		sv.chargeTypes()
	}
	return sv.errs
}

func (sv *seriesValidator) period() {
	s := sv.series
	if s.Start == "" {
		sv.fail(incoming.CodeInvalidPeriod, "Start of the period is missing")
		return
	}
	start, ok := parsePeriodTime(s.Start)
	if !ok {
		sv.fail(incoming.CodeInvalidPeriod, "Start of the period '%s' is not a valid date and time", s.Start)
		return
	}
	if s.End == nil {
		return
	}
	end, ok := parsePeriodTime(*s.End)
	switch {
	case !ok:
		sv.fail(incoming.CodeInvalidPeriod, "End of the period '%s' is not a valid date and time", *s.End)
	case !end.After(start):
		sv.fail(incoming.CodeInvalidPeriod, "End of the period must be after its start")
	}
}

func (sv *seriesValidator) meteringPointType() {
	if t := sv.series.MeteringPointType; t != nil && !sv.codes.meteringPointTypes.Has(*t) {
		sv.fail(incoming.CodeInvalidMeteringPointType, "Metering point type '%s' is not valid", *t)
	}
}

func (sv *seriesValidator) settlementMethod() {
	if m := sv.series.SettlementMethod; m != nil && !sv.codes.settlementMethods.Has(*m) {
		sv.fail(incoming.CodeInvalidSettlementMethod, "Settlement method '%s' is not valid", *m)
	}
}

// settlementVersion is required to be set for corrections only.
func (sv *seriesValidator) settlementVersion() {
	v := sv.series.SettlementVersion
	if v == nil {
		return
	}
	switch {
	case !sv.codes.settlementVersions.Has(*v):
		sv.fail(incoming.CodeInvalidSettlementVersion, "Settlement version '%s' is not valid", *v)
	case sv.reason != market.BusinessReasonCorrection:
		sv.fail(incoming.CodeInvalidSettlementVersion, "Settlement version is only allowed for corrections")
	}
}

func (sv *seriesValidator) gridArea() {
	if g := sv.series.GridArea; g != nil && !gridAreaPattern.MatchString(*g) {
		sv.fail(incoming.CodeInvalidGridArea, "Grid area '%s' must be 3 digits", *g)
	}
}

// energySupplier also keeps an energy supplier restricted to its own data
// from asking for anyone else's.
func (sv *seriesValidator) energySupplier() {
	id := sv.series.EnergySupplierID
	if id != nil && !market.ActorNumber(*id).Valid() {
		sv.fail(incoming.CodeInvalidEnergySupplier, "Energy supplier '%s' is not a valid actor number", *id)
		return
	}
	if sv.actor.Role != market.ActorRoleEnergySupplier || sv.actor.Restriction != market.RestrictionOwned {
		return
	}
	if id == nil || market.ActorNumber(*id) != sv.actor.Number {
		sv.fail(incoming.CodeInvalidEnergySupplier, "Energy supplier must be the authenticated user")
	}
}

func (sv *seriesValidator) balanceResponsible() {
	if id := sv.series.BalanceResponsibleID; id != nil && !market.ActorNumber(*id).Valid() {
		sv.fail(incoming.CodeInvalidBalanceResponsible, "Balance responsible '%s' is not a valid actor number", *id)
	}
}

func (sv *seriesValidator) resolution() {
	if r := sv.series.Resolution; r != nil && !sv.codes.resolutions.Has(*r) {
		sv.fail(incoming.CodeInvalidResolution, "Resolution '%s' is not valid", *r)
	}
}

func (sv *seriesValidator) chargeTypes() {
	for _, ct := range sv.series.ChargeTypes {
		if ct.Type != nil && !market.CIMChargeTypes.Has(*ct.Type) {
			sv.fail(incoming.CodeInvalidChargeType, "Charge type '%s' is not valid", *ct.Type)
		}
	}
}
