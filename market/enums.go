package market

// BusinessReason is the high-level purpose of a market document.
type BusinessReason int

const (
	_ BusinessReason = iota
	BusinessReasonBalanceFixing
	BusinessReasonPreliminaryAggregation
	BusinessReasonWholesaleFixing
	BusinessReasonCorrection
)

func (r BusinessReason) String() string {
	switch r {
	case BusinessReasonBalanceFixing:
		return "BalanceFixing"
	case BusinessReasonPreliminaryAggregation:
		return "PreliminaryAggregation"
	case BusinessReasonWholesaleFixing:
		return "WholesaleFixing"
	case BusinessReasonCorrection:
		return "Correction"
	default:
		return "Unknown"
	}
}

// SettlementVersion disambiguates successive correction runs.
type SettlementVersion int

const (
	_ SettlementVersion = iota
	SettlementVersionFirstCorrection
	SettlementVersionSecondCorrection
	SettlementVersionThirdCorrection
)

func (v SettlementVersion) String() string {
	switch v {
	case SettlementVersionFirstCorrection:
		return "FirstCorrection"
	case SettlementVersionSecondCorrection:
		return "SecondCorrection"
	case SettlementVersionThirdCorrection:
		return "ThirdCorrection"
	default:
		return "Unknown"
	}
}

type MeteringPointType int

const (
	_ MeteringPointType = iota
	MeteringPointTypeConsumption
	MeteringPointTypeProduction
	MeteringPointTypeExchange
)

func (t MeteringPointType) String() string {
	switch t {
	case MeteringPointTypeConsumption:
		return "Consumption"
	case MeteringPointTypeProduction:
		return "Production"
	case MeteringPointTypeExchange:
		return "Exchange"
	default:
		return "Unknown"
	}
}

type SettlementMethod int

const (
	_ SettlementMethod = iota
	SettlementMethodNonProfiled
	SettlementMethodFlex
)

func (m SettlementMethod) String() string {
	switch m {
	case SettlementMethodNonProfiled:
		return "NonProfiled"
	case SettlementMethodFlex:
		return "Flex"
	default:
		return "Unknown"
	}
}

type Resolution int

const (
	_ Resolution = iota
	ResolutionQuarterHourly
	ResolutionHourly
	ResolutionDaily
	ResolutionMonthly
)

func (r Resolution) String() string {
	switch r {
	case ResolutionQuarterHourly:
		return "QuarterHourly"
	case ResolutionHourly:
		return "Hourly"
	case ResolutionDaily:
		return "Daily"
	case ResolutionMonthly:
		return "Monthly"
	default:
		return "Unknown"
	}
}

type MeasurementUnit int

const (
	_ MeasurementUnit = iota
	MeasurementUnitKWh
	MeasurementUnitMWh
)

func (u MeasurementUnit) String() string {
	switch u {
	case MeasurementUnitKWh:
		return "KWh"
	case MeasurementUnitMWh:
		return "MWh"
	default:
		return "Unknown"
	}
}

// Quality is the confidence or provenance tag of a quantity.
type Quality int

const (
	_ Quality = iota
	QualityMeasured
	QualityEstimated
	QualityCalculated
	QualityIncomplete
	QualityMissing
	QualityNotAvailable
)

func (q Quality) String() string {
	switch q {
	case QualityMeasured:
		return "Measured"
	case QualityEstimated:
		return "Estimated"
	case QualityCalculated:
		return "Calculated"
	case QualityIncomplete:
		return "Incomplete"
	case QualityMissing:
		return "Missing"
	case QualityNotAvailable:
		return "NotAvailable"
	default:
		return "Unknown"
	}
}

// ChargeType classifies wholesale charges.
type ChargeType int

const (
	_ ChargeType = iota
	ChargeTypeSubscription
	ChargeTypeFee
	ChargeTypeTariff
)

func (c ChargeType) String() string {
	switch c {
	case ChargeTypeSubscription:
		return "Subscription"
	case ChargeTypeFee:
		return "Fee"
	case ChargeTypeTariff:
		return "Tariff"
	default:
		return "Unknown"
	}
}
