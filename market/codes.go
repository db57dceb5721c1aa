package market

// CIM code tables.
var (
	CIMActorRoles = newCodeTable("CIM actor roles",
		entry[ActorRole]{ActorRoleEnergySupplier, "DDQ"},
		entry[ActorRole]{ActorRoleBalanceResponsibleParty, "DDK"},
		entry[ActorRole]{ActorRoleGridAccessProvider, "DDM"},
		entry[ActorRole]{ActorRoleMeteredDataResponsible, "MDR"},
		entry[ActorRole]{ActorRoleMeteredDataAdministrator, "DGL"},
		entry[ActorRole]{ActorRoleMeteringPointAdministrator, "DDZ"},
		entry[ActorRole]{ActorRoleSystemOperator, "EZ"},
		entry[ActorRole]{ActorRoleDelegated, "DEL"},
	)

	CIMBusinessReasons = newCodeTable("CIM business reasons",
		entry[BusinessReason]{BusinessReasonPreliminaryAggregation, "D03"},
		entry[BusinessReason]{BusinessReasonBalanceFixing, "D04"},
		entry[BusinessReason]{BusinessReasonWholesaleFixing, "D05"},
		entry[BusinessReason]{BusinessReasonCorrection, "D32"},
	)

	CIMSettlementVersions = newCodeTable("CIM settlement versions",
		entry[SettlementVersion]{SettlementVersionFirstCorrection, "D01"},
		entry[SettlementVersion]{SettlementVersionSecondCorrection, "D02"},
		entry[SettlementVersion]{SettlementVersionThirdCorrection, "D03"},
	)

	CIMMeteringPointTypes = newCodeTable("CIM metering point types",
		entry[MeteringPointType]{MeteringPointTypeConsumption, "E17"},
		entry[MeteringPointType]{MeteringPointTypeProduction, "E18"},
		entry[MeteringPointType]{MeteringPointTypeExchange, "E20"},
	)

	CIMSettlementMethods = newCodeTable("CIM settlement methods",
		entry[SettlementMethod]{SettlementMethodFlex, "D01"},
		entry[SettlementMethod]{SettlementMethodNonProfiled, "E02"},
	)

	CIMResolutions = newCodeTable("CIM resolutions",
		entry[Resolution]{ResolutionQuarterHourly, "PT15M"},
		entry[Resolution]{ResolutionHourly, "PT1H"},
		entry[Resolution]{ResolutionDaily, "P1D"},
		entry[Resolution]{ResolutionMonthly, "P1M"},
	)

	CIMMeasurementUnits = newCodeTable("CIM measurement units",
		entry[MeasurementUnit]{MeasurementUnitKWh, "KWH"},
		entry[MeasurementUnit]{MeasurementUnitMWh, "MWH"},
	)

	// Missing and NotAvailable share the "not available" code.
	CIMQualities = newCodeTable("CIM qualities",
		entry[Quality]{QualityMissing, "A02"},
		entry[Quality]{QualityNotAvailable, "A02"},
		entry[Quality]{QualityEstimated, "A03"},
		entry[Quality]{QualityMeasured, "A04"},
		entry[Quality]{QualityIncomplete, "A05"},
		entry[Quality]{QualityCalculated, "A06"},
	)

	CIMChargeTypes = newCodeTable("CIM charge types",
		entry[ChargeType]{ChargeTypeSubscription, "D01"},
		entry[ChargeType]{ChargeTypeFee, "D02"},
		entry[ChargeType]{ChargeTypeTariff, "D03"},
	)
)

// ebIX code tables. Some codes coincide with CIM today; the tables are kept
// apart because the two standards evolve independently.
var (
	EbixActorRoles = newCodeTable("ebIX actor roles",
		entry[ActorRole]{ActorRoleEnergySupplier, "DDQ"},
		entry[ActorRole]{ActorRoleBalanceResponsibleParty, "DDK"},
		entry[ActorRole]{ActorRoleGridAccessProvider, "DDM"},
		entry[ActorRole]{ActorRoleMeteredDataResponsible, "MDR"},
		entry[ActorRole]{ActorRoleMeteredDataAdministrator, "DGL"},
		entry[ActorRole]{ActorRoleMeteringPointAdministrator, "DDZ"},
		entry[ActorRole]{ActorRoleSystemOperator, "EZ"},
	)

	EbixBusinessReasons = newCodeTable("ebIX business reasons",
		entry[BusinessReason]{BusinessReasonPreliminaryAggregation, "D03"},
		entry[BusinessReason]{BusinessReasonBalanceFixing, "D04"},
		entry[BusinessReason]{BusinessReasonWholesaleFixing, "D05"},
		entry[BusinessReason]{BusinessReasonCorrection, "D32"},
	)

	EbixSettlementVersions = newCodeTable("ebIX settlement versions",
		entry[SettlementVersion]{SettlementVersionFirstCorrection, "D01"},
		entry[SettlementVersion]{SettlementVersionSecondCorrection, "D02"},
		entry[SettlementVersion]{SettlementVersionThirdCorrection, "D03"},
	)

	EbixMeteringPointTypes = newCodeTable("ebIX metering point types",
		entry[MeteringPointType]{MeteringPointTypeConsumption, "E17"},
		entry[MeteringPointType]{MeteringPointTypeProduction, "E18"},
		entry[MeteringPointType]{MeteringPointTypeExchange, "E20"},
	)

	EbixSettlementMethods = newCodeTable("ebIX settlement methods",
		entry[SettlementMethod]{SettlementMethodFlex, "D01"},
		entry[SettlementMethod]{SettlementMethodNonProfiled, "E02"},
	)

	EbixResolutions = newCodeTable("ebIX resolutions",
		entry[Resolution]{ResolutionQuarterHourly, "PT15M"},
		entry[Resolution]{ResolutionHourly, "PT1H"},
		entry[Resolution]{ResolutionDaily, "P1D"},
		entry[Resolution]{ResolutionMonthly, "P1M"},
	)

	EbixMeasurementUnits = newCodeTable("ebIX measurement units",
		entry[MeasurementUnit]{MeasurementUnitKWh, "KWH"},
		entry[MeasurementUnit]{MeasurementUnitMWh, "MWH"},
	)

	// Missing and NotAvailable are not coded in ebIX; the document carries a
	// QuantityMissing marker instead.
	EbixQualities = newCodeTable("ebIX qualities",
		entry[Quality]{QualityEstimated, "56"},
		entry[Quality]{QualityIncomplete, "56"},
		entry[Quality]{QualityMeasured, "E01"},
		entry[Quality]{QualityCalculated, "D01"},
	)
)

// Fixed CIM header values.
const (
	BusinessTypeElectricity = "23"
	ProductEnergyActive     = "8716867000030"

	MessageTypeRequestAggregatedMeasureData = "E74"
	MessageTypeRequestWholesaleSettlement   = "D21"
	MessageTypeNotifyAggregatedMeasureData  = "E31"
)
