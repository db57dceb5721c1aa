package outgoing

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/outgoing/calculation"
)

func MapMeteringPointType(t calculation.TimeSeriesType) (market.MeteringPointType, error) {
	switch t {
	case calculation.TimeSeriesTypeProduction:
		return market.MeteringPointTypeProduction, nil
	case calculation.TimeSeriesTypeNonProfiledConsumption,
		calculation.TimeSeriesTypeFlexConsumption,
		calculation.TimeSeriesTypeTotalConsumption:
		return market.MeteringPointTypeConsumption, nil
	case calculation.TimeSeriesTypeNetExchangePerGridArea:
		return market.MeteringPointTypeExchange, nil
	case calculation.TimeSeriesTypeNetExchangePerNeighboringGridArea,
		calculation.TimeSeriesTypeGridLoss,
		calculation.TimeSeriesTypeNegativeGridLoss,
		calculation.TimeSeriesTypePositiveGridLoss,
		calculation.TimeSeriesTypeTempFlexConsumption,
		calculation.TimeSeriesTypeTempProduction:
		return 0, &NotSupportedTimeSeriesTypeError{Type: t}
	case calculation.TimeSeriesTypeUnspecified:
		return 0, errors.Wrap(ErrUnspecified, "time series type")
	}
	return 0, errors.Wrapf(ErrUnknownValue, "time series type %d", t)
}

// MapSettlementMethod returns nil for time series that are not settled by
// method, such as production.
func MapSettlementMethod(t calculation.TimeSeriesType) (*market.SettlementMethod, error) {
	method := func(m market.SettlementMethod) *market.SettlementMethod { return &m }
	switch t {
	case calculation.TimeSeriesTypeNonProfiledConsumption:
		return method(market.SettlementMethodNonProfiled), nil
	case calculation.TimeSeriesTypeFlexConsumption:
		return method(market.SettlementMethodFlex), nil
	case calculation.TimeSeriesTypeProduction,
		calculation.TimeSeriesTypeNetExchangePerGridArea,
		calculation.TimeSeriesTypeTotalConsumption:
		return nil, nil
	case calculation.TimeSeriesTypeNetExchangePerNeighboringGridArea,
		calculation.TimeSeriesTypeGridLoss,
		calculation.TimeSeriesTypeNegativeGridLoss,
		calculation.TimeSeriesTypePositiveGridLoss,
		calculation.TimeSeriesTypeTempFlexConsumption,
		calculation.TimeSeriesTypeTempProduction:
		return nil, &NotSupportedTimeSeriesTypeError{Type: t}
	case calculation.TimeSeriesTypeUnspecified:
		return nil, errors.Wrap(ErrUnspecified, "time series type")
	}
	return nil, errors.Wrapf(ErrUnknownValue, "time series type %d", t)
}

func MapResolution(r calculation.Resolution) (market.Resolution, error) {
	switch r {
	case calculation.ResolutionQuarter:
		return market.ResolutionQuarterHourly, nil
	case calculation.ResolutionHour:
		return market.ResolutionHourly, nil
	case calculation.ResolutionUnspecified:
		return 0, errors.Wrap(ErrUnspecified, "resolution")
	}
	return 0, errors.Wrapf(ErrUnknownValue, "resolution %d", r)
}

func MapQuantityUnit(u calculation.QuantityUnit) (market.MeasurementUnit, error) {
	switch u {
	case calculation.QuantityUnitKWh:
		return market.MeasurementUnitKWh, nil
	case calculation.QuantityUnitUnspecified:
		return 0, errors.Wrap(ErrUnspecified, "quantity unit")
	}
	return 0, errors.Wrapf(ErrUnknownValue, "quantity unit %d", u)
}

func MapQuality(q calculation.QuantityQuality) (market.Quality, error) {
	switch q {
	case calculation.QuantityQualityEstimated:
		return market.QualityEstimated, nil
	case calculation.QuantityQualityMeasured:
		return market.QualityMeasured, nil
	case calculation.QuantityQualityMissing:
		return market.QualityMissing, nil
	case calculation.QuantityQualityCalculated:
		return market.QualityCalculated, nil
	case calculation.QuantityQualityUnspecified:
		return 0, errors.Wrap(ErrUnspecified, "quantity quality")
	}
	return 0, errors.Wrapf(ErrUnknownValue, "quantity quality %d", q)
}

// MapCalculationType returns the business reason of results of the
// calculation type, and the settlement version for corrections.
func MapCalculationType(t calculation.CalculationType) (market.BusinessReason, *market.SettlementVersion, error) {
	version := func(v market.SettlementVersion) *market.SettlementVersion { return &v }
	switch t {
	case calculation.CalculationTypeBalanceFixing:
		return market.BusinessReasonBalanceFixing, nil, nil
	case calculation.CalculationTypeAggregation:
		return market.BusinessReasonPreliminaryAggregation, nil, nil
	case calculation.CalculationTypeWholesaleFixing:
		return market.BusinessReasonWholesaleFixing, nil, nil
	case calculation.CalculationTypeFirstCorrectionSettlement:
		return market.BusinessReasonCorrection, version(market.SettlementVersionFirstCorrection), nil
	case calculation.CalculationTypeSecondCorrectionSettlement:
		return market.BusinessReasonCorrection, version(market.SettlementVersionSecondCorrection), nil
	case calculation.CalculationTypeThirdCorrectionSettlement:
		return market.BusinessReasonCorrection, version(market.SettlementVersionThirdCorrection), nil
	case calculation.CalculationTypeUnspecified:
		return 0, nil, errors.Wrap(ErrUnspecified, "calculation type")
	}
	return 0, nil, errors.Wrapf(ErrUnknownValue, "calculation type %d", t)
}

// DecimalFromUnitsAndNanos returns units + nanos / 1e9.
func DecimalFromUnitsAndNanos(units int64, nanos int32) decimal.Decimal {
	return decimal.New(units, 0).Add(decimal.New(int64(nanos), -9))
}

// MapPoints numbers the points from one in the order given.
func MapPoints(points []calculation.TimeSeriesPoint) ([]Point, error) {
	out := make([]Point, 0, len(points))
	for i, p := range points {
		quality, err := pointQuality(p.QuantityQualities)
		if err != nil {
			return nil, errors.Wrapf(err, "point %d", i+1)
		}
		point := Point{Position: i + 1, SampleTime: p.Time, Quality: quality}
		if p.Quantity != nil {
			q := DecimalFromUnitsAndNanos(p.Quantity.Units, p.Quantity.Nanos)
			point.Quantity = &q
		}
		out = append(out, point)
	}
	return out, nil
}

// mapPointsByTime is MapPoints over the points ordered by time.
func mapPointsByTime(points []calculation.TimeSeriesPoint) ([]Point, error) {
	sorted := make([]calculation.TimeSeriesPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	return MapPoints(sorted)
}

// pointQuality reduces the qualities of the values aggregated into a point
// to the quality of the point. A point missing some but not all of its
// values is incomplete and a point without qualities is not available.
func pointQuality(qualities []calculation.QuantityQuality) (market.Quality, error) {
	if len(qualities) == 0 {
		return market.QualityNotAvailable, nil
	}
	found := make(map[market.Quality]bool, len(qualities))
	for _, q := range qualities {
		mapped, err := MapQuality(q)
		if err != nil {
			return 0, err
		}
		found[mapped] = true
	}
	switch {
	case found[market.QualityMissing] && len(found) == 1:
		return market.QualityMissing, nil
	case found[market.QualityMissing]:
		return market.QualityIncomplete, nil
	case found[market.QualityEstimated]:
		return market.QualityEstimated, nil
	case found[market.QualityMeasured]:
		return market.QualityMeasured, nil
	}
	return market.QualityCalculated, nil
}
