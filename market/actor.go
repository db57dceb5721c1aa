package market

import "regexp"

// ActorNumber identifies a market actor. It is either a 13-digit GS1 number
// (GLN) or a 16-character EIC code.
type ActorNumber string

var (
	glnPattern = regexp.MustCompile(`^\d{13}$`)
	eicPattern = regexp.MustCompile(`^([0-9A-Z]{2}[XYZTVW][0-9A-Z-]{12}[0-9A-Z]|\d{16})$`)
)

func (n ActorNumber) String() string { return string(n) }

// IsGLN reports whether n is a 13-digit GS1 number.
func (n ActorNumber) IsGLN() bool { return glnPattern.MatchString(string(n)) }

// IsEIC reports whether n is a 16-character EIC code.
func (n ActorNumber) IsEIC() bool { return eicPattern.MatchString(string(n)) }

// Valid reports whether n is either a GLN or an EIC.
func (n ActorNumber) Valid() bool { return n.IsGLN() || n.IsEIC() }

// CodingScheme returns the CIM coding scheme of the number: "A10" for GS1 and
// "A01" for EIC.
func (n ActorNumber) CodingScheme() string {
	if n.IsEIC() {
		return CodingSchemeEIC
	}
	return CodingSchemeGS1
}

// EbixSchemeAgency returns the ebIX scheme agency identifier of the number.
func (n ActorNumber) EbixSchemeAgency() string {
	if n.IsEIC() {
		return "305"
	}
	return "9"
}

const (
	CodingSchemeGS1      = "A10"
	CodingSchemeEIC      = "A01"
	CodingSchemeGridArea = "NDK"
)

type ActorRole int

const (
	_ ActorRole = iota
	ActorRoleEnergySupplier
	ActorRoleBalanceResponsibleParty
	ActorRoleGridAccessProvider
	ActorRoleMeteredDataResponsible
	ActorRoleMeteredDataAdministrator
	ActorRoleMeteringPointAdministrator
	ActorRoleSystemOperator
	ActorRoleDelegated
)

func (r ActorRole) String() string {
	switch r {
	case ActorRoleEnergySupplier:
		return "EnergySupplier"
	case ActorRoleBalanceResponsibleParty:
		return "BalanceResponsibleParty"
	case ActorRoleGridAccessProvider:
		return "GridAccessProvider"
	case ActorRoleMeteredDataResponsible:
		return "MeteredDataResponsible"
	case ActorRoleMeteredDataAdministrator:
		return "MeteredDataAdministrator"
	case ActorRoleMeteringPointAdministrator:
		return "MeteringPointAdministrator"
	case ActorRoleSystemOperator:
		return "SystemOperator"
	case ActorRoleDelegated:
		return "Delegated"
	default:
		return "Unknown"
	}
}

// ParseActorRoleName returns the role with the given String() name.
func ParseActorRoleName(name string) (ActorRole, bool) {
	for r := ActorRoleEnergySupplier; r <= ActorRoleDelegated; r++ {
		if r.String() == name {
			return r, true
		}
	}
	return 0, false
}

// Restriction limits the data an authenticated actor may access.
type Restriction int

const (
	RestrictionNone Restriction = iota
	RestrictionOwned
)

func (r Restriction) String() string {
	if r == RestrictionOwned {
		return "Owned"
	}
	return "None"
}

// ActorIdentity is the authenticated actor behind a request.
type ActorIdentity struct {
	Number      ActorNumber
	Role        ActorRole
	Restriction Restriction
}
