package custody

import (
	"github.com/mizumi-finance/mizumi-server/pkg/mizumi/common"
)

type endpoint uint8

const (
	endpointUnknown endpoint = iota
	endpointVault
	endpointUserHolder
	endpointUser
)

type route struct {
	stablecoin common.Stablecoin
	direction  common.Direction
}

type transferDescriptor struct {
	from       endpoint
	to         endpoint
	authorizer endpoint
}

var (
	onramp = transferDescriptor{
		from:       endpointVault,
		to:         endpointUserHolder,
		authorizer: endpointVault,
	}
	offramp = transferDescriptor{
		from:       endpointUserHolder,
		to:         endpointVault,
		authorizer: endpointUser,
	}

	routes = map[route]transferDescriptor{
		{common.StablecoinUsdc, common.DirectionOnramp}:  onramp,
		{common.StablecoinUsdc, common.DirectionOfframp}: offramp,
		{common.StablecoinUsdt, common.DirectionOnramp}:  onramp,
		{common.StablecoinUsdt, common.DirectionOfframp}: offramp,
	}
)

func (e endpoint) String() string {
	switch e {
	case endpointVault:
		return "vault"
	case endpointUserHolder:
		return "user_holder"
	case endpointUser:
		return "user"
	}
	return "unknown"
}
