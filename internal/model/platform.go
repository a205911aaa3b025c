package model

import (
	"fmt"
	"strings"
)

// Platform identifies an AMM deployment. Values are resolved once at config load.
type Platform uint8

const (
	PlatformUnknown Platform = iota
	PlatformPancakeSwap
	PlatformApeSwap
	PlatformBiSwap
	PlatformMdex
	PlatformBabySwap
)

var platformNames = map[Platform]string{
	PlatformPancakeSwap: "pancakeswap",
	PlatformApeSwap:     "apeswap",
	PlatformBiSwap:      "biswap",
	PlatformMdex:        "mdex",
	PlatformBabySwap:    "babyswap",
}

// default swap fee in basis points charged by each platform's v2 pairs.
var platformFeeBps = map[Platform]int64{
	PlatformPancakeSwap: 25,
	PlatformApeSwap:     20,
	PlatformBiSwap:      10,
	PlatformMdex:        30,
	PlatformBabySwap:    30,
}

// ParsePlatform converts a configured platform name into a Platform.
func ParsePlatform(name string) (Platform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range platformNames {
		if n == name {
			return p, nil
		}
	}
	return PlatformUnknown, fmt.Errorf("unknown platform: %q", name)
}

func (p Platform) String() string {
	if name, ok := platformNames[p]; ok {
		return name
	}
	return "unknown"
}

// DefaultFeeBps returns the platform's swap fee in basis points.
func (p Platform) DefaultFeeBps() int64 {
	return platformFeeBps[p]
}

// MarshalText encodes the platform by name.
func (p Platform) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a platform name.
func (p *Platform) UnmarshalText(text []byte) error {
	parsed, err := ParsePlatform(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ContractType identifies the role of a registered contract.
type ContractType uint8

const (
	ContractUnknown ContractType = iota
	ContractMulticall
	ContractRouter
	ContractFactory
	ContractMasterChef
	ContractComptroller
	ContractToken
	ContractLP
)

var contractTypeNames = map[ContractType]string{
	ContractMulticall:   "multicall",
	ContractRouter:      "router",
	ContractFactory:     "factory",
	ContractMasterChef:  "masterchef",
	ContractComptroller: "comptroller",
	ContractToken:       "token",
	ContractLP:          "lp",
}

// ParseContractType converts a configured contract type name into a ContractType.
func ParseContractType(name string) (ContractType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range contractTypeNames {
		if n == name {
			return t, nil
		}
	}
	return ContractUnknown, fmt.Errorf("unknown contract type: %q", name)
}

func (t ContractType) String() string {
	if name, ok := contractTypeNames[t]; ok {
		return name
	}
	return "unknown"
}
