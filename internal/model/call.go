package model

import "github.com/ethereum/go-ethereum/common"

// CallDescriptor is one pending on-chain invocation. Meta is diagnostic context only.
type CallDescriptor struct {
	Target      common.Address    `json:"target" yaml:"target"`
	EncodedCall []byte            `json:"encoded_call" yaml:"-"`
	Meta        map[string]string `json:"meta,omitempty" yaml:"meta"`
}
