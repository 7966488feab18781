package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Operation задает тип вызова, который выполнит avatar.
type Operation uint8

const (
	OperationCall Operation = iota
	OperationDelegateCall
)

var operationNames = [...]string{"call", "delegatecall"}

func (o Operation) Valid() bool { return int(o) < len(operationNames) }

func (o Operation) String() string {
	if !o.Valid() {
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
	return operationNames[o]
}

func (o Operation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("unknown operation %d", uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *Operation) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range operationNames {
		if n == s {
			*o = Operation(i)
			return nil
		}
	}
	return fmt.Errorf("unknown operation %q", s)
}

// Call — исходящий вызов, который invoker просит выполнить от имени avatar.
type Call struct {
	To        common.Address `json:"to"`
	Value     *big.Int       `json:"value,omitempty"`
	Data      HexBytes       `json:"data"`
	Operation Operation      `json:"operation"`
}

// IsSend сообщает, переводит ли вызов ненулевой value.
func (c Call) IsSend() bool { return c.Value != nil && c.Value.Sign() > 0 }

// ExecutionResult передается invoker'у без изменений.
type ExecutionResult struct {
	Success    bool     `json:"success"`
	ReturnData HexBytes `json:"return_data,omitempty"`
}
