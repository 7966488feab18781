package connectors

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/spaceai-roles-modifier/internal/domain"
)

// Поля сообщений, которыми шлюз обменивается с avatar и с клиентами gRPC.
const (
	FieldTo         = "to"
	FieldValue      = "value"
	FieldData       = "data"
	FieldOperation  = "operation"
	FieldRole       = "role"
	FieldDefault    = "default_role"
	FieldSuccess    = "success"
	FieldReturnData = "return_data"
)

// CallToStruct кодирует вызов в structpb: value как десятичная строка, data как 0x-hex.
func CallToStruct(call domain.Call) (*structpb.Struct, error) {
	value := "0"
	if call.Value != nil {
		value = call.Value.String()
	}
	return structpb.NewStruct(map[string]interface{}{
		FieldTo:        call.To.Hex(),
		FieldValue:     value,
		FieldData:      hexutil.Encode(call.Data),
		FieldOperation: call.Operation.String(),
	})
}

// CallFromStruct обратна CallToStruct. Отсутствующие value/data/operation
// означают 0, пустой payload и call.
func CallFromStruct(s *structpb.Struct) (domain.Call, error) {
	f := s.GetFields()
	var call domain.Call

	to := f[FieldTo].GetStringValue()
	if !common.IsHexAddress(to) {
		return call, fmt.Errorf("bad %q: %q is not an address", FieldTo, to)
	}
	call.To = common.HexToAddress(to)

	call.Value = new(big.Int)
	if v := f[FieldValue].GetStringValue(); v != "" {
		if _, ok := call.Value.SetString(v, 0); !ok || call.Value.Sign() < 0 {
			return call, fmt.Errorf("bad %q: %q", FieldValue, v)
		}
	}

	if d := f[FieldData].GetStringValue(); d != "" && d != "0x" {
		data, err := hexutil.Decode(d)
		if err != nil {
			return call, fmt.Errorf("bad %q: %w", FieldData, err)
		}
		call.Data = data
	}

	if op := f[FieldOperation].GetStringValue(); op != "" {
		if err := call.Operation.UnmarshalText([]byte(op)); err != nil {
			return call, fmt.Errorf("bad %q: %w", FieldOperation, err)
		}
	}
	return call, nil
}

func ResultToStruct(res domain.ExecutionResult) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		FieldSuccess:    res.Success,
		FieldReturnData: hexutil.Encode(res.ReturnData),
	})
}

func ResultFromStruct(s *structpb.Struct) (domain.ExecutionResult, error) {
	f := s.GetFields()
	res := domain.ExecutionResult{Success: f[FieldSuccess].GetBoolValue()}
	if d := f[FieldReturnData].GetStringValue(); d != "" && d != "0x" {
		data, err := hexutil.Decode(d)
		if err != nil {
			return res, fmt.Errorf("bad %q: %w", FieldReturnData, err)
		}
		res.ReturnData = data
	}
	return res, nil
}
