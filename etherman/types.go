package etherman

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Call is the universal executable unit: one contract invocation with its
// calldata and attached native value. A list of Calls forms one atomic
// per-chain batch.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// ChainActionBatch is everything to execute on one chain for one route.
// Ordering within Calls is execution order and must be preserved
// (approve before swap before bridge deposit).
type ChainActionBatch struct {
	ChainID uint64
	Calls   []Call
}

// IsEmpty reports whether the batch carries no calls. An empty destination
// batch is legal on accumulator routes: the job registration call is
// injected there later.
func (b ChainActionBatch) IsEmpty() bool {
	return len(b.Calls) == 0
}

// CloneCalls returns a deep copy of the batch call list so callers cannot
// mutate a published route.
func (b ChainActionBatch) CloneCalls() []Call {
	calls := make([]Call, len(b.Calls))
	for i, c := range b.Calls {
		data := make([]byte, len(c.Data))
		copy(data, c.Data)
		var value *big.Int
		if c.Value != nil {
			value = new(big.Int).Set(c.Value)
		}
		calls[i] = Call{To: c.To, Data: data, Value: value}
	}
	return calls
}
