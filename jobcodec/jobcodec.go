// Package jobcodec implements the binary layout of the accumulator message
// and the derivation of the content-addressed job identifier. Both sides of
// the bridge (the route composer building deposits and the destination
// decoder) must agree on these bytes without coordination, so any change to
// the field order or offset arithmetic here is a wire-format break.
package jobcodec

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/iden3/go-iden3-crypto/keccak256"
)

// KeyLen is the byte length of hashes and encoded words.
const KeyLen = 32

// headWords is the number of fixed-size words before the tail-encoded call
// list: inputToken, outputToken, recipient, minInput, minOutput, the offset
// word and the nonce word.
const headWords = 7

// Message is the decoded accumulator payload.
type Message struct {
	InputToken  common.Address
	OutputToken common.Address
	Recipient   common.Address
	MinInput    *big.Int
	MinOutput   *big.Int
	Nonce       *big.Int
	SwapCalls   []etherman.Call
}

func addressWord(addr common.Address) []byte {
	var word [KeyLen]byte
	copy(word[KeyLen-common.AddressLength:], addr[:])
	return word[:]
}

func amountWord(amount *big.Int) []byte {
	var word [KeyLen]byte
	if amount != nil {
		amount.FillBytes(word[:])
	}
	return word[:]
}

func padTo32(data []byte) []byte {
	if rem := len(data) % KeyLen; rem != 0 {
		return append(data, make([]byte, KeyLen-rem)...)
	}
	return data
}

// encodeCalls lays out the dynamic call list: a count word, then for each call a
// target word, a value word, a data-length word and the data padded to a
// 32-byte multiple.
func encodeCalls(calls []etherman.Call) []byte {
	out := make([]byte, 0, KeyLen*(1+3*len(calls)))
	out = append(out, amountWord(big.NewInt(int64(len(calls))))...)
	for _, c := range calls {
		out = append(out, addressWord(c.To)...)
		out = append(out, amountWord(c.Value)...)
		out = append(out, amountWord(big.NewInt(int64(len(c.Data))))...)
		out = append(out, padTo32(append([]byte{}, c.Data...))...)
	}
	return out
}

// EncodeMessage produces the exact byte payload the destination accumulator
// decodes: a head of five 32-byte words (inputToken, outputToken, recipient,
// minInput, minOutput), a word holding the byte offset of the call list, a
// trailing nonce word, and the tail-encoded call list itself.
func EncodeMessage(inputToken, outputToken, recipient common.Address, minInput, minOutput *big.Int, swapCalls []etherman.Call, nonce *big.Int) []byte {
	out := make([]byte, 0, KeyLen*headWords)
	out = append(out, addressWord(inputToken)...)
	out = append(out, addressWord(outputToken)...)
	out = append(out, addressWord(recipient)...)
	out = append(out, amountWord(minInput)...)
	out = append(out, amountWord(minOutput)...)
	out = append(out, amountWord(big.NewInt(int64(KeyLen*headWords)))...)
	out = append(out, amountWord(nonce)...)
	out = append(out, encodeCalls(swapCalls)...)
	return out
}

// DecodeMessage parses a payload produced by EncodeMessage.
func DecodeMessage(payload []byte) (*Message, error) {
	if len(payload) < KeyLen*headWords {
		return nil, fmt.Errorf("message too short: %d bytes", len(payload))
	}
	word := func(i int) []byte { return payload[KeyLen*i : KeyLen*(i+1)] }

	offset := new(big.Int).SetBytes(word(5))
	if !offset.IsInt64() || offset.Int64() != int64(KeyLen*headWords) {
		return nil, fmt.Errorf("unexpected call list offset %s", offset)
	}

	msg := &Message{
		InputToken:  common.BytesToAddress(word(0)),
		OutputToken: common.BytesToAddress(word(1)),
		Recipient:   common.BytesToAddress(word(2)),
		MinInput:    new(big.Int).SetBytes(word(3)),
		MinOutput:   new(big.Int).SetBytes(word(4)),
		Nonce:       new(big.Int).SetBytes(word(6)),
	}

	tail := payload[KeyLen*headWords:]
	if len(tail) < KeyLen {
		return nil, fmt.Errorf("truncated call list")
	}
	// every length word is bounded by the bytes actually present before it
	// drives an allocation or an index
	count := new(big.Int).SetBytes(tail[:KeyLen])
	if !count.IsInt64() || count.Int64() > int64((len(tail)-KeyLen)/(3*KeyLen)) {
		return nil, fmt.Errorf("invalid call count %s", count)
	}
	pos := KeyLen
	for i := int64(0); i < count.Int64(); i++ {
		if len(tail) < pos+3*KeyLen {
			return nil, fmt.Errorf("truncated call %d", i)
		}
		target := common.BytesToAddress(tail[pos : pos+KeyLen])
		value := new(big.Int).SetBytes(tail[pos+KeyLen : pos+2*KeyLen])
		length := new(big.Int).SetBytes(tail[pos+2*KeyLen : pos+3*KeyLen])
		pos += 3 * KeyLen
		if !length.IsInt64() || length.Int64() > int64(len(tail)-pos) {
			return nil, fmt.Errorf("call %d data length %s exceeds the payload", i, length)
		}
		dataLen := int(length.Int64())
		padded := dataLen
		if rem := padded % KeyLen; rem != 0 {
			padded += KeyLen - rem
		}
		if len(tail) < pos+padded {
			return nil, fmt.Errorf("truncated call data %d", i)
		}
		data := make([]byte, dataLen)
		copy(data, tail[pos:pos+dataLen])
		msg.SwapCalls = append(msg.SwapCalls, etherman.Call{To: target, Data: data, Value: value})
		pos += padded
	}
	return msg, nil
}

// ComputeJobID derives the 32-byte content-addressed identifier of a job from
// its canonical tuple. The nonce is not part of the identifier: identical
// route requests map to the same job, so every source leg of a scatter-gather
// route accumulates against one destination entry. Replay uniqueness comes
// from SaltedKey.
func ComputeJobID(owner, inputToken, outputToken, recipient common.Address, minInput, minOutput *big.Int, swapCalls []etherman.Call) common.Hash {
	var id common.Hash
	copy(id[:], keccak256.Hash(
		addressWord(owner),
		addressWord(inputToken),
		addressWord(outputToken),
		addressWord(recipient),
		amountWord(minInput),
		amountWord(minOutput),
		keccak256.Hash(encodeCalls(swapCalls)),
	))
	return id
}

// SaltedKey applies the external uniqueness salt to a content-addressed job
// identifier at storage-key construction time. chainID and accountNonce keep
// two identical canonical tuples apart across chains and across signed
// batches; the caller must advance the nonce per signed route.
func SaltedKey(jobID common.Hash, chainID, accountNonce uint64) common.Hash {
	chain := make([]byte, 8)
	binary.BigEndian.PutUint64(chain, chainID)
	nonce := make([]byte, 8)
	binary.BigEndian.PutUint64(nonce, accountNonce)
	var key common.Hash
	copy(key[:], keccak256.Hash(jobID[:], chain, nonce))
	return key
}
