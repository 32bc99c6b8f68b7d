package dispatcher

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/flightpath-fi/consolidator-service/authcodec"
	"github.com/flightpath-fi/consolidator-service/composer"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/utils"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubLegStorage is an in-memory storageInterface for the dispatcher tests.
type stubLegStorage struct {
	legs   map[uint64]*MonitoredLeg
	nextID uint64
}

func newStubLegStorage() *stubLegStorage {
	return &stubLegStorage{legs: map[uint64]*MonitoredLeg{}}
}

func (s *stubLegStorage) AddMonitoredLeg(ctx context.Context, leg *MonitoredLeg, dbTx pgx.Tx) (uint64, error) {
	s.nextID++
	stored := *leg
	stored.ID = s.nextID
	s.legs[s.nextID] = &stored
	return s.nextID, nil
}

func (s *stubLegStorage) UpdateMonitoredLeg(ctx context.Context, leg *MonitoredLeg, dbTx pgx.Tx) error {
	if _, ok := s.legs[leg.ID]; !ok {
		return fmt.Errorf("leg %d not found", leg.ID)
	}
	stored := *leg
	s.legs[leg.ID] = &stored
	return nil
}

func (s *stubLegStorage) GetMonitoredLegsByRoot(ctx context.Context, root common.Hash, dbTx pgx.Tx) ([]*MonitoredLeg, error) {
	var out []*MonitoredLeg
	for id := uint64(1); id <= s.nextID; id++ {
		if leg, ok := s.legs[id]; ok && leg.Root == root {
			cp := *leg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *stubLegStorage) GetMonitoredLegsByStatus(ctx context.Context, status LegStatus, dbTx pgx.Tx) ([]*MonitoredLeg, error) {
	var out []*MonitoredLeg
	for id := uint64(1); id <= s.nextID; id++ {
		if leg, ok := s.legs[id]; ok && leg.Status == status {
			cp := *leg
			out = append(out, &cp)
		}
	}
	return out, nil
}

// stubRelay accepts submissions except on failChains and serves a status map.
type stubRelay struct {
	failChains map[uint64]bool
	submitted  map[uint64]int
	statuses   map[common.Hash]RelayStatus
}

func newStubRelay() *stubRelay {
	return &stubRelay{
		failChains: map[uint64]bool{},
		submitted:  map[uint64]int{},
		statuses:   map[common.Hash]RelayStatus{},
	}
}

func (r *stubRelay) SubmitBatch(ctx context.Context, leg *MonitoredLeg) (common.Hash, error) {
	if r.failChains[leg.ChainID] {
		return common.Hash{}, fmt.Errorf("relay rejected chain %d", leg.ChainID)
	}
	r.submitted[leg.ChainID]++
	txHash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%d-%d", leg.ChainID, r.submitted[leg.ChainID])))
	r.statuses[txHash] = RelayStatusPending
	return txHash, nil
}

func (r *stubRelay) GetStatus(ctx context.Context, chainID uint64, txHash common.Hash) (RelayStatus, error) {
	return r.statuses[txHash], nil
}

func testCall(seed byte) etherman.Call {
	return etherman.Call{
		To:    common.BytesToAddress([]byte{seed}),
		Data:  []byte{seed, seed},
		Value: big.NewInt(0),
	}
}

// twoLegRoute builds an accumulator-style route: two source batches plus the
// empty destination slot with a conversion bundle behind it.
func twoLegRoute() *composer.TransferRoute {
	jobID := crypto.Keccak256Hash([]byte("job"))
	return &composer.TransferRoute{
		ChainActions: []etherman.ChainActionBatch{
			{ChainID: 10, Calls: []etherman.Call{testCall(0x0a)}},
			{ChainID: 137, Calls: []etherman.Call{testCall(0x0b)}},
			{ChainID: 1},
		},
		JobID:           &jobID,
		DestChainID:     1,
		DestCalls:       []etherman.Call{testCall(0x0c)},
		EstimatedOutput: big.NewInt(1000),
	}
}

func newTestDispatcher() (*Dispatcher, *stubLegStorage, *stubRelay) {
	storage := newStubLegStorage()
	relay := newStubRelay()
	return NewDispatcher(Config{}, storage, relay), storage, relay
}

func testSigner(t *testing.T) *utils.KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return utils.NewKeySigner(key)
}

func TestSignRouteCoversEveryLeg(t *testing.T) {
	route := twoLegRoute()
	signer := testSigner(t)

	commitment, err := SignRoute(route, signer)
	require.NoError(t, err)
	require.Len(t, commitment.Auths, len(route.ChainActions))

	// every source leg verifies against the single signature
	for i, batch := range route.ChainActions[:2] {
		auth := commitment.Auths[i]
		err := authcodec.VerifyLeg(batch.ChainID, authcodec.CallsHash(batch), auth.Salt,
			auth.Proof, auth.Index, commitment.Root, commitment.Signature, signer.Address())
		require.NoError(t, err)
	}

	// the destination leaf commits to the conversion bundle, not the empty
	// slot
	destBatch := etherman.ChainActionBatch{ChainID: 1, Calls: route.DestCalls}
	destAuth := commitment.Auths[2]
	err = authcodec.VerifyLeg(1, authcodec.CallsHash(destBatch), destAuth.Salt,
		destAuth.Proof, destAuth.Index, commitment.Root, commitment.Signature, signer.Address())
	require.NoError(t, err)

	// salts are unique per leg
	assert.NotEqual(t, commitment.Auths[0].Salt, commitment.Auths[1].Salt)
	assert.NotEqual(t, commitment.Auths[1].Salt, commitment.Auths[2].Salt)
}

func TestDispatchSubmitsSourceLegsOnly(t *testing.T) {
	d, storage, relay := newTestDispatcher()
	route := twoLegRoute()
	signer := testSigner(t)

	commitment, err := d.SignAndDispatch(context.Background(), route, signer)
	require.NoError(t, err)
	require.NotNil(t, commitment)

	// only the two source batches were stored and broadcast
	assert.Len(t, storage.legs, 2)
	assert.Equal(t, 1, relay.submitted[10])
	assert.Equal(t, 1, relay.submitted[137])
	assert.Equal(t, 0, relay.submitted[1])

	broadcast, unbroadcast, confirmed, failed, err := d.RouteStatus(context.Background(), commitment.Root)
	require.NoError(t, err)
	assert.Equal(t, 2, broadcast)
	assert.Zero(t, unbroadcast)
	assert.Zero(t, confirmed)
	assert.Zero(t, failed)
}

func TestDispatchRejectsMisalignedAuths(t *testing.T) {
	d, _, _ := newTestDispatcher()
	route := twoLegRoute()

	err := d.Dispatch(context.Background(), route, common.Hash{}, nil, make([]LegAuth, 1))
	assert.Error(t, err)
}

func TestRetryResubmitsOnlyUnbroadcastLegs(t *testing.T) {
	d, _, relay := newTestDispatcher()
	route := twoLegRoute()
	signer := testSigner(t)

	relay.failChains[137] = true
	commitment, err := d.SignAndDispatch(context.Background(), route, signer)
	assert.Error(t, err)
	assert.Nil(t, commitment)

	// the commitment is nil on partial failure, recover the root from storage
	legs, err := d.storage.GetMonitoredLegsByStatus(context.Background(), LegStatusCreated, nil)
	require.NoError(t, err)
	require.Len(t, legs, 1)
	root := legs[0].Root

	broadcast, unbroadcast, _, _, err := d.RouteStatus(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, broadcast)
	assert.Equal(t, 1, unbroadcast)

	// the relay recovers and only the unbroadcast leg goes out again
	relay.failChains = map[uint64]bool{}
	require.NoError(t, d.Retry(context.Background(), root))
	assert.Equal(t, 1, relay.submitted[10])
	assert.Equal(t, 1, relay.submitted[137])

	// a second retry is a no-op, nothing is left in created state
	require.NoError(t, d.Retry(context.Background(), root))
	assert.Equal(t, 1, relay.submitted[10])
	assert.Equal(t, 1, relay.submitted[137])
}

func TestMonitorLegsTransitions(t *testing.T) {
	d, storage, relay := newTestDispatcher()
	route := twoLegRoute()
	signer := testSigner(t)

	commitment, err := d.SignAndDispatch(context.Background(), route, signer)
	require.NoError(t, err)

	legs, err := storage.GetMonitoredLegsByStatus(context.Background(), LegStatusBroadcast, nil)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	// one leg confirms, the other reverts; pending legs stay broadcast
	relay.statuses[legs[0].TxHash] = RelayStatusConfirmed
	relay.statuses[legs[1].TxHash] = RelayStatusFailed
	require.NoError(t, d.monitorLegs(context.Background()))

	broadcast, _, confirmed, failed, err := d.RouteStatus(context.Background(), commitment.Root)
	require.NoError(t, err)
	assert.Zero(t, broadcast)
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, failed)
}
