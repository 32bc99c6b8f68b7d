package accumulator_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flightpath-fi/consolidator-service/accumulator"
	"github.com/flightpath-fi/consolidator-service/config/types"
	"github.com/flightpath-fi/consolidator-service/db"
	"github.com/flightpath-fi/consolidator-service/etherman"
	"github.com/flightpath-fi/consolidator-service/gerror"
	"github.com/flightpath-fi/consolidator-service/jobcodec"
	"github.com/flightpath-fi/consolidator-service/utils"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChainID = uint64(1337)

var (
	inputToken  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	outputToken = common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	owner       = common.HexToAddress("0x4444444444444444444444444444444444444444")
	// jobKey is the salted key of testMessage on the test chain; the engine
	// rejects deposits under any other key
	jobKey = jobcodec.SaltedKey(
		jobcodec.ComputeJobID(owner, inputToken, outputToken, recipient, big.NewInt(100), big.NewInt(90), nil),
		testChainID, 1)
)

// mockClock is a mutable time provider for deadline testing.
type mockClock struct {
	now time.Time
}

func (c *mockClock) Now() time.Time {
	return c.now
}

type recordedTransfer struct {
	token  common.Address
	to     common.Address
	amount *big.Int
}

// stubExecutor echoes the swap input as its output and records transfers.
type stubExecutor struct {
	feeQuote    *big.Int
	transferErr error
	transfers   []recordedTransfer
	swapRuns    int
}

func (e *stubExecutor) QuoteFee(ctx context.Context, job *accumulator.Job) (*big.Int, error) {
	return new(big.Int).Set(e.feeQuote), nil
}

func (e *stubExecutor) RunSwap(ctx context.Context, calls []etherman.Call, input *big.Int) (*big.Int, error) {
	e.swapRuns++
	return new(big.Int).Set(input), nil
}

func (e *stubExecutor) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if e.transferErr != nil {
		return e.transferErr
	}
	e.transfers = append(e.transfers, recordedTransfer{token: token, to: to, amount: new(big.Int).Set(amount)})
	return nil
}

// stubVerifier accepts every authorization and counts salt consumption.
type stubVerifier struct {
	consumed   int
	consumeErr error
}

func (v *stubVerifier) VerifyExecution(callsHash common.Hash, auth *accumulator.ExecutionAuth) error {
	return nil
}

func (v *stubVerifier) ConsumeSalt(auth *accumulator.ExecutionAuth) error {
	if v.consumeErr != nil {
		return v.consumeErr
	}
	v.consumed++
	return nil
}

func testMessage() *jobcodec.Message {
	return &jobcodec.Message{
		InputToken:  inputToken,
		OutputToken: outputToken,
		Recipient:   recipient,
		MinInput:    big.NewInt(100),
		MinOutput:   big.NewInt(90),
		Nonce:       big.NewInt(1),
	}
}

func newTestAccumulator(t *testing.T) (*accumulator.Accumulator, *db.MemStorage, *stubExecutor, *stubVerifier, *mockClock) {
	t.Helper()
	storage := db.NewMemStorage()
	executor := &stubExecutor{feeQuote: big.NewInt(5)}
	verifier := &stubVerifier{}
	clock := &mockClock{now: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
	cfg := accumulator.Config{
		ChainID:     testChainID,
		JobLifetime: types.NewDuration(time.Hour),
		MaxFeeWei:   1000,
	}
	return accumulator.NewAccumulator(cfg, storage, executor, verifier, clock), storage, executor, verifier, clock
}

func deposit(amount int64) accumulator.Deposit {
	return accumulator.Deposit{Key: jobKey, Amount: big.NewInt(amount), SourceChainID: 10}
}

func testAuth() *accumulator.ExecutionAuth {
	return &accumulator.ExecutionAuth{Salt: common.HexToHash("0x99")}
}

func TestHandleDepositCreatesAndAccumulates(t *testing.T) {
	settler, storage, executor, _, _ := newTestAccumulator(t)
	ctx := context.Background()

	err := settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(60), nil)
	require.NoError(t, err)

	job, err := storage.GetJob(ctx, jobKey, nil)
	require.NoError(t, err)
	assert.Equal(t, accumulator.JobStatusAccumulating, job.Status)
	assert.Equal(t, big.NewInt(60), job.ReceivedAmount)
	assert.Equal(t, owner, job.Owner)
	assert.Empty(t, executor.transfers)
	assert.Zero(t, executor.swapRuns)
}

func TestHandleDepositExecutesAtThreshold(t *testing.T) {
	settler, storage, executor, verifier, _ := newTestAccumulator(t)
	ctx := context.Background()

	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(60), nil))
	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(50), testAuth()))

	job, err := storage.GetJob(ctx, jobKey, nil)
	require.NoError(t, err)
	assert.Equal(t, accumulator.JobStatusExecuted, job.Status)
	assert.Equal(t, big.NewInt(0), job.ReceivedAmount)

	// 110 received, fee 5, swap echoes 105: recipient gets the committed
	// floor, the owner gets the excess
	require.Len(t, executor.transfers, 2)
	assert.Equal(t, recordedTransfer{token: outputToken, to: recipient, amount: big.NewInt(90)}, executor.transfers[0])
	assert.Equal(t, recordedTransfer{token: outputToken, to: owner, amount: big.NewInt(15)}, executor.transfers[1])
	assert.Equal(t, 1, verifier.consumed)

	events := storage.GetEvents(jobKey)
	require.Len(t, events, 1)
	assert.Equal(t, accumulator.EventExecuted, events[0].Kind)
	assert.Equal(t, big.NewInt(90), events[0].Amount)
	assert.Equal(t, big.NewInt(5), events[0].Fee)
}

func TestExecuteCapsQuotedFee(t *testing.T) {
	settler, _, executor, _, _ := newTestAccumulator(t)
	executor.feeQuote = big.NewInt(100000)
	ctx := context.Background()

	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(60), nil))
	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(1100), testAuth()))

	// 1160 received, fee capped at MaxFeeWei 1000, swap echoes 160
	require.Len(t, executor.transfers, 2)
	assert.Equal(t, big.NewInt(90), executor.transfers[0].amount)
	assert.Equal(t, big.NewInt(70), executor.transfers[1].amount)
}

func TestHandleDepositThresholdWithoutAuthWaits(t *testing.T) {
	settler, storage, executor, _, _ := newTestAccumulator(t)
	ctx := context.Background()

	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(120), nil))

	// accumulation is committed but nothing executed yet
	job, err := storage.GetJob(ctx, jobKey, nil)
	require.NoError(t, err)
	assert.Equal(t, accumulator.JobStatusAccumulating, job.Status)
	assert.Equal(t, big.NewInt(120), job.ReceivedAmount)
	assert.Zero(t, executor.swapRuns)

	// a later authorized execute settles it
	require.NoError(t, settler.TryExecute(ctx, jobKey, testAuth()))
	job, err = storage.GetJob(ctx, jobKey, nil)
	require.NoError(t, err)
	assert.Equal(t, accumulator.JobStatusExecuted, job.Status)
}

func TestHandleDepositAfterExecutedRejected(t *testing.T) {
	settler, _, executor, _, _ := newTestAccumulator(t)
	ctx := context.Background()

	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(110), testAuth()))
	transfersBefore := len(executor.transfers)

	err := settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(10), nil)
	assert.ErrorIs(t, err, gerror.ErrJobAlreadyExecuted)
	assert.Len(t, executor.transfers, transfersBefore)
}

func TestExpireJobsRefundsBelowThreshold(t *testing.T) {
	settler, storage, executor, _, clock := newTestAccumulator(t)
	ctx := context.Background()

	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(70), nil))

	clock.now = clock.now.Add(2 * time.Hour)
	require.NoError(t, settler.ExpireJobs(ctx))

	job, err := storage.GetJob(ctx, jobKey, nil)
	require.NoError(t, err)
	assert.Equal(t, accumulator.JobStatusStale, job.Status)
	assert.Equal(t, big.NewInt(0), job.ReceivedAmount)

	require.Len(t, executor.transfers, 1)
	assert.Equal(t, recordedTransfer{token: inputToken, to: owner, amount: big.NewInt(70)}, executor.transfers[0])

	events := storage.GetEvents(jobKey)
	require.Len(t, events, 1)
	assert.Equal(t, accumulator.EventRefunded, events[0].Kind)
}

func TestLateDepositAfterStaleIsRefunded(t *testing.T) {
	settler, storage, executor, _, clock := newTestAccumulator(t)
	ctx := context.Background()

	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(70), nil))
	clock.now = clock.now.Add(2 * time.Hour)
	require.NoError(t, settler.ExpireJobs(ctx))
	require.Len(t, executor.transfers, 1)

	// a relayer delivering after staleness gets exactly its amount back
	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(33), nil))
	require.Len(t, executor.transfers, 2)
	assert.Equal(t, recordedTransfer{token: inputToken, to: owner, amount: big.NewInt(33)}, executor.transfers[1])

	job, err := storage.GetJob(ctx, jobKey, nil)
	require.NoError(t, err)
	assert.Equal(t, accumulator.JobStatusStale, job.Status)
	assert.Equal(t, big.NewInt(0), job.ReceivedAmount)
}

func TestHandleDepositRejectsForeignKey(t *testing.T) {
	settler, storage, executor, _, _ := newTestAccumulator(t)
	ctx := context.Background()

	foreign := common.HexToHash("0xabcdef")
	dep := accumulator.Deposit{Key: foreign, Amount: big.NewInt(60), SourceChainID: 10}
	err := settler.HandleDeposit(ctx, foreign, testMessage(), owner, dep, nil)
	assert.ErrorIs(t, err, gerror.ErrJobKeyMismatch)

	// a key salted for another chain or nonce is just as foreign
	otherChain := jobcodec.SaltedKey(
		jobcodec.ComputeJobID(owner, inputToken, outputToken, recipient, big.NewInt(100), big.NewInt(90), nil),
		testChainID+1, 1)
	err = settler.HandleDeposit(ctx, otherChain, testMessage(), owner, dep, nil)
	assert.ErrorIs(t, err, gerror.ErrJobKeyMismatch)

	_, err = storage.GetJob(ctx, foreign, nil)
	assert.ErrorIs(t, err, gerror.ErrStorageNotFound)
	_, err = storage.GetJob(ctx, otherChain, nil)
	assert.ErrorIs(t, err, gerror.ErrStorageNotFound)
	assert.Empty(t, executor.transfers)
}

// slowReadStorage widens the window between a job read and its write back.
type slowReadStorage struct {
	*db.MemStorage
	delay time.Duration
}

func (s *slowReadStorage) GetJob(ctx context.Context, key common.Hash, dbTx pgx.Tx) (*accumulator.Job, error) {
	job, err := s.MemStorage.GetJob(ctx, key, dbTx)
	time.Sleep(s.delay)
	return job, err
}

func TestHandleDepositConcurrentSameJob(t *testing.T) {
	storage := &slowReadStorage{MemStorage: db.NewMemStorage(), delay: 20 * time.Millisecond}
	executor := &stubExecutor{feeQuote: big.NewInt(5)}
	clock := utils.TimeProviderFixedTime{FixedTime: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)}
	cfg := accumulator.Config{
		ChainID:     testChainID,
		JobLifetime: types.NewDuration(time.Hour),
		MaxFeeWei:   1000,
	}
	settler := accumulator.NewAccumulator(cfg, storage, executor, &stubVerifier{}, clock)
	ctx := context.Background()

	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(10), nil))

	// both deliveries land; neither overwrites the other's accumulation
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(40), nil)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	job, err := storage.GetJob(ctx, jobKey, nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(90), job.ReceivedAmount)
	assert.Equal(t, accumulator.JobStatusAccumulating, job.Status)
}

func TestExecutePaysAtMostOnce(t *testing.T) {
	settler, storage, executor, verifier, _ := newTestAccumulator(t)
	executor.transferErr = errors.New("rpc timeout")
	ctx := context.Background()

	err := settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(110), testAuth())
	require.Error(t, err)

	// the salt and the terminal state committed before the failing payout
	job, getErr := storage.GetJob(ctx, jobKey, nil)
	require.NoError(t, getErr)
	assert.Equal(t, accumulator.JobStatusExecuted, job.Status)
	assert.Equal(t, 1, verifier.consumed)

	// a retry stops at the guard instead of running the bundle again
	executor.transferErr = nil
	err = settler.TryExecute(ctx, jobKey, testAuth())
	assert.ErrorIs(t, err, gerror.ErrJobAlreadyExecuted)
	assert.Equal(t, 1, executor.swapRuns)
	assert.Empty(t, executor.transfers)
}

func TestExecuteSaltFailureMovesNothing(t *testing.T) {
	settler, storage, executor, verifier, _ := newTestAccumulator(t)
	verifier.consumeErr = gerror.ErrSaltAlreadyConsumed
	ctx := context.Background()

	err := settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(110), testAuth())
	assert.ErrorIs(t, err, gerror.ErrSaltAlreadyConsumed)

	// the accumulation survives for a retry under a fresh authorization
	job, getErr := storage.GetJob(ctx, jobKey, nil)
	require.NoError(t, getErr)
	assert.Equal(t, accumulator.JobStatusAccumulating, job.Status)
	assert.Equal(t, big.NewInt(110), job.ReceivedAmount)
	assert.Empty(t, executor.transfers)
}

func TestTryExecuteGuards(t *testing.T) {
	settler, _, _, _, _ := newTestAccumulator(t)
	ctx := context.Background()

	// unknown job
	err := settler.TryExecute(ctx, jobKey, testAuth())
	assert.ErrorIs(t, err, gerror.ErrStorageNotFound)

	// below threshold
	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(50), nil))
	err = settler.TryExecute(ctx, jobKey, testAuth())
	assert.Error(t, err)

	// already executed
	require.NoError(t, settler.HandleDeposit(ctx, jobKey, testMessage(), owner, deposit(60), testAuth()))
	err = settler.TryExecute(ctx, jobKey, testAuth())
	assert.ErrorIs(t, err, gerror.ErrJobAlreadyExecuted)
}
