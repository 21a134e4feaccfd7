package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/metrics"
	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/store"
	"github.com/congo-pay/walletledger/internal/transaction"
	"github.com/congo-pay/walletledger/internal/wallet"
)

func TestFundWithdrawTransferScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		b := f.openAccount(t, "b@example.com")

		w, err := f.engine.Fund(ctx, a, money.FromMinor(1000), "k1")
		require.NoError(t, err)
		assert.Equal(t, "10.00", w.Balance.String())

		w, err = f.engine.Withdraw(ctx, a, money.FromMinor(300), "k2")
		require.NoError(t, err)
		assert.Equal(t, "7.00", w.Balance.String())

		bBefore, err := f.engine.Balance(ctx, b)
		require.NoError(t, err)

		w, err = f.engine.Transfer(ctx, a, "b@example.com", money.FromMinor(200), "k3")
		require.NoError(t, err)
		assert.Equal(t, "5.00", w.Balance.String())

		bAfter, err := f.engine.Balance(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, "2.00", bAfter.Sub(bBefore).String())

		aHistory := f.history(t, a)
		require.Len(t, aHistory, 3)
		assert.Equal(t, []transaction.Type{transaction.TypeTransfer, transaction.TypeWithdrawal, transaction.TypeDeposit},
			[]transaction.Type{aHistory[0].Type, aHistory[1].Type, aHistory[2].Type})
		assert.Equal(t, "2.00", aHistory[0].Amount.String())
		assert.Equal(t, "3.00", aHistory[1].Amount.String())
		assert.Equal(t, "10.00", aHistory[2].Amount.String())

		bHistory := f.history(t, b)
		require.Len(t, bHistory, 1)
		assert.Equal(t, transaction.TypeReceived, bHistory[0].Type)
		assert.Equal(t, "k3"+CreditSuffix, bHistory[0].IdempotencyKey)
		assert.Equal(t, transaction.StatusCompleted, bHistory[0].Status)

		f.requireIntegrity(t, a, b)
	})
}

func TestTransferByOwnerID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		b := f.openAccount(t, "b@example.com")

		_, err := f.engine.Fund(ctx, a, money.FromMinor(1000), "seed")
		require.NoError(t, err)

		w, err := f.engine.Transfer(ctx, a, b, money.FromMinor(600), "by-id")
		require.NoError(t, err)
		assert.Equal(t, "4.00", w.Balance.String())

		bal, err := f.engine.Balance(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, "6.00", bal.String())
	})
}

func TestWithdrawInsufficientFundsLeavesStateUntouched(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")

		_, err := f.engine.Fund(ctx, a, money.FromMinor(1000), "k1")
		require.NoError(t, err)
		before := f.wallet(t, a)

		_, err = f.engine.Withdraw(ctx, a, money.FromMinor(1001), "k2")
		require.ErrorIs(t, err, ErrInsufficientFunds)

		after := f.wallet(t, a)
		assert.Equal(t, before.Balance.String(), after.Balance.String())
		assert.Equal(t, before.Version, after.Version)
		assert.Len(t, f.history(t, a), 1)

		_, err = f.st.Transactions().FindByIdempotencyKey(ctx, "k2")
		assert.ErrorIs(t, err, transaction.ErrNotFound, "a rejected key stays usable")

		w, err := f.engine.Withdraw(ctx, a, money.FromMinor(1000), "k2")
		require.NoError(t, err)
		assert.True(t, w.Balance.IsZero())
	})
}

func TestTransferInsufficientFundsMovesNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		b := f.openAccount(t, "b@example.com")

		_, err := f.engine.Transfer(ctx, a, b, money.FromMinor(500), "t1")
		require.ErrorIs(t, err, ErrInsufficientFunds)

		assert.True(t, f.wallet(t, a).Balance.IsZero())
		assert.True(t, f.wallet(t, b).Balance.IsZero())
		assert.Empty(t, f.history(t, a))
		assert.Empty(t, f.history(t, b))
	})
}

func TestSequentialReplayReturnsAlreadyProcessed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		b := f.openAccount(t, "b@example.com")

		_, err := f.engine.Fund(ctx, a, money.FromMinor(2000), "fund-1")
		require.NoError(t, err)
		_, err = f.engine.Fund(ctx, a, money.FromMinor(2000), "fund-1")
		var replay *AlreadyProcessedError
		require.ErrorAs(t, err, &replay)
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
		assert.Equal(t, transaction.StatusCompleted, replay.Status())
		assert.Equal(t, transaction.TypeDeposit, replay.Transaction.Type)

		_, err = f.engine.Transfer(ctx, a, b, money.FromMinor(500), "tr-1")
		require.NoError(t, err)
		_, err = f.engine.Transfer(ctx, a, b, money.FromMinor(500), "tr-1")
		require.ErrorIs(t, err, ErrAlreadyProcessed)

		// A key is global: reusing it for another operation is still a replay.
		_, err = f.engine.Withdraw(ctx, a, money.FromMinor(100), "fund-1")
		require.ErrorIs(t, err, ErrAlreadyProcessed)

		assert.Equal(t, "15.00", f.wallet(t, a).Balance.String())
		assert.Equal(t, "5.00", f.wallet(t, b).Balance.String())
		assert.Len(t, f.history(t, a), 2)
		f.requireIntegrity(t, a, b)
	})
}

func TestConcurrentReplayCommitsOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")

		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int
			replayed  int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.engine.Fund(ctx, a, money.FromMinor(700), "same-key")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					committed++
				case errors.Is(err, ErrAlreadyProcessed):
					replayed++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, committed)
		assert.Equal(t, workers-1, replayed)
		assert.Equal(t, "7.00", f.wallet(t, a).Balance.String())
		assert.Len(t, f.history(t, a), 1)
	})
}

func TestConcurrentTransferReplayCommitsBothLegsOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		b := f.openAccount(t, "b@example.com")
		_, err := f.engine.Fund(ctx, a, money.FromMinor(1000), "seed")
		require.NoError(t, err)

		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			committed int
			replayed  int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.engine.Transfer(ctx, a, "b@example.com", money.FromMinor(300), "same-transfer")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					committed++
				case errors.Is(err, ErrAlreadyProcessed):
					replayed++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, committed)
		assert.Equal(t, workers-1, replayed)
		assert.Equal(t, "7.00", f.wallet(t, a).Balance.String())
		assert.Equal(t, "3.00", f.wallet(t, b).Balance.String())

		var legs []transaction.Transaction
		for _, rec := range f.history(t, a) {
			if rec.Type == transaction.TypeTransfer {
				legs = append(legs, rec)
			}
		}
		received := f.history(t, b)
		require.Len(t, legs, 1)
		require.Len(t, received, 1)
		assert.Equal(t, "same-transfer", legs[0].IdempotencyKey)
		assert.Equal(t, CreditKey("same-transfer"), received[0].IdempotencyKey)
		assert.Equal(t, transaction.TypeReceived, received[0].Type)

		total := f.wallet(t, a).Balance.Add(f.wallet(t, b).Balance)
		assert.Equal(t, "10.00", total.String())
		f.requireIntegrity(t, a, b)
	})
}

func TestHistoryRejectsOverflowingPage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		_, err := f.engine.Fund(ctx, a, money.FromMinor(500), "only")
		require.NoError(t, err)

		_, err = f.engine.History(ctx, a, 1<<62, 4)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		// A far page that still fits is simply empty.
		p, err := f.engine.History(ctx, a, 1<<40, 1<<40)
		require.NoError(t, err)
		assert.Empty(t, p.Items)
		assert.Equal(t, 1, p.Total)
	})
}

func TestConcurrentDepositsDoNotLoseUpdates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")

		const workers = 25
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := f.engine.Fund(ctx, a, money.FromMinor(500), fmt.Sprintf("dep-%d", i)); err != nil {
					t.Errorf("fund %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, money.FromMinor(500*workers).String(), f.wallet(t, a).Balance.String())
		f.requireIntegrity(t, a)
	})
}

func TestOpposingTransfersConserveMoney(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		b := f.openAccount(t, "b@example.com")

		_, err := f.engine.Fund(ctx, a, money.FromMinor(50_000), "seed-a")
		require.NoError(t, err)
		_, err = f.engine.Fund(ctx, b, money.FromMinor(50_000), "seed-b")
		require.NoError(t, err)

		const rounds = 20
		var wg sync.WaitGroup
		for i := 0; i < rounds; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				if _, err := f.engine.Transfer(ctx, a, b, money.FromMinor(700), fmt.Sprintf("ab-%d", i)); err != nil {
					t.Errorf("a->b %d: %v", i, err)
				}
			}(i)
			go func(i int) {
				defer wg.Done()
				if _, err := f.engine.Transfer(ctx, b, a, money.FromMinor(500), fmt.Sprintf("ba-%d", i)); err != nil {
					t.Errorf("b->a %d: %v", i, err)
				}
			}(i)
		}
		wg.Wait()

		aBal, bBal := f.wallet(t, a).Balance, f.wallet(t, b).Balance
		assert.Equal(t, "1000.00", aBal.Add(bBal).String())
		assert.Equal(t, money.FromMinor(50_000-rounds*200).String(), aBal.String())
		f.requireIntegrity(t, a, b)
	})
}

func TestTransferToSelfIsRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		_, err := f.engine.Fund(ctx, a, money.FromMinor(1000), "seed")
		require.NoError(t, err)

		_, err = f.engine.Transfer(ctx, a, "A@example.com", money.FromMinor(500), "self")
		require.ErrorIs(t, err, ErrInvalidArgument)
		assert.Contains(t, err.Error(), "self")

		assert.Equal(t, "10.00", f.wallet(t, a).Balance.String())
		assert.Len(t, f.history(t, a), 1)
	})
}

func TestTransferUnknownRecipient(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		_, err := f.engine.Fund(ctx, a, money.FromMinor(1000), "seed")
		require.NoError(t, err)

		_, err = f.engine.Transfer(ctx, a, "nobody@example.com", money.FromMinor(500), "t1")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = f.engine.Transfer(ctx, a, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", money.FromMinor(500), "t2")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = f.engine.Fund(ctx, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", money.FromMinor(500), "t3")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, wallet.ErrNotFound)
	})
}

func TestInactiveWalletsRejectMutations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		b := f.openAccount(t, "b@example.com")
		_, err := f.engine.Fund(ctx, a, money.FromMinor(2000), "seed")
		require.NoError(t, err)

		f.setStatus(t, b, wallet.StatusSuspended)
		_, err = f.engine.Transfer(ctx, a, b, money.FromMinor(500), "to-suspended")
		require.ErrorIs(t, err, ErrWalletInactive)
		_, err = f.engine.Fund(ctx, b, money.FromMinor(500), "fund-suspended")
		require.ErrorIs(t, err, ErrWalletInactive)

		f.setStatus(t, a, wallet.StatusInactive)
		_, err = f.engine.Withdraw(ctx, a, money.FromMinor(100), "from-inactive")
		require.ErrorIs(t, err, ErrWalletInactive)

		bal, err := f.engine.Balance(ctx, a)
		require.NoError(t, err, "reads stay available")
		assert.Equal(t, "20.00", bal.String())
		assert.Len(t, f.history(t, a), 1)
	})
}

func TestArgumentValidation(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	a := f.openAccount(t, "a@example.com")
	b := f.openAccount(t, "b@example.com")

	cases := []struct {
		name string
		call func() error
	}{
		{"deposit below minimum", func() error {
			_, err := f.engine.Fund(ctx, a, money.FromMinor(499), "k")
			return err
		}},
		{"zero withdrawal", func() error {
			_, err := f.engine.Withdraw(ctx, a, money.Zero, "k")
			return err
		}},
		{"negative withdrawal", func() error {
			_, err := f.engine.Withdraw(ctx, a, money.FromMinor(-100), "k")
			return err
		}},
		{"empty key", func() error {
			_, err := f.engine.Fund(ctx, a, money.FromMinor(500), "  ")
			return err
		}},
		{"reserved separator", func() error {
			_, err := f.engine.Fund(ctx, a, money.FromMinor(500), "k1"+CreditSuffix)
			return err
		}},
		{"key too long", func() error {
			_, err := f.engine.Fund(ctx, a, money.FromMinor(500), strings.Repeat("k", transaction.MaxKeyLength))
			return err
		}},
		{"zero transfer", func() error {
			_, err := f.engine.Transfer(ctx, a, b, money.Zero, "k")
			return err
		}},
		{"empty recipient", func() error {
			_, err := f.engine.Transfer(ctx, a, " ", money.FromMinor(500), "k")
			return err
		}},
		{"balance overflow", func() error {
			_, err := f.engine.Fund(ctx, b, money.MaxBalance.Add(money.FromMinor(1)), "k")
			return err
		}},
		{"page zero", func() error {
			_, err := f.engine.History(ctx, a, 0, 10)
			return err
		}},
		{"limit zero", func() error {
			_, err := f.engine.History(ctx, a, 1, 0)
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.call(), ErrInvalidArgument)
		})
	}
	assert.Empty(t, f.history(t, a))
}

func TestHistoryPagination(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")

		for i := 0; i < 15; i++ {
			_, err := f.engine.Fund(ctx, a, money.FromMinor(int64(500+i)), fmt.Sprintf("p-%02d", i))
			require.NoError(t, err)
		}

		first, err := f.engine.History(ctx, a, 1, 10)
		require.NoError(t, err)
		assert.Len(t, first.Items, 10)
		assert.Equal(t, 15, first.Total)
		assert.Equal(t, 2, first.TotalPages)
		assert.Equal(t, "p-14", first.Items[0].IdempotencyKey, "newest first")

		second, err := f.engine.History(ctx, a, 2, 10)
		require.NoError(t, err)
		assert.Len(t, second.Items, 5)
		assert.Equal(t, 2, second.TotalPages)
		assert.Equal(t, "p-00", second.Items[4].IdempotencyKey)

		beyond, err := f.engine.History(ctx, a, 3, 10)
		require.NoError(t, err)
		assert.Empty(t, beyond.Items)
		assert.Equal(t, 15, beyond.Total)
	})
}

func TestHistoryClampsLimit(t *testing.T) {
	f := newFixture(t, store.NewMemory(), WithMaxPageLimit(5))
	ctx := context.Background()
	a := f.openAccount(t, "a@example.com")
	for i := 0; i < 7; i++ {
		_, err := f.engine.Fund(ctx, a, money.FromMinor(500), fmt.Sprintf("c-%d", i))
		require.NoError(t, err)
	}

	p, err := f.engine.History(ctx, a, 1, 50)
	require.NoError(t, err)
	assert.Len(t, p.Items, 5)
	assert.Equal(t, 5, p.Limit)
	assert.Equal(t, 2, p.TotalPages)
}

func TestCommitFailureRollsBackBothLegs(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		faulty := newFaultyStore(st)
		f := newFixture(t, faulty)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")
		b := f.openAccount(t, "b@example.com")
		_, err := f.engine.Fund(ctx, a, money.FromMinor(1000), "seed")
		require.NoError(t, err)

		boom := errors.New("disk full")
		faulty.state.failAppend = func(rec transaction.Transaction) error {
			if rec.Type == transaction.TypeReceived {
				return boom
			}
			return nil
		}

		_, err = f.engine.Transfer(ctx, a, b, money.FromMinor(500), "doomed")
		require.ErrorIs(t, err, ErrCommitFailed)
		require.ErrorIs(t, err, boom)

		assert.Equal(t, "10.00", f.wallet(t, a).Balance.String())
		assert.True(t, f.wallet(t, b).Balance.IsZero())
		_, err = st.Transactions().FindByIdempotencyKey(ctx, "doomed")
		assert.ErrorIs(t, err, transaction.ErrNotFound)

		// The caller retries with the same key once storage recovers.
		faulty.state.failAppend = nil
		w, err := f.engine.Transfer(ctx, a, b, money.FromMinor(500), "doomed")
		require.NoError(t, err)
		assert.Equal(t, "5.00", w.Balance.String())
		f.requireIntegrity(t, a, b)
	})
}

func TestKeyConstraintCatchesRaceMissedByLookup(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		faulty := newFaultyStore(st)
		f := newFixture(t, faulty)
		ctx := context.Background()
		a := f.openAccount(t, "a@example.com")

		_, err := f.engine.Fund(ctx, a, money.FromMinor(800), "raced")
		require.NoError(t, err)

		// Simulate the lookup running before the first commit became visible.
		faulty.state.hiddenLookups = 1
		_, err = f.engine.Fund(ctx, a, money.FromMinor(800), "raced")

		var replay *AlreadyProcessedError
		require.ErrorAs(t, err, &replay)
		assert.Equal(t, "raced", replay.Transaction.IdempotencyKey)
		assert.Equal(t, "8.00", f.wallet(t, a).Balance.String())
	})
}

func TestCancelledContextCommitsNothing(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	a := f.openAccount(t, "a@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Fund(ctx, a, money.FromMinor(500), "cancelled")
	require.Error(t, err)

	assert.True(t, f.wallet(t, a).Balance.IsZero())
	assert.Empty(t, f.history(t, a))
}

func TestLedgerIntegrityUnderRandomOperations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st store.Store) {
		f := newFixture(t, st)
		ctx := context.Background()
		owners := []string{
			f.openAccount(t, "a@example.com"),
			f.openAccount(t, "b@example.com"),
			f.openAccount(t, "c@example.com"),
		}

		rng := rand.New(rand.NewSource(42))
		deposited := money.Zero
		withdrawn := money.Zero
		for i := 0; i < 60; i++ {
			owner := owners[rng.Intn(len(owners))]
			amount := money.FromMinor(int64(500 + rng.Intn(2000)))
			key := fmt.Sprintf("op-%d", i)

			var err error
			switch rng.Intn(3) {
			case 0:
				_, err = f.engine.Fund(ctx, owner, amount, key)
				if err == nil {
					deposited = deposited.Add(amount)
				}
			case 1:
				_, err = f.engine.Withdraw(ctx, owner, amount, key)
				if err == nil {
					withdrawn = withdrawn.Add(amount)
				}
			default:
				other := owners[rng.Intn(len(owners))]
				_, err = f.engine.Transfer(ctx, owner, other, amount, key)
			}
			if err != nil && !errors.Is(err, ErrInsufficientFunds) && !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("operation %d: %v", i, err)
			}
		}

		total := money.Zero
		for _, owner := range owners {
			total = total.Add(f.wallet(t, owner).Balance)
			assert.False(t, f.wallet(t, owner).Balance.IsNegative())
		}
		assert.Equal(t, deposited.Sub(withdrawn).String(), total.String())
		f.requireIntegrity(t, owners...)
	})
}

func TestReconcileReportsDrift(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	ctx := context.Background()
	a := f.openAccount(t, "a@example.com")
	_, err := f.engine.Fund(ctx, a, money.FromMinor(1000), "seed")
	require.NoError(t, err)

	w := f.wallet(t, a)
	require.NoError(t, f.st.WithinTx(ctx, func(tx store.Store) error {
		w.Balance = w.Balance.Add(money.FromMinor(1))
		_, err := tx.Wallets().Save(ctx, w)
		return err
	}))

	rec, err := f.engine.Reconcile(ctx, a)
	require.NoError(t, err)
	assert.False(t, rec.Balanced())
	assert.Equal(t, "0.01", rec.Drift.String())
	assert.Equal(t, "10.00", rec.LedgerNet.String())
}

func TestEngineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewLedger(reg)
	f := newFixture(t, store.NewMemory(), WithMetrics(m))
	ctx := context.Background()
	a := f.openAccount(t, "a@example.com")

	_, _ = f.engine.Fund(ctx, a, money.FromMinor(1000), "m1")
	_, _ = f.engine.Fund(ctx, a, money.FromMinor(1000), "m1")
	_, _ = f.engine.Withdraw(ctx, a, money.FromMinor(5000), "m2")

	ops := m.Operations()
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("fund", metrics.OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("fund", metrics.OutcomeAlreadyProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("withdraw", metrics.OutcomeInsufficientFunds)))
}
