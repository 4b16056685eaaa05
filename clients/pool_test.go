package clients_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/payrail/clients"
	"github.com/vitwit/payrail/clients/clienttest"
	"github.com/vitwit/payrail/registry"
	paytypes "github.com/vitwit/payrail/types"
)

func TestPool_DialsOncePerChain(t *testing.T) {
	pool := clients.NewPool(registry.New(nil))

	var (
		mu    sync.Mutex
		dials int
		urls  []string
	)
	pool.SetDialers(func(_ context.Context, chain paytypes.Chain, rpcURL string, opts ...clients.ClientOption) (clients.EVMChain, error) {
		mu.Lock()
		dials++
		urls = append(urls, rpcURL)
		mu.Unlock()
		return clients.NewEVMClientWithBackend(chain, clienttest.NewBackend(84532), opts...), nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := pool.EVM(context.Background(), paytypes.ChainBaseSepolia)
			assert.NoError(t, err)
			assert.Equal(t, paytypes.ChainBaseSepolia, c.Chain())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, dials)
	assert.Equal(t, []string{"https://sepolia.base.org"}, urls)
}

func TestPool_MissingEndpoint(t *testing.T) {
	pool := clients.NewPool(registry.New(nil))

	_, err := pool.EVM(context.Background(), paytypes.ChainBaseMainnet)
	require.Error(t, err)
	assert.Equal(t, paytypes.ErrConfigError, paytypes.ErrorCode(err))
}

func TestPool_WrongFamily(t *testing.T) {
	pool := clients.NewPool(registry.New(nil))

	_, err := pool.EVM(context.Background(), paytypes.ChainSolanaNet)
	assert.Equal(t, paytypes.ErrUnsupportedChain, paytypes.ErrorCode(err))

	_, err = pool.Solana(paytypes.ChainBaseSepolia)
	assert.Equal(t, paytypes.ErrUnsupportedChain, paytypes.ErrorCode(err))
}

func TestPool_RegisteredAdapterWins(t *testing.T) {
	pool := clients.NewPool(nil)
	sol := clienttest.NewSolana(paytypes.ChainSolanaNet)
	pool.RegisterSolana(paytypes.ChainSolanaNet, sol)

	got, err := pool.Solana(paytypes.ChainSolanaNet)
	require.NoError(t, err)
	assert.Same(t, sol, got)
}
