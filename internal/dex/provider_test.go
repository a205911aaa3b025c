package dex

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"yieldRouter/internal/model"
	"yieldRouter/internal/multicall"
	"yieldRouter/internal/registry"
)

const testBlockchainID = 56

var (
	aggregatorAddr = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")
	factoryAddr    = common.HexToAddress("0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73")

	wbnb = model.Token{Address: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), Symbol: "WBNB", Decimals: 18}
	busd = model.Token{Address: common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56"), Symbol: "BUSD", Decimals: 18}
	usdt = model.Token{Address: common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"), Symbol: "USDT", Decimals: 18}
)

type fakePair struct {
	token0   common.Address
	reserve0 *big.Int
	reserve1 *big.Int
	broken   bool
}

// fakeDexChain answers aggregate3 reads against an in-memory factory, its
// pairs and ERC20 tokens.
type fakeDexChain struct {
	t *testing.T

	mu       sync.Mutex
	calls    int
	failNext int
	head     uint64
	blocks   []uint64
	factory  map[model.PairKey]common.Address
	pairs    map[common.Address]fakePair
	erc20    map[common.Address]model.Token
}

func newFakeDexChain(t *testing.T) *fakeDexChain {
	return &fakeDexChain{
		t:       t,
		head:    1000,
		factory: make(map[model.PairKey]common.Address),
		pairs:   make(map[common.Address]fakePair),
		erc20:   make(map[common.Address]model.Token),
	}
}

func (c *fakeDexChain) addPair(address common.Address, a, b model.Token, reserveA, reserveB *big.Int) {
	c.factory[model.NewPairKey(a.Address, b.Address)] = address
	key := model.NewPairKey(a.Address, b.Address)
	if key.Lo == a.Address {
		c.pairs[address] = fakePair{token0: a.Address, reserve0: reserveA, reserve1: reserveB}
	} else {
		c.pairs[address] = fakePair{token0: b.Address, reserve0: reserveB, reserve1: reserveA}
	}
}

func (c *fakeDexChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	head := c.head
	// Every query sees a newer head, as on a live chain.
	c.head++
	return head, nil
}

func (c *fakeDexChain) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if *msg.To == aggregatorAddr {
		if block == nil {
			c.blocks = append(c.blocks, 0)
		} else {
			c.blocks = append(c.blocks, block.Uint64())
		}
	}
	if c.failNext > 0 {
		c.failNext--
		return nil, errors.New("connection reset")
	}

	if *msg.To != aggregatorAddr {
		return c.erc20Call(*msg.To, msg.Data)
	}
	calls, err := multicall.DecodeAggregate3Calls(msg.Data)
	require.NoError(c.t, err)

	results := make([]multicall.Result, len(calls))
	for i, call := range calls {
		data, ok := c.dispatch(call)
		results[i] = multicall.Result{Success: ok, ReturnData: data}
	}
	return multicall.EncodeAggregate3Results(results)
}

func (c *fakeDexChain) dispatch(call multicall.Call3) ([]byte, bool) {
	factoryABI, _ := V2FactoryABI()
	pairABI, _ := V2PairABI()

	if call.Target == factoryAddr {
		method := factoryABI.Methods["getPair"]
		args, err := method.Inputs.Unpack(call.CallData[4:])
		require.NoError(c.t, err)
		pair := c.factory[model.NewPairKey(args[0].(common.Address), args[1].(common.Address))]
		out, err := method.Outputs.Pack(pair)
		require.NoError(c.t, err)
		return out, true
	}

	pair, ok := c.pairs[call.Target]
	if !ok || pair.broken {
		return []byte{}, false
	}
	switch {
	case bytes.Equal(call.CallData, pairABI.Methods["token0"].ID):
		out, err := pairABI.Methods["token0"].Outputs.Pack(pair.token0)
		require.NoError(c.t, err)
		return out, true
	case bytes.Equal(call.CallData, pairABI.Methods["getReserves"].ID):
		out, err := pairABI.Methods["getReserves"].Outputs.Pack(pair.reserve0, pair.reserve1, uint32(1700000000))
		require.NoError(c.t, err)
		return out, true
	}
	return []byte{}, false
}

func (c *fakeDexChain) erc20Call(target common.Address, data []byte) ([]byte, error) {
	token, ok := c.erc20[target]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	stringABI, _ := erc20StringABI.get()
	switch {
	case bytes.Equal(data, stringABI.Methods["decimals"].ID):
		return stringABI.Methods["decimals"].Outputs.Pack(token.Decimals)
	case bytes.Equal(data, stringABI.Methods["symbol"].ID):
		return stringABI.Methods["symbol"].Outputs.Pack(token.Symbol)
	}
	return nil, errors.New("execution reverted")
}

func testRegistry() *registry.Static {
	return registry.NewStatic([]registry.ContractRef{
		{BlockchainID: testBlockchainID, Type: model.ContractMulticall, Name: "multicall3", Address: aggregatorAddr},
		{BlockchainID: testBlockchainID, Platform: model.PlatformPancakeSwap, Type: model.ContractFactory, Name: "factory", Address: factoryAddr},
	})
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestProviderLoadsOrientedPairs(t *testing.T) {
	chain := newFakeDexChain(t)
	bnbBusd := common.HexToAddress("0x58F876857a02D6762E0101bb5C46A8c1ED44Dc16")
	busdUsdt := common.HexToAddress("0x7EFaEf62fDdCCa950418312c6C91Aef321375A00")
	chain.addPair(bnbBusd, wbnb, busd, eth(1000), eth(300000))
	chain.addPair(busdUsdt, busd, usdt, eth(5000000), eth(5000000))

	p := NewProvider(chain, testRegistry(), ProviderConfig{BlockchainID: testBlockchainID, Tokens: []model.Token{wbnb, busd, usdt}}, nil)

	pairs, err := p.GetPairs(context.Background(), testBlockchainID, model.PlatformPancakeSwap)
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	pair, err := p.GetPair(context.Background(), model.PlatformPancakeSwap, busd.Address, wbnb.Address)
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.Equal(t, bnbBusd, pair.Address)
	reserveIn, reserveOut, ok := pair.Reserves(wbnb.Address, busd.Address)
	require.True(t, ok)
	require.Equal(t, eth(1000), reserveIn)
	require.Equal(t, eth(300000), reserveOut)

	missing, err := p.GetPair(context.Background(), model.PlatformPancakeSwap, wbnb.Address, usdt.Address)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestProviderCachesSnapshot(t *testing.T) {
	chain := newFakeDexChain(t)
	chain.addPair(common.HexToAddress("0x01"), wbnb, busd, eth(10), eth(3000))
	p := NewProvider(chain, testRegistry(), ProviderConfig{BlockchainID: testBlockchainID, Tokens: []model.Token{wbnb, busd}}, nil)
	ctx := context.Background()

	first, err := p.GetPairs(ctx, testBlockchainID, model.PlatformPancakeSwap)
	require.NoError(t, err)
	calls := chain.calls

	first[0].ReserveA.SetInt64(1)
	second, err := p.GetPairs(ctx, testBlockchainID, model.PlatformPancakeSwap)
	require.NoError(t, err)
	require.Equal(t, calls, chain.calls)
	require.Equal(t, eth(10), second[0].ReserveA)

	p.Invalidate(model.PlatformPancakeSwap)
	_, err = p.GetPairs(ctx, testBlockchainID, model.PlatformPancakeSwap)
	require.NoError(t, err)
	require.Greater(t, chain.calls, calls)
}

func TestProviderSkipsBrokenAndEmptyPairs(t *testing.T) {
	chain := newFakeDexChain(t)
	broken := common.HexToAddress("0x02")
	empty := common.HexToAddress("0x03")
	chain.addPair(common.HexToAddress("0x01"), wbnb, busd, eth(10), eth(3000))
	chain.addPair(broken, busd, usdt, eth(10), eth(10))
	chain.addPair(empty, wbnb, usdt, big.NewInt(0), eth(10))
	pair := chain.pairs[broken]
	pair.broken = true
	chain.pairs[broken] = pair

	p := NewProvider(chain, testRegistry(), ProviderConfig{BlockchainID: testBlockchainID, Tokens: []model.Token{wbnb, busd, usdt}}, nil)
	pairs, err := p.GetPairs(context.Background(), testBlockchainID, model.PlatformPancakeSwap)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	require.Equal(t, common.HexToAddress("0x01"), pairs[0].Address)
}

func TestProviderRetriesTransientFailures(t *testing.T) {
	chain := newFakeDexChain(t)
	chain.addPair(common.HexToAddress("0x01"), wbnb, busd, eth(10), eth(3000))
	chain.failNext = 2

	p := NewProvider(chain, testRegistry(), ProviderConfig{
		BlockchainID: testBlockchainID,
		Tokens:       []model.Token{wbnb, busd},
		MaxRetries:   3,
		RetryBackoff: 1,
	}, nil)
	pairs, err := p.GetPairs(context.Background(), testBlockchainID, model.PlatformPancakeSwap)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
}

func TestProviderRejectsOtherBlockchain(t *testing.T) {
	p := NewProvider(newFakeDexChain(t), testRegistry(), ProviderConfig{BlockchainID: testBlockchainID}, nil)
	_, err := p.GetPairs(context.Background(), 1, model.PlatformPancakeSwap)
	require.Error(t, err)
}

func TestProviderRequiresFactory(t *testing.T) {
	p := NewProvider(newFakeDexChain(t), testRegistry(), ProviderConfig{BlockchainID: testBlockchainID, Tokens: []model.Token{wbnb, busd}}, nil)
	_, err := p.GetPairs(context.Background(), testBlockchainID, model.PlatformBiSwap)
	require.ErrorIs(t, err, registry.ErrContractNotFound)
}

func TestMetadataResolverFillsMissingFields(t *testing.T) {
	chain := newFakeDexChain(t)
	cake := common.HexToAddress("0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82")
	chain.erc20[cake] = model.Token{Address: cake, Symbol: "Cake", Decimals: 18}

	r := NewMetadataResolver(chain, nil, nil)
	token, err := r.Resolve(context.Background(), model.Token{Address: cake})
	require.NoError(t, err)
	require.Equal(t, "Cake", token.Symbol)
	require.Equal(t, uint8(18), token.Decimals)

	calls := chain.calls
	_, err = r.Resolve(context.Background(), model.Token{Address: cake})
	require.NoError(t, err)
	require.Equal(t, calls, chain.calls)
}

func TestMetadataResolverFailsWithoutDecimals(t *testing.T) {
	r := NewMetadataResolver(newFakeDexChain(t), nil, nil)
	r.maxRetries = 0
	_, err := r.Resolve(context.Background(), model.Token{Address: common.HexToAddress("0x04")})
	require.Error(t, err)
}

func TestProviderPinsSnapshotToOneBlock(t *testing.T) {
	chain := newFakeDexChain(t)
	chain.addPair(common.HexToAddress("0x01"), wbnb, busd, eth(10), eth(3000))
	chain.addPair(common.HexToAddress("0x02"), busd, usdt, eth(10), eth(10))
	chain.addPair(common.HexToAddress("0x03"), wbnb, usdt, eth(10), eth(3000))

	p := NewProvider(chain, testRegistry(), ProviderConfig{
		BlockchainID: testBlockchainID,
		Tokens:       []model.Token{wbnb, busd, usdt},
		ChunkSize:    1,
	}, nil)

	_, ok := p.Block(model.PlatformPancakeSwap)
	require.False(t, ok)

	pairs, err := p.GetPairs(context.Background(), testBlockchainID, model.PlatformPancakeSwap)
	require.NoError(t, err)
	require.Len(t, pairs, 3)

	block, ok := p.Block(model.PlatformPancakeSwap)
	require.True(t, ok)
	require.Equal(t, uint64(1000), block)
	require.Greater(t, len(chain.blocks), 3)
	for _, b := range chain.blocks {
		require.Equal(t, block, b)
	}

	p.Invalidate(model.PlatformPancakeSwap)
	_, ok = p.Block(model.PlatformPancakeSwap)
	require.False(t, ok)
	_, err = p.GetPairs(context.Background(), testBlockchainID, model.PlatformPancakeSwap)
	require.NoError(t, err)
	block, _ = p.Block(model.PlatformPancakeSwap)
	require.Equal(t, uint64(1001), block)
}
