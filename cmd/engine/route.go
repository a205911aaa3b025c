package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yieldRouter/internal/config"
	"yieldRouter/internal/dex"
	"yieldRouter/internal/model"
	"yieldRouter/internal/registry"
	"yieldRouter/internal/route"
)

type routeHop struct {
	Pair       string `json:"pair"`
	TokenIn    string `json:"token_in"`
	TokenOut   string `json:"token_out"`
	ReserveIn  string `json:"reserve_in"`
	ReserveOut string `json:"reserve_out"`
}

type routeOutput struct {
	Block     uint64     `json:"block"`
	Platform  string     `json:"platform"`
	Direction string     `json:"direction"`
	Path      []string   `json:"path"`
	AmountIn  string     `json:"amount_in"`
	AmountOut string     `json:"amount_out"`
	Hops      []routeHop `json:"hops"`
}

func runRoute(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	bc, err := rt.selectBlockchain(cmd)
	if err != nil {
		return err
	}

	platformName, _ := cmd.Flags().GetString("platform")
	platform, err := model.ParsePlatform(platformName)
	if err != nil {
		return err
	}
	if !bc.HasPlatform(platform) {
		return fmt.Errorf("platform %s is not enabled on blockchain %d", platform, bc.ID)
	}
	exactOut, _ := cmd.Flags().GetBool("exact-out")
	direction := model.ExactIn
	if exactOut {
		direction = model.ExactOut
	}

	client, err := rt.dial(ctx, bc)
	if err != nil {
		return err
	}

	resolver := dex.NewMetadataResolver(client, nil, rt.logger)
	tokens, err := resolver.ResolveAll(ctx, bc.Tokens)
	if err != nil {
		return err
	}
	set := model.NewTokenSet(tokens)

	fromKey, _ := cmd.Flags().GetString("from")
	toKey, _ := cmd.Flags().GetString("to")
	source, err := lookupToken(ctx, set, resolver, fromKey)
	if err != nil {
		return err
	}
	dest, err := lookupToken(ctx, set, resolver, toKey)
	if err != nil {
		return err
	}

	amountValue, _ := cmd.Flags().GetString("amount")
	amountToken := source
	if direction == model.ExactOut {
		amountToken = dest
	}
	amount, err := amountToken.ParseAmount(amountValue)
	if err != nil {
		return err
	}

	universe := tokens
	if _, ok := set.Lookup(source.Address.Hex()); !ok {
		universe = append(universe, source)
	}
	if _, ok := set.Lookup(dest.Address.Hex()); !ok {
		universe = append(universe, dest)
	}

	provider := dex.NewProvider(client, registry.NewStatic(bc.Contracts), dex.ProviderConfig{
		BlockchainID: bc.ID,
		Tokens:       universe,
	}, rt.logger)

	optimizer := route.NewOptimizer(provider, route.Options{
		BaseTokens:       baseTokens(bc, set),
		MaxHops:          rt.cfg.Routing.MaxHops,
		SafetyMarginBps:  rt.cfg.Routing.SafetyMarginBps,
		HopsThresholdBps: rt.cfg.Routing.HopsThresholdBps,
	}, rt.logger)

	// Load first so the route snapshot is labelled with the block its reserves were read at.
	if _, err := provider.GetPairs(ctx, bc.ID, platform); err != nil {
		return err
	}
	head, _ := provider.Block(platform)
	snapshot, err := optimizer.Snapshot(ctx, bc.ID, platform, head)
	if err != nil {
		return err
	}

	best, err := optimizer.FindBestRoute(ctx, route.Request{
		Source:       source,
		Dest:         dest,
		Platform:     platform,
		Amount:       amount,
		Direction:    direction,
		BlockchainID: bc.ID,
		Options:      route.Options{Snapshot: snapshot},
	})
	if err != nil {
		return err
	}

	rt.logger.Info("route found",
		zap.Stringer("route", best),
		zap.Uint64("block", head),
		zap.Int("pairs", snapshot.Len()),
	)
	return printJSON(describeRoute(best, head))
}

func lookupToken(ctx context.Context, set *model.TokenSet, resolver *dex.MetadataResolver, key string) (model.Token, error) {
	if key == "" {
		return model.Token{}, fmt.Errorf("token is required")
	}
	if token, ok := set.Lookup(key); ok {
		return token, nil
	}
	if !common.IsHexAddress(key) {
		return model.Token{}, fmt.Errorf("unknown token %q", key)
	}
	return resolver.Resolve(ctx, model.Token{Address: common.HexToAddress(key)})
}

func baseTokens(bc config.Blockchain, set *model.TokenSet) []model.Token {
	out := make([]model.Token, 0, len(bc.Base))
	for _, token := range bc.Base {
		if resolved, ok := set.Lookup(token.Address.Hex()); ok {
			out = append(out, resolved)
		}
	}
	return out
}

func describeRoute(r model.Route, block uint64) routeOutput {
	out := routeOutput{
		Block:     block,
		Platform:  r.Platform.String(),
		Direction: r.Direction.String(),
		AmountIn:  r.Input().FormatAmount(r.AmountIn),
		AmountOut: r.Output().FormatAmount(r.AmountOut),
	}
	for _, token := range r.Path {
		out.Path = append(out.Path, token.String())
	}
	for i, pair := range r.Pairs {
		in, outToken := r.Path[i], r.Path[i+1]
		reserveIn, reserveOut, _ := pair.Reserves(in.Address, outToken.Address)
		out.Hops = append(out.Hops, routeHop{
			Pair:       pair.Address.Hex(),
			TokenIn:    in.String(),
			TokenOut:   outToken.String(),
			ReserveIn:  in.FormatAmount(reserveIn),
			ReserveOut: outToken.FormatAmount(reserveOut),
		})
	}
	return out
}

var _ route.PairSource = (*dex.Provider)(nil)
