package facilitator

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/licode-labs/facilitator/internal/chain"
)

const (
	stablecoinDecimals = 6
	tokenDecimals      = 18
)

// Stats is the read-only aggregate served to clients: supply and cap state
// plus the signing-domain parameters a wallet needs to construct a valid
// authorization.
type Stats struct {
	TokenAddress      string  `json:"tokenAddress"`
	Treasury          string  `json:"treasury"`
	Distributor       string  `json:"distributor"`
	Owner             string  `json:"owner"`
	ChainID           int64   `json:"chainId"`
	UsdcAddress       string  `json:"usdcAddress"`
	TotalSupplyTokens string  `json:"totalSupplyTokens"`
	MintedTokens      string  `json:"mintedTokens"`
	RemainingTokens   string  `json:"remainingTokens"`
	MintedPercent     float64 `json:"mintedPercent"`
	UsdcCollected     string  `json:"usdcCollected"`
	TotalUsdcCap      string  `json:"totalUsdcCap"`
	PerWalletUsdcCap  string  `json:"perWalletUsdcCap"`
	MintUnitUsdc      string  `json:"mintUnitUsdc"`
	MintUnitUsdc6     string  `json:"mintUnitUsdc6"`

	// Authorization domain parameters.
	UsdcName          string `json:"usdcName"`
	UsdcVersion       string `json:"usdcVersion"`
	AuthWindowSeconds int64  `json:"authWindowSeconds"`
	ClockDriftSeconds int64  `json:"clockDriftSeconds"`
}

// Stats reads the reward contract's supply and cap state. No mutation.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	totalSupply, err := s.readStat(ctx, chain.FunctionTotalSupply)
	if err != nil {
		return nil, err
	}
	contractBalance, err := s.readStat(ctx, chain.FunctionBalanceOf, common.HexToAddress(s.cfg.TokenAddress))
	if err != nil {
		return nil, err
	}
	collected, err := s.readStat(ctx, chain.FunctionUsdcCounted)
	if err != nil {
		return nil, err
	}
	totalCap, err := s.readStat(ctx, chain.FunctionTotalCap)
	if err != nil {
		return nil, err
	}
	perWalletCap, err := s.readStat(ctx, chain.FunctionPerWalletCap)
	if err != nil {
		return nil, err
	}
	distributor, err := s.readAddress(ctx, chain.FunctionDistributor)
	if err != nil {
		return nil, err
	}
	owner, err := s.readAddress(ctx, chain.FunctionOwner)
	if err != nil {
		return nil, err
	}

	minted := new(big.Int).Sub(totalSupply, contractBalance)
	supplyNonZero := totalSupply
	if supplyNonZero.Sign() == 0 {
		supplyNonZero = big.NewInt(1)
	}
	mintedBps := new(big.Int).Div(new(big.Int).Mul(minted, big.NewInt(10000)), supplyNonZero)

	return &Stats{
		TokenAddress:      s.cfg.TokenAddress,
		Treasury:          s.cfg.Treasury,
		Distributor:       distributor,
		Owner:             owner,
		ChainID:           s.cfg.ChainID,
		UsdcAddress:       s.cfg.StablecoinAddress,
		TotalSupplyTokens: formatUnits(totalSupply, tokenDecimals),
		MintedTokens:      formatUnits(minted, tokenDecimals),
		RemainingTokens:   formatUnits(contractBalance, tokenDecimals),
		MintedPercent:     float64(mintedBps.Int64()) / 100,
		UsdcCollected:     formatUnits(collected, stablecoinDecimals),
		TotalUsdcCap:      formatUnits(totalCap, stablecoinDecimals),
		PerWalletUsdcCap:  formatUnits(perWalletCap, stablecoinDecimals),
		MintUnitUsdc:      formatUnits(s.cfg.MintUnit, stablecoinDecimals),
		MintUnitUsdc6:     s.cfg.MintUnit.String(),
		UsdcName:          s.cfg.StablecoinName,
		UsdcVersion:       s.cfg.StablecoinVersion,
		AuthWindowSeconds: int64(s.cfg.AuthWindow.Seconds()),
		ClockDriftSeconds: int64(s.cfg.ClockDrift.Seconds()),
	}, nil
}

func (s *Service) readStat(ctx context.Context, function string, args ...interface{}) (*big.Int, error) {
	result, err := s.gw.ReadContract(ctx, s.cfg.TokenAddress, chain.StatsABI, function, args...)
	if err != nil {
		return nil, badGateway(CodeChainUnavailable, "failed to read "+function)
	}
	value, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from %s", function)
	}
	return value, nil
}

func (s *Service) readAddress(ctx context.Context, function string) (string, error) {
	result, err := s.gw.ReadContract(ctx, s.cfg.TokenAddress, chain.StatsABI, function)
	if err != nil {
		return "", badGateway(CodeChainUnavailable, "failed to read "+function)
	}
	addr, ok := result.(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected result type from %s", function)
	}
	return addr.Hex(), nil
}
