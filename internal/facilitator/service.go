// Package facilitator coordinates payment verification, replay protection
// and reward distribution. It owns the two request flows: direct payment
// verification and gas-less authorization processing.
package facilitator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/licode-labs/facilitator/internal/authz"
	"github.com/licode-labs/facilitator/internal/chain"
	"github.com/licode-labs/facilitator/internal/config"
	"github.com/licode-labs/facilitator/internal/distribute"
	"github.com/licode-labs/facilitator/internal/metrics"
	"github.com/licode-labs/facilitator/internal/payment"
	"github.com/licode-labs/facilitator/internal/replay"
)

// Service composes the verifier, replay store, chain gateway and
// distribution executor into the facilitator's request flows.
type Service struct {
	cfg      *config.Config
	gw       chain.Gateway
	store    replay.Store
	verifier *authz.Verifier
	exec     *distribute.Executor
	log      *zap.Logger
	now      func() time.Time
}

// New builds a Service. All collaborators are injected; cfg is immutable.
func New(
	cfg *config.Config,
	gw chain.Gateway,
	store replay.Store,
	verifier *authz.Verifier,
	exec *distribute.Executor,
	log *zap.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		gw:       gw,
		store:    store,
		verifier: verifier,
		exec:     exec,
		log:      log,
		now:      time.Now,
	}
}

// VerifyPayment handles the direct-payment flow: inspect a finalized
// stablecoin transfer to the treasury and distribute the reward once.
// Replaying a processed transaction hash returns the original outcome
// without new chain work.
func (s *Service) VerifyPayment(ctx context.Context, txHash, user, origin string) (*ProcessedPayment, error) {
	if txHash == "" || user == "" {
		return nil, badRequest(CodeMissingArgs, "missing args")
	}
	if !common.IsHexAddress(user) {
		return nil, badRequest(CodeInvalidAddress, "invalid user address")
	}

	key := paymentKey(txHash)
	if raw, found, err := s.store.Read(ctx, key); err != nil {
		s.log.Error("replay store read failed", zap.String("tx", txHash), zap.Error(err))
	} else if found {
		var cached ProcessedPayment
		if err := json.Unmarshal(raw, &cached); err == nil {
			// A record without a distribution hash is a live reservation.
			if cached.DistributorTx == "" {
				metrics.VerificationsTotal.WithLabelValues("conflict").Inc()
				return nil, conflict(CodeAlreadyProcessing, "payment already processing")
			}
			metrics.ReplayHitsTotal.Inc()
			s.log.Info("verify replayed from store", zap.String("tx", txHash))
			return &cached, nil
		}
	}

	rcpt, err := s.gw.TransactionReceipt(ctx, txHash)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues("chain_unavailable").Inc()
		return nil, badGateway(CodeChainUnavailable, "failed to fetch transaction receipt")
	}
	if !rcpt.Succeeded() {
		metrics.VerificationsTotal.WithLabelValues("not_confirmed").Inc()
		return nil, badRequest(CodeTxNotConfirmed, "tx not confirmed")
	}

	paid := payment.CreditedAmount(rcpt, s.cfg.StablecoinAddress, user, s.cfg.Treasury)
	required := s.cfg.MintUnit
	if paid.Cmp(required) < 0 {
		metrics.VerificationsTotal.WithLabelValues("insufficient").Inc()
		return nil, badRequest(CodeInsufficientPaid, "insufficient payment").
			WithDetail("paid", formatUnits(paid, stablecoinDecimals)).
			WithDetail("required", formatUnits(required, stablecoinDecimals))
	}

	unlock := s.exec.LockPayer(user)
	defer unlock()

	if err := s.exec.CheckWalletCap(ctx, user, required); err != nil {
		if errors.Is(err, distribute.ErrWalletCapReached) {
			metrics.VerificationsTotal.WithLabelValues("cap_reached").Inc()
			return nil, badRequest(CodeWalletCapReached, "wallet cap reached")
		}
		metrics.VerificationsTotal.WithLabelValues("chain_unavailable").Inc()
		return nil, badGateway(CodeChainUnavailable, "failed to read wallet cap")
	}

	// Atomically claim the hash before any chain write, so a concurrent
	// duplicate cannot distribute the same payment twice. The reservation
	// carries no distribution hash until the work completes.
	record := &ProcessedPayment{
		User:      user,
		Amount:    required.String(),
		PaymentTx: txHash,
		Timestamp: s.now().Unix(),
		Origin:    origin,
	}
	raw, _ := json.Marshal(record)
	reserved, err := s.store.Reserve(ctx, key, raw, s.cfg.RecordTTL)
	if err != nil {
		return nil, badGateway(CodeChainUnavailable, "failed to reserve payment")
	}
	if !reserved {
		// Lost the race to a concurrent identical request.
		if raw, found, err := s.store.Read(ctx, key); err == nil && found {
			var winner ProcessedPayment
			if err := json.Unmarshal(raw, &winner); err == nil && winner.DistributorTx != "" {
				metrics.ReplayHitsTotal.Inc()
				return &winner, nil
			}
		}
		metrics.VerificationsTotal.WithLabelValues("conflict").Inc()
		return nil, conflict(CodeAlreadyProcessing, "payment already processing")
	}

	// The distribution must run to completion even if the client disconnects.
	dctx := context.WithoutCancel(ctx)
	distTx, err := s.exec.Distribute(dctx, user, required)
	if err != nil {
		// Nothing was credited; release the claim so the payment may retry.
		if rmErr := s.store.Remove(dctx, key); rmErr != nil {
			s.log.Error("failed to release payment reservation", zap.String("tx", txHash), zap.Error(rmErr))
		}
		metrics.VerificationsTotal.WithLabelValues("distribution_failed").Inc()
		s.log.Error("distribution failed",
			zap.String("user", user),
			zap.String("paymentTx", txHash),
			zap.String("distributorTx", distTx),
			zap.Error(err))
		f := NewFault(http.StatusInternalServerError, CodeDistributionFailed, "distribution failed").
			WithDetail("paymentTx", txHash)
		if distTx != "" {
			f.WithDetail("distributorTx", distTx)
		}
		return nil, f
	}
	metrics.DistributionsTotal.Inc()

	record.DistributorTx = distTx

	// Best-effort persist: the chain is now the source of truth, so a store
	// failure is an operational error, not a client-facing one.
	raw, _ = json.Marshal(record)
	if err := s.store.Write(dctx, key, raw, s.cfg.RecordTTL); err != nil {
		metrics.RecordPersistFailures.Inc()
		s.log.Error("failed to persist processed payment; replay protection is blind to this tx",
			zap.String("paymentTx", txHash),
			zap.String("distributorTx", distTx),
			zap.Error(err))
	}

	metrics.VerificationsTotal.WithLabelValues("completed").Inc()
	s.log.Info("distributed",
		zap.String("user", user),
		zap.String("usdc", required.String()),
		zap.String("distributorTx", distTx))
	return record, nil
}

// GaslessTransfer handles the gas-less flow: validate the authorization,
// reserve the (payer, nonce) key, spend the authorization on-chain, then
// distribute the reward. Every post-broadcast outcome is recorded in the
// replay store before returning.
func (s *Service) GaslessTransfer(ctx context.Context, req *GaslessRequest) (*AuthorizationRecord, error) {
	auth, fault := s.validateGaslessRequest(req)
	if fault != nil {
		metrics.GaslessTransfersTotal.WithLabelValues("rejected").Inc()
		return nil, fault
	}

	if err := s.verifier.Verify(*auth, req.Signature); err != nil {
		metrics.GaslessTransfersTotal.WithLabelValues("rejected").Inc()
		return nil, faultFromAuthzError(err)
	}

	key := authorizationKey(auth.From, auth.Nonce)
	if raw, found, err := s.store.Read(ctx, key); err != nil {
		s.log.Error("replay store read failed", zap.String("key", key), zap.Error(err))
	} else if found {
		var existing AuthorizationRecord
		if err := json.Unmarshal(raw, &existing); err == nil {
			switch existing.Status {
			case StatusCompleted:
				metrics.ReplayHitsTotal.Inc()
				return &existing, nil
			case StatusFailed:
				// Reclaimable: a fresh attempt may retry from scratch.
				if err := s.store.Remove(ctx, key); err != nil {
					return nil, badGateway(CodeChainUnavailable, "failed to clear stale record")
				}
			default:
				metrics.GaslessTransfersTotal.WithLabelValues("conflict").Inc()
				return nil, conflict(CodeAlreadyProcessing, "authorization already processing")
			}
		}
	}

	unlock := s.exec.LockPayer(auth.From)
	defer unlock()

	// Read-only pre-flight: fail before any broadcast, wasting no gas.
	used, err := s.authorizationUsed(ctx, auth.From, auth.Nonce)
	if err != nil {
		return nil, badGateway(CodeChainUnavailable, "failed to check authorization state")
	}
	if used {
		metrics.GaslessTransfersTotal.WithLabelValues("conflict").Inc()
		return nil, conflict(CodeAuthorizationUsed, "authorization already used on-chain")
	}
	if err := s.exec.CheckWalletCap(ctx, auth.From, auth.Value); err != nil {
		if errors.Is(err, distribute.ErrWalletCapReached) {
			metrics.GaslessTransfersTotal.WithLabelValues("cap_reached").Inc()
			return nil, badRequest(CodeWalletCapReached, "wallet cap reached")
		}
		return nil, badGateway(CodeChainUnavailable, "failed to read wallet cap")
	}
	if err := s.exec.CheckTotalCap(ctx, auth.Value); err != nil {
		if errors.Is(err, distribute.ErrTotalCapReached) {
			metrics.GaslessTransfersTotal.WithLabelValues("cap_reached").Inc()
			return nil, badRequest(CodeTotalCapReached, "total cap reached")
		}
		return nil, badGateway(CodeChainUnavailable, "failed to read total cap")
	}

	record := &AuthorizationRecord{
		Status:      StatusPending,
		From:        auth.From,
		To:          auth.To,
		Value:       auth.Value.String(),
		ValidAfter:  auth.ValidAfter,
		ValidBefore: auth.ValidBefore,
		Nonce:       auth.Nonce,
		Signature:   req.Signature,
		UpdatedAt:   s.now().Unix(),
	}
	raw, _ := json.Marshal(record)
	reserved, err := s.store.Reserve(ctx, key, raw, s.cfg.RecordTTL)
	if err != nil {
		return nil, badGateway(CodeChainUnavailable, "failed to reserve authorization")
	}
	if !reserved {
		// Lost the race to a concurrent identical request.
		if raw, found, err := s.store.Read(ctx, key); err == nil && found {
			var winner AuthorizationRecord
			if err := json.Unmarshal(raw, &winner); err == nil && winner.Status == StatusCompleted {
				metrics.ReplayHitsTotal.Inc()
				return &winner, nil
			}
		}
		metrics.GaslessTransfersTotal.WithLabelValues("conflict").Inc()
		return nil, conflict(CodeAlreadyProcessing, "authorization already processing")
	}

	// From here on the flow must run to completion even if the client
	// disconnects: an abandoned record would block retries until TTL expiry.
	dctx := context.WithoutCancel(ctx)
	return s.executeGasless(dctx, key, record, auth, req.Signature)
}

// executeGasless runs the broadcast → confirm → distribute sequence for an
// already-reserved record, persisting every state transition.
func (s *Service) executeGasless(ctx context.Context, key string, record *AuthorizationRecord, auth *authz.Authorization, signature string) (*AuthorizationRecord, error) {
	paymentTx, err := s.spendAuthorization(ctx, auth, signature)
	if err != nil {
		// Nothing was broadcast; release the reservation so the client may retry.
		if rmErr := s.store.Remove(ctx, key); rmErr != nil {
			s.log.Error("failed to release reservation", zap.String("key", key), zap.Error(rmErr))
		}
		metrics.GaslessTransfersTotal.WithLabelValues("broadcast_failed").Inc()
		s.log.Error("authorization broadcast failed",
			zap.String("from", auth.From), zap.String("nonce", auth.Nonce), zap.Error(err))
		return nil, badGateway(CodeBroadcastFailed, "failed to broadcast payment transaction")
	}

	record.Status = StatusBroadcasted
	record.PaymentTx = paymentTx
	s.persistRecord(ctx, key, record)

	rcpt, err := s.gw.WaitForReceipt(ctx, paymentTx)
	if err != nil {
		s.failRecord(ctx, key, record, "payment confirmation failed: "+err.Error())
		metrics.GaslessTransfersTotal.WithLabelValues("payment_failed").Inc()
		return nil, badGateway(CodeChainUnavailable, "failed to confirm payment transaction").
			WithDetail("paymentTx", paymentTx)
	}
	if !rcpt.Succeeded() {
		s.failRecord(ctx, key, record, "payment transaction reverted")
		metrics.GaslessTransfersTotal.WithLabelValues("payment_reverted").Inc()
		s.log.Error("payment transaction reverted",
			zap.String("from", auth.From), zap.String("paymentTx", paymentTx))
		return nil, badGateway(CodePaymentReverted, "payment transaction reverted").
			WithDetail("paymentTx", paymentTx)
	}

	distTx, err := s.exec.Distribute(ctx, auth.From, auth.Value)
	if err != nil {
		// Critical partial failure: the payer has paid but holds no reward.
		// The payment hash is retained for operator reconciliation, and the
		// nonce is consumed on-chain so resubmitting cannot succeed.
		record.DistributorTx = distTx
		s.failRecord(ctx, key, record, "distribution failed after payment succeeded")
		metrics.PartialFailuresTotal.Inc()
		metrics.GaslessTransfersTotal.WithLabelValues("distribution_failed").Inc()
		s.log.Error("payment captured but distribution failed; operator follow-up required",
			zap.String("from", auth.From),
			zap.String("paymentTx", paymentTx),
			zap.String("distributorTx", distTx),
			zap.Error(err))
		f := NewFault(http.StatusInternalServerError, CodeDistributionFailed,
			"payment succeeded but distribution failed").
			WithDetail("paymentTx", paymentTx).
			WithDetail("support", "the authorization nonce is consumed; do not resubmit, contact support")
		if distTx != "" {
			f.WithDetail("distributorTx", distTx)
		}
		return nil, f
	}
	metrics.DistributionsTotal.Inc()

	record.Status = StatusCompleted
	record.DistributorTx = distTx
	s.persistRecord(ctx, key, record)

	metrics.GaslessTransfersTotal.WithLabelValues("completed").Inc()
	s.log.Info("gasless transfer completed",
		zap.String("from", auth.From),
		zap.String("paymentTx", paymentTx),
		zap.String("distributorTx", distTx))
	return record, nil
}

// AuthorizationStatus is the read-only lookup backing the status endpoint.
func (s *Service) AuthorizationStatus(ctx context.Context, from, nonce string) (*AuthorizationRecord, error) {
	if !common.IsHexAddress(from) {
		return nil, badRequest(CodeInvalidAddress, "invalid from address")
	}
	if !authz.NonceWellFormed(nonce) {
		return nil, badRequest(CodeInvalidNonce, "invalid nonce")
	}

	raw, found, err := s.store.Read(ctx, authorizationKey(from, nonce))
	if err != nil {
		return nil, badGateway(CodeChainUnavailable, "failed to read record")
	}
	if !found {
		return nil, NewFault(http.StatusNotFound, CodeNotFound, "no record for authorization")
	}
	var record AuthorizationRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, NewFault(http.StatusInternalServerError, CodeInternal, "corrupt record")
	}
	return &record, nil
}

// validateGaslessRequest checks payload shape and converts it into a typed
// authorization. Recipient must be the treasury: this facilitator never
// spends an authorization made out to any other address.
func (s *Service) validateGaslessRequest(req *GaslessRequest) (*authz.Authorization, *Fault) {
	if req == nil || req.Authorization == nil || req.Signature == "" {
		return nil, badRequest(CodeMissingArgs, "missing authorization or signature")
	}
	a := req.Authorization
	if a.From == "" || a.To == "" || a.Nonce == "" {
		return nil, badRequest(CodeMissingArgs, "missing authorization fields")
	}
	if !common.IsHexAddress(a.From) || !common.IsHexAddress(a.To) {
		return nil, badRequest(CodeInvalidAddress, "invalid authorization address")
	}
	if !addressEqual(a.To, s.cfg.Treasury) {
		return nil, badRequest(CodeRecipientMismatch, "authorization recipient mismatch")
	}
	if a.Value.BigInt() == nil {
		return nil, badRequest(CodeInvalidValue, "missing authorization value")
	}
	validAfter, okAfter := a.ValidAfter.Int64()
	validBefore, okBefore := a.ValidBefore.Int64()
	if a.ValidAfter.BigInt() == nil || a.ValidBefore.BigInt() == nil || !okAfter || !okBefore {
		return nil, badRequest(CodeWindowInvalid, "invalid authorization validity window")
	}

	return &authz.Authorization{
		From:        a.From,
		To:          a.To,
		Value:       a.Value.BigInt(),
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       a.Nonce,
	}, nil
}

// spendAuthorization broadcasts transferWithAuthorization on the stablecoin
// with the recovered signature components.
func (s *Service) spendAuthorization(ctx context.Context, auth *authz.Authorization, signature string) (string, error) {
	sigBytes, err := chain.HexToBytes(signature)
	if err != nil || len(sigBytes) != 65 {
		return "", fmt.Errorf("invalid signature encoding")
	}
	var r, sComp [32]byte
	copy(r[:], sigBytes[0:32])
	copy(sComp[:], sigBytes[32:64])
	v := sigBytes[64]
	if v < 27 {
		v += 27
	}

	nonceBytes, err := chain.HexToBytes(auth.Nonce)
	if err != nil || len(nonceBytes) != 32 {
		return "", fmt.Errorf("invalid nonce encoding")
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	return s.gw.WriteContract(ctx, s.cfg.StablecoinAddress,
		chain.TransferWithAuthorizationABI, chain.FunctionTransferWithAuthorization,
		common.HexToAddress(auth.From),
		common.HexToAddress(auth.To),
		auth.Value,
		big.NewInt(auth.ValidAfter),
		big.NewInt(auth.ValidBefore),
		nonce,
		v,
		r,
		sComp,
	)
}

// authorizationUsed reads the stablecoin's authorizationState flag.
func (s *Service) authorizationUsed(ctx context.Context, from, nonceHex string) (bool, error) {
	nonceBytes, err := chain.HexToBytes(nonceHex)
	if err != nil || len(nonceBytes) != 32 {
		return false, fmt.Errorf("invalid nonce encoding")
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	result, err := s.gw.ReadContract(ctx, s.cfg.StablecoinAddress,
		chain.AuthorizationStateABI, chain.FunctionAuthorizationState,
		common.HexToAddress(from), nonce)
	if err != nil {
		return false, err
	}
	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type from authorizationState")
	}
	return used, nil
}

// persistRecord writes a record transition, stamping the update time.
func (s *Service) persistRecord(ctx context.Context, key string, record *AuthorizationRecord) {
	record.UpdatedAt = s.now().Unix()
	raw, _ := json.Marshal(record)
	if err := s.store.Write(ctx, key, raw, s.cfg.RecordTTL); err != nil {
		metrics.RecordPersistFailures.Inc()
		s.log.Error("failed to persist authorization record",
			zap.String("key", key),
			zap.String("status", record.Status),
			zap.Error(err))
	}
}

// failRecord marks a record failed, retaining any transaction hashes.
func (s *Service) failRecord(ctx context.Context, key string, record *AuthorizationRecord, detail string) {
	record.Status = StatusFailed
	record.Error = detail
	s.persistRecord(ctx, key, record)
}

func addressEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

func faultFromAuthzError(err error) *Fault {
	switch {
	case errors.Is(err, authz.ErrMalformedAddress):
		return badRequest(CodeInvalidAddress, "malformed address")
	case errors.Is(err, authz.ErrMalformedNonce):
		return badRequest(CodeInvalidNonce, "malformed nonce")
	case errors.Is(err, authz.ErrValueMismatch):
		return badRequest(CodeInvalidValue, "value must equal the mint unit")
	case errors.Is(err, authz.ErrWindowInverted):
		return badRequest(CodeWindowInvalid, "validBefore must be greater than validAfter")
	case errors.Is(err, authz.ErrWindowTooLong):
		return badRequest(CodeWindowTooLong, "authorization window too long")
	case errors.Is(err, authz.ErrNotYetValid):
		return badRequest(CodeNotYetValid, "authorization not yet valid")
	case errors.Is(err, authz.ErrExpired):
		return badRequest(CodeExpired, "authorization expired")
	case errors.Is(err, authz.ErrBadSignature):
		return badRequest(CodeInvalidSignature, "invalid signature encoding")
	case errors.Is(err, authz.ErrSignatureMismatch):
		return badRequest(CodeInvalidSignature, "signature does not match payer")
	default:
		return badRequest(CodeInvalidSignature, "authorization rejected")
	}
}
